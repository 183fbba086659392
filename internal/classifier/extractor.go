package classifier

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Extractor pulls a speakable string out of a decoded JSON document
type Extractor interface {
	Extract(doc interface{}) (string, bool)
}

// FieldPath selects a non-empty string at a nested object path
type FieldPath []string

// Extract walks the path through nested objects
func (p FieldPath) Extract(doc interface{}) (string, bool) {
	cur := doc
	for _, field := range p {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return "", false
		}
		cur, ok = obj[field]
		if !ok {
			return "", false
		}
	}
	s, ok := cur.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

func (p FieldPath) String() string {
	return strings.Join(p, ".")
}

// BareString matches documents that are a JSON string themselves
type BareString struct{}

// Extract returns the document when it is a string
func (BareString) Extract(doc interface{}) (string, bool) {
	s, ok := doc.(string)
	return s, ok
}

// Render is the last-resort extractor: the whole document as compact JSON
type Render struct{}

// Extract always succeeds
func (Render) Extract(doc interface{}) (string, bool) {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Sprint(doc), true
	}
	return string(data), true
}

// DefaultExtractors is the field order workflow engines commonly answer in
func DefaultExtractors() []Extractor {
	return []Extractor{
		FieldPath{"text"},
		FieldPath{"summary"},
		FieldPath{"summary", "output"},
		FieldPath{"data", "output"},
		BareString{},
		Render{},
	}
}
