package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Book a flight to Tokyo", "book a flight to tokyo"},
		{"book a flight to tokyo!", "book a flight to tokyo"},
		{"  Book   a\tflight\nto  Tokyo?! ", "book a flight to tokyo"},
		{"What's the weather, today?", "whats the weather today"},
		{"STRASSE", "strasse"},
		{"!!!", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}
