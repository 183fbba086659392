// Package dedup folds repeated identical requests onto one job for a short
// window.
package dedup

import (
	"sync"
	"time"

	"github.com/asyncpoller/api/internal/throttle"
)

// DefaultWindow is how long a key keeps resolving to the same job
const DefaultWindow = 30 * time.Second

// Entry maps a normalized key to the most recent job created for it
type Entry struct {
	Key       string
	JobID     string
	CreatedAt time.Time
}

// Index is a mutex-guarded key → job map with lazy expiry
type Index struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]Entry
}

// NewIndex creates an index whose entries expire after window
func NewIndex(window time.Duration) *Index {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Index{
		window:  window,
		entries: make(map[string]Entry),
	}
}

// purgeLocked drops entries that have outlived the window and returns how
// many went.
func (ix *Index) purgeLocked(now time.Time) int {
	n := 0
	for key, e := range ix.entries {
		if throttle.Expired(e.CreatedAt, now, ix.window) {
			delete(ix.entries, key)
			n++
		}
	}
	return n
}

func (ix *Index) lookupLocked(key string, now time.Time) (Entry, bool) {
	e, ok := ix.entries[key]
	if !ok || throttle.Expired(e.CreatedAt, now, ix.window) {
		return Entry{}, false
	}
	return e, true
}

// Resolve returns the job a request should attach to. Under a single lock it
// purges expired entries, reuses a live entry whose job live reports as still
// running (unless forceNew), and otherwise calls create and records the new
// job. created reports whether create ran successfully.
func (ix *Index) Resolve(key string, now time.Time, forceNew bool, live func(jobID string) bool, create func() (string, error)) (jobID string, created bool, err error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.purgeLocked(now)

	if !forceNew {
		if e, ok := ix.lookupLocked(key, now); ok && live(e.JobID) {
			return e.JobID, false, nil
		}
	}

	jobID, err = create()
	if err != nil {
		return "", false, err
	}
	ix.entries[key] = Entry{Key: key, JobID: jobID, CreatedAt: now}
	return jobID, true, nil
}

// Len returns the number of entries, including ones not yet purged
func (ix *Index) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.entries)
}
