package utils

import (
	"sync"
	"time"
)

// MaxWindowEntries bounds a window under pathological bursts.
const MaxWindowEntries = 1000

// SlidingWindow holds the timestamps seen in (now - window, now]. The window
// length is passed on every call so a settings change applies to the next
// event without rebuilding state.
type SlidingWindow struct {
	mu   sync.Mutex
	hits []time.Time
}

func NewSlidingWindow() *SlidingWindow {
	return &SlidingWindow{}
}

// Add appends now, prunes expired hits and returns the resulting size.
func (w *SlidingWindow) Add(now time.Time, window time.Duration) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.hits = append(w.hits, now)
	w.pruneLocked(now, window)
	if overflow := len(w.hits) - MaxWindowEntries; overflow > 0 {
		w.hits = w.hits[overflow:]
	}
	return len(w.hits)
}

func (w *SlidingWindow) Count(now time.Time, window time.Duration) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(now, window)
	return len(w.hits)
}

func (w *SlidingWindow) Reset() {
	w.mu.Lock()
	w.hits = nil
	w.mu.Unlock()
}

// ResetIfAtLeast clears the window when it holds at least n hits and reports
// whether it did.
func (w *SlidingWindow) ResetIfAtLeast(n int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.hits) < n {
		return false
	}
	w.hits = nil
	return true
}

func (w *SlidingWindow) Empty(now time.Time, window time.Duration) bool {
	return w.Count(now, window) == 0
}

func (w *SlidingWindow) pruneLocked(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	idx := 0
	for _, hit := range w.hits {
		if hit.After(cutoff) {
			break
		}
		idx++
	}
	if idx == 0 {
		return
	}
	w.hits = append(w.hits[:0], w.hits[idx:]...)
}
