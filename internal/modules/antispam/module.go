package antispam

import (
	"time"

	"sentinel-automod/internal/utils"

	"github.com/puzpuzpuz/xsync/v4"
)

type key struct {
	userID  string
	guildID string
}

// Tracker owns one sliding window per (user, guild). Lookups for different keys
// never contend; each window serialises its own append-and-check.
type Tracker struct {
	windows *xsync.Map[key, *utils.SlidingWindow]
}

func NewTracker() *Tracker {
	return &Tracker{windows: xsync.NewMap[key, *utils.SlidingWindow]()}
}

// RecordAndCheck appends now to the user's window and reports whether the
// window holds at least threshold messages.
func (t *Tracker) RecordAndCheck(userID, guildID string, now time.Time, threshold int, window time.Duration) bool {
	if threshold <= 0 || window <= 0 {
		return false
	}
	count := 0
	// append inside Compute so a concurrent Sweep cannot orphan the window
	t.windows.Compute(key{userID: userID, guildID: guildID}, func(w *utils.SlidingWindow, loaded bool) (*utils.SlidingWindow, xsync.ComputeOp) {
		if !loaded {
			w = utils.NewSlidingWindow()
		}
		count = w.Add(now, window)
		return w, xsync.UpdateOp
	})
	return count >= threshold
}

func (t *Tracker) Count(userID, guildID string, now time.Time, window time.Duration) int {
	w, ok := t.windows.Load(key{userID: userID, guildID: guildID})
	if !ok {
		return 0
	}
	return w.Count(now, window)
}

// Sweep drops windows with no hits left in (now - window, now]. A window that
// receives a hit while being swept is kept.
func (t *Tracker) Sweep(now time.Time, window time.Duration) int {
	removed := 0
	t.windows.Range(func(k key, _ *utils.SlidingWindow) bool {
		t.windows.Compute(k, func(w *utils.SlidingWindow, loaded bool) (*utils.SlidingWindow, xsync.ComputeOp) {
			if !loaded {
				return w, xsync.CancelOp
			}
			if w.Empty(now, window) {
				removed++
				return nil, xsync.DeleteOp
			}
			return w, xsync.CancelOp
		})
		return true
	})
	return removed
}

func (t *Tracker) Size() int {
	return t.windows.Size()
}
