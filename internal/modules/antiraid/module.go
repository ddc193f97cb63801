package antiraid

import (
	"time"

	"sentinel-automod/internal/utils"

	"github.com/puzpuzpuz/xsync/v4"
)

// Tracker counts member joins per guild over a sliding window. It reports the
// window size and leaves the threshold decision to the caller.
type Tracker struct {
	windows *xsync.Map[string, *utils.SlidingWindow]
}

func NewTracker() *Tracker {
	return &Tracker{windows: xsync.NewMap[string, *utils.SlidingWindow]()}
}

func (t *Tracker) RecordJoin(guildID string, now time.Time, window time.Duration) int {
	if guildID == "" || window <= 0 {
		return 0
	}
	return t.window(guildID).Add(now, window)
}

func (t *Tracker) Count(guildID string, now time.Time, window time.Duration) int {
	w, ok := t.windows.Load(guildID)
	if !ok {
		return 0
	}
	return w.Count(now, window)
}

// ResetIfAtLeast empties the guild's window when it holds at least threshold
// joins. Of several callers racing on the same burst only one gets true.
func (t *Tracker) ResetIfAtLeast(guildID string, threshold int) bool {
	w, ok := t.windows.Load(guildID)
	if !ok {
		return false
	}
	return w.ResetIfAtLeast(threshold)
}

func (t *Tracker) Reset(guildID string) {
	if w, ok := t.windows.Load(guildID); ok {
		w.Reset()
	}
}

func (t *Tracker) window(guildID string) *utils.SlidingWindow {
	w, _ := t.windows.LoadOrCompute(guildID, func() (*utils.SlidingWindow, bool) {
		return utils.NewSlidingWindow(), false
	})
	return w
}
