package render

import (
	"time"

	"github.com/loov/hrtime"
)

// TickStats is the running tick rate of an engine.
type TickStats struct {
	// Count is the number of ticks measured.
	Count uint64
	// Speed is the average number of ticks per second.
	Speed float64
	// Last is the time between the two most recent ticks.
	Last time.Duration
}

// tickTimer measures the time between ticks with the high resolution
// clock.
type tickTimer struct {
	start time.Duration
	stats TickStats
}

func newTickTimer() tickTimer {
	return tickTimer{start: hrtime.Now()}
}

// tick folds the time since the previous tick into the running average.
func (t *tickTimer) tick() {
	now := hrtime.Now()
	elapsed := now - t.start
	t.start = now
	t.stats.Last = elapsed
	n := float64(t.stats.Count)
	t.stats.Count++
	if elapsed <= 0 {
		return
	}
	rate := float64(time.Second) / float64(elapsed)
	t.stats.Speed = (n*t.stats.Speed + rate) / (n + 1)
}
