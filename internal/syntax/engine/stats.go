package engine

import (
	"sync"
	"time"

	"github.com/mosaicterm/treelight/internal/syntax"
)

// defaultStatsWindow is the number of recent samples the rolling performance
// averages cover. Overridable per engine via WithStatsWindow.
const defaultStatsWindow = 10

// rollingMean tracks the mean of the last N duration samples.
type rollingMean struct {
	samples []time.Duration
	next    int
	count   int
}

func newRollingMean(window int) *rollingMean {
	if window <= 0 {
		window = defaultStatsWindow
	}
	return &rollingMean{samples: make([]time.Duration, window)}
}

// add records a sample, evicting the oldest once the window is full.
func (r *rollingMean) add(d time.Duration) {
	r.samples[r.next] = d
	r.next = (r.next + 1) % len(r.samples)
	if r.count < len(r.samples) {
		r.count++
	}
}

// mean returns the average of the recorded samples, zero when empty.
func (r *rollingMean) mean() time.Duration {
	if r.count == 0 {
		return 0
	}
	var total time.Duration
	for i := 0; i < r.count; i++ {
		total += r.samples[i]
	}
	return total / time.Duration(r.count)
}

// perfTracker aggregates engine-global parse and query timings.
type perfTracker struct {
	mu    sync.Mutex
	parse *rollingMean
	query *rollingMean
}

func newPerfTracker(window int) *perfTracker {
	return &perfTracker{
		parse: newRollingMean(window),
		query: newRollingMean(window),
	}
}

func (t *perfTracker) recordParse(d time.Duration) {
	t.mu.Lock()
	t.parse.add(d)
	t.mu.Unlock()
}

func (t *perfTracker) recordQuery(d time.Duration) {
	t.mu.Lock()
	t.query.add(d)
	t.mu.Unlock()
}

func (t *perfTracker) snapshot() syntax.PerformanceStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return syntax.PerformanceStats{
		AvgParseNanos: t.parse.mean().Nanoseconds(),
		AvgQueryNanos: t.query.mean().Nanoseconds(),
		ParseSamples:  t.parse.count,
		QuerySamples:  t.query.count,
	}
}
