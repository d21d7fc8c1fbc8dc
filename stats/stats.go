// Package stats collects counters for a fetch run on an expvar.Map and
// flushes them to a report function on a fixed interval.
package stats

import (
	"context"
	"expvar"
	"time"
)

// Counter identifiers used by the fetcher.
const (
	Rounds    = "rounds"
	Polls     = "polls"
	Triggers  = "triggers"
	Downloads = "downloads"
	Failures  = "failures"
	Skips     = "skips"
	Bytes     = "bytes"
)

type Stats struct {
	*expvar.Map
	interval   time.Duration
	reportfunc func(m *expvar.Map)
}

// New returns a Stats flushing to report every interval. The map is
// unregistered so runs and tests can create as many as they like.
func New(interval time.Duration, report func(*expvar.Map)) *Stats {
	return &Stats{new(expvar.Map).Init(), interval, report}
}

// Run flushes on the configured interval until ctx is cancelled, then
// performs a final flush so short runs still report.
func (s *Stats) Run(ctx context.Context) {
	tick := time.NewTicker(s.interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			s.reportfunc(s.Map)
			return
		case <-tick.C:
			s.reportfunc(s.Map)
		}
	}
}
