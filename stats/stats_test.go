package stats

import (
	"context"
	"expvar"
	"testing"
	"time"
)

// Run must flush once more on cancellation before returning, so callers that
// wait for Run to finish never lose the end-of-run summary.
func TestRunFlushesOnCancel(t *testing.T) {
	flushes := 0
	var last string
	s := New(time.Hour, func(m *expvar.Map) {
		flushes++
		last = m.String()
	})
	s.Add(Downloads, 3)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	<-done

	if flushes != 1 {
		t.Fatalf("flushed %d times, want exactly the final flush", flushes)
	}
	if last == "" || last == "{}" {
		t.Errorf("final flush saw no counters: %q", last)
	}
}
