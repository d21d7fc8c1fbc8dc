package fetcher

import "time"

// Clock abstracts the round sleep so tests can drive the polling scheduler
// without real waits.
type Clock interface {
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Sleep(d time.Duration) { time.Sleep(d) }
