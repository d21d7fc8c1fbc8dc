package job

import (
	"fmt"
	"time"
)

// Status represents the server-side state of an export job.
// For known values see constants below.
//
// The vocabulary is open: the service is free to introduce new states, and
// anything we do not recognize is treated as in-progress (see ShouldPoll).
type Status string

// The known states of an export job.
const (
	// StatusReady is a finished export the service will not regenerate.
	StatusReady Status = "ready"

	// StatusReadyUnknown is a finished export of unknown provenance.
	// Unlike StatusReady it can be re-triggered.
	StatusReadyUnknown Status = "ready_unknown"

	// StatusErrorUpdating means export generation failed.
	StatusErrorUpdating Status = "error_updating"
)

// Download represents the server-side export job for one (dataset, format)
// pair. It is the core entity of the fetcher and holds all state needed to
// decide whether an export is usable, must be re-triggered or is still being
// generated.
//
// A Download may legitimately not exist for a dataset: the hub client
// returns nil in that case, which callers treat as "nothing to download".
type Download struct {
	ID string

	// Status as last observed. Each poll replaces it wholesale: the newest
	// read from the service is authoritative, even if it appears to regress.
	Status Status

	// LastModified is when the export artifact was last regenerated.
	LastModified time.Time

	// ContentURL points at the downloadable artifact. Only populated once
	// the job is in a ready state.
	ContentURL string

	// SpatialRefID is carried back to the service when re-triggering.
	SpatialRefID string

	// Format the export was requested in, e.g. "shapefile" or "csv".
	Format string
}

// CanTrigger reports whether the service exposes a re-trigger affordance for
// d. A "ready" export is an immutable snapshot and cannot be regenerated;
// every other status, including ones we have never seen, can.
func (d *Download) CanTrigger() bool {
	return d.Status != StatusReady
}

// IsStale reports whether d was generated before cutoff. The cutoff is
// computed once per run (now minus the staleness window) and passed
// explicitly so the decision stays pure.
func (d *Download) IsStale(cutoff time.Time) bool {
	return d.LastModified.Before(cutoff)
}

// Ready reports whether d is in a ready-like state, i.e. a usable artifact
// exists.
func (d *Download) Ready() bool {
	return d.Status == StatusReady || d.Status == StatusReadyUnknown
}

// ShouldPoll reports whether d needs another status check before its content
// can be fetched. A "ready" export is final regardless of age. Everything
// else is polled while it is stale or not yet ready.
func (d *Download) ShouldPoll(cutoff time.Time) bool {
	if !d.CanTrigger() {
		return false
	}
	return d.IsStale(cutoff) || !d.Ready()
}

// DidError reports whether export generation failed permanently.
func (d *Download) DidError() bool {
	return d.Status == StatusErrorUpdating
}

func (d Download) String() string {
	return fmt.Sprintf("Download{ID:%s, Status:%s, Format:%s, LastModified:%s}",
		d.ID, d.Status, d.Format, d.LastModified.Format(time.RFC3339))
}
