// Package fetcher drives catalog export jobs to completion.
//
// For each dataset the fetcher looks up the current export job, re-triggers
// it when it is stale, and then polls the batch in synchronous rounds: every
// round each in-flight job is classified as errored (moved to the failure
// record), still pending (status re-fetched for the next round) or ready
// (content downloaded and the entry dropped). One shared sleep separates
// rounds, so the number of in-flight HTTP calls is bounded by the batch size
// and the service sees a single predictable cadence.
//
//	search hits ──▶ Resolve (trigger if stale) ──▶ working set ──▶ Run
//	                                                               │ round:
//	                                                               │  errored ─▶ failures
//	                                                               │  pending ─▶ re-fetch, keep
//	                                                               │  ready   ─▶ download, drop
//	                                                               └─ sleep, repeat until empty
//
// An errored job never aborts its siblings; the run as a whole fails only in
// the sense that the accumulated failure record is non-empty at the end.
package fetcher

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jmcarp/arcgis-hub-cli/filestorage"
	"github.com/jmcarp/arcgis-hub-cli/hub"
	"github.com/jmcarp/arcgis-hub-cli/job"
	"github.com/jmcarp/arcgis-hub-cli/mimetype"
	"github.com/jmcarp/arcgis-hub-cli/stats"
	"github.com/jmcarp/arcgis-hub-cli/tracking"
)

// DefaultPollInterval is the pause between polling rounds.
const DefaultPollInterval = 15 * time.Second

// Catalog is the slice of the hub client the fetcher needs. *hub.Client
// satisfies it; tests substitute fakes.
type Catalog interface {
	// GetDownloads returns the current export job for a dataset+format
	// pair, or nil when none exists.
	GetDownloads(datasetID, format string) (*job.Download, error)
	TriggerDownload(datasetID, format, spatialRefID string) error
	FetchContent(url string) (io.ReadCloser, error)
}

// Entry pairs a catalog record with its export job while the job is being
// polled.
type Entry struct {
	Record   hub.Record
	Download *job.Download
}

// WorkingSet holds the entries currently being polled, keyed by dataset id.
// It is mutated only by Run, round by round.
type WorkingSet map[string]Entry

// FailureRecord accumulates the entries whose export ended in error.
// Entries are never removed; a non-empty record at the end of a run means a
// non-zero exit.
type FailureRecord map[string]Entry

// Fetcher orchestrates export downloads for one run.
type Fetcher struct {
	Hub     Catalog
	Storage filestorage.FileStorage

	// Format is the export format requested for every dataset in the run.
	Format string

	// Cutoff is the run-scoped staleness boundary, computed once as
	// now minus the staleness window. Exports last modified before it are
	// re-triggered.
	Cutoff time.Time

	// PollInterval is the shared sleep between polling rounds.
	PollInterval time.Duration

	// Concurrency bounds parallel status re-fetches within one round.
	// 1 keeps the strictly sequential baseline.
	Concurrency int

	// Validator, when set, checks each downloaded payload against the
	// expected content type for Format. Optional.
	Validator *mimetype.Validator

	// Tracker records outcomes in the run manifest. May be nil.
	Tracker *tracking.Tracker
	RunID   string

	Log   *log.Logger
	Stats *stats.Stats
	Clock Clock
}

// New returns a Fetcher with the baseline polling behavior. cutoff is the
// run-scoped staleness boundary.
func New(catalog Catalog, storage filestorage.FileStorage, format string, cutoff time.Time, logger *log.Logger) *Fetcher {
	if logger == nil {
		logger = log.New(os.Stderr, "[fetcher] ", log.Ldate|log.Ltime)
	}
	return &Fetcher{
		Hub:          catalog,
		Storage:      storage,
		Format:       format,
		Cutoff:       cutoff,
		PollInterval: DefaultPollInterval,
		Concurrency:  1,
		Log:          logger,
		Stats:        stats.New(time.Second, func(*expvar.Map) {}),
		Clock:        realClock{},
	}
}

// Resolve fetches the current export job for a dataset and re-triggers it
// when it is stale and the service exposes a trigger affordance. The
// pre-trigger snapshot is returned either way; Run observes the triggered
// job's progress on its next round. A nil return with nil error means the
// dataset has no export, which callers report as a skip, not an error.
func (f *Fetcher) Resolve(datasetID string) (*job.Download, error) {
	d, err := f.Hub.GetDownloads(datasetID, f.Format)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, nil
	}

	if d.CanTrigger() && d.IsStale(f.Cutoff) {
		f.Log.Printf("Triggering %s export for dataset %s (last modified %s)",
			f.Format, datasetID, d.LastModified.Format(time.RFC3339))
		if err := f.Hub.TriggerDownload(datasetID, f.Format, d.SpatialRefID); err != nil {
			return nil, err
		}
		f.Stats.Add(stats.Triggers, 1)
	}

	return d, nil
}

// Run polls every entry in working until each one has been downloaded,
// recorded as a failure, or dropped because its job disappeared. It returns
// the accumulated failure record. Only transport-level errors abort the run.
func (f *Fetcher) Run(ctx context.Context, working WorkingSet) (FailureRecord, error) {
	failures := make(FailureRecord)

	for len(working) > 0 {
		f.Stats.Add(stats.Rounds, 1)

		var pending []string
		for id, e := range working {
			d := e.Download
			switch {
			case d.DidError():
				f.Log.Printf("Warning: export for %s (%s) failed: %s", e.Record.Name(), id, d)
				failures[id] = e
				delete(working, id)
				f.Stats.Add(stats.Failures, 1)
				f.trackerWarn(f.Tracker.RecordFailure(f.RunID, id, e.Record.Name(), "status "+string(d.Status)))

			case d.ShouldPoll(f.Cutoff):
				pending = append(pending, id)

			case d.ContentURL == "":
				// Ready but no content link: nothing fetchable.
				f.Log.Printf("Warning: export for %s (%s) is ready but has no content link", e.Record.Name(), id)
				failures[id] = e
				delete(working, id)
				f.Stats.Add(stats.Failures, 1)
				f.trackerWarn(f.Tracker.RecordFailure(f.RunID, id, e.Record.Name(), "ready without content link"))

			default:
				err := f.download(e)
				delete(working, id)
				if err != nil {
					var mismatch mimetype.ErrMismatch
					if !errors.As(err, &mismatch) {
						return failures, err
					}
					f.Log.Printf("Warning: discarding export for %s (%s): %s", e.Record.Name(), id, err)
					failures[id] = e
					f.Stats.Add(stats.Failures, 1)
					f.trackerWarn(f.Tracker.RecordFailure(f.RunID, id, e.Record.Name(), err.Error()))
				}
			}
		}

		if len(pending) > 0 {
			refreshed, err := f.refresh(ctx, pending)
			if err != nil {
				return failures, err
			}
			for _, id := range pending {
				e := working[id]
				d := refreshed[id]
				if d == nil {
					f.Log.Printf("Warning: export job for %s (%s) disappeared, skipping", e.Record.Name(), id)
					delete(working, id)
					f.Stats.Add(stats.Skips, 1)
					f.trackerWarn(f.Tracker.RecordSkip(f.RunID, id, e.Record.Name()))
					continue
				}
				e.Download = d
				working[id] = e
			}
		}

		if len(working) > 0 {
			f.Clock.Sleep(f.PollInterval)
		}
	}

	return failures, nil
}

// refresh re-fetches the status of the given datasets, fanning out up to
// Concurrency requests at a time. Round boundaries are unaffected: refresh
// returns only when every status is in.
func (f *Fetcher) refresh(ctx context.Context, ids []string) (map[string]*job.Download, error) {
	var mu sync.Mutex
	out := make(map[string]*job.Download, len(ids))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(f.Concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			d, err := f.Hub.GetDownloads(id, f.Format)
			if err != nil {
				return err
			}
			f.Stats.Add(stats.Polls, 1)
			mu.Lock()
			out[id] = d
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// download streams e's content link to a temp file, optionally validating
// its content type, and commits it to the file storage as
// <datasetName>.<ext>.
func (f *Fetcher) download(e Entry) error {
	d := e.Download
	body, err := f.Hub.FetchContent(d.ContentURL)
	if err != nil {
		return err
	}
	defer body.Close()

	tmpf, err := os.CreateTemp("", "hub-export-")
	if err != nil {
		return err
	}
	defer os.Remove(tmpf.Name())
	defer tmpf.Close()

	var sniffed int64
	if f.Validator != nil {
		if pattern := mimetype.PatternFor(f.Format); pattern != "" {
			f.Validator.Reset(pattern)
			// TeeReader copies the sniffed bytes into the output file.
			sniffed, err = f.Validator.Read(io.TeeReader(body, tmpf))
			if err != nil {
				return err
			}
		}
	}

	n, err := io.Copy(tmpf, body)
	if err != nil {
		return fmt.Errorf("downloading %s: %v", e.Record.Name(), err)
	}
	n += sniffed
	if err := tmpf.Sync(); err != nil {
		return err
	}
	if err := tmpf.Close(); err != nil {
		return err
	}

	dest := destName(e.Record.Name(), f.Format)
	if err := f.Storage.StoreFile(tmpf.Name(), dest); err != nil {
		return err
	}

	f.Log.Printf("Downloaded %s -> %s", e.Record.Name(), dest)
	f.Stats.Add(stats.Downloads, 1)
	f.Stats.Add(stats.Bytes, n)
	f.trackerWarn(f.Tracker.RecordDownload(f.RunID, e.Record.ID, e.Record.Name(), dest))
	return nil
}

// destName builds the destination filename for a dataset export. Shapefile
// exports arrive zipped.
func destName(name, format string) string {
	ext := format
	if format == "shapefile" {
		ext = "zip"
	}
	// Dataset names occasionally contain path separators.
	name = strings.ReplaceAll(name, string(os.PathSeparator), "_")
	return name + "." + ext
}

// trackerWarn logs manifest write errors; they never fail the run.
func (f *Fetcher) trackerWarn(err error) {
	if err != nil {
		f.Log.Printf("Warning: could not record outcome in manifest: %s", err)
	}
}
