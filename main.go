package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli"

	"github.com/jmcarp/arcgis-hub-cli/config"
	"github.com/jmcarp/arcgis-hub-cli/fetcher"
	"github.com/jmcarp/arcgis-hub-cli/filestorage"
	"github.com/jmcarp/arcgis-hub-cli/hub"
	"github.com/jmcarp/arcgis-hub-cli/mimetype"
	"github.com/jmcarp/arcgis-hub-cli/stats"
	"github.com/jmcarp/arcgis-hub-cli/tracking"
)

var cfg config.Config

var searchFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "query, q",
		Usage: "free-text `TERM` to search for",
	},
	cli.StringSliceFlag{
		Name:  "tag",
		Usage: "restrict results to `TAG` (repeatable)",
	},
	cli.StringSliceFlag{
		Name:  "group",
		Usage: "restrict results to group `ID` (repeatable)",
	},
	cli.IntFlag{
		Name:  "limit, l",
		Usage: "stop after `N` results (0 means all)",
	},
	cli.StringFlag{
		Name:  "config, c",
		Usage: "`FILE` to load config from",
	},
}

var fetchFlags = append([]cli.Flag{
	cli.StringFlag{
		Name:  "path, p",
		Usage: "destination `DIR` for downloaded exports",
	},
	cli.StringFlag{
		Name:  "format, f",
		Usage: "export `FORMAT` to download",
		Value: "shapefile",
	},
	cli.DurationFlag{
		Name:  "max-staleness",
		Usage: "re-trigger exports older than `DURATION`",
	},
}, searchFlags...)

func main() {
	app := cli.NewApp()
	app.Name = "arcgis-hub"
	app.Usage = "Search an ArcGIS Hub catalog and download dataset exports"
	app.HideVersion = true

	app.Commands = cli.Commands{
		cli.Command{
			Name:   "search-sites",
			Usage:  "Search the catalog for sites",
			Flags:  searchFlags,
			Before: parseConfig,
			Action: func(c *cli.Context) error {
				records, err := collectRecords(c, hub.CollectionSite)
				if err != nil {
					return cli.NewExitError(err.Error(), 1)
				}
				return renderSites(os.Stdout, records)
			},
		},
		cli.Command{
			Name:   "search-datasets",
			Usage:  "Search the catalog for open datasets",
			Flags:  searchFlags,
			Before: parseConfig,
			Action: func(c *cli.Context) error {
				records, err := collectRecords(c, hub.CollectionDataset)
				if err != nil {
					return cli.NewExitError(err.Error(), 1)
				}
				return renderDatasets(os.Stdout, records)
			},
		},
		cli.Command{
			Name:   "fetch-datasets",
			Usage:  "Search for datasets and download their exports",
			Flags:  fetchFlags,
			Before: parseConfig,
			Action: func(c *cli.Context) error {
				records, err := collectRecords(c, hub.CollectionDataset)
				if err != nil {
					return cli.NewExitError(err.Error(), 1)
				}
				return runFetch(c, records)
			},
		},
		cli.Command{
			Name:      "fetch-datasets-by-id",
			Usage:     "Download exports for specific dataset ids",
			ArgsUsage: "ID [ID...]",
			Flags:     fetchFlags,
			Before:    parseConfig,
			Action: func(c *cli.Context) error {
				if len(c.Args()) == 0 {
					return cli.NewExitError("at least one dataset id is required", 1)
				}
				client := hubClient()
				var records []hub.Record
				for _, id := range c.Args() {
					rec, err := client.GetDataset(id)
					if err != nil {
						return cli.NewExitError(err.Error(), 1)
					}
					records = append(records, *rec)
				}
				return runFetch(c, records)
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// parseConfig loads the optional config file plus env overrides into cfg.
func parseConfig(c *cli.Context) error {
	var err error
	cfg, err = config.Parse(c.String("config"))
	return err
}

func hubClient() *hub.Client {
	return hub.New(cfg.Hub.URL, cfg.Hub.UserAgent)
}

// collectRecords runs the search described by c's flags and gathers up to
// --limit records from the paginated results.
func collectRecords(c *cli.Context, collection string) ([]hub.Record, error) {
	client := hubClient()
	it := client.Search(hub.SearchRequest{
		Query:      c.String("query"),
		Collection: collection,
		OpenData:   true,
		Tags:       c.StringSlice("tag"),
		Groups:     c.StringSlice("group"),
	})

	limit := c.Int("limit")
	var records []hub.Record
	for it.Next() {
		records = append(records, it.Record())
		if limit > 0 && len(records) >= limit {
			break
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// runFetch drives the download orchestration for records and reports the
// aggregated outcome. It exits non-zero iff any dataset's export ultimately
// failed.
func runFetch(c *cli.Context, records []hub.Record) error {
	logger := log.New(os.Stderr, "[fetch] ", log.Ldate|log.Ltime)
	format := c.String("format")

	store, err := buildStorage(c)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	window := cfg.MaxStaleness()
	if d := c.Duration("max-staleness"); d > 0 {
		window = d
	}
	cutoff := time.Now().Add(-window)

	f := fetcher.New(hubClient(), store, format, cutoff, logger)
	f.PollInterval = cfg.PollInterval()
	f.Concurrency = cfg.Fetcher.Concurrency

	if cfg.Fetcher.ValidateContent {
		validator, err := mimetype.New()
		if err != nil {
			logger.Printf("Warning: content validation disabled: %s", err)
		} else {
			f.Validator = validator
			defer validator.Close()
		}
	}

	if cfg.Tracking.Path != "" {
		tracker, err := tracking.Open(cfg.Tracking.Path)
		if err != nil {
			logger.Printf("Warning: tracking disabled: %s", err)
		} else {
			defer tracker.Close()
			f.Tracker = tracker
			runID, err := tracker.StartRun(c.String("query"), format)
			if err != nil {
				logger.Printf("Warning: could not record run: %s", err)
			}
			f.RunID = runID
		}
	}

	f.Stats = stats.New(30*time.Second, func(m *expvar.Map) {
		logger.Printf("Progress: %s", m.String())
	})
	ctx, cancel := context.WithCancel(context.Background())
	statsDone := make(chan struct{})
	go func() {
		f.Stats.Run(ctx)
		close(statsDone)
	}()
	// Wait out the final flush so the end-of-run summary is not lost.
	defer func() {
		cancel()
		<-statsDone
	}()

	working := make(fetcher.WorkingSet)
	for _, rec := range records {
		d, err := f.Resolve(rec.ID)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		if d == nil {
			logger.Printf("Warning: no %s export available for %s (%s), skipping", format, rec.Name(), rec.ID)
			f.Stats.Add(stats.Skips, 1)
			if err := f.Tracker.RecordSkip(f.RunID, rec.ID, rec.Name()); err != nil {
				logger.Printf("Warning: could not record skip: %s", err)
			}
			continue
		}
		working[rec.ID] = fetcher.Entry{Record: rec, Download: d}
	}

	failures, err := f.Run(ctx, working)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	if err := f.Tracker.FinishRun(f.RunID, len(failures)); err != nil {
		logger.Printf("Warning: could not finish run record: %s", err)
	}

	if len(failures) > 0 {
		logger.Printf("%d export(s) ended in error:", len(failures))
		for id, e := range failures {
			logger.Printf("  %s (%s): %s", e.Record.Name(), id, e.Download.Status)
		}
		return cli.NewExitError(fmt.Sprintf("%d of %d downloads failed", len(failures), len(records)), 1)
	}
	return nil
}

// buildStorage picks the export sink: an S3 bucket when configured, the
// local destination directory otherwise.
func buildStorage(c *cli.Context) (filestorage.FileStorage, error) {
	if be := cfg.Storage.Backend; be["backend"] == "s3" {
		return filestorage.NewAWSS3(be["region"], be["bucket"])
	}

	dir := cfg.Storage.Dir
	if p := c.String("path"); p != "" {
		dir = p
	}
	if dir == "" {
		dir = "."
	}
	return filestorage.NewFileSystem(dir)
}
