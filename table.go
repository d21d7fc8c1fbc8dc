package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/jmcarp/arcgis-hub-cli/hub"
)

// Result tables go to stdout only; all progress and warnings stay on stderr.

func renderSites(w io.Writer, records []hub.Record) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tURL\tID")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Name(), r.URL(), r.ID)
	}
	return tw.Flush()
}

func renderDatasets(w io.Writer, records []hub.Record) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTAGS")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ID, r.Name(), strings.Join(r.Tags(), ","))
	}
	return tw.Flush()
}
