// Command alignctl scores a CSV export offline and prints the report as JSON.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/glendonC/mallards/internal/align"
	"github.com/glendonC/mallards/internal/api"
	"github.com/glendonC/mallards/internal/config"
	"github.com/glendonC/mallards/internal/contracts"
	"github.com/glendonC/mallards/internal/ingest"
	"github.com/glendonC/mallards/internal/logging"
)

// settingFlags share their names with the query API parameters.
var settingFlags = []string{"timeRange", "sensitivity", "threshold", "alertThreshold", "groupBy", "focus", "detector", "asOf"}

func main() {
	var (
		input   = flag.String("csv", "-", "CSV file to score, - for stdin")
		dataset = flag.String("dataset", "local", "dataset id used for event ids")
		profile = flag.String("profile", "", "YAML engine profile")
		pretty  = flag.Bool("pretty", false, "indent JSON output")
		level   = flag.String("log-level", "warn", "log level")

		tsCol       = flag.String("timestamp-column", "", "timestamp column")
		amountCol   = flag.String("amount-column", "", "amount column")
		typeCol     = flag.String("type-column", "", "type column")
		regionCol   = flag.String("region-column", "", "region column")
		approvalCol = flag.String("approval-column", "", "approval status column")
	)
	for _, name := range settingFlags {
		flag.String(name, "", "engine setting "+name)
	}
	flag.Parse()

	logger := logging.NewWithWriter(os.Stderr, "alignctl", *level)

	base, columns, err := config.LoadProfile(*profile, align.DefaultSettings())
	if err != nil {
		fail(err)
	}
	overrides := url.Values{}
	flag.Visit(func(f *flag.Flag) {
		for _, name := range settingFlags {
			if f.Name == name {
				overrides.Set(name, f.Value.String())
			}
		}
	})
	settings, err := api.SettingsFromQuery(base, overrides)
	if err != nil {
		fail(err)
	}

	var r io.Reader = os.Stdin
	if *input != "-" {
		f, err := os.Open(*input)
		if err != nil {
			fail(err)
		}
		defer f.Close()
		r = f
	}

	mapping := ingest.DefaultMapping().
		Overlay(ingest.Mapping(columns)).
		Overlay(ingest.Mapping{Timestamp: *tsCol, Amount: *amountCol, Type: *typeCol, Region: *regionCol, ApprovalStatus: *approvalCol})
	parsed, err := ingest.ParseCSV(r, mapping)
	if err != nil {
		fail(err)
	}
	logger.Info("parsed input", "accepted", parsed.Accepted, "skipped", parsed.Skipped, "schema", parsed.Schema)

	report, err := align.Recompute(contracts.Dataset{ID: *dataset, Schema: parsed.Schema, Records: parsed.Records}, settings)
	if err != nil {
		fail(err)
	}

	enc := json.NewEncoder(os.Stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(report); err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "alignctl:", err)
	os.Exit(1)
}
