// Command claim-convert turns saved invoice batches into the per-invoice
// transportation/ and hotel/ files the ERP form filler reads.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/schollz/progressbar/v3"

	"github.com/zombor/travel-reimburse/internal/claim"
	"github.com/zombor/travel-reimburse/internal/filestore"
	"github.com/zombor/travel-reimburse/internal/handoff"
)

func main() {
	fs := ff.NewFlagSet("claim-convert")
	var (
		inputDir  = fs.StringLong("input", "./handoff", "Directory holding invoices_*.json batches")
		outputDir = fs.StringLong("output", "", "Directory to write the hand-off tree into (defaults to --input)")
		tripsPath = fs.StringLong("trips", "", "JSON file with the declared trips, used for trip days")
		rulesPath = fs.StringLong("rules", "", "YAML file overriding the built-in rules")
		debug     = fs.BoolLong("debug", "Enable debug logging")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("CLAIM_CONVERT"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelWarn
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if *outputDir == "" {
		*outputDir = *inputDir
	}

	var override []byte
	if *rulesPath != "" {
		data, err := os.ReadFile(*rulesPath)
		if err != nil {
			slog.Error("Failed to read rules file", "path", *rulesPath, "error", err)
			os.Exit(1)
		}
		override = data
	}
	rules, err := claim.LoadRules(override)
	if err != nil {
		slog.Error("Failed to load rules", "error", err)
		os.Exit(1)
	}

	trips, err := readTrips(*tripsPath)
	if err != nil {
		slog.Error("Failed to read trips", "path", *tripsPath, "error", err)
		os.Exit(1)
	}

	input, err := filestore.NewLocalStorage(*inputDir)
	if err != nil {
		slog.Error("Failed to open input directory", "error", err)
		os.Exit(1)
	}
	output, err := filestore.NewLocalStorage(*outputDir)
	if err != nil {
		slog.Error("Failed to open output directory", "error", err)
		os.Exit(1)
	}

	batches, err := findBatches(input)
	if err != nil {
		slog.Error("Failed to list batches", "error", err)
		os.Exit(1)
	}
	if len(batches) == 0 {
		fmt.Printf("No invoices_*.json batches found in %s.\n", *inputDir)
		return
	}

	converter := handoff.NewConverter(claim.NewEngine(rules))
	writer := handoff.NewWriter(output, converter)

	bar := progressbar.NewOptions(len(batches),
		progressbar.OptionSetDescription("Converting batches"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	written, failed := convertAll(input, writer, converter, batches, trips, bar)

	fmt.Printf("\nWrote %d files from %d batches into %s.\n", written, len(batches)-failed, *outputDir)
	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d batches failed.\n", failed)
		os.Exit(1)
	}
}

// findBatches lists the invoices_*.json files at the root of store
func findBatches(store filestore.Storage) ([]string, error) {
	names, err := store.List("")
	if err != nil {
		return nil, err
	}
	var batches []string
	for _, name := range names {
		base := path.Base(name)
		if strings.HasPrefix(base, "invoices_") && strings.HasSuffix(base, ".json") {
			batches = append(batches, name)
		}
	}
	return batches, nil
}

// convertAll converts every batch, logging and counting the ones that fail
func convertAll(input filestore.Storage, writer *handoff.Writer, converter *handoff.Converter, batches []string, trips []claim.Trip, bar *progressbar.ProgressBar) (written, failed int) {
	for _, name := range batches {
		n, err := convertBatch(input, writer, converter, name, trips)
		bar.Add(1)
		if err != nil {
			slog.Error("Failed to convert batch", "batch", name, "error", err)
			failed++
			continue
		}
		written += n
	}
	return written, failed
}

func convertBatch(input filestore.Storage, writer *handoff.Writer, converter *handoff.Converter, name string, trips []claim.Trip) (int, error) {
	data, err := input.Get(name)
	if err != nil {
		return 0, fmt.Errorf("reading batch: %w", err)
	}
	invoices, err := handoff.ReadBatch(data)
	if err != nil {
		return 0, err
	}
	written, err := writer.WriteDocuments(converter.Convert(invoices, trips))
	slog.Debug("converted batch", "batch", name, "invoices", len(invoices), "documents", len(written))
	return len(written), err
}

func readTrips(file string) ([]claim.Trip, error) {
	if file == "" {
		return nil, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("reading trips file: %w", err)
	}
	var trips []claim.Trip
	if err := json.Unmarshal(data, &trips); err != nil {
		return nil, fmt.Errorf("decoding trips: %w", err)
	}
	for i := range trips {
		trips[i] = claim.NewTrip(trips[i])
	}
	return trips, nil
}
