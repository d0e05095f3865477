// Copyright 2025 The wuzhou-kg Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"
	"github.com/zhensxz/wuzhou-kg/config"
	"github.com/zhensxz/wuzhou-kg/core"
	"github.com/zhensxz/wuzhou-kg/extract"
	"github.com/zhensxz/wuzhou-kg/ledger"
	"github.com/zhensxz/wuzhou-kg/merge"
	"github.com/zhensxz/wuzhou-kg/pipeline"
	"github.com/zhensxz/wuzhou-kg/sink"
	"github.com/zhensxz/wuzhou-kg/source"
)

func main() {
	app := &cli.App{
		Name:  "wuzhoukg",
		Usage: "Knowledge graph extraction pipeline for classical Chinese histories",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "extract",
				Usage:  "Run extraction over a segment file, resuming from the ledger",
				Action: extractCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to YAML job configuration",
					},
					&cli.StringFlag{
						Name:    "input",
						Aliases: []string{"i"},
						Usage:   "Path to segment JSONL file",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Path to result JSONL file (appended)",
					},
					&cli.StringFlag{
						Name:  "ledger",
						Usage: "Path to progress ledger file (appended)",
					},
					&cli.StringFlag{
						Name:  "endpoint",
						Usage: "Extraction service base URL",
					},
					&cli.StringFlag{
						Name:  "model",
						Usage: "Extraction model name",
					},
					&cli.IntFlag{
						Name:    "concurrency",
						Aliases: []string{"n"},
						Usage:   "Maximum concurrent extraction requests",
					},
					&cli.IntFlag{
						Name:  "max-attempts",
						Usage: "Maximum attempts per segment",
					},
					&cli.BoolFlag{
						Name:  "retry-failed",
						Usage: "Re-attempt segments the ledger marks failed",
					},
					&cli.BoolFlag{
						Name:  "no-group",
						Usage: "Extract raw segments without grouping into sections",
					},
				},
			},
			{
				Name:   "merge",
				Usage:  "Merge extraction results into per-volume graph files",
				Action: mergeCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "results",
						Aliases:  []string{"r"},
						Usage:    "Path to result JSONL file",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "out-dir",
						Aliases: []string{"d"},
						Usage:   "Directory for merged volume files",
						Value:   "graphs",
					},
				},
			},
			{
				Name:   "status",
				Usage:  "Report ledger progress against a segment file",
				Action: statusCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "input",
						Aliases:  []string{"i"},
						Usage:    "Path to segment JSONL file",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "ledger",
						Usage:    "Path to progress ledger file",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "no-group",
						Usage: "Count raw segments without grouping into sections",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// loadJobConfig layers CLI flags over the config file and environment.
func loadJobConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cfg, err
	}

	if v := c.String("input"); v != "" {
		cfg.Input = v
	}
	if v := c.String("output"); v != "" {
		cfg.Output = v
	}
	if v := c.String("ledger"); v != "" {
		cfg.Ledger = v
	}
	if v := c.String("endpoint"); v != "" {
		cfg.Endpoint = v
	}
	if v := c.String("model"); v != "" {
		cfg.Model = v
	}
	if v := c.Int("concurrency"); v > 0 {
		cfg.Concurrency = v
	}
	if v := c.Int("max-attempts"); v > 0 {
		cfg.MaxAttempts = v
	}
	if c.Bool("no-group") {
		cfg.GroupSections = false
	}

	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

func extractCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadJobConfig(c)
	if err != nil {
		return err
	}

	segments, err := loadSegments(cfg.Input, cfg.GroupSections)
	if err != nil {
		return err
	}

	state, err := ledger.Load(cfg.Ledger)
	if err != nil {
		return fmt.Errorf("failed to load ledger: %w", err)
	}

	ledgerWriter, err := ledger.OpenWriter(cfg.Ledger)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer ledgerWriter.Close()

	sinkWriter, err := sink.Open(cfg.Output)
	if err != nil {
		return fmt.Errorf("failed to open output: %w", err)
	}
	defer sinkWriter.Close()

	client, err := extract.New(extract.NewConfig(
		extract.WithBaseURL(cfg.Endpoint),
		extract.WithAPIKey(cfg.APIKey),
		extract.WithModel(cfg.Model),
		extract.WithTemperature(cfg.Temperature),
		extract.WithTimeout(cfg.Timeout.Std()),
	))
	if err != nil {
		return fmt.Errorf("failed to create extraction client: %w", err)
	}

	schedCfg := pipeline.Config{
		Concurrency:    cfg.Concurrency,
		MaxAttempts:    cfg.MaxAttempts,
		BackoffBase:    cfg.BackoffBase.Std(),
		BackoffMax:     cfg.BackoffMax.Std(),
		RetryFailed:    c.Bool("retry-failed"),
		ReportInterval: cfg.ReportInterval.Std(),
	}

	sched, err := pipeline.NewScheduler(client, ledgerWriter, sinkWriter, schedCfg,
		pipeline.WithProgressWriter(os.Stderr))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Input: %s (%d segments)\n", cfg.Input, len(segments))
	fmt.Fprintf(os.Stderr, "Output: %s\n", cfg.Output)
	fmt.Fprintf(os.Stderr, "Ledger: %s\n", cfg.Ledger)
	fmt.Fprintf(os.Stderr, "Model: %s via %s\n", cfg.Model, cfg.Endpoint)
	fmt.Fprintln(os.Stderr)

	summary, err := sched.Run(ctx, segments, state)
	printSummary(summary)
	if err != nil {
		return fmt.Errorf("extraction run failed: %w", err)
	}
	if summary != nil && summary.Failed > 0 {
		return fmt.Errorf("%d segment(s) failed; rerun with --retry-failed to re-attempt them", summary.Failed)
	}
	return nil
}

func printSummary(s *pipeline.Summary) {
	if s == nil {
		return
	}
	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "Done: %d  Failed: %d  Skipped: %d  Attempts: %d\n",
		s.Done, s.Failed, s.Skipped, s.Attempts)
	for _, f := range s.Failures {
		fmt.Fprintf(os.Stderr, "  failed %s: %s\n", f.SegmentId, f.Reason)
	}
}

func loadSegments(path string, group bool) ([]*core.Segment, error) {
	segments, err := source.ReadAll(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read segments: %w", err)
	}
	if group {
		segments = source.Group(segments)
	}
	return segments, nil
}

func mergeCommand(c *cli.Context) error {
	results, err := sink.ReadAll(c.String("results"))
	if err != nil {
		return fmt.Errorf("failed to read results: %w", err)
	}
	if len(results) == 0 {
		return fmt.Errorf("no results found in %s", c.String("results"))
	}

	graphs, err := merge.Merge(results)
	if err != nil {
		return fmt.Errorf("merge failed: %w", err)
	}

	outDir := c.String("out-dir")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	for _, g := range graphs {
		data, err := json.MarshalIndent(g, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode graph for %s %s: %w", g.Work, g.Volume, err)
		}
		name := fmt.Sprintf("%s_%s.json", sanitizeName(g.Work), sanitizeName(g.Volume))
		path := filepath.Join(outDir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		fmt.Fprintf(os.Stderr, "wrote %s (%d entities, %d events, %d relations)\n",
			path, len(g.Entities), len(g.Events), len(g.Relations))
	}

	fmt.Fprintf(os.Stderr, "merged %d results into %d volume graph(s)\n", len(results), len(graphs))
	return nil
}

// sanitizeName makes a work or volume label safe to use as a file name.
func sanitizeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, s)
}

func statusCommand(c *cli.Context) error {
	segments, err := loadSegments(c.String("input"), !c.Bool("no-group"))
	if err != nil {
		return err
	}

	state, err := ledger.Load(c.String("ledger"))
	if err != nil {
		return fmt.Errorf("failed to load ledger: %w", err)
	}

	var done, failed, pending int
	for _, seg := range segments {
		status, ok := state.Status(seg.Id)
		switch {
		case ok && status == core.StatusDone:
			done++
		case ok && status == core.StatusFailed:
			failed++
		default:
			pending++
		}
	}

	fmt.Printf("Segments: %d\n", len(segments))
	fmt.Printf("Done:     %d\n", done)
	fmt.Printf("Failed:   %d\n", failed)
	fmt.Printf("Pending:  %d\n", pending)
	if state.Truncated {
		fmt.Println("Warning: ledger had a corrupt tail; trailing entries were discarded")
	}
	for _, f := range state.Failures() {
		fmt.Printf("  failed %s: %s\n", f.SegmentId, f.Reason)
	}
	return nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
