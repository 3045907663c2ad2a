// Command score computes a displacement report from processed CSV files
// without a database or Redis. The report is written as JSON to stdout, or
// as a workbook when -xlsx is set.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mohamedkhairy/displacement-tracker/internal/config"
	"github.com/mohamedkhairy/displacement-tracker/internal/data"
	"github.com/mohamedkhairy/displacement-tracker/internal/export"
	"github.com/mohamedkhairy/displacement-tracker/internal/tracker"
	"github.com/mohamedkhairy/displacement-tracker/pkg/indicator"
	"github.com/mohamedkhairy/displacement-tracker/pkg/logger"
)

func main() {
	dataDir := flag.String("data", "data/processed", "directory containing <metric>.csv files")
	scoringFile := flag.String("config", os.Getenv("SCORING_CONFIG_FILE"), "scoring model YAML file")
	xlsxPath := flag.String("xlsx", "", "write the report as an xlsx workbook to this path")
	logLevel := flag.String("log-level", "warn", "log level")
	timeout := flag.Duration("timeout", 30*time.Second, "scoring timeout")
	flag.Parse()

	// Logs go to stderr so stdout stays valid JSON
	if err := logger.Init(*logLevel, "development"); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(*dataDir, *scoringFile, *xlsxPath, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "score: %v\n", err)
		os.Exit(1)
	}
}

func run(dataDir, scoringFile, xlsxPath string, timeout time.Duration) error {
	model, err := config.LoadScoringConfig(scoringFile)
	if err != nil {
		return err
	}

	pipeline, err := indicator.NewPipeline(model)
	if err != nil {
		return err
	}

	service := tracker.NewService(pipeline, data.NewCSVSourceFromConfig(dataDir, model),
		tracker.WithTimeout(timeout),
	)

	report, err := service.Compute(context.Background())
	if err != nil {
		return err
	}

	if xlsxPath != "" {
		f, err := os.Create(xlsxPath)
		if err != nil {
			return err
		}
		if err := export.WriteReport(f, report); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
