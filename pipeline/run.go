package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Result summarises a finished run.
type Result struct {
	RunID    uuid.UUID
	Report   Report
	Jobs     int
	Duration time.Duration
}

// Run reads the input named in cfg, fetches and extracts every record, and
// writes the ranked and failure tables to every configured sink.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	jobs, err := ReadInputFile(cfg.Input)
	if err != nil {
		return nil, err
	}

	res, err := Process(ctx, cfg, jobs)
	if err != nil {
		return nil, err
	}

	if err := WriteOutputs(ctx, cfg, res); err != nil {
		return res, err
	}
	return res, nil
}

// Process runs the fetch-and-extract pool over jobs and aggregates the
// outcomes. It writes nothing but the diagnostic sample.
func Process(ctx context.Context, cfg Config, jobs []Job) (*Result, error) {
	runID := uuid.New()
	logger := slog.Default().With("run_id", runID.String())

	limiter, err := NewLimiter(cfg.Rate.Mode, cfg.Rate.PerSecond)
	if err != nil {
		return nil, err
	}
	extractor, err := NewExtractorFromConfig(cfg.Extract.Rules)
	if err != nil {
		return nil, fmt.Errorf("extraction rules: %w", err)
	}
	sample := NewSampleSaver(cfg.Output.Sample, cfg.Output.SampleChars)
	fetcher := NewFetcher(cfg, limiter, extractor, sample, logger)

	if cfg.MetricsAddr != "" {
		metricsCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
		defer stop()
		go serveMetrics(metricsCtx, cfg.MetricsAddr)
	}

	logger.Info("crawler run started",
		"jobs", len(jobs),
		"rate_per_second", cfg.Rate.PerSecond,
		"rate_mode", cfg.Rate.Mode,
		"concurrency", cfg.Concurrency,
		"rules", len(extractor.Rules()),
		"estimated_minutes", EstimateDuration(len(jobs), cfg.Rate.PerSecond).Minutes(),
	)

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	go runMonitor(monitorCtx, logger)

	start := time.Now()
	progress := NewProgressReporter(len(jobs), cfg.ProgressEvery, logger)
	outcomes := Collect(
		RunAll(ctx, jobs, cfg.Concurrency, fetcher.Run),
		func(Outcome) { progress.Observe() },
	)
	stopMonitor()

	rep := Aggregate(outcomes)
	elapsed := time.Since(start)

	logger.Info("crawler run finished",
		"ranked", len(rep.Ranked),
		"failed", len(rep.Failures),
		"minutes", elapsed.Minutes(),
		"sample_saved", sample.Saved(),
	)
	for kind, n := range rep.CountByKind() {
		logger.Info("failures by kind", "kind", kind.String(), "count", n)
	}

	return &Result{RunID: runID, Report: rep, Jobs: len(jobs), Duration: elapsed}, nil
}

// WriteOutputs renders the report to CSV, and to XLSX and Postgres when
// configured.
func WriteOutputs(ctx context.Context, cfg Config, res *Result) error {
	ranked := res.Report.RankedTable()
	failed := res.Report.FailureTable()

	if err := WriteCSV(cfg.Output.RankedCSV, ranked); err != nil {
		return err
	}
	slog.Info("wrote ranked table", "path", cfg.Output.RankedCSV, "rows", len(ranked.Rows))

	if err := WriteCSV(cfg.Output.FailedCSV, failed); err != nil {
		return err
	}
	slog.Info("wrote failure table", "path", cfg.Output.FailedCSV, "rows", len(failed.Rows))

	if cfg.Output.XLSX != "" {
		if err := WriteXLSX(cfg.Output.XLSX, ranked, failed); err != nil {
			return err
		}
		slog.Info("wrote workbook", "path", cfg.Output.XLSX)
	}

	if cfg.DatabaseURL != "" {
		// the export still runs after an interrupt; the tables are complete
		dbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
		defer cancel()
		if err := ExportToPostgres(dbCtx, cfg.DatabaseURL, res.RunID, res.Report); err != nil {
			return fmt.Errorf("postgres export: %w", err)
		}
		slog.Info("exported report to postgres", "run_id", res.RunID.String())
	}
	return nil
}

func runMonitor(ctx context.Context, logger *slog.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			logger.Info("pipeline stats",
				"read", PipelineStats.Read.Load(),
				"malformed", PipelineStats.Malformed.Load(),
				"fetched", PipelineStats.Fetched.Load(),
				"fetch_errors", PipelineStats.FetchErrors.Load(),
				"extracted", PipelineStats.Extracted.Load(),
				"misses", PipelineStats.Misses.Load(),
				"cancelled", PipelineStats.Cancelled.Load(),
			)
		case <-ctx.Done():
			return
		}
	}
}
