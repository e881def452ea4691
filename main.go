package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aumrank/crawler/pipeline"
)

var (
	settingsPath string
	outDir       string
	xlsxPath     string
	rateMode     string
	ratePerSec   int
	concurrency  int
	debugMode    bool
)

var rootCmd = &cobra.Command{
	Use:   "aumrank [input-file]",
	Short: "Rank 13F filers by assets under management",
	Long: `Fetches every filing listed in a filtered EDGAR index under a fixed
request-rate ceiling, extracts the AUM figure from each document and writes
a ranked table plus a table of failures.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := pipeline.LoadConfig(settingsPath)
		if err != nil {
			return err
		}
		if len(args) > 0 {
			cfg.Input = args[0]
		}
		if cmd.Flags().Changed("rate") {
			cfg.Rate.PerSecond = ratePerSec
		}
		if cmd.Flags().Changed("rate-mode") {
			cfg.Rate.Mode = rateMode
		}
		if cmd.Flags().Changed("concurrency") {
			cfg.Concurrency = concurrency
		}
		if xlsxPath != "" {
			cfg.Output.XLSX = xlsxPath
		}
		if outDir != "" {
			cfg.Output.RankedCSV = joinDir(outDir, cfg.Output.RankedCSV)
			cfg.Output.FailedCSV = joinDir(outDir, cfg.Output.FailedCSV)
			cfg.Output.Sample = joinDir(outDir, cfg.Output.Sample)
			if cfg.Output.XLSX != "" {
				cfg.Output.XLSX = joinDir(outDir, cfg.Output.XLSX)
			}
		}

		level := slog.LevelInfo
		if debugMode || cfg.Debug {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})))

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		_, err = pipeline.Run(ctx, cfg)
		return err
	},
}

func joinDir(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

func init() {
	rootCmd.Flags().StringVar(&settingsPath, "config", "", "Path to a YAML settings file")
	rootCmd.Flags().StringVar(&outDir, "out-dir", "", "Directory for the output files")
	rootCmd.Flags().StringVar(&xlsxPath, "xlsx", "", "Also write both tables to this workbook")
	rootCmd.Flags().StringVar(&rateMode, "rate-mode", pipeline.RateModeWindow, "Rate limiter: window or paced")
	rootCmd.Flags().IntVar(&ratePerSec, "rate", pipeline.DefaultRatePerSec, "Maximum requests started per second")
	rootCmd.Flags().IntVar(&concurrency, "concurrency", pipeline.DefaultConcurrency, "Maximum concurrent fetches")
	rootCmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("aumrank failed", "err", err)
		os.Exit(1)
	}
}
