package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zpam/categorizer/pkg/classifier"
	"github.com/zpam/categorizer/pkg/evaluate"
	"github.com/zpam/categorizer/pkg/metrics"
	"github.com/zpam/categorizer/pkg/profiler"
)

var (
	evaluateInput       string
	evaluateWorkers     int
	evaluateBatchSize   int
	evaluateJSON        bool
	evaluateMetricsAddr string
	evaluateProfile     bool
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a model against labelled documents",
	Long: `Classify every document of a labelled test set and report the
confusion matrix of true against predicted categories.

Input has one document per line: the true label, a tab, then the
tokenized text. Use "-" to read from stdin.

Example usage:
  zpam-cat evaluate -i test.tsv --config config.yaml
  zpam-cat evaluate -i test.tsv -p dataSource=remote,basePath=redis://localhost:6379/0 --workers 8
  zpam-cat evaluate -i test.tsv --json --metrics-addr :9108`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if evaluateInput == "" {
			return fmt.Errorf("input file is required")
		}

		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("workers") {
			cfg.Performance.Workers = evaluateWorkers
		}
		if cmd.Flags().Changed("batch-size") {
			cfg.Performance.BatchSize = evaluateBatchSize
		}
		if evaluateMetricsAddr != "" {
			cfg.Metrics.Enabled = true
			cfg.Metrics.Address = evaluateMetricsAddr
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		var in io.Reader = os.Stdin
		if evaluateInput != "-" {
			file, err := os.Open(evaluateInput)
			if err != nil {
				return fmt.Errorf("failed to open input: %v", err)
			}
			defer file.Close()
			in = file
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		runnerCfg := evaluate.RunnerConfig{
			Workers:         cfg.Performance.Workers,
			BatchSize:       cfg.Performance.BatchSize,
			GramSize:        cfg.Classifier.GramSize,
			DefaultCategory: cfg.Classifier.DefaultCategory,
			Logger:          logger,
		}

		var observers evaluate.Observers
		var prof *profiler.Profiler
		if evaluateProfile {
			prof = profiler.NewProfiler()
			observers = append(observers, prof)
		}

		if cfg.Metrics.Enabled {
			collector := metrics.New()
			observers = append(observers, collector)

			metricsCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			go func() {
				if err := collector.Serve(metricsCtx, cfg.Metrics.Address, cfg.Metrics.Path, logger); err != nil {
					logger.Error("metrics endpoint failed", "error", err)
				}
			}()
		}

		if len(observers) > 0 {
			runnerCfg.Observer = observers
		}

		if !evaluateJSON {
			fmt.Printf("🚀 ZPAM Categorizer Evaluation\n")
			fmt.Printf("📁 Input: %s\n", evaluateInput)
			fmt.Printf("🧠 Classifier: %s (%s store)\n", cfg.Classifier.ClassifierType, cfg.Classifier.DataSource)
			fmt.Printf("⚡ Workers: %d\n\n", cfg.Performance.Workers)
		}

		factory := func(ctx context.Context) (*classifier.Context, error) {
			if prof != nil {
				defer prof.Start(profiler.StageStartup).Stop()
			}
			return classifier.FromConfig(ctx, cfg, logger)
		}

		matrix := evaluate.NewConfusionMatrix()
		stats, err := evaluate.NewRunner(factory, runnerCfg).Run(ctx, in, matrix)
		if err != nil {
			return fmt.Errorf("evaluation failed: %w", err)
		}

		if evaluateJSON {
			if prof != nil {
				prof.Write(os.Stderr)
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(matrix)
		}

		if err := matrix.Write(os.Stdout); err != nil {
			return err
		}
		fmt.Printf("\n⏱️  %d documents in %v", stats.Records, stats.Elapsed)
		if secs := stats.Elapsed.Seconds(); secs > 0 {
			fmt.Printf(" (%.0f docs/sec)", float64(stats.Records)/secs)
		}
		fmt.Printf("\n")

		if prof != nil {
			fmt.Printf("\n")
			prof.Write(os.Stdout)
		}
		return nil
	},
}

func init() {
	evaluateCmd.Flags().StringVarP(&evaluateInput, "input", "i", "", "Labelled test file (label<TAB>text per line, - for stdin)")
	evaluateCmd.Flags().IntVarP(&evaluateWorkers, "workers", "w", 0, "Parallel workers, each with its own classifier")
	evaluateCmd.Flags().IntVar(&evaluateBatchSize, "batch-size", 0, "Records handed to a worker at a time")
	evaluateCmd.Flags().BoolVar(&evaluateJSON, "json", false, "Print the confusion matrix as JSON")
	evaluateCmd.Flags().BoolVar(&evaluateProfile, "profile", false, "Report per-stage latency percentiles after the run")
	evaluateCmd.Flags().StringVar(&evaluateMetricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address during the run")
}
