package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zpam/categorizer/pkg/datastore"
)

var (
	modelInfoJSON bool
	modelPushFile string
	modelPushURL  string
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Inspect and publish trained models",
}

var modelInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the aggregates of the configured model",
	Long: `Print the categories, per-category totals and vocabulary size of
the model selected by the classifier configuration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := setup()
		if err != nil {
			return err
		}

		kind, err := datastore.ParseKind(cfg.Classifier.DataSource)
		if err != nil {
			return err
		}

		ctx := context.Background()
		store, err := datastore.Open(ctx, kind, cfg.Classifier.BasePath, cfg.Redis.StoreConfig())
		if err != nil {
			return fmt.Errorf("failed to open model: %w", err)
		}
		defer datastore.Close(store)

		info, err := datastore.Describe(ctx, store)
		if err != nil {
			return fmt.Errorf("failed to read model: %w", err)
		}

		if modelInfoJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}

		fmt.Printf("🧠 Model: %s (%s)\n", cfg.Classifier.BasePath, kind)
		fmt.Printf("📚 Vocabulary: %d features\n", info.VocabularySize)
		fmt.Printf("🏷️  Categories: %d\n", len(info.Categories))
		for _, c := range info.Categories {
			fmt.Printf("  %-24s %d\n", c, info.Totals[c])
		}
		if len(info.Categories) == 0 {
			fmt.Printf("⚠️  Model has no categories and cannot classify\n")
		}
		return nil
	},
}

var modelPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Publish a JSON model file to Redis",
	Long: `Load a JSON model file and write its aggregates to Redis under the
configured key prefix, so workers can use dataSource=remote.

Example usage:
  zpam-cat model push -f model.json --redis-url redis://localhost:6379/0`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		file := modelPushFile
		if file == "" {
			file = cfg.Classifier.BasePath
		}
		if modelPushURL == "" {
			return fmt.Errorf("--redis-url is required")
		}

		model, err := datastore.ReadModelFile(file)
		if err != nil {
			return err
		}

		ctx := context.Background()
		rs, err := datastore.NewRedisStore(ctx, modelPushURL, cfg.Redis.StoreConfig())
		if err != nil {
			return err
		}
		defer rs.Close()

		if err := rs.WriteModel(ctx, model); err != nil {
			return fmt.Errorf("failed to publish model: %w", err)
		}

		logger.Info("model published", "file", file, "prefix", cfg.Redis.KeyPrefix, "categories", len(model.Categories))
		fmt.Printf("✅ Published %d categories from %s\n", len(model.Categories), file)
		return nil
	},
}

func init() {
	modelInfoCmd.Flags().BoolVar(&modelInfoJSON, "json", false, "Print the summary as JSON")
	modelPushCmd.Flags().StringVarP(&modelPushFile, "file", "f", "", "Model file (defaults to classifier.base_path)")
	modelPushCmd.Flags().StringVar(&modelPushURL, "redis-url", "", "Target Redis URL")

	modelCmd.AddCommand(modelInfoCmd)
	modelCmd.AddCommand(modelPushCmd)
}
