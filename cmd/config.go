package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zpam/categorizer/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long:  `Generate and inspect zpam-cat configuration files`,
}

var configInitCmd = &cobra.Command{
	Use:   "init [config-file]",
	Short: "Generate default configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := "config.yaml"
		if len(args) > 0 {
			configPath = args[0]
		}

		if _, err := os.Stat(configPath); err == nil {
			overwrite, _ := cmd.Flags().GetBool("force")
			if !overwrite {
				return fmt.Errorf("config file already exists: %s (use --force to overwrite)", configPath)
			}
		}

		if err := config.DefaultConfig().SaveConfig(configPath); err != nil {
			return fmt.Errorf("failed to save config: %v", err)
		}

		fmt.Printf("✅ Configuration file generated: %s\n", configPath)
		fmt.Printf("📝 Point classifier.base_path at your model file or Redis URL\n")
		fmt.Printf("🚀 Use 'zpam-cat evaluate --config %s -i test.tsv' to evaluate\n", configPath)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [config-file]",
	Short: "Validate configuration file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := args[0]

		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("❌ Configuration validation failed: %w", err)
		}

		fmt.Printf("✅ Configuration is valid: %s\n", configPath)

		if warnings := validateConfigLogic(cfg); len(warnings) > 0 {
			fmt.Printf("\n⚠️  Warnings:\n")
			for _, warning := range warnings {
				fmt.Printf("  - %s\n", warning)
			}
		}

		printConfigSummary(cfg)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show [config-file]",
	Short: "Show current configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var cfg *config.Config
		var err error

		if len(args) > 0 {
			cfg, err = config.LoadConfig(args[0])
			if err != nil {
				return fmt.Errorf("failed to load config: %v", err)
			}
			fmt.Printf("Configuration: %s\n", args[0])
		} else {
			cfg = config.DefaultConfig()
			fmt.Printf("Default Configuration:\n")
		}

		printConfigSummary(cfg)

		fmt.Printf("\n🗄️  Redis:\n")
		fmt.Printf("  Key prefix: %s\n", cfg.Redis.KeyPrefix)
		fmt.Printf("  Local cache: %v (%d MB, %ds TTL)\n", cfg.Redis.LocalCache, cfg.Redis.CacheMaxMB, cfg.Redis.CacheTTLSeconds)

		fmt.Printf("\n🔁 Startup retry:\n")
		fmt.Printf("  Max tries: %d\n", cfg.InitRetry.MaxTries)
		fmt.Printf("  Max elapsed: %dms\n", cfg.InitRetry.MaxElapsedMs)

		fmt.Printf("\n📧 Milter:\n")
		fmt.Printf("  Enabled: %v\n", cfg.Milter.Enabled)
		fmt.Printf("  Listen: %s://%s\n", cfg.Milter.Network, cfg.Milter.Address)
		fmt.Printf("  Header prefix: %s\n", cfg.Milter.HeaderPrefix)
		return nil
	},
}

func printConfigSummary(cfg *config.Config) {
	cl := cfg.Classifier
	fmt.Printf("\n🧠 Classifier:\n")
	fmt.Printf("  Type: %s\n", cl.ClassifierType)
	fmt.Printf("  Data source: %s (%s)\n", cl.DataSource, cl.BasePath)
	fmt.Printf("  Default category: %s\n", cl.DefaultCategory)
	fmt.Printf("  Gram size: %d\n", cl.GramSize)
	fmt.Printf("  Alpha: %g\n", cl.Alpha)

	fmt.Printf("\n⚡ Performance:\n")
	fmt.Printf("  Workers: %d\n", cfg.Performance.Workers)
	fmt.Printf("  Batch size: %d\n", cfg.Performance.BatchSize)
}

// validateConfigLogic performs additional logical validation
func validateConfigLogic(cfg *config.Config) []string {
	var warnings []string

	if cfg.Classifier.GramSize > 3 {
		warnings = append(warnings, "Gram size above 3 multiplies feature lookups per document")
	}
	if cfg.Classifier.Alpha > 10 {
		warnings = append(warnings, "Large alpha flattens category differences")
	}
	if cfg.Classifier.DataSource == "remote" && !cfg.Redis.LocalCache && cfg.Classifier.GramSize > 1 {
		warnings = append(warnings, "Remote store without local cache looks up every feature in Redis")
	}
	if cfg.Performance.Workers > 64 {
		warnings = append(warnings, "High worker count opens one store connection per worker")
	}

	return warnings
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)

	configInitCmd.Flags().Bool("force", false, "Overwrite existing config file")
}
