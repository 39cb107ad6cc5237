package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/zpam/categorizer/pkg/config"
	"github.com/zpam/categorizer/pkg/logging"
)

var (
	rootConfigFile string
	rootParams     string
	rootLogLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "zpam-cat",
	Short: "ZPAM categorizer - Naive Bayes document classification",
	Long: `zpam-cat sorts documents into trained categories with Naive Bayes or
Complementary Naive Bayes, evaluates a model against labelled test data,
and categorizes live mail through the milter protocol.

Models are read from a local JSON file or from Redis.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("ZPAM categorizer")
		fmt.Println("Use 'zpam-cat --help' for usage information")
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootConfigFile, "config", "c", "", "Configuration file path (defaults when empty)")
	rootCmd.PersistentFlags().StringVarP(&rootParams, "params", "p", "", "Classifier parameters, e.g. dataSource=remote,classifierType=cbayes,gramSize=2")
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "", "Override logging level (debug, info, warn, error)")

	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(modelCmd)
	rootCmd.AddCommand(milterCmd)
}

// loadConfig reads the configuration file, applies --params and
// --log-level, and validates the result
func loadConfig() (*config.Config, error) {
	cfg, err := config.ReadConfig(rootConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if rootParams != "" {
		params, err := config.ParseParams(rootParams)
		if err != nil {
			return nil, err
		}
		if err := cfg.ApplyParams(params); err != nil {
			return nil, err
		}
	}
	if rootLogLevel != "" {
		cfg.Logging.Level = rootLogLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setup loads configuration and installs the configured logger
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logging.Init(cfg.Logging), nil
}
