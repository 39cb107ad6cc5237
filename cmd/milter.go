package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zpam/categorizer/pkg/classifier"
	"github.com/zpam/categorizer/pkg/datastore"
	"github.com/zpam/categorizer/pkg/metrics"
	"github.com/zpam/categorizer/pkg/milter"
)

var (
	milterNetwork string
	milterAddress string
	milterDebug   bool
)

var milterCmd = &cobra.Command{
	Use:   "milter",
	Short: "Start milter server that categorizes incoming mail",
	Long: `Start a milter server for Postfix or Sendmail that classifies each
message body and adds category headers:

  X-ZPAM-Category:       winning category
  X-ZPAM-Category-Score: algorithm score
  X-ZPAM-Category-Info:  algorithm, evidence and timing

Example usage:
  zpam-cat milter --config /etc/zpam/cat.yaml
  zpam-cat milter --network tcp --address 127.0.0.1:7358

For Postfix integration, add to main.cf:
  smtpd_milters = inet:127.0.0.1:7358
  milter_default_action = accept`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if milterDebug {
			rootLogLevel = "debug"
		}
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("network") {
			cfg.Milter.Network = milterNetwork
		}
		if cmd.Flags().Changed("address") {
			cfg.Milter.Address = milterAddress
		}
		cfg.Milter.Enabled = true

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		c, err := classifier.FromConfig(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer datastore.Close(c.Store())

		collector := metrics.New()
		if cfg.Metrics.Enabled {
			go func() {
				if err := collector.Serve(ctx, cfg.Metrics.Address, cfg.Metrics.Path, logger); err != nil {
					logger.Error("metrics endpoint failed", "error", err)
				}
			}()
		}

		server, err := milter.NewServer(cfg, c, collector, logger)
		if err != nil {
			return fmt.Errorf("failed to create milter server: %v", err)
		}

		listener, err := server.Listen()
		if err != nil {
			return err
		}
		defer listener.Close()

		fmt.Printf("🫏 ZPAM Categorizer Milter starting on %s://%s\n", cfg.Milter.Network, cfg.Milter.Address)
		fmt.Printf("🧠 Classifier: %s, default category %q\n", cfg.Classifier.ClassifierType, cfg.Classifier.DefaultCategory)
		fmt.Printf("🏷️  Header prefix: %s\n", cfg.Milter.HeaderPrefix)
		if rootConfigFile != "" {
			fmt.Printf("⚙️  Configuration: %s\n", rootConfigFile)
		}
		fmt.Printf("🚀 Press Ctrl+C to stop\n\n")

		err = server.Serve(ctx, listener)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}

		fmt.Printf("\n✅ Milter server stopped (%d sessions)\n", server.Stats().MilterCount)
		return nil
	},
}

func init() {
	milterCmd.Flags().StringVarP(&milterNetwork, "network", "n", "", "Network type (tcp or unix)")
	milterCmd.Flags().StringVarP(&milterAddress, "address", "a", "", "Bind address (e.g., 127.0.0.1:7358 or /tmp/zpam-cat.sock)")
	milterCmd.Flags().BoolVarP(&milterDebug, "debug", "d", false, "Enable debug logging")
}
