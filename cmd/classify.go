package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zpam/categorizer/pkg/classifier"
	"github.com/zpam/categorizer/pkg/datastore"
	"github.com/zpam/categorizer/pkg/email"
	"github.com/zpam/categorizer/pkg/features"
)

var (
	classifyJSON     bool
	classifyFeatures bool
	classifyEmail    string
)

var classifyCmd = &cobra.Command{
	Use:   "classify [text...]",
	Short: "Classify a single document",
	Long: `Classify one document and print the winning category.

The document is taken from the arguments, or read from stdin when none
are given. Text should already be tokenized (whitespace separated).
With --email the subject and text parts of a MIME message are used.

Example usage:
  zpam-cat classify --config config.yaml "stock prices fall again"
  echo "late goal wins the game" | zpam-cat classify -p classifierType=cbayes
  zpam-cat classify --email message.eml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		text := strings.Join(args, " ")
		switch {
		case classifyEmail != "":
			msg, err := email.NewParser().ParseFromFile(classifyEmail)
			if err != nil {
				return err
			}
			text = msg.Text()
		case len(args) == 0:
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("failed to read stdin: %v", err)
			}
			text = string(data)
		}

		ctx := context.Background()
		c, err := classifier.FromConfig(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer datastore.Close(c.Store())

		feats := features.NGrams(text, cfg.Classifier.GramSize)
		res, err := c.Classify(ctx, feats, cfg.Classifier.DefaultCategory)
		if err != nil {
			return err
		}

		if classifyJSON {
			return printClassifyJSON(cmd.OutOrStdout(), res, len(feats))
		}

		fmt.Printf("🏷️  Category: %s\n", res.Label)
		if res.Evidence {
			fmt.Printf("📈 Score: %.6f (%s)\n", res.Score, cfg.Classifier.ClassifierType)
		} else {
			fmt.Printf("🤷 No known features, using default category\n")
		}
		fmt.Printf("🔤 Features: %d (gram size %d)\n", len(feats), cfg.Classifier.GramSize)

		if classifyFeatures {
			fmt.Printf("\n📋 Extracted features:\n")
			for _, f := range feats {
				fmt.Printf("  %s\n", f)
			}
		}
		return nil
	},
}

func printClassifyJSON(w io.Writer, res classifier.Result, featureCount int) error {
	out := struct {
		Category string   `json:"category"`
		Score    *float64 `json:"score"`
		Evidence bool     `json:"evidence"`
		Features int      `json:"features"`
	}{
		Category: res.Label,
		Evidence: res.Evidence,
		Features: featureCount,
	}
	// JSON has no infinity; the no-evidence sentinel is reported as null
	if !math.IsInf(res.Score, 0) {
		out.Score = &res.Score
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func init() {
	classifyCmd.Flags().BoolVar(&classifyJSON, "json", false, "Print the result as JSON")
	classifyCmd.Flags().BoolVar(&classifyFeatures, "features", false, "List the extracted features")
	classifyCmd.Flags().StringVar(&classifyEmail, "email", "", "Classify the text of a MIME message file")
}
