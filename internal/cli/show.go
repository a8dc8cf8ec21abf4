package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"price-move-alerts/internal/app"
)

var (
	showLimit   int
	showSamples bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent alerts or price samples",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit:   showLimit,
			Samples: showSamples,
		}

		return getApp().Show(cmd.Context(), opts, cmd.OutOrStdout())
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of rows to display")
	showCmd.Flags().BoolVar(&showSamples, "samples", false, "List price samples instead of alerts")
}
