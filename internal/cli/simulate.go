package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var simulatePrices string

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Feed a price series through the detector and deliver any alert",
	RunE: func(cmd *cobra.Command, args []string) error {
		prices, err := parsePrices(simulatePrices)
		if err != nil {
			return err
		}
		return getApp().SimulateAlert(cmd.Context(), prices, cmd.OutOrStdout())
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulatePrices, "prices", "", "Comma-separated prices, one per poll iteration")
}

func parsePrices(raw string) ([]decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("--prices is required")
	}

	parts := strings.Split(raw, ",")
	prices := make([]decimal.Decimal, 0, len(parts))
	for i, part := range parts {
		price, err := decimal.NewFromString(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid price #%d %q: %w", i+1, part, err)
		}
		if !price.IsPositive() {
			return nil, fmt.Errorf("price #%d must be greater than 0", i+1)
		}
		prices = append(prices, price)
	}
	return prices, nil
}
