package alerting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"price-move-alerts/internal/detector"
	"price-move-alerts/internal/fetcher"
)

// ErrDelivery marks an alert the sink failed to accept. Delivery is never retried.
var ErrDelivery = errors.New("alert delivery failed")

// Alert carries a fired detection and the ticker that triggered it.
type Alert struct {
	ID         string
	Symbol     string
	Ticker     fetcher.Ticker
	PctChange  float64
	Delta      float64
	WindowSize uint
	Direction  detector.Direction
	FiredAt    time.Time
}

// Notifier delivers a rendered alert.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// RenderMessage formats alert as the multi-line chat message.
func RenderMessage(alert Alert) string {
	ts := alert.FiredAt
	if alert.Ticker.TimestampNanos > 0 {
		ts = alert.Ticker.Time()
	}

	symbol := alert.Ticker.Symbol
	if symbol == "" {
		symbol = alert.Symbol
	}

	b := strings.Builder{}
	b.WriteString(headline(alert))
	b.WriteString("\n")
	fmt.Fprintf(&b, "PCT CHANGE: %s%% in past %d seconds\n", signedPercent(alert.PctChange), alert.WindowSize)
	fmt.Fprintf(&b, "%s UTC - %s\n", ts.UTC().Format(time.DateTime), symbol)
	fmt.Fprintf(&b, "LAST ORDER: %s @ %s lots\n", alert.Ticker.Price.String(), alert.Ticker.Size.String())
	fmt.Fprintf(&b, "BID: %s @ %s lots\n", alert.Ticker.BestBid.String(), alert.Ticker.BestBidSize.String())
	fmt.Fprintf(&b, "ASK: %s @ %s lots\n", alert.Ticker.BestAsk.String(), alert.Ticker.BestAskSize.String())
	fmt.Fprintf(&b, "`https://www.tradingview.com/chart/?symbol=%s`", symbol)
	return b.String()
}

func headline(alert Alert) string {
	threshold := percent(alert.Delta)
	switch alert.Direction {
	case detector.DirectionDown:
		return fmt.Sprintf(":chart_with_downwards_trend: **%s DOWN MORE THAN %s%% in past %d seconds**", alert.Symbol, threshold, alert.WindowSize)
	case detector.DirectionUp:
		return fmt.Sprintf(":chart_with_upwards_trend: **%s UP MORE THAN %s%% in past %d seconds**", alert.Symbol, threshold, alert.WindowSize)
	default:
		return fmt.Sprintf("**%s MOVED MORE THAN %s%% in past %d seconds**", alert.Symbol, threshold, alert.WindowSize)
	}
}

// percent renders a fractional value as a percentage number, e.g. 0.05 -> "5".
func percent(fraction float64) string {
	return decimal.NewFromFloat(fraction).Mul(decimal.NewFromInt(100)).Round(4).String()
}

func signedPercent(fraction float64) string {
	p := percent(fraction)
	if fraction > 0 {
		return "+" + p
	}
	return p
}
