package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"price-move-alerts/internal/storage"
)

// Show prints recent alerts, or recent samples when opts.Samples is set.
func (a *App) Show(ctx context.Context, opts ShowOptions, out io.Writer) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show history")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if opts.Samples {
		samples, err := store.ListRecentSamples(ctx, a.Config.Symbol, opts.Limit)
		if err != nil {
			return err
		}
		return writeSamplesTable(out, samples)
	}

	alerts, err := store.ListRecentAlerts(ctx, a.Config.Symbol, opts.Limit)
	if err != nil {
		return err
	}
	return writeAlertsTable(out, alerts)
}

func writeAlertsTable(out io.Writer, alerts []storage.AlertRecord) error {
	if len(alerts) == 0 {
		fmt.Fprintln(out, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Fired (UTC)\tSymbol\tPrice\tChange%\tDirection\tDelivered\tError")
	for _, rec := range alerts {
		errMsg := ""
		if rec.Error != nil {
			errMsg = sanitizeInline(*rec.Error)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
			rec.FiredAt.UTC().Format(time.RFC3339),
			rec.Symbol,
			rec.Price.String(),
			rec.PctChange.Shift(2).StringFixed(3),
			rec.Direction,
			rec.Delivered,
			errMsg,
		)
	}
	return writer.Flush()
}

func writeSamplesTable(out io.Writer, samples []storage.PriceSample) error {
	if len(samples) == 0 {
		fmt.Fprintln(out, "no samples found")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Observed (UTC)\tPrice\tBid\tAsk\tWindow\tFrames")
	for _, sample := range samples {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%d\t%d\n",
			sample.ObservedAt.UTC().Format(time.RFC3339Nano),
			sample.Price.String(),
			sample.BestBid.String(),
			sample.BestAsk.String(),
			sample.WindowLen,
			sample.Frames,
		)
	}
	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
