package app

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/samber/lo"
	chart "github.com/wcharczuk/go-chart/v2"

	"price-move-alerts/internal/storage"
)

// Export renders stored samples as CSV and/or a PNG chart with alert markers.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Poll.Interval)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	samples, err := store.ListSamplesBetween(ctx, a.Config.Symbol, from, to)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		a.Logger.Info().Msg("no samples found for export window")
		return nil
	}

	downsampled := downsampleSamples(samples, opts.MaxPoints)
	a.Logger.Info().Int("total", len(samples)).Int("exported", len(downsampled)).Msg("exporting samples")

	if opts.CSVPath != "" {
		if err := writeCSVFile(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		alerts, err := store.ListAlertsBetween(ctx, a.Config.Symbol, from, to)
		if err != nil {
			return err
		}
		if err := writePNGFile(opts.PNGPath, a.Config.Symbol, downsampled, alerts); err != nil {
			return err
		}
	}

	return nil
}

func downsampleSamples(samples []storage.PriceSample, max int) []storage.PriceSample {
	if max <= 0 || len(samples) <= max {
		return samples
	}
	if max == 1 {
		return samples[len(samples)-1:]
	}

	result := make([]storage.PriceSample, 0, max)
	step := float64(len(samples)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(samples) {
			idx = len(samples) - 1
		}
		result = append(result, samples[idx])
	}
	return result
}

func writeCSVFile(path string, samples []storage.PriceSample) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return writeSamplesCSV(file, samples)
}

func writeSamplesCSV(out io.Writer, samples []storage.PriceSample) error {
	writer := csv.NewWriter(out)

	header := []string{"observed_at", "symbol", "price", "size", "best_bid", "best_ask", "window_len", "frames"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, sample := range samples {
		record := []string{
			sample.ObservedAt.UTC().Format(time.RFC3339Nano),
			sample.Symbol,
			sample.Price.String(),
			sample.Size.String(),
			sample.BestBid.String(),
			sample.BestAsk.String(),
			strconv.Itoa(sample.WindowLen),
			strconv.FormatUint(sample.Frames, 10),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writePNGFile(path, symbol string, samples []storage.PriceSample, alerts []storage.AlertRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return renderChart(file, symbol, samples, alerts)
}

func renderChart(out io.Writer, symbol string, samples []storage.PriceSample, alerts []storage.AlertRecord) error {
	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}

	series := []chart.Series{
		chart.TimeSeries{
			Name: symbol,
			XValues: lo.Map(samples, func(s storage.PriceSample, _ int) time.Time {
				return s.ObservedAt
			}),
			YValues: lo.Map(samples, func(s storage.PriceSample, _ int) float64 {
				return s.Price.InexactFloat64()
			}),
		},
	}

	if len(alerts) > 0 {
		series = append(series, chart.TimeSeries{
			Name: "Alerts",
			Style: chart.Style{
				StrokeWidth: chart.Disabled,
				DotWidth:    5,
			},
			XValues: lo.Map(alerts, func(r storage.AlertRecord, _ int) time.Time {
				return r.FiredAt
			}),
			YValues: lo.Map(alerts, func(r storage.AlertRecord, _ int) float64 {
				return r.Price.InexactFloat64()
			}),
		})
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price",
			ValueFormatter: priceFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return graph.Render(chart.PNG, out)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
