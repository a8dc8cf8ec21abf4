package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"price-move-alerts/internal/fetcher"
	"price-move-alerts/internal/service"
)

// SimulateAlert feeds prices through a fresh poll loop, one iteration per price,
// delivering any hit through the configured channels.
func (a *App) SimulateAlert(ctx context.Context, prices []decimal.Decimal, out io.Writer) error {
	if len(prices) == 0 {
		return errors.New("no prices to simulate")
	}

	src := &staticSource{prices: prices}
	svc := service.New(a.Config, nil, src, a.newNotifier(), a.newJournal(), nil, nil, a.Logger)

	fired := 0
	for i := range prices {
		res, err := svc.ProcessTick(ctx)
		status := "ok"
		if err != nil {
			status = err.Error()
		}
		if res.Fired {
			fired++
		}
		fmt.Fprintf(out, "%4d  price=%s  window=%d  frames=%d  evaluated=%t  pct=%.4f%%  fired=%t  %s\n",
			i+1, res.Ticker.Price.String(), res.WindowLen, res.Frames, res.Evaluated,
			res.Result.PctChange*100, res.Fired, status)
	}

	a.Logger.Info().Int("iterations", len(prices)).Int("fired", fired).Msg("simulation finished")
	return nil
}

type staticSource struct {
	prices []decimal.Decimal
	next   int
}

func (s *staticSource) FetchTicker(ctx context.Context, symbol string) (fetcher.Ticker, error) {
	if s.next >= len(s.prices) {
		return fetcher.Ticker{}, fmt.Errorf("%w: simulation exhausted", fetcher.ErrNetwork)
	}
	price := s.prices[s.next]
	s.next++
	return fetcher.Ticker{
		Symbol:  symbol,
		Price:   price,
		BestBid: price,
		BestAsk: price,
	}, nil
}

var _ fetcher.SampleSource = (*staticSource)(nil)
