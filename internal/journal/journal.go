package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"price-move-alerts/internal/fetcher"
)

// Module names the upstream endpoint family used in artifact paths.
const Module = "ticker"

// Event is the artifact written for each fired detection.
type Event struct {
	ID         string         `json:"id"`
	Symbol     string         `json:"symbol"`
	FiredAt    time.Time      `json:"fired_at"`
	PctChange  float64        `json:"pct_change"`
	Delta      float64        `json:"delta"`
	WindowSize uint           `json:"window_size"`
	Direction  string         `json:"direction"`
	Ticker     TickerSnapshot `json:"ticker"`
	Message    string         `json:"message"`
	Delivered  bool           `json:"delivered"`
	Error      string         `json:"error,omitempty"`
}

// TickerSnapshot mirrors the upstream ticker fields.
type TickerSnapshot struct {
	Symbol       string `json:"symbol"`
	Price        string `json:"price"`
	Size         string `json:"size"`
	BestBidPrice string `json:"bestBidPrice"`
	BestBidSize  string `json:"bestBidSize"`
	BestAskPrice string `json:"bestAskPrice"`
	BestAskSize  string `json:"bestAskSize"`
	TS           int64  `json:"ts"`
}

// Snapshot converts a decoded ticker for persistence.
func Snapshot(t fetcher.Ticker) TickerSnapshot {
	return TickerSnapshot{
		Symbol:       t.Symbol,
		Price:        t.Price.String(),
		Size:         t.Size.String(),
		BestBidPrice: t.BestBid.String(),
		BestBidSize:  t.BestBidSize.String(),
		BestAskPrice: t.BestAsk.String(),
		BestAskSize:  t.BestAskSize.String(),
		TS:           t.TimestampNanos,
	}
}

// Journal writes one JSON file per event under <dir>/<module>/<symbol>/.
type Journal struct {
	fs  afero.Fs
	dir string
}

// New returns a journal rooted at dir on fs.
func New(fs afero.Fs, dir string) *Journal {
	return &Journal{fs: fs, dir: dir}
}

// Path returns the artifact location for an event.
func (j *Journal) Path(e Event) string {
	name := fmt.Sprintf("%s_%s_%d.json", e.Symbol, Module, e.FiredAt.UnixMilli())
	return filepath.Join(j.dir, Module, e.Symbol, name)
}

// Write persists e. Existing artifacts are never overwritten.
func (j *Journal) Write(e Event) (string, error) {
	path := j.Path(e)
	if err := j.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create journal dir: %w", err)
	}

	data, err := json.MarshalIndent(e, "", "    ")
	if err != nil {
		return "", fmt.Errorf("marshal journal event: %w", err)
	}

	f, err := j.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("open journal file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write journal file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close journal file: %w", err)
	}
	return path, nil
}
