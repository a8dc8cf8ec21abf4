package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-move-alerts/internal/alerting"
	"price-move-alerts/internal/config"
	"price-move-alerts/internal/storage"
)

func testApp(cfg *config.Config) *App {
	a := NewApp(cfg, zerolog.Nop())
	a.FS = afero.NewMemMapFs()
	return a
}

func baseConfig() *config.Config {
	return &config.Config{
		Symbol:     "XBTUSDTM",
		TimeWindow: 10,
		Delta:      0.05,
		Poll:       config.PollConfig{Interval: time.Second},
		Alerting:   config.AlertingConfig{Enabled: true, Channels: []string{config.ChannelWebhook}, Timeout: time.Second},
		Journal:    config.JournalConfig{Enabled: true, Dir: "logs"},
		Export:     config.ExportConfig{MaxDataPoints: 100},
	}
}

func makeSamples(n int) []storage.PriceSample {
	start := time.Date(2024, 10, 17, 0, 0, 0, 0, time.UTC)
	out := make([]storage.PriceSample, n)
	for i := range out {
		out[i] = storage.PriceSample{
			Symbol:     "XBTUSDTM",
			ObservedAt: start.Add(time.Duration(i) * time.Second),
			Price:      decimal.NewFromInt(int64(100 + i%7)),
			WindowLen:  i % 11,
			Frames:     uint64(i),
		}
	}
	return out
}

func TestSimulateAlertDeliversHit(t *testing.T) {
	var contents []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		contents = append(contents, body["content"])
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := baseConfig()
	cfg.Webhook = srv.URL
	a := testApp(cfg)

	prices := make([]decimal.Decimal, 0, 12)
	for i := 0; i < 12; i++ {
		prices = append(prices, decimal.NewFromInt(int64(100+i)))
	}

	var out bytes.Buffer
	require.NoError(t, a.SimulateAlert(context.Background(), prices, &out))

	require.Len(t, contents, 1)
	assert.Contains(t, contents[0], "XBTUSDTM UP MORE THAN 5%")
	assert.Equal(t, 12, strings.Count(out.String(), "\n"))
	assert.Contains(t, out.String(), "fired=true")

	entries, err := afero.ReadDir(a.FS, "logs/ticker/XBTUSDTM")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSimulateAlertRequiresPrices(t *testing.T) {
	a := testApp(baseConfig())
	assert.Error(t, a.SimulateAlert(context.Background(), nil, &bytes.Buffer{}))
}

func TestNewNotifierChannels(t *testing.T) {
	cfg := baseConfig()
	cfg.Webhook = "http://example.invalid"
	a := testApp(cfg)
	assert.IsType(t, &alerting.WebhookNotifier{}, a.newNotifier())

	cfg.Alerting.Channels = []string{config.ChannelWebhook, config.ChannelTelegram}
	cfg.Alerting.Telegram = config.TelegramConfig{Enabled: true, BotToken: "t", ChatID: "c"}
	assert.IsType(t, &alerting.Multi{}, a.newNotifier())

	cfg.Alerting.Enabled = false
	assert.Nil(t, a.newNotifier())
}

func TestNewJournalDisabled(t *testing.T) {
	cfg := baseConfig()
	cfg.Journal.Enabled = false
	assert.Nil(t, testApp(cfg).newJournal())
}

func TestShowAndExportNeedDatabase(t *testing.T) {
	a := testApp(baseConfig())
	ctx := context.Background()

	assert.Error(t, a.Show(ctx, ShowOptions{Limit: 5}, &bytes.Buffer{}))
	assert.Error(t, a.Export(ctx, ExportOptions{CSVPath: "out.csv"}))
	assert.Error(t, a.Export(ctx, ExportOptions{}), "requires an output")
}

func TestDownsampleSamples(t *testing.T) {
	samples := makeSamples(101)

	assert.Len(t, downsampleSamples(samples, 0), 101)
	assert.Len(t, downsampleSamples(samples, 500), 101)

	down := downsampleSamples(samples, 11)
	require.Len(t, down, 11)
	assert.Equal(t, samples[0].ObservedAt, down[0].ObservedAt)
	assert.Equal(t, samples[100].ObservedAt, down[10].ObservedAt)
	assert.Equal(t, samples[50].ObservedAt, down[5].ObservedAt)

	one := downsampleSamples(samples, 1)
	require.Len(t, one, 1)
	assert.Equal(t, samples[100].ObservedAt, one[0].ObservedAt)
}

func TestWriteSamplesCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeSamplesCSV(&buf, makeSamples(3)))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, "observed_at", records[0][0])
	assert.Equal(t, "2024-10-17T00:00:02Z", records[3][0])
	assert.Equal(t, "102", records[3][2])
	assert.Equal(t, "2", records[3][7])
}

func TestRenderChartPNG(t *testing.T) {
	samples := makeSamples(30)
	alerts := []storage.AlertRecord{{
		FiredAt: samples[10].ObservedAt,
		Price:   samples[10].Price,
	}}

	var buf bytes.Buffer
	require.NoError(t, renderChart(&buf, "XBTUSDTM", samples, alerts))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")))
}

func TestWriteAlertsTable(t *testing.T) {
	msg := "webhook status 500:\nboom"
	var buf bytes.Buffer
	require.NoError(t, writeAlertsTable(&buf, []storage.AlertRecord{{
		Symbol:    "XBTUSDTM",
		FiredAt:   time.Date(2024, 10, 17, 1, 2, 3, 0, time.UTC),
		Price:     decimal.NewFromInt(106),
		PctChange: decimal.RequireFromString("0.06"),
		Direction: "up",
		Error:     &msg,
	}}))

	out := buf.String()
	assert.Contains(t, out, "2024-10-17T01:02:03Z")
	assert.Contains(t, out, "6.000")
	assert.Contains(t, out, "webhook status 500: boom")

	buf.Reset()
	require.NoError(t, writeAlertsTable(&buf, nil))
	assert.Equal(t, "no alerts found\n", buf.String())
}

func TestNewSourceSignsOnlyWithCredentials(t *testing.T) {
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("KC-API-KEY"))
		_, _ = w.Write([]byte(`{"code":"200000","data":{"symbol":"XBTUSDTM","price":"100.5","size":1,"bestBidPrice":"100.4","bestBidSize":2,"bestAskPrice":"100.6","bestAskSize":3,"ts":1729173005000000000}}`))
	}))
	defer srv.Close()

	cfg := baseConfig()
	cfg.Exchange.BaseURL = srv.URL
	cfg.Poll.RequestTimeout = time.Second

	_, err := testApp(cfg).newSource().FetchTicker(context.Background(), cfg.Symbol)
	require.NoError(t, err)

	cfg.Key, cfg.Secret, cfg.Passphrase = "k", "s", "p"
	cfg.Exchange.KeyVersion = "2"
	ticker, err := testApp(cfg).newSource().FetchTicker(context.Background(), cfg.Symbol)
	require.NoError(t, err)
	assert.Equal(t, "100.5", ticker.Price.String())

	assert.Equal(t, []string{"", "k"}, keys)
}
