package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-move-alerts/internal/detector"
	"price-move-alerts/internal/fetcher"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func sampleAlert(pct float64, dir detector.Direction) Alert {
	return Alert{
		ID:     "evt-1",
		Symbol: "XBTUSDTM",
		Ticker: fetcher.Ticker{
			Symbol:         "XBTUSDTM",
			Price:          decimal.RequireFromString("106.5"),
			Size:           decimal.NewFromInt(3),
			BestBid:        decimal.RequireFromString("106.4"),
			BestBidSize:    decimal.NewFromInt(10),
			BestAsk:        decimal.RequireFromString("106.6"),
			BestAskSize:    decimal.NewFromInt(12),
			TimestampNanos: time.Date(2024, 10, 17, 14, 30, 5, 0, time.UTC).UnixNano(),
		},
		PctChange:  pct,
		Delta:      0.05,
		WindowSize: 10,
		Direction:  dir,
		FiredAt:    time.Date(2024, 10, 17, 14, 30, 6, 0, time.UTC),
	}
}

func TestRenderMessageUp(t *testing.T) {
	msg := RenderMessage(sampleAlert(0.06, detector.DirectionUp))
	lines := strings.Split(msg, "\n")
	require.Len(t, lines, 7)

	assert.Equal(t, ":chart_with_upwards_trend: **XBTUSDTM UP MORE THAN 5% in past 10 seconds**", lines[0])
	assert.Equal(t, "PCT CHANGE: +6% in past 10 seconds", lines[1])
	assert.Equal(t, "2024-10-17 14:30:05 UTC - XBTUSDTM", lines[2])
	assert.Equal(t, "LAST ORDER: 106.5 @ 3 lots", lines[3])
	assert.Equal(t, "BID: 106.4 @ 10 lots", lines[4])
	assert.Equal(t, "ASK: 106.6 @ 12 lots", lines[5])
	assert.Equal(t, "`https://www.tradingview.com/chart/?symbol=XBTUSDTM`", lines[6])
}

func TestRenderMessageDown(t *testing.T) {
	msg := RenderMessage(sampleAlert(-0.0725, detector.DirectionDown))
	assert.True(t, strings.HasPrefix(msg, ":chart_with_downwards_trend: **XBTUSDTM DOWN MORE THAN 5%"))
	assert.Contains(t, msg, "PCT CHANGE: -7.25% in past 10 seconds")
}

func TestRenderMessageFallsBackToFiredAt(t *testing.T) {
	alert := sampleAlert(0.06, detector.DirectionUp)
	alert.Ticker.TimestampNanos = 0
	assert.Contains(t, RenderMessage(alert), "2024-10-17 14:30:06 UTC")
}

func TestWebhookNotifierSuccess(t *testing.T) {
	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second, testLogger())
	require.NoError(t, n.Notify(context.Background(), sampleAlert(0.06, detector.DirectionUp)))
	assert.Contains(t, received["content"], "XBTUSDTM UP MORE THAN 5%")
}

func TestWebhookNotifierFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad webhook", http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second, testLogger())
	err := n.Notify(context.Background(), sampleAlert(0.06, detector.DirectionUp))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDelivery)
	assert.Contains(t, err.Error(), "bad webhook")
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/bottoken/sendMessage")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	n := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	require.NoError(t, n.Notify(context.Background(), sampleAlert(0.06, detector.DirectionUp)))
	assert.Equal(t, "chat", received["chat_id"])
	assert.NotEmpty(t, received["text"])
}

func TestTelegramNotifierSendsPlainText(t *testing.T) {
	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	n := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	for _, dir := range []detector.Direction{detector.DirectionUp, detector.DirectionDown} {
		pct := 0.06
		if dir == detector.DirectionDown {
			pct = -0.06
		}
		require.NoError(t, n.Notify(context.Background(), sampleAlert(pct, dir)))

		_, hasMode := received["parse_mode"]
		assert.False(t, hasMode, "entity parsing would reject the shortcode underscores")
		assert.Equal(t, RenderMessage(sampleAlert(pct, dir)), received["text"])
		assert.Contains(t, received["text"], "_trend:")
	}
}

func TestTelegramNotifierNotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "chat not found"})
	}))
	defer srv.Close()

	n := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	err := n.Notify(context.Background(), sampleAlert(0.06, detector.DirectionUp))
	assert.ErrorIs(t, err, ErrDelivery)
}

type recordingNotifier struct {
	calls int
	err   error
}

func (r *recordingNotifier) Notify(ctx context.Context, alert Alert) error {
	r.calls++
	return r.err
}

func TestMultiDeliversToAllChannels(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("boom")}
	ok := &recordingNotifier{}

	n := NewMulti(Named{Channel: "webhook", Notifier: failing}, Named{Channel: "telegram", Notifier: ok})
	err := n.Notify(context.Background(), sampleAlert(0.06, detector.DirectionUp))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook: boom")
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, ok.calls)
}

func TestNewMultiCollapses(t *testing.T) {
	assert.Nil(t, NewMulti())
	assert.Nil(t, NewMulti(Named{Channel: "webhook"}))

	single := &recordingNotifier{}
	assert.Same(t, single, NewMulti(Named{Channel: "webhook", Notifier: single}))
}
