package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	tickerPath  = "/api/v1/ticker"
	codeSuccess = "200000"
	maxBodySize = 1 << 20
)

// KuCoinOptions parameterise the KuCoin Futures fetcher.
type KuCoinOptions struct {
	BaseURL     string
	Timeout     time.Duration
	UserAgent   string
	Credentials Credentials
}

// KuCoin polls the KuCoin Futures ticker endpoint.
type KuCoin struct {
	opts    KuCoinOptions
	logger  zerolog.Logger
	client  *http.Client
	signer  *Signer
	baseURL string
}

// NewKuCoin constructs a ticker fetcher. Requests are signed only when credentials are present.
func NewKuCoin(opts KuCoinOptions, logger zerolog.Logger) *KuCoin {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api-futures.kucoin.com"
	}

	k := &KuCoin{
		opts:    opts,
		logger:  logger.With().Str("component", "kucoin_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
	if !opts.Credentials.Empty() {
		k.signer = NewSigner(opts.Credentials)
	}
	return k
}

// FetchTicker retrieves the latest ticker for symbol.
func (k *KuCoin) FetchTicker(ctx context.Context, symbol string) (Ticker, error) {
	if symbol == "" {
		return Ticker{}, fmt.Errorf("%w: symbol required", ErrRejected)
	}

	endpoint := k.baseURL + tickerPath + "?" + url.Values{"symbol": {symbol}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Ticker{}, fmt.Errorf("%w: build request: %v", ErrRejected, err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(k.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	if k.signer != nil {
		k.signer.Sign(req)
	}

	resp, err := k.client.Do(req)
	if err != nil {
		return Ticker{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return Ticker{}, fmt.Errorf("%w: read body: %v", ErrNetwork, err)
	}

	if resp.StatusCode != http.StatusOK {
		return Ticker{}, classifyHTTPError(resp.StatusCode, body)
	}

	ticker, err := decodeTicker(body)
	if err != nil {
		return Ticker{}, err
	}

	k.logger.Debug().Str("symbol", ticker.Symbol).Str("price", ticker.Price.String()).Msg("ticker fetched")
	return ticker, nil
}

type tickerEnvelope struct {
	Code string      `json:"code"`
	Msg  string      `json:"msg"`
	Data *tickerData `json:"data"`
}

type tickerData struct {
	Symbol       string           `json:"symbol"`
	Price        *decimal.Decimal `json:"price"`
	Size         decimal.Decimal  `json:"size"`
	BestBidPrice decimal.Decimal  `json:"bestBidPrice"`
	BestBidSize  decimal.Decimal  `json:"bestBidSize"`
	BestAskPrice decimal.Decimal  `json:"bestAskPrice"`
	BestAskSize  decimal.Decimal  `json:"bestAskSize"`
	TS           int64            `json:"ts"`
}

func decodeTicker(body []byte) (Ticker, error) {
	var env tickerEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Ticker{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if env.Code != "" && env.Code != codeSuccess {
		return Ticker{}, classifyCode(env.Code, env.Msg)
	}
	if env.Data == nil {
		return Ticker{}, fmt.Errorf("%w: missing data", ErrParse)
	}

	d := env.Data
	if d.Price == nil {
		return Ticker{}, fmt.Errorf("%w: missing price", ErrParse)
	}
	if !d.Price.IsPositive() {
		return Ticker{}, fmt.Errorf("%w: non-positive price %s", ErrParse, d.Price.String())
	}

	return Ticker{
		Symbol:         d.Symbol,
		Price:          *d.Price,
		Size:           d.Size,
		BestBid:        d.BestBidPrice,
		BestBidSize:    d.BestBidSize,
		BestAsk:        d.BestAskPrice,
		BestAskSize:    d.BestAskSize,
		TimestampNanos: d.TS,
	}, nil
}

func classifyHTTPError(status int, body []byte) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: http %d: %s", ErrAuth, status, apiMessage(body))
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%w: http %d: %s", ErrNetwork, status, apiMessage(body))
	}

	var env tickerEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Code != "" {
		return classifyCode(env.Code, env.Msg)
	}
	return fmt.Errorf("%w: http %d: %s", ErrRejected, status, apiMessage(body))
}

// classifyCode maps KuCoin business codes onto the error taxonomy.
func classifyCode(code, msg string) error {
	switch {
	case strings.HasPrefix(code, "40000") || code == "411100":
		return fmt.Errorf("%w: code %s: %s", ErrAuth, code, msg)
	case code == "429000" || strings.HasPrefix(code, "5"):
		return fmt.Errorf("%w: code %s: %s", ErrNetwork, code, msg)
	default:
		return fmt.Errorf("%w: code %s: %s", ErrRejected, code, msg)
	}
}

func apiMessage(body []byte) string {
	var env tickerEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Msg != "" {
		return env.Msg
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "empty body"
	}
	return msg
}

var _ SampleSource = (*KuCoin)(nil)

// IsAuth reports whether err came from a rejected signature or key.
func IsAuth(err error) bool {
	return errors.Is(err, ErrAuth)
}
