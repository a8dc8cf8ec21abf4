package fetcher

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrAuth marks a request rejected by the exchange's authentication layer.
	ErrAuth = errors.New("fetcher: authentication failed")
	// ErrNetwork marks a transport failure or an upstream outage worth retrying.
	ErrNetwork = errors.New("fetcher: network failure")
	// ErrParse marks a payload that does not match the ticker schema.
	ErrParse = errors.New("fetcher: malformed response")
	// ErrRejected marks a well-formed refusal, such as an unknown symbol.
	ErrRejected = errors.New("fetcher: request rejected")
)

// Ticker is one decoded market-data observation.
type Ticker struct {
	Symbol      string
	Price       decimal.Decimal
	Size        decimal.Decimal
	BestBid     decimal.Decimal
	BestBidSize decimal.Decimal
	BestAsk     decimal.Decimal
	BestAskSize decimal.Decimal
	// TimestampNanos is the exchange timestamp in nanoseconds since the epoch.
	TimestampNanos int64
}

// Time converts the exchange timestamp to UTC.
func (t Ticker) Time() time.Time {
	return time.Unix(0, t.TimestampNanos).UTC()
}

// SampleSource produces the latest ticker for a symbol.
type SampleSource interface {
	FetchTicker(ctx context.Context, symbol string) (Ticker, error)
}

// IsRetryable reports whether err warrants backing off before the next poll.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetwork)
}
