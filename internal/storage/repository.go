package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertPriceSampleSQL = `INSERT INTO price_samples (
        symbol,
        observed_at,
        price,
        size,
        best_bid,
        best_ask,
        window_len,
        frames
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    ON CONFLICT (symbol, observed_at) DO UPDATE
    SET
        price      = EXCLUDED.price,
        size       = EXCLUDED.size,
        best_bid   = EXCLUDED.best_bid,
        best_ask   = EXCLUDED.best_ask,
        window_len = EXCLUDED.window_len,
        frames     = EXCLUDED.frames;`

	sampleColumns = `symbol,
        observed_at,
        price::text,
        size::text,
        best_bid::text,
        best_ask::text,
        window_len,
        frames,
        created_at`

	listSamplesBetweenSQL = `SELECT ` + sampleColumns + `
    FROM price_samples
    WHERE symbol = $1
      AND observed_at >= $2
      AND observed_at < $3
    ORDER BY observed_at;`

	listRecentSamplesSQL = `SELECT ` + sampleColumns + `
    FROM price_samples
    WHERE symbol = $1
    ORDER BY observed_at DESC
    LIMIT $2;`

	insertAlertSQL = `INSERT INTO alerts (
        id,
        symbol,
        fired_at,
        price,
        pct_change,
        delta,
        direction,
        channels,
        delivered,
        error
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
    )
    RETURNING created_at;`

	alertColumns = `id,
        symbol,
        fired_at,
        price::text,
        pct_change::text,
        delta::text,
        direction,
        channels,
        delivered,
        error,
        created_at`

	listRecentAlertsSQL = `SELECT ` + alertColumns + `
    FROM alerts
    WHERE symbol = $1
    ORDER BY fired_at DESC
    LIMIT $2;`

	listAlertsBetweenSQL = `SELECT ` + alertColumns + `
    FROM alerts
    WHERE symbol = $1
      AND fired_at >= $2
      AND fired_at < $3
    ORDER BY fired_at;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// SampleStore persists fetched price samples.
type SampleStore interface {
	UpsertPriceSample(ctx context.Context, sample PriceSample) error
	ListSamplesBetween(ctx context.Context, symbol string, from, to time.Time) ([]PriceSample, error)
	ListRecentSamples(ctx context.Context, symbol string, limit int) ([]PriceSample, error)
}

// AlertStore audits fired alerts.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, symbol string, limit int) ([]AlertRecord, error)
	ListAlertsBetween(ctx context.Context, symbol string, from, to time.Time) ([]AlertRecord, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to samples and alerts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a session-level advisory lock and returns a release func.
// The connection stays checked out until the lock is released.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertPriceSample persists or updates a sample.
func (s *Store) UpsertPriceSample(ctx context.Context, sample PriceSample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, upsertPriceSampleSQL,
		sample.Symbol,
		sample.ObservedAt,
		sample.Price.String(),
		sample.Size.String(),
		sample.BestBid.String(),
		sample.BestAsk.String(),
		sample.WindowLen,
		int64(sample.Frames),
	)
	if execErr != nil {
		return fmt.Errorf("upsert price sample: %w", execErr)
	}
	return nil
}

// ListSamplesBetween lists samples for symbol within [from, to).
func (s *Store) ListSamplesBetween(ctx context.Context, symbol string, from, to time.Time) ([]PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSamplesBetweenSQL, symbol, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list samples between: %w", queryErr)
	}
	return collectSamples(rows)
}

// ListRecentSamples lists the most recent samples, newest first.
func (s *Store) ListRecentSamples(ctx context.Context, symbol string, limit int) ([]PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSamplesSQL, symbol, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent samples: %w", queryErr)
	}
	return collectSamples(rows)
}

// InsertAlert persists an alert emission.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	channels := alert.Channels
	if channels == nil {
		channels = []string{}
	}

	var errMsg interface{}
	if alert.Error != nil {
		errMsg = *alert.Error
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.ID,
		alert.Symbol,
		alert.FiredAt,
		alert.Price.String(),
		alert.PctChange.String(),
		alert.Delta.String(),
		alert.Direction,
		channels,
		alert.Delivered,
		errMsg,
	)
	if scanErr := row.Scan(&alert.CreatedAt); scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	alert.Channels = channels
	return alert, nil
}

// ListRecentAlerts lists most recent alerts for symbol.
func (s *Store) ListRecentAlerts(ctx context.Context, symbol string, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, symbol, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	return collectAlerts(rows)
}

// ListAlertsBetween lists alerts for symbol within [from, to).
func (s *Store) ListAlertsBetween(ctx context.Context, symbol string, from, to time.Time) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listAlertsBetweenSQL, symbol, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list alerts between: %w", queryErr)
	}
	return collectAlerts(rows)
}

func collectSamples(rows pgx.Rows) ([]PriceSample, error) {
	defer rows.Close()

	samples := make([]PriceSample, 0)
	for rows.Next() {
		sample, err := scanPriceSample(rows)
		if err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

func collectAlerts(rows pgx.Rows) ([]AlertRecord, error) {
	defer rows.Close()

	alerts := make([]AlertRecord, 0)
	for rows.Next() {
		rec, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

func scanPriceSample(rows pgx.Rows) (PriceSample, error) {
	var (
		sample                      PriceSample
		priceStr, sizeStr, bid, ask string
		frames                      int64
	)
	if err := rows.Scan(
		&sample.Symbol,
		&sample.ObservedAt,
		&priceStr,
		&sizeStr,
		&bid,
		&ask,
		&sample.WindowLen,
		&frames,
		&sample.CreatedAt,
	); err != nil {
		return PriceSample{}, err
	}

	values, err := parseDecimals(priceStr, sizeStr, bid, ask)
	if err != nil {
		return PriceSample{}, fmt.Errorf("parse price sample: %w", err)
	}
	sample.Price, sample.Size, sample.BestBid, sample.BestAsk = values[0], values[1], values[2], values[3]
	sample.Frames = uint64(frames)
	return sample, nil
}

func scanAlert(rows pgx.Rows) (AlertRecord, error) {
	var (
		rec                        AlertRecord
		priceStr, pctStr, deltaStr string
	)
	if err := rows.Scan(
		&rec.ID,
		&rec.Symbol,
		&rec.FiredAt,
		&priceStr,
		&pctStr,
		&deltaStr,
		&rec.Direction,
		&rec.Channels,
		&rec.Delivered,
		&rec.Error,
		&rec.CreatedAt,
	); err != nil {
		return AlertRecord{}, err
	}

	values, err := parseDecimals(priceStr, pctStr, deltaStr)
	if err != nil {
		return AlertRecord{}, fmt.Errorf("parse alert: %w", err)
	}
	rec.Price, rec.PctChange, rec.Delta = values[0], values[1], values[2]
	return rec, nil
}

func parseDecimals(raw ...string) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, len(raw))
	for i, v := range raw {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}
