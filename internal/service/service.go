package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"price-move-alerts/internal/alerting"
	"price-move-alerts/internal/config"
	"price-move-alerts/internal/detector"
	"price-move-alerts/internal/fetcher"
	"price-move-alerts/internal/gate"
	"price-move-alerts/internal/journal"
	"price-move-alerts/internal/scheduler"
	"price-move-alerts/internal/storage"
	"price-move-alerts/internal/window"
)

// storeWriteTimeout bounds each audit write so a stalled database cannot hold up the poll cadence.
const storeWriteTimeout = 2 * time.Second

// ErrLocked is returned by Run when another process holds the symbol's advisory lock.
var ErrLocked = errors.New("symbol is monitored by another process")

// EventWriter persists detection artifacts.
type EventWriter interface {
	Write(e journal.Event) (string, error)
}

// Outcome reports what a single poll iteration did.
type Outcome struct {
	Ticker     fetcher.Ticker
	Fetched    bool
	AuthFailed bool
	WindowFull bool
	Evaluated  bool
	Result     detector.Result
	Fired      bool
	Evicted    bool
	WindowLen  int
	Frames     uint64
}

// Service owns the sliding window and alert gate for one symbol and runs the poll loop.
// It is not safe for concurrent use; the scheduler calls ProcessTick sequentially.
type Service struct {
	scheduler  *scheduler.Scheduler
	source     fetcher.SampleSource
	notifier   alerting.Notifier
	events     EventWriter
	store      storage.SampleStore
	alertStore storage.AlertStore
	locker     storage.AdvisoryLocker
	logger     zerolog.Logger

	symbol        string
	windowSize    uint
	delta         float64
	dilation      float64
	tickOnFailure bool
	alertsOn      bool
	channels      []string
	lockKey       int64

	window    *window.Window
	gate      *gate.Gate
	iteration    uint64
	now          func() time.Time
	writeTimeout time.Duration
}

// New constructs the monitoring service. Nil collaborators other than source are optional.
func New(cfg *config.Config, sched *scheduler.Scheduler, source fetcher.SampleSource, notifier alerting.Notifier, events EventWriter, store storage.SampleStore, alertStore storage.AlertStore, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok && cfg.Database.AdvisoryLock {
		locker = l
	}

	return &Service{
		scheduler:  sched,
		source:     source,
		notifier:   notifier,
		events:     events,
		store:      store,
		alertStore: alertStore,
		locker:     locker,
		logger:     logger.With().Str("component", "service").Str("symbol", cfg.Symbol).Logger(),

		symbol:        cfg.Symbol,
		windowSize:    cfg.TimeWindow,
		delta:         cfg.Delta,
		dilation:      window.Dilation,
		tickOnFailure: cfg.Poll.TickOnFailure,
		alertsOn:      cfg.Alerting.Enabled,
		channels:      cfg.Alerting.Channels,
		lockKey:       storage.LockKey(cfg.Symbol),

		window: window.New(cfg.TimeWindow),
		gate:   gate.New(),
		now:    time.Now,

		writeTimeout: storeWriteTimeout,
	}
}

// Run begins the poll loop and blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}

	unlock, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if unlock != nil {
		defer unlock()
	}

	s.logger.Info().
		Uint("window", s.windowSize).
		Float64("delta", s.delta).
		Float64("dilation", s.dilation).
		Msg("poll loop started")

	return s.scheduler.Run(ctx, func(ctx context.Context) error {
		_, err := s.ProcessTick(ctx)
		return err
	})
}

// ProcessTick runs one poll iteration: fetch, append, detect, evict, tick.
//
// A failed fetch leaves the window untouched and only advances the gate when
// tick_on_failure is set. Detection and delivery errors are returned after the
// window and gate have been updated.
func (s *Service) ProcessTick(ctx context.Context) (Outcome, error) {
	s.iteration++

	ticker, err := s.source.FetchTicker(ctx, s.symbol)
	if err != nil {
		if s.tickOnFailure {
			s.gate.Tick()
		}
		out := Outcome{WindowLen: s.window.Len(), Frames: s.gate.Frames()}
		if fetcher.IsAuth(err) {
			out.AuthFailed = true
			s.logger.Error().Err(err).Msg("exchange rejected credentials; check key, secret and pass")
		}
		return out, fmt.Errorf("fetch ticker: %w", err)
	}

	out := Outcome{Ticker: ticker, Fetched: true}
	s.window.Append(ticker.Price.InexactFloat64())

	var iterErr error
	if s.window.IsFull(s.windowSize, s.dilation) {
		out.WindowFull = true
		if s.gate.CanFire(s.windowSize, s.dilation) {
			res, err := detector.Evaluate(s.window.Samples(), s.delta)
			if err != nil {
				iterErr = fmt.Errorf("evaluate window: %w", err)
			} else {
				out.Evaluated = true
				out.Result = res
				if res.Hit {
					out.Fired = true
					iterErr = s.fire(ctx, ticker, res)
					s.window.Clear()
					s.gate.Reset()
				}
			}
		}
		out.Evicted = s.window.ShiftOldest()
	}
	s.gate.Tick()

	out.WindowLen = s.window.Len()
	out.Frames = s.gate.Frames()

	s.recordSample(ctx, ticker, out)

	s.logger.Debug().
		Uint64("iteration", s.iteration).
		Str("price", ticker.Price.String()).
		Int("window_len", out.WindowLen).
		Uint64("frames", out.Frames).
		Bool("evaluated", out.Evaluated).
		Float64("pct_change", out.Result.PctChange).
		Msg("iteration complete")

	return out, iterErr
}

// WindowLen exposes the current window length.
func (s *Service) WindowLen() int {
	return s.window.Len()
}

// Frames exposes the gate counter.
func (s *Service) Frames() uint64 {
	return s.gate.Frames()
}

func (s *Service) fire(ctx context.Context, ticker fetcher.Ticker, res detector.Result) error {
	alert := alerting.Alert{
		ID:         uuid.NewString(),
		Symbol:     s.symbol,
		Ticker:     ticker,
		PctChange:  res.PctChange,
		Delta:      s.delta,
		WindowSize: s.windowSize,
		Direction:  res.Direction(),
		FiredAt:    s.now().UTC(),
	}

	s.logger.Warn().
		Str("alert_id", alert.ID).
		Str("direction", string(alert.Direction)).
		Float64("pct_change", res.PctChange).
		Float64("absolute_change", res.AbsoluteChange).
		Msg("price move detected")

	var deliveryErr error
	delivered := false
	if s.alertsOn && s.notifier != nil {
		if err := s.notifier.Notify(ctx, alert); err != nil {
			if !errors.Is(err, alerting.ErrDelivery) {
				err = fmt.Errorf("%w: %w", alerting.ErrDelivery, err)
			}
			deliveryErr = err
		} else {
			delivered = true
		}
	} else {
		s.logger.Info().Str("alert_id", alert.ID).Msg("alert delivery disabled")
	}

	s.recordAlert(ctx, alert, delivered, deliveryErr)
	return deliveryErr
}

func (s *Service) recordAlert(ctx context.Context, alert alerting.Alert, delivered bool, deliveryErr error) {
	var errMsg *string
	if deliveryErr != nil {
		msg := deliveryErr.Error()
		errMsg = &msg
	}

	if s.events != nil {
		event := journal.Event{
			ID:         alert.ID,
			Symbol:     alert.Symbol,
			FiredAt:    alert.FiredAt,
			PctChange:  alert.PctChange,
			Delta:      alert.Delta,
			WindowSize: alert.WindowSize,
			Direction:  string(alert.Direction),
			Ticker:     journal.Snapshot(alert.Ticker),
			Message:    alerting.RenderMessage(alert),
			Delivered:  delivered,
		}
		if errMsg != nil {
			event.Error = *errMsg
		}
		if path, err := s.events.Write(event); err != nil {
			s.logger.Error().Err(err).Str("alert_id", alert.ID).Msg("failed to write journal event")
		} else {
			s.logger.Debug().Str("path", path).Msg("journal event written")
		}
	}

	if s.alertStore != nil {
		record := storage.AlertRecord{
			ID:        alert.ID,
			Symbol:    alert.Symbol,
			FiredAt:   alert.FiredAt,
			Price:     alert.Ticker.Price,
			PctChange: decimal.NewFromFloat(alert.PctChange),
			Delta:     decimal.NewFromFloat(alert.Delta),
			Direction: string(alert.Direction),
			Channels:  s.channels,
			Delivered: delivered,
			Error:     errMsg,
		}
		writeCtx, cancel := context.WithTimeout(ctx, s.writeTimeout)
		defer cancel()
		if _, err := s.alertStore.InsertAlert(writeCtx, record); err != nil {
			s.logger.Error().Err(err).Str("alert_id", alert.ID).Msg("failed to persist alert record")
		}
	}
}

func (s *Service) recordSample(ctx context.Context, ticker fetcher.Ticker, out Outcome) {
	if s.store == nil {
		return
	}
	observed := s.now().UTC()
	if ticker.TimestampNanos > 0 {
		observed = ticker.Time()
	}
	sample := storage.PriceSample{
		Symbol:     s.symbol,
		ObservedAt: observed,
		Price:      ticker.Price,
		Size:       ticker.Size,
		BestBid:    ticker.BestBid,
		BestAsk:    ticker.BestAsk,
		WindowLen:  out.WindowLen,
		Frames:     out.Frames,
	}
	writeCtx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	if err := s.store.UpsertPriceSample(writeCtx, sample); err != nil {
		s.logger.Error().Err(err).Msg("failed to upsert sample")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), error) {
	if s.locker == nil || s.lockKey == 0 {
		return nil, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: %s", ErrLocked, s.symbol)
	}
	return unlock, nil
}
