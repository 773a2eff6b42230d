package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"momentum-arb-bot/internal/cache"
	"momentum-arb-bot/internal/credentials"
	"momentum-arb-bot/internal/database"
	"momentum-arb-bot/internal/events"
	"momentum-arb-bot/internal/exchange"
	"momentum-arb-bot/internal/indicators"
	"momentum-arb-bot/internal/market"
	"momentum-arb-bot/internal/positions"
	"momentum-arb-bot/internal/signals"
)

// Defaults for the scheduler knobs; all overridable via Options.
const (
	DefaultTick              = 60 * time.Second
	DefaultRotationThreshold = 30
	DefaultRotationWindow    = 25
	DefaultParallelBatch     = 5
	candleFetchCount         = 100
)

// Options tune the momentum scheduler
type Options struct {
	Tick              time.Duration
	RotationThreshold int // asset-list length beyond which rotation kicks in
	RotationWindow    int // assets processed per tick when rotating
	ParallelBatch     int // concurrent signal evaluations per strategy
	UniversalSource   string
}

func (o *Options) applyDefaults() {
	if o.Tick <= 0 {
		o.Tick = DefaultTick
	}
	if o.RotationThreshold <= 0 {
		o.RotationThreshold = DefaultRotationThreshold
	}
	if o.RotationWindow <= 0 {
		o.RotationWindow = DefaultRotationWindow
	}
	if o.ParallelBatch <= 0 {
		o.ParallelBatch = DefaultParallelBatch
	}
}

// Worker drives the momentum engine on a fixed cadence: close checks first,
// then entry signals, for every active strategy.
type Worker struct {
	repo      *database.Repository
	creds     *credentials.Service
	positions *positions.Service
	registry  *exchange.Registry
	candles   *cache.CandleCache
	bus       *events.EventBus
	opts      Options

	mu      sync.Mutex
	cursors map[string]int // strategy ID -> asset rotation index

	errorCount int64
}

// New creates a momentum worker
func New(repo *database.Repository, creds *credentials.Service, pos *positions.Service,
	registry *exchange.Registry, candles *cache.CandleCache, bus *events.EventBus, opts Options) *Worker {
	opts.applyDefaults()
	return &Worker{
		repo:      repo,
		creds:     creds,
		positions: pos,
		registry:  registry,
		candles:   candles,
		bus:       bus,
		opts:      opts,
		cursors:   make(map[string]int),
	}
}

// Run blocks, executing one cycle per tick until the context is cancelled
func (w *Worker) Run(ctx context.Context) {
	log.Info().Dur("tick", w.opts.Tick).Msg("momentum worker started")
	ticker := time.NewTicker(w.opts.Tick)
	defer ticker.Stop()

	w.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("momentum worker stopped")
			return
		case <-ticker.C:
			w.runCycle(ctx)
		}
	}
}

// ErrorCount returns the number of failed strategy evaluations since start
func (w *Worker) ErrorCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.errorCount
}

func (w *Worker) recordError() {
	w.mu.Lock()
	w.errorCount++
	w.mu.Unlock()
}

// runCycle processes every active strategy once. A failure in one strategy
// never stops the cycle, and a failed cycle never stops the scheduler.
func (w *Worker) runCycle(ctx context.Context) {
	started := time.Now()
	strategies, err := w.repo.ListActiveStrategies(ctx)
	if err != nil {
		log.Error().Err(err).Msg("loading active strategies failed")
		w.recordError()
		return
	}

	monitored := make(map[string]bool)
	for _, strat := range strategies {
		if ctx.Err() != nil {
			return
		}
		if err := w.processStrategy(ctx, strat, monitored); err != nil {
			log.Error().Err(err).
				Str("strategyId", strat.ID).
				Str("userId", strat.UserID).
				Msg("strategy cycle failed")
			w.recordError()
			w.bus.Publish(events.Event{
				Type: events.EventWorkerCycleError,
				Data: map[string]interface{}{"strategy_id": strat.ID, "error": err.Error()},
			})
		}
	}

	log.Debug().
		Int("strategies", len(strategies)).
		Dur("elapsed", time.Since(started)).
		Msg("momentum cycle complete")
}

func (w *Worker) processStrategy(ctx context.Context, strat *database.Strategy, monitored map[string]bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	// Credentials must exist before anything trades. Plaintext is discarded
	// immediately; the executor re-resolves per order.
	if _, credErr := w.creds.Get(ctx, strat.UserID, strat.Exchange); credErr != nil {
		log.Warn().
			Str("strategyId", strat.ID).
			Str("userId", strat.UserID).
			Str("exchange", strat.Exchange).
			Msg("no credentials, skipping strategy")
		return nil
	}

	// Close checks run once per (user, exchange) pair per cycle.
	pairKey := strat.UserID + "|" + strat.Exchange
	if !monitored[pairKey] {
		monitored[pairKey] = true
		w.positions.Monitor(ctx, strat.UserID, strat.Exchange)
	}

	// CLOSING positions count against the cap: their exposure is still live.
	held, err := w.positions.ActiveCount(ctx, strat.ID)
	if err != nil {
		return fmt.Errorf("counting active positions: %w", err)
	}
	if held >= strat.MaxOpenPositions {
		return nil
	}

	batch := w.rotationBatch(strat)
	fired := w.evaluateBatch(ctx, strat, batch)

	// Opens are serialised: each one consumes a slot under the cap.
	for _, hit := range fired {
		held, err = w.positions.ActiveCount(ctx, strat.ID)
		if err != nil {
			return fmt.Errorf("re-checking active positions: %w", err)
		}
		if held >= strat.MaxOpenPositions {
			break
		}
		if _, openErr := w.positions.Open(ctx, strat, hit.asset, hit.triggered); openErr != nil {
			log.Error().Err(openErr).
				Str("strategyId", strat.ID).
				Str("asset", hit.asset).
				Msg("position open failed")
			w.recordError()
		}
	}
	return nil
}

// rotationBatch returns this tick's asset window and advances the cursor.
// Short asset lists are processed whole every tick.
func (w *Worker) rotationBatch(strat *database.Strategy) []string {
	if len(strat.Assets) <= w.opts.RotationThreshold {
		return strat.Assets
	}

	w.mu.Lock()
	start := w.cursors[strat.ID] % len(strat.Assets)
	w.cursors[strat.ID] = (start + w.opts.RotationWindow) % len(strat.Assets)
	w.mu.Unlock()

	batch := make([]string, 0, w.opts.RotationWindow)
	for i := 0; i < w.opts.RotationWindow; i++ {
		batch = append(batch, strat.Assets[(start+i)%len(strat.Assets)])
	}
	return batch
}

type signalHit struct {
	asset     string
	triggered []indicators.Trigger
}

// evaluateBatch runs entry-signal evaluation for a strategy's asset batch in
// concurrent sub-batches. Evaluation is read-only; results fan in for the
// serialised open loop.
func (w *Worker) evaluateBatch(ctx context.Context, strat *database.Strategy, assets []string) []signalHit {
	var mu sync.Mutex
	var hits []signalHit

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.ParallelBatch)

	for _, asset := range assets {
		asset := asset
		g.Go(func() error {
			candles, err := w.fetchCandles(gctx, strat, positions.Pair(asset))
			if err != nil {
				log.Warn().Err(err).
					Str("strategyId", strat.ID).
					Str("asset", asset).
					Msg("candle fetch failed")
				return nil // one asset's failure never aborts the batch
			}

			result := signals.EvaluateEntry(log.Logger, candles, strat.EntryIndicators, strat.EntryLogic)
			if result.ShouldEnter {
				log.Info().
					Str("strategyId", strat.ID).
					Str("asset", asset).
					Int("triggered", result.TriggeredCount).
					Int("enabled", result.EnabledCount).
					Msg("entry signal fired")
				mu.Lock()
				hits = append(hits, signalHit{asset: asset, triggered: result.Triggered})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return hits
}

// fetchCandles loads candles from the universal source when configured,
// otherwise from the strategy's own venue, with a short Redis cache in
// front.
func (w *Worker) fetchCandles(ctx context.Context, strat *database.Strategy, pair string) ([]market.Candle, error) {
	source := strat.Exchange
	if w.opts.UniversalSource != "" {
		source = w.opts.UniversalSource
	}

	if cached := w.candles.Get(ctx, source, pair, strat.Timeframe); cached != nil {
		return cached, nil
	}

	adapter, err := w.registry.Get(source)
	if err != nil {
		return nil, err
	}

	// Some venues gate their candle endpoint behind credentials (Luno).
	// Resolve them for the one call; the plaintext never leaves this frame.
	var candles []market.Candle
	if authed, ok := adapter.(exchange.AuthCandleFetcher); ok {
		creds, credErr := w.creds.Get(ctx, strat.UserID, source)
		if credErr != nil {
			return nil, fmt.Errorf("candles on %s require credentials: %w", source, credErr)
		}
		candles, err = authed.FetchCandlesAuth(ctx, creds, pair, strat.Timeframe, candleFetchCount)
	} else {
		candles, err = adapter.FetchCandles(ctx, pair, strat.Timeframe, candleFetchCount)
	}
	if err != nil {
		return nil, err
	}
	if len(candles) < indicators.MinCandles {
		return nil, fmt.Errorf("%s returned %d candles for %s, need %d",
			source, len(candles), pair, indicators.MinCandles)
	}

	w.candles.Set(ctx, source, pair, strat.Timeframe, candles)
	return candles, nil
}
