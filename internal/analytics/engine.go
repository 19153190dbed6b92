package analytics

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tokobill/backend/internal/domain"
	"tokobill/backend/internal/metrics"
	"tokobill/backend/internal/store"
)

const (
	StrategyNative = "native"
	StrategyMemory = "memory"
)

type BillSource interface {
	ListBillsInRange(ctx context.Context, from time.Time, to time.Time) ([]domain.Bill, error)
}

// Engine computes the trailing-window summary, either by folding bills in
// process or by delegating to the store's own aggregation. Results are
// never cached.
type Engine struct {
	source     BillSource
	aggregator store.Aggregator
	location   *time.Location
	now        func() time.Time
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewEngine prefers store-native aggregation when strategy is "native"
// and source supports it, falling back to the in-memory fold otherwise.
func NewEngine(source BillSource, strategy string, location *time.Location, logger *zap.Logger, m *metrics.Metrics) *Engine {
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		source:   source,
		location: location,
		now:      time.Now,
		logger:   logger.Named("analytics"),
		metrics:  m,
	}
	if strategy != StrategyMemory {
		if agg, ok := source.(store.Aggregator); ok {
			e.aggregator = agg
		}
	}
	return e
}

// WithClock replaces the time source; used by tests to pin "today".
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) Strategy() string {
	if e.aggregator != nil {
		return StrategyNative
	}
	return StrategyMemory
}

func (e *Engine) Window() Window {
	return NewWindow(e.now(), e.location)
}

func (e *Engine) Summary(ctx context.Context) (domain.AnalyticsSummary, error) {
	window := e.Window()
	strategy := e.Strategy()
	startedAt := time.Now()

	var (
		summary domain.AnalyticsSummary
		err     error
	)
	if e.aggregator != nil {
		summary, err = e.native(ctx, window)
	} else {
		summary, err = e.fold(ctx, window)
	}
	elapsed := time.Since(startedAt)
	if err != nil {
		e.logger.Error("analytics summary failed", zap.String("strategy", strategy), zap.Error(err))
		return domain.AnalyticsSummary{}, err
	}

	e.metrics.ObserveAnalytics(strategy, elapsed)
	e.logger.Debug("analytics summary",
		zap.String("strategy", strategy),
		zap.Time("from", window.Start),
		zap.Int64("orders", summary.TotalOrders),
		zap.Duration("elapsed", elapsed),
	)
	return summary, nil
}

func (e *Engine) fold(ctx context.Context, window Window) (domain.AnalyticsSummary, error) {
	bills, err := e.source.ListBillsInRange(ctx, window.Start, window.End)
	if err != nil {
		return domain.AnalyticsSummary{}, fmt.Errorf("load bills for analytics: %w", err)
	}
	return Summarize(bills, window), nil
}

func (e *Engine) native(ctx context.Context, window Window) (domain.AnalyticsSummary, error) {
	agg, err := e.aggregator.AggregateBills(ctx, domain.AggregateQuery{
		From:     window.Start,
		To:       window.End,
		Location: window.Location,
		TopN:     TopN,
	})
	if err != nil {
		return domain.AnalyticsSummary{}, fmt.Errorf("aggregate bills: %w", err)
	}
	return FromAggregate(agg, window), nil
}
