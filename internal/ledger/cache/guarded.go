package cache

import (
	"context"
	"log/slog"

	"backpack/internal/ledger/metrics"
	"backpack/internal/ledger/models"
	id "backpack/pkg/domain"
	"backpack/pkg/platform/circuit"
)

// Guarded wraps a remote cache so its failures never reach the caller.
// Errors are logged, counted and fed to a circuit breaker; while the circuit
// is open the backend is skipped and every lookup is a miss.
type Guarded struct {
	next    Cache
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type GuardOption func(*Guarded)

func WithLogger(logger *slog.Logger) GuardOption {
	return func(g *Guarded) {
		g.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) GuardOption {
	return func(g *Guarded) {
		g.metrics = m
	}
}

func NewGuarded(next Cache, breaker *circuit.Breaker, opts ...GuardOption) *Guarded {
	g := &Guarded{next: next, breaker: breaker, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guarded) Get(ctx context.Context, backpackID id.BackpackID, count int) (models.Category, bool, error) {
	if !g.breaker.Allow() {
		return models.Category{}, false, nil
	}
	category, ok, err := g.next.Get(ctx, backpackID, count)
	if err != nil {
		g.failure(ctx, "get", backpackID, err)
		return models.Category{}, false, nil
	}
	g.success()
	return category, ok, nil
}

func (g *Guarded) Put(ctx context.Context, backpackID id.BackpackID, count int, category models.Category) error {
	if !g.breaker.Allow() {
		return nil
	}
	if err := g.next.Put(ctx, backpackID, count, category); err != nil {
		g.failure(ctx, "put", backpackID, err)
		return nil
	}
	g.success()
	return nil
}

func (g *Guarded) failure(ctx context.Context, op string, backpackID id.BackpackID, err error) {
	g.metrics.IncCacheError()
	_, change := g.breaker.RecordFailure()
	if change.Opened {
		g.metrics.SetCacheCircuitOpen(true)
		g.logger.WarnContext(ctx, "top-category cache circuit opened", "breaker", g.breaker.Name())
	}
	g.logger.ErrorContext(ctx, "top-category cache failure",
		"operation", op,
		"backpack_id", backpackID,
		"error", err,
	)
}

func (g *Guarded) success() {
	if _, change := g.breaker.RecordSuccess(); change.Closed {
		g.metrics.SetCacheCircuitOpen(false)
		g.logger.Info("top-category cache circuit closed", "breaker", g.breaker.Name())
	}
}
