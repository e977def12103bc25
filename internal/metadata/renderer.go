package metadata

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	ledgermetrics "backpack/internal/ledger/metrics"
	"backpack/internal/ledger/models"
	id "backpack/pkg/domain"
)

// Ledger supplies a consistent view of one backpack. It reports
// unknown_backpack for identifiers that were never issued.
type Ledger interface {
	Snapshot(ctx context.Context, backpackID id.BackpackID) (models.Snapshot, error)
}

// ImageSource supplies the document's image field.
type ImageSource interface {
	Image(ctx context.Context) (string, error)
}

// Renderer composes documents. It never writes.
type Renderer struct {
	ledger      Ledger
	images      ImageSource
	description string
	logger      *slog.Logger
	metrics     *ledgermetrics.Metrics
	tracer      trace.Tracer
}

type Option func(*Renderer)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Renderer) {
		r.logger = logger
	}
}

func WithMetrics(m *ledgermetrics.Metrics) Option {
	return func(r *Renderer) {
		r.metrics = m
	}
}

// NewRenderer fixes the description for the lifetime of the renderer.
func NewRenderer(ledger Ledger, images ImageSource, description string, opts ...Option) *Renderer {
	r := &Renderer{
		ledger:      ledger,
		images:      images,
		description: description,
		logger:      slog.Default(),
		tracer:      otel.Tracer("backpack/metadata"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render builds the document from a single ledger snapshot, so the item
// count and the top category always describe the same state.
func (r *Renderer) Render(ctx context.Context, backpackID id.BackpackID) (Document, error) {
	start := time.Now()
	defer r.metrics.ObserveRender(start)
	ctx, span := r.tracer.Start(ctx, "metadata.Render", trace.WithAttributes(
		attribute.String("backpack_id", backpackID.String()),
	))
	defer span.End()

	snap, err := r.ledger.Snapshot(ctx, backpackID)
	if err != nil {
		span.RecordError(err)
		return Document{}, err
	}
	image, err := r.images.Image(ctx)
	if err != nil {
		span.RecordError(err)
		r.logger.ErrorContext(ctx, "failed to load image for render", "backpack_id", backpackID, "error", err)
		return Document{}, err
	}
	return NewDocument(backpackID, r.description, image, snap.Count(), snap.TopCategory()), nil
}
