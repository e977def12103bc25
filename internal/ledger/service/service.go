// Package service implements the item ledger: the gated append path and the
// read-only queries over a backpack's purchase history and score table.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"backpack/internal/audit"
	"backpack/internal/ledger/cache"
	ledgermetrics "backpack/internal/ledger/metrics"
	"backpack/internal/ledger/models"
	"backpack/internal/platform/metrics"
	id "backpack/pkg/domain"
	dErrors "backpack/pkg/domain-errors"
	"backpack/pkg/platform/sentinel"
	"backpack/pkg/requestcontext"
)

// Store persists item sequences and their score tables. Append must apply the
// item and its score in one atomic unit and return the new item count.
type Store interface {
	Append(ctx context.Context, backpackID id.BackpackID, item models.PurchaseItem) (int, error)
	Count(ctx context.Context, backpackID id.BackpackID) (int, error)
	ItemAt(ctx context.Context, backpackID id.BackpackID, index int) (models.PurchaseItem, error)
	Snapshot(ctx context.Context, backpackID id.BackpackID) (models.Snapshot, error)
}

// Identity answers existence and ownership of backpacks.
type Identity interface {
	Exists(ctx context.Context, backpackID id.BackpackID) (bool, error)
	OwnerOf(ctx context.Context, backpackID id.BackpackID) (id.Principal, error)
}

// Authorizer decides whether a principal may record on a backpack.
type Authorizer interface {
	IsAuthorizedToRecord(ctx context.Context, principal, owner id.Principal) (bool, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the ledger's single write path and its query surface.
type Service struct {
	store          Store
	identity       Identity
	authorizer     Authorizer
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *ledgermetrics.Metrics
	shared         *metrics.Metrics
	cache          cache.Cache
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *ledgermetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithSharedMetrics wires the cross-cutting denial and publish counters.
func WithSharedMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.shared = m
	}
}

// WithCache enables the top-category cache. Without it every call
// recomputes from the stored sequence.
func WithCache(c cache.Cache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// New constructs the ledger service. All three collaborators are required.
func New(store Store, identity Identity, authorizer Authorizer, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("ledger store is required")
	}
	if identity == nil {
		return nil, errors.New("identity collaborator is required")
	}
	if authorizer == nil {
		return nil, errors.New("authorizer is required")
	}
	s := &Service{
		store:      store,
		identity:   identity,
		authorizer: authorizer,
		logger:     slog.Default(),
		tracer:     otel.Tracer("backpack/ledger"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RecordPurchase appends a purchase to a backpack. The caller must be the
// backpack's owner or a registered agent. The item is stamped with the
// request's logical time; on any error nothing is recorded.
func (s *Service) RecordPurchase(ctx context.Context, caller id.Principal, backpackID id.BackpackID, purchase models.NewPurchase) (models.Receipt, error) {
	start := time.Now()
	defer s.metrics.ObserveRecordPurchase(start)
	ctx, span := s.tracer.Start(ctx, "ledger.RecordPurchase", trace.WithAttributes(
		attribute.String("backpack_id", backpackID.String()),
		attribute.String("terpene_tag", purchase.TerpeneTag),
	))
	defer span.End()

	owner, err := s.identity.OwnerOf(ctx, backpackID)
	if err != nil {
		return models.Receipt{}, s.fail(span, coded(err, "failed to look up backpack owner"))
	}

	allowed, err := s.authorizer.IsAuthorizedToRecord(ctx, caller, owner)
	if err != nil {
		return models.Receipt{}, s.fail(span, coded(err, "failed to check recording permission"))
	}
	if !allowed {
		s.shared.IncPermissionDenied("record_purchase")
		s.logger.WarnContext(ctx, "record purchase denied",
			"caller", caller,
			"backpack_id", backpackID,
			"request_id", requestcontext.RequestID(ctx),
		)
		return models.Receipt{}, s.fail(span, dErrors.New(dErrors.CodePermissionDenied, "caller is neither the owner nor an authorized agent"))
	}

	item := purchase.Stamp(requestcontext.Now(ctx))
	count, err := s.store.Append(ctx, backpackID, item)
	if err != nil {
		if errors.Is(err, sentinel.ErrOutOfRange) {
			return models.Receipt{}, s.fail(span, dErrors.Wrap(err, dErrors.CodeInvalidInput, "purchase amount cannot be stored"))
		}
		s.logger.ErrorContext(ctx, "failed to append purchase",
			"backpack_id", backpackID,
			"error", err,
		)
		return models.Receipt{}, s.fail(span, storageError(err, "failed to record purchase"))
	}

	s.metrics.IncrementPurchasesRecorded()
	s.logger.InfoContext(ctx, "purchase recorded",
		"backpack_id", backpackID,
		"caller", caller,
		"terpene_tag", item.TerpeneTag,
		"amount", item.Amount,
		"count", count,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.emit(ctx, audit.Event{
		Type:       audit.EventPurchaseRecorded,
		Actor:      caller,
		BackpackID: backpackID,
		Principal:  owner,
		Item:       &item,
	})

	return models.Receipt{BackpackID: backpackID, Index: count - 1, Count: count, Item: item}, nil
}

// Count returns the number of recorded items.
func (s *Service) Count(ctx context.Context, backpackID id.BackpackID) (int, error) {
	if err := s.requireExists(ctx, backpackID); err != nil {
		return 0, err
	}
	count, err := s.store.Count(ctx, backpackID)
	if err != nil {
		return 0, storageError(err, "failed to count items")
	}
	return count, nil
}

// ItemAt returns the item at a 0-based position.
func (s *Service) ItemAt(ctx context.Context, backpackID id.BackpackID, index int) (models.PurchaseItem, error) {
	if err := s.requireExists(ctx, backpackID); err != nil {
		return models.PurchaseItem{}, err
	}
	item, err := s.store.ItemAt(ctx, backpackID, index)
	if errors.Is(err, sentinel.ErrOutOfRange) {
		return models.PurchaseItem{}, dErrors.New(dErrors.CodeIndexOutOfRange, "item index is out of range")
	}
	if err != nil {
		return models.PurchaseItem{}, storageError(err, "failed to load item")
	}
	return item, nil
}

// Items returns a copy of the whole item sequence.
func (s *Service) Items(ctx context.Context, backpackID id.BackpackID) ([]models.PurchaseItem, error) {
	snap, err := s.Snapshot(ctx, backpackID)
	if err != nil {
		return nil, err
	}
	return snap.Items, nil
}

// Scores returns the stored score table in first-seen tag order.
func (s *Service) Scores(ctx context.Context, backpackID id.BackpackID) ([]models.CategoryScore, error) {
	snap, err := s.Snapshot(ctx, backpackID)
	if err != nil {
		return nil, err
	}
	return snap.ScoreRows(), nil
}

// Snapshot returns the item sequence and score table as of one append.
func (s *Service) Snapshot(ctx context.Context, backpackID id.BackpackID) (models.Snapshot, error) {
	if err := s.requireExists(ctx, backpackID); err != nil {
		return models.Snapshot{}, err
	}
	snap, err := s.store.Snapshot(ctx, backpackID)
	if err != nil {
		return models.Snapshot{}, storageError(err, "failed to read ledger")
	}
	return snap, nil
}

// TopCategory resolves the dominant terpene category. Ties go to the tag
// that appeared first; an empty backpack yields ("", 0).
func (s *Service) TopCategory(ctx context.Context, backpackID id.BackpackID) (models.Category, error) {
	start := time.Now()
	defer s.metrics.ObserveTopCategory(start)
	ctx, span := s.tracer.Start(ctx, "ledger.TopCategory", trace.WithAttributes(
		attribute.String("backpack_id", backpackID.String()),
	))
	defer span.End()

	if s.cache == nil {
		snap, err := s.Snapshot(ctx, backpackID)
		if err != nil {
			return models.Category{}, s.fail(span, err)
		}
		return snap.TopCategory(), nil
	}

	count, err := s.Count(ctx, backpackID)
	if err != nil {
		return models.Category{}, s.fail(span, err)
	}
	if category, ok := s.cachedTop(ctx, backpackID, count); ok {
		s.metrics.IncCacheHit()
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return category, nil
	}
	s.metrics.IncCacheMiss()

	snap, err := s.Snapshot(ctx, backpackID)
	if err != nil {
		return models.Category{}, s.fail(span, err)
	}
	category := snap.TopCategory()
	if err := s.cache.Put(ctx, backpackID, snap.Count(), category); err != nil {
		s.logger.WarnContext(ctx, "failed to cache top category", "backpack_id", backpackID, "error", err)
	}
	return category, nil
}

// VerifyScores recomputes the score table from the item sequence and
// reports invariant_violation when the stored table has drifted.
func (s *Service) VerifyScores(ctx context.Context, backpackID id.BackpackID) error {
	snap, err := s.Snapshot(ctx, backpackID)
	if err != nil {
		return err
	}
	if err := snap.VerifyScores(); err != nil {
		s.logger.ErrorContext(ctx, "score table drift detected",
			"backpack_id", backpackID,
			"error", err,
		)
		return err
	}
	return nil
}

func (s *Service) cachedTop(ctx context.Context, backpackID id.BackpackID, count int) (models.Category, bool) {
	category, ok, err := s.cache.Get(ctx, backpackID, count)
	if err != nil {
		s.logger.WarnContext(ctx, "top category cache lookup failed", "backpack_id", backpackID, "error", err)
		return models.Category{}, false
	}
	return category, ok
}

func (s *Service) requireExists(ctx context.Context, backpackID id.BackpackID) error {
	ok, err := s.identity.Exists(ctx, backpackID)
	if err != nil {
		return coded(err, "failed to look up backpack")
	}
	if !ok {
		return dErrors.New(dErrors.CodeUnknownBackpack, "backpack "+backpackID.String()+" does not exist")
	}
	return nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	event.Timestamp = requestcontext.Now(ctx).UTC()
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.shared.IncEventPublishFailure(string(event.Type))
		s.logger.ErrorContext(ctx, "failed to publish event",
			"event_type", event.Type,
			"backpack_id", event.BackpackID,
			"error", err,
		)
	}
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	return err
}

// coded keeps collaborator errors that already carry a code and wraps the
// rest as internal.
func coded(err error, msg string) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return storageError(err, msg)
}

func storageError(err error, msg string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
