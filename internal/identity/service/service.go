// Package service is the identity adapter: admin-gated issuance of backpack
// identifiers plus the ownership lookups the ledger gates on.
package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"backpack/internal/audit"
	"backpack/internal/platform/metrics"
	id "backpack/pkg/domain"
	dErrors "backpack/pkg/domain-errors"
	"backpack/pkg/platform/sentinel"
	"backpack/pkg/requestcontext"
)

type Store interface {
	Issue(ctx context.Context, owner id.Principal) (id.BackpackID, error)
	OwnerOf(ctx context.Context, backpackID id.BackpackID) (id.Principal, error)
	Transfer(ctx context.Context, backpackID id.BackpackID, from, to id.Principal) error
}

// AdminChecker answers whether a principal administers the system.
type AdminChecker interface {
	IsAdmin(ctx context.Context, principal id.Principal) bool
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Registry owns backpack identifiers and their owners.
type Registry struct {
	store          Store
	admins         AdminChecker
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

type Option func(*Registry)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(r *Registry) {
		r.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(r *Registry) {
		r.tracer = tracer
	}
}

// New constructs the identity registry. Both collaborators are required.
func New(store Store, admins AdminChecker, opts ...Option) (*Registry, error) {
	if store == nil {
		return nil, errors.New("identity store is required")
	}
	if admins == nil {
		return nil, errors.New("admin checker is required")
	}
	r := &Registry{
		store:  store,
		admins: admins,
		logger: slog.Default(),
		tracer: otel.Tracer("backpack/identity"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Issue creates a new backpack owned by owner. Only the administrator may
// issue; identifiers start at 1 and are never reused.
func (r *Registry) Issue(ctx context.Context, caller, owner id.Principal) (id.BackpackID, error) {
	ctx, span := r.tracer.Start(ctx, "identity.Issue")
	defer span.End()

	if !r.admins.IsAdmin(ctx, caller) {
		r.metrics.IncPermissionDenied("issue")
		r.logger.WarnContext(ctx, "issue denied",
			"caller", caller,
			"request_id", requestcontext.RequestID(ctx),
		)
		return 0, dErrors.New(dErrors.CodePermissionDenied, "only the administrator may issue backpacks")
	}
	if owner.IsNil() {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "owner principal is required")
	}

	backpackID, err := r.store.Issue(ctx, owner)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to issue backpack", "owner", owner, "error", err)
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue backpack")
	}
	span.SetAttributes(attribute.String("backpack_id", backpackID.String()))

	r.logger.InfoContext(ctx, "backpack issued",
		"backpack_id", backpackID,
		"owner", owner,
		"request_id", requestcontext.RequestID(ctx),
	)
	r.emit(ctx, audit.Event{
		Type:       audit.EventBackpackIssued,
		Actor:      caller,
		BackpackID: backpackID,
		Principal:  owner,
	})
	return backpackID, nil
}

// Exists reports whether backpackID has been issued.
func (r *Registry) Exists(ctx context.Context, backpackID id.BackpackID) (bool, error) {
	_, err := r.store.OwnerOf(ctx, backpackID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up backpack")
	}
	return true, nil
}

// OwnerOf returns the current owner, or unknown_backpack.
func (r *Registry) OwnerOf(ctx context.Context, backpackID id.BackpackID) (id.Principal, error) {
	owner, err := r.store.OwnerOf(ctx, backpackID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return "", dErrors.New(dErrors.CodeUnknownBackpack, "backpack "+backpackID.String()+" does not exist")
	}
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up backpack owner")
	}
	return owner, nil
}

// Transfer hands the backpack to a new owner. Only the current owner may
// transfer; the ledger itself is untouched, only who may record changes.
func (r *Registry) Transfer(ctx context.Context, caller id.Principal, backpackID id.BackpackID, to id.Principal) error {
	ctx, span := r.tracer.Start(ctx, "identity.Transfer", trace.WithAttributes(
		attribute.String("backpack_id", backpackID.String()),
	))
	defer span.End()

	owner, err := r.OwnerOf(ctx, backpackID)
	if err != nil {
		return err
	}
	if caller.IsNil() || caller != owner {
		r.metrics.IncPermissionDenied("transfer")
		r.logger.WarnContext(ctx, "transfer denied",
			"caller", caller,
			"backpack_id", backpackID,
			"request_id", requestcontext.RequestID(ctx),
		)
		return dErrors.New(dErrors.CodePermissionDenied, "only the owner may transfer a backpack")
	}
	if to.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "new owner principal is required")
	}

	err = r.store.Transfer(ctx, backpackID, owner, to)
	switch {
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodePermissionDenied, "backpack ownership changed concurrently")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeUnknownBackpack, "backpack "+backpackID.String()+" does not exist")
	case err != nil:
		r.logger.ErrorContext(ctx, "failed to transfer backpack", "backpack_id", backpackID, "error", err)
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to transfer backpack")
	}

	r.logger.InfoContext(ctx, "backpack transferred",
		"backpack_id", backpackID,
		"from", owner,
		"to", to,
		"request_id", requestcontext.RequestID(ctx),
	)
	r.emit(ctx, audit.Event{
		Type:       audit.EventBackpackTransferred,
		Actor:      caller,
		BackpackID: backpackID,
		Principal:  to,
	})
	return nil
}

func (r *Registry) emit(ctx context.Context, event audit.Event) {
	if r.auditPublisher == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	event.Timestamp = requestcontext.Now(ctx).UTC()
	if err := r.auditPublisher.Emit(ctx, event); err != nil {
		r.metrics.IncEventPublishFailure(string(event.Type))
		r.logger.ErrorContext(ctx, "failed to publish event",
			"event_type", event.Type,
			"error", err,
		)
	}
}
