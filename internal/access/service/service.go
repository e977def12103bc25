// Package service implements the access registry: one administrator fixed
// at construction plus a set of agents allowed to record on any backpack.
package service

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"backpack/internal/audit"
	"backpack/internal/platform/metrics"
	id "backpack/pkg/domain"
	dErrors "backpack/pkg/domain-errors"
	"backpack/pkg/requestcontext"
)

type AgentStore interface {
	SetAgent(ctx context.Context, principal id.Principal, allowed bool) error
	IsAgent(ctx context.Context, principal id.Principal) (bool, error)
	ListAgents(ctx context.Context) ([]id.Principal, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Registry gates who may record purchases and who administers the system.
type Registry struct {
	admin          id.Principal
	agents         AgentStore
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

// New constructs the registry. The administrator cannot be changed later.
func New(admin id.Principal, agents AgentStore, opts ...Option) (*Registry, error) {
	if admin.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "administrator principal is required")
	}
	r := &Registry{
		admin:  admin,
		agents: agents,
		logger: slog.Default(),
		tracer: otel.Tracer("backpack/access"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Admin returns the administrator principal.
func (r *Registry) Admin() id.Principal {
	return r.admin
}

// IsAdmin reports whether principal is the administrator.
func (r *Registry) IsAdmin(_ context.Context, principal id.Principal) bool {
	return !principal.IsNil() && principal == r.admin
}

// SetAgent grants or revokes the recording-agent flag. Only the
// administrator may call it; repeating a call is a no-op apart from the event.
func (r *Registry) SetAgent(ctx context.Context, caller, principal id.Principal, allowed bool) error {
	ctx, span := r.tracer.Start(ctx, "access.SetAgent", trace.WithAttributes(
		attribute.String("principal", principal.String()),
		attribute.Bool("allowed", allowed),
	))
	defer span.End()

	if !r.IsAdmin(ctx, caller) {
		r.metrics.IncPermissionDenied("set_agent")
		r.logger.WarnContext(ctx, "set agent denied",
			"caller", caller,
			"principal", principal,
			"request_id", requestcontext.RequestID(ctx),
		)
		return dErrors.New(dErrors.CodePermissionDenied, "only the administrator may set agents")
	}
	if principal.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "agent principal is required")
	}

	if err := r.agents.SetAgent(ctx, principal, allowed); err != nil {
		r.logger.ErrorContext(ctx, "failed to set agent", "principal", principal, "error", err)
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to set agent")
	}

	r.logger.InfoContext(ctx, "agent set",
		"principal", principal,
		"allowed", allowed,
		"request_id", requestcontext.RequestID(ctx),
	)
	r.emit(ctx, audit.Event{
		Type:      audit.EventAgentSet,
		Actor:     caller,
		Principal: principal,
		Allowed:   allowed,
	})
	return nil
}

// IsAuthorizedToRecord reports whether principal may record on a backpack
// owned by owner: registered agents may record anywhere, owners on their own.
func (r *Registry) IsAuthorizedToRecord(ctx context.Context, principal, owner id.Principal) (bool, error) {
	if principal.IsNil() {
		return false, nil
	}
	if principal == owner {
		return true, nil
	}
	ok, err := r.agents.IsAgent(ctx, principal)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check agent")
	}
	return ok, nil
}

// ListAgents returns the registered agents sorted lexically.
func (r *Registry) ListAgents(ctx context.Context) ([]id.Principal, error) {
	agents, err := r.agents.ListAgents(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list agents")
	}
	return agents, nil
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
