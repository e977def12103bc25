package metadata

import (
	"context"
	"log/slog"

	"backpack/internal/audit"
	"backpack/internal/platform/metrics"
	id "backpack/pkg/domain"
	dErrors "backpack/pkg/domain-errors"
	"backpack/pkg/requestcontext"
)

// SettingsStore keeps the renderer's mutable settings.
type SettingsStore interface {
	Image(ctx context.Context) (string, error)
	SetImage(ctx context.Context, uri string) error
}

type AdminChecker interface {
	IsAdmin(ctx context.Context, principal id.Principal) bool
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Images is the administrator-settable base image reference. The value is
// opaque text and is never validated.
type Images struct {
	settings       SettingsStore
	admins         AdminChecker
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
}

type ImagesOption func(*Images)

func WithImagesLogger(logger *slog.Logger) ImagesOption {
	return func(i *Images) {
		i.logger = logger
	}
}

func WithImagesAuditPublisher(publisher AuditPublisher) ImagesOption {
	return func(i *Images) {
		i.auditPublisher = publisher
	}
}

func WithImagesMetrics(m *metrics.Metrics) ImagesOption {
	return func(i *Images) {
		i.metrics = m
	}
}

func NewImages(settings SettingsStore, admins AdminChecker, opts ...ImagesOption) *Images {
	i := &Images{settings: settings, admins: admins, logger: slog.Default()}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Image returns the current base image reference ("" until set).
func (i *Images) Image(ctx context.Context) (string, error) {
	uri, err := i.settings.Image(ctx)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to load image")
	}
	return uri, nil
}

// SetImage replaces the base image reference. Administrator only.
func (i *Images) SetImage(ctx context.Context, caller id.Principal, uri string) error {
	if !i.admins.IsAdmin(ctx, caller) {
		i.metrics.IncPermissionDenied("set_image")
		i.logger.WarnContext(ctx, "set image denied",
			"caller", caller,
			"request_id", requestcontext.RequestID(ctx),
		)
		return dErrors.New(dErrors.CodePermissionDenied, "only the administrator may set the image")
	}
	if err := i.settings.SetImage(ctx, uri); err != nil {
		i.logger.ErrorContext(ctx, "failed to set image", "error", err)
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to set image")
	}
	i.logger.InfoContext(ctx, "image set", "request_id", requestcontext.RequestID(ctx))

	if i.auditPublisher != nil {
		event := audit.Event{
			Type:      audit.EventImageSet,
			Actor:     caller,
			Image:     uri,
			RequestID: requestcontext.RequestID(ctx),
			Timestamp: requestcontext.Now(ctx).UTC(),
		}
		if err := i.auditPublisher.Emit(ctx, event); err != nil {
			i.metrics.IncEventPublishFailure(string(event.Type))
			i.logger.ErrorContext(ctx, "failed to publish event", "event_type", event.Type, "error", err)
		}
	}
	return nil
}
