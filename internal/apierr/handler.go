package apierr

import (
	"context"
	"log/slog"
)

// Notifier surfaces a transient message to the current user.
type Notifier interface {
	Notify(ctx context.Context, kind, text string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, kind, text string)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, kind, text string) { f(ctx, kind, text) }

// NotifyError is the notification kind used for classified failures.
const NotifyError = "error"

type handleOptions struct {
	toast bool
	log   bool
}

// HandleOption gates one side effect of Handle.
type HandleOption func(*handleOptions)

// WithoutToast suppresses the user notification.
func WithoutToast() HandleOption { return func(o *handleOptions) { o.toast = false } }

// WithoutLog suppresses the error log line.
func WithoutLog() HandleOption { return func(o *handleOptions) { o.log = false } }

// Observer counts handled failures by kind.
type Observer interface {
	ObserveAPIError(kind string)
}

// Handler classifies failures at the call site and applies the side effects.
type Handler struct {
	classifier *Classifier
	notifier   Notifier
	logger     *slog.Logger
	observer   Observer
}

// NewHandler constructs a Handler. A nil classifier uses the French catalog;
// a nil notifier disables notifications.
func NewHandler(classifier *Classifier, notifier Notifier, logger *slog.Logger) *Handler {
	if classifier == nil {
		classifier = defaultClassifier
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{classifier: classifier, notifier: notifier, logger: logger}
}

// WithObserver reports every logged failure to o.
func (h *Handler) WithObserver(o Observer) *Handler {
	h.observer = o
	return h
}

// Classifier returns the classifier backing h.
func (h *Handler) Classifier() *Classifier { return h.classifier }

// Handle classifies err and returns its text. The log line and notification
// are emitted unless suppressed; with both suppressed Handle has no effects.
func (h *Handler) Handle(ctx context.Context, err error, opts ...HandleOption) string {
	o := handleOptions{toast: true, log: true}
	for _, opt := range opts {
		opt(&o)
	}
	msg := h.classifier.Classify(err)
	if o.log {
		h.logger.ErrorContext(ctx, "api error",
			slog.String("key", msg.Key),
			slog.String("kind", string(msg.Kind)),
			slog.Int("status", StatusOf(err)),
			slog.Any("error", err))
		if h.observer != nil {
			h.observer.ObserveAPIError(string(msg.Kind))
		}
	}
	if o.toast && h.notifier != nil {
		h.notifier.Notify(ctx, NotifyError, msg.Text)
	}
	return msg.Text
}

// HandleValidation notifies one message per field error and returns the field
// map. Without field errors it notifies the classified message and returns an
// empty map.
func (h *Handler) HandleValidation(ctx context.Context, err error) map[string]string {
	fields := ValidationErrors(err)
	if len(fields) == 0 {
		h.Handle(ctx, err, WithoutLog())
		return fields
	}
	if h.notifier != nil {
		for _, field := range SortedFields(fields) {
			h.notifier.Notify(ctx, NotifyError, field+": "+fields[field])
		}
	}
	return fields
}
