// Package notify delivers user-visible notifications. Every event goes to
// the signal bus (and from there to websocket clients); events of the
// configured kinds are also forwarded to operator channels such as
// Telegram, Discord, or a signed webhook.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/propertyx/internal/domain"
)

// Sender is one outbound notification channel.
type Sender interface {
	Send(ctx context.Context, ev domain.Event) error
	Name() string
}

// Notifier implements domain.EventPublisher on top of a signal bus and a
// set of Senders.
type Notifier struct {
	bus     domain.EventPublisher
	senders []Sender
	kinds   map[domain.EventKind]bool
	logger  *slog.Logger
	now     func() time.Time
}

// NewNotifier creates a Notifier. bus may be nil. Only events whose kind is
// listed in kinds reach the senders; an empty list forwards everything.
func NewNotifier(bus domain.EventPublisher, senders []Sender, kinds []string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.EventKind]bool, len(kinds))
	for _, k := range kinds {
		if k = strings.TrimSpace(k); k != "" {
			allowed[domain.EventKind(k)] = true
		}
	}
	return &Notifier{
		bus:     bus,
		senders: senders,
		kinds:   allowed,
		logger:  logger.With(slog.String("component", "notifier")),
		now:     time.Now,
	}
}

// PublishEvent stamps ev, publishes it on channel, and forwards it to the
// senders. Sender failures are logged and do not fail the call.
func (n *Notifier) PublishEvent(ctx context.Context, channel string, ev domain.Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = n.now().UTC()
	}

	var busErr error
	if n.bus != nil {
		if err := n.bus.PublishEvent(ctx, channel, ev); err != nil {
			busErr = fmt.Errorf("notify: publish %s: %w", ev.Kind, err)
			n.logger.WarnContext(ctx, "bus publish failed",
				slog.String("kind", string(ev.Kind)),
				slog.String("error", err.Error()),
			)
		}
	}

	if len(n.kinds) == 0 || n.kinds[ev.Kind] {
		if err := n.dispatch(ctx, ev); err != nil {
			n.logger.WarnContext(ctx, "notification delivery incomplete", slog.String("error", err.Error()))
		}
	}
	return busErr
}

// Notify publishes a user-facing notification for address.
func (n *Notifier) Notify(ctx context.Context, address, title, message string) error {
	return n.PublishEvent(ctx, domain.ChannelNotify, domain.Event{
		Kind:    domain.EventNotification,
		Address: address,
		Title:   title,
		Message: message,
	})
}

// dispatch sends ev to every sender and joins their errors.
func (n *Notifier) dispatch(ctx context.Context, ev domain.Event) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("kind", string(ev.Kind)),
		)
	}
	return errors.Join(errs...)
}

// headline renders the title line senders show.
func headline(ev domain.Event) string {
	if ev.Title != "" {
		return ev.Title
	}
	return strings.ReplaceAll(string(ev.Kind), "_", " ")
}

var _ domain.EventPublisher = (*Notifier)(nil)
