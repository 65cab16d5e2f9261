// Package notify delivers operator alerts for ledger lifecycle events over
// one or more channels (Telegram, Discord). Senders are fanned out together;
// an event type filter keeps the noise down.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/beliefmarket/beliefd/internal/domain"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches ledger events to one or more Senders. Only events whose
// type appears in the configured allow list are forwarded; an empty list
// allows everything.
type Notifier struct {
	senders []Sender
	events  map[domain.EventType]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.EventType]bool, len(events))
	for _, e := range events {
		allowed[domain.EventType(strings.TrimSpace(e))] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// NotifyEvent formats and dispatches a ledger event, honouring the type
// filter.
func (n *Notifier) NotifyEvent(ctx context.Context, event domain.Event) error {
	if len(n.events) > 0 && !n.events[event.Type] {
		return nil
	}
	title, message := formatEvent(event)
	return n.dispatch(ctx, title, message)
}

// formatEvent renders an event as an operator-facing title and body.
func formatEvent(event domain.Event) (string, string) {
	switch event.Type {
	case domain.EventMarketCreated:
		return "Market created", fmt.Sprintf("Market %s is open for encrypted votes.", event.MarketID)
	case domain.EventVoteCast:
		return "Vote cast", fmt.Sprintf("A vote was cast on market %s.", event.MarketID)
	case domain.EventRevealRequested:
		return "Reveal requested", fmt.Sprintf("Market %s submitted its tallies for decryption.", event.MarketID)
	case domain.EventMarketResolved:
		outcome := "NO"
		if won, _ := event.Data["yesWon"].(bool); won {
			outcome = "YES"
		}
		return "Market resolved", fmt.Sprintf("Market %s resolved %s (yes=%v no=%v, pool=%v).",
			event.MarketID, outcome,
			event.Data["revealedYes"], event.Data["revealedNo"], event.Data["totalPrize"])
	case domain.EventFeesWithdrawn:
		return "Fees withdrawn", fmt.Sprintf("Platform fees withdrawn (amount=%v).", event.Data["amount"])
	default:
		return string(event.Type), fmt.Sprintf("Event %s on market %s.", event.Type, event.MarketID)
	}
}

// dispatch iterates over all senders. Errors from individual senders are
// collected and returned combined; one failure does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
