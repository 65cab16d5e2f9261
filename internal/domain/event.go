package domain

import "time"

// EventType enumerates the ledger lifecycle events.
type EventType string

const (
	EventMarketCreated   EventType = "market_created"
	EventVoteCast        EventType = "vote_cast"
	EventRevealRequested EventType = "reveal_requested"
	EventMarketResolved  EventType = "market_resolved"
	EventFeesWithdrawn   EventType = "fees_withdrawn"
)

// Event is a ledger lifecycle notification, published after the transaction
// that produced it has committed. The vote event carries the market ID only;
// it never leaks the side or weight of the vote.
type Event struct {
	ID       string         `json:"id"`
	Type     EventType      `json:"type"`
	MarketID string         `json:"marketId,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	At       time.Time      `json:"at"`
}

// EventSink receives committed ledger events. Sinks must not block the
// caller for long; slow delivery is the sink's problem.
type EventSink interface {
	Emit(event Event)
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(Event)

// Emit calls f(event).
func (f EventSinkFunc) Emit(event Event) { f(event) }
