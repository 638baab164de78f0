// Package events defines the domain events the auction core emits and the
// Sink interface downstream notification/audit consumers implement. Delivery
// semantics (ordering, at-least-once) are the sink's responsibility.
package events

import (
	"context"
	"sync"
	"time"
)

// Kind identifies a domain event type.
type Kind string

const (
	BidAccepted         Kind = "bid_accepted"
	BidRejected         Kind = "bid_rejected"
	AuctionActivated    Kind = "auction_activated"
	AuctionClosed       Kind = "auction_closed"
	AuctionCancelled    Kind = "auction_cancelled"
	DisputeRaised       Kind = "dispute_raised"
	DisputeResolved     Kind = "dispute_resolved"
	PaymentTransitioned Kind = "payment_transitioned"
	PaymentRefunded     Kind = "payment_refunded"
)

// Event is a single domain event. Fields carries kind-specific context such
// as amounts, statuses and rejection reasons.
type Event struct {
	Kind       Kind           `json:"kind"`
	AuctionID  string         `json:"auction_id,omitempty"`
	BidID      string         `json:"bid_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Fields     map[string]any `json:"fields,omitempty"`
}

// Sink receives domain events. Emit must not block indefinitely; sinks that
// deliver over a network should buffer or drop rather than stall a command.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// MemorySink collects events in order. Used in tests and as the default sink
// when no external bus is configured.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink returns an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Emit appends ev to the in-memory log.
func (s *MemorySink) Emit(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

// Events returns a copy of the collected events in emission order.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// OfKind returns the collected events matching kind, in emission order.
func (s *MemorySink) OfKind(kind Kind) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, ev := range s.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}
