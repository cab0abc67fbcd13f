// Package event is the process-scoped notification channel between components.
// Campaign administration and the redemption engine publish; handlers
// registered at startup (logging, cache refreshes, audits) subscribe.
package event

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

//go:generate mockgen -source=./event.go -destination=./mocks/publisher.mock.go -package=eventmocks Publisher

// Type names a domain event
type Type string

const (
	CampaignCreated       Type = "campaign_created"
	CampaignUpdated       Type = "campaign_updated"
	CodesIssued           Type = "codes_issued"
	CodeRedeemed          Type = "code_redeemed"
	ParticipationReverted Type = "participation_reverted"
	ParticipationRestored Type = "participation_restored"
	CompensationFailed    Type = "compensation_failed"
	LedgerRepaired        Type = "ledger_repaired"
)

// Event is one domain notification
type Event struct {
	Type            Type
	CampaignID      string
	CodeID          string
	ParticipationID string
	Count           int
	Reason          string
	At              time.Time
}

// Publisher delivers events to interested parties
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Handler receives published events
type Handler func(ctx context.Context, e Event)

// Bus dispatches events synchronously to registered handlers
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[Type]map[int]Handler
	all      map[int]Handler
}

var _ Publisher = (*Bus)(nil)

// NewBus creates a bus with no subscribers
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[Type]map[int]Handler),
		all:      make(map[int]Handler),
	}
}

// Subscribe registers h for events of type t and returns a function removing it
func (b *Bus) Subscribe(t Type, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	if b.handlers[t] == nil {
		b.handlers[t] = make(map[int]Handler)
	}
	b.handlers[t][id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[t], id)
	}
}

// SubscribeAll registers h for every event type
func (b *Bus) SubscribeAll(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.all[id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.all, id)
	}
}

// Publish calls every matching handler before returning
func (b *Bus) Publish(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	b.mu.RLock()
	targets := make([]Handler, 0, len(b.handlers[e.Type])+len(b.all))
	for _, h := range b.handlers[e.Type] {
		targets = append(targets, h)
	}
	for _, h := range b.all {
		targets = append(targets, h)
	}
	b.mu.RUnlock()

	for _, h := range targets {
		h(ctx, e)
	}
}

// Nop discards events
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

// LogHandler writes every event to the logger; compensation failures at error level
func LogHandler(logger *zap.Logger) Handler {
	return func(_ context.Context, e Event) {
		fields := []zap.Field{
			zap.String("event", string(e.Type)),
			zap.Time("at", e.At),
		}
		if e.CampaignID != "" {
			fields = append(fields, zap.String("campaign_id", e.CampaignID))
		}
		if e.CodeID != "" {
			fields = append(fields, zap.String("code_id", e.CodeID))
		}
		if e.ParticipationID != "" {
			fields = append(fields, zap.String("participation_id", e.ParticipationID))
		}
		if e.Count != 0 {
			fields = append(fields, zap.Int("count", e.Count))
		}
		if e.Reason != "" {
			fields = append(fields, zap.String("reason", e.Reason))
		}

		if e.Type == CompensationFailed {
			logger.Error("domain event", fields...)
			return
		}
		logger.Info("domain event", fields...)
	}
}
