package events

import (
	"context"
	"sync"

	"betengine/models"

	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeBalanceChange      EventType = "balance_change"
	EventTypeUserCreated        EventType = "user_created"
	EventTypeBetPlaced          EventType = "bet_placed"
	EventTypeRoundCreated       EventType = "round_created"
	EventTypeRoundSettled       EventType = "round_settled"
	EventTypeDuelStateChange    EventType = "duel_state_change"
	EventTypePaymentStateChange EventType = "payment_state_change"
)

// AllEventTypes lists every event type, for subscribers that forward everything
var AllEventTypes = []EventType{
	EventTypeBalanceChange,
	EventTypeUserCreated,
	EventTypeBetPlaced,
	EventTypeRoundCreated,
	EventTypeRoundSettled,
	EventTypeDuelStateChange,
	EventTypePaymentStateChange,
}

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// BalanceChangeEvent represents a committed wallet change
type BalanceChangeEvent struct {
	UserID          int64                  `json:"userId"`
	OldBalance      int64                  `json:"oldBalance"`
	NewBalance      int64                  `json:"newBalance"`
	TransactionType models.TransactionType `json:"transactionType"`
	ChangeAmount    int64                  `json:"changeAmount"`
}

func (e BalanceChangeEvent) Type() EventType {
	return EventTypeBalanceChange
}

// UserCreatedEvent represents a new wallet
type UserCreatedEvent struct {
	UserID         int64  `json:"userId"`
	Username       string `json:"username"`
	InitialBalance int64  `json:"initialBalance"`
}

func (e UserCreatedEvent) Type() EventType {
	return EventTypeUserCreated
}

// BetPlacedEvent represents a stake recorded against an active round
type BetPlacedEvent struct {
	BetID   int64          `json:"betId"`
	UserID  int64          `json:"userId"`
	RoundID string         `json:"roundId"`
	Variant models.Variant `json:"variant"`
	Stake   int64          `json:"stake"`
}

func (e BetPlacedEvent) Type() EventType {
	return EventTypeBetPlaced
}

// RoundCreatedEvent represents a new active round
type RoundCreatedEvent struct {
	RoundID string         `json:"roundId"`
	Variant models.Variant `json:"variant"`
	EndTime int64          `json:"endTime"` // epoch milliseconds
}

func (e RoundCreatedEvent) Type() EventType {
	return EventTypeRoundCreated
}

// RoundSettledEvent represents a round whose bets have all been paid out
type RoundSettledEvent struct {
	RoundID     string         `json:"roundId"`
	Variant     models.Variant `json:"variant"`
	BetsSettled int            `json:"betsSettled"`
	TotalPayout int64          `json:"totalPayout"`
	Winners     []int32        `json:"winners,omitempty"`
	Parity      string         `json:"parity,omitempty"`
	CompletedAt int64          `json:"completedAt"`
}

func (e RoundSettledEvent) Type() EventType {
	return EventTypeRoundSettled
}

// DuelStateChangeEvent represents a duel match moving between states
type DuelStateChangeEvent struct {
	MatchID  string           `json:"matchId"`
	OldState models.DuelState `json:"oldState"`
	NewState models.DuelState `json:"newState"`
	Round    int              `json:"round"`
	Score1   int              `json:"score1"`
	Score2   int              `json:"score2"`
	Forced   bool             `json:"forced"` // move applied by the timeout scan
	Closed   bool             `json:"closed"` // pools refunded and match removed
}

func (e DuelStateChangeEvent) Type() EventType {
	return EventTypeDuelStateChange
}

// PaymentStateChangeEvent represents a payment request transition
type PaymentStateChangeEvent struct {
	RequestID int64                `json:"requestId"`
	UserID    int64                `json:"userId"`
	Kind      models.PaymentKind   `json:"kind"`
	OldStatus models.PaymentStatus `json:"oldStatus"`
	NewStatus models.PaymentStatus `json:"newStatus"`
	Refunded  int64                `json:"refunded"`
}

func (e PaymentStateChangeEvent) Type() EventType {
	return EventTypePaymentStateChange
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type")
}

// Emit dispatches an event to every registered handler without blocking the caller.
// A panicking handler is logged and does not affect the others.
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[event.Type()]...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	for i, handler := range handlers {
		go func(h Handler, handlerIndex int) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// TransactionalBus holds events raised inside a unit of work until it commits
type TransactionalBus struct {
	real    *Bus
	pending []Event
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

// Publish stages an event; nothing is delivered before Flush
func (b *TransactionalBus) Publish(e Event) {
	b.pending = append(b.pending, e)
}

// Pending returns the staged events
func (b *TransactionalBus) Pending() []Event {
	return b.pending
}

// Flush delivers staged events after a successful commit.
// Delivery uses a background context because the request context may already be done.
func (b *TransactionalBus) Flush(_ context.Context) {
	if len(b.pending) > 0 {
		log.WithField("pendingEventCount", len(b.pending)).Debug("Flushing committed events")
	}

	eventCtx := context.Background()
	for _, ev := range b.pending {
		b.real.Emit(eventCtx, ev)
	}
	b.pending = nil
}

// Discard drops staged events after a rollback
func (b *TransactionalBus) Discard() {
	b.pending = nil
}
