package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"betengine/events"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// SubjectPrefix is prepended to the event type to form the NATS subject
const SubjectPrefix = "betengine.events."

// Publisher sends raw payloads to a subject
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Envelope wraps a domain event for the stream
type Envelope struct {
	EventID       string          `json:"eventId"`
	EventType     string          `json:"eventType"`
	Timestamp     time.Time       `json:"timestamp"`
	SourceService string          `json:"sourceService"`
	Payload       json.RawMessage `json:"payload"`
}

// EventForwarder republishes committed bus events to JetStream
type EventForwarder struct {
	publisher Publisher
	now       func() time.Time
}

// NewEventForwarder creates a forwarder that publishes through publisher
func NewEventForwarder(publisher Publisher) *EventForwarder {
	return &EventForwarder{publisher: publisher, now: time.Now}
}

// Subjects lists the subjects the forwarder may publish to, for stream creation
func Subjects() []string {
	subjects := make([]string, 0, len(events.AllEventTypes))
	for _, t := range events.AllEventTypes {
		subjects = append(subjects, SubjectFor(t))
	}
	return subjects
}

// SubjectFor maps an event type to its subject
func SubjectFor(eventType events.EventType) string {
	return SubjectPrefix + string(eventType)
}

// Register subscribes the forwarder to every event type on bus
func (f *EventForwarder) Register(bus *events.Bus) {
	for _, t := range events.AllEventTypes {
		bus.Subscribe(t, f.handle)
	}
	log.WithField("eventTypes", len(events.AllEventTypes)).Info("Event forwarder registered")
}

func (f *EventForwarder) handle(ctx context.Context, event events.Event) {
	if err := f.Forward(ctx, event); err != nil {
		log.WithError(err).WithField("eventType", event.Type()).Error("Failed to forward event")
	}
}

// Forward publishes one event inside a fresh envelope
func (f *EventForwarder) Forward(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	envelope := Envelope{
		EventID:       uuid.New().String(),
		EventType:     string(event.Type()),
		Timestamp:     f.now().UTC(),
		SourceService: "betengine",
		Payload:       payload,
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	subject := SubjectFor(event.Type())
	if err := f.publisher.Publish(ctx, subject, data); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"eventType": envelope.EventType,
		"eventId":   envelope.EventID,
		"subject":   subject,
	}).Debug("Forwarded event")
	return nil
}
