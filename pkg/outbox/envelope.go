package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const envelopeVersion = 1

// ActorRef identifies who caused the event. Anonymous shoppers are known by
// session only.
type ActorRef struct {
	UserID     *uuid.UUID `json:"userId,omitempty"`
	SessionKey string     `json:"sessionKey,omitempty"`
	Role       string     `json:"role,omitempty"`
}

// PayloadEnvelope is what outbox_events.payload holds and what subscribers
// receive as the message body. EventID equals the outbox row id.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

func sealEnvelope(eventID uuid.UUID, event DomainEvent) ([]byte, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s data: %w", event.EventType, err)
	}
	version := event.Version
	if version == 0 {
		version = envelopeVersion
	}
	body, err := json.Marshal(PayloadEnvelope{
		Version:    version,
		EventID:    eventID.String(),
		OccurredAt: event.OccurredAt.UTC(),
		Actor:      event.Actor,
		Data:       data,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", event.EventType, err)
	}
	return body, nil
}
