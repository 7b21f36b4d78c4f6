// Package outbox records domain events in the same transaction as the state
// change they describe. cmd/outbox-publisher relays them to Pub/Sub.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dukalink-backend/pkg/db/models"
	"github.com/angelmondragon/dukalink-backend/pkg/enums"
	"github.com/angelmondragon/dukalink-backend/pkg/logger"
)

var errTxRequired = errors.New("transaction required")

// DomainEvent is what services hand to Emit. Data is marshalled as JSON into
// the envelope. A zero OccurredAt means now.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

func (e DomainEvent) validate() error {
	if !e.EventType.IsValid() {
		return fmt.Errorf("unknown outbox event type %q", e.EventType)
	}
	if !e.AggregateType.IsValid() {
		return fmt.Errorf("unknown outbox aggregate type %q", e.AggregateType)
	}
	if e.AggregateID == uuid.Nil {
		return fmt.Errorf("%s: aggregate id required", e.EventType)
	}
	return nil
}

type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Emit writes event inside tx. It becomes visible to the publisher only if
// tx commits.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errTxRequired
	}
	if err := event.validate(); err != nil {
		return err
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}

	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
	}
	payload, err := sealEnvelope(row.ID, event)
	if err != nil {
		return err
	}
	row.Payload = payload

	if err := s.repo.Insert(tx, row); err != nil {
		return fmt.Errorf("insert %s event: %w", event.EventType, err)
	}

	if s.logg != nil {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_id":       row.ID.String(),
			"event_type":     event.EventType,
			"aggregate_type": event.AggregateType,
			"aggregate_id":   event.AggregateID.String(),
		}), "outbox event queued")
	}
	return nil
}

// EmitOnce is Emit guarded by an existence check on (type, aggregate). An
// earlier event for the aggregate makes it a no-op.
func (s *Service) EmitOnce(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errTxRequired
	}
	exists, err := s.repo.ExistsTx(tx, event.EventType, event.AggregateType, event.AggregateID)
	if err != nil {
		return fmt.Errorf("check existing %s event: %w", event.EventType, err)
	}
	if exists {
		return nil
	}
	return s.Emit(ctx, tx, event)
}
