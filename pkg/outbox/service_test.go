package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/dukalink-backend/pkg/db/dbtest"
	"github.com/angelmondragon/dukalink-backend/pkg/db/models"
	"github.com/angelmondragon/dukalink-backend/pkg/enums"
	"github.com/angelmondragon/dukalink-backend/pkg/logger"
)

func TestEmitWritesEnvelope(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), logger.Nop())
	aggregateID := uuid.New()
	userID := uuid.New()

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   aggregateID,
			Actor:         &ActorRef{UserID: &userID, SessionKey: "sess-1"},
			Data:          map[string]string{"order_id": aggregateID.String()},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.EventOrderCreated, rows[0].EventType)
	assert.Equal(t, aggregateID, rows[0].AggregateID)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.Equal(t, rows[0].ID.String(), envelope.EventID)
	assert.Equal(t, "sess-1", envelope.Actor.SessionKey)
	assert.JSONEq(t, `{"order_id":"`+aggregateID.String()+`"}`, string(envelope.Data))
}

func TestEmitRolledBackWithTransaction(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)

	boom := errors.New("boom")
	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventCheckoutCreated,
			AggregateType: enums.AggregateCheckoutAttempt,
			AggregateID:   uuid.New(),
			Data:          struct{}{},
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEmitRejectsUnknownTypes(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)

	err := svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.OutboxEventType("order.shipped"),
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
	})
	assert.Error(t, err)
	assert.Error(t, svc.Emit(context.Background(), nil, DomainEvent{}))

	err = svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
	})
	assert.ErrorContains(t, err, "aggregate id required")
}

func TestEmitOnceSkipsDuplicates(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)
	attemptID := uuid.New()

	for i := 0; i < 3; i++ {
		require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
			return svc.EmitOnce(context.Background(), tx, DomainEvent{
				EventType:     enums.EventCheckoutCompleted,
				AggregateType: enums.AggregateCheckoutAttempt,
				AggregateID:   attemptID,
				Data:          map[string]int{"order_count": 2},
			})
		}))
	}

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("aggregate_id = ?", attemptID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Emit(context.Background(), conn, DomainEvent{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregatePaymentIntent,
			AggregateID:   uuid.New(),
			Data:          map[string]int{"i": i},
		}))
	}

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	require.NoError(t, repo.MarkPublishedTx(conn, rows[0].ID))
	require.NoError(t, repo.MarkFailedTx(conn, rows[1].ID, errors.New("pubsub unavailable")))
	require.NoError(t, repo.MarkTerminalTx(conn, rows[2].ID, errors.New("bad payload"), 5))

	remaining, err := repo.FetchUnpublishedForPublish(conn, 10, 5)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, rows[1].ID, remaining[0].ID)
	assert.Equal(t, 1, remaining[0].AttemptCount)
	require.NotNil(t, remaining[0].LastError)
	assert.Equal(t, "pubsub unavailable", *remaining[0].LastError)

	deleted, err := repo.DeletePublishedBefore(nil, time.Now().UTC().Add(time.Minute), 100)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
}

func TestDLQRepositoryInsertAndFind(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewDLQRepository(conn)
	eventID := uuid.New()
	long := strings.Repeat("x", 2*maxLastErrorLen)

	require.NoError(t, repo.InsertTx(conn, models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &long,
		FailedAt:      time.Now().UTC(),
	}))

	found, err := repo.FindByEventID(context.Background(), eventID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Len(t, *found.ErrorMessage, maxLastErrorLen)

	missing, err := repo.FindByEventID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.InsertTx(conn, models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		FailedAt:      time.Now().UTC(),
	}))
	depth, err := repo.Depth(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, depth[enums.OutboxDLQReasonMaxAttempts])
	assert.Zero(t, depth[enums.OutboxDLQReasonNonRetryable])
}
