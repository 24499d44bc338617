package repository

import (
	"context"
	"testing"
	"time"

	"betengine/events"
	"betengine/repository/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnitOfWork_EventsFollowTheTransaction(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	bus := events.NewBus()
	received := make(chan events.Event, 4)
	bus.Subscribe(events.EventTypeUserCreated, func(_ context.Context, e events.Event) {
		received <- e
	})
	factory := NewUnitOfWorkFactory(testDB.DB, bus)

	t.Run("rollback discards writes and events", func(t *testing.T) {
		uow := factory.Create()
		require.NoError(t, uow.Begin(ctx))
		_, err := uow.UserRepository().Create(ctx, 1, "ghost", 100)
		require.NoError(t, err)
		uow.EventBus().Publish(events.UserCreatedEvent{UserID: 1})
		require.NoError(t, uow.Rollback())

		user, err := NewUserRepository(testDB.DB).GetByID(ctx, 1)
		require.NoError(t, err)
		assert.Nil(t, user)
	})

	t.Run("commit persists writes and delivers events", func(t *testing.T) {
		uow := factory.Create()
		require.NoError(t, uow.Begin(ctx))
		_, err := uow.UserRepository().Create(ctx, 2, "bob", 100)
		require.NoError(t, err)
		uow.EventBus().Publish(events.UserCreatedEvent{UserID: 2})
		require.NoError(t, uow.Commit())
		require.NoError(t, uow.Rollback())

		select {
		case e := <-received:
			assert.Equal(t, int64(2), e.(events.UserCreatedEvent).UserID)
		case <-time.After(5 * time.Second):
			t.Fatal("event was not delivered")
		}
		assert.Empty(t, received)
	})

	t.Run("getters panic before Begin", func(t *testing.T) {
		assert.Panics(t, func() { factory.Create().RoundRepository() })
	})
}
