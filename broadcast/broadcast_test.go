package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"betengine/events"
	"betengine/models"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBucket struct {
	mu   sync.Mutex
	puts map[string][]byte
	err  error
}

func (b *fakeBucket) Put(key string, value []byte) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return 0, b.err
	}
	if b.puts == nil {
		b.puts = make(map[string][]byte)
	}
	b.puts[key] = value
	return uint64(len(b.puts)), nil
}

func TestKVMirror_PushKeysByVariant(t *testing.T) {
	bucket := &fakeBucket{}
	mirror := NewKVMirror(bucket)

	round := &models.Round{
		ID:           uuid.New(),
		Variant:      models.VariantParity,
		Status:       models.RoundStatusCompleted,
		EndTime:      time.UnixMilli(1700000000000),
		TargetValues: []int32{4, 9},
		Winners:      []int32{},
		Parity:       models.ParityOdd,
	}
	require.NoError(t, mirror.Push(context.Background(), models.NewBroadcastState(round)))

	var state models.BroadcastState
	require.NoError(t, json.Unmarshal(bucket.puts["parity"], &state))
	assert.Equal(t, round.ID.String(), state.GameID)
	assert.Equal(t, int64(1700000000000), state.EndTime)
	assert.Equal(t, models.ParityOdd, state.Parity)
}

func TestKVMirror_PushError(t *testing.T) {
	mirror := NewKVMirror(&fakeBucket{err: errors.New("bucket gone")})

	err := mirror.Push(context.Background(), models.BroadcastState{Variant: models.VariantDraw})
	assert.ErrorContains(t, err, "bucket gone")
}

func TestNoopMirror(t *testing.T) {
	assert.NoError(t, NoopMirror{}.Push(context.Background(), models.BroadcastState{}))
}

type recordedMessage struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	messages chan recordedMessage
}

func (p *fakePublisher) Publish(_ context.Context, subject string, data []byte) error {
	p.messages <- recordedMessage{subject: subject, data: data}
	return nil
}

func TestEventForwarder_ForwardsCommittedEvents(t *testing.T) {
	publisher := &fakePublisher{messages: make(chan recordedMessage, 1)}
	forwarder := NewEventForwarder(publisher)
	bus := events.NewBus()
	forwarder.Register(bus)

	tx := events.NewTransactionalBus(bus)
	tx.Publish(events.BetPlacedEvent{BetID: 9, UserID: 42, Variant: models.VariantDraw, Stake: 100})
	tx.Flush(context.Background())

	select {
	case msg := <-publisher.messages:
		assert.Equal(t, "betengine.events.bet_placed", msg.subject)

		var envelope Envelope
		require.NoError(t, json.Unmarshal(msg.data, &envelope))
		assert.Equal(t, "bet_placed", envelope.EventType)
		assert.Equal(t, "betengine", envelope.SourceService)
		_, err := uuid.Parse(envelope.EventID)
		assert.NoError(t, err)

		var payload events.BetPlacedEvent
		require.NoError(t, json.Unmarshal(envelope.Payload, &payload))
		assert.Equal(t, int64(9), payload.BetID)
		assert.Equal(t, int64(100), payload.Stake)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not forwarded")
	}
}

func TestSubjects_CoverEveryEventType(t *testing.T) {
	subjects := Subjects()
	assert.Len(t, subjects, len(events.AllEventTypes))
	for _, s := range subjects {
		assert.True(t, strings.HasPrefix(s, SubjectPrefix))
	}
}

type fakeSource struct {
	updates chan []byte
	keys    chan string
}

func (s *fakeSource) Watch(_ context.Context, key string) (<-chan []byte, error) {
	s.keys <- key
	return s.updates, nil
}

func TestWSRelay_StreamsUpdates(t *testing.T) {
	source := &fakeSource{updates: make(chan []byte, 2), keys: make(chan string, 1)}
	relay := NewWSRelay(source)

	router := chi.NewRouter()
	router.Get("/ws/rounds/{variant}", relay.HandleRound)
	server := httptest.NewServer(router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/rounds/draw"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "draw", <-source.keys)

	source.updates <- []byte(`{"status":"active"}`)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"active"}`, string(data))
}

func TestWSRelay_UnknownVariant(t *testing.T) {
	relay := NewWSRelay(&fakeSource{})

	router := chi.NewRouter()
	router.Get("/ws/rounds/{variant}", relay.HandleRound)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/rounds/roulette", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
