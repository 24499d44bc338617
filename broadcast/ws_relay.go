package broadcast

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"betengine/models"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const writeWait = 10 * time.Second

// StateSource streams raw state updates for one key until ctx is done
type StateSource interface {
	Watch(ctx context.Context, key string) (<-chan []byte, error)
}

// KVStateSource watches a JetStream KV bucket
type KVStateSource struct {
	kv nats.KeyValue
}

// NewKVStateSource creates a state source over a bound bucket
func NewKVStateSource(kv nats.KeyValue) *KVStateSource {
	return &KVStateSource{kv: kv}
}

// Watch delivers the current value of key followed by every later put
func (s *KVStateSource) Watch(ctx context.Context, key string) (<-chan []byte, error) {
	watcher, err := s.kv.Watch(key)
	if err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", key, err)
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		defer watcher.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-watcher.Updates():
				if !ok {
					return
				}
				// nil marks the end of the initial values
				if entry == nil || entry.Operation() != nats.KeyValuePut {
					continue
				}
				select {
				case out <- entry.Value():
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// WSRelay streams live round state to websocket clients
type WSRelay struct {
	source   StateSource
	upgrader websocket.Upgrader
}

// NewWSRelay creates a relay reading from source
func NewWSRelay(source StateSource) *WSRelay {
	return &WSRelay{
		source: source,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleRound serves GET /ws/rounds/{variant}
func (h *WSRelay) HandleRound(w http.ResponseWriter, r *http.Request) {
	variant, err := models.ParseVariant(chi.URLParam(r, "variant"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	updates, err := h.source.Watch(ctx, string(variant))
	if err != nil {
		log.WithError(err).WithField("variant", variant).Error("Failed to watch round state")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "state unavailable"),
			time.Now().Add(writeWait))
		return
	}

	// Clients never send anything; reading only detects the close
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	log.WithField("variant", variant).Debug("Round state client connected")

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-updates:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.WithError(err).Debug("Round state client went away")
				return
			}
		}
	}
}
