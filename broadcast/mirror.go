package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"betengine/models"
)

// keyValuePutter is the part of nats.KeyValue the mirror writes through
type keyValuePutter interface {
	Put(key string, value []byte) (uint64, error)
}

// KVMirror writes the latest state of each variant to a JetStream KV bucket,
// keyed by variant. UI clients watch the bucket; nothing reads it back.
type KVMirror struct {
	kv keyValuePutter
}

// NewKVMirror creates a mirror over a bound bucket
func NewKVMirror(kv keyValuePutter) *KVMirror {
	return &KVMirror{kv: kv}
}

// Push overwrites the variant's entry with state
func (m *KVMirror) Push(_ context.Context, state models.BroadcastState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal broadcast state: %w", err)
	}

	if _, err := m.kv.Put(string(state.Variant), data); err != nil {
		return fmt.Errorf("failed to push %s state: %w", state.Variant, err)
	}
	return nil
}

// NoopMirror drops every push. Used when NATS is disabled.
type NoopMirror struct{}

// Push does nothing
func (NoopMirror) Push(context.Context, models.BroadcastState) error {
	return nil
}
