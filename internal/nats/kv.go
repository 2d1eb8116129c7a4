package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/meeting-assistant/internal/model"
	"github.com/capitalize-ai/meeting-assistant/internal/storage"
)

// SessionBucket is the key-value bucket holding session snapshots.
const SessionBucket = "MEETING_SESSIONS"

// KVStore is a storage.Store on a JetStream key-value bucket. Keys are
// session ids.
type KVStore struct {
	kv jetstream.KeyValue
}

var _ storage.Store = (*KVStore)(nil)

// NewKVStore opens the session bucket, creating it when missing.
func NewKVStore(ctx context.Context, client *Client) (*KVStore, error) {
	kv, err := client.JetStream().CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      SessionBucket,
		Description: "Meeting assistant session snapshots",
		History:     1,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open key-value bucket: %w", err)
	}
	return &KVStore{kv: kv}, nil
}

func (s *KVStore) Save(ctx context.Context, state model.PersistedState) error {
	if state.ID == "" {
		return errors.New("session id is required")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if _, err := s.kv.Put(ctx, state.ID, data); err != nil {
		return fmt.Errorf("failed to put session: %w", err)
	}
	return nil
}

func (s *KVStore) Load(ctx context.Context, id string) (model.PersistedState, error) {
	entry, err := s.kv.Get(ctx, id)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return model.PersistedState{}, storage.ErrNotFound
	}
	if err != nil {
		return model.PersistedState{}, fmt.Errorf("failed to get session: %w", err)
	}

	var state model.PersistedState
	if err := json.Unmarshal(entry.Value(), &state); err != nil {
		return model.PersistedState{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return state, nil
}

func (s *KVStore) Delete(ctx context.Context, id string) error {
	if _, err := s.Load(ctx, id); err != nil {
		return err
	}
	if err := s.kv.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// ListByUser scans every key in the bucket.
func (s *KVStore) ListByUser(ctx context.Context, userID string) ([]model.PersistedState, error) {
	keys, err := s.kv.Keys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	var out []model.PersistedState
	for _, key := range keys {
		state, err := s.Load(ctx, key)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if state.UserID == userID {
			out = append(out, state)
		}
	}
	storage.SortByUpdated(out)
	return out, nil
}
