package convo

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/classtide/omnitutor/pkg/kv"
)

const keyspace = "convo"

// Store persists conversation records in a kv.Store, one entry per
// conversation id. Every mutation writes through immediately.
type Store struct {
	kv kv.Store
}

// NewStore creates a conversation store on top of the given kv backend.
func NewStore(backend kv.Store) *Store {
	return &Store{kv: backend}
}

// Get loads a conversation. Returns ErrNotFound for unknown ids.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	raw, err := s.kv.Get(ctx, kv.Key{keyspace, id})
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("convo: get %s: %w", id, err)
	}
	var rec Record
	if err := msgpack.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("convo: decode %s: %w", id, err)
	}
	return &rec, nil
}

// Append adds a turn to the conversation, creating the record if the id
// is new, and persists the trimmed result. The stored record is
// returned so callers can inspect the retained history.
func (s *Store) Append(ctx context.Context, id string, t Turn) (*Record, error) {
	rec, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		rec = &Record{ID: id}
	} else if err != nil {
		return nil, err
	}
	rec.Append(t)
	if err := s.put(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) put(ctx context.Context, rec *Record) error {
	raw, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("convo: encode %s: %w", rec.ID, err)
	}
	return s.kv.Set(ctx, kv.Key{keyspace, rec.ID}, raw)
}

// List returns summaries of all conversations, most recent activity
// first. Empty records are skipped.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	var out []Summary
	for entry, err := range s.kv.List(ctx, kv.Key{keyspace}) {
		if err != nil {
			return nil, fmt.Errorf("convo: list: %w", err)
		}
		var rec Record
		if err := msgpack.Unmarshal(entry.Value, &rec); err != nil {
			return nil, fmt.Errorf("convo: decode %s: %w", entry.Key, err)
		}
		if len(rec.Turns) == 0 {
			continue
		}
		out = append(out, rec.Summarize())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out, nil
}

// Delete removes a conversation. Returns ErrNotFound for unknown ids.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.kv.Delete(ctx, kv.Key{keyspace, id})
}

// Clear removes every conversation.
func (s *Store) Clear(ctx context.Context) error {
	var keys []kv.Key
	for entry, err := range s.kv.List(ctx, kv.Key{keyspace}) {
		if err != nil {
			return fmt.Errorf("convo: clear: %w", err)
		}
		keys = append(keys, entry.Key)
	}
	for _, k := range keys {
		if err := s.kv.Delete(ctx, k); err != nil {
			return fmt.Errorf("convo: clear: %w", err)
		}
	}
	return nil
}
