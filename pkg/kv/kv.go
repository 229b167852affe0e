// Package kv provides the key-value store used for omnitutor's durable
// state: conversation records, the artifact registry, the integration
// registry, and live-session configuration. Keys are hierarchical paths
// represented as string slices (e.g. ["convo", "c1"]) and encoded with a
// ':' separator.
//
// Two implementations are provided: a BadgerDB-backed store for
// production and an in-memory store for tests.
package kv

import (
	"context"
	"errors"
	"iter"
	"strings"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("kv: not found")

// Separator joins key segments in the encoded form. Segments must not
// contain it.
const Separator byte = ':'

// Key is a hierarchical path represented as a slice of string segments.
type Key []string

// String returns the encoded form, for display and debugging.
func (k Key) String() string {
	return strings.Join(k, string(Separator))
}

// Entry is a key-value pair yielded by List.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is a key-value store with path-based keys.
type Store interface {
	// Get retrieves the value for a key. Returns ErrNotFound if absent.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores a key-value pair, overwriting any existing value.
	Set(ctx context.Context, key Key, value []byte) error

	// Delete removes a key. Removing an absent key is not an error.
	Delete(ctx context.Context, key Key) error

	// List iterates over all entries below the given prefix, in
	// lexicographic order of the encoded key. An empty prefix scans
	// the whole store.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// Close releases resources held by the store.
	Close() error
}

// encode converts a Key to its stored byte representation.
func encode(k Key) []byte {
	n := 0
	for i, seg := range k {
		if i > 0 {
			n++
		}
		n += len(seg)
	}
	buf := make([]byte, 0, n)
	for i, seg := range k {
		if i > 0 {
			buf = append(buf, Separator)
		}
		buf = append(buf, seg...)
	}
	return buf
}

// decode converts a stored byte representation back to a Key.
func decode(b []byte) Key {
	parts := strings.Split(string(b), string(Separator))
	return Key(parts)
}

// scanPrefix returns the byte prefix used for List. A trailing separator
// is appended so the prefix ["a","b"] does not match the key ["a","bc"].
func scanPrefix(prefix Key) []byte {
	p := encode(prefix)
	if len(p) == 0 {
		return nil
	}
	return append(p, Separator)
}
