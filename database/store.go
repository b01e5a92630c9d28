package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var (
	ErrStoreClosed = errors.New("store closed")
	ErrNoValue     = errors.New("no value at path")
)

// Store is a hierarchical realtime record store.
type Store interface {
	// Read returns the current value at path. A missing value is not an error.
	Read(ctx context.Context, path string) (Snapshot, error)
	// Write replaces the value at path. A nil value deletes.
	Write(ctx context.Context, path string, value any) error
	// Merge applies fields below path without touching unspecified siblings.
	// Keys may be nested relative paths and nil values delete.
	Merge(ctx context.Context, path string, fields map[string]any) error
	// MergeExisting is Merge, except that it fails with ErrNoValue instead
	// of creating path when nothing is stored there.
	MergeExisting(ctx context.Context, path string, fields map[string]any) error
	// Delete removes the value at path and all of its descendants.
	Delete(ctx context.Context, path string) error
	// Subscribe calls fn with the full value at path immediately and again
	// whenever anything at, above or below path changes.
	Subscribe(path string, fn func(Snapshot)) (Unsubscribe, error)
	Close() error
}

// Unsubscribe releases a subscription. Calling it more than once is safe.
type Unsubscribe func()

// Snapshot is the value found at a path at one point in time.
type Snapshot struct {
	Path  string
	Key   string
	Value any
}

func newSnapshot(segs []string, value any) Snapshot {
	s := Snapshot{Path: JoinPath(segs...), Value: value}
	if len(segs) > 0 {
		s.Key = segs[len(segs)-1]
	}
	return s
}

func (s Snapshot) Exists() bool {
	return s.Value != nil
}

// Decode unmarshals the snapshot value into v.
func (s Snapshot) Decode(v any) error {
	raw, err := json.Marshal(s.Value)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot %s: %w", s.Path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode snapshot %s: %w", s.Path, err)
	}
	return nil
}

// ChildKeys returns the sorted keys of an object value.
func (s Snapshot) ChildKeys() []string {
	m, ok := s.Value.(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Child returns the snapshot of a direct child.
func (s Snapshot) Child(key string) Snapshot {
	var value any
	if m, ok := s.Value.(map[string]any); ok {
		value = m[key]
	}
	path := key
	if s.Path != "" {
		path = s.Path + "/" + key
	}
	return Snapshot{Path: path, Key: key, Value: value}
}
