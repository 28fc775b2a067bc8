// Package kv is the persistent key-value collaborator shared by every
// execution context. Values are opaque bytes; JSON helpers sit on top.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/samber/mo"
)

// Scope selects one of the two storage areas.
type Scope string

const (
	// ScopeLocal holds the auth token, the cached profile and the handoff cache entry.
	ScopeLocal Scope = "local"
	// ScopeSync holds user preference settings.
	ScopeSync Scope = "sync"
)

var ErrUnknownBackend = errors.New("kv: unknown backend")

type Store interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set replaces the value stored under key.
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, keys ...string) error
	// Clear removes every key of the store's scope.
	Clear(ctx context.Context) error
}

// Storage bundles the local and sync scopes.
type Storage struct {
	Local Store
	Sync  Store

	closers []func() error
}

// NewStorage builds a Storage from two stores.
func NewStorage(local, sync Store) *Storage {
	return &Storage{Local: local, Sync: sync}
}

// Scope returns the store backing scope.
func (s *Storage) Scope(scope Scope) Store {
	if scope == ScopeSync {
		return s.Sync
	}
	return s.Local
}

// ClearAll empties the local scope, then the sync scope.
func (s *Storage) ClearAll(ctx context.Context) error {
	if err := s.Local.Clear(ctx); err != nil {
		return fmt.Errorf("clearing local scope: %w", err)
	}
	if err := s.Sync.Clear(ctx); err != nil {
		return fmt.Errorf("clearing sync scope: %w", err)
	}
	return nil
}

// Close releases backend resources opened by Open.
func (s *Storage) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GetJSON decodes the value stored under key. A missing key yields mo.None.
func GetJSON[T any](ctx context.Context, store Store, key string) (mo.Option[T], error) {
	raw, ok, err := store.Get(ctx, key)
	if err != nil {
		return mo.None[T](), err
	}
	if !ok {
		return mo.None[T](), nil
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return mo.None[T](), fmt.Errorf("decoding %s: %w", key, err)
	}
	return mo.Some(v), nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, store Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return store.Set(ctx, key, raw)
}
