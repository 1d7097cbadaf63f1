package typedkv

import (
	"context"
	"fmt"
)

// MapView exposes a Store through an associative-container shape. It owns
// nothing: every call goes through the store's codec and current connection,
// so a view must not be used after its store is closed.
type MapView[K comparable, V any] struct {
	s *Store[K, V]
}

// Get returns the value under key and whether it exists.
func (m *MapView[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	return m.s.Get(ctx, key)
}

// Put stores value under key and returns the value it replaced.
func (m *MapView[K, V]) Put(ctx context.Context, key K, value V) (V, bool, error) {
	return m.s.Put(ctx, key, value)
}

// Remove deletes key and returns the value it held.
func (m *MapView[K, V]) Remove(ctx context.Context, key K) (V, bool, error) {
	return m.s.Remove(ctx, key)
}

// ContainsKey reports whether key has a value.
func (m *MapView[K, V]) ContainsKey(ctx context.Context, key K) (bool, error) {
	return m.s.ContainsKey(ctx, key)
}

// Size counts the keys of the namespace.
func (m *MapView[K, V]) Size(ctx context.Context) (int64, error) {
	return m.s.Size(ctx)
}

// IsEmpty reports whether the namespace holds no keys.
func (m *MapView[K, V]) IsEmpty(ctx context.Context) (bool, error) {
	n, err := m.s.Size(ctx)
	return n == 0, err
}

// Keys lists the keys of the namespace.
func (m *MapView[K, V]) Keys(ctx context.Context) ([]K, error) {
	return m.s.Keys(ctx)
}

// Clear deletes every key of the namespace.
func (m *MapView[K, V]) Clear(ctx context.Context) error {
	return m.s.Clear(ctx)
}

// PutAll writes every pair in one transaction: all of them become visible or
// none does. Pairs are encoded before the transaction opens, so a codec
// failure writes nothing either.
func (m *MapView[K, V]) PutAll(ctx context.Context, pairs map[K]V) error {
	conn, err := m.s.conn()
	if err != nil {
		return err
	}
	if len(pairs) == 0 {
		return nil
	}

	type staged struct {
		key   string
		value []byte
	}
	writes := make([]staged, 0, len(pairs))
	for k, v := range pairs {
		raw, err := m.s.codec.EncodeKey(k)
		if err != nil {
			return err
		}
		b, err := m.s.codec.EncodeValue(v)
		if err != nil {
			return err
		}
		writes = append(writes, staged{key: raw, value: b})
	}

	err = conn.Exec(ctx, func(tx Tx) error {
		for _, w := range writes {
			tx.Set(w.key, w.value)
		}
		return nil
	})
	if err != nil {
		return m.s.fail(ctx, fmt.Sprintf("PutAll of %d pairs", len(writes)), err)
	}
	return nil
}
