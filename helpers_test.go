package typedkv

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

const testURL = "redis://localhost:6379/0"

// mockConn delegates to base unless the matching func field is set. It only
// ever exposes the Conn method set; wrap it in scanConn or listConn to add
// capabilities.
type mockConn struct {
	base Conn

	getFunc    func(ctx context.Context, key string) ([]byte, error)
	getSetFunc func(ctx context.Context, key string, value []byte) ([]byte, error)
	delFunc    func(ctx context.Context, keys ...string) (int64, error)
	existsFunc func(ctx context.Context, key string) (bool, error)
	execFunc   func(ctx context.Context, fn func(Tx) error) error

	dels atomic.Int64
	sets atomic.Int64
}

func newMockConn(t *testing.T, m *Memory) *mockConn {
	t.Helper()
	base, err := m.Open(context.Background(), Endpoint{})
	require.NoError(t, err)
	return &mockConn{base: base}
}

func (c *mockConn) Get(ctx context.Context, key string) ([]byte, error) {
	if c.getFunc != nil {
		return c.getFunc(ctx, key)
	}
	return c.base.Get(ctx, key)
}

func (c *mockConn) Set(ctx context.Context, key string, value []byte) error {
	c.sets.Add(1)
	return c.base.Set(ctx, key, value)
}

func (c *mockConn) GetSet(ctx context.Context, key string, value []byte) ([]byte, error) {
	if c.getSetFunc != nil {
		return c.getSetFunc(ctx, key, value)
	}
	return c.base.GetSet(ctx, key, value)
}

func (c *mockConn) Del(ctx context.Context, keys ...string) (int64, error) {
	c.dels.Add(1)
	if c.delFunc != nil {
		return c.delFunc(ctx, keys...)
	}
	return c.base.Del(ctx, keys...)
}

func (c *mockConn) Exists(ctx context.Context, key string) (bool, error) {
	if c.existsFunc != nil {
		return c.existsFunc(ctx, key)
	}
	return c.base.Exists(ctx, key)
}

func (c *mockConn) DBSize(ctx context.Context) (int64, error) { return c.base.DBSize(ctx) }
func (c *mockConn) FlushDB(ctx context.Context) error         { return c.base.FlushDB(ctx) }

func (c *mockConn) Exec(ctx context.Context, fn func(Tx) error) error {
	if c.execFunc != nil {
		return c.execFunc(ctx, fn)
	}
	return c.base.Exec(ctx, fn)
}

func (c *mockConn) Close() error { return c.base.Close() }

// scanConn adds the base connection's Scanner capability.
type scanConn struct {
	*mockConn
}

func (c scanConn) Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	return c.base.(Scanner).Scan(ctx, cursor, match, count)
}

// listConn adds only the KeyLister capability.
type listConn struct {
	*mockConn
}

func (c listConn) Keys(ctx context.Context) ([]string, error) {
	return c.base.(KeyLister).Keys(ctx)
}

// connDriver hands out a fixed connection.
type connDriver struct {
	conn Conn
}

func (d connDriver) Open(ctx context.Context, ep Endpoint) (Conn, error) {
	return d.conn, nil
}

// discardTx drops every staged write.
type discardTx struct{ n int }

func (tx *discardTx) Set(key string, value []byte) { tx.n++ }

// newStore builds and connects a store on m, closing it when the test ends.
func newStore[K comparable, V any](t *testing.T, d Driver, cfg Config, opts ...Option) *Store[K, V] {
	t.Helper()
	if cfg.URL == "" && cfg.Host == "" {
		cfg.URL = testURL
	}
	st, err := New[K, V](cfg, append([]Option{WithDriver(d)}, opts...)...)
	require.NoError(t, err)
	require.NoError(t, st.Connect(context.Background()))
	t.Cleanup(func() { _ = st.Close(context.Background()) })
	return st
}
