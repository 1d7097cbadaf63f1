package typedkv

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/gobwas/glob"
)

const defaultScanCount = 10

// Memory is an in-process backend holding numbered databases, the way a Redis
// server does. Every connection opened from the same Memory shares its data,
// so several stores can observe one another exactly as they would on a real
// server. Connections implement Scanner, KeyLister and Persister.
type Memory struct {
	mu    sync.RWMutex
	dbs   map[int]map[string][]byte
	saves atomic.Int64
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{dbs: make(map[int]map[string][]byte)}
}

// Open returns a connection to database ep.DB; the other endpoint fields are
// ignored.
func (m *Memory) Open(ctx context.Context, ep Endpoint) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return &memoryConn{m: m, db: ep.DB}, nil
}

// Saves reports how many Save commands the backend has received.
func (m *Memory) Saves() int64 { return m.saves.Load() }

// Len reports the number of keys in database db.
func (m *Memory) Len(db int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.dbs[db])
}

// data returns database db, creating it. Callers hold m.mu for writing.
func (m *Memory) data(db int) map[string][]byte {
	d, ok := m.dbs[db]
	if !ok {
		d = make(map[string][]byte)
		m.dbs[db] = d
	}
	return d
}

type memoryConn struct {
	m      *Memory
	db     int
	closed atomic.Bool
}

var (
	_ Conn      = (*memoryConn)(nil)
	_ Scanner   = (*memoryConn)(nil)
	_ KeyLister = (*memoryConn)(nil)
	_ Persister = (*memoryConn)(nil)
)

func (c *memoryConn) check(ctx context.Context) error {
	if c.closed.Load() {
		return fmt.Errorf("%w: connection closed", ErrBackendUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func (c *memoryConn) Get(ctx context.Context, key string) ([]byte, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	c.m.mu.RLock()
	defer c.m.mu.RUnlock()
	v, ok := c.m.dbs[c.db][key]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(v), nil
}

func (c *memoryConn) Set(ctx context.Context, key string, value []byte) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	c.m.data(c.db)[key] = clone(value)
	return nil
}

func (c *memoryConn) GetSet(ctx context.Context, key string, value []byte) ([]byte, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	d := c.m.data(c.db)
	old, ok := d[key]
	d[key] = clone(value)
	if !ok {
		return nil, ErrNotFound
	}
	return old, nil
}

func (c *memoryConn) Del(ctx context.Context, keys ...string) (int64, error) {
	if err := c.check(ctx); err != nil {
		return 0, err
	}
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	d := c.m.dbs[c.db]
	var n int64
	for _, k := range keys {
		if _, ok := d[k]; ok {
			delete(d, k)
			n++
		}
	}
	return n, nil
}

func (c *memoryConn) Exists(ctx context.Context, key string) (bool, error) {
	if err := c.check(ctx); err != nil {
		return false, err
	}
	c.m.mu.RLock()
	defer c.m.mu.RUnlock()
	_, ok := c.m.dbs[c.db][key]
	return ok, nil
}

func (c *memoryConn) DBSize(ctx context.Context) (int64, error) {
	if err := c.check(ctx); err != nil {
		return 0, err
	}
	c.m.mu.RLock()
	defer c.m.mu.RUnlock()
	return int64(len(c.m.dbs[c.db])), nil
}

func (c *memoryConn) FlushDB(ctx context.Context) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	delete(c.m.dbs, c.db)
	return nil
}

// Exec stages every write and applies them under a single lock acquisition.
func (c *memoryConn) Exec(ctx context.Context, fn func(Tx) error) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	tx := &memoryTx{}
	if err := fn(tx); err != nil {
		return fmt.Errorf("%w: %v", ErrTxAborted, err)
	}
	if err := c.check(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrTxAborted, err)
	}
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	d := c.m.data(c.db)
	for _, w := range tx.writes {
		d[w.key] = w.value
	}
	return nil
}

// Scan walks the database in key-hash order, examining count keys per call.
// The cursor is the hash to resume from, so keys present for the whole
// iteration are returned exactly once even while others are deleted. Like
// Redis, a page may hold no matches even though the iteration is not over.
func (c *memoryConn) Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	if err := c.check(ctx); err != nil {
		return nil, 0, err
	}
	if count <= 0 {
		count = defaultScanCount
	}
	var g glob.Glob
	if match != "" && match != "*" {
		var err error
		if g, err = glob.Compile(match); err != nil {
			return nil, 0, fmt.Errorf("typedkv: invalid scan pattern %q: %w", match, err)
		}
	}

	c.m.mu.RLock()
	var pending []hashedKey
	for k := range c.m.dbs[c.db] {
		if h := xxhash.Sum64String(k); h >= cursor {
			pending = append(pending, hashedKey{hash: h, key: k})
		}
	}
	c.m.mu.RUnlock()
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].hash != pending[j].hash {
			return pending[i].hash < pending[j].hash
		}
		return pending[i].key < pending[j].key
	})

	end := int(count)
	if end > len(pending) {
		end = len(pending)
	}
	// Never split keys sharing a hash across pages.
	for end > 0 && end < len(pending) && pending[end].hash == pending[end-1].hash {
		end++
	}
	var next uint64
	if end < len(pending) {
		next = pending[end].hash
	}
	var page []string
	for _, hk := range pending[:end] {
		if g == nil || g.Match(hk.key) {
			page = append(page, hk.key)
		}
	}
	return page, next, nil
}

type hashedKey struct {
	hash uint64
	key  string
}

func (c *memoryConn) Keys(ctx context.Context) ([]string, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	return c.sortedKeys(), nil
}

func (c *memoryConn) Save(ctx context.Context) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	c.m.saves.Add(1)
	return nil
}

func (c *memoryConn) Close() error {
	c.closed.Store(true)
	return nil
}

func (c *memoryConn) sortedKeys() []string {
	c.m.mu.RLock()
	d := c.m.dbs[c.db]
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	c.m.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

type memoryTx struct {
	writes []memoryWrite
}

type memoryWrite struct {
	key   string
	value []byte
}

func (tx *memoryTx) Set(key string, value []byte) {
	tx.writes = append(tx.writes, memoryWrite{key: key, value: clone(value)})
}

func clone(src []byte) []byte {
	if src == nil {
		return nil
	}
	dst := make([]byte, len(src))
	copy(dst, src)
	return dst
}
