package typedkv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T, m *Memory, db int) *memoryConn {
	t.Helper()
	conn, err := m.Open(context.Background(), Endpoint{DB: db})
	require.NoError(t, err)
	return conn.(*memoryConn)
}

func TestMemory_GetSet(t *testing.T) {
	ctx := context.Background()
	c := openMemory(t, NewMemory(), 0)

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.Set(ctx, "k", []byte("v1")))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	old, err := c.GetSet(ctx, "k", []byte("v2"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), old)

	got, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func TestMemory_GetSetOnAbsentKeyWrites(t *testing.T) {
	ctx := context.Background()
	c := openMemory(t, NewMemory(), 0)

	_, err := c.GetSet(ctx, "fresh", []byte("x"))
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := c.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), got)
}

func TestMemory_ValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	c := openMemory(t, NewMemory(), 0)

	in := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", in))
	in[0] = 'X'

	out, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), out)

	out[1] = 'Y'
	again, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}

func TestMemory_DelExistsDBSize(t *testing.T) {
	ctx := context.Background()
	c := openMemory(t, NewMemory(), 0)

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, c.Set(ctx, k, []byte(k)))
	}
	n, err := c.DBSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	ok, err := c.Exists(ctx, "b")
	require.NoError(t, err)
	assert.True(t, ok)

	deleted, err := c.Del(ctx, "a", "b", "nope")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	ok, err = c.Exists(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err = c.DBSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemory_DatabasesAreIsolated(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	c0 := openMemory(t, m, 0)
	c1 := openMemory(t, m, 1)

	require.NoError(t, c0.Set(ctx, "k", []byte("zero")))
	require.NoError(t, c1.Set(ctx, "k", []byte("one")))

	require.NoError(t, c1.FlushDB(ctx))
	assert.Equal(t, 0, m.Len(1))
	assert.Equal(t, 1, m.Len(0))

	got, err := c0.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("zero"), got)
}

func TestMemory_ConnectionsShareData(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a := openMemory(t, m, 0)
	b := openMemory(t, m, 0)

	require.NoError(t, a.Set(ctx, "shared", []byte("1")))
	got, err := b.Get(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)
}

func TestMemory_ScanPages(t *testing.T) {
	ctx := context.Background()
	c := openMemory(t, NewMemory(), 0)

	for i := 0; i < 25; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("ns:%02d", i), nil))
	}
	require.NoError(t, c.Set(ctx, "other", nil))

	var (
		cursor uint64
		seen   []string
		rounds int
	)
	for {
		keys, next, err := c.Scan(ctx, cursor, "ns:*", 10)
		require.NoError(t, err)
		seen = append(seen, keys...)
		rounds++
		if next == 0 {
			break
		}
		cursor = next
	}
	assert.Len(t, seen, 25)
	assert.Equal(t, 3, rounds)
	assert.NotContains(t, seen, "other")
}

func TestMemory_ScanMayReturnEmptyPages(t *testing.T) {
	ctx := context.Background()
	c := openMemory(t, NewMemory(), 0)

	for i := 0; i < 5; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("a%d", i), nil))
	}
	require.NoError(t, c.Set(ctx, "z", nil))

	var (
		cursor  uint64
		matches []string
		empty   int
	)
	for {
		keys, next, err := c.Scan(ctx, cursor, "z*", 1)
		require.NoError(t, err)
		if len(keys) == 0 {
			empty++
		}
		matches = append(matches, keys...)
		if next == 0 {
			break
		}
		cursor = next
	}
	assert.Equal(t, []string{"z"}, matches)
	assert.Equal(t, 5, empty)
}

func TestMemory_ScanSurvivesDeletes(t *testing.T) {
	ctx := context.Background()
	c := openMemory(t, NewMemory(), 0)

	for i := 0; i < 40; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("k%02d", i), nil))
	}

	var (
		cursor uint64
		seen   int
	)
	for {
		keys, next, err := c.Scan(ctx, cursor, "*", 10)
		require.NoError(t, err)
		seen += len(keys)
		_, err = c.Del(ctx, keys...)
		require.NoError(t, err)
		if next == 0 {
			break
		}
		cursor = next
	}
	assert.Equal(t, 40, seen)
}

func TestMemory_ScanEscapedPattern(t *testing.T) {
	ctx := context.Background()
	c := openMemory(t, NewMemory(), 0)

	require.NoError(t, c.Set(ctx, "a*b:1", nil))
	require.NoError(t, c.Set(ctx, "axb:1", nil))

	keys, _, err := c.Scan(ctx, 0, globEscape("a*b:")+"*", 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"a*b:1"}, keys)
}

func TestMemory_Keys(t *testing.T) {
	ctx := context.Background()
	c := openMemory(t, NewMemory(), 0)

	for _, k := range []string{"b", "a", "c"} {
		require.NoError(t, c.Set(ctx, k, nil))
	}
	keys, err := c.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestMemory_ExecAppliesAllWrites(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	c := openMemory(t, m, 0)

	err := c.Exec(ctx, func(tx Tx) error {
		tx.Set("x", []byte("1"))
		tx.Set("y", []byte("2"))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len(0))
}

func TestMemory_ExecAbortWritesNothing(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	c := openMemory(t, m, 0)

	boom := errors.New("boom")
	err := c.Exec(ctx, func(tx Tx) error {
		tx.Set("x", []byte("1"))
		return boom
	})
	assert.ErrorIs(t, err, ErrTxAborted)
	assert.Equal(t, 0, m.Len(0))
}

func TestMemory_ClosedConnection(t *testing.T) {
	ctx := context.Background()
	c := openMemory(t, NewMemory(), 0)
	require.NoError(t, c.Close())

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.ErrorIs(t, c.Set(ctx, "k", nil), ErrBackendUnavailable)
	assert.ErrorIs(t, c.Save(ctx), ErrBackendUnavailable)
	_, _, err = c.Scan(ctx, 0, "*", 10)
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestMemory_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemory().Open(ctx, Endpoint{})
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestMemory_SaveCounter(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	c := openMemory(t, m, 0)

	require.NoError(t, c.Save(ctx))
	require.NoError(t, c.Save(ctx))
	assert.Equal(t, int64(2), m.Saves())
}

func TestMemory_Concurrency(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	c := openMemory(t, m, 0)

	const workers = 50
	const perWorker = 100

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := fmt.Sprintf("w%d:%d", id, i)
				if err := c.Set(ctx, key, []byte("v")); err != nil {
					t.Errorf("set %s: %v", key, err)
					return
				}
				if _, err := c.Get(ctx, key); err != nil {
					t.Errorf("get %s: %v", key, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, workers*perWorker, m.Len(0))
}
