// Package boltdriver keeps typedkv data in a local bbolt file. Each numbered
// database is a bucket. Connections can list every key but have no pattern
// scan, so prefix-scoped Size, Keys and Clear work only for text keys.
//
// Endpoints are URLs of the form bolt:///path/to/file.db?db=N.
package boltdriver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/khicago/typedkv"
)

const (
	defaultTimeout  = time.Second
	defaultFileMode = 0o600
)

// Driver opens bbolt files. Connections to the same file opened through one
// Driver share a single *bolt.DB, since bbolt locks the file per process.
type Driver struct {
	timeout time.Duration
	mode    fs.FileMode

	mu    sync.Mutex
	files map[string]*handle
}

type handle struct {
	db   *bolt.DB
	refs int
}

// Option customizes a Driver.
type Option func(*Driver)

// WithTimeout bounds waiting for the file lock held by another process.
func WithTimeout(d time.Duration) Option {
	return func(dr *Driver) {
		if d > 0 {
			dr.timeout = d
		}
	}
}

// WithFileMode sets the permissions of newly created files.
func WithFileMode(mode fs.FileMode) Option {
	return func(dr *Driver) {
		dr.mode = mode
	}
}

// New returns a bbolt driver.
func New(opts ...Option) *Driver {
	d := &Driver{
		timeout: defaultTimeout,
		mode:    defaultFileMode,
		files:   make(map[string]*handle),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Path extracts the file path of a bolt:// or file:// endpoint URL.
func Path(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", typedkv.ErrInvalidConfiguration, err)
	}
	if u.Scheme != "bolt" && u.Scheme != "file" {
		return "", fmt.Errorf("%w: boltdriver needs a bolt:// url, got scheme %q", typedkv.ErrInvalidConfiguration, u.Scheme)
	}
	path := u.Host + u.Path
	if path == "" {
		return "", fmt.Errorf("%w: %q names no file", typedkv.ErrInvalidConfiguration, rawURL)
	}
	return path, nil
}

func bucketName(db int) []byte {
	return []byte("db" + strconv.Itoa(db))
}

// Open opens (creating when absent) the file named by ep.URL and the bucket of
// database ep.DB.
func (d *Driver) Open(ctx context.Context, ep typedkv.Endpoint) (typedkv.Conn, error) {
	if ep.URL == "" {
		return nil, fmt.Errorf("%w: boltdriver needs a url", typedkv.ErrInvalidConfiguration)
	}
	path, err := Path(ep.URL)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", typedkv.ErrBackendUnavailable, err)
	}
	db, err := d.acquire(path)
	if err != nil {
		return nil, err
	}

	bucket := bucketName(ep.DB)
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		_ = d.release(path)
		return nil, fmt.Errorf("%w: create bucket %s: %v", typedkv.ErrBackendUnavailable, bucket, err)
	}
	return &conn{d: d, path: path, db: db, bucket: bucket}, nil
}

func (d *Driver) acquire(path string) (*bolt.DB, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if h, ok := d.files[path]; ok {
		h.refs++
		return h.db, nil
	}
	db, err := bolt.Open(path, d.mode, &bolt.Options{Timeout: d.timeout})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", typedkv.ErrBackendUnavailable, path, err)
	}
	d.files[path] = &handle{db: db, refs: 1}
	return db, nil
}

func (d *Driver) release(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.files[path]
	if !ok {
		return nil
	}
	h.refs--
	if h.refs > 0 {
		return nil
	}
	delete(d.files, path)
	return h.db.Close()
}

type conn struct {
	d      *Driver
	path   string
	db     *bolt.DB
	bucket []byte
	closed atomic.Bool
}

var (
	_ typedkv.Conn      = (*conn)(nil)
	_ typedkv.KeyLister = (*conn)(nil)
	_ typedkv.Persister = (*conn)(nil)
)

var errClosed = errors.New("connection closed")

func (c *conn) view(ctx context.Context, fn func(b *bolt.Bucket) error) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	return c.wrap(c.db.View(func(tx *bolt.Tx) error {
		return fn(tx.Bucket(c.bucket))
	}))
}

func (c *conn) update(ctx context.Context, fn func(b *bolt.Bucket) error) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	return c.wrap(c.db.Update(func(tx *bolt.Tx) error {
		return fn(tx.Bucket(c.bucket))
	}))
}

func (c *conn) check(ctx context.Context) error {
	if c.closed.Load() {
		return fmt.Errorf("%w: %v", typedkv.ErrBackendUnavailable, errClosed)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", typedkv.ErrBackendUnavailable, err)
	}
	return nil
}

func (c *conn) wrap(err error) error {
	if errors.Is(err, bolt.ErrDatabaseNotOpen) || errors.Is(err, bolt.ErrTimeout) {
		return fmt.Errorf("%w: %s: %v", typedkv.ErrBackendUnavailable, c.path, err)
	}
	return err
}

func (c *conn) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := c.view(ctx, func(b *bolt.Bucket) error {
		v := b.Get([]byte(key))
		if v == nil {
			return typedkv.ErrNotFound
		}
		// Values are only valid for the life of the transaction.
		out = bytes.Clone(v)
		return nil
	})
	return out, err
}

func (c *conn) Set(ctx context.Context, key string, value []byte) error {
	return c.update(ctx, func(b *bolt.Bucket) error {
		return b.Put([]byte(key), nonNil(value))
	})
}

func (c *conn) GetSet(ctx context.Context, key string, value []byte) ([]byte, error) {
	var (
		old   []byte
		found bool
	)
	err := c.update(ctx, func(b *bolt.Bucket) error {
		if v := b.Get([]byte(key)); v != nil {
			old, found = bytes.Clone(v), true
		}
		return b.Put([]byte(key), nonNil(value))
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, typedkv.ErrNotFound
	}
	return old, nil
}

func (c *conn) Del(ctx context.Context, keys ...string) (int64, error) {
	var n int64
	err := c.update(ctx, func(b *bolt.Bucket) error {
		for _, k := range keys {
			if b.Get([]byte(k)) == nil {
				continue
			}
			if err := b.Delete([]byte(k)); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (c *conn) Exists(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := c.view(ctx, func(b *bolt.Bucket) error {
		ok = b.Get([]byte(key)) != nil
		return nil
	})
	return ok, err
}

func (c *conn) DBSize(ctx context.Context) (int64, error) {
	var n int64
	err := c.view(ctx, func(b *bolt.Bucket) error {
		n = int64(b.Stats().KeyN)
		return nil
	})
	return n, err
}

func (c *conn) FlushDB(ctx context.Context) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	return c.wrap(c.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(c.bucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(c.bucket)
		return err
	}))
}

// Exec applies every staged write in one read-write transaction.
func (c *conn) Exec(ctx context.Context, fn func(typedkv.Tx) error) error {
	staged := &tx{}
	if err := fn(staged); err != nil {
		return fmt.Errorf("%w: %v", typedkv.ErrTxAborted, err)
	}
	err := c.update(ctx, func(b *bolt.Bucket) error {
		for _, w := range staged.writes {
			if err := b.Put(w.key, w.value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", typedkv.ErrTxAborted, err)
	}
	return nil
}

// Keys lists every key of the bucket in byte order.
func (c *conn) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := c.view(ctx, func(b *bolt.Bucket) error {
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

// Save fsyncs the file. Commits are already durable unless the database was
// opened with NoSync.
func (c *conn) Save(ctx context.Context) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	return c.wrap(c.db.Sync())
}

func (c *conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.d.release(c.path)
}

type write struct {
	key   []byte
	value []byte
}

type tx struct {
	writes []write
}

func (t *tx) Set(key string, value []byte) {
	t.writes = append(t.writes, write{key: []byte(key), value: nonNil(bytes.Clone(value))})
}

// nonNil maps a nil value to an empty one.
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
