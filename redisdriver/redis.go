// Package redisdriver connects typedkv stores to a Redis server through
// go-redis. Connections offer the cursor scan and SAVE capabilities.
package redisdriver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/khicago/typedkv"
)

// Driver opens go-redis clients.
type Driver struct {
	dialTimeout time.Duration
	poolSize    int
	clientName  string
}

// Option customizes a Driver.
type Option func(*Driver)

// WithDialTimeout bounds establishing new connections.
func WithDialTimeout(d time.Duration) Option {
	return func(dr *Driver) {
		dr.dialTimeout = d
	}
}

// WithPoolSize caps the connections kept per store.
func WithPoolSize(n int) Option {
	return func(dr *Driver) {
		dr.poolSize = n
	}
}

// WithClientName sets the name reported by CLIENT LIST.
func WithClientName(name string) Option {
	return func(dr *Driver) {
		dr.clientName = name
	}
}

// New returns a Redis driver.
func New(opts ...Option) *Driver {
	d := &Driver{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Driver) options(ep typedkv.Endpoint) (*redis.Options, error) {
	var opt *redis.Options
	if ep.URL != "" {
		var err error
		if opt, err = redis.ParseURL(ep.URL); err != nil {
			return nil, fmt.Errorf("%w: %v", typedkv.ErrInvalidConfiguration, err)
		}
	} else {
		opt = &redis.Options{
			Addr:     ep.Addr(),
			Password: ep.Password,
			DB:       ep.DB,
		}
	}
	if d.dialTimeout > 0 {
		opt.DialTimeout = d.dialTimeout
	}
	if d.poolSize > 0 {
		opt.PoolSize = d.poolSize
	}
	if d.clientName != "" {
		opt.ClientName = d.clientName
	}
	return opt, nil
}

// Open connects to ep and verifies the connection with PING.
func (d *Driver) Open(ctx context.Context, ep typedkv.Endpoint) (typedkv.Conn, error) {
	opt, err := d.options(ep)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: ping %s: %v", typedkv.ErrBackendUnavailable, ep, err)
	}
	return &conn{c: client}, nil
}

type conn struct {
	c *redis.Client
}

var (
	_ typedkv.Conn      = (*conn)(nil)
	_ typedkv.Scanner   = (*conn)(nil)
	_ typedkv.Persister = (*conn)(nil)
)

// wrap maps go-redis failures onto the typedkv sentinels. Errors the server
// replied with pass through; anything else is a transport failure.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return typedkv.ErrNotFound
	}
	var rerr redis.Error
	if errors.As(err, &rerr) {
		return fmt.Errorf("redisdriver: %s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", typedkv.ErrBackendUnavailable, op, err)
}

func (c *conn) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.c.Get(ctx, key).Bytes()
	return b, wrap("GET", err)
}

func (c *conn) Set(ctx context.Context, key string, value []byte) error {
	return wrap("SET", c.c.Set(ctx, key, value, 0).Err())
}

func (c *conn) GetSet(ctx context.Context, key string, value []byte) ([]byte, error) {
	b, err := c.c.GetSet(ctx, key, value).Bytes()
	return b, wrap("GETSET", err)
}

func (c *conn) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := c.c.Del(ctx, keys...).Result()
	return n, wrap("DEL", err)
}

func (c *conn) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.c.Exists(ctx, key).Result()
	return n > 0, wrap("EXISTS", err)
}

func (c *conn) DBSize(ctx context.Context) (int64, error) {
	n, err := c.c.DBSize(ctx).Result()
	return n, wrap("DBSIZE", err)
}

func (c *conn) FlushDB(ctx context.Context) error {
	return wrap("FLUSHDB", c.c.FlushDB(ctx).Err())
}

// Exec runs fn inside MULTI/EXEC.
func (c *conn) Exec(ctx context.Context, fn func(typedkv.Tx) error) error {
	var staged error
	_, err := c.c.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if err := fn(tx{ctx: ctx, pipe: pipe}); err != nil {
			staged = err
			return err
		}
		return nil
	})
	switch {
	case staged != nil:
		return fmt.Errorf("%w: %v", typedkv.ErrTxAborted, staged)
	case err != nil:
		return fmt.Errorf("%w: %w", typedkv.ErrTxAborted, wrap("EXEC", err))
	}
	return nil
}

func (c *conn) Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	keys, next, err := c.c.Scan(ctx, cursor, match, count).Result()
	return keys, next, wrap("SCAN", err)
}

// Save issues a blocking SAVE.
func (c *conn) Save(ctx context.Context) error {
	return wrap("SAVE", c.c.Save(ctx).Err())
}

func (c *conn) Close() error {
	return c.c.Close()
}

type tx struct {
	ctx  context.Context
	pipe redis.Pipeliner
}

func (t tx) Set(key string, value []byte) {
	t.pipe.Set(t.ctx, key, value, 0)
}
