package typedkv

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/khicago/typedkv/codec"
)

// Lookup is a possibly absent value.
type Lookup[V any] struct {
	Value V
	Ok    bool
}

// Store is a typed, prefix-scoped view of a byte-oriented backend.
//
// A Store starts unconnected. Data operations fail with ErrNotConnected until
// Connect succeeds, and again after Close. A closed Store can be connected
// again. Operations may be called from many goroutines; composite operations
// (GetOrLoad, Remove) are not atomic with respect to other writers.
type Store[K comparable, V any] struct {
	codec          *codec.KeyValue[K, V]
	ns             namespace
	endpoint       Endpoint
	driver         Driver
	logger         Logger
	logTag         string
	persistOnClose bool

	sess atomic.Pointer[session]
}

type session struct {
	conn    Conn
	cleanup runtime.Cleanup
}

// New resolves cfg and returns an unconnected Store. K and V must be the Go
// types of the configured key and value types (string for text, int32, int64,
// float64, uuid.UUID, the enum's value type, or any).
func New[K comparable, V any](cfg Config, opts ...Option) (*Store[K, V], error) {
	st := defaultSettings()
	for _, opt := range opts {
		opt(&st)
	}
	res, err := cfg.Resolve(st.registry)
	if err != nil {
		return nil, err
	}
	kv, err := codec.NewKeyValue[K, V](res.Prefix, res.Key, res.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}
	if st.driver == nil {
		st.driver = NewMemory()
	}
	return &Store[K, V]{
		codec: kv,
		ns: namespace{
			prefix:      res.Prefix,
			keyType:     res.Key,
			scanCount:   st.scanCount,
			timeout:     st.clearTimeout,
			concurrency: st.clearConcurrency,
		},
		endpoint:       res.Endpoint,
		driver:         st.driver,
		logger:         st.logger,
		logTag:         st.logTag,
		persistOnClose: st.persistOnClose,
	}, nil
}

func (s *Store[K, V]) logf(level string, ctx context.Context, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if s.logTag != "" {
		msg = s.logTag + " " + msg
	}
	switch level {
	case "info":
		s.logger.Info(ctx, "%s", msg)
	case "warn":
		s.logger.Warn(ctx, "%s", msg)
	case "error":
		s.logger.Error(ctx, "%s", msg)
	case "debug":
		s.logger.Debug(ctx, "%s", msg)
	}
}

func (s *Store[K, V]) fail(ctx context.Context, op string, err error) error {
	s.logf("error", ctx, "%s failed: %v", op, err)
	return err
}

// Prefix returns the configured key prefix.
func (s *Store[K, V]) Prefix() string { return s.codec.Prefix() }

// KeyType returns the descriptor keys are encoded with.
func (s *Store[K, V]) KeyType() codec.Type { return s.codec.KeyType() }

// ValueType returns the descriptor values are encoded with.
func (s *Store[K, V]) ValueType() codec.Type { return s.codec.ValueType() }

// Endpoint returns the backend the store connects to.
func (s *Store[K, V]) Endpoint() Endpoint { return s.endpoint }

// Connected reports whether the store holds a connection.
func (s *Store[K, V]) Connected() bool { return s.sess.Load() != nil }

// Connect opens the backend connection. It fails with ErrAlreadyConnected if
// the store is already connected, leaving that connection in place.
func (s *Store[K, V]) Connect(ctx context.Context) error {
	if s.sess.Load() != nil {
		return ErrAlreadyConnected
	}
	s.logf("info", ctx, "connecting backend %s", s.endpoint)
	conn, err := s.driver.Open(ctx, s.endpoint)
	if err != nil {
		return s.fail(ctx, "Connect", err)
	}
	sess := &session{conn: conn}
	sess.cleanup = runtime.AddCleanup(s, closeLeaked, conn)
	if !s.sess.CompareAndSwap(nil, sess) {
		sess.cleanup.Stop()
		_ = conn.Close()
		return ErrAlreadyConnected
	}
	return nil
}

// closeLeaked releases the connection of a Store dropped without Close.
func closeLeaked(conn Conn) {
	_ = conn.Close()
}

// Close persists (unless disabled with WithPersistOnClose), then releases the
// connection. The store is unconnected afterwards even if an error is
// returned. Closing an unconnected store is a no-op.
func (s *Store[K, V]) Close(ctx context.Context) error {
	sess := s.sess.Swap(nil)
	if sess == nil {
		return nil
	}
	sess.cleanup.Stop()
	s.logf("info", ctx, "disconnecting backend %s", s.endpoint)

	var errs []error
	if p, ok := sess.conn.(Persister); ok && s.persistOnClose {
		// Persist through both the async and the sync path.
		pending := Go(ctx, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, p.Save(ctx)
		})
		if err := p.Save(ctx); err != nil {
			errs = append(errs, fmt.Errorf("save: %w", err))
		}
		if _, err := pending.Result(); err != nil {
			errs = append(errs, fmt.Errorf("async save: %w", err))
		}
	}
	if err := sess.conn.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return s.fail(ctx, "Close", err)
	}
	return nil
}

// Session connects, runs fn and always closes, returning the first error.
func (s *Store[K, V]) Session(ctx context.Context, fn func(*Store[K, V]) error) (err error) {
	if err := s.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(ctx); err == nil {
			err = cerr
		}
	}()
	return fn(s)
}

func (s *Store[K, V]) conn() (Conn, error) {
	sess := s.sess.Load()
	if sess == nil {
		return nil, ErrNotConnected
	}
	return sess.conn, nil
}

// Get returns the value stored under key.
func (s *Store[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	conn, err := s.conn()
	if err != nil {
		var zero V
		return zero, false, err
	}
	l, err := s.get(ctx, conn, key)
	return l.Value, l.Ok, err
}

// GetAsync is the asynchronous form of Get.
func (s *Store[K, V]) GetAsync(ctx context.Context, key K) *Future[Lookup[V]] {
	conn, err := s.conn()
	if err != nil {
		return failed[Lookup[V]](err)
	}
	return Go(ctx, func(ctx context.Context) (Lookup[V], error) {
		return s.get(ctx, conn, key)
	})
}

func (s *Store[K, V]) get(ctx context.Context, conn Conn, key K) (Lookup[V], error) {
	raw, err := s.codec.EncodeKey(key)
	if err != nil {
		return Lookup[V]{}, err
	}
	b, err := conn.Get(ctx, raw)
	if errors.Is(err, ErrNotFound) {
		return Lookup[V]{}, nil
	}
	if err != nil {
		return Lookup[V]{}, s.fail(ctx, fmt.Sprintf("Get %v", key), err)
	}
	v, err := s.codec.DecodeValue(b)
	if err != nil {
		return Lookup[V]{}, s.fail(ctx, fmt.Sprintf("Get %v", key), err)
	}
	return Lookup[V]{Value: v, Ok: true}, nil
}

// GetOrLoad returns the value stored under key. On a miss it calls loader and
// stores its result before returning it; a loader error is returned without
// writing. Two callers missing the same key concurrently may both load and
// both write, the last write winning.
func (s *Store[K, V]) GetOrLoad(ctx context.Context, key K, loader func(context.Context, K) (V, error)) (V, error) {
	conn, err := s.conn()
	if err != nil {
		var zero V
		return zero, err
	}
	return s.getOrLoad(ctx, conn, key, loader)
}

// GetOrLoadAsync is the asynchronous form of GetOrLoad.
func (s *Store[K, V]) GetOrLoadAsync(ctx context.Context, key K, loader func(context.Context, K) (V, error)) *Future[V] {
	conn, err := s.conn()
	if err != nil {
		return failed[V](err)
	}
	return Go(ctx, func(ctx context.Context) (V, error) {
		return s.getOrLoad(ctx, conn, key, loader)
	})
}

func (s *Store[K, V]) getOrLoad(ctx context.Context, conn Conn, key K, loader func(context.Context, K) (V, error)) (V, error) {
	l, err := s.get(ctx, conn, key)
	if err != nil || l.Ok {
		return l.Value, err
	}
	v, err := loader(ctx, key)
	if err != nil {
		return v, err
	}
	raw, err := s.codec.EncodeKey(key)
	if err != nil {
		return v, err
	}
	b, err := s.codec.EncodeValue(v)
	if err != nil {
		return v, err
	}
	if err := conn.Set(ctx, raw, b); err != nil {
		return v, s.fail(ctx, fmt.Sprintf("GetOrLoad %v", key), err)
	}
	return v, nil
}

// Put stores value under key and returns the value it replaced, atomically.
func (s *Store[K, V]) Put(ctx context.Context, key K, value V) (V, bool, error) {
	conn, err := s.conn()
	if err != nil {
		var zero V
		return zero, false, err
	}
	l, err := s.put(ctx, conn, key, value)
	return l.Value, l.Ok, err
}

// PutAsync is the asynchronous form of Put.
func (s *Store[K, V]) PutAsync(ctx context.Context, key K, value V) *Future[Lookup[V]] {
	conn, err := s.conn()
	if err != nil {
		return failed[Lookup[V]](err)
	}
	return Go(ctx, func(ctx context.Context) (Lookup[V], error) {
		return s.put(ctx, conn, key, value)
	})
}

func (s *Store[K, V]) put(ctx context.Context, conn Conn, key K, value V) (Lookup[V], error) {
	raw, err := s.codec.EncodeKey(key)
	if err != nil {
		return Lookup[V]{}, err
	}
	b, err := s.codec.EncodeValue(value)
	if err != nil {
		return Lookup[V]{}, err
	}
	old, err := conn.GetSet(ctx, raw, b)
	if errors.Is(err, ErrNotFound) {
		return Lookup[V]{}, nil
	}
	if err != nil {
		return Lookup[V]{}, s.fail(ctx, fmt.Sprintf("Put %v", key), err)
	}
	prev, err := s.codec.DecodeValue(old)
	if err != nil {
		return Lookup[V]{}, s.fail(ctx, fmt.Sprintf("Put %v", key), err)
	}
	return Lookup[V]{Value: prev, Ok: true}, nil
}

// Remove deletes key and returns the value it held. The read and the delete
// are separate commands.
func (s *Store[K, V]) Remove(ctx context.Context, key K) (V, bool, error) {
	conn, err := s.conn()
	if err != nil {
		var zero V
		return zero, false, err
	}
	l, err := s.remove(ctx, conn, key)
	return l.Value, l.Ok, err
}

// RemoveAsync is the asynchronous form of Remove.
func (s *Store[K, V]) RemoveAsync(ctx context.Context, key K) *Future[Lookup[V]] {
	conn, err := s.conn()
	if err != nil {
		return failed[Lookup[V]](err)
	}
	return Go(ctx, func(ctx context.Context) (Lookup[V], error) {
		return s.remove(ctx, conn, key)
	})
}

func (s *Store[K, V]) remove(ctx context.Context, conn Conn, key K) (Lookup[V], error) {
	l, err := s.get(ctx, conn, key)
	if err != nil || !l.Ok {
		return l, err
	}
	raw, err := s.codec.EncodeKey(key)
	if err != nil {
		return Lookup[V]{}, err
	}
	if _, err := conn.Del(ctx, raw); err != nil {
		return Lookup[V]{}, s.fail(ctx, fmt.Sprintf("Remove %v", key), err)
	}
	return l, nil
}

// GetAll returns the lookup of key as a one-element slice, for callers written
// against multi-valued stores. An absent key yields a single Lookup with Ok
// unset.
func (s *Store[K, V]) GetAll(ctx context.Context, key K) ([]Lookup[V], error) {
	conn, err := s.conn()
	if err != nil {
		return nil, err
	}
	l, err := s.get(ctx, conn, key)
	if err != nil {
		return nil, err
	}
	return []Lookup[V]{l}, nil
}

// GetAllAsync is the asynchronous form of GetAll.
func (s *Store[K, V]) GetAllAsync(ctx context.Context, key K) *Future[[]Lookup[V]] {
	conn, err := s.conn()
	if err != nil {
		return failed[[]Lookup[V]](err)
	}
	return Go(ctx, func(ctx context.Context) ([]Lookup[V], error) {
		l, err := s.get(ctx, conn, key)
		if err != nil {
			return nil, err
		}
		return []Lookup[V]{l}, nil
	})
}

// ContainsKey reports whether key has a value, without transferring it.
func (s *Store[K, V]) ContainsKey(ctx context.Context, key K) (bool, error) {
	conn, err := s.conn()
	if err != nil {
		return false, err
	}
	return s.containsKey(ctx, conn, key)
}

// ContainsKeyAsync is the asynchronous form of ContainsKey.
func (s *Store[K, V]) ContainsKeyAsync(ctx context.Context, key K) *Future[bool] {
	conn, err := s.conn()
	if err != nil {
		return failed[bool](err)
	}
	return Go(ctx, func(ctx context.Context) (bool, error) {
		return s.containsKey(ctx, conn, key)
	})
}

func (s *Store[K, V]) containsKey(ctx context.Context, conn Conn, key K) (bool, error) {
	raw, err := s.codec.EncodeKey(key)
	if err != nil {
		return false, err
	}
	ok, err := conn.Exists(ctx, raw)
	if err != nil {
		return false, s.fail(ctx, fmt.Sprintf("ContainsKey %v", key), err)
	}
	return ok, nil
}

// Size counts the keys of the namespace: the whole database without a
// prefix, otherwise every key carrying the prefix.
func (s *Store[K, V]) Size(ctx context.Context) (int64, error) {
	conn, err := s.conn()
	if err != nil {
		return 0, err
	}
	n, err := s.ns.size(ctx, conn)
	if err != nil {
		return 0, s.fail(ctx, "Size", err)
	}
	return n, nil
}

// SizeAsync is the asynchronous form of Size.
func (s *Store[K, V]) SizeAsync(ctx context.Context) *Future[int64] {
	conn, err := s.conn()
	if err != nil {
		return failed[int64](err)
	}
	return Go(ctx, func(ctx context.Context) (int64, error) {
		n, err := s.ns.size(ctx, conn)
		if err != nil {
			return 0, s.fail(ctx, "Size", err)
		}
		return n, nil
	})
}

// Keys returns every key of the namespace. A key that does not decode under
// the configured key type fails the call with ErrMalformedKey.
func (s *Store[K, V]) Keys(ctx context.Context) ([]K, error) {
	conn, err := s.conn()
	if err != nil {
		return nil, err
	}
	return s.keys(ctx, conn)
}

// KeysAsync is the asynchronous form of Keys.
func (s *Store[K, V]) KeysAsync(ctx context.Context) *Future[[]K] {
	conn, err := s.conn()
	if err != nil {
		return failed[[]K](err)
	}
	return Go(ctx, func(ctx context.Context) ([]K, error) {
		return s.keys(ctx, conn)
	})
}

func (s *Store[K, V]) keys(ctx context.Context, conn Conn) ([]K, error) {
	raws, err := s.ns.keys(ctx, conn)
	if err != nil {
		return nil, s.fail(ctx, "Keys", err)
	}
	keys := make([]K, 0, len(raws))
	for _, raw := range raws {
		k, err := s.codec.DecodeKey(raw)
		if err != nil {
			return nil, s.fail(ctx, "Keys", err)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// Clear deletes the namespace: the whole database without a prefix, otherwise
// every key carrying the prefix. A prefix-scoped clear fails with
// ErrClearIncomplete unless the scan and every delete finish within the clear
// timeout.
func (s *Store[K, V]) Clear(ctx context.Context) error {
	conn, err := s.conn()
	if err != nil {
		return err
	}
	if err := s.ns.clear(ctx, conn, true); err != nil {
		return s.fail(ctx, "Clear", err)
	}
	return nil
}

// ClearAsync is the asynchronous form of Clear. Page deletes are issued
// without waiting on one another and the Future completes once all of them
// have; ctx rather than the clear timeout bounds the wait.
func (s *Store[K, V]) ClearAsync(ctx context.Context) *Future[struct{}] {
	conn, err := s.conn()
	if err != nil {
		return failed[struct{}](err)
	}
	return Go(ctx, func(ctx context.Context) (struct{}, error) {
		if err := s.ns.clear(ctx, conn, false); err != nil {
			return struct{}{}, s.fail(ctx, "ClearAsync", err)
		}
		return struct{}{}, nil
	})
}

// AsMap returns a map-shaped view sharing this store's codec and connection.
func (s *Store[K, V]) AsMap() *MapView[K, V] {
	return &MapView[K, V]{s: s}
}
