// Package typedkv provides a typed, prefix-partitioned key/value store on top
// of a byte-oriented backend such as Redis.
//
// # Overview
//
// A Store[K, V] lets callers work with strings, integers, floats, UUIDs and
// enums while the backend only sees bytes, and lets many logical namespaces
// share one physical database by prefixing keys. It separates the typed façade
// (Store) from the storage implementation (Driver and Conn).
//
// # Architecture
//
//  1. codec: type descriptors, their byte layouts, and the prefix codec
//  2. Driver / Conn: byte-level backend contract, with optional Scanner,
//     KeyLister and Persister capabilities
//  3. Store[K, V]: the typed API, synchronous and asynchronous
//
// Every logical key maps to exactly one physical key, prefix ++ encoded key;
// the physical value is the encoded value with no envelope.
//
// # Quick Start
//
//	st, err := typedkv.New[int64, string](typedkv.Config{
//	    URL:    "redis://localhost:6379/0",
//	    Prefix: "ns:test3:",
//	    Key:    "int64",
//	}, typedkv.WithDriver(redisdriver.New()))
//	if err != nil {
//	    return err
//	}
//	if err := st.Connect(ctx); err != nil {
//	    return err
//	}
//	defer st.Close(ctx)
//
//	prev, had, _ := st.Put(ctx, 1, "Str") // atomic get-and-set
//	v, ok, _ := st.Get(ctx, 1)
//
// # Namespaces
//
// With a prefix, Size, Clear and Keys operate on the keys carrying it. They use
// the backend's cursor scan when the connection implements Scanner, and
// otherwise a full key listing filtered client side, which is only offered
// for text keys. Without a prefix they operate on the whole database,
// including keys written by prefixed stores. Prefixes of independently managed
// namespaces must not be prefixes of one another.
//
// # Asynchronous Operations
//
// Every data operation has an ...Async twin returning a *Future. The twin runs
// the same command sequence on its own goroutine:
//
//	f := st.GetOrLoadAsync(ctx, 7, load)
//	v, err := f.Wait(ctx)
//
// # Lifecycle
//
// A Store starts unconnected. Connect fails with ErrAlreadyConnected on a
// connected store; Close persists, disconnects and may be followed by a fresh
// Connect. Session wraps the pair for scoped use.
//
// # Thread Safety
//
// Stores may be shared by goroutines. The store adds no locking of its own:
// GetOrLoad and Remove are read-then-write sequences, so concurrent writers to
// the same key race and the last write wins.
//
// # Error Handling
//
//	_, err := typedkv.New[string, string](typedkv.Config{Key: "nope"})
//	if errors.Is(err, typedkv.ErrInvalidConfiguration) {
//	    // ...
//	}
//
// Available errors: ErrInvalidConfiguration, ErrUnsupportedType,
// ErrUnknownVariant, ErrMalformedKey, ErrUnsupportedOperation,
// ErrNotConnected, ErrAlreadyConnected, ErrBackendUnavailable, ErrTxAborted,
// ErrClearIncomplete.
package typedkv
