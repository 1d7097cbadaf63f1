package typedkv

import (
	"context"
	"net"
	"net/url"
	"strconv"
)

// Endpoint locates a backend. When URL is set the other fields are the values
// parsed from it; drivers that understand the URL scheme may use it directly.
type Endpoint struct {
	URL      string
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// String returns the endpoint with the password redacted, for logging.
func (e Endpoint) String() string {
	if e.URL != "" {
		if u, err := url.Parse(e.URL); err == nil {
			return u.Redacted()
		}
		return "<unparseable url>"
	}
	u := url.URL{Scheme: "redis", Host: e.Addr(), Path: "/" + strconv.Itoa(e.DB)}
	if e.Password != "" {
		u.User = url.UserPassword("", e.Password)
		return u.Redacted()
	}
	return u.String()
}

// Driver opens connections to a backing store.
type Driver interface {
	Open(ctx context.Context, ep Endpoint) (Conn, error)
}

// Conn is a byte-addressed connection. Implementations must be safe for
// concurrent use and must wrap transport failures with ErrBackendUnavailable.
type Conn interface {
	// Get returns ErrNotFound when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// GetSet stores value and returns the previous one, or ErrNotFound when
	// there was none. The write happens in both cases.
	GetSet(ctx context.Context, key string, value []byte) ([]byte, error)
	Del(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	// DBSize counts every key of the selected database.
	DBSize(ctx context.Context) (int64, error)
	// FlushDB deletes every key of the selected database.
	FlushDB(ctx context.Context) error
	// Exec runs fn as one MULTI/EXEC transaction. Writes staged on the Tx
	// become visible together or not at all; a transaction that does not
	// commit returns an error wrapping ErrTxAborted.
	Exec(ctx context.Context, fn func(Tx) error) error
	Close() error
}

// Tx stages writes inside Exec.
type Tx interface {
	Set(key string, value []byte)
}

// Scanner is implemented by connections offering a server-side, cursor based
// pattern scan. A returned cursor of zero ends the iteration.
type Scanner interface {
	Scan(ctx context.Context, cursor uint64, match string, count int64) (keys []string, next uint64, err error)
}

// KeyLister is implemented by connections that can only list every key.
type KeyLister interface {
	Keys(ctx context.Context) ([]string, error)
}

// Persister is implemented by connections whose backend has an explicit
// persistence command.
type Persister interface {
	Save(ctx context.Context) error
}
