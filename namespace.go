package typedkv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/khicago/typedkv/codec"
)

const (
	defaultClearTimeout     = 10 * time.Second
	defaultClearConcurrency = 8
	defaultScanPage         = 100
)

// namespace implements size, clear and key enumeration for one prefix. They
// pick a strategy from the capabilities the connection declares: a server-side
// pattern scan when available, otherwise a full key listing filtered here.
type namespace struct {
	prefix      string
	keyType     codec.Type
	scanCount   int64
	timeout     time.Duration
	concurrency int
}

func (ns namespace) pattern() string {
	return globEscape(ns.prefix) + "*"
}

// lister returns the key listing, refusing the client-side filter for key
// types whose encoded form is not text.
func (ns namespace) lister(conn Conn) (KeyLister, error) {
	kl, ok := conn.(KeyLister)
	if !ok {
		return nil, fmt.Errorf("%w: backend can neither scan nor list keys", ErrUnsupportedOperation)
	}
	if ns.prefix != "" && ns.keyType.Kind() != codec.KindText {
		return nil, fmt.Errorf("%w: prefix-scoped listing of %s keys needs a backend with pattern scan",
			ErrUnsupportedOperation, ns.keyType)
	}
	return kl, nil
}

// eachPage calls fn with every non-empty page of physical keys under the prefix.
func (ns namespace) eachPage(ctx context.Context, conn Conn, fn func(page []string) error) error {
	if sc, ok := conn.(Scanner); ok {
		match := ns.pattern()
		var cursor uint64
		for {
			keys, next, err := sc.Scan(ctx, cursor, match, ns.scanCount)
			if err != nil {
				return err
			}
			// The backend's pattern is trusted only as a pre-filter.
			page := keys[:0]
			for _, k := range keys {
				if strings.HasPrefix(k, ns.prefix) {
					page = append(page, k)
				}
			}
			if len(page) > 0 {
				if err := fn(page); err != nil {
					return err
				}
			}
			if next == 0 {
				return nil
			}
			cursor = next
		}
	}

	kl, err := ns.lister(conn)
	if err != nil {
		return err
	}
	all, err := kl.Keys(ctx)
	if err != nil {
		return err
	}
	var page []string
	for _, k := range all {
		if strings.HasPrefix(k, ns.prefix) {
			page = append(page, k)
		}
	}
	if len(page) == 0 {
		return nil
	}
	return fn(page)
}

func (ns namespace) size(ctx context.Context, conn Conn) (int64, error) {
	if ns.prefix == "" {
		return conn.DBSize(ctx)
	}
	var n int64
	err := ns.eachPage(ctx, conn, func(page []string) error {
		n += int64(len(page))
		return nil
	})
	return n, err
}

func (ns namespace) keys(ctx context.Context, conn Conn) ([]string, error) {
	var keys []string
	err := ns.eachPage(ctx, conn, func(page []string) error {
		keys = append(keys, page...)
		return nil
	})
	return keys, err
}

// clear deletes the namespace. With bounded set, the whole plan (scan, page
// dispatch and deletes) runs under a deadline of ns.timeout; Scan and Del see
// the deadline through ctx.
func (ns namespace) clear(ctx context.Context, conn Conn, bounded bool) error {
	if ns.prefix == "" {
		return conn.FlushDB(ctx)
	}
	if bounded {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ns.timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() { done <- ns.deletePages(ctx, conn) }()

	if !bounded {
		return <-done
	}
	select {
	case err := <-done:
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ns.timedOut()
		}
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ns.timedOut()
		}
		return fmt.Errorf("%w: %w", ErrClearIncomplete, ctx.Err())
	}
}

func (ns namespace) timedOut() error {
	return fmt.Errorf("%w: still running after %s", ErrClearIncomplete, ns.timeout)
}

// deletePages scans the namespace and deletes each page, at most
// ns.concurrency pages at a time. Dispatch stops once ctx is done.
func (ns namespace) deletePages(ctx context.Context, conn Conn) error {
	var g errgroup.Group
	if ns.concurrency > 0 {
		g.SetLimit(ns.concurrency)
	}
	scanErr := ns.eachPage(ctx, conn, func(page []string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		keys := append([]string(nil), page...)
		g.Go(func() error {
			_, err := conn.Del(ctx, keys...)
			return err
		})
		return nil
	})
	delErr := g.Wait()

	if scanErr != nil {
		return scanErr
	}
	if delErr != nil {
		return fmt.Errorf("%w: %w", ErrClearIncomplete, delErr)
	}
	return nil
}

// globEscape quotes the glob metacharacters of a literal prefix.
func globEscape(s string) string {
	if !strings.ContainsAny(s, `*?[]{}\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '{', '}', '\\':
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
