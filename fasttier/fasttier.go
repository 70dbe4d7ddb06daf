// Package fasttier wraps a memcached-protocol cluster client with the
// TTL normalization and error-classification rules cacheandra's
// Coordinator depends on. It is the only package that inspects raw
// protocol-client errors; everything above it branches on the small
// taxonomy Classify produces.
package fasttier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/tellybug/cacheandra/log"
)

// maxRelativeTTL is the memcached-convention ceiling (30 days) beyond
// which a relative expiration must be submitted as an absolute
// wall-clock timestamp instead.
const maxRelativeTTL = 30 * 24 * time.Hour

// Class is the small taxonomy every Tier call is mapped onto.
type Class int

const (
	ClassNone Class = iota
	ClassMiss
	ClassNotFound
	ClassNodeDisabledRetry
	ClassNodeDead
	ClassOther
)

func (c Class) String() string {
	switch c {
	case ClassMiss:
		return "miss"
	case ClassNotFound:
		return "not_found"
	case ClassNodeDisabledRetry:
		return "node_disabled_retry"
	case ClassNodeDead:
		return "node_dead"
	case ClassOther:
		return "other"
	default:
		return "none"
	}
}

// ClassifiedError carries the taxonomy class alongside the underlying
// client error for logging.
type ClassifiedError struct {
	Class Class
	Err   error
}

func (e *ClassifiedError) Error() string {
	if e.Err == nil {
		return e.Class.String()
	}
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

var (
	// ErrMiss reports that a key was not present.
	ErrMiss = &ClassifiedError{Class: ClassMiss}
	// ErrNotFound reports an incr/decr against an absent key.
	ErrNotFound = &ClassifiedError{Class: ClassNotFound}
	// ErrNodeDisabledRetry reports a node temporarily disabled by the
	// client after a run of failures; callers should back off and retry.
	ErrNodeDisabledRetry = &ClassifiedError{Class: ClassNodeDisabledRetry}
	// ErrNodeDead reports a node considered permanently unreachable for
	// this call.
	ErrNodeDead = &ClassifiedError{Class: ClassNodeDead}
	// ErrOther is every other failure the classifier does not recognize.
	ErrOther = &ClassifiedError{Class: ClassOther}
)

// Classify maps a raw gomemcache/network error onto the taxonomy.
// isIncrDecr distinguishes the NotFound (incr/decr on an absent key)
// case from the ordinary Miss case, per spec.
func Classify(err error, isIncrDecr bool) *ClassifiedError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, memcache.ErrCacheMiss):
		if isIncrDecr {
			return &ClassifiedError{Class: ClassNotFound, Err: err}
		}
		return &ClassifiedError{Class: ClassMiss, Err: err}
	case errors.Is(err, memcache.ErrNotStored):
		return &ClassifiedError{Class: ClassMiss, Err: err}
	case errors.Is(err, memcache.ErrNoServers):
		return &ClassifiedError{Class: ClassNodeDead, Err: err}
	case isTimeout(err):
		return &ClassifiedError{Class: ClassNodeDisabledRetry, Err: err}
	case isDeadConnection(err):
		return &ClassifiedError{Class: ClassNodeDead, Err: err}
	default:
		return &ClassifiedError{Class: ClassOther, Err: err}
	}
}

func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

func isDeadConnection(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	return strings.Contains(err.Error(), "connection refused")
}

// Tier is a thin, stateful wrapper over a memcached-protocol cluster
// client. bradfitz/gomemcache's Client is documented safe for
// concurrent use by multiple goroutines, so — per the "acceptable when
// the client is reentrant" carve-out — Tier keeps a single shared
// handle rather than a thread-local one.
type Tier struct {
	client         *memcache.Client
	defaultTimeout time.Duration
}

// New builds a client for a memcached cluster; no connection is made
// until the first call. servers must be non-empty; the "no
// fast tier configured" case is handled by the caller (an empty server
// list there means no Tier is constructed at all).
func New(servers []string, defaultTimeout time.Duration) (*Tier, error) {
	if len(servers) == 0 {
		return nil, errors.New("fasttier: no servers configured")
	}
	return &Tier{
		client:         memcache.New(servers...),
		defaultTimeout: defaultTimeout,
	}, nil
}

// SetOptions lets callers tune pool-level knobs on the underlying
// client without the Coordinator knowing they exist.
func (t *Tier) SetOptions(maxIdleConns int, timeout time.Duration) {
	if maxIdleConns > 0 {
		t.client.MaxIdleConns = maxIdleConns
	}
	if timeout > 0 {
		t.client.Timeout = timeout
	}
}

func (t *Tier) normalizeTTL(timeout time.Duration) int32 {
	if timeout <= 0 {
		timeout = t.defaultTimeout
	}
	secs := int64(timeout / time.Second)
	if timeout > maxRelativeTTL {
		secs = time.Now().Unix() + secs
	}
	return int32(secs)
}

// Get returns the raw bytes stored for key, or ErrMiss.
func (t *Tier) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	item, err := t.client.Get(key)
	if err != nil {
		return nil, Classify(err, false)
	}
	return item.Value, nil
}

// GetMulti returns every key found among keys; missing keys are simply
// absent from the result map, per memcached multi-get semantics.
func (t *Tier) GetMulti(ctx context.Context, keys []string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}
	items, err := t.client.GetMulti(keys)
	if err != nil {
		return nil, Classify(err, false)
	}
	out := make(map[string][]byte, len(items))
	for k, item := range items {
		out[k] = item.Value
	}
	return out, nil
}

// Set unconditionally stores value under key with the normalized TTL.
func (t *Tier) Set(ctx context.Context, key string, value []byte, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := t.client.Set(&memcache.Item{Key: key, Value: value, Expiration: t.normalizeTTL(timeout)})
	if err != nil {
		return Classify(err, false)
	}
	return nil
}

// SetMulti stores every item in values. gomemcache has no native
// multi-set verb, so this issues one Set per key; a failure part-way
// through still reports which key failed via the wrapped error.
func (t *Tier) SetMulti(ctx context.Context, values map[string][]byte, timeout time.Duration) error {
	for k, v := range values {
		if err := t.Set(ctx, k, v, timeout); err != nil {
			return fmt.Errorf("fasttier: set_multi key %q: %w", k, err)
		}
	}
	return nil
}

// Add inserts value under key iff no live entry exists. A Miss-class
// error (via ErrMiss) means "not inserted" rather than signalling
// failure.
func (t *Tier) Add(ctx context.Context, key string, value []byte, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := t.client.Add(&memcache.Item{Key: key, Value: value, Expiration: t.normalizeTTL(timeout)})
	if err != nil {
		return Classify(err, false)
	}
	return nil
}

// Delete removes key. A Miss is not an error for delete.
func (t *Tier) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := t.client.Delete(key)
	if err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		return Classify(err, false)
	}
	return nil
}

// DeleteMulti removes every key in keys, best-effort.
func (t *Tier) DeleteMulti(ctx context.Context, keys []string) error {
	for _, k := range keys {
		if err := t.Delete(ctx, k); err != nil {
			cerr := Classify(err, false)
			if cerr.Class == ClassNodeDisabledRetry || cerr.Class == ClassNodeDead {
				return err
			}
			log.Debug("fasttier: delete_multi key failed, continuing", "key", k, "err", err)
		}
	}
	return nil
}

// Incr adds delta to the counter stored at key.
func (t *Tier) Incr(ctx context.Context, key string, delta uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	v, err := t.client.Increment(key, delta)
	if err != nil {
		return 0, Classify(err, true)
	}
	return v, nil
}

// Decr subtracts delta from the counter stored at key.
func (t *Tier) Decr(ctx context.Context, key string, delta uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	v, err := t.client.Decrement(key, delta)
	if err != nil {
		return 0, Classify(err, true)
	}
	return v, nil
}

// FlushAll empties every node in the cluster.
func (t *Tier) FlushAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.client.FlushAll(); err != nil {
		return Classify(err, false)
	}
	return nil
}

// Close is a no-op: gomemcache's Client exposes no teardown method, its
// connections live in an internal freelist with no public Close/Shutdown
// hook to call. Close exists so Tier satisfies the same lifecycle shape
// as the durable tier, not because there is a pool to drain here.
func (t *Tier) Close() error {
	return nil
}
