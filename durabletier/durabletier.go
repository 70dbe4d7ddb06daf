// Package durabletier wraps a wide-column store (Cassandra/ScyllaDB via
// the CQL protocol) as cacheandra's persistent fallback tier: a blob
// column family with per-row TTL and a counter column family backed by
// the store's native commutative counter type.
package durabletier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"github.com/tellybug/cacheandra/log"
)

// Class is the durable-tier error taxonomy: absence, unreachability, or
// a condition retrying cannot fix.
type Class int

const (
	ClassNone Class = iota
	ClassMiss
	ClassTransient
	ClassFatal
)

func (c Class) String() string {
	switch c {
	case ClassMiss:
		return "miss"
	case ClassTransient:
		return "transient"
	case ClassFatal:
		return "fatal"
	default:
		return "none"
	}
}

// ClassifiedError pairs a taxonomy Class with the underlying driver
// error.
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
	ErrMiss      = &ClassifiedError{Class: ClassMiss}
	ErrTransient = &ClassifiedError{Class: ClassTransient}
	ErrFatal     = &ClassifiedError{Class: ClassFatal}
)

// Classify maps a raw gocql/network error onto the taxonomy. It is the
// only place in this package that inspects a raw driver error.
func Classify(err error) *ClassifiedError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, gocql.ErrNotFound):
		return &ClassifiedError{Class: ClassMiss, Err: err}
	case errors.Is(err, gocql.ErrUnavailable),
		errors.Is(err, gocql.ErrNoConnections),
		errors.Is(err, gocql.ErrConnectionClosed),
		errors.Is(err, gocql.ErrSessionClosed),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return &ClassifiedError{Class: ClassTransient, Err: err}
	case errors.Is(err, gocql.ErrKeyspaceDoesNotExist), errors.Is(err, gocql.ErrNoKeyspace):
		return &ClassifiedError{Class: ClassFatal, Err: err}
	case looksFatal(err):
		return &ClassifiedError{Class: ClassFatal, Err: err}
	default:
		// Unrecognized failures default to Transient: a write/read
		// consumer degrades to best-effort rather than raising.
		return &ClassifiedError{Class: ClassTransient, Err: err}
	}
}

func looksFatal(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, substr := range []string{"unauthorized", "authentication", "permission", "does not exist", "invalid query", "no such"} {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

// Config describes the keyspace and table layout for a Tier.
type Config struct {
	Servers      []string
	Keyspace     string
	BlobTable    string
	CounterTable string
	Timeout      time.Duration
	Retries      int
}

// Tier is the durable-tier driver. A Tier that failed to construct its
// connection pool or verify either table is marked unavailable and
// becomes a set of no-ops returning Transient — the Coordinator is then
// free to treat "unavailable" as simply "absent".
type Tier struct {
	session      *gocql.Session
	keyspace     string
	blobTable    string
	counterTable string
	unavailable  bool
}

// New connects to the cluster and verifies both column families are
// queryable. It never returns a nil *Tier: construction failure yields
// an unavailable Tier rather than an error, matching the Python
// original's "catch at construction, degrade silently" behavior.
func New(cfg Config) *Tier {
	cluster := gocql.NewCluster(cfg.Servers...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = gocql.Quorum
	if cfg.Timeout > 0 {
		cluster.Timeout = cfg.Timeout
	}
	if cfg.Retries > 0 {
		cluster.RetryPolicy = &gocql.SimpleRetryPolicy{NumRetries: cfg.Retries}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		log.Error("durabletier: connection pool creation failed", "err", err)
		return &Tier{unavailable: true}
	}

	t := &Tier{
		session:      session,
		keyspace:     cfg.Keyspace,
		blobTable:    cfg.BlobTable,
		counterTable: cfg.CounterTable,
	}
	if err := t.probeTable(t.blobTable); err != nil {
		log.Error("durabletier: blob column family unavailable", "table", t.blobTable, "err", err)
		session.Close()
		return &Tier{unavailable: true}
	}
	if err := t.probeTable(t.counterTable); err != nil {
		log.Error("durabletier: counter column family unavailable", "table", t.counterTable, "err", err)
		session.Close()
		return &Tier{unavailable: true}
	}
	return t
}

func (t *Tier) probeTable(table string) error {
	return t.session.Query(fmt.Sprintf("SELECT key FROM %s LIMIT 1", table)).Exec()
}

// Available reports whether the Tier successfully constructed its pool
// and both column families.
func (t *Tier) Available() bool { return t != nil && !t.unavailable }

func (t *Tier) guard() error {
	if !t.Available() {
		return ErrTransient
	}
	return nil
}

// ttlClause returns the " USING TTL ?" fragment (or "") and the TTL
// value in seconds to bind. A non-positive timeout means no expiration.
func ttlClause(timeout time.Duration) (string, int) {
	if timeout <= 0 {
		return "", 0
	}
	secs := int(timeout / time.Second)
	if secs <= 0 {
		secs = 1
	}
	return " USING TTL ?", secs
}

// BlobGet reads the val column for key.
func (t *Tier) BlobGet(ctx context.Context, key string) ([]byte, error) {
	if err := t.guard(); err != nil {
		return nil, err
	}
	var val []byte
	q := t.session.Query(fmt.Sprintf("SELECT val FROM %s WHERE key = ?", t.blobTable), key).WithContext(ctx).Consistency(gocql.Quorum)
	if err := q.Scan(&val); err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, ErrMiss
		}
		return nil, Classify(err)
	}
	return val, nil
}

// BlobInsert writes val under key with the given TTL (<=0 means no
// expiration).
func (t *Tier) BlobInsert(ctx context.Context, key string, val []byte, timeout time.Duration) error {
	if err := t.guard(); err != nil {
		return err
	}
	clause, secs := ttlClause(timeout)
	cql := fmt.Sprintf("INSERT INTO %s (key, val) VALUES (?, ?)%s", t.blobTable, clause)
	args := []any{key, val}
	if clause != "" {
		args = append(args, secs)
	}
	q := t.session.Query(cql, args...).WithContext(ctx).Consistency(gocql.One)
	if err := q.Exec(); err != nil {
		return Classify(err)
	}
	return nil
}

// BlobRemove deletes the row for key.
func (t *Tier) BlobRemove(ctx context.Context, key string) error {
	if err := t.guard(); err != nil {
		return err
	}
	q := t.session.Query(fmt.Sprintf("DELETE FROM %s WHERE key = ?", t.blobTable), key).WithContext(ctx).Consistency(gocql.One)
	if err := q.Exec(); err != nil {
		return Classify(err)
	}
	return nil
}

// BlobMultiGet reads val for every key in keys, omitting misses from
// the result, matching pycassa's multiget semantics.
func (t *Tier) BlobMultiGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	if err := t.guard(); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}
	q := t.session.Query(fmt.Sprintf("SELECT key, val FROM %s WHERE key IN ?", t.blobTable), keys).WithContext(ctx).Consistency(gocql.Quorum)
	iter := q.Iter()
	out := make(map[string][]byte)
	var k string
	var v []byte
	for iter.Scan(&k, &v) {
		out[k] = v
	}
	if err := iter.Close(); err != nil {
		return nil, Classify(err)
	}
	return out, nil
}

// BlobBatchInsert writes every entry in one unlogged batch.
func (t *Tier) BlobBatchInsert(ctx context.Context, entries map[string][]byte, timeout time.Duration) error {
	if err := t.guard(); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	clause, secs := ttlClause(timeout)
	batch := t.session.NewBatch(gocql.UnloggedBatch).WithContext(ctx)
	cql := fmt.Sprintf("INSERT INTO %s (key, val) VALUES (?, ?)%s", t.blobTable, clause)
	for k, v := range entries {
		args := []any{k, v}
		if clause != "" {
			args = append(args, secs)
		}
		batch.Query(cql, args...)
	}
	if err := t.session.ExecuteBatch(batch); err != nil {
		return Classify(err)
	}
	return nil
}

// BlobBatchRemove deletes every row for keys in one unlogged batch.
func (t *Tier) BlobBatchRemove(ctx context.Context, keys []string) error {
	if err := t.guard(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	batch := t.session.NewBatch(gocql.UnloggedBatch).WithContext(ctx)
	cql := fmt.Sprintf("DELETE FROM %s WHERE key = ?", t.blobTable)
	for _, k := range keys {
		batch.Query(cql, k)
	}
	if err := t.session.ExecuteBatch(batch); err != nil {
		return Classify(err)
	}
	return nil
}

// CounterGet reads the count column for key.
func (t *Tier) CounterGet(ctx context.Context, key string) (int64, error) {
	if err := t.guard(); err != nil {
		return 0, err
	}
	var count int64
	q := t.session.Query(fmt.Sprintf("SELECT count FROM %s WHERE key = ?", t.counterTable), key).WithContext(ctx).Consistency(gocql.Quorum)
	if err := q.Scan(&count); err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return 0, ErrMiss
		}
		return 0, Classify(err)
	}
	return count, nil
}

// CounterMultiGet reads count for every key in keys, omitting misses.
func (t *Tier) CounterMultiGet(ctx context.Context, keys []string) (map[string]int64, error) {
	if err := t.guard(); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return map[string]int64{}, nil
	}
	q := t.session.Query(fmt.Sprintf("SELECT key, count FROM %s WHERE key IN ?", t.counterTable), keys).WithContext(ctx).Consistency(gocql.Quorum)
	iter := q.Iter()
	out := make(map[string]int64)
	var k string
	var v int64
	for iter.Scan(&k, &v) {
		out[k] = v
	}
	if err := iter.Close(); err != nil {
		return nil, Classify(err)
	}
	return out, nil
}

// CounterAdd applies a commutative add of delta to key's counter.
// delta may be negative (decrement).
func (t *Tier) CounterAdd(ctx context.Context, key string, delta int64) error {
	if err := t.guard(); err != nil {
		return err
	}
	q := t.session.Query(fmt.Sprintf("UPDATE %s SET count = count + ? WHERE key = ?", t.counterTable), delta, key).
		WithContext(ctx).Consistency(gocql.One)
	if err := q.Exec(); err != nil {
		return Classify(err)
	}
	return nil
}

// CounterRemove deletes the counter row for key.
func (t *Tier) CounterRemove(ctx context.Context, key string) error {
	if err := t.guard(); err != nil {
		return err
	}
	q := t.session.Query(fmt.Sprintf("DELETE FROM %s WHERE key = ?", t.counterTable), key).WithContext(ctx).Consistency(gocql.One)
	if err := q.Exec(); err != nil {
		return Classify(err)
	}
	return nil
}

// TruncateAll empties both column families.
func (t *Tier) TruncateAll(ctx context.Context) error {
	if err := t.guard(); err != nil {
		return err
	}
	if err := t.session.Query(fmt.Sprintf("TRUNCATE %s", t.blobTable)).WithContext(ctx).Exec(); err != nil {
		return Classify(err)
	}
	if err := t.session.Query(fmt.Sprintf("TRUNCATE %s", t.counterTable)).WithContext(ctx).Exec(); err != nil {
		return Classify(err)
	}
	return nil
}

// Close releases the connection pool. The pool is otherwise
// process-scoped; cacheandra's Coordinator.Close does not call this
// the durable tier's lifetime is process-scoped, so the Coordinator
// never calls this itself, but it is provided for callers that own the
// Tier directly, e.g. tests.
func (t *Tier) Close() {
	if t != nil && t.session != nil {
		t.session.Close()
	}
}
