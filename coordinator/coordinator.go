// Package coordinator implements cacheandra's cross-tier coordination
// policy: the only component that knows both the fast (memcached) and
// durable (wide-column) tiers exist, and the only place that decides,
// per operation, which tier is consulted in which order.
package coordinator

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/tellybug/cacheandra/durabletier"
	"github.com/tellybug/cacheandra/fasttier"
	"github.com/tellybug/cacheandra/keyname"
	"github.com/tellybug/cacheandra/log"
	"github.com/tellybug/cacheandra/metrics"
	"github.com/tellybug/cacheandra/serialize"
)

// ErrKeyNotFound is the only error surfaced to callers — every other
// failure degrades to a best-effort cache result instead of propagating.
var ErrKeyNotFound = errors.New("cacheandra: key not found")

// fastTier is the subset of *fasttier.Tier the Coordinator depends on.
// Expressed as an interface so tests can substitute a fake cluster
// without a live memcached.
type fastTier interface {
	Get(ctx context.Context, key string) ([]byte, error)
	GetMulti(ctx context.Context, keys []string) (map[string][]byte, error)
	Set(ctx context.Context, key string, value []byte, timeout time.Duration) error
	SetMulti(ctx context.Context, values map[string][]byte, timeout time.Duration) error
	Add(ctx context.Context, key string, value []byte, timeout time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteMulti(ctx context.Context, keys []string) error
	Incr(ctx context.Context, key string, delta uint64) (uint64, error)
	Decr(ctx context.Context, key string, delta uint64) (uint64, error)
	FlushAll(ctx context.Context) error
	Close() error
}

// durableTier is the subset of *durabletier.Tier the Coordinator
// depends on.
type durableTier interface {
	Available() bool
	BlobGet(ctx context.Context, key string) ([]byte, error)
	BlobInsert(ctx context.Context, key string, val []byte, timeout time.Duration) error
	BlobRemove(ctx context.Context, key string) error
	BlobMultiGet(ctx context.Context, keys []string) (map[string][]byte, error)
	BlobBatchInsert(ctx context.Context, entries map[string][]byte, timeout time.Duration) error
	BlobBatchRemove(ctx context.Context, keys []string) error
	CounterGet(ctx context.Context, key string) (int64, error)
	CounterMultiGet(ctx context.Context, keys []string) (map[string]int64, error)
	CounterAdd(ctx context.Context, key string, delta int64) error
	CounterRemove(ctx context.Context, key string) error
	TruncateAll(ctx context.Context) error
}

var (
	_ fastTier    = (*fasttier.Tier)(nil)
	_ durableTier = (*durabletier.Tier)(nil)
)

// Config is the Coordinator's construction input — the recognized
// tier, keyspace, and timing options.
type Config struct {
	FastServers        []string
	FastMaxIdleConns   int
	DurableServers     []string
	Keyspace           string
	ColumnFamily       string
	KeyPrefix          string
	KeyDelimiter       string
	DefaultTimeout     time.Duration
	RetryBackoff       time.Duration
	DurableTimeout     time.Duration
	DurableRetries     int
	Metrics            *metrics.Recorder
}

// Coordinator is cacheandra's public cache contract: it presents a
// single key/value interface while transparently composing the fast
// and durable tiers beneath it.
type Coordinator struct {
	namer        keyname.Namer
	codec        serialize.Serializer
	fast         fastTier
	durable      durableTier
	retryBackoff time.Duration
	metrics      *metrics.Recorder
}

// New constructs a Coordinator from cfg. Fast/durable tier construction
// failures degrade to an absent tier rather than a construction error —
// TierAvailability is computed once, here, and never revisited.
func New(cfg Config) *Coordinator {
	co := &Coordinator{
		namer:        keyname.New(cfg.KeyPrefix, cfg.KeyDelimiter),
		codec:        serialize.Codec{},
		retryBackoff: cfg.RetryBackoff,
		metrics:      cfg.Metrics,
	}
	if co.retryBackoff <= 0 {
		co.retryBackoff = 200 * time.Millisecond
	}

	if len(cfg.FastServers) > 0 {
		t, err := fasttier.New(cfg.FastServers, cfg.DefaultTimeout)
		if err != nil {
			log.Error("coordinator: fast tier construction failed, running without it", "err", err)
		} else {
			if cfg.FastMaxIdleConns > 0 {
				t.SetOptions(cfg.FastMaxIdleConns, 0)
			}
			co.fast = t
		}
	}

	if len(cfg.DurableServers) > 0 {
		columnFamily := cfg.ColumnFamily
		if columnFamily == "" {
			columnFamily = "cache"
		}
		keyspace := cfg.Keyspace
		if keyspace == "" {
			keyspace = "cacheandra"
		}
		dt := durabletier.New(durabletier.Config{
			Servers:      cfg.DurableServers,
			Keyspace:     keyspace,
			BlobTable:    columnFamily,
			CounterTable: columnFamily + "_counter",
			Timeout:      cfg.DurableTimeout,
			Retries:      cfg.DurableRetries,
		})
		co.durable = dt
	}

	if co.metrics != nil {
		co.metrics.SetFastAvailable(co.FastAvailable())
		co.metrics.SetDurableAvailable(co.DurableAvailable())
	}
	return co
}

// FastAvailable reports whether a fast tier was configured and its
// driver constructed. No connection to the fast tier is attempted at
// construction, so this says nothing about reachability.
func (c *Coordinator) FastAvailable() bool { return c.fast != nil }

// DurableAvailable reports whether the durable tier was reachable at
// construction.
func (c *Coordinator) DurableAvailable() bool { return c.durable != nil && c.durable.Available() }

func (c *Coordinator) sleepBackoff() {
	time.Sleep(c.retryBackoff)
}

func classifyFastErr(err error) *fasttier.ClassifiedError {
	var cerr *fasttier.ClassifiedError
	if errors.As(err, &cerr) {
		return cerr
	}
	return &fasttier.ClassifiedError{Class: fasttier.ClassOther, Err: err}
}

func classifyDurableErr(err error) *durabletier.ClassifiedError {
	var cerr *durabletier.ClassifiedError
	if errors.As(err, &cerr) {
		return cerr
	}
	return &durabletier.ClassifiedError{Class: durabletier.ClassTransient, Err: err}
}

// fastRetry runs call and applies the NodeDisabledRetry/NodeDead
// propagation policy:
//
//   - NodeDisabledRetry: the caller must sleep retry_backoff and
//     re-invoke the entire public operation once — recurseWhole
//     signals that; value/err are meaningless when it is true.
//   - NodeDead: retried exactly once inline, here; whatever that retry
//     returns (success or failure) is the final result.
//   - anything else (including success): returned as-is.
func fastRetry[T any](call func() (T, error)) (value T, recurseWhole bool, err error) {
	value, err = call()
	if err == nil {
		return value, false, nil
	}
	switch classifyFastErr(err).Class {
	case fasttier.ClassNodeDisabledRetry:
		var zero T
		return zero, true, nil
	case fasttier.ClassNodeDead:
		value, err = call()
		return value, false, err
	default:
		return value, false, err
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	default:
		return 0, false
	}
}

// isDecimalBytes reports whether raw is a plain (optionally signed)
// decimal-digit string — the form memcached's native Incr/Decr need,
// and the marker encodeForFast/decodeFastValue use to recognize a
// natively-encoded counter instead of a codec blob.
func isDecimalBytes(raw []byte) bool {
	if len(raw) == 0 {
		return false
	}
	i := 0
	if raw[0] == '-' {
		i = 1
	}
	if i == len(raw) {
		return false
	}
	for ; i < len(raw); i++ {
		if raw[i] < '0' || raw[i] > '9' {
			return false
		}
	}
	return true
}

// encodeForFast renders v the way the fast tier must see it: integers
// as a native decimal-digit string, so a real memcached node's Incr/Decr
// can operate on the stored value directly, everything else through the
// opaque blob codec. The durable tier's blob CF is unaffected — it
// always stores the codec form, regardless of what the fast tier holds.
func (c *Coordinator) encodeForFast(v any) ([]byte, error) {
	if n, ok := asInt64(v); ok {
		return []byte(strconv.FormatInt(n, 10)), nil
	}
	return c.codec.Encode(v)
}

// decodeFastValue reverses encodeForFast, recognizing a native counter
// encoding before falling back to the blob codec.
func (c *Coordinator) decodeFastValue(raw []byte) (any, error) {
	if isDecimalBytes(raw) {
		if n, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
			return n, nil
		}
	}
	return c.codec.Decode(raw)
}

func (c *Coordinator) backfillFast(ctx context.Context, key keyname.StorageKey, v any) {
	if c.fast == nil {
		return
	}
	raw, err := c.encodeForFast(v)
	if err != nil {
		log.Error("coordinator: back-fill encode failed", "key", key, "err", err)
		return
	}
	if err := c.fast.Set(ctx, string(key), raw, time.Second); err != nil {
		log.Debug("coordinator: back-fill swallowed a fast-tier error", "key", key, "err", err)
		return
	}
	if c.metrics != nil {
		c.metrics.Backfill()
	}
}

// Get reads a key: the fast tier is trusted on a hit; on a miss or
// outage it falls back to the durable tier, counter CF first, then blob
// CF, back-filling the fast tier with a 1s TTL.
func (c *Coordinator) Get(ctx context.Context, userKey string, version int, def any) (any, error) {
	return c.get(ctx, c.namer.Name(userKey, version), def)
}

func (c *Coordinator) get(ctx context.Context, key keyname.StorageKey, def any) (any, error) {
	if c.fast != nil {
		raw, recurse, err := fastRetry(func() ([]byte, error) { return c.fast.Get(ctx, string(key)) })
		if recurse {
			c.sleepBackoff()
			return c.get(ctx, key, def)
		}
		if err == nil {
			v, derr := c.decodeFastValue(raw)
			if derr != nil {
				log.Error("coordinator: decode failed on fast-tier hit", "key", key, "err", derr)
			} else {
				if c.metrics != nil {
					c.metrics.FastHit("get")
				}
				return v, nil
			}
		} else {
			cerr := classifyFastErr(err)
			if c.metrics != nil {
				c.metrics.FastError("get", cerr.Class.String())
			}
			if cerr.Class != fasttier.ClassMiss && cerr.Class != fasttier.ClassNodeDead {
				log.Error("coordinator: fast-tier get failed", "key", key, "err", err)
			}
		}
	}

	if c.durable != nil && c.durable.Available() {
		if count, err := c.durable.CounterGet(ctx, string(key)); err == nil {
			if c.metrics != nil {
				c.metrics.DurableHit("counter")
			}
			c.backfillFast(ctx, key, count)
			return count, nil
		} else if classifyDurableErr(err).Class != durabletier.ClassMiss {
			log.Error("coordinator: durable counter get failed", "key", key, "err", err)
		}

		if blob, err := c.durable.BlobGet(ctx, string(key)); err == nil {
			v, derr := c.codec.Decode(blob)
			if derr != nil {
				log.Error("coordinator: decode failed on durable-tier hit", "key", key, "err", derr)
				return def, nil
			}
			if c.metrics != nil {
				c.metrics.DurableHit("blob")
			}
			c.backfillFast(ctx, key, v)
			return v, nil
		} else if classifyDurableErr(err).Class != durabletier.ClassMiss {
			log.Error("coordinator: durable blob get failed", "key", key, "err", err)
		}
	}
	return def, nil
}

// Add inserts a key only if it does not already exist. When a fast tier
// is configured its Add alone decides; the durable blob CF is probed for
// an existing entry only when there is no fast tier.
func (c *Coordinator) Add(ctx context.Context, userKey string, v any, timeout time.Duration, version int) (bool, error) {
	key := c.namer.Name(userKey, version)
	blobRaw, err := c.codec.Encode(v)
	if err != nil {
		return false, err
	}
	fastRaw, ferr := c.encodeForFast(v)
	if ferr != nil {
		fastRaw = blobRaw
	}

	var inserted bool
	if c.fast != nil {
		_, recurse, aerr := fastRetry(func() (struct{}, error) {
			return struct{}{}, c.fast.Add(ctx, string(key), fastRaw, timeout)
		})
		if recurse {
			c.sleepBackoff()
			return c.Add(ctx, userKey, v, timeout, version)
		}
		if aerr == nil {
			inserted = true
		} else {
			cerr := classifyFastErr(aerr)
			if cerr.Class != fasttier.ClassMiss {
				log.Error("coordinator: fast-tier add failed", "key", key, "err", aerr)
			}
			inserted = false
		}
	} else if c.durable != nil && c.durable.Available() {
		_, perr := c.durable.BlobGet(ctx, string(key))
		switch {
		case perr == nil:
			inserted = false
		case classifyDurableErr(perr).Class == durabletier.ClassMiss:
			inserted = true
		default:
			log.Error("coordinator: durable probe for add failed", "key", key, "err", perr)
			inserted = false
		}
	}

	if inserted && c.durable != nil && c.durable.Available() {
		if n, ok := asInt64(v); ok {
			if err := c.durable.CounterAdd(ctx, string(key), n); err != nil {
				log.Error("coordinator: durable counter seed failed on add", "key", key, "err", err)
			}
		}
		if err := c.durable.BlobInsert(ctx, string(key), blobRaw, timeout); err != nil {
			log.Error("coordinator: durable blob insert failed on add", "key", key, "err", err)
		}
	}
	return inserted, nil
}

// Set unconditionally stores a key, including the additive counter
// rebase for integer values.
func (c *Coordinator) Set(ctx context.Context, userKey string, v any, timeout time.Duration, version int) error {
	key := c.namer.Name(userKey, version)
	blobRaw, err := c.codec.Encode(v)
	if err != nil {
		return err
	}

	if c.fast != nil {
		fastRaw, ferr := c.encodeForFast(v)
		if ferr != nil {
			fastRaw = blobRaw
		}
		_, recurse, serr := fastRetry(func() (struct{}, error) {
			return struct{}{}, c.fast.Set(ctx, string(key), fastRaw, timeout)
		})
		if recurse {
			c.sleepBackoff()
			return c.Set(ctx, userKey, v, timeout, version)
		}
		if serr != nil {
			log.Error("coordinator: fast-tier set failed", "key", key, "err", serr)
		}
	}

	if c.durable != nil && c.durable.Available() {
		if err := c.durable.BlobInsert(ctx, string(key), blobRaw, timeout); err != nil {
			log.Error("coordinator: durable blob insert failed on set", "key", key, "err", err)
		}
		if n, ok := asInt64(v); ok {
			cur, cerr := c.durable.CounterGet(ctx, string(key))
			if cerr != nil && classifyDurableErr(cerr).Class != durabletier.ClassMiss {
				log.Error("coordinator: durable counter read failed on set rebase", "key", key, "err", cerr)
			}
			if err := c.durable.CounterAdd(ctx, string(key), n-cur); err != nil {
				log.Error("coordinator: durable counter rebase failed", "key", key, "err", err)
			}
		}
	}
	return nil
}

// Delete removes a key from both tiers, best-effort.
func (c *Coordinator) Delete(ctx context.Context, userKey string, version int) error {
	key := c.namer.Name(userKey, version)
	if c.fast != nil {
		_, recurse, derr := fastRetry(func() (struct{}, error) {
			return struct{}{}, c.fast.Delete(ctx, string(key))
		})
		if recurse {
			c.sleepBackoff()
			return c.Delete(ctx, userKey, version)
		}
		if derr != nil {
			log.Debug("coordinator: fast-tier delete swallowed an error", "key", key, "err", derr)
		}
	}
	if c.durable != nil && c.durable.Available() {
		if err := c.durable.BlobRemove(ctx, string(key)); err != nil {
			log.Error("coordinator: durable blob remove failed", "key", key, "err", err)
		}
		if err := c.durable.CounterRemove(ctx, string(key)); err != nil {
			log.Error("coordinator: durable counter remove failed", "key", key, "err", err)
		}
	}
	return nil
}

func (c *Coordinator) incrDecr(ctx context.Context, userKey string, version int, delta uint64, sign int64) (int64, error) {
	key := c.namer.Name(userKey, version)

	var fastVal *uint64
	if c.fast != nil {
		op := func() (uint64, error) {
			if sign > 0 {
				return c.fast.Incr(ctx, string(key), delta)
			}
			return c.fast.Decr(ctx, string(key), delta)
		}
		v, recurse, ferr := fastRetry(op)
		if recurse {
			c.sleepBackoff()
			return c.incrDecr(ctx, userKey, version, delta, sign)
		}
		if ferr == nil {
			fastVal = &v
		} else if classifyFastErr(ferr).Class != fasttier.ClassNotFound {
			log.Error("coordinator: fast-tier incr/decr failed", "key", key, "err", ferr)
		}
		if fastVal == nil && (c.durable == nil || !c.durable.Available()) {
			return 0, ErrKeyNotFound
		}
	}

	if c.durable != nil && c.durable.Available() {
		if c.fast == nil {
			if _, err := c.durable.CounterGet(ctx, string(key)); err != nil {
				if classifyDurableErr(err).Class == durabletier.ClassMiss {
					return 0, ErrKeyNotFound
				}
				log.Error("coordinator: durable counter probe failed on incr/decr", "key", key, "err", err)
			}
		}
		if err := c.durable.CounterAdd(ctx, string(key), int64(delta)*sign); err != nil {
			log.Error("coordinator: durable counter add failed", "key", key, "err", err)
		}
		if err := c.durable.BlobRemove(ctx, string(key)); err != nil {
			log.Error("coordinator: durable blob remove failed on incr/decr", "key", key, "err", err)
		}
		newVal, err := c.durable.CounterGet(ctx, string(key))
		if err != nil {
			log.Error("coordinator: durable counter re-read failed on incr/decr", "key", key, "err", err)
			if fastVal != nil {
				return int64(*fastVal), nil
			}
			return 0, ErrKeyNotFound
		}
		// Whatever the fast tier's own Incr/Decr did (no fast tier, the
		// key wasn't there yet, a failure, or a clean success), the
		// durable tier is now authoritative, so push its value back so
		// the next trusted fast-tier Get doesn't see a stale entry.
		c.backfillFast(ctx, key, newVal)
		return newVal, nil
	}

	if fastVal != nil {
		return int64(*fastVal), nil
	}
	return 0, ErrKeyNotFound
}

// Incr atomically adds delta to the counter stored at a key.
func (c *Coordinator) Incr(ctx context.Context, userKey string, delta uint64, version int) (int64, error) {
	return c.incrDecr(ctx, userKey, version, delta, 1)
}

// Decr atomically subtracts delta from the counter stored at a key.
func (c *Coordinator) Decr(ctx context.Context, userKey string, delta uint64, version int) (int64, error) {
	return c.incrDecr(ctx, userKey, version, delta, -1)
}

// GetMany reads several keys at once. A partial fast-tier hit is
// returned as-is (no per-key durable fallback); only a wholly-empty
// fast-tier result triggers the durable fetch-and-backfill path.
func (c *Coordinator) GetMany(ctx context.Context, userKeys []string, version int) (map[string]any, error) {
	keyToUser := make(map[keyname.StorageKey]string, len(userKeys))
	storageKeys := make([]string, 0, len(userKeys))
	for _, uk := range userKeys {
		sk := c.namer.Name(uk, version)
		keyToUser[sk] = uk
		storageKeys = append(storageKeys, string(sk))
	}

	result := make(map[string]any)
	gotFast := false

	if c.fast != nil {
		m, recurse, ferr := fastRetry(func() (map[string][]byte, error) { return c.fast.GetMulti(ctx, storageKeys) })
		if recurse {
			c.sleepBackoff()
			return c.GetMany(ctx, userKeys, version)
		}
		if ferr != nil {
			if classifyFastErr(ferr).Class != fasttier.ClassNodeDead {
				log.Error("coordinator: fast-tier get_multi failed", "err", ferr)
			}
			m = map[string][]byte{}
		}
		for k, raw := range m {
			v, derr := c.decodeFastValue(raw)
			if derr != nil {
				log.Error("coordinator: decode failed in get_many", "key", k, "err", derr)
				continue
			}
			if uk, ok := keyToUser[keyname.StorageKey(k)]; ok {
				result[uk] = v
			}
		}
		gotFast = len(m) > 0
	}

	if !gotFast && c.durable != nil && c.durable.Available() {
		decoded := make(map[string]any)

		blobs, err := c.durable.BlobMultiGet(ctx, storageKeys)
		if err != nil {
			log.Error("coordinator: durable blob_multiget failed", "err", err)
			blobs = map[string][]byte{}
		}
		for k, raw := range blobs {
			v, derr := c.codec.Decode(raw)
			if derr != nil {
				log.Error("coordinator: decode failed in durable multiget", "key", k, "err", derr)
				continue
			}
			decoded[k] = v
		}

		missing := make([]string, 0, len(storageKeys))
		for _, sk := range storageKeys {
			if _, ok := decoded[sk]; !ok {
				missing = append(missing, sk)
			}
		}
		if len(missing) > 0 {
			counters, err := c.durable.CounterMultiGet(ctx, missing)
			if err != nil {
				log.Error("coordinator: durable counter_multiget failed", "err", err)
			}
			for k, v := range counters {
				decoded[k] = v
			}
		}

		backfill := make(map[string][]byte, len(decoded))
		for sk, v := range decoded {
			uk, ok := keyToUser[keyname.StorageKey(sk)]
			if !ok {
				continue
			}
			result[uk] = v
			if raw, err := c.encodeForFast(v); err == nil {
				backfill[sk] = raw
			}
		}
		if c.fast != nil && len(backfill) > 0 {
			if err := c.fast.SetMulti(ctx, backfill, time.Second); err != nil {
				log.Debug("coordinator: get_many back-fill swallowed an error", "err", err)
			}
		}
	}
	return result, nil
}

// SetMany writes several keys at once. Integer values written here are
// stored as blobs only — no counter rebase — callers needing counter
// semantics in bulk must call Set per key.
func (c *Coordinator) SetMany(ctx context.Context, data map[string]any, timeout time.Duration, version int) error {
	blobEntries := make(map[string][]byte, len(data))
	fastEntries := make(map[string][]byte, len(data))
	for uk, v := range data {
		sk := string(c.namer.Name(uk, version))
		raw, err := c.codec.Encode(v)
		if err != nil {
			log.Error("coordinator: encode failed in set_many", "key", uk, "err", err)
			continue
		}
		blobEntries[sk] = raw
		if fastRaw, ferr := c.encodeForFast(v); ferr == nil {
			fastEntries[sk] = fastRaw
		} else {
			fastEntries[sk] = raw
		}
	}

	if c.fast != nil {
		_, recurse, ferr := fastRetry(func() (struct{}, error) {
			return struct{}{}, c.fast.SetMulti(ctx, fastEntries, timeout)
		})
		if recurse {
			c.sleepBackoff()
			return c.SetMany(ctx, data, timeout, version)
		}
		if ferr != nil {
			log.Error("coordinator: fast-tier set_multi failed", "err", ferr)
		}
	}

	if c.durable != nil && c.durable.Available() {
		if err := c.durable.BlobBatchInsert(ctx, blobEntries, timeout); err != nil {
			log.Error("coordinator: durable blob batch insert failed", "err", err)
		}
	}
	return nil
}

// DeleteMany removes several keys at once. The counter CF is untouched
// by batch delete, the same tradeoff as SetMany.
func (c *Coordinator) DeleteMany(ctx context.Context, userKeys []string, version int) error {
	storageKeys := make([]string, 0, len(userKeys))
	for _, uk := range userKeys {
		storageKeys = append(storageKeys, string(c.namer.Name(uk, version)))
	}

	if c.fast != nil {
		_, recurse, ferr := fastRetry(func() (struct{}, error) {
			return struct{}{}, c.fast.DeleteMulti(ctx, storageKeys)
		})
		if recurse {
			c.sleepBackoff()
			return c.DeleteMany(ctx, userKeys, version)
		}
		if ferr != nil {
			log.Debug("coordinator: fast-tier delete_multi swallowed an error", "err", ferr)
		}
	}

	if c.durable != nil && c.durable.Available() {
		if err := c.durable.BlobBatchRemove(ctx, storageKeys); err != nil {
			log.Error("coordinator: durable blob batch remove failed", "err", err)
		}
	}
	return nil
}

// Clear empties both tiers entirely.
func (c *Coordinator) Clear(ctx context.Context) error {
	if c.fast != nil {
		if err := c.fast.FlushAll(ctx); err != nil {
			log.Error("coordinator: fast-tier flush_all failed", "err", err)
		}
	}
	if c.durable != nil && c.durable.Available() {
		if err := c.durable.TruncateAll(ctx); err != nil {
			log.Error("coordinator: durable truncate_all failed", "err", err)
		}
	}
	return nil
}

// Close calls the fast tier's Close, which for the gomemcache-backed
// tier is a no-op with no connections to drain; the durable pool is
// process-scoped and outlives any one Coordinator.
func (c *Coordinator) Close() error {
	if c.fast != nil {
		return c.fast.Close()
	}
	return nil
}
