package coordinator

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/tellybug/cacheandra/durabletier"
	"github.com/tellybug/cacheandra/fasttier"
	"github.com/tellybug/cacheandra/keyname"
	"github.com/tellybug/cacheandra/serialize"
)

// fakeFast is a programmable stand-in for the fast tier. Each method
// defers to an optional func field so individual tests only wire the
// behavior they exercise.
type fakeFast struct {
	getFn    func(ctx context.Context, key string) ([]byte, error)
	setFn    func(ctx context.Context, key string, val []byte, timeout time.Duration) error
	addFn    func(ctx context.Context, key string, val []byte, timeout time.Duration) error
	incrFn   func(ctx context.Context, key string, delta uint64) (uint64, error)
	decrFn   func(ctx context.Context, key string, delta uint64) (uint64, error)
	setCalls []string
}

func (f *fakeFast) Get(ctx context.Context, key string) ([]byte, error) {
	if f.getFn != nil {
		return f.getFn(ctx, key)
	}
	return nil, fasttier.ErrMiss
}
func (f *fakeFast) GetMulti(ctx context.Context, keys []string) (map[string][]byte, error) {
	return map[string][]byte{}, nil
}
func (f *fakeFast) Set(ctx context.Context, key string, val []byte, timeout time.Duration) error {
	f.setCalls = append(f.setCalls, key)
	if f.setFn != nil {
		return f.setFn(ctx, key, val, timeout)
	}
	return nil
}
func (f *fakeFast) SetMulti(ctx context.Context, values map[string][]byte, timeout time.Duration) error {
	return nil
}
func (f *fakeFast) Add(ctx context.Context, key string, val []byte, timeout time.Duration) error {
	if f.addFn != nil {
		return f.addFn(ctx, key, val, timeout)
	}
	return nil
}
func (f *fakeFast) Delete(ctx context.Context, key string) error           { return nil }
func (f *fakeFast) DeleteMulti(ctx context.Context, keys []string) error   { return nil }
func (f *fakeFast) Incr(ctx context.Context, key string, delta uint64) (uint64, error) {
	if f.incrFn != nil {
		return f.incrFn(ctx, key, delta)
	}
	return 0, fasttier.ErrNotFound
}
func (f *fakeFast) Decr(ctx context.Context, key string, delta uint64) (uint64, error) {
	if f.decrFn != nil {
		return f.decrFn(ctx, key, delta)
	}
	return 0, fasttier.ErrNotFound
}
func (f *fakeFast) FlushAll(ctx context.Context) error { return nil }
func (f *fakeFast) Close() error                       { return nil }

type fakeDurable struct {
	available     bool
	blobGetFn     func(ctx context.Context, key string) ([]byte, error)
	counterGetFn  func(ctx context.Context, key string) (int64, error)
	counterAddFn  func(ctx context.Context, key string, delta int64) error
	blobInsertFn  func(ctx context.Context, key string, val []byte, timeout time.Duration) error
	counterAdds   []int64
}

func (d *fakeDurable) Available() bool { return d.available }
func (d *fakeDurable) BlobGet(ctx context.Context, key string) ([]byte, error) {
	if d.blobGetFn != nil {
		return d.blobGetFn(ctx, key)
	}
	return nil, durabletier.ErrMiss
}
func (d *fakeDurable) BlobInsert(ctx context.Context, key string, val []byte, timeout time.Duration) error {
	if d.blobInsertFn != nil {
		return d.blobInsertFn(ctx, key, val, timeout)
	}
	return nil
}
func (d *fakeDurable) BlobRemove(ctx context.Context, key string) error { return nil }
func (d *fakeDurable) BlobMultiGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	return map[string][]byte{}, nil
}
func (d *fakeDurable) BlobBatchInsert(ctx context.Context, entries map[string][]byte, timeout time.Duration) error {
	return nil
}
func (d *fakeDurable) BlobBatchRemove(ctx context.Context, keys []string) error { return nil }
func (d *fakeDurable) CounterGet(ctx context.Context, key string) (int64, error) {
	if d.counterGetFn != nil {
		return d.counterGetFn(ctx, key)
	}
	return 0, durabletier.ErrMiss
}
func (d *fakeDurable) CounterMultiGet(ctx context.Context, keys []string) (map[string]int64, error) {
	return map[string]int64{}, nil
}
func (d *fakeDurable) CounterAdd(ctx context.Context, key string, delta int64) error {
	d.counterAdds = append(d.counterAdds, delta)
	if d.counterAddFn != nil {
		return d.counterAddFn(ctx, key, delta)
	}
	return nil
}
func (d *fakeDurable) CounterRemove(ctx context.Context, key string) error { return nil }
func (d *fakeDurable) TruncateAll(ctx context.Context) error              { return nil }

func newTestCoordinator(fast fastTier, durable durableTier) *Coordinator {
	return &Coordinator{
		namer:        keyname.New("", keyname.DefaultDelimiter),
		codec:        serialize.Codec{},
		fast:         fast,
		durable:      durable,
		retryBackoff: time.Millisecond,
	}
}

func encode(t *testing.T, v any) []byte {
	t.Helper()
	b, err := (serialize.Codec{}).Encode(v)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return b
}

func TestGetFastHitIsTrusted(t *testing.T) {
	raw := encode(t, "cached-value")
	fast := &fakeFast{getFn: func(ctx context.Context, key string) ([]byte, error) { return raw, nil }}
	co := newTestCoordinator(fast, nil)

	got, err := co.Get(context.Background(), "k", 1, "default")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "cached-value" {
		t.Fatalf("expected trusted fast-tier value, got %v", got)
	}
}

func TestGetNoTiersReturnsDefault(t *testing.T) {
	co := newTestCoordinator(nil, nil)
	got, err := co.Get(context.Background(), "k", 1, "default")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "default" {
		t.Fatalf("expected default, got %v", got)
	}
}

func TestGetFallsBackToDurableCounterFirst(t *testing.T) {
	fast := &fakeFast{getFn: func(ctx context.Context, key string) ([]byte, error) { return nil, fasttier.ErrMiss }}
	durable := &fakeDurable{
		available:    true,
		counterGetFn: func(ctx context.Context, key string) (int64, error) { return 42, nil },
	}
	co := newTestCoordinator(fast, durable)

	got, err := co.Get(context.Background(), "k", 1, nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != int64(42) {
		t.Fatalf("expected counter value 42, got %v", got)
	}
	if len(fast.setCalls) != 1 {
		t.Fatalf("expected a fast-tier back-fill write, got %d calls", len(fast.setCalls))
	}
}

func TestGetFallsBackToDurableBlobWhenCounterMisses(t *testing.T) {
	raw := encode(t, "durable-value")
	fast := &fakeFast{getFn: func(ctx context.Context, key string) ([]byte, error) { return nil, fasttier.ErrMiss }}
	durable := &fakeDurable{
		available: true,
		blobGetFn: func(ctx context.Context, key string) ([]byte, error) { return raw, nil },
	}
	co := newTestCoordinator(fast, durable)

	got, err := co.Get(context.Background(), "k", 1, nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "durable-value" {
		t.Fatalf("expected durable blob value, got %v", got)
	}
}

// TestGetNodeDisabledRetryPropagatesRecursedValue exercises the
// resolved Open Question: the return value of the recursive re-invoked
// call must reach the original caller, not be silently discarded.
func TestGetNodeDisabledRetryPropagatesRecursedValue(t *testing.T) {
	raw := encode(t, "recovered")
	calls := 0
	fast := &fakeFast{getFn: func(ctx context.Context, key string) ([]byte, error) {
		calls++
		if calls == 1 {
			return nil, fasttier.ErrNodeDisabledRetry
		}
		return raw, nil
	}}
	co := newTestCoordinator(fast, nil)

	got, err := co.Get(context.Background(), "k", 1, nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected exactly one retry (2 calls total), got %d", calls)
	}
	if got != "recovered" {
		t.Fatalf("expected the retried call's value to propagate, got %v", got)
	}
}

func TestAddNotInsertedWhenFastReportsNotStored(t *testing.T) {
	fast := &fakeFast{addFn: func(ctx context.Context, key string, val []byte, timeout time.Duration) error {
		return fasttier.ErrMiss
	}}
	co := newTestCoordinator(fast, nil)

	inserted, err := co.Add(context.Background(), "k", "v", time.Minute, 1)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if inserted {
		t.Fatalf("expected inserted=false on ErrMiss (not stored)")
	}
}

func TestAddSeedsDurableCounterOnIntegerValue(t *testing.T) {
	fast := &fakeFast{addFn: func(ctx context.Context, key string, val []byte, timeout time.Duration) error { return nil }}
	durable := &fakeDurable{available: true}
	co := newTestCoordinator(fast, durable)

	inserted, err := co.Add(context.Background(), "k", 7, time.Minute, 1)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !inserted {
		t.Fatalf("expected inserted=true")
	}
	if len(durable.counterAdds) != 1 || durable.counterAdds[0] != 7 {
		t.Fatalf("expected a counter seed of 7, got %v", durable.counterAdds)
	}
}

func TestSetRebasesCounterAdditively(t *testing.T) {
	fast := &fakeFast{}
	durable := &fakeDurable{
		available:    true,
		counterGetFn: func(ctx context.Context, key string) (int64, error) { return 10, nil },
	}
	co := newTestCoordinator(fast, durable)

	if err := co.Set(context.Background(), "k", 16, time.Minute, 1); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if len(durable.counterAdds) != 1 || durable.counterAdds[0] != 6 {
		t.Fatalf("expected a rebase delta of 6 (16-10), got %v", durable.counterAdds)
	}
}

func TestSetRebaseTreatsCounterMissAsZero(t *testing.T) {
	fast := &fakeFast{}
	durable := &fakeDurable{available: true} // counterGetFn nil -> ErrMiss
	co := newTestCoordinator(fast, durable)

	if err := co.Set(context.Background(), "k", 5, time.Minute, 1); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if len(durable.counterAdds) != 1 || durable.counterAdds[0] != 5 {
		t.Fatalf("expected a rebase delta of 5 (5-0), got %v", durable.counterAdds)
	}
}

func TestIncrFastTierOnly(t *testing.T) {
	fast := &fakeFast{incrFn: func(ctx context.Context, key string, delta uint64) (uint64, error) { return 11, nil }}
	co := newTestCoordinator(fast, nil)

	got, err := co.Incr(context.Background(), "k", 1, 1)
	if err != nil {
		t.Fatalf("Incr: %v", err)
	}
	if got != 11 {
		t.Fatalf("expected 11, got %d", got)
	}
}

func TestIncrNotFoundWithNoDurableTierIsKeyNotFound(t *testing.T) {
	fast := &fakeFast{incrFn: func(ctx context.Context, key string, delta uint64) (uint64, error) {
		return 0, fasttier.ErrNotFound
	}}
	co := newTestCoordinator(fast, nil)

	_, err := co.Incr(context.Background(), "k", 1, 1)
	if err != ErrKeyNotFound {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestIncrFallsThroughToDurableCounterWhenFastMisses(t *testing.T) {
	fast := &fakeFast{incrFn: func(ctx context.Context, key string, delta uint64) (uint64, error) {
		return 0, fasttier.ErrNotFound
	}}
	durable := &fakeDurable{
		available:    true,
		counterGetFn: func(ctx context.Context, key string) (int64, error) { return 20, nil },
	}
	co := newTestCoordinator(fast, durable)

	got, err := co.Incr(context.Background(), "k", 5, 1)
	if err != nil {
		t.Fatalf("Incr: %v", err)
	}
	if got != 20 {
		t.Fatalf("expected the re-read counter value 20, got %d", got)
	}
	if len(durable.counterAdds) != 1 || durable.counterAdds[0] != 5 {
		t.Fatalf("expected a +5 counter add, got %v", durable.counterAdds)
	}
}

// statefulFast is a minimal in-memory stand-in that actually behaves
// like a memcached node for Incr/Decr: it rejects non-decimal stored
// values the way the real text protocol would, instead of always
// succeeding like fakeFast's defaults.
type statefulFast struct {
	store map[string][]byte
}

func newStatefulFast() *statefulFast { return &statefulFast{store: map[string][]byte{}} }

func (f *statefulFast) Get(ctx context.Context, key string) ([]byte, error) {
	v, ok := f.store[key]
	if !ok {
		return nil, fasttier.ErrMiss
	}
	return v, nil
}
func (f *statefulFast) GetMulti(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := map[string][]byte{}
	for _, k := range keys {
		if v, ok := f.store[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}
func (f *statefulFast) Set(ctx context.Context, key string, val []byte, timeout time.Duration) error {
	f.store[key] = val
	return nil
}
func (f *statefulFast) SetMulti(ctx context.Context, values map[string][]byte, timeout time.Duration) error {
	for k, v := range values {
		f.store[k] = v
	}
	return nil
}
func (f *statefulFast) Add(ctx context.Context, key string, val []byte, timeout time.Duration) error {
	if _, ok := f.store[key]; ok {
		return fasttier.ErrMiss
	}
	f.store[key] = val
	return nil
}
func (f *statefulFast) Delete(ctx context.Context, key string) error {
	delete(f.store, key)
	return nil
}
func (f *statefulFast) DeleteMulti(ctx context.Context, keys []string) error {
	for _, k := range keys {
		delete(f.store, k)
	}
	return nil
}
func (f *statefulFast) incrDecr(key string, delta int64) (uint64, error) {
	raw, ok := f.store[key]
	if !ok {
		return 0, fasttier.ErrNotFound
	}
	if !isDecimalBytes(raw) {
		return 0, fasttier.ErrOther
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fasttier.ErrOther
	}
	n += delta
	f.store[key] = []byte(strconv.FormatInt(n, 10))
	return uint64(n), nil
}
func (f *statefulFast) Incr(ctx context.Context, key string, delta uint64) (uint64, error) {
	return f.incrDecr(key, int64(delta))
}
func (f *statefulFast) Decr(ctx context.Context, key string, delta uint64) (uint64, error) {
	return f.incrDecr(key, -int64(delta))
}
func (f *statefulFast) FlushAll(ctx context.Context) error { f.store = map[string][]byte{}; return nil }
func (f *statefulFast) Close() error                       { return nil }

// statefulDurable is a minimal in-memory stand-in for the durable tier,
// tracking both the counter and blob representations independently the
// way a real wide-column table would.
type statefulDurable struct {
	counters map[string]int64
	blobs    map[string][]byte
}

func newStatefulDurable() *statefulDurable {
	return &statefulDurable{counters: map[string]int64{}, blobs: map[string][]byte{}}
}

func (d *statefulDurable) Available() bool { return true }
func (d *statefulDurable) BlobGet(ctx context.Context, key string) ([]byte, error) {
	v, ok := d.blobs[key]
	if !ok {
		return nil, durabletier.ErrMiss
	}
	return v, nil
}
func (d *statefulDurable) BlobInsert(ctx context.Context, key string, val []byte, timeout time.Duration) error {
	d.blobs[key] = val
	return nil
}
func (d *statefulDurable) BlobRemove(ctx context.Context, key string) error {
	delete(d.blobs, key)
	return nil
}
func (d *statefulDurable) BlobMultiGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := map[string][]byte{}
	for _, k := range keys {
		if v, ok := d.blobs[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}
func (d *statefulDurable) BlobBatchInsert(ctx context.Context, entries map[string][]byte, timeout time.Duration) error {
	for k, v := range entries {
		d.blobs[k] = v
	}
	return nil
}
func (d *statefulDurable) BlobBatchRemove(ctx context.Context, keys []string) error {
	for _, k := range keys {
		delete(d.blobs, k)
	}
	return nil
}
func (d *statefulDurable) CounterGet(ctx context.Context, key string) (int64, error) {
	v, ok := d.counters[key]
	if !ok {
		return 0, durabletier.ErrMiss
	}
	return v, nil
}
func (d *statefulDurable) CounterMultiGet(ctx context.Context, keys []string) (map[string]int64, error) {
	out := map[string]int64{}
	for _, k := range keys {
		if v, ok := d.counters[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}
func (d *statefulDurable) CounterAdd(ctx context.Context, key string, delta int64) error {
	d.counters[key] += delta
	return nil
}
func (d *statefulDurable) CounterRemove(ctx context.Context, key string) error {
	delete(d.counters, key)
	return nil
}
func (d *statefulDurable) TruncateAll(ctx context.Context) error {
	d.counters = map[string]int64{}
	d.blobs = map[string][]byte{}
	return nil
}

// TestSetThenIncrThenGetReflectsIncrement guards against the fast tier
// holding a stale pre-increment value: Set stores an integer, Incr must
// bump it natively (not error against a codec blob), and the following
// Get must observe the incremented value, not the original one.
func TestSetThenIncrThenGetReflectsIncrement(t *testing.T) {
	fast := newStatefulFast()
	durable := newStatefulDurable()
	co := newTestCoordinator(fast, durable)
	ctx := context.Background()

	if err := co.Set(ctx, "c", 1, time.Minute, 1); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := co.Incr(ctx, "c", 1, 1); err != nil {
		t.Fatalf("Incr: %v", err)
	}
	got, err := co.Get(ctx, "c", 1, nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != int64(2) {
		t.Fatalf("expected 2 after set(1)+incr(1), got %v", got)
	}
}

// TestSetThenIncrThenGetReflectsIncrementFastOnly is the same scenario
// with no durable tier at all, confirming the native decimal encoding
// (not just the durable back-fill) is what makes Incr succeed.
func TestSetThenIncrThenGetReflectsIncrementFastOnly(t *testing.T) {
	fast := newStatefulFast()
	co := newTestCoordinator(fast, nil)
	ctx := context.Background()

	if err := co.Set(ctx, "c", 1, time.Minute, 1); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := co.Incr(ctx, "c", 1, 1); err != nil {
		t.Fatalf("Incr: %v", err)
	}
	got, err := co.Get(ctx, "c", 1, nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != int64(2) {
		t.Fatalf("expected 2 after set(1)+incr(1), got %v", got)
	}
}

func TestDurableUnavailableIsTreatedAsAbsent(t *testing.T) {
	durable := &fakeDurable{available: false}
	co := newTestCoordinator(nil, durable)

	got, err := co.Get(context.Background(), "k", 1, "fallback")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "fallback" {
		t.Fatalf("expected default value when durable tier is unavailable, got %v", got)
	}
}
