package fasttier

import (
	"errors"
	"testing"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

func TestClassifyMissVsNotFound(t *testing.T) {
	c := Classify(memcache.ErrCacheMiss, false)
	if c.Class != ClassMiss {
		t.Fatalf("expected ClassMiss for a plain get miss, got %v", c.Class)
	}
	c = Classify(memcache.ErrCacheMiss, true)
	if c.Class != ClassNotFound {
		t.Fatalf("expected ClassNotFound for incr/decr on an absent key, got %v", c.Class)
	}
}

func TestClassifyNoServersIsNodeDead(t *testing.T) {
	c := Classify(memcache.ErrNoServers, false)
	if c.Class != ClassNodeDead {
		t.Fatalf("expected ClassNodeDead, got %v", c.Class)
	}
}

func TestClassifyAddNotStoredIsMiss(t *testing.T) {
	c := Classify(memcache.ErrNotStored, false)
	if c.Class != ClassMiss {
		t.Fatalf("expected ClassMiss (not inserted) for ErrNotStored, got %v", c.Class)
	}
}

func TestClassifyUnknownIsOther(t *testing.T) {
	c := Classify(errors.New("boom"), false)
	if c.Class != ClassOther {
		t.Fatalf("expected ClassOther for an unrecognized error, got %v", c.Class)
	}
}

func TestClassifyNilIsNil(t *testing.T) {
	if Classify(nil, false) != nil {
		t.Fatalf("expected Classify(nil, ...) to return nil")
	}
}

func TestNormalizeTTLDefaultsOnZero(t *testing.T) {
	tier := &Tier{defaultTimeout: 30 * time.Second}
	if got := tier.normalizeTTL(0); got != 30 {
		t.Fatalf("expected default timeout of 30s, got %d", got)
	}
}

func TestNormalizeTTLBelowCeilingIsRelative(t *testing.T) {
	tier := &Tier{defaultTimeout: time.Second}
	got := tier.normalizeTTL(time.Hour)
	if got != 3600 {
		t.Fatalf("expected relative seconds 3600, got %d", got)
	}
}

func TestNormalizeTTLAboveCeilingIsAbsolute(t *testing.T) {
	tier := &Tier{defaultTimeout: time.Second}
	before := time.Now().Unix()
	got := tier.normalizeTTL(31 * 24 * time.Hour)
	after := time.Now().Unix()
	wantLow := before + 31*24*3600
	wantHigh := after + 31*24*3600
	if int64(got) < wantLow || int64(got) > wantHigh {
		t.Fatalf("expected an absolute unix timestamp around %d, got %d", wantLow, got)
	}
}
