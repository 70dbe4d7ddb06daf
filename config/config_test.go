package config

import "testing"

func TestDefaultFillsExpectedValues(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if c.Keyspace != "cacheandra" {
		t.Fatalf("expected default keyspace cacheandra, got %q", c.Keyspace)
	}
	if c.CounterTable() != "cache_counter" {
		t.Fatalf("expected counter table cache_counter, got %q", c.CounterTable())
	}
	if c.RetryBackoffDuration().String() != "200ms" {
		t.Fatalf("expected retry backoff 200ms, got %s", c.RetryBackoffDuration())
	}
}

func TestValidateRejectsMalformedDuration(t *testing.T) {
	c := Default()
	c.DefaultTimeout = "not-a-duration"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected an error for a malformed default_timeout")
	}
}

func TestValidateFillsBlankKeyspaceAndColumnFamily(t *testing.T) {
	c := &Config{}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if c.Keyspace != "cacheandra" || c.ColumnFamily != "cache" {
		t.Fatalf("expected defaults to be filled, got keyspace=%q columnfamily=%q", c.Keyspace, c.ColumnFamily)
	}
}
