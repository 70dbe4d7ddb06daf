// Package keyname canonicalizes a (user key, version) pair into the
// opaque StorageKey used as the row key in both tiers of cacheandra.
package keyname

import "strconv"

// StorageKey is the canonical key used in both the fast and durable
// tiers. It is never persisted on its own; it is derived fresh on every
// request.
type StorageKey string

// Namer composes StorageKeys deterministically. It holds no mutable
// state and is safe for concurrent use by construction.
type Namer struct {
	prefix    string
	delimiter string
}

// DefaultDelimiter matches the separator the Python original used when
// composing "prefix:version:key".
const DefaultDelimiter = ":"

// New builds a Namer. An empty delimiter falls back to DefaultDelimiter.
func New(prefix, delimiter string) Namer {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	return Namer{prefix: prefix, delimiter: delimiter}
}

// Name returns the StorageKey for (userKey, version). It is a pure
// function: the same (prefix, delimiter, userKey, version) always
// produces the same StorageKey, and distinct (userKey, version) pairs
// never collide for a fixed delimiter that does not appear in userKey
// or prefix.
func (n Namer) Name(userKey string, version int) StorageKey {
	return StorageKey(n.prefix + n.delimiter + strconv.Itoa(version) + n.delimiter + userKey)
}
