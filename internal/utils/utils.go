package utils

import (
	"hash/fnv"
	"time"
)

// ShardIndex maps key onto one of totalShards buckets.
func ShardIndex(totalShards uint64, key string) uint64 {
	if totalShards <= 1 {
		return 0
	}
	h := fnv.New64a()
	if _, err := h.Write([]byte(key)); err != nil {
		return 0
	}
	return h.Sum64() % totalShards
}

// ResolveTTL returns the first override, or def when none is given. A zero or
// negative override is honoured and yields an entry that is already due.
func ResolveTTL(def time.Duration, ttl ...time.Duration) time.Duration {
	if len(ttl) > 0 {
		return ttl[0]
	}
	return def
}

// Key joins a stable prefix and an identifier.
func Key(prefix, id string) string {
	return prefix + id
}
