// Package cache holds the key/value stores behind the regime snapshot board and
// the live signal board: TTLCache in process and RedisCache across replicas.
package cache

import "time"

// BytesCache stores raw bytes with a TTL. A miss is (nil, false, nil); err is
// reserved for backend failures.
type BytesCache interface {
	GetBytes(key string) (b []byte, ok bool, err error)
	SetBytes(key string, value []byte, ttl time.Duration) error
}
