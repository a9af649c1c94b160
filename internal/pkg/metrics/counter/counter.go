package counter

import (
	"context"
	"strconv"
	"sync"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/mediabridge/internal/pkg/cache"
)

const keyPrefix = "media:counters:"

// Variant events counted per storage backend
const (
	// Hit is a variant or root served straight from storage
	Hit = "hit"
	// Derived is a variant rendered from its root on a cache miss
	Derived = "derived"
	// Miss is a request for a root that does not exist
	Miss = "miss"
	// FillFailed is a derived variant that could not be written back
	FillFailed = "fill_failed"
)

var local = struct {
	sync.Mutex
	counts map[string]map[string]int64
}{counts: map[string]map[string]int64{}}

// Add increments event for backend. Counters live in a Redis hash when the cache is
// enabled so that all instances share them, otherwise in process memory.
func Add(ctx context.Context, backend, event string) {
	if rdb := cache.GetClient(); rdb != nil {
		err := rdb.HIncrBy(ctx, keyPrefix+backend, event, 1).Err()
		if err == nil {
			return
		}
		log.Debugf("[Counter] Redis increment of %s/%s failed, counting locally: %v", backend, event, err)
	}
	local.Lock()
	defer local.Unlock()
	m := local.counts[backend]
	if m == nil {
		m = map[string]int64{}
		local.counts[backend] = m
	}
	m[event]++
}

// Snapshot returns the current counters of backend
func Snapshot(ctx context.Context, backend string) map[string]int64 {
	out := map[string]int64{}
	if rdb := cache.GetClient(); rdb != nil {
		data, err := rdb.HGetAll(ctx, keyPrefix+backend).Result()
		if err == nil {
			for field, raw := range data {
				if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
					out[field] = n
				}
			}
		} else {
			log.Debugf("[Counter] Redis read of %s failed: %v", backend, err)
		}
	}
	local.Lock()
	defer local.Unlock()
	for event, n := range local.counts[backend] {
		out[event] += n
	}
	return out
}

// Reset drops the in-process counters of backend
func Reset(backend string) {
	local.Lock()
	defer local.Unlock()
	delete(local.counts, backend)
}
