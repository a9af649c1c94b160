package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/mediabridge/internal/pkg/cache"
	"github.com/ManuelReschke/mediabridge/internal/pkg/metrics/counter"
)

const (
	healthCacheKey = "storage_health:"
	healthInterval = 60 * time.Second
	healthTimeout  = 5 * time.Second
)

// Pinger is anything the health monitor can probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health is the last observed state of the storage backend and the metadata store
type Health struct {
	Backend         string           `json:"backend"`
	BackendHealthy  bool             `json:"backend_healthy"`
	BackendError    string           `json:"backend_error,omitempty"`
	MetadataHealthy bool             `json:"metadata_healthy"`
	MetadataError   string           `json:"metadata_error,omitempty"`
	Counters        map[string]int64 `json:"counters,omitempty"`
	CheckedAt       time.Time        `json:"checked_at"`
}

// Healthy reports whether both probes succeeded
func (h Health) Healthy() bool {
	return h.BackendHealthy && h.MetadataHealthy
}

// HealthMonitor periodically pings the backend and the metadata store and caches the
// result in Redis when available.
type HealthMonitor struct {
	backend  Backend
	metadata Pinger
	interval time.Duration

	// shared snapshot store, Redis when the cache is enabled
	readShared  func(ctx context.Context, key string) (string, error)
	writeShared func(ctx context.Context, key, value string, ttl time.Duration) error

	mu     sync.RWMutex
	last   Health
	stopCh chan struct{}
}

func NewHealthMonitor(backend Backend, metadata Pinger) *HealthMonitor {
	h := &HealthMonitor{backend: backend, metadata: metadata, interval: healthInterval}
	if cache.Enabled() {
		h.readShared = cache.Get
		h.writeShared = func(ctx context.Context, key, value string, ttl time.Duration) error {
			return cache.Set(ctx, key, value, ttl)
		}
	}
	return h
}

// Start runs the heartbeat in the background
func (h *HealthMonitor) Start() {
	h.mu.Lock()
	if h.stopCh != nil {
		h.mu.Unlock()
		return
	}
	stopCh := make(chan struct{})
	h.stopCh = stopCh
	h.mu.Unlock()

	go func() {
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		log.Infof("[StorageHealth] Monitor started (interval: %s)", h.interval)

		h.Check(context.Background())
		for {
			select {
			case <-stopCh:
				log.Info("[StorageHealth] Monitor stopped")
				return
			case <-ticker.C:
				h.Check(context.Background())
			}
		}
	}()
}

// Stop ends the heartbeat
func (h *HealthMonitor) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopCh != nil {
		close(h.stopCh)
		h.stopCh = nil
	}
}

// Last returns the most recent result without probing
func (h *HealthMonitor) Last() Health {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last
}

// Current returns the newest known result, either the local one or a snapshot another
// instance shared through Redis. It probes when neither exists yet.
func (h *HealthMonitor) Current(ctx context.Context) Health {
	res := h.Last()
	if shared, ok := h.loadShared(ctx); ok && shared.CheckedAt.After(res.CheckedAt) {
		res = shared
	}
	if res.CheckedAt.IsZero() {
		res = h.Check(ctx)
	}
	return res
}

func (h *HealthMonitor) loadShared(ctx context.Context) (Health, bool) {
	if h.readShared == nil {
		return Health{}, false
	}
	raw, err := h.readShared(ctx, healthCacheKey+h.backend.Name())
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warnf("[StorageHealth] Cache get failed for %s: %v", h.backend.Name(), err)
		}
		return Health{}, false
	}
	var res Health
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		log.Warnf("[StorageHealth] Discarding unreadable snapshot of %s: %v", h.backend.Name(), err)
		return Health{}, false
	}
	return res, true
}

// Check probes both stores once and records the result
func (h *HealthMonitor) Check(ctx context.Context) Health {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	res := Health{Backend: h.backend.Name(), CheckedAt: time.Now().UTC()}
	if err := h.backend.Ping(ctx); err != nil {
		res.BackendError = err.Error()
		log.Errorf("[StorageHealth] Backend %s unhealthy: %v", res.Backend, err)
	} else {
		res.BackendHealthy = true
	}
	if h.metadata == nil {
		res.MetadataHealthy = true
	} else {
		if err := h.metadata.Ping(ctx); err != nil {
			res.MetadataError = err.Error()
			log.Errorf("[StorageHealth] Metadata store unhealthy: %v", err)
		} else {
			res.MetadataHealthy = true
		}
	}

	res.Counters = counter.Snapshot(ctx, res.Backend)

	h.mu.Lock()
	h.last = res
	h.mu.Unlock()

	if h.writeShared != nil {
		b, _ := json.Marshal(res)
		if err := h.writeShared(ctx, healthCacheKey+res.Backend, string(b), 2*h.interval); err != nil {
			log.Errorf("[StorageHealth] Cache set failed for %s: %v", res.Backend, err)
		}
	}
	return res
}
