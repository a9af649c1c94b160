package objectstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ManuelReschke/mediabridge/internal/pkg/apperror"
)

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryClient keeps objects in process memory. Used for local development and tests.
type MemoryClient struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	baseURL string
	puts    int
}

// NewMemoryClient creates an empty in-memory store whose URLs start with baseURL.
func NewMemoryClient(baseURL string) *MemoryClient {
	return &MemoryClient{objects: map[string]memoryObject{}, baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (m *MemoryClient) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := make([]byte, len(data))
	copy(cp, data)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{data: cp, contentType: contentType}
	m.puts++
	return nil
}

func (m *MemoryClient) Get(ctx context.Context, key string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", apperror.ErrNotFound, key)
	}
	cp := make([]byte, len(obj.data))
	copy(cp, obj.data)
	return cp, obj.contentType, nil
}

func (m *MemoryClient) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0)
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryClient) DeleteMany(ctx context.Context, keys []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.objects, key)
	}
	return nil
}

func (m *MemoryClient) URL(key string) string {
	return m.baseURL + "/" + strings.TrimPrefix(key, "/")
}

func (m *MemoryClient) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Puts returns the number of successful writes so far.
func (m *MemoryClient) Puts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}
