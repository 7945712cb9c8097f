package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemoryCache implements an in-memory cache with TTL support. Used when
// Redis is disabled and in tests.
type MemoryCache struct {
	items    map[string]*memoryItem
	locks    map[string]time.Time
	mu       sync.RWMutex
	maxSize  int
	stopChan chan struct{}
	stopOnce sync.Once
}

// memoryItem represents an item in memory cache
type memoryItem struct {
	data       []byte
	expiration time.Time
	accessed   time.Time
}

// NewMemoryCache creates a new memory cache
func NewMemoryCache(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 10000
	}

	mc := &MemoryCache{
		items:    make(map[string]*memoryItem),
		locks:    make(map[string]time.Time),
		maxSize:  maxSize,
		stopChan: make(chan struct{}),
	}

	go mc.cleanupLoop()

	return mc
}

// Get retrieves a value from memory cache into dest
func (mc *MemoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	item, exists := mc.items[key]
	if !exists {
		return ErrCacheMiss
	}
	if time.Now().After(item.expiration) {
		delete(mc.items, key)
		return ErrCacheMiss
	}

	item.accessed = time.Now()
	if err := json.Unmarshal(item.data, dest); err != nil {
		return fmt.Errorf("failed to decode cached value for %s: %w", key, err)
	}
	return nil
}

// Set stores a value in memory cache
func (mc *MemoryCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode value for %s: %w", key, err)
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if len(mc.items) >= mc.maxSize {
		mc.evictLRU()
	}

	if expiration <= 0 {
		expiration = 24 * time.Hour
	}

	mc.items[key] = &memoryItem{
		data:       data,
		expiration: time.Now().Add(expiration),
		accessed:   time.Now(),
	}
	return nil
}

// Delete deletes a key from memory cache
func (mc *MemoryCache) Delete(ctx context.Context, key string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	delete(mc.items, key)
	return nil
}

// Exists checks if a key exists and is not expired
func (mc *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	item, exists := mc.items[key]
	if !exists || time.Now().After(item.expiration) {
		return false, nil
	}
	return true, nil
}

// AcquireLock acquires a named lock
func (mc *MemoryCache) AcquireLock(ctx context.Context, name string, expiration time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if expiry, held := mc.locks[name]; held && time.Now().Before(expiry) {
		return false, nil
	}
	mc.locks[name] = time.Now().Add(expiration)
	return true, nil
}

// ReleaseLock releases a named lock
func (mc *MemoryCache) ReleaseLock(ctx context.Context, name string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	delete(mc.locks, name)
	return nil
}

// HealthCheck always succeeds for the in-memory cache
func (mc *MemoryCache) HealthCheck(ctx context.Context) error {
	return nil
}

// Close stops the cleanup goroutine
func (mc *MemoryCache) Close() error {
	mc.stopOnce.Do(func() { close(mc.stopChan) })
	return nil
}

// evictLRU removes the least recently accessed item. Caller holds the lock.
func (mc *MemoryCache) evictLRU() {
	var oldestKey string
	var oldestTime time.Time
	for key, item := range mc.items {
		if oldestKey == "" || item.accessed.Before(oldestTime) {
			oldestKey = key
			oldestTime = item.accessed
		}
	}
	if oldestKey != "" {
		delete(mc.items, oldestKey)
	}
}

// cleanupLoop periodically removes expired items and locks
func (mc *MemoryCache) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			mc.mu.Lock()
			for key, item := range mc.items {
				if now.After(item.expiration) {
					delete(mc.items, key)
				}
			}
			for name, expiry := range mc.locks {
				if now.After(expiry) {
					delete(mc.locks, name)
				}
			}
			mc.mu.Unlock()
		case <-mc.stopChan:
			return
		}
	}
}
