package ui

import (
	"hash/fnv"
	"strconv"
	"sync"
)

// RenderCache keeps rendered markdown for frozen messages so the transcript
// is not re-rendered through glamour on every streamed delta.
type RenderCache struct {
	mu      sync.Mutex
	entries map[uint64]string
	order   []uint64
	maxSize int
}

// NewRenderCache creates a cache holding at most maxSize entries.
func NewRenderCache(maxSize int) *RenderCache {
	if maxSize <= 0 {
		maxSize = 128
	}
	return &RenderCache{entries: make(map[uint64]string), maxSize: maxSize}
}

// ComputeKey hashes a message identity, its content and the wrap width.
func ComputeKey(id, content string, width int) uint64 {
	h := fnv.New64a()
	h.Write([]byte(id))
	h.Write([]byte{0})
	h.Write([]byte(content))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(width)))
	return h.Sum64()
}

// GetOrCompute returns the cached render for key, computing it if missing.
func (rc *RenderCache) GetOrCompute(key uint64, compute func() string) string {
	rc.mu.Lock()
	if v, ok := rc.entries[key]; ok {
		rc.mu.Unlock()
		return v
	}
	rc.mu.Unlock()

	v := compute()

	rc.mu.Lock()
	defer rc.mu.Unlock()
	if _, ok := rc.entries[key]; !ok {
		rc.entries[key] = v
		rc.order = append(rc.order, key)
		for len(rc.order) > rc.maxSize {
			delete(rc.entries, rc.order[0])
			rc.order = rc.order[1:]
		}
	}
	return v
}

// Len returns the number of cached entries.
func (rc *RenderCache) Len() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.entries)
}

// Clear empties the cache.
func (rc *RenderCache) Clear() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.entries = make(map[uint64]string)
	rc.order = nil
}
