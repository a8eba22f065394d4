package security

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// floodEntry tracks a per-identifier limiter and its last access time.
type floodEntry struct {
	identifier string
	limiter    *rate.Limiter
	lastAccess time.Time
}

// FloodLimiter throttles security-event emission per identifier (typically a
// client IP) using a token bucket per identifier, with LRU eviction so an
// attacker cycling identifiers cannot grow memory without bound. It gates
// audit noise, not token issuance.
type FloodLimiter struct {
	entries         map[string]*list.Element // identifier -> list element
	lruList         *list.List               // LRU list of *floodEntry
	mu              sync.RWMutex
	eventsPerSecond int
	burst           int
	maxEntries      int
	logger          *slog.Logger
	cleanupInterval time.Duration
	stopCleanup     chan struct{}

	totalEvictions int64
	totalCleanups  int64
}

// NewFloodLimiter creates a flood limiter with automatic idle cleanup and LRU
// eviction. Default capacity is 10,000 tracked identifiers; use
// NewFloodLimiterWithConfig for a custom capacity.
func NewFloodLimiter(eventsPerSecond, burst int, logger *slog.Logger) *FloodLimiter {
	return NewFloodLimiterWithConfig(eventsPerSecond, burst, 10000, logger)
}

// NewFloodLimiterWithConfig creates a flood limiter with a custom capacity.
// maxEntries bounds the number of identifiers tracked at once; when the bound
// is hit the least recently used identifier is evicted. maxEntries 0 means
// unlimited.
func NewFloodLimiterWithConfig(eventsPerSecond, burst, maxEntries int, logger *slog.Logger) *FloodLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	if maxEntries < 0 {
		maxEntries = 10000
		logger.Warn("Invalid maxEntries, using default", "maxEntries", maxEntries)
	}

	fl := &FloodLimiter{
		entries:         make(map[string]*list.Element),
		lruList:         list.New(),
		eventsPerSecond: eventsPerSecond,
		burst:           burst,
		maxEntries:      maxEntries,
		logger:          logger,
		cleanupInterval: 5 * time.Minute,
		stopCleanup:     make(chan struct{}),
	}

	go fl.cleanupLoop()

	return fl
}

// Allow reports whether an event attributed to identifier may be emitted now.
func (fl *FloodLimiter) Allow(identifier string) bool {
	now := time.Now()

	fl.mu.Lock()
	defer fl.mu.Unlock()

	if elem, exists := fl.entries[identifier]; exists {
		fl.lruList.MoveToFront(elem)
		entry := elem.Value.(*floodEntry)
		entry.lastAccess = now
		return entry.limiter.Allow()
	}

	if fl.maxEntries > 0 && len(fl.entries) >= fl.maxEntries {
		fl.evictLRU()
	}

	entry := &floodEntry{
		identifier: identifier,
		limiter:    rate.NewLimiter(rate.Limit(fl.eventsPerSecond), fl.burst),
		lastAccess: now,
	}

	elem := fl.lruList.PushFront(entry)
	fl.entries[identifier] = elem

	return entry.limiter.Allow()
}

// evictLRU removes the least recently used entry. Caller must hold the lock.
func (fl *FloodLimiter) evictLRU() {
	elem := fl.lruList.Back()
	if elem == nil {
		return
	}

	entry := elem.Value.(*floodEntry)
	delete(fl.entries, entry.identifier)
	fl.lruList.Remove(elem)
	fl.totalEvictions++

	fl.logger.Debug("Flood limiter LRU eviction",
		"identifier", entry.identifier,
		"total_evictions", fl.totalEvictions,
		"current_entries", len(fl.entries))
}

// cleanupLoop periodically drops idle limiters to prevent memory leaks
func (fl *FloodLimiter) cleanupLoop() {
	ticker := time.NewTicker(fl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fl.Cleanup(30 * time.Minute)
		case <-fl.stopCleanup:
			return
		}
	}
}

// Cleanup removes limiters that have not been touched for maxIdleTime.
func (fl *FloodLimiter) Cleanup(maxIdleTime time.Duration) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	now := time.Now()
	removed := 0

	var next *list.Element
	for elem := fl.lruList.Front(); elem != nil; elem = next {
		next = elem.Next()
		entry := elem.Value.(*floodEntry)

		if now.Sub(entry.lastAccess) > maxIdleTime {
			delete(fl.entries, entry.identifier)
			fl.lruList.Remove(elem)
			removed++
		}
	}

	if removed > 0 {
		fl.totalCleanups++
		fl.logger.Debug("Flood limiter cleanup completed",
			"removed", removed,
			"remaining", len(fl.entries),
			"total_cleanups", fl.totalCleanups)
	}
}

// Stop gracefully stops the cleanup goroutine
func (fl *FloodLimiter) Stop() {
	close(fl.stopCleanup)
}

// FloodStats holds flood limiter statistics for monitoring
type FloodStats struct {
	CurrentEntries int
	MaxEntries     int
	TotalEvictions int64
	TotalCleanups  int64
}

// GetStats returns current limiter statistics for monitoring and alerting.
func (fl *FloodLimiter) GetStats() FloodStats {
	fl.mu.RLock()
	defer fl.mu.RUnlock()

	return FloodStats{
		CurrentEntries: len(fl.entries),
		MaxEntries:     fl.maxEntries,
		TotalEvictions: fl.totalEvictions,
		TotalCleanups:  fl.totalCleanups,
	}
}
