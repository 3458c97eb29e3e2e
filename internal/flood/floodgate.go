// Package flood provides per-client rate limiting for the search API, so a
// single caller cannot hammer the upstream metadata services through us.
package flood

import (
	"sync"
	"time"
)

const (
	// windowDuration is the sliding window every budget is counted over.
	windowDuration = time.Minute
	// idleEvictAfter is how long a client may sit idle before its entry is
	// dropped. Two full windows: by then no timestamp can still count.
	idleEvictAfter  = 2 * windowDuration
	cleanupInterval = 10 * time.Minute
)

// Floodgate enforces a per-client sliding-window search budget, keyed by
// whatever identifier the caller supplies (the API uses the remote IP).
type Floodgate struct {
	limitPerMinute int
	entries        map[string]*clientEntry
	mutex          sync.RWMutex
	stopCleanup    chan struct{}
}

type clientEntry struct {
	timestamps []time.Time
	lastSeen   time.Time
}

// New creates a floodgate allowing limitPerMinute searches per client over
// a one-minute sliding window, with a background sweep of idle clients.
func New(limitPerMinute int) *Floodgate {
	fg := &Floodgate{
		limitPerMinute: limitPerMinute,
		entries:        make(map[string]*clientEntry),
		stopCleanup:    make(chan struct{}),
	}

	go fg.cleanup()

	return fg
}

// Stop halts the background sweep.
func (fg *Floodgate) Stop() {
	close(fg.stopCleanup)
}

// Allow reports whether a search from the given client may proceed, and
// counts it against the client's budget when it may.
func (fg *Floodgate) Allow(clientID string) bool {
	now := time.Now()

	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	entry, exists := fg.entries[clientID]
	if !exists {
		entry = &clientEntry{
			timestamps: make([]time.Time, 0, fg.limitPerMinute+1),
		}
		fg.entries[clientID] = entry
	}

	entry.lastSeen = now

	windowStart := now.Add(-windowDuration)
	live := entry.timestamps[:0]
	for _, ts := range entry.timestamps {
		if ts.After(windowStart) {
			live = append(live, ts)
		}
	}
	entry.timestamps = live

	if len(entry.timestamps) >= fg.limitPerMinute {
		return false
	}

	entry.timestamps = append(entry.timestamps, now)
	return true
}

func (fg *Floodgate) cleanup() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fg.evictIdle()
		case <-fg.stopCleanup:
			return
		}
	}
}

func (fg *Floodgate) evictIdle() {
	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	cutoff := time.Now().Add(-idleEvictAfter)
	for key, entry := range fg.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(fg.entries, key)
		}
	}
}

// Stats reports the gate's current load for the daemon's periodic stats
// log.
type Stats struct {
	ActiveClients  int
	LimitPerMinute int
}

func (fg *Floodgate) Stats() Stats {
	fg.mutex.RLock()
	defer fg.mutex.RUnlock()

	return Stats{
		ActiveClients:  len(fg.entries),
		LimitPerMinute: fg.limitPerMinute,
	}
}
