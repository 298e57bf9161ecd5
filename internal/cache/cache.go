// Package cache holds the in-process caches for computed read models, such
// as budget status snapshots. Entries are advisory: a miss just recomputes
// from storage, so staleness is bounded by the TTL and never corrects money.
package cache

import (
	"log/slog"
	"time"
)

// Cache is a keyed store for one snapshot type.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Size() int
}

// Cleaner is implemented by caches that can drop their expired entries.
type Cleaner interface {
	CleanExpired() int
}

// Manager sweeps expired entries out of every registered cache on a shared
// ticker, so individual caches stay lock-cheap on the read path.
type Manager struct {
	caches []Cleaner
	stop   chan struct{}
	done   chan struct{}
}

func NewManager() *Manager {
	return &Manager{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Register adds a cache to the sweep. Not safe to call after StartCleanup.
func (m *Manager) Register(c Cleaner) {
	m.caches = append(m.caches, c)
}

// StartCleanup begins the periodic sweep in a background goroutine.
func (m *Manager) StartCleanup(interval time.Duration) {
	go m.sweep(interval)
}

func (m *Manager) sweep(interval time.Duration) {
	defer close(m.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed := 0
			for _, c := range m.caches {
				removed += c.CleanExpired()
			}
			if removed > 0 {
				slog.Debug("Cache sweep removed expired entries", "removed", removed)
			}
		case <-m.stop:
			return
		}
	}
}

// Stop halts the sweep and waits for the goroutine to exit.
func (m *Manager) Stop() {
	if m.stop != nil {
		close(m.stop)
		<-m.done
	}
}
