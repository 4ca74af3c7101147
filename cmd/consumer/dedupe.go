package main

import "sync"

const recentKeyCapacity = 10000

// recentKeys remembers the last capacity keys. The oldest key is forgotten first.
type recentKeys struct {
	mu    sync.Mutex
	set   map[string]struct{}
	ring  []string
	next  int
	limit int
}

func newRecentKeys(capacity int) *recentKeys {
	return &recentKeys{
		set:   make(map[string]struct{}, capacity),
		ring:  make([]string, capacity),
		limit: capacity,
	}
}

// add records key and reports whether it was new.
func (r *recentKeys) add(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.set[key]; ok {
		return false
	}

	if old := r.ring[r.next]; old != "" {
		delete(r.set, old)
	}

	r.ring[r.next] = key
	r.set[key] = struct{}{}
	r.next = (r.next + 1) % r.limit

	return true
}
