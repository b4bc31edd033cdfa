// Copyright 2024-2026 Aiku AI

package connector

import (
	"sync"
	"time"
)

// ExpiringSet is a string set whose members vanish after a fixed TTL.
// Expiry is lazy: lookups evict stale members before matching, so there is
// no background sweeper to manage.
type ExpiringSet struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time
	now     func() time.Time
}

// NewExpiringSet creates a set whose members live for ttl.
func NewExpiringSet(ttl time.Duration) *ExpiringSet {
	return &ExpiringSet{
		ttl:     ttl,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Add inserts key, resetting its TTL if already present.
func (s *ExpiringSet) Add(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = s.now()
}

// Has reports whether key is present and unexpired.
func (s *ExpiringSet) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	created, ok := s.entries[key]
	if !ok {
		return false
	}
	if s.now().Sub(created) > s.ttl {
		delete(s.entries, key)
		return false
	}
	return true
}

// dedupEntry records one in-flight or recently completed local send.
type dedupEntry struct {
	sender   string
	content  string
	serverID string
	created  time.Time
	consumed bool
}

// Deduplicator suppresses the remote network's echo of locally-originated
// sends. A lock is taken before the send call and rebound to the
// server-assigned id once the send returns; an inbound event matching the
// recorded (sender, content) pair or the server id within the window is
// swallowed exactly once.
type Deduplicator struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string][]*dedupEntry
	now     func() time.Time
}

// NewDeduplicator creates a deduplicator whose entries expire after ttl.
func NewDeduplicator(ttl time.Duration) *Deduplicator {
	return &Deduplicator{
		ttl:     ttl,
		entries: make(map[string][]*dedupEntry),
		now:     time.Now,
	}
}

// Lock reserves a dedup entry for a send that is about to start. key is the
// composite (account, conversation) key, sender the account's own remote
// identity and content the exact rendered payload.
func (d *Deduplicator) Lock(key, sender, content string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.evict(key)
	d.entries[key] = append(d.entries[key], &dedupEntry{
		sender:  sender,
		content: content,
		created: d.now(),
	})
}

// Unlock binds the server-assigned id to the most recent pending lock for
// (key, sender), so a later echo carrying only that id still matches.
func (d *Deduplicator) Unlock(key, sender, serverID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := d.entries[key]
	for i := len(list) - 1; i >= 0; i-- {
		e := list[i]
		if e.sender == sender && e.serverID == "" && !e.consumed {
			e.serverID = serverID
			return
		}
	}
}

// Discard drops the most recent pending lock for (key, sender). Called when
// the send itself failed and no echo will ever arrive.
func (d *Deduplicator) Discard(key, sender string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := d.entries[key]
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].sender == sender && list[i].serverID == "" && !list[i].consumed {
			d.entries[key] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Dedup reports whether an inbound event is the echo of a locked local
// send. A match consumes the entry, so a second identical event is
// delivered normally.
func (d *Deduplicator) Dedup(key, sender, messageID, content string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.evict(key)
	for _, e := range d.entries[key] {
		if e.consumed || e.sender != sender {
			continue
		}
		if e.content == content || (messageID != "" && messageID == e.serverID) {
			e.consumed = true
			return true
		}
	}
	return false
}

// evict drops expired entries for key. Caller holds the mutex.
func (d *Deduplicator) evict(key string) {
	list := d.entries[key]
	if len(list) == 0 {
		return
	}
	cutoff := d.now().Add(-d.ttl)
	kept := list[:0]
	for _, e := range list {
		if e.created.After(cutoff) {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(d.entries, key)
	} else {
		d.entries[key] = kept
	}
}
