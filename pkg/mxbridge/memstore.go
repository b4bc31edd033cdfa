// Copyright 2024-2026 Aiku AI

package mxbridge

import (
	"sync"

	"maunium.net/go/mautrix/id"

	"github.com/aiku/mautrix-skype/pkg/connector"
)

// MemStore is an in-memory connector.EventStore. Mappings are lost on
// restart, which matches the relay's dedup and deletion windows: all of
// them are shorter-lived than any plausible restart gap.
type MemStore struct {
	mu     sync.Mutex
	remote map[string]string       // accountID\x00homeID -> remoteID
	home   map[string][]id.EventID // accountID\x00remoteID -> homeIDs
}

var _ connector.EventStore = (*MemStore)(nil)

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		remote: make(map[string]string),
		home:   make(map[string][]id.EventID),
	}
}

// Insert records a home/remote id pair in both directions.
func (s *MemStore) Insert(accountID string, homeID id.EventID, remoteID string) {
	if homeID == "" || remoteID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remote[accountID+"\x00"+string(homeID)] = remoteID
	key := accountID + "\x00" + remoteID
	s.home[key] = append(s.home[key], homeID)
}

// GetRemote returns the remote message id a home event was bridged to.
func (s *MemStore) GetRemote(accountID string, homeID id.EventID) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	remoteID, ok := s.remote[accountID+"\x00"+string(homeID)]
	return remoteID, ok
}

// GetHome returns every home event bridged from a remote message.
func (s *MemStore) GetHome(accountID, remoteID string) ([]id.EventID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	homeIDs, ok := s.home[accountID+"\x00"+remoteID]
	return homeIDs, ok
}
