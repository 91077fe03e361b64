package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"ratchetroom/internal/orchestrator"
)

// RoomFileStore persists one orchestrator.RoomSnapshot per (self, peer)
// pair as its own JSON file under home, so join can run once and send/
// recv can each start a fresh process against the session it left
// behind.
type RoomFileStore struct {
	mu   sync.Mutex
	home string
}

// NewRoomFileStore roots session files at home/session-<self>-<peer>.json.
func NewRoomFileStore(home string) *RoomFileStore {
	return &RoomFileStore{home: home}
}

func (s *RoomFileStore) path(self, peer string) string {
	name := fmt.Sprintf("session-%s-%s.json", strings.ToLower(self), strings.ToLower(peer))
	return filepath.Join(s.home, name)
}

// Save writes snap to disk, keyed by self and snap.PeerAddress.
func (s *RoomFileStore) Save(_ context.Context, self string, snap orchestrator.RoomSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(s.path(self, snap.PeerAddress), snap, 0o600)
}

// Load reads back a session saved by Save. found is false if no session
// exists yet for that (self, peer) pair.
func (s *RoomFileStore) Load(_ context.Context, self, peer string) (snap orchestrator.RoomSnapshot, found bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	found, err = readJSON(s.path(self, peer), &snap)
	if err != nil {
		return orchestrator.RoomSnapshot{}, false, fmt.Errorf("load session: %w", err)
	}
	return snap, found, nil
}
