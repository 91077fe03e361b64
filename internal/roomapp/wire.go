package roomapp

import (
	"net/http"

	"ratchetroom/internal/domain/interfaces"
	"ratchetroom/internal/store"
	"ratchetroom/internal/transport"
)

// Wire bundles the stores and transport clients the CLI needs. The
// orchestrator.Room itself is constructed per-room, not here, since one
// process may join several rooms concurrently.
type Wire struct {
	Seeds     interfaces.SeedStore
	Rooms     *store.RoomFileStore
	Transport interfaces.Transport
	HTTP      *http.Client
}

// NewWire constructs the dependency graph from cfg.
func NewWire(cfg Config) (*Wire, error) {
	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	seeds := store.NewSeedFileStore(cfg.Home)
	rooms := store.NewRoomFileStore(cfg.Home)
	tr := transport.NewHTTP(cfg.RelayURL, cfg.Address)
	tr.HTTP = httpClient

	return &Wire{Seeds: seeds, Rooms: rooms, Transport: tr, HTTP: httpClient}, nil
}
