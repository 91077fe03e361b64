// Package transport provides two concrete interfaces.Transport
// implementations that carry the exact JSON frames of §6: an in-memory
// registry for tests and same-process demos (grounded in
// Terrorknubbel-zero's DummyTransport peer registry), and an HTTP relay
// client (grounded in the teacher's internal/relay/http.go).
package transport

import (
	"context"
	"fmt"
	"sync"

	"ratchetroom/internal/domain/interfaces"
)

var _ interfaces.Transport = (*Memory)(nil)

// Memory is an in-process duplex transport. Every participating address
// must Register itself on the shared Hub before frames addressed to it
// can be delivered.
type Memory struct {
	hub  *Hub
	self string
	inbox chan inboundFrame
}

type inboundFrame struct {
	from  string
	frame []byte
}

// Hub is the shared registry a set of Memory transports join, mirroring
// DummyTransport's peer map in the teacher-adjacent example.
type Hub struct {
	mu       sync.Mutex
	peers    map[string]*Memory
}

// NewHub creates an empty registry.
func NewHub() *Hub {
	return &Hub{peers: make(map[string]*Memory)}
}

// Join registers address on the hub and returns its Transport handle.
func (h *Hub) Join(address string) *Memory {
	m := &Memory{hub: h, self: address, inbox: make(chan inboundFrame, 64)}
	h.mu.Lock()
	h.peers[address] = m
	h.mu.Unlock()
	return m
}

// Leave removes address from the hub; further sends to it fail.
func (h *Hub) Leave(address string) {
	h.mu.Lock()
	delete(h.peers, address)
	h.mu.Unlock()
}

// Peers lists every address currently registered except exclude, for
// callers that need to broadcast a presence frame to the rest of a room.
func (h *Hub) Peers(exclude string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.peers))
	for addr := range h.peers {
		if addr != exclude {
			out = append(out, addr)
		}
	}
	return out
}

func (m *Memory) Send(ctx context.Context, toAddress string, frame []byte) error {
	m.hub.mu.Lock()
	dst, ok := m.hub.peers[toAddress]
	m.hub.mu.Unlock()
	if !ok {
		return fmt.Errorf("transport: no such peer %q", toAddress)
	}
	select {
	case dst.inbox <- inboundFrame{from: m.self, frame: frame}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Memory) Recv(ctx context.Context) (string, []byte, error) {
	select {
	case f := <-m.inbox:
		return f.from, f.frame, nil
	case <-ctx.Done():
		return "", nil, ctx.Err()
	}
}
