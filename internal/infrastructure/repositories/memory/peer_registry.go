package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"telerelay/internal/core/domain"
	"telerelay/internal/core/ports"
)

// MemoryPeerRegistry keeps peers and the device singleton slots under a
// single lock, so a peer can never be half removed while a broadcast
// snapshot is being taken.
type MemoryPeerRegistry struct {
	peers      map[domain.PeerID]*domain.Peer
	singletons map[domain.Role]domain.PeerID
	lastID     domain.PeerID
	mu         sync.RWMutex
}

func NewMemoryPeerRegistry() ports.PeerRegistry {
	return &MemoryPeerRegistry{
		peers:      make(map[domain.PeerID]*domain.Peer),
		singletons: make(map[domain.Role]domain.PeerID),
	}
}

func (r *MemoryPeerRegistry) Register(ctx context.Context, remoteAddr string) domain.Peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastID++
	peer := &domain.Peer{
		ID:          r.lastID,
		Role:        domain.RoleUnclassified,
		State:       domain.PeerOpen,
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now(),
	}
	r.peers[peer.ID] = peer

	return *peer
}

func (r *MemoryPeerRegistry) Unregister(ctx context.Context, id domain.PeerID) (domain.Peer, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	peer, exists := r.peers[id]
	if !exists {
		return domain.Peer{}, false, domain.ErrPeerNotFound
	}
	delete(r.peers, id)

	holder := false
	if peer.Role.IsDevice() && r.singletons[peer.Role] == id {
		delete(r.singletons, peer.Role)
		holder = true
	}

	peer.State = domain.PeerClosed
	return *peer, holder, nil
}

func (r *MemoryPeerRegistry) SetRole(ctx context.Context, id domain.PeerID, role domain.Role) (domain.PeerID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	peer, exists := r.peers[id]
	if !exists {
		return 0, domain.ErrPeerNotFound
	}
	if peer.State != domain.PeerOpen {
		return 0, domain.ErrPeerClosed
	}

	if !transitionAllowed(peer.Role, role) {
		return 0, fmt.Errorf("%w: %s -> %s", domain.ErrRoleTransition, peer.Role, role)
	}
	peer.Role = role

	if !role.IsDevice() {
		return 0, nil
	}

	displaced := r.singletons[role]
	r.singletons[role] = id
	if displaced == id {
		displaced = 0
	}

	return displaced, nil
}

// transitionAllowed enforces monotonic classification. A device may repeat
// its own handshake to reclaim the slot.
func transitionAllowed(from, to domain.Role) bool {
	switch from {
	case domain.RoleUnclassified:
		return to != domain.RoleUnclassified
	case domain.RoleController:
		return to == domain.RoleController
	default:
		return from == to
	}
}

func (r *MemoryPeerRegistry) LookupSingleton(ctx context.Context, role domain.Role) (domain.Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.singletons[role]
	if !ok {
		return domain.Peer{}, false
	}
	peer, exists := r.peers[id]
	if !exists || peer.State != domain.PeerOpen {
		return domain.Peer{}, false
	}

	return *peer, true
}

// ForEach calls fn for every open peer in the role group, in connect order.
// The controller group includes unclassified peers. fn runs outside the lock.
func (r *MemoryPeerRegistry) ForEach(ctx context.Context, role domain.Role, fn func(domain.Peer)) {
	r.mu.RLock()
	snapshot := make([]domain.Peer, 0, len(r.peers))
	for _, peer := range r.peers {
		if peer.State != domain.PeerOpen {
			continue
		}
		if role.IsController() && peer.Role.IsController() || peer.Role == role {
			snapshot = append(snapshot, *peer)
		}
	}
	r.mu.RUnlock()

	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].ID < snapshot[j].ID
	})

	for _, peer := range snapshot {
		fn(peer)
	}
}

func (r *MemoryPeerRegistry) Get(ctx context.Context, id domain.PeerID) (domain.Peer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peer, exists := r.peers[id]
	if !exists {
		return domain.Peer{}, domain.ErrPeerNotFound
	}

	return *peer, nil
}

func (r *MemoryPeerRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.peers)
}
