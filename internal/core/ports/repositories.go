package ports

import (
	"context"

	"telerelay/internal/core/domain"
)

// PeerRegistry owns every connected peer and the device singleton slots.
// Peers are returned by value; mutate them only through the registry.
type PeerRegistry interface {
	Register(ctx context.Context, remoteAddr string) domain.Peer
	// Unregister removes the peer from every group. holder is true when
	// the peer still owned its role's singleton slot, which is cleared.
	Unregister(ctx context.Context, id domain.PeerID) (peer domain.Peer, holder bool, err error)
	// SetRole classifies a peer and, for device roles, makes it the slot
	// holder. The displaced holder id is returned (zero when none).
	SetRole(ctx context.Context, id domain.PeerID, role domain.Role) (displaced domain.PeerID, err error)
	LookupSingleton(ctx context.Context, role domain.Role) (domain.Peer, bool)
	ForEach(ctx context.Context, role domain.Role, fn func(domain.Peer))
	Get(ctx context.Context, id domain.PeerID) (domain.Peer, error)
	Count() int
}

// FrameStore retains the latest assembled frame. Put assigns the sequence.
type FrameStore interface {
	Put(ctx context.Context, frame *domain.Frame) error
	Latest(ctx context.Context) (domain.Frame, error)
}
