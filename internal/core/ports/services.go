package ports

import (
	"context"

	"telerelay/internal/core/domain"
)

// MessageSender delivers to a single peer without blocking the caller.
type MessageSender interface {
	SendText(id domain.PeerID, text string) error
	SendBinary(id domain.PeerID, payload []byte) error
}

type RouterService interface {
	HandleConnect(ctx context.Context, peer domain.Peer)
	HandleText(ctx context.Context, id domain.PeerID, text string) error
	HandleBinary(ctx context.Context, id domain.PeerID, payload []byte) error
	HandleDisconnect(ctx context.Context, id domain.PeerID) error
}

// FrameSink receives each frame the assembler extracts.
type FrameSink interface {
	PublishFrame(ctx context.Context, payload []byte) error
}

// FrameService publishes and serves the latest frame and tracks the camera
// ingress currently feeding it.
type FrameService interface {
	FrameSink
	LatestFrame(ctx context.Context) (domain.Frame, error)
	BeginIngress(ctx context.Context, remoteAddr string) domain.Ingress
	EndIngress(ctx context.Context, ingress domain.Ingress, frames uint64)
	ActiveIngress() (domain.Ingress, bool)
}

// RelayMetrics records routing outcomes. Implementations must be safe for
// concurrent use.
type RelayMetrics interface {
	RecordCommand(verb string, outcome string)
	RecordBroadcast(kind string, recipients int, failed int)
	RecordDropped(reason string)
	SetConnectedPeers(count int)
}

// IngressMetrics records MJPEG ingress activity.
type IngressMetrics interface {
	RecordFrame(bytes int)
	RecordIngress(event string)
	SetIngressActive(active bool)
}
