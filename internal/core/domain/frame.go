package domain

import "time"

// Frame is the most recently assembled image. Only one is retained.
type Frame struct {
	Payload    []byte
	CapturedAt time.Time
	Sequence   uint64
}

// Ingress is one camera upload connection feeding the frame store.
type Ingress struct {
	ID         string
	RemoteAddr string
	StartedAt  time.Time
}
