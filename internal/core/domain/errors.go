package domain

import "errors"

var (
	ErrPeerNotFound      = errors.New("peer not found")
	ErrPeerClosed        = errors.New("peer closed")
	ErrRoleTransition    = errors.New("role transition not allowed")
	ErrFrameNotFound     = errors.New("no frame assembled yet")
	ErrSendQueueFull     = errors.New("send queue full")
	ErrArgumentRange     = errors.New("argument out of range")
)
