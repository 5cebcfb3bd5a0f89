package hub

import "errors"

var (
	ErrConnectionClosed  = errors.New("connection is closed")
	ErrSendBufferFull    = errors.New("send buffer full")
	ErrAlreadyResponded  = errors.New("long-poll request already answered")
	ErrHubAlreadyRunning = errors.New("hub is already running")
	ErrHubStopped        = errors.New("hub is stopped")
)
