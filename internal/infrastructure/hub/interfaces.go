package hub

import "go-content-push/internal/domain/content"

// SocketState is the lifecycle state of a socket: Connecting -> Open -> Closed.
type SocketState int32

const (
	StateConnecting SocketState = iota
	StateOpen
	StateClosed
)

func (s SocketState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CloseNotifier lets the hub subscribe to a connection's close event.
// Handlers run at most once; a handler added after close runs immediately.
type CloseNotifier interface {
	OnClose(handler func())
}

// StreamClient is an open event stream. Send receives a fully framed event.
type StreamClient interface {
	CloseNotifier
	Send(frame []byte) error
	Close() error
}

// SocketClient is a bidirectional socket, tracked by identity.
type SocketClient interface {
	CloseNotifier
	Send(payload []byte) error
	State() SocketState
	Close() error
}

// LongPollClient is a held request answered by exactly one Respond call.
type LongPollClient interface {
	CloseNotifier
	Respond(c content.Content) error
}
