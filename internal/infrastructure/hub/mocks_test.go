package hub

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"go-content-push/internal/domain/content"
	"go-content-push/internal/infrastructure/logger"
	"go-content-push/internal/infrastructure/metrics"
)

var errBrokenPipe = errors.New("broken pipe")

func newTestMetrics(t *testing.T) *metrics.Metrics {
	t.Helper()
	return metrics.New(prometheus.NewRegistry())
}

func testLogger() logger.Logger {
	return logger.NewNop()
}

// sequenceRand returns 0, 1, 2, ... modulo n. Safe for concurrent use.
type sequenceRand struct {
	next atomic.Int64
}

func (s *sequenceRand) IntN(n int) int {
	return int((s.next.Add(1) - 1) % int64(n))
}

// constRand always returns v modulo n.
type constRand int

func (c constRand) IntN(n int) int { return int(c) % n }

type mockStream struct {
	mu       sync.Mutex
	frames   [][]byte
	err      error
	panics   bool
	isClosed bool
	closed   closeNotifier
}

func (m *mockStream) Send(frame []byte) error {
	if m.panics {
		panic("stream exploded")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.frames = append(m.frames, frame)
	return nil
}

func (m *mockStream) Close() error {
	m.mu.Lock()
	m.isClosed = true
	m.mu.Unlock()
	return nil
}

func (m *mockStream) OnClose(handler func()) { m.closed.add(handler) }

func (m *mockStream) disconnect() { m.closed.fire() }

func (m *mockStream) received() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.frames))
	copy(out, m.frames)
	return out
}

type mockSocket struct {
	mu       sync.Mutex
	messages [][]byte
	state    atomic.Int32
	err      error
	closed   closeNotifier
}

func newMockSocket() *mockSocket {
	s := &mockSocket{}
	s.state.Store(int32(StateOpen))
	return s
}

func (m *mockSocket) Send(payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, payload)
	return nil
}

func (m *mockSocket) State() SocketState { return SocketState(m.state.Load()) }

func (m *mockSocket) Close() error {
	m.state.Store(int32(StateClosed))
	m.closed.fire()
	return nil
}

func (m *mockSocket) OnClose(handler func()) { m.closed.add(handler) }

func (m *mockSocket) received() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.messages))
	copy(out, m.messages)
	return out
}

// mockLongPoll records every Respond call, so a double resolution shows up
// as two responses.
type mockLongPoll struct {
	mu        sync.Mutex
	responses []content.Content
	closed    closeNotifier
}

func (m *mockLongPoll) Respond(c content.Content) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, c)
	return nil
}

func (m *mockLongPoll) OnClose(handler func()) { m.closed.add(handler) }

func (m *mockLongPoll) disconnect() { m.closed.fire() }

func (m *mockLongPoll) received() []content.Content {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]content.Content, len(m.responses))
	copy(out, m.responses)
	return out
}

func (m *mockLongPoll) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.responses)
}
