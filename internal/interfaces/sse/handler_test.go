package sse

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-content-push/internal/domain/content"
	"go-content-push/internal/infrastructure/hub"
	"go-content-push/internal/infrastructure/logger"
)

func newTestServer(t *testing.T, start bool) (*hub.Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := hub.New(logger.NewNop(), hub.WithUpdateInterval(time.Hour, time.Hour))
	if start {
		require.NoError(t, h.Start(context.Background()))
	}

	router := gin.New()
	InitSSERouter(logger.NewNop(), h, 0, router.Group(""))
	srv := httptest.NewServer(router)

	t.Cleanup(func() {
		_ = h.Stop(context.Background())
		srv.Close()
	})
	return h, srv
}

// readEvent reads one blank-line terminated frame and decodes it.
func readEvent(t *testing.T, r *bufio.Reader) sse.Event {
	t.Helper()
	var frame bytes.Buffer
	for {
		line, err := r.ReadBytes('\n')
		require.NoError(t, err)
		frame.Write(line)
		if len(bytes.TrimRight(line, "\r\n")) == 0 {
			break
		}
	}
	events, err := sse.Decode(&frame)
	require.NoError(t, err)
	require.Len(t, events, 1)
	return events[0]
}

func decodeContent(t *testing.T, ev sse.Event) content.Content {
	t.Helper()
	var c content.Content
	require.NoError(t, json.Unmarshal([]byte(fmt.Sprint(ev.Data)), &c))
	return c
}

func openStream(t *testing.T, ctx context.Context, url string) (*http.Response, *bufio.Reader) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp, bufio.NewReader(resp.Body)
}

func TestConnect_StreamsInitialAndUpdates(t *testing.T) {
	h, srv := newTestServer(t, true)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, body := openStream(t, ctx, srv.URL)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	first := readEvent(t, body)
	assert.Equal(t, h.Current(), decodeContent(t, first))

	next := h.Tick()
	assert.Equal(t, next, decodeContent(t, readEvent(t, body)))
}

// Three clients receive the same payload for one update.
func TestConnect_FanOutToThreeClients(t *testing.T) {
	h, srv := newTestServer(t, true)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	readers := make([]*bufio.Reader, 3)
	for i := range readers {
		_, readers[i] = openStream(t, ctx, srv.URL)
		readEvent(t, readers[i])
	}
	require.Equal(t, 3, h.Stats().SSE)

	next := h.Tick()
	for _, r := range readers {
		assert.Equal(t, next, decodeContent(t, readEvent(t, r)))
	}
}

func TestConnect_ClientDisconnectDeregisters(t *testing.T) {
	h, srv := newTestServer(t, true)
	ctx, cancel := context.WithCancel(context.Background())

	_, body := openStream(t, ctx, srv.URL)
	readEvent(t, body)
	require.Equal(t, 1, h.Stats().SSE)

	cancel()
	require.Eventually(t, func() bool { return h.Stats().SSE == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.NotPanics(t, func() { h.Tick() })
}

func TestConnect_HubStoppedEndsStream(t *testing.T) {
	h, srv := newTestServer(t, true)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, body := openStream(t, ctx, srv.URL)
	readEvent(t, body)

	require.NoError(t, h.Stop(context.Background()))
	_, err := body.ReadBytes('\n')
	assert.Error(t, err, "stream should end when the hub stops")
}

func TestConnect_HubNotRunning(t *testing.T) {
	_, srv := newTestServer(t, false)

	resp, err := http.Get(srv.URL + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
