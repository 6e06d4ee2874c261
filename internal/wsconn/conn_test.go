package wsconn

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu     sync.Mutex
	frames []string
	closed chan struct{}
	onData func(c *Conn, data []byte)
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{closed: make(chan struct{})}
}

func (h *recordingHandler) HandleFrame(c *Conn, data []byte) {
	h.mu.Lock()
	h.frames = append(h.frames, string(data))
	h.mu.Unlock()
	if h.onData != nil {
		h.onData(c, data)
	}
}

func (h *recordingHandler) HandleClose(*Conn) {
	close(h.closed)
}

func (h *recordingHandler) Frames() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.frames...)
}

// startServer serves every upgrade with h and hands the server-side Conn to conns.
func startServer(t *testing.T, opts Options, h Handler) (string, <-chan *Conn) {
	t.Helper()
	conns := make(chan *Conn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := New(ws, r.RemoteAddr, opts, nil)
		conns <- c
		c.Serve(h)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), conns
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func TestServeEchoesThroughSend(t *testing.T) {
	h := newRecordingHandler()
	h.onData = func(c *Conn, data []byte) { c.Send(append([]byte("echo:"), data...)) }
	url, _ := startServer(t, Options{}, h)

	client := dial(t, url)
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("one")))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("two")))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, first, err := client.ReadMessage()
	require.NoError(t, err)
	_, second, err := client.ReadMessage()
	require.NoError(t, err)

	assert.Equal(t, "echo:one", string(first))
	assert.Equal(t, "echo:two", string(second))
}

func TestServerCloseSendsCloseFrame(t *testing.T) {
	h := newRecordingHandler()
	url, conns := startServer(t, Options{}, h)

	client := dial(t, url)
	serverConn := <-conns
	serverConn.Close()

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := client.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	select {
	case <-h.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleClose was not called")
	}
	assert.False(t, serverConn.IsOpen())
	assert.False(t, serverConn.Send([]byte("late")))
}

func TestClientDisconnectRunsHandleClose(t *testing.T) {
	h := newRecordingHandler()
	url, conns := startServer(t, Options{}, h)

	client := dial(t, url)
	serverConn := <-conns
	require.NoError(t, client.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	_ = client.Close()

	select {
	case <-h.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleClose was not called")
	}
	assert.False(t, serverConn.IsOpen())
}

func TestRateLimitDiscardsExcessFrames(t *testing.T) {
	var discarded atomic.Int32
	h := newRecordingHandler()
	opts := Options{
		RateLimit:     RateLimit{Burst: 2, RefillInterval: time.Minute},
		OnRateLimited: func() { discarded.Add(1) },
	}
	h.onData = func(c *Conn, _ []byte) { c.Send([]byte("ok")) }
	url, _ := startServer(t, opts, h)

	client := dial(t, url)
	for i := 0; i < 5; i++ {
		require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("x")))
	}
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("x")))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	for i := 0; i < 2; i++ {
		_, _, err := client.ReadMessage()
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return discarded.Load() == 4 }, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, h.Frames(), 2)
}

func TestPanicInHandlerKeepsConnectionOpen(t *testing.T) {
	h := newRecordingHandler()
	h.onData = func(c *Conn, data []byte) {
		if string(data) == "boom" {
			panic("handler failure")
		}
		c.Send([]byte("alive"))
	}
	url, _ := startServer(t, Options{}, h)

	client := dial(t, url)
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("boom")))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("ping")))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "alive", string(data))
}

func TestOversizedFrameClosesConnection(t *testing.T) {
	h := newRecordingHandler()
	url, _ := startServer(t, Options{MaxMessageSize: 16}, h)

	client := dial(t, url)
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("a", 64))))

	select {
	case <-h.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("oversized frame did not close the connection")
	}
	assert.Empty(t, h.Frames())
}

func TestSendOnFullBufferClosesConnection(t *testing.T) {
	c := New(nil, "test", Options{SendBuffer: 1}, nil)

	assert.True(t, c.IsOpen())
	assert.True(t, c.Send([]byte("first")))
	assert.False(t, c.Send([]byte("second")))
	assert.False(t, c.IsOpen())

	select {
	case <-c.Done():
	default:
		t.Fatal("Done channel not closed")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	c := New(nil, "test", Options{}, nil)
	assert.NotPanics(t, func() {
		c.Close()
		c.Close()
	})
	assert.Equal(t, "test", c.Addr())
}

func TestOptionsDefaults(t *testing.T) {
	opts := Options{PongWait: time.Second, PingPeriod: 2 * time.Second}.withDefaults()
	assert.Equal(t, int64(4096), opts.MaxMessageSize)
	assert.Equal(t, 256, opts.SendBuffer)
	assert.Less(t, opts.PingPeriod, opts.PongWait)
	assert.Equal(t, 10*time.Second, opts.WriteWait)
}

func TestIsExpectedCloseError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, true},
		{websocket.ErrCloseSent, true},
		{errors.New("write tcp: use of closed network connection"), true},
		{errors.New("write: broken pipe"), true},
		{errors.New("read: connection reset by peer"), true},
		{errors.New("something else"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsExpectedCloseError(tt.err), "%v", tt.err)
	}
}
