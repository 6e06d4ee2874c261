// Package testhelpers provides common utilities and helper functions for testing the WanderChat server.
//
// It starts an App behind an httptest server with in-memory stores, dials either
// WebSocket surface with the right Origin and Cookie headers, and reads JSON
// frames with deadlines so that tests never hang.
package testhelpers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/wanderchat/internal/auth"
	"github.com/Tyrowin/wanderchat/internal/server"
	"github.com/Tyrowin/wanderchat/internal/store"
)

// DefaultTimeout bounds every blocking read in the helpers.
const DefaultTimeout = 2 * time.Second

// Env is a running test server.
type Env struct {
	App      *server.App
	Server   *httptest.Server
	Users    store.UserStore
	Sessions store.SessionStore
	Origin   string
}

// Options customize StartServer.
type Options struct {
	// Configure mutates the config before the App is built.
	Configure func(cfg *server.Config)
	Users     store.UserStore
	Sessions  store.SessionStore
}

// StartServer runs the full router on a local listener. The server's own
// URL is the only allowed origin unless Configure changes it.
func StartServer(t *testing.T, opts Options) *Env {
	t.Helper()

	if opts.Users == nil {
		opts.Users = store.NewMemoryUserStore()
	}
	if opts.Sessions == nil {
		opts.Sessions = store.NewMemorySessionStore()
	}

	ts := httptest.NewUnstartedServer(nil)
	origin := "http://" + ts.Listener.Addr().String()

	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{origin}
	cfg.Session.Secret = "test-secret"
	if opts.Configure != nil {
		opts.Configure(cfg)
	}

	app := server.NewApp(cfg, server.Deps{Users: opts.Users, Sessions: opts.Sessions})
	ts.Config.Handler = server.SetupRoutes(app)
	ts.Start()

	t.Cleanup(func() {
		_ = app.Shutdown(DefaultTimeout)
		ts.Close()
	})

	return &Env{App: app, Server: ts, Users: opts.Users, Sessions: opts.Sessions, Origin: origin}
}

// WebSocketURL converts the server URL to a ws:// URL for path.
func (e *Env) WebSocketURL(path string) string {
	return "ws" + strings.TrimPrefix(e.Server.URL, "http") + path
}

// CreateUser registers username with password directly in the user store.
func (e *Env) CreateUser(t *testing.T, username, password string) store.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	rec, err := e.Users.CreateUser(context.Background(), username, hash)
	require.NoError(t, err)
	return rec.Identity()
}

// Login posts credentials to /api/login and returns the session cookie.
func (e *Env) Login(t *testing.T, username, password string) *http.Cookie {
	t.Helper()

	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	require.NoError(t, err)

	resp, err := http.Post(e.Server.URL+"/api/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for _, c := range resp.Cookies() {
		if c.Name == e.App.Config().Session.CookieName {
			return c
		}
	}
	t.Fatal("login response did not set a session cookie")
	return nil
}

// Dial opens a WebSocket to path with the allowed Origin and an optional cookie.
// The handshake response is returned so that rejections can be inspected.
func (e *Env) Dial(path string, cookie *http.Cookie) (*websocket.Conn, *http.Response, error) {
	headers := http.Header{}
	headers.Set("Origin", e.Origin)
	if cookie != nil {
		headers.Set("Cookie", cookie.Name+"="+cookie.Value)
	}
	return ConnectWebSocket(e.WebSocketURL(path), headers)
}

// MustDial is Dial that fails the test on error and closes the socket on cleanup.
func (e *Env) MustDial(t *testing.T, path string, cookie *http.Cookie) *websocket.Conn {
	t.Helper()
	conn, resp, err := e.Dial(path, cookie)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// ConnectWebSocket creates a WebSocket connection to the specified URL.
func ConnectWebSocket(url string, headers http.Header) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	return dialer.Dial(url, headers)
}

// MakeRequest creates and executes an HTTP request, returning the response.
func MakeRequest(t *testing.T, method, url string, body []byte) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}

// ReadFrame reads one JSON frame within DefaultTimeout.
func ReadFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(DefaultTimeout)))
	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

// ReadFrameOfType reads frames until one of frameType arrives.
func ReadFrameOfType(t *testing.T, conn *websocket.Conn, frameType string) map[string]any {
	t.Helper()
	for {
		frame := ReadFrame(t, conn)
		if frame["type"] == frameType {
			return frame
		}
	}
}

// ExpectNoFrame asserts that nothing arrives within wait. A timed-out
// gorilla connection cannot be read again, so call it last.
func ExpectNoFrame(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "expected no frame, got %s", data)

	var netErr net.Error
	require.True(t, errors.As(err, &netErr) && netErr.Timeout(), "expected read timeout, got %v", err)
}

// ExpectClose reads until the server closes conn and returns the close code.
func ExpectClose(t *testing.T, conn *websocket.Conn) int {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(DefaultTimeout)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var closeErr *websocket.CloseError
		require.True(t, errors.As(err, &closeErr), "expected close frame, got %v", err)
		return closeErr.Code
	}
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
