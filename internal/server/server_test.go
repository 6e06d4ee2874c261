package server_test

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/wanderchat/test/testhelpers"
)

func TestRootHealthText(t *testing.T) {
	env := testhelpers.StartServer(t, testhelpers.Options{})

	resp := testhelpers.MakeRequest(t, http.MethodGet, env.Server.URL+"/", nil)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	assert.Equal(t, "WanderChat server is running!", string(body))
}

func TestAPIHealthReportsConnections(t *testing.T) {
	env := testhelpers.StartServer(t, testhelpers.Options{})
	_ = env.MustDial(t, "/ws/chat", nil)

	require.Eventually(t, func() bool { return env.App.Room().Count() == 1 }, testhelpers.DefaultTimeout, pollInterval)

	resp := testhelpers.MakeRequest(t, http.MethodGet, env.Server.URL+"/api/health", nil)
	defer func() { _ = resp.Body.Close() }()

	var health struct {
		Status      string         `json:"status"`
		Timestamp   string         `json:"timestamp"`
		Env         string         `json:"env"`
		Connections map[string]int `json:"connections"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "development", health.Env)
	assert.NotEmpty(t, health.Timestamp)
	assert.Equal(t, 1, health.Connections["room"])
	assert.Equal(t, 0, health.Connections["messaging"])
}

func TestClientLogSink(t *testing.T) {
	env := testhelpers.StartServer(t, testhelpers.Options{})

	tests := []struct {
		name   string
		body   string
		status int
		want   string
	}{
		{"valid report", `{"message":"boom","stack":"at x"}`, http.StatusOK, `{"success":true}`},
		{"invalid json", `{"message":`, http.StatusBadRequest, `{"success":false}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := testhelpers.MakeRequest(t, http.MethodPost, env.Server.URL+"/api/log", []byte(tt.body))
			defer func() { _ = resp.Body.Close() }()

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.JSONEq(t, tt.want, string(body))
		})
	}
}

func TestWebSocketEndpointsRejectNonGetMethods(t *testing.T) {
	env := testhelpers.StartServer(t, testhelpers.Options{})

	methods := []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch}
	for _, path := range []string{"/websocket", "/ws/chat"} {
		for _, method := range methods {
			t.Run(method+" "+path, func(t *testing.T) {
				resp := testhelpers.MakeRequest(t, method, env.Server.URL+path, nil)
				defer func() { _ = resp.Body.Close() }()
				assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
			})
		}
	}
}

func TestRoomEndpointRequiresUpgrade(t *testing.T) {
	env := testhelpers.StartServer(t, testhelpers.Options{})

	resp := testhelpers.MakeRequest(t, http.MethodGet, env.Server.URL+"/ws/chat", nil)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTestPageTargetsRoom(t *testing.T) {
	env := testhelpers.StartServer(t, testhelpers.Options{})

	resp := testhelpers.MakeRequest(t, http.MethodGet, env.Server.URL+"/test", nil)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "text/html", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(body), "location.host + '/ws/chat'")
	assert.Contains(t, string(body), "type: 'auth'")
}

func TestMetricsEndpoint(t *testing.T) {
	env := testhelpers.StartServer(t, testhelpers.Options{})

	// A rejected handshake guarantees at least one labelled series exists.
	rejected, resp, err := env.Dial("/websocket", nil)
	require.Error(t, err)
	require.Nil(t, rejected)
	_ = resp.Body.Close()

	resp = testhelpers.MakeRequest(t, http.MethodGet, env.Server.URL+"/metrics", nil)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `wanderchat_handshake_rejected_total{status="401"} 1`), string(body))
}

func TestAuthRoutesAreMounted(t *testing.T) {
	env := testhelpers.StartServer(t, testhelpers.Options{})
	env.CreateUser(t, "guest", "welcome123")

	cookie := env.Login(t, "guest", "welcome123")
	req, err := http.NewRequest(http.MethodGet, env.Server.URL+"/api/user", http.NoBody)
	require.NoError(t, err)
	req.AddCookie(cookie)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var user map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&user))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "guest", user["username"])
	assert.NotContains(t, user, "password")
}
