package api_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hilthontt/impostor/internal/application/lifecycle"
	"github.com/hilthontt/impostor/internal/domain"
	"github.com/hilthontt/impostor/internal/infrastructure/configs"
	"github.com/hilthontt/impostor/internal/infrastructure/logging"
	"github.com/hilthontt/impostor/internal/infrastructure/metrics"
	"github.com/hilthontt/impostor/internal/infrastructure/profanity"
	"github.com/hilthontt/impostor/internal/infrastructure/push"
	"github.com/hilthontt/impostor/internal/infrastructure/ratelimiter"
	"github.com/hilthontt/impostor/internal/infrastructure/repository"
	"github.com/hilthontt/impostor/internal/infrastructure/roomcode"
	"github.com/hilthontt/impostor/internal/infrastructure/wordsource"
	"github.com/hilthontt/impostor/internal/infrastructure/ws"
	"github.com/hilthontt/impostor/internal/presentation/api"
	healthHandler "github.com/hilthontt/impostor/internal/presentation/handler/health"
	roomHandler "github.com/hilthontt/impostor/internal/presentation/handler/rooms"
	streamHandler "github.com/hilthontt/impostor/internal/presentation/handler/streams"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secretWord = "apple"

type testServer struct {
	*httptest.Server
	hub *push.Hub
}

func newTestServer(t *testing.T, limiter ratelimiter.Limiter) *testServer {
	t.Helper()

	logger := logging.NewNopLogger()
	m := metrics.New(prometheus.NewRegistry())
	hub := push.NewHub(10*time.Millisecond, m)

	manager := lifecycle.NewManager(
		repository.NewMemoryStore(),
		roomcode.NewGenerator(),
		wordsource.NewStaticSource(secretWord),
		hub,
		logger,
		lifecycle.WithMetrics(m),
	)

	filter, err := profanity.NewProfanityFilter()
	require.NoError(t, err)

	if limiter == nil {
		limiter = ratelimiter.New(ratelimiter.Options{MaxRatePerSecond: 1000, MaxBurst: 1000})
	}

	cfg := configs.Config{
		HTTP: configs.HTTPConfig{
			AllowedOrigins: []string{"*"},
			AllowedHeaders: []string{"Content-Type"},
		},
	}

	app := api.NewApplication(
		cfg,
		roomHandler.NewHandler(manager, nil, filter, logger),
		streamHandler.NewHandler(manager, ws.NewUpgrader(nil), logger, streamHandler.Options{}),
		healthHandler.NewHandler(nil),
		m,
		logger,
		limiter,
	)

	srv := httptest.NewServer(app.Mount())
	t.Cleanup(srv.Close)
	// ends every stream still open so Close does not wait on them
	t.Cleanup(hub.Shutdown)

	return &testServer{Server: srv, hub: hub}
}

func (s *testServer) post(t *testing.T, path string, body any) (int, map[string]any) {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(s.URL+api.APIPrefix+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()

	return resp.StatusCode, decode(t, resp.Body)
}

func (s *testServer) get(t *testing.T, path string) (int, map[string]any) {
	t.Helper()

	resp, err := http.Get(s.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	return resp.StatusCode, decode(t, resp.Body)
}

func decode(t *testing.T, r io.Reader) map[string]any {
	t.Helper()

	var out map[string]any
	require.NoError(t, json.NewDecoder(r).Decode(&out))
	return out
}

type sseEvent struct {
	Event string
	Data  string
}

// openSSE returns the events of one stream. The channel closes when the server ends the stream.
func (s *testServer) openSSE(t *testing.T, path string) <-chan sseEvent {
	t.Helper()

	resp, err := http.Get(s.URL + api.APIPrefix + path)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	t.Cleanup(func() { _ = resp.Body.Close() })

	events := make(chan sseEvent, 16)
	go func() {
		defer close(events)

		var current sseEvent
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				current.Event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				current.Data = strings.TrimPrefix(line, "data: ")
			case line == "" && current.Event != "":
				events <- current
				current = sseEvent{}
			}
		}
	}()

	return events
}

func next(t *testing.T, events <-chan sseEvent) sseEvent {
	t.Helper()

	select {
	case e, ok := <-events:
		require.True(t, ok, "stream ended")
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no event within 2s")
		return sseEvent{}
	}
}

func requireEnded(t *testing.T, events <-chan sseEvent) {
	t.Helper()

	select {
	case e, ok := <-events:
		require.False(t, ok, "unexpected event %v", e)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end")
	}
}

func TestRoundOverSSE(t *testing.T) {
	srv := newTestServer(t, nil)

	status, created := srv.post(t, "/room", map[string]string{"owner_name": "olivia", "room_name": "game night"})
	require.Equal(t, http.StatusCreated, status)
	ownerID := created["owner_id"].(string)
	roomID := created["room_id"].(string)
	code := created["room_code"].(string)
	require.Len(t, code, domain.RoomCodeLength)

	owner := srv.openSSE(t, "/sse/owner/"+ownerID)

	// codes are matched exactly
	if lower := strings.ToLower(code); lower != code {
		status, _ = srv.post(t, "/user", map[string]string{"user_name": "bob", "room_code": lower})
		assert.Equal(t, http.StatusNotFound, status)
	}

	status, bob := srv.post(t, "/user", map[string]string{"user_name": "bob", "room_code": code})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, roomID, bob["room_id"])
	assert.Equal(t, sseEvent{Event: "joined", Data: `{"type":"joined","user_name":"bob"}`}, next(t, owner))

	status, carol := srv.post(t, "/user", map[string]string{"user_name": "carol", "room_code": code})
	require.Equal(t, http.StatusCreated, status)
	next(t, owner)

	status, _ = srv.post(t, "/user", map[string]string{"user_name": "bob", "room_code": code})
	assert.Equal(t, http.StatusConflict, status)

	bobEvents := srv.openSSE(t, "/sse/player/"+bob["user_id"].(string))
	carolEvents := srv.openSSE(t, "/sse/player/"+carol["user_id"].(string))

	status, body := srv.post(t, "/start", map[string]string{"owner_id": ownerID})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Game started", body["message"])

	impostors := 0
	for _, events := range []<-chan sseEvent{owner, bobEvents, carolEvents} {
		e := next(t, events)
		require.Equal(t, "start", e.Event)

		var msg push.Message
		require.NoError(t, json.Unmarshal([]byte(e.Data), &msg))
		switch msg.Word {
		case domain.ImpostorWord:
			impostors++
		default:
			assert.Equal(t, secretWord, msg.Word)
		}
	}
	assert.Equal(t, 1, impostors)

	status, _ = srv.post(t, "/user", map[string]string{"user_name": "dave", "room_code": code})
	assert.Equal(t, http.StatusForbidden, status)

	status, body = srv.post(t, "/end", map[string]string{"owner_id": ownerID})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Game ended", body["message"])
	assert.Equal(t, "end", next(t, bobEvents).Event)
	assert.Equal(t, "end", next(t, carolEvents).Event)

	status, body = srv.post(t, "/close", map[string]string{"owner_id": ownerID})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Room closed", body["message"])

	assert.Equal(t, sseEvent{Event: "close", Data: `{"type":"close","owner_name":"olivia"}`}, next(t, bobEvents))
	requireEnded(t, bobEvents)
	assert.Equal(t, "close", next(t, carolEvents).Event)
	requireEnded(t, carolEvents)
	requireEnded(t, owner)

	status, _ = srv.post(t, "/close", map[string]string{"owner_id": ownerID})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestPlayerLeavesOverSSE(t *testing.T) {
	srv := newTestServer(t, nil)

	_, created := srv.post(t, "/room", map[string]string{"owner_name": "olivia", "room_name": "game night"})
	ownerID := created["owner_id"].(string)
	owner := srv.openSSE(t, "/sse/owner/"+ownerID)

	_, bob := srv.post(t, "/user", map[string]string{"user_name": "bob", "room_code": created["room_code"].(string)})
	next(t, owner)

	resp, err := http.Get(srv.URL + api.APIPrefix + "/sse/player/" + bob["user_id"].(string))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, sseEvent{Event: "left", Data: `{"type":"left","user_name":"bob"}`}, next(t, owner))

	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + api.APIPrefix + "/user")
		if err != nil {
			return false
		}
		defer resp.Body.Close()

		var body struct {
			Users []any `json:"users"`
		}
		return json.NewDecoder(resp.Body).Decode(&body) == nil && len(body.Users) == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestOwnerStreamOverWebSocket(t *testing.T) {
	srv := newTestServer(t, nil)

	_, created := srv.post(t, "/room", map[string]string{"owner_name": "olivia", "room_name": "game night"})
	ownerID := created["owner_id"].(string)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + api.APIPrefix + "/ws/owner/" + ownerID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool {
		return srv.hub.Recipients.IsRegistered(ownerID)
	}, time.Second, 5*time.Millisecond)

	status, _ := srv.post(t, "/user", map[string]string{"user_name": "bob", "room_code": created["room_code"].(string)})
	require.Equal(t, http.StatusCreated, status)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"joined","user_name":"bob"}`, string(data))

	// the owner going away closes the room
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		resp, err := http.Post(srv.URL+api.APIPrefix+"/start", "application/json",
			strings.NewReader(`{"owner_id":"`+ownerID+`"}`))
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusNotFound
	}, 2*time.Second, 20*time.Millisecond)
}

func TestStreamErrors(t *testing.T) {
	srv := newTestServer(t, nil)

	_, created := srv.post(t, "/room", map[string]string{"owner_name": "olivia", "room_name": "game night"})
	ownerID := created["owner_id"].(string)
	_, bob := srv.post(t, "/user", map[string]string{"user_name": "bob", "room_code": created["room_code"].(string)})

	tests := []struct {
		name string
		path string
		want int
	}{
		{name: "unknown owner", path: "/sse/owner/nobody", want: http.StatusNotFound},
		{name: "player as owner", path: "/sse/owner/" + bob["user_id"].(string), want: http.StatusForbidden},
		{name: "owner as player", path: "/sse/player/" + ownerID, want: http.StatusForbidden},
		{name: "unknown player", path: "/sse/player/nobody", want: http.StatusNotFound},
		{name: "plain GET on websocket route", path: "/ws/player/" + bob["user_id"].(string), want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := srv.get(t, api.APIPrefix+tt.path)
			assert.Equal(t, tt.want, status)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestRequestValidation(t *testing.T) {
	srv := newTestServer(t, nil)

	_, created := srv.post(t, "/room", map[string]string{"owner_name": "olivia", "room_name": "game night"})
	_, bob := srv.post(t, "/user", map[string]string{"user_name": "bob", "room_code": created["room_code"].(string)})

	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{name: "missing owner name", path: "/room", body: map[string]string{"room_name": "x"}, want: http.StatusBadRequest},
		{name: "profane room name", path: "/room", body: map[string]string{"owner_name": "olivia", "room_name": "sh1t show"}, want: http.StatusBadRequest},
		{name: "name with newline", path: "/room", body: map[string]string{"owner_name": "a\nb", "room_name": "x"}, want: http.StatusBadRequest},
		{name: "unknown field", path: "/room", body: map[string]string{"owner_name": "a", "room_name": "b", "extra": "c"}, want: http.StatusBadRequest},
		{name: "short code", path: "/user", body: map[string]string{"user_name": "carol", "room_code": "ABC"}, want: http.StatusBadRequest},
		{name: "code with control characters", path: "/user", body: map[string]string{"user_name": "carol", "room_code": "ABCDEF\n0"}, want: http.StatusBadRequest},
		{name: "lower case code", path: "/user", body: map[string]string{"user_name": "carol", "room_code": "zzzzzzzz"}, want: http.StatusNotFound},
		{name: "unknown code", path: "/user", body: map[string]string{"user_name": "carol", "room_code": "ZZZZZZZZ"}, want: http.StatusNotFound},
		{name: "missing owner id", path: "/start", body: map[string]string{}, want: http.StatusBadRequest},
		{name: "unknown owner", path: "/start", body: map[string]string{"owner_id": "nobody"}, want: http.StatusNotFound},
		{name: "player starting", path: "/start", body: map[string]string{"owner_id": bob["user_id"].(string)}, want: http.StatusForbidden},
		{name: "too few participants", path: "/start", body: map[string]string{"owner_id": created["owner_id"].(string)}, want: http.StatusForbidden},
		{name: "end in lobby", path: "/end", body: map[string]string{"owner_id": created["owner_id"].(string)}, want: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := srv.post(t, tt.path, tt.body)
			assert.Equal(t, tt.want, status)
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestQueries(t *testing.T) {
	srv := newTestServer(t, nil)

	_, created := srv.post(t, "/room", map[string]string{"owner_name": "olivia", "room_name": "game night"})
	roomID := created["room_id"].(string)
	_, bob := srv.post(t, "/user", map[string]string{"user_name": "bob", "room_code": created["room_code"].(string)})

	status, rooms := srv.get(t, api.APIPrefix+"/room")
	require.Equal(t, http.StatusOK, status)
	require.Len(t, rooms["rooms"], 1)

	status, users := srv.get(t, api.APIPrefix+"/user")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, users["users"], 2)

	status, snapshot := srv.get(t, api.APIPrefix+"/room/"+roomID+"?user_id="+bob["user_id"].(string))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "olivia", snapshot["owner_name"])
	assert.Equal(t, []any{"bob"}, snapshot["players"])
	assert.Equal(t, string(domain.StateLobby), snapshot["state"])
	assert.Equal(t, true, snapshot["alive"])

	status, _ = srv.get(t, api.APIPrefix+"/room/"+roomID)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = srv.get(t, api.APIPrefix+"/room/"+roomID+"/audit")
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, nil)

	for _, path := range []string{"/health", "/healthz", "/live", "/ready"} {
		status, body := srv.get(t, path)
		assert.Equal(t, http.StatusOK, status, path)
		assert.Equal(t, "ok", body["status"], path)
	}

	srv.post(t, "/room", map[string]string{"owner_name": "olivia", "room_name": "game night"})

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `impostor_http_requests_total{method="POST",route="/impostor/v1/room`)
	assert.Contains(t, string(data), `status="201"} 1`)
	assert.Contains(t, string(data), "impostor_rooms_alive 1")
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, ratelimiter.New(ratelimiter.Options{MaxRatePerSecond: 1, MaxBurst: 1, CacheTTL: time.Minute}))

	status, _ := srv.get(t, api.APIPrefix+"/room")
	require.Equal(t, http.StatusOK, status)

	resp, err := http.Get(srv.URL + api.APIPrefix + "/room")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, nil)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+api.APIPrefix+"/room", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://impostor.example")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://impostor.example", resp.Header.Get("Access-Control-Allow-Origin"))
}
