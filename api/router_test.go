package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/axolutly-go/internal/app"
	"github.com/yourusername/axolutly-go/internal/domain"
	"github.com/yourusername/axolutly-go/pkg/logger"
)

type stubSessions struct {
	mu        sync.Mutex
	records   map[string]*domain.SessionRecord
	started   []domain.DownloadRequest
	cancelled []string
	answers   []bool
	authDone  []string
	events    chan domain.Event
	resolve   error
}

func newStubSessions() *stubSessions {
	return &stubSessions{records: make(map[string]*domain.SessionRecord)}
}

func (s *stubSessions) Start(req domain.DownloadRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record := domain.NewSessionRecord(req)
	s.records[record.ID] = record
	s.started = append(s.started, req)
	return record.ID, nil
}

func (s *stubSessions) Get(id string) (*domain.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return nil, app.ErrSessionNotFound
	}
	return record, nil
}

func (s *stubSessions) List(filters map[string]interface{}) ([]*domain.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.SessionRecord
	for _, r := range s.records {
		if p, ok := filters["platform"]; ok && string(r.Platform) != p {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *stubSessions) Stats() (*domain.SessionStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &domain.SessionStats{Total: int64(len(s.records))}, nil
}

func (s *stubSessions) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return app.ErrSessionNotFound
	}
	s.cancelled = append(s.cancelled, id)
	return nil
}

func (s *stubSessions) ResolveConfirmation(id string, yes bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolve != nil {
		return s.resolve
	}
	s.answers = append(s.answers, yes)
	return nil
}

func (s *stubSessions) NotifyAuthCompleted(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authDone = append(s.authDone, id)
	return nil
}

func (s *stubSessions) Subscribe(id string) (<-chan domain.Event, func(), error) {
	if _, err := s.Get(id); err != nil {
		return nil, nil, err
	}
	return s.events, func() {}, nil
}

func (s *stubSessions) snapshot() (cancelled []string, answers []bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cancelled...), append([]bool(nil), s.answers...)
}

type stubCookies struct {
	mu      sync.Mutex
	purged  []string
	evicted int
	err     error
}

func (c *stubCookies) Purge(domainName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.purged = append(c.purged, domainName)
	return nil
}

func (c *stubCookies) EvictExpired() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evicted, c.err
}

type stubRunner bool

func (r stubRunner) IsRunning() bool { return bool(r) }

func setupTestServer(t *testing.T, sessions *stubSessions, cookies *stubCookies, logsDir string) *httptest.Server {
	t.Helper()
	cfg := domain.DefaultConfig().Download
	cfg.OutputDir = "/downloads"
	router := SetupRouter(RouterDeps{
		Sessions: sessions,
		Cookies:  cookies,
		Janitor:  stubRunner(true),
		Download: &cfg,
		LogsDir:  logsDir,
		Logger:   zap.NewNop(),
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func postJSON(t *testing.T, url string, payload interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewBuffer(data))
	require.NoError(t, err)
	return resp
}

func TestAPI_StartSession(t *testing.T) {
	sessions := newStubSessions()
	server := setupTestServer(t, sessions, &stubCookies{}, "")

	resp := postJSON(t, server.URL+"/api/v1/sessions", map[string]string{
		"url": "https://www.youtube.com/watch?v=abc123",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var record domain.SessionRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&record))
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, domain.PlatformYouTube, record.Platform)
	assert.Equal(t, "1080p", record.Quality)
	assert.Equal(t, "/downloads", record.OutputDir)
	assert.Equal(t, domain.StateCreated, record.State)
}

func TestAPI_StartSessionRejectsBadInput(t *testing.T) {
	sessions := newStubSessions()
	server := setupTestServer(t, sessions, &stubCookies{}, "")

	cases := []map[string]string{
		{},
		{"url": "https://example.com/video"},
		{"url": "https://www.twitch.tv/videos/1", "quality": "ultra"},
	}
	for _, payload := range cases {
		resp := postJSON(t, server.URL+"/api/v1/sessions", payload)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "payload %v", payload)
	}
	assert.Empty(t, sessions.started)
}

func TestAPI_GetAndListSessions(t *testing.T) {
	sessions := newStubSessions()
	server := setupTestServer(t, sessions, &stubCookies{}, "")

	req, err := domain.NewDownloadRequest("https://www.twitch.tv/videos/42", domain.Quality{MaxHeight: 720}, "/downloads")
	require.NoError(t, err)
	id, _ := sessions.Start(req)

	resp, err := http.Get(server.URL + "/api/v1/sessions/" + id)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(server.URL + "/api/v1/sessions/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(server.URL + "/api/v1/sessions?platform=youtube")
	require.NoError(t, err)
	var records []*domain.SessionRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
	resp.Body.Close()
	assert.Empty(t, records)

	resp, err = http.Get(server.URL + "/api/v1/sessions/stats")
	require.NoError(t, err)
	var stats domain.SessionStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	resp.Body.Close()
	assert.Equal(t, int64(1), stats.Total)
}

func TestAPI_SessionControls(t *testing.T) {
	sessions := newStubSessions()
	server := setupTestServer(t, sessions, &stubCookies{}, "")

	req, err := domain.NewDownloadRequest("https://www.tiktok.com/@user/video/1", domain.Quality{}, "/downloads")
	require.NoError(t, err)
	id, _ := sessions.Start(req)

	resp := postJSON(t, server.URL+"/api/v1/sessions/"+id+"/cancel", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, server.URL+"/api/v1/sessions/"+id+"/confirmation", map[string]bool{"replace": true})
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// replace is required
	resp = postJSON(t, server.URL+"/api/v1/sessions/"+id+"/confirmation", map[string]string{})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, server.URL+"/api/v1/sessions/"+id+"/auth/complete", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancelled, answers := sessions.snapshot()
	assert.Equal(t, []string{id}, cancelled)
	assert.Equal(t, []bool{true}, answers)
	sessions.mu.Lock()
	assert.Equal(t, []string{id}, sessions.authDone)
	sessions.mu.Unlock()

	sessions.mu.Lock()
	sessions.resolve = app.ErrNoPendingConfirmation
	sessions.mu.Unlock()
	resp = postJSON(t, server.URL+"/api/v1/sessions/"+id+"/confirmation", map[string]bool{"replace": false})
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_EventStream(t *testing.T) {
	sessions := newStubSessions()
	sessions.events = make(chan domain.Event, 4)
	server := setupTestServer(t, sessions, &stubCookies{}, "")

	req, err := domain.NewDownloadRequest("https://www.youtube.com/watch?v=abc123", domain.Quality{}, "/downloads")
	require.NoError(t, err)
	id, _ := sessions.Start(req)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/sessions/" + id + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"action": "confirm", "replace": true}))
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"action": "cancel"}))
	assert.Eventually(t, func() bool {
		cancelled, answers := sessions.snapshot()
		return len(cancelled) == 1 && len(answers) == 1 && answers[0]
	}, time.Second, 10*time.Millisecond)

	sessions.events <- domain.Event{SessionID: id, Type: domain.EventProgress, Percent: 42}
	sessions.events <- domain.Event{SessionID: id, Type: domain.EventCancelled, Message: "cancelled by user"}
	close(sessions.events)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev domain.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, domain.EventProgress, ev.Type)
	assert.Equal(t, 42.0, ev.Percent)

	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, domain.EventCancelled, ev.Type)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestAPI_EventStreamUnknownSession(t *testing.T) {
	server := setupTestServer(t, newStubSessions(), &stubCookies{}, "")

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/sessions/nope/events"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_Cookies(t *testing.T) {
	cookies := &stubCookies{evicted: 3}
	server := setupTestServer(t, newStubSessions(), cookies, "")

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/api/v1/cookies/youtube.com", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	cookies.mu.Lock()
	assert.Equal(t, []string{"youtube.com"}, cookies.purged)
	cookies.mu.Unlock()

	resp = postJSON(t, server.URL+"/api/v1/cookies/evict", nil)
	var body map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, 3, body["evicted"])

	cookies.mu.Lock()
	cookies.err = errors.New("disk full")
	cookies.mu.Unlock()
	resp = postJSON(t, server.URL+"/api/v1/cookies/evict", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestAPI_Logs(t *testing.T) {
	dir := t.TempDir()
	ml, err := logger.NewMultiLogger(logger.MultiLoggerConfig{Level: "info", LogsDir: dir})
	require.NoError(t, err)
	ml.LogSessionEvent("session_started", zap.String("id", "s1"))
	require.NoError(t, ml.Close())

	server := setupTestServer(t, newStubSessions(), &stubCookies{}, dir)

	resp, err := http.Get(server.URL + "/api/v1/logs/session?limit=5")
	require.NoError(t, err)
	var body struct {
		Count   int               `json:"count"`
		Entries []logger.LogEntry `json:"entries"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "session_started", body.Entries[0].Message)

	resp, err = http.Get(server.URL + "/api/v1/logs/download")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(server.URL + "/api/v1/logs/session?date=yesterday")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_HealthAndCORS(t *testing.T) {
	server := setupTestServer(t, newStubSessions(), &stubCookies{}, "")

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodOptions, server.URL+"/api/v1/sessions", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}
