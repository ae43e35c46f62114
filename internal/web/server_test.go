package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/net/websocket"

	"orasim/internal/commands"
	"orasim/internal/config"
	"orasim/internal/store"
)

var fixedNow = time.Date(2024, 3, 14, 9, 30, 0, 0, time.UTC)

func newServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return New(Options{
		Config:   cfg,
		Store:    store.NewMemoryStore(),
		Registry: commands.NewRegistry(),
		Clock:    func() time.Time { return fixedNow },
	})
}

func get(t *testing.T, s *Server, method, target string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookieName {
			return c
		}
	}
	t.Fatalf("response carries no %s cookie", cookieName)
	return nil
}

// client is a test-side terminal.
type client struct {
	t  *testing.T
	ws *websocket.Conn
}

func dial(t *testing.T, srv *httptest.Server, id string) *client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	wc, err := websocket.NewConfig(url, srv.URL)
	require.NoError(t, err)
	wc.Header.Set("Cookie", cookieName+"="+id)
	ws, err := websocket.DialConfig(wc)
	require.NoError(t, err)
	require.NoError(t, ws.SetDeadline(time.Now().Add(10*time.Second)))
	return &client{t: t, ws: ws}
}

// until reads frames up to the next prompt or close and returns the output
// lines along with that final frame.
func (c *client) until() ([]string, frame) {
	c.t.Helper()
	var out []string
	for {
		var f frame
		require.NoError(c.t, websocket.JSON.Receive(c.ws, &f))
		switch f.Type {
		case frameOutput:
			out = append(out, f.Text)
		case framePrompt, frameClosed:
			return out, f
		}
	}
}

func (c *client) send(line string) ([]string, frame) {
	c.t.Helper()
	require.NoError(c.t, websocket.JSON.Send(c.ws, input{Line: line}))
	return c.until()
}

func TestIndexIssuesCookie(t *testing.T) {
	s := newServer(t, nil)
	rec := get(t, s, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "new WebSocket")

	ck := sessionCookie(t, rec)
	_, err := uuid.Parse(ck.Value)
	assert.NoError(t, err)
	assert.True(t, ck.HttpOnly)

	// A valid cookie is kept as is.
	again := get(t, s, http.MethodGet, "/", ck)
	assert.Empty(t, again.Result().Cookies())

	bad := get(t, s, http.MethodGet, "/", &http.Cookie{Name: cookieName, Value: "not-a-uuid"})
	assert.NotEqual(t, "not-a-uuid", sessionCookie(t, bad).Value)
}

func TestTerminalRoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := newServer(t, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	id := uuid.NewString()

	c := dial(t, srv, id)
	_, f := c.until()
	assert.Equal(t, frame{Type: framePrompt, Text: "[root@dbserver01 ~]# "}, f)

	out, _ := c.send("pwd")
	assert.Equal(t, []string{"/root"}, out)

	_, f = c.send("touch /root/notes.txt")
	assert.Equal(t, framePrompt, f.Type)

	out, f = c.send("exit")
	assert.Equal(t, []string{"logout"}, out)
	assert.Equal(t, frameClosed, f.Type)
	c.ws.Close()

	// Logging out drops the terminal; the filesystem survives in the store.
	c = dial(t, srv, id)
	c.until()
	out, _ = c.send("ls /root")
	assert.Contains(t, strings.Join(out, " "), "notes.txt")
	c.ws.Close()
}

func TestNewerConnectionTakesOver(t *testing.T) {
	s := newServer(t, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	id := uuid.NewString()

	first := dial(t, srv, id)
	defer first.ws.Close()
	first.until()
	first.send("cd /tmp")

	second := dial(t, srv, id)
	defer second.ws.Close()
	_, f := second.until()
	assert.Equal(t, "[root@dbserver01 tmp]# ", f.Text)

	var leftover frame
	assert.Error(t, websocket.JSON.Receive(first.ws, &leftover))
}

func TestMaskedPrompt(t *testing.T) {
	s := newServer(t, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	c := dial(t, srv, uuid.NewString())
	defer c.ws.Close()
	c.until()
	c.send("useradd oracle")
	_, f := c.send("passwd oracle")
	assert.True(t, f.Masked, f.Text)
}

func TestProgressAndReset(t *testing.T) {
	s := newServer(t, nil)
	ck := sessionCookie(t, get(t, s, http.MethodGet, "/", nil))

	rec := get(t, s, http.MethodGet, "/api/progress", ck)
	require.Equal(t, http.StatusOK, rec.Code)
	var view progressView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Zero(t, view.Completed)
	require.NotEmpty(t, view.Tasks)
	assert.Equal(t, len(view.Tasks), view.Total)
	assert.Equal(t, "Create oinstall and dba groups", view.Tasks[0].Label)

	term := s.terminal(ck.Value)
	term.session.Submit("groupadd oinstall")
	term.session.Submit("groupadd dba")
	require.NoError(t, json.Unmarshal(get(t, s, http.MethodGet, "/api/progress", ck).Body.Bytes(), &view))
	assert.True(t, view.Tasks[0].Done)

	assert.Equal(t, http.StatusNoContent, get(t, s, http.MethodPost, "/api/reset", ck).Code)
	require.NoError(t, json.Unmarshal(get(t, s, http.MethodGet, "/api/progress", ck).Body.Bytes(), &view))
	assert.False(t, view.Tasks[0].Done)
}

func TestProgressWithoutCookieKeepsNoTerminal(t *testing.T) {
	s := newServer(t, nil)
	for i := 0; i < 3; i++ {
		rec := get(t, s, http.MethodGet, "/api/progress", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, rec.Result().Cookies(), 1)
	}
	assert.JSONEq(t, `{"status":"ok","terminals":0}`, get(t, s, http.MethodGet, "/healthz", nil).Body.String())
}

func TestSweepEvictsIdleTerminals(t *testing.T) {
	s := newServer(t, nil)
	ck := sessionCookie(t, get(t, s, http.MethodGet, "/", nil))
	term := s.terminal(ck.Value)
	term.session.Submit("groupadd oinstall")
	term.session.Submit("groupadd dba")
	s.terminal("attached").conn = &websocket.Conn{}

	s.sweep(fixedNow.Add(idleTimeout - time.Second))
	_, ok := s.live(ck.Value)
	require.True(t, ok)

	s.sweep(fixedNow.Add(idleTimeout))
	_, ok = s.live(ck.Value)
	assert.False(t, ok)
	_, ok = s.live("attached")
	assert.True(t, ok)

	// The evicted host is read back from the store.
	var view progressView
	require.NoError(t, json.Unmarshal(get(t, s, http.MethodGet, "/api/progress", ck).Body.Bytes(), &view))
	assert.True(t, view.Tasks[0].Done)
	_, ok = s.live(ck.Value)
	assert.False(t, ok)

	assert.Equal(t, http.StatusNoContent, get(t, s, http.MethodPost, "/api/reset", ck).Code)
	group, ok := s.terminal(ck.Value).session.FS.ReadFile("/etc/group")
	require.True(t, ok)
	assert.NotContains(t, group, "oinstall")
}

func TestHealthAndMetrics(t *testing.T) {
	off := config.DefaultConfig()
	off.Web.Metrics = false
	s := newServer(t, off)
	rec := get(t, s, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","terminals":0}`, rec.Body.String())
	assert.Equal(t, http.StatusNotFound, get(t, s, http.MethodGet, "/metrics", nil).Code)

	s = newServer(t, nil)
	require.True(t, s.cfg.Web.Metrics)
	get(t, s, http.MethodGet, "/healthz", nil)
	rec = get(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `orasim_http_requests_total{method="GET",path="/healthz",status="200"}`)
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Web.Listen = "127.0.0.1:0"
	s := newServer(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestReloadSwapsConfig(t *testing.T) {
	s := newServer(t, nil)
	cfg := config.DefaultConfig()
	cfg.Hostname = "lab02"
	s.reload(cfg)
	assert.Same(t, cfg, s.config())
}
