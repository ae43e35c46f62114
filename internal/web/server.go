// Package web serves the browser terminal. The page is static; lines travel
// over a WebSocket as small JSON frames and each browser keeps its own
// simulated host, keyed by a session cookie.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/net/websocket"
	"golang.org/x/sync/errgroup"

	"orasim/internal/config"
	"orasim/internal/logging"
	"orasim/internal/metrics"
	"orasim/internal/oracle"
	"orasim/internal/shell"
	"orasim/internal/store"
)

const (
	cookieName      = "orasim_session"
	cookieMaxAge    = 30 * 24 * 60 * 60
	shutdownTimeout = 5 * time.Second

	// idleTimeout is how long a terminal with no connection stays in memory.
	// Its host is in the store, so a later connection picks up where it left.
	idleTimeout   = 30 * time.Minute
	sweepInterval = time.Minute
)

//go:embed static/index.html
var static embed.FS

// Options configures a Server.
type Options struct {
	Config   *config.Config
	Store    store.BlobStore
	Registry *shell.Registry
	// ConfigPath is watched for changes while Run is active. Empty disables it.
	ConfigPath string
	Clock      func() time.Time
}

// Server owns the echo instance and the live terminals.
type Server struct {
	opts Options
	echo *echo.Echo

	mu        sync.Mutex
	cfg       *config.Config
	terminals map[string]*terminal
}

// New builds a server and registers its routes.
func New(opts Options) *Server {
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.Store == nil {
		opts.Store = store.NewMemoryStore()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	s := &Server{
		opts:      opts,
		cfg:       opts.Config,
		terminals: make(map[string]*terminal),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(s.recordRequests)

	e.GET("/", s.handleIndex)
	e.GET("/ws", s.handleSocket)
	e.GET("/healthz", s.handleHealth)
	e.GET("/api/progress", s.handleProgress)
	e.POST("/api/reset", s.handleReset)
	if opts.Config.Web.Metrics {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}
	s.echo = e
	return s
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Run serves until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	addr := s.config().Web.Listen
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logging.Web("listening on http://%s", addr)
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("web server on %s: %w", addr, err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logging.Web("shutting down")
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("web shutdown: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		tick := time.NewTicker(sweepInterval)
		defer tick.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-tick.C:
				s.sweep(s.opts.Clock())
			}
		}
	})

	if s.opts.ConfigPath != "" {
		g.Go(func() error {
			return config.Watch(gctx, s.opts.ConfigPath, s.reload)
		})
	}

	return g.Wait()
}

// reload swaps in a new config. Running terminals keep theirs; sessions
// created afterwards use the new values.
func (s *Server) reload(cfg *config.Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	if err := logging.Initialize(cfg.Logging); err != nil {
		logging.Get(logging.CategoryConfig).Warn("logging reload failed: %v", err)
	}
}

func (s *Server) config() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// recordRequests counts every request by route pattern.
func (s *Server) recordRequests(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		status := c.Response().Status
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
		}
		path := c.Path()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request().Method, path, status)
		return err
	}
}

// sessionID returns the caller's session id, issuing a cookie when the
// request carries none or a malformed one.
func (s *Server) sessionID(c echo.Context) string {
	if ck, err := c.Cookie(cookieName); err == nil {
		if id, err := uuid.Parse(ck.Value); err == nil {
			return id.String()
		}
	}
	id := uuid.NewString()
	c.SetCookie(&http.Cookie{
		Name:     cookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   cookieMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func (s *Server) handleIndex(c echo.Context) error {
	s.sessionID(c)
	page, err := static.ReadFile("static/index.html")
	if err != nil {
		return err
	}
	return c.HTMLBlob(http.StatusOK, page)
}

func (s *Server) handleHealth(c echo.Context) error {
	s.mu.Lock()
	n := len(s.terminals)
	s.mu.Unlock()
	return c.JSON(http.StatusOK, map[string]any{"status": "ok", "terminals": n})
}

type taskView struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Done  bool   `json:"done"`
}

type progressView struct {
	Completed  int        `json:"completed"`
	Total      int        `json:"total"`
	Percentage int        `json:"percentage"`
	Tasks      []taskView `json:"tasks"`
}

// handleProgress reads the caller's host without keeping a terminal for it.
func (s *Server) handleProgress(c echo.Context) error {
	id := s.sessionID(c)
	var p oracle.Progress
	if t, ok := s.live(id); ok {
		t.mu.Lock()
		p = t.session.Oracle.CalculateProgress(t.session.FS)
		t.mu.Unlock()
	} else {
		sess := s.newSession(id, nil)
		p = sess.Oracle.CalculateProgress(sess.FS)
	}

	view := progressView{Completed: p.Completed, Total: p.Total, Percentage: p.Percentage}
	for _, task := range p.Tasks {
		view.Tasks = append(view.Tasks, taskView{ID: task.ID, Label: task.Label, Done: task.Done})
	}
	return c.JSON(http.StatusOK, view)
}

// handleReset wipes the caller's host, filesystem included.
func (s *Server) handleReset(c echo.Context) error {
	id := s.sessionID(c)
	if t, ok := s.live(id); ok {
		t.mu.Lock()
		t.session.ResetAll()
		t.send(frame{Type: frameClear})
		t.sendPrompt()
		t.mu.Unlock()
	} else {
		s.newSession(id, nil).ResetAll()
	}
	logging.Web("session %s reset from the browser", id)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleSocket(c echo.Context) error {
	id := s.sessionID(c)
	websocket.Handler(func(ws *websocket.Conn) {
		s.serve(ws, id)
	}).ServeHTTP(c.Response(), c.Request())
	return nil
}

// terminal returns the live terminal for id, building its session from the
// namespaced store on first use.
func (s *Server) terminal(id string) *terminal {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.opts.Clock()
	if t, ok := s.terminals[id]; ok {
		t.mu.Lock()
		t.lastUsed = now
		t.mu.Unlock()
		return t
	}
	t := &terminal{id: id, lastUsed: now}
	t.session = s.newSessionLocked(id, t)
	s.terminals[id] = t
	logging.Web("terminal %s created", id)
	return t
}

// live returns the terminal for id if one is in memory.
func (s *Server) live(id string) (*terminal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.terminals[id]
	return t, ok
}

// newSession builds a session over id's stored host. A nil out discards output.
func (s *Server) newSession(id string, out shell.Writer) *shell.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newSessionLocked(id, out)
}

func (s *Server) newSessionLocked(id string, out shell.Writer) *shell.Session {
	return shell.New(shell.Options{
		ID:       id,
		Config:   s.cfg,
		Store:    store.WithNamespace(s.opts.Store, "session/"+id+"/"),
		Registry: s.opts.Registry,
		Out:      out,
		Clock:    s.opts.Clock,
	})
}

// sweep forgets terminals that have had no connection for idleTimeout.
func (s *Server) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.terminals {
		if t.idleSince(now) >= idleTimeout {
			delete(s.terminals, id)
			logging.Web("terminal %s evicted after %s idle", id, idleTimeout)
		}
	}
}

// drop forgets t so the next connection starts a fresh login.
func (s *Server) drop(t *terminal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminals[t.id] == t {
		delete(s.terminals, t.id)
	}
}

// serve pumps one WebSocket connection until it closes or the user logs out.
func (s *Server) serve(ws *websocket.Conn, id string) {
	t := s.terminal(id)
	t.attach(ws)
	metrics.SessionOpened()
	defer metrics.SessionClosed()
	defer func() { t.detach(ws, s.opts.Clock()) }()
	logging.Web("terminal %s attached from %s", id, ws.Request().RemoteAddr)

	t.mu.Lock()
	t.sendPrompt()
	t.mu.Unlock()

	for {
		var in input
		if err := websocket.JSON.Receive(ws, &in); err != nil {
			logging.Get(logging.CategoryWeb).Debug("terminal %s receive ended: %v", id, err)
			return
		}
		t.mu.Lock()
		t.session.Submit(in.Line)
		done := t.session.Done()
		if done {
			t.send(frame{Type: frameClosed})
		} else {
			t.sendPrompt()
		}
		t.mu.Unlock()
		if done {
			s.drop(t)
			logging.Web("terminal %s logged out", id)
			return
		}
	}
}
