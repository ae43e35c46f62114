package web

import (
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"orasim/internal/logging"
	"orasim/internal/shell"
)

const (
	frameOutput = "output"
	framePrompt = "prompt"
	frameClear  = "clear"
	frameClosed = "closed"
)

// frame is one server-to-browser message.
type frame struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	Masked bool   `json:"masked,omitempty"`
}

// input is one browser-to-server message.
type input struct {
	Line string `json:"line"`
}

// terminal binds a session to at most one connection. A newer connection
// for the same id takes over and the older one is closed.
//
// mu guards session, conn and lastUsed; output produced while a line runs
// is sent with mu held. The server's lock is taken before mu, never after.
type terminal struct {
	id      string
	session *shell.Session

	mu       sync.Mutex
	conn     *websocket.Conn
	lastUsed time.Time
}

// idleSince reports how long t has gone without a connection. An attached
// terminal is never idle.
func (t *terminal) idleSince(now time.Time) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return 0
	}
	return now.Sub(t.lastUsed)
}

// WriteLine implements shell.Writer.
func (t *terminal) WriteLine(text string) {
	t.send(frame{Type: frameOutput, Text: text})
}

// Clear implements shell.Clearer.
func (t *terminal) Clear() {
	t.send(frame{Type: frameClear})
}

func (t *terminal) sendPrompt() {
	t.send(frame{Type: framePrompt, Text: t.session.Prompt(), Masked: t.session.Masked()})
}

// send writes f to the attached connection, if any. Callers hold mu.
func (t *terminal) send(f frame) {
	if t.conn == nil {
		return
	}
	if err := websocket.JSON.Send(t.conn, f); err != nil {
		logging.Get(logging.CategoryWeb).Debug("terminal %s send failed: %v", t.id, err)
	}
}

func (t *terminal) attach(ws *websocket.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil && t.conn != ws {
		t.conn.Close()
	}
	t.conn = ws
}

func (t *terminal) detach(ws *websocket.Conn, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == ws {
		t.conn = nil
		t.lastUsed = now
	}
	ws.Close()
}
