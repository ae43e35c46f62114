package shell

import (
	"encoding/json"
	"errors"

	"orasim/internal/logging"
	"orasim/internal/metrics"
	"orasim/internal/store"
)

// History is the append-only list of submitted lines. Front-ends move the
// cursor to navigate; the session only appends.
type History struct {
	lines  []string
	cursor int
	store  store.BlobStore
}

// NewHistory loads the history blob if present.
func NewHistory(st store.BlobStore) *History {
	h := &History{store: st}
	if st != nil {
		data, err := st.Get(store.KeyHistory)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, &h.lines); err != nil {
				logging.Get(logging.CategoryStore).Warn("discarding unreadable history blob: %v", err)
				h.lines = nil
			}
		case !errors.Is(err, store.ErrNotFound):
			logging.Get(logging.CategoryStore).Warn("failed to read history blob: %v", err)
		}
	}
	h.cursor = len(h.lines)
	return h
}

// Append records a line and moves the cursor past the end.
func (h *History) Append(line string) {
	h.lines = append(h.lines, line)
	h.cursor = len(h.lines)
	h.persist()
}

// Clear drops every line.
func (h *History) Clear() {
	h.lines = nil
	h.cursor = 0
	h.persist()
}

func (h *History) persist() {
	if h.store == nil {
		return
	}
	data, err := json.Marshal(h.lines)
	if err == nil {
		err = h.store.Set(store.KeyHistory, data)
	}
	if err != nil {
		logging.Get(logging.CategoryStore).Error("failed to persist history: %v", err)
		metrics.RecordPersistFailure(store.KeyHistory)
	}
}

// Lines returns a copy of the history.
func (h *History) Lines() []string {
	out := make([]string, len(h.lines))
	copy(out, h.lines)
	return out
}

// Len returns the number of lines.
func (h *History) Len() int { return len(h.lines) }

// Cursor returns the navigation index; Len() means "after the last line".
func (h *History) Cursor() int { return h.cursor }

// SetCursor moves the cursor, clamped to [0, Len()].
func (h *History) SetCursor(i int) {
	switch {
	case i < 0:
		i = 0
	case i > len(h.lines):
		i = len(h.lines)
	}
	h.cursor = i
}

// Prev moves back one line. It reports false at the oldest line.
func (h *History) Prev() (string, bool) {
	if h.cursor == 0 || len(h.lines) == 0 {
		return "", false
	}
	h.cursor--
	return h.lines[h.cursor], true
}

// Next moves forward one line. Moving past the newest line yields an empty
// string and true; at the end it reports false.
func (h *History) Next() (string, bool) {
	if h.cursor >= len(h.lines) {
		return "", false
	}
	h.cursor++
	if h.cursor == len(h.lines) {
		return "", true
	}
	return h.lines[h.cursor], true
}
