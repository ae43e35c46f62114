package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestRecorders(t *testing.T) {
	RecordCommand("lsnrctl", true)
	RecordCommand("definitely-not-a-command", false)
	ObserveLine(3 * time.Millisecond)
	RecordModalEnter("sqlplus")
	RecordCheckpoint("groups")
	RecordPersistFailure("fs")
	SessionOpened()
	SessionOpened()
	SessionClosed()
	RecordHTTPRequest(http.MethodGet, "/ws", http.StatusSwitchingProtocols)

	body := scrape(t)
	assert.Contains(t, body, `orasim_commands_total{command="lsnrctl",result="ok"}`)
	assert.Contains(t, body, `orasim_commands_total{command="unknown",result="not_found"}`)
	assert.NotContains(t, body, "definitely-not-a-command")
	assert.Contains(t, body, "orasim_command_duration_seconds_count")
	assert.Contains(t, body, `orasim_modal_sessions_total{tool="sqlplus"}`)
	assert.Contains(t, body, `orasim_checkpoints_completed_total{checkpoint="groups"}`)
	assert.Contains(t, body, `orasim_persist_failures_total{key="fs"}`)
	assert.Contains(t, body, "orasim_active_sessions 1")
	assert.Contains(t, body, `orasim_http_requests_total{method="GET",path="/ws",status="101"}`)
}
