package logging

import (
	"go.uber.org/zap"
)

// AuditEventType names a structured audit event. Audit events are written to
// the "audit" logger with their fields attached, one line per event.
type AuditEventType string

const (
	AuditSessionStart AuditEventType = "session_start"
	AuditSessionReset AuditEventType = "session_reset"
	AuditCommand      AuditEventType = "command"
	AuditUnknown      AuditEventType = "command_not_found"
	AuditModalEnter   AuditEventType = "modal_enter"
	AuditModalExit    AuditEventType = "modal_exit"
	AuditCheckpoint   AuditEventType = "checkpoint"
	AuditPersistFail  AuditEventType = "persist_failed"
)

// AuditEvent is one structured audit record.
type AuditEvent struct {
	Type      AuditEventType
	SessionID string
	Fields    map[string]interface{}
}

// Audit writes an audit event. It is a no-op when debug mode is off.
func Audit(ev AuditEvent) {
	if !IsDebugMode() {
		return
	}
	mu.RLock()
	l := base.Named("audit")
	mu.RUnlock()

	fields := make([]zap.Field, 0, len(ev.Fields)+2)
	fields = append(fields, zap.String("event", string(ev.Type)))
	if ev.SessionID != "" {
		fields = append(fields, zap.String("session", ev.SessionID))
	}
	for k, v := range ev.Fields {
		fields = append(fields, zap.Any(k, v))
	}
	l.Info("audit", fields...)
}

// AuditCommandRun records a dispatched top-level command.
func AuditCommandRun(sessionID, user, name string, argc int) {
	Audit(AuditEvent{
		Type:      AuditCommand,
		SessionID: sessionID,
		Fields:    map[string]interface{}{"user": user, "command": name, "argc": argc},
	})
}
