package audit

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inats "github.com/academia-platform/aigov/internal/nats"
)

func TestAuditEventDeserialization(t *testing.T) {
	callerID := uuid.New()

	event := inats.AuditEvent{
		CallerID:     callerID,
		EventType:    EventQuotaDenied,
		Severity:     "warn",
		ResourceType: "quota",
		ResourceID:   "",
		Details:      "daily_limit_exceeded for kind quiz",
		Timestamp:    time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded inats.AuditEvent
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, callerID, decoded.CallerID)
	assert.Equal(t, EventQuotaDenied, decoded.EventType)
	assert.Equal(t, "warn", decoded.Severity)
	assert.Equal(t, "quota", decoded.ResourceType)
	assert.Equal(t, "daily_limit_exceeded for kind quiz", decoded.Details)
}

func TestAuditEventToLog_ValidResourceID(t *testing.T) {
	studentID := uuid.New()
	event := inats.AuditEvent{
		CallerID:     uuid.New(),
		EventType:    EventLegacyReset,
		Severity:     "info",
		ResourceType: "legacy_counter",
		ResourceID:   studentID.String(),
		Details:      "counter reset for quiz",
		Timestamp:    time.Now().UTC(),
	}

	log := convertEventToLog(event)

	assert.Equal(t, event.CallerID, log.CallerID)
	assert.Equal(t, EventLegacyReset, log.EventType)
	assert.Equal(t, "info", log.Severity)
	assert.Equal(t, "legacy_counter", log.ResourceType)
	require.NotNil(t, log.ResourceID)
	assert.Equal(t, studentID, *log.ResourceID)

	var details map[string]string
	require.NoError(t, json.Unmarshal(log.Details, &details))
	assert.Equal(t, "counter reset for quiz", details["message"])
}

func TestAuditEventToLog_InvalidResourceID(t *testing.T) {
	event := inats.AuditEvent{
		CallerID:     uuid.New(),
		EventType:    EventRecordingFailed,
		Severity:     "error",
		ResourceType: "ledger",
		ResourceID:   "not-a-uuid",
		Details:      "append failed",
		Timestamp:    time.Now().UTC(),
	}

	log := convertEventToLog(event)
	assert.Nil(t, log.ResourceID)
}

func TestAuditEventToLog_EmptyResourceID(t *testing.T) {
	event := inats.AuditEvent{
		CallerID:  uuid.New(),
		EventType: EventQuotaDenied,
		Severity:  "warn",
		Details:   "global_daily_limit_exceeded",
		Timestamp: time.Now().UTC(),
	}

	log := convertEventToLog(event)
	assert.Nil(t, log.ResourceID)
}
