package nats

import (
	"time"

	"github.com/google/uuid"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// Stream names.
const (
	StreamEvents = "AIGOV_EVENTS"
)

// Subject constants.
const (
	SubjectAuditEvent = "aigov.events.audit"
)

// AuditEvent is published for governance audit logging: quota denials,
// recording failures, legacy counter resets.
type AuditEvent struct {
	CallerID     uuid.UUID `json:"caller_id"`
	EventType    string    `json:"event_type"`
	Severity     string    `json:"severity"` // info, warn, error
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	Details      string    `json:"details"`
	Timestamp    time.Time `json:"timestamp"`
}
