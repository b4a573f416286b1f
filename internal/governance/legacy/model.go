package legacy

import (
	"time"

	"github.com/google/uuid"
)

// Counter kinds recognized by the legacy tracking scheme.
const (
	KindQuiz       = "quiz"
	KindSimulation = "simulation"
	KindTutor      = "tutor"
)

// ValidKind reports whether the legacy HTTP surface accepts the kind.
func ValidKind(kind string) bool {
	switch kind {
	case KindQuiz, KindSimulation, KindTutor:
		return true
	}
	return false
}

// defaultDailyLimit is applied when a counter row is created lazily.
func defaultDailyLimit(kind string) int {
	if kind == KindTutor {
		return 10
	}
	return 5
}

// Counter matches the legacy_usage_counters table schema: one row per
// (student, kind, UTC day), created on first use and reset by the legacy
// system on its own cadence.
type Counter struct {
	StudentID  uuid.UUID `json:"student_id"`
	Kind       string    `json:"kind"`
	Date       time.Time `json:"date"`
	Count      int       `json:"count"`
	DailyLimit int       `json:"limit"`
	Remaining  int       `json:"remaining"`
}
