package quota

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/academia-platform/aigov/internal/governance/audit"
	inats "github.com/academia-platform/aigov/internal/nats"
)

type fakeSyncer struct {
	calls []struct {
		callerID  uuid.UUID
		role      string
		kind      string
		succeeded bool
	}
}

func (f *fakeSyncer) Sync(_ context.Context, callerID uuid.UUID, role, kind string, succeeded bool) {
	f.calls = append(f.calls, struct {
		callerID  uuid.UUID
		role      string
		kind      string
		succeeded bool
	}{callerID, role, kind, succeeded})
}

func TestRecordSuccessAppendsAndSyncs(t *testing.T) {
	ledger := &fakeLedger{}
	syncer := &fakeSyncer{}
	rc := NewRecorder(ledger, syncer, nil)

	callerID := uuid.New()
	rc.Record(context.Background(), Attempt{
		CallerID:      callerID,
		Role:          RoleStudent,
		OperationKind: KindQuiz,
		Provider:      "gemini",
		EstimatedCost: 42,
		Succeeded:     true,
		DurationMs:    120,
	})

	require.Len(t, ledger.appended, 1)
	rec := ledger.appended[0]
	assert.Equal(t, callerID, rec.CallerID)
	assert.Equal(t, KindQuiz, rec.OperationKind)
	assert.True(t, rec.Succeeded)
	assert.Equal(t, 42, rec.EstimatedCost)

	require.Len(t, syncer.calls, 1)
	assert.Equal(t, KindQuiz, syncer.calls[0].kind)
	assert.True(t, syncer.calls[0].succeeded)
}

func TestRecordFailureAppendsWithoutSync(t *testing.T) {
	ledger := &fakeLedger{}
	syncer := &fakeSyncer{}
	rc := NewRecorder(ledger, syncer, nil)

	rc.Record(context.Background(), Attempt{
		CallerID:      uuid.New(),
		Role:          RoleStudent,
		OperationKind: KindQuiz,
		Succeeded:     false,
		ErrorMessage:  "upstream returned status 502",
	})

	require.Len(t, ledger.appended, 1)
	assert.False(t, ledger.appended[0].Succeeded)
	assert.Equal(t, "upstream returned status 502", ledger.appended[0].ErrorMessage)
	assert.Empty(t, syncer.calls, "failed attempts never touch the legacy counters")
}

func TestRecordNormalizesRoleAndKind(t *testing.T) {
	ledger := &fakeLedger{}
	rc := NewRecorder(ledger, nil, nil)

	rc.Record(context.Background(), Attempt{
		CallerID:      uuid.New(),
		Role:          "superuser",
		OperationKind: "weird_custom_op",
		Succeeded:     true,
	})

	require.Len(t, ledger.appended, 1)
	assert.Equal(t, RoleStudent, ledger.appended[0].Role)
	assert.Equal(t, KindGeneral, ledger.appended[0].OperationKind)
}

func TestRecordSwallowsAppendErrors(t *testing.T) {
	ledger := &fakeLedger{appendErr: errors.New("disk full")}
	syncer := &fakeSyncer{}
	rc := NewRecorder(ledger, syncer, nil)

	// Must not panic, and the legacy sync must not run on an unrecorded attempt.
	rc.Record(context.Background(), Attempt{
		CallerID:      uuid.New(),
		OperationKind: KindQuiz,
		Succeeded:     true,
	})

	assert.Empty(t, syncer.calls)
}

type fakeNotifier struct {
	events []inats.AuditEvent
}

func (f *fakeNotifier) PublishAuditEvent(_ context.Context, e inats.AuditEvent) error {
	f.events = append(f.events, e)
	return nil
}

func TestRecordNotifiesOnAppendFailure(t *testing.T) {
	ledger := &fakeLedger{appendErr: errors.New("disk full")}
	notifier := &fakeNotifier{}
	rc := NewRecorder(ledger, nil, notifier)

	callerID := uuid.New()
	rc.Record(context.Background(), Attempt{CallerID: callerID, Succeeded: true})

	require.Len(t, notifier.events, 1)
	assert.Equal(t, audit.EventRecordingFailed, notifier.events[0].EventType)
	assert.Equal(t, callerID, notifier.events[0].CallerID)
	assert.Contains(t, notifier.events[0].Details, "disk full")
}

func TestRecordNilSyncer(t *testing.T) {
	ledger := &fakeLedger{}
	rc := NewRecorder(ledger, nil, nil)

	rc.Record(context.Background(), Attempt{CallerID: uuid.New(), Succeeded: true})
	assert.Len(t, ledger.appended, 1)
}

func TestEstimateCost(t *testing.T) {
	tests := []struct {
		prompt   int
		response int
		want     int
	}{
		{0, 0, 0},
		{1, 0, 1},
		{4, 0, 1},
		{5, 0, 2},
		{100, 300, 100},
		{-5, 0, 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, EstimateCost(tt.prompt, tt.response),
			"EstimateCost(%d, %d)", tt.prompt, tt.response)
	}
}
