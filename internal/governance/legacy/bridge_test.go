package legacy

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/academia-platform/aigov/internal/governance/quota"
)

type fakeStore struct {
	studentID  uuid.UUID
	hasStudent bool
	resolveErr error

	increments   []string
	incrementErr error
}

func (f *fakeStore) GetOrCreateToday(_ context.Context, studentID uuid.UUID, kind string) (*Counter, error) {
	return &Counter{StudentID: studentID, Kind: kind, DailyLimit: defaultDailyLimit(kind)}, nil
}

func (f *fakeStore) Increment(_ context.Context, studentID uuid.UUID, kind string) (*Counter, error) {
	if f.incrementErr != nil {
		return nil, f.incrementErr
	}
	f.increments = append(f.increments, kind)
	return &Counter{StudentID: studentID, Kind: kind, Count: 1, DailyLimit: defaultDailyLimit(kind), Remaining: defaultDailyLimit(kind) - 1}, nil
}

func (f *fakeStore) Reset(_ context.Context, studentID uuid.UUID, kind string) (*Counter, error) {
	return &Counter{StudentID: studentID, Kind: kind, DailyLimit: defaultDailyLimit(kind)}, nil
}

func (f *fakeStore) ResolveStudent(context.Context, uuid.UUID) (uuid.UUID, bool, error) {
	return f.studentID, f.hasStudent, f.resolveErr
}

func TestBridgeSyncsMappedKinds(t *testing.T) {
	tests := []struct {
		ledgerKind string
		legacyKind string
	}{
		{quota.KindQuiz, KindQuiz},
		{quota.KindQuizzes, KindQuiz},
		{quota.KindAnalysis, KindSimulation},
		{quota.KindSimulation, KindSimulation},
	}

	for _, tt := range tests {
		t.Run(tt.ledgerKind, func(t *testing.T) {
			store := &fakeStore{studentID: uuid.New(), hasStudent: true}
			NewBridge(store).Sync(context.Background(), uuid.New(), quota.RoleStudent, tt.ledgerKind, true)
			assert.Equal(t, []string{tt.legacyKind}, store.increments)
		})
	}
}

func TestBridgeIgnoresUnmappedKinds(t *testing.T) {
	for _, kind := range []string{quota.KindGeneral, quota.KindTutor, quota.KindFormulaGen, "other"} {
		store := &fakeStore{studentID: uuid.New(), hasStudent: true}
		NewBridge(store).Sync(context.Background(), uuid.New(), quota.RoleStudent, kind, true)
		assert.Empty(t, store.increments, "kind %s must not touch legacy counters", kind)
	}
}

func TestBridgeIgnoresFailedAttempts(t *testing.T) {
	store := &fakeStore{studentID: uuid.New(), hasStudent: true}
	NewBridge(store).Sync(context.Background(), uuid.New(), quota.RoleStudent, quota.KindQuiz, false)
	assert.Empty(t, store.increments)
}

func TestBridgeSkipsCallersWithoutStudentIdentity(t *testing.T) {
	store := &fakeStore{hasStudent: false}
	NewBridge(store).Sync(context.Background(), uuid.New(), quota.RoleAdvisor, quota.KindQuiz, true)
	assert.Empty(t, store.increments)
}

func TestBridgeSwallowsResolveErrors(t *testing.T) {
	store := &fakeStore{resolveErr: errors.New("db down")}
	// Must not panic or propagate.
	NewBridge(store).Sync(context.Background(), uuid.New(), quota.RoleStudent, quota.KindQuiz, true)
	assert.Empty(t, store.increments)
}

func TestBridgeSwallowsLimitReached(t *testing.T) {
	store := &fakeStore{studentID: uuid.New(), hasStudent: true, incrementErr: ErrLimitReached}
	NewBridge(store).Sync(context.Background(), uuid.New(), quota.RoleStudent, quota.KindQuiz, true)
	assert.Empty(t, store.increments)
}

func TestDefaultDailyLimit(t *testing.T) {
	assert.Equal(t, 10, defaultDailyLimit(KindTutor))
	assert.Equal(t, 5, defaultDailyLimit(KindQuiz))
	assert.Equal(t, 5, defaultDailyLimit(KindSimulation))
}

func TestValidKind(t *testing.T) {
	assert.True(t, ValidKind(KindQuiz))
	assert.True(t, ValidKind(KindSimulation))
	assert.True(t, ValidKind(KindTutor))
	assert.False(t, ValidKind("general"))
	assert.False(t, ValidKind(""))
}
