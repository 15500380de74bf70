package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/workflow-builder/engine/internal/models"
	"github.com/workflow-builder/engine/internal/repository"
	"github.com/workflow-builder/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests (required by tasks)
	_, err := logger.Init("info", "json")
	if err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

// Mock implementations
type mockAuditRepository struct {
	mock.Mock
}

func (m *mockAuditRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockAuditRepository) List(ctx context.Context, limit int) ([]models.AuditLog, error) {
	args := m.Called(ctx, limit)
	if v := args.Get(0); v != nil {
		return v.([]models.AuditLog), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockTokenRepository struct {
	mock.Mock
	repository.TokenRepository
}

func (m *mockTokenRepository) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockTokenRepository) WithTx(*gorm.DB) repository.TokenRepository { return m }

func TestAuditTaskHandler_HandleAuditRecord(t *testing.T) {
	actor := uuid.New()
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("stores the event", func(t *testing.T) {
		repo := new(mockAuditRepository)
		repo.On("Create", mock.Anything, mock.MatchedBy(func(e *models.AuditLog) bool {
			return e.Action == "workflow.create" &&
				e.ActorID != nil && *e.ActorID == actor &&
				e.TargetType != nil && *e.TargetType == "workflow" &&
				e.TargetID != nil && *e.TargetID == "wf-1" &&
				string(e.Meta) == `{"nodes":3}` &&
				e.CreatedAt.Equal(at)
		})).Return(nil).Once()

		task, err := NewAuditRecordTask(AuditPayload{
			Action: "workflow.create", ActorID: actor.String(), TargetType: "workflow", TargetID: "wf-1",
			Meta: map[string]any{"nodes": 3}, OccurredAt: at,
		})
		require.NoError(t, err)
		require.Equal(t, TypeAuditRecord, task.Type())

		require.NoError(t, NewAuditTaskHandler(repo).HandleAuditRecord(context.Background(), task))
		repo.AssertExpectations(t)
	})

	t.Run("optional fields stay null", func(t *testing.T) {
		repo := new(mockAuditRepository)
		repo.On("Create", mock.Anything, mock.MatchedBy(func(e *models.AuditLog) bool {
			return e.ActorID == nil && e.TargetType == nil && e.TargetID == nil && e.Meta == nil
		})).Return(nil).Once()

		task, err := NewAuditRecordTask(AuditPayload{Action: "auth.logout", OccurredAt: at})
		require.NoError(t, err)
		require.NoError(t, NewAuditTaskHandler(repo).HandleAuditRecord(context.Background(), task))
		repo.AssertExpectations(t)
	})

	t.Run("malformed payload is not retried", func(t *testing.T) {
		repo := new(mockAuditRepository)
		err := NewAuditTaskHandler(repo).HandleAuditRecord(context.Background(), asynq.NewTask(TypeAuditRecord, []byte("{")))
		require.ErrorIs(t, err, asynq.SkipRetry)

		b, _ := json.Marshal(AuditPayload{Action: "x", ActorID: "not-a-uuid"})
		err = NewAuditTaskHandler(repo).HandleAuditRecord(context.Background(), asynq.NewTask(TypeAuditRecord, b))
		require.ErrorIs(t, err, asynq.SkipRetry)
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("store failure is retried", func(t *testing.T) {
		repo := new(mockAuditRepository)
		repo.On("Create", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()
		task, err := NewAuditRecordTask(AuditPayload{Action: "x", OccurredAt: at})
		require.NoError(t, err)

		err = NewAuditTaskHandler(repo).HandleAuditRecord(context.Background(), task)
		require.Error(t, err)
		require.NotErrorIs(t, err, asynq.SkipRetry)
	})
}

func TestPurgeTaskHandler_HandlePurgeTokens(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	repo := new(mockTokenRepository)
	repo.On("PurgeExpired", mock.Anything, now).Return(int64(4), nil).Once()
	h := NewPurgeTaskHandler(repo)
	h.now = func() time.Time { return now }
	require.NoError(t, h.HandlePurgeTokens(context.Background(), NewPurgeTokensTask()))

	repo.On("PurgeExpired", mock.Anything, now).Return(int64(0), errors.New("locked")).Once()
	require.Error(t, h.HandlePurgeTokens(context.Background(), NewPurgeTokensTask()))
	repo.AssertExpectations(t)
}

func TestRegisterRoutesTaskTypes(t *testing.T) {
	mux := asynq.NewServeMux()
	Register(mux, NewAuditTaskHandler(new(mockAuditRepository)), NewPurgeTaskHandler(new(mockTokenRepository)))

	for _, typ := range []string{TypeAuditRecord, TypePurgeTokens} {
		_, pattern := mux.Handler(asynq.NewTask(typ, nil))
		require.Equal(t, typ, pattern)
	}
}
