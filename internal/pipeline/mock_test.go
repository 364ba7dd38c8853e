package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/priorauth/internal/model"
	"github.com/sells-group/priorauth/internal/store"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateRun(ctx context.Context, raw model.RawCase) (*model.Run, error) {
	args := m.Called(ctx, raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *mockStore) CompleteRun(ctx context.Context, runID string, state model.CaseState) error {
	return m.Called(ctx, runID, state).Error(0)
}

func (m *mockStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *mockStore) ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Run), args.Error(1)
}

func (m *mockStore) RecordStages(ctx context.Context, runID string, stages []model.StageRecord) error {
	return m.Called(ctx, runID, stages).Error(0)
}

func (m *mockStore) ListStages(ctx context.Context, runID string) ([]model.StageRecord, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.StageRecord), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}
