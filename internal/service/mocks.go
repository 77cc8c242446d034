package service

import (
	"context"
	"iter"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/yakoovad/pr-daemon/internal/model"
	"github.com/yakoovad/pr-daemon/internal/repository"
)

type MockTransactor struct {
	mock.Mock
}

func (m *MockTransactor) WithinTransaction(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type MockRepoRepository struct {
	mock.Mock
}

func (m *MockRepoRepository) Upsert(ctx context.Context, repo *repository.Repo) error {
	args := m.Called(ctx, repo)
	return args.Error(0)
}

type MockTeamRepository struct {
	mock.Mock
}

func (m *MockTeamRepository) Create(ctx context.Context, team *repository.Team) error {
	args := m.Called(ctx, team)
	return args.Error(0)
}

func (m *MockTeamRepository) Get(ctx context.Context, id int64) (*repository.Team, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Team), args.Error(1)
}

func (m *MockTeamRepository) GetByOrg(ctx context.Context, githubOrgID int64) (*repository.Team, error) {
	args := m.Called(ctx, githubOrgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Team), args.Error(1)
}

func (m *MockTeamRepository) UpdateName(ctx context.Context, id int64, name string) (*repository.Team, error) {
	args := m.Called(ctx, id, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Team), args.Error(1)
}

func (m *MockTeamRepository) UpdateSlackWebhook(ctx context.Context, id int64, url string) (*repository.Team, error) {
	args := m.Called(ctx, id, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Team), args.Error(1)
}

func (m *MockTeamRepository) TouchGithubEvent(ctx context.Context, githubOrgID int64, at time.Time) error {
	args := m.Called(ctx, githubOrgID, at)
	return args.Error(0)
}

func (m *MockTeamRepository) TouchSlackSent(ctx context.Context, id int64, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

type MockPullRequestRepository struct {
	mock.Mock
}

func (m *MockPullRequestRepository) FindByKey(ctx context.Context, key model.PullRequestKey) (*repository.PullRequest, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PullRequest), args.Error(1)
}

func (m *MockPullRequestRepository) FindByKeyForUpdate(ctx context.Context, key model.PullRequestKey) (*repository.PullRequest, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PullRequest), args.Error(1)
}

func (m *MockPullRequestRepository) Upsert(ctx context.Context, create *repository.PullRequest, update *repository.PullRequestPatch) error {
	args := m.Called(ctx, create, update)
	return args.Error(0)
}

func (m *MockPullRequestRepository) UpdateWhere(ctx context.Context, key model.PullRequestKey, patch *repository.PullRequestPatch) (bool, error) {
	args := m.Called(ctx, key, patch)
	return args.Bool(0), args.Error(1)
}

// FindMany yields the configured rows, then the configured error if any.
func (m *MockPullRequestRepository) FindMany(ctx context.Context, filter repository.PullRequestFilter) iter.Seq2[*repository.PullRequest, error] {
	args := m.Called(ctx, filter)
	rows, _ := args.Get(0).([]*repository.PullRequest)
	err := args.Error(1)

	return func(yield func(*repository.PullRequest, error) bool) {
		for _, row := range rows {
			if !yield(row, nil) {
				return
			}
		}
		if err != nil {
			yield(nil, err)
		}
	}
}

func (m *MockPullRequestRepository) IncrementReviewCount(ctx context.Context, key model.PullRequestKey, reviewedAt time.Time) (bool, error) {
	args := m.Called(ctx, key, reviewedAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockPullRequestRepository) MarkAlerted(ctx context.Context, key model.PullRequestKey, kind model.AlertKind, at time.Time) (bool, error) {
	args := m.Called(ctx, key, kind, at)
	return args.Bool(0), args.Error(1)
}

type MockDispatcher struct {
	mock.Mock
}

// Enqueue resolves the future immediately with the configured error.
func (m *MockDispatcher) Enqueue(destination, payload string) <-chan error {
	args := m.Called(destination, payload)
	res := make(chan error, 1)
	res <- args.Error(0)
	return res
}

type MockFormatter struct {
	mock.Mock
}

func (m *MockFormatter) Format(kind model.AlertKind, pr *model.PullRequest) string {
	args := m.Called(kind, pr)
	return args.String(0)
}
