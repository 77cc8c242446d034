package service

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/yakoovad/pr-daemon/internal/model"
	"github.com/yakoovad/pr-daemon/internal/repository"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

var testKey = model.PullRequestKey{RepoID: 42, Number: 12}

func ptr[T any](v T) *T { return &v }

func event(action model.Action, at time.Time) *model.PullRequestEvent {
	return &model.PullRequestEvent{
		DeliveryID:   "delivery-" + string(action),
		Action:       action,
		RepoID:       testKey.RepoID,
		RepoName:     "pr-daemon",
		RepoFullName: "acme/pr-daemon",
		OwnerID:      7,
		PRNumber:     testKey.Number,
		Title:        "feat: alerts",
		OpenedAt:     t0,
		UpdatedAt:    at,
		Reviewers: []model.Reviewer{
			{ID: 1, Actor: model.Individual{Login: "alice"}},
			{ID: 9, Actor: model.Group{Slug: "platform"}},
		},
	}
}

func reviewEvent(id int64, login string, state model.ReviewState, at time.Time) *model.PullRequestEvent {
	ev := event(model.ActionReviewSubmitted, at)
	ev.Reviewers = nil
	ev.Review = &model.Reviewer{
		ID:          id,
		Actor:       model.Individual{Login: login},
		State:       state,
		SubmittedAt: ptr(at),
	}
	return ev
}

func newLifecycle(store *memStore) *LifecycleService {
	return NewLifecycleService(new(MockTransactor)).
		WithRepoRepo(memRepos{store}).
		WithPullRequestRepo(store)
}

func apply(t *testing.T, s *LifecycleService, ev *model.PullRequestEvent) {
	t.Helper()
	require.Nil(t, s.Apply(context.Background(), ev))
}

func TestLifecycleService_OpenedIsIdempotent(t *testing.T) {
	store := newMemStore()
	s := newLifecycle(store)

	apply(t, s, event(model.ActionOpened, t0))
	first := store.get(testKey)
	require.NotNil(t, first)

	apply(t, s, event(model.ActionOpened, t0))
	assert.Equal(t, first, store.get(testKey))

	assert.Equal(t, model.PRStatusOpen, first.Status)
	assert.Equal(t, t0, first.OpenedAt)
	assert.Equal(t, t0, first.LastCommitAt)
	assert.Nil(t, first.ClosedAt)
	assert.Equal(t, "pr-daemon", first.RepoName)
	assert.Len(t, first.Reviewers, 2)
}

func TestLifecycleService_SynchronizeClearsStalledMarkerOnly(t *testing.T) {
	store := newMemStore()
	s := newLifecycle(store)
	ctx := context.Background()

	apply(t, s, event(model.ActionOpened, t0))
	_, _ = store.MarkAlerted(ctx, testKey, model.AlertKindStale, t0.Add(49*time.Hour))
	_, _ = store.MarkAlerted(ctx, testKey, model.AlertKindStalled, t0.Add(50*time.Hour))

	pushedAt := t0.Add(51 * time.Hour)
	apply(t, s, event(model.ActionSynchronize, pushedAt))

	pr := store.get(testKey)
	assert.Equal(t, pushedAt, pr.LastCommitAt)
	assert.Nil(t, pr.StalledAlertAt)
	require.NotNil(t, pr.StaleAlertAt)
	assert.Equal(t, t0.Add(49*time.Hour), *pr.StaleAlertAt)
}

func TestLifecycleService_ClosedUnknownPullRequest(t *testing.T) {
	store := newMemStore()
	s := newLifecycle(store)

	err := s.Apply(context.Background(), event(model.ActionClosed, t0))

	require.NotNil(t, err)
	assert.Equal(t, ErrorCodeMissingEntity, err.Code)
	assert.Nil(t, store.get(testKey))
	assert.Empty(t, store.repos)
}

func TestLifecycleService_ClosedAtMatchesStatus(t *testing.T) {
	store := newMemStore()
	s := newLifecycle(store)
	ctx := context.Background()

	assertInvariant := func(t *testing.T) {
		t.Helper()
		pr := store.get(testKey)
		require.NotNil(t, pr)
		assert.Equal(t, pr.Status == model.PRStatusClosed, pr.ClosedAt != nil)
	}

	apply(t, s, event(model.ActionOpened, t0))
	assertInvariant(t)

	_, _ = store.MarkAlerted(ctx, testKey, model.AlertKindStale, t0.Add(49*time.Hour))
	_, _ = store.MarkAlerted(ctx, testKey, model.AlertKindStalled, t0.Add(49*time.Hour))

	closed := event(model.ActionClosed, t0.Add(72*time.Hour))
	closed.ClosedAt = ptr(t0.Add(71 * time.Hour))
	apply(t, s, closed)
	assertInvariant(t)

	pr := store.get(testKey)
	assert.Equal(t, model.PRStatusClosed, pr.Status)
	assert.Equal(t, t0.Add(71*time.Hour), *pr.ClosedAt)
	assert.Nil(t, pr.StaleAlertAt)
	assert.NotNil(t, pr.StalledAlertAt)

	reopened := event(model.ActionReopened, t0.Add(96*time.Hour))
	reopened.OpenedAt = t0.Add(96 * time.Hour)
	apply(t, s, reopened)
	assertInvariant(t)

	pr = store.get(testKey)
	assert.Equal(t, model.PRStatusOpen, pr.Status)
	assert.Equal(t, t0, pr.OpenedAt)
	assert.Equal(t, t0.Add(96*time.Hour), pr.LastCommitAt)
	assert.Nil(t, pr.StaleAlertAt)
	assert.Nil(t, pr.UnreviewedAlertAt)
	assert.Nil(t, pr.StalledAlertAt)
}

func TestLifecycleService_ClosedWithoutTimestampUsesEventTime(t *testing.T) {
	store := newMemStore()
	s := newLifecycle(store)

	apply(t, s, event(model.ActionOpened, t0))
	apply(t, s, event(model.ActionClosed, t0.Add(time.Hour)))

	pr := store.get(testKey)
	require.NotNil(t, pr.ClosedAt)
	assert.Equal(t, t0.Add(time.Hour), *pr.ClosedAt)
}

func TestLifecycleService_ReviewsAreCounted(t *testing.T) {
	store := newMemStore()
	s := newLifecycle(store)

	apply(t, s, event(model.ActionOpened, t0))

	first := t0.Add(2 * time.Hour)
	second := t0.Add(5 * time.Hour)
	apply(t, s, reviewEvent(1, "alice", model.ReviewStateApproved, first))
	apply(t, s, reviewEvent(2, "bob", model.ReviewStateChangesRequested, second))

	pr := store.get(testKey)
	assert.Equal(t, 2, pr.ReviewCount)
	require.NotNil(t, pr.LastReviewAt)
	assert.Equal(t, second, *pr.LastReviewAt)

	require.Len(t, pr.Reviewers, 3)
	assert.Equal(t, model.ReviewStateApproved, pr.Reviewers[0].State)
	assert.Equal(t, first, *pr.Reviewers[0].SubmittedAt)
	assert.False(t, pr.Reviewers[1].Resolved())
	assert.Equal(t, model.Individual{Login: "bob"}, pr.Reviewers[2].Actor)
	assert.Equal(t, model.ReviewStateChangesRequested, pr.Reviewers[2].State)
}

func TestLifecycleService_IgnoredReviews(t *testing.T) {
	tests := []struct {
		name   string
		opened bool
		ev     *model.PullRequestEvent
	}{
		{
			name:   "pending review",
			opened: true,
			ev:     reviewEvent(1, "alice", model.ReviewState("pending"), t0.Add(time.Hour)),
		},
		{
			name:   "missing review",
			opened: true,
			ev: func() *model.PullRequestEvent {
				ev := reviewEvent(1, "alice", model.ReviewStateApproved, t0.Add(time.Hour))
				ev.Review = nil
				return ev
			}(),
		},
		{
			name: "unknown pull request",
			ev:   reviewEvent(1, "alice", model.ReviewStateApproved, t0.Add(time.Hour)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			s := newLifecycle(store)
			if tt.opened {
				apply(t, s, event(model.ActionOpened, t0))
			}

			apply(t, s, tt.ev)

			pr := store.get(testKey)
			if !tt.opened {
				assert.Nil(t, pr)
				return
			}
			assert.Zero(t, pr.ReviewCount)
			assert.Nil(t, pr.LastReviewAt)
		})
	}
}

func TestLifecycleService_ReviewerChanges(t *testing.T) {
	store := newMemStore()
	s := newLifecycle(store)

	apply(t, s, event(model.ActionOpened, t0))
	apply(t, s, reviewEvent(1, "alice", model.ReviewStateApproved, t0.Add(time.Hour)))

	removed := event(model.ActionReviewRequestRemoved, t0.Add(2*time.Hour))
	removed.Reviewers = []model.Reviewer{{ID: 3, Actor: model.Individual{Login: "carol"}}}
	apply(t, s, removed)

	edited := event(model.ActionEdited, t0.Add(3*time.Hour))
	edited.Title = "feat: alert pacing"
	apply(t, s, edited)

	pr := store.get(testKey)
	assert.Equal(t, "feat: alert pacing", pr.Title)
	require.Len(t, pr.Reviewers, 2)
	assert.Equal(t, model.Individual{Login: "alice"}, pr.Reviewers[0].Actor)
	assert.True(t, pr.Reviewers[0].Resolved())
	assert.Equal(t, model.Individual{Login: "carol"}, pr.Reviewers[1].Actor)
	assert.Equal(t, t0, pr.LastCommitAt)
}

func TestLifecycleService_Apply(t *testing.T) {
	storeDown := errors.Wrap(repository.ErrStoreUnavailable, "dial tcp: connection refused")

	tests := []struct {
		name          string
		ev            *model.PullRequestEvent
		setupMocks    func(*MockRepoRepository, *MockPullRequestRepository, *MockTeamRepository)
		expectedError bool
		errorCode     ErrorCode
	}{
		{
			name: "store unavailable",
			ev:   event(model.ActionOpened, t0),
			setupMocks: func(rr *MockRepoRepository, _ *MockPullRequestRepository, _ *MockTeamRepository) {
				rr.On("Upsert", mock.Anything, mock.MatchedBy(func(r *repository.Repo) bool {
					return r.ID == 42 && r.OwnerID == 7
				})).Return(storeDown)
			},
			expectedError: true,
			errorCode:     ErrorCodeStoreUnavailable,
		},
		{
			name: "lookup failure on close",
			ev:   event(model.ActionClosed, t0),
			setupMocks: func(_ *MockRepoRepository, pr *MockPullRequestRepository, _ *MockTeamRepository) {
				pr.On("FindByKeyForUpdate", mock.Anything, testKey).Return(nil, errors.New("syntax error"))
			},
			expectedError: true,
			errorCode:     ErrorCodeUnspecified,
		},
		{
			name: "synchronize records team activity",
			ev:   event(model.ActionSynchronize, t0.Add(time.Hour)),
			setupMocks: func(_ *MockRepoRepository, pr *MockPullRequestRepository, tr *MockTeamRepository) {
				pr.On("UpdateWhere", mock.Anything, testKey, mock.MatchedBy(func(p *repository.PullRequestPatch) bool {
					return p.LastCommitAt.Equal(t0.Add(time.Hour)) &&
						len(p.ClearMarkers) == 1 && p.ClearMarkers[0] == model.AlertKindStalled
				})).Return(true, nil)
				tr.On("TouchGithubEvent", mock.Anything, int64(7), t0.Add(time.Hour)).Return(nil)
			},
		},
		{
			name: "team activity failure is not fatal",
			ev:   event(model.ActionEdited, t0),
			setupMocks: func(_ *MockRepoRepository, pr *MockPullRequestRepository, tr *MockTeamRepository) {
				pr.On("UpdateWhere", mock.Anything, testKey, mock.Anything).Return(false, nil)
				tr.On("TouchGithubEvent", mock.Anything, int64(7), t0).Return(errors.New("timeout"))
			},
		},
		{
			name: "unsupported action",
			ev:   event(model.Action("labeled"), t0),
			setupMocks: func(_ *MockRepoRepository, _ *MockPullRequestRepository, tr *MockTeamRepository) {
				tr.On("TouchGithubEvent", mock.Anything, int64(7), t0).Return(nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepoRepo := new(MockRepoRepository)
			mockPRRepo := new(MockPullRequestRepository)
			mockTeamRepo := new(MockTeamRepository)

			tt.setupMocks(mockRepoRepo, mockPRRepo, mockTeamRepo)

			service := NewLifecycleService(new(MockTransactor)).
				WithRepoRepo(mockRepoRepo).
				WithPullRequestRepo(mockPRRepo).
				WithTeamRepo(mockTeamRepo)

			err := service.Apply(context.Background(), tt.ev)

			if tt.expectedError {
				require.NotNil(t, err)
				assert.Equal(t, tt.errorCode, err.Code)
			} else {
				assert.Nil(t, err)
			}

			mockRepoRepo.AssertExpectations(t)
			mockPRRepo.AssertExpectations(t)
			mockTeamRepo.AssertExpectations(t)
		})
	}
}
