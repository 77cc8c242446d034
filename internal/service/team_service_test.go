package service

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/yakoovad/pr-daemon/internal/model"
	"github.com/yakoovad/pr-daemon/internal/repository"
)

var createdAt = time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

func TestTeamService_AddTeam(t *testing.T) {
	tests := []struct {
		name          string
		team          *model.TeamCreate
		setupMocks    func(*MockTeamRepository)
		expectedError bool
		errorCode     ErrorCode
		expectedTeam  *model.Team
	}{
		{
			name: "success",
			team: &model.TeamCreate{Name: "platform", GithubOrgID: 7, SlackWebhookURL: teamWebhook},
			setupMocks: func(tr *MockTeamRepository) {
				tr.On("Create", mock.Anything, mock.MatchedBy(func(t *repository.Team) bool {
					return t.Name == "platform" && t.GithubOrgID == 7 &&
						t.SlackWebhookURL != nil && *t.SlackWebhookURL == teamWebhook
				})).Run(func(args mock.Arguments) {
					team := args.Get(1).(*repository.Team)
					team.ID = 1
					team.CreatedAt = createdAt
				}).Return(nil)
			},
			expectedTeam: &model.Team{ID: 1, Name: "platform", GithubOrgID: 7, HasSlackWebhook: true, CreatedAt: createdAt},
		},
		{
			name: "without webhook",
			team: &model.TeamCreate{Name: "platform", GithubOrgID: 7},
			setupMocks: func(tr *MockTeamRepository) {
				tr.On("Create", mock.Anything, mock.MatchedBy(func(t *repository.Team) bool {
					return t.SlackWebhookURL == nil
				})).Return(nil)
			},
			expectedTeam: &model.Team{Name: "platform", GithubOrgID: 7},
		},
		{
			name: "team exists",
			team: &model.TeamCreate{Name: "platform", GithubOrgID: 7},
			setupMocks: func(tr *MockTeamRepository) {
				tr.On("Create", mock.Anything, mock.Anything).Return(repository.ErrAlreadyExists)
			},
			expectedError: true,
			errorCode:     ErrorCodeTeamExists,
		},
		{
			name: "create failure",
			team: &model.TeamCreate{Name: "platform", GithubOrgID: 7},
			setupMocks: func(tr *MockTeamRepository) {
				tr.On("Create", mock.Anything, mock.Anything).Return(errors.New("db error"))
			},
			expectedError: true,
			errorCode:     ErrorCodeUnspecified,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockTeamRepo := new(MockTeamRepository)
			tt.setupMocks(mockTeamRepo)

			service := NewTeamService(new(MockTransactor)).
				WithTeamRepo(mockTeamRepo)

			got, err := service.AddTeam(context.Background(), tt.team)

			if tt.expectedError {
				assert.NotNil(t, err)
				assert.Equal(t, tt.errorCode, err.Code)
				assert.Nil(t, got)
			} else {
				assert.Nil(t, err)
				assert.Equal(t, tt.expectedTeam, got)
			}

			mockTeamRepo.AssertExpectations(t)
		})
	}
}

func TestTeamService_GetTeam(t *testing.T) {
	tests := []struct {
		name          string
		setupMocks    func(*MockTeamRepository)
		expectedError bool
		errorCode     ErrorCode
		expectedTeam  *model.Team
	}{
		{
			name: "success",
			setupMocks: func(tr *MockTeamRepository) {
				tr.On("Get", mock.Anything, int64(1)).Return(&repository.Team{
					ID: 1, Name: "platform", GithubOrgID: 7, SlackWebhookURL: ptr(""), CreatedAt: createdAt,
				}, nil)
			},
			expectedTeam: &model.Team{ID: 1, Name: "platform", GithubOrgID: 7, CreatedAt: createdAt},
		},
		{
			name: "team not found",
			setupMocks: func(tr *MockTeamRepository) {
				tr.On("Get", mock.Anything, int64(1)).Return(nil, repository.ErrNotFound)
			},
			expectedError: true,
			errorCode:     ErrorCodeNotFound,
		},
		{
			name: "store unavailable",
			setupMocks: func(tr *MockTeamRepository) {
				tr.On("Get", mock.Anything, int64(1)).Return(nil, errors.Wrap(repository.ErrStoreUnavailable, "dial"))
			},
			expectedError: true,
			errorCode:     ErrorCodeStoreUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockTeamRepo := new(MockTeamRepository)
			tt.setupMocks(mockTeamRepo)

			service := NewTeamService(new(MockTransactor)).
				WithTeamRepo(mockTeamRepo)

			got, err := service.GetTeam(context.Background(), 1)

			if tt.expectedError {
				assert.NotNil(t, err)
				assert.Equal(t, tt.errorCode, err.Code)
				assert.Nil(t, got)
			} else {
				assert.Nil(t, err)
				assert.Equal(t, tt.expectedTeam, got)
			}

			mockTeamRepo.AssertExpectations(t)
		})
	}
}

func TestTeamService_UpdateSlackWebhook(t *testing.T) {
	mockTeamRepo := new(MockTeamRepository)
	mockTeamRepo.On("UpdateSlackWebhook", mock.Anything, int64(1), teamWebhook).
		Return(&repository.Team{ID: 1, Name: "platform", GithubOrgID: 7, SlackWebhookURL: ptr(teamWebhook)}, nil)
	mockTeamRepo.On("UpdateSlackWebhook", mock.Anything, int64(2), teamWebhook).
		Return(nil, repository.ErrNotFound)

	service := NewTeamService(new(MockTransactor)).WithTeamRepo(mockTeamRepo)

	got, err := service.UpdateSlackWebhook(context.Background(), 1, teamWebhook)
	assert.Nil(t, err)
	assert.True(t, got.HasSlackWebhook)

	got, err = service.UpdateSlackWebhook(context.Background(), 2, teamWebhook)
	assert.Nil(t, got)
	if assert.NotNil(t, err) {
		assert.Equal(t, ErrorCodeNotFound, err.Code)
	}
}

func TestTeamService_RenameTeam(t *testing.T) {
	tests := []struct {
		name      string
		repoErr   error
		errorCode ErrorCode
	}{
		{name: "success"},
		{name: "not found", repoErr: repository.ErrNotFound, errorCode: ErrorCodeNotFound},
		{name: "name taken", repoErr: repository.ErrAlreadyExists, errorCode: ErrorCodeTeamExists},
		{name: "store down", repoErr: repository.ErrStoreUnavailable, errorCode: ErrorCodeStoreUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockTeamRepo := new(MockTeamRepository)
			if tt.repoErr != nil {
				mockTeamRepo.On("UpdateName", mock.Anything, int64(1), "backend").Return(nil, tt.repoErr)
			} else {
				mockTeamRepo.On("UpdateName", mock.Anything, int64(1), "backend").
					Return(&repository.Team{ID: 1, Name: "backend", GithubOrgID: 7}, nil)
			}

			service := NewTeamService(new(MockTransactor)).WithTeamRepo(mockTeamRepo)

			got, err := service.RenameTeam(context.Background(), 1, "backend")
			if tt.repoErr != nil {
				assert.Nil(t, got)
				if assert.NotNil(t, err) {
					assert.Equal(t, tt.errorCode, err.Code)
				}
				return
			}

			assert.Nil(t, err)
			assert.Equal(t, "backend", got.Name)
			mockTeamRepo.AssertExpectations(t)
		})
	}
}

func TestTeamService_ListPullRequests(t *testing.T) {
	orgID := int64(7)
	rows := []*repository.PullRequest{
		{RepoID: 42, Number: 1, Title: "first", Status: model.PRStatusOpen, OpenedAt: t0, LastCommitAt: t0,
			RepoName: "pr-daemon", RepoFullName: "acme/pr-daemon", OwnerID: orgID},
		{RepoID: 42, Number: 2, Title: "second", Status: model.PRStatusOpen, OpenedAt: t0, LastCommitAt: t0},
	}

	tests := []struct {
		name          string
		setupMocks    func(*MockTeamRepository, *MockPullRequestRepository)
		expectedError bool
		errorCode     ErrorCode
		expectedLen   int
	}{
		{
			name: "success",
			setupMocks: func(tr *MockTeamRepository, pr *MockPullRequestRepository) {
				tr.On("Get", mock.Anything, int64(1)).Return(&repository.Team{ID: 1, GithubOrgID: orgID}, nil)
				pr.On("FindMany", mock.Anything, repository.PullRequestFilter{
					Status:  model.PRStatusOpen,
					OwnerID: &orgID,
				}).Return(rows, nil)
			},
			expectedLen: 2,
		},
		{
			name: "team not found",
			setupMocks: func(tr *MockTeamRepository, _ *MockPullRequestRepository) {
				tr.On("Get", mock.Anything, int64(1)).Return(nil, repository.ErrNotFound)
			},
			expectedError: true,
			errorCode:     ErrorCodeNotFound,
		},
		{
			name: "query failure",
			setupMocks: func(tr *MockTeamRepository, pr *MockPullRequestRepository) {
				tr.On("Get", mock.Anything, int64(1)).Return(&repository.Team{ID: 1, GithubOrgID: orgID}, nil)
				pr.On("FindMany", mock.Anything, mock.Anything).Return(rows[:1], errors.New("db error"))
			},
			expectedError: true,
			errorCode:     ErrorCodeUnspecified,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockTeamRepo := new(MockTeamRepository)
			mockPRRepo := new(MockPullRequestRepository)
			tt.setupMocks(mockTeamRepo, mockPRRepo)

			service := NewTeamService(new(MockTransactor)).
				WithTeamRepo(mockTeamRepo).
				WithPullRequestRepo(mockPRRepo)

			got, err := service.ListPullRequests(context.Background(), 1, model.PRStatusOpen)

			if tt.expectedError {
				assert.NotNil(t, err)
				assert.Equal(t, tt.errorCode, err.Code)
				assert.Nil(t, got)
			} else {
				assert.Nil(t, err)
				assert.Len(t, got, tt.expectedLen)
				assert.Equal(t, "acme/pr-daemon", got[0].Repository.FullName)
				assert.Nil(t, got[1].Repository)
				assert.Equal(t, []model.Reviewer{}, got[1].Reviewers)
			}

			mockTeamRepo.AssertExpectations(t)
			mockPRRepo.AssertExpectations(t)
		})
	}
}
