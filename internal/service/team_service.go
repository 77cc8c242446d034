package service

import (
	"context"

	"github.com/pkg/errors"
	"github.com/yakoovad/pr-daemon/internal/db"
	"github.com/yakoovad/pr-daemon/internal/model"
	"github.com/yakoovad/pr-daemon/internal/repository"
	"github.com/yakoovad/pr-daemon/pkg/logger"
	"go.uber.org/zap"
)

type TeamService struct {
	tx db.Transactor

	teams repository.TeamRepository
	prs   repository.PullRequestRepository
}

func NewTeamService(tx db.Transactor) *TeamService {
	return &TeamService{
		tx: tx,
	}
}

func (t *TeamService) AddTeam(ctx context.Context, team *model.TeamCreate) (*model.Team, *Error) {
	l := logger.FromContext(ctx)
	l.Info("adding team", zap.String("team_name", team.Name), zap.Int64("github_org_id", team.GithubOrgID))

	row := &repository.Team{
		Name:        team.Name,
		GithubOrgID: team.GithubOrgID,
	}
	if team.SlackWebhookURL != "" {
		row.SlackWebhookURL = &team.SlackWebhookURL
	}

	err := t.teams.Create(ctx, row)
	if errors.Is(err, repository.ErrAlreadyExists) {
		l.Warn("team already exists", zap.String("team_name", team.Name))
		return nil, NewError(ErrorCodeTeamExists, "team name or github org already registered")
	}
	if err != nil {
		l.Error("failed to create team", zap.String("team_name", team.Name), zap.Error(err))
		return nil, asError(err, "failed to create team")
	}

	l.Debug("team added successfully", zap.Int64("team_id", row.ID))

	return teamFromRepo(row), nil
}

func (t *TeamService) GetTeam(ctx context.Context, id int64) (*model.Team, *Error) {
	l := logger.FromContext(ctx)
	l.Debug("getting team", zap.Int64("team_id", id))

	team, err := t.teams.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		l.Warn("team not found", zap.Int64("team_id", id))
		return nil, NewError(ErrorCodeNotFound, "team not found")
	}
	if err != nil {
		l.Error("failed to get team", zap.Int64("team_id", id), zap.Error(err))
		return nil, asError(err, "failed to get team")
	}

	return teamFromRepo(team), nil
}

func (t *TeamService) RenameTeam(ctx context.Context, id int64, name string) (*model.Team, *Error) {
	l := logger.FromContext(ctx)
	l.Info("renaming team", zap.Int64("team_id", id), zap.String("team_name", name))

	team, err := t.teams.UpdateName(ctx, id, name)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		l.Warn("team not found", zap.Int64("team_id", id))
		return nil, NewError(ErrorCodeNotFound, "team not found")
	case errors.Is(err, repository.ErrAlreadyExists):
		l.Warn("team name already taken", zap.String("team_name", name))
		return nil, NewError(ErrorCodeTeamExists, "team name already registered")
	case err != nil:
		l.Error("failed to rename team", zap.Int64("team_id", id), zap.Error(err))
		return nil, asError(err, "failed to rename team")
	}

	return teamFromRepo(team), nil
}

func (t *TeamService) UpdateSlackWebhook(ctx context.Context, id int64, url string) (*model.Team, *Error) {
	l := logger.FromContext(ctx)
	l.Info("updating team slack webhook", zap.Int64("team_id", id))

	team, err := t.teams.UpdateSlackWebhook(ctx, id, url)
	if errors.Is(err, repository.ErrNotFound) {
		l.Warn("team not found", zap.Int64("team_id", id))
		return nil, NewError(ErrorCodeNotFound, "team not found")
	}
	if err != nil {
		l.Error("failed to update slack webhook", zap.Int64("team_id", id), zap.Error(err))
		return nil, asError(err, "failed to update slack webhook")
	}

	return teamFromRepo(team), nil
}

// ListPullRequests returns the pull requests of the repositories owned by the team.
// An empty status lists every status.
func (t *TeamService) ListPullRequests(ctx context.Context, id int64, status model.PRStatus) ([]*model.PullRequest, *Error) {
	l := logger.FromContext(ctx)
	l.Debug("listing team pull requests", zap.Int64("team_id", id), zap.String("status", string(status)))

	prs := make([]*model.PullRequest, 0)

	err := t.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		team, err := t.teams.Get(txCtx, id)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return NewError(ErrorCodeNotFound, "team not found")
		case err != nil:
			return err
		}

		for pr, err := range t.prs.FindMany(txCtx, repository.PullRequestFilter{
			Status:  status,
			OwnerID: &team.GithubOrgID,
		}) {
			if err != nil {
				return err
			}
			prs = append(prs, pullRequestFromRepo(pr))
		}
		return nil
	})
	if err != nil {
		res := asError(err, "failed to list pull requests")
		if res.Code != ErrorCodeNotFound {
			l.Error("failed to list pull requests", zap.Int64("team_id", id), zap.Error(err))
		}
		return nil, res
	}

	return prs, nil
}

func (t *TeamService) WithTeamRepo(r repository.TeamRepository) *TeamService {
	t.teams = r
	return t
}

func (t *TeamService) WithPullRequestRepo(r repository.PullRequestRepository) *TeamService {
	t.prs = r
	return t
}
