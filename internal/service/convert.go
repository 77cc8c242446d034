package service

import (
	"github.com/yakoovad/pr-daemon/internal/model"
	"github.com/yakoovad/pr-daemon/internal/repository"
)

func pullRequestFromRepo(pr *repository.PullRequest) *model.PullRequest {
	res := &model.PullRequest{
		RepoID:            pr.RepoID,
		Number:            pr.Number,
		Title:             pr.Title,
		Status:            pr.Status,
		OpenedAt:          pr.OpenedAt,
		ClosedAt:          pr.ClosedAt,
		LastCommitAt:      pr.LastCommitAt,
		ReviewCount:       pr.ReviewCount,
		LastReviewAt:      pr.LastReviewAt,
		Reviewers:         pr.Reviewers,
		StaleAlertAt:      pr.StaleAlertAt,
		UnreviewedAlertAt: pr.UnreviewedAlertAt,
		StalledAlertAt:    pr.StalledAlertAt,
	}
	if res.Reviewers == nil {
		res.Reviewers = []model.Reviewer{}
	}
	if pr.RepoName != "" || pr.RepoFullName != "" {
		res.Repository = &model.Repository{
			ID:       pr.RepoID,
			Name:     pr.RepoName,
			FullName: pr.RepoFullName,
			OwnerID:  pr.OwnerID,
		}
	}
	return res
}

func teamFromRepo(team *repository.Team) *model.Team {
	return &model.Team{
		ID:                team.ID,
		Name:              team.Name,
		GithubOrgID:       team.GithubOrgID,
		HasSlackWebhook:   team.SlackWebhookURL != nil && *team.SlackWebhookURL != "",
		LastGithubEventAt: team.LastGithubEventAt,
		LastSlackSentAt:   team.LastSlackSentAt,
		CreatedAt:         team.CreatedAt,
	}
}
