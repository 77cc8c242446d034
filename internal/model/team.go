package model

import "time"

// Team owns the repositories of one GitHub organization and receives their alerts.
type Team struct {
	ID                int64      `json:"id"`
	Name              string     `json:"name"`
	GithubOrgID       int64      `json:"github_org_id"`
	HasSlackWebhook   bool       `json:"has_slack_webhook"`
	LastGithubEventAt *time.Time `json:"last_github_event_at,omitempty"`
	LastSlackSentAt   *time.Time `json:"last_slack_sent_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

type TeamCreate struct {
	Name            string `json:"name" validate:"required"`
	GithubOrgID     int64  `json:"github_org_id" validate:"required,gt=0"`
	SlackWebhookURL string `json:"slack_webhook_url" validate:"omitempty,slackwebhook"`
}
