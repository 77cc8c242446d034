package model

import (
	"fmt"
	"time"
)

type PRStatus string

const (
	PRStatusOpen   PRStatus = "OPEN"
	PRStatusClosed PRStatus = "CLOSED"
)

// PullRequestKey is the composite identity of a pull request.
type PullRequestKey struct {
	RepoID int64 `json:"repo_id"`
	Number int   `json:"pr_number"`
}

func (k PullRequestKey) String() string {
	return fmt.Sprintf("%d#%d", k.RepoID, k.Number)
}

type PullRequest struct {
	RepoID       int64      `json:"repo_id"`
	Number       int        `json:"pr_number"`
	Title        string     `json:"title"`
	Status       PRStatus   `json:"status"`
	OpenedAt     time.Time  `json:"opened_at"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	LastCommitAt time.Time  `json:"last_commit_at"`
	ReviewCount  int        `json:"review_count"`
	LastReviewAt *time.Time `json:"last_review_at,omitempty"`
	Reviewers    []Reviewer `json:"reviewers"`

	StaleAlertAt      *time.Time `json:"stale_alert_at,omitempty"`
	UnreviewedAlertAt *time.Time `json:"unreviewed_alert_at,omitempty"`
	StalledAlertAt    *time.Time `json:"stalled_alert_at,omitempty"`

	Repository *Repository `json:"repository,omitempty"`
}

func (p *PullRequest) Key() PullRequestKey {
	return PullRequestKey{RepoID: p.RepoID, Number: p.Number}
}

// LastReviewer returns the reviewer with the most recent submitted review.
func (p *PullRequest) LastReviewer() (Reviewer, bool) {
	var (
		last  Reviewer
		found bool
	)
	for _, r := range p.Reviewers {
		if r.SubmittedAt == nil {
			continue
		}
		if !found || r.SubmittedAt.After(*last.SubmittedAt) {
			last, found = r, true
		}
	}
	return last, found
}

// Repository is a code repository as seen by the provider.
type Repository struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	OwnerID  int64  `json:"owner_id"`
}
