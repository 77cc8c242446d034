package model

import "time"

type Action string

const (
	ActionOpened               Action = "opened"
	ActionReopened             Action = "reopened"
	ActionSynchronize          Action = "synchronize"
	ActionClosed               Action = "closed"
	ActionEdited               Action = "edited"
	ActionReviewRequested      Action = "review_requested"
	ActionReviewRequestRemoved Action = "review_request_removed"
	ActionReviewSubmitted      Action = "review_submitted"
)

// PullRequestEvent is a provider delivery normalized for the lifecycle state machine.
type PullRequestEvent struct {
	DeliveryID string
	Action     Action

	RepoID       int64
	RepoName     string
	RepoFullName string
	OwnerID      int64

	PRNumber  int
	Title     string
	OpenedAt  time.Time
	ClosedAt  *time.Time
	UpdatedAt time.Time
	Reviewers []Reviewer

	// Review is set for ActionReviewSubmitted only.
	Review *Reviewer
}

func (e *PullRequestEvent) Key() PullRequestKey {
	return PullRequestKey{RepoID: e.RepoID, Number: e.PRNumber}
}

func (e *PullRequestEvent) Repository() *Repository {
	return &Repository{
		ID:       e.RepoID,
		Name:     e.RepoName,
		FullName: e.RepoFullName,
		OwnerID:  e.OwnerID,
	}
}
