// Package webhook turns raw GitHub deliveries into model.PullRequestEvent values.
package webhook

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/yakoovad/pr-daemon/internal/model"
)

const (
	EventPullRequest       = "pull_request"
	EventPullRequestReview = "pull_request_review"
	EventPing              = "ping"
)

type Normalizer struct {
	now func() time.Time
}

// NewNormalizer creates a normalizer; now defaults to time.Now.
func NewNormalizer(now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{now: now}
}

// Normalize maps a raw delivery of the given X-GitHub-Event type to a PullRequestEvent.
func (n *Normalizer) Normalize(eventType string, body []byte) (*model.PullRequestEvent, error) {
	if eventType != EventPullRequest && eventType != EventPullRequestReview {
		return nil, ErrUnsupportedEvent
	}

	var p eventPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, &MalformedPayloadError{Field: "body", Err: err}
	}

	if p.Repository == nil || p.Repository.ID == nil {
		return nil, &MalformedPayloadError{Field: "repository.id"}
	}
	if p.PullRequest == nil || p.PullRequest.Number == nil {
		return nil, &MalformedPayloadError{Field: "pull_request.number"}
	}

	now := n.now().UTC()
	pr := p.PullRequest

	ev := &model.PullRequestEvent{
		Action:       model.Action(p.Action),
		RepoID:       *p.Repository.ID,
		RepoName:     p.Repository.Name,
		RepoFullName: p.Repository.FullName,
		PRNumber:     *pr.Number,
		Reviewers:    normalizeReviewers(pr),
	}

	if ev.RepoFullName == "" {
		ev.RepoFullName = ev.RepoName
	}
	if p.Repository.Owner != nil {
		ev.OwnerID = p.Repository.Owner.ID
	}
	if pr.Title != nil {
		ev.Title = *pr.Title
	}

	var err error
	if ev.OpenedAt, err = timestampOr(pr.CreatedAt, now, "pull_request.created_at"); err != nil {
		return nil, err
	}
	if ev.UpdatedAt, err = timestampOr(pr.UpdatedAt, now, "pull_request.updated_at"); err != nil {
		return nil, err
	}
	if ev.ClosedAt, err = optionalTimestamp(pr.ClosedAt, "pull_request.closed_at"); err != nil {
		return nil, err
	}

	if eventType == EventPullRequestReview {
		if err = n.normalizeReview(ev, &p, now); err != nil {
			return nil, err
		}
	}

	return ev, nil
}

func (n *Normalizer) normalizeReview(ev *model.PullRequestEvent, p *eventPayload, now time.Time) error {
	if p.Action != "submitted" {
		ev.Action = model.Action("review_" + p.Action)
		return nil
	}
	if p.Review == nil {
		return &MalformedPayloadError{Field: "review"}
	}

	submittedAt, err := timestampOr(p.Review.SubmittedAt, now, "review.submitted_at")
	if err != nil {
		return err
	}

	reviewer := model.Reviewer{
		SubmittedAt: &submittedAt,
		State:       model.ReviewState(strings.ToLower(p.Review.State)),
	}
	if u := p.Review.User; u != nil {
		reviewer.ID = u.ID
		reviewer.Actor = individual(u.ID, u.Login)
	} else {
		reviewer.Actor = individual(0, "")
	}

	ev.Action = model.ActionReviewSubmitted
	ev.UpdatedAt = submittedAt
	ev.Review = &reviewer
	return nil
}

func normalizeReviewers(pr *pullRequestPayload) []model.Reviewer {
	reviewers := make([]model.Reviewer, 0, len(pr.RequestedReviewers)+len(pr.RequestedTeams))

	for _, r := range pr.RequestedReviewers {
		if r.Type == "Team" || r.Slug != "" {
			reviewers = append(reviewers, model.Reviewer{ID: r.ID, Actor: group(r)})
			continue
		}
		reviewers = append(reviewers, model.Reviewer{ID: r.ID, Actor: individual(r.ID, r.Login)})
	}

	for _, t := range pr.RequestedTeams {
		reviewers = append(reviewers, model.Reviewer{ID: t.ID, Actor: group(t)})
	}

	return reviewers
}

func individual(id int64, login string) model.Individual {
	if login == "" {
		login = fmt.Sprintf("user-%d", id)
	}
	return model.Individual{Login: login}
}

func group(r requestedReviewer) model.Group {
	switch {
	case r.Slug != "":
		return model.Group{Slug: r.Slug}
	case r.Name != "":
		return model.Group{Slug: r.Name}
	case r.Login != "":
		return model.Group{Slug: r.Login}
	}
	return model.Group{Slug: fmt.Sprintf("team-%d", r.ID)}
}

func timestampOr(raw *string, fallback time.Time, field string) (time.Time, error) {
	t, err := optionalTimestamp(raw, field)
	if err != nil {
		return time.Time{}, err
	}
	if t == nil {
		return fallback, nil
	}
	return *t, nil
}

func optionalTimestamp(raw *string, field string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		return nil, &MalformedPayloadError{Field: field, Err: err}
	}
	t = t.UTC()
	return &t, nil
}
