package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Actor is either an Individual or a Group.
type Actor interface {
	// Handle is the identifier used for display: login or group slug.
	Handle() string
	actor()
}

type Individual struct {
	Login string
}

func (i Individual) Handle() string { return i.Login }
func (Individual) actor()           {}

// Group is a team reviewer, identified by its slug.
type Group struct {
	Slug string
}

func (g Group) Handle() string { return g.Slug }
func (Group) actor()           {}

type ReviewState string

const (
	ReviewStateApproved         ReviewState = "approved"
	ReviewStateChangesRequested ReviewState = "changes_requested"
	ReviewStateCommented        ReviewState = "commented"
	ReviewStateDismissed        ReviewState = "dismissed"
)

// Terminal reports whether the state is a review outcome that counts as a review.
func (s ReviewState) Terminal() bool {
	switch s {
	case ReviewStateApproved, ReviewStateChangesRequested, ReviewStateCommented, ReviewStateDismissed:
		return true
	}
	return false
}

// Reviewer is a requested reviewer, with the review outcome attached once resolved.
type Reviewer struct {
	ID          int64
	Actor       Actor
	SubmittedAt *time.Time
	State       ReviewState
}

const (
	actorTypeUser = "User"
	actorTypeTeam = "Team"
)

type reviewerJSON struct {
	ID          int64       `json:"id"`
	Login       string      `json:"login"`
	Type        string      `json:"type"`
	Slug        string      `json:"slug,omitempty"`
	SubmittedAt *time.Time  `json:"submittedAt"`
	State       ReviewState `json:"state,omitempty"`
}

func (r Reviewer) MarshalJSON() ([]byte, error) {
	out := reviewerJSON{
		ID:          r.ID,
		SubmittedAt: r.SubmittedAt,
		State:       r.State,
	}

	switch a := r.Actor.(type) {
	case Individual:
		out.Type = actorTypeUser
		out.Login = a.Login
	case Group:
		out.Type = actorTypeTeam
		out.Login = a.Slug
		out.Slug = a.Slug
	default:
		return nil, fmt.Errorf("reviewer %d: unknown actor %T", r.ID, r.Actor)
	}

	return json.Marshal(out)
}

func (r *Reviewer) UnmarshalJSON(data []byte) error {
	var in reviewerJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	r.ID = in.ID
	r.SubmittedAt = in.SubmittedAt
	r.State = in.State

	switch in.Type {
	case actorTypeTeam:
		slug := in.Slug
		if slug == "" {
			slug = in.Login
		}
		r.Actor = Group{Slug: slug}
	default:
		r.Actor = Individual{Login: in.Login}
	}
	return nil
}

// Same reports whether both entries describe the same reviewer.
func (r Reviewer) Same(other Reviewer) bool {
	if r.ID != other.ID {
		return false
	}
	_, mine := r.Actor.(Group)
	_, theirs := other.Actor.(Group)
	return mine == theirs
}

func (r Reviewer) Resolved() bool {
	return r.State != ""
}

// MergeRequested replaces the requested reviewers while keeping every resolved outcome.
// Pending entries that are no longer requested are dropped; new requests are appended.
func MergeRequested(existing, requested []Reviewer) []Reviewer {
	merged := make([]Reviewer, 0, len(existing)+len(requested))

	for _, old := range existing {
		if old.Resolved() || indexOf(requested, old) >= 0 {
			merged = append(merged, old)
		}
	}

	for _, r := range requested {
		if i := indexOf(merged, r); i >= 0 {
			merged[i].Actor = r.Actor
			continue
		}
		merged = append(merged, r)
	}

	return merged
}

// RecordReview attaches a review outcome to the matching entry, appending one when the
// reviewer was never requested.
func RecordReview(existing []Reviewer, review Reviewer) []Reviewer {
	out := make([]Reviewer, len(existing), len(existing)+1)
	copy(out, existing)

	if i := indexOf(out, review); i >= 0 {
		out[i].Actor = review.Actor
		out[i].SubmittedAt = review.SubmittedAt
		out[i].State = review.State
		return out
	}
	return append(out, review)
}

func indexOf(list []Reviewer, r Reviewer) int {
	for i := range list {
		if list[i].Same(r) {
			return i
		}
	}
	return -1
}
