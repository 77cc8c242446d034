package webhook

// Subset of the GitHub webhook payloads that pr-daemon reads. Pointers mark the fields whose
// absence has to be told apart from a zero value.

type account struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Type  string `json:"type"`
}

type requestedReviewer struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Type  string `json:"type"`
	Slug  string `json:"slug"`
	Name  string `json:"name"`
}

type repositoryPayload struct {
	ID       *int64   `json:"id"`
	Name     string   `json:"name"`
	FullName string   `json:"full_name"`
	Owner    *account `json:"owner"`
}

type pullRequestPayload struct {
	Number             *int                `json:"number"`
	Title              *string             `json:"title"`
	State              string              `json:"state"`
	CreatedAt          *string             `json:"created_at"`
	UpdatedAt          *string             `json:"updated_at"`
	ClosedAt           *string             `json:"closed_at"`
	RequestedReviewers []requestedReviewer `json:"requested_reviewers"`
	RequestedTeams     []requestedReviewer `json:"requested_teams"`
}

type reviewPayload struct {
	ID          int64    `json:"id"`
	User        *account `json:"user"`
	State       string   `json:"state"`
	SubmittedAt *string  `json:"submitted_at"`
}

type eventPayload struct {
	Action      string              `json:"action"`
	Repository  *repositoryPayload  `json:"repository"`
	PullRequest *pullRequestPayload `json:"pull_request"`
	Review      *reviewPayload      `json:"review"`
}
