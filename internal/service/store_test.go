package service

import (
	"cmp"
	"context"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/yakoovad/pr-daemon/internal/model"
	"github.com/yakoovad/pr-daemon/internal/repository"
)

// memStore is an in-memory store with the same row semantics as the postgres repositories.
type memStore struct {
	mu    sync.Mutex
	repos map[int64]repository.Repo
	prs   map[model.PullRequestKey]*repository.PullRequest
	teams map[int64]*repository.Team
}

func newMemStore() *memStore {
	return &memStore{
		repos: make(map[int64]repository.Repo),
		prs:   make(map[model.PullRequestKey]*repository.PullRequest),
		teams: make(map[int64]*repository.Team),
	}
}

func (s *memStore) addTeam(team *repository.Team) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teams[team.GithubOrgID] = team
}

func (s *memStore) get(key model.PullRequestKey) *repository.PullRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	pr, ok := s.prs[key]
	if !ok {
		return nil
	}
	return s.joined(pr)
}

func (s *memStore) joined(pr *repository.PullRequest) *repository.PullRequest {
	out := *pr
	out.Reviewers = slices.Clone(pr.Reviewers)
	if repo, ok := s.repos[pr.RepoID]; ok {
		out.RepoName = repo.Name
		out.RepoFullName = repo.FullName
		out.OwnerID = repo.OwnerID
		if team, ok := s.teams[repo.OwnerID]; ok {
			out.TeamID = &team.ID
			out.TeamName = &team.Name
			out.SlackWebhookURL = team.SlackWebhookURL
		}
	}
	return &out
}

func (s *memStore) Upsert(_ context.Context, create *repository.PullRequest, update *repository.PullRequestPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := model.PullRequestKey{RepoID: create.RepoID, Number: create.Number}
	if existing, ok := s.prs[key]; ok {
		applyPatch(existing, update)
		return nil
	}
	if _, ok := s.repos[create.RepoID]; !ok {
		return repository.ErrNotFound
	}

	row := *create
	row.Reviewers = slices.Clone(create.Reviewers)
	if row.Reviewers == nil {
		row.Reviewers = []model.Reviewer{}
	}
	s.prs[key] = &row
	return nil
}

func (s *memStore) FindByKey(_ context.Context, key model.PullRequestKey) (*repository.PullRequest, error) {
	if pr := s.get(key); pr != nil {
		return pr, nil
	}
	return nil, repository.ErrNotFound
}

func (s *memStore) FindByKeyForUpdate(ctx context.Context, key model.PullRequestKey) (*repository.PullRequest, error) {
	return s.FindByKey(ctx, key)
}

func (s *memStore) UpdateWhere(_ context.Context, key model.PullRequestKey, patch *repository.PullRequestPatch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pr, ok := s.prs[key]
	if !ok {
		return false, nil
	}
	applyPatch(pr, patch)
	return true, nil
}

func (s *memStore) IncrementReviewCount(_ context.Context, key model.PullRequestKey, reviewedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pr, ok := s.prs[key]
	if !ok {
		return false, nil
	}
	pr.ReviewCount++
	pr.LastReviewAt = &reviewedAt
	return true, nil
}

func (s *memStore) MarkAlerted(_ context.Context, key model.PullRequestKey, kind model.AlertKind, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pr, ok := s.prs[key]
	if !ok {
		return false, nil
	}
	switch kind {
	case model.AlertKindStale:
		pr.StaleAlertAt = &at
	case model.AlertKindUnreviewed:
		pr.UnreviewedAlertAt = &at
	case model.AlertKindStalled:
		pr.StalledAlertAt = &at
	}
	return true, nil
}

func (s *memStore) FindMany(_ context.Context, f repository.PullRequestFilter) iter.Seq2[*repository.PullRequest, error] {
	return func(yield func(*repository.PullRequest, error) bool) {
		s.mu.Lock()
		rows := make([]*repository.PullRequest, 0, len(s.prs))
		for _, pr := range s.prs {
			row := s.joined(pr)
			if matches(row, f) {
				rows = append(rows, row)
			}
		}
		s.mu.Unlock()

		slices.SortFunc(rows, func(a, b *repository.PullRequest) int {
			if f.OrderBy == repository.OrderByLastReview {
				if c := cmp.Compare(unix(a.LastReviewAt), unix(b.LastReviewAt)); c != 0 {
					return c
				}
			} else if c := a.OpenedAt.Compare(b.OpenedAt); c != 0 {
				return c
			}
			return cmp.Or(cmp.Compare(a.RepoID, b.RepoID), cmp.Compare(a.Number, b.Number))
		})

		for _, row := range rows {
			if !yield(row, nil) {
				return
			}
		}
	}
}

func (s *memStore) upsertRepo(repo *repository.Repo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repos[repo.ID] = *repo
	return nil
}

// memRepos adapts memStore to repository.RepoRepository.
type memRepos struct{ *memStore }

func (r memRepos) Upsert(_ context.Context, repo *repository.Repo) error {
	return r.upsertRepo(repo)
}

func unix(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixNano()
}

func before(t *time.Time, limit *time.Time) bool {
	return t != nil && !t.After(*limit)
}

func matches(pr *repository.PullRequest, f repository.PullRequestFilter) bool {
	switch {
	case f.Status != "" && pr.Status != f.Status:
		return false
	case f.OwnerID != nil && pr.OwnerID != *f.OwnerID:
		return false
	case f.OpenedBefore != nil && !before(&pr.OpenedAt, f.OpenedBefore):
		return false
	case f.LastCommitBefore != nil && !before(&pr.LastCommitAt, f.LastCommitBefore):
		return false
	case f.LastReviewBefore != nil && !before(pr.LastReviewAt, f.LastReviewBefore):
		return false
	case f.Reviewed != nil && (pr.ReviewCount > 0) != *f.Reviewed:
		return false
	}

	if f.NotAlerted != "" {
		m := pullRequestFromRepo(pr)
		return f.NotAlerted.Marker(m) == nil
	}
	return true
}

func applyPatch(pr *repository.PullRequest, p *repository.PullRequestPatch) {
	if p == nil {
		return
	}
	if p.Title != nil {
		pr.Title = *p.Title
	}
	if p.Status != nil {
		pr.Status = *p.Status
	}
	switch {
	case p.ClosedAt != nil:
		closedAt := *p.ClosedAt
		pr.ClosedAt = &closedAt
	case p.ClearClosedAt:
		pr.ClosedAt = nil
	}
	if p.LastCommitAt != nil {
		pr.LastCommitAt = *p.LastCommitAt
	}
	if p.Reviewers != nil {
		pr.Reviewers = slices.Clone(p.Reviewers)
	}
	for _, kind := range p.ClearMarkers {
		switch kind {
		case model.AlertKindStale:
			pr.StaleAlertAt = nil
		case model.AlertKindUnreviewed:
			pr.UnreviewedAlertAt = nil
		case model.AlertKindStalled:
			pr.StalledAlertAt = nil
		}
	}
}
