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

// LifecycleService applies normalized provider events to the stored pull request state.
// Time in every transition is the event time, so replaying a delivery yields the same row.
type LifecycleService struct {
	tx db.Transactor

	repos repository.RepoRepository
	prs   repository.PullRequestRepository
	teams repository.TeamRepository
}

func NewLifecycleService(tx db.Transactor) *LifecycleService {
	return &LifecycleService{tx: tx}
}

type transition func(ctx context.Context, l *zap.Logger, ev *model.PullRequestEvent) error

func (s *LifecycleService) Apply(ctx context.Context, ev *model.PullRequestEvent) *Error {
	l := logger.FromContext(ctx).With(
		zap.String("delivery_id", ev.DeliveryID),
		zap.String("action", string(ev.Action)),
		zap.Int64("repo_id", ev.RepoID),
		zap.Int("pr_number", ev.PRNumber),
	)

	var apply transition
	switch ev.Action {
	case model.ActionOpened, model.ActionReopened:
		apply = s.open
	case model.ActionSynchronize:
		apply = s.synchronize
	case model.ActionClosed:
		apply = s.close
	case model.ActionReviewSubmitted:
		apply = s.submitReview
	case model.ActionEdited:
		apply = s.edit
	case model.ActionReviewRequested, model.ActionReviewRequestRemoved:
		apply = s.requestReviewers
	default:
		l.Debug("ignoring pull request action")
	}

	if apply != nil {
		err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
			return apply(txCtx, l, ev)
		})
		if err != nil {
			res := asError(err, "failed to apply event")
			if res.Code == ErrorCodeMissingEntity {
				l.Warn("dropping event", zap.String("reason", res.Message))
			} else {
				l.Error("failed to apply event", zap.Error(err))
			}
			return res
		}
	}

	s.touchTeam(ctx, l, ev)
	return nil
}

func (s *LifecycleService) open(ctx context.Context, l *zap.Logger, ev *model.PullRequestEvent) error {
	if err := s.repos.Upsert(ctx, &repository.Repo{
		ID:       ev.RepoID,
		Name:     ev.RepoName,
		FullName: ev.RepoFullName,
		OwnerID:  ev.OwnerID,
	}); err != nil {
		return errors.Wrap(err, "upsert repository")
	}

	var current []model.Reviewer
	existing, err := s.prs.FindByKeyForUpdate(ctx, ev.Key())
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		return errors.Wrap(err, "find pull request")
	default:
		current = existing.Reviewers
	}

	reviewers := model.MergeRequested(current, ev.Reviewers)
	status := model.PRStatusOpen

	err = s.prs.Upsert(ctx,
		&repository.PullRequest{
			RepoID:       ev.RepoID,
			Number:       ev.PRNumber,
			Title:        ev.Title,
			Status:       model.PRStatusOpen,
			OpenedAt:     ev.OpenedAt,
			LastCommitAt: ev.UpdatedAt,
			Reviewers:    reviewers,
		},
		&repository.PullRequestPatch{
			Title:         &ev.Title,
			Status:        &status,
			ClearClosedAt: true,
			LastCommitAt:  &ev.UpdatedAt,
			Reviewers:     reviewers,
			ClearMarkers:  model.AlertKinds,
		},
	)
	if err != nil {
		return errors.Wrap(err, "upsert pull request")
	}

	l.Debug("pull request opened", zap.Bool("created", existing == nil))
	return nil
}

func (s *LifecycleService) synchronize(ctx context.Context, l *zap.Logger, ev *model.PullRequestEvent) error {
	patch := &repository.PullRequestPatch{
		LastCommitAt: &ev.UpdatedAt,
		ClearMarkers: []model.AlertKind{model.AlertKindStalled},
	}
	if ev.Title != "" {
		patch.Title = &ev.Title
	}
	return s.update(ctx, l, ev, patch)
}

func (s *LifecycleService) close(ctx context.Context, l *zap.Logger, ev *model.PullRequestEvent) error {
	_, err := s.prs.FindByKeyForUpdate(ctx, ev.Key())
	if errors.Is(err, repository.ErrNotFound) {
		return NewError(ErrorCodeMissingEntity, "closed event for unknown pull request")
	}
	if err != nil {
		return errors.Wrap(err, "find pull request")
	}

	closedAt := ev.UpdatedAt
	if ev.ClosedAt != nil {
		closedAt = *ev.ClosedAt
	}
	status := model.PRStatusClosed

	patch := &repository.PullRequestPatch{
		Status:       &status,
		ClosedAt:     &closedAt,
		ClearMarkers: []model.AlertKind{model.AlertKindStale, model.AlertKindUnreviewed},
	}
	if ev.Title != "" {
		patch.Title = &ev.Title
	}
	return s.update(ctx, l, ev, patch)
}

func (s *LifecycleService) submitReview(ctx context.Context, l *zap.Logger, ev *model.PullRequestEvent) error {
	if ev.Review == nil || !ev.Review.State.Terminal() {
		l.Debug("ignoring non-terminal review")
		return nil
	}

	existing, err := s.prs.FindByKeyForUpdate(ctx, ev.Key())
	if errors.Is(err, repository.ErrNotFound) {
		l.Warn("review for unknown pull request")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "find pull request")
	}

	review := *ev.Review
	reviewedAt := ev.UpdatedAt
	if review.SubmittedAt != nil {
		reviewedAt = *review.SubmittedAt
	} else {
		review.SubmittedAt = &reviewedAt
	}

	if _, err = s.prs.IncrementReviewCount(ctx, ev.Key(), reviewedAt); err != nil {
		return errors.Wrap(err, "increment review count")
	}

	return s.update(ctx, l, ev, &repository.PullRequestPatch{
		Reviewers: model.RecordReview(existing.Reviewers, review),
	})
}

func (s *LifecycleService) edit(ctx context.Context, l *zap.Logger, ev *model.PullRequestEvent) error {
	return s.update(ctx, l, ev, &repository.PullRequestPatch{Title: &ev.Title})
}

func (s *LifecycleService) requestReviewers(ctx context.Context, l *zap.Logger, ev *model.PullRequestEvent) error {
	existing, err := s.prs.FindByKeyForUpdate(ctx, ev.Key())
	if errors.Is(err, repository.ErrNotFound) {
		l.Debug("reviewer change for unknown pull request")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "find pull request")
	}

	return s.update(ctx, l, ev, &repository.PullRequestPatch{
		Reviewers: model.MergeRequested(existing.Reviewers, ev.Reviewers),
	})
}

func (s *LifecycleService) update(ctx context.Context, l *zap.Logger, ev *model.PullRequestEvent, patch *repository.PullRequestPatch) error {
	ok, err := s.prs.UpdateWhere(ctx, ev.Key(), patch)
	if err != nil {
		return errors.Wrap(err, "update pull request")
	}
	if !ok {
		l.Debug("pull request not tracked, nothing to update")
	}
	return nil
}

func (s *LifecycleService) touchTeam(ctx context.Context, l *zap.Logger, ev *model.PullRequestEvent) {
	if s.teams == nil || ev.OwnerID == 0 {
		return
	}
	if err := s.teams.TouchGithubEvent(ctx, ev.OwnerID, ev.UpdatedAt); err != nil {
		l.Warn("failed to record github activity", zap.Int64("owner_id", ev.OwnerID), zap.Error(err))
	}
}

func (s *LifecycleService) WithRepoRepo(r repository.RepoRepository) *LifecycleService {
	s.repos = r
	return s
}

func (s *LifecycleService) WithPullRequestRepo(r repository.PullRequestRepository) *LifecycleService {
	s.prs = r
	return s
}

func (s *LifecycleService) WithTeamRepo(r repository.TeamRepository) *LifecycleService {
	s.teams = r
	return s
}
