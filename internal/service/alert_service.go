package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/yakoovad/pr-daemon/internal/dispatch"
	"github.com/yakoovad/pr-daemon/internal/model"
	"github.com/yakoovad/pr-daemon/internal/repository"
	"github.com/yakoovad/pr-daemon/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Dispatcher interface {
	Enqueue(destination, payload string) <-chan error
}

type Formatter interface {
	Format(kind model.AlertKind, pr *model.PullRequest) string
}

// AlertPolicy holds the detection thresholds and delivery limits of a scan.
type AlertPolicy struct {
	StaleAfter      time.Duration
	UnreviewedAfter time.Duration
	StalledAfter    time.Duration

	// MaxPerDestination caps alerts enqueued for one destination in a single scan.
	MaxPerDestination int
	// DefaultDestination receives alerts of repositories without an owning team webhook.
	DefaultDestination string
}

// ScanReport summarizes one scan. Matched counts rows returned by the detection queries.
type ScanReport struct {
	Matched   int
	Enqueued  int
	Delivered int
	Failed    int
	Skipped   int
	Capped    int
}

type AlertService struct {
	prs   repository.PullRequestRepository
	teams repository.TeamRepository

	dispatcher Dispatcher
	formatter  Formatter

	policy AlertPolicy
	now    func() time.Time
}

const DefaultMaxPerDestination = 20

func NewAlertService(policy AlertPolicy) *AlertService {
	if policy.MaxPerDestination <= 0 {
		policy.MaxPerDestination = DefaultMaxPerDestination
	}
	return &AlertService{
		policy: policy,
		now:    time.Now,
	}
}

// Filter returns the detection query of kind evaluated at now.
func (s *AlertService) Filter(kind model.AlertKind, now time.Time) (repository.PullRequestFilter, error) {
	reviewed := kind == model.AlertKindStalled
	filter := repository.PullRequestFilter{
		Status:     model.PRStatusOpen,
		NotAlerted: kind,
		OrderBy:    repository.OrderByOpenedAt,
	}

	switch kind {
	case model.AlertKindStale:
		openedBefore := now.Add(-s.policy.StaleAfter)
		filter.OpenedBefore = &openedBefore
	case model.AlertKindUnreviewed:
		openedBefore := now.Add(-s.policy.UnreviewedAfter)
		filter.OpenedBefore = &openedBefore
		filter.Reviewed = &reviewed
	case model.AlertKindStalled:
		before := now.Add(-s.policy.StalledAfter)
		filter.LastCommitBefore = &before
		filter.LastReviewBefore = &before
		filter.Reviewed = &reviewed
		filter.OrderBy = repository.OrderByLastReview
	default:
		return repository.PullRequestFilter{}, errors.Errorf("unknown alert kind %q", kind)
	}

	return filter, nil
}

// ShouldAlert reports whether no alert of kind has been sent in the current episode.
func ShouldAlert(pr *model.PullRequest, kind model.AlertKind) bool {
	return kind.Marker(pr) == nil
}

// MarkAlerted records a delivered alert. Call it only after the dispatcher reported success.
func (s *AlertService) MarkAlerted(ctx context.Context, key model.PullRequestKey, kind model.AlertKind) *Error {
	l := logger.FromContext(ctx)

	ok, err := s.prs.MarkAlerted(ctx, key, kind, s.now().UTC())
	if err != nil {
		l.Error("failed to mark alert",
			zap.Int64("repo_id", key.RepoID),
			zap.Int("pr_number", key.Number),
			zap.String("kind", string(kind)),
			zap.Error(err))
		return asError(err, "failed to mark alert")
	}
	if !ok {
		return NewError(ErrorCodeNotFound, "pull request not found")
	}
	return nil
}

// Scan runs the detection queries of kinds, dispatches one alert per match and waits for
// every delivery. The per-destination cap is shared by all kinds of the scan.
func (s *AlertService) Scan(ctx context.Context, kinds ...model.AlertKind) (*ScanReport, *Error) {
	l := logger.FromContext(ctx)
	now := s.now().UTC()

	report := &ScanReport{}
	perDestination := make(map[string]int)

	var (
		g         errgroup.Group
		delivered atomic.Int64
		failed    atomic.Int64
	)

	var scanErr error
	for _, kind := range kinds {
		if scanErr = s.scanKind(ctx, l, kind, now, report, perDestination, &g, &delivered, &failed); scanErr != nil {
			break
		}
	}

	// deliveries already enqueued are awaited even when the query failed
	markErr := g.Wait()

	report.Delivered = int(delivered.Load())
	report.Failed = int(failed.Load())

	l.Info("alert scan finished",
		zap.Int("matched", report.Matched),
		zap.Int("enqueued", report.Enqueued),
		zap.Int("delivered", report.Delivered),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Int("capped", report.Capped))

	if scanErr != nil {
		l.Error("alert scan aborted", zap.Error(scanErr))
		return report, asError(scanErr, "failed to scan pull requests")
	}
	if markErr != nil {
		return report, asError(markErr, "failed to mark alerts")
	}
	return report, nil
}

func (s *AlertService) scanKind(
	ctx context.Context,
	l *zap.Logger,
	kind model.AlertKind,
	now time.Time,
	report *ScanReport,
	perDestination map[string]int,
	g *errgroup.Group,
	delivered, failed *atomic.Int64,
) error {
	filter, err := s.Filter(kind, now)
	if err != nil {
		return err
	}

	for row, err := range s.prs.FindMany(ctx, filter) {
		if err != nil {
			return errors.Wrapf(err, "find %s pull requests", kind)
		}
		report.Matched++

		pr := pullRequestFromRepo(row)
		if !ShouldAlert(pr, kind) {
			report.Skipped++
			continue
		}

		pl := l.With(
			zap.String("kind", string(kind)),
			zap.Int64("repo_id", pr.RepoID),
			zap.Int("pr_number", pr.Number),
		)

		destination, ok := s.destination(row)
		if !ok {
			pl.Warn("no alert destination for repository", zap.Int64("owner_id", row.OwnerID))
			report.Skipped++
			continue
		}
		pl = pl.With(zap.String("destination", dispatch.Redact(destination)))

		if perDestination[destination] >= s.policy.MaxPerDestination {
			pl.Debug("alert cap reached for destination")
			report.Capped++
			continue
		}
		perDestination[destination]++

		future := s.dispatcher.Enqueue(destination, s.formatter.Format(kind, pr))
		report.Enqueued++

		teamID := row.TeamID
		g.Go(func() error {
			select {
			case err := <-future:
				if err != nil {
					pl.Warn("alert delivery failed", zap.Error(err))
					failed.Add(1)
					return nil
				}
			case <-ctx.Done():
				return nil
			}

			if res := s.MarkAlerted(ctx, pr.Key(), kind); res != nil {
				return res
			}
			delivered.Add(1)
			s.touchSlackSent(ctx, pl, teamID)
			return nil
		})
	}

	return nil
}

func (s *AlertService) destination(pr *repository.PullRequest) (string, bool) {
	if pr.SlackWebhookURL != nil && *pr.SlackWebhookURL != "" {
		return *pr.SlackWebhookURL, true
	}
	if s.policy.DefaultDestination != "" {
		return s.policy.DefaultDestination, true
	}
	return "", false
}

func (s *AlertService) touchSlackSent(ctx context.Context, l *zap.Logger, teamID *int64) {
	if teamID == nil || s.teams == nil {
		return
	}
	if err := s.teams.TouchSlackSent(ctx, *teamID, s.now().UTC()); err != nil {
		l.Warn("failed to record slack delivery", zap.Int64("team_id", *teamID), zap.Error(err))
	}
}

func (s *AlertService) WithPullRequestRepo(r repository.PullRequestRepository) *AlertService {
	s.prs = r
	return s
}

func (s *AlertService) WithTeamRepo(r repository.TeamRepository) *AlertService {
	s.teams = r
	return s
}

func (s *AlertService) WithDispatcher(d Dispatcher) *AlertService {
	s.dispatcher = d
	return s
}

func (s *AlertService) WithFormatter(f Formatter) *AlertService {
	s.formatter = f
	return s
}

func (s *AlertService) WithClock(now func() time.Time) *AlertService {
	s.now = now
	return s
}
