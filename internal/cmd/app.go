package cmd

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/yakoovad/pr-daemon/internal/alert"
	"github.com/yakoovad/pr-daemon/internal/config"
	"github.com/yakoovad/pr-daemon/internal/db"
	"github.com/yakoovad/pr-daemon/internal/dispatch"
	"github.com/yakoovad/pr-daemon/internal/model"
	"github.com/yakoovad/pr-daemon/internal/repository"
	"github.com/yakoovad/pr-daemon/internal/scheduler"
	"github.com/yakoovad/pr-daemon/internal/service"
	"github.com/yakoovad/pr-daemon/pkg/logger"
	"go.uber.org/zap"
)

const (
	jobStaleUnreviewed = "stale-unreviewed"
	jobStalled         = "stalled"
)

// app holds what every long-running command needs: config, logger and the store.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	pool   *pgxpool.Pool

	prs   repository.PullRequestRepository
	repos repository.RepoRepository
	teams repository.TeamRepository
	tx    db.Transactor
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, errors.Wrap(err, "load config")
	}

	l, err := logger.New(cfg.Logging.Level)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create logger")
	}
	return cfg, l, nil
}

func newApp(ctx context.Context, cfg *config.Config, l *zap.Logger, migrate bool) (*app, error) {
	if migrate {
		if err := db.Migrate(ctx, cfg.Postgres, l); err != nil {
			return nil, errors.Wrap(err, "apply migrations")
		}
	}

	pool, err := db.Connect(ctx, cfg.Postgres)
	if err != nil {
		return nil, errors.Wrap(err, "connect to postgres")
	}
	l.Info("database connection established",
		zap.String("host", cfg.Postgres.Host),
		zap.String("db", cfg.Postgres.DBName))

	return &app{
		cfg:    cfg,
		logger: l,
		pool:   pool,
		prs:    repository.NewPgxPullRequestRepository(pool),
		repos:  repository.NewPgxRepoRepository(pool),
		teams:  repository.NewPgxTeamRepository(pool),
		tx:     db.NewPgxTransactor(pool),
	}, nil
}

func (a *app) close() {
	a.pool.Close()
	_ = a.logger.Sync()
}

// alerting builds the dispatcher and the scan jobs. The dispatcher must be closed after the
// scheduler stopped.
func (a *app) alerting() (*scheduler.Scheduler, *dispatch.Dispatcher) {
	dispatcher := dispatch.New(
		dispatch.NewSlackSender(a.cfg.Dispatch.RequestTimeout),
		a.cfg.Dispatch.Pacing,
		a.logger,
	)

	alerts := service.NewAlertService(service.AlertPolicy{
		StaleAfter:         a.cfg.Thresholds.Stale,
		UnreviewedAfter:    a.cfg.Thresholds.Unreviewed,
		StalledAfter:       a.cfg.Thresholds.Stalled,
		MaxPerDestination:  a.cfg.Alerts.MaxPerTeam,
		DefaultDestination: a.cfg.Slack.DefaultWebhookURL,
	}).
		WithPullRequestRepo(a.prs).
		WithTeamRepo(a.teams).
		WithDispatcher(dispatcher).
		WithFormatter(alert.NewFormatter(a.cfg.Github.BaseURL, time.Now))

	scan := func(kinds ...model.AlertKind) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			if _, err := alerts.Scan(ctx, kinds...); err != nil {
				return err
			}
			return nil
		}
	}

	s := scheduler.New(a.logger.Named("scheduler"),
		scheduler.Job{
			Name:     jobStaleUnreviewed,
			Interval: a.cfg.Scan.Interval,
			Run:      scan(model.AlertKindStale, model.AlertKindUnreviewed),
		},
		scheduler.Job{
			Name:     jobStalled,
			Interval: a.cfg.Scan.StalledInterval,
			Run:      scan(model.AlertKindStalled),
		},
	)

	return s, dispatcher
}
