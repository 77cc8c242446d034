package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/stephenafamo/bob"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/bob/dialect/psql/um"
	"github.com/yakoovad/pr-daemon/internal/db"
)

type Team struct {
	ID                int64      `db:"id"`
	Name              string     `db:"name"`
	GithubOrgID       int64      `db:"github_org_id"`
	SlackWebhookURL   *string    `db:"slack_webhook_url"`
	LastGithubEventAt *time.Time `db:"last_github_event_at"`
	LastSlackSentAt   *time.Time `db:"last_slack_sent_at"`
	CreatedAt         time.Time  `db:"created_at"`
}

type TeamRepository interface {
	Create(ctx context.Context, team *Team) error
	Get(ctx context.Context, id int64) (*Team, error)
	GetByOrg(ctx context.Context, githubOrgID int64) (*Team, error)
	UpdateName(ctx context.Context, id int64, name string) (*Team, error)
	UpdateSlackWebhook(ctx context.Context, id int64, url string) (*Team, error)
	TouchGithubEvent(ctx context.Context, githubOrgID int64, at time.Time) error
	TouchSlackSent(ctx context.Context, id int64, at time.Time) error
}

type pgxTeamRepository struct {
	pool *pgxpool.Pool
}

func NewPgxTeamRepository(pool *pgxpool.Pool) TeamRepository {
	return &pgxTeamRepository{pool: pool}
}

var teamColumns = []any{
	"id", "name", "github_org_id", "slack_webhook_url", "last_github_event_at", "last_slack_sent_at", "created_at",
}

func scanTeam(row pgx.Row) (*Team, error) {
	team := &Team{}
	err := row.Scan(
		&team.ID,
		&team.Name,
		&team.GithubOrgID,
		&team.SlackWebhookURL,
		&team.LastGithubEventAt,
		&team.LastSlackSentAt,
		&team.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storeError(err)
	}
	return team, nil
}

// Create inserts the team and fills in its ID and CreatedAt.
func (p *pgxTeamRepository) Create(ctx context.Context, team *Team) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("team", "name", "github_org_id", "slack_webhook_url"),
		im.Values(psql.Arg(team.Name), psql.Arg(team.GithubOrgID), psql.Arg(team.SlackWebhookURL)),
		im.Returning("id", "created_at"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	err = e.QueryRow(ctx, sql, args...).Scan(&team.ID, &team.CreatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return ErrAlreadyExists
	}
	return storeError(err)
}

func (p *pgxTeamRepository) Get(ctx context.Context, id int64) (*Team, error) {
	return p.getBy(ctx, "id", id)
}

func (p *pgxTeamRepository) GetByOrg(ctx context.Context, githubOrgID int64) (*Team, error) {
	return p.getBy(ctx, "github_org_id", githubOrgID)
}

func (p *pgxTeamRepository) getBy(ctx context.Context, column string, value int64) (*Team, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(teamColumns...),
		sm.From("team"),
		sm.Where(psql.Quote(column).EQ(psql.Arg(value))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	return scanTeam(e.QueryRow(ctx, sql, args...))
}

// UpdateName renames the team; a name held by another team is ErrAlreadyExists.
func (p *pgxTeamRepository) UpdateName(ctx context.Context, id int64, name string) (*Team, error) {
	return p.update(ctx, id, "name", name)
}

func (p *pgxTeamRepository) UpdateSlackWebhook(ctx context.Context, id int64, url string) (*Team, error) {
	return p.update(ctx, id, "slack_webhook_url", url)
}

func (p *pgxTeamRepository) update(ctx context.Context, id int64, column string, value any) (*Team, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Update(
		um.Table("team"),
		um.SetCol(column).ToArg(value),
		um.Where(psql.Quote("id").EQ(psql.Arg(id))),
		um.Returning(teamColumns...),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	team, err := scanTeam(e.QueryRow(ctx, sql, args...))

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return nil, ErrAlreadyExists
	}
	return team, err
}

// TouchGithubEvent records ingestion activity for the team owning the given org; unknown orgs are ignored.
func (p *pgxTeamRepository) TouchGithubEvent(ctx context.Context, githubOrgID int64, at time.Time) error {
	return p.touch(ctx, "last_github_event_at", psql.Quote("github_org_id").EQ(psql.Arg(githubOrgID)), at)
}

func (p *pgxTeamRepository) TouchSlackSent(ctx context.Context, id int64, at time.Time) error {
	return p.touch(ctx, "last_slack_sent_at", psql.Quote("id").EQ(psql.Arg(id)), at)
}

func (p *pgxTeamRepository) touch(ctx context.Context, column string, where bob.Expression, at time.Time) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Update(
		um.Table("team"),
		um.SetCol(column).ToArg(at),
		um.Where(where),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	_, err = e.Exec(ctx, sql, args...)
	return storeError(err)
}
