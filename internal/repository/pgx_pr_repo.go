package repository

import (
	"context"
	"iter"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/stephenafamo/bob"
	"github.com/stephenafamo/bob/clause"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/dialect"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/bob/dialect/psql/um"
	"github.com/yakoovad/pr-daemon/internal/db"
	"github.com/yakoovad/pr-daemon/internal/model"
)

type PullRequest struct {
	RepoID            int64            `db:"repo_id"`
	Number            int              `db:"pr_number"`
	Title             string           `db:"title"`
	Status            model.PRStatus   `db:"status"`
	OpenedAt          time.Time        `db:"opened_at"`
	ClosedAt          *time.Time       `db:"closed_at"`
	LastCommitAt      time.Time        `db:"last_commit_at"`
	ReviewCount       int              `db:"review_count"`
	LastReviewAt      *time.Time       `db:"last_review_at"`
	Reviewers         []model.Reviewer `db:"reviewers"`
	StaleAlertAt      *time.Time       `db:"stale_alert_at"`
	UnreviewedAlertAt *time.Time       `db:"unreviewed_alert_at"`
	StalledAlertAt    *time.Time       `db:"stalled_alert_at"`

	// Joined from repository and the owning team; empty when the row has no owner yet.
	RepoName        string
	RepoFullName    string
	OwnerID         int64
	TeamID          *int64
	TeamName        *string
	SlackWebhookURL *string
}

// PullRequestPatch lists the columns to change; nil fields are left untouched.
type PullRequestPatch struct {
	Title         *string
	Status        *model.PRStatus
	ClosedAt      *time.Time
	ClearClosedAt bool
	LastCommitAt  *time.Time
	Reviewers     []model.Reviewer
	ClearMarkers  []model.AlertKind
}

type OrderBy string

const (
	OrderByOpenedAt   OrderBy = "opened_at"
	OrderByLastReview OrderBy = "last_review_at"
)

// PullRequestFilter is a conjunction of the non-zero conditions.
type PullRequestFilter struct {
	Status           model.PRStatus
	OwnerID          *int64
	OpenedBefore     *time.Time
	LastCommitBefore *time.Time
	LastReviewBefore *time.Time
	Reviewed         *bool
	NotAlerted       model.AlertKind
	OrderBy          OrderBy
}

type PullRequestRepository interface {
	FindByKey(ctx context.Context, key model.PullRequestKey) (*PullRequest, error)
	FindByKeyForUpdate(ctx context.Context, key model.PullRequestKey) (*PullRequest, error)
	Upsert(ctx context.Context, create *PullRequest, update *PullRequestPatch) error
	UpdateWhere(ctx context.Context, key model.PullRequestKey, patch *PullRequestPatch) (bool, error)
	FindMany(ctx context.Context, filter PullRequestFilter) iter.Seq2[*PullRequest, error]
	IncrementReviewCount(ctx context.Context, key model.PullRequestKey, reviewedAt time.Time) (bool, error)
	MarkAlerted(ctx context.Context, key model.PullRequestKey, kind model.AlertKind, at time.Time) (bool, error)
}

type pgxPullRequestRepository struct {
	pool *pgxpool.Pool
}

func NewPgxPullRequestRepository(pool *pgxpool.Pool) PullRequestRepository {
	return &pgxPullRequestRepository{pool: pool}
}

var pullRequestColumns = []any{
	"pull_request.repo_id",
	"pull_request.pr_number",
	"pull_request.title",
	"pull_request.status",
	"pull_request.opened_at",
	"pull_request.closed_at",
	"pull_request.last_commit_at",
	"pull_request.review_count",
	"pull_request.last_review_at",
	"pull_request.reviewers",
	"pull_request.stale_alert_at",
	"pull_request.unreviewed_alert_at",
	"pull_request.stalled_alert_at",
	"repository.name",
	"repository.full_name",
	"repository.owner_id",
	"team.id",
	"team.name",
	"team.slack_webhook_url",
}

func markerColumn(kind model.AlertKind) (string, error) {
	switch kind {
	case model.AlertKindStale:
		return "stale_alert_at", nil
	case model.AlertKindUnreviewed:
		return "unreviewed_alert_at", nil
	case model.AlertKindStalled:
		return "stalled_alert_at", nil
	}
	return "", errors.Errorf("unknown alert kind %q", kind)
}

func selectPullRequests(mods ...bob.Mod[*dialect.SelectQuery]) bob.BaseQuery[*dialect.SelectQuery] {
	q := psql.Select(
		sm.Columns(pullRequestColumns...),
		sm.From("pull_request"),
		sm.LeftJoin("repository").On(psql.Quote("repository", "id").EQ(psql.Quote("pull_request", "repo_id"))),
		sm.LeftJoin("team").On(psql.Quote("team", "github_org_id").EQ(psql.Quote("repository", "owner_id"))),
	)
	q.Apply(mods...)
	return q
}

func whereKey(key model.PullRequestKey) bob.Mod[*dialect.SelectQuery] {
	return sm.Where(
		psql.Quote("pull_request", "repo_id").EQ(psql.Arg(key.RepoID)).
			And(psql.Quote("pull_request", "pr_number").EQ(psql.Arg(key.Number))),
	)
}

func scanPullRequest(row pgx.Row) (*PullRequest, error) {
	pr := &PullRequest{}
	var (
		repoName, repoFullName *string
		ownerID                *int64
	)

	if err := row.Scan(
		&pr.RepoID,
		&pr.Number,
		&pr.Title,
		&pr.Status,
		&pr.OpenedAt,
		&pr.ClosedAt,
		&pr.LastCommitAt,
		&pr.ReviewCount,
		&pr.LastReviewAt,
		&pr.Reviewers,
		&pr.StaleAlertAt,
		&pr.UnreviewedAlertAt,
		&pr.StalledAlertAt,
		&repoName,
		&repoFullName,
		&ownerID,
		&pr.TeamID,
		&pr.TeamName,
		&pr.SlackWebhookURL,
	); err != nil {
		return nil, err
	}

	if repoName != nil {
		pr.RepoName = *repoName
	}
	if repoFullName != nil {
		pr.RepoFullName = *repoFullName
	}
	if ownerID != nil {
		pr.OwnerID = *ownerID
	}
	return pr, nil
}

func (p *pgxPullRequestRepository) FindByKey(ctx context.Context, key model.PullRequestKey) (*PullRequest, error) {
	return p.findByKey(ctx, key, false)
}

// FindByKeyForUpdate locks the row until the surrounding transaction ends.
func (p *pgxPullRequestRepository) FindByKeyForUpdate(ctx context.Context, key model.PullRequestKey) (*PullRequest, error) {
	return p.findByKey(ctx, key, true)
}

func (p *pgxPullRequestRepository) findByKey(ctx context.Context, key model.PullRequestKey, lock bool) (*PullRequest, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := selectPullRequests(whereKey(key))
	if lock {
		q.Apply(sm.ForUpdate("pull_request"))
	}

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	pr, err := scanPullRequest(e.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storeError(err)
	}
	return pr, nil
}

// Upsert inserts create, or applies update to the existing row with the same key.
func (p *pgxPullRequestRepository) Upsert(ctx context.Context, create *PullRequest, update *PullRequestPatch) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	sets := make([]bob.Mod[*clause.ConflictClause], 0, 8)
	for _, a := range update.assignments() {
		sets = append(sets, im.SetCol(a.col).ToArg(a.val))
	}

	q := psql.Insert(
		im.Into("pull_request",
			"repo_id", "pr_number", "title", "status", "opened_at", "closed_at", "last_commit_at",
			"review_count", "last_review_at", "reviewers",
			"stale_alert_at", "unreviewed_alert_at", "stalled_alert_at",
		),
		im.Values(
			psql.Arg(create.RepoID),
			psql.Arg(create.Number),
			psql.Arg(create.Title),
			psql.Arg(create.Status),
			psql.Arg(create.OpenedAt),
			psql.Arg(create.ClosedAt),
			psql.Arg(create.LastCommitAt),
			psql.Arg(create.ReviewCount),
			psql.Arg(create.LastReviewAt),
			psql.Arg(reviewersArg(create.Reviewers)),
			psql.Arg(create.StaleAlertAt),
			psql.Arg(create.UnreviewedAlertAt),
			psql.Arg(create.StalledAlertAt),
		),
	)
	if len(sets) == 0 {
		q.Apply(im.OnConflict("repo_id", "pr_number").DoNothing())
	} else {
		q.Apply(im.OnConflict("repo_id", "pr_number").DoUpdate(sets...))
	}

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	if _, err = e.Exec(ctx, sql, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeForeignKeyViolation {
			// repository row is missing
			return ErrNotFound
		}
		return storeError(err)
	}
	return nil
}

// UpdateWhere patches the row with the given key; it reports false when no such row exists.
func (p *pgxPullRequestRepository) UpdateWhere(ctx context.Context, key model.PullRequestKey, patch *PullRequestPatch) (bool, error) {
	assignments := patch.assignments()
	if len(assignments) == 0 {
		return false, nil
	}

	sets := make([]bob.Mod[*dialect.UpdateQuery], 0, len(assignments))
	for _, a := range assignments {
		sets = append(sets, um.SetCol(a.col).ToArg(a.val))
	}

	return p.update(ctx, key, sets...)
}

func (p *pgxPullRequestRepository) IncrementReviewCount(ctx context.Context, key model.PullRequestKey, reviewedAt time.Time) (bool, error) {
	return p.update(ctx, key,
		um.SetCol("review_count").To(psql.Raw("review_count + 1")),
		um.SetCol("last_review_at").ToArg(reviewedAt),
	)
}

func (p *pgxPullRequestRepository) MarkAlerted(ctx context.Context, key model.PullRequestKey, kind model.AlertKind, at time.Time) (bool, error) {
	col, err := markerColumn(kind)
	if err != nil {
		return false, err
	}
	return p.update(ctx, key, um.SetCol(col).ToArg(at))
}

func (p *pgxPullRequestRepository) update(ctx context.Context, key model.PullRequestKey, sets ...bob.Mod[*dialect.UpdateQuery]) (bool, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Update(
		um.Table("pull_request"),
		um.Where(
			psql.Quote("repo_id").EQ(psql.Arg(key.RepoID)).
				And(psql.Quote("pr_number").EQ(psql.Arg(key.Number))),
		),
	)
	q.Apply(sets...)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return false, err
	}

	tag, err := e.Exec(ctx, sql, args...)
	if err != nil {
		return false, storeError(err)
	}
	return tag.RowsAffected() > 0, nil
}

// FindMany streams the matching rows. The query runs when the sequence is ranged over,
// so every iteration sees fresh data.
func (p *pgxPullRequestRepository) FindMany(ctx context.Context, filter PullRequestFilter) iter.Seq2[*PullRequest, error] {
	return func(yield func(*PullRequest, error) bool) {
		e := db.GetPgxExecutorFromContext(ctx, p.pool)

		mods, err := filter.mods()
		if err != nil {
			yield(nil, err)
			return
		}

		sql, args, err := selectPullRequests(mods...).Build(ctx)
		if err != nil {
			yield(nil, err)
			return
		}

		rows, err := e.Query(ctx, sql, args...)
		if err != nil {
			yield(nil, storeError(err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			pr, err := scanPullRequest(rows)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(pr, nil) {
				return
			}
		}

		if err = rows.Err(); err != nil {
			yield(nil, storeError(err))
		}
	}
}

func (f PullRequestFilter) mods() ([]bob.Mod[*dialect.SelectQuery], error) {
	col := func(name string) dialect.Expression {
		return psql.Quote("pull_request", name)
	}

	mods := make([]bob.Mod[*dialect.SelectQuery], 0, 8)

	if f.Status != "" {
		mods = append(mods, sm.Where(col("status").EQ(psql.Arg(f.Status))))
	}
	if f.OwnerID != nil {
		mods = append(mods, sm.Where(psql.Quote("repository", "owner_id").EQ(psql.Arg(*f.OwnerID))))
	}
	if f.OpenedBefore != nil {
		mods = append(mods, sm.Where(col("opened_at").LTE(psql.Arg(*f.OpenedBefore))))
	}
	if f.LastCommitBefore != nil {
		mods = append(mods, sm.Where(col("last_commit_at").LTE(psql.Arg(*f.LastCommitBefore))))
	}
	if f.LastReviewBefore != nil {
		mods = append(mods, sm.Where(col("last_review_at").LTE(psql.Arg(*f.LastReviewBefore))))
	}
	if f.Reviewed != nil {
		if *f.Reviewed {
			mods = append(mods, sm.Where(col("review_count").GT(psql.Arg(0))))
		} else {
			mods = append(mods, sm.Where(col("review_count").EQ(psql.Arg(0))))
		}
	}
	if f.NotAlerted != "" {
		marker, err := markerColumn(f.NotAlerted)
		if err != nil {
			return nil, err
		}
		mods = append(mods, sm.Where(col(marker).IsNull()))
	}

	orderBy := f.OrderBy
	if orderBy == "" {
		orderBy = OrderByOpenedAt
	}
	mods = append(mods,
		sm.OrderBy(col(string(orderBy))).Asc(),
		sm.OrderBy(col("repo_id")).Asc(),
		sm.OrderBy(col("pr_number")).Asc(),
	)

	return mods, nil
}

type assignment struct {
	col string
	val any
}

func (p *PullRequestPatch) assignments() []assignment {
	if p == nil {
		return nil
	}

	out := make([]assignment, 0, 8)
	if p.Title != nil {
		out = append(out, assignment{"title", *p.Title})
	}
	if p.Status != nil {
		out = append(out, assignment{"status", *p.Status})
	}
	switch {
	case p.ClosedAt != nil:
		out = append(out, assignment{"closed_at", *p.ClosedAt})
	case p.ClearClosedAt:
		out = append(out, assignment{"closed_at", nil})
	}
	if p.LastCommitAt != nil {
		out = append(out, assignment{"last_commit_at", *p.LastCommitAt})
	}
	if p.Reviewers != nil {
		out = append(out, assignment{"reviewers", p.Reviewers})
	}
	for _, kind := range p.ClearMarkers {
		if col, err := markerColumn(kind); err == nil {
			out = append(out, assignment{col, nil})
		}
	}
	return out
}

func reviewersArg(reviewers []model.Reviewer) []model.Reviewer {
	if reviewers == nil {
		return []model.Reviewer{}
	}
	return reviewers
}
