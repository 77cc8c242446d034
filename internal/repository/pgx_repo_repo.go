package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/yakoovad/pr-daemon/internal/db"
)

// Repo is a code repository row.
type Repo struct {
	ID       int64  `db:"id"`
	Name     string `db:"name"`
	FullName string `db:"full_name"`
	OwnerID  int64  `db:"owner_id"`
}

type RepoRepository interface {
	Upsert(ctx context.Context, repo *Repo) error
}

type pgxRepoRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRepoRepository(pool *pgxpool.Pool) RepoRepository {
	return &pgxRepoRepository{pool: pool}
}

func (p *pgxRepoRepository) Upsert(ctx context.Context, repo *Repo) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("repository", "id", "name", "full_name", "owner_id"),
		im.Values(psql.Arg(repo.ID), psql.Arg(repo.Name), psql.Arg(repo.FullName), psql.Arg(repo.OwnerID)),
		im.OnConflict("id").DoUpdate(
			im.SetExcluded("name", "full_name", "owner_id"),
		),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	_, err = e.Exec(ctx, sql, args...)
	return storeError(err)
}
