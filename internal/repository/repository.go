package repository

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"golang.org/x/sync/errgroup"

	"lifecycle-service/internal/apperr"
	"lifecycle-service/internal/sharding"
)

// shards routes string ids onto the shard databases.
type shards struct {
	dbShards []*sql.DB
	router   *sharding.ShardRouter
}

func (s shards) db(id string) *sql.DB {
	return s.dbShards[s.router.GetShard(id)]
}

func notFound(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.New(apperr.KindNotFound, op, "not found")
	}
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// versionConflict reports a lost optimistic update.
func versionConflict(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.New(apperr.KindConflict, op, "modified concurrently, reload and retry")
	}
	return nil
}

// mergePage merges per-shard results, each already sorted by less, and cuts
// the requested window out of the merged sequence.
func mergePage[T any](perShard [][]T, less func(a, b T) bool, offset, size int) []T {
	var all []T
	for _, items := range perShard {
		all = append(all, items...)
	}
	sort.SliceStable(all, func(i, j int) bool { return less(all[i], all[j]) })
	if offset >= len(all) {
		return []T{}
	}
	end := min(offset+size, len(all))
	return all[offset:end]
}

// gather runs fn on every shard concurrently and collects the per-shard
// counts and results in shard order.
func gather[T any](ctx context.Context, dbs []*sql.DB, fn func(ctx context.Context, db *sql.DB) (int, []T, error)) (int, [][]T, error) {
	counts := make([]int, len(dbs))
	perShard := make([][]T, len(dbs))
	g, gctx := errgroup.WithContext(ctx)
	for i, db := range dbs {
		g.Go(func() error {
			n, items, err := fn(gctx, db)
			counts[i], perShard[i] = n, items
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, nil, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return total, perShard, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	// Start a transaction
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
