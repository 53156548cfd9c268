package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/hrygo/fitcoach/internal/profile"
	"github.com/hrygo/fitcoach/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens the fitness dataset stored in PostgreSQL.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	return &DB{db: db, profile: profile}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) QueryRows(ctx context.Context, query string, args ...any) ([]store.Row, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return store.ScanRows(rows)
}

func (d *DB) ListTables(ctx context.Context) ([]string, error) {
	return d.listStrings(ctx, `SELECT table_name FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
		ORDER BY table_name`)
}

func (d *DB) ListColumns(ctx context.Context, table string) ([]string, error) {
	return d.listStrings(ctx, `SELECT column_name FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = `+placeholder(1)+`
		ORDER BY ordinal_position`, table)
}

func (d *DB) listStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query information schema: %w", err)
	}
	defer rows.Close()

	var list []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

func (d *DB) ListDatasetRows(ctx context.Context, find *store.FindDataset) ([]store.Row, error) {
	if !store.IsValidDataset(find.Dataset) {
		return nil, store.ErrUnknownDataset
	}

	query := "SELECT * FROM " + find.Dataset + " WHERE id = " + placeholder(1)
	args := []any{find.UserID}
	if len(find.Dates) > 0 {
		// date may be a DATE column; compare on its text form.
		query += " AND date::text = ANY(" + placeholder(2) + ")"
		args = append(args, pq.Array(find.Dates))
	}
	return d.QueryRows(ctx, query, args...)
}

func (d *DB) ListHeartRateValues(ctx context.Context, userID int64, date string) ([]float64, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT value FROM heartrate_minutes WHERE id = "+placeholder(1)+
			" AND to_char(minute::timestamp, 'YYYY-MM-DD') = "+placeholder(2), userID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := []float64{}
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func (d *DB) ListGoals(ctx context.Context, find *store.FindGoal) ([]*store.Goal, error) {
	where, args := []string{"id = " + placeholder(1)}, []any{find.UserID}
	if find.Metric != nil {
		where, args = append(where, "metric = "+placeholder(2)), append(args, *find.Metric)
	}

	rows, err := d.db.QueryContext(ctx, "SELECT id, metric, goal FROM fitness_goals WHERE "+strings.Join(where, " AND "), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*store.Goal
	for rows.Next() {
		goal := &store.Goal{}
		if err := rows.Scan(&goal.UserID, &goal.Metric, &goal.Goal); err != nil {
			return nil, err
		}
		list = append(list, goal)
	}
	return list, rows.Err()
}

func (d *DB) UpsertGoal(ctx context.Context, upsert *store.UpsertGoal) (bool, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return false, errors.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx,
		"UPDATE fitness_goals SET goal = "+placeholder(1)+" WHERE id = "+placeholder(2)+" AND metric = "+placeholder(3),
		upsert.Goal, upsert.UserID, upsert.Metric)
	if err != nil {
		return false, errors.Wrap(err, "failed to update goal")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to update goal")
	}

	created := affected == 0
	if created {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO fitness_goals (id, metric, goal) VALUES ("+placeholder(1)+", "+placeholder(2)+", "+placeholder(3)+")",
			upsert.UserID, upsert.Metric, upsert.Goal); err != nil {
			return false, errors.Wrap(err, "failed to insert goal")
		}
	}

	if err := tx.Commit(); err != nil {
		return false, errors.Wrap(err, "failed to commit goal")
	}
	return created, nil
}

func (d *DB) UpdateWeight(ctx context.Context, update *store.UpdateWeight) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"weight_log", "daily_data"} {
		result, err := tx.ExecContext(ctx,
			"UPDATE "+table+" SET weightkg = "+placeholder(1)+" WHERE id = "+placeholder(2)+" AND date::text = "+placeholder(3),
			update.WeightKg, update.UserID, update.Date)
		if err != nil {
			return errors.Wrapf(err, "failed to update %s", table)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return errors.Wrapf(err, "failed to update %s", table)
		}
		if affected == 0 {
			return errors.Wrapf(store.ErrNotFound, "no matching %s entry for the specified user and date", table)
		}
	}

	return errors.Wrap(tx.Commit(), "failed to commit weight update")
}

func placeholder(n int) string {
	return "$" + fmt.Sprint(n)
}
