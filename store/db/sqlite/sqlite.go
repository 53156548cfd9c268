package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/hrygo/fitcoach/internal/profile"
	"github.com/hrygo/fitcoach/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens the fitness dataset stored in a SQLite file.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	// Ensure a DSN is set before attempting to open the database.
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	// Connect to the database with some sane settings:
	// - No foreign key constraints: the dataset is imported as flat tables.
	// - Journal mode set to WAL: goal and weight updates must not block readers.
	//
	// When using the `modernc.org/sqlite` driver, each pragma must be prefixed with `_pragma=`.
	separator := "?"
	if strings.Contains(profile.DSN, "?") {
		separator = "&"
	}
	sqliteDB, err := sql.Open("sqlite", profile.DSN+separator+"_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	sqliteDB.SetMaxOpenConns(1)    // SQLite: single connection is optimal with WAL
	sqliteDB.SetMaxIdleConns(1)    // Keep the single connection ready
	sqliteDB.SetConnMaxLifetime(0) // No lifetime limit (local file, no network)
	sqliteDB.SetConnMaxIdleTime(0)

	driver := DB{db: sqliteDB, profile: profile}

	return &driver, nil
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
	rows, err := d.db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list tables")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (d *DB) ListColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, "PRAGMA table_info("+quoteIdentifier(table)+")")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read table info of %s", table)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		columns = append(columns, name)
	}
	return columns, rows.Err()
}

func (d *DB) ListDatasetRows(ctx context.Context, find *store.FindDataset) ([]store.Row, error) {
	if !store.IsValidDataset(find.Dataset) {
		return nil, store.ErrUnknownDataset
	}

	query := "SELECT * FROM " + find.Dataset + " WHERE id = ?"
	args := []any{find.UserID}
	if len(find.Dates) > 0 {
		query += " AND date IN (" + placeholders(len(find.Dates)) + ")"
		for _, date := range find.Dates {
			args = append(args, date)
		}
	}
	return d.QueryRows(ctx, query, args...)
}

func (d *DB) ListHeartRateValues(ctx context.Context, userID int64, date string) ([]float64, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT value FROM heartrate_minutes WHERE id = ? AND strftime('%Y-%m-%d', minute) = ?", userID, date)
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
	where, args := []string{"id = ?"}, []any{find.UserID}
	if find.Metric != nil {
		where, args = append(where, "metric = ?"), append(args, *find.Metric)
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

	var exists bool
	if err := tx.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM fitness_goals WHERE id = ? AND metric = ?)", upsert.UserID, upsert.Metric).Scan(&exists); err != nil {
		return false, errors.Wrap(err, "failed to check goal")
	}

	if exists {
		_, err = tx.ExecContext(ctx, "UPDATE fitness_goals SET goal = ? WHERE id = ? AND metric = ?", upsert.Goal, upsert.UserID, upsert.Metric)
	} else {
		_, err = tx.ExecContext(ctx, "INSERT INTO fitness_goals (id, metric, goal) VALUES (?, ?, ?)", upsert.UserID, upsert.Metric, upsert.Goal)
	}
	if err != nil {
		return false, errors.Wrap(err, "failed to write goal")
	}

	if err := tx.Commit(); err != nil {
		return false, errors.Wrap(err, "failed to commit goal")
	}
	return !exists, nil
}

func (d *DB) UpdateWeight(ctx context.Context, update *store.UpdateWeight) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"weight_log", "daily_data"} {
		result, err := tx.ExecContext(ctx,
			"UPDATE "+table+" SET weightkg = ? WHERE id = ? AND date = ?", update.WeightKg, update.UserID, update.Date)
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

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
