package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	// QueryRows executes a read statement and returns homogeneous row maps.
	// An empty result is a nil slice, not an error.
	QueryRows(ctx context.Context, query string, args ...any) ([]Row, error)

	// Introspection.
	ListTables(ctx context.Context) ([]string, error)
	ListColumns(ctx context.Context, table string) ([]string, error)

	// Dataset lookups.
	ListDatasetRows(ctx context.Context, find *FindDataset) ([]Row, error)
	ListHeartRateValues(ctx context.Context, userID int64, date string) ([]float64, error)

	// Goal and weight updates.
	ListGoals(ctx context.Context, find *FindGoal) ([]*Goal, error)
	UpsertGoal(ctx context.Context, upsert *UpsertGoal) (created bool, err error)
	UpdateWeight(ctx context.Context, update *UpdateWeight) error
}
