package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/fitcoach/internal/profile"
	"github.com/hrygo/fitcoach/internal/testutil"
	"github.com/hrygo/fitcoach/store"
)

// testDSNEnv points the integration tests at a disposable database.
const testDSNEnv = "FITCOACH_TEST_POSTGRES_DSN"

func TestNewDBErrors(t *testing.T) {
	_, err := NewDB(nil)
	assert.ErrorContains(t, err, "profile is nil")

	_, err = NewDB(&profile.Profile{Driver: "postgres"})
	assert.ErrorContains(t, err, "dsn required")
}

func TestPlaceholder(t *testing.T) {
	assert.Equal(t, "$1", placeholder(1))
	assert.Equal(t, "$12", placeholder(12))
}

func TestListDatasetRowsRejectsUnknownDataset(t *testing.T) {
	// sql.Open does not connect, so the validation runs without a server.
	driver, err := NewDB(&profile.Profile{Driver: "postgres", DSN: "postgres://localhost/none?sslmode=disable"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })

	_, err = driver.ListDatasetRows(context.Background(), &store.FindDataset{Dataset: "users; DROP TABLE daily_data", UserID: 1})
	assert.ErrorIs(t, err, store.ErrUnknownDataset)
}

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv(testDSNEnv)
	if dsn == "" {
		t.Skipf("set %s to run PostgreSQL integration tests", testDSNEnv)
	}
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	driver, err := NewDB(&profile.Profile{Driver: "postgres", DSN: dsn})
	require.NoError(t, err)
	db := driver.(*DB)
	// One connection so search_path sticks.
	db.GetDB().SetMaxOpenConns(1)

	ctx := context.Background()
	schema := fmt.Sprintf("fitcoach_test_%d", time.Now().UnixNano())
	_, err = db.GetDB().ExecContext(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = db.GetDB().ExecContext(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		_ = db.Close()
	})
	_, err = db.GetDB().ExecContext(ctx, "SET search_path TO "+schema)
	require.NoError(t, err)

	for _, stmt := range testutil.FitnessFixture {
		_, err := db.GetDB().ExecContext(ctx, stmt)
		require.NoError(t, err, stmt)
	}
	return db
}

func TestIntrospection(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	tables, err := db.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"daily_data", "fitness_goals", "heartrate_minutes", "sleep_data", "weight_log"}, tables)

	columns, err := db.ListColumns(ctx, "weight_log")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "date", "weightkg"}, columns)
}

func TestDatasetQueries(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rows, err := db.ListDatasetRows(ctx, &store.FindDataset{Dataset: "daily_data", UserID: 1503960366, Dates: []string{"2016-04-13", "2016-04-14"}})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	values, err := db.ListHeartRateValues(ctx, 1503960366, "2016-04-12")
	require.NoError(t, err)
	assert.ElementsMatch(t, []float64{97, 102}, values)
}

func TestGoalsAndWeight(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	created, err := db.UpsertGoal(ctx, &store.UpsertGoal{UserID: 1503960366, Metric: "steps", Goal: 11000})
	require.NoError(t, err)
	assert.False(t, created)
	created, err = db.UpsertGoal(ctx, &store.UpsertGoal{UserID: 1503960366, Metric: "weight", Goal: 52})
	require.NoError(t, err)
	assert.True(t, created)

	metric := "steps"
	goals, err := db.ListGoals(ctx, &store.FindGoal{UserID: 1503960366, Metric: &metric})
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.Equal(t, float64(11000), goals[0].Goal)

	require.NoError(t, db.UpdateWeight(ctx, &store.UpdateWeight{UserID: 1503960366, Date: "2016-04-13", WeightKg: 52.1}))
	// weight_log has no row for 2016-04-14, so nothing is written.
	err = db.UpdateWeight(ctx, &store.UpdateWeight{UserID: 1503960366, Date: "2016-04-14", WeightKg: 52.0})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorContains(t, err, "weight_log")
}
