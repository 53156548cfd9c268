// Package testutil seeds small fitness datasets for package tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/fitcoach/internal/profile"
	"github.com/hrygo/fitcoach/store"
	"github.com/hrygo/fitcoach/store/db/sqlite"
)

// FitnessFixture creates and seeds the dataset tables. The statements are
// portable between sqlite and PostgreSQL.
var FitnessFixture = []string{
	`CREATE TABLE daily_data (id INTEGER, date TEXT, totalsteps INTEGER, totalminutesasleep INTEGER, weightkg REAL)`,
	`CREATE TABLE weight_log (id INTEGER, date TEXT, weightkg REAL)`,
	`CREATE TABLE heartrate_minutes (id INTEGER, minute TEXT, value INTEGER)`,
	`CREATE TABLE fitness_goals (id INTEGER, metric TEXT, goal INTEGER)`,
	`CREATE TABLE sleep_data (id INTEGER, date TEXT, totalminutesasleep INTEGER, totaltimeinbed INTEGER)`,
	`INSERT INTO daily_data VALUES
		(1503960366, '2016-04-12', 13162, 327, 52.6),
		(1503960366, '2016-04-13', 10735, 384, 52.4),
		(1503960366, '2016-04-14', 10460, 412, 52.4),
		(1644430081, '2016-04-14', 4414, NULL, NULL)`,
	`INSERT INTO weight_log VALUES (1503960366, '2016-04-12', 52.6), (1503960366, '2016-04-13', 52.4)`,
	`INSERT INTO heartrate_minutes VALUES
		(1503960366, '2016-04-12 07:21:00', 97),
		(1503960366, '2016-04-12 07:22:00', 102),
		(1503960366, '2016-04-13 07:21:00', 88)`,
	`INSERT INTO fitness_goals VALUES (1503960366, 'steps', 10000), (1503960366, 'sleep', 480)`,
	`INSERT INTO sleep_data VALUES
		(1503960366, '2016-04-13', 384, 424),
		(1503960366, '2016-04-14', 412, 442)`,
}

// NewFitnessDriver opens a seeded sqlite dataset in a temp dir.
func NewFitnessDriver(t testing.TB) store.Driver {
	t.Helper()

	dir := t.TempDir()
	driver, err := sqlite.NewDB(&profile.Profile{Driver: "sqlite", DSN: filepath.Join(dir, "fitness.db"), Data: dir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })

	for _, stmt := range FitnessFixture {
		_, err := driver.GetDB().Exec(stmt)
		require.NoError(t, err)
	}
	return driver
}
