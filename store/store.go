package store

import (
	"context"

	"github.com/hrygo/fitcoach/internal/profile"
)

// Store provides access to the fitness dataset through a database driver.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// QueryRows runs a read statement with positional parameters.
func (s *Store) QueryRows(ctx context.Context, query string, args ...any) ([]Row, error) {
	return s.driver.QueryRows(ctx, query, args...)
}

func (s *Store) ListTables(ctx context.Context) ([]string, error) {
	return s.driver.ListTables(ctx)
}

func (s *Store) ListColumns(ctx context.Context, table string) ([]string, error) {
	return s.driver.ListColumns(ctx, table)
}

func (s *Store) ListDatasetRows(ctx context.Context, find *FindDataset) ([]Row, error) {
	if !IsValidDataset(find.Dataset) {
		return nil, ErrUnknownDataset
	}
	return s.driver.ListDatasetRows(ctx, find)
}

func (s *Store) ListHeartRateValues(ctx context.Context, userID int64, date string) ([]float64, error) {
	return s.driver.ListHeartRateValues(ctx, userID, date)
}

func (s *Store) ListGoals(ctx context.Context, find *FindGoal) ([]*Goal, error) {
	return s.driver.ListGoals(ctx, find)
}

func (s *Store) GetGoal(ctx context.Context, find *FindGoal) (*Goal, error) {
	list, err := s.driver.ListGoals(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) UpsertGoal(ctx context.Context, upsert *UpsertGoal) (bool, error) {
	return s.driver.UpsertGoal(ctx, upsert)
}

func (s *Store) UpdateWeight(ctx context.Context, update *UpdateWeight) error {
	return s.driver.UpdateWeight(ctx, update)
}
