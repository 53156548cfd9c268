package store

import (
	"database/sql"
	"errors"
	"slices"
)

var (
	// ErrNotFound is returned when a row required by an update does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnknownDataset is returned for dataset names outside ValidDatasets.
	ErrUnknownDataset = errors.New("dataset not found")
)

// ValidDatasets lists the tables exposed through dataset lookups.
var ValidDatasets = []string{
	"daily_data", "daily_activity", "weekly_data", "weight_log",
	"minute_sleep", "hourly_merged", "heartrate_minutes", "fitness_goals",
	"sleep_data",
}

// IsValidDataset reports whether name may be interpolated as a table name.
func IsValidDataset(name string) bool {
	return slices.Contains(ValidDatasets, name)
}

// Row is one result row keyed by column name.
type Row map[string]any

// FindDataset selects rows of one dataset for a user.
// Dates, when set, restrict the rows to `date IN (...)`.
type FindDataset struct {
	Dataset string
	UserID  int64
	Dates   []string
}

// Goal is a user's daily goal for one metric.
type Goal struct {
	UserID int64   `json:"id"`
	Metric string  `json:"metric"`
	Goal   float64 `json:"goal"`
}

type FindGoal struct {
	UserID int64
	Metric *string
}

type UpsertGoal struct {
	UserID int64
	Metric string
	Goal   int64
}

// UpdateWeight updates weight_log and daily_data for the same day.
type UpdateWeight struct {
	UserID   int64
	Date     string
	WeightKg float64
}

// ScanRows reads all rows into Row maps. Byte slices become strings so the
// result serializes as JSON text.
func ScanRows(rows *sql.Rows) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var list []Row
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		row := make(Row, len(columns))
		for i, column := range columns {
			if b, ok := values[i].([]byte); ok {
				row[column] = string(b)
				continue
			}
			row[column] = values[i]
		}
		list = append(list, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}
