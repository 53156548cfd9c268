package v1

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/fitcoach/store"
)

const (
	dateLayout     = "2006-01-02"
	weekLength     = 7
	invalidDateMsg = "Invalid date format. Use YYYY-MM-DD."
)

func (s *APIV1Service) dataRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"message": "Welcome to the Fitness Data API"})
}

func (s *APIV1Service) getDataset(c echo.Context) error {
	dataset := c.Param("dataset")
	if !store.IsValidDataset(dataset) {
		return errorJSON(http.StatusNotFound, "Dataset not found")
	}
	userID, err := int64Query(c, "user_id")
	if err != nil {
		return err
	}

	rows, err := s.Store.ListDatasetRows(c.Request().Context(), &store.FindDataset{Dataset: dataset, UserID: userID})
	if err != nil {
		return errors.Wrapf(err, "failed to list %s", dataset)
	}
	if len(rows) == 0 {
		return messageJSON(http.StatusNotFound, fmt.Sprintf("No data found for user ID %d", userID))
	}
	return c.JSON(http.StatusOK, rows)
}

func (s *APIV1Service) getDatasetByDate(c echo.Context) error {
	dataset := c.Param("dataset")
	if !store.IsValidDataset(dataset) {
		return errorJSON(http.StatusNotFound, "Dataset not found")
	}
	userID, err := int64Query(c, "user_id")
	if err != nil {
		return err
	}
	date := c.QueryParam("date")
	if date == "" {
		return detailJSON(http.StatusBadRequest, "date is required")
	}

	rows, err := s.Store.ListDatasetRows(c.Request().Context(), &store.FindDataset{
		Dataset: dataset,
		UserID:  userID,
		Dates:   []string{date},
	})
	if err != nil {
		return errors.Wrapf(err, "failed to list %s", dataset)
	}
	if len(rows) == 0 {
		return messageJSON(http.StatusNotFound, fmt.Sprintf("No data found for user ID %d on date %s", userID, date))
	}
	return c.JSON(http.StatusOK, rows)
}

func (s *APIV1Service) getDatasetWeekBack(c echo.Context) error {
	dataset := c.Param("dataset")
	if !store.IsValidDataset(dataset) {
		return errorJSON(http.StatusNotFound, "Dataset not found")
	}
	rows, week, err := s.listWeekBack(c, dataset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"requested_week": week,
		"available_data": rows,
	})
}

func (s *APIV1Service) getSleepWeekBack(c echo.Context) error {
	rows, _, err := s.listWeekBack(c, "daily_data")
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"available_sleep_data": rows})
}

// listWeekBack returns the rows of the seven days ending on the date query
// parameter, and those dates newest first. Rows is never nil.
func (s *APIV1Service) listWeekBack(c echo.Context, dataset string) ([]store.Row, []string, error) {
	userID, err := int64Query(c, "user_id")
	if err != nil {
		return nil, nil, err
	}
	week, err := weekBack(c.QueryParam("date"))
	if err != nil {
		return nil, nil, errorJSON(http.StatusBadRequest, invalidDateMsg)
	}

	rows, err := s.Store.ListDatasetRows(c.Request().Context(), &store.FindDataset{
		Dataset: dataset,
		UserID:  userID,
		Dates:   week,
	})
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to list %s", dataset)
	}
	if rows == nil {
		rows = []store.Row{}
	}
	return rows, week, nil
}

// weekBack returns end and the six days before it, newest first.
func weekBack(end string) ([]string, error) {
	endDate, err := time.Parse(dateLayout, end)
	if err != nil {
		return nil, err
	}
	week := make([]string, 0, weekLength)
	for i := range weekLength {
		week = append(week, endDate.AddDate(0, 0, -i).Format(dateLayout))
	}
	return week, nil
}

func (s *APIV1Service) getHeartRateByDate(c echo.Context) error {
	userID, err := int64Query(c, "user_id")
	if err != nil {
		return err
	}
	date := c.QueryParam("bydate")
	if date == "" {
		return detailJSON(http.StatusBadRequest, "bydate is required")
	}

	values, err := s.Store.ListHeartRateValues(c.Request().Context(), userID, date)
	if err != nil {
		return errorJSON(http.StatusBadRequest, err.Error())
	}
	if values == nil {
		values = []float64{}
	}
	return c.JSON(http.StatusOK, map[string]any{"date": date, "heart_rate_values": values})
}

func (s *APIV1Service) listGoals(c echo.Context) error {
	userID, err := int64Param(c, "user_id")
	if err != nil {
		return err
	}
	goals, err := s.Store.ListGoals(c.Request().Context(), &store.FindGoal{UserID: userID})
	if err != nil {
		return errors.Wrap(err, "failed to list goals")
	}
	if len(goals) == 0 {
		return messageJSON(http.StatusNotFound, fmt.Sprintf("No goals found for user ID %d", userID))
	}
	return c.JSON(http.StatusOK, goals)
}

func (s *APIV1Service) getGoal(c echo.Context) error {
	userID, err := int64Param(c, "user_id")
	if err != nil {
		return err
	}
	metric := c.Param("metric")
	goal, err := s.Store.GetGoal(c.Request().Context(), &store.FindGoal{UserID: userID, Metric: &metric})
	if err != nil {
		return errors.Wrap(err, "failed to get goal")
	}
	if goal == nil {
		return messageJSON(http.StatusNotFound, fmt.Sprintf("No goal found for user ID %d and metric '%s'", userID, metric))
	}
	return c.JSON(http.StatusOK, goal)
}

func (s *APIV1Service) upsertGoal(c echo.Context) error {
	userID, err := int64Param(c, "user_id")
	if err != nil {
		return err
	}
	metric := c.Param("metric")
	value, err := int64Query(c, "goal_value")
	if err != nil {
		return err
	}

	created, err := s.Store.UpsertGoal(c.Request().Context(), &store.UpsertGoal{UserID: userID, Metric: metric, Goal: value})
	if err != nil {
		return detailJSON(http.StatusInternalServerError, "Database error: "+err.Error())
	}
	message := fmt.Sprintf("Updated goal for user ID %d and metric '%s' to %d.", userID, metric, value)
	if created {
		message = fmt.Sprintf("Created new goal for user ID %d and metric '%s' with value %d.", userID, metric, value)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": message})
}

func (s *APIV1Service) updateWeight(c echo.Context) error {
	userID, err := int64Param(c, "user_id")
	if err != nil {
		return err
	}
	weight, err := strconv.ParseFloat(c.QueryParam("weight"), 64)
	if err != nil {
		return detailJSON(http.StatusBadRequest, "weight must be a number")
	}
	date := c.QueryParam("date")
	if _, err := time.Parse(dateLayout, date); err != nil {
		return detailJSON(http.StatusBadRequest, invalidDateMsg)
	}

	err = s.Store.UpdateWeight(c.Request().Context(), &store.UpdateWeight{UserID: userID, Date: date, WeightKg: weight})
	switch {
	case errors.Is(err, store.ErrNotFound):
		if strings.Contains(err.Error(), "daily_data") {
			return detailJSON(http.StatusNotFound, "No matching daily data entry found for the specified user and date.")
		}
		return detailJSON(http.StatusNotFound, "No matching weight log entry found for the specified user and date.")
	case err != nil:
		return detailJSON(http.StatusInternalServerError, "Database error: "+err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Weight log and daily data entry updated successfully."})
}

func int64Query(c echo.Context, name string) (int64, error) {
	return parseInt64(name, c.QueryParam(name))
}

func int64Param(c echo.Context, name string) (int64, error) {
	return parseInt64(name, c.Param(name))
}

func parseInt64(name, raw string) (int64, error) {
	if raw == "" {
		return 0, detailJSON(http.StatusBadRequest, name+" is required")
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, detailJSON(http.StatusBadRequest, name+" must be an integer")
	}
	return v, nil
}
