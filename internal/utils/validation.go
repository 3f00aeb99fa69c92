package utils

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Layouts the server stores schedule fields in
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// WorkOrderStatuses are the statuses the server accepts
var WorkOrderStatuses = []string{"pending", "scheduled", "in_progress", "completed", "cancelled"}

// ParseDateFlag normalizes a schedule date. It accepts YYYY-MM-DD and the
// words "today" and "tomorrow". Empty input returns "" to clear the date.
func ParseDateFlag(dateStr string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(dateStr)) {
	case "":
		return "", nil
	case "today":
		return time.Now().Format(DateLayout), nil
	case "tomorrow":
		return time.Now().AddDate(0, 0, 1).Format(DateLayout), nil
	}

	parsed, err := time.ParseInLocation(DateLayout, dateStr, time.Local)
	if err != nil {
		return "", ErrInvalidDate(dateStr)
	}
	return parsed.Format(DateLayout), nil
}

// ValidateScheduleTime checks a 24-hour HH:MM time. Empty is allowed.
func ValidateScheduleTime(timeStr string) error {
	if timeStr == "" {
		return nil
	}
	if _, err := time.Parse(TimeLayout, timeStr); err != nil || len(timeStr) != len(TimeLayout) {
		return ErrInvalidTime(timeStr)
	}
	return nil
}

// ValidateSchedule requires a date whenever a time is given
func ValidateSchedule(date, clock string) error {
	if err := ValidateScheduleTime(clock); err != nil {
		return err
	}
	if clock != "" && date == "" {
		return fmt.Errorf("a schedule time needs a schedule date")
	}
	return nil
}

// ValidateStatus checks a work order status
func ValidateStatus(status string) error {
	if status == "" || slices.Contains(WorkOrderStatuses, status) {
		return nil
	}
	return ErrInvalidStatus(status, WorkOrderStatuses)
}

// ParseAmount parses a positive money amount
func ParseAmount(s string) (float64, error) {
	amount, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if amount <= 0 {
		return 0, fmt.Errorf("amount must be greater than 0")
	}
	return amount, nil
}
