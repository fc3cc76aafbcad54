package handlers

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(value))
}

func parseDate(value string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, strings.TrimSpace(value), time.UTC)
}

func parseTimeOfDay(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	parsed, err := time.Parse(timeLayout, trimmed)
	if err != nil {
		// Seconds are accepted and dropped.
		parsed, err = time.Parse("15:04:05", trimmed)
		if err != nil {
			return "", err
		}
	}
	return parsed.Format(timeLayout), nil
}
