package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// queryValue returns the first non-empty query parameter among keys. Public
// clients send both camelCase and snake_case names.
func queryValue(c *gin.Context, keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(c.Query(key)); value != "" {
			return value
		}
	}
	return ""
}

// queryPositiveInt reads an optional non-negative integer. Absent means 0.
func queryPositiveInt(c *gin.Context, key string) (int, error) {
	raw := queryValue(c, key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}

// parseExpiry accepts RFC3339 or YYYY-MM-DD. A bare date expires at the last
// instant of that day in UTC.
func parseExpiry(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return &ts, nil
	}
	day, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, err
	}
	end := day.Add(24*time.Hour - time.Nanosecond)
	return &end, nil
}
