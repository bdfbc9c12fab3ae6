package validators

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/diagcenter/pcledger/pkg/errors"
)

const dateLayout = "2006-01-02"

func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be numeric").WithDetails(map[string]any{"field": key})
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

// ParseQueryBool returns nil when the parameter is absent.
func ParseQueryBool(r *http.Request, key string) (*bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be true or false").WithDetails(map[string]any{"field": key})
	}
	return &value, nil
}

// ParseDateRange reads from/to as calendar days in loc (or RFC3339 instants)
// and returns a half-open [from, to) window. A bare "to" date includes that
// whole day.
func ParseDateRange(r *http.Request, loc *time.Location) (*time.Time, *time.Time, error) {
	from, err := parseQueryTime(r, "from", loc, false)
	if err != nil {
		return nil, nil, err
	}
	to, err := parseQueryTime(r, "to", loc, true)
	if err != nil {
		return nil, nil, err
	}
	if from != nil && to != nil && !from.Before(*to) {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "from must be before to").WithDetails(map[string]any{"field": "from"})
	}
	return from, to, nil
}

func parseQueryTime(r *http.Request, key string, loc *time.Location, endOfDay bool) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	if day, err := time.ParseInLocation(dateLayout, raw, loc); err == nil {
		if endOfDay {
			day = day.AddDate(0, 0, 1)
		}
		return &day, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be YYYY-MM-DD or RFC3339").WithDetails(map[string]any{"field": key})
	}
	return &ts, nil
}
