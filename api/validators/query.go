package validators

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/Lavavarshney/Library-Management-System/pkg/errors"
)

func queryValue(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

func badQuery(key, msg string, extra map[string]any) error {
	details := map[string]any{"field": key}
	for k, v := range extra {
		details[k] = v
	}
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(details)
}

// ParseQueryInt returns def when key is absent and rejects values outside
// [lo, hi].
func ParseQueryInt(r *http.Request, key string, def, lo, hi int) (int, error) {
	raw := queryValue(r, key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badQuery(key, key+" must be an integer", nil)
	}
	if n < lo || n > hi {
		return 0, badQuery(key, key+" is out of range", map[string]any{"min": lo, "max": hi})
	}
	return n, nil
}

// ParseQueryTime reads an RFC 3339 instant as UTC; absent is the zero time.
func ParseQueryTime(r *http.Request, key string) (time.Time, error) {
	raw := queryValue(r, key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, badQuery(key, key+" must be an RFC 3339 timestamp", nil)
	}
	return t.UTC(), nil
}
