// Package clients holds the pieces shared by every provider adapter:
// the typed API error and the tolerant payload field helpers.
package clients

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// APIError represents a non-2xx provider response that is not a
// definitive-absent signal.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: %s (status: %d, endpoint: %s)", e.Provider, e.Message, e.StatusCode, e.Endpoint)
}

// FlexFloat64 handles JSON values that may be either a number or a string.
type FlexFloat64 float64

func (f *FlexFloat64) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = FlexFloat64(num)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" || s == "N/A" {
			*f = 0
			return nil
		}
		num, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*f = 0
			return nil
		}
		*f = FlexFloat64(num)
		return nil
	}
	return fmt.Errorf("cannot unmarshal %s into float64", string(data))
}

// PickField returns the first present value among the candidate keys.
// Providers with unstable contracts ship the same logical field under
// several names; the alias list makes the lookup order explicit.
func PickField(payload map[string]interface{}, aliases ...string) (interface{}, bool) {
	for _, key := range aliases {
		if v, ok := payload[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// EpochToISODate formats epoch seconds as a YYYY-MM-DD UTC date.
func EpochToISODate(ts int64) string {
	return time.Unix(ts, 0).UTC().Format("2006-01-02")
}

// CoerceISODate normalizes a raw date value (ISO string, datetime string
// or epoch seconds) to YYYY-MM-DD. Returns false when nothing usable is
// present.
func CoerceISODate(value interface{}) (string, bool) {
	switch v := value.(type) {
	case string:
		if len(v) >= 10 && v[4] == '-' {
			return v[:10], true
		}
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			return EpochToISODate(ts), true
		}
	case float64:
		return EpochToISODate(int64(v)), true
	case int64:
		return EpochToISODate(v), true
	case json.Number:
		if ts, err := v.Int64(); err == nil {
			return EpochToISODate(ts), true
		}
	}
	return "", false
}

// CutoffDate returns today-minus-N-years as an ISO date, used to trim
// full-archive providers down to the requested lookback.
func CutoffDate(now time.Time, years int) string {
	return now.UTC().AddDate(0, 0, -365*years).Format("2006-01-02")
}

// TrimBefore drops the leading entries of an ascending series older than
// the cutoff date.
func TrimBefore[T any](rows []T, date func(T) string, cutoff string) []T {
	out := rows[:0]
	for _, r := range rows {
		if date(r) >= cutoff {
			out = append(out, r)
		}
	}
	return out
}
