package tools

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/miradorstack/mirador-investigator/internal/toolkit"
	"github.com/miradorstack/mirador-investigator/internal/utils"
)

// Args is a validated tool argument map.
type Args map[string]any

// String returns the string at key, or def when absent.
func (a Args) String(key, def string) string {
	if v, ok := a[key].(string); ok {
		return v
	}
	return def
}

// Strings returns the string list at key.
func (a Args) Strings(key string) []string {
	switch v := a[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Float returns the number at key, or def when absent.
func (a Args) Float(key string, def float64) float64 {
	switch v := a[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return def
}

// Int returns the number at key truncated to an int, or def when absent.
func (a Args) Int(key string, def int) int {
	if _, ok := a[key]; !ok {
		return def
	}
	return int(a.Float(key, float64(def)))
}

// Time parses the timestamp at key. A missing key is an error.
func (a Args) Time(key string) (time.Time, error) {
	raw, ok := a[key].(string)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s is required", toolkit.ErrInvalidArgument, key)
	}
	ts, err := utils.ParseTimestamp(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", toolkit.ErrInvalidArgument, key, err)
	}
	return ts, nil
}

// OptionalTime parses the timestamp at key, returning the zero time when absent.
func (a Args) OptionalTime(key string) (time.Time, error) {
	if raw, ok := a[key].(string); !ok || raw == "" {
		return time.Time{}, nil
	}
	return a.Time(key)
}

// Window parses start_ts and end_ts.
func (a Args) Window() (time.Time, time.Time, error) {
	start, err := a.Time("start_ts")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := a.Time("end_ts")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

// Decode re-encodes the value at key into dst.
func (a Args) Decode(key string, dst any) error {
	raw, err := json.Marshal(a[key])
	if err != nil {
		return fmt.Errorf("%w: %s: %v", toolkit.ErrInvalidArgument, key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", toolkit.ErrInvalidArgument, key, err)
	}
	return nil
}
