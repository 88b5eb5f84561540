package trip

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidValue means a column value cannot be read as the type the transform needs.
var ErrInvalidValue = errors.New("invalid column value")

// Layouts accepted for textual timestamps. Layouts without a zone are read in the configured location.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// AsTime reads a driver value as a timestamp. ok is false for NULL.
// Zone-less text is interpreted in loc. See driverTime for time.Time values.
func AsTime(v any, loc *time.Location) (t time.Time, ok bool, err error) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, false, nil
	case time.Time:
		return driverTime(x, loc), true, nil
	case *time.Time:
		if x == nil {
			return time.Time{}, false, nil
		}
		return driverTime(*x, loc), true, nil
	case []byte:
		return parseTimestamp(string(x), loc)
	case string:
		return parseTimestamp(x, loc)
	default:
		return time.Time{}, false, fmt.Errorf("%w: %T is not a timestamp", ErrInvalidValue, v)
	}
}

// driverTime places a scanned time.Time in loc. sqlite and pgx return naive TIMESTAMP columns
// tagged UTC, so a UTC time is a wall-clock reading in loc, the same as zone-less text.
// Times in any other location carry a real offset and are converted as instants.
func driverTime(t time.Time, loc *time.Location) time.Time {
	if t.Location() != time.UTC {
		return t.In(loc)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

func parseTimestamp(s string, loc *time.Location) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.In(loc), true, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("%w: %q is not a timestamp", ErrInvalidValue, s)
}

// AsFloat reads a driver value as a number. ok is false for NULL.
func AsFloat(v any) (f float64, ok bool, err error) {
	switch x := v.(type) {
	case nil:
		return 0, false, nil
	case float64:
		return x, true, nil
	case float32:
		return float64(x), true, nil
	case int:
		return float64(x), true, nil
	case int8:
		return float64(x), true, nil
	case int16:
		return float64(x), true, nil
	case int32:
		return float64(x), true, nil
	case int64:
		return float64(x), true, nil
	case uint:
		return float64(x), true, nil
	case uint8:
		return float64(x), true, nil
	case uint16:
		return float64(x), true, nil
	case uint32:
		return float64(x), true, nil
	case uint64:
		return float64(x), true, nil
	case []byte:
		return parseFloat(string(x))
	case string:
		return parseFloat(x)
	default:
		return 0, false, fmt.Errorf("%w: %T is not a number", ErrInvalidValue, v)
	}
}

func parseFloat(s string) (float64, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %q is not a number", ErrInvalidValue, s)
	}
	return f, true, nil
}
