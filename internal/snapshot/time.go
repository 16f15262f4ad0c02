package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// TimeLayout is the on-disk timestamp encoding: UTC with millisecond precision.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// Time is a timestamp that round-trips through snapshot files.
type Time struct {
	time.Time
}

// At wraps t, truncated to the precision the file format keeps.
func At(t time.Time) Time {
	return Time{Time: t.UTC().Truncate(time.Millisecond)}
}

func (t Time) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.UTC().Format(TimeLayout) + `"`), nil
}

func (t *Time) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode timestamp: %w", err)
	}
	parsed, err := ParseTime(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// ParseTime accepts TimeLayout and RFC 3339.
func ParseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(TimeLayout, s); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return ts.UTC(), nil
}
