package snapshot

import (
	"fmt"
	"strconv"
	"time"
)

// Layout is the timestamp format used in snapshot metadata.
const Layout = "02/01/2006 15:04:05"

// Timestamp is a JSON encoded "DD/MM/YYYY HH:MM:SS" timestamp.
type Timestamp struct {
	time.Time
}

// Now returns the current time truncated to second precision, matching what
// the wire format can represent.
func Now() Timestamp {
	return Timestamp{time.Now().Truncate(time.Second)}
}

// MarshalJSON encodes the timestamp as a quoted Layout string.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(t.Format(Layout))), nil
}

// UnmarshalJSON decodes a quoted Layout string.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s, err := strconv.Unquote(string(b))
	if err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", b, err)
	}
	parsed, err := time.ParseInLocation(Layout, s, time.Local)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}
