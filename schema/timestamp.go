package schema

import (
	"time"

	"golang.org/x/xerrors"
)

// TimestampLayout is the canonical wire form of the reserved timestamp
// property, e.g. "20091009163011".
const TimestampLayout = "20060102150405"

// timestampLayouts lists the accepted raw forms, most common first.
var timestampLayouts = []string{
	TimestampLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"20060102",
	"2006-01-02",
}

// ErrBadTimestamp is returned for timestamp values in none of the accepted
// layouts.
var ErrBadTimestamp = xerrors.New("unrecognized timestamp format")

// ParseTimestamp parses a raw timestamp property value.
func ParseTimestamp(raw string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, xerrors.Errorf("parse timestamp %q: %w", raw, ErrBadTimestamp)
}

// CanonicalTimestamp normalizes a raw timestamp property value to the
// canonical layout so that values in different accepted layouts compare
// equal as text.
func CanonicalTimestamp(raw string) (string, error) {
	t, err := ParseTimestamp(raw)
	if err != nil {
		return "", err
	}
	return t.Format(TimestampLayout), nil
}

// FormatTimestamp renders t in the canonical timestamp layout.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}
