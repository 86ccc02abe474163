// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package iso parses the ISO 8601 forms accepted in configuration and decoder
// events.
package iso

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/relvacode/iso8601"
	"github.com/sosodev/duration"
)

// Duration is a time.Duration that unmarshals from an ISO 8601 duration
// ("PT30S"), a Go duration ("30s") or a bare number of seconds ("30").
type Duration time.Duration

// ParseDuration parses any of the forms accepted by Duration.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	if strings.HasPrefix(strings.ToUpper(s), "P") {
		parsed, err := duration.Parse(strings.ToUpper(s))
		if err != nil {
			return 0, err
		}
		return parsed.ToTimeDuration(), nil
	}
	return time.ParseDuration(s)
}

// String returns the duration as an ISO 8601 string.
func (d Duration) String() string {
	return duration.Format(time.Duration(d))
}

// MarshalText marshals the duration to an ISO 8601 string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText unmarshals the duration from any accepted form.
func (d *Duration) UnmarshalText(b []byte) error {
	parsed, err := ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// ParseTime parses a decoder timestamp. Both "T" and space separated forms are
// accepted; timestamps without a zone are taken to be in loc.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	b := []byte(strings.TrimSpace(s))
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b[i] = 'T'
	}
	t, err := iso8601.Parse(b)
	if err != nil || hasZone(b) || loc == nil {
		return t, err
	}
	return time.Date(
		t.Year(), t.Month(), t.Day(),
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(),
		loc,
	), nil
}

// Reports whether the time part of a timestamp carries a zone designator.
func hasZone(b []byte) bool {
	i := bytes.IndexByte(b, 'T')
	if i < 0 {
		return false
	}
	return bytes.ContainsAny(b[i:], "Zz+-")
}
