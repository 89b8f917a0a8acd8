package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// dateValue reads either a plain YYYY-MM-DD date or an RFC 3339 timestamp.
type dateValue struct {
	time.Time
}

func (d *dateValue) UnmarshalJSON(raw []byte) error {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		d.Time = t
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	d.Time = t
	return nil
}

func (d *dateValue) timePtr() *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}
