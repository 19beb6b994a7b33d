package fhir

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateTime represents a FHIR dateTime or instant
type DateTime struct {
	time.Time
	Precision string // "YYYY", "YYYY-MM", "YYYY-MM-DD", or "FULL"
	// raw is the source text of a parsed FULL value, fractional seconds included
	raw string
}

// NewDateTime creates a new DateTime from a time.Time
func NewDateTime(t time.Time) DateTime {
	return DateTime{
		Time:      t,
		Precision: "FULL",
	}
}

// String returns the datetime in FHIR format based on precision
func (d DateTime) String() string {
	if d.Time.IsZero() {
		return ""
	}

	switch d.Precision {
	case "YYYY":
		return d.Time.Format("2006")
	case "YYYY-MM":
		return d.Time.Format("2006-01")
	case "YYYY-MM-DD":
		return d.Time.Format("2006-01-02")
	default:
		if d.raw != "" {
			return d.raw
		}
		t := d.Time
		baseFormat := "2006-01-02T15:04:05.999999999"

		_, offset := t.Zone()
		if offset == 0 {
			return t.Format(baseFormat + "Z")
		}

		sign := '+'
		if offset < 0 {
			sign = '-'
			offset = -offset
		}
		return fmt.Sprintf("%s%c%02d:%02d", t.Format(baseFormat), sign, offset/3600, (offset%3600)/60)
	}
}

// MarshalJSON implements the json.Marshaler interface
func (d DateTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (d *DateTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	d.raw = ""
	if s == "" || s == "null" {
		d.Time = time.Time{}
		d.Precision = ""
		return nil
	}

	// Parse partial dates
	switch len(s) {
	case 4: // YYYY
		if t, err := time.Parse("2006", s); err == nil {
			d.Time = t
			d.Precision = "YYYY"
			return nil
		}
	case 7: // YYYY-MM
		if t, err := time.Parse("2006-01", s); err == nil {
			d.Time = t
			d.Precision = "YYYY-MM"
			return nil
		}
	case 10: // YYYY-MM-DD
		if t, err := time.Parse("2006-01-02", s); err == nil {
			d.Time = t
			d.Precision = "YYYY-MM-DD"
			return nil
		}
	}

	// Fractional seconds are accepted by the parser without being in the layout
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("invalid datetime format: %s (last error: %v)", s, err)
	}
	d.Time = t
	d.Precision = "FULL"
	d.raw = s
	return nil
}
