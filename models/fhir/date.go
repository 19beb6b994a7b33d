package fhir

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Date represents a FHIR date, keeping the precision it was written with
type Date struct {
	time.Time
	Precision string // "YYYY", "YYYY-MM" or "YYYY-MM-DD"
}

// NewDate creates a new day precision Date from a time.Time
func NewDate(t time.Time) Date {
	return Date{Time: t, Precision: "YYYY-MM-DD"}
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		d.Precision = ""
		return nil
	}

	formats := []struct {
		layout    string
		precision string
	}{
		{"2006-01-02", "YYYY-MM-DD"},
		{"2006-01", "YYYY-MM"},
		{"2006", "YYYY"},
	}

	for _, f := range formats {
		if len(s) != len(f.layout) {
			continue
		}
		t, err := time.Parse(f.layout, s)
		if err == nil {
			d.Time = t
			d.Precision = f.precision
			return nil
		}
	}

	return fmt.Errorf("invalid date format: %s", s)
}

// MarshalJSON implements the json.Marshaler interface
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// String returns the date in the precision it was parsed with
func (d Date) String() string {
	if d.Time.IsZero() {
		return ""
	}
	switch d.Precision {
	case "YYYY":
		return d.Format("2006")
	case "YYYY-MM":
		return d.Format("2006-01")
	default:
		return d.Format("2006-01-02")
	}
}
