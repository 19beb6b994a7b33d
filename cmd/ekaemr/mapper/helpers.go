package mapper

import (
	"encoding/json"
	"strings"

	"github.com/SanteonNL/ekaemr/cmd/ekaemr/fhir/bundle"
	"github.com/SanteonNL/ekaemr/cmd/ekaemr/issue"
	"github.com/SanteonNL/ekaemr/models/eka"
	"github.com/SanteonNL/ekaemr/models/fhir"
	"github.com/SanteonNL/ekaemr/util"
)

// decode unmarshals the raw resource into v. A resource that does not fit
// its R4 shape (wrong JSON types, malformed dates) is a schema error.
func decode(entry *bundle.Entry, v any) error {
	if err := json.Unmarshal(entry.Resource, v); err != nil {
		return issue.NewSchemaError(entry.Index, "", "failed to decode %s: %v", entry.ResourceType, err).
			WithEntry(entry.Index, entry.ResourceType)
	}
	return nil
}

func newFragment(entry *bundle.Entry, item eka.Item) *Fragment {
	return &Fragment{
		EntryIndex:   entry.Index,
		ResourceType: entry.ResourceType,
		ID:           entry.ID,
		Item:         item,
	}
}

func missing(entry *bundle.Entry, field string) error {
	return issue.NewMissingRequiredField(entry.ResourceType, field).WithEntry(entry.Index, entry.ResourceType)
}

// scoped adds the entry context to resolver errors
func scoped(entry *bundle.Entry, err error) error {
	if ie, ok := err.(*issue.Error); ok {
		return ie.WithEntry(entry.Index, entry.ResourceType)
	}
	return err
}

// link queues a reference for resolution. References without a literal
// reference or display are ignored.
func (f *Fragment) link(field, targetType string, ref *fhir.Reference, set func(*eka.Link)) {
	if ref == nil {
		return
	}
	slot := RefSlot{
		Field:      field,
		Reference:  strings.TrimSpace(util.Deref(ref.Reference)),
		TargetType: targetType,
		Display:    util.Deref(ref.Display),
		Set:        set,
	}
	if slot.TargetType == "" {
		slot.TargetType = util.Deref(ref.Type)
	}
	if slot.Reference == "" && slot.Display == "" {
		return
	}
	f.Refs = append(f.Refs, slot)
}

// formatName renders a HumanName, preferring its text
func formatName(names []fhir.HumanName) string {
	name := preferredName(names)
	if name == nil {
		return ""
	}
	if text := strings.TrimSpace(util.Deref(name.Text)); text != "" {
		return text
	}
	parts := make([]string, 0, len(name.Prefix)+len(name.Given)+len(name.Suffix)+1)
	parts = append(parts, name.Prefix...)
	parts = append(parts, name.Given...)
	parts = append(parts, util.Deref(name.Family))
	parts = append(parts, name.Suffix...)
	return util.JoinNonEmpty(" ", parts...)
}

// preferredName returns the official name, else the first one
func preferredName(names []fhir.HumanName) *fhir.HumanName {
	for i := range names {
		if util.Deref(names[i].Use) == "official" {
			return &names[i]
		}
	}
	if len(names) > 0 {
		return &names[0]
	}
	return nil
}

func formatAddress(addresses []fhir.Address) string {
	if len(addresses) == 0 {
		return ""
	}
	a := addresses[0]
	if text := strings.TrimSpace(util.Deref(a.Text)); text != "" {
		return text
	}
	parts := append([]string{}, a.Line...)
	parts = append(parts, util.Deref(a.City), util.Deref(a.District), util.Deref(a.State), util.Deref(a.PostalCode), util.Deref(a.Country))
	return util.JoinNonEmpty(", ", parts...)
}

func identifiers(ids []fhir.Identifier) []eka.Identifier {
	var out []eka.Identifier
	for _, id := range ids {
		if v := util.Deref(id.Value); v != "" {
			out = append(out, eka.Identifier{System: util.Deref(id.System), Value: v})
		}
	}
	return out
}

func contacts(telecom []fhir.ContactPoint) []eka.Contact {
	var out []eka.Contact
	for _, cp := range telecom {
		if v := util.Deref(cp.Value); v != "" {
			out = append(out, eka.Contact{System: util.Deref(cp.System), Value: v, Use: util.Deref(cp.Use)})
		}
	}
	return out
}

func notes(annotations []fhir.Annotation) []string {
	var out []string
	for _, a := range annotations {
		if t := strings.TrimSpace(a.Text); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func dateTime(dt *fhir.DateTime) string {
	if dt == nil {
		return ""
	}
	return dt.String()
}

// period renders a Period as start/end, ISO 8601 interval style
func period(p *fhir.Period) string {
	if p == nil {
		return ""
	}
	start, end := dateTime(p.Start), dateTime(p.End)
	if end == "" {
		return start
	}
	return start + "/" + end
}

func quantity(q *fhir.Quantity) *eka.Quantity {
	if q == nil || q.Value == nil {
		return nil
	}
	unit := util.Deref(q.Unit)
	if unit == "" {
		unit = util.Deref(q.Code)
	}
	return &eka.Quantity{
		Value:      q.Value.String(),
		Comparator: util.Deref(q.Comparator),
		Unit:       unit,
	}
}

// required returns the trimmed value or "" for a nil or blank string
func required(s *string) string {
	return strings.TrimSpace(util.Deref(s))
}
