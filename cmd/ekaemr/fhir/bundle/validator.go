package bundle

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/SanteonNL/ekaemr/cmd/ekaemr/issue"
	"github.com/SanteonNL/ekaemr/models/fhir"
	"github.com/SanteonNL/ekaemr/util"
	"golang.org/x/exp/slices"
)

// Entry is one structurally valid bundle entry. Resource is never modified.
type Entry struct {
	Index        int
	FullURL      string
	ResourceType string
	ID           string
	Resource     json.RawMessage
	// Supported is false for entries whose type has no mapper (lenient mode only)
	Supported bool
	// Duplicate is set by the index when an earlier entry already claimed one of its keys
	Duplicate bool
}

// Key returns the relative reference of the entry, e.g. Patient/123, or "" without an id
func (e *Entry) Key() string {
	if e.ID == "" {
		return ""
	}
	return e.ResourceType + "/" + e.ID
}

// Label identifies the entry in diagnostics: its key, fullUrl or position
func (e *Entry) Label() string {
	if k := e.Key(); k != "" {
		return k
	}
	if e.FullURL != "" {
		return e.FullURL
	}
	return e.ResourceType
}

// ValidatedBundle is a Bundle whose shape has been checked
type ValidatedBundle struct {
	ID        string
	Type      string
	Timestamp string
	Entries   []*Entry
}

// EntryCount is the number of entries in the source bundle, including skipped ones
func (vb *ValidatedBundle) EntryCount() int {
	return len(vb.Entries)
}

// Validate checks the Bundle shape and that every entry holds a supported resource.
// Schema errors are returned as the error, except an unknown bundle type which
// lenient mode reports and keeps. Unsupported resource types are returned as
// the error in strict mode and reported in lenient mode.
func Validate(data []byte, supported func(resourceType string) bool, mode issue.Mode) (*ValidatedBundle, []*issue.Error, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, nil, issue.NewSchemaError(issue.NoEntry, "", "bundle must be a JSON object")
	}

	var b fhir.Bundle
	if err := json.Unmarshal(trimmed, &b); err != nil {
		return nil, nil, issue.NewSchemaError(issue.NoEntry, "", "failed to decode bundle: %v", err)
	}

	if b.ResourceType != "Bundle" {
		return nil, nil, issue.NewSchemaError(issue.NoEntry, "resourceType", "expected resourceType Bundle, got %q", b.ResourceType)
	}

	var reported []*issue.Error
	bundleType := "collection"
	if b.Type != nil {
		bundleType = strings.ToLower(strings.TrimSpace(*b.Type))
		if !slices.Contains(fhir.BundleTypes, bundleType) {
			unknown := issue.NewSchemaError(issue.NoEntry, "type", "unknown bundle type %q", *b.Type)
			if mode == issue.Strict {
				return nil, nil, unknown
			}
			reported = append(reported, unknown)
		}
	}

	vb := &ValidatedBundle{
		ID:        util.Deref(b.Id),
		Type:      bundleType,
		Timestamp: util.Deref(b.Timestamp),
	}

	rawEntries, err := decodeEntryList(b.Entry)
	if err != nil {
		return nil, nil, err
	}

	vb.Entries = make([]*Entry, 0, len(rawEntries))
	for i, raw := range rawEntries {
		entry, err := validateEntry(i, raw)
		if err != nil {
			return nil, nil, err
		}

		entry.Supported = supported(entry.ResourceType)
		if !entry.Supported {
			unsupported := issue.NewUnsupportedResourceType(i, entry.ResourceType)
			if mode == issue.Strict {
				return nil, nil, unsupported
			}
			reported = append(reported, unsupported)
		}

		vb.Entries = append(vb.Entries, entry)
	}

	return vb, reported, nil
}

func decodeEntryList(raw json.RawMessage) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] != '[' {
		return nil, issue.NewSchemaError(issue.NoEntry, "entry", "entry must be an array")
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, issue.NewSchemaError(issue.NoEntry, "entry", "failed to decode entry list: %v", err)
	}
	return entries, nil
}

func validateEntry(index int, raw json.RawMessage) (*Entry, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, issue.NewSchemaError(index, "", "entry must be a JSON object")
	}

	var be fhir.BundleEntry
	if err := json.Unmarshal(trimmed, &be); err != nil {
		return nil, issue.NewSchemaError(index, "", "failed to decode entry: %v", err)
	}

	resource := bytes.TrimSpace(be.Resource)
	if len(resource) == 0 || bytes.Equal(resource, []byte("null")) {
		return nil, issue.NewSchemaError(index, "resource", "entry has no resource")
	}
	if resource[0] != '{' {
		return nil, issue.NewSchemaError(index, "resource", "resource must be a JSON object")
	}

	var header fhir.ResourceHeader
	if err := json.Unmarshal(resource, &header); err != nil {
		return nil, issue.NewSchemaError(index, "resourceType", "failed to decode resource header: %v", err)
	}
	if header.ResourceType == nil || *header.ResourceType == "" {
		return nil, issue.NewSchemaError(index, "resourceType", "resource has no resourceType")
	}

	return &Entry{
		Index:        index,
		FullURL:      util.Deref(be.FullUrl),
		ResourceType: *header.ResourceType,
		ID:           util.Deref(header.Id),
		Resource:     resource,
	}, nil
}
