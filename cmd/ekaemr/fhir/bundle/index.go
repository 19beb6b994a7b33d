package bundle

import (
	"strings"

	"github.com/SanteonNL/ekaemr/cmd/ekaemr/issue"
)

// Index looks up bundle entries by reference.
// It is built once per conversion and only read afterwards.
type Index struct {
	byKey map[string]*Entry
}

// NewIndex indexes every entry under Type/id and under its fullUrl.
// A key seen twice is a DuplicateResourceId error in strict mode; in lenient
// mode the first entry keeps the key and the later one is marked Duplicate.
func NewIndex(vb *ValidatedBundle, mode issue.Mode) (*Index, []*issue.Error, error) {
	idx := &Index{
		byKey: make(map[string]*Entry, len(vb.Entries)*2),
	}

	var reported []*issue.Error
	for _, entry := range vb.Entries {
		keys := entryKeys(entry)

		var dup *issue.Error
		for _, key := range keys {
			if first, exists := idx.byKey[key]; exists {
				dup = issue.NewDuplicateResourceID(entry.Index, entry.ResourceType, key, first.Index)
				break
			}
		}
		if dup != nil {
			if mode == issue.Strict {
				return nil, nil, dup
			}
			entry.Duplicate = true
			reported = append(reported, dup)
			continue
		}

		for _, key := range keys {
			idx.byKey[key] = entry
		}
	}

	return idx, reported, nil
}

func entryKeys(e *Entry) []string {
	keys := make([]string, 0, 2)
	if k := e.Key(); k != "" {
		keys = append(keys, k)
	}
	if e.FullURL != "" && e.FullURL != e.Key() {
		keys = append(keys, e.FullURL)
	}
	return keys
}

// Resolve finds the target of a literal reference. It accepts Type/id,
// fullUrl matches (urn:uuid:, urn:oid:, absolute URLs) and absolute URLs
// whose trailing Type/id is in the bundle. Version suffixes (_history) are
// ignored. Contained references (#id) never resolve.
func (idx *Index) Resolve(reference string) (*Entry, bool) {
	ref := strings.TrimSpace(reference)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return nil, false
	}

	if e, ok := idx.byKey[ref]; ok {
		return e, true
	}

	ref = stripHistory(ref)
	if e, ok := idx.byKey[ref]; ok {
		return e, true
	}

	if strings.Contains(ref, "://") {
		if key := trailingKey(ref); key != "" {
			if e, ok := idx.byKey[key]; ok {
				return e, true
			}
		}
	}

	return nil, false
}

func stripHistory(ref string) string {
	if i := strings.Index(ref, "/_history/"); i >= 0 {
		return ref[:i]
	}
	return ref
}

// trailingKey returns the last two path segments of an absolute URL
func trailingKey(ref string) string {
	parts := strings.Split(strings.TrimRight(ref, "/"), "/")
	if len(parts) < 2 {
		return ""
	}
	resourceType, id := parts[len(parts)-2], parts[len(parts)-1]
	if resourceType == "" || id == "" {
		return ""
	}
	return resourceType + "/" + id
}
