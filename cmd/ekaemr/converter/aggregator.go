package converter

import (
	"fmt"

	"github.com/SanteonNL/ekaemr/cmd/ekaemr/fhir/bundle"
	"github.com/SanteonNL/ekaemr/cmd/ekaemr/fhir/coding"
	"github.com/SanteonNL/ekaemr/cmd/ekaemr/issue"
	"github.com/SanteonNL/ekaemr/cmd/ekaemr/mapper"
	"github.com/SanteonNL/ekaemr/models/eka"
	"golang.org/x/exp/slices"
)

// Meta holds the document level defaults of a record
type Meta struct {
	RecordID    string
	ConvertedAt string
	Bundle      eka.BundleInfo
}

// Aggregate resolves the references of every fragment against the index and
// merges the fragments into one record in entry order. The resolver is handed
// to the Identify funcs of link targets. Unresolved references
// fail in strict mode; in lenient mode they are reported and the link stays empty.
func Aggregate(fragments []*mapper.Fragment, idx *bundle.Index, registry *mapper.Registry, resolver *coding.Resolver, meta Meta, mode issue.Mode) (*eka.Record, []*issue.Error, error) {
	record := eka.NewRecord()
	record.RecordID = meta.RecordID
	record.ConvertedAt = meta.ConvertedAt
	record.Bundle = meta.Bundle

	ordered := slices.Clone(fragments)
	slices.SortStableFunc(ordered, func(a, b *mapper.Fragment) int {
		return a.EntryIndex - b.EntryIndex
	})

	links := &linker{idx: idx, registry: registry, resolver: resolver, identities: make(map[int]eka.Link)}
	var reported []*issue.Error
	for _, f := range ordered {
		for _, slot := range f.Refs {
			link, err := links.resolve(f, slot)
			if err != nil {
				if mode == issue.Lenient && err.Recoverable() {
					reported = append(reported, err)
					continue
				}
				return nil, nil, err
			}
			slot.Set(link)
		}
		f.Item.AppendTo(record)
	}

	return record, reported, nil
}

// linker builds links and remembers target identities for the call
type linker struct {
	idx        *bundle.Index
	registry   *mapper.Registry
	resolver   *coding.Resolver
	identities map[int]eka.Link
}

func (l *linker) resolve(f *mapper.Fragment, slot mapper.RefSlot) (*eka.Link, *issue.Error) {
	if slot.Reference == "" {
		return &eka.Link{ResourceType: slot.TargetType, Display: slot.Display}, nil
	}

	target, ok := l.idx.Resolve(slot.Reference)
	if !ok {
		return nil, issue.NewUnresolvedReference(f.EntryIndex, f.ResourceType, slot.Field, fromID(f), slot.Reference)
	}

	identity, err := l.identify(target)
	if err != nil {
		return nil, err
	}

	link := identity
	if link.Identifier != nil {
		id := *link.Identifier
		link.Identifier = &id
	}
	if link.Code != nil {
		code := *link.Code
		link.Code = &code
	}
	if link.Display == "" {
		link.Display = slot.Display
	}
	return &link, nil
}

func (l *linker) identify(target *bundle.Entry) (eka.Link, *issue.Error) {
	if link, ok := l.identities[target.Index]; ok {
		return link, nil
	}

	var link eka.Link
	if m, ok := l.registry.Lookup(target.ResourceType); ok && m.Identify != nil && target.Supported {
		identified, err := m.Identify(mapper.Input{Entry: target, Resolver: l.resolver})
		if err != nil {
			if ie, ok := err.(*issue.Error); ok {
				return eka.Link{}, ie
			}
			return eka.Link{}, issue.NewSchemaError(target.Index, "", "failed to identify %s: %v", target.Label(), err)
		}
		link = identified
	}

	link.ResourceType = target.ResourceType
	link.ID = target.ID
	if link.ID == "" {
		link.ID = target.FullURL
	}
	l.identities[target.Index] = link
	return link, nil
}

func fromID(f *mapper.Fragment) string {
	if f.ID != "" {
		return f.ResourceType + "/" + f.ID
	}
	return fmt.Sprintf("%s at entry[%d]", f.ResourceType, f.EntryIndex)
}
