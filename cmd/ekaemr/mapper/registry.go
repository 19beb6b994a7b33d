// Package mapper turns single FHIR resources into EKA record fragments.
//
// Mappers never follow references. They emit RefSlots which the aggregator
// resolves against the bundle index once every entry has been mapped.
package mapper

import (
	"fmt"
	"sync"

	"github.com/SanteonNL/ekaemr/cmd/ekaemr/fhir/bundle"
	"github.com/SanteonNL/ekaemr/cmd/ekaemr/fhir/coding"
	"github.com/SanteonNL/ekaemr/models/eka"
	"golang.org/x/exp/slices"
)

// Input is everything a mapper may look at
type Input struct {
	Entry    *bundle.Entry
	Resolver *coding.Resolver
}

// RefSlot is an outgoing reference waiting to be resolved
type RefSlot struct {
	Field string
	// Reference is the literal reference, empty when only a display was given
	Reference string
	// TargetType is the expected resource type, used for display-only links
	TargetType string
	Display    string
	Set        func(link *eka.Link)
}

// Fragment is the mapped form of one entry
type Fragment struct {
	EntryIndex   int
	ResourceType string
	ID           string
	Item         eka.Item
	Refs         []RefSlot
}

// MapFunc maps one resource. Errors are *issue.Error values.
type MapFunc func(in Input) (*Fragment, error)

// IdentifyFunc describes an entry when another resource links to it
type IdentifyFunc func(in Input) (eka.Link, error)

// Entry is the mapper of one resource type. An Entry without Map describes
// a type that is only linked to, never emitted into the record.
type Entry struct {
	Map      MapFunc
	Identify IdentifyFunc
}

// Registry maps resource types to their mappers. Register is the only way to add a type.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// DefaultRegistry returns a registry with all built-in mappers
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister("Patient", Entry{Map: MapPatient, Identify: IdentifyPatient})
	r.MustRegister("Practitioner", Entry{Map: MapPractitioner, Identify: IdentifyPractitioner})
	r.MustRegister("Organization", Entry{Map: MapOrganization, Identify: IdentifyOrganization})
	r.MustRegister("Encounter", Entry{Map: MapEncounter, Identify: IdentifyEncounter})
	r.MustRegister("Condition", Entry{Map: MapCondition})
	r.MustRegister("Observation", Entry{Map: MapObservation})
	r.MustRegister("AllergyIntolerance", Entry{Map: MapAllergyIntolerance})
	r.MustRegister("MedicationRequest", Entry{Map: MapMedicationRequest})
	r.MustRegister("Procedure", Entry{Map: MapProcedure})
	r.MustRegister("Medication", Entry{Identify: IdentifyMedication})
	return r
}

// Register adds or replaces the mapper for a resource type
func (r *Registry) Register(resourceType string, e Entry) error {
	if resourceType == "" {
		return fmt.Errorf("resource type is required")
	}
	if e.Map == nil && e.Identify == nil {
		return fmt.Errorf("mapper for %s has neither a Map nor an Identify func", resourceType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[resourceType] = e
	return nil
}

func (r *Registry) MustRegister(resourceType string, e Entry) {
	if err := r.Register(resourceType, e); err != nil {
		panic(err)
	}
}

func (r *Registry) Lookup(resourceType string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[resourceType]
	return e, ok
}

// Supports is the predicate handed to the bundle validator
func (r *Registry) Supports(resourceType string) bool {
	_, ok := r.Lookup(resourceType)
	return ok
}

// Types returns the supported resource types in sorted order
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.entries))
	for t := range r.entries {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}
