// Package issue defines the conversion error taxonomy and the strict/lenient policy.
package issue

import (
	"fmt"
	"strings"
)

// Kind classifies a conversion error
type Kind string

const (
	KindSchema               Kind = "SchemaError"
	KindUnsupportedResource  Kind = "UnsupportedResourceType"
	KindDuplicateResourceID  Kind = "DuplicateResourceId"
	KindNoCodingFound        Kind = "NoCodingFound"
	KindMissingRequiredField Kind = "MissingRequiredField"
	KindUnresolvedReference  Kind = "UnresolvedReferenceError"
)

// Mode is the error policy threaded through every conversion step
type Mode int

const (
	Strict Mode = iota
	Lenient
)

func (m Mode) String() string {
	switch m {
	case Strict:
		return "strict"
	case Lenient:
		return "lenient"
	default:
		return "unknown"
	}
}

// ModeOf maps the lenient flag of the public options to a Mode
func ModeOf(lenient bool) Mode {
	if lenient {
		return Lenient
	}
	return Strict
}

// NoEntry is the EntryIndex of errors that concern the Bundle itself
const NoEntry = -1

// Error is a conversion error with enough context to find the offending input
type Error struct {
	Kind         Kind   `json:"kind"`
	Detail       string `json:"detail"`
	EntryIndex   int    `json:"entryIndex"`
	ResourceType string `json:"resourceType,omitempty"`
	Field        string `json:"field,omitempty"`
	ID           string `json:"id,omitempty"`
	FromID       string `json:"fromId,omitempty"`
	ToID         string `json:"toId,omitempty"`
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.EntryIndex >= 0 {
		fmt.Fprintf(&b, " at entry[%d]", e.EntryIndex)
	}
	if e.ResourceType != "" {
		fmt.Fprintf(&b, " (%s)", e.ResourceType)
	}
	b.WriteString(": ")
	b.WriteString(e.Detail)
	return b.String()
}

// Is makes errors.Is match on Kind, so the Err* values below work as sentinels
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Detail == ""
}

// Recoverable reports whether lenient mode may report this error and carry on
func (e *Error) Recoverable() bool {
	switch e.Kind {
	case KindUnsupportedResource, KindDuplicateResourceID, KindMissingRequiredField, KindUnresolvedReference:
		return true
	default:
		return false
	}
}

// WithEntry returns a copy of e scoped to an entry
func (e *Error) WithEntry(index int, resourceType string) *Error {
	c := *e
	c.EntryIndex = index
	if c.ResourceType == "" {
		c.ResourceType = resourceType
	}
	return &c
}

var (
	ErrSchema               = &Error{Kind: KindSchema}
	ErrUnsupportedResource  = &Error{Kind: KindUnsupportedResource}
	ErrDuplicateResourceID  = &Error{Kind: KindDuplicateResourceID}
	ErrNoCodingFound        = &Error{Kind: KindNoCodingFound}
	ErrMissingRequiredField = &Error{Kind: KindMissingRequiredField}
	ErrUnresolvedReference  = &Error{Kind: KindUnresolvedReference}
)

func NewSchemaError(entryIndex int, field, format string, args ...any) *Error {
	return &Error{
		Kind:       KindSchema,
		Detail:     fmt.Sprintf(format, args...),
		EntryIndex: entryIndex,
		Field:      field,
	}
}

func NewUnsupportedResourceType(entryIndex int, resourceType string) *Error {
	return &Error{
		Kind:         KindUnsupportedResource,
		Detail:       fmt.Sprintf("resource type %q is not supported", resourceType),
		EntryIndex:   entryIndex,
		ResourceType: resourceType,
	}
}

func NewDuplicateResourceID(entryIndex int, resourceType, id string, firstIndex int) *Error {
	return &Error{
		Kind:         KindDuplicateResourceID,
		Detail:       fmt.Sprintf("id %q already used by entry[%d]", id, firstIndex),
		EntryIndex:   entryIndex,
		ResourceType: resourceType,
		ID:           id,
	}
}

// NewNoCodingFound is raised by the coding resolver, which has no entry context;
// mappers scope it with WithEntry.
func NewNoCodingFound(field, concept string) *Error {
	return &Error{
		Kind:       KindNoCodingFound,
		Detail:     fmt.Sprintf("no coding from a preferred system and no text in %s: %s", field, concept),
		EntryIndex: NoEntry,
		Field:      field,
	}
}

func NewMissingRequiredField(resourceType, field string) *Error {
	return &Error{
		Kind:         KindMissingRequiredField,
		Detail:       fmt.Sprintf("%s.%s is required", resourceType, field),
		EntryIndex:   NoEntry,
		ResourceType: resourceType,
		Field:        field,
	}
}

func NewUnresolvedReference(entryIndex int, resourceType, field, fromID, toID string) *Error {
	return &Error{
		Kind:         KindUnresolvedReference,
		Detail:       fmt.Sprintf("%s references %q which is not in the bundle", field, toID),
		EntryIndex:   entryIndex,
		ResourceType: resourceType,
		Field:        field,
		FromID:       fromID,
		ToID:         toID,
	}
}
