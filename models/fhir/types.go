package fhir

import "encoding/json"

// Coding is one term from a terminology system
type Coding struct {
	System  *string `json:"system,omitempty"`
	Version *string `json:"version,omitempty"`
	Code    *string `json:"code,omitempty"`
	Display *string `json:"display,omitempty"`
}

// CodeableConcept is a concept expressed by codings and/or free text
type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   *string  `json:"text,omitempty"`
}

// Reference points at another resource by literal reference
type Reference struct {
	Reference  *string     `json:"reference,omitempty"`
	Type       *string     `json:"type,omitempty"`
	Identifier *Identifier `json:"identifier,omitempty"`
	Display    *string     `json:"display,omitempty"`
}

type Identifier struct {
	Use    *string `json:"use,omitempty"`
	System *string `json:"system,omitempty"`
	Value  *string `json:"value,omitempty"`
}

type HumanName struct {
	Use    *string  `json:"use,omitempty"`
	Text   *string  `json:"text,omitempty"`
	Family *string  `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
	Prefix []string `json:"prefix,omitempty"`
	Suffix []string `json:"suffix,omitempty"`
}

type ContactPoint struct {
	System *string `json:"system,omitempty"` // phone | fax | email | pager | url | sms | other
	Value  *string `json:"value,omitempty"`
	Use    *string `json:"use,omitempty"`
}

type Address struct {
	Use        *string  `json:"use,omitempty"`
	Text       *string  `json:"text,omitempty"`
	Line       []string `json:"line,omitempty"`
	City       *string  `json:"city,omitempty"`
	District   *string  `json:"district,omitempty"`
	State      *string  `json:"state,omitempty"`
	PostalCode *string  `json:"postalCode,omitempty"`
	Country    *string  `json:"country,omitempty"`
}

// Quantity keeps the decimal value as written in the source document
type Quantity struct {
	Value      *json.Number `json:"value,omitempty"`
	Comparator *string      `json:"comparator,omitempty"`
	Unit       *string      `json:"unit,omitempty"`
	System     *string      `json:"system,omitempty"`
	Code       *string      `json:"code,omitempty"`
}

type Period struct {
	Start *DateTime `json:"start,omitempty"`
	End   *DateTime `json:"end,omitempty"`
}

type Annotation struct {
	Text string `json:"text"`
}

type Dosage struct {
	Text  *string          `json:"text,omitempty"`
	Route *CodeableConcept `json:"route,omitempty"`
}
