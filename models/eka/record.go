// Package eka holds the EKA EMR record produced by the converter.
//
// Every value in a Record is copied out of the source Bundle, so a Record
// can be serialized and kept after the Bundle is gone.
package eka

const (
	SchemaVersion = "eka-emr/1.0"
	SourceFHIRR4  = "fhir-r4"
)

// Record is the converted document
type Record struct {
	SchemaVersion string     `json:"schemaVersion"`
	RecordID      string     `json:"recordId"`
	Source        string     `json:"source"`
	ConvertedAt   string     `json:"convertedAt"`
	Bundle        BundleInfo `json:"bundle"`

	Patients      []*Patient      `json:"patients"`
	Practitioners []*Practitioner `json:"practitioners"`
	Organizations []*Organization `json:"organizations"`
	Encounters    []*Encounter    `json:"encounters"`
	Diagnoses     []*Diagnosis    `json:"diagnoses"`
	Vitals        []*Observation  `json:"vitals"`
	LabResults    []*Observation  `json:"labResults"`
	Observations  []*Observation  `json:"observations"`
	Allergies     []*Allergy      `json:"allergies"`
	Medications   []*Medication   `json:"medications"`
	Procedures    []*Procedure    `json:"procedures"`
}

type BundleInfo struct {
	ID         string `json:"id,omitempty"`
	Type       string `json:"type"`
	Timestamp  string `json:"timestamp,omitempty"`
	EntryCount int    `json:"entryCount"`
}

// NewRecord returns a record with every collection initialized, so empty
// collections serialize as [] instead of null.
func NewRecord() *Record {
	return &Record{
		SchemaVersion: SchemaVersion,
		Source:        SourceFHIRR4,
		Patients:      []*Patient{},
		Practitioners: []*Practitioner{},
		Organizations: []*Organization{},
		Encounters:    []*Encounter{},
		Diagnoses:     []*Diagnosis{},
		Vitals:        []*Observation{},
		LabResults:    []*Observation{},
		Observations:  []*Observation{},
		Allergies:     []*Allergy{},
		Medications:   []*Medication{},
		Procedures:    []*Procedure{},
	}
}

// Item is a record fragment that knows which collection it belongs to
type Item interface {
	AppendTo(r *Record)
}

// Code is a resolved clinical code. System and Code are empty for text-only codes.
type Code struct {
	System      string `json:"system,omitempty"`
	Code        string `json:"code,omitempty"`
	Display     string `json:"display"`
	Translation *Code  `json:"translation,omitempty"`
}

// Link is a resolved reference with the identity of its target inlined
type Link struct {
	ResourceType string      `json:"resourceType"`
	ID           string      `json:"id,omitempty"`
	Display      string      `json:"display,omitempty"`
	Code         *Code       `json:"code,omitempty"`
	Gender       string      `json:"gender,omitempty"`
	BirthDate    string      `json:"birthDate,omitempty"`
	Identifier   *Identifier `json:"identifier,omitempty"`
}

type Identifier struct {
	System string `json:"system,omitempty"`
	Value  string `json:"value"`
}

type Contact struct {
	System string `json:"system,omitempty"`
	Value  string `json:"value"`
	Use    string `json:"use,omitempty"`
}

type Quantity struct {
	Value      string `json:"value,omitempty"`
	Comparator string `json:"comparator,omitempty"`
	Unit       string `json:"unit,omitempty"`
}
