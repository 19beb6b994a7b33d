package fhir

import "encoding/json"

type Patient struct {
	Id               *string        `json:"id,omitempty"`
	Active           *bool          `json:"active,omitempty"`
	Identifier       []Identifier   `json:"identifier,omitempty"`
	Name             []HumanName    `json:"name,omitempty"`
	Telecom          []ContactPoint `json:"telecom,omitempty"`
	Gender           *string        `json:"gender,omitempty"`
	BirthDate        *Date          `json:"birthDate,omitempty"`
	DeceasedBoolean  *bool          `json:"deceasedBoolean,omitempty"`
	DeceasedDateTime *DateTime      `json:"deceasedDateTime,omitempty"`
	Address          []Address      `json:"address,omitempty"`
}

type Practitioner struct {
	Id            *string                     `json:"id,omitempty"`
	Identifier    []Identifier                `json:"identifier,omitempty"`
	Name          []HumanName                 `json:"name,omitempty"`
	Telecom       []ContactPoint              `json:"telecom,omitempty"`
	Gender        *string                     `json:"gender,omitempty"`
	Qualification []PractitionerQualification `json:"qualification,omitempty"`
}

type PractitionerQualification struct {
	Code CodeableConcept `json:"code"`
}

type Organization struct {
	Id         *string           `json:"id,omitempty"`
	Identifier []Identifier      `json:"identifier,omitempty"`
	Type       []CodeableConcept `json:"type,omitempty"`
	Name       *string           `json:"name,omitempty"`
	Telecom    []ContactPoint    `json:"telecom,omitempty"`
	Address    []Address         `json:"address,omitempty"`
}

type Encounter struct {
	Id              *string                `json:"id,omitempty"`
	Status          *string                `json:"status,omitempty"`
	Class           *Coding                `json:"class,omitempty"`
	Type            []CodeableConcept      `json:"type,omitempty"`
	Subject         *Reference             `json:"subject,omitempty"`
	Participant     []EncounterParticipant `json:"participant,omitempty"`
	Period          *Period                `json:"period,omitempty"`
	ReasonCode      []CodeableConcept      `json:"reasonCode,omitempty"`
	ServiceProvider *Reference             `json:"serviceProvider,omitempty"`
}

type EncounterParticipant struct {
	Type       []CodeableConcept `json:"type,omitempty"`
	Individual *Reference        `json:"individual,omitempty"`
}

type Condition struct {
	Id                 *string           `json:"id,omitempty"`
	ClinicalStatus     *CodeableConcept  `json:"clinicalStatus,omitempty"`
	VerificationStatus *CodeableConcept  `json:"verificationStatus,omitempty"`
	Category           []CodeableConcept `json:"category,omitempty"`
	Severity           *CodeableConcept  `json:"severity,omitempty"`
	Code               *CodeableConcept  `json:"code,omitempty"`
	BodySite           []CodeableConcept `json:"bodySite,omitempty"`
	Subject            *Reference        `json:"subject,omitempty"`
	Encounter          *Reference        `json:"encounter,omitempty"`
	OnsetDateTime      *DateTime         `json:"onsetDateTime,omitempty"`
	OnsetString        *string           `json:"onsetString,omitempty"`
	AbatementDateTime  *DateTime         `json:"abatementDateTime,omitempty"`
	RecordedDate       *DateTime         `json:"recordedDate,omitempty"`
	Recorder           *Reference        `json:"recorder,omitempty"`
	Note               []Annotation      `json:"note,omitempty"`
}

type Observation struct {
	Id                   *string                `json:"id,omitempty"`
	Status               *string                `json:"status,omitempty"`
	Category             []CodeableConcept      `json:"category,omitempty"`
	Code                 *CodeableConcept       `json:"code,omitempty"`
	Subject              *Reference             `json:"subject,omitempty"`
	Encounter            *Reference             `json:"encounter,omitempty"`
	EffectiveDateTime    *DateTime              `json:"effectiveDateTime,omitempty"`
	EffectivePeriod      *Period                `json:"effectivePeriod,omitempty"`
	Issued               *DateTime              `json:"issued,omitempty"`
	Performer            []Reference            `json:"performer,omitempty"`
	ValueQuantity        *Quantity              `json:"valueQuantity,omitempty"`
	ValueCodeableConcept *CodeableConcept       `json:"valueCodeableConcept,omitempty"`
	ValueString          *string                `json:"valueString,omitempty"`
	ValueBoolean         *bool                  `json:"valueBoolean,omitempty"`
	ValueInteger         *json.Number           `json:"valueInteger,omitempty"`
	Interpretation       []CodeableConcept      `json:"interpretation,omitempty"`
	Note                 []Annotation           `json:"note,omitempty"`
	ReferenceRange       []ObservationRange     `json:"referenceRange,omitempty"`
	Component            []ObservationComponent `json:"component,omitempty"`
}

type ObservationRange struct {
	Low  *Quantity `json:"low,omitempty"`
	High *Quantity `json:"high,omitempty"`
	Text *string   `json:"text,omitempty"`
}

type ObservationComponent struct {
	Code                 CodeableConcept  `json:"code"`
	ValueQuantity        *Quantity        `json:"valueQuantity,omitempty"`
	ValueCodeableConcept *CodeableConcept `json:"valueCodeableConcept,omitempty"`
	ValueString          *string          `json:"valueString,omitempty"`
}

type AllergyIntolerance struct {
	Id                 *string                      `json:"id,omitempty"`
	ClinicalStatus     *CodeableConcept             `json:"clinicalStatus,omitempty"`
	VerificationStatus *CodeableConcept             `json:"verificationStatus,omitempty"`
	Type               *string                      `json:"type,omitempty"`
	Category           []string                     `json:"category,omitempty"`
	Criticality        *string                      `json:"criticality,omitempty"`
	Code               *CodeableConcept             `json:"code,omitempty"`
	Patient            *Reference                   `json:"patient,omitempty"`
	Encounter          *Reference                   `json:"encounter,omitempty"`
	OnsetDateTime      *DateTime                    `json:"onsetDateTime,omitempty"`
	RecordedDate       *DateTime                    `json:"recordedDate,omitempty"`
	Reaction           []AllergyIntoleranceReaction `json:"reaction,omitempty"`
	Note               []Annotation                 `json:"note,omitempty"`
}

type AllergyIntoleranceReaction struct {
	Manifestation []CodeableConcept `json:"manifestation,omitempty"`
	Severity      *string           `json:"severity,omitempty"`
	Description   *string           `json:"description,omitempty"`
}

type MedicationRequest struct {
	Id                        *string          `json:"id,omitempty"`
	Status                    *string          `json:"status,omitempty"`
	Intent                    *string          `json:"intent,omitempty"`
	MedicationCodeableConcept *CodeableConcept `json:"medicationCodeableConcept,omitempty"`
	MedicationReference       *Reference       `json:"medicationReference,omitempty"`
	Subject                   *Reference       `json:"subject,omitempty"`
	Encounter                 *Reference       `json:"encounter,omitempty"`
	AuthoredOn                *DateTime        `json:"authoredOn,omitempty"`
	Requester                 *Reference       `json:"requester,omitempty"`
	DosageInstruction         []Dosage         `json:"dosageInstruction,omitempty"`
	Note                      []Annotation     `json:"note,omitempty"`
}

type Medication struct {
	Id         *string          `json:"id,omitempty"`
	Identifier []Identifier     `json:"identifier,omitempty"`
	Code       *CodeableConcept `json:"code,omitempty"`
	Status     *string          `json:"status,omitempty"`
	Form       *CodeableConcept `json:"form,omitempty"`
}

type Procedure struct {
	Id                *string           `json:"id,omitempty"`
	Status            *string           `json:"status,omitempty"`
	Category          *CodeableConcept  `json:"category,omitempty"`
	Code              *CodeableConcept  `json:"code,omitempty"`
	Subject           *Reference        `json:"subject,omitempty"`
	Encounter         *Reference        `json:"encounter,omitempty"`
	PerformedDateTime *DateTime         `json:"performedDateTime,omitempty"`
	PerformedPeriod   *Period           `json:"performedPeriod,omitempty"`
	BodySite          []CodeableConcept `json:"bodySite,omitempty"`
	Outcome           *CodeableConcept  `json:"outcome,omitempty"`
	Note              []Annotation      `json:"note,omitempty"`
}
