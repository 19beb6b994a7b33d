package eka

type Patient struct {
	ID          string       `json:"id,omitempty"`
	Name        string       `json:"name,omitempty"`
	Gender      string       `json:"gender,omitempty"`
	BirthDate   string       `json:"birthDate,omitempty"`
	Deceased    bool         `json:"deceased,omitempty"`
	Identifiers []Identifier `json:"identifiers,omitempty"`
	Contacts    []Contact    `json:"contacts,omitempty"`
	Address     string       `json:"address,omitempty"`
}

func (p *Patient) AppendTo(r *Record) { r.Patients = append(r.Patients, p) }

type Practitioner struct {
	ID             string       `json:"id,omitempty"`
	Name           string       `json:"name"`
	Gender         string       `json:"gender,omitempty"`
	Identifiers    []Identifier `json:"identifiers,omitempty"`
	Contacts       []Contact    `json:"contacts,omitempty"`
	Qualifications []Code       `json:"qualifications,omitempty"`
}

func (p *Practitioner) AppendTo(r *Record) { r.Practitioners = append(r.Practitioners, p) }

type Organization struct {
	ID          string       `json:"id,omitempty"`
	Name        string       `json:"name"`
	Types       []Code       `json:"types,omitempty"`
	Identifiers []Identifier `json:"identifiers,omitempty"`
	Contacts    []Contact    `json:"contacts,omitempty"`
	Address     string       `json:"address,omitempty"`
}

func (o *Organization) AppendTo(r *Record) { r.Organizations = append(r.Organizations, o) }

type Encounter struct {
	ID            string  `json:"id,omitempty"`
	Status        string  `json:"status"`
	Class         string  `json:"class,omitempty"`
	Types         []Code  `json:"types,omitempty"`
	Reasons       []Code  `json:"reasons,omitempty"`
	Start         string  `json:"start,omitempty"`
	End           string  `json:"end,omitempty"`
	Patient       *Link   `json:"patient,omitempty"`
	Practitioners []*Link `json:"practitioners,omitempty"`
	Facility      *Link   `json:"facility,omitempty"`
}

func (e *Encounter) AppendTo(r *Record) { r.Encounters = append(r.Encounters, e) }

// Diagnosis is the EKA form of a FHIR Condition
type Diagnosis struct {
	ID                 string   `json:"id,omitempty"`
	Code               Code     `json:"code"`
	ClinicalStatus     string   `json:"clinicalStatus,omitempty"`
	VerificationStatus string   `json:"verificationStatus,omitempty"`
	Severity           *Code    `json:"severity,omitempty"`
	Categories         []Code   `json:"categories,omitempty"`
	BodySites          []Code   `json:"bodySites,omitempty"`
	Onset              string   `json:"onset,omitempty"`
	Abatement          string   `json:"abatement,omitempty"`
	RecordedDate       string   `json:"recordedDate,omitempty"`
	Patient            *Link    `json:"patient,omitempty"`
	Encounter          *Link    `json:"encounter,omitempty"`
	Recorder           *Link    `json:"recorder,omitempty"`
	Notes              []string `json:"notes,omitempty"`
}

func (d *Diagnosis) AppendTo(r *Record) { r.Diagnoses = append(r.Diagnoses, d) }

// ObservationKind decides which collection an observation lands in
type ObservationKind string

const (
	ObservationVital ObservationKind = "vital"
	ObservationLab   ObservationKind = "lab"
	ObservationOther ObservationKind = "other"
)

type Observation struct {
	ID             string                 `json:"id,omitempty"`
	Kind           ObservationKind        `json:"-"`
	Code           Code                   `json:"code"`
	Status         string                 `json:"status"`
	Value          *ObservationValue      `json:"value,omitempty"`
	Interpretation []Code                 `json:"interpretation,omitempty"`
	ReferenceRange string                 `json:"referenceRange,omitempty"`
	Components     []ObservationComponent `json:"components,omitempty"`
	Effective      string                 `json:"effective,omitempty"`
	Patient        *Link                  `json:"patient,omitempty"`
	Encounter      *Link                  `json:"encounter,omitempty"`
	Performers     []*Link                `json:"performers,omitempty"`
	Notes          []string               `json:"notes,omitempty"`
}

func (o *Observation) AppendTo(r *Record) {
	switch o.Kind {
	case ObservationVital:
		r.Vitals = append(r.Vitals, o)
	case ObservationLab:
		r.LabResults = append(r.LabResults, o)
	default:
		r.Observations = append(r.Observations, o)
	}
}

// ObservationValue holds exactly one of its fields
type ObservationValue struct {
	Quantity *Quantity `json:"quantity,omitempty"`
	Code     *Code     `json:"code,omitempty"`
	Text     string    `json:"text,omitempty"`
	Boolean  *bool     `json:"boolean,omitempty"`
}

type ObservationComponent struct {
	Code  Code              `json:"code"`
	Value *ObservationValue `json:"value,omitempty"`
}

type Allergy struct {
	ID                 string     `json:"id,omitempty"`
	Code               Code       `json:"code"`
	ClinicalStatus     string     `json:"clinicalStatus,omitempty"`
	VerificationStatus string     `json:"verificationStatus,omitempty"`
	Type               string     `json:"type,omitempty"`
	Categories         []string   `json:"categories,omitempty"`
	Criticality        string     `json:"criticality,omitempty"`
	Reactions          []Reaction `json:"reactions,omitempty"`
	Onset              string     `json:"onset,omitempty"`
	RecordedDate       string     `json:"recordedDate,omitempty"`
	Patient            *Link      `json:"patient,omitempty"`
	Encounter          *Link      `json:"encounter,omitempty"`
	Notes              []string   `json:"notes,omitempty"`
}

func (a *Allergy) AppendTo(r *Record) { r.Allergies = append(r.Allergies, a) }

type Reaction struct {
	Manifestations []Code `json:"manifestations,omitempty"`
	Severity       string `json:"severity,omitempty"`
	Description    string `json:"description,omitempty"`
}

// Medication is the EKA form of a FHIR MedicationRequest
type Medication struct {
	ID         string   `json:"id,omitempty"`
	Medication *Code    `json:"medication,omitempty"`
	Product    *Link    `json:"product,omitempty"`
	Status     string   `json:"status"`
	Intent     string   `json:"intent,omitempty"`
	Dosage     []string `json:"dosage,omitempty"`
	AuthoredOn string   `json:"authoredOn,omitempty"`
	Patient    *Link    `json:"patient,omitempty"`
	Encounter  *Link    `json:"encounter,omitempty"`
	Prescriber *Link    `json:"prescriber,omitempty"`
	Notes      []string `json:"notes,omitempty"`
}

func (m *Medication) AppendTo(r *Record) { r.Medications = append(r.Medications, m) }

type Procedure struct {
	ID        string   `json:"id,omitempty"`
	Code      Code     `json:"code"`
	Status    string   `json:"status"`
	Category  *Code    `json:"category,omitempty"`
	BodySites []Code   `json:"bodySites,omitempty"`
	Outcome   *Code    `json:"outcome,omitempty"`
	Performed string   `json:"performed,omitempty"`
	Patient   *Link    `json:"patient,omitempty"`
	Encounter *Link    `json:"encounter,omitempty"`
	Notes     []string `json:"notes,omitempty"`
}

func (p *Procedure) AppendTo(r *Record) { r.Procedures = append(r.Procedures, p) }
