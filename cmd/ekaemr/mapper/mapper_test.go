package mapper

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/SanteonNL/ekaemr/cmd/ekaemr/fhir/bundle"
	"github.com/SanteonNL/ekaemr/cmd/ekaemr/fhir/coding"
	"github.com/SanteonNL/ekaemr/cmd/ekaemr/issue"
	"github.com/SanteonNL/ekaemr/models/eka"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(resourceType, id, resource string) *bundle.Entry {
	return &bundle.Entry{
		Index:        3,
		ResourceType: resourceType,
		ID:           id,
		Resource:     json.RawMessage(resource),
		Supported:    true,
	}
}

func input(e *bundle.Entry) Input {
	return Input{Entry: e, Resolver: coding.NewResolver(coding.Config{}, nil, zerolog.Nop())}
}

func requireIssue(t *testing.T, err error, target *issue.Error, field string) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, target), "got %v", err)

	var ie *issue.Error
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, field, ie.Field)
	assert.Equal(t, 3, ie.EntryIndex)
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{
		"AllergyIntolerance", "Condition", "Encounter", "Medication", "MedicationRequest", "Observation",
		"Organization", "Patient", "Practitioner", "Procedure",
	}, r.Types())
	assert.True(t, r.Supports("Condition"))
	assert.False(t, r.Supports("Basic"))

	e, ok := r.Lookup("Patient")
	require.True(t, ok)
	assert.NotNil(t, e.Identify)

	med, ok := r.Lookup("Medication")
	require.True(t, ok)
	assert.Nil(t, med.Map)
	assert.NotNil(t, med.Identify)
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register("", Entry{Map: MapPatient}))
	assert.Error(t, r.Register("Basic", Entry{}))

	require.NoError(t, r.Register("Basic", Entry{Map: MapPatient}))
	assert.True(t, r.Supports("Basic"))
	assert.Panics(t, func() { r.MustRegister("Other", Entry{}) })

	require.NoError(t, r.Register("Substance", Entry{Identify: IdentifyMedication}))
	assert.True(t, r.Supports("Substance"))
}

func TestMapPatient(t *testing.T) {
	e := entry("Patient", "p1", `{
		"resourceType": "Patient", "id": "p1", "gender": "female", "birthDate": "1980-04",
		"name": [{"use": "nickname", "given": ["Annie"]}, {"use": "official", "family": "Jansen", "given": ["Anna", "Maria"]}],
		"identifier": [{"system": "http://fhir.nl/fhir/NamingSystem/bsn", "value": "999911120"}, {"system": "urn:x"}],
		"telecom": [{"system": "phone", "value": "+31 20 123", "use": "home"}],
		"address": [{"line": ["Dorpsstraat 1"], "city": "Utrecht", "country": "NL"}],
		"deceasedDateTime": "2020-01-01"
	}`)

	f, err := MapPatient(input(e))
	require.NoError(t, err)
	assert.Equal(t, 3, f.EntryIndex)
	assert.Empty(t, f.Refs)

	p := f.Item.(*eka.Patient)
	assert.Equal(t, "Anna Maria Jansen", p.Name)
	assert.Equal(t, "1980-04", p.BirthDate)
	assert.True(t, p.Deceased)
	assert.Equal(t, []eka.Identifier{{System: "http://fhir.nl/fhir/NamingSystem/bsn", Value: "999911120"}}, p.Identifiers)
	assert.Equal(t, "Dorpsstraat 1, Utrecht, NL", p.Address)
	require.Len(t, p.Contacts, 1)

	link, err := IdentifyPatient(input(e))
	require.NoError(t, err)
	assert.Equal(t, "Anna Maria Jansen", link.Display)
	assert.Equal(t, "female", link.Gender)
	assert.Equal(t, "1980-04", link.BirthDate)
	assert.Equal(t, "999911120", link.Identifier.Value)
}

func TestMapPatient_Empty(t *testing.T) {
	f, err := MapPatient(input(entry("Patient", "", `{"resourceType":"Patient"}`)))
	require.NoError(t, err)
	assert.Equal(t, &eka.Patient{}, f.Item)
}

func TestMap_Undecodable(t *testing.T) {
	_, err := MapPatient(input(entry("Patient", "p1", `{"resourceType":"Patient","birthDate":"not-a-date"}`)))
	requireIssue(t, err, issue.ErrSchema, "")

	_, err = MapCondition(input(entry("Condition", "c1", `{"resourceType":"Condition","code":"E11"}`)))
	requireIssue(t, err, issue.ErrSchema, "")
}

func TestRequiredFields(t *testing.T) {
	tests := []struct {
		name     string
		mapFunc  MapFunc
		resource string
		field    string
	}{
		{"practitioner name", MapPractitioner, `{"resourceType":"Practitioner","name":[{"use":"official"}]}`, "name"},
		{"organization name", MapOrganization, `{"resourceType":"Organization","name":"  "}`, "name"},
		{"encounter status", MapEncounter, `{"resourceType":"Encounter"}`, "status"},
		{"condition code", MapCondition, `{"resourceType":"Condition"}`, "code"},
		{"observation status", MapObservation, `{"resourceType":"Observation","code":{"text":"x"}}`, "status"},
		{"observation code", MapObservation, `{"resourceType":"Observation","status":"final"}`, "code"},
		{"allergy code", MapAllergyIntolerance, `{"resourceType":"AllergyIntolerance","patient":{"reference":"Patient/p1"}}`, "code"},
		{"allergy patient", MapAllergyIntolerance, `{"resourceType":"AllergyIntolerance","code":{"text":"peanut"}}`, "patient"},
		{"medication status", MapMedicationRequest, `{"resourceType":"MedicationRequest","medicationCodeableConcept":{"text":"x"}}`, "status"},
		{"medication[x]", MapMedicationRequest, `{"resourceType":"MedicationRequest","status":"active"}`, "medication[x]"},
		{"procedure status", MapProcedure, `{"resourceType":"Procedure","code":{"text":"x"}}`, "status"},
		{"procedure code", MapProcedure, `{"resourceType":"Procedure","status":"completed"}`, "code"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var header struct {
				ResourceType string `json:"resourceType"`
			}
			require.NoError(t, json.Unmarshal([]byte(tt.resource), &header))

			_, err := tt.mapFunc(input(entry(header.ResourceType, "x", tt.resource)))
			requireIssue(t, err, issue.ErrMissingRequiredField, tt.field)

			var ie *issue.Error
			require.True(t, errors.As(err, &ie))
			assert.Equal(t, header.ResourceType, ie.ResourceType)
			assert.True(t, ie.Recoverable())
		})
	}
}

func TestMapCondition(t *testing.T) {
	e := entry("Condition", "c1", `{
		"resourceType": "Condition", "id": "c1",
		"clinicalStatus": {"coding": [{"system": "http://terminology.hl7.org/CodeSystem/condition-clinical", "code": "active"}]},
		"verificationStatus": {"text": "confirmed"},
		"code": {"coding": [{"system": "http://hl7.org/fhir/sid/icd-10", "code": "E11"}, {"system": "http://snomed.info/sct", "code": "44054006", "display": "Diabetes mellitus type 2"}], "text": "Diabetes"},
		"severity": {"coding": [{"system": "urn:local", "code": "2"}]},
		"subject": {"reference": "Patient/p1"},
		"encounter": {"reference": "urn:uuid:enc-1", "display": "GP visit"},
		"onsetString": "childhood",
		"note": [{"text": "diet controlled"}, {"text": " "}]
	}`)

	f, err := MapCondition(input(e))
	require.NoError(t, err)

	d := f.Item.(*eka.Diagnosis)
	assert.Equal(t, eka.Code{System: coding.SystemSNOMED, Code: "44054006", Display: "Diabetes mellitus type 2"}, d.Code)
	assert.Equal(t, "active", d.ClinicalStatus)
	assert.Equal(t, "confirmed", d.VerificationStatus)
	assert.Nil(t, d.Severity)
	assert.Equal(t, "childhood", d.Onset)
	assert.Equal(t, []string{"diet controlled"}, d.Notes)

	require.Len(t, f.Refs, 2)
	assert.Equal(t, RefSlot{Field: "subject", Reference: "Patient/p1", TargetType: "Patient"}, withoutSet(f.Refs[0]))
	assert.Equal(t, RefSlot{Field: "encounter", Reference: "urn:uuid:enc-1", TargetType: "Encounter", Display: "GP visit"}, withoutSet(f.Refs[1]))

	f.Refs[0].Set(&eka.Link{ResourceType: "Patient", ID: "p1"})
	assert.Equal(t, "p1", d.Patient.ID)
}

func withoutSet(s RefSlot) RefSlot {
	s.Set = nil
	return s
}

func TestMapCondition_NoCodingFound(t *testing.T) {
	e := entry("Condition", "c1", `{"resourceType":"Condition","code":{"coding":[{"system":"urn:local","code":"X"}]}}`)
	_, err := MapCondition(input(e))
	requireIssue(t, err, issue.ErrNoCodingFound, "code")
}

func TestMapObservation(t *testing.T) {
	tests := []struct {
		name     string
		category string
		kind     eka.ObservationKind
	}{
		{"vital", "vital-signs", eka.ObservationVital},
		{"lab", "laboratory", eka.ObservationLab},
		{"other", "survey", eka.ObservationOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := entry("Observation", "o1", `{
				"resourceType": "Observation", "status": "final",
				"category": [{"coding": [{"system": "http://terminology.hl7.org/CodeSystem/observation-category", "code": "`+tt.category+`"}]}],
				"code": {"coding": [{"system": "http://loinc.org", "code": "8867-4", "display": "Heart rate"}]},
				"valueQuantity": {"value": 72.0, "unit": "beats/minute"},
				"referenceRange": [{"low": {"value": 60, "unit": "/min"}, "high": {"value": 100, "unit": "/min"}}],
				"effectiveDateTime": "2024-05-01T10:00:00+02:00",
				"performer": [{"reference": "Practitioner/dr1"}, {"display": "Nurse Joy"}]
			}`)

			f, err := MapObservation(input(e))
			require.NoError(t, err)

			o := f.Item.(*eka.Observation)
			assert.Equal(t, tt.kind, o.Kind)
			assert.Equal(t, "8867-4", o.Code.Code)
			assert.Equal(t, &eka.Quantity{Value: "72.0", Unit: "beats/minute"}, o.Value.Quantity)
			assert.Equal(t, "60-100 /min", o.ReferenceRange)
			assert.Equal(t, "2024-05-01T10:00:00+02:00", o.Effective)
			require.Len(t, f.Refs, 2)
			assert.Equal(t, "Nurse Joy", f.Refs[1].Display)
		})
	}
}

func TestMapObservation_ValuesAndComponents(t *testing.T) {
	e := entry("Observation", "bp", `{
		"resourceType": "Observation", "status": "final",
		"code": {"text": "Blood pressure"},
		"valueBoolean": false,
		"component": [
			{"code": {"coding": [{"system": "http://loinc.org", "code": "8480-6", "display": "Systolic"}]}, "valueQuantity": {"value": 120, "unit": "mmHg"}},
			{"code": {"coding": [{"system": "http://loinc.org", "code": "8462-4", "display": "Diastolic"}]}, "valueString": "80"}
		]
	}`)

	f, err := MapObservation(input(e))
	require.NoError(t, err)

	o := f.Item.(*eka.Observation)
	assert.Equal(t, eka.Code{Display: "Blood pressure"}, o.Code)
	require.NotNil(t, o.Value.Boolean)
	assert.False(t, *o.Value.Boolean)
	require.Len(t, o.Components, 2)
	assert.Equal(t, "120", o.Components[0].Value.Quantity.Value)
	assert.Equal(t, "80", o.Components[1].Value.Text)
}

func TestMapAllergyIntolerance(t *testing.T) {
	e := entry("AllergyIntolerance", "a1", `{
		"resourceType": "AllergyIntolerance",
		"clinicalStatus": {"coding": [{"system": "http://terminology.hl7.org/CodeSystem/allergyintolerance-clinical", "code": "active"}]},
		"type": "allergy", "category": ["food"], "criticality": "high",
		"code": {"coding": [{"system": "http://snomed.info/sct", "code": "91935009", "display": "Allergy to peanuts"}]},
		"patient": {"reference": "Patient/p1"},
		"reaction": [{"manifestation": [{"text": "Hives"}], "severity": "moderate"}]
	}`)

	f, err := MapAllergyIntolerance(input(e))
	require.NoError(t, err)

	a := f.Item.(*eka.Allergy)
	assert.Equal(t, "91935009", a.Code.Code)
	assert.Equal(t, "active", a.ClinicalStatus)
	assert.Equal(t, []string{"food"}, a.Categories)
	require.Len(t, a.Reactions, 1)
	assert.Equal(t, "Hives", a.Reactions[0].Manifestations[0].Display)
	require.Len(t, f.Refs, 1)
	assert.Equal(t, "patient", f.Refs[0].Field)
}

func TestMapMedicationRequest(t *testing.T) {
	e := entry("MedicationRequest", "m1", `{
		"resourceType": "MedicationRequest", "status": "active", "intent": "order",
		"medicationCodeableConcept": {"coding": [{"system": "http://www.nlm.nih.gov/research/umls/rxnorm", "code": "197361", "display": "Amlodipine 5 MG"}]},
		"subject": {"reference": "Patient/p1"},
		"requester": {"reference": "Practitioner/dr1"},
		"dosageInstruction": [{"text": "1 tablet daily"}],
		"authoredOn": "2024-05-01"
	}`)

	f, err := MapMedicationRequest(input(e))
	require.NoError(t, err)

	m := f.Item.(*eka.Medication)
	assert.Equal(t, "197361", m.Medication.Code)
	assert.Equal(t, []string{"1 tablet daily"}, m.Dosage)
	assert.Equal(t, "2024-05-01", m.AuthoredOn)
	require.Len(t, f.Refs, 2)
	assert.Equal(t, "requester", f.Refs[1].Field)

	byRef, err := MapMedicationRequest(input(entry("MedicationRequest", "m2", `{"resourceType":"MedicationRequest","status":"active","medicationReference":{"reference":"Medication/med1"}}`)))
	require.NoError(t, err)
	assert.Nil(t, byRef.Item.(*eka.Medication).Medication)
	assert.Equal(t, "Medication", byRef.Refs[0].TargetType)

	byRef.Refs[0].Set(&eka.Link{ResourceType: "Medication", ID: "med1", Code: &eka.Code{Code: "197361", Display: "Amlodipine 5 MG"}})
	med := byRef.Item.(*eka.Medication)
	require.NotNil(t, med.Medication)
	assert.Equal(t, "Amlodipine 5 MG", med.Medication.Display)
	assert.Equal(t, "med1", med.Product.ID)

	labelled, err := MapMedicationRequest(input(entry("MedicationRequest", "m3", `{"resourceType":"MedicationRequest","status":"active","medicationReference":{"reference":"Medication/med9","display":"Paracetamol 500 mg"}}`)))
	require.NoError(t, err)
	assert.Equal(t, "Paracetamol 500 mg", labelled.Item.(*eka.Medication).Medication.Display)
}

func TestIdentifyMedication(t *testing.T) {
	e := entry("Medication", "med1", `{
		"resourceType": "Medication",
		"code": {"coding": [{"system": "http://www.nlm.nih.gov/research/umls/rxnorm", "code": "197361", "display": "Amlodipine 5 MG"}]},
		"identifier": [{"system": "urn:gtin", "value": "8712345678906"}]
	}`)

	link, err := IdentifyMedication(input(e))
	require.NoError(t, err)
	assert.Equal(t, "Amlodipine 5 MG", link.Display)
	require.NotNil(t, link.Code)
	assert.Equal(t, "197361", link.Code.Code)
	assert.Equal(t, "8712345678906", link.Identifier.Value)

	uncoded, err := IdentifyMedication(input(entry("Medication", "med2", `{"resourceType":"Medication","identifier":[{"value":"GTIN-2"}]}`)))
	require.NoError(t, err)
	assert.Nil(t, uncoded.Code)
	assert.Equal(t, "GTIN-2", uncoded.Display)
}

func TestMapProcedure(t *testing.T) {
	e := entry("Procedure", "pr1", `{
		"resourceType": "Procedure", "status": "completed",
		"code": {"coding": [{"system": "http://snomed.info/sct", "code": "80146002", "display": "Appendectomy"}]},
		"performedPeriod": {"start": "2024-01-01T08:00:00Z", "end": "2024-01-01T09:30:00Z"},
		"outcome": {"text": "successful"}
	}`)

	f, err := MapProcedure(input(e))
	require.NoError(t, err)

	p := f.Item.(*eka.Procedure)
	assert.Equal(t, "Appendectomy", p.Code.Display)
	assert.Equal(t, "2024-01-01T08:00:00Z/2024-01-01T09:30:00Z", p.Performed)
	assert.Equal(t, "successful", p.Outcome.Display)
}

func TestMapEncounter(t *testing.T) {
	e := entry("Encounter", "e1", `{
		"resourceType": "Encounter", "status": "finished",
		"class": {"system": "http://terminology.hl7.org/CodeSystem/v3-ActCode", "code": "AMB"},
		"subject": {"reference": "Patient/p1"},
		"participant": [{"individual": {"reference": "Practitioner/dr1"}}, {"individual": {"reference": "Practitioner/dr2"}}],
		"period": {"start": "2024-05-01T10:00:00Z"},
		"serviceProvider": {"reference": "Organization/org1"}
	}`)

	f, err := MapEncounter(input(e))
	require.NoError(t, err)
	assert.Equal(t, "AMB", f.Item.(*eka.Encounter).Class)
	require.Len(t, f.Refs, 4)
	assert.Equal(t, "participant.individual", f.Refs[2].Field)

	link, err := IdentifyEncounter(input(e))
	require.NoError(t, err)
	assert.Equal(t, "finished 2024-05-01T10:00:00Z", link.Display)
}

func TestMapPractitionerAndOrganization(t *testing.T) {
	pe := entry("Practitioner", "dr1", `{"resourceType":"Practitioner","name":[{"prefix":["Dr."],"family":"Smit"}],"qualification":[{"code":{"text":"GP"}}]}`)
	f, err := MapPractitioner(input(pe))
	require.NoError(t, err)
	p := f.Item.(*eka.Practitioner)
	assert.Equal(t, "Dr. Smit", p.Name)
	assert.Equal(t, []eka.Code{{Display: "GP"}}, p.Qualifications)

	oe := entry("Organization", "org1", `{"resourceType":"Organization","name":"City Hospital","identifier":[{"value":"H-1"}]}`)
	f, err = MapOrganization(input(oe))
	require.NoError(t, err)
	assert.Equal(t, "City Hospital", f.Item.(*eka.Organization).Name)

	link, err := IdentifyOrganization(input(oe))
	require.NoError(t, err)
	assert.Equal(t, "City Hospital", link.Display)
	assert.Equal(t, "H-1", link.Identifier.Value)
}
