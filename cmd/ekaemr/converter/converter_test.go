package converter

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/SanteonNL/ekaemr/cmd/ekaemr/fhir/coding"
	"github.com/SanteonNL/ekaemr/cmd/ekaemr/issue"
	"github.com/SanteonNL/ekaemr/cmd/ekaemr/mapper"
	"github.com/SanteonNL/ekaemr/models/eka"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T, cache *ResultCache) *ConverterService {
	t.Helper()
	svc, err := NewConverterService(ConverterConfig{
		Log:      zerolog.Nop(),
		Registry: mapper.DefaultRegistry(),
		Resolver: coding.NewResolver(coding.Config{}, nil, zerolog.Nop()),
		Cache:    cache,
		Clock:    func() time.Time { return fixedTime },
	})
	require.NoError(t, err)
	return svc
}

func bundleOf(entries ...string) []byte {
	return []byte(`{"resourceType":"Bundle","id":"b1","type":"collection","entry":[` + strings.Join(entries, ",") + `]}`)
}

func res(resource string) string {
	return `{"resource":` + resource + `}`
}

const (
	patientP1 = `{"resourceType":"Patient","id":"p1","gender":"male","birthDate":"1970-01-02","name":[{"family":"Doe","given":["John"]}],"identifier":[{"system":"urn:mrn","value":"MRN-1"}]}`
	diabetes  = `{"resourceType":"Condition","id":"c1","code":{"coding":[{"system":"http://snomed.info/sct","code":"44054006","display":"Diabetes mellitus type 2"},{"system":"http://hl7.org/fhir/sid/icd-10","code":"E11"}],"text":"Diabetes"},"clinicalStatus":{"coding":[{"system":"http://terminology.hl7.org/CodeSystem/condition-clinical","code":"active"}]},"subject":{"reference":"Patient/p1"}}`
)

func condition(id, text, subject string) string {
	return fmt.Sprintf(`{"resourceType":"Condition","id":%q,"code":{"text":%q},"subject":{"reference":%q}}`, id, text, subject)
}

func TestNewConverterService_RequiresDependencies(t *testing.T) {
	_, err := NewConverterService(ConverterConfig{Resolver: coding.NewResolver(coding.Config{}, nil, zerolog.Nop())})
	assert.Error(t, err)
	_, err = NewConverterService(ConverterConfig{Registry: mapper.DefaultRegistry()})
	assert.Error(t, err)
}

func TestConvert_EmptyBundle(t *testing.T) {
	svc := newService(t, nil)

	for _, doc := range []string{
		`{"resourceType":"Bundle","type":"collection","entry":[]}`,
		`{"resourceType":"Bundle"}`,
	} {
		result, err := svc.Convert([]byte(doc), Options{})
		require.NoError(t, err)
		assert.Empty(t, result.Diagnostics)

		rec := result.Record
		assert.Equal(t, eka.SchemaVersion, rec.SchemaVersion)
		assert.Equal(t, eka.SourceFHIRR4, rec.Source)
		assert.Equal(t, "2024-05-01T12:00:00Z", rec.ConvertedAt)
		assert.NotEmpty(t, rec.RecordID)
		assert.Equal(t, 0, rec.Bundle.EntryCount)

		out, err := json.Marshal(rec)
		require.NoError(t, err)
		for _, collection := range []string{"patients", "diagnoses", "vitals", "labResults", "medications", "procedures"} {
			assert.Contains(t, string(out), `"`+collection+`":[]`)
		}
	}
}

func TestConvert_ConditionWithPatient(t *testing.T) {
	result, err := newService(t, nil).Convert(bundleOf(res(diabetes), res(patientP1)), Options{})
	require.NoError(t, err)

	rec := result.Record
	require.Len(t, rec.Diagnoses, 1)
	require.Len(t, rec.Patients, 1)
	assert.Equal(t, 2, rec.Bundle.EntryCount)
	assert.Equal(t, "b1", rec.Bundle.ID)

	d := rec.Diagnoses[0]
	assert.Equal(t, eka.Code{System: coding.SystemSNOMED, Code: "44054006", Display: "Diabetes mellitus type 2"}, d.Code)
	assert.Equal(t, "active", d.ClinicalStatus)
	assert.Equal(t, &eka.Link{
		ResourceType: "Patient",
		ID:           "p1",
		Display:      "John Doe",
		Gender:       "male",
		BirthDate:    "1970-01-02",
		Identifier:   &eka.Identifier{System: "urn:mrn", Value: "MRN-1"},
	}, d.Patient)
}

func TestConvert_PreservesEntryOrder(t *testing.T) {
	doc := bundleOf(
		res(condition("c3", "third", "Patient/p1")),
		res(patientP1),
		res(condition("c1", "first", "Patient/p1")),
		res(condition("c2", "second", "Patient/p1")),
	)

	for _, workers := range []int{1, 4} {
		result, err := newService(t, nil).Convert(doc, Options{Workers: workers})
		require.NoError(t, err)

		var ids []string
		for _, d := range result.Record.Diagnoses {
			ids = append(ids, d.ID)
		}
		assert.Equal(t, []string{"c3", "c1", "c2"}, ids, "workers=%d", workers)
	}
}

func TestConvert_CodingFallback(t *testing.T) {
	svc := newService(t, nil)

	textOnly := `{"resourceType":"Condition","id":"c1","code":{"coding":[{"system":"urn:local","code":"X"}],"text":"Headache"}}`
	result, err := svc.Convert(bundleOf(res(textOnly)), Options{})
	require.NoError(t, err)
	assert.Equal(t, eka.Code{Display: "Headache"}, result.Record.Diagnoses[0].Code)

	noCoding := `{"resourceType":"Condition","id":"c1","code":{"coding":[{"system":"urn:local","code":"X"}]}}`
	for _, lenient := range []bool{false, true} {
		_, err := svc.Convert(bundleOf(res(noCoding)), Options{Lenient: lenient})
		require.Error(t, err)
		assert.True(t, errors.Is(err, issue.ErrNoCodingFound))

		var ie *issue.Error
		require.True(t, errors.As(err, &ie))
		assert.Equal(t, 0, ie.EntryIndex)
		assert.Equal(t, "Condition", ie.ResourceType)
	}
}

func TestConvert_UnresolvedReference(t *testing.T) {
	doc := bundleOf(res(condition("c1", "Asthma", "Patient/missing")))
	svc := newService(t, nil)

	_, err := svc.Convert(doc, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, issue.ErrUnresolvedReference))

	var ie *issue.Error
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "Condition/c1", ie.FromID)
	assert.Equal(t, "Patient/missing", ie.ToID)
	assert.Equal(t, "subject", ie.Field)

	result, err := svc.Convert(doc, Options{Lenient: true})
	require.NoError(t, err)
	require.Len(t, result.Diagnostics, 1)
	assert.Equal(t, issue.KindUnresolvedReference, result.Diagnostics[0].Kind)
	require.Len(t, result.Record.Diagnoses, 1)
	assert.Nil(t, result.Record.Diagnoses[0].Patient)
}

func TestConvert_ReferenceForms(t *testing.T) {
	doc := []byte(`{"resourceType":"Bundle","type":"transaction","entry":[
		{"fullUrl":"urn:uuid:9d1f","resource":{"resourceType":"Patient","name":[{"text":"Jane Roe"}]}},
		{"fullUrl":"https://fhir.example.org/Practitioner/dr1","resource":{"resourceType":"Practitioner","id":"dr1","name":[{"text":"Dr. Who"}]}},
		{"resource":{"resourceType":"Encounter","id":"e1","status":"finished","subject":{"reference":"urn:uuid:9d1f"},"participant":[{"individual":{"reference":"Practitioner/dr1/_history/2"}}]}},
		{"resource":{"resourceType":"Condition","id":"c1","code":{"text":"Flu"},"subject":{"display":"Jane R."},"encounter":{"reference":"Encounter/e1"}}}
	]}`)

	result, err := newService(t, nil).Convert(doc, Options{})
	require.NoError(t, err)

	enc := result.Record.Encounters[0]
	assert.Equal(t, &eka.Link{ResourceType: "Patient", ID: "urn:uuid:9d1f", Display: "Jane Roe"}, enc.Patient)
	require.Len(t, enc.Practitioners, 1)
	assert.Equal(t, "Dr. Who", enc.Practitioners[0].Display)

	d := result.Record.Diagnoses[0]
	assert.Equal(t, &eka.Link{ResourceType: "Patient", Display: "Jane R."}, d.Patient)
	assert.Equal(t, "finished", d.Encounter.Display)
}

func TestConvert_UnsupportedIsolation(t *testing.T) {
	basic := `{"resourceType":"Basic","id":"x1"}`
	doc := bundleOf(res(patientP1), res(basic), res(diabetes))
	svc := newService(t, nil)

	_, err := svc.Convert(doc, Options{})
	assert.True(t, errors.Is(err, issue.ErrUnsupportedResource))

	result, err := svc.Convert(doc, Options{Lenient: true})
	require.NoError(t, err)
	require.Len(t, result.Diagnostics, 1)
	assert.Equal(t, 1, result.Diagnostics[0].EntryIndex)
	assert.Equal(t, "Basic", result.Diagnostics[0].ResourceType)

	without, err := svc.Convert(bundleOf(res(patientP1), res(diabetes)), Options{Lenient: true})
	require.NoError(t, err)
	assert.Equal(t, without.Record.Patients, result.Record.Patients)
	assert.Equal(t, without.Record.Diagnoses, result.Record.Diagnoses)
	assert.Equal(t, 3, result.Record.Bundle.EntryCount)
}

func TestConvert_UnsupportedTargetStillResolves(t *testing.T) {
	cond := `{"resourceType":"Condition","id":"c1","code":{"text":"Flu"},"subject":{"reference":"Group/g1"}}`
	doc := bundleOf(res(`{"resourceType":"Group","id":"g1"}`), res(cond))

	result, err := newService(t, nil).Convert(doc, Options{Lenient: true})
	require.NoError(t, err)
	assert.Equal(t, &eka.Link{ResourceType: "Group", ID: "g1"}, result.Record.Diagnoses[0].Patient)
}

func TestConvert_MedicationReference(t *testing.T) {
	medication := `{"resourceType":"Medication","id":"m1","code":{"coding":[{"system":"http://www.nlm.nih.gov/research/umls/rxnorm","code":"197361","display":"Amlodipine 5 MG"}]}}`
	request := `{"resourceType":"MedicationRequest","id":"rx1","status":"active","medicationReference":{"reference":"Medication/m1"},"subject":{"reference":"Patient/p1"}}`
	svc := newService(t, nil)

	result, err := svc.Convert(bundleOf(res(patientP1), res(medication), res(request)), Options{})
	require.NoError(t, err)
	assert.Empty(t, result.Diagnostics)

	require.Len(t, result.Record.Medications, 1)
	med := result.Record.Medications[0]
	require.NotNil(t, med.Medication)
	assert.Equal(t, "Amlodipine 5 MG", med.Medication.Display)
	assert.Equal(t, "197361", med.Medication.Code)
	require.NotNil(t, med.Product)
	assert.Equal(t, "Medication", med.Product.ResourceType)
	assert.Equal(t, "m1", med.Product.ID)
	assert.Equal(t, "Amlodipine 5 MG", med.Product.Display)
	assert.Equal(t, "John Doe", med.Patient.Display)

	_, err = svc.Convert(bundleOf(res(patientP1), res(request)), Options{})
	assert.True(t, errors.Is(err, issue.ErrUnresolvedReference))
}

func TestConvert_Duplicates(t *testing.T) {
	second := `{"resourceType":"Patient","id":"p1","name":[{"text":"Other"}]}`
	doc := bundleOf(res(patientP1), res(second))
	svc := newService(t, nil)

	_, err := svc.Convert(doc, Options{})
	assert.True(t, errors.Is(err, issue.ErrDuplicateResourceID))

	result, err := svc.Convert(doc, Options{Lenient: true})
	require.NoError(t, err)
	require.Len(t, result.Record.Patients, 1)
	assert.Equal(t, "John Doe", result.Record.Patients[0].Name)
	require.Len(t, result.Diagnostics, 1)
	assert.Equal(t, "Patient/p1", result.Diagnostics[0].ID)
}

func TestConvert_MissingRequiredField(t *testing.T) {
	noStatus := `{"resourceType":"Observation","id":"o1","code":{"text":"Weight"}}`
	doc := bundleOf(res(noStatus), res(diabetes), res(patientP1))
	svc := newService(t, nil)

	_, err := svc.Convert(doc, Options{})
	assert.True(t, errors.Is(err, issue.ErrMissingRequiredField))

	result, err := svc.Convert(doc, Options{Lenient: true})
	require.NoError(t, err)
	require.Len(t, result.Diagnostics, 1)
	assert.Equal(t, "status", result.Diagnostics[0].Field)
	assert.Empty(t, result.Record.Observations)
	assert.Len(t, result.Record.Diagnoses, 1)
}

func TestConvert_SchemaErrorIsFatal(t *testing.T) {
	for _, lenient := range []bool{false, true} {
		_, err := newService(t, nil).Convert([]byte(`{"resourceType":"Bundle","entry":{}}`), Options{Lenient: lenient})
		assert.True(t, errors.Is(err, issue.ErrSchema))
	}
}

func TestConvert_Idempotent(t *testing.T) {
	doc := bundleOf(res(patientP1), res(diabetes), res(condition("c2", "Asthma", "Patient/p1")))
	svc := newService(t, nil)

	first, err := svc.Convert(doc, Options{})
	require.NoError(t, err)
	second, err := svc.Convert(doc, Options{})
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))

	later := newService(t, nil)
	later.now = func() time.Time { return fixedTime.Add(time.Hour) }
	third, err := later.Convert(doc, Options{})
	require.NoError(t, err)
	assert.Equal(t, first.Record.RecordID, third.Record.RecordID)
	assert.NotEqual(t, first.Record.ConvertedAt, third.Record.ConvertedAt)

	third.Record.ConvertedAt = first.Record.ConvertedAt
	assert.Equal(t, first.Record, third.Record)
}

func TestConvert_ParallelMatchesSequential(t *testing.T) {
	entries := []string{res(patientP1)}
	for i := 0; i < 25; i++ {
		entries = append(entries, res(condition(fmt.Sprintf("c%d", i), fmt.Sprintf("finding %d", i), "Patient/p1")))
	}
	entries = append(entries, res(`{"resourceType":"Basic","id":"b"}`), res(condition("bad", "x", "Patient/nope")))
	doc := bundleOf(entries...)

	for _, lenient := range []bool{false, true} {
		seq, seqErr := newService(t, nil).Convert(doc, Options{Lenient: lenient})
		par, parErr := newService(t, nil).Convert(doc, Options{Lenient: lenient, Workers: 8})
		assert.Equal(t, seqErr, parErr)
		assert.Equal(t, seq, par)
	}
}

func TestConvert_PrioritySystemsOption(t *testing.T) {
	svc := newService(t, nil)
	doc := bundleOf(res(diabetes), res(patientP1))

	def, err := svc.Convert(doc, Options{})
	require.NoError(t, err)
	icd, err := svc.Convert(doc, Options{PrioritySystems: []string{coding.SystemICD10}})
	require.NoError(t, err)

	assert.Equal(t, "44054006", def.Record.Diagnoses[0].Code.Code)
	assert.Equal(t, "E11", icd.Record.Diagnoses[0].Code.Code)
	assert.Equal(t, "Diabetes", icd.Record.Diagnoses[0].Code.Display)
	assert.NotEqual(t, def.Record.RecordID, icd.Record.RecordID)
}

func TestConvert_UsesCache(t *testing.T) {
	cache := NewResultCache(CacheConfig{Enabled: true, DefaultTTL: time.Minute}, zerolog.Nop())
	defer cache.Stop()
	svc := newService(t, cache)
	doc := bundleOf(res(patientP1))

	first, err := svc.Convert(doc, Options{})
	require.NoError(t, err)
	second, err := svc.Convert(doc, Options{})
	require.NoError(t, err)
	assert.Same(t, first, second)

	lenient, err := svc.Convert(doc, Options{Lenient: true})
	require.NoError(t, err)
	assert.NotSame(t, first, lenient)
}

func TestConvert_ObservationRouting(t *testing.T) {
	obs := func(id, category string) string {
		return fmt.Sprintf(`{"resourceType":"Observation","id":%q,"status":"final","category":[{"coding":[{"system":"http://terminology.hl7.org/CodeSystem/observation-category","code":%q}]}],"code":{"text":%q}}`, id, category, id)
	}
	doc := bundleOf(res(obs("hr", "vital-signs")), res(obs("hb", "laboratory")), res(obs("smoke", "social-history")))

	result, err := newService(t, nil).Convert(doc, Options{})
	require.NoError(t, err)
	require.Len(t, result.Record.Vitals, 1)
	require.Len(t, result.Record.LabResults, 1)
	require.Len(t, result.Record.Observations, 1)
	assert.Equal(t, "smoke", result.Record.Observations[0].ID)
}

func TestRecordID(t *testing.T) {
	data := []byte(`{"resourceType":"Bundle"}`)
	id := RecordID(data, issue.Strict, coding.DefaultPrioritySystems, false)

	assert.Equal(t, id, RecordID(data, issue.Strict, coding.DefaultPrioritySystems, false))
	assert.NotEqual(t, id, RecordID(data, issue.Lenient, coding.DefaultPrioritySystems, false))
	assert.NotEqual(t, id, RecordID(data, issue.Strict, coding.DefaultPrioritySystems, true))
	assert.NotEqual(t, id, RecordID([]byte(`{"resourceType":"Bundle" }`), issue.Strict, coding.DefaultPrioritySystems, false))
}
