package mapper

import (
	"strings"

	"github.com/SanteonNL/ekaemr/models/eka"
	"github.com/SanteonNL/ekaemr/models/fhir"
	"github.com/SanteonNL/ekaemr/util"
)

// MapMedicationRequest requires status and one of medicationCodeableConcept
// or medicationReference.
func MapMedicationRequest(in Input) (*Fragment, error) {
	var m fhir.MedicationRequest
	if err := decode(in.Entry, &m); err != nil {
		return nil, err
	}

	status := required(m.Status)
	if status == "" {
		return nil, missing(in.Entry, "status")
	}
	if m.MedicationCodeableConcept == nil && m.MedicationReference == nil {
		return nil, missing(in.Entry, "medication[x]")
	}

	out := &eka.Medication{
		ID:         in.Entry.ID,
		Status:     status,
		Intent:     util.Deref(m.Intent),
		Dosage:     dosages(m.DosageInstruction),
		AuthoredOn: dateTime(m.AuthoredOn),
		Notes:      notes(m.Note),
	}
	if m.MedicationCodeableConcept != nil {
		code, err := in.Resolver.Resolve(m.MedicationCodeableConcept, "medicationCodeableConcept")
		if err != nil {
			return nil, scoped(in.Entry, err)
		}
		out.Medication = &code
	} else if display := strings.TrimSpace(util.Deref(m.MedicationReference.Display)); display != "" {
		out.Medication = &eka.Code{Display: display}
	}

	f := newFragment(in.Entry, out)
	f.link("medicationReference", "Medication", m.MedicationReference, func(l *eka.Link) {
		out.Product = l
		if m.MedicationCodeableConcept == nil && l.Code != nil {
			code := *l.Code
			out.Medication = &code
		}
	})
	f.link("subject", "Patient", m.Subject, func(l *eka.Link) { out.Patient = l })
	f.link("encounter", "Encounter", m.Encounter, func(l *eka.Link) { out.Encounter = l })
	f.link("requester", "Practitioner", m.Requester, func(l *eka.Link) { out.Prescriber = l })

	return f, nil
}

// IdentifyMedication labels a referenced Medication with its resolved code,
// else with its first identifier. Medication has no record collection of its own.
func IdentifyMedication(in Input) (eka.Link, error) {
	var m fhir.Medication
	if err := decode(in.Entry, &m); err != nil {
		return eka.Link{}, err
	}

	var link eka.Link
	if code := in.Resolver.ResolveOptional(m.Code, "code"); code != nil {
		link.Code = code
		link.Display = code.Display
	}
	if ids := identifiers(m.Identifier); len(ids) > 0 {
		link.Identifier = &ids[0]
		if link.Display == "" {
			link.Display = ids[0].Value
		}
	}
	return link, nil
}

func dosages(instructions []fhir.Dosage) []string {
	var out []string
	for _, d := range instructions {
		if text := strings.TrimSpace(util.Deref(d.Text)); text != "" {
			out = append(out, text)
		}
	}
	return out
}
