package mapper

import (
	"github.com/SanteonNL/ekaemr/models/eka"
	"github.com/SanteonNL/ekaemr/models/fhir"
	"github.com/SanteonNL/ekaemr/util"
)

const (
	systemAllergyClinical     = "http://terminology.hl7.org/CodeSystem/allergyintolerance-clinical"
	systemAllergyVerification = "http://terminology.hl7.org/CodeSystem/allergyintolerance-verification"
)

func MapAllergyIntolerance(in Input) (*Fragment, error) {
	var a fhir.AllergyIntolerance
	if err := decode(in.Entry, &a); err != nil {
		return nil, err
	}

	if a.Code == nil {
		return nil, missing(in.Entry, "code")
	}
	if a.Patient == nil || (required(a.Patient.Reference) == "" && required(a.Patient.Display) == "") {
		return nil, missing(in.Entry, "patient")
	}
	code, err := in.Resolver.Resolve(a.Code, "code")
	if err != nil {
		return nil, scoped(in.Entry, err)
	}

	out := &eka.Allergy{
		ID:                 in.Entry.ID,
		Code:               code,
		ClinicalStatus:     statusCode(in, a.ClinicalStatus, systemAllergyClinical, "clinicalStatus"),
		VerificationStatus: statusCode(in, a.VerificationStatus, systemAllergyVerification, "verificationStatus"),
		Type:               util.Deref(a.Type),
		Categories:         a.Category,
		Criticality:        util.Deref(a.Criticality),
		Onset:              dateTime(a.OnsetDateTime),
		RecordedDate:       dateTime(a.RecordedDate),
		Notes:              notes(a.Note),
	}
	for i := range a.Reaction {
		r := &a.Reaction[i]
		out.Reactions = append(out.Reactions, eka.Reaction{
			Manifestations: in.Resolver.ResolveAll(r.Manifestation, "reaction.manifestation"),
			Severity:       util.Deref(r.Severity),
			Description:    util.Deref(r.Description),
		})
	}

	f := newFragment(in.Entry, out)
	f.link("patient", "Patient", a.Patient, func(l *eka.Link) { out.Patient = l })
	f.link("encounter", "Encounter", a.Encounter, func(l *eka.Link) { out.Encounter = l })

	return f, nil
}
