package mapper

import (
	"github.com/SanteonNL/ekaemr/models/eka"
	"github.com/SanteonNL/ekaemr/models/fhir"
	"github.com/SanteonNL/ekaemr/util"
)

const (
	systemConditionClinical     = "http://terminology.hl7.org/CodeSystem/condition-clinical"
	systemConditionVerification = "http://terminology.hl7.org/CodeSystem/condition-ver-status"
)

// MapCondition maps a Condition to a diagnosis. code is required and must
// resolve; an unresolvable code is fatal in both modes.
func MapCondition(in Input) (*Fragment, error) {
	var c fhir.Condition
	if err := decode(in.Entry, &c); err != nil {
		return nil, err
	}

	if c.Code == nil {
		return nil, missing(in.Entry, "code")
	}
	code, err := in.Resolver.Resolve(c.Code, "code")
	if err != nil {
		return nil, scoped(in.Entry, err)
	}

	out := &eka.Diagnosis{
		ID:                 in.Entry.ID,
		Code:               code,
		ClinicalStatus:     statusCode(in, c.ClinicalStatus, systemConditionClinical, "clinicalStatus"),
		VerificationStatus: statusCode(in, c.VerificationStatus, systemConditionVerification, "verificationStatus"),
		Severity:           in.Resolver.ResolveOptional(c.Severity, "severity"),
		Categories:         in.Resolver.ResolveAll(c.Category, "category"),
		BodySites:          in.Resolver.ResolveAll(c.BodySite, "bodySite"),
		Onset:              dateTime(c.OnsetDateTime),
		Abatement:          dateTime(c.AbatementDateTime),
		RecordedDate:       dateTime(c.RecordedDate),
		Notes:              notes(c.Note),
	}
	if out.Onset == "" {
		out.Onset = util.Deref(c.OnsetString)
	}

	f := newFragment(in.Entry, out)
	f.link("subject", "Patient", c.Subject, func(l *eka.Link) { out.Patient = l })
	f.link("encounter", "Encounter", c.Encounter, func(l *eka.Link) { out.Encounter = l })
	f.link("recorder", "Practitioner", c.Recorder, func(l *eka.Link) { out.Recorder = l })

	return f, nil
}

// statusCode returns the code of a status concept, preferring the coding
// from system, or its text when there is no usable coding. Unresolvable
// status concepts are dropped.
func statusCode(in Input, cc *fhir.CodeableConcept, system, field string) string {
	if cc == nil {
		return ""
	}
	code, err := in.Resolver.ResolveIn(cc, system, field)
	if err != nil {
		return ""
	}
	if code.Code != "" {
		return code.Code
	}
	return code.Display
}
