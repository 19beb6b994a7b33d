package mapper

import (
	"github.com/SanteonNL/ekaemr/models/eka"
	"github.com/SanteonNL/ekaemr/models/fhir"
)

func MapProcedure(in Input) (*Fragment, error) {
	var p fhir.Procedure
	if err := decode(in.Entry, &p); err != nil {
		return nil, err
	}

	status := required(p.Status)
	if status == "" {
		return nil, missing(in.Entry, "status")
	}
	if p.Code == nil {
		return nil, missing(in.Entry, "code")
	}
	code, err := in.Resolver.Resolve(p.Code, "code")
	if err != nil {
		return nil, scoped(in.Entry, err)
	}

	out := &eka.Procedure{
		ID:        in.Entry.ID,
		Code:      code,
		Status:    status,
		Category:  in.Resolver.ResolveOptional(p.Category, "category"),
		BodySites: in.Resolver.ResolveAll(p.BodySite, "bodySite"),
		Outcome:   in.Resolver.ResolveOptional(p.Outcome, "outcome"),
		Performed: dateTime(p.PerformedDateTime),
		Notes:     notes(p.Note),
	}
	if out.Performed == "" {
		out.Performed = period(p.PerformedPeriod)
	}

	f := newFragment(in.Entry, out)
	f.link("subject", "Patient", p.Subject, func(l *eka.Link) { out.Patient = l })
	f.link("encounter", "Encounter", p.Encounter, func(l *eka.Link) { out.Encounter = l })

	return f, nil
}
