package mapper

import (
	"github.com/SanteonNL/ekaemr/models/eka"
	"github.com/SanteonNL/ekaemr/models/fhir"
	"github.com/SanteonNL/ekaemr/util"
)

func MapEncounter(in Input) (*Fragment, error) {
	var e fhir.Encounter
	if err := decode(in.Entry, &e); err != nil {
		return nil, err
	}

	status := required(e.Status)
	if status == "" {
		return nil, missing(in.Entry, "status")
	}

	out := &eka.Encounter{
		ID:      in.Entry.ID,
		Status:  status,
		Types:   in.Resolver.ResolveAll(e.Type, "type"),
		Reasons: in.Resolver.ResolveAll(e.ReasonCode, "reasonCode"),
	}
	if e.Class != nil {
		out.Class = util.Deref(e.Class.Code)
	}
	if e.Period != nil {
		out.Start = dateTime(e.Period.Start)
		out.End = dateTime(e.Period.End)
	}

	f := newFragment(in.Entry, out)
	f.link("subject", "Patient", e.Subject, func(l *eka.Link) { out.Patient = l })
	for i := range e.Participant {
		f.link("participant.individual", "Practitioner", e.Participant[i].Individual, func(l *eka.Link) {
			out.Practitioners = append(out.Practitioners, l)
		})
	}
	f.link("serviceProvider", "Organization", e.ServiceProvider, func(l *eka.Link) { out.Facility = l })

	return f, nil
}

// IdentifyEncounter summarizes the encounter as "status start/end"
func IdentifyEncounter(in Input) (eka.Link, error) {
	var e fhir.Encounter
	if err := decode(in.Entry, &e); err != nil {
		return eka.Link{}, err
	}
	return eka.Link{Display: util.JoinNonEmpty(" ", util.Deref(e.Status), period(e.Period))}, nil
}
