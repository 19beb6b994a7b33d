package mapper

import (
	"github.com/SanteonNL/ekaemr/models/eka"
	"github.com/SanteonNL/ekaemr/models/fhir"
	"github.com/SanteonNL/ekaemr/util"
)

func MapPractitioner(in Input) (*Fragment, error) {
	var p fhir.Practitioner
	if err := decode(in.Entry, &p); err != nil {
		return nil, err
	}

	name := formatName(p.Name)
	if name == "" {
		return nil, missing(in.Entry, "name")
	}

	out := &eka.Practitioner{
		ID:          in.Entry.ID,
		Name:        name,
		Gender:      util.Deref(p.Gender),
		Identifiers: identifiers(p.Identifier),
		Contacts:    contacts(p.Telecom),
	}
	for i := range p.Qualification {
		if code := in.Resolver.ResolveOptional(&p.Qualification[i].Code, "qualification.code"); code != nil {
			out.Qualifications = append(out.Qualifications, *code)
		}
	}

	return newFragment(in.Entry, out), nil
}

func IdentifyPractitioner(in Input) (eka.Link, error) {
	var p fhir.Practitioner
	if err := decode(in.Entry, &p); err != nil {
		return eka.Link{}, err
	}
	link := eka.Link{Display: formatName(p.Name)}
	if ids := identifiers(p.Identifier); len(ids) > 0 {
		link.Identifier = &ids[0]
	}
	return link, nil
}
