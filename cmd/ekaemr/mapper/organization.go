package mapper

import (
	"github.com/SanteonNL/ekaemr/models/eka"
	"github.com/SanteonNL/ekaemr/models/fhir"
)

func MapOrganization(in Input) (*Fragment, error) {
	var o fhir.Organization
	if err := decode(in.Entry, &o); err != nil {
		return nil, err
	}

	name := required(o.Name)
	if name == "" {
		return nil, missing(in.Entry, "name")
	}

	out := &eka.Organization{
		ID:          in.Entry.ID,
		Name:        name,
		Types:       in.Resolver.ResolveAll(o.Type, "type"),
		Identifiers: identifiers(o.Identifier),
		Contacts:    contacts(o.Telecom),
		Address:     formatAddress(o.Address),
	}

	return newFragment(in.Entry, out), nil
}

func IdentifyOrganization(in Input) (eka.Link, error) {
	var o fhir.Organization
	if err := decode(in.Entry, &o); err != nil {
		return eka.Link{}, err
	}
	link := eka.Link{Display: required(o.Name)}
	if ids := identifiers(o.Identifier); len(ids) > 0 {
		link.Identifier = &ids[0]
	}
	return link, nil
}
