package mapper

import (
	"github.com/SanteonNL/ekaemr/models/eka"
	"github.com/SanteonNL/ekaemr/models/fhir"
	"github.com/SanteonNL/ekaemr/util"
)

// MapPatient has no required fields
func MapPatient(in Input) (*Fragment, error) {
	var p fhir.Patient
	if err := decode(in.Entry, &p); err != nil {
		return nil, err
	}

	out := &eka.Patient{
		ID:          in.Entry.ID,
		Name:        formatName(p.Name),
		Gender:      util.Deref(p.Gender),
		Identifiers: identifiers(p.Identifier),
		Contacts:    contacts(p.Telecom),
		Address:     formatAddress(p.Address),
	}
	if p.BirthDate != nil {
		out.BirthDate = p.BirthDate.String()
	}
	if p.DeceasedBoolean != nil {
		out.Deceased = *p.DeceasedBoolean
	}
	if p.DeceasedDateTime != nil {
		out.Deceased = true
	}

	return newFragment(in.Entry, out), nil
}

// IdentifyPatient inlines name, gender, birth date and the first identifier
func IdentifyPatient(in Input) (eka.Link, error) {
	var p fhir.Patient
	if err := decode(in.Entry, &p); err != nil {
		return eka.Link{}, err
	}

	link := eka.Link{
		Display: formatName(p.Name),
		Gender:  util.Deref(p.Gender),
	}
	if p.BirthDate != nil {
		link.BirthDate = p.BirthDate.String()
	}
	if ids := identifiers(p.Identifier); len(ids) > 0 {
		link.Identifier = &ids[0]
	}
	return link, nil
}
