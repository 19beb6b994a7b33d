package mapper

import (
	"encoding/json"
	"strings"

	"github.com/SanteonNL/ekaemr/cmd/ekaemr/fhir/coding"
	"github.com/SanteonNL/ekaemr/models/eka"
	"github.com/SanteonNL/ekaemr/models/fhir"
	"github.com/SanteonNL/ekaemr/util"
)

const systemObservationCategory = "http://terminology.hl7.org/CodeSystem/observation-category"

func MapObservation(in Input) (*Fragment, error) {
	var o fhir.Observation
	if err := decode(in.Entry, &o); err != nil {
		return nil, err
	}

	status := required(o.Status)
	if status == "" {
		return nil, missing(in.Entry, "status")
	}
	if o.Code == nil {
		return nil, missing(in.Entry, "code")
	}
	code, err := in.Resolver.Resolve(o.Code, "code")
	if err != nil {
		return nil, scoped(in.Entry, err)
	}

	out := &eka.Observation{
		ID:             in.Entry.ID,
		Kind:           observationKind(o.Category),
		Code:           code,
		Status:         status,
		Value:          observationValue(in, o.ValueQuantity, o.ValueCodeableConcept, o.ValueString, o.ValueBoolean, o.ValueInteger, "value"),
		Interpretation: in.Resolver.ResolveAll(o.Interpretation, "interpretation"),
		ReferenceRange: referenceRange(o.ReferenceRange),
		Effective:      dateTime(o.EffectiveDateTime),
		Notes:          notes(o.Note),
	}
	if out.Effective == "" {
		out.Effective = period(o.EffectivePeriod)
	}
	if out.Effective == "" {
		out.Effective = dateTime(o.Issued)
	}

	for i := range o.Component {
		comp := &o.Component[i]
		compCode, err := in.Resolver.Resolve(&comp.Code, "component.code")
		if err != nil {
			return nil, scoped(in.Entry, err)
		}
		out.Components = append(out.Components, eka.ObservationComponent{
			Code:  compCode,
			Value: observationValue(in, comp.ValueQuantity, comp.ValueCodeableConcept, comp.ValueString, nil, nil, "component.value"),
		})
	}

	f := newFragment(in.Entry, out)
	f.link("subject", "Patient", o.Subject, func(l *eka.Link) { out.Patient = l })
	f.link("encounter", "Encounter", o.Encounter, func(l *eka.Link) { out.Encounter = l })
	for i := range o.Performer {
		f.link("performer", "", &o.Performer[i], func(l *eka.Link) { out.Performers = append(out.Performers, l) })
	}

	return f, nil
}

// observationKind routes by the observation-category codes: vital-signs
// and laboratory get their own collections.
func observationKind(categories []fhir.CodeableConcept) eka.ObservationKind {
	for i := range categories {
		switch strings.ToLower(coding.Code(&categories[i], systemObservationCategory)) {
		case "vital-signs":
			return eka.ObservationVital
		case "laboratory":
			return eka.ObservationLab
		}
	}
	return eka.ObservationOther
}

func observationValue(in Input, q *fhir.Quantity, cc *fhir.CodeableConcept, s *string, b *bool, n *json.Number, field string) *eka.ObservationValue {
	switch {
	case q != nil && q.Value != nil:
		return &eka.ObservationValue{Quantity: quantity(q)}
	case cc != nil:
		if code := in.Resolver.ResolveOptional(cc, field); code != nil {
			return &eka.ObservationValue{Code: code}
		}
	case s != nil && strings.TrimSpace(*s) != "":
		return &eka.ObservationValue{Text: strings.TrimSpace(*s)}
	case b != nil:
		v := *b
		return &eka.ObservationValue{Boolean: &v}
	case n != nil:
		return &eka.ObservationValue{Quantity: &eka.Quantity{Value: n.String()}}
	}
	return nil
}

func referenceRange(ranges []fhir.ObservationRange) string {
	if len(ranges) == 0 {
		return ""
	}
	r := ranges[0]
	if text := strings.TrimSpace(util.Deref(r.Text)); text != "" {
		return text
	}
	low, high := quantity(r.Low), quantity(r.High)
	switch {
	case low != nil && high != nil:
		return util.JoinNonEmpty(" ", low.Value+"-"+high.Value, high.Unit)
	case low != nil:
		return util.JoinNonEmpty(" ", ">="+low.Value, low.Unit)
	case high != nil:
		return util.JoinNonEmpty(" ", "<="+high.Value, high.Unit)
	}
	return ""
}
