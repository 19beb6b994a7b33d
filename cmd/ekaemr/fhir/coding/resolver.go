// Package coding picks one code out of a CodeableConcept by system priority.
package coding

import (
	"fmt"
	"strings"

	"github.com/SanteonNL/ekaemr/cmd/ekaemr/issue"
	"github.com/SanteonNL/ekaemr/models/eka"
	"github.com/SanteonNL/ekaemr/models/fhir"
	"github.com/SanteonNL/ekaemr/util"
	"github.com/rs/zerolog"
)

const (
	SystemSNOMED  = "http://snomed.info/sct"
	SystemLOINC   = "http://loinc.org"
	SystemICD10   = "http://hl7.org/fhir/sid/icd-10"
	SystemICD10CM = "http://hl7.org/fhir/sid/icd-10-cm"
	SystemRxNorm  = "http://www.nlm.nih.gov/research/umls/rxnorm"
	SystemCVX     = "http://hl7.org/fhir/sid/cvx"
)

// DefaultPrioritySystems is used when no priority list is configured
var DefaultPrioritySystems = []string{
	SystemSNOMED,
	SystemLOINC,
	SystemICD10,
	SystemICD10CM,
	SystemRxNorm,
	SystemCVX,
}

// Translator maps a resolved code to a code of another system
type Translator interface {
	Translate(system, code string) (*eka.Code, bool)
}

type Config struct {
	// PrioritySystems are compared with Coding.system by exact string equality
	PrioritySystems []string
	// AnySystem falls back to the first coding with a code before the text fallback
	AnySystem bool
}

// Resolver is immutable and safe for concurrent use
type Resolver struct {
	log        zerolog.Logger
	systems    []string
	anySystem  bool
	translator Translator
}

// NewResolver creates a resolver. translator may be nil.
func NewResolver(cfg Config, translator Translator, log zerolog.Logger) *Resolver {
	systems := cfg.PrioritySystems
	if len(systems) == 0 {
		systems = DefaultPrioritySystems
	}
	return &Resolver{
		log:        log,
		systems:    append([]string(nil), systems...),
		anySystem:  cfg.AnySystem,
		translator: translator,
	}
}

// WithPrioritySystems returns a copy of the resolver using another priority list.
// An empty list keeps the current one.
func (r *Resolver) WithPrioritySystems(systems []string) *Resolver {
	if len(systems) == 0 {
		return r
	}
	c := *r
	c.systems = append([]string(nil), systems...)
	return &c
}

func (r *Resolver) PrioritySystems() []string {
	return append([]string(nil), r.systems...)
}

func (r *Resolver) AnySystem() bool {
	return r.anySystem
}

// Resolve selects the code for a concept: the first coding of the highest
// priority system, else the concept text, else a NoCodingFound error.
func (r *Resolver) Resolve(cc *fhir.CodeableConcept, field string) (eka.Code, error) {
	if cc == nil {
		return eka.Code{}, issue.NewNoCodingFound(field, "concept is absent")
	}

	for _, system := range r.systems {
		if c := findCoding(cc, system); c != nil {
			return r.fromCoding(cc, c), nil
		}
	}

	if r.anySystem {
		for i := range cc.Coding {
			if util.Deref(cc.Coding[i].Code) != "" {
				return r.fromCoding(cc, &cc.Coding[i]), nil
			}
		}
	}

	if text := strings.TrimSpace(util.Deref(cc.Text)); text != "" {
		return eka.Code{Display: text}, nil
	}

	r.log.Debug().Str("field", field).Int("codings", len(cc.Coding)).Msg("No usable coding found")
	return eka.Code{}, issue.NewNoCodingFound(field, describe(cc))
}

// ResolveIn prefers the coding of one system, used for status-like concepts
// bound to a fixed code system. Without such a coding it falls back to Resolve.
func (r *Resolver) ResolveIn(cc *fhir.CodeableConcept, system, field string) (eka.Code, error) {
	if cc != nil {
		if c := findCoding(cc, system); c != nil {
			return r.fromCoding(cc, c), nil
		}
	}
	return r.Resolve(cc, field)
}

// ResolveOptional resolves a concept of an optional field. An absent or
// unresolvable concept yields nil; the field is then left out of the record.
func (r *Resolver) ResolveOptional(cc *fhir.CodeableConcept, field string) *eka.Code {
	if cc == nil {
		return nil
	}
	code, err := r.Resolve(cc, field)
	if err != nil {
		r.log.Debug().Str("field", field).Msg("Optional concept dropped")
		return nil
	}
	return &code
}

// ResolveAll resolves a list of optional concepts, skipping unresolvable ones
func (r *Resolver) ResolveAll(ccs []fhir.CodeableConcept, field string) []eka.Code {
	var codes []eka.Code
	for i := range ccs {
		if code := r.ResolveOptional(&ccs[i], fmt.Sprintf("%s[%d]", field, i)); code != nil {
			codes = append(codes, *code)
		}
	}
	return codes
}

// Code returns the plain code of a status concept in the given system, or ""
func Code(cc *fhir.CodeableConcept, system string) string {
	if cc == nil {
		return ""
	}
	if c := findCoding(cc, system); c != nil {
		return util.Deref(c.Code)
	}
	return ""
}

func (r *Resolver) fromCoding(cc *fhir.CodeableConcept, c *fhir.Coding) eka.Code {
	code := eka.Code{
		System:  util.Deref(c.System),
		Code:    util.Deref(c.Code),
		Display: strings.TrimSpace(util.Deref(c.Display)),
	}
	if code.Display == "" {
		code.Display = strings.TrimSpace(util.Deref(cc.Text))
	}
	if code.Display == "" {
		code.Display = code.Code
	}

	if r.translator != nil {
		if t, ok := r.translator.Translate(code.System, code.Code); ok {
			code.Translation = t
		}
	}
	return code
}

// findCoding returns the first coding of system that carries a code
func findCoding(cc *fhir.CodeableConcept, system string) *fhir.Coding {
	for i := range cc.Coding {
		c := &cc.Coding[i]
		if util.Deref(c.System) == system && util.Deref(c.Code) != "" {
			return c
		}
	}
	return nil
}

func describe(cc *fhir.CodeableConcept) string {
	if len(cc.Coding) == 0 {
		return "concept has no coding and no text"
	}
	systems := make([]string, 0, len(cc.Coding))
	for _, c := range cc.Coding {
		s := util.Deref(c.System)
		if s == "" {
			s = "<no system>"
		}
		systems = append(systems, s)
	}
	return "codings from " + strings.Join(systems, ", ")
}
