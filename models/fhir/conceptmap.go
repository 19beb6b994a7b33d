package fhir

// ConceptMap is the subset of the R4 ConceptMap used for code translation
type ConceptMap struct {
	ResourceType string            `json:"resourceType"`
	Id           *string           `json:"id,omitempty"`
	Url          *string           `json:"url,omitempty"`
	Version      *string           `json:"version,omitempty"`
	Name         *string           `json:"name,omitempty"`
	Status       *string           `json:"status,omitempty"`
	SourceUri    *string           `json:"sourceUri,omitempty"`
	TargetUri    *string           `json:"targetUri,omitempty"`
	Group        []ConceptMapGroup `json:"group,omitempty"`
}

type ConceptMapGroup struct {
	Source  *string                  `json:"source,omitempty"`
	Target  *string                  `json:"target,omitempty"`
	Element []ConceptMapGroupElement `json:"element,omitempty"`
}

type ConceptMapGroupElement struct {
	Code    *string                        `json:"code,omitempty"`
	Display *string                        `json:"display,omitempty"`
	Target  []ConceptMapGroupElementTarget `json:"target,omitempty"`
}

type ConceptMapGroupElementTarget struct {
	Code        *string `json:"code,omitempty"`
	Display     *string `json:"display,omitempty"`
	Equivalence *string `json:"equivalence,omitempty"`
}
