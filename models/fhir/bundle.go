package fhir

import "encoding/json"

// Bundle is decoded shallowly; entries and resources stay raw until they are validated
type Bundle struct {
	ResourceType string          `json:"resourceType"`
	Id           *string         `json:"id,omitempty"`
	Type         *string         `json:"type,omitempty"`
	Timestamp    *string         `json:"timestamp,omitempty"`
	Entry        json.RawMessage `json:"entry,omitempty"`
}

type BundleEntry struct {
	FullUrl  *string         `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
}

// ResourceHeader holds the fields shared by every resource
type ResourceHeader struct {
	ResourceType *string `json:"resourceType"`
	Id           *string `json:"id,omitempty"`
}

// BundleTypes lists the Bundle.type codes of FHIR R4
var BundleTypes = []string{
	"document",
	"message",
	"transaction",
	"transaction-response",
	"batch",
	"batch-response",
	"history",
	"searchset",
	"collection",
}
