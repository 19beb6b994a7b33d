package fhir

type IssueSeverity string

const (
	IssueSeverityFatal       IssueSeverity = "fatal"
	IssueSeverityError       IssueSeverity = "error"
	IssueSeverityWarning     IssueSeverity = "warning"
	IssueSeverityInformation IssueSeverity = "information"
)

type IssueType string

const (
	IssueTypeStructure    IssueType = "structure"
	IssueTypeRequired     IssueType = "required"
	IssueTypeNotSupported IssueType = "not-supported"
	IssueTypeDuplicate    IssueType = "duplicate"
	IssueTypeNotFound     IssueType = "not-found"
	IssueTypeCodeInvalid  IssueType = "code-invalid"
	IssueTypeProcessing   IssueType = "processing"
)

type OperationOutcome struct {
	ResourceType string                  `json:"resourceType"`
	Issue        []OperationOutcomeIssue `json:"issue"`
}

type OperationOutcomeIssue struct {
	Severity    IssueSeverity    `json:"severity"`
	Code        IssueType        `json:"code"`
	Details     *CodeableConcept `json:"details,omitempty"`
	Diagnostics *string          `json:"diagnostics,omitempty"`
	Expression  []string         `json:"expression,omitempty"`
}
