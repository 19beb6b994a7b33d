package issue

import (
	"strconv"

	"github.com/SanteonNL/ekaemr/models/fhir"
	"github.com/SanteonNL/ekaemr/util"
)

// ToOperationOutcome renders conversion errors as a FHIR OperationOutcome.
// Reported (lenient) errors become warnings, the failing error is fatal.
func ToOperationOutcome(reported []*Error, failure *Error) *fhir.OperationOutcome {
	outcome := &fhir.OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue:        make([]fhir.OperationOutcomeIssue, 0, len(reported)+1),
	}

	for _, e := range reported {
		outcome.Issue = append(outcome.Issue, newOutcomeIssue(e, fhir.IssueSeverityWarning))
	}
	if failure != nil {
		outcome.Issue = append(outcome.Issue, newOutcomeIssue(failure, fhir.IssueSeverityFatal))
	}

	return outcome
}

func newOutcomeIssue(e *Error, severity fhir.IssueSeverity) fhir.OperationOutcomeIssue {
	issue := fhir.OperationOutcomeIssue{
		Severity: severity,
		Code:     issueType(e.Kind),
		Details: &fhir.CodeableConcept{
			Coding: []fhir.Coding{{
				System: util.StringPtr("urn:ekaemr:conversion-issue"),
				Code:   util.StringPtr(string(e.Kind)),
			}},
			Text: util.StringPtr(e.Detail),
		},
		Diagnostics: util.StringPtr(e.Error()),
	}
	if expr := e.expression(); expr != "" {
		issue.Expression = []string{expr}
	}
	return issue
}

func issueType(kind Kind) fhir.IssueType {
	switch kind {
	case KindSchema:
		return fhir.IssueTypeStructure
	case KindUnsupportedResource:
		return fhir.IssueTypeNotSupported
	case KindDuplicateResourceID:
		return fhir.IssueTypeDuplicate
	case KindNoCodingFound:
		return fhir.IssueTypeCodeInvalid
	case KindMissingRequiredField:
		return fhir.IssueTypeRequired
	case KindUnresolvedReference:
		return fhir.IssueTypeNotFound
	default:
		return fhir.IssueTypeProcessing
	}
}

// expression points into the Bundle, e.g. Bundle.entry[2].resource.code
func (e *Error) expression() string {
	if e.EntryIndex < 0 {
		if e.Field == "" {
			return ""
		}
		return "Bundle." + e.Field
	}
	expr := "Bundle.entry[" + strconv.Itoa(e.EntryIndex) + "].resource"
	if e.Field != "" {
		expr += "." + e.Field
	}
	return expr
}
