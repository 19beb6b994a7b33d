package issue

import (
	"errors"
	"fmt"
	"testing"

	"github.com/SanteonNL/ekaemr/models/fhir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := NewMissingRequiredField("Condition", "code").WithEntry(3, "Condition")
	wrapped := fmt.Errorf("failed to map entry: %w", err)

	assert.True(t, errors.Is(wrapped, ErrMissingRequiredField))
	assert.False(t, errors.Is(wrapped, ErrNoCodingFound))

	var target *Error
	require.True(t, errors.As(wrapped, &target))
	assert.Equal(t, 3, target.EntryIndex)
	assert.Equal(t, "code", target.Field)
}

func TestError_Message(t *testing.T) {
	err := NewUnsupportedResourceType(1, "Basic")
	assert.Equal(t, `UnsupportedResourceType at entry[1] (Basic): resource type "Basic" is not supported`, err.Error())

	bundleLevel := NewSchemaError(NoEntry, "resourceType", "expected Bundle, got %q", "Patient")
	assert.Equal(t, `SchemaError: expected Bundle, got "Patient"`, bundleLevel.Error())
}

func TestError_Recoverable(t *testing.T) {
	assert.True(t, NewUnsupportedResourceType(0, "Basic").Recoverable())
	assert.True(t, NewUnresolvedReference(0, "Condition", "subject", "Condition/1", "Patient/2").Recoverable())
	assert.False(t, NewSchemaError(0, "resource", "missing").Recoverable())
	assert.False(t, NewNoCodingFound("code", "{}").Recoverable())
}

func TestWithEntry_DoesNotMutateOriginal(t *testing.T) {
	orig := NewNoCodingFound("code", "{}")
	scoped := orig.WithEntry(2, "Observation")

	assert.Equal(t, NoEntry, orig.EntryIndex)
	assert.Equal(t, 2, scoped.EntryIndex)
	assert.Equal(t, "Observation", scoped.ResourceType)
}

func TestToOperationOutcome(t *testing.T) {
	reported := []*Error{NewUnsupportedResourceType(1, "Basic")}
	failure := NewMissingRequiredField("Condition", "code").WithEntry(0, "Condition")

	outcome := ToOperationOutcome(reported, failure)

	require.Len(t, outcome.Issue, 2)
	assert.Equal(t, "OperationOutcome", outcome.ResourceType)
	assert.Equal(t, fhir.IssueSeverityWarning, outcome.Issue[0].Severity)
	assert.Equal(t, fhir.IssueTypeNotSupported, outcome.Issue[0].Code)
	assert.Equal(t, []string{"Bundle.entry[1].resource"}, outcome.Issue[0].Expression)
	assert.Equal(t, fhir.IssueSeverityFatal, outcome.Issue[1].Severity)
	assert.Equal(t, fhir.IssueTypeRequired, outcome.Issue[1].Code)
	assert.Equal(t, []string{"Bundle.entry[0].resource.code"}, outcome.Issue[1].Expression)
}

func TestModeOf(t *testing.T) {
	assert.Equal(t, Lenient, ModeOf(true))
	assert.Equal(t, Strict, ModeOf(false))
	assert.Equal(t, "lenient", Lenient.String())
}
