package schema

import (
	"fmt"
	"strings"
)

// Issue is one localized validation finding, addressed by a JSON-style path
// such as "entities[2].types[0]".
type Issue struct {
	Path    string
	Message string
}

// String renders the issue as "path: message".
func (i Issue) String() string {
	return i.Path + ": " + i.Message
}

// maxReportedIssues bounds the error text fed back to the model; past this
// point more detail stops helping and starts costing tokens.
const maxReportedIssues = 20

// ValidationError reports that a decoded value failed its stage schema. Its
// Error text walks every issue with its path, formatted for direct use as
// retry feedback in the gateway's correction prompt.
type ValidationError struct {
	// Object names the expected payload (e.g., "entities").
	Object string

	// Issues lists the findings, outermost first.
	Issues []Issue
}

// Error implements the error interface with one line per issue.
func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "invalid %s: %d issue(s)", e.Object, len(e.Issues))
	for i, issue := range e.Issues {
		if i == maxReportedIssues {
			fmt.Fprintf(&b, "\n- … %d more", len(e.Issues)-maxReportedIssues)
			break
		}
		b.WriteString("\n- ")
		b.WriteString(issue.String())
	}
	return b.String()
}

// newValidationError builds a ValidationError for object with the issues.
func newValidationError(object string, issues ...Issue) *ValidationError {
	return &ValidationError{Object: object, Issues: issues}
}
