package tools

import "fmt"

// ErrorKind classifies registry lookup failures.
type ErrorKind string

const (
	KindNotFound ErrorKind = "not_found"
	KindDisabled ErrorKind = "disabled"
)

// Error is a registry failure. The executor converts these into structured
// tool messages rather than aborting the agent loop.
type Error struct {
	Kind ErrorKind
	Name string
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindDisabled:
		return fmt.Sprintf("tool %q is disabled", e.Name)
	default:
		return fmt.Sprintf("tool %q not found", e.Name)
	}
}

// NewNotFoundError reports an unknown tool name.
func NewNotFoundError(name string) *Error {
	return &Error{Kind: KindNotFound, Name: name}
}

// NewDisabledError reports a tool hidden by tool or server disablement.
func NewDisabledError(name string) *Error {
	return &Error{Kind: KindDisabled, Name: name}
}
