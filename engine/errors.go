package engine

import "fmt"

// Code is a machine-readable error kind.
type Code string

const (
	CodeInvalidConfiguration Code = "INVALID_CONFIGURATION"
	CodeRoleCountMismatch    Code = "ROLE_COUNT_MISMATCH"
	CodeInvalidTarget        Code = "INVALID_TARGET"
	CodeDuplicateAction      Code = "DUPLICATE_ACTION"
	CodeActionNotPermitted   Code = "ACTION_NOT_PERMITTED"
)

// Error is the engine's typed failure. Two errors match under errors.Is when
// their codes are equal, so callers compare against the Err* sentinels.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return e.Message
}

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

var (
	ErrInvalidConfiguration = &Error{Code: CodeInvalidConfiguration}
	ErrRoleCountMismatch    = &Error{Code: CodeRoleCountMismatch}
	ErrInvalidTarget        = &Error{Code: CodeInvalidTarget}
	ErrDuplicateAction      = &Error{Code: CodeDuplicateAction}
	ErrActionNotPermitted   = &Error{Code: CodeActionNotPermitted}
)

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}
