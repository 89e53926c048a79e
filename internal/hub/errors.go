package hub

import "fmt"

// ErrorKind classifies a command failure for the error envelope echoed to
// the originating connection.
type ErrorKind string

const (
	KindProtocol     ErrorKind = "protocol_error"
	KindValidation   ErrorKind = "validation_error"
	KindNotFound     ErrorKind = "not_found"
	KindCollaborator ErrorKind = "collaborator_failure"
)

// Error is a classified command failure. Handlers return it so the router
// can answer the sender without guessing at the cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func protocolErr(format string, args ...any) *Error {
	return &Error{Kind: KindProtocol, Message: fmt.Sprintf(format, args...)}
}

func validationErr(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func notFoundErr(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func collaboratorErr(msg string, err error) *Error {
	return &Error{Kind: KindCollaborator, Message: msg, Err: err}
}
