package chat

import "errors"

// Error codes for gateway domain errors.
const (
	CodeInvalidToken    = "invalid_token"
	CodeUnauthenticated = "unauthenticated"
	CodeNotFound        = "not_found"
	CodeNotMember       = "not_member"
	CodeValidation      = "validation_error"
)

// Error wraps a code and human-readable message. Errors of this type are
// delivered back to the originating connection as an error event; they
// never affect other connections.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func gatewayError(code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// AsError extracts a gateway *Error from err, wrapping unknown failures
// under a generic message so internals don't leak to clients.
func AsError(err error) *Error {
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	return &Error{Code: CodeValidation, Message: err.Error()}
}

var (
	errUnauthenticated = gatewayError(CodeUnauthenticated, "connection is not authenticated")
	errNotMember       = gatewayError(CodeNotMember, "user is not a participant of this room")
	errRoomNotFound    = gatewayError(CodeNotFound, "room not found")
	errUserNotFound    = gatewayError(CodeNotFound, "user not found")
)
