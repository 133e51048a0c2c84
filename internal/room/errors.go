package room

import "fmt"

// ErrorKind classifies a command failure. Kinds are wire-visible: they are
// sent verbatim in the ack error field to the issuing connection.
type ErrorKind string

const (
	ErrInvalidInput   ErrorKind = "InvalidInput"
	ErrRoomNotFound   ErrorKind = "RoomNotFound"
	ErrRoomLocked     ErrorKind = "RoomLocked"
	ErrBuzzersLocked  ErrorKind = "BuzzersLocked"
	ErrShowingScores  ErrorKind = "ShowingScores"
	ErrForbidden      ErrorKind = "Forbidden"
	ErrPlayerNotFound ErrorKind = "PlayerNotFound"
	ErrInvalidTeam    ErrorKind = "InvalidTeam"

	// ErrAlreadyQueued is a soft signal, not a true failure: a repeated
	// buzz leaves the queue untouched and acks ok.
	ErrAlreadyQueued ErrorKind = "AlreadyQueued"
)

// Error is a typed command failure. No Error ever accompanies a partial
// mutation; transitions are all-or-nothing.
type Error struct {
	Kind ErrorKind
	msg  string
}

func (e *Error) Error() string {
	if e.msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

// NewError builds a typed failure with an optional detail message.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the failure kind from an error returned by Store
// operations. Unknown errors map to InvalidInput.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return ErrInvalidInput
}

// IsKind reports whether err is a room error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}
