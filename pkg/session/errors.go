package session

import "fmt"

// Kind classifies every failure the session core can surface.
type Kind uint8

const (
	NotFound Kind = iota + 1
	Unauthorized
	Upstream
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case Unauthorized:
		return "unauthorized"
	case Upstream:
		return "upstream"
	}
	return "unknown"
}

type Error struct {
	Kind    Kind
	Subject string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Subject, e.cause)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Subject)
}

func (e *Error) Unwrap() error { return e.cause }

// Is makes sentinel matching work for wrapped upstream copies.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Subject == e.Subject
}

var (
	ErrUserNotFound    = &Error{Kind: NotFound, Subject: "user"}
	ErrRoomNotFound    = &Error{Kind: NotFound, Subject: "room"}
	ErrSessionNotFound = &Error{Kind: NotFound, Subject: "session"}
	ErrWrongSecret     = &Error{Kind: Unauthorized, Subject: "secret"}
	ErrNotOwner        = &Error{Kind: Unauthorized, Subject: "owner"}
)

// upstream wraps a collaborator failure so it never escapes unclassified.
func upstream(subject string, err error) *Error {
	return &Error{Kind: Upstream, Subject: subject, cause: err}
}
