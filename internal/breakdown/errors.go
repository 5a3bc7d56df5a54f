package breakdown

import (
	"errors"
	"fmt"
)

// Kind classifies a breakdown failure for the transport layer.
type Kind int

const (
	KindInternal Kind = iota
	// KindInput is a client fault: missing files or revision fields, a
	// malformed history or an unknown session.
	KindInput
	// KindConfig means the service cannot reach a summarization backend.
	KindConfig
	// KindSummarization is a failed outbound synthesis call.
	KindSummarization
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindConfig:
		return "config"
	case KindSummarization:
		return "summarization"
	default:
		return "internal"
	}
}

// Error carries a short caller-safe Message; Err holds the detail that is
// only logged.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func inputError(msg string, err error) *Error {
	return &Error{Kind: KindInput, Message: msg, Err: err}
}

// KindOf reports the kind of err, KindInternal when it is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// PublicMessage is the message safe to return to a caller.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
