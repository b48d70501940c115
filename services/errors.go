package services

import "errors"

var (
	// ErrNotFound is returned by stores when the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPersistence wraps write failures that aborted an operation.
	ErrPersistence = errors.New("persistence failure")

	// ErrInvariant signals state that should be impossible, such as a
	// conversation vanishing between resolution and message creation.
	ErrInvariant = errors.New("invariant violation")

	ErrEmptyContent     = errors.New("message content is empty")
	ErrInvalidKind      = errors.New("invalid message type")
	ErrInvalidRecipient = errors.New("invalid recipient")
	ErrNotParticipant   = errors.New("user is not a participant of the conversation")
)

// UserFacing reports whether err can be shown to the client verbatim.
func UserFacing(err error) bool {
	switch {
	case errors.Is(err, ErrEmptyContent),
		errors.Is(err, ErrInvalidKind),
		errors.Is(err, ErrInvalidRecipient),
		errors.Is(err, ErrNotParticipant),
		errors.Is(err, ErrNotFound):
		return true
	}
	return false
}
