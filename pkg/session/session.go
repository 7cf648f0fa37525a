package session

import "errors"

// ID represents a unique identifier for a conversation session.
// Turns within a session form an ordered queue; turns across sessions
// are independent.
type ID string

// ErrMissingSessionContext is returned when an operation requires a
// session.Context but none is present in the context.Context.
var ErrMissingSessionContext = errors.New("session context not found in context")

// Context holds information about the current session and user.
type Context struct {
	// SessionID is mandatory and scopes the conversation history queue
	SessionID ID

	// UserID is optional and recorded on interactions for attribution
	UserID string
}

// NewContext creates a new Context with the specified session ID and optional user ID.
func NewContext(sessionID ID, userID string) Context {
	return Context{
		SessionID: sessionID,
		UserID:    userID,
	}
}
