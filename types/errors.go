package types

import (
	"errors"
	"strconv"
)

// Error codes reported with connection loss events.
const (
	// CodeNetworkError is reported when the channel fails.
	CodeNetworkError = 503
	// CodeUserDisconnect is reported when the user closed the connection.
	CodeUserDisconnect = 418
)

// Errors signaled synchronously at the point of misuse.
var (
	// ErrTimeout: a pending request aged out without a response.
	ErrTimeout = errors.New("timeout: response not received")
	// ErrNotConnected: an attempt to write to a channel which is not ready.
	ErrNotConnected = errors.New("not connected")
	// ErrNotSubscribed: an operation which requires a live subscription was
	// attempted on an inactive topic.
	ErrNotSubscribed = errors.New("topic not subscribed")
	// ErrExhausted: the message id generator has no more ids to issue.
	ErrExhausted = errors.New("message id pool exhausted")
	// ErrOperationNotAllowed: the operation is not valid for this topic kind.
	ErrOperationNotAllowed = errors.New("operation not allowed on this topic")
	// ErrInvalidSequence: a message sequence id is out of the valid range.
	ErrInvalidSequence = errors.New("invalid message sequence id")
)

// NetworkError is a channel-level failure: abrupt close, unreachable host,
// or a client-initiated disconnect.
type NetworkError struct {
	Code int
	Text string
}

func (e *NetworkError) Error() string {
	return e.Text + " (" + strconv.Itoa(e.Code) + ")"
}

// IsUserDisconnect reports whether the failure was initiated by the client.
func (e *NetworkError) IsUserDisconnect() bool {
	return e.Code == CodeUserDisconnect
}

// NewNetworkError creates the error raised when the channel fails.
func NewNetworkError() *NetworkError {
	return &NetworkError{Code: CodeNetworkError, Text: "connection failed"}
}

// NewUserDisconnect creates the error raised when the user closes the
// connection.
func NewUserDisconnect() *NetworkError {
	return &NetworkError{Code: CodeUserDisconnect, Text: "disconnected by client"}
}

// ServerError is a server {ctrl} response with code 400 or greater.
type ServerError struct {
	Code  int
	Text  string
	Topic string
}

func (e *ServerError) Error() string {
	return e.Text + " (" + strconv.Itoa(e.Code) + ")"
}
