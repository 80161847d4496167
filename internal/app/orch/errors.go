package orch

import "fmt"

// Error codes sent in error events.
const (
	CodeInvalidToken    = "INVALID_TOKEN"
	CodeJoinFailed      = "JOIN_FAILED"
	CodeNotJoined       = "NOT_JOINED"
	CodePeerUnavailable = "PEER_UNAVAILABLE"
	CodeBadPayload      = "BAD_PAYLOAD"
)

// SignalError is a protocol failure reported to one connection.
// It never terminates the connection.
type SignalError struct {
	Code    string
	Message string
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func signalErr(code, msg string) *SignalError {
	return &SignalError{Code: code, Message: msg}
}
