package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrUnconsumable      = errors.New("cannot consume")
	ErrEngine            = errors.New("engine failure")
	ErrProtocolViolation = errors.New("protocol violation")
	ErrFatalInfra        = errors.New("media engine died")

	ErrRoomUnavailable  = errors.New("room unavailable")
	ErrRoleMismatch     = fmt.Errorf("transport role mismatch: %w", ErrProtocolViolation)
	ErrConnectionClosed = errors.New("connection closed")
	ErrRateLimited      = errors.New("rate limited")
	ErrBadRequest       = errors.New("bad request")

	ErrRoomNotFound       = fmt.Errorf("room %w", ErrNotFound)
	ErrTransportNotFound  = fmt.Errorf("transport %w", ErrNotFound)
	ErrProducerNotFound   = fmt.Errorf("producer %w", ErrNotFound)
	ErrConnectionNotFound = fmt.Errorf("connection %w", ErrNotFound)

	ErrRoomIDEmpty   = errors.New("room id empty")
	ErrRoomIDTooLong = errors.New("room id too long")
	ErrUnknownKind   = errors.New("unknown media kind")
	ErrUnknownRole   = errors.New("unknown transport direction")
)

// EngineError carries the cause of a rejected media engine call.
type EngineError struct {
	Op  string
	Err error
}

func (e *EngineError) Error() string { return "engine " + e.Op + ": " + e.Err.Error() }
func (e *EngineError) Unwrap() error { return e.Err }
func (e *EngineError) Is(target error) bool { return target == ErrEngine }

func NewEngineError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &EngineError{Op: op, Err: err}
}

// Code maps an error to the short kind string sent to clients.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnconsumable):
		return "unconsumable"
	case errors.Is(err, ErrProtocolViolation):
		return "protocol_violation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrRoomUnavailable):
		return "room_unavailable"
	case errors.Is(err, ErrFatalInfra):
		return "fatal"
	case errors.Is(err, ErrEngine):
		return "engine_failure"
	case errors.Is(err, ErrConnectionClosed):
		return "connection_closed"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	}
	return "bad_request"
}
