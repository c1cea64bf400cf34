package client

import (
	"errors"
	"fmt"

	"github.com/dkeye/VoiceSpaces/internal/domain"
	"github.com/dkeye/VoiceSpaces/internal/protocol"
	"github.com/goccy/go-json"
)

var (
	ErrStepTimeout  = errors.New("step timed out")
	ErrSignalClosed = errors.New("signaling channel closed")
	ErrNotIdle      = errors.New("driver already started")
)

// RemoteError is an error reported by the server in an ack.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string { return fmt.Sprintf("server: %s (%s)", e.Message, e.Code) }

// Is maps the wire code back onto the domain sentinels.
func (e *RemoteError) Is(target error) bool {
	switch e.Code {
	case "unconsumable":
		return target == domain.ErrUnconsumable
	case "not_found":
		return target == domain.ErrNotFound
	case "protocol_violation":
		return target == domain.ErrProtocolViolation
	case "room_unavailable":
		return target == domain.ErrRoomUnavailable
	case "engine_failure":
		return target == domain.ErrEngine
	case "rate_limited":
		return target == domain.ErrRateLimited
	case "fatal":
		return target == domain.ErrFatalInfra
	}
	return false
}

// ackError extracts an error body from an ack, either at the top level or
// nested under params.
func ackError(env protocol.Envelope) error {
	if len(env.Data) == 0 {
		return nil
	}
	var body struct {
		Error  string          `json:"error"`
		Code   string          `json:"code"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(env.Data, &body); err != nil {
		return nil
	}
	if body.Error != "" {
		return &RemoteError{Code: body.Code, Message: body.Error}
	}
	if len(body.Params) == 0 {
		return nil
	}
	var nested protocol.ErrorBody
	if err := json.Unmarshal(body.Params, &nested); err != nil || nested.Error == "" {
		return nil
	}
	return &RemoteError{Code: nested.Code, Message: nested.Error}
}
