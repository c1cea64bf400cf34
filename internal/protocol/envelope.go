package protocol

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

var ErrNoType = errors.New("message without type")

type Envelope struct {
	Type MessageType     `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

func Decode(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, ErrNoType
	}
	return env, nil
}

// Bind decodes the payload into v. A missing payload leaves v untouched.
func (e Envelope) Bind(v any) error {
	data := bytes.TrimSpace(e.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// Encode builds a frame. data may be nil.
func Encode(t MessageType, id string, data any) ([]byte, error) {
	env := struct {
		Type MessageType `json:"type"`
		ID   string      `json:"id,omitempty"`
		Data any         `json:"data,omitempty"`
	}{Type: t, ID: id, Data: data}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", t, err)
	}
	return b, nil
}

// MustEncode is for payloads built from package types only.
func MustEncode(t MessageType, id string, data any) []byte {
	b, err := Encode(t, id, data)
	if err != nil {
		panic(err)
	}
	return b
}
