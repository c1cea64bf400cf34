package protocol

import (
	"github.com/dkeye/VoiceSpaces/internal/domain"
	"github.com/dkeye/VoiceSpaces/internal/engine"
)

type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func ErrorOf(err error) ErrorBody {
	return ErrorBody{Error: err.Error(), Code: domain.Code(err)}
}

type ConnectSuccess struct {
	ConnectionID domain.ConnectionID `json:"connectionId"`
}

type RoomRequest struct {
	RoomID domain.RoomID `json:"roomId"`
}

type JoinRequest struct {
	RoomID     domain.RoomID     `json:"roomId"`
	ProducerID domain.ProducerID `json:"producerId,omitempty"`
}

type Participant struct {
	ID         domain.ConnectionID `json:"id"`
	ProducerID domain.ProducerID   `json:"producerId"`
}

type ParticipantsResponse struct {
	Participants map[domain.ConnectionID]Participant `json:"participants"`
}

type UserJoined struct {
	ConnectionID domain.ConnectionID `json:"connectionId"`
	ProducerID   domain.ProducerID   `json:"producerId"`
	Msg          string              `json:"msg"`
}

type UserLeft struct {
	ConnectionID domain.ConnectionID `json:"connectionId"`
	Msg          string              `json:"msg"`
}

type CapabilitiesResponse struct {
	RTPCapabilities engine.RTPCapabilities `json:"rtpCapabilities"`
}

type CreateTransportRequest struct {
	RoomID domain.RoomID `json:"roomId"`
	// Direction is "send", "recv" or empty to latch on first use.
	Direction string `json:"direction,omitempty"`
}

// TransportResponse carries either *engine.TransportParameters or ErrorBody.
type TransportResponse struct {
	Params any `json:"params"`
}

type ConnectTransportRequest struct {
	RoomID         domain.RoomID         `json:"roomId"`
	TransportID    domain.TransportID    `json:"transportId"`
	DTLSParameters engine.DTLSParameters `json:"dtlsParameters"`
	ICEParameters  *engine.ICEParameters `json:"iceParameters,omitempty"`
	ICECandidates  []engine.ICECandidate `json:"iceCandidates,omitempty"`
}

func NewConnectTransportRequest(room domain.RoomID, id domain.TransportID, p engine.ConnectParameters) ConnectTransportRequest {
	return ConnectTransportRequest{
		RoomID:         room,
		TransportID:    id,
		DTLSParameters: p.DTLSParameters,
		ICEParameters:  p.ICEParameters,
		ICECandidates:  p.ICECandidates,
	}
}

// ConnectParameters is what the engine transport is connected with.
func (r ConnectTransportRequest) ConnectParameters() engine.ConnectParameters {
	return engine.ConnectParameters{
		DTLSParameters: r.DTLSParameters,
		ICEParameters:  r.ICEParameters,
		ICECandidates:  r.ICECandidates,
	}
}

type CreateProducerRequest struct {
	RoomID        domain.RoomID        `json:"roomId"`
	TransportID   domain.TransportID   `json:"transportId"`
	Kind          string               `json:"kind"`
	RTPParameters engine.RTPParameters `json:"rtpParameters"`
}

type ProducerResponse struct {
	ID domain.ProducerID `json:"id"`
}

type CreateConsumerRequest struct {
	RoomID          domain.RoomID          `json:"roomId"`
	TransportID     domain.TransportID     `json:"transportId"`
	ProducerID      domain.ProducerID      `json:"producerId"`
	RTPCapabilities engine.RTPCapabilities `json:"rtpCapabilities"`
}

type ConsumerParams struct {
	ID            domain.ConsumerID    `json:"id"`
	ProducerID    domain.ProducerID    `json:"producerId"`
	Kind          domain.MediaKind     `json:"kind"`
	RTPParameters engine.RTPParameters `json:"rtpParameters"`
}

// ConsumerResponse carries either *ConsumerParams or ErrorBody.
type ConsumerResponse struct {
	Params any `json:"params"`
}
