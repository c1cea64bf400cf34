package engine

import (
	"strings"

	"github.com/dkeye/VoiceSpaces/internal/domain"
)

type RTCPFeedback struct {
	Type      string `json:"type"`
	Parameter string `json:"parameter,omitempty"`
}

type CodecCapability struct {
	Kind                 domain.MediaKind `json:"kind"`
	MimeType             string           `json:"mimeType"`
	PreferredPayloadType uint8            `json:"preferredPayloadType,omitempty"`
	ClockRate            uint32           `json:"clockRate"`
	Channels             uint16           `json:"channels,omitempty"`
	// Parameters is the fmtp line, e.g. "minptime=10;useinbandfec=1".
	Parameters   string         `json:"parameters,omitempty"`
	RTCPFeedback []RTCPFeedback `json:"rtcpFeedback,omitempty"`
}

type RTPCapabilities struct {
	Codecs []CodecCapability `json:"codecs"`
}

type CodecParameters struct {
	MimeType     string         `json:"mimeType"`
	PayloadType  uint8          `json:"payloadType"`
	ClockRate    uint32         `json:"clockRate"`
	Channels     uint16         `json:"channels,omitempty"`
	Parameters   string         `json:"parameters,omitempty"`
	RTCPFeedback []RTCPFeedback `json:"rtcpFeedback,omitempty"`
}

type Encoding struct {
	SSRC uint32 `json:"ssrc"`
}

type RTPParameters struct {
	MID       string            `json:"mid,omitempty"`
	Codecs    []CodecParameters `json:"codecs"`
	Encodings []Encoding        `json:"encodings"`
}

type ICEParameters struct {
	UsernameFragment string `json:"usernameFragment"`
	Password         string `json:"password"`
	ICELite          bool   `json:"iceLite,omitempty"`
}

type ICECandidate struct {
	Foundation string `json:"foundation"`
	Priority   uint32 `json:"priority"`
	Address    string `json:"address"`
	Protocol   string `json:"protocol"`
	Port       uint16 `json:"port"`
	Type       string `json:"type"`
	TCPType    string `json:"tcpType,omitempty"`
}

type Fingerprint struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

type DTLSParameters struct {
	Role         string        `json:"role,omitempty"`
	Fingerprints []Fingerprint `json:"fingerprints"`
}

// TransportParameters is what the remote side needs to build its end.
type TransportParameters struct {
	ID             string         `json:"id"`
	ICEParameters  ICEParameters  `json:"iceParameters"`
	ICECandidates  []ICECandidate `json:"iceCandidates"`
	DTLSParameters DTLSParameters `json:"dtlsParameters"`
}

// ConnectParameters are the remote side's security parameters. ICE fields are
// optional for engines that learn them from connectivity checks.
type ConnectParameters struct {
	DTLSParameters DTLSParameters `json:"dtlsParameters"`
	ICEParameters  *ICEParameters `json:"iceParameters,omitempty"`
	ICECandidates  []ICECandidate `json:"iceCandidates,omitempty"`
}

// Opus is the server-wide default audio codec.
func Opus() CodecCapability {
	return CodecCapability{
		Kind:                 domain.KindAudio,
		MimeType:             "audio/opus",
		PreferredPayloadType: 111,
		ClockRate:            48000,
		Channels:             2,
		Parameters:           "minptime=10;useinbandfec=1",
	}
}

func sameCodec(mime string, clock uint32, channels uint16, c CodecCapability) bool {
	if !strings.EqualFold(mime, c.MimeType) || clock != c.ClockRate {
		return false
	}
	return channels == 0 || c.Channels == 0 || channels == c.Channels
}

// MatchCodec finds the capability entry that can decode p.
func MatchCodec(caps RTPCapabilities, p CodecParameters) (CodecCapability, bool) {
	for _, c := range caps.Codecs {
		if sameCodec(p.MimeType, p.ClockRate, p.Channels, c) {
			return c, true
		}
	}
	return CodecCapability{}, false
}

// Compatible reports whether caps can decode at least one codec of params.
func Compatible(params RTPParameters, caps RTPCapabilities) bool {
	for _, p := range params.Codecs {
		if _, ok := MatchCodec(caps, p); ok {
			return true
		}
	}
	return false
}

// ConsumerParameters rewrites producer parameters for a consumer: the first
// codec the consumer can decode, a fresh SSRC.
func ConsumerParameters(params RTPParameters, caps RTPCapabilities, ssrc uint32) (RTPParameters, bool) {
	for _, p := range params.Codecs {
		c, ok := MatchCodec(caps, p)
		if !ok {
			continue
		}
		if c.PreferredPayloadType != 0 {
			p.PayloadType = c.PreferredPayloadType
		}
		return RTPParameters{
			Codecs:    []CodecParameters{p},
			Encodings: []Encoding{{SSRC: ssrc}},
		}, true
	}
	return RTPParameters{}, false
}
