package ortc

import (
	"fmt"

	"github.com/dkeye/VoiceSpaces/internal/domain"
	"github.com/dkeye/VoiceSpaces/internal/engine"
	"github.com/pion/webrtc/v4"
)

// Conversions between the wire types and pion's ORTC types. Exported for the
// client device, which speaks the same wire format.

func ICEParametersFrom(p webrtc.ICEParameters) engine.ICEParameters {
	return engine.ICEParameters{UsernameFragment: p.UsernameFragment, Password: p.Password, ICELite: p.ICELite}
}

func ICEParametersTo(p engine.ICEParameters) webrtc.ICEParameters {
	return webrtc.ICEParameters{UsernameFragment: p.UsernameFragment, Password: p.Password, ICELite: p.ICELite}
}

func ICECandidatesFrom(cs []webrtc.ICECandidate) []engine.ICECandidate {
	out := make([]engine.ICECandidate, 0, len(cs))
	for _, c := range cs {
		out = append(out, engine.ICECandidate{
			Foundation: c.Foundation,
			Priority:   c.Priority,
			Address:    c.Address,
			Protocol:   c.Protocol.String(),
			Port:       c.Port,
			Type:       c.Typ.String(),
			TCPType:    c.TCPType,
		})
	}
	return out
}

func ICECandidatesTo(cs []engine.ICECandidate) ([]webrtc.ICECandidate, error) {
	out := make([]webrtc.ICECandidate, 0, len(cs))
	for _, c := range cs {
		proto, err := webrtc.NewICEProtocol(c.Protocol)
		if err != nil {
			return nil, fmt.Errorf("candidate %s: %w", c.Foundation, err)
		}
		typ, err := webrtc.NewICECandidateType(c.Type)
		if err != nil {
			return nil, fmt.Errorf("candidate %s: %w", c.Foundation, err)
		}
		out = append(out, webrtc.ICECandidate{
			Foundation: c.Foundation,
			Priority:   c.Priority,
			Address:    c.Address,
			Protocol:   proto,
			Port:       c.Port,
			Typ:        typ,
			Component:  1,
			TCPType:    c.TCPType,
		})
	}
	return out, nil
}

func DTLSParametersFrom(p webrtc.DTLSParameters) engine.DTLSParameters {
	out := engine.DTLSParameters{Role: p.Role.String()}
	if p.Role == webrtc.DTLSRoleUnknown {
		out.Role = ""
	}
	for _, f := range p.Fingerprints {
		out.Fingerprints = append(out.Fingerprints, engine.Fingerprint{Algorithm: f.Algorithm, Value: f.Value})
	}
	return out
}

func DTLSParametersTo(p engine.DTLSParameters) webrtc.DTLSParameters {
	out := webrtc.DTLSParameters{Role: dtlsRole(p.Role)}
	for _, f := range p.Fingerprints {
		out.Fingerprints = append(out.Fingerprints, webrtc.DTLSFingerprint{Algorithm: f.Algorithm, Value: f.Value})
	}
	return out
}

func dtlsRole(s string) webrtc.DTLSRole {
	switch s {
	case "client":
		return webrtc.DTLSRoleClient
	case "server":
		return webrtc.DTLSRoleServer
	default:
		return webrtc.DTLSRoleAuto
	}
}

func CodecType(kind domain.MediaKind) webrtc.RTPCodecType {
	if kind == domain.KindVideo {
		return webrtc.RTPCodecTypeVideo
	}
	return webrtc.RTPCodecTypeAudio
}

func CodecCapabilityTo(c engine.CodecCapability) webrtc.RTPCodecCapability {
	fb := make([]webrtc.RTCPFeedback, 0, len(c.RTCPFeedback))
	for _, f := range c.RTCPFeedback {
		fb = append(fb, webrtc.RTCPFeedback{Type: f.Type, Parameter: f.Parameter})
	}
	return webrtc.RTPCodecCapability{
		MimeType:     c.MimeType,
		ClockRate:    c.ClockRate,
		Channels:     c.Channels,
		SDPFmtpLine:  c.Parameters,
		RTCPFeedback: fb,
	}
}

// CodecParametersTo builds the media engine registration for c.
func CodecParametersTo(c engine.CodecCapability) webrtc.RTPCodecParameters {
	return webrtc.RTPCodecParameters{
		RTPCodecCapability: CodecCapabilityTo(c),
		PayloadType:        webrtc.PayloadType(c.PreferredPayloadType),
	}
}

// NewMediaEngine registers exactly codecs, nothing else.
func NewMediaEngine(codecs []engine.CodecCapability) (*webrtc.MediaEngine, error) {
	m := &webrtc.MediaEngine{}
	for _, c := range codecs {
		if err := m.RegisterCodec(CodecParametersTo(c), CodecType(c.Kind)); err != nil {
			return nil, fmt.Errorf("register %s: %w", c.MimeType, err)
		}
	}
	return m, nil
}

// ReceiveParameters tells an RTPReceiver which stream to pick up.
func ReceiveParameters(p engine.RTPParameters) (webrtc.RTPReceiveParameters, error) {
	if len(p.Encodings) == 0 || p.Encodings[0].SSRC == 0 {
		return webrtc.RTPReceiveParameters{}, ErrNoEncodings
	}
	var pt webrtc.PayloadType
	if len(p.Codecs) > 0 {
		pt = webrtc.PayloadType(p.Codecs[0].PayloadType)
	}
	return webrtc.RTPReceiveParameters{
		Encodings: []webrtc.RTPDecodingParameters{{
			RTPCodingParameters: webrtc.RTPCodingParameters{
				SSRC:        webrtc.SSRC(p.Encodings[0].SSRC),
				PayloadType: pt,
			},
		}},
	}, nil
}
