// Package signaling carries call setup metadata between two peers through a
// relay: a JSON codec for the three wire messages and a reconnecting
// WebSocket channel with an ordered outbound queue.
package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// Wire discriminator values. Candidates carry no type field.
const (
	typeOffer  = "OFFER"
	typeAnswer = "ANSWER"
)

// Message is one of Offer, Answer or Candidate.
type Message interface {
	isMessage()
}

// Offer carries the initiator's session description.
type Offer struct {
	SDP string
}

// Answer carries the responder's session description.
type Answer struct {
	SDP string
}

// Candidate carries one trickled connectivity candidate.
type Candidate struct {
	SDPMid        string
	SDPMLineIndex uint16
	Candidate     string
}

func (Offer) isMessage()     {}
func (Answer) isMessage()    {}
func (Candidate) isMessage() {}

// Description converts the offer into a pion session description.
func (o Offer) Description() webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: o.SDP}
}

// Description converts the answer into a pion session description.
func (a Answer) Description() webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: a.SDP}
}

// ToPion converts the candidate into the form accepted by AddICECandidate.
func (c Candidate) ToPion() webrtc.ICECandidateInit {
	mid := c.SDPMid
	idx := c.SDPMLineIndex
	return webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        &mid,
		SDPMLineIndex: &idx,
	}
}

// CandidateFromPion converts a locally gathered candidate into a wire message.
func CandidateFromPion(init webrtc.ICECandidateInit) Candidate {
	c := Candidate{Candidate: init.Candidate}
	if init.SDPMid != nil {
		c.SDPMid = *init.SDPMid
	}
	if init.SDPMLineIndex != nil {
		c.SDPMLineIndex = *init.SDPMLineIndex
	}
	return c
}

// DescriptionMessage wraps a local offer or answer for sending.
func DescriptionMessage(desc webrtc.SessionDescription) (Message, error) {
	switch desc.Type {
	case webrtc.SDPTypeOffer:
		return Offer{SDP: desc.SDP}, nil
	case webrtc.SDPTypeAnswer:
		return Answer{SDP: desc.SDP}, nil
	default:
		return nil, fmt.Errorf("unsupported description type %q", desc.Type.String())
	}
}

// ---------------------------------------------------------------------------
// Codec
// ---------------------------------------------------------------------------

type descriptionFrame struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type candidateFrame struct {
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex"`
	Candidate     string `json:"candidate"`
}

// DecodeError reports a frame that is not a valid signaling message. The
// receive loop drops such frames and keeps reading.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid signaling message: %s: %v", e.Reason, e.Err)
	}
	return "invalid signaling message: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Encode serializes a message into its JSON text frame.
func Encode(msg Message) ([]byte, error) {
	switch m := msg.(type) {
	case Offer:
		return json.Marshal(descriptionFrame{Type: typeOffer, SDP: m.SDP})
	case Answer:
		return json.Marshal(descriptionFrame{Type: typeAnswer, SDP: m.SDP})
	case Candidate:
		return json.Marshal(candidateFrame{
			SDPMid:        m.SDPMid,
			SDPMLineIndex: m.SDPMLineIndex,
			Candidate:     m.Candidate,
		})
	case nil:
		return nil, fmt.Errorf("cannot encode nil message")
	default:
		return nil, fmt.Errorf("unsupported message %T", msg)
	}
}

// Decode parses a JSON text frame. The type field, when present, decides the
// variant; a frame without it is a candidate only if it carries the
// connectivity fields.
func Decode(data []byte) (Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, &DecodeError{Reason: "not a JSON object", Err: err}
	}
	if fields == nil {
		return nil, &DecodeError{Reason: "not a JSON object"}
	}

	if raw, ok := fields["type"]; ok {
		var typ string
		if err := json.Unmarshal(raw, &typ); err != nil {
			return nil, &DecodeError{Reason: "type is not a string", Err: err}
		}

		switch typ {
		case typeOffer:
			sdp, err := stringField(fields, "sdp")
			if err != nil {
				return nil, &DecodeError{Reason: "malformed offer", Err: err}
			}
			return Offer{SDP: sdp}, nil

		case typeAnswer:
			sdp, err := stringField(fields, "sdp")
			if err != nil {
				return nil, &DecodeError{Reason: "malformed answer", Err: err}
			}
			return Answer{SDP: sdp}, nil

		default:
			return nil, &DecodeError{Reason: fmt.Sprintf("unknown type %q", typ)}
		}
	}

	return decodeCandidate(fields)
}

func decodeCandidate(fields map[string]json.RawMessage) (Message, error) {
	line, err := stringField(fields, "candidate")
	if err != nil {
		// Older mobile peers serialize their candidate object as-is, with the
		// candidate line under "sdp" next to a "serverUrl" field.
		if _, legacy := fields["serverUrl"]; !legacy {
			return nil, &DecodeError{Reason: "no type and no candidate", Err: err}
		}
		if line, err = stringField(fields, "sdp"); err != nil {
			return nil, &DecodeError{Reason: "malformed candidate", Err: err}
		}
	}

	rawMid, hasMid := fields["sdpMid"]
	rawIdx, hasIdx := fields["sdpMLineIndex"]
	if !hasMid && !hasIdx {
		return nil, &DecodeError{Reason: "candidate without sdpMid or sdpMLineIndex"}
	}

	c := Candidate{Candidate: line}
	if hasMid {
		var mid *string
		if err := json.Unmarshal(rawMid, &mid); err != nil {
			return nil, &DecodeError{Reason: "sdpMid is not a string", Err: err}
		}
		if mid != nil {
			c.SDPMid = *mid
		}
	}
	if hasIdx {
		if err := json.Unmarshal(rawIdx, &c.SDPMLineIndex); err != nil {
			return nil, &DecodeError{Reason: "sdpMLineIndex is not a media line index", Err: err}
		}
	}
	return c, nil
}

func stringField(fields map[string]json.RawMessage, key string) (string, error) {
	raw, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("missing %q", key)
	}
	var s *string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%q is not a string: %w", key, err)
	}
	if s == nil {
		return "", fmt.Errorf("%q is null", key)
	}
	return *s, nil
}
