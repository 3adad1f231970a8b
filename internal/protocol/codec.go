// Package protocol implements the newline-delimited JSON envelope exchanged
// between chat clients and the server: {"event": <string>, "data": <object>}.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrDecode            = errors.New("protocol: frame is not a JSON object")
	ErrMalformedEnvelope = errors.New("protocol: envelope needs string \"event\" and object \"data\"")
)

// DecodeError reports a frame that could not be parsed at all.
type DecodeError struct {
	Frame []byte
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%v: %v", ErrDecode, e.Err)
}

func (e *DecodeError) Unwrap() []error { return []error{ErrDecode, e.Err} }

// Frame is a decoded top-level JSON object whose envelope shape has not
// been checked yet.
type Frame map[string]json.RawMessage

// Envelope is a frame with a string tag and an object payload.
type Envelope struct {
	Event Event
	Data  json.RawMessage
}

type wireEnvelope struct {
	Event Event `json:"event"`
	Data  any   `json:"data"`
}

// Encode serializes one envelope as a single newline-terminated line.
// JSON string escaping keeps newlines in data off the wire.
func Encode(event Event, data any) ([]byte, error) {
	if data == nil {
		data = struct{}{}
	}
	b, err := json.Marshal(wireEnvelope{Event: event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %q: %w", event, err)
	}
	return append(b, '\n'), nil
}

// Marshal encodes a typed payload under its own event tag.
func Marshal(p Payload) ([]byte, error) {
	if u, ok := p.(UnknownData); ok {
		return Encode(u.Tag, u.Fields)
	}
	return Encode(p.Event(), p)
}

// Decode parses one frame. Surrounding whitespace, including the line
// terminator, is ignored.
func Decode(frame []byte) (Frame, error) {
	line := bytes.TrimSpace(frame)
	var f Frame
	if err := json.Unmarshal(line, &f); err != nil {
		return nil, &DecodeError{Frame: frame, Err: err}
	}
	if f == nil {
		// a bare `null` unmarshals without error
		return nil, &DecodeError{Frame: frame, Err: errors.New("null frame")}
	}
	return f, nil
}

// Envelope checks the frame carries both envelope fields with the right
// JSON kinds.
func (f Frame) Envelope() (Envelope, error) {
	rawEvent, ok := f["event"]
	if !ok {
		return Envelope{}, fmt.Errorf("%w: missing event", ErrMalformedEnvelope)
	}
	rawData, ok := f["data"]
	if !ok {
		return Envelope{}, fmt.Errorf("%w: missing data", ErrMalformedEnvelope)
	}

	var event string
	if err := json.Unmarshal(rawEvent, &event); err != nil || bytes.Equal(bytes.TrimSpace(rawEvent), []byte("null")) {
		return Envelope{}, fmt.Errorf("%w: event is not a string", ErrMalformedEnvelope)
	}
	if d := bytes.TrimSpace(rawData); len(d) == 0 || d[0] != '{' {
		return Envelope{}, fmt.Errorf("%w: data is not an object", ErrMalformedEnvelope)
	}

	return Envelope{Event: Event(event), Data: rawData}, nil
}

// Payload decodes the data object into the type that matches the tag.
// Unrecognized tags yield UnknownData.
func (e Envelope) Payload() (Payload, error) {
	var p Payload
	var err error
	switch e.Event {
	case EventInit:
		var d InitData
		err = e.unmarshal(&d)
		p = d
	case EventUserJoined:
		var d UserJoinedData
		err = e.unmarshal(&d)
		p = d
	case EventChatMessage:
		var d ChatMessageData
		err = e.unmarshal(&d)
		p = d
	default:
		d := UnknownData{Tag: e.Event}
		err = e.unmarshal(&d.Fields)
		p = d
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (e Envelope) unmarshal(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%w: %s data: %v", ErrMalformedEnvelope, e.Event, err)
	}
	return nil
}
