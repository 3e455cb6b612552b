package shell

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// PayloadKind classifies a payload by the length of the array it was decoded from.
type PayloadKind int

const (
	// PayloadNone is the payload of a one-element array.
	PayloadNone PayloadKind = iota
	// PayloadSingle is the payload of a two-element array.
	PayloadSingle
	// PayloadList is the payload of an array with more than two elements.
	PayloadList
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadNone:
		return "none"
	case PayloadSingle:
		return "single"
	case PayloadList:
		return "list"
	default:
		return fmt.Sprintf("PayloadKind(%d)", int(k))
	}
}

// Payload holds the raw JSON values following the tag of a message.
// Values are kept undecoded so that each consumer can unmarshal them into its own types.
type Payload struct {
	Kind   PayloadKind
	Values []json.RawMessage
}

// Decode unmarshals a PayloadSingle value into v.
// A PayloadList is decoded as a JSON array of its values, so positional payloads can be read into slices or structs
// with a custom unmarshaler.
func (p Payload) Decode(v any) error {
	switch p.Kind {
	case PayloadNone:
		return errors.New("message has no payload")
	case PayloadSingle:
		return json.Unmarshal(p.Values[0], v)
	default:
		b, err := json.Marshal(p.Values)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, v)
	}
}

// Message is a single decoded line of worker output.
type Message struct {
	Tag     string
	Payload Payload
}

func (m Message) String() string {
	switch m.Payload.Kind {
	case PayloadNone:
		return fmt.Sprintf("[%s]", m.Tag)
	case PayloadSingle:
		return fmt.Sprintf("[%s %s]", m.Tag, m.Payload.Values[0])
	default:
		return fmt.Sprintf("[%s %s]", m.Tag, bytes.Join(rawToBytes(m.Payload.Values), []byte(" ")))
	}
}

func rawToBytes(values []json.RawMessage) [][]byte {
	out := make([][]byte, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// Decode parses one line of worker output.
// The returned error is a *MalformedMessageError when the line is not a non-empty JSON array with a string tag.
func Decode(line string) (Message, error) {
	var record []json.RawMessage
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		return Message{}, &MalformedMessageError{Line: line, Err: err}
	}
	if len(record) == 0 {
		return Message{}, &MalformedMessageError{Line: line, Err: errors.New("empty array")}
	}
	var tag string
	if err := json.Unmarshal(record[0], &tag); err != nil {
		return Message{}, &MalformedMessageError{Line: line, Err: fmt.Errorf("decoding tag: %w", err)}
	}

	msg := Message{Tag: tag}
	switch len(record) {
	case 1:
		msg.Payload = Payload{Kind: PayloadNone}
	case 2:
		msg.Payload = Payload{Kind: PayloadSingle, Values: record[1:]}
	default:
		msg.Payload = Payload{Kind: PayloadList, Values: record[1:]}
	}
	return msg, nil
}

// Encode serializes a command as a newline-terminated JSON array.
// Trailing nil arguments are dropped so optional arguments can be omitted; nil arguments followed by
// non-nil ones are kept as null to preserve positions.
func Encode(tag string, args ...any) ([]byte, error) {
	for len(args) > 0 && isNil(args[len(args)-1]) {
		args = args[:len(args)-1]
	}
	record := make([]any, 0, len(args)+1)
	record = append(record, tag)
	record = append(record, args...)

	b, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encoding %q command: %w", tag, err)
	}
	return append(b, '\n'), nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw == nil
	}
	return false
}
