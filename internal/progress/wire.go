package progress

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Request command and tagged message types.
const (
	CommandProgress = "progress"

	TypeProgress = "progress"
	TypeComplete = "complete"
)

// Encoder produces the payload of a progress request.
type Encoder interface {
	// Name identifies the encoding in configuration ("legacy", "command").
	Name() string
	// EncodeRequest returns one text frame asking for the latest status.
	EncodeRequest() ([]byte, error)
}

// LegacyEncoder sends the bare control string "progress".
type LegacyEncoder struct{}

func (LegacyEncoder) Name() string { return "legacy" }

func (LegacyEncoder) EncodeRequest() ([]byte, error) {
	return []byte(CommandProgress), nil
}

// CommandEncoder sends {"command":"progress"}.
type CommandEncoder struct{}

func (CommandEncoder) Name() string { return "command" }

func (CommandEncoder) EncodeRequest() ([]byte, error) {
	return json.Marshal(Command{Command: CommandProgress})
}

// Command is the structured request envelope.
type Command struct {
	Command string `json:"command"`
}

// EncoderFor returns the encoder registered under name.
// An empty name selects the command encoder.
func EncoderFor(name string) (Encoder, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "command", "json":
		return CommandEncoder{}, nil
	case "legacy", "text":
		return LegacyEncoder{}, nil
	default:
		return nil, fmt.Errorf("unknown request encoding %q", name)
	}
}

// Kind distinguishes the two inbound wire shapes.
type Kind int

const (
	// KindRaw is a plain status fragment rendered verbatim.
	KindRaw Kind = iota
	// KindTagged is a {type, data} envelope.
	KindTagged
)

func (k Kind) String() string {
	if k == KindTagged {
		return "tagged"
	}
	return "raw"
}

// Message is one decoded inbound payload.
type Message struct {
	Kind Kind

	// Type is the envelope discriminator; empty for raw messages.
	Type string

	// Data is the fragment to render.
	Data string

	// HasData is false for envelopes without a data field.
	HasData bool
}

// Raw reports whether the message is a legacy fragment.
func (m Message) Raw() bool {
	return m.Kind == KindRaw
}

type envelope struct {
	Type *string         `json:"type"`
	Data json.RawMessage `json:"data"`
}

// DecodeMode selects how inbound payloads are classified.
type DecodeMode int

const (
	// DecodeAuto tries the tagged shape first and falls back to raw for
	// payloads that are not JSON objects.
	DecodeAuto DecodeMode = iota
	// DecodeTagged accepts only envelopes.
	DecodeTagged
	// DecodeLegacy treats every payload as a raw fragment.
	DecodeLegacy
)

var decodeModeNames = map[DecodeMode]string{
	DecodeAuto:   "auto",
	DecodeTagged: "tagged",
	DecodeLegacy: "legacy",
}

func (m DecodeMode) String() string {
	if name, ok := decodeModeNames[m]; ok {
		return name
	}
	return "unknown"
}

// ParseDecodeMode maps a configuration name to a DecodeMode.
func ParseDecodeMode(name string) (DecodeMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return DecodeAuto, nil
	case "tagged", "json":
		return DecodeTagged, nil
	case "legacy", "raw", "text":
		return DecodeLegacy, nil
	default:
		return DecodeAuto, fmt.Errorf("unknown decode mode %q", name)
	}
}

// Decode classifies payload according to mode. Errors wrap ErrMalformedMessage.
func Decode(payload []byte, mode DecodeMode) (Message, error) {
	if mode == DecodeLegacy {
		return Message{Kind: KindRaw, Data: string(payload), HasData: true}, nil
	}

	trimmed := bytes.TrimSpace(payload)
	looksTagged := len(trimmed) > 0 && trimmed[0] == '{'

	if !looksTagged {
		if mode == DecodeTagged {
			return Message{}, fmt.Errorf("%w: expected a JSON envelope", ErrMalformedMessage)
		}
		return Message{Kind: KindRaw, Data: string(payload), HasData: true}, nil
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if env.Type == nil {
		return Message{}, fmt.Errorf("%w: envelope has no type", ErrMalformedMessage)
	}

	msg := Message{Kind: KindTagged, Type: *env.Type}
	if len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
		var data string
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return Message{}, fmt.Errorf("%w: data is not a string: %v", ErrMalformedMessage, err)
		}
		msg.Data = data
		msg.HasData = true
	}
	return msg, nil
}

// Envelope builds the wire form of a tagged message. Used by servers and tests.
func Envelope(msgType, data string) ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		Data string `json:"data"`
	}{Type: msgType, Data: data})
}
