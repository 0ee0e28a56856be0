package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	ProtocolVersion1 = "1"

	EncodingPCM16 = "pcm_s16le"

	InputSampleRateHz  = 16000
	OutputSampleRateHz = 24000
)

// Client frame types.
const (
	TypeHello   = "hello"
	TypeAudio   = "audio"
	TypeVideo   = "video"
	TypeText    = "text"
	TypeControl = "control"
)

// Server frame types.
const (
	TypeHelloAck         = "hello_ack"
	TypeInputTranscript  = "input_transcript"
	TypeOutputTranscript = "output_transcript"
	TypeTurnComplete     = "turn_complete"
	TypeInterrupted      = "interrupted"
	TypeWarning          = "warning"
	TypeError            = "error"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// AudioFormat describes negotiated live audio shape.
type AudioFormat struct {
	Encoding     string `json:"encoding"`
	SampleRateHz int    `json:"sample_rate_hz"`
	Channels     int    `json:"channels"`
}

// ClientHello opens a relay session. Model and Voice fall back to the
// gateway defaults when empty.
type ClientHello struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Model           string `json:"model,omitempty"`
	Voice           string `json:"voice,omitempty"`
	System          string `json:"system,omitempty"`
	UID             string `json:"uid,omitempty"`
	SessionID       string `json:"session_id,omitempty"`
}

// RedactedForLog omits the system instruction.
func (h ClientHello) RedactedForLog() map[string]any {
	return map[string]any{
		"type":             h.Type,
		"protocol_version": h.ProtocolVersion,
		"model":            h.Model,
		"voice":            h.Voice,
		"has_system":       strings.TrimSpace(h.System) != "",
		"has_uid":          h.UID != "",
		"session_id":       h.SessionID,
	}
}

// ClientAudio carries 16 kHz mono PCM16.
type ClientAudio struct {
	Type    string `json:"type"`
	DataB64 string `json:"data_b64"`
}

// ClientVideo carries one encoded camera or screen frame.
type ClientVideo struct {
	Type     string `json:"type"`
	MIMEType string `json:"mime_type,omitempty"`
	DataB64  string `json:"data_b64"`
}

type ClientText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ClientControl struct {
	Type string `json:"type"`
	Op   string `json:"op"`
}

func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case TypeHello:
		var msg ClientHello
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid hello frame", "")
		}
		if err := ValidateHello(msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeAudio:
		var msg ClientAudio
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid audio frame", "")
		}
		if strings.TrimSpace(msg.DataB64) == "" {
			return nil, badRequest("audio.data_b64 is required", "data_b64")
		}
		return msg, nil
	case TypeVideo:
		var msg ClientVideo
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid video frame", "")
		}
		if strings.TrimSpace(msg.DataB64) == "" {
			return nil, badRequest("video.data_b64 is required", "data_b64")
		}
		if msg.MIMEType == "" {
			msg.MIMEType = "image/jpeg"
		}
		switch msg.MIMEType {
		case "image/jpeg", "image/png":
		default:
			return nil, unsupported("unsupported video mime_type", "mime_type")
		}
		return msg, nil
	case TypeText:
		var msg ClientText
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid text frame", "")
		}
		if strings.TrimSpace(msg.Text) == "" {
			return nil, badRequest("text.text is required", "text")
		}
		return msg, nil
	case TypeControl:
		var msg ClientControl
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid control", "")
		}
		op := strings.TrimSpace(msg.Op)
		if op == "" {
			return nil, badRequest("control.op is required", "op")
		}
		if op != "end_session" {
			return nil, unsupported("unsupported control operation", "op")
		}
		msg.Op = op
		return msg, nil
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}

func ValidateHello(msg ClientHello) error {
	if strings.TrimSpace(msg.ProtocolVersion) == "" {
		return badRequest("hello.protocol_version is required", "protocol_version")
	}
	if strings.TrimSpace(msg.ProtocolVersion) != ProtocolVersion1 {
		return unsupported("unsupported protocol_version", "protocol_version")
	}
	if msg.UID != "" && strings.TrimSpace(msg.SessionID) == "" {
		return badRequest("hello.session_id is required with uid", "session_id")
	}
	return nil
}

type ServerHelloAck struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	Model           string      `json:"model"`
	Voice           string      `json:"voice"`
	AudioIn         AudioFormat `json:"audio_in"`
	AudioOut        AudioFormat `json:"audio_out"`
}

// ServerAudio carries 24 kHz mono PCM16 from the model.
type ServerAudio struct {
	Type     string `json:"type"`
	AudioB64 string `json:"audio_b64"`
}

type ServerTranscript struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ServerTurnComplete reports a committed turn. Reason is "turn_complete"
// when the model ended its turn and "silence" when the relay committed after
// the silence timeout. A model turn with no transcript carries no turn_id.
type ServerTurnComplete struct {
	Type      string `json:"type"`
	Reason    string `json:"reason,omitempty"`
	TurnID    string `json:"turn_id,omitempty"`
	UserText  string `json:"user_text,omitempty"`
	ModelText string `json:"model_text,omitempty"`
}

type ServerInterrupted struct {
	Type string `json:"type"`
}

type ServerWarning struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ServerError struct {
	Type      string         `json:"type"`
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable,omitempty"`
	Close     bool           `json:"close,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// DecodeServerMessage decodes a frame sent by the gateway.
func DecodeServerMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}

	var msg any
	switch strings.TrimSpace(envelope.Type) {
	case TypeHelloAck:
		msg = &ServerHelloAck{}
	case TypeAudio:
		msg = &ServerAudio{}
	case TypeInputTranscript, TypeOutputTranscript:
		msg = &ServerTranscript{}
	case TypeTurnComplete:
		msg = &ServerTurnComplete{}
	case TypeInterrupted:
		msg = &ServerInterrupted{}
	case TypeWarning:
		msg = &ServerWarning{}
	case TypeError:
		msg = &ServerError{}
	case "":
		return nil, badRequest("missing type", "type")
	default:
		return nil, badRequest("unsupported message type", "type")
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, badRequest("invalid "+envelope.Type+" frame", "")
	}
	return msg, nil
}
