package event

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Inbound message types
const (
	TypeConnection  = "connection"
	TypeSpeechStart = "speech_start"
	TypeSpeechEnd   = "speech_end"
	TypeSpeech      = "speech"
	TypeSetForward  = "set_forward"
	TypeDisconnect  = "disconnect"
)

// Outbound message types
const (
	TypeStarted       = "started"
	TypeTranscription = "transcription"
	TypeCompletion    = "completion"
	TypeError         = "error"
	TypeStopped       = "stopped"
)

// Format describes the declared audio format of an inbound speech payload.
// All fields are optional; absent fields fall back to gateway defaults.
type Format struct {
	SampleRateHertz int    `json:"sampleRateHertz,omitempty"`
	Channels        int    `json:"channels,omitempty"`
	Encoding        string `json:"encoding,omitempty"`
}

// Inbound represents a single logical event received from a transport client
type Inbound struct {
	Type      string  `json:"type"`
	ClientID  string  `json:"clientId,omitempty"`
	Timestamp int64   `json:"timestamp,omitempty"` // Unix milliseconds
	Duration  float64 `json:"duration,omitempty"`  // seconds, speech_end only
	AudioData string  `json:"audioData,omitempty"` // base64-encoded payload
	Format    *Format `json:"format,omitempty"`
	Forward   *bool   `json:"forward,omitempty"` // set_forward only
	Message   string  `json:"message,omitempty"` // connection greeting, informational
}

// Outbound represents a single event published back to a transport client
type Outbound struct {
	Type      string `json:"type"`
	ClientID  string `json:"clientId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Text      string `json:"text"`
	IsFinal   bool   `json:"isFinal,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Parse decodes an inbound JSON message and validates its type field
func Parse(data []byte) (*Inbound, error) {
	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse inbound message: %w", err)
	}

	if msg.Type == "" {
		return nil, fmt.Errorf("inbound message missing type field")
	}

	return &msg, nil
}

// DecodeAudio decodes the base64 audio payload carried by a speech message
func (m *Inbound) DecodeAudio() ([]byte, error) {
	if m.AudioData == "" {
		return nil, fmt.Errorf("message has no audio data")
	}

	data, err := base64.StdEncoding.DecodeString(m.AudioData)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 audio data: %w", err)
	}

	return data, nil
}

// Connected builds the greeting that tells a client its assigned id
func Connected(clientID string) Outbound {
	return Outbound{Type: TypeConnection, ClientID: clientID, Message: "connected"}
}

// Started builds the event announcing a new recognition session
func Started(sessionID string) Outbound {
	return Outbound{Type: TypeStarted, SessionID: sessionID}
}

// Transcription builds a transcript event. Empty text with isFinal set
// signals "no speech detected" after a recognition timeout.
func Transcription(sessionID, text string, isFinal bool) Outbound {
	return Outbound{Type: TypeTranscription, SessionID: sessionID, Text: text, IsFinal: isFinal}
}

// Completion builds the event carrying a generated answer for a
// forwarded transcript
func Completion(sessionID, text string) Outbound {
	return Outbound{Type: TypeCompletion, SessionID: sessionID, Text: text, IsFinal: true}
}

// Error builds an error event surfaced to the client
func Error(sessionID, message string) Outbound {
	return Outbound{Type: TypeError, SessionID: sessionID, Message: message}
}

// Stopped builds the event announcing that a recognition session ended
func Stopped(sessionID string) Outbound {
	return Outbound{Type: TypeStopped, SessionID: sessionID}
}

// Encode serializes an outbound event for the transport layer
func (o Outbound) Encode() ([]byte, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("failed to encode outbound event: %w", err)
	}
	return data, nil
}
