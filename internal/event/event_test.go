package event

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseSpeechMessage(t *testing.T) {
	raw := `{
		"type": "speech",
		"clientId": "client-1",
		"timestamp": 1700000000000,
		"audioData": "AAAA",
		"format": {"sampleRateHertz": 16000, "channels": 1, "encoding": "LINEAR16"}
	}`

	msg, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Failed to parse speech message: %v", err)
	}

	if msg.Type != TypeSpeech {
		t.Errorf("Expected type %s, got %s", TypeSpeech, msg.Type)
	}
	if msg.ClientID != "client-1" {
		t.Errorf("Expected clientId client-1, got %s", msg.ClientID)
	}
	if msg.Format == nil || msg.Format.SampleRateHertz != 16000 {
		t.Errorf("Expected declared format with 16000 Hz, got %+v", msg.Format)
	}
}

func TestParseSetForward(t *testing.T) {
	msg, err := Parse([]byte(`{"type": "set_forward", "forward": false}`))
	if err != nil {
		t.Fatalf("Failed to parse set_forward: %v", err)
	}

	if msg.Forward == nil {
		t.Fatal("Expected forward flag to be present")
	}
	if *msg.Forward {
		t.Error("Expected forward flag false")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"invalid JSON", `{"type": "speech"`},
		{"missing type", `{"clientId": "client-1"}`},
		{"empty type", `{"type": ""}`},
		{"not an object", `[1, 2, 3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.raw)); err == nil {
				t.Error("Expected parse error but got none")
			}
		})
	}
}

func TestDecodeAudio(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	msg := &Inbound{
		Type:      TypeSpeech,
		AudioData: base64.StdEncoding.EncodeToString(pcm),
	}

	data, err := msg.DecodeAudio()
	if err != nil {
		t.Fatalf("Failed to decode audio: %v", err)
	}

	if len(data) != len(pcm) {
		t.Errorf("Expected %d bytes, got %d", len(pcm), len(data))
	}
}

func TestDecodeAudioErrors(t *testing.T) {
	empty := &Inbound{Type: TypeSpeech}
	if _, err := empty.DecodeAudio(); err == nil {
		t.Error("Expected error for missing audio data")
	}

	bad := &Inbound{Type: TypeSpeech, AudioData: "not-base64!!!"}
	if _, err := bad.DecodeAudio(); err == nil {
		t.Error("Expected error for invalid base64 payload")
	}
}

func TestOutboundConstructors(t *testing.T) {
	if ev := Connected("client-1"); ev.Type != TypeConnection || ev.ClientID != "client-1" {
		t.Errorf("Unexpected connected event: %+v", ev)
	}

	if ev := Started("session-1"); ev.Type != TypeStarted || ev.SessionID != "session-1" {
		t.Errorf("Unexpected started event: %+v", ev)
	}

	ev := Transcription("session-1", "hello world", true)
	if ev.Type != TypeTranscription || ev.Text != "hello world" || !ev.IsFinal {
		t.Errorf("Unexpected transcription event: %+v", ev)
	}

	ev = Completion("session-1", "an answer")
	if ev.Type != TypeCompletion || !ev.IsFinal {
		t.Errorf("Unexpected completion event: %+v", ev)
	}

	if ev := Error("session-1", "boom"); ev.Type != TypeError || ev.Message != "boom" {
		t.Errorf("Unexpected error event: %+v", ev)
	}

	if ev := Stopped("session-1"); ev.Type != TypeStopped || ev.SessionID != "session-1" {
		t.Errorf("Unexpected stopped event: %+v", ev)
	}
}

func TestEncodeEmptyTranscript(t *testing.T) {
	// Empty final transcripts must keep the text field on the wire so
	// clients can distinguish "no speech" from a malformed event.
	data, err := Transcription("session-1", "", true).Encode()
	if err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}

	if !strings.Contains(string(data), `"text":""`) {
		t.Errorf("Expected empty text field in payload, got %s", data)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Encoded event is not valid JSON: %v", err)
	}

	if decoded["type"] != TypeTranscription {
		t.Errorf("Expected type %s, got %v", TypeTranscription, decoded["type"])
	}
}
