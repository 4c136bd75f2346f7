package codec

import (
	"bytes"
	"testing"
	"time"
)

func TestFormatValidate(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		valid  bool
	}{
		{
			name:   "default format",
			format: DefaultFormat,
			valid:  true,
		},
		{
			name:   "stereo 44.1kHz",
			format: Format{SampleRate: 44100, Channels: 2, BitsPerSample: 16},
			valid:  true,
		},
		{
			name:   "8-bit mono",
			format: Format{SampleRate: 8000, Channels: 1, BitsPerSample: 8},
			valid:  true,
		},
		{
			name:   "zero sample rate",
			format: Format{SampleRate: 0, Channels: 1, BitsPerSample: 16},
			valid:  false,
		},
		{
			name:   "too many channels",
			format: Format{SampleRate: 16000, Channels: 6, BitsPerSample: 16},
			valid:  false,
		},
		{
			name:   "24-bit unsupported",
			format: Format{SampleRate: 16000, Channels: 1, BitsPerSample: 24},
			valid:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.format.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid format but got error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected invalid format but got no error")
			}
		})
	}
}

func TestFormatDerivedValues(t *testing.T) {
	f := DefaultFormat

	if f.FrameSize() != 2 {
		t.Errorf("Expected frame size 2, got %d", f.FrameSize())
	}

	if f.ByteRate() != 32000 {
		t.Errorf("Expected byte rate 32000, got %d", f.ByteRate())
	}

	stereo := Format{SampleRate: 44100, Channels: 2, BitsPerSample: 16}
	if stereo.FrameSize() != 4 {
		t.Errorf("Expected frame size 4, got %d", stereo.FrameSize())
	}
}

func TestPCMFrameDuration(t *testing.T) {
	// 32000 bytes at 16kHz mono 16-bit is exactly one second
	frame := &PCMFrame{Format: DefaultFormat, Samples: make([]byte, 32000)}

	if frame.Duration() != time.Second {
		t.Errorf("Expected 1s duration, got %v", frame.Duration())
	}

	half := &PCMFrame{Format: DefaultFormat, Samples: make([]byte, 16000)}
	if half.Duration() != 500*time.Millisecond {
		t.Errorf("Expected 500ms duration, got %v", half.Duration())
	}
}

func TestDecodeRawPCM(t *testing.T) {
	payload := make([]byte, 640) // 20ms at default format

	frame, err := Decode(payload, nil)
	if err != nil {
		t.Fatalf("Failed to decode raw PCM: %v", err)
	}

	if frame.Format != DefaultFormat {
		t.Errorf("Expected default format, got %+v", frame.Format)
	}

	if len(frame.Samples) != 640 {
		t.Errorf("Expected 640 samples bytes, got %d", len(frame.Samples))
	}
}

func TestDecodeDeclaredFormat(t *testing.T) {
	declared := &Format{SampleRate: 8000, Channels: 1, BitsPerSample: 16}
	payload := make([]byte, 320)

	frame, err := Decode(payload, declared)
	if err != nil {
		t.Fatalf("Failed to decode with declared format: %v", err)
	}

	if frame.Format.SampleRate != 8000 {
		t.Errorf("Expected declared sample rate 8000, got %d", frame.Format.SampleRate)
	}
}

func TestDecodeDeclaredFormatWins(t *testing.T) {
	// A payload with a WAV prefix still decodes as raw PCM when the
	// client declared a format explicitly.
	pcm := make([]byte, 320)
	wav, err := EncodeWAV(pcm, DefaultFormat)
	if err != nil {
		t.Fatalf("Failed to encode WAV: %v", err)
	}

	declared := &Format{SampleRate: 16000, Channels: 1, BitsPerSample: 16}
	frame, err := Decode(wav, declared)
	if err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}

	if len(frame.Samples) != len(wav) {
		t.Errorf("Expected declared format to bypass WAV sniffing: got %d bytes, want %d", len(frame.Samples), len(wav))
	}
}

func TestDecodeWAVRoundTrip(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	format := Format{SampleRate: 8000, Channels: 1, BitsPerSample: 16}

	wav, err := EncodeWAV(pcm, format)
	if err != nil {
		t.Fatalf("Failed to encode WAV: %v", err)
	}

	if len(wav) != wavHeaderSize+len(pcm) {
		t.Errorf("Expected WAV size %d, got %d", wavHeaderSize+len(pcm), len(wav))
	}

	frame, err := Decode(wav, nil)
	if err != nil {
		t.Fatalf("Failed to decode WAV: %v", err)
	}

	if frame.Format != format {
		t.Errorf("Expected format %+v, got %+v", format, frame.Format)
	}

	if !bytes.Equal(frame.Samples, pcm) {
		t.Errorf("Decoded samples do not match original PCM")
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name     string
		payload  []byte
		declared *Format
	}{
		{
			name:    "empty payload",
			payload: nil,
		},
		{
			name:    "misaligned raw PCM",
			payload: make([]byte, 321), // odd length, not a multiple of 2
		},
		{
			name:     "invalid declared format",
			payload:  make([]byte, 320),
			declared: &Format{SampleRate: -1, Channels: 1, BitsPerSample: 16},
		},
		{
			name:     "misaligned against declared stereo format",
			payload:  make([]byte, 322), // not a multiple of 4
			declared: &Format{SampleRate: 16000, Channels: 2, BitsPerSample: 16},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.payload, tt.declared)
			if err == nil {
				t.Fatal("Expected decode error but got none")
			}
			if !IsDecodeError(err) {
				t.Errorf("Expected DecodeError, got %T: %v", err, err)
			}
		})
	}
}

func TestDecodeTruncatedWAV(t *testing.T) {
	pcm := make([]byte, 320)
	wav, err := EncodeWAV(pcm, DefaultFormat)
	if err != nil {
		t.Fatalf("Failed to encode WAV: %v", err)
	}

	// Corrupt the data chunk id
	copy(wav[36:40], []byte("xxxx"))

	if _, err := Decode(wav, nil); err == nil {
		t.Error("Expected error for corrupted data chunk")
	}
}

func TestEncodeWAVEmptyData(t *testing.T) {
	if _, err := EncodeWAV(nil, DefaultFormat); err == nil {
		t.Error("Expected error for empty audio data")
	}
}

func TestLooksLikeWAV(t *testing.T) {
	pcm := make([]byte, 320)
	wav, _ := EncodeWAV(pcm, DefaultFormat)

	if !looksLikeWAV(wav) {
		t.Error("Expected encoded WAV to be sniffed as WAV")
	}

	if looksLikeWAV(pcm) {
		t.Error("Expected raw PCM to not be sniffed as WAV")
	}

	if looksLikeWAV([]byte("RIFF")) {
		t.Error("Expected short prefix to not be sniffed as WAV")
	}
}
