package codec

import (
	"fmt"
	"time"
)

// Format describes a raw PCM audio format
type Format struct {
	SampleRate    int `json:"sample_rate"`
	Channels      int `json:"channels"`
	BitsPerSample int `json:"bits_per_sample"`
}

// DefaultFormat is assumed for headerless payloads with no declared format:
// 16 kHz, mono, 16-bit signed little-endian.
var DefaultFormat = Format{
	SampleRate:    16000,
	Channels:      1,
	BitsPerSample: 16,
}

// FrameSize returns the size in bytes of one multi-channel sample frame
func (f Format) FrameSize() int {
	return f.Channels * f.BitsPerSample / 8
}

// ByteRate returns the number of PCM bytes per second of audio
func (f Format) ByteRate() int {
	return f.SampleRate * f.FrameSize()
}

// Validate checks that the format can describe PCM audio
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", f.SampleRate)
	}

	if f.Channels < 1 || f.Channels > 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", f.Channels)
	}

	if f.BitsPerSample != 8 && f.BitsPerSample != 16 {
		return fmt.Errorf("bits per sample must be 8 or 16, got %d", f.BitsPerSample)
	}

	return nil
}

// PCMFrame represents a decoded span of raw PCM audio
type PCMFrame struct {
	Format  Format
	Samples []byte // little-endian PCM, len is a multiple of Format.FrameSize()
}

// Duration returns the playback duration of the frame
func (p *PCMFrame) Duration() time.Duration {
	byteRate := p.Format.ByteRate()
	if byteRate == 0 {
		return 0
	}
	return time.Duration(len(p.Samples)) * time.Second / time.Duration(byteRate)
}

// DecodeError reports a malformed audio payload. It is surfaced to the
// client as an error event; the owning session keeps its current state.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "audio decode error: " + e.Reason
}

// IsDecodeError reports whether err is a payload decode failure
func IsDecodeError(err error) bool {
	_, ok := err.(*DecodeError)
	return ok
}

// Decode converts a transport-level audio payload into a PCM frame.
//
// Resolution order: an explicitly declared format wins; otherwise a WAV
// container header is sniffed; failing that the payload is treated as
// headerless raw PCM in DefaultFormat. The byte length must be a multiple
// of the frame size implied by the resolved format.
func Decode(payload []byte, declared *Format) (*PCMFrame, error) {
	if len(payload) == 0 {
		return nil, &DecodeError{Reason: "empty payload"}
	}

	if declared != nil {
		format := *declared
		if err := format.Validate(); err != nil {
			return nil, &DecodeError{Reason: fmt.Sprintf("invalid declared format: %v", err)}
		}
		return frameFromRaw(payload, format)
	}

	if looksLikeWAV(payload) {
		samples, format, err := decodeWAV(payload)
		if err != nil {
			return nil, &DecodeError{Reason: err.Error()}
		}
		return &PCMFrame{Format: format, Samples: samples}, nil
	}

	return frameFromRaw(payload, DefaultFormat)
}

// frameFromRaw validates alignment of a headerless payload against a format
func frameFromRaw(payload []byte, format Format) (*PCMFrame, error) {
	frameSize := format.FrameSize()
	if len(payload)%frameSize != 0 {
		return nil, &DecodeError{
			Reason: fmt.Sprintf("payload length %d is not a multiple of frame size %d", len(payload), frameSize),
		}
	}

	return &PCMFrame{Format: format, Samples: payload}, nil
}
