package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// wavHeader represents the canonical 44-byte PCM WAV header
type wavHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

const wavHeaderSize = 44

// looksLikeWAV sniffs for a RIFF/WAVE container prefix
func looksLikeWAV(data []byte) bool {
	return len(data) >= wavHeaderSize &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WAVE"
}

// decodeWAV extracts the raw PCM data and resolved format from a WAV payload
func decodeWAV(data []byte) ([]byte, Format, error) {
	if len(data) < wavHeaderSize {
		return nil, Format{}, fmt.Errorf("WAV data too short: need at least %d bytes, got %d", wavHeaderSize, len(data))
	}

	var header wavHeader
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &header); err != nil {
		return nil, Format{}, fmt.Errorf("failed to read WAV header: %w", err)
	}

	if string(header.Subchunk1ID[:]) != "fmt " {
		return nil, Format{}, fmt.Errorf("invalid WAV file: missing fmt chunk")
	}

	if string(header.Subchunk2ID[:]) != "data" {
		return nil, Format{}, fmt.Errorf("invalid WAV file: missing data chunk")
	}

	if header.AudioFormat != 1 {
		return nil, Format{}, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", header.AudioFormat)
	}

	format := Format{
		SampleRate:    int(header.SampleRate),
		Channels:      int(header.NumChannels),
		BitsPerSample: int(header.BitsPerSample),
	}

	if err := format.Validate(); err != nil {
		return nil, Format{}, fmt.Errorf("invalid WAV format: %w", err)
	}

	pcm := data[wavHeaderSize:]
	if int(header.Subchunk2Size) < len(pcm) {
		pcm = pcm[:header.Subchunk2Size]
	}

	if len(pcm) == 0 {
		return nil, Format{}, fmt.Errorf("no audio data found")
	}

	if len(pcm)%format.FrameSize() != 0 {
		return nil, Format{}, fmt.Errorf("WAV data length %d is not a multiple of frame size %d", len(pcm), format.FrameSize())
	}

	return pcm, format, nil
}

// EncodeWAV wraps raw PCM bytes in a WAV container. Used when handing a
// complete utterance to a recognition backend that expects a container.
func EncodeWAV(pcm []byte, format Format) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio data")
	}

	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("cannot encode WAV: %w", err)
	}

	dataSize := uint32(len(pcm))
	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   uint16(format.Channels),
		SampleRate:    uint32(format.SampleRate),
		ByteRate:      uint32(format.ByteRate()),
		BlockAlign:    uint16(format.FrameSize()),
		BitsPerSample: uint16(format.BitsPerSample),
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(pcm)))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	if _, err := buf.Write(pcm); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	return buf.Bytes(), nil
}
