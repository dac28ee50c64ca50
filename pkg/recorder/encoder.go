package recorder

import (
	"encoding/binary"
	"errors"
)

// Blob is one finished utterance capture, ready for transcription.
type Blob struct {
	Data       []byte
	MIME       string
	SampleRate int
}

// Encoder turns raw PCM16 samples into a transport blob.
type Encoder interface {
	Encode(samples []int16, sampleRate int) (Blob, error)
	Name() string
}

// ErrNoEncoder is returned when every encoder in the preference list fails.
var ErrNoEncoder = errors.New("recorder: no usable encoder")

// DefaultEncoders is the codec preference order: WAV first, raw PCM as
// the platform fallback.
func DefaultEncoders() []Encoder {
	return []Encoder{WAVEncoder{}, RawPCMEncoder{}}
}

// encodeFirst tries encoders in order and returns the first success.
func encodeFirst(encoders []Encoder, samples []int16, sampleRate int) (Blob, error) {
	var lastErr error
	for _, enc := range encoders {
		blob, err := enc.Encode(samples, sampleRate)
		if err == nil {
			return blob, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return Blob{}, lastErr
	}
	return Blob{}, ErrNoEncoder
}

// WAVEncoder wraps mono PCM16 in a standard 44-byte RIFF header.
type WAVEncoder struct{}

func (WAVEncoder) Name() string { return "wav" }

func (WAVEncoder) Encode(samples []int16, sampleRate int) (Blob, error) {
	const channels = 1
	dataSize := len(samples) * 2
	out := make([]byte, 44+dataSize)

	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+dataSize))
	copy(out[8:12], "WAVE")

	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], channels)
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(sampleRate*channels*2))
	binary.LittleEndian.PutUint16(out[32:34], channels*2)
	binary.LittleEndian.PutUint16(out[34:36], 16)

	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataSize))

	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[44+i*2:], uint16(s))
	}

	return Blob{Data: out, MIME: "audio/wav", SampleRate: sampleRate}, nil
}

// RawPCMEncoder emits bare little-endian PCM16 with no container.
type RawPCMEncoder struct{}

func (RawPCMEncoder) Name() string { return "pcm" }

func (RawPCMEncoder) Encode(samples []int16, sampleRate int) (Blob, error) {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return Blob{Data: out, MIME: "audio/pcm", SampleRate: sampleRate}, nil
}
