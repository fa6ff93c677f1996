package audio

import (
	"encoding/base64"
	"encoding/binary"
	"time"
)

// Standard sample rates for the duplex pipeline: the model consumes 16kHz
// PCM and produces 24kHz PCM, both 16-bit little-endian mono.
const (
	CaptureRate  = 16000
	PlaybackRate = 24000
)

// Frame is one chunk of PCM16LE audio awaiting playback.
type Frame struct {
	Data       []byte
	SampleRate int
	Channels   int
	// Rate is the playback speed multiplier. Zero means 1x. Applied to
	// one-shot speech only, never to the live duplex path.
	Rate float64
}

// Duration returns the wall-clock play time of the frame, adjusted for the
// playback rate.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	ch := f.Channels
	if ch <= 0 {
		ch = 1
	}
	samples := len(f.Data) / 2 / ch
	d := time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
	if f.Rate > 0 && f.Rate != 1 {
		d = time.Duration(float64(d) / f.Rate)
	}
	return d
}

// FloatToPCM16 converts float samples in [-1, 1] to signed 16-bit
// little-endian PCM by multiplying by 32768 and truncating. Out-of-range
// samples are clamped instead of wrapping.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int32(s * 32768)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// PCM16ToFloat converts signed 16-bit little-endian PCM to float samples in
// [-1, 1] by dividing by 32768. A trailing odd byte is dropped.
func PCM16ToFloat(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
	}
	return out
}

// EncodeChunk packs float samples into the base64 PCM16 form sent over the
// wire to the live endpoint.
func EncodeChunk(samples []float32) string {
	return base64.StdEncoding.EncodeToString(FloatToPCM16(samples))
}

// DecodeChunk reverses EncodeChunk for inbound audio payloads.
func DecodeChunk(encoded string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(encoded)
}
