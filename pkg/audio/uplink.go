package audio

import (
	"encoding/binary"
	"fmt"
)

// Uplink frames captured stereo audio into interleaved PCM16 messages.
type Uplink struct {
	frameSize int
	send      func(frame []byte) error
	frames    uint64
}

// NewUplink emits one message per frameSize samples of each channel.
func NewUplink(frameSize int, send func(frame []byte) error) *Uplink {
	if frameSize <= 0 {
		frameSize = 4096
	}
	return &Uplink{frameSize: frameSize, send: send}
}

// Process frames left and right and sends each frame. A nil right channel
// duplicates left. A trailing short frame is sent as is.
func (u *Uplink) Process(left, right []float32) error {
	if right == nil {
		right = left
	}
	if len(left) != len(right) {
		return fmt.Errorf("channel length mismatch: left=%d right=%d", len(left), len(right))
	}

	for off := 0; off < len(left); off += u.frameSize {
		end := off + u.frameSize
		if end > len(left) {
			end = len(left)
		}
		if err := u.send(EncodeStereo(left[off:end], right[off:end])); err != nil {
			return fmt.Errorf("send uplink frame: %w", err)
		}
		u.frames++
	}
	return nil
}

// Frames returns the number of frames sent.
func (u *Uplink) Frames() uint64 {
	return u.frames
}

// EncodeStereo interleaves left and right as little-endian int16 L/R pairs.
// Both slices must have the same length.
func EncodeStereo(left, right []float32) []byte {
	out := make([]byte, len(left)*2*bytesPerSample)
	for i := range left {
		binary.LittleEndian.PutUint16(out[i*4:], uint16(toInt16(left[i])))
		binary.LittleEndian.PutUint16(out[i*4+2:], uint16(toInt16(right[i])))
	}
	return out
}
