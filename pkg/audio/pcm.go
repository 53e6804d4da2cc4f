// Package audio schedules relayed PCM for gap-free playback and frames
// captured audio for the uplink.
package audio

import (
	"encoding/binary"
	"time"
)

const (
	// DownlinkSampleRate is the mono rate the actuator streams at.
	DownlinkSampleRate = 16000
	// UplinkSampleRate is the interleaved stereo rate sent to the actuator.
	UplinkSampleRate = 44100

	bytesPerSample = 2
)

// DecodePCM16 converts little-endian signed 16-bit samples to floats in
// [-1, 1) by dividing by 32768. A trailing odd byte is ignored.
func DecodePCM16(b []byte) []float32 {
	n := len(b) / bytesPerSample
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(b[i*bytesPerSample:]))
		out[i] = float32(v) / 32768
	}
	return out
}

// EncodePCM16 converts floats to little-endian signed 16-bit samples using
// the same scaling as the uplink.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*bytesPerSample:], uint16(toInt16(s)))
	}
	return out
}

// toInt16 scales positive values by 32767 and negative values by 32768,
// clamping to the int16 range.
func toInt16(v float32) int16 {
	var scaled float32
	if v < 0 {
		scaled = v * 32768
	} else {
		scaled = v * 32767
	}
	switch {
	case scaled <= -32768:
		return -32768
	case scaled >= 32767:
		return 32767
	default:
		return int16(scaled)
	}
}

// Duration returns the playout time of n samples at sampleRate.
func Duration(n int, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(sampleRate))
}
