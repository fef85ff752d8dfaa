// Package audio provides the microphone capture source and speaker
// playback sink used by the live orchestrator, plus small PCM
// helpers. All audio is 16-bit little-endian signed PCM.
package audio

import "math"

// Level computes the RMS level of a PCM s16le buffer, normalized to
// [0, 1].
func Level(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}
	var sum float64
	n := len(pcm) / 2
	for i := 0; i < n; i++ {
		s := int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
		f := float64(s) / 32768.0
		sum += f * f
	}
	return math.Min(1, math.Sqrt(sum/float64(n)))
}
