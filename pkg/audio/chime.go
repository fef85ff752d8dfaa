package audio

import "math"

// Tone synthesizes a sine tone as PCM s16le with a short linear
// fade-in/out to avoid clicks.
func Tone(sampleRate int, freq float64, durMS int, amplitude float64) []byte {
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	if amplitude <= 0 || amplitude > 1 {
		amplitude = 0.25
	}
	samples := sampleRate * durMS / 1000
	fade := samples / 10
	out := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		gain := 1.0
		if i < fade {
			gain = float64(i) / float64(fade)
		} else if samples-i < fade {
			gain = float64(samples-i) / float64(fade)
		}
		v := amplitude * gain * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
		s := int16(v * 32767)
		out[2*i] = byte(uint16(s))
		out[2*i+1] = byte(uint16(s) >> 8)
	}
	return out
}

// ConnectChime is the rising two-note cue played when a session
// opens.
func ConnectChime(sampleRate int) []byte {
	return append(Tone(sampleRate, 660, 90, 0.2), Tone(sampleRate, 880, 120, 0.2)...)
}

// DisconnectChime is the falling two-note cue played when a session
// ends.
func DisconnectChime(sampleRate int) []byte {
	return append(Tone(sampleRate, 880, 90, 0.2), Tone(sampleRate, 660, 120, 0.2)...)
}
