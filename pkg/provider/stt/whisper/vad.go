package whisper

import "math"

const (
	// rmsSilenceThreshold is the normalized RMS below which a frame counts
	// as silent. Equivalent to 300 in 16-bit PCM units, which is near
	// silence against a full scale of 32767.
	rmsSilenceThreshold = 300.0 / 32768.0

	// vadFrameMs is the analysis frame length for the energy detector.
	vadFrameMs = 10

	// vadPadMs is added before and after each detected speech run so
	// utterance onsets are not clipped.
	vadPadMs = 100

	// minSpeechMs drops isolated blips shorter than this; they are noise,
	// not speech.
	minSpeechMs = 100
)

// speechRuns splits samples into speech regions separated by at least
// minSilenceMs of quiet, returning [start, end) sample index pairs in
// order. Each run is padded by vadPadMs on both sides and overlapping
// padded runs are merged. Silent input returns no runs.
func speechRuns(samples []float32, sampleRate, minSilenceMs int) [][2]int {
	frameLen := sampleRate * vadFrameMs / 1000
	if frameLen <= 0 || len(samples) == 0 {
		return nil
	}

	var (
		runs      [][2]int
		inSpeech  bool
		runStart  int
		silenceMs int
		lastVoice int // end index of the most recent voiced frame
	)

	for pos := 0; pos < len(samples); pos += frameLen {
		end := pos + frameLen
		if end > len(samples) {
			end = len(samples)
		}
		if frameRMS(samples[pos:end]) >= rmsSilenceThreshold {
			if !inSpeech {
				inSpeech = true
				runStart = pos
			}
			silenceMs = 0
			lastVoice = end
		} else if inSpeech {
			silenceMs += vadFrameMs
			if silenceMs >= minSilenceMs {
				runs = append(runs, [2]int{runStart, lastVoice})
				inSpeech = false
				silenceMs = 0
			}
		}
	}
	if inSpeech {
		runs = append(runs, [2]int{runStart, lastVoice})
	}

	pad := sampleRate * vadPadMs / 1000
	minLen := sampleRate * minSpeechMs / 1000

	var out [][2]int
	for _, r := range runs {
		if r[1]-r[0] < minLen {
			continue
		}
		start := r[0] - pad
		if start < 0 {
			start = 0
		}
		end := r[1] + pad
		if end > len(samples) {
			end = len(samples)
		}
		if len(out) > 0 && start <= out[len(out)-1][1] {
			out[len(out)-1][1] = end
			continue
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

// frameRMS returns the root mean square of one analysis frame.
func frameRMS(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(frame)))
}
