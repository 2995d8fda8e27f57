// Package audio provides PCM buffer utilities shared across the dubbing
// pipeline: format conversion between sample rates and channel layouts,
// RIFF/WAVE parsing, clip duration probing, and lightweight signal
// analysis (RMS level, fundamental frequency estimation).
//
// All functions operate on 16-bit little-endian PCM, the format every
// extracted or synthesized intermediate in the pipeline uses. Analysis
// functions take float64 slices in [-1, 1) as produced by [PCMToFloat64].
package audio

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// ---- pitch estimation bounds ----

const (
	// minPitchHz and maxPitchHz bound the plausible range of human speech
	// fundamentals. Estimates outside the range are rejected as noise.
	minPitchHz = 50.0
	maxPitchHz = 400.0

	// pitchWindowSec is the analysis window length. Half a second is enough
	// periods of even the lowest fundamental to correlate reliably.
	pitchWindowSec = 0.5

	// minAnalysisSec is the shortest clip worth analyzing. Below this there
	// are too few periods for autocorrelation to find anything.
	minAnalysisSec = 0.1

	// minCorrelation is the normalized autocorrelation score a lag must
	// reach to count as a detected period.
	minCorrelation = 0.1
)

// PCMToFloat64 converts 16-bit little-endian PCM bytes to float64 samples
// in [-1, 1). A trailing odd byte is ignored.
func PCMToFloat64(pcm []byte) []float64 {
	n := len(pcm) / 2
	out := make([]float64, n)
	for i := range n {
		s := int16(pcm[2*i]) | int16(pcm[2*i+1])<<8
		out[i] = float64(s) / 32768.0
	}
	return out
}

// RMS returns the root mean square level of samples, in the same linear
// scale as the input. An empty slice returns 0.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	return math.Sqrt(floats.Dot(samples, samples) / float64(len(samples)))
}

// RMSDb returns the RMS level of samples in decibels relative to full
// scale. Digital silence returns -Inf.
func RMSDb(samples []float64) float64 {
	rms := RMS(samples)
	if rms == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(rms)
}

// EstimateF0 estimates the fundamental frequency of a speech clip by
// normalized autocorrelation. It returns the estimated frequency in Hz and
// true when a pitch was detected, or 0 and false when the clip is too
// short, silent, or aperiodic.
//
// The estimate is deliberately coarse. It is used to guess speaker gender
// for voice assignment, not for musical tuning, so a single window from
// the middle of the clip is enough.
func EstimateF0(samples []float64, sampleRate int) (float64, bool) {
	if sampleRate <= 0 {
		return 0, false
	}
	if float64(len(samples)) < minAnalysisSec*float64(sampleRate) {
		return 0, false
	}

	// Normalize so the correlation threshold behaves the same regardless
	// of recording level.
	peak := floats.Norm(samples, math.Inf(1))
	if peak == 0 {
		return 0, false
	}
	norm := make([]float64, len(samples))
	for i, s := range samples {
		norm[i] = s / peak
	}

	// Analyze a window from the middle of the clip, where speech is most
	// likely steady.
	windowSize := int(pitchWindowSec * float64(sampleRate))
	if windowSize > len(norm)/2 {
		windowSize = len(norm) / 2
	}
	start := (len(norm) - windowSize) / 2
	window := norm[start : start+windowSize]

	minLag := sampleRate / int(maxPitchHz)
	maxLag := sampleRate / int(minPitchHz)

	bestLag := 0
	bestCorr := 0.0
	for lag := minLag; lag < maxLag; lag++ {
		if lag >= len(window) {
			break
		}
		n := len(window) - lag
		corr := floats.Dot(window[:n], window[lag:]) / float64(n)
		if corr > bestCorr {
			bestCorr = corr
			bestLag = lag
		}
	}

	if bestLag == 0 || bestCorr < minCorrelation {
		return 0, false
	}
	f0 := float64(sampleRate) / float64(bestLag)
	if f0 < minPitchHz || f0 > maxPitchHz {
		return 0, false
	}
	return f0, true
}
