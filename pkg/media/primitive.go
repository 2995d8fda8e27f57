// Package media defines the Primitive interface over low-level audio/video
// processing operations.
//
// Every pipeline stage that touches media files (extraction, filtering,
// probing, loudness analysis, silence generation, concatenation,
// time-stretching, mixing, muxing) goes through this interface. The ffmpeg
// subpackage implements it by shelling out to ffmpeg/ffprobe; the mock
// subpackage provides a scriptable test double. Stages depend only on the
// interface, so a future in-process implementation can replace the subprocess
// one without touching stage code.
//
// Implementations must be safe for concurrent use: synthesis and assembly run
// several per-segment operations in parallel.
package media

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Codec selects the audio codec for encoded outputs.
type Codec string

const (
	// CodecAAC encodes with the native AAC encoder.
	CodecAAC Codec = "aac"

	// CodecMP3 encodes with libmp3lame.
	CodecMP3 Codec = "mp3"

	// CodecPCM writes uncompressed 16-bit little-endian PCM (WAV).
	CodecPCM Codec = "pcm"
)

// IsValid reports whether c is a recognised codec label.
func (c Codec) IsValid() bool {
	switch c {
	case CodecAAC, CodecMP3, CodecPCM:
		return true
	}
	return false
}

// Ext returns the conventional file extension for audio encoded with c.
func (c Codec) Ext() string {
	switch c {
	case CodecMP3:
		return "mp3"
	case CodecPCM:
		return "wav"
	default:
		return "m4a"
	}
}

// StretchMethod identifies which algorithm a Stretch call ended up using.
type StretchMethod string

const (
	// StretchRubberband is pitch-preserving phase-vocoder stretching.
	StretchRubberband StretchMethod = "rubberband"

	// StretchAtempo is tempo-only resampling. Lower quality, always available.
	StretchAtempo StretchMethod = "atempo"

	// StretchNone means the requested ratio was within 1% of unity and the
	// clip was copied unmodified.
	StretchNone StretchMethod = "none"
)

// Loudness is an EBU R128 measurement of an audio file.
type Loudness struct {
	// IntegratedLUFS is the integrated program loudness (input_i).
	IntegratedLUFS float64

	// TruePeakDB is the oversampled true peak in dBTP (input_tp).
	TruePeakDB float64

	// RangeLU is the loudness range in LU (input_lra).
	RangeLU float64

	// ThresholdLUFS is the gating threshold (input_thresh).
	ThresholdLUFS float64

	// TargetOffset is the residual offset to the normalization target.
	TargetOffset float64
}

// StretchResult reports what a Stretch call actually did.
type StretchResult struct {
	// InputDuration is the measured duration of the source clip in seconds.
	InputDuration float64

	// ActualDuration is the measured duration of the output clip in seconds.
	ActualDuration float64

	// RequestedRatio is the ratio the caller asked for (target/current;
	// values above 1 slow the clip down).
	RequestedRatio float64

	// AppliedRatio is the ratio after clamping to the method's safe range.
	AppliedRatio float64

	// Clamped reports whether AppliedRatio differs from RequestedRatio.
	Clamped bool

	// Method is the algorithm that produced the output.
	Method StretchMethod
}

// MixSpec describes a two-track background+voice mixdown.
type MixSpec struct {
	// Background is the path of the original audio used as bed.
	Background string

	// Voice is the path of the dubbed voice track. It dominates the mix.
	Voice string

	// Output is the destination path. Encoded at 48 kHz.
	Output string

	// BackgroundGain is the linear gain applied to the background track
	// (0.18 keeps music and ambience audible under the voice).
	BackgroundGain float64

	// VoiceGainDB is the gain in dB applied to the voice track before mixing.
	// Ignored in quick mode, which mixes the voice at unity.
	VoiceGainDB float64

	// Codec selects the output encoding. Defaults to AAC.
	Codec Codec

	// Quick selects the single-pass variant: weighted amix, unity voice gain
	// and a lower encoder bitrate. Loudness targets are identical.
	Quick bool
}

// EncodeSpec describes a transcode of a single audio file.
type EncodeSpec struct {
	// Filter is an optional libavfilter expression applied during the
	// transcode (see the filter helpers in this package).
	Filter string

	// SampleRate resamples the output when non-zero.
	SampleRate int

	// Channels remixes the output channel count when non-zero.
	Channels int

	// Codec forces the output codec. When empty the implementation picks by
	// destination extension.
	Codec Codec
}

// Primitive is the abstraction over the media toolbox every stage builds on.
type Primitive interface {
	// ExtractAudio decodes the audio track of src into dst, resampled to
	// sampleRate Hz with the given channel count. dst's extension selects the
	// container; ".wav" yields 16-bit PCM.
	ExtractAudio(ctx context.Context, src, dst string, sampleRate, channels int) error

	// ExtractRange is ExtractAudio restricted to the window
	// [start, start+duration) seconds of src.
	ExtractRange(ctx context.Context, src, dst string, start, duration float64, sampleRate, channels int) error

	// ApplyFilter runs a libavfilter expression over src and writes the
	// result to dst, preserving sample rate and layout.
	ApplyFilter(ctx context.Context, src, dst, filter string) error

	// ProbeDuration returns the container-reported duration of a media file
	// in seconds.
	ProbeDuration(ctx context.Context, path string) (float64, error)

	// AnalyzeLoudness measures EBU R128 loudness of an audio file.
	AnalyzeLoudness(ctx context.Context, path string) (Loudness, error)

	// GenerateSilence writes a silent clip of the given duration to dst at
	// sampleRate Hz with the given channel count. dst's extension selects
	// the codec so silences can match the surrounding clips byte-format.
	GenerateSilence(ctx context.Context, dst string, duration float64, sampleRate, channels int) error

	// Concat joins the inputs in order into one continuous PCM file at
	// sampleRate Hz with the given channel count. All inputs must share a
	// codec; the output is re-encoded.
	Concat(ctx context.Context, inputs []string, dst string, sampleRate, channels int) error

	// Stretch retimes src by ratio (target/current duration; above 1 slows
	// down) and writes the result to dst. The ratio is clamped to the
	// method's safe range rather than failing; the result records the clamp.
	Stretch(ctx context.Context, src, dst string, ratio float64) (StretchResult, error)

	// Mix produces the final background+voice mixdown described by spec,
	// normalized to the package loudness targets.
	Mix(ctx context.Context, spec MixSpec) error

	// Encode transcodes src to dst per spec.
	Encode(ctx context.Context, src, dst string, spec EncodeSpec) error

	// Mux replaces the audio track of the video at videoSrc with audioSrc,
	// stream-copying the video, and writes the container to dst.
	Mux(ctx context.Context, videoSrc, audioSrc, dst string) error
}

// Loudness normalization targets shared by preprocessing and mixing
// (EBU R128 broadcast values).
const (
	NormIntegratedLUFS = -16.0
	NormTruePeakDB     = -1.5
	NormRangeLU        = 11.0
)

// Loudnorm is the two-pass loudness normalization filter at the package
// targets, usable with ApplyFilter.
const Loudnorm = "loudnorm=I=-16:TP=-1.5:LRA=11"

// Highpass returns a high-pass filter expression with the given corner
// frequency in Hz.
func Highpass(freq int) string {
	return fmt.Sprintf("highpass=f=%d", freq)
}

// Denoise returns an FFT denoiser expression. strength in [0,1] maps to the
// filter's 0-40 dB noise reduction range; the noise floor is fixed at -25 dB.
func Denoise(strength float64) string {
	if strength < 0 {
		strength = 0
	}
	if strength > 1 {
		strength = 1
	}
	return fmt.Sprintf("afftdn=nr=%d:nf=-25", int(strength*40))
}

// MaxRoomTone caps the room-tone reflection level. Stronger echoes ring
// audibly on close-miked speech.
const MaxRoomTone = 0.2

// RoomTone returns a short-echo expression that puts a hint of room ambiance
// on dry synthesized voice. amount is the reflection level, clamped to
// [0, MaxRoomTone].
func RoomTone(amount float64) string {
	if amount < 0 {
		amount = 0
	}
	if amount > MaxRoomTone {
		amount = MaxRoomTone
	}
	return fmt.Sprintf("aecho=0.8:0.88:40|60:%.2f|%.2f", amount, amount/2)
}

// videoExts are container extensions treated as video inputs.
var videoExts = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".avi":  true,
	".mov":  true,
	".webm": true,
	".flv":  true,
}

// IsVideoPath reports whether path has a video container extension. Anything
// else is treated as audio.
func IsVideoPath(path string) bool {
	return videoExts[strings.ToLower(filepath.Ext(path))]
}
