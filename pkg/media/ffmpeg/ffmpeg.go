// Package ffmpeg implements the media.Primitive interface by shelling out to
// the ffmpeg and ffprobe binaries.
//
// Every operation runs under a per-call timeout (default 300 s) through
// exec.CommandContext, so cancelling the caller's context terminates the
// subprocess. Time-stretching prefers the pitch-preserving rubberband filter
// and falls back to atempo when the local ffmpeg build lacks librubberband;
// the missing filter is detected once and remembered.
//
// Typical usage:
//
//	p := ffmpeg.New(
//	    ffmpeg.WithTimeout(5*time.Minute),
//	)
//	if err := p.CheckInstalled(ctx); err != nil { ... }
//	err := p.ExtractAudio(ctx, "in.mp4", "out.wav", 16000, 1)
package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/MrWong99/redub/pkg/media"
)

// Compile-time interface assertion.
var _ media.Primitive = (*Primitive)(nil)

// ---- constants ----

const (
	defaultFFmpeg  = "ffmpeg"
	defaultFFprobe = "ffprobe"

	// defaultTimeout bounds every subprocess invocation.
	defaultTimeout = 300 * time.Second

	// stderrTail is how much trailing ffmpeg output is kept in error messages.
	stderrTail = 280

	// Rubberband stretch ratios outside this range are clamped; the range is
	// tighter than atempo's because extreme phase-vocoder stretching smears
	// transients audibly.
	rubberbandMinRatio = 0.7
	rubberbandMaxRatio = 1.5

	// atempo accepts speed factors in [0.5, 2.0] per chained filter instance.
	atempoMinSpeed = 0.5
	atempoMaxSpeed = 2.0

	// unityEpsilon: ratios this close to 1.0 skip the stretch entirely.
	unityEpsilon = 0.01
)

// ---- options ----

// Option is a functional option for configuring a Primitive.
type Option func(*Primitive)

// WithBinary overrides the ffmpeg executable path. Defaults to "ffmpeg" on
// the PATH.
func WithBinary(path string) Option {
	return func(p *Primitive) {
		p.ffmpegPath = path
	}
}

// WithProbeBinary overrides the ffprobe executable path. Defaults to
// "ffprobe" on the PATH.
func WithProbeBinary(path string) Option {
	return func(p *Primitive) {
		p.ffprobePath = path
	}
}

// WithTimeout sets the per-operation subprocess timeout. Defaults to 300 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Primitive) {
		p.timeout = d
	}
}

// ---- Primitive ----

// Primitive implements media.Primitive on top of the ffmpeg toolchain. It is
// safe for concurrent use; each call spawns its own subprocess.
type Primitive struct {
	ffmpegPath  string
	ffprobePath string
	timeout     time.Duration

	// noRubberband is set once a stretch attempt reports the rubberband
	// filter missing from the local build.
	noRubberband atomic.Bool
}

// New creates a Primitive with the given options applied.
func New(opts ...Option) *Primitive {
	p := &Primitive{
		ffmpegPath:  defaultFFmpeg,
		ffprobePath: defaultFFprobe,
		timeout:     defaultTimeout,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// CheckInstalled verifies that both binaries can be executed.
func (p *Primitive) CheckInstalled(ctx context.Context) error {
	for _, bin := range []string{p.ffmpegPath, p.ffprobePath} {
		if err := exec.CommandContext(ctx, bin, "-version").Run(); err != nil {
			return fmt.Errorf("ffmpeg: %s not available: %w", bin, err)
		}
	}
	return nil
}

// ---- extraction ----

// ExtractAudio decodes the audio track of src into dst at the requested rate
// and channel count. WAV destinations are written as 16-bit PCM.
func (p *Primitive) ExtractAudio(ctx context.Context, src, dst string, sampleRate, channels int) error {
	if err := ensureDir(dst); err != nil {
		return err
	}
	args := []string{
		"-y", "-i", src,
		"-vn",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
	}
	args = append(args, codecForExt(dst)...)
	args = append(args, dst)
	_, err := p.runFFmpeg(ctx, "extracting audio", args)
	return err
}

// ExtractRange extracts the window [start, start+duration) of src.
func (p *Primitive) ExtractRange(ctx context.Context, src, dst string, start, duration float64, sampleRate, channels int) error {
	if err := ensureDir(dst); err != nil {
		return err
	}
	args := []string{
		"-y", "-i", src,
		"-ss", formatSeconds(start),
		"-t", formatSeconds(duration),
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
	}
	args = append(args, codecForExt(dst)...)
	args = append(args, dst)
	_, err := p.runFFmpeg(ctx, "extracting range", args)
	return err
}

// ApplyFilter runs a libavfilter expression over src.
func (p *Primitive) ApplyFilter(ctx context.Context, src, dst, filter string) error {
	if err := ensureDir(dst); err != nil {
		return err
	}
	args := []string{"-y", "-i", src, "-af", filter}
	args = append(args, codecForExt(dst)...)
	args = append(args, dst)
	_, err := p.runFFmpeg(ctx, "applying filter "+filterName(filter), args)
	return err
}

// ---- probing ----

// ProbeDuration returns the container-reported duration of path in seconds.
func (p *Primitive) ProbeDuration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
	out, err := p.runFFprobe(ctx, args)
	if err != nil {
		return 0, err
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffmpeg: parsing probed duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return d, nil
}

// AnalyzeLoudness runs a loudnorm measurement pass and parses the JSON block
// the filter prints at the end of stderr. The filter emits numeric values as
// strings and may print "-inf" for silent input, so parsing is lenient and
// substitutes conventional defaults for unusable values.
func (p *Primitive) AnalyzeLoudness(ctx context.Context, path string) (media.Loudness, error) {
	args := []string{
		"-i", path,
		"-af", media.Loudnorm + ":print_format=json",
		"-f", "null", "-",
	}
	stderr, err := p.runFFmpeg(ctx, "analyzing loudness", args)
	if err != nil {
		return media.Loudness{}, err
	}

	out := string(stderr)
	open := strings.LastIndex(out, "{")
	close_ := strings.LastIndex(out, "}")
	if open < 0 || close_ <= open {
		return media.Loudness{}, fmt.Errorf("ffmpeg: no loudness JSON in analysis output for %s", filepath.Base(path))
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(out[open:close_+1]), &raw); err != nil {
		return media.Loudness{}, fmt.Errorf("ffmpeg: parsing loudness JSON: %w", err)
	}

	return media.Loudness{
		IntegratedLUFS: safeFloat(raw["input_i"], -23),
		TruePeakDB:     safeFloat(raw["input_tp"], -1),
		RangeLU:        safeFloat(raw["input_lra"], 7),
		ThresholdLUFS:  safeFloat(raw["input_thresh"], -33),
		TargetOffset:   safeFloat(raw["target_offset"], 0),
	}, nil
}

// ---- silence and concatenation ----

// GenerateSilence writes a silent clip to dst. The codec follows dst's
// extension so silences can sit next to TTS clips in a concat list.
func (p *Primitive) GenerateSilence(ctx context.Context, dst string, duration float64, sampleRate, channels int) error {
	if err := ensureDir(dst); err != nil {
		return err
	}
	layout := "mono"
	if channels > 1 {
		layout = "stereo"
	}
	args := []string{
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("anullsrc=r=%d:cl=%s:d=%s", sampleRate, layout, formatSeconds(duration)),
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
	}
	args = append(args, codecForExt(dst)...)
	args = append(args, dst)
	_, err := p.runFFmpeg(ctx, "generating silence", args)
	return err
}

// Concat joins the inputs via the concat demuxer, re-encoding to 16-bit PCM
// at the requested rate and channel count.
func (p *Primitive) Concat(ctx context.Context, inputs []string, dst string, sampleRate, channels int) error {
	if len(inputs) == 0 {
		return fmt.Errorf("ffmpeg: concat: no input files")
	}
	if err := ensureDir(dst); err != nil {
		return err
	}

	list, err := os.CreateTemp(filepath.Dir(dst), "concat-*.txt")
	if err != nil {
		return fmt.Errorf("ffmpeg: creating concat list: %w", err)
	}
	defer os.Remove(list.Name())

	var b strings.Builder
	for _, in := range inputs {
		fmt.Fprintf(&b, "file '%s'\n", in)
	}
	if _, err := list.WriteString(b.String()); err != nil {
		list.Close()
		return fmt.Errorf("ffmpeg: writing concat list: %w", err)
	}
	if err := list.Close(); err != nil {
		return fmt.Errorf("ffmpeg: closing concat list: %w", err)
	}

	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", list.Name(),
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		dst,
	}
	_, err = p.runFFmpeg(ctx, "concatenating", args)
	return err
}

// ---- stretching ----

// Stretch retimes src by ratio (target/current duration). Rubberband is
// preferred; when the filter is missing or fails, atempo takes over with its
// own wider clamp. Ratios within 1% of unity copy the clip unmodified.
func (p *Primitive) Stretch(ctx context.Context, src, dst string, ratio float64) (media.StretchResult, error) {
	if ratio <= 0 {
		return media.StretchResult{}, fmt.Errorf("ffmpeg: stretch ratio must be positive, got %v", ratio)
	}
	if err := ensureDir(dst); err != nil {
		return media.StretchResult{}, err
	}

	in, err := p.ProbeDuration(ctx, src)
	if err != nil {
		return media.StretchResult{}, err
	}

	res := media.StretchResult{
		InputDuration:  in,
		RequestedRatio: ratio,
	}

	if math.Abs(ratio-1) <= unityEpsilon {
		if err := copyFile(src, dst); err != nil {
			return res, fmt.Errorf("ffmpeg: copying near-unity clip: %w", err)
		}
		res.AppliedRatio = ratio
		res.ActualDuration = in
		res.Method = media.StretchNone
		return res, nil
	}

	if !p.noRubberband.Load() {
		applied := clamp(ratio, rubberbandMinRatio, rubberbandMaxRatio)
		// rubberband's tempo is a speed factor: above 1 shortens the clip.
		filter := fmt.Sprintf("rubberband=tempo=%.6f", 1/applied)
		if _, rbErr := p.runFFmpeg(ctx, "stretching (rubberband)", []string{"-y", "-i", src, "-vn", "-af", filter, dst}); rbErr == nil {
			res.AppliedRatio = applied
			res.Clamped = applied != ratio
			res.Method = media.StretchRubberband
			res.ActualDuration, err = p.ProbeDuration(ctx, dst)
			if err != nil {
				return res, err
			}
			return res, nil
		} else if strings.Contains(rbErr.Error(), "No such filter") {
			p.noRubberband.Store(true)
		}
	}

	speed := clamp(1/ratio, atempoMinSpeed, atempoMaxSpeed)
	if _, err := p.runFFmpeg(ctx, "stretching (atempo)", []string{"-y", "-i", src, "-vn", "-filter:a", atempoChain(speed), dst}); err != nil {
		return res, err
	}
	res.AppliedRatio = 1 / speed
	res.Clamped = math.Abs(res.AppliedRatio-ratio) > 1e-9
	res.Method = media.StretchAtempo
	res.ActualDuration, err = p.ProbeDuration(ctx, dst)
	if err != nil {
		return res, err
	}
	return res, nil
}

// atempoChain builds an atempo expression for the given speed factor,
// chaining filter instances when the factor lies outside a single instance's
// [0.5, 2.0] range.
func atempoChain(speed float64) string {
	switch {
	case speed >= atempoMinSpeed && speed <= atempoMaxSpeed:
		return fmt.Sprintf("atempo=%.4f", speed)
	case speed < atempoMinSpeed:
		if speed > 0.25 {
			return fmt.Sprintf("atempo=0.5,atempo=%.4f", speed/0.5)
		}
		return "atempo=0.5,atempo=0.5"
	default:
		if speed < 4.0 {
			return fmt.Sprintf("atempo=2.0,atempo=%.4f", speed/2.0)
		}
		return "atempo=2.0,atempo=2.0"
	}
}

// ---- mixing, encoding, muxing ----

// Mix executes the two-track mixdown: background attenuated to a linear gain,
// voice boosted by a dB amount (professional mode) or mixed at unity with
// amix weights (quick mode), then loudness-normalized at 48 kHz.
func (p *Primitive) Mix(ctx context.Context, spec media.MixSpec) error {
	if err := ensureDir(spec.Output); err != nil {
		return err
	}

	bg := spec.BackgroundGain
	if bg == 0 {
		bg = 0.18
	}

	var filter string
	var codecArgs []string
	if spec.Quick {
		filter = fmt.Sprintf(
			"[0:a]volume=%.2f[bg];[1:a]volume=1.0[dub];[bg][dub]amix=inputs=2:duration=longest:weights=0.2 1,%s",
			bg, media.Loudnorm,
		)
		codecArgs = quickCodecArgs(spec.Codec)
	} else {
		filter = fmt.Sprintf(
			"[0:a]volume=%.2f[bg];[1:a]volume=%.1fdB[dubbed];[bg][dubbed]amix=inputs=2:duration=longest:normalize=0,%s",
			bg, spec.VoiceGainDB, media.Loudnorm,
		)
		codecArgs = mixCodecArgs(spec.Codec)
	}

	args := []string{
		"-y",
		"-i", spec.Background,
		"-i", spec.Voice,
		"-filter_complex", filter,
	}
	args = append(args, codecArgs...)
	args = append(args, "-ar", "48000", spec.Output)
	_, err := p.runFFmpeg(ctx, "mixing", args)
	return err
}

// Encode transcodes src to dst per spec.
func (p *Primitive) Encode(ctx context.Context, src, dst string, spec media.EncodeSpec) error {
	if err := ensureDir(dst); err != nil {
		return err
	}
	args := []string{"-y", "-i", src}
	if spec.Filter != "" {
		args = append(args, "-af", spec.Filter)
	}
	if spec.SampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(spec.SampleRate))
	}
	if spec.Channels > 0 {
		args = append(args, "-ac", strconv.Itoa(spec.Channels))
	}
	switch spec.Codec {
	case media.CodecAAC:
		args = append(args, "-c:a", "aac", "-b:a", "256k")
	case media.CodecMP3:
		args = append(args, "-c:a", "libmp3lame", "-q:a", "0")
	case media.CodecPCM:
		args = append(args, "-acodec", "pcm_s16le")
	}
	args = append(args, dst)
	_, err := p.runFFmpeg(ctx, "encoding", args)
	return err
}

// Mux replaces the audio of videoSrc with audioSrc, stream-copying the video.
func (p *Primitive) Mux(ctx context.Context, videoSrc, audioSrc, dst string) error {
	if err := ensureDir(dst); err != nil {
		return err
	}
	args := []string{
		"-y",
		"-i", videoSrc,
		"-i", audioSrc,
		"-c:v", "copy",
		"-map", "0:v",
		"-map", "1:a",
		"-shortest",
		dst,
	}
	_, err := p.runFFmpeg(ctx, "muxing", args)
	return err
}

func mixCodecArgs(c media.Codec) []string {
	if c == media.CodecMP3 {
		return []string{"-c:a", "libmp3lame", "-q:a", "0"}
	}
	return []string{"-c:a", "aac", "-b:a", "256k"}
}

func quickCodecArgs(c media.Codec) []string {
	if c == media.CodecMP3 {
		return []string{"-c:a", "libmp3lame", "-q:a", "2"}
	}
	return []string{"-c:a", "aac", "-b:a", "192k"}
}

// ---- subprocess plumbing ----

// runFFmpeg executes ffmpeg under the operation timeout and returns its
// stderr, which carries both error detail and filter measurement output.
func (p *Primitive) runFFmpeg(ctx context.Context, op string, args []string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return stderr.Bytes(), fmt.Errorf("ffmpeg: %s: %w", op, ctx.Err())
		}
		return stderr.Bytes(), fmt.Errorf("ffmpeg: %s: %w: %s", op, err, tail(stderr.String(), stderrTail))
	}
	return stderr.Bytes(), nil
}

// runFFprobe executes ffprobe under the operation timeout and returns stdout.
func (p *Primitive) runFFprobe(ctx context.Context, args []string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.ffprobePath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffmpeg: probing: %w", ctx.Err())
		}
		return nil, fmt.Errorf("ffmpeg: probing: %w: %s", err, tail(stderr.String(), stderrTail))
	}
	return stdout.Bytes(), nil
}

// ---- helpers ----

func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ffmpeg: creating output directory: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

// codecForExt picks explicit codec args for destinations where the container
// default would be wrong (WAV must be 16-bit PCM for downstream parsing).
func codecForExt(dst string) []string {
	if strings.EqualFold(filepath.Ext(dst), ".wav") {
		return []string{"-acodec", "pcm_s16le"}
	}
	return nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

// safeFloat converts a loudnorm JSON value (string or number) to a finite
// float64, substituting def for NaN, infinities and unparseable input.
func safeFloat(v any, def float64) float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		parsed, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return def
		}
		f = parsed
	default:
		return def
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return f
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

// filterName reports the leading filter identifier of an expression for error
// messages ("highpass=f=80" -> "highpass").
func filterName(filter string) string {
	if i := strings.IndexAny(filter, "=,:"); i > 0 {
		return filter[:i]
	}
	return filter
}
