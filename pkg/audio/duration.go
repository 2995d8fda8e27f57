package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hajimehoshi/go-mp3"
)

// ErrUnsupportedFormat is returned by ClipDuration for file types it cannot
// parse in-process. Callers fall back to probing with ffprobe.
var ErrUnsupportedFormat = errors.New("audio: unsupported clip format")

// ClipDuration returns the duration of an audio file in seconds by parsing
// its headers in-process, avoiding a subprocess round trip for the small
// clips the synthesis stage produces in bulk. MP3 and WAV are supported;
// anything else returns ErrUnsupportedFormat.
func ClipDuration(path string) (float64, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return mp3Duration(path)
	case ".wav":
		return wavDuration(path)
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func mp3Duration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("audio: opening MP3 file: %w", err)
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return 0, fmt.Errorf("audio: decoding MP3 header: %w", err)
	}
	// Length reports the decoded stream size in bytes; the decoder always
	// outputs 16-bit stereo, so 4 bytes per sample frame.
	length := dec.Length()
	if length <= 0 {
		return 0, errors.New("audio: MP3 length unavailable")
	}
	return float64(length) / 4 / float64(dec.SampleRate()), nil
}
