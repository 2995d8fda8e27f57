package audio_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/MrWong99/redub/pkg/audio"
)

// makeWAV builds a minimal RIFF/WAVE buffer around 16-bit PCM samples,
// with a LIST chunk inserted before data to exercise chunk walking.
func makeWAV(sampleRate, channels int, samples []int16) []byte {
	pcm := samplesToBytes(samples)
	list := []byte("INFOtest") // arbitrary LIST payload, 8 bytes

	var buf []byte
	appendU32 := func(v uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		buf = append(buf, b[:]...)
	}
	appendU16 := func(v uint16) {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], v)
		buf = append(buf, b[:]...)
	}

	buf = append(buf, "RIFF"...)
	appendU32(uint32(4 + 8 + 16 + 8 + len(list) + 8 + len(pcm)))
	buf = append(buf, "WAVE"...)

	buf = append(buf, "fmt "...)
	appendU32(16)
	appendU16(1) // PCM
	appendU16(uint16(channels))
	appendU32(uint32(sampleRate))
	appendU32(uint32(sampleRate * channels * 2)) // byte rate
	appendU16(uint16(channels * 2))              // block align
	appendU16(16)                                // bits per sample

	buf = append(buf, "LIST"...)
	appendU32(uint32(len(list)))
	buf = append(buf, list...)

	buf = append(buf, "data"...)
	appendU32(uint32(len(pcm)))
	buf = append(buf, pcm...)
	return buf
}

func TestParseWAV(t *testing.T) {
	data := makeWAV(16000, 1, []int16{100, 200, 300, 400})
	info, err := audio.ParseWAV(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.SampleRate != 16000 {
		t.Errorf("sample rate: got %d, want 16000", info.SampleRate)
	}
	if info.Channels != 1 {
		t.Errorf("channels: got %d, want 1", info.Channels)
	}
	if info.BitsPerSample != 16 {
		t.Errorf("bits: got %d, want 16", info.BitsPerSample)
	}
	if info.DataLen != 8 {
		t.Errorf("data length: got %d, want 8", info.DataLen)
	}
}

func TestParseWAV_Invalid(t *testing.T) {
	cases := map[string][]byte{
		"too short": {1, 2, 3},
		"not RIFF":  []byte("OGGSxxxxWAVE"),
		"not WAVE":  []byte("RIFFxxxxAVI "),
		"no data":   []byte("RIFF\x04\x00\x00\x00WAVE"),
	}
	for name, data := range cases {
		if _, err := audio.ParseWAV(data); err == nil {
			t.Errorf("%s: expected error, got nil", name)
		}
	}
}

func TestWAVInfoDuration(t *testing.T) {
	info := audio.WAVInfo{SampleRate: 16000, Channels: 1, BitsPerSample: 16, DataLen: 32000}
	if got := info.Duration(); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("got %v, want 1.0", got)
	}
	var zero audio.WAVInfo
	if got := zero.Duration(); got != 0 {
		t.Errorf("zero info: got %v, want 0", got)
	}
}

func TestDecodeWAVMono(t *testing.T) {
	data := makeWAV(16000, 1, []int16{0, 16384, -16384})
	info, samples, err := audio.DecodeWAVMono(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.SampleRate != 16000 {
		t.Errorf("sample rate: got %d, want 16000", info.SampleRate)
	}
	want := []float64{0, 0.5, -0.5}
	if len(samples) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(samples), len(want))
	}
	for i := range want {
		if math.Abs(samples[i]-want[i]) > 1e-12 {
			t.Errorf("sample %d: got %v, want %v", i, samples[i], want[i])
		}
	}
}

func TestDecodeWAVMono_StereoDownmix(t *testing.T) {
	// One stereo frame L=100 R=200 downmixes to 150.
	data := makeWAV(48000, 2, []int16{100, 200})
	_, samples, err := audio.DecodeWAVMono(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("expected 1 mono sample, got %d", len(samples))
	}
	want := 150.0 / 32768.0
	if math.Abs(samples[0]-want) > 1e-12 {
		t.Errorf("got %v, want %v", samples[0], want)
	}
}
