package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// WAVInfo holds the format metadata extracted from a RIFF/WAVE header.
type WAVInfo struct {
	// SampleRate is samples per second (e.g., 16000, 48000).
	SampleRate int

	// Channels is 1 for mono, 2 for stereo.
	Channels int

	// BitsPerSample is the sample width; extraction always produces 16.
	BitsPerSample int

	// DataOffset is the byte offset of the first PCM sample.
	DataOffset int

	// DataLen is the byte length of the PCM payload.
	DataLen int
}

// Duration returns the playing time described by the header in seconds.
func (i WAVInfo) Duration() float64 {
	bytesPerSec := i.SampleRate * i.Channels * i.BitsPerSample / 8
	if bytesPerSec == 0 {
		return 0
	}
	return float64(i.DataLen) / float64(bytesPerSec)
}

// ParseWAV scans the RIFF/WAVE container in data and returns the format from
// the "fmt " sub-chunk plus the location of the PCM payload. Walking the
// chunks is more robust than assuming a fixed 44-byte header because
// encoders insert LIST and fact chunks of varying size.
func ParseWAV(data []byte) (WAVInfo, error) {
	if len(data) < 12 {
		return WAVInfo{}, errors.New("audio: WAV data too short to be a valid RIFF file")
	}
	if string(data[0:4]) != "RIFF" {
		return WAVInfo{}, errors.New("audio: WAV data missing RIFF header")
	}
	if string(data[8:12]) != "WAVE" {
		return WAVInfo{}, errors.New("audio: WAV data missing WAVE identifier")
	}

	var info WAVInfo
	foundFmt := false

	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(data) {
				fmtData := data[offset+8:]
				info.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
				info.BitsPerSample = int(binary.LittleEndian.Uint16(fmtData[14:16]))
				foundFmt = true
			}
		case "data":
			if !foundFmt {
				return WAVInfo{}, errors.New("audio: WAV data chunk precedes fmt chunk")
			}
			info.DataOffset = offset + 8
			info.DataLen = chunkSize
			if info.DataOffset+info.DataLen > len(data) {
				info.DataLen = len(data) - info.DataOffset
			}
			return info, nil
		}

		// Chunks are word-aligned: pad by 1 if the size is odd.
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return WAVInfo{}, errors.New("audio: WAV data missing data chunk")
}

// DecodeWAVMono parses a 16-bit PCM WAV buffer and returns its samples as
// float64 values in [-1, 1), downmixing stereo to mono. Non-16-bit files
// return an error.
func DecodeWAVMono(data []byte) (WAVInfo, []float64, error) {
	info, err := ParseWAV(data)
	if err != nil {
		return WAVInfo{}, nil, err
	}
	if info.BitsPerSample != 16 {
		return WAVInfo{}, nil, fmt.Errorf("audio: unsupported WAV sample width %d bits", info.BitsPerSample)
	}
	pcm := data[info.DataOffset : info.DataOffset+info.DataLen]
	if info.Channels == 2 {
		pcm = StereoToMono(pcm)
	} else if info.Channels != 1 {
		return WAVInfo{}, nil, fmt.Errorf("audio: unsupported WAV channel count %d", info.Channels)
	}
	return info, PCMToFloat64(pcm), nil
}

// ReadWAVMono reads and decodes a 16-bit PCM WAV file as mono float64
// samples. See DecodeWAVMono.
func ReadWAVMono(path string) (WAVInfo, []float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return WAVInfo{}, nil, fmt.Errorf("audio: reading WAV file: %w", err)
	}
	return DecodeWAVMono(data)
}

// wavDuration walks the chunk headers of the WAV file at path without
// loading the PCM payload, so probing a large assembled track stays cheap.
func wavDuration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("audio: opening WAV file: %w", err)
	}
	defer f.Close()

	var riff [12]byte
	if _, err := io.ReadFull(f, riff[:]); err != nil {
		return 0, fmt.Errorf("audio: reading RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return 0, errors.New("audio: not a RIFF/WAVE file")
	}

	var info WAVInfo
	foundFmt := false
	var hdr [8]byte
	for {
		if _, err := io.ReadFull(f, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return 0, errors.New("audio: WAV file missing data chunk")
			}
			return 0, fmt.Errorf("audio: reading chunk header: %w", err)
		}
		chunkID := string(hdr[0:4])
		chunkSize := int(binary.LittleEndian.Uint32(hdr[4:8]))

		switch chunkID {
		case "fmt ":
			var fmtData [16]byte
			if chunkSize < 16 {
				return 0, errors.New("audio: WAV fmt chunk too short")
			}
			if _, err := io.ReadFull(f, fmtData[:]); err != nil {
				return 0, fmt.Errorf("audio: reading fmt chunk: %w", err)
			}
			info.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(fmtData[14:16]))
			foundFmt = true
			if rest := chunkSize - 16 + chunkSize%2; rest > 0 {
				if _, err := f.Seek(int64(rest), io.SeekCurrent); err != nil {
					return 0, fmt.Errorf("audio: seeking past fmt chunk: %w", err)
				}
			}
		case "data":
			if !foundFmt {
				return 0, errors.New("audio: WAV data chunk precedes fmt chunk")
			}
			info.DataLen = chunkSize
			return info.Duration(), nil
		default:
			skip := int64(chunkSize + chunkSize%2)
			if _, err := f.Seek(skip, io.SeekCurrent); err != nil {
				return 0, fmt.Errorf("audio: seeking past %s chunk: %w", chunkID, err)
			}
		}
	}
}
