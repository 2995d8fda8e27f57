package edge

import (
	"context"
	"encoding/binary"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/redub/pkg/provider/tts"
	"github.com/coder/websocket"
)

func TestSSML(t *testing.T) {
	got := ssml(tts.Request{
		Text:    "Tom & Jerry <live>",
		Voice:   "es-MX-JorgeNeural",
		RatePct: 15,
		PitchHz: 10,
	})

	for _, want := range []string{
		"xml:lang='es-MX'",
		"name='es-MX-JorgeNeural'",
		"rate='+15%'",
		"pitch='+10Hz'",
		"Tom &amp; Jerry &lt;live&gt;",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("ssml missing %q in %q", want, got)
		}
	}
	if strings.Contains(got, "<live>") {
		t.Errorf("ssml contains unescaped text: %q", got)
	}
}

func TestSSML_NeutralProsody(t *testing.T) {
	got := ssml(tts.Request{Text: "hello", Voice: "en-US-JennyNeural"})
	if !strings.Contains(got, "rate='+0%'") || !strings.Contains(got, "pitch='+0Hz'") {
		t.Errorf("got %q, want neutral +0%% rate and +0Hz pitch", got)
	}
}

func TestFormatRate(t *testing.T) {
	tests := []struct {
		pct  int
		want string
	}{
		{0, "+0%"},
		{20, "+20%"},
		{-50, "-50%"},
		{100, "+100%"},
	}
	for _, tt := range tests {
		if got := formatRate(tt.pct); got != tt.want {
			t.Errorf("formatRate(%d) = %q, want %q", tt.pct, got, tt.want)
		}
	}
}

func TestFormatPitch(t *testing.T) {
	tests := []struct {
		hz   int
		want string
	}{
		{0, "+0Hz"},
		{8, "+8Hz"},
		{-5, "-5Hz"},
	}
	for _, tt := range tests {
		if got := formatPitch(tt.hz); got != tt.want {
			t.Errorf("formatPitch(%d) = %q, want %q", tt.hz, got, tt.want)
		}
	}
}

func TestVoiceLocale(t *testing.T) {
	tests := []struct {
		voice string
		want  string
	}{
		{"es-MX-JorgeNeural", "es-MX"},
		{"zh-CN-XiaoxiaoNeural", "zh-CN"},
		{"en-US-JennyNeural", "en-US"},
		{"Jenny", "en-US"},
		{"", "en-US"},
	}
	for _, tt := range tests {
		if got := voiceLocale(tt.voice); got != tt.want {
			t.Errorf("voiceLocale(%q) = %q, want %q", tt.voice, got, tt.want)
		}
	}
}

func TestMessagePath(t *testing.T) {
	msg := []byte("X-RequestId:abc\r\nContent-Type:application/json\r\nPath:turn.end\r\n\r\n{}")
	if got := messagePath(msg); got != "turn.end" {
		t.Errorf("got %q, want %q", got, "turn.end")
	}
}

func TestMessagePath_IgnoresBody(t *testing.T) {
	msg := []byte("X-RequestId:abc\r\n\r\nPath:sneaky")
	if got := messagePath(msg); got != "" {
		t.Errorf("got %q, want empty path", got)
	}
}

func TestBinaryAudio(t *testing.T) {
	head := []byte("X-RequestId:abc\r\nContent-Type:audio/mpeg\r\nPath:audio\r\n\r\n")
	payload := []byte{0xFF, 0xFB, 0x01, 0x02}
	msg := append(binary.BigEndian.AppendUint16(nil, uint16(len(head))), head...)
	msg = append(msg, payload...)

	got, err := binaryAudio(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("got %v, want %v", got, payload)
	}
}

func TestBinaryAudio_SkipsNonAudioFrames(t *testing.T) {
	head := []byte("Path:audio.metadata\r\n\r\n")
	msg := append(binary.BigEndian.AppendUint16(nil, uint16(len(head))), head...)
	msg = append(msg, 0x01, 0x02)

	got, err := binaryAudio(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("got %v, want nil payload for metadata frame", got)
	}
}

func TestBinaryAudio_Malformed(t *testing.T) {
	if _, err := binaryAudio([]byte{0x01}); err == nil {
		t.Error("expected error for truncated message, got nil")
	}
	// Header length pointing past the end of the message.
	msg := binary.BigEndian.AppendUint16(nil, 500)
	msg = append(msg, []byte("Path:audio")...)
	if _, err := binaryAudio(msg); err == nil {
		t.Error("expected error for oversized header length, got nil")
	}
}

func TestConfigMessage(t *testing.T) {
	got := string(configMessage(time.Now()))
	for _, want := range []string{
		"Path:speech.config\r\n\r\n",
		"X-Timestamp:",
		outputFormat,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("config message missing %q in %q", want, got)
		}
	}
}

func TestSSMLMessage(t *testing.T) {
	got := string(ssmlMessage(tts.Request{Text: "hola", Voice: "es-MX-DaliaNeural"}, time.Now()))
	for _, want := range []string{"X-RequestId:", "Path:ssml\r\n\r\n", "<speak"} {
		if !strings.Contains(got, want) {
			t.Errorf("ssml message missing %q in %q", want, got)
		}
	}
}

func TestTimestamp(t *testing.T) {
	at := time.Date(2025, time.March, 2, 15, 4, 5, 0, time.UTC)
	want := "Sun Mar 02 2025 15:04:05 GMT+0000 (Coordinated Universal Time)"
	if got := timestamp(at); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSecMSGEC(t *testing.T) {
	at := time.Date(2025, time.March, 2, 15, 0, 10, 0, time.UTC)
	got := secMSGEC(at)
	if len(got) != 64 {
		t.Fatalf("got %d hex chars, want 64", len(got))
	}
	if strings.ToUpper(got) != got {
		t.Errorf("got %q, want uppercase hex", got)
	}
	// Stable within the same five minute bucket, different across buckets.
	if other := secMSGEC(at.Add(30 * time.Second)); other != got {
		t.Errorf("token changed within bucket: %q vs %q", got, other)
	}
	if other := secMSGEC(at.Add(6 * time.Minute)); other == got {
		t.Error("token did not change across buckets")
	}
}

// mp3Frames returns n MPEG-1 Layer III frames of silence (128 kbit/s,
// 44.1 kHz), decodable enough for duration measurement.
func mp3Frames(n int) []byte {
	frame := make([]byte, 417)
	copy(frame, []byte{0xFF, 0xFB, 0x90, 0x00})
	out := make([]byte, 0, n*len(frame))
	for range n {
		out = append(out, frame...)
	}
	return out
}

// newReadAloudServer fakes the service: it consumes the speech.config and
// ssml messages, then streams one audio frame followed by turn.end.
func newReadAloudServer(t *testing.T, mp3 []byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		ctx := r.Context()

		_, cfg, err := conn.Read(ctx)
		if err != nil {
			t.Errorf("read config: %v", err)
			return
		}
		if !strings.Contains(string(cfg), "Path:speech.config") {
			t.Errorf("first message is not speech.config: %q", cfg)
		}
		_, ssmlMsg, err := conn.Read(ctx)
		if err != nil {
			t.Errorf("read ssml: %v", err)
			return
		}
		if !strings.Contains(string(ssmlMsg), "Path:ssml") {
			t.Errorf("second message is not ssml: %q", ssmlMsg)
		}

		start := "X-RequestId:1\r\nContent-Type:application/json\r\nPath:turn.start\r\n\r\n{}"
		if err := conn.Write(ctx, websocket.MessageText, []byte(start)); err != nil {
			return
		}
		if len(mp3) > 0 {
			head := []byte("X-RequestId:1\r\nContent-Type:audio/mpeg\r\nPath:audio\r\n\r\n")
			frame := append(binary.BigEndian.AppendUint16(nil, uint16(len(head))), head...)
			frame = append(frame, mp3...)
			if err := conn.Write(ctx, websocket.MessageBinary, frame); err != nil {
				return
			}
		}
		end := "X-RequestId:1\r\nContent-Type:application/json\r\nPath:turn.end\r\n\r\n{}"
		_ = conn.Write(ctx, websocket.MessageText, []byte(end))
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSynthesize(t *testing.T) {
	mp3 := mp3Frames(3)
	srv := newReadAloudServer(t, mp3)
	defer srv.Close()

	p := New(WithEndpoint(wsURL(srv)))
	out := filepath.Join(t.TempDir(), "segment_0001.mp3")
	clip, err := p.Synthesize(context.Background(), tts.Request{
		Text:    "Hola mundo",
		Voice:   "es-MX-JorgeNeural",
		OutPath: out,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if clip.Path != out {
		t.Errorf("got path %q, want %q", clip.Path, out)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading clip: %v", err)
	}
	if string(data) != string(mp3) {
		t.Errorf("clip bytes differ from streamed audio (%d vs %d bytes)", len(data), len(mp3))
	}
	// Three frames of 1152 samples at 44.1 kHz.
	want := 3 * 1152.0 / 44100.0
	if math.Abs(clip.Duration-want) > 1e-6 {
		t.Errorf("got duration %v, want %v", clip.Duration, want)
	}
}

func TestSynthesize_NoAudio(t *testing.T) {
	srv := newReadAloudServer(t, nil)
	defer srv.Close()

	p := New(WithEndpoint(wsURL(srv)))
	_, err := p.Synthesize(context.Background(), tts.Request{
		Text:    "Hola",
		Voice:   "es-MX-JorgeNeural",
		OutPath: filepath.Join(t.TempDir(), "segment_0001.mp3"),
	})
	if err == nil || !strings.Contains(err.Error(), "no audio") {
		t.Errorf("got %v, want no audio error", err)
	}
}

func TestSynthesize_InvalidRequest(t *testing.T) {
	p := New()
	if _, err := p.Synthesize(context.Background(), tts.Request{Voice: "en-US-GuyNeural"}); err == nil {
		t.Error("expected error for empty text, got nil")
	}
}
