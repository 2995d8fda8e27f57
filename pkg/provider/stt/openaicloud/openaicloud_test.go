package openaicloud_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/redub/pkg/provider/stt"
	"github.com/MrWong99/redub/pkg/provider/stt/openaicloud"
)

// writeTestAudio writes a small stand-in audio file and returns its path.
func writeTestAudio(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audio.wav")
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("writing test audio: %v", err)
	}
	return path
}

func TestNew_EmptyKey_ReturnsError(t *testing.T) {
	_, err := openaicloud.New("")
	if err == nil {
		t.Fatal("expected error for empty API key, got nil")
	}
}

func TestTranscribe_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q, want Bearer test-key", got)
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("parsing multipart form: %v", err)
		}
		if got := r.FormValue("response_format"); got != "verbose_json" {
			t.Errorf("response_format = %q, want verbose_json", got)
		}
		if got := r.FormValue("language"); got != "en" {
			t.Errorf("language = %q, want en", got)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("file field missing: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"language": "english",
			"duration": 3.2,
			"text": "hello world",
			"segments": [{"start": 0.0, "end": 1.5, "text": " hello world "}],
			"words": [
				{"word": "hello", "start": 0.1, "end": 0.6},
				{"word": "world", "start": 0.7, "end": 1.2}
			]
		}`))
	}))
	defer srv.Close()

	p, err := openaicloud.New("test-key", openaicloud.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := p.Transcribe(context.Background(), stt.Request{
		AudioPath:      writeTestAudio(t, 1024),
		Language:       "en",
		WordTimestamps: true,
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Language != "english" {
		t.Errorf("Language = %q, want english", res.Language)
	}
	if len(res.Segments) != 1 {
		t.Fatalf("got %d segments, want 1", len(res.Segments))
	}
	if res.Segments[0].Text != "hello world" {
		t.Errorf("Text = %q, want %q", res.Segments[0].Text, "hello world")
	}
	if got := res.WordCount(); got != 2 {
		t.Errorf("WordCount = %d, want 2", got)
	}
}

func TestTranscribe_FileTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server must not be reached for oversized files")
	}))
	defer srv.Close()

	p, err := openaicloud.New("test-key", openaicloud.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = p.Transcribe(context.Background(), stt.Request{
		AudioPath: writeTestAudio(t, 25*1024*1024),
	})
	if !errors.Is(err, stt.ErrAudioTooLarge) {
		t.Fatalf("err = %v, want ErrAudioTooLarge", err)
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, err := openaicloud.New("test-key", openaicloud.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = p.Transcribe(context.Background(), stt.Request{AudioPath: writeTestAudio(t, 1024)})
	if err == nil {
		t.Fatal("expected error for HTTP 503, got nil")
	}
}

func TestTranscribe_MissingFile(t *testing.T) {
	p, err := openaicloud.New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.Transcribe(context.Background(), stt.Request{AudioPath: "/nonexistent/audio.wav"})
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}
