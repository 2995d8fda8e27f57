package stt_test

import (
	"testing"

	"github.com/MrWong99/redub/pkg/provider/stt"
)

func TestSegmentDuration(t *testing.T) {
	s := stt.Segment{Start: 1.5, End: 4.0}
	if got := s.Duration(); got != 2.5 {
		t.Fatalf("Duration = %v, want 2.5", got)
	}
}

func TestResultFullText(t *testing.T) {
	r := &stt.Result{Segments: []stt.Segment{
		{Text: "hello"},
		{Text: ""},
		{Text: "world"},
	}}
	if got := r.FullText(); got != "hello world" {
		t.Fatalf("FullText = %q, want %q", got, "hello world")
	}
}

func TestResultWordCount(t *testing.T) {
	r := &stt.Result{Segments: []stt.Segment{
		{Words: []stt.Word{{Text: "a"}, {Text: "b"}}},
		{Words: nil},
		{Words: []stt.Word{{Text: "c"}}},
	}}
	if got := r.WordCount(); got != 3 {
		t.Fatalf("WordCount = %d, want 3", got)
	}
}
