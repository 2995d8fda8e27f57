package prefs_test

import (
	"context"
	"testing"

	"github.com/MrWong99/redub/internal/segment"
	"github.com/MrWong99/redub/pkg/prefs"
	"github.com/MrWong99/redub/pkg/prefs/mock"
)

func TestOutcomeDelta(t *testing.T) {
	cases := []struct {
		name string
		o    prefs.Outcome
		want float64
	}{
		{"loved and finished", prefs.Outcome{Rating: 5, Completion: 1.0}, 2.0},
		{"unrated partial watch", prefs.Outcome{Completion: 0.8, SwitchedBack: true}, 0.4},
		{"hated it", prefs.Outcome{Rating: 1}, -1.0},
		{"neutral rating", prefs.Outcome{Rating: 3, Completion: 0.5}, 0.5},
		{"nothing", prefs.Outcome{}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.o.Delta(); got != tc.want {
				t.Errorf("Delta() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestStore_PreferenceNeedsInteractions(t *testing.T) {
	ctx := context.Background()
	store := &mock.Store{}

	a := prefs.Assignment{
		JobID:    "job-1",
		Language: "es",
		Gender:   segment.GenderFemale,
		VoiceID:  "es-MX-DaliaNeural",
	}
	if err := store.RecordAssignment(ctx, a); err != nil {
		t.Fatalf("RecordAssignment: %v", err)
	}

	// Two good outcomes are still below the interaction floor.
	for range prefs.MinInteractions - 1 {
		err := store.RecordOutcome(ctx, prefs.Outcome{
			Language: "es", VoiceID: a.VoiceID, Rating: 5, Completion: 1,
		})
		if err != nil {
			t.Fatalf("RecordOutcome: %v", err)
		}
	}
	if id, _ := store.PreferredVoice(ctx, "es", segment.GenderFemale); id != "" {
		t.Errorf("PreferredVoice = %q before enough interactions, want none", id)
	}

	err := store.RecordOutcome(ctx, prefs.Outcome{
		Language: "es", VoiceID: a.VoiceID, Rating: 5, Completion: 1,
	})
	if err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	if id, _ := store.PreferredVoice(ctx, "es", segment.GenderFemale); id != a.VoiceID {
		t.Errorf("PreferredVoice = %q, want %q", id, a.VoiceID)
	}
}

func TestStore_BestScoreWins(t *testing.T) {
	ctx := context.Background()
	store := &mock.Store{}
	store.Seed("es", segment.GenderFemale, "es-MX-DaliaNeural", 4.5, 6)
	store.Seed("es", segment.GenderFemale, "es-ES-ElviraNeural", 7.2, 5)
	store.Seed("es", segment.GenderMale, "es-MX-JorgeNeural", 9.9, 9)

	id, err := store.PreferredVoice(ctx, "es", segment.GenderFemale)
	if err != nil {
		t.Fatalf("PreferredVoice: %v", err)
	}
	if id != "es-ES-ElviraNeural" {
		t.Errorf("PreferredVoice = %q, want the higher-scored female voice", id)
	}
}

func TestStore_SwitchBackDragsScoreDown(t *testing.T) {
	ctx := context.Background()
	store := &mock.Store{}
	store.Seed("de", segment.GenderMale, "de-DE-ConradNeural", 0, prefs.MinInteractions)
	store.Seed("de", segment.GenderMale, "de-DE-KillianNeural", 0, prefs.MinInteractions)

	// Conrad gets completed watches, Killian gets switch-backs.
	for range 3 {
		_ = store.RecordOutcome(ctx, prefs.Outcome{Language: "de", VoiceID: "de-DE-ConradNeural", Completion: 1})
		_ = store.RecordOutcome(ctx, prefs.Outcome{Language: "de", VoiceID: "de-DE-KillianNeural", Completion: 1, SwitchedBack: true})
	}

	id, _ := store.PreferredVoice(ctx, "de", segment.GenderMale)
	if id != "de-DE-ConradNeural" {
		t.Errorf("PreferredVoice = %q, want the voice without switch-backs", id)
	}
}
