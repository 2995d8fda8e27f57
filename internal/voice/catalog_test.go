package voice

import (
	"testing"

	"github.com/MrWong99/redub/internal/segment"
)

func TestEdgeCatalog_EntriesComplete(t *testing.T) {
	for lang, entry := range EdgeCatalog() {
		all := append(append([]Voice(nil), entry.Male...), entry.Female...)
		if len(all) == 0 {
			t.Errorf("language %q has no voices", lang)
		}
		for _, v := range all {
			if v.ID == "" {
				t.Errorf("language %q has a voice with empty ID", lang)
			}
			if v.Style == "" || v.Age == "" {
				t.Errorf("voice %q missing style or age", v.ID)
			}
		}
	}
}

func TestEdgeCatalog_FallbackVoicePresent(t *testing.T) {
	if !EdgeCatalog().Contains("en", FallbackVoiceID) {
		t.Errorf("fallback voice %q not in the en entry", FallbackVoiceID)
	}
}

func TestEdgeCatalog_RegionalVariants(t *testing.T) {
	tests := []struct {
		language string
		gender   segment.Gender
		want     string
	}{
		{"es-MX", segment.GenderMale, "es-MX-JorgeNeural"},
		{"es-AR", segment.GenderFemale, "es-AR-ElenaNeural"},
		{"pt-BR", segment.GenderFemale, "pt-BR-FranciscaNeural"},
		{"pt-PT", segment.GenderMale, "pt-PT-DuarteNeural"},
		{"zh-TW", segment.GenderFemale, "zh-TW-HsiaoChenNeural"},
		{"en-AU", segment.GenderMale, "en-AU-WilliamNeural"},
	}
	catalog := EdgeCatalog()
	for _, tt := range tests {
		got := catalog.Voices(tt.language, tt.gender)
		if len(got) != 1 || got[0].ID != tt.want {
			t.Errorf("Voices(%q, %s) = %v, want [%s]", tt.language, tt.gender, got, tt.want)
		}
	}
}

func TestElevenLabsCatalog_ServesEveryLanguage(t *testing.T) {
	catalog := ElevenLabsCatalog()
	for _, lang := range []string{"en", "es", "ja", "xx"} {
		male := catalog.Voices(lang, segment.GenderMale)
		if len(male) == 0 || male[0].Name != "Adam" {
			t.Errorf("Voices(%q, male) = %v, want Adam first", lang, male)
		}
		female := catalog.Voices(lang, segment.GenderFemale)
		if len(female) == 0 || female[0].Name != "Bella" {
			t.Errorf("Voices(%q, female) = %v, want Bella first", lang, female)
		}
	}
}

func TestElevenLabsCatalog_OpaqueIDsCarryNames(t *testing.T) {
	for _, entry := range ElevenLabsCatalog() {
		for _, v := range append(append([]Voice(nil), entry.Male...), entry.Female...) {
			if v.Name == "" {
				t.Errorf("voice %q has no human label", v.ID)
			}
		}
	}
}
