package voice

import (
	"sort"
	"testing"

	"github.com/MrWong99/redub/internal/segment"
)

func TestCatalogResolve(t *testing.T) {
	tests := []struct {
		language string
		want     string
	}{
		{"es", "es"},
		{"ES", "es"},
		{"es-MX", "es-mx"},
		{"es-CL", "es"},
		{"pt-BR", "pt-br"},
		{"fil", "fil"},
		{"fi", "fi"},
		{"nb-NO", "en"},
		{"xx", "en"},
		{"", "en"},
	}
	catalog := EdgeCatalog()
	for _, tt := range tests {
		if got := catalog.Resolve(tt.language); got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.language, got, tt.want)
		}
	}
}

func TestCatalogVoices(t *testing.T) {
	catalog := EdgeCatalog()

	male := catalog.Voices("es", segment.GenderMale)
	if len(male) == 0 || male[0].ID != "es-MX-JorgeNeural" {
		t.Fatalf("Voices(es, male) = %v, want es-MX-JorgeNeural first", male)
	}

	female := catalog.Voices("es", segment.GenderFemale)
	if len(female) == 0 || female[0].ID != "es-MX-DaliaNeural" {
		t.Fatalf("Voices(es, female) = %v, want es-MX-DaliaNeural first", female)
	}

	// Unknown gender resolves to the female side.
	unknown := catalog.Voices("es", segment.GenderUnknown)
	if unknown[0].ID != female[0].ID {
		t.Errorf("Voices(es, unknown) first = %q, want %q", unknown[0].ID, female[0].ID)
	}
}

func TestCatalogVoices_OppositeGenderFallback(t *testing.T) {
	catalog := Catalog{
		"qq": {Male: []Voice{general("qq-QQ-TestNeural")}},
		"en": {Male: []Voice{general("en-US-GuyNeural")}},
	}

	got := catalog.Voices("qq", segment.GenderFemale)
	if len(got) != 1 || got[0].ID != "qq-QQ-TestNeural" {
		t.Errorf("Voices(qq, female) = %v, want the male voice", got)
	}
}

func TestCatalogVoices_Empty(t *testing.T) {
	if got := (Catalog{}).Voices("es", segment.GenderMale); len(got) != 0 {
		t.Errorf("Voices on empty catalog = %v, want none", got)
	}
}

func TestCatalogKnown(t *testing.T) {
	catalog := EdgeCatalog()
	tests := []struct {
		language string
		want     bool
	}{
		{"es", true},
		{"ES-mx", true},
		{"es-CL", true}, // base "es" covers it
		{"fil", true},
		{"nb-NO", false},
		{"xx", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := catalog.Known(tt.language); got != tt.want {
			t.Errorf("Known(%q) = %v, want %v", tt.language, got, tt.want)
		}
	}
}

func TestCatalogContains(t *testing.T) {
	catalog := EdgeCatalog()
	if !catalog.Contains("es", "es-ES-AlvaroNeural") {
		t.Error("Contains(es, es-ES-AlvaroNeural) = false, want true")
	}
	if !catalog.Contains("es", "es-ES-ElviraNeural") {
		t.Error("Contains(es, es-ES-ElviraNeural) = false, want true")
	}
	if catalog.Contains("es", "fr-FR-HenriNeural") {
		t.Error("Contains(es, fr-FR-HenriNeural) = true, want false")
	}
}

func TestCatalogLanguages(t *testing.T) {
	langs := EdgeCatalog().Languages()
	if !sort.StringsAreSorted(langs) {
		t.Errorf("Languages() not sorted: %v", langs)
	}
	want := map[string]bool{"en": false, "es-mx": false, "fil": false, "uk": false}
	for _, lang := range langs {
		if _, ok := want[lang]; ok {
			want[lang] = true
		}
	}
	for lang, seen := range want {
		if !seen {
			t.Errorf("Languages() missing %q", lang)
		}
	}
}
