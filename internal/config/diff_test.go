package config_test

import (
	"testing"

	"github.com/MrWong99/redub/internal/config"
)

func baseConfig() *config.Config {
	cfg := config.Default()
	cfg.Dubbing.TargetLanguage = "es"
	cfg.Providers.STT.Primary = config.ProviderEntry{
		Name:    "whisper",
		Options: map[string]any{"model_path": "/models/base.bin"},
	}
	cfg.Providers.Translate.Primary = config.ProviderEntry{Name: "apertium"}
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	d := config.Diff(cfg, cfg)
	if !d.Empty() {
		t.Errorf("expected empty diff for identical configs, got %+v", d)
	}
	if d.RequiresRestart() {
		t.Error("expected RequiresRestart=false for identical configs")
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if d.RequiresRestart() {
		t.Error("a log level change should not require a restart")
	}
}

func TestDiff_DubbingChanged(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Dubbing.BackgroundLevel = 0.3

	d := config.Diff(old, new)
	if !d.DubbingChanged {
		t.Error("expected DubbingChanged=true")
	}
	if d.RequiresRestart() {
		t.Error("a dubbing default change should not require a restart")
	}
}

func TestDiff_ProviderEntryChanged(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Providers.TTS.Primary.Name = "elevenlabs"
	new.Providers.TTS.Primary.APIKey = "el-test"

	d := config.Diff(old, new)
	if len(d.ProvidersChanged) != 1 {
		t.Fatalf("expected 1 changed provider slot, got %v", d.ProvidersChanged)
	}
	if d.ProvidersChanged[0] != "tts.primary" {
		t.Errorf("changed slot: got %q, want %q", d.ProvidersChanged[0], "tts.primary")
	}
	if !d.RequiresRestart() {
		t.Error("a provider change should require a restart")
	}
}

func TestDiff_ProviderOptionChanged(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Providers.STT.Primary.Options = map[string]any{"model_path": "/models/large.bin"}

	d := config.Diff(old, new)
	found := false
	for _, slot := range d.ProvidersChanged {
		if slot == "stt.primary" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected stt.primary in changed slots, got %v", d.ProvidersChanged)
	}
}

func TestDiff_PrefsChanged(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Prefs.PostgresDSN = "postgres://localhost/redub"

	d := config.Diff(old, new)
	if !d.PrefsChanged {
		t.Error("expected PrefsChanged=true")
	}
	if !d.RequiresRestart() {
		t.Error("a preference store change should require a restart")
	}
}

func TestDiff_MCPChanged(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.MCP.MetricsAddr = ":9131"

	d := config.Diff(old, new)
	if !d.MCPChanged {
		t.Error("expected MCPChanged=true")
	}
	if !d.RequiresRestart() {
		t.Error("an MCP change should require a restart")
	}
}

func TestDiff_MultipleChanges(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.LogLevel = config.LogWarn
	new.Dubbing.QuickMode = true
	new.Providers.Translate.Fallback = config.ProviderEntry{Name: "openai", APIKey: "sk"}
	new.Providers.Media.Name = "other"

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if !d.DubbingChanged {
		t.Error("expected DubbingChanged=true")
	}
	if len(d.ProvidersChanged) != 2 {
		t.Fatalf("expected 2 changed provider slots, got %v", d.ProvidersChanged)
	}
	want := map[string]bool{"translate.fallback": false, "media": false}
	for _, slot := range d.ProvidersChanged {
		if _, ok := want[slot]; ok {
			want[slot] = true
		}
	}
	for slot, seen := range want {
		if !seen {
			t.Errorf("expected %q in changed slots, got %v", slot, d.ProvidersChanged)
		}
	}
}
