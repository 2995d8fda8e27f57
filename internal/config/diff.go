package config

import "reflect"

// ConfigDiff describes what changed between two configs. The server mode
// applies log level and dubbing defaults to subsequent jobs without a
// restart; provider, preference store, and MCP changes need one because the
// corresponding clients are constructed at startup.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// DubbingChanged is true when any dubbing default differs. New jobs pick
	// the new defaults up; running jobs keep the options they started with.
	DubbingChanged bool

	// ProvidersChanged lists the provider slots whose entries differ, e.g.
	// "tts.primary" or "media".
	ProvidersChanged []string

	PrefsChanged bool
	MCPChanged   bool
}

// Empty reports whether the diff contains no changes at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.DubbingChanged && !d.PrefsChanged && !d.MCPChanged &&
		len(d.ProvidersChanged) == 0
}

// RequiresRestart reports whether any of the changes cannot be applied to a
// running process.
func (d ConfigDiff) RequiresRestart() bool {
	return len(d.ProvidersChanged) > 0 || d.PrefsChanged || d.MCPChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.LogLevel
	}

	if !reflect.DeepEqual(old.Dubbing, new.Dubbing) {
		d.DubbingChanged = true
	}

	// ProviderEntry carries an options map, so entries are compared deeply.
	slots := []struct {
		name     string
		old, new ProviderEntry
	}{
		{"stt.primary", old.Providers.STT.Primary, new.Providers.STT.Primary},
		{"stt.fallback", old.Providers.STT.Fallback, new.Providers.STT.Fallback},
		{"translate.primary", old.Providers.Translate.Primary, new.Providers.Translate.Primary},
		{"translate.fallback", old.Providers.Translate.Fallback, new.Providers.Translate.Fallback},
		{"tts.primary", old.Providers.TTS.Primary, new.Providers.TTS.Primary},
		{"tts.fallback", old.Providers.TTS.Fallback, new.Providers.TTS.Fallback},
		{"media", old.Providers.Media, new.Providers.Media},
	}
	for _, slot := range slots {
		if !reflect.DeepEqual(slot.old, slot.new) {
			d.ProvidersChanged = append(d.ProvidersChanged, slot.name)
		}
	}

	if old.Prefs != new.Prefs {
		d.PrefsChanged = true
	}
	if old.MCP != new.MCP {
		d.MCPChanged = true
	}

	return d
}
