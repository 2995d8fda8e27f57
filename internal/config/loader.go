package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/MrWong99/redub/internal/segment"
	"github.com/MrWong99/redub/internal/voice"
	"github.com/MrWong99/redub/pkg/media"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":       {"whisper", "openai"},
	"translate": {"apertium", "openai", "anyllm"},
	"tts":       {"edge", "gtranslate", "elevenlabs", "coqui"},
	"media":     {"ffmpeg"},
}

// envPattern matches ${VAR} references with POSIX-style variable names.
var envPattern = regexp.MustCompile(`\$\{[A-Za-z_][A-Za-z0-9_]*\}`)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${VAR} environment
// references, applies defaults, and validates the result. Useful in tests
// where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	data = expandEnv(data)

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration usable without any config file: the free
// zero-credential synthesis chain (edge with gtranslate fallback), ffmpeg
// media primitives, and the documented dubbing defaults. Transcription and
// translation providers still have to be configured.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// expandEnv replaces ${VAR} references in data with the value of the named
// environment variable. Unset variables expand to the empty string.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(m []byte) []byte {
		name := string(m[2 : len(m)-1])
		return []byte(os.Getenv(name))
	})
}

// applyDefaults fills zero-valued fields with their documented defaults.
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = LogInfo
	}
	if cfg.Providers.Media.Name == "" {
		cfg.Providers.Media.Name = "ffmpeg"
	}
	// Only default the synthesis chain when it is entirely unset, so an
	// explicitly configured primary with no fallback stays fallback-free.
	if cfg.Providers.TTS.Primary.Name == "" && cfg.Providers.TTS.Fallback.Name == "" {
		cfg.Providers.TTS.Primary.Name = "edge"
		cfg.Providers.TTS.Fallback.Name = "gtranslate"
	}

	d := &cfg.Dubbing
	if d.OutputFormat == "" {
		d.OutputFormat = media.CodecAAC
	}
	if d.SpeakerMode == "" {
		d.SpeakerMode = segment.SpeakerSingle
	}
	if d.DefaultGender == "" {
		d.DefaultGender = segment.GenderFemale
	}
	if d.NoiseReductionStrength == 0 {
		d.NoiseReductionStrength = DefaultNoiseStrength
	}
	if d.BackgroundLevel == 0 {
		d.BackgroundLevel = DefaultBackgroundLevel
	}
	if d.Concurrency == 0 {
		d.Concurrency = DefaultConcurrency
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	// Provider name validation, warn for unknown provider names.
	validateProviderName("stt", "providers.stt.primary", cfg.Providers.STT.Primary.Name)
	validateProviderName("stt", "providers.stt.fallback", cfg.Providers.STT.Fallback.Name)
	validateProviderName("translate", "providers.translate.primary", cfg.Providers.Translate.Primary.Name)
	validateProviderName("translate", "providers.translate.fallback", cfg.Providers.Translate.Fallback.Name)
	validateProviderName("tts", "providers.tts.primary", cfg.Providers.TTS.Primary.Name)
	validateProviderName("tts", "providers.tts.fallback", cfg.Providers.TTS.Fallback.Name)
	validateProviderName("media", "providers.media", cfg.Providers.Media.Name)

	// Provider availability warnings
	if cfg.Providers.STT.Primary.Name == "" {
		slog.Warn("providers.stt.primary is not configured; jobs will fail at transcription")
	}
	if cfg.Providers.Translate.Primary.Name == "" {
		slog.Warn("providers.translate.primary is not configured; jobs will fail at translation")
	} else if cfg.Providers.Translate.Fallback.Name == "" {
		slog.Warn("providers.translate.fallback is not configured; translation failures cannot switch providers")
	}
	if cfg.Providers.TTS.Primary.Name == "" {
		slog.Warn("providers.tts.primary is not configured; jobs will fail at synthesis")
	}

	d := cfg.Dubbing
	if d.OutputFormat != "" && d.OutputFormat != media.CodecAAC && d.OutputFormat != media.CodecMP3 {
		errs = append(errs, fmt.Errorf("dubbing.output_format %q is invalid; valid values: aac, mp3", d.OutputFormat))
	}
	if d.SpeakerMode != "" && !d.SpeakerMode.IsValid() {
		errs = append(errs, fmt.Errorf("dubbing.speaker_mode %q is invalid; valid values: single, alternating, multi, smart", d.SpeakerMode))
	}
	if d.DefaultGender != "" && d.DefaultGender != segment.GenderMale && d.DefaultGender != segment.GenderFemale {
		errs = append(errs, fmt.Errorf("dubbing.default_gender %q is invalid; valid values: male, female", d.DefaultGender))
	}
	if d.NoiseReductionStrength < 0 || d.NoiseReductionStrength > 1 {
		errs = append(errs, fmt.Errorf("dubbing.noise_reduction_strength %.2f is out of range [0, 1]", d.NoiseReductionStrength))
	}
	if d.BackgroundLevel < 0 || d.BackgroundLevel > 1 {
		errs = append(errs, fmt.Errorf("dubbing.background_level %.2f is out of range [0, 1]", d.BackgroundLevel))
	}
	if d.ReverbAmount < 0 || d.ReverbAmount > maxReverbAmount {
		errs = append(errs, fmt.Errorf("dubbing.reverb_amount %.2f is out of range [0, %.1f]", d.ReverbAmount, maxReverbAmount))
	}
	if d.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("dubbing.concurrency %d must not be negative", d.Concurrency))
	}
	if cfg.MCP.MaxJobs < 0 {
		errs = append(errs, fmt.Errorf("mcp.max_jobs %d must not be negative", cfg.MCP.MaxJobs))
	}
	if d.TargetLanguage != "" {
		if catalog := voice.EdgeCatalog(); !catalog.Known(d.TargetLanguage) {
			if hints := catalog.SuggestLanguage(d.TargetLanguage, 3); len(hints) > 0 {
				errs = append(errs, fmt.Errorf("dubbing.target_language %q is not a supported language; did you mean %s", d.TargetLanguage, strings.Join(hints, ", ")))
			} else {
				errs = append(errs, fmt.Errorf("dubbing.target_language %q is not a supported language", d.TargetLanguage))
			}
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, path, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"path", path,
		"name", name,
		"known", known,
	)
}
