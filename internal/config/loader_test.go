package config_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/redub/internal/config"
)

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
log_level: verbose
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log_level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_InvalidOutputFormat(t *testing.T) {
	t.Parallel()
	yaml := `
dubbing:
  output_format: flac
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid output_format, got nil")
	}
	if !strings.Contains(err.Error(), "output_format") {
		t.Errorf("error should mention output_format, got: %v", err)
	}
}

func TestValidate_PCMOutputRejected(t *testing.T) {
	t.Parallel()
	// The media layer knows pcm, but it is an intermediate codec and not a
	// valid final output.
	yaml := `
dubbing:
  output_format: pcm
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for pcm output_format, got nil")
	}
}

func TestValidate_InvalidSpeakerMode(t *testing.T) {
	t.Parallel()
	yaml := `
dubbing:
  speaker_mode: choir
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid speaker_mode, got nil")
	}
	if !strings.Contains(err.Error(), "speaker_mode") {
		t.Errorf("error should mention speaker_mode, got: %v", err)
	}
}

func TestValidate_InvalidDefaultGender(t *testing.T) {
	t.Parallel()
	// "unknown" is a valid diarization result but not a usable default.
	yaml := `
dubbing:
  default_gender: unknown
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid default_gender, got nil")
	}
	if !strings.Contains(err.Error(), "default_gender") {
		t.Errorf("error should mention default_gender, got: %v", err)
	}
}

func TestValidate_NoiseStrengthOutOfRange(t *testing.T) {
	t.Parallel()
	yaml := `
dubbing:
  noise_reduction_strength: 1.5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range noise_reduction_strength, got nil")
	}
}

func TestValidate_BackgroundLevelOutOfRange(t *testing.T) {
	t.Parallel()
	yaml := `
dubbing:
  background_level: 2.0
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range background_level, got nil")
	}
}

func TestValidate_ReverbOutOfRange(t *testing.T) {
	t.Parallel()
	yaml := `
dubbing:
  reverb_amount: 0.5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range reverb_amount, got nil")
	}
}

func TestValidate_NegativeConcurrency(t *testing.T) {
	t.Parallel()
	yaml := `
dubbing:
  concurrency: -2
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative concurrency, got nil")
	}
}

func TestValidate_UnknownTargetLanguage(t *testing.T) {
	t.Parallel()
	yaml := `
dubbing:
  target_language: xx
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown target_language, got nil")
	}
	if !strings.Contains(err.Error(), "target_language") {
		t.Errorf("error should mention target_language, got: %v", err)
	}
}

func TestValidate_MistypedTargetLanguageSuggests(t *testing.T) {
	t.Parallel()
	yaml := `
dubbing:
  target_language: es_mx
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for mistyped target_language, got nil")
	}
	if !strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error should carry suggestions, got: %v", err)
	}
	if !strings.Contains(err.Error(), "es-mx") {
		t.Errorf("error should suggest es-mx, got: %v", err)
	}
}

func TestValidate_RegionalVariantViaBaseLanguage(t *testing.T) {
	t.Parallel()
	// es-CL has no dedicated catalog entry; base "es" covers it.
	yaml := `
dubbing:
  target_language: es-CL
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
log_level: verbose
dubbing:
  output_format: flac
  speaker_mode: choir
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
	if !strings.Contains(errStr, "output_format") {
		t.Errorf("error should mention output_format, got: %v", err)
	}
	if !strings.Contains(errStr, "speaker_mode") {
		t.Errorf("error should mention speaker_mode, got: %v", err)
	}
}

func TestLoadFromReader_EnvExpansion(t *testing.T) {
	t.Setenv("REDUB_TEST_API_KEY", "sk-from-env")
	yaml := `
providers:
  translate:
    primary:
      name: openai
      api_key: ${REDUB_TEST_API_KEY}
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.Providers.Translate.Primary.APIKey; got != "sk-from-env" {
		t.Errorf("api_key: got %q, want %q", got, "sk-from-env")
	}
}

func TestLoadFromReader_UnsetEnvExpandsEmpty(t *testing.T) {
	t.Setenv("REDUB_TEST_UNSET", "")
	yaml := `
providers:
  translate:
    primary:
      name: openai
      api_key: "${REDUB_TEST_UNSET}"
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.Providers.Translate.Primary.APIKey; got != "" {
		t.Errorf("api_key: got %q, want empty", got)
	}
}

func TestLoadFromReader_NonReferenceDollarsUntouched(t *testing.T) {
	t.Parallel()
	// Dollar signs that are not ${NAME} references pass through verbatim.
	yaml := `
providers:
  translate:
    primary:
      name: openai
      api_key: "pa$$word${"
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.Providers.Translate.Primary.APIKey; got != "pa$$word${" {
		t.Errorf("api_key: got %q, want %q", got, "pa$$word${")
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	// Sanity-check that the map is populated.
	if len(config.ValidProviderNames) == 0 {
		t.Fatal("ValidProviderNames should not be empty")
	}
	ttsNames := config.ValidProviderNames["tts"]
	if len(ttsNames) == 0 {
		t.Fatal("ValidProviderNames[\"tts\"] should not be empty")
	}
	found := false
	for _, n := range ttsNames {
		if n == "edge" {
			found = true
			break
		}
	}
	if !found {
		t.Error("ValidProviderNames[\"tts\"] should contain \"edge\"")
	}
}
