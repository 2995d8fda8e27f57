// Command redub dubs the spoken audio of a video or audio file into another
// language, or serves the pipeline as Model Context Protocol tools.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/redub/internal/app"
	"github.com/MrWong99/redub/internal/config"
	"github.com/MrWong99/redub/internal/mcpserver"
	"github.com/MrWong99/redub/internal/observe"
	"github.com/MrWong99/redub/internal/pipeline"
	"github.com/MrWong99/redub/internal/segment"
	"github.com/MrWong99/redub/pkg/media"
	"github.com/MrWong99/redub/pkg/media/ffmpeg"
	"github.com/MrWong99/redub/pkg/provider/stt"
	"github.com/MrWong99/redub/pkg/provider/stt/openaicloud"
	"github.com/MrWong99/redub/pkg/provider/stt/whisper"
	"github.com/MrWong99/redub/pkg/provider/translate"
	"github.com/MrWong99/redub/pkg/provider/translate/anyllm"
	"github.com/MrWong99/redub/pkg/provider/translate/apertium"
	oatranslate "github.com/MrWong99/redub/pkg/provider/translate/openai"
	"github.com/MrWong99/redub/pkg/provider/tts"
	"github.com/MrWong99/redub/pkg/provider/tts/coqui"
	"github.com/MrWong99/redub/pkg/provider/tts/edge"
	"github.com/MrWong99/redub/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/redub/pkg/provider/tts/gtranslate"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	input := flag.String("input", "", "video or audio file to dub")
	targetLang := flag.String("target-lang", "", "language to dub into, e.g. es or pt-br (overrides config)")
	sourceLang := flag.String("source-lang", "", "spoken language of the input (empty auto-detects)")
	output := flag.String("output", "", "output file path (default derived from the input name)")
	format := flag.String("format", "", "output audio codec, aac or mp3 (overrides config)")
	speakerMode := flag.String("speaker-mode", "", "voice assignment mode: single, alternating, multi, or smart")
	quick := flag.Bool("quick", false, "use the faster single-pass mix")
	keepScratch := flag.Bool("keep-scratch", false, "keep the scratch directory with intermediate artifacts")
	serve := flag.Bool("serve", false, "serve the pipeline as MCP tools on stdio instead of dubbing one file")
	flag.Parse()

	// A missing .env is fine; explicit environment always wins.
	_ = godotenv.Load()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !flagWasSet("config") {
			cfg = config.Default()
		} else {
			fmt.Fprintf(os.Stderr, "redub: %v\n", err)
			return 1
		}
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg, reg)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := application.Shutdown(shutdownCtx); err != nil {
			slog.Warn("shutdown error", "err", err)
		}
	}()

	// ── Server mode ───────────────────────────────────────────────────────────
	if *serve || cfg.MCP.Enabled {
		printStartupSummary(cfg)

		// Reload dubbing defaults and log level between jobs when the config
		// file changes. Provider, preference and MCP changes still need a
		// restart; the watcher only warns about those.
		if _, statErr := os.Stat(*configPath); statErr == nil {
			watcher, werr := config.NewWatcher(*configPath, func(old, new *config.Config) {
				applyConfigChange(application, old, new)
			})
			if werr != nil {
				slog.Warn("config watcher disabled", "err", werr)
			} else {
				defer watcher.Stop()
			}
		}

		slog.Info("redub starting in server mode",
			"version", version,
			"config", *configPath,
			"metrics_addr", cfg.MCP.MetricsAddr,
		)
		srv := mcpserver.New(application, cfg.MCP, ctx)
		if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("server error", "err", err)
			return 1
		}
		return 0
	}

	// ── Single-job mode ───────────────────────────────────────────────────────
	if *input == "" {
		fmt.Fprintln(os.Stderr, "redub: -input is required (or -serve for server mode)")
		flag.Usage()
		return 2
	}

	opts := application.JobOptions()
	if *targetLang != "" {
		opts.TargetLanguage = *targetLang
	}
	if *sourceLang != "" {
		opts.SourceLanguage = *sourceLang
	}
	if *output != "" {
		opts.OutputPath = *output
	}
	if *format != "" {
		codec := media.Codec(strings.ToLower(*format))
		if codec != media.CodecAAC && codec != media.CodecMP3 {
			fmt.Fprintf(os.Stderr, "redub: format %q not supported, use aac or mp3\n", *format)
			return 2
		}
		opts.OutputFormat = codec
	}
	if *speakerMode != "" {
		mode := segment.SpeakerMode(strings.ToLower(*speakerMode))
		if !mode.IsValid() {
			fmt.Fprintf(os.Stderr, "redub: speaker mode %q not recognised\n", *speakerMode)
			return 2
		}
		opts.SpeakerMode = mode
	}
	if *quick {
		opts.QuickMode = true
	}

	j, err := application.NewJob(*input, opts)
	if err != nil {
		slog.Error("job rejected", "err", err)
		return 1
	}

	slog.Info("dubbing",
		"input", *input,
		"target_language", opts.TargetLanguage,
		"format", string(opts.OutputFormat),
		"speaker_mode", string(opts.SpeakerMode),
	)

	var pipeOpts []pipeline.Option
	if *keepScratch {
		pipeOpts = append(pipeOpts, pipeline.WithKeepScratch())
	}
	res, runErr := application.RunJob(ctx, j, pipeOpts...)

	// The record goes to stdout whether the run succeeded or not, so callers
	// scripting redub can always parse one JSON document.
	rec := pipeline.NewRecord(j, res)
	if err := rec.Write(os.Stdout); err != nil {
		slog.Warn("failed to write job record", "err", err)
	}

	if runErr != nil {
		slog.Error("dubbing failed", "err", runErr)
		return 1
	}
	slog.Info("dubbing complete", "output", rec.Artifacts.FinalOutput)
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = entry.StringOption("model_path", "")
		}
		var opts []whisper.Option
		if lang := entry.StringOption("language", ""); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if beam := entry.IntOption("beam_size", 0); beam > 0 {
			opts = append(opts, whisper.WithBeamSize(beam))
		}
		return whisper.New(modelPath, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []openaicloud.Option
		if entry.BaseURL != "" {
			opts = append(opts, openaicloud.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, openaicloud.WithModel(entry.Model))
		}
		return openaicloud.New(entry.APIKey, opts...)
	})

	// ── Translation ───────────────────────────────────────────────────────────

	reg.RegisterTranslate("apertium", func(entry config.ProviderEntry) (translate.Provider, error) {
		var opts []apertium.Option
		if entry.BaseURL != "" {
			opts = append(opts, apertium.WithBaseURL(entry.BaseURL))
		}
		return apertium.New(opts...), nil
	})

	reg.RegisterTranslate("openai", func(entry config.ProviderEntry) (translate.Provider, error) {
		var opts []oatranslate.Option
		if entry.Model != "" {
			opts = append(opts, oatranslate.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oatranslate.WithBaseURL(entry.BaseURL))
		}
		return oatranslate.New(entry.APIKey, opts...)
	})

	// anyllm routes through any OpenAI-compatible backend; the backend option
	// picks which one (openai, ollama, mistral, groq, ...).
	reg.RegisterTranslate("anyllm", func(entry config.ProviderEntry) (translate.Provider, error) {
		backend := entry.StringOption("backend", "openai")
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New(backend, entry.Model, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("edge", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []edge.Option
		if entry.BaseURL != "" {
			opts = append(opts, edge.WithEndpoint(entry.BaseURL))
		}
		return edge.New(opts...), nil
	})

	reg.RegisterTTS("gtranslate", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []gtranslate.Option
		if entry.BaseURL != "" {
			opts = append(opts, gtranslate.WithBaseURL(entry.BaseURL))
		}
		return gtranslate.New(opts...), nil
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := entry.StringOption("language", ""); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := entry.StringOption("api_mode", ""); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	// ── Media ─────────────────────────────────────────────────────────────────

	reg.RegisterMedia("ffmpeg", func(entry config.ProviderEntry) (media.Primitive, error) {
		var opts []ffmpeg.Option
		if bin := entry.StringOption("binary", ""); bin != "" {
			opts = append(opts, ffmpeg.WithBinary(bin))
		}
		if probe := entry.StringOption("probe_binary", ""); probe != "" {
			opts = append(opts, ffmpeg.WithProbeBinary(probe))
		}
		return ffmpeg.New(opts...), nil
	})
}

// ── Startup summary ───────────────────────────────────────────────────────────

// printStartupSummary writes the provider overview to stderr: stdout belongs
// to the MCP transport in server mode and to the job record otherwise.
func printStartupSummary(cfg *config.Config) {
	fmt.Fprintln(os.Stderr, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(os.Stderr, "║          redub — startup summary      ║")
	fmt.Fprintln(os.Stderr, "╠═══════════════════════════════════════╣")
	printRow("STT", chainLabel(cfg.Providers.STT))
	printRow("Translate", chainLabel(cfg.Providers.Translate))
	printRow("TTS", chainLabel(cfg.Providers.TTS))
	printRow("Media", cfg.Providers.Media.Name)
	printRow("Target language", cfg.Dubbing.TargetLanguage)
	if cfg.Prefs.PostgresDSN != "" {
		printRow("Preferences", "postgres")
	} else {
		printRow("Preferences", "(disabled)")
	}
	if cfg.MCP.MetricsAddr != "" {
		printRow("Metrics addr", cfg.MCP.MetricsAddr)
	}
	fmt.Fprintln(os.Stderr, "╚═══════════════════════════════════════╝")
}

// chainLabel renders a provider chain as "primary → fallback".
func chainLabel(chain config.ProviderChain) string {
	label := chain.Primary.Name
	if label == "" {
		return ""
	}
	if chain.Fallback.Name != "" {
		label += " → " + chain.Fallback.Name
	}
	return label
}

func printRow(kind, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:16]) + "…"
	}
	fmt.Fprintf(os.Stderr, "║  %-15s : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// applyConfigChange applies the parts of a config reload that can change at
// runtime and warns about the rest. Providers are built once at startup, so
// swapping them needs a restart.
func applyConfigChange(application *app.App, old, new *config.Config) {
	d := config.Diff(old, new)
	if d.Empty() {
		return
	}
	if d.LogLevelChanged {
		slog.SetDefault(newLogger(d.NewLogLevel))
		slog.Info("log level changed", "level", string(d.NewLogLevel))
	}
	if d.DubbingChanged {
		application.ApplyDubbing(new.Dubbing)
		slog.Info("dubbing defaults updated, new jobs pick them up")
	}
	if d.RequiresRestart() {
		slog.Warn("some config changes need a restart to take effect",
			"providers", d.ProvidersChanged,
			"prefs", d.PrefsChanged,
			"mcp", d.MCPChanged,
		)
	}
}

// flagWasSet reports whether the named flag appeared on the command line.
func flagWasSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
