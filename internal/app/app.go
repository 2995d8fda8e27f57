// Package app wires the configured providers into a running dubbing
// application.
//
// The App owns everything shared across jobs: the media primitive, the
// transcription and translation chains, the raw synthesis providers, the
// voice catalog and the optional preference store. Per-job state — the
// sticky voice assigner and the TTS failover counter — is created fresh in
// NewJob, never shared.
//
// For testing, inject mock providers via functional options (WithMedia,
// WithSTT, etc.). When an option is not provided, New builds the real
// provider from the config via the registry.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/redub/internal/config"
	"github.com/MrWong99/redub/internal/job"
	"github.com/MrWong99/redub/internal/pipeline"
	"github.com/MrWong99/redub/internal/resilience"
	"github.com/MrWong99/redub/internal/segment"
	"github.com/MrWong99/redub/internal/stage"
	"github.com/MrWong99/redub/internal/stage/assemble"
	"github.com/MrWong99/redub/internal/stage/diarize"
	"github.com/MrWong99/redub/internal/stage/mix"
	"github.com/MrWong99/redub/internal/stage/preprocess"
	"github.com/MrWong99/redub/internal/stage/synthesize"
	"github.com/MrWong99/redub/internal/stage/transcribe"
	translatestage "github.com/MrWong99/redub/internal/stage/translate"
	"github.com/MrWong99/redub/internal/voice"
	"github.com/MrWong99/redub/pkg/media"
	"github.com/MrWong99/redub/pkg/prefs"
	"github.com/MrWong99/redub/pkg/prefs/postgres"
	"github.com/MrWong99/redub/pkg/provider/stt"
	"github.com/MrWong99/redub/pkg/provider/translate"
	"github.com/MrWong99/redub/pkg/provider/tts"
)

// archiveTimeout bounds the preference-store writes after a run. The job
// context may already be canceled by then, so the archive gets its own.
const archiveTimeout = 10 * time.Second

// App owns the provider lifetimes and turns submissions into pipeline runs.
type App struct {
	cfg *config.Config

	media         media.Primitive
	stt           stt.Provider
	translator    translate.Provider
	translateName string
	ttsPrimary    tts.Provider
	ttsFallback   tts.Provider
	prefs         prefs.Store
	catalog       voice.Catalog

	// dubbing holds the defaults new jobs start from. The config watcher
	// replaces it at runtime, so reads go through dubMu.
	dubMu   sync.RWMutex
	dubbing config.DubbingConfig

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMedia injects a media primitive instead of creating one from config.
func WithMedia(p media.Primitive) Option {
	return func(a *App) { a.media = p }
}

// WithSTT injects a transcription provider instead of building the
// configured chain.
func WithSTT(p stt.Provider) Option {
	return func(a *App) { a.stt = p }
}

// WithTranslator injects a translation provider instead of building the
// configured chain.
func WithTranslator(p translate.Provider) Option {
	return func(a *App) { a.translator = p }
}

// WithTTS injects the raw synthesis providers. The failover wrapper around
// them is still built fresh per job. fallback may be nil.
func WithTTS(primary, fallback tts.Provider) Option {
	return func(a *App) {
		a.ttsPrimary = primary
		a.ttsFallback = fallback
	}
}

// WithPrefs injects a preference store instead of connecting to the
// configured PostgreSQL instance.
func WithPrefs(s prefs.Store) Option {
	return func(a *App) { a.prefs = s }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by building every configured provider through the
// registry. Use Option functions to inject test doubles for any slot.
//
// A missing transcription or translation provider is tolerated here and
// rejected at submission: server mode still starts and serves the voice
// catalog without them.
func New(ctx context.Context, cfg *config.Config, reg *config.Registry, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, dubbing: cfg.Dubbing}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Media primitive ───────────────────────────────────────────────
	if err := a.initMedia(reg); err != nil {
		return nil, fmt.Errorf("app: init media: %w", err)
	}

	// ── 2. Transcription chain ───────────────────────────────────────────
	if err := a.initSTT(reg); err != nil {
		return nil, fmt.Errorf("app: init stt: %w", err)
	}

	// ── 3. Translation chain ─────────────────────────────────────────────
	if err := a.initTranslate(reg); err != nil {
		return nil, fmt.Errorf("app: init translate: %w", err)
	}

	// ── 4. Synthesis providers ───────────────────────────────────────────
	if err := a.initTTS(reg); err != nil {
		return nil, fmt.Errorf("app: init tts: %w", err)
	}

	// ── 5. Voice catalog ─────────────────────────────────────────────────
	if a.catalog == nil {
		a.catalog = catalogFor(cfg.Providers.TTS.Primary.Name)
	}

	// ── 6. Preference store ──────────────────────────────────────────────
	if err := a.initPrefs(ctx); err != nil {
		return nil, fmt.Errorf("app: init prefs: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initMedia builds the media primitive. Every stage needs it, so an
// unresolvable entry is fatal.
func (a *App) initMedia(reg *config.Registry) error {
	if a.media != nil {
		return nil
	}
	prim, err := reg.CreateMedia(a.cfg.Providers.Media)
	if err != nil {
		return err
	}
	a.media = prim
	a.noteCloser(prim)
	return nil
}

// initSTT builds the transcription chain: the primary provider, wrapped
// with the fallback behind a circuit breaker when one is configured.
func (a *App) initSTT(reg *config.Registry) error {
	if a.stt != nil {
		return nil
	}
	chain := a.cfg.Providers.STT
	if chain.Primary.Name == "" {
		slog.Warn("app: no transcription provider configured, submissions will be rejected")
		return nil
	}
	primary, err := reg.CreateSTT(chain.Primary)
	if err != nil {
		return fmt.Errorf("create %q: %w", chain.Primary.Name, err)
	}
	a.noteCloser(primary)

	if chain.Fallback.Name == "" {
		a.stt = primary
		return nil
	}
	fallback, err := reg.CreateSTT(chain.Fallback)
	if err != nil {
		return fmt.Errorf("create fallback %q: %w", chain.Fallback.Name, err)
	}
	a.noteCloser(fallback)

	group := resilience.NewSTTFallback(primary, chain.Primary.Name, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{Name: "stt"},
	})
	group.AddFallback(chain.Fallback.Name, fallback)
	a.stt = group
	slog.Info("app: transcription chain ready",
		"primary", chain.Primary.Name, "fallback", chain.Fallback.Name)
	return nil
}

// initTranslate builds the translation chain the same way as the
// transcription one.
func (a *App) initTranslate(reg *config.Registry) error {
	if a.translator != nil {
		return nil
	}
	chain := a.cfg.Providers.Translate
	if chain.Primary.Name == "" {
		slog.Warn("app: no translation provider configured, submissions will be rejected")
		return nil
	}
	primary, err := reg.CreateTranslate(chain.Primary)
	if err != nil {
		return fmt.Errorf("create %q: %w", chain.Primary.Name, err)
	}
	a.noteCloser(primary)
	a.translateName = chain.Primary.Name

	if chain.Fallback.Name == "" {
		a.translator = primary
		return nil
	}
	fallback, err := reg.CreateTranslate(chain.Fallback)
	if err != nil {
		return fmt.Errorf("create fallback %q: %w", chain.Fallback.Name, err)
	}
	a.noteCloser(fallback)

	group := resilience.NewTranslateFallback(primary, chain.Primary.Name, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{Name: "translate"},
	})
	group.AddFallback(chain.Fallback.Name, fallback)
	a.translator = group
	slog.Info("app: translation chain ready",
		"primary", chain.Primary.Name, "fallback", chain.Fallback.Name)
	return nil
}

// initTTS builds the raw synthesis providers. The failover wrapper is
// job-scoped state, so only the providers live here.
func (a *App) initTTS(reg *config.Registry) error {
	if a.ttsPrimary != nil {
		return nil
	}
	chain := a.cfg.Providers.TTS
	if chain.Primary.Name == "" {
		return fmt.Errorf("providers.tts.primary is not configured")
	}
	primary, err := reg.CreateTTS(chain.Primary)
	if err != nil {
		return fmt.Errorf("create %q: %w", chain.Primary.Name, err)
	}
	a.ttsPrimary = primary
	a.noteCloser(primary)

	if chain.Fallback.Name == "" {
		return nil
	}
	fallback, err := reg.CreateTTS(chain.Fallback)
	if err != nil {
		return fmt.Errorf("create fallback %q: %w", chain.Fallback.Name, err)
	}
	a.ttsFallback = fallback
	a.noteCloser(fallback)
	return nil
}

// initPrefs connects the pgvector-backed preference store. An empty DSN
// disables preference learning entirely.
func (a *App) initPrefs(ctx context.Context) error {
	if a.prefs != nil {
		return nil
	}
	dsn := a.cfg.Prefs.PostgresDSN
	if dsn == "" {
		return nil
	}
	store, err := postgres.New(ctx, dsn)
	if err != nil {
		return err
	}
	a.prefs = store
	a.closers = append(a.closers, store.Close)
	slog.Info("app: preference store connected")
	return nil
}

// noteCloser registers a provider's Close for shutdown when it has one.
// Local providers hold native resources (whisper.cpp contexts).
func (a *App) noteCloser(v any) {
	if c, ok := v.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}
}

// ─── Jobs ────────────────────────────────────────────────────────────────────

// JobOptions returns the job options implied by the configuration's dubbing
// section. Callers overlay per-run flags or tool arguments on top.
func (a *App) JobOptions() job.Options {
	a.dubMu.RLock()
	d := a.dubbing
	a.dubMu.RUnlock()
	return job.Options{
		TargetLanguage:         d.TargetLanguage,
		OutputFormat:           d.OutputFormat,
		SpeakerMode:            d.SpeakerMode,
		DefaultGender:          d.DefaultGender,
		ApplyHighpass:          d.Highpass(),
		ApplyNoiseReduction:    d.NoiseReduction(),
		ApplyNormalization:     d.Normalization(),
		NoiseReductionStrength: d.NoiseReductionStrength,
		QuickMode:              d.QuickMode,
		BackgroundLevel:        d.BackgroundLevel,
		ReverbAmount:           d.ReverbAmount,
		Concurrency:            d.Concurrency,
		OutputDir:              d.OutputDir,
		ScratchRoot:            d.ScratchDir,
	}
}

// NewJob creates a job with fresh per-job collaborators. The assigner's
// sticky voice map and the failover's consecutive-failure counter must not
// carry state from one job into the next.
func (a *App) NewJob(sourcePath string, opts job.Options) (*job.Job, error) {
	if a.stt == nil {
		return nil, fmt.Errorf("app: no transcription provider configured")
	}
	if a.translator == nil {
		return nil, fmt.Errorf("app: no translation provider configured")
	}

	var assignOpts []voice.AssignerOption
	if a.prefs != nil {
		assignOpts = append(assignOpts, voice.WithPreferrer(a.prefs))
	}
	plan, err := a.loadSpeakerPlan(opts.SpeakerMode)
	if err != nil {
		return nil, err
	}

	return job.New(sourcePath, opts, job.Deps{
		Voices:      voice.NewAssigner(a.catalog, assignOpts...),
		TTS:         resilience.NewTTSFailover(a.ttsPrimary, a.ttsFallback, resilience.RetryPolicy{Delays: resilience.TransientBackoff}, 0),
		SpeakerPlan: plan,
	})
}

// loadSpeakerPlan reads the configured speaker plan file. Only smart mode
// consumes one; every other mode plans voices positionally.
func (a *App) loadSpeakerPlan(mode segment.SpeakerMode) (*segment.SpeakerConfig, error) {
	a.dubMu.RLock()
	path := a.dubbing.SpeakerConfigPath
	a.dubMu.RUnlock()
	if path == "" || mode != segment.SpeakerSmart {
		return nil, nil
	}
	plan, err := segment.ReadSpeakerConfig(path)
	if err != nil {
		return nil, fmt.Errorf("app: read speaker config: %w", err)
	}
	return plan, nil
}

// ApplyDubbing swaps the dubbing defaults for jobs submitted from now on.
// Running jobs keep the options they started with.
func (a *App) ApplyDubbing(d config.DubbingConfig) {
	a.dubMu.Lock()
	a.dubbing = d
	a.dubMu.Unlock()
}

// Stages returns the stage sequence in execution order, bound to the
// shared providers.
func (a *App) Stages() []stage.Runner {
	return []stage.Runner{
		preprocess.New(a.media),
		transcribe.New(a.stt),
		diarize.New(a.media),
		translatestage.New(a.translator, translatestage.WithProviderName(a.translateName)),
		synthesize.New(),
		assemble.New(a.media),
		mix.New(a.media),
	}
}

// RunJob drives j through the pipeline and archives the outcome in the
// preference store when one is configured. The returned result is always
// populated; the error mirrors the pipeline's classified failure.
func (a *App) RunJob(ctx context.Context, j *job.Job, opts ...pipeline.Option) (*pipeline.Result, error) {
	res, err := pipeline.New(a.Stages(), opts...).Run(ctx, j)
	a.archive(ctx, j, res)
	return res, err
}

// Catalog returns the voice catalog the app assigns from.
func (a *App) Catalog() voice.Catalog {
	return a.catalog
}

// ─── Archiving ───────────────────────────────────────────────────────────────

// archive saves the job summary and the voice assignments made during the
// run. Failures are logged, never fatal: preference learning is advisory.
func (a *App) archive(ctx context.Context, j *job.Job, res *pipeline.Result) {
	if a.prefs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()

	sum := prefs.JobSummary{
		JobID:          j.ID,
		SourcePath:     j.SourcePath,
		TargetLanguage: j.Options.TargetLanguage,
		Status:         string(j.State()),
		SyncGood:       res.Metrics.SyncGood,
		SyncFair:       res.Metrics.SyncFair,
		SyncPoor:       res.Metrics.SyncPoor,
		OverallLUFS:    res.Metrics.OverallLUFS,
		CreatedAt:      j.CreatedAt,
	}
	if err := a.prefs.SaveJobSummary(ctx, sum); err != nil {
		slog.Warn("app: archive job summary failed", "job_id", j.ID, "error", err)
	}

	genders := assignmentGenders(j)
	for key, voiceID := range j.Voices.Assignments() {
		speakerID, language, ok := splitAssignmentKey(key)
		if !ok {
			continue
		}
		gender, ok := genders[speakerID]
		if !ok {
			gender = j.Options.DefaultGender
		}
		rec := prefs.Assignment{
			JobID:     j.ID,
			Language:  language,
			Gender:    gender,
			SpeakerID: speakerID,
			VoiceID:   voiceID,
		}
		if err := a.prefs.RecordAssignment(ctx, rec); err != nil {
			slog.Warn("app: record assignment failed",
				"job_id", j.ID, "voice", voiceID, "error", err)
		}
	}
}

// assignmentGenders replays the speaker planning over the final segment
// list to recover which gender each assigned speaker was voiced with.
func assignmentGenders(j *job.Job) map[string]segment.Gender {
	var cast []segment.Gender
	if j.SpeakerPlan != nil {
		for _, sp := range j.SpeakerPlan.Speakers {
			cast = append(cast, sp.Gender)
		}
	}
	out := make(map[string]segment.Gender)
	for _, sg := range j.Segments() {
		speaker, gender := voice.PlanSegment(
			j.Options.SpeakerMode, sg.ID, sg.SpeakerID, sg.Gender,
			j.Options.DefaultGender, cast)
		out[speaker] = gender
	}
	return out
}

// splitAssignmentKey decomposes the assigner's "speakerID_language" map
// key. Speaker IDs contain underscores themselves ("speaker_0"), so the
// split is on the last one; language codes never contain underscores.
func splitAssignmentKey(key string) (speakerID, language string, ok bool) {
	i := strings.LastIndex(key, "_")
	if i <= 0 || i == len(key)-1 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown closes every provider and store in init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("app: shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("app: shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("app: closer error", "index", i, "err", err)
			}
		}
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// catalogFor picks the voice catalog matching the synthesis provider.
// ElevenLabs carries its own named voices; everything else renders the
// edge-style neural voice IDs.
func catalogFor(provider string) voice.Catalog {
	if provider == "elevenlabs" {
		return voice.ElevenLabsCatalog()
	}
	return voice.EdgeCatalog()
}
