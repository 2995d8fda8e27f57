// Package mcpserver exposes the dubbing pipeline as Model Context Protocol
// tools over stdio, so editor agents and LLM hosts can submit dub jobs, poll
// their progress, cancel them, and browse the voice catalog.
//
// Jobs run asynchronously: the dub tool returns a job ID immediately and the
// pipeline continues in a goroutine anchored to the server's base context,
// not the tool call. An optional HTTP listener serves Prometheus metrics and
// health probes alongside the stdio session.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/redub/internal/app"
	"github.com/MrWong99/redub/internal/config"
	"github.com/MrWong99/redub/internal/health"
	"github.com/MrWong99/redub/internal/observe"
	"github.com/MrWong99/redub/internal/pipeline"
	"github.com/MrWong99/redub/internal/segment"
	"github.com/MrWong99/redub/pkg/media"
)

// serverVersion is reported to clients during the MCP initialize handshake.
const serverVersion = "1.0.0"

// metricsShutdownGrace is how long the metrics listener gets to drain
// in-flight requests after the server context is cancelled.
const metricsShutdownGrace = 5 * time.Second

// Server serves the MCP tool set backed by one [app.App].
type Server struct {
	app         *app.App
	tracker     *Tracker
	metricsAddr string
}

// New creates a Server. baseCtx anchors job goroutines: jobs submitted
// through the dub tool outlive their tool calls and stop when baseCtx is
// cancelled.
func New(application *app.App, cfg config.MCPConfig, baseCtx context.Context) *Server {
	return &Server{
		app:         application,
		tracker:     NewTracker(application, cfg.MaxJobs, baseCtx),
		metricsAddr: cfg.MetricsAddr,
	}
}

// Run registers the tools and serves MCP over stdio until ctx is cancelled
// or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	if s.metricsAddr != "" {
		s.serveMetrics(ctx)
	}

	srv := mcpsdk.NewServer(
		&mcpsdk.Implementation{Name: "redub", Version: serverVersion},
		nil,
	)

	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        "dub",
		Description: "Start dubbing a video or audio file into a target language. Returns a job ID immediately; poll job_status for progress.",
	}, s.dub)
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        "job_status",
		Description: "Report the status, per-stage progress, metrics, and artifacts of a dub job.",
	}, s.jobStatus)
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        "cancel_job",
		Description: "Cancel a running dub job.",
	}, s.cancelJob)
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        "list_voices",
		Description: "List the available synthesis voices grouped by language, optionally filtered to one language.",
	}, s.listVoices)

	slog.Info("MCP server listening on stdio", "version", serverVersion)
	return srv.Run(ctx, &mcpsdk.StdioTransport{})
}

// DubArgs are the inputs of the dub tool. Omitted fields fall back to the
// server's dubbing configuration.
type DubArgs struct {
	Input          string `json:"input" jsonschema:"path to the source video or audio file"`
	TargetLanguage string `json:"target_language,omitempty" jsonschema:"language to dub into, e.g. es or pt-br"`
	SourceLanguage string `json:"source_language,omitempty" jsonschema:"spoken language of the input; empty auto-detects"`
	Output         string `json:"output,omitempty" jsonschema:"explicit output file path"`
	Format         string `json:"format,omitempty" jsonschema:"output audio codec, aac or mp3"`
	SpeakerMode    string `json:"speaker_mode,omitempty" jsonschema:"voice assignment mode: single, alternating, multi, or smart"`
	Quick          bool   `json:"quick,omitempty" jsonschema:"use the faster single-pass mix"`
}

// DubResult is the dub tool's response.
type DubResult struct {
	JobID          string `json:"job_id"`
	Status         string `json:"status"`
	Source         string `json:"source"`
	TargetLanguage string `json:"target_language"`
}

func (s *Server) dub(_ context.Context, _ *mcpsdk.CallToolRequest, args DubArgs) (*mcpsdk.CallToolResult, DubResult, error) {
	if args.Input == "" {
		return nil, DubResult{}, errors.New("input is required")
	}

	opts := s.app.JobOptions()
	if args.TargetLanguage != "" {
		opts.TargetLanguage = args.TargetLanguage
	}
	if args.SourceLanguage != "" {
		opts.SourceLanguage = args.SourceLanguage
	}
	if args.Output != "" {
		opts.OutputPath = args.Output
	}
	if args.Format != "" {
		codec := media.Codec(strings.ToLower(args.Format))
		if codec != media.CodecAAC && codec != media.CodecMP3 {
			return nil, DubResult{}, fmt.Errorf("format %q not supported, use aac or mp3", args.Format)
		}
		opts.OutputFormat = codec
	}
	if args.SpeakerMode != "" {
		mode := segment.SpeakerMode(strings.ToLower(args.SpeakerMode))
		if !mode.IsValid() {
			return nil, DubResult{}, fmt.Errorf("speaker_mode %q not recognised", args.SpeakerMode)
		}
		opts.SpeakerMode = mode
	}
	if args.Quick {
		opts.QuickMode = true
	}

	j, err := s.tracker.Submit(args.Input, opts)
	if err != nil {
		return nil, DubResult{}, err
	}

	slog.Info("dub job submitted",
		"job_id", j.ID,
		"source", args.Input,
		"target_language", opts.TargetLanguage,
	)
	return nil, DubResult{
		JobID:          j.ID,
		Status:         string(j.State()),
		Source:         args.Input,
		TargetLanguage: opts.TargetLanguage,
	}, nil
}

// JobStatusArgs are the inputs of the job_status tool.
type JobStatusArgs struct {
	JobID string `json:"job_id" jsonschema:"identifier returned by the dub tool"`
}

func (s *Server) jobStatus(_ context.Context, _ *mcpsdk.CallToolRequest, args JobStatusArgs) (*mcpsdk.CallToolResult, pipeline.Record, error) {
	rec, ok := s.tracker.Status(args.JobID)
	if !ok {
		return nil, pipeline.Record{}, fmt.Errorf("unknown job %q", args.JobID)
	}
	return nil, rec, nil
}

// CancelArgs are the inputs of the cancel_job tool.
type CancelArgs struct {
	JobID string `json:"job_id" jsonschema:"identifier returned by the dub tool"`
}

// CancelResult is the cancel_job tool's response. Canceled is false when the
// job is unknown or already finished.
type CancelResult struct {
	JobID    string `json:"job_id"`
	Canceled bool   `json:"canceled"`
}

func (s *Server) cancelJob(_ context.Context, _ *mcpsdk.CallToolRequest, args CancelArgs) (*mcpsdk.CallToolResult, CancelResult, error) {
	canceled := s.tracker.Cancel(args.JobID)
	if canceled {
		slog.Info("dub job cancelled", "job_id", args.JobID)
	}
	return nil, CancelResult{JobID: args.JobID, Canceled: canceled}, nil
}

// ListVoicesArgs are the inputs of the list_voices tool.
type ListVoicesArgs struct {
	Language string `json:"language,omitempty" jsonschema:"restrict the listing to one language, e.g. es or pt-br"`
}

// CatalogVoice is one voice in a list_voices response. ID is empty for
// providers with opaque identifiers; Name carries the label then.
type CatalogVoice struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
	Gender string `json:"gender"`
	Style  string `json:"style,omitempty"`
}

// ListVoicesResult maps language codes to their available voices.
type ListVoicesResult struct {
	Voices map[string][]CatalogVoice `json:"voices"`
}

func (s *Server) listVoices(_ context.Context, _ *mcpsdk.CallToolRequest, args ListVoicesArgs) (*mcpsdk.CallToolResult, ListVoicesResult, error) {
	catalog := s.app.Catalog()

	langs := catalog.Languages()
	if args.Language != "" {
		if !catalog.Known(args.Language) {
			return nil, ListVoicesResult{}, fmt.Errorf("no voices for language %q", args.Language)
		}
		langs = []string{catalog.Resolve(args.Language)}
	}

	out := ListVoicesResult{Voices: make(map[string][]CatalogVoice, len(langs))}
	for _, lang := range langs {
		entry := catalog[lang]
		voices := make([]CatalogVoice, 0, len(entry.Male)+len(entry.Female))
		for _, v := range entry.Male {
			voices = append(voices, CatalogVoice{ID: v.ID, Name: v.Name, Gender: "male", Style: v.Style})
		}
		for _, v := range entry.Female {
			voices = append(voices, CatalogVoice{ID: v.ID, Name: v.Name, Gender: "female", Style: v.Style})
		}
		out.Voices[lang] = voices
	}
	return nil, out, nil
}

// serveMetrics starts the HTTP listener for the /metrics, /healthz, and
// /readyz endpoints. The listener drains and stops when ctx is cancelled.
func (s *Server) serveMetrics(ctx context.Context) {
	checks := health.New(health.Checker{Name: "capacity", Check: s.tracker.Ready})

	mux := http.NewServeMux()
	checks.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    s.metricsAddr,
		Handler: observe.Middleware(observe.DefaultMetrics())(mux),
	}

	go func() {
		slog.Info("metrics listener starting", "addr", s.metricsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics listener failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownGrace)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()
}
