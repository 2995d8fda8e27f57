// Package pipeline drives a job through the dubbing stages.
//
// The Orchestrator runs the stage sequence strictly in order: a stage starts
// only after the previous one ended succeeded or degraded. A degraded stage
// adds a warning to the result and the run continues; a failed stage aborts
// the run and the failure is classified onto the error taxonomy for the job
// record. The scratch directory is removed when the run ends, whatever the
// outcome, unless the orchestrator was built to keep it.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/MrWong99/redub/internal/job"
	"github.com/MrWong99/redub/internal/segment"
	"github.com/MrWong99/redub/internal/stage"
)

// Summary are the headline numbers of a finished job: how well the rendered
// segments hit their slots, and how loud the final mix came out.
type Summary struct {
	SyncGood int `json:"sync_good"`
	SyncFair int `json:"sync_fair"`
	SyncPoor int `json:"sync_poor"`

	// FailedSegments counts segments whose synthesis exhausted all retries
	// and were replaced by silence.
	FailedSegments int `json:"failed_segments,omitempty"`

	OverallLUFS float64 `json:"overall_lufs"`
}

// Result is the outcome of one pipeline run.
type Result struct {
	// Success reports whether every stage ended succeeded or degraded.
	Success bool

	// Stages is the final stage table in execution order.
	Stages []job.StageStatus

	// Artifacts are the paths recorded up to the end of the run. On a
	// failed run they point at whatever the last successful stage left
	// behind; scratch paths are gone once the directory is cleaned.
	Artifacts job.Artifacts

	// Metrics summarizes sync quality and final loudness.
	Metrics Summary

	// Warnings carries one entry per degraded stage.
	Warnings []string

	// Err is the classified fatal failure, nil on success.
	Err *Error
}

// Record is the machine-readable job record emitted when a run ends and
// returned by the job status tool while one is in flight.
type Record struct {
	JobID          string            `json:"job_id"`
	Status         job.Status        `json:"status"`
	SourcePath     string            `json:"source_path,omitempty"`
	TargetLanguage string            `json:"target_language,omitempty"`
	TotalSegments  int               `json:"total_segments,omitempty"`
	Stages         []job.StageStatus `json:"stages"`
	Metrics        Summary           `json:"metrics"`
	Artifacts      job.Artifacts     `json:"artifacts"`
	Warnings       []string          `json:"warnings,omitempty"`
	Error          *ErrorRecord      `json:"error,omitempty"`
}

// ErrorRecord is the serialized form of a fatal [Error].
type ErrorRecord struct {
	Kind    Kind   `json:"kind"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// Orchestrator runs jobs through a fixed stage sequence.
type Orchestrator struct {
	stages      []stage.Runner
	keepScratch bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithKeepScratch leaves the job's scratch directory in place after the run,
// for debugging intermediate artifacts.
func WithKeepScratch() Option {
	return func(o *Orchestrator) { o.keepScratch = true }
}

// New creates an orchestrator over the given stages, run in slice order.
func New(stages []stage.Runner, opts ...Option) *Orchestrator {
	o := &Orchestrator{stages: stages}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the stage sequence on j. The returned Result is always
// populated; the error is non-nil exactly when the run failed, and is always
// a classified *Error. Cancellation of ctx aborts the current stage and
// fails the job.
func (o *Orchestrator) Run(ctx context.Context, j *job.Job) (*Result, error) {
	j.SetState(job.StatusRunning)
	slog.Info("pipeline: job started",
		"job_id", j.ID,
		"source", j.SourcePath,
		"target_language", j.Options.TargetLanguage)
	start := time.Now()

	var (
		warnings []string
		fatal    *Error
	)
	for _, st := range o.stages {
		status, err := o.runStage(ctx, st, j)
		if status == job.StatusFailed {
			fatal = &Error{Kind: Classify(err), Stage: st.Name(), Err: err}
			break
		}
		if status == job.StatusDegraded {
			warnings = append(warnings, fmt.Sprintf("%s: %v", st.Name(), err))
		}
	}

	final := job.StatusSucceeded
	if fatal != nil {
		final = job.StatusFailed
	}
	j.SetState(final)

	if !o.keepScratch {
		if err := j.Cleanup(); err != nil {
			slog.Warn("pipeline: scratch cleanup failed", "job_id", j.ID, "error", err)
		}
	}

	res := &Result{
		Success:   fatal == nil,
		Stages:    j.Stages(),
		Artifacts: j.Artifacts(),
		Metrics:   summarize(j),
		Warnings:  warnings,
		Err:       fatal,
	}
	slog.Info("pipeline: job finished",
		"job_id", j.ID,
		"status", final,
		"duration", time.Since(start).Round(time.Millisecond),
		"warnings", len(warnings))
	if fatal != nil {
		return res, fatal
	}
	return res, nil
}

// runStage executes one stage, maps its error onto a terminal status and
// records both on the job and in the metrics.
func (o *Orchestrator) runStage(ctx context.Context, st stage.Runner, j *job.Job) (job.Status, error) {
	name := st.Name()
	j.StartStage(name)
	slog.Info("pipeline: stage started", "job_id", j.ID, "stage", name)

	start := time.Now()
	err := st.Run(ctx, j)
	elapsed := time.Since(start)

	status := job.StatusSucceeded
	switch {
	case err == nil:
		slog.Info("pipeline: stage succeeded",
			"job_id", j.ID, "stage", name, "duration", elapsed.Round(time.Millisecond))
	case errors.Is(err, stage.ErrDegraded):
		status = job.StatusDegraded
		slog.Warn("pipeline: stage degraded",
			"job_id", j.ID, "stage", name, "reason", err)
	default:
		status = job.StatusFailed
		slog.Error("pipeline: stage failed",
			"job_id", j.ID, "stage", name, "error", err)
	}
	j.FinishStage(name, status, elapsed, err)
	j.Metrics.RecordStage(ctx, name, string(status), elapsed)
	return status, err
}

// summarize counts the sync classes over the final segment list and attaches
// the measured loudness of the final mix.
func summarize(j *job.Job) Summary {
	var s Summary
	for _, sg := range j.Segments() {
		switch sg.Sync {
		case segment.SyncGood:
			s.SyncGood++
		case segment.SyncFair:
			s.SyncFair++
		case segment.SyncPoor:
			s.SyncPoor++
		}
		if sg.Failed {
			s.FailedSegments++
		}
	}
	s.OverallLUFS = j.FinalLoudness()
	return s
}

// NewRecord flattens a finished job and its result into the stdout record.
func NewRecord(j *job.Job, res *Result) Record {
	rec := Record{
		JobID:          j.ID,
		Status:         j.State(),
		SourcePath:     j.SourcePath,
		TargetLanguage: j.Options.TargetLanguage,
		TotalSegments:  len(j.Segments()),
		Stages:         res.Stages,
		Metrics:        res.Metrics,
		Artifacts:      res.Artifacts,
		Warnings:       res.Warnings,
	}
	if res.Err != nil {
		rec.Error = &ErrorRecord{
			Kind:    res.Err.Kind,
			Stage:   res.Err.Stage,
			Message: res.Err.Err.Error(),
		}
	}
	return rec
}

// Write serializes the record as indented JSON to w.
func (r Record) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
