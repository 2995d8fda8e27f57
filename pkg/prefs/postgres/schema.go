// Package postgres provides a PostgreSQL-backed implementation of the
// voice-preference store.
//
// All methods share one [pgxpool.Pool]. The pgvector extension is required
// for the voice_features table; [Migrate] installs it via CREATE EXTENSION
// IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.New(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.RecordAssignment(ctx, prefs.Assignment{…})
//	id, _ := store.PreferredVoice(ctx, "es", segment.GenderFemale)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/redub/pkg/prefs"
)

// ddlVoicePrefs scores one row per (language, gender, voice). The score
// accumulates outcome deltas; interactions gates the preference lookup.
const ddlVoicePrefs = `
CREATE TABLE IF NOT EXISTS voice_prefs (
    language     TEXT         NOT NULL,
    gender       TEXT         NOT NULL,
    voice_id     TEXT         NOT NULL,
    score        REAL         NOT NULL DEFAULT 0,
    interactions INT          NOT NULL DEFAULT 0,
    updated_at   TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (language, gender, voice_id)
);

CREATE INDEX IF NOT EXISTS idx_voice_prefs_lookup
    ON voice_prefs (language, gender, score DESC);
`

// ddlJobSummaries archives one row per finished job.
const ddlJobSummaries = `
CREATE TABLE IF NOT EXISTS job_summaries (
    job_id          TEXT         PRIMARY KEY,
    source_path     TEXT         NOT NULL,
    target_language TEXT         NOT NULL,
    status          TEXT         NOT NULL,
    sync_good       INT          NOT NULL DEFAULT 0,
    sync_fair       INT          NOT NULL DEFAULT 0,
    sync_poor       INT          NOT NULL DEFAULT 0,
    overall_lufs    REAL         NOT NULL DEFAULT 0,
    created_at      TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_job_summaries_language
    ON job_summaries (target_language);
`

// ddlVoiceFeatures returns the feature table DDL with the vector dimension
// baked into the column type.
func ddlVoiceFeatures() string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS voice_features (
    voice_id   TEXT         NOT NULL,
    language   TEXT         NOT NULL,
    features   vector(%d)   NOT NULL,
    updated_at TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (voice_id, language)
);

CREATE INDEX IF NOT EXISTS idx_voice_features_nn
    ON voice_features USING ivfflat (features vector_l2_ops) WITH (lists = 100);
`, prefs.FeatureDim)
}

// Migrate creates or ensures all required tables and extensions exist. It is
// idempotent and safe to call on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		ddlVoicePrefs,
		ddlVoiceFeatures(),
		ddlJobSummaries,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("prefs migrate: %w", err)
		}
	}
	return nil
}
