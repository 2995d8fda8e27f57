package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/redub/internal/segment"
	"github.com/MrWong99/redub/internal/voice"
	"github.com/MrWong99/redub/pkg/prefs"
)

// Compile-time interface checks. The store satisfies voice.Preferrer
// directly, so it can be handed to the assigner without an adapter.
var (
	_ prefs.Store     = (*Store)(nil)
	_ voice.Preferrer = (*Store)(nil)
)

// Store is the PostgreSQL-backed preference store. All operations are safe
// for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to the database at dsn, registers pgvector types on every
// connection, and runs [Migrate].
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("prefs store: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("prefs store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("prefs store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("prefs store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// RecordAssignment implements [prefs.Store]. It ensures the preference row
// exists and upserts the feature vector when the assignment carries one.
func (s *Store) RecordAssignment(ctx context.Context, a prefs.Assignment) error {
	const q = `
		INSERT INTO voice_prefs (language, gender, voice_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (language, gender, voice_id)
		DO UPDATE SET updated_at = now()`

	if _, err := s.pool.Exec(ctx, q, a.Language, string(a.Gender), a.VoiceID); err != nil {
		return fmt.Errorf("prefs store: record assignment: %w", err)
	}
	if len(a.Features) == 0 {
		return nil
	}

	const qf = `
		INSERT INTO voice_features (voice_id, language, features)
		VALUES ($1, $2, $3)
		ON CONFLICT (voice_id, language) DO UPDATE SET
		    features   = EXCLUDED.features,
		    updated_at = now()`

	if _, err := s.pool.Exec(ctx, qf, a.VoiceID, a.Language, pgvector.NewVector(a.Features)); err != nil {
		return fmt.Errorf("prefs store: record features: %w", err)
	}
	return nil
}

// RecordOutcome implements [prefs.Store]. The delta lands on every gender
// row of the voice; a voice is only ever cataloged under one gender, so this
// touches exactly the row RecordAssignment created.
func (s *Store) RecordOutcome(ctx context.Context, o prefs.Outcome) error {
	const q = `
		UPDATE voice_prefs
		SET    score        = score + $3,
		       interactions = interactions + 1,
		       updated_at   = now()
		WHERE  language = $1 AND voice_id = $2`

	tag, err := s.pool.Exec(ctx, q, o.Language, o.VoiceID, o.Delta())
	if err != nil {
		return fmt.Errorf("prefs store: record outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("prefs store: outcome for unknown voice %q in %q", o.VoiceID, o.Language)
	}
	return nil
}

// PreferredVoice implements [prefs.Store] and [voice.Preferrer]. It returns
// the best-scoring voice with enough interactions, or "" when none
// qualifies.
func (s *Store) PreferredVoice(ctx context.Context, language string, gender segment.Gender) (string, error) {
	const q = `
		SELECT voice_id
		FROM   voice_prefs
		WHERE  language = $1 AND gender = $2 AND interactions >= $3
		ORDER  BY score DESC, interactions DESC
		LIMIT  1`

	var id string
	err := s.pool.QueryRow(ctx, q, language, string(gender), prefs.MinInteractions).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("prefs store: preferred voice: %w", err)
	}
	return id, nil
}

// NearestVoices implements [prefs.Store]. Results are ordered by ascending
// L2 distance (closest first).
func (s *Store) NearestVoices(ctx context.Context, language string, features []float32, limit int) ([]string, error) {
	const q = `
		SELECT voice_id
		FROM   voice_features
		WHERE  language = $1
		ORDER  BY features <-> $2
		LIMIT  $3`

	rows, err := s.pool.Query(ctx, q, language, pgvector.NewVector(features), limit)
	if err != nil {
		return nil, fmt.Errorf("prefs store: nearest voices: %w", err)
	}
	ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var id string
		err := row.Scan(&id)
		return id, err
	})
	if err != nil {
		return nil, fmt.Errorf("prefs store: scan rows: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// SaveJobSummary implements [prefs.Store].
func (s *Store) SaveJobSummary(ctx context.Context, sum prefs.JobSummary) error {
	const q = `
		INSERT INTO job_summaries
		    (job_id, source_path, target_language, status,
		     sync_good, sync_fair, sync_poor, overall_lufs, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (job_id) DO UPDATE SET
		    status       = EXCLUDED.status,
		    sync_good    = EXCLUDED.sync_good,
		    sync_fair    = EXCLUDED.sync_fair,
		    sync_poor    = EXCLUDED.sync_poor,
		    overall_lufs = EXCLUDED.overall_lufs`

	created := sum.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, q,
		sum.JobID,
		sum.SourcePath,
		sum.TargetLanguage,
		sum.Status,
		sum.SyncGood,
		sum.SyncFair,
		sum.SyncPoor,
		sum.OverallLUFS,
		created,
	)
	if err != nil {
		return fmt.Errorf("prefs store: save job summary: %w", err)
	}
	return nil
}

// Close implements [prefs.Store]. It releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
