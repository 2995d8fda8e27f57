// Package mock provides an in-memory test double for the preference store.
//
// The mock records every call for assertion and exposes exported fields that
// control what it returns. Scores accumulate in memory following the same
// model as the real store, so preference tests can exercise the full
// record-then-lookup cycle without a database. Safe for concurrent use.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/redub/internal/segment"
	"github.com/MrWong99/redub/pkg/prefs"
)

// prefKey identifies one scored voice row.
type prefKey struct {
	language string
	gender   string
	voiceID  string
}

type prefRow struct {
	score        float64
	interactions int
}

// Store is a configurable test double for [prefs.Store].
type Store struct {
	mu sync.Mutex

	rows map[prefKey]*prefRow

	// Assignments, Outcomes and Summaries record every call in order.
	Assignments []prefs.Assignment
	Outcomes    []prefs.Outcome
	Summaries   []prefs.JobSummary

	// NearestResult is returned by NearestVoices. Nil returns an empty
	// slice.
	NearestResult []string

	// Err, when set, is returned by every method.
	Err error

	// Closed reports whether Close was called.
	Closed bool
}

var _ prefs.Store = (*Store)(nil)

// RecordAssignment implements [prefs.Store].
func (m *Store) RecordAssignment(_ context.Context, a prefs.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Assignments = append(m.Assignments, a)
	m.row(a.Language, string(a.Gender), a.VoiceID)
	return nil
}

// RecordOutcome implements [prefs.Store]. The delta lands on every row of
// the voice in the language, mirroring the real store's gender-agnostic
// update.
func (m *Store) RecordOutcome(_ context.Context, o prefs.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Outcomes = append(m.Outcomes, o)
	for k, r := range m.rows {
		if k.language == o.Language && k.voiceID == o.VoiceID {
			r.score += o.Delta()
			r.interactions++
		}
	}
	return nil
}

// PreferredVoice implements [prefs.Store].
func (m *Store) PreferredVoice(_ context.Context, language string, gender segment.Gender) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	var (
		best      string
		bestScore float64
	)
	for k, r := range m.rows {
		if k.language != language || k.gender != string(gender) {
			continue
		}
		if r.interactions < prefs.MinInteractions {
			continue
		}
		if best == "" || r.score > bestScore {
			best, bestScore = k.voiceID, r.score
		}
	}
	return best, nil
}

// NearestVoices implements [prefs.Store].
func (m *Store) NearestVoices(_ context.Context, language string, features []float32, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := m.NearestResult
	if out == nil {
		out = []string{}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SaveJobSummary implements [prefs.Store].
func (m *Store) SaveJobSummary(_ context.Context, s prefs.JobSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Summaries = append(m.Summaries, s)
	return nil
}

// Close implements [prefs.Store].
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// Seed installs a scored row directly, bypassing the outcome math.
func (m *Store) Seed(language string, gender segment.Gender, voiceID string, score float64, interactions int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.row(language, string(gender), voiceID)
	r.score = score
	r.interactions = interactions
}

// row returns the scored row for the key, creating it when missing. Callers
// hold the lock.
func (m *Store) row(language, gender, voiceID string) *prefRow {
	if m.rows == nil {
		m.rows = make(map[prefKey]*prefRow)
	}
	k := prefKey{language: language, gender: gender, voiceID: voiceID}
	if m.rows[k] == nil {
		m.rows[k] = &prefRow{}
	}
	return m.rows[k]
}
