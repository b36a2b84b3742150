package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/abelbrown/sentix/internal/model"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunPublished = "published"
	RunIdle      = "idle" // nothing new or no event passed the pipeline
	RunFailed    = "failed"
)

// Run is one pipeline cycle.
type Run struct {
	ID             string
	StartedAt      time.Time
	FinishedAt     time.Time
	Status         string
	Fetched        int
	NewItems       int
	Events         int
	EventID        string // event the draft was generated for
	FallbackReason string
	Error          string
}

// Draft is a generated narrative as it was published.
type Draft struct {
	RunID          string
	EventID        string
	Sentiment      model.Sentiment
	Reasoning      string
	Narrative      string
	FallbackReason string
	Rewritten      bool
	CreatedAt      time.Time
}

// StartRun records a new running cycle and returns its id.
// Thread-safe: acquires write lock.
func (s *Store) StartRun(at time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	_, err := s.db.Exec(
		"INSERT INTO runs (id, started_at, status) VALUES (?, ?, ?)",
		id, at, RunRunning,
	)
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	return id, nil
}

// FinishRun stores the final state of a run.
// Thread-safe: acquires write lock.
func (s *Store) FinishRun(r Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	finished := r.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	result, err := s.db.Exec(`
		UPDATE runs SET finished_at = ?, status = ?, fetched = ?, new_items = ?, events = ?,
			event_id = ?, fallback_reason = ?, error = ?
		WHERE id = ?
	`, finished, r.Status, r.Fetched, r.NewItems, r.Events, r.EventID, r.FallbackReason, r.Error, r.ID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run: unknown run %q", r.ID)
	}
	return nil
}

// RecentRuns returns the latest runs, newest first.
// Thread-safe: acquires read lock.
func (s *Store) RecentRuns(limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, status, fetched, new_items, events,
			COALESCE(event_id, ''), COALESCE(fallback_reason, ''), COALESCE(error, '')
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.StartedAt, &finished, &r.Status, &r.Fetched, &r.NewItems,
			&r.Events, &r.EventID, &r.FallbackReason, &r.Error); err != nil {
			return nil, err
		}
		if finished.Valid {
			r.FinishedAt = finished.Time
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// SaveEvents stores the verified events a run produced. Facts and sources
// are kept as JSON.
// Thread-safe: acquires write lock.
func (s *Store) SaveEvents(runID string, events []model.VerifiedEvent, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO verified_events
			(run_id, event_id, title, confidence, source_count, sources, facts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ev := range events {
		sources, err := json.Marshal(ev.Sources)
		if err != nil {
			return err
		}
		facts, err := json.Marshal(ev.Facts)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(runID, ev.EventID, ev.Title, ev.Confidence, ev.SourceCount,
			string(sources), string(facts), at); err != nil {
			return fmt.Errorf("save event %s: %w", ev.EventID, err)
		}
	}
	return tx.Commit()
}

// EventsForRun loads the verified events of a run without their items,
// strongest first.
// Thread-safe: acquires read lock.
func (s *Store) EventsForRun(runID string) ([]model.VerifiedEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT event_id, title, confidence, source_count, sources, facts
		FROM verified_events
		WHERE run_id = ?
		ORDER BY source_count DESC, event_id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.VerifiedEvent
	for rows.Next() {
		var ev model.VerifiedEvent
		var sources, facts string
		if err := rows.Scan(&ev.EventID, &ev.Title, &ev.Confidence, &ev.SourceCount, &sources, &facts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(sources), &ev.Sources); err != nil {
			return nil, fmt.Errorf("decode sources for %s: %w", ev.EventID, err)
		}
		if err := json.Unmarshal([]byte(facts), &ev.Facts); err != nil {
			return nil, fmt.Errorf("decode facts for %s: %w", ev.EventID, err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// SaveDraft stores a published draft.
// Thread-safe: acquires write lock.
func (s *Store) SaveDraft(d Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := d.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO drafts (run_id, event_id, sentiment, reasoning, narrative, fallback_reason, rewritten, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, d.RunID, d.EventID, string(d.Sentiment), d.Reasoning, d.Narrative, d.FallbackReason,
		boolToInt(d.Rewritten), created)
	if err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// RecentDrafts returns the latest drafts, newest first.
// Thread-safe: acquires read lock.
func (s *Store) RecentDrafts(limit int) ([]Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT run_id, COALESCE(event_id, ''), sentiment, COALESCE(reasoning, ''), narrative,
			COALESCE(fallback_reason, ''), rewritten, created_at
		FROM drafts
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drafts []Draft
	for rows.Next() {
		var d Draft
		var sentiment string
		var rewritten int
		if err := rows.Scan(&d.RunID, &d.EventID, &sentiment, &d.Reasoning, &d.Narrative,
			&d.FallbackReason, &rewritten, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.Sentiment = model.Sentiment(sentiment)
		d.Rewritten = rewritten != 0
		drafts = append(drafts, d)
	}
	return drafts, rows.Err()
}

// SentimentCounts tallies drafts by sentiment.
// Thread-safe: acquires read lock.
func (s *Store) SentimentCounts() (map[model.Sentiment]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT sentiment, COUNT(*) FROM drafts GROUP BY sentiment")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.Sentiment]int)
	for rows.Next() {
		var sentiment string
		var n int
		if err := rows.Scan(&sentiment, &n); err != nil {
			return nil, err
		}
		counts[model.Sentiment(sentiment)] = n
	}
	return counts, rows.Err()
}
