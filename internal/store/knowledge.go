package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abelbrown/sentix/internal/brain"
	"github.com/abelbrown/sentix/internal/model"
)

// Knowledge is a knowledge-base entry written by the generation agent and
// read back as historical context for later events.
type Knowledge struct {
	RunID     string
	EventID   string
	Topic     string
	Entry     string
	Sentiment model.Sentiment
	CreatedAt time.Time
}

// SaveKnowledge stores an entry. Empty entries are ignored.
// Thread-safe: acquires write lock.
func (s *Store) SaveKnowledge(k Knowledge) error {
	if strings.TrimSpace(k.Entry) == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	created := k.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO knowledge (run_id, event_id, topic, entry, sentiment, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, k.RunID, k.EventID, k.Topic, k.Entry, string(k.Sentiment), created)
	if err != nil {
		return fmt.Errorf("save knowledge: %w", err)
	}
	return nil
}

// SearchKnowledge returns the newest entries whose topic or text contains
// any of terms, case-insensitively. No terms returns nothing.
// Thread-safe: acquires read lock.
func (s *Store) SearchKnowledge(terms []string, limit int) ([]Knowledge, error) {
	var clauses []string
	var args []any
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if len(t) < 2 {
			continue
		}
		pattern := "%" + escapeLike(strings.ToLower(t)) + "%"
		clauses = append(clauses, `(LOWER(topic) LIKE ? ESCAPE '\' OR LOWER(entry) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	if len(clauses) == 0 {
		return nil, nil
	}
	args = append(args, limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT COALESCE(run_id, ''), COALESCE(event_id, ''), topic, entry, COALESCE(sentiment, ''), created_at
		FROM knowledge
		WHERE `+strings.Join(clauses, " OR ")+`
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Knowledge
	for rows.Next() {
		var k Knowledge
		var sentiment string
		if err := rows.Scan(&k.RunID, &k.EventID, &k.Topic, &k.Entry, &sentiment, &k.CreatedAt); err != nil {
			return nil, err
		}
		k.Sentiment = model.Sentiment(sentiment)
		out = append(out, k)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// SaveBreakerState persists the circuit breaker so a restart keeps an open
// breaker open until its cooldown ends.
// Thread-safe: acquires write lock.
func (s *Store) SaveBreakerState(st brain.BreakerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO breaker_state (id, failures, active, until) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET failures = excluded.failures, active = excluded.active, until = excluded.until
	`, st.ConsecutiveFailures, boolToInt(st.FallbackActive), st.FallbackUntil)
	if err != nil {
		return fmt.Errorf("save breaker state: %w", err)
	}
	return nil
}

// LoadBreakerState returns the persisted breaker state. ok is false when
// nothing has been saved yet.
// Thread-safe: acquires read lock.
func (s *Store) LoadBreakerState() (st brain.BreakerState, ok bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active int
	err = s.db.QueryRow("SELECT failures, active, until FROM breaker_state WHERE id = 1").
		Scan(&st.ConsecutiveFailures, &active, &st.FallbackUntil)
	if errors.Is(err, sql.ErrNoRows) {
		return brain.BreakerState{}, false, nil
	}
	if err != nil {
		return brain.BreakerState{}, false, err
	}
	st.FallbackActive = active != 0
	return st, true, nil
}
