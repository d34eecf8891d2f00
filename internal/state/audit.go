package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/weft-dsl/weft/pkg/models"
)

// SessionRecord is the stored accounting row for one session.
type SessionRecord struct {
	ID         string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
	Metrics    models.ResourceMetrics
}

// InvocationRecord is the stored metadata row for one task invocation.
type InvocationRecord struct {
	SessionID string
	Template  string
	Status    string
	Reason    string
	Depth     int
	Iteration int
	Duration  time.Duration
	CreatedAt time.Time
}

// BeginSession records a new active session.
func (db *DB) BeginSession(id string, metrics models.ResourceMetrics) error {
	_, err := db.Exec(`
		INSERT INTO sessions (id, started_at, status, turn_limit, context_limit)
		VALUES (?, ?, 'active', ?, ?)
	`, id, formatTime(time.Now()), metrics.Turns.Limit, metrics.Context.Limit)
	if err != nil {
		return fmt.Errorf("begin session %s: %w", id, err)
	}
	return nil
}

// FinishSession marks the session done and stores its final counters.
func (db *DB) FinishSession(id, status string, metrics models.ResourceMetrics) error {
	_, err := db.Exec(`
		UPDATE sessions
		SET finished_at = ?, status = ?, turns_used = ?, context_used = ?, context_peak = ?
		WHERE id = ?
	`, formatTime(time.Now()), status, metrics.Turns.Used, metrics.Context.Used, metrics.Context.Peak, id)
	if err != nil {
		return fmt.Errorf("finish session %s: %w", id, err)
	}
	return nil
}

// RecordInvocation appends one invocation row.
func (db *DB) RecordInvocation(rec *InvocationRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := db.Exec(`
		INSERT INTO invocations (session_id, template, status, reason, depth, iteration, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.SessionID, rec.Template, rec.Status, rec.Reason, rec.Depth, rec.Iteration,
		rec.Duration.Milliseconds(), formatTime(createdAt))
	if err != nil {
		return fmt.Errorf("record invocation of %s: %w", rec.Template, err)
	}
	return nil
}

// GetSession loads one session row.
func (db *DB) GetSession(id string) (*SessionRecord, error) {
	row := db.QueryRow(`
		SELECT id, started_at, finished_at, status, turn_limit, turns_used, context_limit, context_used, context_peak
		FROM sessions WHERE id = ?
	`, id)

	var (
		rec        SessionRecord
		startedAt  string
		finishedAt sql.NullString
	)
	err := row.Scan(&rec.ID, &startedAt, &finishedAt, &rec.Status,
		&rec.Metrics.Turns.Limit, &rec.Metrics.Turns.Used,
		&rec.Metrics.Context.Limit, &rec.Metrics.Context.Used, &rec.Metrics.Context.Peak)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}

	if rec.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("session %s: bad started_at: %w", id, err)
	}
	if finishedAt.Valid {
		t, err := parseTime(finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("session %s: bad finished_at: %w", id, err)
		}
		rec.FinishedAt = &t
	}
	return &rec, nil
}

// ListInvocations returns the invocations of a session in insertion order.
func (db *DB) ListInvocations(sessionID string) ([]*InvocationRecord, error) {
	rows, err := db.Query(`
		SELECT session_id, template, status, reason, depth, iteration, duration_ms, created_at
		FROM invocations WHERE session_id = ? ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list invocations for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var records []*InvocationRecord
	for rows.Next() {
		var (
			rec        InvocationRecord
			durationMS int64
			createdAt  string
		)
		if err := rows.Scan(&rec.SessionID, &rec.Template, &rec.Status, &rec.Reason,
			&rec.Depth, &rec.Iteration, &durationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scan invocation: %w", err)
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		if rec.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("bad created_at: %w", err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// TemplateCounts returns the number of invocations per template for a
// session, most used first.
func (db *DB) TemplateCounts(sessionID string) (map[string]int, error) {
	rows, err := db.Query(`
		SELECT template, COUNT(*) FROM invocations
		WHERE session_id = ? GROUP BY template
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("template counts for %s: %w", sessionID, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var template string
		var count int
		if err := rows.Scan(&template, &count); err != nil {
			return nil, fmt.Errorf("scan template count: %w", err)
		}
		counts[template] = count
	}
	return counts, rows.Err()
}
