package store

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/ashvinar/memory-layer/internal/apperr"
)

// CreateTurn appends an immutable Turn row. Fails with Conflict if the id
// is already present.
func (s *SQLiteStore) CreateTurn(t *Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tsAI sql.NullInt64
	if t.TSAI != nil {
		tsAI = sql.NullInt64{Int64: t.TSAI.UnixMilli(), Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO turns (id, thread_id, ts_user, user_text, ts_ai, ai_text, source_app, source_url, source_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.ThreadID, t.TSUser.UnixMilli(), t.UserText, tsAI, nullString(t.AIText),
		t.Source.App, nullString(t.Source.URL), nullString(t.Source.Path), t.CreatedAt.UnixMilli())
	if err != nil {
		if isUniqueConstraint(err) {
			return apperr.NewConflict("turn %s already exists", t.ID)
		}
		return apperr.WrapInternal(err, "insert turn")
	}
	return nil
}

// GetTurn reads a single turn by id. Returns apperr.NotFound on a miss.
func (s *SQLiteStore) GetTurn(id string) (*Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, thread_id, ts_user, user_text, ts_ai, ai_text, source_app, source_url, source_path, created_at
		FROM turns WHERE id = ?
	`, id)
	return scanTurn(row)
}

// ListTurnsForThread returns every turn for a thread, oldest first.
func (s *SQLiteStore) ListTurnsForThread(threadID string) ([]*Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, thread_id, ts_user, user_text, ts_ai, ai_text, source_app, source_url, source_path, created_at
		FROM turns WHERE thread_id = ? ORDER BY ts_user ASC
	`, threadID)
	if err != nil {
		return nil, apperr.WrapInternal(err, "list turns for thread")
	}
	defer rows.Close()

	var out []*Turn
	for rows.Next() {
		t, err := scanTurnRows(rows)
		if err != nil {
			return nil, apperr.WrapInternal(err, "scan turn")
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTurn(row *sql.Row) (*Turn, error) {
	t, err := scanTurnGeneric(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NewNotFound("turn not found")
	}
	if err != nil {
		return nil, apperr.WrapInternal(err, "scan turn")
	}
	return t, nil
}

func scanTurnRows(rows *sql.Rows) (*Turn, error) {
	return scanTurnGeneric(rows)
}

func scanTurnGeneric(r rowScanner) (*Turn, error) {
	var (
		t           Turn
		tsUserMs    int64
		tsAI        sql.NullInt64
		aiText      sql.NullString
		sourceURL   sql.NullString
		sourcePath  sql.NullString
		createdAtMs int64
	)
	if err := r.Scan(&t.ID, &t.ThreadID, &tsUserMs, &t.UserText, &tsAI, &aiText,
		&t.Source.App, &sourceURL, &sourcePath, &createdAtMs); err != nil {
		return nil, err
	}
	t.TSUser = time.UnixMilli(tsUserMs).UTC()
	t.CreatedAt = time.UnixMilli(createdAtMs).UTC()
	if tsAI.Valid {
		ts := time.UnixMilli(tsAI.Int64).UTC()
		t.TSAI = &ts
	}
	t.AIText = aiText.String
	t.Source.URL = sourceURL.String
	t.Source.Path = sourcePath.String
	return &t, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraint(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}
