package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/interviewer/internal/model"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a record does not exist in the given session.
var ErrNotFound = errors.New("record not found")

// Store keeps question sessions in an in-memory SQLite database. The pool is
// capped at one connection, so every statement is serialized and all
// statements see the same database. Nothing survives a process restart.
type Store struct {
	db *sql.DB
}

// New opens the store. An empty dsn selects a private in-memory database.
func New(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		last_seen DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS question_records (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		session_id TEXT NOT NULL,
		question TEXT NOT NULL,
		correct_answer TEXT NOT NULL,
		user_answer TEXT,
		feedback TEXT,
		created_at DATETIME NOT NULL,
		CHECK ((user_answer IS NULL) = (feedback IS NULL))
	);

	CREATE INDEX IF NOT EXISTS idx_question_records_session ON question_records(session_id, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// TouchSession registers the session if needed and refreshes its last-seen time.
func (s *Store) TouchSession(ctx context.Context, sessionID string) error {
	return touchSession(ctx, s.db, sessionID, time.Now().UTC())
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func touchSession(ctx context.Context, e execer, sessionID string, now time.Time) error {
	_, err := e.ExecContext(ctx,
		`INSERT INTO sessions (id, created_at, last_seen) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET last_seen = ?`,
		sessionID, now, now, now,
	)
	return err
}

// GetSession returns a session by id.
func (s *Store) GetSession(ctx context.Context, sessionID string) (model.Session, error) {
	var sess model.Session
	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, last_seen FROM sessions WHERE id = ?`, sessionID,
	).Scan(&sess.ID, &sess.CreatedAt, &sess.LastSeen)
	if err == sql.ErrNoRows {
		return sess, ErrNotFound
	}
	return sess, err
}

// AppendRecords appends records to the end of a session in a single
// transaction: either all of them are stored or none are.
func (s *Store) AppendRecords(ctx context.Context, sessionID string, records []model.QuestionRecord) error {
	return s.writeRecords(ctx, sessionID, records, false)
}

// ReplaceRecords drops the session's records and stores the given ones in
// their place, in a single transaction.
func (s *Store) ReplaceRecords(ctx context.Context, sessionID string, records []model.QuestionRecord) error {
	return s.writeRecords(ctx, sessionID, records, true)
}

func (s *Store) writeRecords(ctx context.Context, sessionID string, records []model.QuestionRecord, replace bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if err := touchSession(ctx, tx, sessionID, now); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if replace {
		if _, err := tx.ExecContext(ctx, `DELETE FROM question_records WHERE session_id = ?`, sessionID); err != nil {
			return fmt.Errorf("clear session: %w", err)
		}
	}

	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("record without id")
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO question_records (id, session_id, question, correct_answer, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			r.ID, sessionID, r.Question, r.CorrectAnswer, now,
		)
		if err != nil {
			return fmt.Errorf("insert record %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// ListRecords returns all records of a session in append order.
func (s *Store) ListRecords(ctx context.Context, sessionID string) ([]model.QuestionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, question, correct_answer, user_answer, feedback, created_at
		 FROM question_records WHERE session_id = ? ORDER BY seq`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []model.QuestionRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// FirstRecord returns the oldest record of a session.
func (s *Store) FirstRecord(ctx context.Context, sessionID string) (model.QuestionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, question, correct_answer, user_answer, feedback, created_at
		 FROM question_records WHERE session_id = ? ORDER BY seq LIMIT 1`, sessionID,
	)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return r, ErrNotFound
	}
	return r, err
}

// GetRecord returns a record of the session by id.
func (s *Store) GetRecord(ctx context.Context, sessionID, recordID string) (model.QuestionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, question, correct_answer, user_answer, feedback, created_at
		 FROM question_records WHERE session_id = ? AND id = ?`, sessionID, recordID,
	)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return r, ErrNotFound
	}
	return r, err
}

// SetAnswer stores the user's answer and its feedback on a record, replacing
// any previous pair.
func (s *Store) SetAnswer(ctx context.Context, sessionID, recordID, userAnswer string, fb model.Feedback) error {
	data, err := json.Marshal(fb)
	if err != nil {
		return fmt.Errorf("marshal feedback: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE question_records SET user_answer = ?, feedback = ? WHERE session_id = ? AND id = ?`,
		userAnswer, string(data), sessionID, recordID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteIdleSessions removes sessions not seen since cutoff together with
// their records. It returns the number of sessions removed.
func (s *Store) DeleteIdleSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	// Times are stored as UTC text, so the cutoff must be too.
	cutoff = cutoff.UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM question_records WHERE session_id IN (SELECT id FROM sessions WHERE last_seen < ?)`, cutoff,
	)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE last_seen < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// RecordCount returns the number of records in a session.
func (s *Store) RecordCount(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM question_records WHERE session_id = ?`, sessionID,
	).Scan(&count)
	return count, err
}

// SessionCount returns the number of live sessions.
func (s *Store) SessionCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&count)
	return count, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (model.QuestionRecord, error) {
	var (
		r          model.QuestionRecord
		userAnswer sql.NullString
		feedback   sql.NullString
	)
	if err := sc.Scan(&r.ID, &r.Question, &r.CorrectAnswer, &userAnswer, &feedback, &r.CreatedAt); err != nil {
		return r, err
	}
	if userAnswer.Valid {
		ua := userAnswer.String
		r.UserAnswer = &ua
	}
	if feedback.Valid {
		var fb model.Feedback
		if err := json.Unmarshal([]byte(feedback.String), &fb); err != nil {
			return r, fmt.Errorf("decode feedback of %s: %w", r.ID, err)
		}
		r.Feedback = &fb
	}
	return r, nil
}
