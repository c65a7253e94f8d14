package store

import (
	"database/sql"
	"fmt"
)

// Session binds a board to one live transport connection on the broker.
// At most one row per board has valid=true at any time; superseded rows are
// invalidated, never deleted.
type Session struct {
	ID        int64
	BoardID   int64
	BoardUUID string
	SessionID string
	Valid     bool
}

const sessionSelectCols = `id, board_id, board_uuid, session_id, valid`

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.BoardID, &s.BoardUUID, &s.SessionID, &s.Valid)
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (db *DB) CreateSession(s *Session) error {
	id, err := db.insertID(db.Q(`INSERT INTO sessions (board_id, board_uuid, session_id, valid) VALUES (?, ?, ?, ?)`),
		s.BoardID, s.BoardUUID, s.SessionID, s.Valid)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	s.ID = id
	return nil
}

func (db *DB) GetSessionByID(sessionID string) (*Session, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM sessions WHERE session_id=?`, sessionSelectCols)), sessionID)
	return scanSession(row)
}

// GetValidSessionByBoard returns the one valid session for a board, if any.
func (db *DB) GetValidSessionByBoard(boardUUID string) (*Session, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM sessions WHERE board_uuid=? AND valid=? ORDER BY id DESC LIMIT 1`, sessionSelectCols)),
		boardUUID, true)
	return scanSession(row)
}

// InvalidateSession marks a session row invalid. Idempotent.
func (db *DB) InvalidateSession(sessionID string) error {
	_, err := db.Exec(db.Q(`UPDATE sessions SET valid=?, updated_at=datetime('now','localtime') WHERE session_id=?`),
		false, sessionID)
	return err
}

// InvalidateBoardSessions marks every valid session of a board invalid.
func (db *DB) InvalidateBoardSessions(boardUUID string) error {
	_, err := db.Exec(db.Q(`UPDATE sessions SET valid=?, updated_at=datetime('now','localtime') WHERE board_uuid=? AND valid=?`),
		false, boardUUID, true)
	return err
}

func (db *DB) ListValidSessions() ([]*Session, error) {
	rows, err := db.Query(db.Q(fmt.Sprintf(`SELECT %s FROM sessions WHERE valid=? ORDER BY id`, sessionSelectCols)), true)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

func scanSessions(rows *sql.Rows) ([]*Session, error) {
	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
