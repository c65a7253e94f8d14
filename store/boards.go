package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// Board statuses as persisted. ONLINE must hold exactly when a valid session
// row exists for the board.
const (
	StatusRegistered   = "REGISTERED"
	StatusOffline      = "OFFLINE"
	StatusOnline       = "ONLINE"
	StatusDisconnected = "DISCONNECTED"
)

type Board struct {
	ID           int64
	UUID         string
	Code         string
	Status       string
	Name         string
	Type         string
	Agent        string
	Owner        string
	Project      string
	Mobile       bool
	Config       map[string]any
	Extra        map[string]any
	Reservation  string
	TargetStatus string
}

func (b *Board) IsOnline() bool { return b.Status == StatusOnline }

const boardSelectCols = `id, uuid, code, status, name, type, agent, owner, project, mobile, config, extra, reservation, target_status`

func scanBoard(row interface{ Scan(...any) error }) (*Board, error) {
	var b Board
	var configJSON, extraJSON string
	err := row.Scan(&b.ID, &b.UUID, &b.Code, &b.Status, &b.Name, &b.Type, &b.Agent,
		&b.Owner, &b.Project, &b.Mobile, &configJSON, &extraJSON, &b.Reservation, &b.TargetStatus)
	if err != nil {
		return nil, notFound(err)
	}
	json.Unmarshal([]byte(configJSON), &b.Config)
	json.Unmarshal([]byte(extraJSON), &b.Extra)
	return &b, nil
}

func scanBoards(rows *sql.Rows) ([]*Board, error) {
	var boards []*Board
	for rows.Next() {
		b, err := scanBoard(rows)
		if err != nil {
			return nil, err
		}
		boards = append(boards, b)
	}
	return boards, rows.Err()
}

func marshalMap(m map[string]any) string {
	if m == nil {
		return "{}"
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func (db *DB) CreateBoard(b *Board) error {
	if b.Status == "" {
		b.Status = StatusRegistered
	}
	id, err := db.insertID(db.Q(`INSERT INTO boards (uuid, code, status, name, type, agent, owner, project, mobile, config, extra) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		b.UUID, b.Code, b.Status, b.Name, b.Type, b.Agent, b.Owner, b.Project, b.Mobile,
		marshalMap(b.Config), marshalMap(b.Extra))
	if err != nil {
		return fmt.Errorf("create board: %w", err)
	}
	b.ID = id
	return nil
}

func (db *DB) UpdateBoard(b *Board) error {
	_, err := db.Exec(db.Q(`UPDATE boards SET code=?, status=?, name=?, type=?, agent=?, owner=?, project=?, mobile=?, config=?, extra=?, target_status=?, updated_at=datetime('now','localtime') WHERE uuid=?`),
		b.Code, b.Status, b.Name, b.Type, b.Agent, b.Owner, b.Project, b.Mobile,
		marshalMap(b.Config), marshalMap(b.Extra), b.TargetStatus, b.UUID)
	if err != nil {
		return fmt.Errorf("update board: %w", err)
	}
	return nil
}

// UpdateBoardStatus persists a state transition as one atomic unit.
func (db *DB) UpdateBoardStatus(uuid, status, targetStatus string) error {
	_, err := db.Exec(db.Q(`UPDATE boards SET status=?, target_status=?, updated_at=datetime('now','localtime') WHERE uuid=?`),
		status, targetStatus, uuid)
	if err != nil {
		return fmt.Errorf("update board status: %w", err)
	}
	return nil
}

// DeleteBoard removes a board and its sessions, injections, and locations.
// Child rows go first so a failure never leaves orphans behind a deleted board.
func (db *DB) DeleteBoard(uuid string) error {
	if _, err := db.Exec(db.Q(`DELETE FROM sessions WHERE board_uuid=?`), uuid); err != nil {
		return fmt.Errorf("delete board sessions: %w", err)
	}
	if _, err := db.Exec(db.Q(`DELETE FROM injection_plugins WHERE board_uuid=?`), uuid); err != nil {
		return fmt.Errorf("delete board injections: %w", err)
	}
	if _, err := db.Exec(db.Q(`DELETE FROM locations WHERE board_id IN (SELECT id FROM boards WHERE uuid=?)`), uuid); err != nil {
		return fmt.Errorf("delete board locations: %w", err)
	}
	if _, err := db.Exec(db.Q(`DELETE FROM boards WHERE uuid=?`), uuid); err != nil {
		return fmt.Errorf("delete board: %w", err)
	}
	return nil
}

func (db *DB) GetBoard(uuid string) (*Board, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM boards WHERE uuid=?`, boardSelectCols)), uuid)
	return scanBoard(row)
}

func (db *DB) GetBoardByCode(code string) (*Board, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM boards WHERE code=?`, boardSelectCols)), code)
	return scanBoard(row)
}

func (db *DB) ListBoards() ([]*Board, error) {
	rows, err := db.Query(fmt.Sprintf(`SELECT %s FROM boards ORDER BY name`, boardSelectCols))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBoards(rows)
}

func (db *DB) ListBoardsByStatus(status string) ([]*Board, error) {
	rows, err := db.Query(db.Q(fmt.Sprintf(`SELECT %s FROM boards WHERE status=? ORDER BY name`, boardSelectCols)), status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBoards(rows)
}

func (db *DB) ListBoardsByOwner(owner string) ([]*Board, error) {
	rows, err := db.Query(db.Q(fmt.Sprintf(`SELECT %s FROM boards WHERE owner=? ORDER BY name`, boardSelectCols)), owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBoards(rows)
}

// ReserveBoard atomically claims the board for host. A host may re-claim its
// own reservation. Returns *ReservedError with the current holder when the
// claim fails.
func (db *DB) ReserveBoard(uuid, host string) error {
	result, err := db.Exec(db.Q(`UPDATE boards SET reservation=? WHERE uuid=? AND (reservation='' OR reservation=?)`),
		host, uuid, host)
	if err != nil {
		return fmt.Errorf("reserve board: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserve board rows: %w", err)
	}
	if n == 1 {
		return nil
	}
	var holder string
	err = db.QueryRow(db.Q(`SELECT reservation FROM boards WHERE uuid=?`), uuid).Scan(&holder)
	if err != nil {
		return notFound(err)
	}
	return &ReservedError{BoardUUID: uuid, Holder: holder}
}

// ReleaseBoard clears the reservation held by host. Releasing a board that is
// not reserved, or reserved by someone else, is a no-op.
func (db *DB) ReleaseBoard(uuid, host string) error {
	_, err := db.Exec(db.Q(`UPDATE boards SET reservation='' WHERE uuid=? AND reservation=?`), uuid, host)
	return err
}
