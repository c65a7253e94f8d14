package store

import (
	"database/sql"
	"fmt"
	"time"
)

// WampAgent is a broker-facing agent process. Boards are routed through the
// agent named in Board.Agent; the registration agent (ragent) handles
// first-boot onboarding.
type WampAgent struct {
	ID        int64
	Hostname  string
	WSURL     string
	Online    bool
	RAgent    bool
	UpdatedAt time.Time
}

const agentSelectCols = `id, hostname, wsurl, online, ragent, updated_at`

func scanAgent(row interface{ Scan(...any) error }) (*WampAgent, error) {
	var a WampAgent
	var updatedAt any
	err := row.Scan(&a.ID, &a.Hostname, &a.WSURL, &a.Online, &a.RAgent, &updatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	a.UpdatedAt = parseTime(updatedAt)
	return &a, nil
}

func scanAgents(rows *sql.Rows) ([]*WampAgent, error) {
	var agents []*WampAgent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// RegisterAgent upserts a wamp agent row and marks it online.
func (db *DB) RegisterAgent(hostname, wsurl string, ragent bool) error {
	_, err := db.Exec(db.Q(`
		INSERT INTO wampagents (hostname, wsurl, online, ragent)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(hostname) DO UPDATE SET
			wsurl = excluded.wsurl,
			online = excluded.online,
			ragent = excluded.ragent,
			updated_at = datetime('now','localtime')
	`), hostname, wsurl, true, ragent)
	return err
}

// UnregisterAgent marks an agent offline on graceful stop.
func (db *DB) UnregisterAgent(hostname string) error {
	_, err := db.Exec(db.Q(`UPDATE wampagents SET online=?, updated_at=datetime('now','localtime') WHERE hostname=?`),
		false, hostname)
	return err
}

// TouchAgent refreshes the heartbeat timestamp.
func (db *DB) TouchAgent(hostname string) error {
	_, err := db.Exec(db.Q(`UPDATE wampagents SET updated_at=datetime('now','localtime'), online=? WHERE hostname=?`),
		true, hostname)
	return err
}

func (db *DB) GetAgent(hostname string) (*WampAgent, error) {
	row := db.QueryRow(db.Q(`SELECT `+agentSelectCols+` FROM wampagents WHERE hostname=?`), hostname)
	return scanAgent(row)
}

func (db *DB) ListOnlineAgents() ([]*WampAgent, error) {
	rows, err := db.Query(db.Q(`SELECT `+agentSelectCols+` FROM wampagents WHERE online=? ORDER BY hostname`), true)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAgents(rows)
}

// MarkStaleAgents sets online=false for agents whose heartbeat is older than
// the threshold. Returns the number of rows changed.
func (db *DB) MarkStaleAgents(threshold time.Duration) (int64, error) {
	cutoff := time.Now().Add(-threshold).Format("2006-01-02 15:04:05")
	result, err := db.Exec(db.Q(`UPDATE wampagents SET online=? WHERE online=? AND updated_at < ?`),
		false, true, cutoff)
	if err != nil {
		return 0, fmt.Errorf("mark stale agents: %w", err)
	}
	return result.RowsAffected()
}

// GetRegistrationAgent returns the online agent flagged as the registration
// agent.
func (db *DB) GetRegistrationAgent() (*WampAgent, error) {
	row := db.QueryRow(db.Q(`SELECT `+agentSelectCols+` FROM wampagents WHERE ragent=? AND online=? LIMIT 1`), true, true)
	return scanAgent(row)
}
