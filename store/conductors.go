package store

import (
	"fmt"
	"time"
)

// Conductor is an orchestrator process registered in the shared store.
type Conductor struct {
	ID        int64
	Hostname  string
	Online    bool
	UpdatedAt time.Time
}

// RegisterConductor upserts a conductor row and marks it online.
func (db *DB) RegisterConductor(hostname string) error {
	_, err := db.Exec(db.Q(`
		INSERT INTO conductors (hostname, online)
		VALUES (?, ?)
		ON CONFLICT(hostname) DO UPDATE SET
			online = excluded.online,
			updated_at = datetime('now','localtime')
	`), hostname, true)
	return err
}

// UnregisterConductor marks a conductor offline on graceful stop.
func (db *DB) UnregisterConductor(hostname string) error {
	_, err := db.Exec(db.Q(`UPDATE conductors SET online=?, updated_at=datetime('now','localtime') WHERE hostname=?`),
		false, hostname)
	return err
}

// TouchConductor refreshes the heartbeat timestamp.
func (db *DB) TouchConductor(hostname string) error {
	_, err := db.Exec(db.Q(`UPDATE conductors SET updated_at=datetime('now','localtime'), online=? WHERE hostname=?`),
		true, hostname)
	return err
}

func (db *DB) GetConductor(hostname string) (*Conductor, error) {
	row := db.QueryRow(db.Q(`SELECT id, hostname, online, updated_at FROM conductors WHERE hostname=?`), hostname)
	return scanConductor(row)
}

func (db *DB) ListOnlineConductors() ([]*Conductor, error) {
	rows, err := db.Query(db.Q(`SELECT id, hostname, online, updated_at FROM conductors WHERE online=? ORDER BY hostname`), true)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var conductors []*Conductor
	for rows.Next() {
		c, err := scanConductor(rows)
		if err != nil {
			return nil, err
		}
		conductors = append(conductors, c)
	}
	return conductors, rows.Err()
}

func scanConductor(row interface{ Scan(...any) error }) (*Conductor, error) {
	var c Conductor
	var updatedAt any
	err := row.Scan(&c.ID, &c.Hostname, &c.Online, &updatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// MarkStaleConductors sets online=false for conductors whose heartbeat is
// older than the threshold. Returns the number of rows changed.
func (db *DB) MarkStaleConductors(threshold time.Duration) (int64, error) {
	cutoff := time.Now().Add(-threshold).Format("2006-01-02 15:04:05")
	result, err := db.Exec(db.Q(`UPDATE conductors SET online=? WHERE online=? AND updated_at < ?`),
		false, true, cutoff)
	if err != nil {
		return 0, fmt.Errorf("mark stale conductors: %w", err)
	}
	return result.RowsAffected()
}
