package store

import (
	"fmt"
)

type Location struct {
	ID        int64
	BoardID   int64
	Longitude string
	Latitude  string
	Altitude  string
}

// Geo returns the coordinates in the shape boards expect in their
// provisioning configuration.
func (l *Location) Geo() map[string]string {
	return map[string]string{
		"longitude": l.Longitude,
		"latitude":  l.Latitude,
		"altitude":  l.Altitude,
	}
}

const locationSelectCols = `id, board_id, longitude, latitude, altitude`

func scanLocation(row interface{ Scan(...any) error }) (*Location, error) {
	var l Location
	err := row.Scan(&l.ID, &l.BoardID, &l.Longitude, &l.Latitude, &l.Altitude)
	if err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

func (db *DB) CreateLocation(l *Location) error {
	id, err := db.insertID(db.Q(`INSERT INTO locations (board_id, longitude, latitude, altitude) VALUES (?, ?, ?, ?)`),
		l.BoardID, l.Longitude, l.Latitude, l.Altitude)
	if err != nil {
		return fmt.Errorf("create location: %w", err)
	}
	l.ID = id
	return nil
}

func (db *DB) UpdateLocation(l *Location) error {
	_, err := db.Exec(db.Q(`UPDATE locations SET longitude=?, latitude=?, altitude=?, updated_at=datetime('now','localtime') WHERE id=?`),
		l.Longitude, l.Latitude, l.Altitude, l.ID)
	if err != nil {
		return fmt.Errorf("update location: %w", err)
	}
	return nil
}

// ListLocationsByBoard returns the board's locations, oldest first. Boards
// normally carry exactly one; mobile boards may accumulate more.
func (db *DB) ListLocationsByBoard(boardID int64) ([]*Location, error) {
	rows, err := db.Query(db.Q(fmt.Sprintf(`SELECT %s FROM locations WHERE board_id=? ORDER BY id`, locationSelectCols)), boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var locations []*Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		locations = append(locations, l)
	}
	return locations, rows.Err()
}

func (db *DB) GetBoardLocation(boardID int64) (*Location, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM locations WHERE board_id=? ORDER BY id LIMIT 1`, locationSelectCols)), boardID)
	return scanLocation(row)
}
