package store

import (
	"fmt"
)

// Injection statuses.
const (
	InjectionInjected = "injected"
	InjectionUpdated  = "updated"
)

// InjectionPlugin records a plugin deployed onto a board. One row per
// (board, plugin) pair; re-injection updates it in place.
type InjectionPlugin struct {
	ID         int64
	BoardUUID  string
	PluginUUID string
	OnBoot     bool
	Status     string
}

const injectionSelectCols = `id, board_uuid, plugin_uuid, onboot, status`

func scanInjection(row interface{ Scan(...any) error }) (*InjectionPlugin, error) {
	var inj InjectionPlugin
	err := row.Scan(&inj.ID, &inj.BoardUUID, &inj.PluginUUID, &inj.OnBoot, &inj.Status)
	if err != nil {
		return nil, notFound(err)
	}
	return &inj, nil
}

func (db *DB) CreateInjection(inj *InjectionPlugin) error {
	if inj.Status == "" {
		inj.Status = InjectionInjected
	}
	id, err := db.insertID(db.Q(`INSERT INTO injection_plugins (board_uuid, plugin_uuid, onboot, status) VALUES (?, ?, ?, ?)`),
		inj.BoardUUID, inj.PluginUUID, inj.OnBoot, inj.Status)
	if err != nil {
		return fmt.Errorf("create injection: %w", err)
	}
	inj.ID = id
	return nil
}

func (db *DB) UpdateInjection(inj *InjectionPlugin) error {
	_, err := db.Exec(db.Q(`UPDATE injection_plugins SET onboot=?, status=?, updated_at=datetime('now','localtime') WHERE board_uuid=? AND plugin_uuid=?`),
		inj.OnBoot, inj.Status, inj.BoardUUID, inj.PluginUUID)
	if err != nil {
		return fmt.Errorf("update injection: %w", err)
	}
	return nil
}

func (db *DB) DeleteInjection(boardUUID, pluginUUID string) error {
	_, err := db.Exec(db.Q(`DELETE FROM injection_plugins WHERE board_uuid=? AND plugin_uuid=?`), boardUUID, pluginUUID)
	return err
}

func (db *DB) GetInjection(boardUUID, pluginUUID string) (*InjectionPlugin, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM injection_plugins WHERE board_uuid=? AND plugin_uuid=?`, injectionSelectCols)),
		boardUUID, pluginUUID)
	return scanInjection(row)
}

func (db *DB) ListInjectionsByBoard(boardUUID string) ([]*InjectionPlugin, error) {
	rows, err := db.Query(db.Q(fmt.Sprintf(`SELECT %s FROM injection_plugins WHERE board_uuid=? ORDER BY id`, injectionSelectCols)), boardUUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var injections []*InjectionPlugin
	for rows.Next() {
		inj, err := scanInjection(rows)
		if err != nil {
			return nil, err
		}
		injections = append(injections, inj)
	}
	return injections, rows.Err()
}
