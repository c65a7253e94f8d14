package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// Plugin is a reusable remote-executable unit owned by a user. Non-owners
// see it only when public.
type Plugin struct {
	ID         int64
	UUID       string
	Name       string
	Owner      string
	Public     bool
	Code       string
	Callable   bool
	Parameters map[string]any
	Extra      map[string]any
}

const pluginSelectCols = `id, uuid, name, owner, public, code, callable, parameters, extra`

func scanPlugin(row interface{ Scan(...any) error }) (*Plugin, error) {
	var p Plugin
	var paramsJSON, extraJSON string
	err := row.Scan(&p.ID, &p.UUID, &p.Name, &p.Owner, &p.Public, &p.Code, &p.Callable, &paramsJSON, &extraJSON)
	if err != nil {
		return nil, notFound(err)
	}
	json.Unmarshal([]byte(paramsJSON), &p.Parameters)
	json.Unmarshal([]byte(extraJSON), &p.Extra)
	return &p, nil
}

func scanPlugins(rows *sql.Rows) ([]*Plugin, error) {
	var plugins []*Plugin
	for rows.Next() {
		p, err := scanPlugin(rows)
		if err != nil {
			return nil, err
		}
		plugins = append(plugins, p)
	}
	return plugins, rows.Err()
}

func (db *DB) CreatePlugin(p *Plugin) error {
	id, err := db.insertID(db.Q(`INSERT INTO plugins (uuid, name, owner, public, code, callable, parameters, extra) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		p.UUID, p.Name, p.Owner, p.Public, p.Code, p.Callable, marshalMap(p.Parameters), marshalMap(p.Extra))
	if err != nil {
		return fmt.Errorf("create plugin: %w", err)
	}
	p.ID = id
	return nil
}

func (db *DB) UpdatePlugin(p *Plugin) error {
	_, err := db.Exec(db.Q(`UPDATE plugins SET name=?, owner=?, public=?, code=?, callable=?, parameters=?, extra=?, updated_at=datetime('now','localtime') WHERE uuid=?`),
		p.Name, p.Owner, p.Public, p.Code, p.Callable, marshalMap(p.Parameters), marshalMap(p.Extra), p.UUID)
	if err != nil {
		return fmt.Errorf("update plugin: %w", err)
	}
	return nil
}

func (db *DB) DeletePlugin(uuid string) error {
	db.Exec(db.Q(`DELETE FROM injection_plugins WHERE plugin_uuid=?`), uuid)
	_, err := db.Exec(db.Q(`DELETE FROM plugins WHERE uuid=?`), uuid)
	return err
}

func (db *DB) GetPlugin(uuid string) (*Plugin, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM plugins WHERE uuid=?`, pluginSelectCols)), uuid)
	return scanPlugin(row)
}

func (db *DB) GetPluginByName(name string) (*Plugin, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM plugins WHERE name=?`, pluginSelectCols)), name)
	return scanPlugin(row)
}

// ListPluginsVisibleTo returns the plugins owned by owner plus all public ones.
func (db *DB) ListPluginsVisibleTo(owner string) ([]*Plugin, error) {
	rows, err := db.Query(db.Q(fmt.Sprintf(`SELECT %s FROM plugins WHERE owner=? OR public=? ORDER BY name`, pluginSelectCols)),
		owner, true)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPlugins(rows)
}

func (db *DB) ListPlugins() ([]*Plugin, error) {
	rows, err := db.Query(fmt.Sprintf(`SELECT %s FROM plugins ORDER BY name`, pluginSelectCols))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPlugins(rows)
}
