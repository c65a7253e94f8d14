package store

// OutboxMessage is a one-way publish queued while the broker is unreachable.
type OutboxMessage struct {
	ID      int64
	Topic   string
	Payload []byte
	Retries int
}

func (db *DB) EnqueueOutbox(topic string, payload []byte) error {
	_, err := db.Exec(db.Q(`INSERT INTO outbox (topic, payload) VALUES (?, ?)`), topic, payload)
	return err
}

func (db *DB) ListPendingOutbox(limit int) ([]*OutboxMessage, error) {
	rows, err := db.Query(db.Q(`SELECT id, topic, payload, retries FROM outbox WHERE sent=? ORDER BY id LIMIT ?`), false, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var msgs []*OutboxMessage
	for rows.Next() {
		var m OutboxMessage
		if err := rows.Scan(&m.ID, &m.Topic, &m.Payload, &m.Retries); err != nil {
			return nil, err
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

func (db *DB) AckOutbox(id int64) error {
	_, err := db.Exec(db.Q(`UPDATE outbox SET sent=? WHERE id=?`), true, id)
	return err
}

func (db *DB) IncrementOutboxRetries(id int64) error {
	_, err := db.Exec(db.Q(`UPDATE outbox SET retries=retries+1 WHERE id=?`), id)
	return err
}
