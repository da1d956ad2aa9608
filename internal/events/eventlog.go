package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// LogEntry is one row of the append-only event_log table.
type LogEntry struct {
	Seq       int64
	Type      string
	Key       string
	DataJSON  string
	CreatedAt int64
}

// EventLog appends events to the event_log table so consumers can replay them by sequence.
type EventLog struct{ db *sql.DB }

func NewEventLog(db *sql.DB) *EventLog { return &EventLog{db: db} }

func (l *EventLog) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	at := e.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO event_log (event_type, event_key, data, created_at)
		 VALUES ($1,$2,$3,$4)`,
		e.Type, e.Key, string(data), at.Unix())
	return err
}

// Since returns up to limit entries with a sequence greater than after.
func (l *EventLog) Since(ctx context.Context, after int64, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT seq, event_type, event_key, data, created_at
		   FROM event_log WHERE seq > $1 ORDER BY seq LIMIT $2`, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.Seq, &e.Type, &e.Key, &e.DataJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
