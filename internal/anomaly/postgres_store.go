package anomaly

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// PostgresStore implements Store with PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL-backed anomaly store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the anomaly_events table
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS anomaly_events (
			id              VARCHAR(64) PRIMARY KEY,
			type            VARCHAR(20) NOT NULL,
			severity        VARCHAR(10) NOT NULL,
			title           TEXT NOT NULL,
			description     TEXT,
			affected_source VARCHAR(20),
			metric_value    DOUBLE PRECISION NOT NULL,
			threshold       DOUBLE PRECISION NOT NULL,
			signal_ids      JSONB DEFAULT '[]',
			detected_at     TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_anomaly_detected ON anomaly_events(detected_at DESC);
	`)
	return err
}

// Create inserts an event
func (p *PostgresStore) Create(ctx context.Context, event *Event) error {
	idsJSON, err := json.Marshal(event.AffectedSignalIDs)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO anomaly_events (id, type, severity, title, description,
			affected_source, metric_value, threshold, signal_ids, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, event.ID, event.Type, event.Severity, event.Title, event.Description,
		nullString(event.AffectedSource), event.MetricValue, event.Threshold,
		idsJSON, event.DetectedAt)
	return err
}

// ListRecent returns events newest first
func (p *PostgresStore) ListRecent(ctx context.Context, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, type, severity, title, description, affected_source,
			metric_value, threshold, signal_ids, detected_at
		FROM anomaly_events
		ORDER BY detected_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListSince returns events detected at or after since, newest first
func (p *PostgresStore) ListSince(ctx context.Context, since time.Time) ([]*Event, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, type, severity, title, description, affected_source,
			metric_value, threshold, signal_ids, detected_at
		FROM anomaly_events
		WHERE detected_at >= $1
		ORDER BY detected_at DESC, id DESC
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		event := &Event{}
		var affectedSource sql.NullString
		var idsJSON []byte
		if err := rows.Scan(
			&event.ID, &event.Type, &event.Severity, &event.Title, &event.Description,
			&affectedSource, &event.MetricValue, &event.Threshold, &idsJSON, &event.DetectedAt,
		); err != nil {
			return nil, err
		}
		event.AffectedSource = affectedSource.String
		_ = json.Unmarshal(idsJSON, &event.AffectedSignalIDs)
		events = append(events, event)
	}
	return events, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
