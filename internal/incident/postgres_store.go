package incident

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresStore implements Store and NoteStore with PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

var (
	_ Store     = (*PostgresStore)(nil)
	_ NoteStore = (*PostgresStore)(nil)
)

// NewPostgresStore creates a new PostgreSQL-backed incident store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the incident tables
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS incidents (
			id              VARCHAR(64) PRIMARY KEY,
			title           TEXT NOT NULL,
			description     TEXT,
			severity        VARCHAR(10) NOT NULL,
			status          VARCHAR(15) NOT NULL,
			start_time      TIMESTAMPTZ NOT NULL,
			end_time        TIMESTAMPTZ,
			signal_ids      JSONB DEFAULT '[]',
			root_cause      TEXT,
			actions         TEXT,
			history         JSONB DEFAULT '[]',
			created_at      TIMESTAMPTZ DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_incidents_status ON incidents(status);
		CREATE INDEX IF NOT EXISTS idx_incidents_start ON incidents(start_time DESC);

		-- Append-only incident notes
		CREATE TABLE IF NOT EXISTS incident_notes (
			id              VARCHAR(64) PRIMARY KEY,
			incident_id     VARCHAR(64) NOT NULL REFERENCES incidents(id) ON DELETE CASCADE,
			content         TEXT NOT NULL,
			author          VARCHAR(255),
			created_at      TIMESTAMPTZ DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_notes_incident ON incident_notes(incident_id);
	`)
	return err
}

const incidentColumns = `id, title, description, severity, status, start_time,
	end_time, signal_ids, root_cause, actions, history, created_at`

// Create inserts an incident
func (p *PostgresStore) Create(ctx context.Context, inc *Incident) error {
	idsJSON, historyJSON, err := marshalIncident(inc)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO incidents (id, title, description, severity, status, start_time,
			end_time, signal_ids, root_cause, actions, history, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, inc.ID, inc.Title, inc.Description, inc.Severity, inc.Status, inc.StartTime,
		inc.EndTime, idsJSON, inc.RootCauseHypothesis, inc.RecommendedActions,
		historyJSON, inc.CreatedAt)
	return err
}

// Get retrieves an incident by ID
func (p *PostgresStore) Get(ctx context.Context, id string) (*Incident, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+incidentColumns+` FROM incidents WHERE id = $1
	`, id)
	inc, err := scanIncident(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return inc, err
}

// Update overwrites an incident
func (p *PostgresStore) Update(ctx context.Context, inc *Incident) error {
	idsJSON, historyJSON, err := marshalIncident(inc)
	if err != nil {
		return err
	}
	result, err := p.db.ExecContext(ctx, `
		UPDATE incidents SET
			title = $2, description = $3, severity = $4, status = $5,
			start_time = $6, end_time = $7, signal_ids = $8,
			root_cause = $9, actions = $10, history = $11
		WHERE id = $1
	`, inc.ID, inc.Title, inc.Description, inc.Severity, inc.Status,
		inc.StartTime, inc.EndTime, idsJSON, inc.RootCauseHypothesis,
		inc.RecommendedActions, historyJSON)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns incidents with optional filters, newest first
func (p *PostgresStore) List(ctx context.Context, q ListQuery) ([]*Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE 1=1`
	args := []interface{}{}
	argN := 1

	if q.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argN)
		args = append(args, q.Status)
		argN++
	}
	if q.Severity != "" {
		query += fmt.Sprintf(` AND severity = $%d`, argN)
		args = append(args, q.Severity)
		argN++
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(` ORDER BY start_time DESC, id DESC LIMIT $%d`, argN)
	args = append(args, limit)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanIncidents(rows)
}

// ListOpen returns active and investigating incidents, newest first
func (p *PostgresStore) ListOpen(ctx context.Context) ([]*Incident, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+incidentColumns+` FROM incidents
		WHERE status IN ('active', 'investigating')
		ORDER BY start_time DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanIncidents(rows)
}

// CreateNote inserts a note
func (p *PostgresStore) CreateNote(ctx context.Context, note *Note) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO incident_notes (id, incident_id, content, author, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, note.ID, note.IncidentID, note.Content, note.Author, note.CreatedAt)
	return err
}

// ListNotes returns an incident's notes oldest first
func (p *PostgresStore) ListNotes(ctx context.Context, incidentID string) ([]*Note, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, incident_id, content, author, created_at
		FROM incident_notes
		WHERE incident_id = $1
		ORDER BY created_at ASC, id ASC
	`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []*Note
	for rows.Next() {
		note := &Note{}
		var author sql.NullString
		if err := rows.Scan(&note.ID, &note.IncidentID, &note.Content, &author, &note.CreatedAt); err != nil {
			return nil, err
		}
		note.Author = author.String
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

func marshalIncident(inc *Incident) (idsJSON, historyJSON []byte, err error) {
	idsJSON, err = json.Marshal(inc.RelatedSignalIDs)
	if err != nil {
		return nil, nil, err
	}
	historyJSON, err = json.Marshal(inc.History)
	if err != nil {
		return nil, nil, err
	}
	return idsJSON, historyJSON, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIncident(row rowScanner) (*Incident, error) {
	inc := &Incident{}
	var description, rootCause, actions sql.NullString
	var idsJSON, historyJSON []byte

	err := row.Scan(
		&inc.ID, &inc.Title, &description, &inc.Severity, &inc.Status,
		&inc.StartTime, &inc.EndTime, &idsJSON, &rootCause, &actions,
		&historyJSON, &inc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	inc.Description = description.String
	inc.RootCauseHypothesis = rootCause.String
	inc.RecommendedActions = actions.String
	_ = json.Unmarshal(idsJSON, &inc.RelatedSignalIDs)
	_ = json.Unmarshal(historyJSON, &inc.History)
	return inc, nil
}

func scanIncidents(rows *sql.Rows) ([]*Incident, error) {
	var incidents []*Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, inc)
	}
	return incidents, rows.Err()
}
