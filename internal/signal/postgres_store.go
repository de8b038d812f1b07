package signal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/riskpulse/riskpulse/internal/pagination"
)

// PostgresStore implements Store with PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL-backed signal store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the signals table
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS signals (
			id              VARCHAR(64) PRIMARY KEY,
			source          VARCHAR(20) NOT NULL,
			source_id       VARCHAR(255),
			title           TEXT,
			content         TEXT NOT NULL,
			ts              TIMESTAMPTZ NOT NULL,
			sentiment_score DOUBLE PRECISION,
			sentiment_label VARCHAR(10),
			urgency         VARCHAR(10),
			entities        JSONB DEFAULT '[]',
			summary         TEXT,
			embedding       JSONB DEFAULT 'null',
			components      JSONB DEFAULT 'null',
			metric_name     VARCHAR(255),
			metric_value    DOUBLE PRECISION,
			risk_score      DOUBLE PRECISION,
			risk_tier       VARCHAR(10),
			created_at      TIMESTAMPTZ DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_signals_ts ON signals(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_signals_source ON signals(source);
		CREATE INDEX IF NOT EXISTS idx_signals_metric ON signals(metric_name) WHERE metric_name IS NOT NULL;
		CREATE INDEX IF NOT EXISTS idx_signals_unscored ON signals(ts) WHERE risk_score IS NULL;
	`)
	return err
}

const signalColumns = `id, source, source_id, title, content, ts,
	sentiment_score, sentiment_label, urgency, entities, summary, embedding,
	components, metric_name, metric_value, risk_score, risk_tier, created_at`

// Create inserts a signal
func (p *PostgresStore) Create(ctx context.Context, sig *Signal) error {
	entitiesJSON, err := json.Marshal(sig.Entities)
	if err != nil {
		return err
	}
	embeddingJSON, err := json.Marshal(sig.Embedding)
	if err != nil {
		return err
	}
	componentsJSON, err := json.Marshal(sig.Components)
	if err != nil {
		return err
	}

	var metricName sql.NullString
	var metricValue sql.NullFloat64
	if sig.Metric != nil {
		metricName = sql.NullString{String: sig.Metric.Name, Valid: true}
		metricValue = sql.NullFloat64{Float64: sig.Metric.Value, Valid: true}
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO signals (id, source, source_id, title, content, ts,
			sentiment_score, sentiment_label, urgency, entities, summary, embedding,
			components, metric_name, metric_value, risk_score, risk_tier, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, sig.ID, sig.Source, sig.SourceID, sig.Title, sig.Content, sig.Timestamp,
		sig.SentimentScore, nullString(string(sig.SentimentLabel)), nullString(sig.Urgency),
		entitiesJSON, sig.Summary, embeddingJSON, componentsJSON,
		metricName, metricValue, sig.RiskScore, nullString(sig.RiskTier), sig.CreatedAt)
	return err
}

// Get retrieves a signal by ID
func (p *PostgresStore) Get(ctx context.Context, id string) (*Signal, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+signalColumns+` FROM signals WHERE id = $1
	`, id)
	sig, err := scanSignal(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return sig, err
}

// List returns signals ordered by timestamp descending
func (p *PostgresStore) List(ctx context.Context, q ListQuery) ([]*Signal, error) {
	query := `SELECT ` + signalColumns + ` FROM signals WHERE 1=1`
	args := []interface{}{}
	argN := 1

	if q.Source != "" {
		query += fmt.Sprintf(` AND source = $%d`, argN)
		args = append(args, q.Source)
		argN++
	}
	if q.Cursor != "" {
		cur, err := pagination.Decode(q.Cursor)
		if err != nil {
			return nil, err
		}
		query += fmt.Sprintf(` AND (ts, id) < ($%d, $%d)`, argN, argN+1)
		args = append(args, cur.Timestamp, cur.ID)
		argN += 2
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(` ORDER BY ts DESC, id DESC LIMIT $%d`, argN)
	args = append(args, limit+1)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSignals(rows)
}

// ListWindow returns signals with from <= ts < to, ascending, capped at the
// most recent limit entries.
func (p *PostgresStore) ListWindow(ctx context.Context, from, to time.Time, limit int) ([]*Signal, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+signalColumns+` FROM (
			SELECT `+signalColumns+` FROM signals
			WHERE ts >= $1 AND ts < $2
			ORDER BY ts DESC, id DESC
			LIMIT $3
		) latest
		ORDER BY ts ASC, id ASC
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSignals(rows)
}

// ListUnscored returns signals without a risk score, oldest first
func (p *PostgresStore) ListUnscored(ctx context.Context, limit int) ([]*Signal, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+signalColumns+` FROM signals
		WHERE risk_score IS NULL
		ORDER BY ts ASC, id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSignals(rows)
}

// CountBySource counts signals per source in [from, to)
func (p *PostgresStore) CountBySource(ctx context.Context, from, to time.Time) (map[Source]int, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT source, COUNT(*) FROM signals
		WHERE ts >= $1 AND ts < $2
		GROUP BY source
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[Source]int)
	for rows.Next() {
		var src string
		var n int
		if err := rows.Scan(&src, &n); err != nil {
			return nil, err
		}
		counts[Source(src)] = n
	}
	return counts, rows.Err()
}

// UpdateRisk writes the score and tier in a single statement
func (p *PostgresStore) UpdateRisk(ctx context.Context, id string, score float64, tier string) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE signals SET risk_score = $2, risk_tier = $3 WHERE id = $1
	`, id, score, tier)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMetricSamples returns the time-ordered series for a named metric
func (p *PostgresStore) ListMetricSamples(ctx context.Context, name string, since time.Time, limit int) ([]TimedSample, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT ts, metric_value FROM (
			SELECT ts, metric_value FROM signals
			WHERE metric_name = $1 AND ts >= $2
			ORDER BY ts DESC
			LIMIT $3
		) latest
		ORDER BY ts ASC
	`, name, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []TimedSample
	for rows.Next() {
		var s TimedSample
		if err := rows.Scan(&s.Timestamp, &s.Value); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// ListMetricNames returns distinct metric names observed since the given time
func (p *PostgresStore) ListMetricNames(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT DISTINCT metric_name FROM signals
		WHERE metric_name IS NOT NULL AND ts >= $1
		ORDER BY metric_name ASC
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSignal(row rowScanner) (*Signal, error) {
	sig := &Signal{}
	var sourceID, title, sentimentLabel, urgency, summary, riskTier sql.NullString
	var metricName sql.NullString
	var metricValue sql.NullFloat64
	var entitiesJSON, embeddingJSON, componentsJSON []byte

	err := row.Scan(
		&sig.ID, &sig.Source, &sourceID, &title, &sig.Content, &sig.Timestamp,
		&sig.SentimentScore, &sentimentLabel, &urgency, &entitiesJSON, &summary,
		&embeddingJSON, &componentsJSON, &metricName, &metricValue,
		&sig.RiskScore, &riskTier, &sig.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	sig.SourceID = sourceID.String
	sig.Title = title.String
	sig.SentimentLabel = SentimentLabel(sentimentLabel.String)
	sig.Urgency = urgency.String
	sig.Summary = summary.String
	sig.RiskTier = riskTier.String
	_ = json.Unmarshal(entitiesJSON, &sig.Entities)
	_ = json.Unmarshal(embeddingJSON, &sig.Embedding)
	_ = json.Unmarshal(componentsJSON, &sig.Components)
	if metricName.Valid {
		sig.Metric = &MetricSample{Name: metricName.String, Value: metricValue.Float64}
	}
	return sig, nil
}

func scanSignals(rows *sql.Rows) ([]*Signal, error) {
	var signals []*Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
