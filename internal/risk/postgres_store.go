package risk

import (
	"context"
	"database/sql"
)

// PostgresWeightsStore implements WeightsStore with PostgreSQL.
// A single row keyed by id=1 holds the active configuration.
type PostgresWeightsStore struct {
	db *sql.DB
}

var _ WeightsStore = (*PostgresWeightsStore)(nil)

// NewPostgresWeightsStore creates a new PostgreSQL-backed weights store
func NewPostgresWeightsStore(db *sql.DB) *PostgresWeightsStore {
	return &PostgresWeightsStore{db: db}
}

// Migrate creates the risk_weights table
func (p *PostgresWeightsStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS risk_weights (
			id              SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
			sentiment       DOUBLE PRECISION NOT NULL,
			anomaly         DOUBLE PRECISION NOT NULL,
			ticket_volume   DOUBLE PRECISION NOT NULL,
			revenue         DOUBLE PRECISION NOT NULL,
			engagement      DOUBLE PRECISION NOT NULL,
			updated_at      TIMESTAMPTZ DEFAULT NOW()
		);
	`)
	return err
}

// GetWeights returns the stored configuration, or the defaults when no row
// has been written yet.
func (p *PostgresWeightsStore) GetWeights(ctx context.Context) (Weights, error) {
	var w Weights
	err := p.db.QueryRowContext(ctx, `
		SELECT sentiment, anomaly, ticket_volume, revenue, engagement
		FROM risk_weights WHERE id = 1
	`).Scan(&w.Sentiment, &w.Anomaly, &w.TicketVolume, &w.Revenue, &w.Engagement)
	if err == sql.ErrNoRows {
		return DefaultWeights(), nil
	}
	return w, err
}

// SetWeights upserts the configuration row
func (p *PostgresWeightsStore) SetWeights(ctx context.Context, w Weights) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO risk_weights (id, sentiment, anomaly, ticket_volume, revenue, engagement, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET
			sentiment = EXCLUDED.sentiment,
			anomaly = EXCLUDED.anomaly,
			ticket_volume = EXCLUDED.ticket_volume,
			revenue = EXCLUDED.revenue,
			engagement = EXCLUDED.engagement,
			updated_at = NOW()
	`, w.Sentiment, w.Anomaly, w.TicketVolume, w.Revenue, w.Engagement)
	return err
}
