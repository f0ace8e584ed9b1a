package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/adbridge-lab/adbridge/internal/storage"
	"github.com/shopspring/decimal"
)

// AggregateAdapter implements storage.AggregateStore for PostgreSQL.
// It shares the connection pool owned by Adapter.
type AggregateAdapter struct {
	db *sql.DB
}

// NewAggregateAdapter creates the daily-aggregate store over an existing pool.
func NewAggregateAdapter(db *sql.DB) *AggregateAdapter {
	return &AggregateAdapter{db: db}
}

// Upsert writes one per-(appKey, date) aggregate with overwrite semantics.
// NUMERIC columns take the decimal's exact string form, so no float rounding
// happens on the way in.
func (a *AggregateAdapter) Upsert(ctx context.Context, agg storage.DailyAggregate) error {
	_, err := a.db.ExecContext(ctx, queryUpsertAggregate,
		agg.AppKey,
		agg.Date,
		agg.ECPM.String(),
		agg.Revenue.String(),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert aggregate for %s/%s: %w", agg.AppKey, agg.Date, err)
	}

	slog.Debug("[Postgres] Upserted daily aggregate",
		"app_key", agg.AppKey,
		"date", agg.Date,
		"ecpm", agg.ECPM.String(),
		"revenue", agg.Revenue.String())
	return nil
}

// Get returns the aggregate for (appKey, date), or storage.ErrAggregateNotFound.
func (a *AggregateAdapter) Get(ctx context.Context, appKey, date string) (*storage.DailyAggregate, error) {
	var agg storage.DailyAggregate
	var ecpmRaw, revenueRaw string

	err := a.db.QueryRowContext(ctx, queryGetAggregate, appKey, date).Scan(
		&agg.AppKey,
		&agg.Date,
		&ecpmRaw,
		&revenueRaw,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrAggregateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get aggregate for %s/%s: %w", appKey, date, err)
	}

	if agg.ECPM, err = decimal.NewFromString(ecpmRaw); err != nil {
		return nil, fmt.Errorf("invalid ecpm value %q for %s/%s: %w", ecpmRaw, appKey, date, err)
	}
	if agg.Revenue, err = decimal.NewFromString(revenueRaw); err != nil {
		return nil, fmt.Errorf("invalid revenue value %q for %s/%s: %w", revenueRaw, appKey, date, err)
	}
	return &agg, nil
}
