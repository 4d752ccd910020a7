package marketdata

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/quanport/internal/database"
	"github.com/aristath/quanport/internal/domain"
	"github.com/aristath/quanport/internal/utils"
)

// Repository handles securities and daily price persistence in history.db
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new market data repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "marketdata").Logger(),
	}
}

// UpsertSecurity inserts a security or refreshes its timestamp.
// An empty name never overwrites a stored one.
func (r *Repository) UpsertSecurity(ctx context.Context, symbol, name string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO securities (symbol, name, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE securities.name END,
			updated_at = excluded.updated_at
	`, symbol, name, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert security %s: %w", symbol, err)
	}
	return nil
}

const securityQuery = `
	SELECT s.symbol, s.name, s.updated_at,
	       COUNT(p.date), COALESCE(MIN(p.date), 0), COALESCE(MAX(p.date), 0)
	FROM securities s
	LEFT JOIN daily_prices p ON p.symbol = s.symbol
`

// GetSecurity returns a security by symbol, or nil if it is unknown
func (r *Repository) GetSecurity(ctx context.Context, symbol string) (*Security, error) {
	rows, err := r.db.QueryContext(ctx, securityQuery+" WHERE s.symbol = ? GROUP BY s.symbol", symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to query security %s: %w", symbol, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	sec, err := scanSecurity(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan security %s: %w", symbol, err)
	}
	return &sec, nil
}

// ListSecurities returns all securities ordered by symbol
func (r *Repository) ListSecurities(ctx context.Context) ([]Security, error) {
	rows, err := r.db.QueryContext(ctx, securityQuery+" GROUP BY s.symbol ORDER BY s.symbol")
	if err != nil {
		return nil, fmt.Errorf("failed to list securities: %w", err)
	}
	defer rows.Close()

	securities := make([]Security, 0)
	for rows.Next() {
		sec, err := scanSecurity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security: %w", err)
		}
		securities = append(securities, sec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating securities: %w", err)
	}
	return securities, nil
}

func scanSecurity(rows *sql.Rows) (Security, error) {
	var sec Security
	var updatedAt, first, last int64
	if err := rows.Scan(&sec.Symbol, &sec.Name, &updatedAt, &sec.Points, &first, &last); err != nil {
		return Security{}, err
	}
	sec.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if sec.Points > 0 {
		sec.FirstDate = time.Unix(first, 0).UTC()
		sec.LastDate = time.Unix(last, 0).UTC()
	}
	return sec, nil
}

// InsertPrices stores daily closes for symbol, replacing existing rows for the same date.
// Dates are truncated to midnight UTC.
func (r *Repository) InsertPrices(ctx context.Context, symbol string, prices []domain.PricePoint) (int, error) {
	if len(prices) == 0 {
		return 0, nil
	}

	done := utils.MeasureDBQuery("insert_prices", r.log)
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO daily_prices (symbol, date, close) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare price insert: %w", err)
		}
		defer stmt.Close()

		for _, p := range prices {
			if _, err := stmt.ExecContext(ctx, symbol, dayKey(p.Date), p.Close); err != nil {
				return fmt.Errorf("failed to insert price for %s on %s: %w", symbol, p.Date.Format("2006-01-02"), err)
			}
		}
		return nil
	})
	done(int64(len(prices)))
	if err != nil {
		return 0, err
	}
	return len(prices), nil
}

// GetDailyCloses returns the most recent limit closes for symbol in ascending date order.
// limit <= 0 returns the full history.
func (r *Repository) GetDailyCloses(ctx context.Context, symbol string, limit int) ([]domain.PricePoint, error) {
	query := `SELECT date, close FROM (
		SELECT date, close FROM daily_prices WHERE symbol = ? ORDER BY date DESC LIMIT ?
	) ORDER BY date ASC`
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := r.db.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices for %s: %w", symbol, err)
	}
	defer rows.Close()

	prices := make([]domain.PricePoint, 0)
	for rows.Next() {
		var (
			date  int64
			price float64
		)
		if err := rows.Scan(&date, &price); err != nil {
			return nil, fmt.Errorf("failed to scan price for %s: %w", symbol, err)
		}
		prices = append(prices, domain.PricePoint{Date: time.Unix(date, 0).UTC(), Close: price})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prices for %s: %w", symbol, err)
	}
	return prices, nil
}

// GetImport returns the last import of source, or nil if it was never imported
func (r *Repository) GetImport(ctx context.Context, source string) (*ImportRecord, error) {
	var (
		rec        ImportRecord
		importedAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT source, fingerprint, rows, imported_at FROM imports WHERE source = ?`, source,
	).Scan(&rec.Source, &rec.Fingerprint, &rec.Rows, &importedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query import %s: %w", source, err)
	}
	rec.ImportedAt = time.Unix(importedAt, 0).UTC()
	return &rec, nil
}

// RecordImport stores the fingerprint of an imported source file
func (r *Repository) RecordImport(ctx context.Context, rec ImportRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO imports (source, fingerprint, rows, imported_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			rows = excluded.rows,
			imported_at = excluded.imported_at
	`, rec.Source, rec.Fingerprint, rec.Rows, rec.ImportedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to record import %s: %w", rec.Source, err)
	}
	return nil
}

// dayKey normalizes a timestamp to the unix seconds of its UTC calendar day
func dayKey(t time.Time) int64 {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix()
}
