package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/token-analytics/internal/models"
)

// TokenRepository handles the tracked token registry in Postgres
type TokenRepository struct {
	db *PostgresDB
}

// NewTokenRepository creates a new token repository
func NewTokenRepository(db *PostgresDB) *TokenRepository {
	return &TokenRepository{db: db}
}

const trackedTokenColumns = `address, symbol, name, decimals, is_active, created_at, updated_at`

func scanTrackedToken(row pgx.Row) (*models.TrackedToken, error) {
	var t models.TrackedToken
	if err := row.Scan(&t.Address, &t.Symbol, &t.Name, &t.Decimals, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// Upsert inserts a token or updates its metadata and active flag
func (r *TokenRepository) Upsert(ctx context.Context, token *models.TrackedToken) error {
	query := `
		INSERT INTO tracked_tokens (address, symbol, name, decimals, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (address) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			name = EXCLUDED.name,
			decimals = EXCLUDED.decimals,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()
	`

	_, err := r.db.Pool().Exec(ctx, query,
		strings.ToLower(token.Address), token.Symbol, token.Name, token.Decimals, token.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert token %s: %w", token.Address, err)
	}
	return nil
}

// Get retrieves a token by address
func (r *TokenRepository) Get(ctx context.Context, address string) (*models.TrackedToken, error) {
	query := `SELECT ` + trackedTokenColumns + ` FROM tracked_tokens WHERE address = $1`

	t, err := scanTrackedToken(r.db.Pool().QueryRow(ctx, query, strings.ToLower(address)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("tracked token", address)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return t, nil
}

// ListActive returns all active tokens ordered by symbol
func (r *TokenRepository) ListActive(ctx context.Context) ([]models.TrackedToken, error) {
	query := `SELECT ` + trackedTokenColumns + ` FROM tracked_tokens WHERE is_active = TRUE ORDER BY symbol`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []models.TrackedToken
	for rows.Next() {
		t, err := scanTrackedToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		tokens = append(tokens, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tokens: %w", err)
	}

	return tokens, nil
}

// SetActive toggles whether a token is analyzed
func (r *TokenRepository) SetActive(ctx context.Context, address string, active bool) error {
	query := `UPDATE tracked_tokens SET is_active = $2, updated_at = NOW() WHERE address = $1`

	tag, err := r.db.Pool().Exec(ctx, query, strings.ToLower(address), active)
	if err != nil {
		return fmt.Errorf("failed to update token %s: %w", address, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("tracked token", address)
	}
	return nil
}

// Seed inserts tokens that are not yet registered, leaving existing rows untouched
func (r *TokenRepository) Seed(ctx context.Context, tokens []models.TrackedToken) error {
	batch := &pgx.Batch{}
	for _, t := range tokens {
		batch.Queue(`
			INSERT INTO tracked_tokens (address, symbol, name, decimals, is_active)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (address) DO NOTHING
		`, strings.ToLower(t.Address), t.Symbol, t.Name, t.Decimals, t.IsActive)
	}

	results := r.db.Pool().SendBatch(ctx, batch)
	defer results.Close()

	for range tokens {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to seed tokens: %w", err)
		}
	}
	return nil
}
