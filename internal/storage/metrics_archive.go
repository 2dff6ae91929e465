package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/token-analytics/internal/types"
)

// MetricsArchive appends analysis snapshots to ClickHouse for long-range queries
type MetricsArchive struct {
	db *ClickHouseDB
}

// NewMetricsArchive creates a new metrics archive
func NewMetricsArchive(db *ClickHouseDB) *MetricsArchive {
	return &MetricsArchive{db: db}
}

// Archive inserts one row per analysis in a single batch
func (a *MetricsArchive) Archive(ctx context.Context, analyses []*types.Analysis) error {
	if len(analyses) == 0 {
		return nil
	}

	batch, err := a.db.Conn().PrepareBatch(ctx, `
		INSERT INTO token_metrics (
			analysis_id, token_address, symbol, timestamp, price, market_cap, hourly_trades,
			concentration_ratio, paperhand_ratio, volatility, volume_24h, sma, rsi, macd,
			recommendation, confidence
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, an := range analyses {
		m := an.Metrics
		if err := batch.Append(
			an.AnalysisID,
			strings.ToLower(an.TokenAddress),
			an.Symbol,
			an.Time(),
			an.Price,
			m.MarketCap,
			uint32(m.HourlyTrades), // #nosec G115 - trade counts are non-negative
			m.ConcentrationRatio,
			m.PaperhandRatio,
			m.Volatility,
			m.Volume24h,
			m.TechnicalIndicators.SMA,
			m.TechnicalIndicators.RSI,
			m.TechnicalIndicators.MACD,
			string(an.Signals.Recommendation),
			an.Signals.Confidence,
		); err != nil {
			return fmt.Errorf("failed to append analysis %s: %w", an.AnalysisID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// PriceSeries returns up to limit archived prices for token, oldest first
func (a *MetricsArchive) PriceSeries(ctx context.Context, token string, limit int) ([]float64, error) {
	if limit <= 0 {
		limit = 500
	}

	rows, err := a.db.Conn().Query(ctx, `
		SELECT price FROM (
			SELECT price, timestamp
			FROM token_metrics
			WHERE token_address = ?
			ORDER BY timestamp DESC
			LIMIT ?
		)
		ORDER BY timestamp ASC
	`, strings.ToLower(token), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query price series: %w", err)
	}
	defer rows.Close()

	var prices []float64
	for rows.Next() {
		var p float64
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prices: %w", err)
	}

	return prices, nil
}
