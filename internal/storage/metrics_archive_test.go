package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/token-analytics/internal/types"
)

func TestSplitSQLStatements(t *testing.T) {
	sql := `
-- header comment
CREATE TABLE a (x UInt8) ENGINE = Memory;

CREATE TABLE b (
    y String
) ENGINE = Memory;
SELECT 1`

	stmts := splitSQLStatements(sql)
	require.Len(t, stmts, 3)
	assert.Equal(t, "CREATE TABLE a (x UInt8) ENGINE = Memory", stmts[0])
	assert.Contains(t, stmts[1], "y String")
	assert.Equal(t, "SELECT 1", stmts[2])
}

func TestMetricsArchive(t *testing.T) {
	db := setupClickHouse(t)
	archive := NewMetricsArchive(db)
	ctx := testContext(t)

	require.NoError(t, archive.Archive(ctx, nil))

	var analyses []*types.Analysis
	for i, price := range []float64{1.0, 1.5, 1.25} {
		a := newAnalysis(tokenA, int64(1_700_000_000_000+i*15_000), types.RecommendationHold)
		a.Price = price
		analyses = append(analyses, a)
	}
	require.NoError(t, archive.Archive(ctx, analyses))

	prices, err := archive.PriceSeries(ctx, tokenA, 10)
	require.NoError(t, err)
	assert.Equal(t, []float64{1.0, 1.5, 1.25}, prices)

	prices, err = archive.PriceSeries(ctx, tokenA, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 1.25}, prices)
}
