package adapter

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/token-analytics/internal/types"
)

// MarketDataSource supplies the raw inputs of a token analysis.
// Implementations may fail; GuardedSource turns failures into defaults.
type MarketDataSource interface {
	// GetPrice returns the token price in WETH
	GetPrice(ctx context.Context, token string) (float64, error)

	// GetSupply returns the total supply scaled by decimals
	GetSupply(ctx context.Context, token string, decimals int) (float64, error)

	// GetRecentTrades returns token movements observed within window, oldest first
	GetRecentTrades(ctx context.Context, token string, window time.Duration) ([]types.Trade, error)

	// GetHolders returns holders ranked by descending balance
	GetHolders(ctx context.Context, token string) ([]types.Holder, error)
}

const (
	// DefaultPrice is used when no pool price can be read
	DefaultPrice = 0.00000123
	// DefaultSupply is used when totalSupply cannot be read
	DefaultSupply = 1_000_000_000_000.0
	// DefaultTradeWindow is the trade lookback used by the recompute pass
	DefaultTradeWindow = 24 * time.Hour
	// MaxTrades bounds the number of transfers turned into trades
	MaxTrades = 100
	// MaxHolders bounds the ranked holder list
	MaxHolders = 1000
)

// Common error types for market data sources

var (
	// ErrInvalidAddress indicates the token address format is invalid
	ErrInvalidAddress = fmt.Errorf("invalid address format")

	// ErrProviderUnavailable indicates no RPC endpoint could serve the request
	ErrProviderUnavailable = fmt.Errorf("data provider unavailable")

	// ErrPoolNotFound indicates no Uniswap V3 WETH pool exists for the token
	ErrPoolNotFound = fmt.Errorf("pool not found")

	// ErrEmptyResult indicates a contract call returned no data
	ErrEmptyResult = fmt.Errorf("empty contract call result")
)

// AdapterError wraps errors with additional context
type AdapterError struct {
	Source  string
	Op      string // Operation that failed (e.g., "GetPrice", "GetHolders")
	Err     error
	Details map[string]interface{}
}

func (e *AdapterError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("market data error [%s:%s]: %v (details: %+v)", e.Source, e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("market data error [%s:%s]: %v", e.Source, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewAdapterError creates a new AdapterError
func NewAdapterError(source, op string, err error, details map[string]interface{}) *AdapterError {
	return &AdapterError{
		Source:  source,
		Op:      op,
		Err:     err,
		Details: details,
	}
}

// FormatUnits scales a raw integer token amount down by decimals
func FormatUnits(amount *big.Int, decimals int) float64 {
	if amount == nil {
		return 0
	}
	f, _ := decimal.NewFromBigInt(amount, int32(-decimals)).Float64() // #nosec G115 - ERC20 decimals fit in uint8
	return f
}
