package models

import (
	"strings"
	"time"

	"github.com/token-analytics/internal/types"
)

// TrackedToken represents a token registered for periodic analysis
type TrackedToken struct {
	Address   string    `json:"address" db:"address" yaml:"address"`
	Symbol    string    `json:"symbol" db:"symbol" yaml:"symbol"`
	Name      string    `json:"name" db:"name" yaml:"name"`
	Decimals  int       `json:"decimals" db:"decimals" yaml:"decimals"`
	IsActive  bool      `json:"isActive" db:"is_active" yaml:"active"`
	CreatedAt time.Time `json:"createdAt" db:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at" yaml:"-"`
}

// ToToken converts the registry entry into a market token without price data
func (t *TrackedToken) ToToken() types.Token {
	return types.Token{
		Address:  strings.ToLower(t.Address),
		Symbol:   t.Symbol,
		Name:     t.Name,
		Decimals: t.Decimals,
	}
}

// DefaultTokens returns the tokens analyzed when no registry is configured
func DefaultTokens() []TrackedToken {
	return []TrackedToken{
		{Address: "0x6982508145454Ce325dDbE47a25d4ec3d2311933", Symbol: "PEPE", Name: "Pepe", Decimals: 18, IsActive: true},
		{Address: "0x95aD61b0a150d79219dCF64E1E6Cc01f0B64C4cE", Symbol: "SHIB", Name: "Shiba Inu", Decimals: 18, IsActive: true},
		{Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Symbol: "DAI", Name: "Dai Stablecoin", Decimals: 18, IsActive: true},
	}
}
