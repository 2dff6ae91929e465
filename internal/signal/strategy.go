// Package signal turns a Metrics snapshot into a trading recommendation.
package signal

import (
	"fmt"
	"sort"
	"strings"

	"github.com/token-analytics/internal/types"
)

const (
	StrategyBasic    = "basic"
	StrategyWeighted = "weighted"
)

// Strategy generates a Signal from metrics. Implementations must be pure.
type Strategy interface {
	Name() string
	Generate(m types.Metrics) types.Signal
}

var strategies = map[string]func() Strategy{
	StrategyBasic:    func() Strategy { return Basic{} },
	StrategyWeighted: func() Strategy { return Weighted{} },
}

// ForName returns the strategy registered under name (case-insensitive)
func ForName(name string) (Strategy, error) {
	ctor, ok := strategies[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown signal strategy %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return ctor(), nil
}

// Names lists the registered strategy names
func Names() []string {
	names := make([]string, 0, len(strategies))
	for name := range strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
