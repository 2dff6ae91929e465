package broadcast

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/token-analytics/internal/analytics"
	apperrors "github.com/token-analytics/internal/errors"
	"github.com/token-analytics/internal/types"
)

type fakeSource struct {
	tokens   []types.Token
	analyses map[string]*types.Analysis
}

func (f *fakeSource) ActiveTokens(ctx context.Context) ([]types.Token, error) {
	return f.tokens, nil
}

func (f *fakeSource) Latest(ctx context.Context, token string) (*types.Analysis, error) {
	a, ok := f.analyses[strings.ToLower(token)]
	if !ok {
		return nil, fmt.Errorf("analysis for %s: %w", token, apperrors.ErrNotFound)
	}
	return a, nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	published map[string]interface{}
	clients   int
}

func (p *recordingPublisher) Publish(channel string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.published == nil {
		p.published = make(map[string]interface{})
	}
	p.published[channel] = payload
	return nil
}

func (p *recordingPublisher) ClientCount() int { return p.clients }

func testAnalysisSource() *fakeSource {
	return &fakeSource{
		tokens: []types.Token{
			{Address: "0xaaa", Symbol: "AAA"},
			{Address: "0xbbb", Symbol: "BBB"},
			{Address: "0xccc", Symbol: "CCC"},
		},
		analyses: map[string]*types.Analysis{
			"0xaaa": {
				TokenAddress: "0xaaa", Timestamp: 1000,
				Metrics: types.Metrics{MarketCap: 500, Volatility: 0.9, ConcentrationRatio: 0.4},
				Signals: types.Signal{Recommendation: types.RecommendationBuy, Confidence: 0.85, Reasoning: []string{"Strong trading activity"}},
			},
			"0xbbb": {
				TokenAddress: "0xbbb", Symbol: "BBB", Timestamp: 2000,
				Metrics: types.Metrics{MarketCap: 1500, Volatility: 0.1},
				Signals: types.Signal{Recommendation: types.RecommendationHold, Confidence: 0.5},
			},
		},
	}
}

func TestBroadcaster_Collect(t *testing.T) {
	b := NewBroadcaster(testAnalysisSource(), &recordingPublisher{}, 0)

	payloads, err := b.Collect(context.Background())
	require.NoError(t, err)

	overview := payloads[ChannelMarketOverview].(analytics.MarketOverview)
	assert.Equal(t, 3, overview.TotalTokens)
	assert.Equal(t, 2, overview.AnalyzedTokens)
	assert.Equal(t, 2000.0, overview.TotalMarketCap)
	assert.Equal(t, 1, overview.BullishTokens)
	assert.Equal(t, 1, overview.NeutralTokens)

	signals := payloads[ChannelTradingSignals].([]TradingSignal)
	require.Len(t, signals, 2)
	assert.Equal(t, "AAA", signals[0].Symbol)

	priceAlerts := payloads[ChannelPriceAlerts].([]PriceAlert)
	require.Len(t, priceAlerts, 1)
	assert.Equal(t, "0xaaa", priceAlerts[0].TokenAddress)
	assert.Equal(t, types.RecommendationBuy, priceAlerts[0].Signal)

	riskAlerts := payloads[ChannelRiskAlerts].([]RiskAlert)
	require.Len(t, riskAlerts, 1)
	assert.Equal(t, types.RiskHigh, riskAlerts[0].RiskLevel)
	assert.Equal(t, 0.9, riskAlerts[0].Volatility)
}

func TestBroadcaster_BroadcastSkipsWithoutClients(t *testing.T) {
	pub := &recordingPublisher{}
	b := NewBroadcaster(testAnalysisSource(), pub, 0)

	require.NoError(t, b.Broadcast(context.Background()))
	assert.Empty(t, pub.published)

	pub.clients = 1
	require.NoError(t, b.Broadcast(context.Background()))
	assert.Len(t, pub.published, len(Channels()))
}

func TestBroadcaster_EmptyAlertsAreArrays(t *testing.T) {
	src := testAnalysisSource()
	delete(src.analyses, "0xaaa")
	b := NewBroadcaster(src, &recordingPublisher{}, 0)

	payloads, err := b.Collect(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, payloads[ChannelPriceAlerts])
	assert.Empty(t, payloads[ChannelPriceAlerts])
	assert.Empty(t, payloads[ChannelRiskAlerts])
}

func TestBroadcaster_AlertThresholdsAreExclusive(t *testing.T) {
	tests := []struct {
		name        string
		confidence  float64
		volatility  float64
		priceAlerts int
		riskAlerts  int
	}{
		{"at both thresholds", 0.8, 0.7, 0, 0},
		{"just above both", 0.8001, 0.7001, 1, 1},
		{"below both", 0.5, 0.2, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{
				tokens: []types.Token{{Address: "0xaaa", Symbol: "AAA"}},
				analyses: map[string]*types.Analysis{
					"0xaaa": {
						TokenAddress: "0xaaa", Timestamp: 1000,
						Metrics: types.Metrics{MarketCap: 100, Volatility: tt.volatility},
						Signals: types.Signal{Recommendation: types.RecommendationBuy, Confidence: tt.confidence},
					},
				},
			}
			payloads, err := NewBroadcaster(src, &recordingPublisher{}, 0).Collect(context.Background())
			require.NoError(t, err)

			assert.Len(t, payloads[ChannelPriceAlerts].([]PriceAlert), tt.priceAlerts)
			assert.Len(t, payloads[ChannelRiskAlerts].([]RiskAlert), tt.riskAlerts)
		})
	}
}
