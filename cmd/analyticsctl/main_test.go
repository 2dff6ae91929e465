package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/token-analytics/internal/job"
	"github.com/token-analytics/internal/types"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("TOKENS_FILE", "")
	t.Setenv("ETHEREUM_RPC_PRIMARY", "")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestJobsCommand(t *testing.T) {
	out, err := run(t, "jobs")
	require.NoError(t, err)

	for _, id := range []string{job.MarketMonitorID, job.VolatilityAlertID, job.ConcentrationMonitorID, job.AISignalGeneratorID, job.SentimentAnalyzerID} {
		assert.Contains(t, out, id)
	}
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 6)
}

func TestTokensCommand(t *testing.T) {
	out, err := run(t, "tokens")
	require.NoError(t, err)
	assert.Contains(t, out, "PEPE")
	assert.Contains(t, out, "DAI")
}

func TestAnalyzeCommandWithFallback(t *testing.T) {
	out, err := run(t, "--fallback", "analyze", "0x6982508145454Ce325dDbE47a25d4ec3d2311933")
	require.NoError(t, err)

	var analysis types.Analysis
	require.NoError(t, json.Unmarshal([]byte(out), &analysis))
	assert.Equal(t, "0x6982508145454ce325ddbe47a25d4ec3d2311933", analysis.TokenAddress)
	assert.NotEmpty(t, analysis.Signals.Recommendation)
}

func TestSignalCommandRejectsUnknownStrategy(t *testing.T) {
	_, err := run(t, "--fallback", "signal", "--strategy", "astrology", "0x6982508145454Ce325dDbE47a25d4ec3d2311933")
	assert.Error(t, err)
}

func TestAnalyzeCommandInvalidAddress(t *testing.T) {
	_, err := run(t, "--fallback", "analyze", "not-an-address")
	assert.Error(t, err)
}
