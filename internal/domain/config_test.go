package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validatedRequest(strategy StrategyType) DeploymentRequest {
	cfg := DefaultStrategyConfig()
	return DeploymentRequest{
		ExecutionID: "exec-1",
		ModuleID:    "mod-a",
		Version:     "2.0.0",
		Strategy:    strategy,
		Config:      cfg,
		TotalNodes:  5,
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	for _, strategy := range []StrategyType{
		StrategyDirect, StrategyRolling, StrategyCanary, StrategyBlueGreen, StrategyABTesting,
	} {
		req := validatedRequest(strategy)
		assert.NoError(t, req.Validate(), "strategy %s", strategy)
	}
}

func TestValidateRejectsCanaryWaveShapes(t *testing.T) {
	cases := []struct {
		name  string
		waves []int
	}{
		{"empty", nil},
		{"last not 100", []int{10, 50}},
		{"out of range", []int{10, 150}},
		{"decreasing", []int{50, 30, 100}},
		{"plateau", []int{10, 10, 100}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validatedRequest(StrategyCanary)
			req.Config.WavePercentages = tc.waves
			err := req.Validate()
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestValidateRejectsMalformedRequests(t *testing.T) {
	missing := validatedRequest(StrategyDirect)
	missing.ModuleID = ""
	assert.Error(t, missing.Validate())

	zeroNodes := validatedRequest(StrategyDirect)
	zeroNodes.TotalNodes = 0
	assert.Error(t, zeroNodes.Validate())

	unknown := validatedRequest("bogus")
	assert.Error(t, unknown.Validate())

	badSplit := validatedRequest(StrategyABTesting)
	badSplit.Config.TrafficSplitPercent = 100
	assert.Error(t, badSplit.Validate())

	badBatch := validatedRequest(StrategyRolling)
	badBatch.Config.BatchSize = 0
	assert.Error(t, badBatch.Validate())
}
