package hatchery_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/swarm-governance/pkg/hatchery"
)

func TestArrivalRateEstimator_ComputesRateOverWindow(t *testing.T) {
	est := hatchery.NewArrivalRateEstimator(time.Minute)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	est.Record(base, 30)
	est.Record(base.Add(30*time.Second), 30)

	rate := est.Rate(base.Add(30 * time.Second))
	require.InDelta(t, 1.0, rate, 0.01) // 60 msgs / 60s window
}

func TestArrivalRateEstimator_EvictsOldSamples(t *testing.T) {
	est := hatchery.NewArrivalRateEstimator(time.Minute)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	est.Record(base, 600)
	rate := est.Rate(base.Add(2 * time.Minute))
	assert.Zero(t, rate)
}

func TestComputeTargetSize_ScalesWithArrivalRate(t *testing.T) {
	result := hatchery.ComputeTargetSize(hatchery.SizingInput{
		ArrivalRate:       10,
		ServiceRate:       2,
		TargetUtilization: 0.5,
		MinInstances:      1,
		MaxInstances:      20,
	})
	// c* = ceil(10 / (2*0.5)) = 10
	assert.Equal(t, 10, result.TargetInstances)
	assert.InDelta(t, 5.0, result.LittlesLawL, 0.01)
}

func TestComputeTargetSize_ClampsToMinAndMax(t *testing.T) {
	low := hatchery.ComputeTargetSize(hatchery.SizingInput{
		ArrivalRate: 0, ServiceRate: 2, TargetUtilization: 0.5, MinInstances: 2, MaxInstances: 20,
	})
	assert.Equal(t, 2, low.TargetInstances)

	high := hatchery.ComputeTargetSize(hatchery.SizingInput{
		ArrivalRate: 1000, ServiceRate: 2, TargetUtilization: 0.5, MinInstances: 1, MaxInstances: 5,
	})
	assert.Equal(t, 5, high.TargetInstances)
}

func TestComputeTargetSize_LagDrivenOverridesWhenHigher(t *testing.T) {
	result := hatchery.ComputeTargetSize(hatchery.SizingInput{
		ArrivalRate: 1, ServiceRate: 2, TargetUtilization: 0.5,
		MinInstances: 1, MaxInstances: 20, CurrentInstances: 2,
		ConsumerLag: 1000, LagThreshold: 100, ActivationLagThreshold: 50,
	})
	assert.True(t, result.LagDriven)
	// ceil(1000/100) + current(2) = 12
	assert.Equal(t, 12, result.TargetInstances)
}

func TestComputeTargetSize_LagBelowActivationThresholdIgnored(t *testing.T) {
	result := hatchery.ComputeTargetSize(hatchery.SizingInput{
		ArrivalRate: 1, ServiceRate: 2, TargetUtilization: 0.5,
		MinInstances: 1, MaxInstances: 20, CurrentInstances: 2,
		ConsumerLag: 60, LagThreshold: 100, ActivationLagThreshold: 200,
	})
	assert.False(t, result.LagDriven)
}

func TestRankByPressure_OrdersDescendingThenAlphabetical(t *testing.T) {
	ranked := hatchery.RankByPressure([]hatchery.RolePressure{
		{Role: "status", Pressure: 0.2},
		{Role: "drift", Pressure: 0.8},
		{Role: "planning", Pressure: 0.8},
	})
	require.Len(t, ranked, 3)
	assert.Equal(t, "drift", ranked[0].Role)
	assert.Equal(t, "planning", ranked[1].Role)
	assert.Equal(t, "status", ranked[2].Role)
}
