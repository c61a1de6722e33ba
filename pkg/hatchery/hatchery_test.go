package hatchery_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/swarm-governance/pkg/hatchery"
)

func blockingFactory() (hatchery.InstanceFunc, *int32) {
	var starts int32
	return func(ctx context.Context, instanceID string) error {
		atomic.AddInt32(&starts, 1)
		<-ctx.Done()
		return ctx.Err()
	}, &starts
}

func TestSupervisor_ScaleUpTick_SpawnsToTarget(t *testing.T) {
	factory, starts := blockingFactory()
	sup := hatchery.NewSupervisor(nil, nil)
	sup.RegisterRole(hatchery.RoleConfig{
		Name: "drift", Factory: factory,
		MinInstances: 0, MaxInstances: 10, ServiceRate: 1, TargetUtilization: 1,
	})

	now := time.Now()
	sup.RecordArrival("drift", now, 3)

	result, err := sup.ScaleUpTick(context.Background(), "drift", 0, now)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.TargetInstances, 1)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(starts) == int32(result.TargetInstances)
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, sup.Shutdown(context.Background()))
}

func TestSupervisor_ScaleUpTick_UnregisteredRole(t *testing.T) {
	sup := hatchery.NewSupervisor(nil, nil)
	_, err := sup.ScaleUpTick(context.Background(), "missing", 0, time.Now())
	assert.Error(t, err)
}

func TestSupervisor_ScaleDownTick_RespectsCooldownAndMin(t *testing.T) {
	factory, _ := blockingFactory()
	sup := hatchery.NewSupervisor(nil, nil)
	sup.RegisterRole(hatchery.RoleConfig{
		Name: "status", Factory: factory,
		MinInstances: 1, MaxInstances: 5, ServiceRate: 1, TargetUtilization: 1,
		ScaleDownCooldown: time.Minute,
	})

	now := time.Now()
	sup.RecordArrival("status", now, 10)
	_, err := sup.ScaleUpTick(context.Background(), "status", 0, now)
	require.NoError(t, err)

	sup.SetInFlight("status", 0)
	// at min instances already in many cases; force scale down attempts
	drained := sup.ScaleDownTick("status", now)
	_ = drained // may or may not drain depending on target vs min, but must not panic

	require.NoError(t, sup.Shutdown(context.Background()))
}

func TestSupervisor_ScaleDownTick_SkipsWhenInFlight(t *testing.T) {
	factory, _ := blockingFactory()
	sup := hatchery.NewSupervisor(nil, nil)
	sup.RegisterRole(hatchery.RoleConfig{
		Name: "planning", Factory: factory,
		MinInstances: 0, MaxInstances: 5, ServiceRate: 1, TargetUtilization: 1,
	})
	now := time.Now()
	sup.RecordArrival("planning", now, 5)
	_, err := sup.ScaleUpTick(context.Background(), "planning", 0, now)
	require.NoError(t, err)

	sup.SetInFlight("planning", 1)
	drained := sup.ScaleDownTick("planning", now)
	assert.False(t, drained)

	require.NoError(t, sup.Shutdown(context.Background()))
}

func TestSupervisor_HeartbeatTick_DrainsStaleInstances(t *testing.T) {
	factory, _ := blockingFactory()
	sup := hatchery.NewSupervisor(nil, nil)
	sup.RegisterRole(hatchery.RoleConfig{
		Name: "extract", Factory: factory,
		MinInstances: 0, MaxInstances: 3, ServiceRate: 1, TargetUtilization: 1,
		HeartbeatTimeout: time.Second,
	})

	now := time.Now()
	sup.RecordArrival("extract", now, 3)
	_, err := sup.ScaleUpTick(context.Background(), "extract", 0, now)
	require.NoError(t, err)

	drained := sup.HeartbeatTick("extract", now.Add(2*time.Second))
	assert.NotEmpty(t, drained)

	require.NoError(t, sup.Shutdown(context.Background()))
}

func TestSupervisor_RestartSupervision_ExhaustsAfterMaxRestarts(t *testing.T) {
	var attempts int32
	factory := func(ctx context.Context, instanceID string) error {
		atomic.AddInt32(&attempts, 1)
		return nil // exits immediately every time, triggering a restart loop
	}

	sup := hatchery.NewSupervisor(nil, nil)
	sup.RegisterRole(hatchery.RoleConfig{
		Name: "tuning", Factory: factory,
		MinInstances: 1, MaxInstances: 1, ServiceRate: 1, TargetUtilization: 1,
		MaxRestarts: 2, RestartWindow: time.Minute,
	})

	now := time.Now()
	sup.RecordArrival("tuning", now, 1)
	_, err := sup.ScaleUpTick(context.Background(), "tuning", 0, now)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&attempts) >= 3
	}, 2*time.Second, 10*time.Millisecond)

	// give the restart loop a moment to settle once the role is exhausted
	time.Sleep(50 * time.Millisecond)
	settled := atomic.LoadInt32(&attempts)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, atomic.LoadInt32(&attempts), "restart loop should have stopped after exhausting the budget")

	require.NoError(t, sup.Shutdown(context.Background()))
}
