package hatchery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/swarm-governance/pkg/metrics"
)

// ErrRestartExhausted is returned by ScaleUpTick once a role has exceeded
// its bounded restart intensity; the role stops
// accepting new instances until an operator intervenes.
var ErrRestartExhausted = errors.New("hatchery: role restart budget exhausted")

// InstanceFunc is the factory for one supervised worker instance. It must
// block until ctx is cancelled or the instance's work is done, and return
// promptly on cancellation.
type InstanceFunc func(ctx context.Context, instanceID string) error

// RoleConfig describes one supervised worker role — a factory for
// instances plus the autoscaling and restart-supervision parameters that
// govern it.
type RoleConfig struct {
	Name              string
	Factory           InstanceFunc
	MinInstances      int
	MaxInstances      int
	ServiceRate       float64 // μ fallback, msg/sec per instance
	TargetUtilization float64 // ρ_target

	LagThreshold           uint64
	ActivationLagThreshold uint64
	ArrivalWindow          time.Duration

	ScaleDownCooldown time.Duration
	HeartbeatTimeout  time.Duration

	MaxRestarts   int
	RestartWindow time.Duration
	GraceDeadline time.Duration
}

func (c RoleConfig) graceDeadline() time.Duration {
	if c.GraceDeadline <= 0 {
		return 10 * time.Second
	}
	return c.GraceDeadline
}

type instanceHandle struct {
	id            string
	cancel        context.CancelFunc
	startedAt     time.Time
	lastHeartbeat time.Time
	done          chan struct{}
}

type roleState struct {
	cfg       RoleConfig
	estimator *ArrivalRateEstimator

	mu            sync.Mutex
	instances     map[string]*instanceHandle
	lastScaleDown time.Time
	restarts      []time.Time
	exhausted     bool
	inFlight      int
}

// Supervisor runs every registered role's instance pool, sizing it from
// arrival-rate and bus-lag signals and restarting failed instances under a
// bounded intensity policy (C11).
type Supervisor struct {
	events  *EventStore
	metrics *metrics.Registry
	logger  *slog.Logger

	mu       sync.Mutex
	roles    map[string]*roleState
	shutdown bool
	wg       sync.WaitGroup
}

// NewSupervisor builds a Supervisor. events and reg may both be nil — every
// lifecycle decision is still made, just not persisted or exported.
func NewSupervisor(events *EventStore, reg *metrics.Registry) *Supervisor {
	return &Supervisor{
		events:  events,
		metrics: reg,
		logger:  slog.Default().With("component", "hatchery"),
		roles:   make(map[string]*roleState),
	}
}

// RegisterRole adds a role to the supervisor. It must be called before any
// tick targeting that role.
func (s *Supervisor) RegisterRole(cfg RoleConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[cfg.Name] = &roleState{
		cfg:       cfg,
		estimator: NewArrivalRateEstimator(cfg.ArrivalWindow),
		instances: make(map[string]*instanceHandle),
	}
}

// RecordArrival feeds n newly observed messages for role into its arrival
// rate estimator.
func (s *Supervisor) RecordArrival(role string, now time.Time, n int) {
	rs := s.role(role)
	if rs == nil {
		return
	}
	rs.estimator.Record(now, n)
}

// Heartbeat records liveness for one running instance. Workers must call
// this periodically; an instance that falls silent for HeartbeatTimeout is
// drained on the next heartbeat tick.
func (s *Supervisor) Heartbeat(role, instanceID string, now time.Time) {
	rs := s.role(role)
	if rs == nil {
		return
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if h, ok := rs.instances[instanceID]; ok {
		h.lastHeartbeat = now
	}
}

// SetInFlight records whether role currently has in-flight work; scale-down
// only drains instances when a role is fully idle.
func (s *Supervisor) SetInFlight(role string, n int) {
	rs := s.role(role)
	if rs == nil {
		return
	}
	rs.mu.Lock()
	rs.inFlight = n
	rs.mu.Unlock()
}

func (s *Supervisor) role(name string) *roleState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roles[name]
}

// ScaleUpTick sizes role against the M/M/c heuristic (consulting the
// current arrival-rate estimate and the observed consumer lag) and spawns
// instances until the current count reaches the target.
func (s *Supervisor) ScaleUpTick(ctx context.Context, role string, lag uint64, now time.Time) (SizingResult, error) {
	rs := s.role(role)
	if rs == nil {
		return SizingResult{}, fmt.Errorf("hatchery: role %q not registered", role)
	}

	rs.mu.Lock()
	exhausted := rs.exhausted
	current := len(rs.instances)
	rs.mu.Unlock()
	if exhausted {
		return SizingResult{}, fmt.Errorf("%w: role %s", ErrRestartExhausted, role)
	}

	result := ComputeTargetSize(SizingInput{
		ArrivalRate:            rs.estimator.Rate(now),
		ServiceRate:            rs.cfg.ServiceRate,
		TargetUtilization:      rs.cfg.TargetUtilization,
		MinInstances:           rs.cfg.MinInstances,
		MaxInstances:           rs.cfg.MaxInstances,
		CurrentInstances:       current,
		ConsumerLag:            lag,
		LagThreshold:           rs.cfg.LagThreshold,
		ActivationLagThreshold: rs.cfg.ActivationLagThreshold,
	})

	before := current
	for current < result.TargetInstances {
		s.spawn(ctx, rs)
		current++
	}

	if s.metrics != nil {
		s.metrics.HatcheryInstances.Set(float64(current))
	}
	s.recordEvent(ctx, role, "scale_up", before, current, map[string]any{
		"lambda": rs.estimator.Rate(now), "lag": lag, "lag_driven": result.LagDriven, "littles_law_l": result.LittlesLawL,
	})

	return result, nil
}

// ScaleDownTick drains one instance, newest-first, when role has no
// in-flight work, is above its minimum, and the cooldown since the last
// scale-down has elapsed.
func (s *Supervisor) ScaleDownTick(role string, now time.Time) bool {
	rs := s.role(role)
	if rs == nil {
		return false
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.inFlight != 0 {
		return false
	}
	if len(rs.instances) <= rs.cfg.MinInstances {
		return false
	}
	if now.Sub(rs.lastScaleDown) < rs.cfg.ScaleDownCooldown {
		return false
	}

	newest := newestInstance(rs.instances)
	if newest == nil {
		return false
	}

	before := len(rs.instances)
	newest.cancel()
	delete(rs.instances, newest.id)
	rs.lastScaleDown = now

	if s.metrics != nil {
		s.metrics.HatcheryInstances.Set(float64(len(rs.instances)))
	}
	s.recordEvent(context.Background(), role, "scale_down", before, len(rs.instances), map[string]any{"instance_id": newest.id})
	return true
}

// HeartbeatTick drains any instance of role that has been silent longer
// than HeartbeatTimeout. It returns the drained instance ids.
func (s *Supervisor) HeartbeatTick(role string, now time.Time) []string {
	rs := s.role(role)
	if rs == nil {
		return nil
	}

	rs.mu.Lock()
	var stale []*instanceHandle
	for _, h := range rs.instances {
		if rs.cfg.HeartbeatTimeout > 0 && now.Sub(h.lastHeartbeat) > rs.cfg.HeartbeatTimeout {
			stale = append(stale, h)
		}
	}
	for _, h := range stale {
		h.cancel()
		delete(rs.instances, h.id)
	}
	remaining := len(rs.instances)
	rs.mu.Unlock()

	if len(stale) == 0 {
		return nil
	}

	ids := make([]string, len(stale))
	for i, h := range stale {
		ids[i] = h.id
	}
	if s.metrics != nil {
		s.metrics.HatcheryInstances.Set(float64(remaining))
	}
	s.recordEvent(context.Background(), role, "heartbeat_timeout", remaining+len(stale), remaining, map[string]any{"instance_ids": ids})
	return ids
}

// spawn starts one instance of the role under restart supervision: if the
// factory returns while the supervisor is not shutting down, it is
// restarted, unless the role has exceeded MaxRestarts within RestartWindow.
func (s *Supervisor) spawn(ctx context.Context, rs *roleState) {
	id := uuid.NewString()
	instCtx, cancel := context.WithCancel(ctx)
	now := time.Now()

	h := &instanceHandle{id: id, cancel: cancel, startedAt: now, lastHeartbeat: now, done: make(chan struct{})}
	rs.mu.Lock()
	rs.instances[id] = h
	rs.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(h.done)
		s.runSupervised(instCtx, rs, h)
	}()
}

func (s *Supervisor) runSupervised(ctx context.Context, rs *roleState, h *instanceHandle) {
	for {
		err := rs.cfg.Factory(ctx, h.id)

		s.mu.Lock()
		shuttingDown := s.shutdown
		s.mu.Unlock()
		if shuttingDown {
			return
		}
		if ctx.Err() != nil {
			return
		}

		rs.mu.Lock()
		rs.restarts = append(rs.restarts, time.Now())
		cutoff := time.Now().Add(-rs.cfg.RestartWindow)
		kept := rs.restarts[:0]
		for _, t := range rs.restarts {
			if t.After(cutoff) {
				kept = append(kept, t)
			}
		}
		rs.restarts = kept
		tooMany := rs.cfg.MaxRestarts > 0 && len(rs.restarts) > rs.cfg.MaxRestarts
		if tooMany {
			rs.exhausted = true
		}
		rs.mu.Unlock()

		s.logger.Warn("instance exited, evaluating restart",
			"role", rs.cfg.Name, "instance_id", h.id, "error", err, "restart_exhausted", tooMany)
		s.recordEvent(context.Background(), rs.cfg.Name, "restart", 1, 1, map[string]any{
			"instance_id": h.id, "error": errString(err), "restart_exhausted": tooMany,
		})

		if tooMany {
			rs.mu.Lock()
			delete(rs.instances, h.id)
			rs.mu.Unlock()
			return
		}
	}
}

// Shutdown cancels every instance across every role and waits for them to
// exit, up to each role's grace deadline (the longest configured deadline
// bounds the overall wait).
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown = true
	roles := make([]*roleState, 0, len(s.roles))
	for _, rs := range s.roles {
		roles = append(roles, rs)
	}
	s.mu.Unlock()

	grace := 10 * time.Second
	for _, rs := range roles {
		rs.mu.Lock()
		for _, h := range rs.instances {
			h.cancel()
		}
		rs.mu.Unlock()
		if rs.cfg.graceDeadline() > grace {
			grace = rs.cfg.graceDeadline()
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(grace):
		return fmt.Errorf("hatchery: shutdown grace deadline %s exceeded", grace)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newestInstance(instances map[string]*instanceHandle) *instanceHandle {
	if len(instances) == 0 {
		return nil
	}
	ordered := make([]*instanceHandle, 0, len(instances))
	for _, h := range instances {
		ordered = append(ordered, h)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].startedAt.After(ordered[j].startedAt) })
	return ordered[0]
}

func (s *Supervisor) recordEvent(ctx context.Context, role, action string, before, after int, detail map[string]any) {
	if s.events == nil {
		return
	}
	if err := s.events.Record(ctx, role, action, before, after, detail); err != nil {
		s.logger.Error("failed to record hatchery event", "role", role, "action", action, "error", err)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
