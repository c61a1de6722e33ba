package config

import "time"

// Defaults contains system-wide default configuration applied when a scope
// does not specify its own overrides.
type Defaults struct {
	// Finality holds the default near/auto finality thresholds.
	Finality FinalityDefaults `yaml:"finality,omitempty"`

	// Watchdog holds the default quiescence watchdog cadence.
	Watchdog WatchdogDefaults `yaml:"watchdog,omitempty"`

	// Hatchery holds the default autoscaler sizing.
	Hatchery HatcheryDefaults `yaml:"hatchery,omitempty"`

	// OversightMode is the default oversight routing mode for new scopes
	// ("autonomous", "advisory", "gated").
	OversightMode string `yaml:"oversight_mode,omitempty" validate:"omitempty,oneof=autonomous advisory gated"`
}

// FinalityDefaults configures the thresholds the finality evaluator (C8)
// uses to classify a scope as near-final or final.
type FinalityDefaults struct {
	// NearThreshold is the minimum weighted finality score considered "near"
	// finality.
	NearThreshold float64 `yaml:"near_threshold,omitempty" validate:"omitempty,gte=0,lte=1"`

	// AutoThreshold is the minimum weighted finality score at which a scope
	// is finalized automatically, without further oversight.
	AutoThreshold float64 `yaml:"auto_threshold,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// WatchdogDefaults configures the quiescence watchdog (C10).
type WatchdogDefaults struct {
	// CheckInterval is how often the watchdog polls scopes for stalls.
	CheckInterval time.Duration `yaml:"check_interval,omitempty"`

	// QuiescenceThreshold is how long a scope must go without a recorded
	// transition before it is considered stalled.
	QuiescenceThreshold time.Duration `yaml:"quiescence_threshold,omitempty"`

	// MaxQuestionsPerEscalation bounds how many ranked questions a single
	// escalation may raise.
	MaxQuestionsPerEscalation int `yaml:"max_questions_per_escalation,omitempty" validate:"omitempty,min=1"`
}

// HatcheryDefaults configures the supervising autoscaler (C11).
type HatcheryDefaults struct {
	MinInstances int `yaml:"min_instances,omitempty" validate:"omitempty,min=0"`
	MaxInstances int `yaml:"max_instances,omitempty" validate:"omitempty,min=1"`

	// TargetUtilization is the rho_target used in the M/M/c sizing heuristic.
	TargetUtilization float64 `yaml:"target_utilization,omitempty" validate:"omitempty,gt=0,lte=1"`

	// ServiceRate is mu, the average proposals/sec a single instance can process.
	ServiceRate float64 `yaml:"service_rate,omitempty" validate:"omitempty,gt=0"`

	// ScaleDownCooldown is the minimum time between two scale-downs of a role.
	ScaleDownCooldown time.Duration `yaml:"scale_down_cooldown,omitempty"`

	// HeartbeatTimeout is how long an instance may go without a heartbeat
	// before the hatchery drains it.
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout,omitempty"`
}

// defaultConfig returns the built-in defaults merged under any user-supplied
// configuration. Values here mirror the numeric scenarios documented for the
// convergence tracker and finality evaluator.
func defaultConfig() Defaults {
	return Defaults{
		Finality: FinalityDefaults{
			NearThreshold: 0.75,
			AutoThreshold: 0.92,
		},
		Watchdog: WatchdogDefaults{
			CheckInterval:             30 * time.Second,
			QuiescenceThreshold:       5 * time.Minute,
			MaxQuestionsPerEscalation: 3,
		},
		Hatchery: HatcheryDefaults{
			MinInstances:      1,
			MaxInstances:      10,
			TargetUtilization: 0.75,
			ServiceRate:       2.0,
			ScaleDownCooldown: 2 * time.Minute,
			HeartbeatTimeout:  90 * time.Second,
		},
		OversightMode: "advisory",
	}
}
