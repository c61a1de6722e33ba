package config

import (
	"fmt"
	"os"

	"dario.cat/mergo"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// AppConfig is the root configuration document: system-wide defaults plus
// the governance policy document evaluated by the policy engine.
type AppConfig struct {
	Defaults Defaults       `yaml:"defaults,omitempty"`
	Policy   PolicyDocument `yaml:"policy"`
}

// Load reads, env-expands, and validates the application configuration from
// path, merging it over the built-in defaults. A zero-value Defaults field
// in the file is filled in from defaultConfig(); the policy document must be
// supplied in full.
func Load(path string) (*AppConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &LoadError{File: path, Err: ErrConfigNotFound}
		}
		return nil, &LoadError{File: path, Err: err}
	}

	expanded := ExpandEnv(raw)

	var cfg AppConfig
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, &LoadError{File: path, Err: fmt.Errorf("%w: %w", ErrInvalidYAML, err)}
	}

	defaults := defaultConfig()
	if err := mergo.Merge(&cfg.Defaults, defaults); err != nil {
		return nil, &LoadError{File: path, Err: fmt.Errorf("merge defaults: %w", err)}
	}

	if err := cfg.Validate(); err != nil {
		return nil, &LoadError{File: path, Err: err}
	}

	return &cfg, nil
}

// Validate runs struct-tag validation over the whole document and rejects a
// policy document with two transition rules for the same from/to pair.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	seen := make(map[string]struct{}, len(c.Policy.TransitionRules))
	for _, rule := range c.Policy.TransitionRules {
		key := rule.From + ">" + rule.To
		if _, dup := seen[key]; dup {
			return NewValidationError("transition_rule", key, "from/to", fmt.Errorf("duplicate transition rule for %s", key))
		}
		seen[key] = struct{}{}
	}

	if c.Defaults.Finality.AutoThreshold < c.Defaults.Finality.NearThreshold {
		return NewValidationError("defaults", "finality", "auto_threshold",
			fmt.Errorf("auto_threshold must be >= near_threshold"))
	}

	if c.Defaults.Hatchery.MinInstances > c.Defaults.Hatchery.MaxInstances {
		return NewValidationError("defaults", "hatchery", "min_instances",
			fmt.Errorf("min_instances must be <= max_instances"))
	}

	return nil
}

// FinalityFor resolves the effective finality thresholds for a scope,
// applying its override if one is configured.
func (c *AppConfig) FinalityFor(scopeID string) FinalityDefaults {
	if override, ok := c.Policy.Scopes[scopeID]; ok && override.Finality != nil {
		return *override.Finality
	}
	return c.Defaults.Finality
}

// OversightModeFor resolves the effective oversight mode for a scope.
func (c *AppConfig) OversightModeFor(scopeID string) string {
	if override, ok := c.Policy.Scopes[scopeID]; ok && override.OversightMode != "" {
		return override.OversightMode
	}
	return c.Defaults.OversightMode
}
