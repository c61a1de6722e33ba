package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/swarm-governance/pkg/config"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "governance.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_MergesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
policy:
  version: 1
  transition_rules:
    - from: ContextIngested
      to: FactsExtracted
      block_when:
        drift_level: ["critical"]
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.75, cfg.Defaults.Finality.NearThreshold)
	assert.Equal(t, "advisory", cfg.Defaults.OversightMode)
}

func TestLoad_RejectsDuplicateTransitionRules(t *testing.T) {
	path := writeTempConfig(t, `
policy:
  version: 1
  transition_rules:
    - from: ContextIngested
      to: FactsExtracted
      block_when:
        drift_level: ["critical"]
    - from: ContextIngested
      to: FactsExtracted
      block_when:
        drift_level: ["high"]
`)

	_, err := config.Load(path)
	require.Error(t, err)
}

func TestLoad_RejectsMissingFile(t *testing.T) {
	_, err := config.Load("/nonexistent/governance.yaml")
	require.ErrorIs(t, err, config.ErrConfigNotFound)
}

func TestLoad_ExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("OVERSIGHT_MODE", "gated")
	path := writeTempConfig(t, `
defaults:
  oversight_mode: {{.OVERSIGHT_MODE}}
policy:
  version: 1
  transition_rules:
    - from: ContextIngested
      to: FactsExtracted
      block_when:
        drift_level: ["critical"]
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gated", cfg.Defaults.OversightMode)
}

func TestAppConfig_FinalityFor_ScopeOverride(t *testing.T) {
	path := writeTempConfig(t, `
policy:
  version: 1
  transition_rules:
    - from: ContextIngested
      to: FactsExtracted
      block_when:
        drift_level: ["critical"]
  scopes:
    scope-1:
      finality:
        near_threshold: 0.5
        auto_threshold: 0.6
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.FinalityFor("scope-1").NearThreshold)
	assert.Equal(t, cfg.Defaults.Finality.NearThreshold, cfg.FinalityFor("scope-unknown").NearThreshold)
}
