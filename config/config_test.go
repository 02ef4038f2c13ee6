package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopi-project/canopi-engine/config"
)

func TestDefaults_MatchSpecTable(t *testing.T) {
	d := config.Defaults()
	assert.Equal(t, 0.01, d.Epsilon)
	assert.Equal(t, 1e-3, d.Tau)
	assert.Equal(t, 200, d.MaxBundleIterations)
	assert.Equal(t, 10, d.MaxCorrectorIterations)
	assert.Equal(t, 0.3, d.Alpha)
	assert.Equal(t, 50, d.OracleBudget)
	require.NoError(t, d.Validate())
}

func TestLoad_MergesOverYAMLDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "params.yaml")
	require.NoError(t, os.WriteFile(path, []byte("epsilon: 0.05\nmax_bundle_iterations: 50\n"), 0o600))

	p, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.05, p.Epsilon)
	assert.Equal(t, 50, p.MaxBundleIterations)
	// Untouched fields keep their defaults.
	assert.Equal(t, 0.3, p.Alpha)
}

func TestValidate_RejectsOutOfRangeAlpha(t *testing.T) {
	p := config.Defaults()
	p.Alpha = 1.0
	require.Error(t, p.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
