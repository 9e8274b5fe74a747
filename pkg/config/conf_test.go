package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mchmarny/biasprobe/pkg/bias"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	dir := t.TempDir()
	c1, err := ReadOrCreate(dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultEndpoint, c1.Predictor.Endpoint)
	assert.Equal(t, DefaultTimeout, c1.Predictor.Timeout)
	assert.Equal(t, bias.ModeThreshold, c1.Mode)

	c1.Workers = 4
	c1.Threshold = 0.1
	c1.Predictor.Endpoints = map[string]string{"roberta": "http://gpu-2:8000"}

	require.NoError(t, Save(dir, c1))

	c2, err := ReadOrCreate(dir)
	require.NoError(t, err)
	assert.Equal(t, c1.Workers, c2.Workers)
	assert.Equal(t, c1.Threshold, c2.Threshold)
	assert.Equal(t, "http://gpu-2:8000", c2.EndpointFor("roberta"))
	assert.Equal(t, DefaultEndpoint, c2.EndpointFor("bert"))
}

func TestReadOrCreate_KeepsDefaultsForMissingKeys(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte("workers: 2\npredictor:\n  timeout: 5s\n"), 0600))

	c, err := ReadOrCreate(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Workers)
	assert.Equal(t, 5*time.Second, c.Predictor.Timeout)
	assert.Equal(t, DefaultEndpoint, c.Predictor.Endpoint)
	assert.Equal(t, "sqlite", c.Database.Driver)
}

func TestReadOrCreate_Invalid(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte("threshold: 1.5\n"), 0600))
	_, err := ReadOrCreate(dir)
	assert.ErrorIs(t, err, bias.ErrInvalidArgument)

	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte("mode: loose\n"), 0600))
	_, err = ReadOrCreate(dir)
	assert.ErrorIs(t, err, bias.ErrInvalidArgument)

	_, err = ReadOrCreate("")
	assert.Error(t, err)
}

func TestReadOrCreate_CreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "app")
	_, err := ReadOrCreate(dir)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, configFileName))
	assert.NoError(t, err)
}

func TestSave_Validation(t *testing.T) {
	assert.Error(t, Save("", Default()))
	assert.Error(t, Save(t.TempDir(), nil))
}

func TestGetOrCreateHomeDir(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	dir, created, err := GetOrCreateHomeDir("biasprobe-test")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, ".biasprobe-test", filepath.Base(dir))

	_, created, err = GetOrCreateHomeDir("biasprobe-test")
	require.NoError(t, err)
	assert.False(t, created)

	_, _, err = GetOrCreateHomeDir("")
	assert.Error(t, err)
}
