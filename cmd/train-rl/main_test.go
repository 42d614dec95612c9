package main

import (
	"path/filepath"
	"testing"

	"github.com/avstack-dev/drivekit/internal/config"
	"github.com/avstack-dev/drivekit/internal/data"
	"github.com/avstack-dev/drivekit/internal/datagen"
	"github.com/avstack-dev/drivekit/internal/rl"
	"github.com/avstack-dev/drivekit/internal/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envConfig() *config.Config {
	cfg := config.Default()
	cfg.ModelParams.HistoryNumFrames = 1
	cfg.ModelParams.MaxAgents = 2
	cfg.ModelParams.MaxMapElements = 0
	return cfg
}

func TestBuildEnvsRoundRobin(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "rl.chunked")
	p := datagen.DefaultParams()
	p.NumScenes = 2
	p.FramesPerScene = 20
	require.NoError(t, datagen.Generate(dir, p))
	ds, err := data.OpenChunked(dir)
	require.NoError(t, err)
	t.Cleanup(ds.Close)

	cfg := envConfig()
	vec := vector.New(cfg.ModelParams, nil)
	envs, err := buildEnvs(ds, vec, rl.DefaultRewardParams(), 4, 1, 5, 0.5)
	require.NoError(t, err)
	assert.Len(t, envs, 4)
}

func TestBuildEnvsEmptyDataset(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "empty.chunked")
	w, err := data.NewWriter(dir, 0)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	ds, err := data.OpenChunked(dir)
	require.NoError(t, err)
	t.Cleanup(ds.Close)

	cfg := envConfig()
	vec := vector.New(cfg.ModelParams, nil)
	_, err = buildEnvs(ds, vec, rl.DefaultRewardParams(), 2, 1, 5, 0.5)
	assert.Error(t, err)
}
