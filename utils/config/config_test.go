package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
input:
  network:
    file: network.yaml
control:
  step:
    start: 0
    total: 3600
pss:
  decentral: true
  check_interval: 600
  use_neighbour_streams: false
`

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, 1., c.Control.Step.Interval)
	assert.True(t, c.PSS.Decentral)
	assert.Equal(t, 600., c.PSS.CheckInterval)
	assert.Equal(t, DefaultRecalculateInterval, c.PSS.RecalculateInterval)
	assert.Equal(t, DefaultACTDiff, c.PSS.ACTDiff)
	assert.Equal(t, DefaultPhaseSpacing, c.PSS.PhaseSpacing)
	assert.False(t, c.PSS.UseNeighbourStreamsValue())
	assert.NoError(t, c.Validate())
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("pss:\n  decentrl: true\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		c := Config{
			Input:   Input{Network: InputPath{File: "network.yaml"}},
			Control: Control{Step: ControlStep{Total: 10}},
		}
		c.ApplyDefaults()
		return c
	}
	assert.NoError(t, base().Validate())
	assert.True(t, base().PSS.UseNeighbourStreamsValue())

	c := base()
	c.Control.Step.Total = 0
	assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)

	c = base()
	c.Input.Network.File = ""
	assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)
	c.Input = Input{URI: "mongodb://localhost", Network: InputPath{DB: "sim", Col: "network"}}
	assert.NoError(t, c.Validate())

	c = base()
	c.Output.MongoCol = "updates"
	assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)

	c = base()
	c.PSS.PhaseSpacing = -1
	assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)

	_, err := NewRuntimeConfig(Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoaderFromData(t *testing.T) {
	l, err := NewLoaderFromData(base64.StdEncoding.EncodeToString([]byte(sample)))
	require.NoError(t, err)
	assert.Equal(t, int32(3600), l.Config().Control.Step.Total)

	_, err = NewLoaderFromData("not base64!")
	assert.Error(t, err)

	_, err = l.Watch()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoaderReloadNotifies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	l, err := NewLoader(path)
	require.NoError(t, err)

	var got []Config
	l.OnChange(func(c Config) { got = append(got, c) })

	require.NoError(t, os.WriteFile(path, []byte(sample+"  region: true\n"), 0o644))
	c, err := l.Reload()
	require.NoError(t, err)
	assert.True(t, c.PSS.Region)
	assert.True(t, l.Config().PSS.Region)
	require.Len(t, got, 1)
	assert.True(t, got[0].PSS.Region)

	// 无效的新配置不替换当前配置
	require.NoError(t, os.WriteFile(path, []byte("control: [\n"), 0o644))
	_, err = l.Reload()
	assert.Error(t, err)
	assert.True(t, l.Config().PSS.Region)
	assert.Len(t, got, 1)
}

func TestNewLoaderMissingFile(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
