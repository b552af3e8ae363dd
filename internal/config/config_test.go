package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  log_level: debug
strategies:
  - class: DoubleMa
    name: dm_rb
    vt_symbol: rb2505.SHFE
    setting:
      fast_window: 5
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, 1, cfg.App.TimerIntervalSec)
	assert.Equal(t, "file", cfg.Store.Driver)
	assert.Equal(t, 5, cfg.Ledger.TimerInterval)
	assert.Equal(t, 20, cfg.Market.CutoverHour)

	require.Len(t, cfg.Strategies, 1)
	assert.Equal(t, "PAPER", cfg.Strategies[0].Gateway, "default gateway filled in")
	assert.EqualValues(t, 5, cfg.Strategies[0].Setting["fast_window"])
}

func TestLoadRejectsBadConfig(t *testing.T) {
	t.Run("bad store driver", func(t *testing.T) {
		_, err := Load(writeConfig(t, "store:\n  driver: redis\n"))
		assert.Error(t, err)
	})

	t.Run("strategy without venue suffix", func(t *testing.T) {
		_, err := Load(writeConfig(t, `
strategies:
  - class: DoubleMa
    name: dm
    vt_symbol: rb2505
`))
		assert.Error(t, err)
	})

	t.Run("duplicate strategy name", func(t *testing.T) {
		_, err := Load(writeConfig(t, `
strategies:
  - {class: DoubleMa, name: dm, vt_symbol: rb2505.SHFE}
  - {class: Macd, name: dm, vt_symbol: rb2505.SHFE}
`))
		assert.Error(t, err)
	})

	t.Run("paper gateway without contract table", func(t *testing.T) {
		_, err := Load(writeConfig(t, "paper:\n  enabled: true\n"))
		assert.Error(t, err)
	})

	t.Run("bad hot contract", func(t *testing.T) {
		_, err := Load(writeConfig(t, "market:\n  hot_contracts:\n    RB: rb2510\n"))
		assert.Error(t, err)
	})

	t.Run("contract code in the wrong case for the venue", func(t *testing.T) {
		_, err := Load(writeConfig(t, `
strategies:
  - {class: DoubleMa, name: dm, vt_symbol: RB2505.SHFE}
`))
		assert.Error(t, err, "SHFE codes are lower case")
	})

	t.Run("czce code with four date digits", func(t *testing.T) {
		_, err := Load(writeConfig(t, `
strategies:
  - {class: Macd, name: ta, vt_symbol: TA2505.CZCE}
`))
		assert.Error(t, err, "CZCE drops the tens digit of the year")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestLoadCommissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commissions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
commissions:
  RB:
    open_rate: 0.0001
    close_flat: 2
`), 0o644))

	table, err := LoadCommissions(path)
	require.NoError(t, err)
	require.Contains(t, table, "RB")
	assert.Equal(t, 0.0001, table["RB"].OpenRate)
	assert.Equal(t, 2.0, table["RB"].CloseFlat)

	empty, err := LoadCommissions("")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
