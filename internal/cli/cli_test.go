package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the root command with args and returns its output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		configFile, logLevel = "", ""
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

// newTestHome points CATALOGDAO_HOME at a temp dir.
func newTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("CATALOGDAO_HOME", home)
	return home
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "catalogd ")
}

func TestConfigInitAndShow(t *testing.T) {
	home := newTestHome(t)
	cfgPath := filepath.Join(home, "config.toml")

	out, err := run(t, "config", "init", "--force=false")
	require.NoError(t, err)
	assert.Contains(t, out, cfgPath)
	_, err = os.Stat(cfgPath)
	require.NoError(t, err)

	_, err = run(t, "config", "init", "--force=false")
	assert.Error(t, err, "init must not overwrite")

	out, err = run(t, "config", "show", "--log-level", "debug")
	require.NoError(t, err)
	assert.Contains(t, out, "[governance]")
	assert.Contains(t, out, `level = "debug"`)
}

func TestGenesisInitAndShow(t *testing.T) {
	home := newTestHome(t)
	path := filepath.Join(home, "genesis.yaml")

	_, err := run(t, "genesis", "init", "--force=false", "--admin", "alice", "--file", path)
	require.NoError(t, err)

	out, err := run(t, "genesis", "show", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "admin: alice")
}

func TestOpAndStatus_Persist(t *testing.T) {
	home := newTestHome(t)
	genesis := filepath.Join(home, "genesis.yaml")
	require.NoError(t, os.WriteFile(genesis, []byte("admin: alice\n"), 0o644))
	t.Setenv("CATALOGDAO_STORAGE_GENESIS", genesis)

	out, err := run(t, "op", "admin.poll_period", "--as", "alice", "--args", `{"family":"listing","period":5}`)
	require.NoError(t, err)
	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "admin.poll_period", res["kind"])

	out, err = run(t, "status")
	require.NoError(t, err)
	var status map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.EqualValues(t, 1, status["applied_operations"])
}

func TestOp_Refused(t *testing.T) {
	newTestHome(t)

	_, err := run(t, "op", "admin.poll_period", "--as", "mallory", "--args", `{"family":"listing","period":5}`)
	assert.Error(t, err)

	_, err = run(t, "op", "staking.stake", "--as", "alice", "--args", `{not json`)
	assert.Error(t, err)
}
