package main

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/j-gatsby/biscuit/internal/bootcfg"
)

func TestNewRootCmdWiresSubcommands(t *testing.T) {
	root := newRootCmd()
	want := []string{"boot", "fsck", "version"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		require.Equal(t, name, cmd.Name())
	}
}

func TestVersionCmdPrintsVersion(t *testing.T) {
	old := version
	version = "test-1.2.3"
	defer func() { version = old }()

	out := captureStdout(t, func() {
		cmd := newVersionCmd()
		require.NoError(t, cmd.RunE(cmd, nil))
	})
	require.Equal(t, "test-1.2.3\n", out)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfgFile = ""
	cmd := newBootCmd()
	cfg, err := loadConfig(cmd.Flags())
	require.NoError(t, err)
	require.Equal(t, bootcfg.Default(), cfg)
}

func TestLoadConfigAppliesFlagOverride(t *testing.T) {
	cfgFile = ""
	cmd := newBootCmd()
	require.NoError(t, cmd.Flags().Set("ncpu", "4"))
	cfg, err := loadConfig(cmd.Flags())
	require.NoError(t, err)
	require.Equal(t, 4, cfg.NCPU)
}

func TestFsckCmdReportsAllChecksOK(t *testing.T) {
	cfgFile = ""
	cmd := newFsckCmd()
	out := captureStdout(t, func() {
		require.NoError(t, cmd.RunE(cmd, nil))
	})
	require.Contains(t, out, "ok")
}

func TestRunBootCompletesEndToEnd(t *testing.T) {
	dir := t.TempDir()
	oldwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(oldwd)

	cfg := bootcfg.Default()
	cfg.PhysTopMB = 16
	cfg.NCPU = 1
	cfg.NProc = 8
	cfg.DiskBlocks = 64
	require.NoError(t, runBoot(cfg))
}

// captureStdout redirects os.Stdout for the duration of fn and returns
// everything written to it.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	fn()
	w.Close()
	os.Stdout = old
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}
