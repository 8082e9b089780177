package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func quietConfig(t *testing.T, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nxipc.toml")
	require.NoError(t, os.WriteFile(path, []byte(extra+"[log]\nlevel = \"error\"\n"), 0o644))
	return path
}

func TestVersionCommand(t *testing.T) {
	cfg := quietConfig(t, "system_version = \"12.1.0\"\n")
	out, err := run(t, "", "--config", cfg, "version")
	require.NoError(t, err)
	assert.Equal(t, "12.1.0 (sm speaks tipc)\n", strings.ToLower(out))
}

func TestCallCommand(t *testing.T) {
	for _, v := range []string{"11.0.0", "13.0.0"} {
		t.Run(v, func(t *testing.T) {
			cfg := quietConfig(t, "system_version = \""+v+"\"\n")
			out, err := run(t, "", "--config", cfg, "call", "--domain", "--echo", "ping", "40", "2")
			require.NoError(t, err)
			assert.Contains(t, out, "add(40, 2) = 42")
			assert.Contains(t, out, `echo("ping") = "ping"`)
			assert.Contains(t, out, "counter = 3")
			assert.Contains(t, out, "limit = 0x100000")
		})
	}
}

func TestDissectCommand(t *testing.T) {
	cfg := quietConfig(t, "")
	example, err := run(t, "", "--config", cfg, "dissect", "--example")
	require.NoError(t, err)
	assert.NotEmpty(t, example)

	// A bare TIPC header: type 16 (request 0), no descriptors.
	out, err := run(t, "10 00 00 00 00 00 00 00", "--config", cfg, "dissect", "-p", "tipc")
	require.NoError(t, err)
	assert.NotEmpty(t, out)

	_, err = run(t, "", "--config", cfg, "dissect", "-p", "cmif", "zz")
	assert.Error(t, err)
	_, err = run(t, "", "--config", cfg, "dissect", "-p", "hipc", "00")
	assert.Error(t, err)
}
