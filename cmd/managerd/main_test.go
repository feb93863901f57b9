package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmdHasServeAndVersionSubcommands(t *testing.T) {
	root := rootCmd()
	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "version")
}

func TestVersionCommandPrintsVersionInfo(t *testing.T) {
	root := rootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "managerd version")
}

func TestServeCommandHasLogJSONFlagDefaultFalse(t *testing.T) {
	cmd := serveCmd()
	assert.Equal(t, "serve", cmd.Use)
	jsonFlag := cmd.Flags().Lookup("log-json")
	require.NotNil(t, jsonFlag)
	assert.Equal(t, "false", jsonFlag.DefValue)
}
