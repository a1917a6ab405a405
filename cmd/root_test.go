package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"run", "resolve", "serve", "runs", "tickers", "cache", "migrate"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "edgar-metrics", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRunCommand_Flags(t *testing.T) {
	for _, name := range []string{"cik", "ticker", "sp500", "fy", "limit", "workers", "metrics", "skip-derived", "out", "ttl", "xlsx", "suggestions", "no-store", "no-export", "json"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), "run should have --%s flag", name)
	}
	assert.Nil(t, runCmd.Flags().Lookup("facts"), "run reads from EDGAR only")
}

func TestResolveCommand_Flags(t *testing.T) {
	for _, name := range []string{"facts", "facts-dir", "fy", "metrics", "out"} {
		assert.NotNil(t, resolveCmd.Flags().Lookup(name), "resolve should have --%s flag", name)
	}
	assert.Nil(t, resolveCmd.Flags().Lookup("sp500"))
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range runsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "show", "stats"} {
		assert.True(t, names[name], "runs should have subcommand %q", name)
	}

	flag := runsListCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "50", flag.DefValue)
}

func TestCacheCommand_HasPrune(t *testing.T) {
	require.Len(t, cacheCmd.Commands(), 1)
	assert.Equal(t, "prune", cacheCmd.Commands()[0].Name())
}

func TestRootCommand_PersistentFlags(t *testing.T) {
	for _, name := range []string{"log-level", "refresh"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), "root should have --%s flag", name)
	}
}
