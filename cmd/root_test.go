package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandRegistration(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"process-batch", "fixup-existing", "migrate", "queue", "import"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestQueueSubcommands(t *testing.T) {
	sub := map[string]bool{}
	for _, c := range queueCmd.Commands() {
		sub[c.Name()] = true
	}

	for _, want := range []string{"list", "approve", "reject", "apply"} {
		assert.True(t, sub[want], "missing queue subcommand %s", want)
	}
}

func TestProcessBatchLimitFlag(t *testing.T) {
	f := processCmd.Flags().Lookup("limit")
	require.NotNil(t, f)
	assert.Equal(t, "0", f.DefValue)
}
