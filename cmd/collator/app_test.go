package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRegistersAmbientAndDomainFlags(t *testing.T) {
	t.Parallel()

	cmd := New()

	assert.Equal(t, "collator", cmd.Name)

	names := make(map[string]bool, len(cmd.Flags))
	for _, f := range cmd.Flags {
		for _, n := range f.Names() {
			names[n] = true
		}
	}

	for _, want := range []string{
		"otel-enabled", "log-level", "otel-grpc-url", "config",
		"input", "catalog", "output", "command",
	} {
		assert.True(t, names[want], "expected flag %q to be registered", want)
	}
}
