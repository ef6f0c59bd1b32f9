package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequiresMeshCredentials(t *testing.T) {
	cmd := newCommand(&options{})
	cmd.SetArgs([]string{"--mesh-prefix", "myMesh"})
	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "mesh password")
}

func TestRejectsBadLogLevel(t *testing.T) {
	cmd := newCommand(&options{})
	cmd.SetArgs([]string{"--log-level", "chatty"})
	require.Error(t, cmd.ExecuteContext(context.Background()))
}
