package handler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidOutputDir(t *testing.T) {
	for _, dir := range []string{"", "batch_a", "2026/batch_a", "a/b/c"} {
		require.True(t, validOutputDir(dir), "dir %q", dir)
	}
	for _, dir := range []string{"/abs", "../up", "a/../b", "a//b", ".", "..", "a\\b", "a/"} {
		require.False(t, validOutputDir(dir), "dir %q", dir)
	}
}
