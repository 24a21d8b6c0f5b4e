package cmd

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigInit_WritesProjectConfig(t *testing.T) {
	isolateEnv(t)
	chdir(t, t.TempDir())

	out, err := execute(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, ".vaultrag.yaml")

	data, err := os.ReadFile(".vaultrag.yaml")
	require.NoError(t, err)
	assert.Contains(t, string(data), "backend: file")
	assert.Contains(t, string(data), "provider: ollama")
}

func TestConfigInit_RefusesOverwrite(t *testing.T) {
	isolateEnv(t)
	chdir(t, t.TempDir())

	_, err := execute(t, "config", "init")
	require.NoError(t, err)

	_, err = execute(t, "config", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = execute(t, "config", "init", "--force")
	assert.NoError(t, err)
}

func TestConfigShow_RedactsAPIKey(t *testing.T) {
	isolateEnv(t)
	chdir(t, t.TempDir())
	t.Setenv("VAULTRAG_API_KEY", "sk-super-secret")

	out, err := execute(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "provider: ollama")
	assert.Contains(t, out, "[redacted]")
	assert.NotContains(t, out, "sk-super-secret")
}
