package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigDir(t *testing.T) {
	dir, err := DefaultConfigDir()
	require.NoError(t, err)

	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, ".agentrun"), dir)
}

func TestDefaultConfigPath(t *testing.T) {
	path, err := DefaultConfigPath()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, filepath.Join(".agentrun", "config.yaml")))
}

func TestDefaultDataPath(t *testing.T) {
	path, err := DefaultDataPath()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, filepath.Join(".agentrun", "agentrun.db")))
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty path", "", ""},
		{"tilde only", "~", home},
		{"tilde prefix", "~/transcripts/a.jsonl", filepath.Join(home, "transcripts", "a.jsonl")},
		{"absolute", "/tmp/x.yaml", "/tmp/x.yaml"},
		{"relative", "x/y", "x/y"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandPath(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestResolveRelative(t *testing.T) {
	Reset()
	defer Reset()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("log:\n  level: debug\n"), 0600))
	_, err := Load(cfgPath)
	require.NoError(t, err)

	got, err := ResolveRelative("transcripts/demo.jsonl")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "transcripts", "demo.jsonl"), got)

	got, err = ResolveRelative("/abs/demo.jsonl")
	require.NoError(t, err)
	assert.Equal(t, "/abs/demo.jsonl", got)
}
