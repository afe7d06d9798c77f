package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagforge/tagforge/pkg/types"
)

func TestLoad_DirectoryConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()
	content := `{
		// log everything during tests
		"logLevel": "DEBUG",
		"profiles": [
			{"name": "local", "provider": "ollama", "selectedModel": "llama3"}
		],
		"activeProfile": "local"
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tagforge.jsonc"), []byte(content), 0644))

	settings, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", settings.LogLevel)
	require.Len(t, settings.Profiles, 1)
	assert.Equal(t, "ollama", settings.Profiles[0].Provider)

	profile, ok := settings.FindProfile(settings.ActiveProfile)
	require.True(t, ok)
	assert.Equal(t, "llama3", profile.SelectedModel)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("TAGFORGE_LOG_LEVEL", "ERROR")
	t.Setenv("TAGFORGE_DATA_DIR", "/tmp/tagforge-test")

	settings, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "ERROR", settings.LogLevel)
	assert.Equal(t, "/tmp/tagforge-test", settings.DataDir)
}

func TestLoadPersonas(t *testing.T) {
	dir := t.TempDir()
	content := `personas:
  - name: Tagger
    systemPrompt: "Generate tags for: {input}"
  - name: Assistant
    systemPrompt: You are a helpful AI assistant.
`
	path := filepath.Join(dir, "personas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	personas, err := LoadPersonas(path)
	require.NoError(t, err)
	require.Len(t, personas, 2)

	assert.Equal(t, "Tagger", personas[0].Name)
	assert.Equal(t, "Generate tags for: draw a cat", personas[0].Render("draw a cat"))
	assert.Equal(t, "You are a helpful AI assistant.", personas[1].Render("ignored"))
}

func TestFindPersona_DefaultsToFirst(t *testing.T) {
	settings := &Settings{}
	_, ok := settings.FindPersona("")
	assert.False(t, ok)

	settings.Personas = []types.Persona{
		{Name: "Tagger", SystemPrompt: "tags"},
		{Name: "Assistant", SystemPrompt: "chat"},
	}
	persona, ok := settings.FindPersona("")
	require.True(t, ok)
	assert.Equal(t, "Tagger", persona.Name)

	persona, ok = settings.FindPersona("Assistant")
	require.True(t, ok)
	assert.Equal(t, "chat", persona.SystemPrompt)
}
