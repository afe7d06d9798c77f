package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/tagforge/tagforge/pkg/types"
)

// Settings is the full application configuration.
type Settings struct {
	// LogLevel is the minimum log level (DEBUG/INFO/WARN/ERROR).
	LogLevel string `json:"logLevel,omitempty"`

	// DataDir overrides the default session data directory.
	DataDir string `json:"dataDir,omitempty"`

	// Profiles are the configured provider bindings.
	Profiles []types.AgentProfile `json:"profiles,omitempty"`

	// ActiveProfile names the profile selected on startup.
	ActiveProfile string `json:"activeProfile,omitempty"`

	// Personas configured inline; personas.yaml entries are merged on top.
	Personas []types.Persona `json:"personas,omitempty"`

	// LastPersona names the persona restored on startup.
	LastPersona string `json:"lastPersona,omitempty"`
}

// Load loads configuration from multiple sources (priority order):
//  1. Global config (~/.config/tagforge/tagforge.json or .jsonc)
//  2. Directory-local config (tagforge.json in the given directory)
//  3. personas.yaml from the config directory
//  4. Environment variables (highest priority)
func Load(directory string) (*Settings, error) {
	settings := &Settings{}

	loaded := make(map[string]bool)
	loadOnce := func(path string) {
		absPath, err := filepath.Abs(path)
		if err != nil || loaded[absPath] {
			return
		}
		if loadFile(path, settings) == nil {
			loaded[absPath] = true
		}
	}

	globalDir := GetPaths().Config
	loadOnce(filepath.Join(globalDir, "tagforge.json"))
	loadOnce(filepath.Join(globalDir, "tagforge.jsonc"))

	if directory != "" {
		loadOnce(filepath.Join(directory, "tagforge.json"))
		loadOnce(filepath.Join(directory, "tagforge.jsonc"))
	}

	if personas, err := LoadPersonas(GetPaths().PersonasPath()); err == nil {
		settings.Personas = mergePersonas(settings.Personas, personas)
	}

	applyEnvOverrides(settings)

	return settings, nil
}

// loadFile merges a single JSONC config file into settings.
func loadFile(path string, settings *Settings) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	data = jsonc.ToJSON(data)

	var layer Settings
	if err := json.Unmarshal(data, &layer); err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}

	merge(settings, &layer)
	return nil
}

// merge copies non-zero fields of layer onto base. Later layers win.
func merge(base, layer *Settings) {
	if layer.LogLevel != "" {
		base.LogLevel = layer.LogLevel
	}
	if layer.DataDir != "" {
		base.DataDir = layer.DataDir
	}
	if len(layer.Profiles) > 0 {
		base.Profiles = layer.Profiles
	}
	if layer.ActiveProfile != "" {
		base.ActiveProfile = layer.ActiveProfile
	}
	if len(layer.Personas) > 0 {
		base.Personas = layer.Personas
	}
	if layer.LastPersona != "" {
		base.LastPersona = layer.LastPersona
	}
}

// LoadPersonas reads a persona definitions YAML file.
func LoadPersonas(path string) ([]types.Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc struct {
		Personas []types.Persona `yaml:"personas"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid personas file %s: %w", path, err)
	}

	return doc.Personas, nil
}

// mergePersonas overlays extras onto base, matching by name.
func mergePersonas(base, extras []types.Persona) []types.Persona {
	byName := make(map[string]int, len(base))
	for i, p := range base {
		byName[p.Name] = i
	}

	for _, p := range extras {
		if i, ok := byName[p.Name]; ok {
			base[i] = p
		} else {
			base = append(base, p)
		}
	}

	return base
}

// applyEnvOverrides applies TAGFORGE_* environment variables.
func applyEnvOverrides(settings *Settings) {
	if v := os.Getenv("TAGFORGE_LOG_LEVEL"); v != "" {
		settings.LogLevel = v
	}
	if v := os.Getenv("TAGFORGE_DATA_DIR"); v != "" {
		settings.DataDir = v
	}
	if v := os.Getenv("TAGFORGE_ACTIVE_PROFILE"); v != "" {
		settings.ActiveProfile = v
	}
}

// FindProfile returns the named profile, or the first one when name is empty.
func (s *Settings) FindProfile(name string) (*types.AgentProfile, bool) {
	if name == "" {
		if len(s.Profiles) == 0 {
			return nil, false
		}
		return &s.Profiles[0], true
	}
	for i := range s.Profiles {
		if s.Profiles[i].Name == name {
			return &s.Profiles[i], true
		}
	}
	return nil, false
}

// FindPersona returns the named persona, or the first one when name is empty.
func (s *Settings) FindPersona(name string) (*types.Persona, bool) {
	if name == "" {
		if len(s.Personas) == 0 {
			return nil, false
		}
		return &s.Personas[0], true
	}
	for i := range s.Personas {
		if s.Personas[i].Name == name {
			return &s.Personas[i], true
		}
	}
	return nil, false
}
