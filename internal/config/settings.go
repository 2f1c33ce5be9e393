package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"alphabuddy/internal/models"
)

// Settings is the process-wide job configuration, read once at startup
// from settings.yaml and immutable for the run.
type Settings struct {
	DockerUser string                          `yaml:"docker_user"`
	OutputDir  string                          `yaml:"output_dir"`
	Versions   map[string]models.VersionConfig `yaml:"versions"`
	Alphaplots *AlphaplotsConfig               `yaml:"alphaplots"`
}

// AlphaplotsConfig locates the optional post-processing tool. An empty
// Venv means the tool runs without an isolated environment.
type AlphaplotsConfig struct {
	Path string `yaml:"path"`
	Venv string `yaml:"venv"`
}

// LoadSettings reads and validates settings.yaml. Any error here is fatal
// for the process, not for a job.
func LoadSettings(path string) (*Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	var s Settings
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate enforces the settings invariants: versions non-empty, the
// mandatory fields present on every version, and at most one default.
func (s *Settings) Validate() error {
	if len(s.Versions) == 0 {
		return models.NewConfigError(models.MissingMandatory, "versions", "at least one version must be configured")
	}
	defaults := 0
	for name, v := range s.Versions {
		if v.Path == "" {
			return models.NewConfigError(models.MissingMandatory, "versions."+name+".path", "a path has to be provided")
		}
		if v.Venv == "" {
			return models.NewConfigError(models.MissingMandatory, "versions."+name+".venv", "a venv has to be provided")
		}
		if v.DataDir == "" {
			return models.NewConfigError(models.MissingMandatory, "versions."+name+".data_dir", "a data_dir has to be provided")
		}
		if v.Default {
			defaults++
		}
	}
	if defaults > 1 {
		return models.NewConfigError(models.AmbiguousDefault, "versions", "%d versions are marked default, want at most one", defaults)
	}
	return nil
}

// DefaultVersion returns the name of the default version. A sole version
// is implicitly the default even without the flag.
func (s *Settings) DefaultVersion() (string, bool) {
	if len(s.Versions) == 1 {
		for name := range s.Versions {
			return name, true
		}
	}
	for name, v := range s.Versions {
		if v.Default {
			return name, true
		}
	}
	return "", false
}
