// Package resolver merges a job descriptor with the process settings and
// the hardcoded default table into one fully resolved job. Resolution is
// a pure function of its inputs; the only external input is "today",
// which callers pass in explicitly.
package resolver

import (
	"path/filepath"
	"strings"
	"time"

	"alphabuddy/internal/config"
	"alphabuddy/internal/models"
)

// Hardcoded fallbacks applied when neither the descriptor nor the
// settings provide a value.
const (
	defaultDockerUser    = "root"
	defaultOutputDir     = "./results"
	defaultModelPreset   = models.PresetMonomer
	defaultModelsToRelax = models.RelaxBest
	defaultNumMultimer   = 5

	dateLayout = "2006-01-02"
)

// Resolve produces a ResolvedJob from settings plus one descriptor.
// source is the descriptor file path; its base name is the fallback job
// name. now supplies the max_template_date default.
func Resolve(s *config.Settings, d *models.Descriptor, source string, now time.Time) (*models.ResolvedJob, error) {
	if len(d.Sequences) == 0 {
		return nil, models.NewConfigError(models.MissingMandatory, "sequences", "a non-empty sequences mapping is mandatory")
	}
	for id, seq := range d.Sequences {
		if strings.TrimSpace(seq) == "" {
			return nil, models.NewConfigError(models.MissingMandatory, "sequences."+id, "sequence must be a non-empty string")
		}
	}

	version, vc, err := resolveVersion(s, d)
	if err != nil {
		return nil, err
	}

	preset := stringOr(d.ModelPreset, defaultModelPreset)
	if preset != models.PresetMonomer && preset != models.PresetMultimer {
		return nil, models.NewConfigError(models.InvalidEnum, "model_preset", "unknown preset %q", preset)
	}

	relax := stringOr(d.ModelsToRelax, defaultModelsToRelax)
	if relax != models.RelaxBest && relax != models.RelaxAll && relax != models.RelaxNone {
		return nil, models.NewConfigError(models.InvalidEnum, "models_to_relax", "unknown value %q", relax)
	}

	templateDate := stringOr(d.MaxTemplateDate, now.Format(dateLayout))
	if _, err := time.Parse(dateLayout, templateDate); err != nil {
		return nil, models.NewConfigError(models.InvalidDate, "max_template_date", "%q does not parse as YYYY-MM-DD", templateDate)
	}

	name := stringOr(d.Name, baseName(source))

	outputDir := defaultOutputDir
	if s.OutputDir != "" {
		outputDir = s.OutputDir
	}
	if d.OutputDir != nil && *d.OutputDir != "" {
		outputDir = *d.OutputDir
	}

	dockerUser := defaultDockerUser
	if s.DockerUser != "" {
		dockerUser = s.DockerUser
	}

	urgent := false
	if d.Urgent != nil {
		urgent = *d.Urgent
	}

	numMultimer := defaultNumMultimer
	if d.NumMultimerPredictionsPerModel != nil {
		numMultimer = *d.NumMultimerPredictionsPerModel
	}

	return &models.ResolvedJob{
		Name:                           name,
		Version:                        version,
		VersionConfig:                  vc,
		Sequences:                      d.Sequences,
		Urgent:                         urgent,
		ModelPreset:                    preset,
		NumMultimerPredictionsPerModel: numMultimer,
		ModelsToRelax:                  relax,
		MaxTemplateDate:                templateDate,
		OutputDir:                      outputDir,
		DockerUser:                     dockerUser,
		Alphaplots:                     d.Alphaplots,
	}, nil
}

func resolveVersion(s *config.Settings, d *models.Descriptor) (string, models.VersionConfig, error) {
	var name string
	if d.Version != nil && *d.Version != "" {
		name = *d.Version
		if _, ok := s.Versions[name]; !ok {
			return "", models.VersionConfig{}, models.NewConfigError(models.UnknownVersion, "version", "version %q is not in the settings", name)
		}
	} else {
		def, ok := s.DefaultVersion()
		if !ok {
			return "", models.VersionConfig{}, models.NewConfigError(models.NoDefaultVersion, "version", "no default version configured and the job names none")
		}
		name = def
	}

	vc := s.Versions[name]
	if vc.Path == "" {
		return "", models.VersionConfig{}, models.NewConfigError(models.MissingMandatory, "versions."+name+".path", "a path has to be provided")
	}
	if vc.Venv == "" {
		return "", models.VersionConfig{}, models.NewConfigError(models.MissingMandatory, "versions."+name+".venv", "a venv has to be provided")
	}
	if vc.DataDir == "" {
		return "", models.VersionConfig{}, models.NewConfigError(models.MissingMandatory, "versions."+name+".data_dir", "a data_dir has to be provided")
	}
	return name, vc, nil
}

func baseName(source string) string {
	base := filepath.Base(source)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func stringOr(v *string, def string) string {
	if v != nil && *v != "" {
		return *v
	}
	return def
}
