package resolver

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"alphabuddy/internal/config"
	"alphabuddy/internal/models"
)

var today = time.Date(2024, 5, 17, 12, 0, 0, 0, time.UTC)

func singleVersionSettings() *config.Settings {
	return &config.Settings{
		Versions: map[string]models.VersionConfig{
			"v1": {Path: "/opt/af", Venv: "/opt/venv", DataDir: "/data"},
		},
	}
}

func strp(s string) *string { return &s }
func boolp(b bool) *bool    { return &b }

func TestResolveAppliesHardcodedDefaults(t *testing.T) {
	s := singleVersionSettings()
	d := &models.Descriptor{Sequences: map[string]string{"a": "MGHK"}}

	job, err := Resolve(s, d, "/watch/input/myprotein.yaml", today)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if job.Name != "myprotein" {
		t.Errorf("name = %q, want descriptor basename", job.Name)
	}
	if job.Version != "v1" {
		t.Errorf("version = %q, want sole version v1", job.Version)
	}
	if job.ModelPreset != models.PresetMonomer {
		t.Errorf("model_preset = %q, want monomer", job.ModelPreset)
	}
	if job.NumMultimerPredictionsPerModel != 5 {
		t.Errorf("num_multimer_predictions_per_model = %d, want 5", job.NumMultimerPredictionsPerModel)
	}
	if job.ModelsToRelax != models.RelaxBest {
		t.Errorf("models_to_relax = %q, want best", job.ModelsToRelax)
	}
	if job.Urgent {
		t.Error("urgent should default to false")
	}
	if job.OutputDir != "./results" {
		t.Errorf("output_dir = %q, want ./results", job.OutputDir)
	}
	if job.DockerUser != "root" {
		t.Errorf("docker_user = %q, want root", job.DockerUser)
	}
	if job.MaxTemplateDate != "2024-05-17" {
		t.Errorf("max_template_date = %q, want today", job.MaxTemplateDate)
	}
}

func TestResolveDescriptorOverridesSettings(t *testing.T) {
	s := singleVersionSettings()
	s.DockerUser = "afuser"
	s.OutputDir = "/srv/results"
	d := &models.Descriptor{
		Name:            strp("custom"),
		OutputDir:       strp("/scratch/out"),
		Urgent:          boolp(true),
		ModelPreset:     strp(models.PresetMultimer),
		ModelsToRelax:   strp(models.RelaxNone),
		MaxTemplateDate: strp("2022-01-01"),
		Sequences:       map[string]string{"a": "MGHK"},
	}

	job, err := Resolve(s, d, "/watch/input/file.yaml", today)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if job.Name != "custom" || job.OutputDir != "/scratch/out" || !job.Urgent {
		t.Errorf("descriptor values not preferred: %+v", job)
	}
	if job.ModelPreset != models.PresetMultimer || job.ModelsToRelax != models.RelaxNone {
		t.Errorf("enum overrides not applied: %+v", job)
	}
	if job.MaxTemplateDate != "2022-01-01" {
		t.Errorf("max_template_date = %q", job.MaxTemplateDate)
	}
	// docker_user is settings-scoped, not a descriptor field.
	if job.DockerUser != "afuser" {
		t.Errorf("docker_user = %q, want settings value", job.DockerUser)
	}
}

func TestResolveSettingsOutputDirBeatsFallback(t *testing.T) {
	s := singleVersionSettings()
	s.OutputDir = "/srv/results"
	d := &models.Descriptor{Sequences: map[string]string{"a": "MGHK"}}
	job, err := Resolve(s, d, "/watch/input/x.yaml", today)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if job.OutputDir != "/srv/results" {
		t.Errorf("output_dir = %q, want settings value", job.OutputDir)
	}
}

func TestResolveMissingSequences(t *testing.T) {
	cases := map[string]*models.Descriptor{
		"absent": {},
		"empty":  {Sequences: map[string]string{}},
		"blank":  {Sequences: map[string]string{"a": "  "}},
	}
	for name, d := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Resolve(singleVersionSettings(), d, "x.yaml", today)
			assertConfigError(t, err, models.MissingMandatory)
		})
	}
}

func TestResolveUnknownVersion(t *testing.T) {
	d := &models.Descriptor{
		Version:   strp("v9"),
		Sequences: map[string]string{"a": "MGHK"},
	}
	_, err := Resolve(singleVersionSettings(), d, "x.yaml", today)
	assertConfigError(t, err, models.UnknownVersion)
}

func TestResolveNoDefaultAmongSeveralVersions(t *testing.T) {
	s := &config.Settings{
		Versions: map[string]models.VersionConfig{
			"v1": {Path: "/a", Venv: "/b", DataDir: "/c"},
			"v2": {Path: "/a", Venv: "/b", DataDir: "/c"},
		},
	}
	d := &models.Descriptor{Sequences: map[string]string{"a": "MGHK"}}
	_, err := Resolve(s, d, "x.yaml", today)
	assertConfigError(t, err, models.NoDefaultVersion)

	s.Versions["v2"] = models.VersionConfig{Path: "/a", Venv: "/b", DataDir: "/c", Default: true}
	job, err := Resolve(s, d, "x.yaml", today)
	if err != nil {
		t.Fatalf("resolve with default: %v", err)
	}
	if job.Version != "v2" {
		t.Errorf("version = %q, want declared default v2", job.Version)
	}
}

func TestResolveIncompleteVersionConfig(t *testing.T) {
	s := &config.Settings{
		Versions: map[string]models.VersionConfig{
			"v1": {Path: "/a", Venv: "/b"}, // data_dir missing
		},
	}
	d := &models.Descriptor{Sequences: map[string]string{"a": "MGHK"}}
	_, err := Resolve(s, d, "x.yaml", today)
	assertConfigError(t, err, models.MissingMandatory)
}

func TestResolveInvalidEnum(t *testing.T) {
	d := &models.Descriptor{
		ModelPreset: strp("trimer"),
		Sequences:   map[string]string{"a": "MGHK"},
	}
	_, err := Resolve(singleVersionSettings(), d, "x.yaml", today)
	assertConfigError(t, err, models.InvalidEnum)

	d = &models.Descriptor{
		ModelsToRelax: strp("some"),
		Sequences:     map[string]string{"a": "MGHK"},
	}
	_, err = Resolve(singleVersionSettings(), d, "x.yaml", today)
	assertConfigError(t, err, models.InvalidEnum)
}

func TestResolveInvalidDate(t *testing.T) {
	d := &models.Descriptor{
		MaxTemplateDate: strp("17.05.2024"),
		Sequences:       map[string]string{"a": "MGHK"},
	}
	_, err := Resolve(singleVersionSettings(), d, "x.yaml", today)
	assertConfigError(t, err, models.InvalidDate)
}

func TestResolveIsDeterministic(t *testing.T) {
	s := singleVersionSettings()
	d := &models.Descriptor{Sequences: map[string]string{"a": "MGHK", "b": "WYR"}}
	first, err := Resolve(s, d, "/in/job.yaml", today)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := Resolve(s, d, "/in/job.yaml", today)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("resolution differed between runs:\n%+v\n%+v", first, second)
	}
}

func assertConfigError(t *testing.T, err error, kind models.ConfigErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatal("expected a config error, got nil")
	}
	var ce *models.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %T: %v", err, err)
	}
	if ce.Kind != kind {
		t.Fatalf("kind = %s, want %s (%v)", ce.Kind, kind, err)
	}
}
