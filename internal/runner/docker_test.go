package runner

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"alphabuddy/internal/models"
)

func testJob(outputDir string) *models.ResolvedJob {
	return &models.ResolvedJob{
		Name:    "prot1",
		Version: "v1",
		VersionConfig: models.VersionConfig{
			Path:    "/opt/alphafold",
			Venv:    "/opt/venvs/af",
			DataDir: "/data/af",
		},
		Sequences:                      map[string]string{"b": "WYR", "a": "MGHK"},
		ModelPreset:                    models.PresetMonomer,
		NumMultimerPredictionsPerModel: 5,
		ModelsToRelax:                  models.RelaxBest,
		MaxTemplateDate:                "2024-05-17",
		OutputDir:                      outputDir,
		DockerUser:                     "root",
	}
}

func TestWriteFasta(t *testing.T) {
	dir := t.TempDir()
	job := testJob(dir)
	if err := writeFasta(job); err != nil {
		t.Fatalf("write fasta: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "prot1", "prot1.fasta"))
	if err != nil {
		t.Fatalf("fasta missing: %v", err)
	}
	// Keys are written sorted so reruns produce identical files.
	want := ">a\nMGHK\n>b\nWYR\n"
	if string(raw) != want {
		t.Errorf("fasta = %q, want %q", raw, want)
	}
}

func TestCommandArguments(t *testing.T) {
	job := testJob("/srv/results")
	python, args := command(job)

	if python != "/opt/venvs/af/bin/python3" {
		t.Errorf("interpreter = %q", python)
	}
	if args[0] != "/opt/alphafold/alphafold-main/docker/run_docker.py" {
		t.Errorf("script = %q", args[0])
	}
	joined := strings.Join(args, " ")
	for _, want := range []string{
		"--max_template_date=2024-05-17",
		"--data_dir=/data/af",
		"--docker_user=root",
		"--output_dir=/srv/results",
		"--fasta_paths=/srv/results/prot1/prot1.fasta",
		"--model_preset=monomer",
		"--num_multimer_predictions_per_model=5",
		"--models_to_relax=best",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing argument %q in %q", want, joined)
		}
	}
	if strings.Contains(joined, "docker_image_name") {
		t.Errorf("docker_image_name passed without being configured")
	}

	job.VersionConfig.DockerImageName = "alphafold:2.3"
	_, args = command(job)
	if !strings.Contains(strings.Join(args, " "), "--docker_image_name=alphafold:2.3") {
		t.Errorf("docker_image_name not passed through")
	}
}

func TestWriteDetails(t *testing.T) {
	dir := t.TempDir()
	job := testJob(dir)
	resultPath := filepath.Join(dir, job.Name)
	if err := os.MkdirAll(resultPath, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := writeDetails(job, resultPath); err != nil {
		t.Fatalf("write details: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(resultPath, detailsFileName))
	if err != nil {
		t.Fatalf("details missing: %v", err)
	}
	for _, want := range []string{"name: prot1", "version: v1", "max_template_date: 2024-05-17", "sequence a: MGHK"} {
		if !strings.Contains(string(raw), want) {
			t.Errorf("details missing %q:\n%s", want, raw)
		}
	}
}
