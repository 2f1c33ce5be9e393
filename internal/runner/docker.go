// Package runner launches the containerized prediction tool for one
// resolved job and, when requested, the alphaplots post-processing
// script afterwards. The scheduler only sees the Outcome; everything
// about process invocation stays in here.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"

	"alphabuddy/internal/config"
	"alphabuddy/internal/logger"
	"alphabuddy/internal/models"
)

const detailsFileName = "alphabuddy_job_details.txt"

// DockerRunner shells out to the prediction tool's run_docker.py using
// the python interpreter of the selected version's venv.
type DockerRunner struct {
	alphaplots *config.AlphaplotsConfig
	log        *logger.Logger
}

// New builds a runner. alphaplots may be nil when post-processing is
// not configured.
func New(alphaplots *config.AlphaplotsConfig, log *logger.Logger) *DockerRunner {
	return &DockerRunner{alphaplots: alphaplots, log: log}
}

// Run executes the job synchronously and reports the outcome. It never
// returns an error; failures are encoded in the outcome so the
// scheduler loop cannot be killed by a bad job.
func (r *DockerRunner) Run(ctx context.Context, job *models.ResolvedJob) models.Outcome {
	resultPath := filepath.Join(job.OutputDir, job.Name)
	if err := writeFasta(job); err != nil {
		return models.Outcome{Status: models.OutcomeFailure, Log: err.Error()}
	}

	python, args := command(job)
	cmd := exec.CommandContext(ctx, python, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	r.log.Info("launching prediction", "job", job.Name, "interpreter", python)
	if err := cmd.Run(); err != nil {
		return models.Outcome{
			Status:     models.OutcomeFailure,
			ResultPath: resultPath,
			Log:        fmt.Sprintf("%v\n%s", err, out.String()),
		}
	}

	if err := writeDetails(job, resultPath); err != nil {
		r.log.Warn("could not write job details", "job", job.Name, "error", err)
	}

	outcome := models.Outcome{
		Status:     models.OutcomeSuccess,
		ResultPath: resultPath,
		Log:        out.String(),
	}
	for _, directive := range job.Alphaplots {
		if err := r.postProcess(ctx, directive, resultPath); err != nil {
			pe := &models.PostProcessError{Directive: directive, Err: err}
			outcome.Warnings = append(outcome.Warnings, pe.Error())
		}
	}
	return outcome
}

// command builds the interpreter and argument list for run_docker.py.
// Split out so tests can check the invocation without running anything.
func command(job *models.ResolvedJob) (string, []string) {
	vc := job.VersionConfig
	args := []string{
		filepath.Join(vc.Path, "alphafold-main", "docker", "run_docker.py"),
		"--max_template_date=" + job.MaxTemplateDate,
		"--data_dir=" + vc.DataDir,
		"--docker_user=" + job.DockerUser,
		"--output_dir=" + job.OutputDir,
		"--fasta_paths=" + fastaPath(job),
		"--model_preset=" + job.ModelPreset,
		"--num_multimer_predictions_per_model=" + strconv.Itoa(job.NumMultimerPredictionsPerModel),
		"--models_to_relax=" + job.ModelsToRelax,
	}
	if vc.DockerImageName != "" {
		args = append(args, "--docker_image_name="+vc.DockerImageName)
	}
	return venvPython(vc.Venv), args
}

// postProcess runs one alphaplots directive against the result directory.
func (r *DockerRunner) postProcess(ctx context.Context, directive, resultPath string) error {
	if r.alphaplots == nil || r.alphaplots.Path == "" {
		return fmt.Errorf("alphaplots is not configured in the settings")
	}
	python := "python3"
	if r.alphaplots.Venv != "" {
		python = venvPython(r.alphaplots.Venv)
	}
	cmd := exec.CommandContext(ctx, python, r.alphaplots.Path, "--"+directive, resultPath)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	r.log.Info("running post-processing", "directive", directive, "result", resultPath)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%v\n%s", err, out.String())
	}
	return nil
}

func fastaPath(job *models.ResolvedJob) string {
	return filepath.Join(job.OutputDir, job.Name, job.Name+".fasta")
}

// writeFasta materializes the job's sequences in FASTA form inside the
// result directory, creating it on the way.
func writeFasta(job *models.ResolvedJob) error {
	dir := filepath.Join(job.OutputDir, job.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create result dir: %w", err)
	}
	var buf bytes.Buffer
	for _, id := range sortedKeys(job.Sequences) {
		fmt.Fprintf(&buf, ">%s\n%s\n", id, job.Sequences[id])
	}
	if err := os.WriteFile(fastaPath(job), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write fasta: %w", err)
	}
	return nil
}

// writeDetails records the resolved parameters next to the results so a
// finished run is self-describing.
func writeDetails(job *models.ResolvedJob, resultPath string) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "name: %s\n", job.Name)
	fmt.Fprintf(&buf, "version: %s\n", job.Version)
	fmt.Fprintf(&buf, "model_preset: %s\n", job.ModelPreset)
	fmt.Fprintf(&buf, "num_multimer_predictions_per_model: %d\n", job.NumMultimerPredictionsPerModel)
	fmt.Fprintf(&buf, "models_to_relax: %s\n", job.ModelsToRelax)
	fmt.Fprintf(&buf, "max_template_date: %s\n", job.MaxTemplateDate)
	fmt.Fprintf(&buf, "output_dir: %s\n", job.OutputDir)
	fmt.Fprintf(&buf, "docker_user: %s\n", job.DockerUser)
	for _, id := range sortedKeys(job.Sequences) {
		fmt.Fprintf(&buf, "sequence %s: %s\n", id, job.Sequences[id])
	}
	return os.WriteFile(filepath.Join(resultPath, detailsFileName), buf.Bytes(), 0o644)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func venvPython(venv string) string {
	return filepath.Join(venv, "bin", "python3")
}
