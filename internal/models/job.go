package models

import (
	"time"
)

// Job lifecycle states, expressed on disk as directory membership.
const (
	StateQueued  = "queued"
	StateRunning = "running"
	StateDone    = "done"
	StateFailed  = "failed"
)

// ModelPreset values accepted by the prediction tool.
const (
	PresetMonomer  = "monomer"
	PresetMultimer = "multimer"
)

// ModelsToRelax values accepted by the prediction tool.
const (
	RelaxBest = "best"
	RelaxAll  = "all"
	RelaxNone = "none"
)

// Descriptor holds the raw job fields exactly as the user wrote them.
// Pointer fields distinguish "absent" from "zero" so the resolver can
// apply its precedence order.
type Descriptor struct {
	Name                           *string           `yaml:"name"`
	OutputDir                      *string           `yaml:"output_dir"`
	Urgent                         *bool             `yaml:"urgent"`
	Version                        *string           `yaml:"version"`
	ModelPreset                    *string           `yaml:"model_preset"`
	NumMultimerPredictionsPerModel *int              `yaml:"num_multimer_predictions_per_model"`
	ModelsToRelax                  *string           `yaml:"models_to_relax"`
	MaxTemplateDate                *string           `yaml:"max_template_date"`
	Sequences                      map[string]string `yaml:"sequences"`
	Alphaplots                     []string          `yaml:"alphaplots"`
}

// VersionConfig points at one installation of the prediction tool.
type VersionConfig struct {
	Path            string `yaml:"path"`
	Venv            string `yaml:"venv"`
	DataDir         string `yaml:"data_dir"`
	DockerImageName string `yaml:"docker_image_name"`
	Default         bool   `yaml:"default"`
}

// ResolvedJob is the fully defaulted, validated specification handed to
// the execution driver. Immutable once computed.
type ResolvedJob struct {
	Name                           string            `json:"name"`
	Version                        string            `json:"version"`
	VersionConfig                  VersionConfig     `json:"-"`
	Sequences                      map[string]string `json:"sequences"`
	Urgent                         bool              `json:"urgent"`
	ModelPreset                    string            `json:"model_preset"`
	NumMultimerPredictionsPerModel int               `json:"num_multimer_predictions_per_model"`
	ModelsToRelax                  string            `json:"models_to_relax"`
	MaxTemplateDate                string            `json:"max_template_date"`
	OutputDir                      string            `json:"output_dir"`
	DockerUser                     string            `json:"docker_user"`
	Alphaplots                     []string          `json:"alphaplots,omitempty"`
}

// Record tracks one discovered descriptor file through its lifecycle.
// State is the only field mutated after creation, and only by the scheduler.
type Record struct {
	ID             string       `json:"id"`
	Source         string       `json:"source"`
	State          string       `json:"state"`
	Resolved       *ResolvedJob `json:"resolved,omitempty"`
	ArrivedAt      time.Time    `json:"arrived_at"`
	Seq            int          `json:"-"`
	ResultLocation string       `json:"result_location,omitempty"`
	LastError      string       `json:"last_error,omitempty"`
	Warnings       []string     `json:"warnings,omitempty"`
}

// Outcome is what the execution driver reports back to the scheduler.
type Outcome struct {
	Status     string   `json:"status"`
	ResultPath string   `json:"result_path"`
	Log        string   `json:"log"`
	Warnings   []string `json:"warnings,omitempty"`
}

// Outcome status values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
