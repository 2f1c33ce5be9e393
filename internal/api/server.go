package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"alphabuddy/internal/logger"
	"alphabuddy/internal/models"
	"alphabuddy/internal/store"
	"alphabuddy/internal/telemetry"
)

// Server exposes a read-mostly status API next to the scheduler: job
// listing, single job lookup, metrics, and a submit endpoint that drops
// a descriptor file into the input directory.
type Server struct {
	store *store.Store
	log   *logger.Logger
}

// New constructs the API server.
func New(st *store.Store, log *logger.Logger) *Server {
	return &Server{store: st, log: log}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Post("/jobs", s.handleSubmit)
	r.Get("/jobs", s.handleListJobs)
	r.Get("/jobs/{id}", s.handleGetJob)
	return r
}

// handleSubmit accepts a YAML descriptor body and writes it into the
// input directory, where the scheduler will pick it up like any other
// dropped file. The write goes through a temp file so discovery never
// sees a partial descriptor.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	var d models.Descriptor
	if err := yaml.Unmarshal(body, &d); err != nil {
		http.Error(w, fmt.Sprintf("invalid yaml: %v", err), http.StatusBadRequest)
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" && d.Name != nil {
		name = *d.Name
	}
	if name == "" {
		name = "job-" + uuid.New().String()[:8]
	}
	if strings.ContainsAny(name, "/\\") {
		http.Error(w, "invalid name", http.StatusBadRequest)
		return
	}

	filename := name + ".yaml"
	dest := filepath.Join(s.store.InputDir(), filename)
	if _, err := os.Stat(dest); err == nil {
		http.Error(w, "a job with that name is already queued", http.StatusConflict)
		return
	}
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		http.Error(w, "write descriptor", http.StatusInternalServerError)
		return
	}
	if err := os.Rename(tmp, dest); err != nil {
		http.Error(w, "place descriptor", http.StatusInternalServerError)
		return
	}
	s.log.Info("job submitted via api", "file", filename)
	writeJSON(w, http.StatusAccepted, map[string]string{"file": filename})
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": s.store.Records()})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, ok := s.store.Record(id)
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
