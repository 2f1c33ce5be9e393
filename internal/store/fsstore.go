// Package store keeps job state on the filesystem. A job's lifecycle
// state is expressed by which directory its descriptor file lives in:
// input/ (queued), running/, done_jobs/ or failed_jobs/. Every state
// transition is a single rename, so a crash can never leave a job in
// two states at once.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"alphabuddy/internal/logger"
	"alphabuddy/internal/models"
)

const (
	inputDirName   = "input"
	runningDirName = "running"
	doneDirName    = "done_jobs"
	failedDirName  = "failed_jobs"

	retrySuffix = ".retry"
	errorSuffix = ".error.txt"
)

// Store is the filesystem-backed job store. State transitions are only
// ever made by the scheduler goroutine; the record registry is guarded
// so the HTTP API can read it concurrently.
type Store struct {
	root    string
	input   string
	running string
	done    string
	failed  string
	log     *logger.Logger

	mu      sync.RWMutex
	records map[string]*models.Record
	seen    map[string]struct{}
	seq     int
	active  *models.Record
}

// New opens the store rooted at dir. The input directory must already
// exist; the terminal directories are created as transitions need them.
func New(dir string, log *logger.Logger) (*Store, error) {
	input := filepath.Join(dir, inputDirName)
	if fi, err := os.Stat(input); err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("input directory %q was not found", input)
	}
	return &Store{
		root:    dir,
		input:   input,
		running: filepath.Join(dir, runningDirName),
		done:    filepath.Join(dir, doneDirName),
		failed:  filepath.Join(dir, failedDirName),
		log:     log,
		records: make(map[string]*models.Record),
		seen:    make(map[string]struct{}),
	}, nil
}

// InputDir returns the directory new descriptor files are dropped into.
func (s *Store) InputDir() string { return s.input }

// Recover handles jobs found in the running directory at startup. An
// interrupted job is re-queued once, keeping its original arrival time;
// a job interrupted a second time goes to failed_jobs.
func (s *Store) Recover() error {
	entries, err := os.ReadDir(s.running)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("scan running dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !isDescriptor(e.Name()) {
			continue
		}
		src := filepath.Join(s.running, e.Name())
		marker := filepath.Join(s.input, e.Name()+retrySuffix)
		if _, err := os.Stat(marker); err == nil {
			s.log.Warn("job interrupted twice, giving up", "job", e.Name())
			if err := s.moveToFailed(src, e.Name(), "interrupted while running and already retried once"); err != nil {
				return err
			}
			_ = os.Remove(marker)
			continue
		}
		s.log.Warn("re-queueing interrupted job", "job", e.Name())
		if err := os.WriteFile(marker, []byte("requeued after interrupted run\n"), 0o644); err != nil {
			return fmt.Errorf("write retry marker: %w", err)
		}
		// rename keeps the file's mtime, so arrival order survives.
		if err := os.Rename(src, filepath.Join(s.input, e.Name())); err != nil {
			return fmt.Errorf("re-queue %s: %w", e.Name(), err)
		}
	}
	return nil
}

// Discover scans the input directory and returns records for descriptor
// files not returned by a previous call, in arrival (mtime) order.
func (s *Store) Discover() ([]*models.Record, error) {
	entries, err := os.ReadDir(s.input)
	if err != nil {
		return nil, fmt.Errorf("scan input dir: %w", err)
	}

	type candidate struct {
		name string
		key  string
		mod  int64
		size int64
	}
	var fresh []candidate
	for _, e := range entries {
		if e.IsDir() || !isDescriptor(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		key := fmt.Sprintf("%s|%d|%d", e.Name(), info.ModTime().UnixNano(), info.Size())
		if _, ok := s.seen[key]; ok {
			continue
		}
		fresh = append(fresh, candidate{name: e.Name(), key: key, mod: info.ModTime().UnixNano(), size: info.Size()})
	}
	sort.Slice(fresh, func(i, j int) bool {
		if fresh[i].mod != fresh[j].mod {
			return fresh[i].mod < fresh[j].mod
		}
		return fresh[i].name < fresh[j].name
	})

	var out []*models.Record
	for _, c := range fresh {
		s.seen[c.key] = struct{}{}
		s.seq++
		rec := &models.Record{
			ID:        uuid.New().String(),
			Source:    filepath.Join(s.input, c.name),
			State:     models.StateQueued,
			ArrivedAt: timeFromUnixNano(c.mod),
			Seq:       s.seq,
		}
		s.mu.Lock()
		s.records[rec.ID] = rec
		s.mu.Unlock()
		out = append(out, rec)
	}
	return out, nil
}

// ReadDescriptor parses the record's descriptor file.
func (s *Store) ReadDescriptor(rec *models.Record) (*models.Descriptor, error) {
	raw, err := os.ReadFile(rec.Source)
	if err != nil {
		return nil, fmt.Errorf("read descriptor: %w", err)
	}
	var d models.Descriptor
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("parse descriptor: %w", err)
	}
	return &d, nil
}

// BeginExecution moves the record from queued to running. At most one
// record may be running; a second call before Finish fails.
func (s *Store) BeginExecution(rec *models.Record) error {
	if s.active != nil {
		return fmt.Errorf("begin %s: %w", rec.Source, models.ErrAlreadyRunning)
	}
	name := filepath.Base(rec.Source)
	if err := os.MkdirAll(s.running, 0o755); err != nil {
		return fmt.Errorf("create running dir: %w", err)
	}
	if err := os.Rename(rec.Source, filepath.Join(s.running, name)); err != nil {
		return fmt.Errorf("move to running: %w", err)
	}
	s.setState(rec, models.StateRunning)
	s.active = rec
	return nil
}

// Finish completes the running record. Success moves the descriptor to
// done_jobs; failure moves it to failed_jobs and writes the preserved
// log next to it. Failed jobs are never cleaned up automatically.
func (s *Store) Finish(rec *models.Record, outcome models.Outcome) error {
	if s.active != rec {
		return fmt.Errorf("finish %s: no matching begin", rec.Source)
	}
	s.active = nil
	name := filepath.Base(rec.Source)
	src := filepath.Join(s.running, name)
	_ = os.Remove(filepath.Join(s.input, name+retrySuffix))

	s.mu.Lock()
	rec.ResultLocation = outcome.ResultPath
	rec.Warnings = append(rec.Warnings, outcome.Warnings...)
	s.mu.Unlock()

	if outcome.Status == models.OutcomeSuccess {
		if err := os.MkdirAll(s.done, 0o755); err != nil {
			return fmt.Errorf("create done dir: %w", err)
		}
		if err := os.Rename(src, filepath.Join(s.done, name)); err != nil {
			return fmt.Errorf("move to done: %w", err)
		}
		s.setState(rec, models.StateDone)
		return nil
	}

	if err := s.moveToFailed(src, name, outcome.Log); err != nil {
		return err
	}
	s.mu.Lock()
	rec.LastError = outcome.Log
	rec.State = models.StateFailed
	s.mu.Unlock()
	return nil
}

// MarkFailed routes a still-queued record straight to failed_jobs,
// used for descriptors that cannot be parsed, resolved, or started. A
// descriptor file that has vanished in the meantime still fails the
// record; there is just nothing left to move.
func (s *Store) MarkFailed(rec *models.Record, reason string) error {
	name := filepath.Base(rec.Source)
	_ = os.Remove(filepath.Join(s.input, name+retrySuffix))
	if err := s.moveToFailed(rec.Source, name, reason); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	s.mu.Lock()
	rec.LastError = reason
	rec.State = models.StateFailed
	s.mu.Unlock()
	return nil
}

// Records returns a snapshot of every record seen this run. The
// snapshot holds copies: the scheduler keeps mutating the live records
// after the lock is released, so handing out pointers would race with
// readers encoding them.
func (s *Store) Records() []models.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, snapshotRecord(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Record looks up a single record by id, returning a copy.
func (s *Store) Record(id string) (models.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return models.Record{}, false
	}
	return snapshotRecord(r), true
}

func snapshotRecord(r *models.Record) models.Record {
	cp := *r
	if len(r.Warnings) > 0 {
		cp.Warnings = append([]string(nil), r.Warnings...)
	}
	return cp
}

// SetResolved attaches the resolved spec to a record. Held under the
// registry lock so API readers never see a torn write.
func (s *Store) SetResolved(rec *models.Record, resolved *models.ResolvedJob) {
	s.mu.Lock()
	rec.Resolved = resolved
	s.mu.Unlock()
}

func (s *Store) setState(rec *models.Record, state string) {
	s.mu.Lock()
	rec.State = state
	s.mu.Unlock()
}

func (s *Store) moveToFailed(src, name, reason string) error {
	if err := os.MkdirAll(s.failed, 0o755); err != nil {
		return fmt.Errorf("create failed dir: %w", err)
	}
	if err := os.Rename(src, filepath.Join(s.failed, name)); err != nil {
		return fmt.Errorf("move to failed: %w", err)
	}
	if reason != "" {
		errPath := filepath.Join(s.failed, name+errorSuffix)
		if err := os.WriteFile(errPath, []byte(reason+"\n"), 0o644); err != nil {
			s.log.Warn("could not write error file", "path", errPath, "error", err)
		}
	}
	return nil
}

func isDescriptor(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

func timeFromUnixNano(n int64) time.Time {
	return time.Unix(0, n)
}
