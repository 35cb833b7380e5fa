package task

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/gruntwork-io/go-commons/files"

	"github.com/abrt/retrace-worker/internal/rerrors"
)

// Store is the reference task-storage collaborator: per-task
// directories rooted at SaveDir, laid out the way spec §3 describes
// (a crash subdirectory, a log-file slot, an opaque results directory).
// The pipeline talks to tasks through *Task values; Store only backs
// Load/WriteResult/Clean for whichever caller (the CLI, tests) needs a real
// filesystem-backed task.
type Store struct {
	Root string
}

// NewStore roots a Store at dir.
func NewStore(dir string) *Store {
	return &Store{Root: dir}
}

// Load reads a task's on-disk layout into memory. The crash directory
// and save directory are expected to already exist (spec §3 invariant:
// the submission layer creates them).
func (s *Store) Load(id int, typ Type) (*Task, error) {
	saveDir := filepath.Join(s.Root, strconv.Itoa(id))
	crashDir := filepath.Join(saveDir, "crash")

	if !files.IsDir(crashDir) {
		return nil, rerrors.Errorf("task store: crash directory %q does not exist", crashDir)
	}

	return &Task{
		ID:         id,
		Type:       typ,
		SaveDir:    saveDir,
		CrashDir:   crashDir,
		Status:     StatusInit,
		LogFile:    filepath.Join(saveDir, "retrace.log"),
		ResultsDir: filepath.Join(saveDir, "results"),
	}, nil
}

// EnsureResultsDir creates t's results directory if absent.
func (s *Store) EnsureResultsDir(t *Task) error {
	if err := os.MkdirAll(t.ResultsDir, 0o755); err != nil {
		return rerrors.WithStackTrace(err)
	}

	return nil
}

// WriteResult writes value under t's results directory at key (spec §6
// "Persisted state" entries: exploitable, sys, crashrc).
func (s *Store) WriteResult(t *Task, key string, value []byte) error {
	if err := s.EnsureResultsDir(t); err != nil {
		return err
	}

	path := filepath.Join(t.ResultsDir, key)
	if err := os.WriteFile(path, value, 0o644); err != nil {
		return rerrors.WithStackTrace(err)
	}

	return nil
}

// Clean removes the task's transient working state, called by the
// lifecycle on terminal status except for interactive/debug task types
// (spec §3 Lifecycles, §4.8, §9 open question on podman teardown).
func (s *Store) Clean(t *Task) error {
	workDir := filepath.Join(t.SaveDir, "work")
	if err := os.RemoveAll(workDir); err != nil {
		return rerrors.WithStackTrace(err)
	}

	return nil
}
