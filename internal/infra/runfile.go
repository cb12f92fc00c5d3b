package infra

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const runFileName = "trackd.run"

// RunState records the live engine process for the status command.
type RunState struct {
	PID       int    `json:"pid"`
	StartedAt int64  `json:"started_at"`
	Version   string `json:"version"`
}

// RunFile persists RunState as a JSON file in the data directory. Writes are
// atomic (temp file + rename) so a crash mid-write never leaves a torn file.
type RunFile struct {
	path string
}

// NewRunFile creates a run file handle for the given data directory.
func NewRunFile(dataDir string) *RunFile {
	return &RunFile{path: filepath.Join(dataDir, runFileName)}
}

// Path returns the run file path.
func (f *RunFile) Path() string {
	return f.path
}

// Write records the running engine's state.
func (f *RunFile) Write(state RunState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return err
	}

	tmpPath := fmt.Sprintf("%s.%d.tmp", f.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Read returns the recorded state, or nil if no engine has registered.
func (f *RunFile) Read() (*RunState, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var state RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Clear removes the run file (on clean engine stop).
func (f *RunFile) Clear() error {
	err := os.Remove(f.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
