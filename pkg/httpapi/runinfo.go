package httpapi

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rogpeppe/go-internal/lockedfile"
	"github.com/shirou/gopsutil/v4/process"
)

const runInfoFile = "serve.json"

// RunInfo records where a serve process is listening so that other
// ldagent invocations (status, browse) can find it.
type RunInfo struct {
	PID        int       `json:"pid"`
	Address    string    `json:"address"`
	PluginsDir string    `json:"plugins_dir"`
	StartedAt  time.Time `json:"started_at"`
	Version    string    `json:"version"`
}

// RunInfoStore persists RunInfo under the ldagent base directory. Writes
// go through a file lock so concurrent serve processes cannot interleave.
type RunInfoStore struct {
	dir string
	mu  sync.RWMutex
}

func NewRunInfoStore() (*RunInfoStore, error) {
	dir := os.Getenv("LDAGENT_BASE_PATH")
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get user home directory")
		}
		dir = filepath.Join(homeDir, ".ldagent")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create ldagent directory")
	}

	return &RunInfoStore{dir: dir}, nil
}

func (s *RunInfoStore) path() string {
	return filepath.Join(s.dir, runInfoFile)
}

func (s *RunInfoStore) Write(info *RunInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal run info")
	}

	if err := lockedfile.Write(s.path(), bytes.NewReader(data), 0644); err != nil {
		return errors.Wrap(err, "failed to write run info file")
	}

	return nil
}

// Read returns the stored run info, or nil when no serve process has
// recorded one.
func (s *RunInfoStore) Read() (*RunInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filePath := s.path()
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, nil
	}

	data, err := lockedfile.Read(filePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read run info file")
	}

	var info RunInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal run info")
	}

	return &info, nil
}

func (s *RunInfoStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path()); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove run info file")
	}
	return nil
}

// Alive reports whether the recorded serve process is still running.
// A stale file left behind by a crashed process reads as dead.
func Alive(info *RunInfo) bool {
	if info == nil || info.PID <= 0 {
		return false
	}
	alive, err := process.PidExists(int32(info.PID))
	if err != nil {
		return false
	}
	return alive
}
