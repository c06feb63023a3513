package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"github.com/sirupsen/logrus"

	"github.com/oss-modbus/scanner"
)

// DefaultDir is the working-directory-relative checkpoint directory
// spec §6 names: "scan-state/scan-state.json".
const DefaultDir = "scan-state"

// DefaultFile is the canonical checkpoint filename within DefaultDir.
const DefaultFile = "scan-state.json"

// Info summarizes a checkpoint without requiring the caller to inspect
// its full record list (spec §4.6's Info(): "last-saved, schema
// version, record count, discovered count, progress %").
//
// ByFunctionCode breaks the discovered count down per function code,
// supplementing spec §4.6's single aggregate (SPEC_FULL §7).
type Info struct {
	Present         bool
	SavedAt         time.Time
	SchemaVersion   string
	RecordCount     int
	DiscoveredCount int
	ProgressPercent float64
	ByFunctionCode  map[scan.FunctionCode]int
}

// Manager owns the checkpoint file at Path and its backups, and is the
// sole writer of that file (spec §5: "exclusive writer via
// temp-then-rename").
type Manager struct {
	Path   string
	Logger logrus.FieldLogger
}

// New builds a Manager over the default checkpoint path rooted at dir
// (the scan's working directory, injected per spec §6's "Environment:
// none... working directory is injected"). If dir is empty, the
// default relative path is used as-is.
func New(dir string) *Manager {
	path := filepath.Join(dir, DefaultDir, DefaultFile)
	if dir == "" {
		path = filepath.Join(DefaultDir, DefaultFile)
	}
	return &Manager{Path: path, Logger: logrus.StandardLogger()}
}

// Save serializes config, options, state, and records into a
// checkpoint and writes it atomically (temp file, then rename, on the
// same filesystem) to m.Path.
func (m *Manager) Save(cfg scan.Config, opts scan.Options, st scan.State, records []scan.DiscoveryRecord) error {
	cp := Checkpoint{
		SchemaVersion: SchemaVersion,
		Config:        cfg,
		Options:       opts,
		State:         st,
		Records:       records,
		SavedAt:       time.Now(),
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshal checkpoint: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.Path), 0o755); err != nil {
		return fmt.Errorf("state: create checkpoint dir: %w", err)
	}
	if err := renameio.WriteFile(m.Path, data, 0o644); err != nil {
		return fmt.Errorf("state: write checkpoint: %w", err)
	}
	m.logger().WithFields(logrus.Fields{
		"path":    m.Path,
		"records": len(records),
	}).Info("checkpoint saved")
	return nil
}

// Load reads and parses the checkpoint at m.Path. It returns
// (Checkpoint{}, false, nil) if the file does not exist, and a
// structured error (never a partial Checkpoint) on any parse failure.
func (m *Manager) Load() (Checkpoint, bool, error) {
	data, err := os.ReadFile(m.Path)
	if os.IsNotExist(err) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("state: read checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, false, fmt.Errorf("state: parse checkpoint: %w", err)
	}
	return cp, true, nil
}

// HasSaved reports whether a checkpoint file currently exists at
// m.Path.
func (m *Manager) HasSaved() bool {
	_, err := os.Stat(m.Path)
	return err == nil
}

// Clear removes the checkpoint file, if any (spec §4.6: "cleared on
// clean completion"). It is not an error for the file to already be
// absent.
func (m *Manager) Clear() error {
	err := os.Remove(m.Path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("state: clear checkpoint: %w", err)
	}
	return nil
}

// Info summarizes the current checkpoint without the caller needing to
// load and inspect its full record list. Present is false if no
// checkpoint exists.
func (m *Manager) Info() (Info, error) {
	cp, ok, err := m.Load()
	if err != nil {
		return Info{}, err
	}
	if !ok {
		return Info{}, nil
	}
	byFC := make(map[scan.FunctionCode]int, len(cp.Options.FunctionCodes))
	discovered := 0
	for _, r := range cp.Records {
		if r.Accessible {
			discovered++
			byFC[r.FunctionCode]++
		}
	}
	return Info{
		Present:         true,
		SavedAt:         cp.SavedAt,
		SchemaVersion:   cp.SchemaVersion,
		RecordCount:     len(cp.Records),
		DiscoveredCount: discovered,
		ProgressPercent: cp.State.ProgressPercent(),
		ByFunctionCode:  byFC,
	}, nil
}

func (m *Manager) logger() logrus.FieldLogger {
	if m.Logger != nil {
		return m.Logger
	}
	return logrus.StandardLogger()
}
