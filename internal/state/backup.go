package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// backupSuffix renders the timestamp suffix spec §6 specifies: ISO-8601
// (UTC, millisecond precision) with colons replaced by dashes, since
// colons are awkward in filenames on some filesystems.
func backupSuffix(at time.Time) string {
	iso := at.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	return strings.ReplaceAll(iso, ":", "-")
}

// backupPath is the full path for a backup taken at at, alongside the
// checkpoint at m.Path: same directory, ".backup.<timestamp>" suffix.
func (m *Manager) backupPath(at time.Time) string {
	return m.Path + ".backup." + backupSuffix(at)
}

// Backup copies the current checkpoint file to a timestamped sibling
// (spec §4.6). It is an error to back up when no checkpoint exists.
func (m *Manager) Backup() (string, error) {
	data, err := os.ReadFile(m.Path)
	if err != nil {
		return "", fmt.Errorf("state: backup: no checkpoint to copy: %w", err)
	}
	dst := m.backupPath(time.Now())
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", fmt.Errorf("state: backup: write %s: %w", dst, err)
	}
	m.logger().WithField("path", dst).Info("checkpoint backed up")
	return dst, nil
}

// ListBackups returns every backup file's path for this checkpoint,
// newest first.
func (m *Manager) ListBackups() ([]string, error) {
	dir := filepath.Dir(m.Path)
	base := filepath.Base(m.Path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("state: list backups: %w", err)
	}
	prefix := base + ".backup."
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out, nil
}

// CleanupBackups retains only the newest keep backups, removing the
// rest.
func (m *Manager) CleanupBackups(keep int) error {
	backups, err := m.ListBackups()
	if err != nil {
		return err
	}
	if keep < 0 {
		keep = 0
	}
	if len(backups) <= keep {
		return nil
	}
	for _, path := range backups[keep:] {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("state: cleanup backups: remove %s: %w", path, err)
		}
	}
	return nil
}
