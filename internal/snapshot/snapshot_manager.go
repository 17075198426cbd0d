package snapshot

// ============================================================================
// Kitchen export
// 1. Serialize a kitchen snapshot to a JSON export file
// 2. Atomic write (temp file + rename) so readers never see a partial file
// 3. Schema version check on load
// 4. Exports pair with the command journal: LastSeq names the last journaled
//    command the export includes, so an audit replay can continue after it
// ============================================================================

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ChuLiYu/cookbot/pkg/types"
)

var (
	ErrCorruptedSnapshot   = errors.New("snapshot file is corrupted")
	ErrIncompatibleVersion = errors.New("snapshot schema version is incompatible")
	ErrSnapshotNotFound    = errors.New("snapshot file not found")
)

// Manager reads and writes one export file.
type Manager struct {
	path string
	mu   sync.Mutex
}

// NewManager returns a manager for the export at path.
func NewManager(path string) *Manager {
	return &Manager{
		path: path,
	}
}

// Write atomically replaces the export with data.
// SchemaVer is always set to types.ExportSchemaVersion.
func (m *Manager) Write(data types.ExportData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeLocked(data)
}

func (m *Manager) writeLocked(data types.ExportData) error {
	data.SchemaVer = types.ExportSchemaVersion

	jsonBytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if dir := filepath.Dir(m.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create snapshot dir: %w", err)
		}
	}

	tmpPath := m.path + ".tmp"
	if err := os.WriteFile(tmpPath, jsonBytes, 0644); err != nil {
		return fmt.Errorf("failed to write temp snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename snapshot: %w", err)
	}
	return nil
}

// Load reads the export.
//
// A missing file yields ErrSnapshotNotFound. A file that does not parse
// yields ErrCorruptedSnapshot, a file from another schema version
// ErrIncompatibleVersion.
func (m *Manager) Load() (types.ExportData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var data types.ExportData

	jsonBytes, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return data, fmt.Errorf("%w: %s", ErrSnapshotNotFound, m.path)
		}
		return data, fmt.Errorf("failed to read snapshot: %w", err)
	}

	if err := json.Unmarshal(jsonBytes, &data); err != nil {
		return data, fmt.Errorf("%w: %v", ErrCorruptedSnapshot, err)
	}
	if data.SchemaVer != types.ExportSchemaVersion {
		return data, fmt.Errorf("%w: got %d, want %d",
			ErrIncompatibleVersion, data.SchemaVer, types.ExportSchemaVersion)
	}

	if data.State.Bots == nil {
		data.State.Bots = []types.Bot{}
	}
	if data.State.Orders == nil {
		data.State.Orders = []types.Order{}
	}
	return data, nil
}

// Exists reports whether the export file exists.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// GetPath returns the export path.
func (m *Manager) GetPath() string {
	return m.path
}

// WriteWithBackup moves the current export aside as <path>.<timestamp>
// before writing, then keeps only the newest keepBackups backups.
// keepBackups <= 0 keeps every backup.
func (m *Manager) WriteWithBackup(data types.ExportData, keepBackups int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Exists() {
		backupPath := fmt.Sprintf("%s.%s", m.path, time.Now().Format("20060102_150405.000000"))
		if err := os.Rename(m.path, backupPath); err != nil {
			return fmt.Errorf("failed to backup old snapshot: %w", err)
		}
	}

	if err := m.writeLocked(data); err != nil {
		return err
	}
	if keepBackups <= 0 {
		return nil
	}
	return m.pruneBackupsLocked(keepBackups)
}

// Backups lists backup files, oldest first.
func (m *Manager) Backups() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backupsLocked()
}

func (m *Manager) backupsLocked() ([]string, error) {
	matches, err := filepath.Glob(m.path + ".*")
	if err != nil {
		return nil, err
	}
	backups := matches[:0]
	for _, p := range matches {
		if p == m.path+".tmp" {
			continue
		}
		backups = append(backups, p)
	}
	// timestamps sort lexically
	sort.Strings(backups)
	return backups, nil
}

func (m *Manager) pruneBackupsLocked(keep int) error {
	backups, err := m.backupsLocked()
	if err != nil {
		return err
	}
	for len(backups) > keep {
		if err := os.Remove(backups[0]); err != nil {
			return fmt.Errorf("failed to prune backup: %w", err)
		}
		backups = backups[1:]
	}
	return nil
}
