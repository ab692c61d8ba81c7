package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/danieljhkim/assetmirror/internal/fsops"
)

// RecordStore provides an interface for persisting unit run records.
type RecordStore interface {
	// Load loads the record for the given unit.
	// Returns os.ErrNotExist if no record exists.
	Load(unitID string) (*UnitRecord, error)

	// Save saves the record atomically.
	Save(record *UnitRecord) error

	// Delete deletes the unit's record.
	Delete(unitID string) error

	// List returns the ids of all units with a record, sorted by name.
	List() ([]string, error)
}

// FileRecordStore implements RecordStore using JSON files on disk.
type FileRecordStore struct {
	fs  fsops.FS
	dir string
}

// NewFileRecordStore creates a new FileRecordStore rooted at dir.
func NewFileRecordStore(fs fsops.FS, dir string) *FileRecordStore {
	return &FileRecordStore{
		fs:  fs,
		dir: dir,
	}
}

func (s *FileRecordStore) path(unitID string) (string, error) {
	if err := s.fs.ValidateIdentifier(unitID); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, unitID+".json"), nil
}

// Load loads the record for the given unit.
func (s *FileRecordStore) Load(unitID string) (*UnitRecord, error) {
	path, err := s.path(unitID)
	if err != nil {
		return nil, err
	}

	data, err := s.fs.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("failed to read unit record: %w", err)
	}

	var record UnitRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal unit record: %w", err)
	}

	return &record, nil
}

// Save saves the record atomically.
func (s *FileRecordStore) Save(record *UnitRecord) error {
	path, err := s.path(record.UnitID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal unit record: %w", err)
	}

	if err := s.fs.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := s.fs.AtomicWrite(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write unit record: %w", err)
	}

	return nil
}

// Delete deletes the unit's record.
func (s *FileRecordStore) Delete(unitID string) error {
	path, err := s.path(unitID)
	if err != nil {
		return err
	}

	if err := s.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete unit record: %w", err)
	}

	return nil
}

// List returns the ids of all units with a record.
func (s *FileRecordStore) List() ([]string, error) {
	infos, err := s.fs.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list unit records: %w", err)
	}

	ids := []string{}
	for _, info := range infos {
		name := info.Name()
		if info.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}
