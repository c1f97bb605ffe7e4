package governance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/arcresearch/factorlab/internal/contracts"
)

// File-backed stores, one JSON document per record, laid out under a
// governance root directory:
//
//	<root>/versions/<version_id>.json
//	<root>/runs/<run_id>.json
//	<root>/baselines/<version_id>.json
//
// Version and run files are created with O_EXCL so concurrent writers
// with colliding ids fail instead of clobbering each other; baselines
// are replaceable and written via rename for atomicity.

// FileVersionStore persists ConfigVersion documents, write-once.
type FileVersionStore struct {
	dir string
}

func NewFileVersionStore(root string) *FileVersionStore {
	return &FileVersionStore{dir: filepath.Join(root, "versions")}
}

func (s *FileVersionStore) Save(ctx context.Context, version *contracts.ConfigVersion) error {
	if version.VersionID == "" {
		return errors.New("version id required")
	}
	data, err := json.MarshalIndent(version, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode version: %w", err)
	}
	return writeOnce(filepath.Join(s.dir, version.VersionID+".json"), data)
}

func (s *FileVersionStore) Get(ctx context.Context, versionID string) (*contracts.ConfigVersion, error) {
	var version contracts.ConfigVersion
	if err := readJSON(filepath.Join(s.dir, versionID+".json"), &version); err != nil {
		return nil, fmt.Errorf("version %s: %w", versionID, err)
	}
	return &version, nil
}

func (s *FileVersionStore) List(ctx context.Context) ([]contracts.ConfigVersion, error) {
	versions := make([]contracts.ConfigVersion, 0)
	err := eachJSON(s.dir, func(path string) error {
		var version contracts.ConfigVersion
		if err := readJSON(path, &version); err != nil {
			return err
		}
		versions = append(versions, version)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(versions, func(i, j int) bool {
		if !versions[i].CreatedAt.Equal(versions[j].CreatedAt) {
			return versions[i].CreatedAt.After(versions[j].CreatedAt)
		}
		return versions[i].VersionID > versions[j].VersionID
	})
	return versions, nil
}

// FileAuditStore appends run records, write-once per run id.
type FileAuditStore struct {
	dir string
}

func NewFileAuditStore(root string) *FileAuditStore {
	return &FileAuditStore{dir: filepath.Join(root, "runs")}
}

func (s *FileAuditStore) Append(ctx context.Context, record *contracts.AuditRecord) error {
	if record.RunID == "" {
		return errors.New("run id required")
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode audit record: %w", err)
	}
	return writeOnce(filepath.Join(s.dir, record.RunID+".json"), data)
}

func (s *FileAuditStore) List(ctx context.Context, limit int) ([]contracts.AuditRecord, error) {
	records := make([]contracts.AuditRecord, 0)
	err := eachJSON(s.dir, func(path string) error {
		var record contracts.AuditRecord
		if err := readJSON(path, &record); err != nil {
			return err
		}
		records = append(records, record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].RunID > records[j].RunID
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// FileBaselineStore persists one replaceable baseline per version id.
type FileBaselineStore struct {
	dir string
}

func NewFileBaselineStore(root string) *FileBaselineStore {
	return &FileBaselineStore{dir: filepath.Join(root, "baselines")}
}

func (s *FileBaselineStore) Save(ctx context.Context, baseline *contracts.Baseline) error {
	if baseline.VersionID == "" {
		return errors.New("version id required")
	}
	data, err := json.Marshal(baseline)
	if err != nil {
		return fmt.Errorf("failed to encode baseline: %w", err)
	}
	return writeReplace(filepath.Join(s.dir, baseline.VersionID+".json"), data)
}

func (s *FileBaselineStore) Get(ctx context.Context, versionID string) (*contracts.Baseline, error) {
	var baseline contracts.Baseline
	if err := readJSON(filepath.Join(s.dir, versionID+".json"), &baseline); err != nil {
		return nil, fmt.Errorf("baseline %s: %w", versionID, err)
	}
	return &baseline, nil
}

// writeOnce creates the file exclusively; an existing file means a
// colliding id, not something to overwrite.
func writeOnce(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%s: %w", filepath.Base(path), ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

// writeReplace writes through a temp file and renames into place.
func writeReplace(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// eachJSON visits every .json file in dir. A missing directory is an
// empty store, not an error.
func eachJSON(dir string, fn func(path string) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read store directory %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if err := fn(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}
