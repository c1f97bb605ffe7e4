// Package governance versions scoring configurations, keeps an immutable
// audit trail of runs, validates scored output, and compares score sets
// across configuration versions.
//
// Everything here is decision support: validation and regression routines
// return structured reports and never fail on data-quality findings. Hard
// errors are reserved for configuration mistakes such as unknown version
// ids or unreadable snapshots.
package governance

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/arcresearch/factorlab/internal/contracts"
	"github.com/arcresearch/factorlab/internal/scoringconfig"
	"github.com/arcresearch/factorlab/pkg/logger"
)

// Version ids embed this timestamp layout between the optional name and
// the 12-hex config hash: {name_}yyyymmdd_hhmmss_{hash}.
const versionTimeLayout = "20060102_150405"

var versionNameRe = regexp.MustCompile(`^[A-Za-z0-9._-]*$`)

// VersionManager snapshots configurations as immutable, content-hashed
// versions. Every scoring run references exactly one version id, which is
// what makes a historical score recomputable.
type VersionManager struct {
	store contracts.VersionStore
	log   *logger.Logger
	now   func() time.Time
}

func NewVersionManager(store contracts.VersionStore, log *logger.Logger) *VersionManager {
	return &VersionManager{store: store, log: log, now: time.Now}
}

// Save persists cfg as a new version. The hash covers the canonical JSON
// form of the configuration, so two documents that differ only in key
// order produce the same hash. Saving an id that already exists fails
// with ErrAlreadyExists; versions are never overwritten.
func (m *VersionManager) Save(ctx context.Context, cfg *scoringconfig.Config, name string, metadata map[string]string) (*contracts.ConfigVersion, error) {
	if !versionNameRe.MatchString(name) {
		return nil, fmt.Errorf("invalid version name %q: only letters, digits, '.', '_' and '-' are allowed", name)
	}

	hash, err := scoringconfig.ShortHash(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to hash config: %w", err)
	}
	snapshot, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot config: %w", err)
	}

	createdAt := m.now().UTC()
	versionID := createdAt.Format(versionTimeLayout) + "_" + hash
	if name != "" {
		versionID = name + "_" + versionID
	}

	version := &contracts.ConfigVersion{
		VersionID:  versionID,
		ConfigHash: hash,
		CreatedAt:  createdAt,
		Snapshot:   snapshot,
		Metadata:   metadata,
	}

	if err := m.store.Save(ctx, version); err != nil {
		return nil, fmt.Errorf("failed to save version %s: %w", versionID, err)
	}

	m.log.WithFields(map[string]interface{}{
		"version_id":  versionID,
		"config_hash": hash,
		"config_id":   cfg.Meta.ConfigID,
	}).Info("Configuration version saved")

	return version, nil
}

// Load returns the stored version. A missing id is a hard error: referring
// to a snapshot that does not exist is a configuration mistake.
func (m *VersionManager) Load(ctx context.Context, versionID string) (*contracts.ConfigVersion, error) {
	version, err := m.store.Get(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load version %s: %w", versionID, err)
	}
	return version, nil
}

// LoadConfig loads a version and decodes its snapshot back into a
// validated configuration, ready to score with.
func (m *VersionManager) LoadConfig(ctx context.Context, versionID string) (*scoringconfig.Config, *contracts.ConfigVersion, error) {
	version, err := m.Load(ctx, versionID)
	if err != nil {
		return nil, nil, err
	}

	var cfg scoringconfig.Config
	if err := json.Unmarshal(version.Snapshot, &cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to decode snapshot of %s: %w", versionID, err)
	}
	if err := scoringconfig.Validate(&cfg); err != nil {
		return nil, nil, fmt.Errorf("snapshot of %s no longer validates: %w", versionID, err)
	}

	return &cfg, version, nil
}

// List returns all stored versions, newest first.
func (m *VersionManager) List(ctx context.Context) ([]contracts.ConfigVersion, error) {
	versions, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	return versions, nil
}
