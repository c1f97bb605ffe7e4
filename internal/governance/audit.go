package governance

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/arcresearch/factorlab/internal/contracts"
	"github.com/arcresearch/factorlab/pkg/logger"
)

// Audit records keep only the first entities of a run; the full universe
// is reconstructable from the scores themselves.
const maxAuditEntities = 10

// AuditLogger appends one immutable record per scoring run. Records are
// never updated or deleted: a rerun gets a new run id.
type AuditLogger struct {
	store contracts.AuditStore
	log   *logger.Logger
	now   func() time.Time
}

func NewAuditLogger(store contracts.AuditStore, log *logger.Logger) *AuditLogger {
	return &AuditLogger{store: store, log: log, now: time.Now}
}

// NewRunID returns "run_yyyymmdd_hhmmss_xxxx" with a random hex suffix so
// concurrent runs started in the same second cannot collide.
func NewRunID() string {
	var suffix [2]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		// crypto/rand failing means the platform is broken; fall back to
		// the nanosecond clock rather than refusing to run.
		nano := time.Now().UnixNano()
		suffix[0] = byte(nano >> 8)
		suffix[1] = byte(nano)
	}
	return "run_" + time.Now().UTC().Format(versionTimeLayout) + "_" + hex.EncodeToString(suffix[:])
}

// LogRun appends the record. The caller's slice is not modified; the stored
// entity list is truncated to the first few entries.
func (a *AuditLogger) LogRun(ctx context.Context, record *contracts.AuditRecord) error {
	if record.RunID == "" {
		return errors.New("audit record requires a run id")
	}

	stored := *record
	if len(stored.Entities) > maxAuditEntities {
		stored.Entities = stored.Entities[:maxAuditEntities:maxAuditEntities]
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = a.now().UTC()
	}

	if err := a.store.Append(ctx, &stored); err != nil {
		return fmt.Errorf("failed to append audit record %s: %w", stored.RunID, err)
	}

	a.log.WithFields(map[string]interface{}{
		"run_id":     stored.RunID,
		"version_id": stored.VersionID,
		"status":     string(stored.Status),
		"scores":     stored.Metrics.ScoresComputed,
	}).Info("Run recorded")

	return nil
}

// Recent returns the latest run records, newest first.
func (a *AuditLogger) Recent(ctx context.Context, limit int) ([]contracts.AuditRecord, error) {
	records, err := a.store.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	return records, nil
}
