package contracts

import (
	"encoding/json"
	"time"
)

// ConfigVersion is an immutable snapshot of a scoring configuration.
// ConfigHash is the first 12 hex characters of the SHA-256 over the
// canonical (key-sorted) JSON of the configuration, so identical content
// hashes identically regardless of document key order. VersionID is
// "{name_}yyyymmdd_hhmmss_{hash}".
type ConfigVersion struct {
	VersionID  string            `json:"version_id"`
	ConfigHash string            `json:"config_hash"`
	CreatedAt  time.Time         `json:"created_at"`
	Snapshot   json.RawMessage   `json:"config_snapshot"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// RunStatus is the terminal state of a scoring run.
type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// AuditRecord is one append-only entry per scoring run. Records are never
// updated or deleted.
type AuditRecord struct {
	RunID     string     `json:"run_id"`
	VersionID string     `json:"version_id"`
	Entities  []string   `json:"entities"`
	From      time.Time  `json:"from"`
	To        time.Time  `json:"to"`
	Status    RunStatus  `json:"status"`
	Error     string     `json:"error,omitempty"`
	Metrics   RunMetrics `json:"metrics"`
	CreatedAt time.Time  `json:"created_at"`
}

// RunMetrics summarizes what a run produced.
type RunMetrics struct {
	Dates           int     `json:"dates"`
	Entities        int     `json:"entities"`
	ScoresComputed  int     `json:"scores_computed"`
	ScoresUndefined int     `json:"scores_undefined"`
	NullRate        float64 `json:"null_rate"`
	DurationMS      int64   `json:"duration_ms"`
}

// Baseline is a scored snapshot tagged with its config version, used only
// for regression comparison, never for scoring.
type Baseline struct {
	VersionID string       `json:"version_id"`
	SavedAt   time.Time    `json:"saved_at"`
	Scores    []BlockScore `json:"scores"`
}
