// Package qualitative turns research assessment documents into raw signal
// rows for the scoring engine. Documents arrive as loosely shaped JSON from
// upstream authoring systems; the parser accepts the shapes those systems
// actually emit and drops what it cannot read, so one malformed memo never
// aborts a scoring run. Sub-scores a document does not carry stay missing
// and are never defaulted.
package qualitative

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/arcresearch/factorlab/internal/contracts"
	"github.com/arcresearch/factorlab/pkg/logger"
)

// Signal names derived from assessment content rather than carried as
// explicit sub-scores. An explicit sub-score under the same name wins.
const (
	SignalTextTone         = "text_tone"
	SignalCatalystStrength = "catalyst_strength"
)

// DocumentSource lists raw assessment documents.
type DocumentSource interface {
	Documents(ctx context.Context) ([][]byte, error)
}

// DirSource reads assessment documents from a directory of JSON files in
// name order. Files without a .json extension are ignored.
type DirSource struct {
	Dir string
}

func (s DirSource) Documents(ctx context.Context) ([][]byte, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read assessment directory: %w", err)
	}
	docs := make([][]byte, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		doc, err := os.ReadFile(filepath.Join(s.Dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read assessment %s: %w", entry.Name(), err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// MultiSource concatenates several document sources in order. Since later
// documents win per signal, documents from later sources take precedence.
type MultiSource []DocumentSource

func (s MultiSource) Documents(ctx context.Context) ([][]byte, error) {
	var docs [][]byte
	for _, source := range s {
		batch, err := source.Documents(ctx)
		if err != nil {
			return nil, err
		}
		docs = append(docs, batch...)
	}
	return docs, nil
}

// Producer exposes assessment documents as a signal source. Each parsed
// document contributes its sub-scores verbatim plus two derived signals:
// the text tone heuristic over the narrative and the catalyst strength
// count. When several documents cover the same (entity, day), later
// documents win per signal.
type Producer struct {
	source DocumentSource
	scorer TextScorer
	log    *logger.Logger
}

// NewProducer wires a producer. A scorer without keywords falls back to the
// stock lists.
func NewProducer(source DocumentSource, scorer TextScorer, log *logger.Logger) *Producer {
	if len(scorer.Positive) == 0 && len(scorer.Negative) == 0 {
		scorer = DefaultTextScorer()
	}
	return &Producer{
		source: source,
		scorer: scorer,
		log:    log.WithField("module", "qualitative"),
	}
}

// FetchSignals implements contracts.SignalSource. Documents that fail to
// parse are skipped with a warning; an empty entityIDs filter selects every
// entity.
func (p *Producer) FetchSignals(ctx context.Context, entityIDs []string, from, to time.Time) ([]contracts.RawSignal, error) {
	docs, err := p.source.Documents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list assessments: %w", err)
	}

	want := make(map[string]bool, len(entityIDs))
	for _, id := range entityIDs {
		want[id] = true
	}
	fromKey, toKey := contracts.DateKey(from), contracts.DateKey(to)

	rows := make(map[signalKey]contracts.RawSignal)
	skipped := 0
	for _, doc := range docs {
		a, err := ParseAssessment(doc)
		if err != nil {
			skipped++
			p.log.WithField("error", err.Error()).Warn("Skipping unreadable assessment")
			continue
		}
		if len(want) > 0 && !want[a.EntityID] {
			continue
		}
		if key := contracts.DateKey(a.Date); key < fromKey || key > toKey {
			continue
		}
		for _, row := range p.signalsFor(a) {
			rows[signalKey{contracts.DateKey(row.Date), row.EntityID, row.SignalName}] = row
		}
	}

	out := make([]contracts.RawSignal, 0, len(rows))
	for _, row := range rows {
		out = append(out, row)
	}
	contracts.SortRawSignals(out)

	p.log.WithFields(map[string]interface{}{
		"documents": len(docs),
		"skipped":   skipped,
		"signals":   len(out),
	}).Debug("Qualitative signals produced")
	return out, nil
}

// FetchRiskMetrics implements contracts.SignalSource. Assessments carry no
// risk measurements.
func (p *Producer) FetchRiskMetrics(ctx context.Context, entityIDs []string, from, to time.Time) ([]contracts.RiskMetric, error) {
	return nil, nil
}

type signalKey struct {
	date   string
	entity string
	signal string
}

func (p *Producer) signalsFor(a *Assessment) []contracts.RawSignal {
	out := make([]contracts.RawSignal, 0, len(a.Scores)+2)
	for name, value := range a.Scores {
		out = append(out, contracts.RawSignal{
			Date:       a.Date,
			EntityID:   a.EntityID,
			SignalName: name,
			Value:      contracts.Float64(value),
		})
	}
	if _, explicit := a.Scores[SignalTextTone]; !explicit && strings.TrimSpace(a.Text) != "" {
		out = append(out, contracts.RawSignal{
			Date:       a.Date,
			EntityID:   a.EntityID,
			SignalName: SignalTextTone,
			Value:      contracts.Float64(p.scorer.Score(a.Text)),
		})
	}
	if _, explicit := a.Scores[SignalCatalystStrength]; !explicit && a.Catalysts != nil {
		out = append(out, contracts.RawSignal{
			Date:       a.Date,
			EntityID:   a.EntityID,
			SignalName: SignalCatalystStrength,
			Value:      contracts.Float64(CatalystStrength(a.Catalysts)),
		})
	}
	return out
}
