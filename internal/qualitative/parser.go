package qualitative

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Assessment is one qualitative research document reduced to typed fields.
// Scores holds only the sub-scores the document actually carried; a
// sub-score the document omitted or garbled is absent, never defaulted.
// A nil Catalysts means the document had no catalysts section, which is
// different from an explicitly empty list.
type Assessment struct {
	EntityID  string
	Date      time.Time
	Scores    map[string]float64
	Catalysts []string
	Text      string
}

// rawAssessment mirrors the loose upstream document. Sub-scores, catalysts
// and the narrative arrive in whatever shape the authoring system emitted.
type rawAssessment struct {
	EntityID  string                     `json:"entity_id"`
	Date      string                     `json:"date"`
	Scores    map[string]json.RawMessage `json:"scores"`
	Catalysts json.RawMessage            `json:"catalysts"`
	Text      json.RawMessage            `json:"text"`
}

// ParseAssessment decodes one assessment document. Each sub-score is
// accepted as a bare number, a numeric string, or an object wrapping either
// under a "score" or "value" key; any other shape leaves that sub-score
// missing. Only a document that cannot identify itself (broken JSON, no
// entity id, no usable date) is an error.
func ParseAssessment(doc []byte) (*Assessment, error) {
	var raw rawAssessment
	if err := json.Unmarshal(doc, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode assessment: %w", err)
	}
	if raw.EntityID == "" {
		return nil, fmt.Errorf("assessment has no entity_id")
	}
	date, err := parseDate(raw.Date)
	if err != nil {
		return nil, err
	}

	a := &Assessment{
		EntityID: raw.EntityID,
		Date:     date,
		Scores:   make(map[string]float64, len(raw.Scores)),
	}
	for name, msg := range raw.Scores {
		if v, ok := parseScore(msg, 0); ok {
			a.Scores[name] = v
		}
	}
	a.Catalysts = parseCatalysts(raw.Catalysts)
	a.Text = parseText(raw.Text)
	return a, nil
}

// parseDate accepts a calendar date or an RFC3339 timestamp and
// canonicalizes it to its UTC calendar day, the grain cross-sections are
// keyed on.
func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		year, month, day := t.UTC().Date()
		return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized assessment date %q", s)
}

// parseScore extracts one sub-score. depth guards the object unwrap so only
// a single "score"/"value" layer is accepted.
func parseScore(raw json.RawMessage, depth int) (float64, bool) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return 0, false
	}

	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return num, true
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		v, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	}

	if depth > 0 {
		return 0, false
	}
	var obj struct {
		Score json.RawMessage `json:"score"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return 0, false
	}
	if len(obj.Score) > 0 {
		return parseScore(obj.Score, depth+1)
	}
	if len(obj.Value) > 0 {
		return parseScore(obj.Value, depth+1)
	}
	return 0, false
}

// parseCatalysts keeps the named value-unlocking events of a document.
// List elements may be plain names or objects naming the event under
// "event" or "name"; elements with no recognizable name are dropped.
// A shape that is not a list at all reads as no catalysts section.
func parseCatalysts(raw json.RawMessage) []string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	events := make([]string, 0, len(items))
	for _, item := range items {
		var name string
		if err := json.Unmarshal(item, &name); err == nil {
			if name != "" {
				events = append(events, name)
			}
			continue
		}
		var obj struct {
			Event string `json:"event"`
			Name  string `json:"name"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			continue
		}
		switch {
		case obj.Event != "":
			events = append(events, obj.Event)
		case obj.Name != "":
			events = append(events, obj.Name)
		}
	}
	return events
}

// parseText accepts the narrative as a bare string or as an object of named
// sections. Sections join in key order so downstream scoring is
// deterministic; non-string sections are skipped.
func parseText(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}

	var sections map[string]json.RawMessage
	if err := json.Unmarshal(raw, &sections); err != nil {
		return ""
	}
	keys := make([]string, 0, len(sections))
	for key := range sections {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		var section string
		if err := json.Unmarshal(sections[key], &section); err != nil {
			continue
		}
		if section = strings.TrimSpace(section); section != "" {
			parts = append(parts, section)
		}
	}
	return strings.Join(parts, "\n\n")
}
