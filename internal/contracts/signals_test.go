package contracts

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"
)

func TestRawSignalDefined(t *testing.T) {
	tests := []struct {
		name  string
		value *float64
		want  bool
	}{
		{"value", Float64(42.5), true},
		{"zero is a value", Float64(0), true},
		{"missing", nil, false},
		{"NaN", Float64(math.NaN()), false},
		{"positive Inf", Float64(math.Inf(1)), false},
		{"negative Inf", Float64(math.Inf(-1)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := RawSignal{Value: tt.value}
			if got := s.Defined(); got != tt.want {
				t.Errorf("Defined() = %v, want %v", got, tt.want)
			}
			m := RiskMetric{Value: tt.value}
			if got := m.Defined(); got != tt.want {
				t.Errorf("RiskMetric Defined() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBlockScoreDefined(t *testing.T) {
	undefined := BlockScore{EntityID: "E1", Block: "quality"}
	if undefined.Defined() {
		t.Error("score with nil ScoreAdjusted should be undefined")
	}

	defined := BlockScore{EntityID: "E1", Block: "quality", ScoreAdjusted: Float64(61.2)}
	if !defined.Defined() {
		t.Error("score with adjusted value should be defined")
	}
}

func TestDateKeySameUTCDay(t *testing.T) {
	seoul := time.FixedZone("KST", 9*3600)
	morning := time.Date(2026, 1, 30, 8, 30, 0, 0, seoul)
	midnight := time.Date(2026, 1, 29, 23, 30, 0, 0, time.UTC)

	if got := DateKey(morning); got != "2026-01-29" {
		t.Errorf("DateKey(%v) = %s, want 2026-01-29", morning, got)
	}
	if DateKey(morning) != DateKey(midnight) {
		t.Error("timestamps within the same UTC day should share a key")
	}
}

func TestSortBlockScores(t *testing.T) {
	d1 := time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)

	scores := []BlockScore{
		{Date: d2, EntityID: "E1", Block: "contrarian"},
		{Date: d1, EntityID: "E2", Block: "quality"},
		{Date: d1, EntityID: "E1", Block: "quality"},
		{Date: d1, EntityID: "E1", Block: "contrarian"},
	}
	SortBlockScores(scores)

	wantOrder := []string{
		"2026-01-30/E1/contrarian",
		"2026-01-30/E1/quality",
		"2026-01-30/E2/quality",
		"2026-01-31/E1/contrarian",
	}
	for i, s := range scores {
		got := strings.Join([]string{DateKey(s.Date), s.EntityID, s.Block}, "/")
		if got != wantOrder[i] {
			t.Errorf("scores[%d] = %s, want %s", i, got, wantOrder[i])
		}
	}
}

func TestSortNormalizedSignalsGroupsBySignal(t *testing.T) {
	d := time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC)

	signals := []NormalizedSignal{
		{Date: d, EntityID: "E2", SignalName: "drawdown"},
		{Date: d, EntityID: "E1", SignalName: "reversal"},
		{Date: d, EntityID: "E1", SignalName: "drawdown"},
	}
	SortNormalizedSignals(signals)

	if signals[0].SignalName != "drawdown" || signals[0].EntityID != "E1" {
		t.Errorf("first = %s/%s, want drawdown/E1", signals[0].SignalName, signals[0].EntityID)
	}
	if signals[2].SignalName != "reversal" {
		t.Errorf("last = %s, want reversal", signals[2].SignalName)
	}
}

func TestBlockScoreJSONKeepsNullDistinct(t *testing.T) {
	d := time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC)

	undefined := BlockScore{Date: d, EntityID: "E1", Block: "quality"}
	data, err := json.Marshal(undefined)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}
	if !strings.Contains(string(data), `"score_raw":null`) {
		t.Errorf("undefined score should marshal as null, got %s", data)
	}
	if strings.Contains(string(data), "quintile") {
		t.Errorf("unassigned quintile should be omitted, got %s", data)
	}

	var decoded BlockScore
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if decoded.ScoreRaw != nil || decoded.Quintile != nil {
		t.Error("null fields should decode to nil, not zero")
	}

	q := 3
	assigned := BlockScore{Date: d, EntityID: "E1", Block: "quality",
		ScoreRaw: Float64(0), ScoreAdjusted: Float64(0), Quintile: &q}
	data, err = json.Marshal(assigned)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if decoded.ScoreRaw == nil || *decoded.ScoreRaw != 0 {
		t.Error("a true zero score should survive the round trip as zero, not null")
	}
	if decoded.Quintile == nil || *decoded.Quintile != 3 {
		t.Errorf("quintile = %v, want 3", decoded.Quintile)
	}
}
