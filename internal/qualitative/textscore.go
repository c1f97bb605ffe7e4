package qualitative

import (
	"math"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// TextScorer turns free-form narrative into a 0-100 tone proxy by keyword
// presence. The heuristic is deliberately crude: 50 is neutral, each
// positive keyword found adds 10, each negative keyword subtracts 10, and
// the result clamps to [0, 100]. Keywords match case-insensitively as
// substrings and count once each regardless of repetition.
type TextScorer struct {
	Positive []string
	Negative []string
}

// DefaultTextScorer carries the stock keyword lists for investment memos.
func DefaultTextScorer() TextScorer {
	return TextScorer{
		Positive: []string{
			"compelling", "durable", "defensible", "undervalued",
			"asymmetric", "catalyst", "inflection", "accelerating",
			"compounding", "structural", "moat", "pricing power",
		},
		Negative: []string{
			"uncertain", "challenging", "deteriorating", "cyclical",
			"temporary", "vulnerable", "delayed", "commodity",
			"overvalued", "crowded",
		},
	}
}

// Score rates one document. HTML input is flattened to its visible text
// first; empty input rates neutral.
func (s TextScorer) Score(text string) float64 {
	flat := strings.ToLower(flattenHTML(text))
	if strings.TrimSpace(flat) == "" {
		return 50
	}

	score := 50.0
	for _, kw := range s.Positive {
		if strings.Contains(flat, strings.ToLower(kw)) {
			score += 10
		}
	}
	for _, kw := range s.Negative {
		if strings.Contains(flat, strings.ToLower(kw)) {
			score -= 10
		}
	}
	return math.Max(0, math.Min(100, score))
}

// CatalystStrength converts a count of named value-unlocking events into a
// 0-100 signal: 30 base plus 20 per event, capped at 100.
func CatalystStrength(events []string) float64 {
	return math.Min(100, float64(len(events))*20+30)
}

// flattenHTML reduces HTML to its visible text, joining text nodes with
// single spaces so keywords split across adjacent tags still match. Plain
// text survives the round trip; script and style bodies are dropped.
func flattenHTML(raw string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return raw
	}

	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				parts = append(parts, text)
			}
			return
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, node := range doc.Nodes {
		walk(node)
	}
	return strings.Join(parts, " ")
}
