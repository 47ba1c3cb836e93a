package pipeline

import (
	"strings"

	"quickestimate/internal/util"
)

type DetectResult struct {
	IsEstimate bool
	Score      float64
	Reason     string
}

var detectKeywords = []string{"estimate", "quotation", "quote", "sheet", "billing", "pcs", "rate", "size", "feet"}

// DetectEstimateSheet scores whether a message carries a sheet to read.
// Photos and spreadsheets weigh most; keywords and row-like text lines add
// to the score.
func DetectEstimateSheet(subject, text, html string, attachmentNames []string) DetectResult {
	subject = strings.ToLower(subject)
	text = strings.ToLower(text)
	html = strings.ToLower(html)

	score := 0.0
	for _, kw := range detectKeywords {
		if strings.Contains(subject, kw) {
			score += 0.2
		}
		if strings.Contains(text, kw) || strings.Contains(html, kw) {
			score += 0.1
		}
	}

	rowHits := countRowLikeLines(text)
	if rowHits >= 2 {
		score += 0.4
	} else if rowHits == 1 {
		score += 0.2
	}

	for _, name := range attachmentNames {
		ln := strings.ToLower(name)
		if hasAnySuffix(ln, ".jpg", ".jpeg", ".png", ".webp", ".heic") {
			score += 0.5
			break
		}
		if hasAnySuffix(ln, ".xlsx", ".pdf", ".csv") {
			score += 0.35
			break
		}
	}

	if strings.Contains(html, "<table") {
		score += 0.25
	}
	if score > 1 {
		score = 1
	}

	isEstimate := score >= 0.45
	reason := "rules_negative"
	if isEstimate {
		reason = "rules_positive"
	}

	return DetectResult{IsEstimate: isEstimate, Score: score, Reason: reason}
}

// countRowLikeLines counts lines with three or four numbers, the shape of
// a typed "size pcs rate" row.
func countRowLikeLines(text string) int {
	count := 0
	for _, line := range util.SplitLines(text) {
		if n := len(util.FindNumbers(line)); n == 3 || n == 4 {
			count++
		}
	}
	return count
}

func hasAnySuffix(s string, suffixes ...string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}
