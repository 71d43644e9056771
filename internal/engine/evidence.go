package engine

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// EvidenceSummaryHeader introduces the investigator's bullet list of findings.
const EvidenceSummaryHeader = "EVIDENCE_SUMMARY:"

var findingLine = regexp.MustCompile(`^\s*[-*]\s*(?:Finding\s*\d+\s*:\s*)?(?:\[([^\]]+)\]\s*)?(.+?)\s*$`)

// Finding is one bullet of an evidence summary.
type Finding struct {
	Source string
	Text   string
}

// ParseEvidenceSummary extracts the bullets that follow EVIDENCE_SUMMARY:.
// Parsing stops at the first non-bullet line once bullets have started.
func ParseEvidenceSummary(text string) []Finding {
	idx := strings.Index(text, EvidenceSummaryHeader)
	if idx < 0 {
		return nil
	}
	var out []Finding
	for _, line := range strings.Split(text[idx+len(EvidenceSummaryHeader):], "\n") {
		if strings.TrimSpace(line) == "" {
			if len(out) > 0 {
				break
			}
			continue
		}
		m := findingLine.FindStringSubmatch(line)
		if m == nil {
			if len(out) > 0 {
				break
			}
			continue
		}
		out = append(out, Finding{Source: strings.TrimSpace(m[1]), Text: m[2]})
	}
	return out
}

// RequestedData returns the text following a NEED_MORE_DATA marker on its line.
func RequestedData(text string) string {
	idx := strings.Index(text, MarkerNeedMoreData)
	if idx < 0 {
		return ""
	}
	rest := text[idx+len(MarkerNeedMoreData):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	return strings.TrimSpace(strings.TrimLeft(rest, ": "))
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
