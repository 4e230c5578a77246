package redactor

import (
	"fmt"
	"regexp"
	"sort"
)

// analyser pairs a fixed recogniser set (the "analyser") with the
// replace-by-tag step (the "anonymiser"). Each worker goroutine constructs
// its own instance via Redactor.newAnalyser, so no regex engine state is
// shared across workers — mirroring original_source's per-process Presidio
// AnalyzerEngine/AnonymizerEngine pair.
type analyser struct {
	recognisers []recogniser
}

type recogniser struct {
	infoType string
	pattern  *regexp.Regexp
}

// recognisedTypes is the fixed, analyser-provided set spec.md §4.4 requires
// ("Recognised types come from a fixed analyser-provided set").
var recognisedTypes = []recogniser{
	{infoType: "EMAIL", pattern: regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)},
	{infoType: "PHONE", pattern: regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)},
	{infoType: "SSN", pattern: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{infoType: "CREDIT_CARD", pattern: regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`)},
	{infoType: "PERSON", pattern: regexp.MustCompile(`\b[A-Z][a-z]+ [A-Z][a-z]+\b`)},
}

func newAnalyser() *analyser {
	return &analyser{recognisers: recognisedTypes}
}

// analyse scans text for every recognised PII type and returns non-overlapping
// findings ordered by start index.
func (a *analyser) analyse(text string) []Finding {
	var findings []Finding
	for _, r := range a.recognisers {
		for _, loc := range r.pattern.FindAllStringIndex(text, -1) {
			findings = append(findings, Finding{InfoType: r.infoType, StartIndex: loc[0], EndIndex: loc[1]})
		}
	}

	sort.Slice(findings, func(i, j int) bool { return findings[i].StartIndex < findings[j].StartIndex })
	return dropOverlaps(findings)
}

// dropOverlaps keeps the earliest-starting finding when two spans overlap —
// PERSON and EMAIL patterns can both fire on the same run of characters.
func dropOverlaps(findings []Finding) []Finding {
	var out []Finding
	lastEnd := -1
	for _, f := range findings {
		if f.StartIndex < lastEnd {
			continue
		}
		out = append(out, f)
		lastEnd = f.EndIndex
	}
	return out
}

// anonymise replaces every finding's span with a <TYPE> tag. Findings are
// applied in descending start-index order so earlier replacements don't
// shift the offsets of ones still pending (grounded on the teacher's
// Redact, which sorts descending for the same reason).
func (a *analyser) anonymise(text string, findings []Finding) string {
	if len(findings) == 0 {
		return text
	}
	sorted := make([]Finding, len(findings))
	copy(sorted, findings)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartIndex > sorted[j].StartIndex })

	result := text
	for _, f := range sorted {
		if f.StartIndex < 0 || f.EndIndex > len(result) || f.StartIndex >= f.EndIndex {
			continue
		}
		tag := fmt.Sprintf("<%s>", f.InfoType)
		result = result[:f.StartIndex] + tag + result[f.EndIndex:]
	}
	return result
}
