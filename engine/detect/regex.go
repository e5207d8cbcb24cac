package detect

import (
	"context"
	"regexp"
	"sort"
)

// regexPatterns maps entity labels to their detection patterns. These are
// intentionally permissive; the regex backend is meant for local development
// and tests, not as a production-grade recogniser.
var regexPatterns = map[string]string{
	"email":                       `\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`,
	"phone_number":                `\b(?:\+?1[-.\s]?)?\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}\b`,
	"german_medical_insurance_id": `\b[A-Z]\d{9}\b`,
	"credit_card":                 `\b(?:4[0-9]{12}(?:[0-9]{3})?|5[1-5][0-9]{14}|3[47][0-9]{13}|3[0-9]{13}|6(?:011|5[0-9]{2})[0-9]{12})\b`,
	"iban":                        `\b[A-Z]{2}[0-9]{2}[A-Z0-9]{4}[0-9]{7}[A-Z0-9]{0,16}\b`,
}

// RegexDetector matches entities with precompiled regular expressions. All
// matches carry score 1.0 so the threshold has no effect.
type RegexDetector struct {
	patterns map[string]*regexp.Regexp
	labels   []string
}

// NewRegexDetector compiles the built-in pattern set.
func NewRegexDetector() *RegexDetector {
	patterns := make(map[string]*regexp.Regexp, len(regexPatterns))
	labels := make([]string, 0, len(regexPatterns))
	for label, pattern := range regexPatterns {
		patterns[label] = regexp.MustCompile(pattern)
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return &RegexDetector{patterns: patterns, labels: labels}
}

// Detect implements Detector. Emitted spans are start-sorted and
// non-overlapping; when two patterns claim overlapping spans the earlier
// (then longer) match wins.
func (d *RegexDetector) Detect(_ context.Context, texts []string, _ float64) ([][]Entity, error) {
	if err := ValidateTexts(texts); err != nil {
		return nil, err
	}
	results := make([][]Entity, len(texts))
	for i, text := range texts {
		results[i] = d.detectOne(text)
	}
	return results, nil
}

func (d *RegexDetector) detectOne(text string) []Entity {
	var candidates []Entity
	for _, label := range d.labels {
		for _, loc := range d.patterns[label].FindAllStringIndex(text, -1) {
			candidates = append(candidates, Entity{
				Start: loc[0],
				End:   loc[1],
				Text:  text[loc[0]:loc[1]],
				Label: label,
				Score: 1.0,
			})
		}
	}
	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].Start != candidates[b].Start {
			return candidates[a].Start < candidates[b].Start
		}
		return candidates[a].End > candidates[b].End
	})
	// Drop overlaps so downstream replacement sees disjoint spans.
	entities := make([]Entity, 0, len(candidates))
	lastEnd := 0
	for _, candidate := range candidates {
		if candidate.Start < lastEnd {
			continue
		}
		entities = append(entities, candidate)
		lastEnd = candidate.End
	}
	return entities
}

// SupportedEntities implements Detector.
func (d *RegexDetector) SupportedEntities() []string {
	return d.labels
}

// DefaultThreshold implements Detector.
func (d *RegexDetector) DefaultThreshold() float64 {
	return 0.5
}
