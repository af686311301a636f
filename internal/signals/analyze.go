package signals

import (
	"math"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// #region normalize

var (
	disallowedRunes = regexp.MustCompile(`[^\p{L}\p{N}\s!?%]+`)
	whitespaceRuns  = regexp.MustCompile(`\s+`)
)

// Normalize folds accents, replaces punctuation other than "!", "?" and "%"
// with spaces, collapses whitespace and lowercases.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	// transform.Chain keeps internal buffers, so it is built per call.
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, text)
	if err != nil {
		folded = text
	}
	folded = disallowedRunes.ReplaceAllString(folded, " ")
	folded = whitespaceRuns.ReplaceAllString(folded, " ")
	return strings.ToLower(strings.TrimSpace(folded))
}

// #endregion normalize

// #region analyze

// Analyze scores every known bias signal in text. Signals that score zero are
// omitted. The result depends only on (text, now).
func Analyze(text string, now time.Time) map[string]BiasSignalState {
	out := make(map[string]BiasSignalState)
	normalized := Normalize(text)
	if normalized == "" {
		return out
	}

	for _, r := range rules {
		score := scoreRule(r, normalized)
		if score <= 0 {
			continue
		}
		out[r.name] = BiasSignalState{
			Score:      score,
			Source:     SourcePattern,
			LastSeenAt: now,
			TTLSeconds: DefaultTTLSeconds,
		}
	}
	return out
}

// scoreRule sums weight * occurrences over the rule's patterns.
func scoreRule(r rule, normalized string) float64 {
	var sum float64
	for _, wp := range r.patterns {
		hits := len(wp.re.FindAllStringIndex(normalized, -1))
		sum += wp.weight * float64(hits)
	}
	// Rounded to keep float noise (0.30000000000000004) out of traces.
	return Clamp01(math.Round(sum*1e6) / 1e6)
}

// #endregion analyze
