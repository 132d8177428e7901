package textmatch

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const defaultPhoneticThreshold = 0.80

// WakeOption is a functional option for configuring a [WakeDetector].
type WakeOption func(*WakeDetector)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched n-gram to count as the wake phrase. Default: 0.80.
func WithPhoneticThreshold(threshold float64) WakeOption {
	return func(d *WakeDetector) {
		d.threshold = threshold
	}
}

// WakeDetector recognises the wake phrase in a transcript, tolerating the
// mis-hearings speech recognition produces ("hey aria" heard as "hey area",
// "hey are ya"). Detection is two-stage: Double Metaphone codes filter
// phonetic candidates, then Jaro-Winkler similarity ranks them against a
// threshold. The detector is read-only after construction and safe for
// concurrent use.
type WakeDetector struct {
	phrases   []string // normalised wake phrases, e.g. "hey aria", "aria"
	threshold float64
}

// NewWakeDetector builds a detector for the given wake phrases. Phrases are
// matched case-insensitively; at least one non-empty phrase is required,
// otherwise Detect always returns false.
func NewWakeDetector(phrases []string, opts ...WakeOption) *WakeDetector {
	d := &WakeDetector{threshold: defaultPhoneticThreshold}
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			d.phrases = append(d.phrases, p)
		}
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Detect reports whether text contains the wake phrase, either verbatim or
// as a phonetic near-match. Candidate n-grams the width of the wake phrase
// (plus one, for split mis-hearings like "are ya") are scanned across the
// transcript so the wake phrase is found mid-sentence. Narrower grams are
// never considered: a lone "hey" must not trigger "hey aria".
func (d *WakeDetector) Detect(text string) bool {
	toks := tokenize(text)
	if len(toks) == 0 || len(d.phrases) == 0 {
		return false
	}

	// Exact phrase containment first; the common case needs no fuzz.
	for _, phrase := range d.phrases {
		if ContainsPhrase(text, phrase) {
			return true
		}
	}

	for _, phrase := range d.phrases {
		phraseToks := strings.Fields(phrase)
		phraseCodes := metaphoneCodes(phraseToks)
		concatPhrase := strings.Join(phraseToks, "")

		for width := len(phraseToks); width <= len(phraseToks)+1 && width <= len(toks); width++ {
			for i := 0; i+width <= len(toks); i++ {
				gram := toks[i : i+width]
				if !codesOverlap(metaphoneCodes(gram), phraseCodes) {
					continue
				}
				concat := strings.Join(gram, "")
				if matchr.JaroWinkler(concat, concatPhrase, false) >= d.threshold {
					return true
				}
			}
		}
	}
	return false
}

// metaphoneCodes returns the union of all Double Metaphone codes for the
// given tokens. Empty codes are excluded.
func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
