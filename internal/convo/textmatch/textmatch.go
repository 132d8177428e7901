// Package textmatch provides the pure text predicates the conversation
// engine uses to interpret transcripts: standalone-word matching, word-set
// membership, self-echo detection, and phonetic wake-phrase matching.
//
// Speech recognition output is noisy and self-referential: the microphone
// picks up the assistant's own voice, and substring matching turns
// "yesterday" into a yes. Every predicate here tokenizes on whitespace and
// compares whole tokens case-insensitively, so word boundaries are always
// respected.
package textmatch

import "strings"

// IsStandaloneWord reports whether word appears as a complete
// whitespace-delimited token in text, case-insensitive. Punctuation adjacent
// to a token is stripped before comparison so "no!" still matches "no".
func IsStandaloneWord(text, word string) bool {
	target := strings.ToLower(strings.TrimSpace(word))
	if target == "" {
		return false
	}
	for _, tok := range tokenize(text) {
		if tok == target {
			return true
		}
	}
	return false
}

// ContainsAnyWord reports whether any of words appears as a complete token
// in text.
func ContainsAnyWord(text string, words []string) bool {
	toks := tokenize(text)
	if len(toks) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(toks))
	for _, t := range toks {
		set[t] = struct{}{}
	}
	for _, w := range words {
		if _, ok := set[strings.ToLower(strings.TrimSpace(w))]; ok {
			return true
		}
	}
	return false
}

// ContainsPhrase reports whether phrase appears in text as a contiguous
// token sequence, case-insensitive.
func ContainsPhrase(text, phrase string) bool {
	textToks := tokenize(text)
	phraseToks := tokenize(phrase)
	if len(phraseToks) == 0 || len(phraseToks) > len(textToks) {
		return false
	}
	for i := 0; i+len(phraseToks) <= len(textToks); i++ {
		match := true
		for j, pt := range phraseToks {
			if textToks[i+j] != pt {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// IsSystemEcho reports whether text contains a phrase that only the
// assistant itself would utter. Used to reject microphone pickup of the
// assistant's own confirmation questions leaking through the speakers.
func IsSystemEcho(text string) bool {
	for _, phrase := range echoPhrases {
		if ContainsPhrase(text, phrase) {
			return true
		}
	}
	return false
}

// tokenize lower-cases text, splits on whitespace, and strips leading and
// trailing punctuation from each token. Tokens that are pure punctuation are
// dropped.
func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	toks := make([]string, 0, len(fields))
	for _, f := range fields {
		t := strings.Trim(f, ".,!?;:'\"()[]")
		if t != "" {
			toks = append(toks, t)
		}
	}
	return toks
}
