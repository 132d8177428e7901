package intent

import (
	"strings"

	"github.com/ariahome/aria/internal/convo/textmatch"
)

// classifyByRules is the deterministic fallback classifier. It covers the
// household categories with keyword and phrase matching and never fails:
// an utterance matching nothing yields a low-confidence generic question
// with a clarification prompt.
func classifyByRules(transcript string) Analysis {
	lower := strings.ToLower(transcript)

	switch {
	case textmatch.ContainsAnyWord(transcript, []string{"weather", "temperature", "forecast", "rain", "sunny"}):
		return classifyWeather(transcript)

	case textmatch.ContainsAnyWord(transcript, []string{"list", "shopping", "groceries"}):
		return classifyList(transcript, lower)

	case textmatch.ContainsAnyWord(transcript, []string{"calendar", "schedule", "appointment", "meeting", "remind", "reminder"}):
		return classifyCalendar(transcript, lower)

	case textmatch.ContainsPhrase(transcript, "take me to") ||
		textmatch.ContainsPhrase(transcript, "go to") ||
		textmatch.ContainsAnyWord(transcript, []string{"navigate", "directions"}):
		return classifyNavigation(transcript)

	case textmatch.ContainsAnyWord(transcript, []string{"spend", "spent", "spending", "budget", "expenses", "cost"}):
		return Analysis{
			Type:           TypeQuestion,
			Category:       CategorySpending,
			Confidence:     ConfidenceHigh,
			RequiresAction: true,
		}

	case textmatch.ContainsAnyWord(transcript, []string{"settings", "volume", "preferences"}):
		return Analysis{
			Type:           TypeNavigation,
			Category:       CategorySettings,
			Confidence:     ConfidenceHigh,
			RequiresAction: true,
			ActionPayload:  map[string]any{"target": "settings"},
		}

	case textmatch.ContainsAnyWord(transcript, []string{"hello", "hi", "hey", "morning", "evening"}):
		return Analysis{
			Type:              TypeConversation,
			Category:          CategoryGreeting,
			Confidence:        ConfidenceHigh,
			SuggestedResponse: "Hello! How can I help you today?",
			RequiresAction:    false,
		}
	}

	return Analysis{
		Type:                TypeQuestion,
		Category:            CategoryGeneral,
		Confidence:          ConfidenceLow,
		ClarificationNeeded: "I'm not sure I understood that. Could you rephrase?",
		RequiresAction:      false,
	}
}

func classifyWeather(transcript string) Analysis {
	a := Analysis{
		Type:           TypeQuestion,
		Category:       CategoryWeather,
		Confidence:     ConfidenceHigh,
		RequiresAction: true,
	}
	if loc := extractTail(transcript, " in "); loc != "" {
		a.Entities = map[string]string{"location": loc}
	}
	return a
}

func classifyList(transcript, lower string) Analysis {
	a := Analysis{
		Type:           TypeCommand,
		Category:       CategoryList,
		Confidence:     ConfidenceHigh,
		RequiresAction: true,
	}

	if strings.Contains(lower, "add ") || strings.Contains(lower, "put ") {
		a.ActionPayload = map[string]any{"operation": "add"}
		if item := extractBetween(lower, []string{"add ", "put "}, []string{" to ", " on "}); item != "" {
			a.Entities = map[string]string{"item": item}
		} else {
			a.ClarificationNeeded = "What would you like me to add to the list?"
		}
		return a
	}

	a.Type = TypeQuestion
	a.ActionPayload = map[string]any{"operation": "view"}
	return a
}

func classifyCalendar(transcript, lower string) Analysis {
	a := Analysis{
		Type:           TypeCommand,
		Category:       CategoryCalendar,
		Confidence:     ConfidenceHigh,
		RequiresAction: true,
		Entities:       map[string]string{},
	}

	for _, day := range []string{"today", "tomorrow", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"} {
		if textmatch.ContainsAnyWord(transcript, []string{day}) {
			a.Entities["date"] = day
			break
		}
	}
	if at := extractTail(transcript, " at "); at != "" {
		a.Entities["time"] = at
	}

	creating := textmatch.ContainsAnyWord(transcript, []string{"schedule", "add", "remind", "book", "create"})
	if !creating {
		a.Type = TypeQuestion
		a.ActionPayload = map[string]any{"operation": "view"}
		return a
	}

	a.ActionPayload = map[string]any{"operation": "add"}
	if a.Entities["date"] == "" {
		a.ClarificationNeeded = "What day should I schedule that for?"
	}
	return a
}

func classifyNavigation(transcript string) Analysis {
	a := Analysis{
		Type:           TypeNavigation,
		Category:       CategoryNavigation,
		Confidence:     ConfidenceHigh,
		RequiresAction: true,
	}
	if dest := extractTail(transcript, " to "); dest != "" {
		dest = strings.TrimPrefix(dest, "the ")
		a.Entities = map[string]string{"destination": dest}
		a.ActionPayload = map[string]any{"target": strings.ToLower(dest)}
	} else {
		a.ClarificationNeeded = "Where would you like to go?"
	}
	return a
}

// extractTail returns everything after the last occurrence of marker in
// text, with surrounding whitespace and trailing punctuation stripped.
// Original casing is preserved so place names survive intact.
func extractTail(text, marker string) string {
	lower := strings.ToLower(text)
	idx := strings.LastIndex(lower, marker)
	if idx < 0 {
		return ""
	}
	tail := text[idx+len(marker):]
	return strings.TrimRight(strings.TrimSpace(tail), ".,!?;:")
}

// extractBetween returns the lower-cased span after the first start marker
// and before the first subsequent end marker, or to the end of the string
// when no end marker follows.
func extractBetween(lower string, starts, ends []string) string {
	from := -1
	for _, s := range starts {
		if i := strings.Index(lower, s); i >= 0 {
			from = i + len(s)
			break
		}
	}
	if from < 0 {
		return ""
	}

	// Pad with a space so an end marker directly after the start marker
	// ("add to my list") still matches and yields an empty span.
	span := " " + lower[from:]
	for _, e := range ends {
		if i := strings.Index(span, e); i >= 0 {
			span = span[:i]
			break
		}
	}
	return strings.TrimRight(strings.TrimSpace(span), ".,!?;:")
}
