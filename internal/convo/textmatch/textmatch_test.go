package textmatch

import "testing"

func TestIsStandaloneWord(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		word string
		want bool
	}{
		{"exact single token", "yes", "yes", true},
		{"token within sentence", "oh no don't", "no", true},
		{"substring is not a token", "yesterday", "yes", false},
		{"know does not match no", "i know", "no", false},
		{"case-insensitive text", "YES please", "yes", true},
		{"case-insensitive word", "yes please", "YES", true},
		{"trailing punctuation stripped", "no!", "no", true},
		{"empty text", "", "yes", false},
		{"empty word", "yes", "", false},
		{"word with surrounding space", "sure thing", " sure ", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsStandaloneWord(tt.text, tt.word); got != tt.want {
				t.Errorf("IsStandaloneWord(%q, %q) = %v; want %v", tt.text, tt.word, got, tt.want)
			}
		})
	}
}

func TestContainsAnyWord(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		text  string
		words []string
		want  bool
	}{
		{"first word matches", "yes do it", []string{"yes", "yeah"}, true},
		{"second word matches", "yeah sure", []string{"yes", "yeah"}, true},
		{"no word matches", "maybe later", []string{"yes", "yeah"}, false},
		{"substring does not match", "yesterday was fine", []string{"yes"}, false},
		{"empty word list", "yes", nil, false},
		{"empty text", "", []string{"yes"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ContainsAnyWord(tt.text, tt.words); got != tt.want {
				t.Errorf("ContainsAnyWord(%q, %v) = %v; want %v", tt.text, tt.words, got, tt.want)
			}
		})
	}
}

func TestContainsPhrase(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		text   string
		phrase string
		want   bool
	}{
		{"phrase at start", "is that correct or not", "is that correct", true},
		{"phrase mid-sentence", "wait is that correct", "is that correct", true},
		{"tokens out of order", "that is correct", "is that correct", false},
		{"partial phrase", "is that", "is that correct", false},
		{"case-insensitive", "Is That Correct", "is that correct", true},
		{"punctuation between tokens", "is that, correct?", "is that correct", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ContainsPhrase(tt.text, tt.phrase); got != tt.want {
				t.Errorf("ContainsPhrase(%q, %q) = %v; want %v", tt.text, tt.phrase, got, tt.want)
			}
		})
	}
}

func TestIsSystemEcho(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"confirmation fragment", "wait is that correct", true},
		{"did you say fragment", "did you say add milk", true},
		{"normal affirmative", "yes that is right", false},
		{"plain command", "add milk to my list", false},
		{"prompt fragment", "you can say yes or no now", true},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsSystemEcho(tt.text); got != tt.want {
				t.Errorf("IsSystemEcho(%q) = %v; want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestWordSets_NoOverlapBetweenNegativeAndCancel(t *testing.T) {
	t.Parallel()

	set := make(map[string]struct{}, len(NegativeWords))
	for _, w := range NegativeWords {
		set[w] = struct{}{}
	}
	for _, w := range CancelWords {
		if _, ok := set[w]; ok {
			t.Errorf("word %q appears in both NegativeWords and CancelWords", w)
		}
	}
}
