package textmatch

import "testing"

func TestWakeDetector_ExactMatch(t *testing.T) {
	t.Parallel()

	d := NewWakeDetector([]string{"hey aria", "aria"})

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"exact phrase", "hey aria", true},
		{"phrase mid-sentence", "ok so hey aria what time is it", true},
		{"bare name", "aria turn on the lights", true},
		{"case-insensitive", "Hey Aria", true},
		{"unrelated speech", "what a nice day", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := d.Detect(tt.text); got != tt.want {
				t.Errorf("Detect(%q) = %v; want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestWakeDetector_PhoneticMisHearings(t *testing.T) {
	t.Parallel()

	d := NewWakeDetector([]string{"hey aria"})

	// Typical recognition slips for "aria".
	hits := []string{
		"hey arya what's the weather",
		"hey aria's",
	}
	for _, text := range hits {
		if !d.Detect(text) {
			t.Errorf("Detect(%q) = false; want true (phonetic match)", text)
		}
	}
}

func TestWakeDetector_NoFalsePositiveOnDistantWords(t *testing.T) {
	t.Parallel()

	d := NewWakeDetector([]string{"hey aria"})

	misses := []string{
		"turn off the oven",
		"add bread to the list",
		"hello everyone",
	}
	for _, text := range misses {
		if d.Detect(text) {
			t.Errorf("Detect(%q) = true; want false", text)
		}
	}
}

func TestWakeDetector_EmptyPhrases(t *testing.T) {
	t.Parallel()

	d := NewWakeDetector(nil)
	if d.Detect("hey aria") {
		t.Error("Detect with no phrases should always return false")
	}
}

func TestWakeDetector_ThresholdOption(t *testing.T) {
	t.Parallel()

	// With the threshold at 1.0 only verbatim token sequences can match.
	d := NewWakeDetector([]string{"hey aria"}, WithPhoneticThreshold(1.0))
	if !d.Detect("hey aria") {
		t.Error("exact phrase should match regardless of threshold")
	}
	if d.Detect("hey arial") {
		t.Error("near-miss should not match with threshold 1.0")
	}
}
