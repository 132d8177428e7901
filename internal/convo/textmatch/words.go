package textmatch

// Word sets driving the confirmation step. Negative and Cancel are kept as
// distinct lists: "no" re-prompts for a fresh command while "cancel" returns
// the conversation to idle, and users rely on both behaviours.
var (
	// AffirmativeWords confirm a pending command.
	AffirmativeWords = []string{
		"yes", "yeah", "yep", "yup", "sure", "correct", "right",
		"confirm", "confirmed", "ok", "okay", "affirmative", "proceed",
	}

	// NegativeWords reject the captured command and re-prompt for a new one.
	NegativeWords = []string{
		"no", "nope", "nah", "wrong", "incorrect", "retry", "again",
	}

	// CancelWords abandon the conversation entirely.
	CancelWords = []string{
		"cancel", "stop", "nevermind", "abort", "quit", "forget",
	}

	// ApologyWords reset the moderation tracker.
	ApologyWords = []string{
		"sorry", "apologize", "apologise", "apologies", "apology",
	}

	// ProfanityWords trigger the moderation tracker. Deliberately short and
	// mild; the tracker escalates on repetition, not severity.
	ProfanityWords = []string{
		"damn", "dammit", "hell", "crap", "shit", "fuck", "fucking",
		"bastard", "bitch", "asshole",
	}
)

// echoPhrases are fragments of the assistant's own confirmation and prompt
// phrasing. A transcript containing any of these is treated as speaker
// bleed-through, never as user input.
var echoPhrases = []string{
	"is that correct",
	"did you say",
	"i heard you say",
	"say yes to confirm",
	"should i go ahead",
	"would you like me to",
	"you can say yes",
	"please say yes or no",
}
