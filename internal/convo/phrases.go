package convo

// Spoken phrase inventory. The wake acknowledgments are selected through
// the injected selector; the rest are fixed so tests can assert on them.

var genericAcknowledgments = []string{
	"Yes?",
	"I'm listening.",
	"How can I help?",
	"Go ahead.",
}

var personalisedAcknowledgments = []string{
	"Yes, {name}?",
	"I'm listening, {name}.",
	"What can I do for you, {name}?",
}

const (
	reprompt             = "Please say yes to confirm, or no to try again."
	retryPrompt          = "Okay, let's try that again. What would you like?"
	cancelAcknowledgment = "Alright, cancelled."
	timeoutNotice        = "I didn't hear a confirmation, so I've cancelled that request."
	apologyAccepted      = "Thank you, apology accepted. Let's start fresh."

	helpText = "You can ask me about the weather, your calendar, your lists, or your spending. " +
		"Just say Hey Aria, then tell me what you need."
)
