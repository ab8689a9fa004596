package schema

// Fallback returns the safe degraded response used when model output cannot
// be parsed: a single low-confidence general_info item routed to a human.
// reason is recorded in the item notes so reviewers see why the message
// landed in their queue.
func Fallback(reason string) *IntentResponse {
	if reason == "" {
		reason = "model output could not be parsed"
	}
	return &IntentResponse{
		EmailMeta: EmailMeta{Language: "de"},
		Items: []IntentItem{
			{
				Intent:     IntentGeneralInfo,
				Confidence: 0.1,
				NextAction: ActionEscalate,
				Notes:      reason,
			},
		},
		Overall: Overall{
			TopIntent:     IntentGeneralInfo,
			MaxConfidence: 0.1,
			MultiIntent:   false,
			Sentiment:     "neutral",
			RequiresHuman: true,
		},
	}
}
