package triage

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// maxPromptTokens bounds the assembled prompt. Local models degrade sharply
// past their context window, so overlong mails are truncated, not rejected.
const maxPromptTokens = 6000

const promptTemplate = `Du bist das Triage-System einer deutschen Arztpraxis. Analysiere die folgende Patienten-E-Mail und extrahiere alle Anliegen als JSON.

Regeln:
- Antworte ausschließlich mit einem einzigen JSON-Objekt, ohne Erklärungen.
- Jedes eigenständige Anliegen wird ein eigener Eintrag in "items". Eine E-Mail kann mehrere Anliegen enthalten.
- Notfälle (Brustschmerzen, Atemnot, Bewusstlosigkeit, starke Blutung usw.) haben immer Vorrang: intent "emergency", next_action "emergency_protocol".
- Datums- und Zeitangaben wörtlich übernehmen, auch relative wie "morgen" oder "nächste Woche". Nicht selbst umrechnen.
- Wunschtermine außerhalb der Sprechzeiten oder am Wochenende trotzdem erfassen; die Prüfung übernimmt das System.
- "confidence" zwischen 0 und 1. "notes" begründet kurz die Einordnung und darf nie leer sein.
- "overall.top_intent" muss einem der items entsprechen, "overall.max_confidence" dem höchsten confidence-Wert.

Erlaubte intents: appointment_request, appointment_reschedule, appointment_cancel, prescription_request, sick_note_request, result_inquiry, general_info, emergency, lab_result, referral
Erlaubte next_action: complete_slots, propose_appointment, ask_followup, escalate, emergency_protocol, immediate_appointment

JSON-Schema:
{
  "email_meta": {"language": "de", "received_at": null, "priority": null},
  "items": [
    {
      "intent": "...",
      "confidence": 0.0,
      "slots": {"date": null, "time": null, "urgency": null, "reason": null, "person_name": null, "birth_date": null, "insurance": null, "medication": null, "symptoms": null, "contact": null, "note": null},
      "next_action": "...",
      "notes": "..."
    }
  ],
  "overall": {"top_intent": "...", "max_confidence": 0.0, "multi_intent": false, "sentiment": "neutral", "requires_human": false}
}

E-Mail:
---
%s
---`

// BuildPrompt assembles the extraction prompt for one mail body. The body is
// token-truncated so the template itself always survives intact.
func BuildPrompt(body string) string {
	budget := maxPromptTokens - countTokens(fmt.Sprintf(promptTemplate, ""))
	return fmt.Sprintf(promptTemplate, truncateToTokens(strings.TrimSpace(body), budget))
}

func countTokens(text string) int {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		// Rough estimate when the encoding tables are unavailable.
		return len([]rune(text)) / 3
	}
	return len(enc.Encode(text, nil, nil))
}

// truncateToTokens cuts text to at most budget tokens. Falls back to a rune
// cut when the tokenizer cannot load.
func truncateToTokens(text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		runes := []rune(text)
		if len(runes) > budget*3 {
			return string(runes[:budget*3])
		}
		return text
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= budget {
		return text
	}
	return enc.Decode(tokens[:budget])
}
