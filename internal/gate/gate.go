// Package gate maps a validated intent response plus the raw message text to
// one of four dispositions. Decide is pure: same inputs, same decision.
package gate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ZeroBranding/MFA-AGENT-DASHBOARD-KALENDER/internal/schema"
)

// Action is the handling disposition for one message.
type Action string

const (
	ActionAutoProcess Action = "auto_process"
	ActionAskConfirm  Action = "ask_confirm"
	ActionEscalate    Action = "escalate"
	ActionEmergency   Action = "emergency"
)

// EmergencyUrgency grades an emergency decision.
type EmergencyUrgency string

const (
	UrgencyHigh     EmergencyUrgency = "high"
	UrgencyCritical EmergencyUrgency = "critical"
)

// Decision is the gate outcome. Items carries the intent items the decision
// is based on; MissingSlots is set only for ask_confirm; Urgency only for
// emergency.
type Decision struct {
	Action       Action              `json:"action"`
	Items        []schema.IntentItem `json:"items"`
	Confidence   float64             `json:"confidence"`
	Reason       string              `json:"reason"`
	MissingSlots []string            `json:"missing_slots,omitempty"`
	Urgency      EmergencyUrgency    `json:"urgency,omitempty"`
}

// Policy holds the externally configurable gate parameters.
type Policy struct {
	// AutoProcessThreshold is the max_confidence needed for automatic
	// handling when no required slot is missing.
	AutoProcessThreshold float64
	// ConfirmThreshold is the minimum max_confidence for asking the
	// sender to confirm instead of escalating outright.
	ConfirmThreshold float64
	// EmergencyCriticalThreshold separates critical from high urgency on
	// structured emergency items.
	EmergencyCriticalThreshold float64
	// RequiredSlots lists the slot names each intent needs before it can
	// be processed without follow-up.
	RequiredSlots map[schema.Intent][]string
	// EmergencyKeywords are scanned case-insensitively in the raw message
	// regardless of what the model returned.
	EmergencyKeywords []string
}

// DefaultPolicy returns the production defaults.
func DefaultPolicy() Policy {
	return Policy{
		AutoProcessThreshold:       0.85,
		ConfirmThreshold:           0.5,
		EmergencyCriticalThreshold: 0.8,
		RequiredSlots: map[schema.Intent][]string{
			schema.IntentAppointmentRequest:    {"date", "time"},
			schema.IntentAppointmentReschedule: {"date", "time"},
			schema.IntentAppointmentCancel:     {"date"},
			schema.IntentPrescriptionRequest:   {"medication"},
			schema.IntentSickNoteRequest:       {"reason"},
			schema.IntentResultInquiry:         {"person_name"},
			schema.IntentLabResult:             {"person_name"},
			schema.IntentReferral:              {"reason"},
		},
		EmergencyKeywords: []string{
			"brustschmerzen",
			"bewusstlos",
			"bewusstlosigkeit",
			"schlaganfall",
			"herzinfarkt",
			"starke blutung",
			"blutet stark",
			"vergiftung",
			"gestürzt",
			"sturz",
			"kollabiert",
			"kollaps",
			"atemnot",
			"krampfanfall",
			"nicht ansprechbar",
			"notfall",
			"lebensgefahr",
		},
	}
}

// Engine applies one policy. The zero value is unusable; use New.
type Engine struct {
	policy Policy
}

// New returns an engine. Zero thresholds fall back to the defaults so a
// partially filled policy from a config file stays safe.
func New(policy Policy) *Engine {
	defaults := DefaultPolicy()
	if policy.AutoProcessThreshold <= 0 {
		policy.AutoProcessThreshold = defaults.AutoProcessThreshold
	}
	if policy.ConfirmThreshold <= 0 {
		policy.ConfirmThreshold = defaults.ConfirmThreshold
	}
	if policy.EmergencyCriticalThreshold <= 0 {
		policy.EmergencyCriticalThreshold = defaults.EmergencyCriticalThreshold
	}
	if policy.RequiredSlots == nil {
		policy.RequiredSlots = defaults.RequiredSlots
	}
	if policy.EmergencyKeywords == nil {
		policy.EmergencyKeywords = defaults.EmergencyKeywords
	}
	return &Engine{policy: policy}
}

// Decide applies the ordered gate rules, first match wins:
//  1. emergency (structured item or raw-text keyword)
//  2. requires_human → escalate
//  3. max_confidence ≥ auto threshold → auto_process, or ask_confirm when
//     required slots are missing
//  4. max_confidence ≥ confirm threshold → ask_confirm
//  5. escalate
func (e *Engine) Decide(resp *schema.IntentResponse, rawMessage string) Decision {
	if resp == nil || len(resp.Items) == 0 {
		return Decision{
			Action: ActionEscalate,
			Reason: "no classified items",
		}
	}

	if decision, ok := e.emergencyFromItems(resp); ok {
		return decision
	}
	if decision, ok := e.emergencyFromKeywords(resp, rawMessage); ok {
		return decision
	}

	if resp.Overall.RequiresHuman {
		return Decision{
			Action:     ActionEscalate,
			Items:      resp.Items,
			Confidence: resp.Overall.MaxConfidence,
			Reason:     "model requested human review",
		}
	}

	confidence := resp.Overall.MaxConfidence
	missing := e.missingSlots(resp.Items)

	if confidence >= e.policy.AutoProcessThreshold {
		if len(missing) == 0 {
			return Decision{
				Action:     ActionAutoProcess,
				Items:      resp.Items,
				Confidence: confidence,
				Reason:     fmt.Sprintf("confidence %.2f above auto-process threshold, all required slots present", confidence),
			}
		}
		return Decision{
			Action:       ActionAskConfirm,
			Items:        resp.Items,
			Confidence:   confidence,
			Reason:       fmt.Sprintf("confidence %.2f sufficient but slots missing: %s", confidence, strings.Join(missing, ", ")),
			MissingSlots: missing,
		}
	}

	if confidence >= e.policy.ConfirmThreshold {
		return Decision{
			Action:       ActionAskConfirm,
			Items:        resp.Items,
			Confidence:   confidence,
			Reason:       fmt.Sprintf("confidence %.2f needs sender confirmation", confidence),
			MissingSlots: missing,
		}
	}

	return Decision{
		Action:     ActionEscalate,
		Items:      resp.Items,
		Confidence: confidence,
		Reason:     fmt.Sprintf("low confidence %.2f", confidence),
	}
}

// emergencyFromItems fires on structured emergency output: an emergency
// intent or the emergency_protocol next action on any item.
func (e *Engine) emergencyFromItems(resp *schema.IntentResponse) (Decision, bool) {
	var emergencyItems []schema.IntentItem
	maxConfidence := 0.0
	for _, item := range resp.Items {
		if item.Intent == schema.IntentEmergency || item.NextAction == schema.ActionEmergencyProtocol {
			emergencyItems = append(emergencyItems, item)
			if item.Confidence > maxConfidence {
				maxConfidence = item.Confidence
			}
		}
	}
	if len(emergencyItems) == 0 {
		return Decision{}, false
	}

	urgency := UrgencyHigh
	if maxConfidence > e.policy.EmergencyCriticalThreshold {
		urgency = UrgencyCritical
	}
	return Decision{
		Action:     ActionEmergency,
		Items:      emergencyItems,
		Confidence: maxConfidence,
		Reason:     "emergency intent in model output",
		Urgency:    urgency,
	}, true
}

// emergencyFromKeywords is the safety net for emergencies the model missed:
// a case-insensitive substring scan of the raw message. A hit synthesizes an
// emergency item so downstream consumers see a uniform shape.
func (e *Engine) emergencyFromKeywords(resp *schema.IntentResponse, rawMessage string) (Decision, bool) {
	lowered := strings.ToLower(rawMessage)
	var matched []string
	for _, keyword := range e.policy.EmergencyKeywords {
		if strings.Contains(lowered, keyword) {
			matched = append(matched, keyword)
		}
	}
	if len(matched) == 0 {
		return Decision{}, false
	}

	reason := "emergency keywords in message: " + strings.Join(matched, ", ")
	synthesized := schema.IntentItem{
		Intent:     schema.IntentEmergency,
		Confidence: 0.9,
		NextAction: schema.ActionEmergencyProtocol,
		Notes:      reason,
	}
	urgency := UrgencyHigh
	if synthesized.Confidence > e.policy.EmergencyCriticalThreshold {
		urgency = UrgencyCritical
	}
	return Decision{
		Action:     ActionEmergency,
		Items:      append([]schema.IntentItem{synthesized}, resp.Items...),
		Confidence: synthesized.Confidence,
		Reason:     reason,
		Urgency:    urgency,
	}, true
}

// missingSlots collects the required slot names absent across all items,
// deduplicated and sorted for stable output.
func (e *Engine) missingSlots(items []schema.IntentItem) []string {
	seen := make(map[string]bool)
	for _, item := range items {
		for _, slot := range e.policy.RequiredSlots[item.Intent] {
			if !slotPresent(item.Slots, slot) {
				seen[slot] = true
			}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for slot := range seen {
		out = append(out, slot)
	}
	sort.Strings(out)
	return out
}

func slotPresent(slots schema.Slots, name string) bool {
	nonEmpty := func(s *string) bool { return s != nil && strings.TrimSpace(*s) != "" }
	switch name {
	case "date":
		return nonEmpty(slots.Date)
	case "time":
		return nonEmpty(slots.Time)
	case "reason":
		return nonEmpty(slots.Reason)
	case "person_name":
		return nonEmpty(slots.PersonName)
	case "birth_date":
		return nonEmpty(slots.BirthDate)
	case "medication":
		return nonEmpty(slots.Medication)
	case "symptoms":
		return nonEmpty(slots.Symptoms)
	case "contact":
		return nonEmpty(slots.Contact)
	case "note":
		return nonEmpty(slots.Note)
	case "urgency":
		return slots.Urgency != nil
	case "insurance":
		return slots.Insurance != nil
	default:
		return true
	}
}
