// Package schema turns raw model output into a validated IntentResponse.
// Internal code never operates on unvalidated data: everything downstream of
// Parse works with the types in this file.
package schema

import "time"

// Intent is the categorical purpose of a message fragment.
type Intent string

const (
	IntentAppointmentRequest    Intent = "appointment_request"
	IntentAppointmentReschedule Intent = "appointment_reschedule"
	IntentAppointmentCancel     Intent = "appointment_cancel"
	IntentPrescriptionRequest   Intent = "prescription_request"
	IntentSickNoteRequest       Intent = "sick_note_request"
	IntentResultInquiry         Intent = "result_inquiry"
	IntentGeneralInfo           Intent = "general_info"
	IntentEmergency             Intent = "emergency"
	IntentLabResult             Intent = "lab_result"
	IntentReferral              Intent = "referral"
)

// AllIntents lists every recognized intent.
var AllIntents = []Intent{
	IntentAppointmentRequest,
	IntentAppointmentReschedule,
	IntentAppointmentCancel,
	IntentPrescriptionRequest,
	IntentSickNoteRequest,
	IntentResultInquiry,
	IntentGeneralInfo,
	IntentEmergency,
	IntentLabResult,
	IntentReferral,
}

// Valid reports whether i is a member of the closed intent set.
func (i Intent) Valid() bool {
	for _, known := range AllIntents {
		if i == known {
			return true
		}
	}
	return false
}

// NextAction is the recommended handling step for one item.
type NextAction string

const (
	ActionCompleteSlots        NextAction = "complete_slots"
	ActionProposeAppointment   NextAction = "propose_appointment"
	ActionAskFollowup          NextAction = "ask_followup"
	ActionEscalate             NextAction = "escalate"
	ActionEmergencyProtocol    NextAction = "emergency_protocol"
	ActionImmediateAppointment NextAction = "immediate_appointment"
)

var allNextActions = []NextAction{
	ActionCompleteSlots,
	ActionProposeAppointment,
	ActionAskFollowup,
	ActionEscalate,
	ActionEmergencyProtocol,
	ActionImmediateAppointment,
}

// Valid reports whether a is a member of the closed action set.
func (a NextAction) Valid() bool {
	for _, known := range allNextActions {
		if a == known {
			return true
		}
	}
	return false
}

// Urgency grades how fast a concern needs handling.
type Urgency string

const (
	UrgencyHigh   Urgency = "high"
	UrgencyNormal Urgency = "normal"
	UrgencyLow    Urgency = "low"
)

// Valid reports whether u is a known urgency level.
func (u Urgency) Valid() bool {
	return u == UrgencyHigh || u == UrgencyNormal || u == UrgencyLow
}

// Insurance is the German insurance class of the sender.
type Insurance string

const (
	InsuranceStatutory Insurance = "statutory"
	InsurancePrivate   Insurance = "private"
)

// Valid reports whether v is a known insurance class.
func (v Insurance) Valid() bool {
	return v == InsuranceStatutory || v == InsurancePrivate
}

// Slots holds the optional structured fields extracted for one item. Raw
// relative expressions ("nächsten Montag") are preserved here until the
// normalization step resolves them.
type Slots struct {
	Date       *string    `json:"date"`
	Time       *string    `json:"time"`
	Urgency    *Urgency   `json:"urgency"`
	Reason     *string    `json:"reason"`
	PersonName *string    `json:"person_name"`
	BirthDate  *string    `json:"birth_date"`
	Insurance  *Insurance `json:"insurance"`
	Medication *string    `json:"medication"`
	Symptoms   *string    `json:"symptoms"`
	Contact    *string    `json:"contact"`
	Note       *string    `json:"note"`
}

// IntentItem is one detected concern within a message.
type IntentItem struct {
	Intent     Intent     `json:"intent"`
	Confidence float64    `json:"confidence"`
	Slots      Slots      `json:"slots"`
	NextAction NextAction `json:"next_action"`
	Notes      string     `json:"notes"`
}

// EmailMeta carries message-level metadata from the model.
type EmailMeta struct {
	Language   string     `json:"language"`
	ReceivedAt *time.Time `json:"received_at"`
	Priority   *string    `json:"priority"`
}

// Overall is the model's own summary of its itemized output.
type Overall struct {
	TopIntent     Intent  `json:"top_intent"`
	MaxConfidence float64 `json:"max_confidence"`
	MultiIntent   bool    `json:"multi_intent"`
	Sentiment     string  `json:"sentiment"`
	RequiresHuman bool    `json:"requires_human"`
}

// IntentResponse is the full structured record for one message.
type IntentResponse struct {
	EmailMeta EmailMeta    `json:"email_meta"`
	Items     []IntentItem `json:"items"`
	Overall   Overall      `json:"overall"`

	// Warnings collects advisory plausibility findings. Never serialized
	// back to the model and never fatal.
	Warnings []string `json:"-"`
}

// Clone returns a deep copy. Normalization works on a copy so the parsed
// response handed to the caller is never mutated.
func (r *IntentResponse) Clone() *IntentResponse {
	if r == nil {
		return nil
	}
	out := *r
	out.Items = make([]IntentItem, len(r.Items))
	for i, item := range r.Items {
		copied := item
		copied.Slots = item.Slots.clone()
		out.Items[i] = copied
	}
	if r.EmailMeta.ReceivedAt != nil {
		t := *r.EmailMeta.ReceivedAt
		out.EmailMeta.ReceivedAt = &t
	}
	if r.EmailMeta.Priority != nil {
		p := *r.EmailMeta.Priority
		out.EmailMeta.Priority = &p
	}
	out.Warnings = append([]string(nil), r.Warnings...)
	return &out
}

func (s Slots) clone() Slots {
	out := s
	out.Date = cloneString(s.Date)
	out.Time = cloneString(s.Time)
	out.Reason = cloneString(s.Reason)
	out.PersonName = cloneString(s.PersonName)
	out.BirthDate = cloneString(s.BirthDate)
	out.Medication = cloneString(s.Medication)
	out.Symptoms = cloneString(s.Symptoms)
	out.Contact = cloneString(s.Contact)
	out.Note = cloneString(s.Note)
	if s.Urgency != nil {
		u := *s.Urgency
		out.Urgency = &u
	}
	if s.Insurance != nil {
		v := *s.Insurance
		out.Insurance = &v
	}
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// DistinctIntents returns the set of intents present in items, in first-seen
// order.
func (r *IntentResponse) DistinctIntents() []Intent {
	seen := make(map[Intent]bool, len(r.Items))
	var out []Intent
	for _, item := range r.Items {
		if !seen[item.Intent] {
			seen[item.Intent] = true
			out = append(out, item.Intent)
		}
	}
	return out
}

// HasIntent reports whether any item carries the given intent.
func (r *IntentResponse) HasIntent(intent Intent) bool {
	for _, item := range r.Items {
		if item.Intent == intent {
			return true
		}
	}
	return false
}

// MaxItemConfidence returns the highest item confidence, 0 for no items.
func (r *IntentResponse) MaxItemConfidence() float64 {
	max := 0.0
	for _, item := range r.Items {
		if item.Confidence > max {
			max = item.Confidence
		}
	}
	return max
}
