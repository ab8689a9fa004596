package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	triagerr "github.com/ZeroBranding/MFA-AGENT-DASHBOARD-KALENDER/internal/errors"
	"github.com/ZeroBranding/MFA-AGENT-DASHBOARD-KALENDER/internal/logging"
)

// Validator parses raw model text into a validated IntentResponse.
type Validator struct {
	logger *logging.Logger
}

// NewValidator returns a validator. logger may be nil.
func NewValidator(logger *logging.Logger) *Validator {
	return &Validator{logger: logging.OrNop(logger)}
}

// wire types mirror the schema with pointers on required fields so a missing
// field is distinguishable from a zero value.
type wireResponse struct {
	EmailMeta *wireEmailMeta `json:"email_meta"`
	Items     []wireItem     `json:"items"`
	Overall   *wireOverall   `json:"overall"`
}

type wireEmailMeta struct {
	Language   *string    `json:"language"`
	ReceivedAt *time.Time `json:"received_at"`
	Priority   *string    `json:"priority"`
}

type wireItem struct {
	Intent     *string  `json:"intent"`
	Confidence *float64 `json:"confidence"`
	Slots      *Slots   `json:"slots"`
	NextAction *string  `json:"next_action"`
	Notes      *string  `json:"notes"`
}

type wireOverall struct {
	TopIntent     *string  `json:"top_intent"`
	MaxConfidence *float64 `json:"max_confidence"`
	MultiIntent   *bool    `json:"multi_intent"`
	Sentiment     *string  `json:"sentiment"`
	RequiresHuman *bool    `json:"requires_human"`
}

// Parse extracts, repairs, decodes and validates raw model output. It either
// returns a valid response or a classified error; arbitrary byte input never
// panics. Calling Parse twice on the same input yields identical output.
func (v *Validator) Parse(raw string) (*IntentResponse, error) {
	fragment := extractJSON(raw)
	if strings.TrimSpace(fragment) == "" {
		return nil, triagerr.NewParseError(fmt.Errorf("no JSON object found in model output"), raw)
	}

	wire, err := decodeStrict(fragment)
	if err != nil {
		for _, candidate := range repairJSON(fragment) {
			if repaired, repairedErr := decodeStrict(candidate); repairedErr == nil {
				v.logger.Debug("model output repaired before decoding")
				wire = repaired
				err = nil
				break
			}
		}
	}
	if err != nil {
		return nil, triagerr.NewParseError(err, fragment)
	}

	resp, err := v.validate(wire)
	if err != nil {
		return nil, err
	}
	for _, w := range resp.Warnings {
		v.logger.Warn("plausibility warning", "detail", w)
	}
	return resp, nil
}

func decodeStrict(fragment string) (*wireResponse, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(fragment)))
	dec.DisallowUnknownFields()
	var wire wireResponse
	if err := dec.Decode(&wire); err != nil {
		return nil, err
	}
	return &wire, nil
}

// validate enforces every field-level constraint and runs the cross-field
// plausibility checks. The only fatal cross-field check is a top_intent that
// appears in no item.
func (v *Validator) validate(wire *wireResponse) (*IntentResponse, error) {
	if len(wire.Items) == 0 {
		return nil, triagerr.NewValidationError("items", "must not be empty")
	}
	if wire.Overall == nil {
		return nil, triagerr.NewValidationError("overall", "missing")
	}
	if wire.Overall.TopIntent == nil {
		return nil, triagerr.NewValidationError("overall.top_intent", "missing")
	}

	resp := &IntentResponse{
		EmailMeta: EmailMeta{Language: "de"},
		Items:     make([]IntentItem, 0, len(wire.Items)),
	}

	if wire.EmailMeta != nil {
		if wire.EmailMeta.Language != nil {
			lang := strings.ToLower(strings.TrimSpace(*wire.EmailMeta.Language))
			if lang != "" && lang != "de" {
				return nil, triagerr.NewValidationError("email_meta.language", "unsupported language %q", lang)
			}
		}
		resp.EmailMeta.ReceivedAt = wire.EmailMeta.ReceivedAt
		resp.EmailMeta.Priority = wire.EmailMeta.Priority
	}

	for i, item := range wire.Items {
		validated, err := validateItem(i, item)
		if err != nil {
			return nil, err
		}
		resp.Items = append(resp.Items, validated)
	}

	topIntent := Intent(*wire.Overall.TopIntent)
	if !topIntent.Valid() {
		return nil, triagerr.NewValidationError("overall.top_intent", "unknown intent %q", topIntent)
	}
	resp.Overall.TopIntent = topIntent
	if wire.Overall.MaxConfidence != nil {
		if *wire.Overall.MaxConfidence < 0 || *wire.Overall.MaxConfidence > 1 {
			return nil, triagerr.NewValidationError("overall.max_confidence", "out of range: %v", *wire.Overall.MaxConfidence)
		}
		resp.Overall.MaxConfidence = *wire.Overall.MaxConfidence
	}
	if wire.Overall.MultiIntent != nil {
		resp.Overall.MultiIntent = *wire.Overall.MultiIntent
	}
	if wire.Overall.Sentiment != nil {
		resp.Overall.Sentiment = *wire.Overall.Sentiment
	}
	if wire.Overall.RequiresHuman != nil {
		resp.Overall.RequiresHuman = *wire.Overall.RequiresHuman
	}

	// top_intent must name an intent that actually occurs in the items.
	// This is the one cross-field check that is fatal: the model summary
	// contradicts its own itemized output.
	if !resp.HasIntent(topIntent) {
		return nil, triagerr.NewValidationError("overall.top_intent", "%q appears in no item", topIntent)
	}

	resp.Warnings = append(resp.Warnings, plausibilityWarnings(resp)...)
	return resp, nil
}

func validateItem(index int, item wireItem) (IntentItem, error) {
	path := func(field string) string { return fmt.Sprintf("items[%d].%s", index, field) }

	if item.Intent == nil {
		return IntentItem{}, triagerr.NewValidationError(path("intent"), "missing")
	}
	intent := Intent(*item.Intent)
	if !intent.Valid() {
		return IntentItem{}, triagerr.NewValidationError(path("intent"), "unknown intent %q", intent)
	}
	if item.Confidence == nil {
		return IntentItem{}, triagerr.NewValidationError(path("confidence"), "missing")
	}
	if *item.Confidence < 0 || *item.Confidence > 1 || math.IsNaN(*item.Confidence) {
		return IntentItem{}, triagerr.NewValidationError(path("confidence"), "out of range: %v", *item.Confidence)
	}
	if item.NextAction == nil {
		return IntentItem{}, triagerr.NewValidationError(path("next_action"), "missing")
	}
	action := NextAction(*item.NextAction)
	if !action.Valid() {
		return IntentItem{}, triagerr.NewValidationError(path("next_action"), "unknown action %q", action)
	}
	if item.Notes == nil || strings.TrimSpace(*item.Notes) == "" {
		return IntentItem{}, triagerr.NewValidationError(path("notes"), "must not be empty")
	}

	var slots Slots
	if item.Slots != nil {
		slots = *item.Slots
		if slots.Urgency != nil && !slots.Urgency.Valid() {
			return IntentItem{}, triagerr.NewValidationError(path("slots.urgency"), "unknown urgency %q", *slots.Urgency)
		}
		if slots.Insurance != nil && !slots.Insurance.Valid() {
			return IntentItem{}, triagerr.NewValidationError(path("slots.insurance"), "unknown insurance class %q", *slots.Insurance)
		}
	}

	return IntentItem{
		Intent:     intent,
		Confidence: *item.Confidence,
		Slots:      slots,
		NextAction: action,
		Notes:      *item.Notes,
	}, nil
}

// urgentWords are German urgency markers that should coincide with a high
// urgency slot. A mismatch is advisory only.
var urgentWords = []string{"dringend", "sofort", "akut", "notfall", "schnellstmöglich"}

// plausibilityWarnings runs the advisory cross-field checks: declared
// max_confidence and multi_intent against the computed values, and urgency
// wording against the urgency slot. Warn-only by design decision; see the
// repository design notes.
func plausibilityWarnings(resp *IntentResponse) []string {
	var warnings []string

	computed := resp.MaxItemConfidence()
	if math.Abs(resp.Overall.MaxConfidence-computed) > 1e-6 {
		warnings = append(warnings, fmt.Sprintf(
			"overall.max_confidence %.3f does not match computed item maximum %.3f",
			resp.Overall.MaxConfidence, computed))
	}

	multi := len(resp.DistinctIntents()) > 1
	if resp.Overall.MultiIntent != multi {
		warnings = append(warnings, fmt.Sprintf(
			"overall.multi_intent %v does not match %d distinct intents",
			resp.Overall.MultiIntent, len(resp.DistinctIntents())))
	}

	for i, item := range resp.Items {
		if item.Slots.Urgency != nil && *item.Slots.Urgency == UrgencyHigh {
			continue
		}
		text := strings.ToLower(joinSlotText(item))
		for _, word := range urgentWords {
			if strings.Contains(text, word) {
				warnings = append(warnings, fmt.Sprintf(
					"items[%d] mentions %q but urgency slot is not high", i, word))
				break
			}
		}
	}

	return warnings
}

func joinSlotText(item IntentItem) string {
	parts := []string{item.Notes}
	for _, s := range []*string{item.Slots.Reason, item.Slots.Symptoms, item.Slots.Note} {
		if s != nil {
			parts = append(parts, *s)
		}
	}
	return strings.Join(parts, " ")
}
