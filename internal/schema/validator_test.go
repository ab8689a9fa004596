package schema

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	triagerr "github.com/ZeroBranding/MFA-AGENT-DASHBOARD-KALENDER/internal/errors"
)

const validResponse = `{
  "email_meta": {"language": "de", "received_at": null, "priority": null},
  "items": [
    {
      "intent": "appointment_request",
      "confidence": 0.92,
      "slots": {
        "date": "morgen", "time": "9 Uhr", "urgency": "normal",
        "reason": "Rückenschmerzen", "person_name": "Anna Schmidt",
        "birth_date": null, "insurance": "statutory", "medication": null,
        "symptoms": null, "contact": null, "note": null
      },
      "next_action": "propose_appointment",
      "notes": "Patientin bittet um einen Termin"
    }
  ],
  "overall": {
    "top_intent": "appointment_request",
    "max_confidence": 0.92,
    "multi_intent": false,
    "sentiment": "neutral",
    "requires_human": false
  }
}`

func TestParseValidResponse(t *testing.T) {
	v := NewValidator(nil)
	resp, err := v.Parse(validResponse)
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, IntentAppointmentRequest, resp.Items[0].Intent)
	assert.Equal(t, 0.92, resp.Items[0].Confidence)
	require.NotNil(t, resp.Items[0].Slots.Date)
	assert.Equal(t, "morgen", *resp.Items[0].Slots.Date)
	assert.Equal(t, IntentAppointmentRequest, resp.Overall.TopIntent)
	assert.Empty(t, resp.Warnings)
}

func TestParseStripsCodeFencesAndProse(t *testing.T) {
	v := NewValidator(nil)
	wrapped := "Hier ist die Analyse:\n```json\n" + validResponse + "\n```\nViel Erfolg!"
	resp, err := v.Parse(wrapped)
	require.NoError(t, err)
	assert.Equal(t, IntentAppointmentRequest, resp.Overall.TopIntent)
}

func TestParseRepairsTrailingComma(t *testing.T) {
	v := NewValidator(nil)
	broken := `{
	  "items": [
	    {"intent": "general_info", "confidence": 0.7, "next_action": "ask_followup", "notes": "Frage zur Sprechstunde",}
	  ],
	  "overall": {"top_intent": "general_info", "max_confidence": 0.7, "multi_intent": false, "sentiment": "neutral", "requires_human": false},
	}`
	resp, err := v.Parse(broken)
	require.NoError(t, err)
	assert.Equal(t, IntentGeneralInfo, resp.Overall.TopIntent)
}

func TestParseRejectsTopIntentAbsentFromItems(t *testing.T) {
	v := NewValidator(nil)
	bad := `{
	  "items": [{"intent": "general_info", "confidence": 0.7, "next_action": "ask_followup", "notes": "x"}],
	  "overall": {"top_intent": "emergency", "max_confidence": 0.7, "multi_intent": false, "sentiment": "neutral", "requires_human": false}
	}`
	_, err := v.Parse(bad)
	require.Error(t, err)
	assert.True(t, triagerr.IsValidation(err), "expected validation error, got %v", err)
}

func TestParseRejectsConfidenceOutOfRange(t *testing.T) {
	v := NewValidator(nil)
	for _, confidence := range []string{"-0.1", "1.5", "42"} {
		bad := fmt.Sprintf(`{
		  "items": [{"intent": "general_info", "confidence": %s, "next_action": "ask_followup", "notes": "x"}],
		  "overall": {"top_intent": "general_info", "max_confidence": 0.5, "multi_intent": false, "sentiment": "neutral", "requires_human": false}
		}`, confidence)
		_, err := v.Parse(bad)
		require.Error(t, err, "confidence %s should fail", confidence)
		assert.True(t, triagerr.IsValidation(err))
	}
}

func TestParseRejectsUnknownEnumValues(t *testing.T) {
	v := NewValidator(nil)
	bad := `{
	  "items": [{"intent": "pizza_order", "confidence": 0.9, "next_action": "ask_followup", "notes": "x"}],
	  "overall": {"top_intent": "pizza_order", "max_confidence": 0.9, "multi_intent": false, "sentiment": "neutral", "requires_human": false}
	}`
	_, err := v.Parse(bad)
	require.Error(t, err)
	assert.True(t, triagerr.IsValidation(err))
}

func TestParseRejectsEmptyItems(t *testing.T) {
	v := NewValidator(nil)
	bad := `{"items": [], "overall": {"top_intent": "general_info", "max_confidence": 0, "multi_intent": false, "sentiment": "", "requires_human": true}}`
	_, err := v.Parse(bad)
	require.Error(t, err)
	assert.True(t, triagerr.IsValidation(err))
}

func TestParseWarnsOnMaxConfidenceMismatch(t *testing.T) {
	v := NewValidator(nil)
	mismatched := `{
	  "items": [{"intent": "general_info", "confidence": 0.7, "next_action": "ask_followup", "notes": "x"}],
	  "overall": {"top_intent": "general_info", "max_confidence": 0.95, "multi_intent": true, "sentiment": "neutral", "requires_human": false}
	}`
	resp, err := v.Parse(mismatched)
	require.NoError(t, err, "plausibility mismatches must stay non-fatal")
	assert.Len(t, resp.Warnings, 2)
}

// Never-crash property: arbitrary bytes either parse or yield a classified
// error, never a panic or an unclassified failure.
func TestParseNeverPanicsOnArbitraryInput(t *testing.T) {
	v := NewValidator(nil)
	inputs := []string{
		"",
		"   ",
		"kein JSON hier",
		"{",
		"}{",
		`{"items": `,
		"\x00\xff\xfe garbage",
		`{"items": [{"intent": "emergency"`,
		"{{{{{{{{",
		`[1,2,3]`,
		`{"items": null, "overall": null}`,
		string(make([]byte, 512)),
	}
	for _, input := range inputs {
		resp, err := v.Parse(input)
		if err == nil {
			require.NotNil(t, resp)
			require.NotEmpty(t, resp.Items)
			continue
		}
		classified := triagerr.IsParse(err) || triagerr.IsValidation(err)
		assert.True(t, classified, "unclassified error %T for input %q", err, input)
	}
}

func TestParseIsIdempotent(t *testing.T) {
	v := NewValidator(nil)
	first, err := v.Parse(validResponse)
	require.NoError(t, err)
	second, err := v.Parse(validResponse)
	require.NoError(t, err)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("two parses of identical input differ:\n%+v\n%+v", first, second)
	}
}

func TestFallbackIsValid(t *testing.T) {
	resp := Fallback("model timeout")
	require.NotEmpty(t, resp.Items)
	assert.Equal(t, IntentGeneralInfo, resp.Overall.TopIntent)
	assert.True(t, resp.Overall.RequiresHuman)
	assert.Equal(t, ActionEscalate, resp.Items[0].NextAction)
	assert.True(t, resp.HasIntent(resp.Overall.TopIntent))
}

func TestCloneDoesNotShareSlotPointers(t *testing.T) {
	v := NewValidator(nil)
	resp, err := v.Parse(validResponse)
	require.NoError(t, err)

	clone := resp.Clone()
	*clone.Items[0].Slots.Date = "2026-09-01"
	assert.Equal(t, "morgen", *resp.Items[0].Slots.Date)
}
