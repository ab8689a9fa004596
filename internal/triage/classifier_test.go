package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZeroBranding/MFA-AGENT-DASHBOARD-KALENDER/internal/bucket"
	triagerr "github.com/ZeroBranding/MFA-AGENT-DASHBOARD-KALENDER/internal/errors"
	"github.com/ZeroBranding/MFA-AGENT-DASHBOARD-KALENDER/internal/gate"
	"github.com/ZeroBranding/MFA-AGENT-DASHBOARD-KALENDER/internal/hours"
	"github.com/ZeroBranding/MFA-AGENT-DASHBOARD-KALENDER/internal/llm"
	"github.com/ZeroBranding/MFA-AGENT-DASHBOARD-KALENDER/internal/schema"
	"github.com/ZeroBranding/MFA-AGENT-DASHBOARD-KALENDER/internal/timenorm"
)

const appointmentResponse = `{
	"email_meta": {"language": "de", "received_at": "2026-09-01T08:00:00+02:00", "priority": null},
	"items": [{
		"intent": "appointment_request",
		"confidence": 0.92,
		"slots": {"date": "morgen", "time": "09:00", "urgency": null, "reason": "Kontrolle", "person_name": null, "birth_date": null, "insurance": null, "medication": null, "symptoms": null, "contact": null, "note": null},
		"next_action": "propose_appointment",
		"notes": "Terminwunsch mit Datum und Uhrzeit"
	}],
	"overall": {"top_intent": "appointment_request", "max_confidence": 0.92, "multi_intent": false, "sentiment": "neutral", "requires_human": false}
}`

func newTestClassifier(t *testing.T, client llm.Client) *Classifier {
	t.Helper()
	normalizer := timenorm.New(nil, hours.NewOracle(), timenorm.Config{}, nil)
	return New(client, normalizer, gate.New(gate.DefaultPolicy()), Config{}, NewMetrics(prometheus.NewRegistry()), nil)
}

func TestClassifyHappyPath(t *testing.T) {
	c := newTestClassifier(t, llm.NewMockClient(appointmentResponse))

	got := c.Classify(context.Background(), "Guten Tag, ich hätte gern morgen um 9 Uhr einen Termin zur Kontrolle.")
	require.True(t, got.Success)
	require.NotNil(t, got.Response)
	assert.NotEmpty(t, got.ID)
	assert.Empty(t, got.Error)

	// Relative date resolved against the mail's received timestamp.
	require.Len(t, got.Normalized, 1)
	require.NotNil(t, got.Normalized[0])
	assert.Equal(t, "2026-09-02", got.Normalized[0].DateOnly)
	assert.True(t, got.Normalized[0].WithinBusinessHours)
	require.NotNil(t, got.Response.Items[0].Slots.Date)
	assert.Equal(t, "2026-09-02", *got.Response.Items[0].Slots.Date)

	assert.Equal(t, gate.ActionAutoProcess, got.Decision.Action)
	require.NotNil(t, got.Plan)
	assert.Equal(t, []schema.Intent{schema.IntentAppointmentRequest}, got.Plan.Order)
	assert.Positive(t, got.Duration)
}

func TestClassifyLeavesParsedResponseUnmutated(t *testing.T) {
	c := newTestClassifier(t, llm.NewMockClient(appointmentResponse))
	got := c.Classify(context.Background(), "Termin bitte")

	// The normalized response is a copy; the raw slot survives in the raw
	// model output, the resolved slot in the response.
	assert.Contains(t, got.RawModel, `"morgen"`)
	assert.NotEqual(t, "morgen", *got.Response.Items[0].Slots.Date)
}

func TestClassifyModelFailureYieldsSyntheticEscalate(t *testing.T) {
	client := llm.NewMockClient("").FailWith(triagerr.NewServiceUnavailableError("ollama", errors.New("connection refused")))
	c := newTestClassifier(t, client)

	got := c.Classify(context.Background(), "Hallo, ich brauche ein Rezept.")
	assert.False(t, got.Success)
	assert.Contains(t, got.Error, "model call failed")
	require.NotNil(t, got.Response, "fatal failures still produce a decidable bundle")
	assert.Equal(t, gate.ActionEscalate, got.Decision.Action)
	assert.True(t, got.Response.Overall.RequiresHuman)
	require.NotNil(t, got.Plan)
	assert.Equal(t, 1, got.Plan.TotalItems)
}

func TestFatalFailureScoresCriticalComplexity(t *testing.T) {
	client := llm.NewMockClient("").FailWith(errors.New("backend down"))
	c := newTestClassifier(t, client)

	got := c.Classify(context.Background(), "Hallo, ich brauche ein Rezept.")
	require.False(t, got.Success)
	require.NotNil(t, got.Plan)
	assert.Equal(t, bucket.ComplexityCritical, got.Plan.Complexity.Level)
	assert.InDelta(t, 1.0, got.Plan.Complexity.Score, 1e-9)
}

func TestClassifyEmergencyKeywordsFireEvenOnModelFailure(t *testing.T) {
	client := llm.NewMockClient("").FailWith(errors.New("backend down"))
	c := newTestClassifier(t, client)

	got := c.Classify(context.Background(), "Mein Vater hat starke Brustschmerzen und Atemnot!")
	assert.False(t, got.Success)
	assert.Equal(t, gate.ActionEmergency, got.Decision.Action, "keyword safety net works without the model")
}

func TestClassifyGarbageOutputDegradesToFallback(t *testing.T) {
	c := newTestClassifier(t, llm.NewMockClient("Entschuldigung, das kann ich nicht."))

	got := c.Classify(context.Background(), "Wie sind Ihre Öffnungszeiten?")
	require.True(t, got.Success, "recoverable parse failure degrades, it does not abort")
	require.NotNil(t, got.Response)
	assert.Equal(t, schema.IntentGeneralInfo, got.Response.Items[0].Intent)
	assert.Equal(t, gate.ActionEscalate, got.Decision.Action)
	require.NotEmpty(t, got.Warnings)
	assert.Contains(t, got.Warnings[0], "fallback")
}

func TestClassifyFatalValidationYieldsFailure(t *testing.T) {
	// top_intent names an intent absent from items.
	bad := `{
		"email_meta": {"language": "de"},
		"items": [{"intent": "general_info", "confidence": 0.9, "slots": {}, "next_action": "ask_followup", "notes": "x"}],
		"overall": {"top_intent": "emergency", "max_confidence": 0.9, "multi_intent": false, "sentiment": "neutral", "requires_human": false}
	}`
	c := newTestClassifier(t, llm.NewMockClient(bad))

	got := c.Classify(context.Background(), "Hallo")
	assert.False(t, got.Success)
	assert.Contains(t, got.Error, "validation failed")
	assert.Equal(t, gate.ActionEscalate, got.Decision.Action)
}

func TestClassifyUnresolvableDateKeepsRawSlotAndWarns(t *testing.T) {
	vague := `{
		"email_meta": {"language": "de"},
		"items": [{
			"intent": "appointment_request",
			"confidence": 0.9,
			"slots": {"date": "irgendwann im Herbst"},
			"next_action": "complete_slots",
			"notes": "vager Terminwunsch"
		}],
		"overall": {"top_intent": "appointment_request", "max_confidence": 0.9, "multi_intent": false, "sentiment": "neutral", "requires_human": false}
	}`
	c := newTestClassifier(t, llm.NewMockClient(vague))

	got := c.Classify(context.Background(), "Ich möchte irgendwann im Herbst einen Termin.")
	require.True(t, got.Success)
	require.NotNil(t, got.Response.Items[0].Slots.Date)
	assert.Equal(t, "irgendwann im Herbst", *got.Response.Items[0].Slots.Date, "unresolved slot keeps its raw text")
	require.NotEmpty(t, got.Warnings)
	assert.Contains(t, got.Warnings[len(got.Warnings)-1], "normalization incomplete")
}

func TestClassifyFailedNormalizationDoesNotCorruptSiblings(t *testing.T) {
	multi := `{
		"email_meta": {"language": "de", "received_at": "2026-09-01T08:00:00+02:00"},
		"items": [
			{"intent": "appointment_request", "confidence": 0.9, "slots": {"date": "völlig unklar wann"}, "next_action": "complete_slots", "notes": "vage"},
			{"intent": "appointment_reschedule", "confidence": 0.85, "slots": {"date": "02.09.2026", "time": "09:00"}, "next_action": "propose_appointment", "notes": "klar"}
		],
		"overall": {"top_intent": "appointment_request", "max_confidence": 0.9, "multi_intent": true, "sentiment": "neutral", "requires_human": false}
	}`
	c := newTestClassifier(t, llm.NewMockClient(multi))

	got := c.Classify(context.Background(), "Zwei Anliegen")
	require.True(t, got.Success)
	require.Len(t, got.Response.Items, 2)
	assert.Equal(t, "völlig unklar wann", *got.Response.Items[0].Slots.Date)
	assert.Equal(t, "2026-09-02", *got.Response.Items[1].Slots.Date)
	require.NotNil(t, got.Normalized[1])
	assert.True(t, got.Normalized[1].WithinBusinessHours)
}

func TestEveryFailedNormalizationGetsItsOwnWarning(t *testing.T) {
	multi := `{
		"email_meta": {"language": "de"},
		"items": [
			{"intent": "appointment_request", "confidence": 0.9, "slots": {"date": "völlig unklar"}, "next_action": "complete_slots", "notes": "vage"},
			{"intent": "appointment_reschedule", "confidence": 0.9, "slots": {"date": "auch unklar"}, "next_action": "complete_slots", "notes": "vage"}
		],
		"overall": {"top_intent": "appointment_request", "max_confidence": 0.9, "multi_intent": true, "sentiment": "neutral", "requires_human": false}
	}`
	c := newTestClassifier(t, llm.NewMockClient(multi))

	got := c.Classify(context.Background(), "Zwei vage Anliegen")
	require.True(t, got.Success)

	incomplete := 0
	for _, w := range got.Warnings {
		if strings.Contains(w, "normalization incomplete") {
			incomplete++
		}
	}
	assert.Equal(t, 2, incomplete, "one warning per unresolved item")
}

func TestLoneTimeSlotDoesNotFabricateDate(t *testing.T) {
	timeOnly := `{
		"email_meta": {"language": "de", "received_at": "2026-09-01T08:00:00+02:00"},
		"items": [{
			"intent": "appointment_request",
			"confidence": 0.9,
			"slots": {"time": "09:00"},
			"next_action": "complete_slots",
			"notes": "Uhrzeit ohne Datum"
		}],
		"overall": {"top_intent": "appointment_request", "max_confidence": 0.9, "multi_intent": false, "sentiment": "neutral", "requires_human": false}
	}`
	c := newTestClassifier(t, llm.NewMockClient(timeOnly))

	got := c.Classify(context.Background(), "Geht es um 9 Uhr?")
	require.True(t, got.Success)

	// The reference day fills the gap for the business-hours verdict, but
	// the slot the sender never provided stays empty.
	assert.Nil(t, got.Response.Items[0].Slots.Date)
	require.NotNil(t, got.Response.Items[0].Slots.Time)
	assert.Equal(t, "09:00", *got.Response.Items[0].Slots.Time)
	require.NotNil(t, got.Normalized[0])
	assert.Equal(t, "2026-09-01", got.Normalized[0].DateOnly)

	assert.Equal(t, gate.ActionAskConfirm, got.Decision.Action)
	assert.Contains(t, got.Decision.MissingSlots, "date")
}

func TestDefaultModelTimeout(t *testing.T) {
	c := newTestClassifier(t, llm.NewMockClient(appointmentResponse))
	assert.Equal(t, 30*time.Second, c.config.ModelTimeout)
}

func TestClassifyBatchPreservesOrder(t *testing.T) {
	c := newTestClassifier(t, llm.NewMockClient(appointmentResponse))

	messages := make([]string, 7)
	for i := range messages {
		messages[i] = fmt.Sprintf("Nachricht %d: Termin morgen um 9 Uhr bitte.", i)
	}
	results := c.ClassifyBatch(context.Background(), messages)

	require.Len(t, results, 7)
	for i, r := range results {
		require.NotNil(t, r, "slot %d", i)
		assert.Equal(t, messages[i], r.Input)
		assert.True(t, r.Success)
	}
}

func TestClassifyBatchIsolatesFailures(t *testing.T) {
	client := llm.NewMockClient(appointmentResponse, "", appointmentResponse).
		FailWith(nil, errors.New("backend hiccup"), nil)
	c := newTestClassifier(t, client)

	results := c.ClassifyBatch(context.Background(), []string{"a", "b", "c"})
	require.Len(t, results, 3)

	failures := 0
	for _, r := range results {
		require.NotNil(t, r)
		if !r.Success {
			failures++
			assert.Equal(t, gate.ActionEscalate, r.Decision.Action)
		}
	}
	assert.Equal(t, 1, failures, "exactly the scripted call fails")
}

func TestClassifyHonorsModelTimeout(t *testing.T) {
	slow := &slowClient{delay: 200 * time.Millisecond}
	normalizer := timenorm.New(nil, hours.NewOracle(), timenorm.Config{}, nil)
	c := New(slow, normalizer, gate.New(gate.DefaultPolicy()),
		Config{ModelTimeout: 20 * time.Millisecond}, nil, nil)

	start := time.Now()
	got := c.Classify(context.Background(), "Termin bitte")
	assert.False(t, got.Success)
	assert.Less(t, time.Since(start), slow.delay, "timeout cuts the call short")
}

type slowClient struct {
	delay time.Duration
}

func (s *slowClient) Generate(ctx context.Context, _, model string) (*llm.GenerateResult, error) {
	select {
	case <-time.After(s.delay):
		return &llm.GenerateResult{Response: appointmentResponse, Model: model}, nil
	case <-ctx.Done():
		return nil, triagerr.NewTimeoutError("generate", ctx.Err())
	}
}
