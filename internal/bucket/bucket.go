// Package bucket groups validated intent items into per-intent buckets and
// derives an ordered processing plan with a complexity score.
package bucket

import (
	"sort"

	"github.com/ZeroBranding/MFA-AGENT-DASHBOARD-KALENDER/internal/schema"
)

// priorityRank orders intents for processing, 1 = handle first.
var priorityRank = map[schema.Intent]int{
	schema.IntentEmergency:             1,
	schema.IntentAppointmentCancel:     2,
	schema.IntentAppointmentReschedule: 3,
	schema.IntentAppointmentRequest:    4,
	schema.IntentSickNoteRequest:       5,
	schema.IntentPrescriptionRequest:   6,
	schema.IntentResultInquiry:         7,
	schema.IntentLabResult:             8,
	schema.IntentReferral:              9,
	schema.IntentGeneralInfo:           10,
}

// perIntentMinutes estimates handling effort per item. Emergencies are zero:
// they are handed off immediately, not worked in the queue.
var perIntentMinutes = map[schema.Intent]int{
	schema.IntentEmergency:             0,
	schema.IntentAppointmentRequest:    3,
	schema.IntentAppointmentReschedule: 3,
	schema.IntentAppointmentCancel:     2,
	schema.IntentPrescriptionRequest:   2,
	schema.IntentSickNoteRequest:       2,
	schema.IntentResultInquiry:         2,
	schema.IntentLabResult:             2,
	schema.IntentReferral:              3,
	schema.IntentGeneralInfo:           1,
}

// appointmentFamily are mutually compatible and also combine with
// prescription requests and general questions in one sitting.
var appointmentFamily = map[schema.Intent]bool{
	schema.IntentAppointmentRequest:    true,
	schema.IntentAppointmentReschedule: true,
	schema.IntentAppointmentCancel:     true,
}

var appointmentCompatible = map[schema.Intent]bool{
	schema.IntentAppointmentRequest:    true,
	schema.IntentAppointmentReschedule: true,
	schema.IntentAppointmentCancel:     true,
	schema.IntentPrescriptionRequest:   true,
	schema.IntentGeneralInfo:           true,
}

// ComplexityLevel buckets the numeric score.
type ComplexityLevel string

const (
	ComplexitySimple   ComplexityLevel = "simple"
	ComplexityMedium   ComplexityLevel = "medium"
	ComplexityComplex  ComplexityLevel = "complex"
	ComplexityCritical ComplexityLevel = "critical"
)

// Complexity is the 0–1 difficulty estimate for one message.
type Complexity struct {
	Score float64         `json:"score"`
	Level ComplexityLevel `json:"level"`
}

// IntentBucket collects the items sharing one intent.
type IntentBucket struct {
	Intent     schema.Intent       `json:"intent"`
	Items      []schema.IntentItem `json:"items"`
	Confidence float64             `json:"confidence"` // arithmetic mean of members
	Priority   int                 `json:"priority"`
}

// ProcessingPlan is the ordered handling plan for one message.
type ProcessingPlan struct {
	Buckets          []IntentBucket  `json:"buckets"`
	Order            []schema.Intent `json:"order"`
	TotalItems       int             `json:"total_items"`
	MultiIntent      bool            `json:"multi_intent"`
	EstimatedMinutes int             `json:"estimated_minutes"`
	Compatible       bool            `json:"compatible"`
	Complexity       Complexity      `json:"complexity"`
}

// Build groups items, orders the buckets and scores the plan. Empty input
// yields an empty plan.
func Build(items []schema.IntentItem) *ProcessingPlan {
	plan := &ProcessingPlan{Compatible: true}
	if len(items) == 0 {
		plan.Complexity = Complexity{Level: ComplexitySimple}
		return plan
	}

	grouped := make(map[schema.Intent][]schema.IntentItem)
	var seen []schema.Intent
	for _, item := range items {
		if _, ok := grouped[item.Intent]; !ok {
			seen = append(seen, item.Intent)
		}
		grouped[item.Intent] = append(grouped[item.Intent], item)
	}

	for _, intent := range seen {
		members := grouped[intent]
		sum := 0.0
		for _, m := range members {
			sum += m.Confidence
		}
		plan.Buckets = append(plan.Buckets, IntentBucket{
			Intent:     intent,
			Items:      members,
			Confidence: sum / float64(len(members)),
			Priority:   priorityRank[intent],
		})
		plan.EstimatedMinutes += perIntentMinutes[intent] * len(members)
	}

	// Rank ascending; equal ranks put the more confident bucket first.
	sort.SliceStable(plan.Buckets, func(i, j int) bool {
		if plan.Buckets[i].Priority != plan.Buckets[j].Priority {
			return plan.Buckets[i].Priority < plan.Buckets[j].Priority
		}
		return plan.Buckets[i].Confidence > plan.Buckets[j].Confidence
	})

	plan.TotalItems = len(items)
	plan.MultiIntent = len(plan.Buckets) > 1
	for _, b := range plan.Buckets {
		plan.Order = append(plan.Order, b.Intent)
	}
	plan.Compatible = compatible(plan.Buckets)
	plan.Complexity = scoreComplexity(plan)
	return plan
}

// compatible applies the combination rules: an emergency must stand alone;
// appointment-family intents mix with each other, prescription requests and
// general questions; everything else is an incompatible mixture.
func compatible(buckets []IntentBucket) bool {
	if len(buckets) <= 1 {
		return true
	}
	hasAppointment := false
	for _, b := range buckets {
		if b.Intent == schema.IntentEmergency {
			return false
		}
		if appointmentFamily[b.Intent] {
			hasAppointment = true
		}
	}
	if hasAppointment {
		for _, b := range buckets {
			if !appointmentCompatible[b.Intent] {
				return false
			}
		}
		return true
	}
	return false
}

func scoreComplexity(plan *ProcessingPlan) Complexity {
	score := 0.0

	extra := len(plan.Buckets) - 1
	if extra > 3 {
		extra = 3
	}
	if extra > 0 {
		score += 0.2 * float64(extra)
	}

	meanConfidence := 0.0
	hasEmergency := false
	for _, b := range plan.Buckets {
		meanConfidence += b.Confidence
		if b.Intent == schema.IntentEmergency {
			hasEmergency = true
		}
	}
	if len(plan.Buckets) > 0 {
		meanConfidence /= float64(len(plan.Buckets))
	}

	if hasEmergency {
		score += 0.5
	}
	if meanConfidence < 0.6 {
		score += 0.3
	}
	if plan.EstimatedMinutes > 5 {
		score += 0.2
	}
	if !plan.Compatible {
		score += 0.3
	}
	if score > 1 {
		score = 1
	}

	return Complexity{Score: score, Level: levelFor(score)}
}

func levelFor(score float64) ComplexityLevel {
	switch {
	case score >= 0.8:
		return ComplexityCritical
	case score >= 0.5:
		return ComplexityComplex
	case score >= 0.3:
		return ComplexityMedium
	default:
		return ComplexitySimple
	}
}
