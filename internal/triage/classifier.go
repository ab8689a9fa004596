// Package triage runs the end-to-end classification pipeline: prompt
// assembly, model call, schema validation, time normalization, gate decision
// and processing plan. Classify never returns an error; failures surface as
// an unsuccessful result that still carries a usable decision.
package triage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ZeroBranding/MFA-AGENT-DASHBOARD-KALENDER/internal/bucket"
	triagerr "github.com/ZeroBranding/MFA-AGENT-DASHBOARD-KALENDER/internal/errors"
	"github.com/ZeroBranding/MFA-AGENT-DASHBOARD-KALENDER/internal/gate"
	"github.com/ZeroBranding/MFA-AGENT-DASHBOARD-KALENDER/internal/llm"
	"github.com/ZeroBranding/MFA-AGENT-DASHBOARD-KALENDER/internal/logging"
	"github.com/ZeroBranding/MFA-AGENT-DASHBOARD-KALENDER/internal/schema"
	"github.com/ZeroBranding/MFA-AGENT-DASHBOARD-KALENDER/internal/timenorm"
)

const (
	defaultModelTimeout    = 30 * time.Second
	defaultBatchConcurrent = 3
)

// ClassificationResult is the complete outcome bundle for one message.
type ClassificationResult struct {
	ID       string `json:"id"`
	Input    string `json:"input"`
	RawModel string `json:"raw_model_output"`
	// Response is the validated response with normalized date/time strings
	// written back into the slots.
	Response *schema.IntentResponse `json:"response"`
	// Normalized holds one entry per item, nil where the item carried no
	// date or time slot.
	Normalized []*timenorm.NormalizedDateTime `json:"normalized"`
	Decision   gate.Decision                  `json:"decision"`
	Plan       *bucket.ProcessingPlan         `json:"plan"`
	Success    bool                           `json:"success"`
	Error      string                         `json:"error,omitempty"`
	Warnings   []string                       `json:"warnings,omitempty"`
	Duration   time.Duration                  `json:"duration"`
}

// Config tunes the classifier.
type Config struct {
	Model            string        `mapstructure:"model"`
	ModelTimeout     time.Duration `mapstructure:"model_timeout"`
	BatchConcurrency int           `mapstructure:"batch_concurrency"`
}

// Classifier wires the pipeline stages together. Safe for concurrent use.
type Classifier struct {
	client     llm.Client
	validator  *schema.Validator
	normalizer *timenorm.Normalizer
	engine     *gate.Engine
	config     Config
	metrics    *Metrics
	tracer     trace.Tracer
	logger     *logging.Logger
}

// New builds a classifier. metrics may be nil.
func New(client llm.Client, normalizer *timenorm.Normalizer, engine *gate.Engine, config Config, metrics *Metrics, logger *logging.Logger) *Classifier {
	if config.ModelTimeout <= 0 {
		config.ModelTimeout = defaultModelTimeout
	}
	if config.BatchConcurrency <= 0 {
		config.BatchConcurrency = defaultBatchConcurrent
	}
	logger = logging.OrNop(logger)
	return &Classifier{
		client:     client,
		validator:  schema.NewValidator(logger),
		normalizer: normalizer,
		engine:     engine,
		config:     config,
		metrics:    metrics,
		tracer:     otel.Tracer("triage"),
		logger:     logger,
	}
}

// Classify runs the full pipeline for one raw mail body. It never returns an
// error: model failures and fatal validation errors produce an unsuccessful
// result carrying a synthetic escalate decision.
func (c *Classifier) Classify(ctx context.Context, rawMessage string) *ClassificationResult {
	ctx, span := c.tracer.Start(ctx, "triage.classify")
	defer span.End()

	start := time.Now()
	result := &ClassificationResult{
		ID:    uuid.NewString(),
		Input: rawMessage,
	}
	span.SetAttributes(attribute.String("triage.result_id", result.ID))

	text := ExtractText(rawMessage)
	prompt := BuildPrompt(text)

	generated, err := c.generate(ctx, prompt)
	if err != nil {
		c.finishFatal(result, start, fmt.Sprintf("model call failed: %v", err), text)
		return result
	}
	result.RawModel = generated.Response
	span.SetAttributes(attribute.String("triage.model", generated.Model))

	response, err := c.validator.Parse(generated.Response)
	usedFallback := false
	if err != nil {
		if !triagerr.IsRecoverable(err) {
			c.finishFatal(result, start, fmt.Sprintf("validation failed: %v", err), text)
			return result
		}
		c.logger.Warn("model output unusable, degrading to fallback response", "error", err)
		response = schema.Fallback(fmt.Sprintf("unparseable model output: %v", err))
		usedFallback = true
		result.Warnings = append(result.Warnings, fmt.Sprintf("fallback response substituted: %v", err))
	}
	result.Warnings = append(result.Warnings, response.Warnings...)

	normalized := c.normalizeItems(ctx, response, result)
	result.Response = normalized
	result.Decision = c.engine.Decide(normalized, text)
	result.Plan = bucket.Build(normalized.Items)
	result.Success = true
	result.Duration = time.Since(start)

	span.SetAttributes(
		attribute.String("triage.decision", string(result.Decision.Action)),
		attribute.Int("triage.items", len(normalized.Items)),
	)
	c.metrics.observe("ok", string(result.Decision.Action), result.Duration.Seconds(), usedFallback)
	c.logger.Info("classification done",
		"id", result.ID,
		"decision", result.Decision.Action,
		"items", len(normalized.Items),
		"complexity", result.Plan.Complexity.Level,
		"duration", result.Duration,
	)
	return result
}

// ClassifyBatch classifies many messages with bounded model concurrency.
// Output order matches input order; individual failures stay individual.
func (c *Classifier) ClassifyBatch(ctx context.Context, messages []string) []*ClassificationResult {
	results := make([]*ClassificationResult, len(messages))

	var group errgroup.Group
	group.SetLimit(c.config.BatchConcurrency)
	for i, message := range messages {
		group.Go(func() error {
			results[i] = c.Classify(ctx, message)
			return nil
		})
	}
	_ = group.Wait()
	return results
}

func (c *Classifier) generate(ctx context.Context, prompt string) (*llm.GenerateResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.ModelTimeout)
	defer cancel()
	return c.client.Generate(ctx, prompt, c.config.Model)
}

// normalizeItems resolves every item's date/time slots concurrently and
// writes the results into a deep copy. A failed or unresolved normalization
// leaves that item's raw slots untouched and adds a warning; siblings are
// unaffected.
func (c *Classifier) normalizeItems(ctx context.Context, response *schema.IntentResponse, result *ClassificationResult) *schema.IntentResponse {
	normalized := response.Clone()
	result.Normalized = make([]*timenorm.NormalizedDateTime, len(normalized.Items))

	reference := time.Now()
	if response.EmailMeta.ReceivedAt != nil {
		reference = *response.EmailMeta.ReceivedAt
	}

	// Failures are collected per index, not through the group error: every
	// unresolved item gets its own warning.
	failures := make([]error, len(normalized.Items))
	var group errgroup.Group
	for i := range normalized.Items {
		item := &normalized.Items[i]
		if item.Slots.Date == nil && item.Slots.Time == nil {
			continue
		}
		group.Go(func() error {
			got := c.normalizer.Normalize(ctx, timenorm.Input{
				Date:      item.Slots.Date,
				Time:      item.Slots.Time,
				Reference: reference,
			})
			result.Normalized[i] = &got
			if got.Resolved == nil {
				failures[i] = fmt.Errorf("item %d: could not resolve %q", i, got.Raw)
				return nil
			}
			// Only halves the sender actually provided are written back.
			// The reference-derived fallback half must not satisfy the
			// gate's required-slot check.
			if item.Slots.Date != nil {
				item.Slots.Date = &got.DateOnly
			}
			if item.Slots.Time != nil {
				item.Slots.Time = &got.TimeOnly
			}
			return nil
		})
	}
	_ = group.Wait()
	for _, err := range failures {
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("time normalization incomplete: %v", err))
		}
	}
	return normalized
}

// finishFatal fills the synthetic failure bundle: fallback response, escalate
// decision and a plan over the fallback item, so consumers always get a
// complete, decidable result.
func (c *Classifier) finishFatal(result *ClassificationResult, start time.Time, message, text string) {
	fallback := schema.Fallback(message)
	result.Response = fallback
	result.Normalized = make([]*timenorm.NormalizedDateTime, len(fallback.Items))
	result.Decision = c.engine.Decide(fallback, text)
	result.Plan = bucket.Build(fallback.Items)
	// A fatal failure is terminal for automation; the lone fallback item
	// would score far lower on its own.
	result.Plan.Complexity = bucket.Complexity{Score: 1, Level: bucket.ComplexityCritical}
	result.Success = false
	result.Error = message
	result.Duration = time.Since(start)

	c.metrics.observe("error", string(result.Decision.Action), result.Duration.Seconds(), true)
	c.logger.Error("classification failed", "id", result.ID, "error", message)
}
