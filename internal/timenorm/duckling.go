package timenorm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	triagerr "github.com/ZeroBranding/MFA-AGENT-DASHBOARD-KALENDER/internal/errors"
	"github.com/ZeroBranding/MFA-AGENT-DASHBOARD-KALENDER/internal/logging"
)

const defaultDucklingTimeout = 3 * time.Second

// Span is one time span resolved by the parsing service.
type Span struct {
	Value time.Time
	Grain string // year, month, week, day, hour, minute, second
}

// HasTimeOfDay reports whether the span pins a literal clock time.
func (s Span) HasTimeOfDay() bool {
	switch s.Grain {
	case "hour", "minute", "second":
		return true
	}
	return false
}

// DucklingClient talks to the external time-parsing service. The service
// call is raced against its own short timeout, independent of the model
// call budget.
type DucklingClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewDucklingClient builds a client for the given base URL. timeout <= 0
// falls back to 3s.
func NewDucklingClient(baseURL string, timeout time.Duration) *DucklingClient {
	if timeout <= 0 {
		timeout = defaultDucklingTimeout
	}
	return &DucklingClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewComponentLogger("duckling-client"),
	}
}

type ducklingRequest struct {
	Text          string `json:"text"`
	Locale        string `json:"locale"`
	Timezone      string `json:"timezone"`
	ReferenceTime string `json:"referenceTime"`
}

type ducklingSpan struct {
	Value string `json:"value"`
	Grain string `json:"grain"`
}

// Parse resolves text against the reference instant. Returns the raw span
// list; an empty list means the service saw no time expression.
func (c *DucklingClient) Parse(ctx context.Context, text, locale, timezone string, reference time.Time) ([]Span, error) {
	payload, err := json.Marshal(ducklingRequest{
		Text:          text,
		Locale:        locale,
		Timezone:      timezone,
		ReferenceTime: reference.Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/parse", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if triagerr.IsTimeout(err) {
			return nil, &triagerr.TimeoutError{Op: "time-parsing request", Err: err}
		}
		return nil, &triagerr.ServiceUnavailableError{Service: "time-parsing service", Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &triagerr.ServiceUnavailableError{
			Service: "time-parsing service",
			Err:     fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var wire []ducklingSpan
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, &triagerr.ServiceUnavailableError{Service: "time-parsing service", Err: err}
	}

	spans := make([]Span, 0, len(wire))
	for _, w := range wire {
		value, err := time.Parse(time.RFC3339, w.Value)
		if err != nil {
			c.logger.Warn("skipping span with unparseable value", "value", w.Value)
			continue
		}
		spans = append(spans, Span{Value: value, Grain: w.Grain})
	}
	return spans, nil
}

// pickSpan applies the selection rule: first span with a literal time of day
// when one exists, otherwise the first span.
func pickSpan(spans []Span) (Span, bool) {
	if len(spans) == 0 {
		return Span{}, false
	}
	for _, s := range spans {
		if s.HasTimeOfDay() {
			return s, true
		}
	}
	return spans[0], true
}
