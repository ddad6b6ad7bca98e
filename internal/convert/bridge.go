// Package convert bridges normalized findings to the external
// text-generation service that structures them into schema-shaped
// recommendation records.
package convert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"kbingest/internal/config"
	"kbingest/internal/domain"
)

const (
	maxAttempts     = 3
	promptBodyLimit = 4000
	apiVersion      = "2023-06-01"
)

var retryDelays = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// Bridge converts findings via an Anthropic-style messages endpoint. It is
// stateless between findings; each call is independent.
type Bridge struct {
	endpoint   string
	model      string
	apiKey     string
	maxTokens  int
	schemaText string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewBridge builds a client from configuration. schemaText is the target
// schema embedded verbatim in the system prompt.
func NewBridge(cfg config.GenerationConfig, schemaText string, logger *slog.Logger) *Bridge {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 20
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Bridge{
		endpoint:   cfg.Endpoint,
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		maxTokens:  cfg.MaxTokens,
		schemaText: schemaText,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
		logger:     logger,
	}
}

// Convert sends the finding to the generation service and decodes the
// structured recommendation. It retries transport and malformed-output
// failures with bounded exponential backoff; after exhausting retries the
// finding is dropped with the last error. A service skip signal returns
// domain.ErrConversionSkipped.
func (b *Bridge) Convert(ctx context.Context, finding domain.Finding) (map[string]any, error) {
	if b.apiKey == "" || b.endpoint == "" || b.model == "" {
		return nil, fmt.Errorf("generation client misconfigured")
	}

	userPrompt := buildUserPrompt(finding)
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, retryDelays[min(attempt-1, len(retryDelays)-1)]); err != nil {
				return nil, err
			}
		}
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		text, err := b.complete(ctx, userPrompt)
		if err != nil {
			lastErr = err
			b.logger.Warn("generation request failed", "attempt", attempt+1, "error", err)
			continue
		}

		record, err := decodeRecord(text)
		if err != nil {
			lastErr = err
			b.logger.Warn("invalid JSON from generation service, retrying with repair prompt",
				"attempt", attempt+1, "error", err)
			userPrompt = fmt.Sprintf(
				"Your previous response was not valid JSON. Error: %v\nOutput ONLY valid JSON.\n\n%s",
				err, buildUserPrompt(finding))
			continue
		}

		if skip, _ := record["skip"].(bool); skip {
			reason, _ := record["reason"].(string)
			b.logger.Info("generation service skipped item", "title", finding.Title, "reason", reason)
			return nil, domain.ErrConversionSkipped
		}

		return backfill(record), nil
	}

	return nil, fmt.Errorf("conversion failed after %d attempts: %w", maxAttempts, lastErr)
}

func (b *Bridge) complete(ctx context.Context, userPrompt string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model":      b.model,
		"max_tokens": b.maxTokens,
		"system":     b.systemPrompt(),
		"messages": []map[string]string{
			{"role": "user", "content": userPrompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal generation payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("x-api-key", b.apiKey)
	req.Header.Set("anthropic-version", apiVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send prompt: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("generation service error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var parsed struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Content) == 0 {
		return "", fmt.Errorf("empty response content")
	}
	return strings.TrimSpace(parsed.Content[0].Text), nil
}

func (b *Bridge) systemPrompt() string {
	now := time.Now().UTC().Format(time.RFC3339)
	return fmt.Sprintf(`You are an expert AWS cloud architect. Convert the following source material into a structured AWS misconfiguration recommendation.

Output ONLY valid JSON matching this schema:
%s

RULES:
1. "id" must be a new UUID v4
2. "service_name" must be a lowercase AWS service identifier (e.g., "ec2", "s3", "iam", "rds", "lambda")
3. "scenario" should describe the misconfiguration scenario concisely
4. "risk_detail" must be one or more of (cost, security, operations, performance, reliability) separated by ", "
5. "build_priority" is 0 (critical), 1 (high), 2 (medium) or 3 (low)
6. All text fields must be clear, professional and actionable
7. If the source material is not about an AWS misconfiguration or best practice, output {"skip": true, "reason": "..."}
8. Use %q for metadata timestamps when none are given`, b.schemaText, now)
}

func buildUserPrompt(f domain.Finding) string {
	return fmt.Sprintf("Source: %s\nTitle: %s\nURL: %s\nCategories: %s\n\nContent:\n%s",
		f.SourceName, f.Title, f.URL, strings.Join(f.Categories, ", "),
		truncateRunes(f.Body, promptBodyLimit))
}

// truncateRunes cuts s to at most n runes, never splitting a UTF-8 sequence.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// decodeRecord strips optional markdown fences and unmarshals the record.
func decodeRecord(text string) (map[string]any, error) {
	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		if len(lines) > 1 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
			text = strings.Join(lines[1:len(lines)-1], "\n")
		} else {
			text = strings.Join(lines[1:], "\n")
		}
	}

	var record map[string]any
	if err := json.Unmarshal([]byte(text), &record); err != nil {
		return nil, err
	}
	return record, nil
}

// backfill fills optional fields the service left empty so marginal model
// output still has a chance to pass schema validation.
func backfill(record map[string]any) map[string]any {
	if id, _ := record["id"].(string); id == "" {
		record["id"] = uuid.NewString()
	}
	if s, _ := record["alert_criteria"].(string); s == "" {
		record["alert_criteria"] = deriveAlertCriteria(record)
	}
	if s, _ := record["recommendation_action"].(string); s == "" {
		record["recommendation_action"] = deriveRecommendationAction(record)
	}

	effort, risk, value := deriveNumericValues(record)
	if record["effort_level"] == nil {
		record["effort_level"] = effort
	}
	if record["risk_value"] == nil {
		record["risk_value"] = risk
	}
	if record["action_value"] == nil {
		record["action_value"] = value
	}

	meta, _ := record["metadata"].(map[string]any)
	if meta == nil {
		meta = map[string]any{}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if meta["created_at"] == nil {
		meta["created_at"] = now
	}
	if meta["updated_at"] == nil {
		meta["updated_at"] = now
	}
	if meta["contributors"] == nil {
		meta["contributors"] = []any{"ingest-pipeline"}
	}
	record["metadata"] = meta

	if record["references"] == nil {
		record["references"] = []any{}
	}
	if record["tags"] == nil {
		record["tags"] = []any{}
	}
	return record
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
