// Package llmclient implements the oversight agents' ModelService using
// Anthropic's API, reached only through this narrow interface so the
// governance pipeline never depends on the SDK's wire types directly. A
// circuit breaker isolates the pipeline from a struggling model endpoint:
// once it trips, calls fail fast and oversight routing accepts the
// deterministic result rather than blocking proposals indefinitely.
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when the breaker has tripped and is refusing
// new calls.
var ErrCircuitOpen = errors.New("llmclient: circuit open, model calls suspended")

// Request is the narrow shape oversight agents pass to the model.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Model        string
	MaxTokens    int64
	Temperature  float64
}

// Verdict is the model's oversight decision.
type Verdict struct {
	Decision   string // "approve", "reject", "require_human"
	Rationale  string
	Confidence float64
}

// ModelService is the interface the governance pipeline's oversight phase
// depends on. Client implements it; tests substitute a fake.
type ModelService interface {
	Evaluate(ctx context.Context, req Request) (Verdict, error)
}

// Client wraps the Anthropic SDK behind a circuit breaker.
type Client struct {
	sdk     anthropic.Client
	breaker *gobreaker.CircuitBreaker[Verdict]
}

// New builds a Client. apiKey may be empty if ANTHROPIC_API_KEY is already
// set in the environment, matching the SDK's own default resolution.
func New(apiKey string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	settings := gobreaker.Settings{
		Name:        "anthropic-model-service",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}

	return &Client{
		sdk:     anthropic.NewClient(opts...),
		breaker: gobreaker.NewCircuitBreaker[Verdict](settings),
	}
}

// Evaluate asks the model for an oversight verdict on a proposal, gated by
// the circuit breaker.
func (c *Client) Evaluate(ctx context.Context, req Request) (Verdict, error) {
	return c.breaker.Execute(func() (Verdict, error) {
		model := req.Model
		if model == "" {
			model = string(anthropic.ModelClaudeOpus4_5)
		}
		maxTokens := req.MaxTokens
		if maxTokens == 0 {
			maxTokens = 1024
		}

		message, err := c.sdk.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(model),
			MaxTokens: maxTokens,
			System: []anthropic.TextBlockParam{
				{Text: req.SystemPrompt},
			},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt)),
			},
		})
		if err != nil {
			return Verdict{}, fmt.Errorf("anthropic messages.new: %w", err)
		}

		return parseVerdict(message), nil
	})
}

func parseVerdict(message *anthropic.Message) Verdict {
	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return classifyVerdictText(text)
}
