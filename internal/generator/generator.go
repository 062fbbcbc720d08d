// Package generator produces tutor-style worked solutions for user
// questions via the Gemini API.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"solvedesk/internal/config"

	"google.golang.org/genai"
)

// ErrNotConfigured indicates generation was requested without a usable
// API key. No network call is made.
var ErrNotConfigured = errors.New("generation service not configured")

// promptTemplate frames every question as a tutoring request. The
// question is interpolated verbatim; the response text is returned
// verbatim with no parsing or structural validation.
const promptTemplate = `Act as an expert tutor. Provide a detailed, step-by-step solution to the following problem. If the problem involves formulas, define them first. Explain the reasoning behind each step clearly, as if teaching a beginner.

Problem: %s

Solution:`

// Client is the interface the flow controller generates through.
type Client interface {
	// Generate produces solution text for a non-empty question.
	Generate(ctx context.Context, question string) (string, error)

	// Ping checks if the service is reachable.
	Ping(ctx context.Context) error
}

// Result is the tagged outcome of one generation call: either Text is
// the solution, or Err is the failure. Callers branch on Err — never on
// the content of the text.
type Result struct {
	Text string
	Err  error
}

// Failed reports whether the generation call failed.
func (r Result) Failed() bool {
	return r.Err != nil
}

// FailureMessage is the user-facing rendering of a failed Result. It is
// display-only; no control flow inspects it.
func (r Result) FailureMessage() string {
	if r.Err == nil {
		return ""
	}
	return fmt.Sprintf("Sorry, I couldn't generate a solution at this time. Error: %v", r.Err)
}

// Gemini generates solutions through the Gemini API.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewGemini creates a Gemini-backed generator. Returns ErrNotConfigured
// when apiKey is empty so callers can run degraded (pages served,
// generation disabled) instead of failing startup.
func NewGemini(ctx context.Context, apiKey, model string, timeout time.Duration, logger *slog.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &Gemini{
		client:  client,
		model:   model,
		timeout: timeout,
		logger:  logger.With("provider", "gemini"),
	}, nil
}

// Generate sends one request with the question embedded in the tutor
// prompt and returns the response text verbatim. Any remote fault
// (network, quota, empty response) comes back as an error; there is no
// retry.
func (g *Gemini) Generate(ctx context.Context, question string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	prompt := fmt.Sprintf(promptTemplate, question)
	g.logger.Log(ctx, config.LevelTrace, "generation request", "model", g.model, "prompt", prompt)

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", errors.New("gemini returned an empty response")
	}

	g.logger.Debug("generation complete",
		"model", g.model,
		"duration", time.Since(start).Truncate(time.Millisecond),
		"chars", len(text))
	g.logger.Log(ctx, config.LevelTrace, "generation response", "text", text)

	return text, nil
}

// Ping verifies the service is reachable with a minimal token count.
func (g *Gemini) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cfg := &genai.GenerateContentConfig{MaxOutputTokens: 1}
	if _, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text("ping"), cfg); err != nil {
		return fmt.Errorf("gemini ping: %w", err)
	}
	return nil
}
