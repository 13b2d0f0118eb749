// Package uxerror translates invocation failures into short messages with
// recovery hints for terminal output.
package uxerror

import (
	"errors"
	"fmt"
	"strings"

	"agentgate/internal/adapter/tui/theme"
	"agentgate/internal/domain"
)

// FriendlyError is a user-facing error with suggestions for recovery.
type FriendlyError struct {
	Title   string   // short heading, e.g. "Model Unavailable"
	Message string   // one-liner explanation
	Hints   []string // actionable recovery suggestions
	Raw     string   // original error text
}

// Render formats the error for the transcript or stderr.
func (fe FriendlyError) Render() string {
	var sb strings.Builder
	sb.WriteString(fe.Title)
	if fe.Message != "" {
		sb.WriteString("\n  ")
		sb.WriteString(fe.Message)
	}
	if len(fe.Hints) > 0 {
		sb.WriteString("\n  Suggestions:")
		for _, h := range fe.Hints {
			fmt.Fprintf(&sb, "\n    %s %s", theme.SymbolBullet, h)
		}
	}
	return sb.String()
}

type errorPattern struct {
	match   func(err error) bool
	produce func(err error) FriendlyError
}

// patterns are ordered from most to least specific: an upstream failure
// caused by a rate limit reports the rate limit.
var patterns = []errorPattern{
	{
		match: is(domain.ErrInvalidRoute),
		produce: constantError("Invalid Handoff",
			"The router agent picked a target that is not one of its handoffs.",
			[]string{"Make the router instructions list the exact handoff names", "Check the handoffs of the router in the config"}),
	},
	{
		match: is(domain.ErrDecodeFailure),
		produce: constantError("Unreadable Model Output",
			"The model answer did not match the agent's output schema.",
			[]string{"Try again; structured output is occasionally malformed", "Use a model with structured output support"}),
	},
	{
		match: is(domain.ErrAgentNotFound),
		produce: constantError("Unknown Agent",
			"No agent with that name is defined.",
			[]string{"Run 'agentgate agents' to list the catalog"}),
	},
	{
		match:   is(domain.ErrInvalidRequest),
		produce: constantError("Invalid Request", "The input was empty or malformed.", nil),
	},
	{
		match: is(domain.ErrRateLimit),
		produce: constantError("Rate Limited",
			"Too many requests were sent to the model provider.",
			[]string{"Wait a moment before retrying", "Lower llm.rate_limit.requests_per_minute or add a fallback provider"}),
	},
	{
		match: is(domain.ErrAuthInvalid),
		produce: constantError("Authentication Failed",
			"The provider rejected the API key.",
			[]string{"Check the API key environment variable", "Run 'agentgate doctor' to test provider access"}),
	},
	{
		match: is(domain.ErrContextOverflow),
		produce: constantError("Input Too Large",
			"The request exceeds the model context window.",
			[]string{"Shorten the input", "Use a model with a larger context window"}),
	},
	{
		match:   containsAny("deadline exceeded", "timeout"),
		produce: constantError("Request Timed Out", "The model did not answer in time.", []string{"Try again", "Increase runner.call_timeout in the config"}),
	},
	{
		match:   containsAny("connection refused", "dial tcp", "no such host"),
		produce: constantError("Connection Failed", "Could not reach the model endpoint.", []string{"Check your network connection", "Verify the provider base_url in the config"}),
	},
	{
		match:   containsAny("circuit open"),
		produce: constantError("Provider Paused", "Recent calls failed, so the provider is temporarily skipped.", []string{"Wait for the circuit breaker timeout and retry"}),
	},
	{
		match:   is(domain.ErrUpstreamUnavailable),
		produce: constantError("Model Unavailable", "The model endpoint returned an error.", []string{"Try again", "Configure llm.failover with a fallback provider"}),
	},
}

// Humanize converts err into a FriendlyError with recovery hints.
func Humanize(err error) FriendlyError {
	if err == nil {
		return FriendlyError{Title: "Unknown Error", Raw: "nil"}
	}
	for _, p := range patterns {
		if p.match(err) {
			return p.produce(err)
		}
	}
	return FriendlyError{
		Title:   "Unexpected Error",
		Message: err.Error(),
		Hints:   []string{"Try again", "Run with --log-level=debug for more details"},
		Raw:     err.Error(),
	}
}

// FromFailed humanizes a failed invocation. The underlying chain is used
// when present so provider details (rate limit, auth) surface.
func FromFailed(f domain.Failed) FriendlyError {
	if f.Err != nil {
		return Humanize(f.Err)
	}
	return Humanize(f)
}

func is(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

// containsAny matches when the error text contains any of substrs, case-insensitively.
func containsAny(substrs ...string) func(error) bool {
	return func(err error) bool {
		lower := strings.ToLower(err.Error())
		for _, s := range substrs {
			if strings.Contains(lower, s) {
				return true
			}
		}
		return false
	}
}

func constantError(title, message string, hints []string) func(error) FriendlyError {
	return func(err error) FriendlyError {
		return FriendlyError{
			Title:   title,
			Message: message,
			Hints:   hints,
			Raw:     err.Error(),
		}
	}
}
