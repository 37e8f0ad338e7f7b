package specialist

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"energyscope/internal/domain"
)

// failureCategory tells the user whether asking again may help.
type failureCategory int

const (
	failureUnknown   failureCategory = iota
	failureRetryable                 // 429, 5xx, open circuit, timeouts, connection errors
	failurePermanent                 // 401, 403, other 4xx
)

// llmFailureKind is the classified cause of a failed LLM call.
type llmFailureKind struct {
	category failureCategory
	reason   string
}

// apiErrorPattern matches the "API error <status>:" detail the providers produce.
var apiErrorPattern = regexp.MustCompile(`API error (\d+):`)

// classifyLLMError maps a provider error to a short reason suitable for a
// soft-failure response.
func classifyLLMError(err error) llmFailureKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, domain.ErrTimeout):
		return llmFailureKind{failureRetryable, "timed out"}
	case errors.Is(err, domain.ErrRateLimit):
		return llmFailureKind{failureRetryable, "rate limited"}
	case errors.Is(err, domain.ErrCircuitOpen):
		return llmFailureKind{failureRetryable, "temporarily disabled after repeated errors"}
	case errors.Is(err, domain.ErrContextOverflow):
		return llmFailureKind{failureRetryable, "question and context too long"}
	case errors.Is(err, domain.ErrAuthInvalid):
		return llmFailureKind{failurePermanent, "authentication failed"}
	}

	if m := apiErrorPattern.FindStringSubmatch(err.Error()); len(m) == 2 {
		code, _ := strconv.Atoi(m[1])
		if code >= 500 {
			return llmFailureKind{failureRetryable, "provider error " + m[1]}
		}
		return llmFailureKind{failurePermanent, "request rejected with status " + m[1]}
	}

	lower := strings.ToLower(err.Error())
	for _, p := range []string{"connection refused", "no such host", "connection reset", "timeout"} {
		if strings.Contains(lower, p) {
			return llmFailureKind{failureRetryable, "provider unreachable"}
		}
	}
	return llmFailureKind{failureUnknown, ""}
}

// describe renders the reasoning line for a failed call.
func (k llmFailureKind) describe(err error) string {
	var sb strings.Builder
	sb.WriteString("language model unavailable")
	if k.reason != "" {
		sb.WriteString(" (" + k.reason + ")")
	}
	sb.WriteString(": ")
	sb.WriteString(err.Error())
	if k.category == failureRetryable {
		sb.WriteString("; retrying later may help")
	}
	return sb.String()
}
