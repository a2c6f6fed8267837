// Package ai implements text generation providers and the project status
// report service built on them.
package ai

import "context"

// Request is one text generation call. FallbackText is a locally computed
// rendition of the desired output, used verbatim by the offline provider.
type Request struct {
	Prompt            string
	SystemInstruction string
	FallbackText      string
}

// Result is the provider's output. Token counts are zero when the
// provider does not report them; callers fall back to EstimateTokens.
type Result struct {
	Text      string `json:"text"`
	Model     string `json:"model"`
	TokensIn  int    `json:"tokens_in,omitempty"`
	TokensOut int    `json:"tokens_out,omitempty"`
}

// Provider generates text. Implementations normalize every failure into
// an ai_provider_error so callers handle one distinguishable class.
type Provider interface {
	Generate(ctx context.Context, req *Request) (*Result, error)
}

// EstimateTokens approximates a token count from text length, four
// characters per token, minimum one.
func EstimateTokens(text string) int {
	n := (len(text) + 3) / 4
	if n < 1 {
		n = 1
	}
	return n
}
