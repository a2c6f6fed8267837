package ai

import "context"

// FallbackModel names the locally templated report so history entries
// remain distinguishable from real provider output.
const FallbackModel = "demo-project-report-v1"

// FallbackProvider returns the caller's precomputed fallback text. Keeps
// local development and test flows deterministic without an external API
// dependency.
type FallbackProvider struct{}

// NewFallbackProvider creates the offline provider.
func NewFallbackProvider() *FallbackProvider {
	return &FallbackProvider{}
}

// Generate echoes the request's fallback text.
func (p *FallbackProvider) Generate(_ context.Context, req *Request) (*Result, error) {
	return &Result{Text: req.FallbackText, Model: FallbackModel}, nil
}
