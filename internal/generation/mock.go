package generation

import (
	"context"
	"fmt"
	"strings"
)

// MockClient returns deterministic text when no generation service is configured.
type MockClient struct{}

func NewMockClient() *MockClient { return &MockClient{} }

func (c *MockClient) Generate(ctx context.Context, req Request) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", ErrEmptyResult
	}
	if strings.TrimSpace(req.SystemInstruction) == "" {
		return fmt.Sprintf("Summary: %s", prompt), nil
	}

	subject := prompt
	if start := strings.Index(prompt, `"`); start >= 0 {
		if end := strings.Index(prompt[start+1:], `"`); end >= 0 {
			subject = prompt[start+1 : start+1+end]
		}
	}
	return fmt.Sprintf("1. Outline %s\n2. Do %s\n3. Review %s\n", subject, subject, subject), nil
}
