package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEmptyResult is returned when the service answered but produced no text.
var ErrEmptyResult = errors.New("generation returned no text")

// Request is one prompt sent to the text-generation service.
type Request struct {
	Prompt            string
	SystemInstruction string
}

// Client produces text for a prompt.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Config controls client construction.
type Config struct {
	Mode    string
	APIURL  string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NewClient returns the client for cfg.Mode and the mode actually selected.
// In auto mode the HTTP client is used when an API URL is configured.
func NewClient(cfg Config) (Client, string, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.APIURL) == "" {
			return NewMockClient(), "mock", nil
		}
		c, err := NewHTTPClient(cfg.APIURL, cfg.APIKey, cfg.Model, cfg.Timeout)
		if err != nil {
			return nil, "", err
		}
		return c, "http", nil
	case "http":
		c, err := NewHTTPClient(cfg.APIURL, cfg.APIKey, cfg.Model, cfg.Timeout)
		if err != nil {
			return nil, "", err
		}
		return c, "http", nil
	case "mock":
		return NewMockClient(), "mock", nil
	default:
		return nil, "", fmt.Errorf("unsupported generation mode %q", cfg.Mode)
	}
}
