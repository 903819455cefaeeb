package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ent0n29/tasklist/internal/policy"
)

const maxErrorBody = 4 << 10

// StatusError reports a non-2xx answer from the generation service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("generation http status %d: %s", e.Code, e.Body)
}

// HTTPClient calls a generateContent-style JSON endpoint.
type HTTPClient struct {
	endpoint string
	client   *http.Client
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents          []content `json:"contents"`
	SystemInstruction *content  `json:"systemInstruction,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text *string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// NewHTTPClient builds {baseURL}/models/{model}:generateContent?key={apiKey}.
func NewHTTPClient(baseURL, apiKey, model string, timeout time.Duration) (*HTTPClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("generation API url is required for http mode")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, errors.New("generation model is required for http mode")
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	endpoint := baseURL + "/models/" + url.PathEscape(model) + ":generateContent?key=" + url.QueryEscape(strings.TrimSpace(apiKey))
	return &HTTPClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

func (c *HTTPClient) Generate(ctx context.Context, req Request) (string, error) {
	body := generateRequest{
		Contents: []content{{Parts: []part{{Text: req.Prompt}}}},
	}
	if strings.TrimSpace(req.SystemInstruction) != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: req.SystemInstruction}}}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(httpReq)
	if err != nil {
		// the endpoint carries the API key as a query parameter
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL, _ = policy.RedactSecrets(urlErr.URL)
		}
		return "", fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return "", &StatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(excerpt))}
	}

	var out generateResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return firstCandidateText(out)
}

func firstCandidateText(out generateResponse) (string, error) {
	if len(out.Candidates) == 0 {
		return "", ErrEmptyResult
	}
	parts := out.Candidates[0].Content.Parts
	if len(parts) == 0 || parts[0].Text == nil || *parts[0].Text == "" {
		return "", ErrEmptyResult
	}
	return *parts[0].Text, nil
}
