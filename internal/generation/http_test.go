package generation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPClientSendsPayloadAndReadsFirstCandidate(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"1. Book flight\n2. Pack bags"}]}}]}`))
	}))
	defer srv.Close()

	c, err := NewHTTPClient(srv.URL+"/v1beta/", "secret", "gemini-test", time.Second)
	if err != nil {
		t.Fatalf("NewHTTPClient() error = %v", err)
	}
	text, err := c.Generate(context.Background(), Request{Prompt: "plan", SystemInstruction: "be brief"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if text != "1. Book flight\n2. Pack bags" {
		t.Fatalf("text = %q", text)
	}
	if gotPath != "/v1beta/models/gemini-test:generateContent" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotKey != "secret" {
		t.Fatalf("key = %q, want %q", gotKey, "secret")
	}
	if _, ok := gotBody["systemInstruction"]; !ok {
		t.Fatalf("payload missing systemInstruction: %v", gotBody)
	}
	contents, _ := gotBody["contents"].([]any)
	if len(contents) != 1 {
		t.Fatalf("contents = %v, want one entry", gotBody["contents"])
	}
}

func TestHTTPClientOmitsEmptySystemInstruction(t *testing.T) {
	var raw []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	}))
	defer srv.Close()

	c, err := NewHTTPClient(srv.URL, "", "m", time.Second)
	if err != nil {
		t.Fatalf("NewHTTPClient() error = %v", err)
	}
	if _, err := c.Generate(context.Background(), Request{Prompt: "summarize"}); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if strings.Contains(string(raw), "systemInstruction") {
		t.Fatalf("payload = %s, want no systemInstruction", raw)
	}
}

func TestHTTPClientEmptyResult(t *testing.T) {
	for _, body := range []string{
		`{}`,
		`{"candidates":[]}`,
		`{"candidates":[{"content":{"parts":[]}}]}`,
		`{"candidates":[{"content":{"parts":[{"text":""}]}}]}`,
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		c, err := NewHTTPClient(srv.URL, "k", "m", time.Second)
		if err != nil {
			t.Fatalf("NewHTTPClient() error = %v", err)
		}
		_, err = c.Generate(context.Background(), Request{Prompt: "x"})
		srv.Close()
		if !errors.Is(err, ErrEmptyResult) {
			t.Fatalf("Generate(%s) error = %v, want ErrEmptyResult", body, err)
		}
	}
}

func TestHTTPClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(strings.Repeat("x", 10_000)))
	}))
	defer srv.Close()

	c, err := NewHTTPClient(srv.URL, "k", "m", time.Second)
	if err != nil {
		t.Fatalf("NewHTTPClient() error = %v", err)
	}
	_, err = c.Generate(context.Background(), Request{Prompt: "x"})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Generate() error = %v, want *StatusError", err)
	}
	if statusErr.Code != http.StatusTooManyRequests {
		t.Fatalf("Code = %d, want %d", statusErr.Code, http.StatusTooManyRequests)
	}
	if len(statusErr.Body) != maxErrorBody {
		t.Fatalf("len(Body) = %d, want %d", len(statusErr.Body), maxErrorBody)
	}
}

func TestHTTPClientMalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	}))
	defer srv.Close()

	c, _ := NewHTTPClient(srv.URL, "k", "m", time.Second)
	_, err := c.Generate(context.Background(), Request{Prompt: "x"})
	if err == nil || errors.Is(err, ErrEmptyResult) {
		t.Fatalf("Generate() error = %v, want decode error", err)
	}
}

func TestNewClientModes(t *testing.T) {
	c, mode, err := NewClient(Config{})
	if err != nil || mode != "mock" {
		t.Fatalf("NewClient(auto, no url) = %T, %q, %v", c, mode, err)
	}
	c, mode, err = NewClient(Config{Mode: "auto", APIURL: "http://x", Model: "m"})
	if err != nil || mode != "http" {
		t.Fatalf("NewClient(auto, url) = %T, %q, %v", c, mode, err)
	}
	if _, _, err := NewClient(Config{Mode: "http"}); err == nil {
		t.Fatalf("NewClient(http, no url) expected error")
	}
	if _, _, err := NewClient(Config{Mode: "grpc"}); err == nil {
		t.Fatalf("NewClient(grpc) expected error")
	}
}

func TestMockClient(t *testing.T) {
	c := NewMockClient()
	text, err := c.Generate(context.Background(), Request{
		Prompt:            `Break down the task "Plan trip" into a list of specific, actionable sub-tasks.`,
		SystemInstruction: "numbered list",
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !strings.HasPrefix(text, "1. Outline Plan trip\n") {
		t.Fatalf("text = %q", text)
	}

	text, err = c.Generate(context.Background(), Request{Prompt: "list"})
	if err != nil || text != "Summary: list" {
		t.Fatalf("Generate() = %q, %v", text, err)
	}
}

func TestHTTPClientTransportErrorHidesAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	c, err := NewHTTPClient(base, "super-secret-key", "m", time.Second)
	if err != nil {
		t.Fatalf("NewHTTPClient() error = %v", err)
	}
	_, err = c.Generate(context.Background(), Request{Prompt: "x"})
	if err == nil {
		t.Fatalf("Generate() expected transport error")
	}
	if strings.Contains(err.Error(), "super-secret-key") {
		t.Fatalf("error leaks API key: %v", err)
	}
}
