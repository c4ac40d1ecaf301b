package completion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wuwenbin0122/chatquota/internal/apperr"
	"github.com/wuwenbin0122/chatquota/internal/utils"
)

type capturedRequest struct {
	Path          string
	Authorization string
	Body          map[string]any
}

func newTestGateway(t *testing.T, status int, body string) (*Gateway, *capturedRequest) {
	t.Helper()

	captured := &capturedRequest{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.Path = r.URL.Path
		captured.Authorization = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&captured.Body); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	gateway := NewGateway(utils.CompletionConfig{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Model:   "test/model",
	}, nil, WithHTTPClient(server.Client()))

	return gateway, captured
}

func TestCompleteReturnsFirstChoice(t *testing.T) {
	gateway, captured := newTestGateway(t, http.StatusOK, `{
		"id": "gen-1",
		"model": "test/model",
		"choices": [
			{"index": 0, "message": {"role": "assistant", "content": "hello"}},
			{"index": 1, "message": {"role": "assistant", "content": "ignored"}}
		]
	}`)

	reply, err := gateway.Complete(testContext(t), "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "hello" {
		t.Fatalf("expected reply hello, got %q", reply)
	}

	if captured.Path != "/chat/completions" {
		t.Fatalf("expected /chat/completions, got %s", captured.Path)
	}
	if captured.Authorization != "Bearer test-key" {
		t.Fatalf("expected bearer credential, got %q", captured.Authorization)
	}
	if captured.Body["model"] != "test/model" {
		t.Fatalf("expected model test/model, got %v", captured.Body["model"])
	}

	messages, ok := captured.Body["messages"].([]any)
	if !ok || len(messages) != 1 {
		t.Fatalf("expected exactly one message, got %v", captured.Body["messages"])
	}
	first, _ := messages[0].(map[string]any)
	if first["role"] != "user" || first["content"] != "hi" {
		t.Fatalf("unexpected message payload: %v", first)
	}
}

func TestCompletePlaceholderWhenReplyUnusable(t *testing.T) {
	cases := map[string]string{
		"no choices":      `{"id": "gen-1", "choices": []}`,
		"missing choices": `{"id": "gen-1"}`,
		"empty content":   `{"choices": [{"index": 0, "message": {"role": "assistant", "content": ""}}]}`,
		"null content":    `{"choices": [{"index": 0, "message": {"role": "assistant", "content": null}}]}`,
		"blank content":   `{"choices": [{"index": 0, "message": {"role": "assistant", "content": "  \n"}}]}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			gateway, _ := newTestGateway(t, http.StatusOK, body)

			reply, err := gateway.Complete(testContext(t), "hi")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if reply != DefaultPlaceholder {
				t.Fatalf("expected placeholder %q, got %q", DefaultPlaceholder, reply)
			}
		})
	}
}

func TestCompleteUpstreamFailures(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
	}{
		"server error":   {status: http.StatusInternalServerError, body: `{"error": {"message": "boom"}}`},
		"rate limited":   {status: http.StatusTooManyRequests, body: `{"error": {"message": "slow down"}}`},
		"malformed body": {status: http.StatusOK, body: `{"choices": [`},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			gateway, _ := newTestGateway(t, tc.status, tc.body)

			reply, err := gateway.Complete(testContext(t), "hi")
			if err == nil {
				t.Fatalf("expected error, got reply %q", reply)
			}
			if !errors.Is(err, apperr.ErrUpstream) {
				t.Fatalf("expected upstream error, got %v", err)
			}
		})
	}
}

func TestCompleteUnreachableProvider(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	gateway := NewGateway(utils.CompletionConfig{BaseURL: baseURL, APIKey: "k"}, nil)

	if _, err := gateway.Complete(testContext(t), "hi"); !errors.Is(err, apperr.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestNewGatewayDefaults(t *testing.T) {
	gateway := NewGateway(utils.CompletionConfig{APIKey: "k"}, nil)

	if gateway.model != DefaultModel {
		t.Fatalf("expected default model, got %s", gateway.model)
	}
	if gateway.placeholder != DefaultPlaceholder {
		t.Fatalf("expected default placeholder, got %s", gateway.placeholder)
	}
}

// testContext mirrors testing.T.Context (Go 1.24+): a context canceled when
// the test finishes.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
