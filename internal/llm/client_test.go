package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"saged/internal/config"
)

func TestChatClient_Complete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Error("Expected test-key authorization")
		}

		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		if body["model"] != "test-model" {
			t.Errorf("Expected test-model, got %v", body["model"])
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"id": "chatcmpl-123",
			"choices": [
				{
					"message": {
						"content": "  Hello, world!  "
					}
				}
			],
			"usage": {"prompt_tokens": 3, "completion_tokens": 4, "total_tokens": 7}
		}`))
	}))
	defer server.Close()

	client := NewChatClient(Config{APIKey: "test-key", BaseURL: server.URL, Model: "test-model"})

	resp, err := client.Complete(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp != "Hello, world!" {
		t.Errorf("Expected trimmed 'Hello, world!', got %q", resp)
	}
}

func TestChatClient_SystemPromptIncluded(t *testing.T) {
	var gotMessages []map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []map[string]string `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		gotMessages = body.Messages

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	client := NewChatClient(Config{APIKey: "test-key", BaseURL: server.URL})
	if _, err := client.CompleteWithSystem(context.Background(), "be terse", "hi"); err != nil {
		t.Fatalf("CompleteWithSystem failed: %v", err)
	}

	if len(gotMessages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(gotMessages))
	}
	if gotMessages[0]["role"] != "system" || gotMessages[0]["content"] != "be terse" {
		t.Errorf("system message = %v", gotMessages[0])
	}
	if gotMessages[1]["role"] != "user" || gotMessages[1]["content"] != "hi" {
		t.Errorf("user message = %v", gotMessages[1])
	}
}

func TestChatClient_RetryOn429(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"choices":[{"message":{"content":"recovered"}}]}`))
	}))
	defer server.Close()

	client := NewChatClient(Config{APIKey: "test-key", BaseURL: server.URL, MaxRetries: 3})

	resp, err := client.Complete(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Complete failed after retry: %v", err)
	}
	if resp != "recovered" {
		t.Errorf("Expected 'recovered', got %q", resp)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
}

func TestChatClient_FailsFastOnServerError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`boom`))
	}))
	defer server.Close()

	client := NewChatClient(Config{APIKey: "test-key", BaseURL: server.URL, MaxRetries: 3})

	_, err := client.Complete(context.Background(), "Hello")
	if err == nil || !strings.Contains(err.Error(), "status 500") {
		t.Fatalf("Expected status 500 error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Server errors should not retry, got %d attempts", attempts)
	}
}

func TestChatClient_MaxRetriesExceeded(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewChatClient(Config{APIKey: "test-key", BaseURL: server.URL, MaxRetries: 1})

	_, err := client.Complete(context.Background(), "Hello")
	if err == nil || !strings.Contains(err.Error(), "max retries exceeded") {
		t.Fatalf("Expected max retries error, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts with MaxRetries=1, got %d", attempts)
	}
}

func TestChatClient_CancellationAbortsBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewChatClient(Config{APIKey: "test-key", BaseURL: server.URL, MaxRetries: 3})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := client.Complete(ctx, "Hello")
	elapsed := time.Since(start)

	if err != context.Canceled {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	// The first backoff alone is 1s; cancellation must cut it short.
	if elapsed >= time.Second {
		t.Errorf("Cancellation did not abort backoff, took %v", elapsed)
	}
}

func TestChatClient_NoAPIKey(t *testing.T) {
	client := NewChatClient(Config{})
	if _, err := client.Complete(context.Background(), "Hello"); err == nil {
		t.Fatal("Expected error without API key")
	}
}

func TestChatClient_APIErrorField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"error":{"message":"quota exhausted","type":"insufficient_quota"}}`))
	}))
	defer server.Close()

	client := NewChatClient(Config{APIKey: "test-key", BaseURL: server.URL})

	_, err := client.Complete(context.Background(), "Hello")
	if err == nil || !strings.Contains(err.Error(), "quota exhausted") {
		t.Fatalf("Expected API error, got %v", err)
	}
}

func TestChatClient_RateLimitGap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	client := NewChatClient(Config{APIKey: "test-key", BaseURL: server.URL, RateLimit: 50 * time.Millisecond})

	ctx := context.Background()
	start := time.Now()
	if _, err := client.Complete(ctx, "a"); err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if _, err := client.Complete(ctx, "b"); err != nil {
		t.Fatalf("second call failed: %v", err)
	}

	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("Rate limit gap not enforced, both calls done in %v", elapsed)
	}
}

func TestAnthropicClient_Complete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("Expected /messages, got %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Error("Expected x-api-key header")
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Error("Expected anthropic-version header")
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"content": [
				{"type": "text", "text": "Hello "},
				{"type": "tool_use"},
				{"type": "text", "text": "there"}
			],
			"usage": {"input_tokens": 3, "output_tokens": 2}
		}`))
	}))
	defer server.Close()

	client := NewAnthropicClient(Config{APIKey: "test-key", BaseURL: server.URL})

	resp, err := client.Complete(context.Background(), "Hi")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp != "Hello there" {
		t.Errorf("Expected concatenated text blocks, got %q", resp)
	}
}

func TestAnthropicClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"error":{"type":"overloaded_error","message":"overloaded"}}`))
	}))
	defer server.Close()

	client := NewAnthropicClient(Config{APIKey: "test-key", BaseURL: server.URL})

	_, err := client.Complete(context.Background(), "Hi")
	if err == nil || !strings.Contains(err.Error(), "overloaded") {
		t.Fatalf("Expected API error, got %v", err)
	}
}

func TestNewClientFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLM.APIKey = "test-key"

	client, err := NewClientFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewClientFromConfig failed: %v", err)
	}
	if _, ok := client.(*ChatClient); !ok {
		t.Fatalf("zai provider should yield a ChatClient, got %T", client)
	}

	cfg.LLM.Provider = "anthropic"
	cfg.LLM.BaseURL = ""
	client, err = NewClientFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewClientFromConfig(anthropic) failed: %v", err)
	}
	if _, ok := client.(*AnthropicClient); !ok {
		t.Fatalf("anthropic provider should yield an AnthropicClient, got %T", client)
	}

	cfg.LLM.Provider = "smalltalk"
	if _, err := NewClientFromConfig(cfg); err == nil {
		t.Fatal("Expected error for unknown provider")
	}

	// An empty key falls back to .saged/config.json before erroring, so
	// run this case from a directory without one.
	t.Chdir(t.TempDir())
	cfg.LLM.Provider = "zai"
	cfg.LLM.APIKey = ""
	if _, err := NewClientFromConfig(cfg); err == nil {
		t.Fatal("Expected error without API key")
	}
}
