package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"nutrition-resolver/internal/config"
)

func TestGroqGenerateContent(t *testing.T) {
	cfg := &config.Config{GroqAPIKey: "groq_key"}

	t.Run("Success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer groq_key" {
				t.Errorf("Expected bearer token, got '%s'", r.Header.Get("Authorization"))
			}
			var body map[string]interface{}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Fatalf("Failed to decode request: %v", err)
			}
			if body["model"] != ModelParser {
				t.Errorf("Expected model '%s', got '%v'", ModelParser, body["model"])
			}
			if _, ok := body["response_format"]; !ok {
				t.Error("Expected json_object response format by default")
			}
			fmt.Fprintln(w, `{
				"model": "llama-3.3-70b-versatile",
				"choices": [{"message": {"content": "{\"ok\": true}"}}],
				"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
			}`)
		}))
		defer server.Close()

		client := NewGroqClient(cfg, ModelParser, 0.1, WithGroqURL(server.URL))
		resp, err := client.GenerateContent(context.Background(), "hello")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if resp.Content != `{"ok": true}` {
			t.Errorf("Unexpected content '%s'", resp.Content)
		}
		if resp.Usage.PromptTokens != 12 || resp.Usage.TotalTokens != 15 {
			t.Errorf("Unexpected usage %+v", resp.Usage)
		}
	})

	t.Run("FreeformOmitsResponseFormat", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body map[string]interface{}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if _, ok := body["response_format"]; ok {
				t.Error("Expected no response_format for freeform output")
			}
			fmt.Fprintln(w, `{"choices": [{"message": {"content": "done"}}]}`)
		}))
		defer server.Close()

		client := NewGroqClient(cfg, ModelWebSearch, 0.1, WithGroqURL(server.URL), WithFreeformOutput())
		resp, err := client.GenerateContent(context.Background(), "hello")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if resp.Usage.Model != ModelWebSearch {
			t.Errorf("Expected model to fall back to '%s', got '%s'", ModelWebSearch, resp.Usage.Model)
		}
	})

	t.Run("ServerError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		client := NewGroqClient(cfg, ModelParser, 0.1, WithGroqURL(server.URL))
		if _, err := client.GenerateContent(context.Background(), "hello"); err == nil {
			t.Fatal("Expected an error for non-200 status code, got nil")
		}
	})

	t.Run("NoChoices", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintln(w, `{"choices": []}`)
		}))
		defer server.Close()

		client := NewGroqClient(cfg, ModelParser, 0.1, WithGroqURL(server.URL))
		if _, err := client.GenerateContent(context.Background(), "hello"); err == nil {
			t.Fatal("Expected an error for empty choices, got nil")
		}
	})

	t.Run("MissingAPIKey", func(t *testing.T) {
		client := NewGroqClient(&config.Config{}, ModelParser, 0.1, WithGroqURL("http://127.0.0.1:1"))
		_, err := client.GenerateContent(context.Background(), "hello")
		if !errors.Is(err, ErrMissingCredentials) {
			t.Fatalf("Expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("RejectedAPIKey", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"invalid_api_key"}`, http.StatusUnauthorized)
		}))
		defer server.Close()

		client := NewGroqClient(cfg, ModelParser, 0.1, WithGroqURL(server.URL))
		_, err := client.GenerateContent(context.Background(), "hello")
		if !errors.Is(err, ErrMissingCredentials) {
			t.Fatalf("Expected ErrMissingCredentials, got %v", err)
		}
	})
}
