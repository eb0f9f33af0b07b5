// Copyright (C) 2025 Waypoint AI (oss@waypointai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAnthropicClient_Chat_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("x-api-key = %q, want %q", r.Header.Get("x-api-key"), "test-key")
		}
		if r.Header.Get("anthropic-version") != anthropicAPIVersion {
			t.Errorf("anthropic-version = %q, want %q", r.Header.Get("anthropic-version"), anthropicAPIVersion)
		}

		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.Model != "claude-test" {
			t.Errorf("model = %q, want %q", req.Model, "claude-test")
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("system message must be lifted out of messages: %+v", req.Messages)
		}
		if len(req.System) != 1 || req.System[0].Text != "You are a test assistant." {
			t.Errorf("system block missing: %+v", req.System)
		}

		resp := anthropicResponse{
			ID:   "msg-123",
			Type: "message",
			Role: "assistant",
			Content: []anthropicContent{
				{Type: "text", Text: "Hello from the model!"},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewAnthropicClientWithConfig("test-key", "claude-test", server.URL)
	got, err := client.Chat(context.Background(), []Message{
		{Role: "system", Content: "You are a test assistant."},
		{Role: "user", Content: "Hello"},
	}, GenerationParams{})
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if got != "Hello from the model!" {
		t.Errorf("unexpected reply: %q", got)
	}
}

func TestAnthropicClient_Chat_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer server.Close()

	client := NewAnthropicClientWithConfig("test-key", "claude-test", server.URL)
	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "Hi"}}, GenerationParams{})
	if err == nil {
		t.Fatal("non-200 status must fail")
	}
	if !strings.Contains(err.Error(), "anthropic:") {
		t.Errorf("error should include 'anthropic:' prefix, got: %s", err.Error())
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error should include the status code, got: %s", err.Error())
	}
}

func TestAnthropicClient_Chat_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg-1","type":"message","role":"assistant","content":[]}`))
	}))
	defer server.Close()

	client := NewAnthropicClientWithConfig("test-key", "claude-test", server.URL)
	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "Hi"}}, GenerationParams{})
	if err == nil {
		t.Fatal("empty content must fail")
	}
}

func TestAnthropicClient_Chat_MaxTokensOverride(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.MaxTokens != 512 {
			t.Errorf("max_tokens = %d, want 512", req.MaxTokens)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"type":"text","text":"ok"}]}`))
	}))
	defer server.Close()

	maxTokens := 512
	client := NewAnthropicClientWithConfig("test-key", "claude-test", server.URL)
	if _, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "Hi"}},
		GenerationParams{MaxTokens: &maxTokens}); err != nil {
		t.Fatalf("chat failed: %v", err)
	}
}
