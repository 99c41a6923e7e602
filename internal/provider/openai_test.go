package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/h1v3-io/leadflow/pkg/protocol"
)

func captureNameTool() protocol.ToolDefinition {
	return protocol.NewToolDefinition("capture_name", "Registra o nome", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{"type": "string"},
		},
		"required": []string{"name"},
	})
}

func TestOpenAIChat_TextResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Error("missing auth header")
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}

		var req openaiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "gpt-4o-mini" {
			t.Errorf("expected default model gpt-4o-mini, got %s", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Fatalf("messages = %+v", req.Messages)
		}
		if req.ParallelToolCalls != nil {
			t.Error("parallel_tool_calls must be omitted without tools")
		}

		json.NewEncoder(w).Encode(openaiResponse{
			Choices: []openaiChoice{{Message: openaiMessage{Role: "assistant", Content: "Olá! Qual é o seu nome?"}}},
			Usage:   openaiUsage{PromptTokens: 10, CompletionTokens: 5},
		})
	}))
	defer srv.Close()

	p := NewOpenAI("test-key", WithBaseURL(srv.URL))
	got, err := p.Chat(context.Background(), protocol.ChatRequest{
		Messages: []protocol.ChatMessage{
			{Role: "system", Content: "Você é um assistente."},
			{Role: "user", Content: "oi"},
		},
		SingleToolCall: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Content != "Olá! Qual é o seu nome?" {
		t.Errorf("content = %q", got.Content)
	}
	if got.HasToolCalls() {
		t.Error("expected no tool calls")
	}
	if got.Usage.TotalTokens() != 15 {
		t.Errorf("expected 15 total tokens, got %d", got.Usage.TotalTokens())
	}
}

func TestOpenAIChat_SingleToolCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openaiRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Tools) != 1 || req.Tools[0].Function.Name != "capture_name" {
			t.Errorf("tools = %+v", req.Tools)
		}
		if req.ParallelToolCalls == nil || *req.ParallelToolCalls {
			t.Error("expected parallel_tool_calls=false")
		}

		json.NewEncoder(w).Encode(openaiResponse{
			Choices: []openaiChoice{{Message: openaiMessage{
				Role: "assistant",
				ToolCalls: []openaiToolCall{{
					ID:       "call_1",
					Type:     "function",
					Function: openaiToolFunction{Name: "capture_name", Arguments: `{"name": "Ana"}`},
				}},
			}}},
		})
	}))
	defer srv.Close()

	p := NewOpenAI("test-key", WithBaseURL(srv.URL))
	got, err := p.Chat(context.Background(), protocol.ChatRequest{
		Messages:       []protocol.ChatMessage{{Role: "user", Content: "sou a Ana"}},
		Tools:          []protocol.ToolDefinition{captureNameTool()},
		SingleToolCall: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tc, ok := got.FirstToolCall("capture_name")
	if !ok {
		t.Fatal("expected capture_name call")
	}
	if tc.ID != "call_1" || tc.Arguments["name"] != "Ana" {
		t.Errorf("tool call = %+v", tc)
	}
}

func TestOpenAIChat_MalformedArguments(t *testing.T) {
	resp := &openaiResponse{Choices: []openaiChoice{{Message: openaiMessage{
		ToolCalls: []openaiToolCall{{ID: "c", Function: openaiToolFunction{Name: "capture_email", Arguments: `{"email": `}}},
	}}}}
	got, err := parseResponse(resp)
	if err != nil {
		t.Fatal(err)
	}
	if got.ToolCalls[0].Arguments["_raw"] != `{"email": ` {
		t.Errorf("args = %v", got.ToolCalls[0].Arguments)
	}
}

func TestOpenAIChat_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "rate limited"}}`))
	}))
	defer srv.Close()

	p := NewOpenAI("test-key", WithBaseURL(srv.URL))
	_, err := p.Chat(context.Background(), protocol.ChatRequest{
		Messages: []protocol.ChatMessage{{Role: "user", Content: "oi"}},
	})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests || !apiErr.Retryable() {
		t.Errorf("api error = %+v", apiErr)
	}
}

func TestOpenAIChat_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	p := NewOpenAI("k", WithBaseURL(srv.URL))
	if _, err := p.Chat(context.Background(), protocol.ChatRequest{}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}
