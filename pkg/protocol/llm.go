package protocol

// ChatMessage is one turn of the prompt sent to a provider. Only text is
// replayed; tool traffic from earlier turns is not part of the prompt.
type ChatMessage struct {
	Role    string `json:"role"` // system, user or assistant
	Content string `json:"content"`
}

// ToolCall represents the LLM requesting a tool execution.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ChatResponse is the parsed response from an LLM provider.
type ChatResponse struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     Usage      `json:"usage"`
}

// HasToolCalls returns true if the response contains tool call requests.
func (r *ChatResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// FirstToolCall returns the first tool call whose name is allowed.
// The second return value is false when none matches.
func (r *ChatResponse) FirstToolCall(allowed ...string) (ToolCall, bool) {
	for _, tc := range r.ToolCalls {
		for _, name := range allowed {
			if tc.Name == name {
				return tc, true
			}
		}
	}
	return ToolCall{}, false
}

// Usage tracks token consumption for a single LLM call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// TotalTokens returns the sum of prompt and completion tokens.
func (u Usage) TotalTokens() int {
	return u.PromptTokens + u.CompletionTokens
}

// ChatRequest holds parameters for an LLM chat call. An empty Model uses
// the provider default.
type ChatRequest struct {
	Model       string
	Messages    []ChatMessage
	Tools       []ToolDefinition
	MaxTokens   int
	Temperature float64

	// SingleToolCall asks the provider to return at most one tool call.
	// Providers that cannot enforce it ignore the flag.
	SingleToolCall bool
}
