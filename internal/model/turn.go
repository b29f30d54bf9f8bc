package model

// Usage is the token accounting reported by an agent for one step.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the request.
	PromptTokens int `json:"prompt_tokens"`

	// CompletionTokens is the number of tokens produced in the response.
	CompletionTokens int `json:"completion_tokens"`
}

// Total returns prompt plus completion tokens.
func (u Usage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}

// Add returns the field-wise sum of u and other.
// Prompt and completion counts are never mixed.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
	}
}

// ToolCallRecord is one tool invocation made by an agent during a step.
// It is serialized verbatim into transcript entries.
type ToolCallRecord struct {
	// ID is the provider-assigned call identifier, if any.
	ID string `json:"id,omitempty"`

	// Name is the tool name.
	Name string `json:"name"`

	// Arguments holds the raw JSON arguments passed to the tool.
	Arguments string `json:"arguments,omitempty"`

	// Result is the text returned by the tool.
	Result string `json:"result,omitempty"`

	// Error is set when the tool call failed.
	Error string `json:"error,omitempty"`
}

// TurnResult is the outcome of one agent step.
type TurnResult struct {
	// Messages holds the produced messages. It contains zero or one
	// entry after the orchestrator has reduced multiple candidates.
	Messages []Message `json:"messages,omitempty"`

	// Terminated is set when the agent signals it will not continue.
	Terminated bool `json:"terminated"`

	// Usage is the token accounting for the step. Nil when the agent
	// does not report usage.
	Usage *Usage `json:"usage,omitempty"`

	// ToolCalls lists the tools invoked while producing the message.
	ToolCalls []ToolCallRecord `json:"tool_calls,omitempty"`
}

// HasMessage reports whether the result carries at least one message.
func (r TurnResult) HasMessage() bool {
	return len(r.Messages) > 0
}

// Message returns the first message of the result and whether one exists.
func (r TurnResult) Message() (Message, bool) {
	if len(r.Messages) == 0 {
		return Message{}, false
	}
	return r.Messages[0], true
}

// Text returns the content of the first message or the empty string.
func (r TurnResult) Text() string {
	if msg, ok := r.Message(); ok {
		return msg.Content
	}
	return ""
}

// Single returns a copy of r whose Messages holds at most the first message.
func (r TurnResult) Single() TurnResult {
	if len(r.Messages) <= 1 {
		return r
	}
	out := r
	out.Messages = []Message{r.Messages[0]}
	return out
}

// Terminal returns an empty result carrying only the termination flag.
func Terminal(terminated bool) TurnResult {
	return TurnResult{Terminated: terminated}
}
