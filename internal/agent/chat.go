package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/nao1215/owlpair/internal/metrics"
	"github.com/nao1215/owlpair/internal/model"
)

// Agent is one side of the dialogue.
type Agent interface {
	// Step consumes an incoming message and produces the agent's reply.
	Step(ctx context.Context, msg model.Message) (model.TurnResult, error)

	// Reset clears the conversation history, keeping the system message.
	Reset()
}

// Factory creates agents bound to a system message.
type Factory interface {
	NewAgent(ctx context.Context, system model.Message) (Agent, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(ctx context.Context, system model.Message) (Agent, error)

// NewAgent calls f.
func (f FactoryFunc) NewAgent(ctx context.Context, system model.Message) (Agent, error) {
	return f(ctx, system)
}

// finishContentFilter is the finish reason of a refused completion.
const finishContentFilter = "content_filter"

// ChatAgent is an Agent backed by a chat completions model.
//
// A step sends the history plus the incoming message. While the model
// answers with function calls, the tools are run through the registry and
// their results sent back; the first plain answer ends the step.
type ChatAgent struct {
	client *Client
	model  string
	system model.Message

	registry          *Registry
	maxToolIterations int
	temperature       *float64

	logger  *slog.Logger
	metrics *metrics.Recorder

	mu      sync.Mutex
	history []chatMessage
}

// ChatOption configures a ChatAgent.
type ChatOption func(*ChatAgent)

// WithTools sets the tools the model may call.
func WithTools(registry *Registry) ChatOption {
	return func(a *ChatAgent) {
		a.registry = registry
	}
}

// WithMaxToolIterations bounds the completion requests of one step.
func WithMaxToolIterations(n int) ChatOption {
	return func(a *ChatAgent) {
		if n > 0 {
			a.maxToolIterations = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) ChatOption {
	return func(a *ChatAgent) {
		a.temperature = &t
	}
}

// WithAgentLogger sets the logger.
func WithAgentLogger(logger *slog.Logger) ChatOption {
	return func(a *ChatAgent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithAgentMetrics sets the metrics recorder.
func WithAgentMetrics(m *metrics.Recorder) ChatOption {
	return func(a *ChatAgent) {
		a.metrics = m
	}
}

// NewChatAgent creates an agent talking to modelName through client.
// Replies carry the role name and kind of the system message.
func NewChatAgent(client *Client, modelName string, system model.Message, opts ...ChatOption) *ChatAgent {
	a := &ChatAgent{
		client:            client,
		model:             modelName,
		system:            system,
		maxToolIterations: 10,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.history = a.initialHistory()
	return a
}

func (a *ChatAgent) initialHistory() []chatMessage {
	return []chatMessage{{Role: "system", Content: a.system.Content}}
}

// Reset implements Agent.
func (a *ChatAgent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = a.initialHistory()
}

// HistoryLen returns the number of messages in the history, system
// message included.
func (a *ChatAgent) HistoryLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.history)
}

// Step implements Agent. A failed step leaves the history unchanged.
func (a *ChatAgent) Step(ctx context.Context, msg model.Message) (model.TurnResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	checkpoint := len(a.history)
	result, err := a.step(ctx, msg)
	if err != nil {
		a.history = a.history[:checkpoint]
		return model.TurnResult{}, err
	}
	return result, nil
}

func (a *ChatAgent) step(ctx context.Context, msg model.Message) (model.TurnResult, error) {
	a.history = append(a.history, chatMessage{Role: "user", Content: msg.Content})

	var (
		usage     *model.Usage
		toolCalls []model.ToolCallRecord
	)

	for range a.maxToolIterations {
		resp, err := a.client.complete(ctx, &chatRequest{
			Model:       a.model,
			Messages:    a.history,
			Tools:       a.registry.definitions(),
			Temperature: a.temperature,
		})
		if err != nil {
			return model.TurnResult{}, err
		}

		if resp.Usage != nil {
			u := model.Usage{PromptTokens: resp.Usage.PromptTokens, CompletionTokens: resp.Usage.CompletionTokens}
			if usage == nil {
				usage = &model.Usage{}
			}
			*usage = usage.Add(u)
			a.metrics.Tokens(u.PromptTokens, u.CompletionTokens)
		}

		choice := resp.Choices[0]
		if len(choice.Message.ToolCalls) > 0 {
			a.history = append(a.history, chatMessage{
				Role:      "assistant",
				Content:   choice.Message.Content,
				ToolCalls: choice.Message.ToolCalls,
			})
			for _, call := range choice.Message.ToolCalls {
				record := a.runTool(ctx, call)
				toolCalls = append(toolCalls, record)

				content := record.Result
				if record.Error != "" {
					content = "Error: " + record.Error
				}
				a.history = append(a.history, chatMessage{
					Role:       "tool",
					Content:    content,
					ToolCallID: call.ID,
				})
			}
			if err := ctx.Err(); err != nil {
				return model.TurnResult{}, err
			}
			continue
		}

		a.history = append(a.history, chatMessage{Role: "assistant", Content: choice.Message.Content})

		result := model.TurnResult{
			Terminated: choice.FinishReason == finishContentFilter,
			Usage:      usage,
			ToolCalls:  toolCalls,
		}
		if choice.Message.Content != "" {
			result.Messages = []model.Message{
				model.NewMessage(a.system.RoleName, a.system.RoleKind, choice.Message.Content),
			}
		}
		return result, nil
	}

	return model.TurnResult{}, fmt.Errorf("%w: limit %d", ErrToolLoop, a.maxToolIterations)
}

// runTool executes one function call. Tool failures are reported to the
// model, not to the caller.
func (a *ChatAgent) runTool(ctx context.Context, call toolCall) model.ToolCallRecord {
	record := model.ToolCallRecord{
		ID:        call.ID,
		Name:      call.Function.Name,
		Arguments: call.Function.Arguments,
	}

	args := json.RawMessage(call.Function.Arguments)
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	result, err := a.registry.Call(ctx, call.Function.Name, args)
	a.metrics.ToolCall(call.Function.Name, err != nil)
	if err != nil {
		a.logger.Warn("tool call failed", "tool", call.Function.Name, "error", err)
		record.Error = err.Error()
		return record
	}

	a.logger.Debug("tool call finished", "tool", call.Function.Name, "result_chars", len(result))
	record.Result = result
	return record
}

// ChatFactory creates ChatAgents sharing one client.
type ChatFactory struct {
	// Client is the completion client.
	Client *Client

	// Model is the chat model name.
	Model string

	// Tools maps a role kind to the tools of the agents created for it.
	Tools map[model.RoleKind]*Registry

	// Options are applied to every agent.
	Options []ChatOption
}

// NewAgent implements Factory.
func (f *ChatFactory) NewAgent(_ context.Context, system model.Message) (Agent, error) {
	if f.Client == nil {
		return nil, errors.New("chat factory has no client")
	}
	opts := slices.Clone(f.Options)
	if reg := f.Tools[system.RoleKind]; reg != nil {
		opts = append(opts, WithTools(reg))
	}
	return NewChatAgent(f.Client, f.Model, system, opts...), nil
}

var (
	_ Agent   = (*ChatAgent)(nil)
	_ Factory = (*ChatFactory)(nil)
	_ Factory = FactoryFunc(nil)
)
