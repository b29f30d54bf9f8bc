package agent

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// fakeAPI is a scripted chat completions endpoint. Each request pops the
// next handler; the decoded requests are kept for assertions.
type fakeAPI struct {
	*httptest.Server

	mu       sync.Mutex
	script   []http.HandlerFunc
	requests []chatRequest
	auth     []string
}

func newFakeAPI(t *testing.T, script ...http.HandlerFunc) *fakeAPI {
	t.Helper()

	f := &fakeAPI{script: script}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.auth = append(f.auth, r.Header.Get("Authorization"))
		if len(f.script) == 0 {
			f.mu.Unlock()
			http.Error(w, `{"error":{"message":"script exhausted"}}`, http.StatusBadRequest)
			return
		}
		next := f.script[0]
		f.script = f.script[1:]
		f.mu.Unlock()

		next(w, r)
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeAPI) Requests() []chatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chatRequest(nil), f.requests...)
}

func (f *fakeAPI) Auth(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auth[i]
}

func (f *fakeAPI) client(t *testing.T, opts ...ClientOption) *Client {
	t.Helper()
	opts = append([]ClientOption{WithRetry(2, time.Millisecond, 5*time.Millisecond)}, opts...)
	c, err := NewClient(f.URL+"/v1", "sk-test-key", opts...)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test helper
}

// reply answers with a plain assistant message.
func reply(content string, prompt, completion int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, chatResponse{
			ID: "chatcmpl-test",
			Choices: []chatChoice{{
				FinishReason: "stop",
				Message:      responseMessage{Role: "assistant", Content: content},
			}},
			Usage: &chatUsage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion},
		})
	}
}

// callTool answers with a single function call.
func callTool(id, name, arguments string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, chatResponse{
			Choices: []chatChoice{{
				FinishReason: "tool_calls",
				Message: responseMessage{
					Role: "assistant",
					ToolCalls: []toolCall{{
						ID:       id,
						Type:     "function",
						Function: functionCall{Name: name, Arguments: arguments},
					}},
				},
			}},
			Usage: &chatUsage{PromptTokens: 5, CompletionTokens: 1},
		})
	}
}

func fail(status int, message string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := errorResponse{}
		resp.Error.Message = message
		resp.Error.Type = "test_error"
		writeJSON(w, status, resp)
	}
}
