package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// executeCmd runs the root command with args and returns what it wrote to stdout.
func executeCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var stdout bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), err
}

// writeConfig writes an owlpair config file so tests never pick up the
// user's own file.
func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), ".owlpair")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// isolatedFlags returns the flags that keep a command away from the
// user's config, cache and database directories.
func isolatedFlags(t *testing.T, dbDir string) []string {
	t.Helper()

	return []string{
		"--config", writeConfig(t, "defaults: {}\n"),
		"--cache-dir", t.TempDir(),
		"--db-dir", dbDir,
		"--max-images", "0",
	}
}

// newTestSite serves a two-page site: / links to /owls.
func newTestSite(t *testing.T) (*httptest.Server, func() int) {
	t.Helper()

	pages := map[string]string{
		"/":     `<html><head><title>Birds</title></head><body><main><p>Owls hunt at night.</p><a href="/owls">more</a></main></body></html>`,
		"/owls": `<html><body><main><p>Barn owls eat mice.</p></main></body></html>`,
	}

	var (
		mu   sync.Mutex
		hits int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()

		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)

	return srv, func() int {
		mu.Lock()
		defer mu.Unlock()
		return hits
	}
}

// chatAPI is a scripted OpenAI-compatible endpoint. Each request is
// answered by the next handler in the script.
type chatAPI struct {
	mu     sync.Mutex
	script []http.HandlerFunc
	bodies []string
	srv    *httptest.Server
}

func newChatAPI(t *testing.T, script ...http.HandlerFunc) *chatAPI {
	t.Helper()

	api := &chatAPI{script: script}
	api.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body) //nolint:errcheck // test server

		api.mu.Lock()
		i := len(api.bodies)
		api.bodies = append(api.bodies, string(body))
		api.mu.Unlock()

		if i >= len(api.script) {
			http.Error(w, `{"error":{"message":"script exhausted"}}`, http.StatusBadRequest)
			return
		}
		api.script[i](w, r)
	}))
	t.Cleanup(api.srv.Close)
	return api
}

func (a *chatAPI) URL() string {
	return a.srv.URL + "/v1"
}

func (a *chatAPI) Bodies() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.bodies...)
}

func writeChatJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test helper
}

// chatReply answers with a plain assistant message.
func chatReply(content string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeChatJSON(w, map[string]any{
			"id": "chatcmpl-test",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 2, "total_tokens": 12},
		})
	}
}

// chatToolCall answers with a single function call.
func chatToolCall(name string, arguments any) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		args, _ := json.Marshal(arguments) //nolint:errcheck // test helper
		writeChatJSON(w, map[string]any{
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "tool_calls",
				"message": map[string]any{
					"role":    "assistant",
					"content": "",
					"tool_calls": []map[string]any{{
						"id":   "call_1",
						"type": "function",
						"function": map[string]any{
							"name":      name,
							"arguments": string(args),
						},
					}},
				},
			}},
			"usage": map[string]int{"prompt_tokens": 5, "completion_tokens": 1, "total_tokens": 6},
		})
	}
}

func chatFail(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, `{"error":{"message":"bad request","type":"invalid_request_error"}}`)
	}
}

func containsAll(s string, subs ...string) (string, bool) {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return sub, false
		}
	}
	return "", true
}
