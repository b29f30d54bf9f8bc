package society

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nao1215/owlpair/internal/agent"
	"github.com/nao1215/owlpair/internal/model"
)

// scriptedAgent replays a fixed list of results and records what it receives.
type scriptedAgent struct {
	mu       sync.Mutex
	system   model.Message
	replies  []model.TurnResult
	errs     map[int]error
	received []model.Message
	resets   int
	onStep   func(call int)
}

func (a *scriptedAgent) Step(_ context.Context, msg model.Message) (model.TurnResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	call := len(a.received)
	a.received = append(a.received, msg)
	if a.onStep != nil {
		a.onStep(call)
	}
	if err, ok := a.errs[call]; ok {
		return model.TurnResult{}, err
	}
	if call >= len(a.replies) {
		return model.TurnResult{}, nil
	}
	return a.replies[call], nil
}

func (a *scriptedAgent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resets++
}

func (a *scriptedAgent) Received() []model.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.Message(nil), a.received...)
}

// pairFactory hands out the instructor on the first call and the solver on the second.
func pairFactory(instructor, solver *scriptedAgent) agent.Factory {
	var calls int
	return agent.FactoryFunc(func(_ context.Context, system model.Message) (agent.Agent, error) {
		calls++
		if calls%2 == 1 {
			instructor.system = system
			return instructor, nil
		}
		solver.system = system
		return solver, nil
	})
}

func say(role, text string) model.TurnResult {
	return model.TurnResult{Messages: []model.Message{model.NewAssistantMessage(role, text)}}
}

func sayWithUsage(role, text string, prompt, completion int) model.TurnResult {
	r := say(role, text)
	r.Usage = &model.Usage{PromptTokens: prompt, CompletionTokens: completion}
	return r
}

func newOrchestrator(t *testing.T, instructor, solver *scriptedAgent, opts ...Option) *Orchestrator {
	t.Helper()
	o, err := New("find the capital of France", pairFactory(instructor, solver), opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return o
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("rejects empty task", func(t *testing.T) {
		t.Parallel()
		_, err := New("  ", pairFactory(&scriptedAgent{}, &scriptedAgent{}))
		if !errors.Is(err, ErrNoTask) {
			t.Errorf("New() error = %v, want ErrNoTask", err)
		}
	})

	t.Run("rejects nil factory", func(t *testing.T) {
		t.Parallel()
		_, err := New("task", nil)
		if !errors.Is(err, ErrNoFactory) {
			t.Errorf("New() error = %v, want ErrNoFactory", err)
		}
	})
}

func TestInitialize(t *testing.T) {
	t.Parallel()

	t.Run("builds system prompts and priming message", func(t *testing.T) {
		t.Parallel()
		instructor, solver := &scriptedAgent{}, &scriptedAgent{}
		o := newOrchestrator(t, instructor, solver, WithRoleNames("planner", "worker"))

		msg, err := o.Initialize(t.Context())
		if err != nil {
			t.Fatalf("Initialize() error = %v", err)
		}
		if msg.RoleKind != model.RoleAssistant || msg.RoleName != "worker" {
			t.Errorf("priming message = %+v, want assistant role named worker", msg)
		}
		if !strings.Contains(msg.Content, "step by step") {
			t.Errorf("priming content = %q", msg.Content)
		}
		if instructor.system.RoleKind != model.RoleUser || instructor.system.RoleName != "planner" {
			t.Errorf("instructor system = %+v", instructor.system)
		}
		if solver.system.RoleKind != model.RoleAssistant {
			t.Errorf("solver system = %+v", solver.system)
		}
		for _, sys := range []model.Message{instructor.system, solver.system} {
			if !strings.Contains(sys.Content, "find the capital of France") {
				t.Errorf("system prompt does not contain the task: %q", sys.Content)
			}
		}
		if instructor.resets != 1 || solver.resets != 1 {
			t.Errorf("resets = %d/%d, want 1/1", instructor.resets, solver.resets)
		}
		if o.Session() == nil || o.Session().Task != "find the capital of France" {
			t.Errorf("Session() = %+v", o.Session())
		}
	})

	t.Run("output language is appended to both prompts", func(t *testing.T) {
		t.Parallel()
		instructor, solver := &scriptedAgent{}, &scriptedAgent{}
		o := newOrchestrator(t, instructor, solver, WithOutputLanguage("Chinese"))
		if _, err := o.Initialize(t.Context()); err != nil {
			t.Fatalf("Initialize() error = %v", err)
		}
		for _, sys := range []model.Message{instructor.system, solver.system} {
			if !strings.HasSuffix(sys.Content, "you must output text in Chinese.") {
				t.Errorf("system prompt does not end with language rule: %q", sys.Content)
			}
		}
	})

	t.Run("factory errors are returned", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		factory := agent.FactoryFunc(func(context.Context, model.Message) (agent.Agent, error) {
			return nil, boom
		})
		o, err := New("task", factory)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if _, err := o.Initialize(t.Context()); !errors.Is(err, boom) {
			t.Errorf("Initialize() error = %v, want boom", err)
		}
	})
}

func TestAdvance(t *testing.T) {
	t.Parallel()

	t.Run("requires initialization", func(t *testing.T) {
		t.Parallel()
		o := newOrchestrator(t, &scriptedAgent{}, &scriptedAgent{})
		_, _, err := o.Advance(t.Context(), model.NewAssistantMessage("assistant", "hi"))
		if !errors.Is(err, ErrNotInitialized) {
			t.Errorf("Advance() error = %v, want ErrNotInitialized", err)
		}
	})

	t.Run("augments both messages on a normal round", func(t *testing.T) {
		t.Parallel()
		instructor := &scriptedAgent{replies: []model.TurnResult{say("user", "Instruction: search the web")}}
		solver := &scriptedAgent{replies: []model.TurnResult{say("assistant", "Solution: Paris")}}
		o := newOrchestrator(t, instructor, solver)
		incoming, err := o.Initialize(t.Context())
		if err != nil {
			t.Fatal(err)
		}

		solverResp, instructorResp, err := o.Advance(t.Context(), incoming)
		if err != nil {
			t.Fatalf("Advance() error = %v", err)
		}

		got := solver.Received()
		if len(got) != 1 {
			t.Fatalf("solver received %d messages, want 1", len(got))
		}
		if !strings.Contains(got[0].Content, "<auxiliary_information>") {
			t.Errorf("solver input lacks auxiliary directive: %q", got[0].Content)
		}
		if got[0].Untouched() != "Instruction: search the web" {
			t.Errorf("solver input untouched = %q", got[0].Untouched())
		}

		reply, ok := solverResp.Message()
		if !ok {
			t.Fatal("solver result has no message")
		}
		if reply.Untouched() != "Solution: Paris" || !strings.Contains(reply.Content, "next instruction") {
			t.Errorf("solver reply = %q", reply.Content)
		}
		if instr, _ := instructorResp.Message(); !instr.IsAugmented() {
			t.Errorf("instructor result should carry the augmented instruction")
		}
	})

	t.Run("sentinel instruction gets the terminal directive", func(t *testing.T) {
		t.Parallel()
		instructor := &scriptedAgent{replies: []model.TurnResult{say("user", "TASK_DONE")}}
		solver := &scriptedAgent{replies: []model.TurnResult{say("assistant", "<final_answer>Paris</final_answer>")}}
		o := newOrchestrator(t, instructor, solver, WithTerminalTemplate(StructuredTerminal))
		incoming, err := o.Initialize(t.Context())
		if err != nil {
			t.Fatal(err)
		}

		solverResp, _, err := o.Advance(t.Context(), incoming)
		if err != nil {
			t.Fatalf("Advance() error = %v", err)
		}
		got := solver.Received()[0].Content
		if !strings.Contains(got, "make a final answer") || !strings.Contains(got, "<final_answer>") {
			t.Errorf("solver input lacks terminal directive: %q", got)
		}
		if strings.Contains(got, "<auxiliary_information>") {
			t.Errorf("terminal round must not carry the auxiliary directive")
		}
		if reply, _ := solverResp.Message(); reply.IsAugmented() {
			t.Errorf("reply after the sentinel must not be augmented: %q", reply.Content)
		}
	})

	t.Run("instructor termination short-circuits", func(t *testing.T) {
		t.Parallel()
		instructor := &scriptedAgent{replies: []model.TurnResult{{Terminated: true}}}
		solver := &scriptedAgent{}
		o := newOrchestrator(t, instructor, solver)
		incoming, err := o.Initialize(t.Context())
		if err != nil {
			t.Fatal(err)
		}

		solverResp, instructorResp, err := o.Advance(t.Context(), incoming)
		if err != nil {
			t.Fatalf("Advance() error = %v", err)
		}
		if solverResp.HasMessage() || solverResp.Terminated {
			t.Errorf("solver result = %+v, want empty and not terminated", solverResp)
		}
		if instructorResp.HasMessage() || !instructorResp.Terminated {
			t.Errorf("instructor result = %+v, want empty and terminated", instructorResp)
		}
		if len(solver.Received()) != 0 {
			t.Errorf("solver must not be stepped")
		}
	})

	t.Run("silent instructor short-circuits without termination", func(t *testing.T) {
		t.Parallel()
		instructor := &scriptedAgent{replies: []model.TurnResult{{}}}
		o := newOrchestrator(t, instructor, &scriptedAgent{})
		incoming, _ := o.Initialize(t.Context())

		solverResp, instructorResp, err := o.Advance(t.Context(), incoming)
		if err != nil {
			t.Fatalf("Advance() error = %v", err)
		}
		if solverResp.Terminated || instructorResp.Terminated {
			t.Errorf("no side should be terminated")
		}
		if solverResp.HasMessage() || instructorResp.HasMessage() {
			t.Errorf("no side should carry a message")
		}
	})

	t.Run("solver termination keeps the untouched instruction", func(t *testing.T) {
		t.Parallel()
		instructor := &scriptedAgent{replies: []model.TurnResult{{
			Messages:   []model.Message{model.NewUserMessage("user", "Instruction: a"), model.NewUserMessage("user", "Instruction: b")},
			Terminated: false,
		}}}
		solver := &scriptedAgent{replies: []model.TurnResult{{Terminated: true}}}
		o := newOrchestrator(t, instructor, solver)
		incoming, _ := o.Initialize(t.Context())

		solverResp, instructorResp, err := o.Advance(t.Context(), incoming)
		if err != nil {
			t.Fatalf("Advance() error = %v", err)
		}
		if !solverResp.Terminated || solverResp.HasMessage() {
			t.Errorf("solver result = %+v, want empty and terminated", solverResp)
		}
		if instructorResp.Terminated {
			t.Errorf("instructor result must not be terminated")
		}
		if len(instructorResp.Messages) != 1 {
			t.Fatalf("instructor messages = %d, want 1", len(instructorResp.Messages))
		}
		instr := instructorResp.Messages[0]
		if instr.IsAugmented() || instr.Content != "Instruction: a" {
			t.Errorf("instructor message = %+v, want untouched first candidate", instr)
		}
	})

	t.Run("agent errors are wrapped", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("rate limited")
		instructor := &scriptedAgent{errs: map[int]error{0: boom}}
		o := newOrchestrator(t, instructor, &scriptedAgent{})
		incoming, _ := o.Initialize(t.Context())
		if _, _, err := o.Advance(t.Context(), incoming); !errors.Is(err, boom) {
			t.Errorf("Advance() error = %v, want wrapped boom", err)
		}
	})
}

func TestRun(t *testing.T) {
	t.Parallel()

	t.Run("stops on the round the solver declares the task done", func(t *testing.T) {
		t.Parallel()
		instructor := &scriptedAgent{replies: []model.TurnResult{
			say("user", "Instruction: look it up"),
			say("user", "Instruction: double check"),
			say("user", "Instruction: never reached"),
		}}
		solver := &scriptedAgent{replies: []model.TurnResult{
			say("assistant", "Solution: probably Paris"),
			say("assistant", "Solution: Paris. TASK_DONE"),
			say("assistant", "never reached"),
		}}
		o := newOrchestrator(t, instructor, solver)

		result, err := o.Run(t.Context(), 3)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if result.Rounds != 2 || len(result.Transcript) != 2 {
			t.Fatalf("rounds = %d, entries = %d, want 2", result.Rounds, len(result.Transcript))
		}
		if result.Answer != "Solution: Paris. TASK_DONE" {
			t.Errorf("Answer = %q", result.Answer)
		}
		if result.Transcript[0].UserText != "Instruction: look it up" {
			t.Errorf("entry 0 user = %q, want untouched text", result.Transcript[0].UserText)
		}
		if result.Transcript[0].AssistantText != "Solution: probably Paris" {
			t.Errorf("entry 0 assistant = %q, want untouched text", result.Transcript[0].AssistantText)
		}
		if len(instructor.Received()) != 2 {
			t.Errorf("instructor stepped %d times, want 2", len(instructor.Received()))
		}
		// The second instruction answers the augmented first solution.
		if !strings.Contains(instructor.Received()[1].Content, "next instruction") {
			t.Errorf("instructor round 1 input = %q", instructor.Received()[1].Content)
		}
	})

	t.Run("runs every round when nobody finishes", func(t *testing.T) {
		t.Parallel()
		instructor := &scriptedAgent{replies: []model.TurnResult{say("user", "a"), say("user", "b")}}
		solver := &scriptedAgent{replies: []model.TurnResult{say("assistant", "1"), say("assistant", "2")}}
		o := newOrchestrator(t, instructor, solver)

		result, err := o.Run(t.Context(), 2)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if result.Rounds != 2 || result.Answer != "2" {
			t.Errorf("result = %+v", result)
		}
		for i, e := range result.Transcript {
			if e.Round != i || e.ToolCalls == nil {
				t.Errorf("entry %d = %+v", i, e)
			}
		}
	})

	t.Run("instructor termination records empty strings", func(t *testing.T) {
		t.Parallel()
		instructor := &scriptedAgent{replies: []model.TurnResult{say("user", "a"), {Terminated: true}}}
		solver := &scriptedAgent{replies: []model.TurnResult{say("assistant", "1")}}
		o := newOrchestrator(t, instructor, solver)

		result, err := o.Run(t.Context(), 5)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(result.Transcript) != 2 {
			t.Fatalf("entries = %d, want 2", len(result.Transcript))
		}
		last := result.Transcript[1]
		if last.UserText != "" || last.AssistantText != "" {
			t.Errorf("last entry = %+v, want empty texts", last)
		}
		if result.Answer != "" {
			t.Errorf("Answer = %q, want empty", result.Answer)
		}
	})

	t.Run("usage counts only rounds both sides report", func(t *testing.T) {
		t.Parallel()
		instructor := &scriptedAgent{replies: []model.TurnResult{
			sayWithUsage("user", "a", 10, 1),
			sayWithUsage("user", "b", 20, 2),
			sayWithUsage("user", "c", 30, 3),
		}}
		solver := &scriptedAgent{replies: []model.TurnResult{
			sayWithUsage("assistant", "1", 100, 10),
			say("assistant", "2"),
			sayWithUsage("assistant", "3", 300, 30),
		}}
		o := newOrchestrator(t, instructor, solver)

		result, err := o.Run(t.Context(), 3)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		want := model.Usage{PromptTokens: 10 + 100 + 30 + 300, CompletionTokens: 1 + 10 + 3 + 30}
		if result.Usage != want {
			t.Errorf("Usage = %+v, want %+v", result.Usage, want)
		}
	})

	t.Run("solver tool calls land in the transcript", func(t *testing.T) {
		t.Parallel()
		reply := say("assistant", "Solution: done. TASK_DONE")
		reply.ToolCalls = []model.ToolCallRecord{{Name: "crawl_and_extract", Arguments: `{"url":"https://example.com"}`, Result: "text"}}
		instructor := &scriptedAgent{replies: []model.TurnResult{say("user", "read the page")}}
		solver := &scriptedAgent{replies: []model.TurnResult{reply}}
		o := newOrchestrator(t, instructor, solver)

		result, err := o.Run(t.Context(), 3)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if got := result.Transcript[0].ToolCalls; len(got) != 1 || got[0].Name != "crawl_and_extract" {
			t.Errorf("ToolCalls = %+v", got)
		}
	})

	t.Run("structured template extracts the final answer", func(t *testing.T) {
		t.Parallel()
		instructor := &scriptedAgent{replies: []model.TurnResult{say("user", "TASK_DONE")}}
		solver := &scriptedAgent{replies: []model.TurnResult{
			say("assistant", "<analysis>it is the capital</analysis>\n<final_answer> Paris </final_answer>"),
		}}
		o := newOrchestrator(t, instructor, solver, WithTerminalTemplate(StructuredTerminal))

		result, err := o.Run(t.Context(), 3)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if result.Rounds != 1 {
			t.Errorf("Rounds = %d, want 1", result.Rounds)
		}
		if result.FinalAnswer != "Paris" {
			t.Errorf("FinalAnswer = %q, want Paris", result.FinalAnswer)
		}
	})

	t.Run("zero rounds is an error", func(t *testing.T) {
		t.Parallel()
		o := newOrchestrator(t, &scriptedAgent{}, &scriptedAgent{})
		if _, err := o.Run(t.Context(), 0); !errors.Is(err, ErrEmptyTranscript) {
			t.Errorf("Run() error = %v, want ErrEmptyTranscript", err)
		}
	})

	t.Run("silent solver without termination is an error", func(t *testing.T) {
		t.Parallel()
		instructor := &scriptedAgent{replies: []model.TurnResult{say("user", "a")}}
		solver := &scriptedAgent{replies: []model.TurnResult{{}}}
		o := newOrchestrator(t, instructor, solver)

		result, err := o.Run(t.Context(), 3)
		if !errors.Is(err, ErrMissingContent) {
			t.Fatalf("Run() error = %v, want ErrMissingContent", err)
		}
		if len(result.Transcript) != 1 || result.Transcript[0].UserText != "a" {
			t.Errorf("partial transcript = %+v", result.Transcript)
		}
	})

	t.Run("cancellation keeps the partial transcript", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()

		instructor := &scriptedAgent{replies: []model.TurnResult{say("user", "a"), say("user", "b")}}
		solver := &scriptedAgent{
			replies: []model.TurnResult{say("assistant", "1"), say("assistant", "2")},
			onStep: func(call int) {
				if call == 0 {
					cancel()
				}
			},
		}
		o := newOrchestrator(t, instructor, solver)

		result, err := o.Run(ctx, 5)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() error = %v, want context.Canceled", err)
		}
		if !result.Interrupted {
			t.Error("result should be marked interrupted")
		}
		if len(result.Transcript) != 1 || result.Answer != "1" {
			t.Errorf("partial result = %+v", result)
		}
	})

	t.Run("agent failure reports the round", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("upstream down")
		instructor := &scriptedAgent{replies: []model.TurnResult{say("user", "a"), say("user", "b")}}
		solver := &scriptedAgent{replies: []model.TurnResult{say("assistant", "1")}, errs: map[int]error{1: boom}}
		o := newOrchestrator(t, instructor, solver)

		result, err := o.Run(t.Context(), 5)
		if !errors.Is(err, boom) || !strings.Contains(err.Error(), "round 1") {
			t.Fatalf("Run() error = %v", err)
		}
		if result.Interrupted || len(result.Transcript) != 1 {
			t.Errorf("partial result = %+v", result)
		}
	})
}

func TestExtractTagged(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		tag     string
		want    string
		wantOK  bool
	}{
		{name: "single block", content: "x <final_answer> 42 </final_answer> y", tag: "final_answer", want: "42", wantOK: true},
		{name: "multiline", content: "<analysis>\nline1\nline2\n</analysis>", tag: "analysis", want: "line1\nline2", wantOK: true},
		{name: "first block wins", content: "<a>1</a><a>2</a>", tag: "a", want: "1", wantOK: true},
		{name: "missing", content: "no tags", tag: "final_answer", wantOK: false},
		{name: "unclosed", content: "<final_answer>42", tag: "final_answer", wantOK: false},
		{name: "close before open", content: "</a> <a> x </a>", tag: "a", want: "x", wantOK: true},
		{name: "empty block", content: "<a>  </a>", tag: "a", want: "", wantOK: true},
		{name: "tag is literal", content: "<a.b>ok</a.b><axb>no</axb>", tag: "a.b", want: "ok", wantOK: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ExtractTagged(tt.content, tt.tag)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ExtractTagged() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestContainsSentinel(t *testing.T) {
	t.Parallel()

	for text, want := range map[string]bool{
		"all good, TASK_DONE": true,
		"任务已完成":               true,
		"task_done":           false,
		"still working on it": false,
		"":                    false,
	} {
		if got := ContainsSentinel(text); got != want {
			t.Errorf("ContainsSentinel(%q) = %v, want %v", text, got, want)
		}
	}
}
