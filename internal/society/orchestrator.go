package society

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nao1215/owlpair/internal/agent"
	"github.com/nao1215/owlpair/internal/metrics"
	"github.com/nao1215/owlpair/internal/model"
)

// Default role names of the two sides.
const (
	DefaultInstructorName = "user"
	DefaultSolverName     = "assistant"
)

// Session is the state of one dialogue.
type Session struct {
	// Task is the task prompt. It never changes.
	Task string

	// Round is the number of completed rounds.
	Round int

	// Usage is the running token total.
	Usage model.Usage

	// Transcript holds the completed rounds.
	Transcript model.Transcript

	instructor agent.Agent
	solver     agent.Agent
}

// Orchestrator drives the instructor and solver through a dialogue.
// It is not safe for concurrent use.
type Orchestrator struct {
	task    string
	factory agent.Factory

	terminal       TerminalTemplate
	outputLanguage string
	instructorName string
	solverName     string

	logger  *slog.Logger
	metrics *metrics.Recorder

	session *Session
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTerminalTemplate selects the final-answer directive.
func WithTerminalTemplate(t TerminalTemplate) Option {
	return func(o *Orchestrator) {
		o.terminal = t
	}
}

// WithOutputLanguage asks both agents to answer in language, e.g. "Chinese".
func WithOutputLanguage(language string) Option {
	return func(o *Orchestrator) {
		o.outputLanguage = strings.TrimSpace(language)
	}
}

// WithRoleNames sets the display names of the instructor and the solver.
// Empty names keep the defaults.
func WithRoleNames(instructor, solver string) Option {
	return func(o *Orchestrator) {
		if instructor != "" {
			o.instructorName = instructor
		}
		if solver != "" {
			o.solverName = solver
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// New creates an Orchestrator for task whose agents come from factory.
func New(task string, factory agent.Factory, opts ...Option) (*Orchestrator, error) {
	if strings.TrimSpace(task) == "" {
		return nil, ErrNoTask
	}
	if factory == nil {
		return nil, ErrNoFactory
	}

	o := &Orchestrator{
		task:           task,
		factory:        factory,
		terminal:       PlainTerminal,
		instructorName: DefaultInstructorName,
		solverName:     DefaultSolverName,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Session returns the current session, or nil before Initialize.
func (o *Orchestrator) Session() *Session {
	return o.session
}

// Initialize builds the system prompts, creates both agents and returns the
// message the instructor answers on the first round. It starts a new session.
func (o *Orchestrator) Initialize(ctx context.Context) (model.Message, error) {
	instructorSys := model.NewUserMessage(o.instructorName, instructorSystemPrompt(o.task, o.outputLanguage))
	solverSys := model.NewAssistantMessage(o.solverName, solverSystemPrompt(o.task, o.outputLanguage))

	instructor, err := o.factory.NewAgent(ctx, instructorSys)
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to create instructor agent: %w", err)
	}
	solver, err := o.factory.NewAgent(ctx, solverSys)
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to create solver agent: %w", err)
	}
	instructor.Reset()
	solver.Reset()

	o.session = &Session{
		Task:       o.task,
		instructor: instructor,
		solver:     solver,
	}
	return model.NewAssistantMessage(o.solverName, initPrompt), nil
}

// Advance runs one round: the instructor answers incoming, the instruction
// is augmented and passed to the solver, and the solver's reply is
// augmented for the next round. The solver's message in the returned result
// is the next incoming message.
//
// When the instructor terminates or stays silent, the solver result is
// empty and the instructor result carries the termination flag. When the
// solver terminates or stays silent, the instructor result holds the
// instruction as written.
func (o *Orchestrator) Advance(ctx context.Context, incoming model.Message) (solver, instructor model.TurnResult, err error) {
	s := o.session
	if s == nil {
		return model.TurnResult{}, model.TurnResult{}, ErrNotInitialized
	}

	instructorResp, err := s.instructor.Step(ctx, incoming)
	if err != nil {
		return model.TurnResult{}, model.TurnResult{}, fmt.Errorf("instructor step failed: %w", err)
	}
	instructorResp = instructorResp.Single()
	instruction, ok := instructorResp.Message()
	if instructorResp.Terminated || !ok {
		return model.Terminal(false), model.TurnResult{
			Terminated: instructorResp.Terminated,
			Usage:      instructorResp.Usage,
			ToolCalls:  instructorResp.ToolCalls,
		}, nil
	}

	done := ContainsSentinel(instruction.Untouched())
	var augmented model.Message
	if done {
		augmented = instruction.Augment(o.terminal.directive(o.task))
	} else {
		augmented = instruction.Augment(fmt.Sprintf(auxiliaryDirective, o.task))
	}

	solverResp, err := s.solver.Step(ctx, augmented)
	if err != nil {
		return model.TurnResult{}, model.TurnResult{}, fmt.Errorf("solver step failed: %w", err)
	}
	solverResp = solverResp.Single()
	reply, ok := solverResp.Message()
	if solverResp.Terminated || !ok {
		instructorResp.Messages = []model.Message{instruction}
		instructorResp.Terminated = false
		return model.TurnResult{
			Terminated: solverResp.Terminated,
			Usage:      solverResp.Usage,
			ToolCalls:  solverResp.ToolCalls,
		}, instructorResp, nil
	}

	if !done {
		reply = reply.Augment(fmt.Sprintf(nextInstructionDirective, o.task))
	}

	solverResp.Messages = []model.Message{reply}
	instructorResp.Messages = []model.Message{augmented}
	return solverResp, instructorResp, nil
}

// Run initializes the dialogue and advances it for at most roundLimit
// rounds, stopping early when either side terminates or declares the task
// done. Usage is only counted for rounds in which both sides report it.
//
// Agent errors end the run. When the context is cancelled the partial
// result is returned, marked Interrupted, together with the context error.
func (o *Orchestrator) Run(ctx context.Context, roundLimit int) (model.RunResult, error) {
	incoming, err := o.Initialize(ctx)
	if err != nil {
		return model.RunResult{}, err
	}
	s := o.session

	for round := range max(roundLimit, 0) {
		if err := ctx.Err(); err != nil {
			return o.partial(true), err
		}

		solverResp, instructorResp, err := o.Advance(ctx, incoming)
		if err != nil {
			interrupted := ctx.Err() != nil || errors.Is(err, context.Canceled)
			return o.partial(interrupted), fmt.Errorf("round %d: %w", round, err)
		}

		instructorText := untouchedText(instructorResp)
		solverText := untouchedText(solverResp)

		if instructorResp.Usage != nil && solverResp.Usage != nil {
			s.Usage = s.Usage.Add(*instructorResp.Usage).Add(*solverResp.Usage)
		}

		entry := model.TranscriptEntry{
			Round:         round,
			UserText:      instructorText,
			AssistantText: solverText,
			ToolCalls:     solverResp.ToolCalls,
		}
		if err := s.Transcript.Append(entry); err != nil {
			return o.partial(false), err
		}
		s.Round = round + 1
		o.metrics.Round()

		o.logger.Info("round finished",
			"round", round,
			"tool_calls", len(solverResp.ToolCalls),
			"prompt_tokens", s.Usage.PromptTokens,
			"completion_tokens", s.Usage.CompletionTokens,
		)
		o.logger.Debug("round transcript", "round", round, "user", instructorText, "assistant", solverText)

		if instructorResp.Terminated || solverResp.Terminated ||
			ContainsSentinel(instructorText) || ContainsSentinel(solverText) {
			break
		}

		next, ok := solverResp.Message()
		if !ok {
			return o.partial(false), fmt.Errorf("round %d: solver: %w", round, ErrMissingContent)
		}
		incoming = next
	}

	if s.Transcript.Len() == 0 {
		return o.partial(false), ErrEmptyTranscript
	}
	return o.partial(false), nil
}

// partial assembles a RunResult from the session as it stands.
func (o *Orchestrator) partial(interrupted bool) model.RunResult {
	s := o.session
	result := model.RunResult{
		Transcript:  s.Transcript.Entries(),
		Usage:       s.Usage,
		Rounds:      s.Round,
		Interrupted: interrupted,
	}
	if last, ok := s.Transcript.Last(); ok {
		result.Answer = last.AssistantText
	}
	if o.terminal == StructuredTerminal {
		if answer, ok := ExtractTagged(result.Answer, "final_answer"); ok {
			result.FinalAnswer = answer
		}
	}
	return result
}

func untouchedText(r model.TurnResult) string {
	if msg, ok := r.Message(); ok {
		return msg.Untouched()
	}
	return ""
}
