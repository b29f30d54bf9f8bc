package model

import (
	"errors"
	"fmt"
	"slices"
)

// ErrRoundOrder is returned when a transcript entry would break strict round order.
var ErrRoundOrder = errors.New("transcript entries must be appended in strict round order")

// TranscriptEntry records one completed round of a dialogue.
// Text fields hold the untouched (pre-augmentation) messages; a side that
// terminated before speaking is recorded as the empty string.
type TranscriptEntry struct {
	// Round is the zero-based round index.
	Round int `json:"round"`

	// UserText is the instructor's message for the round.
	UserText string `json:"user"`

	// AssistantText is the solver's message for the round.
	AssistantText string `json:"assistant"`

	// ToolCalls lists the tools the solver invoked during the round.
	ToolCalls []ToolCallRecord `json:"tool_calls"`
}

// Transcript is the append-only history of a dialogue run.
type Transcript struct {
	entries []TranscriptEntry
}

// Append adds an entry. Its round must be exactly one greater than the
// previous entry's round (or zero for the first entry).
func (t *Transcript) Append(entry TranscriptEntry) error {
	want := len(t.entries)
	if entry.Round != want {
		return fmt.Errorf("%w: got round %d, want %d", ErrRoundOrder, entry.Round, want)
	}
	if entry.ToolCalls == nil {
		entry.ToolCalls = []ToolCallRecord{}
	}
	t.entries = append(t.entries, entry)
	return nil
}

// Len returns the number of recorded rounds.
func (t *Transcript) Len() int {
	return len(t.entries)
}

// Entries returns a copy of the recorded entries.
func (t *Transcript) Entries() []TranscriptEntry {
	return slices.Clone(t.entries)
}

// Last returns the most recent entry and whether one exists.
func (t *Transcript) Last() (TranscriptEntry, bool) {
	if len(t.entries) == 0 {
		return TranscriptEntry{}, false
	}
	return t.entries[len(t.entries)-1], true
}

// RunResult is the outcome of a complete dialogue run.
type RunResult struct {
	// Answer is the solver text of the last transcript entry.
	Answer string `json:"answer"`

	// FinalAnswer is the content of the <final_answer> block when the
	// structured terminal template was used and the solver produced one.
	FinalAnswer string `json:"final_answer,omitempty"`

	// Transcript holds every completed round in order.
	Transcript []TranscriptEntry `json:"chat_history"`

	// Usage is the aggregated token accounting of the run.
	Usage Usage `json:"token_info"`

	// Rounds is the number of rounds executed.
	Rounds int `json:"rounds"`

	// Interrupted is set when the run was cancelled before finishing.
	Interrupted bool `json:"interrupted,omitempty"`
}
