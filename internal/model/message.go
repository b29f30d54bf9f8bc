package model

import (
	"errors"
	"fmt"
	"strings"
)

// RoleKind identifies which side of a conversation produced a message.
type RoleKind string

const (
	// RoleUser is the instructor side of the dialogue.
	RoleUser RoleKind = "USER"
	// RoleAssistant is the solver side of the dialogue.
	RoleAssistant RoleKind = "ASSISTANT"
	// RoleSystem marks system prompts given to an agent at construction.
	RoleSystem RoleKind = "SYSTEM"
)

// ErrUnknownRoleKind is returned by ParseRoleKind for unrecognized values.
var ErrUnknownRoleKind = errors.New("unknown role kind")

// ParseRoleKind converts a string such as "user" or "ASSISTANT" into a RoleKind.
func ParseRoleKind(s string) (RoleKind, error) {
	switch RoleKind(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleUser:
		return RoleUser, nil
	case RoleAssistant:
		return RoleAssistant, nil
	case RoleSystem:
		return RoleSystem, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRoleKind, s)
	}
}

// String returns the role kind as text.
func (k RoleKind) String() string {
	return string(k)
}

// Message is a single chat message.
//
// Message is a value type. Its content is never modified in place:
// Augment returns a new value and the text as first authored stays
// available through Untouched.
type Message struct {
	// RoleName is the display name of the author, e.g. "user".
	RoleName string `json:"role_name"`

	// RoleKind is the side of the conversation that produced the message.
	RoleKind RoleKind `json:"role_kind"`

	// Content is the message text, including any augmentation.
	Content string `json:"content"`

	base    string
	hasBase bool
}

// NewMessage creates a message.
func NewMessage(roleName string, kind RoleKind, content string) Message {
	return Message{RoleName: roleName, RoleKind: kind, Content: content}
}

// NewUserMessage creates a message from the instructor side.
func NewUserMessage(roleName, content string) Message {
	return NewMessage(roleName, RoleUser, content)
}

// NewAssistantMessage creates a message from the solver side.
func NewAssistantMessage(roleName, content string) Message {
	return NewMessage(roleName, RoleAssistant, content)
}

// NewSystemMessage creates a system prompt message.
func NewSystemMessage(roleName, content string) Message {
	return NewMessage(roleName, RoleSystem, content)
}

// Augment returns a copy of m with suffix appended to its content.
// The receiver is left unchanged.
func (m Message) Augment(suffix string) Message {
	out := m
	out.base = m.Untouched()
	out.hasBase = true
	out.Content = m.Content + suffix
	return out
}

// Untouched returns the content as originally authored, before any
// call to Augment.
func (m Message) Untouched() string {
	if m.hasBase {
		return m.base
	}
	return m.Content
}

// IsAugmented reports whether the message was produced by Augment.
func (m Message) IsAugmented() bool {
	return m.hasBase
}

// WithContent returns a copy of m carrying the given content as untouched text.
func (m Message) WithContent(content string) Message {
	return Message{RoleName: m.RoleName, RoleKind: m.RoleKind, Content: content}
}

// IsZero reports whether m carries no author and no content.
func (m Message) IsZero() bool {
	return m.RoleName == "" && m.RoleKind == "" && m.Content == ""
}
