package models

import "time"

// Role identifies who produced a conversation turn.
type Role string

const (
	// RoleUser is a turn written by the end user.
	RoleUser Role = "user"
	// RoleAssistant is a turn produced by a team or node.
	RoleAssistant Role = "assistant"
	// RoleSystem is an instruction turn injected by the framework.
	RoleSystem Role = "system"
)

// Valid returns true if the role is a known value.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

// Turn is a single entry in a conversation.
// Turns are immutable once appended to a RunState.
type Turn struct {
	// Role is who produced the turn.
	Role Role `json:"role"`
	// Name attributes the turn to a team or node (empty for user turns).
	Name string `json:"name,omitempty"`
	// Content is the text of the turn.
	Content string `json:"content"`
	// ToolsCalled lists the tools a team invoked while producing this turn.
	ToolsCalled []string `json:"tools_called,omitempty"`
	// Error carries a captured, recoverable tool failure.
	Error string `json:"error,omitempty"`
	// CreatedAt is when the turn was appended.
	CreatedAt time.Time `json:"created_at"`
}

// Failed returns true if the turn carries a captured tool failure.
func (t Turn) Failed() bool {
	return t.Error != ""
}

// UserTurn builds a user turn with the given content.
func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content, CreatedAt: time.Now()}
}

// AssistantTurn builds an assistant turn attributed to name.
func AssistantTurn(name, content string) Turn {
	return Turn{Role: RoleAssistant, Name: name, Content: content, CreatedAt: time.Now()}
}

// clone returns a copy that shares no slices with t.
func (t Turn) clone() Turn {
	if t.ToolsCalled != nil {
		t.ToolsCalled = append([]string(nil), t.ToolsCalled...)
	}
	return t
}
