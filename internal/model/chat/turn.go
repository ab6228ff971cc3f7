package chat

import "strings"

// Role identifies who authored a turn. Values match eino's schema.RoleType.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Label is the uppercase role name used in rendered logs.
func (r Role) Label() string {
	return strings.ToUpper(string(r))
}

// Turn is one message of a transcript.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
