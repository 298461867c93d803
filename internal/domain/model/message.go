package model

const (
	RoleUser      = "user"      // submitter
	RoleAssistant = "assistant" // responder
	RoleSystem    = "system"    // chat completions only
)

// Message is one entry of a remote thread or a chat transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}
