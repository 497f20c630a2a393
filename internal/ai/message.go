package ai

import "study_ai_backend/internal/model"

// Role 提示消息的角色，与对话API的三种角色一一对应
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func Assistant(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// FromLogRole 把存储的日志角色映射为消息角色。system 日志不进入对话上下文
func FromLogRole(role model.LogRole, content string) (Message, bool) {
	switch role {
	case model.LogRoleAI:
		return Assistant(content), true
	case model.LogRoleUser:
		return User(content), true
	default:
		return Message{}, false
	}
}
