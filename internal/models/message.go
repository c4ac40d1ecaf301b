package models

import (
	"fmt"
	"strings"
	"time"
)

// Role identifies who authored a message. The string value is the stored form.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "ai"
)

// ParseRole converts a stored role value into a Role.
func ParseRole(value string) (Role, error) {
	switch strings.TrimSpace(value) {
	case string(RoleUser):
		return RoleUser, nil
	case string(RoleAssistant):
		return RoleAssistant, nil
	default:
		return "", fmt.Errorf("unknown message role %q", value)
	}
}

func (r Role) String() string {
	return string(r)
}

// Message is an immutable entry in a user's conversation log.
type Message struct {
	ID        string
	UserID    string
	Role      Role
	Text      string
	CreatedAt time.Time
	CreatedBy string
	UpdatedAt *time.Time
	UpdatedBy *string
}

// NewMessage is a message waiting to be appended to the log.
type NewMessage struct {
	UserID    string
	Role      Role
	Text      string
	CreatedAt time.Time
}

// ChatEntry is the projection of a Message returned by history reads.
type ChatEntry struct {
	Role Role   `json:"type"`
	Text string `json:"text"`
}

// ChatStatus reports how many messages a user sent today.
type ChatStatus struct {
	UserName   string `json:"user_name"`
	CountToday int64  `json:"chat_cnt"`
}
