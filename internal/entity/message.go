package entity

import (
	"strings"

	"github.com/mbeoliero/chatsync/pkg/idgen"
)

// Message represents a single message inside a conversation.
type Message struct {
	Id             string `json:"id"`
	ConversationId string `json:"conversation_id"`
	SenderId       string `json:"sender_id"`
	Content        string `json:"content"`
	CreatedAt      int64  `json:"created_at"`
	// IsMine is derived from the current identity, never sent on the wire.
	IsMine bool `json:"is_mine"`
	// IsTemporary is true until the backend confirms the message.
	IsTemporary bool `json:"is_temporary"`
}

// Clone returns a copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	cp := *m
	return &cp
}

// Preview returns the list snippet for this message.
func (m *Message) Preview() *MessagePreview {
	return &MessagePreview{Content: m.Content, CreatedAt: m.CreatedAt}
}

// IsTempId reports whether id was generated locally for an optimistic
// message rather than assigned by the backend.
func IsTempId(id string) bool {
	return strings.HasPrefix(id, idgen.TempPrefix)
}
