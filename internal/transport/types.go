package transport

import (
	"context"

	"github.com/mbeoliero/chatsync/internal/entity"
)

// MessagingService is the remote backend consumed by the sync engine.
// Implementations must translate every failure into a *errcode.Error.
type MessagingService interface {
	// GetOrCreateConversation returns the conversation between the current
	// user and targetUserId, creating it server-side when absent. The
	// backend is the source of truth for deduplication, so the call is
	// idempotent and safe to retry.
	GetOrCreateConversation(ctx context.Context, targetUserId string) (*GetOrCreateResult, error)

	// ListConversations returns one page of the user's conversations.
	ListConversations(ctx context.Context, req *ListConversationsRequest) (*ListConversationsResponse, error)

	// ListMessages returns one page of a conversation's messages ordered by
	// created_at ascending.
	ListMessages(ctx context.Context, conversationId string, page, limit int) (*ListMessagesResponse, error)

	// SendMessage delivers a message. ClientMsgId lets the backend drop
	// duplicate deliveries of the same send.
	SendMessage(ctx context.Context, req *SendMessageRequest) (*entity.Message, error)
}

// Response represents the standard API envelope
type Response struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data,omitempty"`
}

// GetOrCreateRequest represents a get-or-create conversation request
type GetOrCreateRequest struct {
	TargetUserId string `json:"target_user_id"`
}

// GetOrCreateResult represents a get-or-create conversation response
type GetOrCreateResult struct {
	Conversation *entity.Conversation `json:"conversation"`
	IsNew        bool                 `json:"is_new"`
}

// ListConversationsRequest represents a list conversations request
type ListConversationsRequest struct {
	Page   int    `json:"page"`
	Limit  int    `json:"limit"`
	Search string `json:"search,omitempty"`
	Filter string `json:"filter,omitempty"`
}

// ListConversationsResponse represents a list conversations response
type ListConversationsResponse struct {
	Conversations []*entity.Conversation `json:"conversations"`
	Pagination    entity.Pagination      `json:"pagination"`
}

// ListMessagesResponse represents a list messages response
type ListMessagesResponse struct {
	Messages   []*entity.Message `json:"messages"`
	Pagination entity.Pagination `json:"pagination"`
}

// SendMessageRequest represents a send message request
type SendMessageRequest struct {
	ConversationId string `json:"conversation_id"`
	ClientMsgId    string `json:"client_msg_id"`
	Content        string `json:"content"`
}
