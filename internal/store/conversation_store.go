package store

import (
	"strings"
	"sync"
	"time"

	"github.com/mbeoliero/chatsync/internal/entity"
	"github.com/mbeoliero/chatsync/internal/ranker"
)

// ConversationStore holds the local ranked view of the user's conversations.
// It is the single owner of its state; all access goes through its methods.
type ConversationStore struct {
	mu    sync.RWMutex
	convs map[string]*entity.Conversation // conversation id -> record
}

// ListFilter narrows a List call. The zero value returns everything.
type ListFilter struct {
	// Search matches case-insensitively against the counterpart nickname.
	Search string
}

// NewConversationStore creates an empty ConversationStore
func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		convs: make(map[string]*entity.Conversation),
	}
}

// Upsert inserts conv or merges it into the existing record with the same
// id. Id and Counterpart.Id are never overwritten; preview, activity,
// unread count and counterpart profile fields are last-write-wins. Repeated
// calls with the same record are idempotent.
func (s *ConversationStore) Upsert(conv *entity.Conversation) {
	if conv == nil || conv.Id == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.convs[conv.Id]
	if !ok {
		s.convs[conv.Id] = conv.Clone()
		return
	}

	if conv.LastMessage != nil {
		preview := *conv.LastMessage
		existing.LastMessage = &preview
	}
	if conv.LastActivityAt != 0 {
		existing.LastActivityAt = conv.LastActivityAt
	}
	existing.UnreadCount = conv.UnreadCount

	// Counterpart identity is immutable; profile fields may refresh.
	if conv.Counterpart.Nickname != "" {
		existing.Counterpart.Nickname = conv.Counterpart.Nickname
	}
	if conv.Counterpart.Avatar != "" {
		existing.Counterpart.Avatar = conv.Counterpart.Avatar
	}
	if conv.Counterpart.Role != "" {
		existing.Counterpart.Role = conv.Counterpart.Role
	}
	if conv.Counterpart.PriorityExpiresAt != 0 {
		existing.Counterpart.PriorityExpiresAt = conv.Counterpart.PriorityExpiresAt
	}
}

// List returns the ranked, filtered view at now. The result is a snapshot of
// clones; mutating it never touches store state, and filtering never
// disturbs the ranked order.
func (s *ConversationStore) List(filter ListFilter, now time.Time) []*entity.Conversation {
	s.mu.RLock()
	result := make([]*entity.Conversation, 0, len(s.convs))
	for _, conv := range s.convs {
		result = append(result, conv.Clone())
	}
	s.mu.RUnlock()

	ranker.Sort(result, now)

	if filter.Search == "" {
		return result
	}

	needle := strings.ToLower(filter.Search)
	filtered := result[:0]
	for _, conv := range result {
		if strings.Contains(strings.ToLower(conv.Counterpart.Nickname), needle) {
			filtered = append(filtered, conv)
		}
	}
	return filtered
}

// Find returns the first conversation matching pred, or nil. Used by the
// resolver to detect an existing thread with a counterpart before creating
// a new one.
func (s *ConversationStore) Find(pred func(*entity.Conversation) bool) *entity.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, conv := range s.convs {
		if pred(conv) {
			return conv.Clone()
		}
	}
	return nil
}

// FindByCounterpart returns the conversation with the given counterpart id,
// or nil.
func (s *ConversationStore) FindByCounterpart(counterpartId string) *entity.Conversation {
	return s.Find(func(c *entity.Conversation) bool {
		return c.Counterpart.Id == counterpartId
	})
}

// Get returns the conversation with the given id, or nil
func (s *ConversationStore) Get(id string) *entity.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.convs[id].Clone()
}

// Len returns the number of stored conversations
func (s *ConversationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.convs)
}
