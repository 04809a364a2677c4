// Package engine wires the resolver, stores and ranker into the intent
// surface consumed by the presentation layer.
package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/chatsync/internal/entity"
	"github.com/mbeoliero/chatsync/internal/identity"
	"github.com/mbeoliero/chatsync/internal/ranker"
	"github.com/mbeoliero/chatsync/internal/resolver"
	"github.com/mbeoliero/chatsync/internal/store"
	"github.com/mbeoliero/chatsync/internal/transport"
	"github.com/mbeoliero/chatsync/pkg/errcode"
)

// ConversationView is a ranked list entry handed to the presentation layer.
// HasPriority is derived at read time; it is never stored.
type ConversationView struct {
	*entity.Conversation
	HasPriority bool `json:"has_priority"`
}

// Engine sequences the sync components in response to UI intents and owns
// the externally observable selection, search and draft state.
type Engine struct {
	svc      transport.MessagingService
	ident    identity.Provider
	convs    *store.ConversationStore
	msgs     *store.MessageStore
	resolver *resolver.ChatResolver

	convPageSize int
	now          func() time.Time

	mu         sync.Mutex
	selectedId string
	searchTerm string
	drafts     map[string]string // conversation id -> restored input after a failed send
}

// Option configures the engine
type Option func(*Engine)

// WithClock overrides the engine clock
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithConversationPageSize sets the conversation list page size
func WithConversationPageSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.convPageSize = n
		}
	}
}

// New creates an Engine
func New(svc transport.MessagingService, ident identity.Provider, msgPageSize int, opts ...Option) *Engine {
	convs := store.NewConversationStore()
	e := &Engine{
		svc:          svc,
		ident:        ident,
		convs:        convs,
		msgs:         store.NewMessageStore(svc, ident, msgPageSize),
		resolver:     resolver.NewChatResolver(svc, convs, ident),
		convPageSize: 20,
		now:          time.Now,
		drafts:       make(map[string]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// LoadConversations fetches one page of the remote conversation list into
// the store. The current search term is pushed down so backend filtering
// and local filtering agree.
func (e *Engine) LoadConversations(ctx context.Context, page int) (entity.Pagination, error) {
	if page <= 0 {
		page = 1
	}

	e.mu.Lock()
	search := e.searchTerm
	e.mu.Unlock()

	resp, err := e.svc.ListConversations(ctx, &transport.ListConversationsRequest{
		Page:   page,
		Limit:  e.convPageSize,
		Search: search,
	})
	if err != nil {
		log.CtxError(ctx, "list conversations failed: page=%d, error=%v", page, err)
		return entity.Pagination{}, err
	}

	for _, conv := range resp.Conversations {
		e.convs.Upsert(conv)
	}
	return resp.Pagination, nil
}

// OpenByTargetUser resolves the conversation with targetUserId, selects it
// and loads its first message page. A resolve failure leaves all state
// untouched.
func (e *Engine) OpenByTargetUser(ctx context.Context, targetUserId string) (*entity.Conversation, error) {
	conv, err := e.resolver.Resolve(ctx, targetUserId)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.selectedId = conv.Id
	e.mu.Unlock()

	if err := e.loadSelected(ctx, conv.Id, 1); err != nil {
		return nil, err
	}
	return conv, nil
}

// loadSelected loads a message page and drops the outcome when the
// conversation is no longer selected by the time the response arrives.
func (e *Engine) loadSelected(ctx context.Context, conversationId string, page int) error {
	err := e.msgs.Load(ctx, conversationId, page)

	e.mu.Lock()
	stale := e.selectedId != conversationId
	e.mu.Unlock()

	if stale {
		log.CtxDebug(ctx, "discarding stale message load: conversation_id=%s, page=%d", conversationId, page)
		return nil
	}
	return err
}

// Send performs an optimistic send: the message appears in the cache before
// the network call resolves, is confirmed in place on success, and is
// removed on failure with the input content kept as a draft for retry.
func (e *Engine) Send(ctx context.Context, conversationId, content string) (*entity.Message, error) {
	if conversationId == "" {
		return nil, errcode.ErrConvNotFound
	}
	if strings.TrimSpace(content) == "" {
		return nil, errcode.ErrEmptyContent
	}

	temp := e.msgs.AppendOptimistic(conversationId, content, e.ident.CurrentUserId())

	serverMsg, err := e.svc.SendMessage(ctx, &transport.SendMessageRequest{
		ConversationId: conversationId,
		ClientMsgId:    temp.Id,
		Content:        content,
	})
	if err != nil {
		log.CtxError(ctx, "send failed: conversation_id=%s, temp_id=%s, error=%v", conversationId, temp.Id, err)
		e.msgs.Discard(temp.Id)
		e.mu.Lock()
		e.drafts[conversationId] = content
		e.mu.Unlock()
		return nil, err
	}

	e.msgs.Reconcile(temp.Id, serverMsg)

	// Concurrent sends can settle out of order; never let an older
	// confirmation regress the preview or activity timestamp.
	upd := e.convs.Get(conversationId)
	if upd == nil {
		upd = &entity.Conversation{Id: conversationId}
	}
	if serverMsg.CreatedAt >= upd.LastActivityAt {
		upd.LastMessage = serverMsg.Preview()
		upd.LastActivityAt = serverMsg.CreatedAt
		e.convs.Upsert(upd)
	}

	e.mu.Lock()
	delete(e.drafts, conversationId)
	e.mu.Unlock()

	return serverMsg.Clone(), nil
}

// Search sets the active search term and returns the filtered ranked list.
func (e *Engine) Search(term string) []ConversationView {
	e.mu.Lock()
	e.searchTerm = term
	e.mu.Unlock()
	return e.Conversations()
}

// Paginate loads an older message page for the selected conversation.
func (e *Engine) Paginate(ctx context.Context, page int) error {
	e.mu.Lock()
	selected := e.selectedId
	e.mu.Unlock()

	if selected == "" {
		return errcode.ErrConvNotFound
	}
	return e.loadSelected(ctx, selected, page)
}

// Conversations returns the ranked, filtered conversation list with the
// priority flag derived at call time.
func (e *Engine) Conversations() []ConversationView {
	e.mu.Lock()
	search := e.searchTerm
	e.mu.Unlock()

	now := e.now()
	convs := e.convs.List(store.ListFilter{Search: search}, now)

	views := make([]ConversationView, len(convs))
	for i, conv := range convs {
		views[i] = ConversationView{
			Conversation: conv,
			HasPriority:  ranker.IsPriority(conv.Counterpart, now),
		}
	}
	return views
}

// Messages returns the selected conversation's cached messages.
func (e *Engine) Messages() []*entity.Message {
	e.mu.Lock()
	selected := e.selectedId
	e.mu.Unlock()

	if selected == "" {
		return nil
	}
	return e.msgs.Messages(selected)
}

// Selected returns the selected conversation, or nil.
func (e *Engine) Selected() *entity.Conversation {
	e.mu.Lock()
	selected := e.selectedId
	e.mu.Unlock()

	if selected == "" {
		return nil
	}
	return e.convs.Get(selected)
}

// Draft returns the input content restored by the last failed send for the
// conversation, if any.
func (e *Engine) Draft(conversationId string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.drafts[conversationId]
}
