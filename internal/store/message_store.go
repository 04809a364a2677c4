package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/chatsync/internal/entity"
	"github.com/mbeoliero/chatsync/internal/identity"
	"github.com/mbeoliero/chatsync/internal/transport"
	"github.com/mbeoliero/chatsync/pkg/idgen"
)

// MessageStore is the per-conversation ordered message cache with
// optimistic-send bookkeeping. Messages are kept ordered by created_at
// ascending; each list carries an id index so reconcile and discard touch
// exactly one slot without scanning or reordering.
type MessageStore struct {
	mu       sync.Mutex
	svc      transport.MessagingService
	ident    identity.Provider
	pageSize int

	lists map[string]*messageList // conversation id -> ordered cache
	temps map[string]string       // temporary message id -> conversation id
}

type messageList struct {
	msgs  []*entity.Message
	index map[string]int // message id -> position in msgs
}

func newMessageList() *messageList {
	return &messageList{index: make(map[string]int)}
}

func (l *messageList) reindex(from int) {
	for i := from; i < len(l.msgs); i++ {
		l.index[l.msgs[i].Id] = i
	}
}

// NewMessageStore creates a MessageStore backed by svc
func NewMessageStore(svc transport.MessagingService, ident identity.Provider, pageSize int) *MessageStore {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &MessageStore{
		svc:      svc,
		ident:    ident,
		pageSize: pageSize,
		lists:    make(map[string]*messageList),
		temps:    make(map[string]string),
	}
}

// Load fetches one page of messages for conversationId. Page 1 replaces the
// cached sequence; later pages prepend older history, skipping ids already
// cached so overlapping pages cannot double-insert. A fetch failure is
// returned as a typed error and leaves the cache untouched, so callers can
// tell "no messages yet" from "failed to load".
func (s *MessageStore) Load(ctx context.Context, conversationId string, page int) error {
	if page <= 0 {
		page = 1
	}

	resp, err := s.svc.ListMessages(ctx, conversationId, page, s.pageSize)
	if err != nil {
		log.CtxError(ctx, "load messages failed: conversation_id=%s, page=%d, error=%v", conversationId, page, err)
		return err
	}

	currentUserId := s.ident.CurrentUserId()

	s.mu.Lock()
	defer s.mu.Unlock()

	list, ok := s.lists[conversationId]
	if !ok || page == 1 {
		list = newMessageList()
		s.lists[conversationId] = list
		if page == 1 {
			s.dropTempsFor(conversationId)
		}
	}

	incoming := make([]*entity.Message, 0, len(resp.Messages))
	seen := make(map[string]struct{}, len(resp.Messages))
	for _, m := range resp.Messages {
		if _, dup := list.index[m.Id]; dup {
			continue
		}
		// The index is rebuilt only after the merge, so repeats inside a
		// single response page need their own check.
		if _, dup := seen[m.Id]; dup {
			continue
		}
		seen[m.Id] = struct{}{}
		msg := m.Clone()
		msg.ConversationId = conversationId
		msg.IsMine = msg.SenderId == currentUserId
		incoming = append(incoming, msg)
	}

	if page == 1 {
		list.msgs = incoming
	} else {
		list.msgs = append(incoming, list.msgs...)
	}

	sort.SliceStable(list.msgs, func(i, j int) bool {
		return list.msgs[i].CreatedAt < list.msgs[j].CreatedAt
	})
	list.reindex(0)

	return nil
}

// AppendOptimistic appends a temporary message for content and returns it.
// The returned id carries the temporary prefix and doubles as the client
// message id for the send request.
func (s *MessageStore) AppendOptimistic(conversationId, content, senderId string) *entity.Message {
	msg := &entity.Message{
		Id:             idgen.NextTempID(),
		ConversationId: conversationId,
		SenderId:       senderId,
		Content:        content,
		CreatedAt:      time.Now().UnixMilli(),
		IsMine:         true,
		IsTemporary:    true,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list, ok := s.lists[conversationId]
	if !ok {
		list = newMessageList()
		s.lists[conversationId] = list
	}

	list.index[msg.Id] = len(list.msgs)
	list.msgs = append(list.msgs, msg.Clone())
	s.temps[msg.Id] = conversationId

	return msg
}

// Reconcile replaces the temporary message with the server-confirmed one in
// its existing slot, preserving list order. Unknown temporary ids are a
// no-op: the slot was already reconciled or evicted by a reload.
func (s *MessageStore) Reconcile(temporaryId string, serverMsg *entity.Message) {
	if serverMsg == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	convId, ok := s.temps[temporaryId]
	if !ok {
		return
	}
	list := s.lists[convId]
	pos, ok := list.index[temporaryId]
	if !ok {
		return
	}

	msg := serverMsg.Clone()
	msg.ConversationId = convId
	msg.IsMine = msg.SenderId == s.ident.CurrentUserId()
	msg.IsTemporary = false

	list.msgs[pos] = msg
	delete(list.index, temporaryId)
	list.index[msg.Id] = pos
	delete(s.temps, temporaryId)
}

// Discard removes the temporary message entirely, restoring the pre-send
// view. Used when the send fails. Unknown ids are a no-op.
func (s *MessageStore) Discard(temporaryId string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	convId, ok := s.temps[temporaryId]
	if !ok {
		return
	}
	list := s.lists[convId]
	pos, ok := list.index[temporaryId]
	if !ok {
		return
	}

	list.msgs = append(list.msgs[:pos], list.msgs[pos+1:]...)
	delete(list.index, temporaryId)
	list.reindex(pos)
	delete(s.temps, temporaryId)
}

// Messages returns a snapshot of the cached sequence for conversationId,
// ordered by created_at ascending.
func (s *MessageStore) Messages(conversationId string) []*entity.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, ok := s.lists[conversationId]
	if !ok {
		return nil
	}

	result := make([]*entity.Message, len(list.msgs))
	for i, m := range list.msgs {
		result[i] = m.Clone()
	}
	return result
}

// dropTempsFor forgets temp bookkeeping for a conversation whose cache is
// being replaced. Caller holds the lock.
func (s *MessageStore) dropTempsFor(conversationId string) {
	for tempId, convId := range s.temps {
		if convId == conversationId {
			delete(s.temps, tempId)
		}
	}
}
