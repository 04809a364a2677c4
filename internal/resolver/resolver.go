// Package resolver implements the idempotent open-or-create protocol for
// conversations. Opening a thread with a user must never create two threads
// for the same pair, even under repeated or concurrent invocation.
package resolver

import (
	"context"
	"sync"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/chatsync/internal/entity"
	"github.com/mbeoliero/chatsync/internal/identity"
	"github.com/mbeoliero/chatsync/internal/store"
	"github.com/mbeoliero/chatsync/internal/transport"
	"github.com/mbeoliero/chatsync/pkg/errcode"
)

// ChatResolver resolves a target user id to its conversation, creating it
// remotely when absent. Concurrent resolutions for the same target share a
// single in-flight request; each target settles independently.
type ChatResolver struct {
	svc   transport.MessagingService
	convs *store.ConversationStore
	ident identity.Provider

	mu       sync.Mutex
	inflight map[string]*inflight // target user id -> pending resolution
}

// inflight is a pending resolution. done is closed on settlement, after
// conv/err are written; waiters read them only after <-done.
type inflight struct {
	done chan struct{}
	conv *entity.Conversation
	err  error
}

// NewChatResolver creates a ChatResolver
func NewChatResolver(svc transport.MessagingService, convs *store.ConversationStore, ident identity.Provider) *ChatResolver {
	return &ChatResolver{
		svc:      svc,
		convs:    convs,
		ident:    ident,
		inflight: make(map[string]*inflight),
	}
}

// Resolve returns the conversation with targetUserId, consulting the local
// store first and falling back to a single get-or-create call. On failure
// the store is left untouched and a typed error is returned.
func (r *ChatResolver) Resolve(ctx context.Context, targetUserId string) (*entity.Conversation, error) {
	if targetUserId == "" {
		return nil, errcode.ErrMissingTarget
	}
	if targetUserId == r.ident.CurrentUserId() {
		return nil, errcode.ErrSelfTarget
	}

	if conv := r.convs.FindByCounterpart(targetUserId); conv != nil {
		return conv, nil
	}

	fl, leader := r.join(targetUserId)
	if !leader {
		select {
		case <-fl.done:
			return fl.conv, fl.err
		case <-ctx.Done():
			return nil, errcode.ErrBackendUnavailable.Wrap(ctx.Err())
		}
	}

	conv, err := r.getOrCreate(ctx, targetUserId)

	fl.conv = conv
	fl.err = err
	r.settle(targetUserId)
	close(fl.done)

	return conv, err
}

// join registers interest in resolving targetUserId. The first caller for a
// target becomes the leader and must settle the returned handle; later
// callers wait on it.
func (r *ChatResolver) join(targetUserId string) (*inflight, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if fl, ok := r.inflight[targetUserId]; ok {
		return fl, false
	}
	fl := &inflight{done: make(chan struct{})}
	r.inflight[targetUserId] = fl
	return fl, true
}

// settle clears the in-flight marker so a future resolve starts fresh.
func (r *ChatResolver) settle(targetUserId string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, targetUserId)
}

func (r *ChatResolver) getOrCreate(ctx context.Context, targetUserId string) (*entity.Conversation, error) {
	result, err := r.svc.GetOrCreateConversation(ctx, targetUserId)
	if err != nil {
		log.CtxError(ctx, "get or create conversation failed: target_user_id=%s, error=%v", targetUserId, err)
		return nil, err
	}

	// Both "already existed server-side" and "just created" land here; the
	// upsert makes the two responses indistinguishable locally.
	r.convs.Upsert(result.Conversation)
	if result.IsNew {
		log.CtxInfo(ctx, "conversation created: conversation_id=%s, target_user_id=%s", result.Conversation.Id, targetUserId)
	}

	return r.convs.Get(result.Conversation.Id), nil
}
