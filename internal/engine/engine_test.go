package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/chatsync/internal/entity"
	"github.com/mbeoliero/chatsync/internal/identity"
	"github.com/mbeoliero/chatsync/internal/transport"
	"github.com/mbeoliero/chatsync/pkg/errcode"
)

// fakeMessaging delegates to overridable function fields so each test shapes
// only the calls it cares about.
type fakeMessaging struct {
	getOrCreateFn func(ctx context.Context, targetUserId string) (*transport.GetOrCreateResult, error)
	listConvsFn   func(ctx context.Context, req *transport.ListConversationsRequest) (*transport.ListConversationsResponse, error)
	listMsgsFn    func(ctx context.Context, conversationId string, page, limit int) (*transport.ListMessagesResponse, error)
	sendFn        func(ctx context.Context, req *transport.SendMessageRequest) (*entity.Message, error)
}

func (f *fakeMessaging) GetOrCreateConversation(ctx context.Context, targetUserId string) (*transport.GetOrCreateResult, error) {
	return f.getOrCreateFn(ctx, targetUserId)
}

func (f *fakeMessaging) ListConversations(ctx context.Context, req *transport.ListConversationsRequest) (*transport.ListConversationsResponse, error) {
	return f.listConvsFn(ctx, req)
}

func (f *fakeMessaging) ListMessages(ctx context.Context, conversationId string, page, limit int) (*transport.ListMessagesResponse, error) {
	return f.listMsgsFn(ctx, conversationId, page, limit)
}

func (f *fakeMessaging) SendMessage(ctx context.Context, req *transport.SendMessageRequest) (*entity.Message, error) {
	return f.sendFn(ctx, req)
}

func newFake() *fakeMessaging {
	return &fakeMessaging{
		getOrCreateFn: func(ctx context.Context, targetUserId string) (*transport.GetOrCreateResult, error) {
			return &transport.GetOrCreateResult{
				Conversation: &entity.Conversation{
					Id:             "conv_" + targetUserId,
					Counterpart:    entity.Counterpart{Id: targetUserId, Nickname: "Peer " + targetUserId},
					LastActivityAt: time.Now().UnixMilli(),
				},
				IsNew: true,
			}, nil
		},
		listConvsFn: func(ctx context.Context, req *transport.ListConversationsRequest) (*transport.ListConversationsResponse, error) {
			return &transport.ListConversationsResponse{}, nil
		},
		listMsgsFn: func(ctx context.Context, conversationId string, page, limit int) (*transport.ListMessagesResponse, error) {
			return &transport.ListMessagesResponse{}, nil
		},
		sendFn: func(ctx context.Context, req *transport.SendMessageRequest) (*entity.Message, error) {
			return &entity.Message{
				Id:             "srv_" + req.ClientMsgId,
				ConversationId: req.ConversationId,
				SenderId:       "alice",
				Content:        req.Content,
				CreatedAt:      time.Now().UnixMilli(),
			}, nil
		},
	}
}

func newEngine(fake *fakeMessaging, opts ...Option) *Engine {
	return New(fake, identity.NewStatic("alice"), 50, opts...)
}

func TestSend_RejectsBlankContent(t *testing.T) {
	var sends int64
	fake := newFake()
	inner := fake.sendFn
	fake.sendFn = func(ctx context.Context, req *transport.SendMessageRequest) (*entity.Message, error) {
		atomic.AddInt64(&sends, 1)
		return inner(ctx, req)
	}
	eng := newEngine(fake)

	for _, content := range []string{"", "   ", "\n\t"} {
		_, err := eng.Send(context.Background(), "c1", content)
		require.Error(t, err)
		assert.True(t, errcode.IsValidation(err))
	}
	assert.Zero(t, atomic.LoadInt64(&sends), "blank sends never reach the backend")
}

func TestSend_OptimisticVisibleBeforeConfirmation(t *testing.T) {
	fake := newFake()
	eng := newEngine(fake)

	_, err := eng.OpenByTargetUser(context.Background(), "bob")
	require.NoError(t, err)

	var midFlight []*entity.Message
	inner := fake.sendFn
	fake.sendFn = func(ctx context.Context, req *transport.SendMessageRequest) (*entity.Message, error) {
		midFlight = eng.Messages()
		return inner(ctx, req)
	}

	sent, err := eng.Send(context.Background(), "conv_bob", "hello bob")
	require.NoError(t, err)

	// While the send was in flight the temporary entry was already visible.
	require.Len(t, midFlight, 1)
	assert.True(t, midFlight[0].IsTemporary)
	assert.Equal(t, "hello bob", midFlight[0].Content)
	assert.True(t, entity.IsTempId(midFlight[0].Id))

	// After confirmation exactly one entry remains, non-temporary, in place.
	got := eng.Messages()
	require.Len(t, got, 1)
	assert.Equal(t, sent.Id, got[0].Id)
	assert.False(t, got[0].IsTemporary)
	assert.False(t, entity.IsTempId(got[0].Id))
}

func TestSend_SuccessReordersConversationList(t *testing.T) {
	fake := newFake()
	base := time.Now().UnixMilli()
	fake.listConvsFn = func(ctx context.Context, req *transport.ListConversationsRequest) (*transport.ListConversationsResponse, error) {
		return &transport.ListConversationsResponse{
			Conversations: []*entity.Conversation{
				{Id: "conv_bob", Counterpart: entity.Counterpart{Id: "bob", Nickname: "Bob"}, LastActivityAt: base - 10_000, UnreadCount: 2},
				{Id: "conv_carol", Counterpart: entity.Counterpart{Id: "carol", Nickname: "Carol"}, LastActivityAt: base},
			},
			Pagination: entity.Pagination{Page: 1, Limit: 20, Total: 2},
		}, nil
	}
	eng := newEngine(fake)

	_, err := eng.LoadConversations(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "conv_carol", eng.Conversations()[0].Id)

	_, err = eng.Send(context.Background(), "conv_bob", "pulling rank")
	require.NoError(t, err)

	views := eng.Conversations()
	require.Equal(t, "conv_bob", views[0].Id, "fresh send moves the thread up")
	require.NotNil(t, views[0].LastMessage)
	assert.Equal(t, "pulling rank", views[0].LastMessage.Content)
	assert.Equal(t, int64(2), views[0].UnreadCount, "own send does not clobber unread count")
}

func TestSend_OutOfOrderSettlementKeepsNewestPreview(t *testing.T) {
	fake := newFake()
	eng := newEngine(fake)
	base := time.Now().UnixMilli()

	// Two sends race; the backend stamped the first one later than the
	// second, so the second's confirmation settles "out of order".
	stamps := []int64{base + 1000, base}
	fake.sendFn = func(ctx context.Context, req *transport.SendMessageRequest) (*entity.Message, error) {
		at := stamps[0]
		stamps = stamps[1:]
		return &entity.Message{
			Id:             "srv_" + req.ClientMsgId,
			ConversationId: req.ConversationId,
			SenderId:       "alice",
			Content:        req.Content,
			CreatedAt:      at,
		}, nil
	}

	_, err := eng.Send(context.Background(), "conv_bob", "newest")
	require.NoError(t, err)
	_, err = eng.Send(context.Background(), "conv_bob", "stale straggler")
	require.NoError(t, err)

	views := eng.Conversations()
	require.Len(t, views, 1)
	require.NotNil(t, views[0].LastMessage)
	assert.Equal(t, "newest", views[0].LastMessage.Content, "older confirmation must not regress the preview")
	assert.Equal(t, base+1000, views[0].LastActivityAt)
}

func TestSend_FailureDiscardsAndKeepsDraft(t *testing.T) {
	fake := newFake()
	eng := newEngine(fake)

	_, err := eng.OpenByTargetUser(context.Background(), "bob")
	require.NoError(t, err)

	fake.sendFn = func(ctx context.Context, req *transport.SendMessageRequest) (*entity.Message, error) {
		return nil, errcode.ErrBackendUnavailable
	}

	_, err = eng.Send(context.Background(), "conv_bob", "lost words")
	require.Error(t, err)
	assert.True(t, errcode.IsTransport(err))

	assert.Empty(t, eng.Messages(), "failed send leaves no trace in the cache")
	assert.Equal(t, "lost words", eng.Draft("conv_bob"), "input content restored for retry")

	// A later successful send clears the draft.
	fake.sendFn = newFake().sendFn
	_, err = eng.Send(context.Background(), "conv_bob", "found words")
	require.NoError(t, err)
	assert.Empty(t, eng.Draft("conv_bob"))
}

func TestOpenByTargetUser_SelectsAndLoads(t *testing.T) {
	fake := newFake()
	base := time.Now().UnixMilli()
	fake.listMsgsFn = func(ctx context.Context, conversationId string, page, limit int) (*transport.ListMessagesResponse, error) {
		return &transport.ListMessagesResponse{
			Messages: []*entity.Message{
				{Id: "m1", SenderId: "bob", Content: "yo", CreatedAt: base},
			},
		}, nil
	}
	eng := newEngine(fake)

	conv, err := eng.OpenByTargetUser(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, "conv_bob", conv.Id)

	selected := eng.Selected()
	require.NotNil(t, selected)
	assert.Equal(t, "conv_bob", selected.Id)

	got := eng.Messages()
	require.Len(t, got, 1)
	assert.Equal(t, "yo", got[0].Content)
	assert.False(t, got[0].IsMine)
}

func TestOpenByTargetUser_SelfTarget(t *testing.T) {
	var calls int64
	fake := newFake()
	inner := fake.getOrCreateFn
	fake.getOrCreateFn = func(ctx context.Context, targetUserId string) (*transport.GetOrCreateResult, error) {
		atomic.AddInt64(&calls, 1)
		return inner(ctx, targetUserId)
	}
	eng := newEngine(fake)

	_, err := eng.OpenByTargetUser(context.Background(), "alice")

	require.Error(t, err)
	assert.True(t, errcode.IsConflict(err))
	assert.Zero(t, atomic.LoadInt64(&calls))
	assert.Nil(t, eng.Selected(), "failed resolve leaves the prior state")
}

func TestOpenByTargetUser_ResolveFailureKeepsPriorState(t *testing.T) {
	fake := newFake()
	eng := newEngine(fake)

	_, err := eng.OpenByTargetUser(context.Background(), "bob")
	require.NoError(t, err)

	fake.getOrCreateFn = func(ctx context.Context, targetUserId string) (*transport.GetOrCreateResult, error) {
		return nil, errcode.ErrForbidden
	}

	_, err = eng.OpenByTargetUser(context.Background(), "mallory")
	require.Error(t, err)
	assert.True(t, errcode.IsConflict(err))
	assert.Equal(t, "conv_bob", eng.Selected().Id, "selection unchanged after failed open")
}

func TestPaginate_StaleResultDiscarded(t *testing.T) {
	fake := newFake()
	gate := make(chan struct{})
	fake.listMsgsFn = func(ctx context.Context, conversationId string, page, limit int) (*transport.ListMessagesResponse, error) {
		if conversationId == "conv_bob" && page == 2 {
			<-gate
			return nil, errcode.ErrBackendUnavailable
		}
		return &transport.ListMessagesResponse{}, nil
	}
	eng := newEngine(fake)

	_, err := eng.OpenByTargetUser(context.Background(), "bob")
	require.NoError(t, err)

	paginated := make(chan error, 1)
	go func() {
		paginated <- eng.Paginate(context.Background(), 2)
	}()

	// Switch threads while bob's page 2 is still in flight, then let it
	// settle.
	_, err = eng.OpenByTargetUser(context.Background(), "carol")
	require.NoError(t, err)
	close(gate)

	require.NoError(t, <-paginated, "stale load outcome is discarded, not surfaced")
	assert.Equal(t, "conv_carol", eng.Selected().Id)
}

func TestPaginate_RequiresSelection(t *testing.T) {
	eng := newEngine(newFake())

	err := eng.Paginate(context.Background(), 2)
	require.Error(t, err)
	assert.True(t, errcode.IsNotFound(err))
}

func TestSearch_FiltersRankedList(t *testing.T) {
	fake := newFake()
	base := time.Now().UnixMilli()
	fake.listConvsFn = func(ctx context.Context, req *transport.ListConversationsRequest) (*transport.ListConversationsResponse, error) {
		return &transport.ListConversationsResponse{
			Conversations: []*entity.Conversation{
				{Id: "c1", Counterpart: entity.Counterpart{Id: "u1", Nickname: "Dana"}, LastActivityAt: base},
				{Id: "c2", Counterpart: entity.Counterpart{Id: "u2", Nickname: "Daniel"}, LastActivityAt: base - 1000},
				{Id: "c3", Counterpart: entity.Counterpart{Id: "u3", Nickname: "Erin"}, LastActivityAt: base - 2000},
			},
		}, nil
	}
	eng := newEngine(fake)
	_, err := eng.LoadConversations(context.Background(), 1)
	require.NoError(t, err)

	views := eng.Search("dan")
	require.Len(t, views, 2)
	assert.Equal(t, "c1", views[0].Id)
	assert.Equal(t, "c2", views[1].Id)

	assert.Len(t, eng.Search(""), 3, "clearing the search restores the full list")
}

func TestConversations_PriorityFlagDerivedAtRead(t *testing.T) {
	fake := newFake()
	now := time.Now()
	fake.listConvsFn = func(ctx context.Context, req *transport.ListConversationsRequest) (*transport.ListConversationsResponse, error) {
		return &transport.ListConversationsResponse{
			Conversations: []*entity.Conversation{
				{
					Id: "c1",
					Counterpart: entity.Counterpart{
						Id: "u1", Nickname: "VIP",
						PriorityExpiresAt: now.Add(time.Minute).UnixMilli(),
					},
					LastActivityAt: now.Add(-time.Hour).UnixMilli(),
				},
				{Id: "c2", Counterpart: entity.Counterpart{Id: "u2", Nickname: "Pal"}, LastActivityAt: now.UnixMilli()},
			},
		}, nil
	}

	clock := now
	eng := newEngine(fake, WithClock(func() time.Time { return clock }))
	_, err := eng.LoadConversations(context.Background(), 1)
	require.NoError(t, err)

	views := eng.Conversations()
	require.Equal(t, "c1", views[0].Id)
	assert.True(t, views[0].HasPriority)
	assert.False(t, views[1].HasPriority)

	// Same stored data, later clock: the window has lapsed and the flag and
	// order both change without any upsert.
	clock = now.Add(2 * time.Minute)
	views = eng.Conversations()
	require.Equal(t, "c2", views[0].Id)
	assert.False(t, views[1].HasPriority)
}
