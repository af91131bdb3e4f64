package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socialhub-backend/internal/domain"
)

var (
	alice = domain.Principal{Kind: domain.PrincipalUser, ID: 1}
	bob   = domain.Principal{Kind: domain.PrincipalUser, ID: 2}
	acme  = domain.Principal{Kind: domain.PrincipalAdvertiser, ID: 1}
)

func textMessage(conversationID int64, sender domain.Principal, text string) *domain.Message {
	return &domain.Message{
		ConversationID: conversationID,
		SenderID:       sender.ID,
		SenderKind:     sender.Kind,
		Kind:           domain.MessageText,
		Content:        &text,
	}
}

func TestGetOrCreateDirectConversation_Symmetric(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	first, created, err := store.GetOrCreateDirectConversation(ctx, alice, bob)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, first.Participants, 2)

	second, created, err := store.GetOrCreateDirectConversation(ctx, bob, alice)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	// user:1 and advertiser:1 are different principals
	other, created, err := store.GetOrCreateDirectConversation(ctx, alice, acme)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestAppendMessage_NotParticipant(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	conv, _, err := store.GetOrCreateDirectConversation(ctx, alice, bob)
	require.NoError(t, err)

	_, err = store.AppendMessage(ctx, textMessage(conv.ID, acme, "hi"))
	assert.ErrorIs(t, err, domain.ErrNotParticipant)

	_, err = store.AppendMessage(ctx, textMessage(999, alice, "hi"))
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
}

func TestAppendMessage_OrderAndLastMessage(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	conv, _, err := store.GetOrCreateDirectConversation(ctx, alice, bob)
	require.NoError(t, err)

	// A clock that goes backwards must not break created_at monotonicity
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ticks := []time.Time{base, base.Add(-time.Minute), base.Add(time.Second)}
	i := 0
	store.now = func() time.Time {
		t := ticks[i%len(ticks)]
		i++
		return t
	}

	var stored []*domain.Message
	for _, text := range []string{"a", "b", "c"} {
		msg, err := store.AppendMessage(ctx, textMessage(conv.ID, alice, text))
		require.NoError(t, err)
		stored = append(stored, msg)
	}

	for j := 1; j < len(stored); j++ {
		assert.Greater(t, stored[j].ID, stored[j-1].ID)
		assert.Equal(t, stored[j-1].Seq+1, stored[j].Seq)
		assert.False(t, stored[j].CreatedAt.Before(stored[j-1].CreatedAt))
	}

	got, err := store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessageID)
	assert.Equal(t, stored[2].ID, *got.LastMessageID)
	assert.Equal(t, int64(3), got.MessageSeq)

	_, err = store.DeleteMessage(ctx, stored[2].ID, alice)
	require.NoError(t, err)
	got, err = store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessageID)
	assert.Equal(t, stored[1].ID, *got.LastMessageID)
}

func TestFetchMessages_AutoReadAndUnread(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	conv, _, err := store.GetOrCreateDirectConversation(ctx, alice, bob)
	require.NoError(t, err)

	for _, text := range []string{"one", "two", "three"} {
		_, err := store.AppendMessage(ctx, textMessage(conv.ID, alice, text))
		require.NoError(t, err)
	}
	_, err = store.AppendMessage(ctx, textMessage(conv.ID, bob, "reply"))
	require.NoError(t, err)

	count, err := store.UnreadCount(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	page, marked, err := store.FetchMessages(ctx, conv.ID, bob, domain.PageRequest{Page: 1, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(2), marked)
	assert.True(t, page.HasMore)
	require.Len(t, page.Messages, 2)
	for _, msg := range page.Messages {
		assert.True(t, msg.Read)
	}

	count, err = store.UnreadCount(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Keyset continuation picks up after the cursor
	next, marked, err := store.FetchMessages(ctx, conv.ID, bob, domain.PageRequest{Cursor: page.NextCursor, PerPage: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), marked)
	assert.False(t, next.HasMore)
	require.Len(t, next.Messages, 2)
	assert.False(t, next.Messages[1].Read, "own message stays unread")

	// Alice has bob's reply unread
	count, err = store.UnreadCount(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestFetchMessages_ZeroPerPage(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	conv, _, err := store.GetOrCreateDirectConversation(ctx, alice, bob)
	require.NoError(t, err)
	_, err = store.AppendMessage(ctx, textMessage(conv.ID, alice, "hello"))
	require.NoError(t, err)

	page, marked, err := store.FetchMessages(ctx, conv.ID, bob, domain.PageRequest{Cursor: 7, PerPage: 0})
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
	assert.Equal(t, int64(7), page.NextCursor)
	assert.Zero(t, marked)
}

func TestMarkConversationRead_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	conv, _, err := store.GetOrCreateDirectConversation(ctx, alice, bob)
	require.NoError(t, err)
	_, err = store.AppendMessage(ctx, textMessage(conv.ID, alice, "hello"))
	require.NoError(t, err)

	count, err := store.MarkConversationRead(ctx, conv.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = store.MarkConversationRead(ctx, conv.ID, bob)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = store.MarkConversationRead(ctx, conv.ID, acme)
	assert.ErrorIs(t, err, domain.ErrNotParticipant)
}

func TestMessageMutations_Authorization(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	conv, _, err := store.GetOrCreateDirectConversation(ctx, alice, bob)
	require.NoError(t, err)
	msg, err := store.AppendMessage(ctx, textMessage(conv.ID, alice, "hello"))
	require.NoError(t, err)

	_, err = store.UpdateMessageText(ctx, msg.ID, bob, "x")
	assert.ErrorIs(t, err, domain.ErrNotSender)

	updated, err := store.UpdateMessageText(ctx, msg.ID, alice, "hello again")
	require.NoError(t, err)
	assert.Equal(t, "hello again", *updated.Content)
	assert.False(t, updated.UpdatedAt.Before(updated.CreatedAt))

	_, _, err = store.MarkMessageRead(ctx, msg.ID, alice)
	assert.ErrorIs(t, err, domain.ErrOwnMessage)

	read, changed, err := store.MarkMessageRead(ctx, msg.ID, bob)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, read.Read)

	_, err = store.DeleteMessage(ctx, msg.ID, bob)
	assert.ErrorIs(t, err, domain.ErrNotSender)

	_, err = store.DeleteMessage(ctx, msg.ID, alice)
	require.NoError(t, err)
	_, err = store.GetMessage(ctx, msg.ID)
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
}

func TestUpdateMessageText_MediaNotEditable(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	conv, _, err := store.GetOrCreateDirectConversation(ctx, alice, bob)
	require.NoError(t, err)

	url := "http://media.local/chat/a.png"
	msg, err := store.AppendMessage(ctx, &domain.Message{
		ConversationID: conv.ID,
		SenderID:       alice.ID,
		SenderKind:     alice.Kind,
		Kind:           domain.MessageImage,
		MediaURL:       &url,
	})
	require.NoError(t, err)

	_, err = store.UpdateMessageText(ctx, msg.ID, alice, "caption")
	assert.ErrorIs(t, err, domain.ErrNotEditable)
}

func TestListRecentConversations_Ordering(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	withBob, _, err := store.GetOrCreateDirectConversation(ctx, alice, bob)
	require.NoError(t, err)
	withAcme, _, err := store.GetOrCreateDirectConversation(ctx, alice, acme)
	require.NoError(t, err)
	silent, _, err := store.GetOrCreateDirectConversation(ctx, alice, domain.Principal{Kind: domain.PrincipalUser, ID: 3})
	require.NoError(t, err)

	_, err = store.AppendMessage(ctx, textMessage(withBob.ID, bob, "first"))
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = store.AppendMessage(ctx, textMessage(withAcme.ID, acme, "second"))
	require.NoError(t, err)

	summaries, err := store.ListRecentConversations(ctx, alice, 0, 10)
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	assert.Equal(t, withAcme.ID, summaries[0].ConversationID)
	assert.Equal(t, withBob.ID, summaries[1].ConversationID)
	assert.Equal(t, silent.ID, summaries[2].ConversationID)
	assert.Nil(t, summaries[2].LastActivityAt)
	assert.Equal(t, acme, summaries[0].Other)
	assert.Equal(t, int64(1), summaries[0].UnreadCount)
	require.NotNil(t, summaries[0].LastMessage)
	assert.Equal(t, "second", *summaries[0].LastMessage.Content)
}

func TestAppendMessage_ConcurrentSeqContiguous(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	conv, _, err := store.GetOrCreateDirectConversation(ctx, alice, bob)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.AppendMessage(ctx, textMessage(conv.ID, alice, "x"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	page, _, err := store.FetchMessages(ctx, conv.ID, alice, domain.PageRequest{Page: 1, PerPage: 100})
	require.NoError(t, err)
	require.Len(t, page.Messages, 50)
	for i, msg := range page.Messages {
		assert.Equal(t, int64(i+1), msg.Seq)
	}
}

func TestDeleteConversation_Cascades(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	conv, _, err := store.GetOrCreateDirectConversation(ctx, alice, bob)
	require.NoError(t, err)
	msg, err := store.AppendMessage(ctx, textMessage(conv.ID, alice, "bye"))
	require.NoError(t, err)

	assert.ErrorIs(t, store.DeleteConversation(ctx, conv.ID, acme), domain.ErrNotParticipant)
	require.NoError(t, store.DeleteConversation(ctx, conv.ID, bob))

	_, err = store.GetConversation(ctx, conv.ID)
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
	_, err = store.GetMessage(ctx, msg.ID)
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)

	again, created, err := store.GetOrCreateDirectConversation(ctx, alice, bob)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, conv.ID, again.ID)
}
