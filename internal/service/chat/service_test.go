package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"socialhub-backend/internal/domain"
	"socialhub-backend/internal/service/media"
	apperrors "socialhub-backend/pkg/errors"
	"socialhub-backend/pkg/metrics"
	"socialhub-backend/pkg/pagination"
)

// Mocks
type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetConversation(ctx context.Context, conversationID int64) (*domain.Conversation, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Conversation), args.Error(1)
}

func (m *MockStore) AppendMessage(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	args := m.Called(ctx, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockStore) GetMessage(ctx context.Context, messageID int64) (*domain.Message, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockStore) FetchMessages(ctx context.Context, conversationID int64, requester domain.Principal, req domain.PageRequest) (*domain.MessagePage, int64, error) {
	args := m.Called(ctx, conversationID, requester, req)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).(*domain.MessagePage), args.Get(1).(int64), args.Error(2)
}

func (m *MockStore) MarkConversationRead(ctx context.Context, conversationID int64, requester domain.Principal) (int64, error) {
	args := m.Called(ctx, conversationID, requester)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) MarkMessageRead(ctx context.Context, messageID int64, requester domain.Principal) (*domain.Message, bool, error) {
	args := m.Called(ctx, messageID, requester)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*domain.Message), args.Bool(1), args.Error(2)
}

func (m *MockStore) UpdateMessageText(ctx context.Context, messageID int64, requester domain.Principal, text string) (*domain.Message, error) {
	args := m.Called(ctx, messageID, requester, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockStore) DeleteMessage(ctx context.Context, messageID int64, requester domain.Principal) (*domain.Message, error) {
	args := m.Called(ctx, messageID, requester)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockStore) UnreadCount(ctx context.Context, principal domain.Principal) (int64, error) {
	args := m.Called(ctx, principal)
	return args.Get(0).(int64), args.Error(1)
}

type MockBroadcaster struct {
	mock.Mock
}

func (m *MockBroadcaster) MessageCreated(ctx context.Context, msg *domain.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *MockBroadcaster) MessageUpdated(ctx context.Context, msg *domain.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *MockBroadcaster) MessageDeleted(ctx context.Context, msg *domain.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *MockBroadcaster) ConversationRead(ctx context.Context, conversationID int64, reader domain.Principal, count int64) error {
	return m.Called(ctx, conversationID, reader, count).Error(0)
}

func (m *MockBroadcaster) MessageRead(ctx context.Context, msg *domain.Message, reader domain.Principal) error {
	return m.Called(ctx, msg, reader).Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyMessage(ctx context.Context, msg *domain.Message, recipients []domain.Principal) error {
	return m.Called(ctx, msg, recipients).Error(0)
}

type MockProfiles struct {
	mock.Mock
}

func (m *MockProfiles) GetProfile(ctx context.Context, principal domain.Principal) (*domain.Profile, error) {
	args := m.Called(ctx, principal)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Profile), args.Error(1)
}

type MockUploader struct {
	mock.Mock
}

func (m *MockUploader) Upload(ctx context.Context, in media.UploadInput) (*domain.MediaUpload, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MediaUpload), args.Error(1)
}

var (
	alice = domain.Principal{Kind: domain.PrincipalUser, ID: 1}
	bob   = domain.Principal{Kind: domain.PrincipalUser, ID: 2}
	eve   = domain.Principal{Kind: domain.PrincipalAdvertiser, ID: 9}
)

type fixture struct {
	store       *MockStore
	broadcaster *MockBroadcaster
	notifier    *MockNotifier
	profiles    *MockProfiles
	uploader    *MockUploader
	svc         *Service
}

func newFixture(withMedia bool) *fixture {
	f := &fixture{
		store:       new(MockStore),
		broadcaster: new(MockBroadcaster),
		notifier:    new(MockNotifier),
		profiles:    new(MockProfiles),
		uploader:    new(MockUploader),
	}
	var uploader MediaUploader
	if withMedia {
		uploader = f.uploader
	}
	f.svc = NewService(f.store, f.broadcaster, f.notifier, f.profiles, uploader)
	return f
}

func (f *fixture) assertExpectations(t *testing.T) {
	f.svc.Wait()
	f.store.AssertExpectations(t)
	f.broadcaster.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
	f.profiles.AssertExpectations(t)
	f.uploader.AssertExpectations(t)
}

func directConversation(id int64) *domain.Conversation {
	return &domain.Conversation{
		ID:   id,
		Kind: domain.ConversationDirect,
		Participants: []domain.Participant{
			{ConversationID: id, PrincipalKind: alice.Kind, PrincipalID: alice.ID},
			{ConversationID: id, PrincipalKind: bob.Kind, PrincipalID: bob.ID},
		},
	}
}

func textMessage(id int64, sender domain.Principal, text string) *domain.Message {
	return &domain.Message{
		ID:             id,
		ConversationID: 42,
		Seq:            id - 1000,
		SenderID:       sender.ID,
		SenderKind:     sender.Kind,
		Kind:           domain.MessageText,
		Content:        &text,
	}
}

func assertAppError(t *testing.T, err error, code apperrors.ErrorCode) {
	t.Helper()
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, code, appErr.Code)
}

func TestSendMessage(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	stored := textMessage(1001, alice, "hello")

	f.store.On("GetConversation", ctx, int64(42)).Return(directConversation(42), nil)
	f.store.On("AppendMessage", ctx, mock.MatchedBy(func(m *domain.Message) bool {
		return m.ConversationID == 42 && m.SenderPrincipal().Equal(alice) &&
			m.Kind == domain.MessageText && *m.Content == "hello"
	})).Return(stored, nil)
	f.profiles.On("GetProfile", mock.Anything, alice).Return(&domain.Profile{Principal: alice, Name: "Alice", Username: "alice"}, nil)
	f.broadcaster.On("MessageCreated", mock.Anything, stored).Return(nil)
	f.notifier.On("NotifyMessage", mock.Anything, stored, []domain.Principal{bob}).Return(nil)

	msg, err := f.svc.SendMessage(ctx, alice, &SendMessageInput{
		ConversationID: 42,
		SenderID:       1,
		SenderType:     "users",
		MessageType:    "text",
		Content:        "  hello ",
	})

	require.NoError(t, err)
	assert.Equal(t, int64(1001), msg.ID)
	assert.False(t, msg.Read)
	require.NotNil(t, msg.Sender)
	assert.Equal(t, "Alice", msg.Sender.Name)
	f.assertExpectations(t)
}

func TestSendMessage_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		input *SendMessageInput
		code  apperrors.ErrorCode
	}{
		{"sender id mismatch", &SendMessageInput{ConversationID: 42, SenderID: 2, MessageType: "text", Content: "x"}, apperrors.ErrCodeForbidden},
		{"sender type mismatch", &SendMessageInput{ConversationID: 42, SenderType: "advertiser", MessageType: "text", Content: "x"}, apperrors.ErrCodeForbidden},
		{"unknown sender type", &SendMessageInput{ConversationID: 42, SenderType: "robot", MessageType: "text", Content: "x"}, apperrors.ErrCodeValidation},
		{"unknown message type", &SendMessageInput{ConversationID: 42, MessageType: "sticker", Content: "x"}, apperrors.ErrCodeValidation},
		{"empty text", &SendMessageInput{ConversationID: 42, MessageType: "text", Content: "   "}, apperrors.ErrCodeValidation},
		{"too long", &SendMessageInput{ConversationID: 42, MessageType: "text", Content: strings.Repeat("a", 10001)}, apperrors.ErrCodeValidation},
		{"image without file", &SendMessageInput{ConversationID: 42, MessageType: "image"}, apperrors.ErrCodeValidation},
		{"no conversation", &SendMessageInput{MessageType: "text", Content: "x"}, apperrors.ErrCodeValidation},
		{"uploaded audio sent as image", &SendMessageInput{ConversationID: 42, MessageType: "image", Media: &domain.MediaUpload{
			URL:      "http://media.local/chat/a.mp3",
			Metadata: &domain.MediaMetadata{MIME: "audio/mpeg", Bytes: 3},
		}}, apperrors.ErrCodeValidation},
		{"uploaded media without metadata", &SendMessageInput{ConversationID: 42, MessageType: "video", Media: &domain.MediaUpload{
			URL: "http://media.local/chat/a.mp4",
		}}, apperrors.ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(true)
			_, err := f.svc.SendMessage(context.Background(), alice, tt.input)
			assertAppError(t, err, tt.code)
			f.store.AssertNotCalled(t, "AppendMessage", mock.Anything, mock.Anything)
		})
	}
}

func TestSendMessage_NotParticipant(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()
	f.store.On("GetConversation", ctx, int64(42)).Return(directConversation(42), nil)

	_, err := f.svc.SendMessage(ctx, eve, &SendMessageInput{
		ConversationID: 42,
		MessageType:    "image",
		File:           &media.UploadInput{Filename: "a.png", Size: 3, Body: strings.NewReader("png")},
	})

	assertAppError(t, err, apperrors.ErrCodeForbidden)
	f.uploader.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestSendMessage_MediaDisabled(t *testing.T) {
	tests := []struct {
		name  string
		input *SendMessageInput
	}{
		{"inline file", &SendMessageInput{
			ConversationID: 42,
			MessageType:    "audio",
			File:           &media.UploadInput{Filename: "a.mp3", Size: 3, Body: strings.NewReader("id3")},
		}},
		{"client supplied url", &SendMessageInput{
			ConversationID: 42,
			MessageType:    "image",
			Media: &domain.MediaUpload{
				URL:      "https://elsewhere.example/x.png",
				Metadata: &domain.MediaMetadata{MIME: "image/png", Bytes: 10},
			},
		}},
		{"no file at all", &SendMessageInput{ConversationID: 42, MessageType: "video"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(false)
			_, err := f.svc.SendMessage(context.Background(), alice, tt.input)
			assertAppError(t, err, apperrors.ErrCodeMediaDisabled)
			f.store.AssertNotCalled(t, "AppendMessage", mock.Anything, mock.Anything)
			f.assertExpectations(t)
		})
	}
}

func TestSendMessage_InlineImage(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()
	thumb := "http://media.local/chat/a_thumb.png"
	width, height := 640, 480
	upload := &domain.MediaUpload{
		URL:          "http://media.local/chat/a.png",
		ThumbnailURL: &thumb,
		Metadata:     &domain.MediaMetadata{MIME: "image/png", Bytes: 2048, Width: &width, Height: &height},
	}
	stored := &domain.Message{ID: 1002, ConversationID: 42, Seq: 2, SenderID: alice.ID, SenderKind: alice.Kind, Kind: domain.MessageImage, MediaURL: &upload.URL, ThumbnailURL: &thumb, Metadata: upload.Metadata}

	f.store.On("GetConversation", ctx, int64(42)).Return(directConversation(42), nil)
	f.uploader.On("Upload", ctx, mock.MatchedBy(func(in media.UploadInput) bool {
		return in.Kind == domain.MessageImage && in.Filename == "a.png"
	})).Return(upload, nil)
	f.store.On("AppendMessage", ctx, mock.MatchedBy(func(m *domain.Message) bool {
		return m.Kind == domain.MessageImage && *m.MediaURL == upload.URL && m.Content == nil && m.Metadata.MIME == "image/png"
	})).Return(stored, nil)
	f.profiles.On("GetProfile", mock.Anything, alice).Return(nil, domain.ErrProfileNotFound)
	f.broadcaster.On("MessageCreated", mock.Anything, stored).Return(nil)
	f.notifier.On("NotifyMessage", mock.Anything, stored, []domain.Principal{bob}).Return(nil)

	msg, err := f.svc.SendMessage(ctx, alice, &SendMessageInput{
		ConversationID: 42,
		MessageType:    "image",
		File:           &media.UploadInput{Filename: "a.png", Size: 2048, Body: strings.NewReader("png")},
	})

	require.NoError(t, err)
	assert.Equal(t, upload.URL, *msg.MediaURL)
	assert.Nil(t, msg.Sender)
	f.assertExpectations(t)
}

func TestSendMessage_UploadRejected(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()
	f.store.On("GetConversation", ctx, int64(42)).Return(directConversation(42), nil)
	f.uploader.On("Upload", ctx, mock.Anything).Return(nil, domain.ErrUnsupportedMedia)

	_, err := f.svc.SendMessage(ctx, alice, &SendMessageInput{
		ConversationID: 42,
		MessageType:    "video",
		File:           &media.UploadInput{Filename: "a.mp4", Size: 3, Body: strings.NewReader("xyz")},
	})

	assertAppError(t, err, apperrors.ErrCodeValidation)
	f.assertExpectations(t)
}

func TestSendMessage_SideEffectsSurviveCancellation(t *testing.T) {
	f := newFixture(false)
	ctx, cancel := context.WithCancel(context.Background())
	stored := textMessage(1003, alice, "late")

	f.store.On("GetConversation", mock.Anything, int64(42)).Return(directConversation(42), nil)
	f.store.On("AppendMessage", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(stored, nil)
	f.profiles.On("GetProfile", mock.Anything, alice).Return(nil, domain.ErrProfileNotFound)
	f.broadcaster.On("MessageCreated", mock.Anything, stored).
		Run(func(args mock.Arguments) {
			assert.NoError(t, args.Get(0).(context.Context).Err())
		}).
		Return(nil)
	f.notifier.On("NotifyMessage", mock.Anything, stored, []domain.Principal{bob}).
		Run(func(args mock.Arguments) {
			assert.NoError(t, args.Get(0).(context.Context).Err())
		}).
		Return(nil)

	_, err := f.svc.SendMessage(ctx, alice, &SendMessageInput{ConversationID: 42, MessageType: "text", Content: "late"})

	require.NoError(t, err)
	f.assertExpectations(t)
}

func TestSendMessage_SideEffectFailuresAreSwallowed(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	stored := textMessage(1004, alice, "hi")

	broadcastBefore := testutil.ToFloat64(metrics.SideEffectFailuresTotal.WithLabelValues(metrics.ComponentBroadcast))
	pushBefore := testutil.ToFloat64(metrics.SideEffectFailuresTotal.WithLabelValues(metrics.ComponentPush))

	f.store.On("GetConversation", ctx, int64(42)).Return(directConversation(42), nil)
	f.store.On("AppendMessage", ctx, mock.Anything).Return(stored, nil)
	f.profiles.On("GetProfile", mock.Anything, alice).Return(nil, domain.ErrProfileNotFound)
	f.broadcaster.On("MessageCreated", mock.Anything, stored).Return(errors.New("redis down"))
	f.notifier.On("NotifyMessage", mock.Anything, stored, []domain.Principal{bob}).Return(errors.New("fcm down"))

	msg, err := f.svc.SendMessage(ctx, alice, &SendMessageInput{ConversationID: 42, MessageType: "text", Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, stored.ID, msg.ID)

	f.assertExpectations(t)
	assert.Equal(t, broadcastBefore+1, testutil.ToFloat64(metrics.SideEffectFailuresTotal.WithLabelValues(metrics.ComponentBroadcast)))
	assert.Equal(t, pushBefore+1, testutil.ToFloat64(metrics.SideEffectFailuresTotal.WithLabelValues(metrics.ComponentPush)))
}

type fakeOpener struct {
	conv  *domain.Conversation
	calls []domain.Principal
}

func (o *fakeOpener) GetOrCreate(ctx context.Context, principal, other domain.Principal, strict bool) (*domain.Conversation, bool, error) {
	o.calls = append(o.calls, other)
	return o.conv, true, nil
}

func TestSendMessage_ByRecipient(t *testing.T) {
	f := newFixture(false)
	opener := &fakeOpener{conv: directConversation(42)}
	f.svc = NewService(f.store, f.broadcaster, f.notifier, f.profiles, nil, WithConversations(opener))
	ctx := context.Background()
	stored := textMessage(1005, alice, "first")

	f.store.On("AppendMessage", ctx, mock.MatchedBy(func(m *domain.Message) bool { return m.ConversationID == 42 })).Return(stored, nil)
	f.profiles.On("GetProfile", mock.Anything, alice).Return(nil, domain.ErrProfileNotFound)
	f.broadcaster.On("MessageCreated", mock.Anything, stored).Return(nil)
	f.notifier.On("NotifyMessage", mock.Anything, stored, []domain.Principal{bob}).Return(nil)

	_, err := f.svc.SendMessage(ctx, alice, &SendMessageInput{RecipientID: 2, RecipientType: "user", MessageType: "text", Content: "first"})

	require.NoError(t, err)
	assert.Equal(t, []domain.Principal{bob}, opener.calls)
	f.assertExpectations(t)
}

func TestGetMessage(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	f.store.On("GetMessage", ctx, int64(1001)).Return(textMessage(1001, alice, "hello"), nil)
	f.store.On("GetConversation", ctx, int64(42)).Return(directConversation(42), nil)
	f.profiles.On("GetProfile", mock.Anything, alice).Return(&domain.Profile{Principal: alice, Name: "Alice"}, nil)

	msg, err := f.svc.GetMessage(ctx, bob, 1001)
	require.NoError(t, err)
	assert.Equal(t, "Alice", msg.Sender.Name)

	_, err = f.svc.GetMessage(ctx, eve, 1001)
	assertAppError(t, err, apperrors.ErrCodeForbidden)

	f.store.On("GetMessage", ctx, int64(7)).Return(nil, domain.ErrMessageNotFound)
	_, err = f.svc.GetMessage(ctx, bob, 7)
	assertAppError(t, err, apperrors.ErrCodeNotFound)
}

func TestUpdateMessage_Edit(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	edited := textMessage(1001, alice, "hello again")

	f.store.On("UpdateMessageText", ctx, int64(1001), alice, "hello again").Return(edited, nil)
	f.store.On("UpdateMessageText", ctx, int64(1001), bob, "x").Return(nil, domain.ErrNotSender)
	f.profiles.On("GetProfile", mock.Anything, alice).Return(nil, domain.ErrProfileNotFound)
	f.broadcaster.On("MessageUpdated", mock.Anything, edited).Return(nil).Once()

	text := "hello again"
	msg, err := f.svc.UpdateMessage(ctx, alice, 1001, &UpdateMessageInput{Content: &text})
	require.NoError(t, err)
	assert.Equal(t, "hello again", *msg.Content)

	other := "x"
	_, err = f.svc.UpdateMessage(ctx, bob, 1001, &UpdateMessageInput{Content: &other})
	assertAppError(t, err, apperrors.ErrCodeForbidden)

	f.assertExpectations(t)
}

func TestUpdateMessage_Read(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	msg := textMessage(1001, alice, "hello")
	msg.Read = true

	f.store.On("MarkMessageRead", ctx, int64(1001), bob).Return(msg, true, nil).Once()
	f.store.On("MarkMessageRead", ctx, int64(1001), bob).Return(msg, false, nil).Once()
	f.store.On("MarkMessageRead", ctx, int64(1001), alice).Return(nil, false, domain.ErrOwnMessage)
	f.profiles.On("GetProfile", mock.Anything, alice).Return(nil, domain.ErrProfileNotFound)
	f.broadcaster.On("MessageRead", mock.Anything, msg, bob).Return(nil).Once()

	read := true
	got, err := f.svc.UpdateMessage(ctx, bob, 1001, &UpdateMessageInput{Read: &read})
	require.NoError(t, err)
	assert.True(t, got.Read)

	_, err = f.svc.UpdateMessage(ctx, bob, 1001, &UpdateMessageInput{Read: &read})
	require.NoError(t, err)

	_, err = f.svc.UpdateMessage(ctx, alice, 1001, &UpdateMessageInput{Read: &read})
	assertAppError(t, err, apperrors.ErrCodeForbidden)

	unread := false
	_, err = f.svc.UpdateMessage(ctx, bob, 1001, &UpdateMessageInput{Read: &unread})
	assertAppError(t, err, apperrors.ErrCodeValidation)

	_, err = f.svc.UpdateMessage(ctx, bob, 1001, &UpdateMessageInput{})
	assertAppError(t, err, apperrors.ErrCodeValidation)

	f.assertExpectations(t)
}

func TestDeleteMessage(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	deleted := textMessage(1001, alice, "bye")

	f.store.On("DeleteMessage", ctx, int64(1001), alice).Return(deleted, nil)
	f.store.On("DeleteMessage", ctx, int64(1001), bob).Return(nil, domain.ErrNotSender)
	f.broadcaster.On("MessageDeleted", mock.Anything, deleted).Return(nil).Once()

	require.NoError(t, f.svc.DeleteMessage(ctx, alice, 1001))
	assertAppError(t, f.svc.DeleteMessage(ctx, bob, 1001), apperrors.ErrCodeForbidden)

	f.assertExpectations(t)
}

func TestGetConversationMessages(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	page := &domain.MessagePage{Messages: []*domain.Message{textMessage(1001, alice, "hello")}, NextCursor: 1001, PerPage: 20}

	f.store.On("FetchMessages", ctx, int64(42), bob, domain.PageRequest{Page: 1, PerPage: 20}).Return(page, int64(1), nil).Once()
	f.store.On("FetchMessages", ctx, int64(42), bob, domain.PageRequest{Cursor: 1001, Page: 1, PerPage: 20}).
		Return(&domain.MessagePage{Messages: []*domain.Message{}, NextCursor: 1001, PerPage: 20}, int64(0), nil).Once()
	f.profiles.On("GetProfile", mock.Anything, alice).Return(&domain.Profile{Principal: alice, Name: "Alice"}, nil)
	f.broadcaster.On("ConversationRead", mock.Anything, int64(42), bob, int64(1)).Return(nil).Once()

	params, err := pagination.Parse("", "", "")
	require.NoError(t, err)
	got, err := f.svc.GetConversationMessages(ctx, bob, 42, params)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "Alice", got.Messages[0].Sender.Name)

	params, err = pagination.Parse("1001", "", "")
	require.NoError(t, err)
	got, err = f.svc.GetConversationMessages(ctx, bob, 42, params)
	require.NoError(t, err)
	assert.Empty(t, got.Messages)

	f.assertExpectations(t)
}

func TestMarkConversationRead(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()

	f.store.On("MarkConversationRead", ctx, int64(42), bob).Return(int64(3), nil).Once()
	f.store.On("MarkConversationRead", ctx, int64(42), bob).Return(int64(0), nil).Once()
	f.store.On("MarkConversationRead", ctx, int64(42), eve).Return(int64(0), domain.ErrNotParticipant)
	f.broadcaster.On("ConversationRead", mock.Anything, int64(42), bob, int64(3)).Return(nil).Once()

	count, err := f.svc.MarkConversationRead(ctx, bob, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	count, err = f.svc.MarkConversationRead(ctx, bob, 42)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = f.svc.MarkConversationRead(ctx, eve, 42)
	assertAppError(t, err, apperrors.ErrCodeForbidden)

	f.assertExpectations(t)
}

func TestUnreadCount(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	f.store.On("UnreadCount", ctx, bob).Return(int64(4), nil)

	count, err := f.svc.UnreadCount(ctx, bob, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)

	_, err = f.svc.UnreadCount(ctx, bob, 1)
	assertAppError(t, err, apperrors.ErrCodeForbidden)

	f.assertExpectations(t)
}

func TestUploadMedia(t *testing.T) {
	disabled := newFixture(false)
	_, err := disabled.svc.UploadMedia(context.Background(), alice, "image", media.UploadInput{})
	assertAppError(t, err, apperrors.ErrCodeMediaDisabled)

	f := newFixture(true)
	_, err = f.svc.UploadMedia(context.Background(), alice, "text", media.UploadInput{})
	assertAppError(t, err, apperrors.ErrCodeValidation)

	upload := &domain.MediaUpload{URL: "http://media.local/chat/a.mp3", Metadata: &domain.MediaMetadata{MIME: "audio/mpeg", Bytes: 3}}
	f.uploader.On("Upload", mock.Anything, mock.MatchedBy(func(in media.UploadInput) bool { return in.Kind == domain.MessageAudio })).Return(upload, nil)

	got, err := f.svc.UploadMedia(context.Background(), alice, "audio", media.UploadInput{Filename: "a.mp3", Size: 3, Body: strings.NewReader("id3")})
	require.NoError(t, err)
	assert.Equal(t, upload.URL, got.URL)
	f.assertExpectations(t)
}

func TestSendMessage_PushTimeout(t *testing.T) {
	f := newFixture(false)
	f.svc = NewService(f.store, f.broadcaster, f.notifier, f.profiles, nil, WithPushTimeout(time.Minute))
	ctx := context.Background()
	stored := textMessage(1001, alice, "hello")

	f.store.On("GetConversation", ctx, int64(42)).Return(directConversation(42), nil)
	f.store.On("AppendMessage", ctx, mock.Anything).Return(stored, nil)
	f.profiles.On("GetProfile", mock.Anything, alice).Return(nil, domain.ErrProfileNotFound)
	f.broadcaster.On("MessageCreated", mock.Anything, stored).Return(nil)

	var deadline time.Time
	f.notifier.On("NotifyMessage", mock.Anything, stored, []domain.Principal{bob}).
		Run(func(args mock.Arguments) {
			deadline, _ = args.Get(0).(context.Context).Deadline()
		}).
		Return(nil)

	started := time.Now()
	_, err := f.svc.SendMessage(ctx, alice, &SendMessageInput{ConversationID: 42, MessageType: "text", Content: "hello"})
	require.NoError(t, err)
	f.assertExpectations(t)

	assert.WithinDuration(t, started.Add(time.Minute), deadline, 5*time.Second)
}
