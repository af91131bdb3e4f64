package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socialhub-backend/internal/domain"
	chatHandler "socialhub-backend/internal/handler/http/chat"
	conversationHandler "socialhub-backend/internal/handler/http/conversation"
	wsHandler "socialhub-backend/internal/handler/ws"
	"socialhub-backend/internal/repository/memory"
	"socialhub-backend/internal/service/chat"
	"socialhub-backend/internal/service/conversation"
	"socialhub-backend/internal/service/media"
	"socialhub-backend/internal/service/notification"
	"socialhub-backend/internal/service/storage"
	"socialhub-backend/pkg/jwt"
	"socialhub-backend/pkg/metrics"
	"socialhub-backend/pkg/push"
	"socialhub-backend/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var (
	u1 = domain.Principal{Kind: domain.PrincipalUser, ID: 1}
	u2 = domain.Principal{Kind: domain.PrincipalUser, ID: 2}
	a3 = domain.Principal{Kind: domain.PrincipalAdvertiser, ID: 3}
)

type testEnv struct {
	server   *httptest.Server
	store    *memory.Store
	objects  *storage.MemoryStore
	hub      *wsHandler.Hub
	provider *push.MockProvider
	chat     *chat.Service
	jwt      *jwt.JWTManager
}

func newTestEnv(t *testing.T, withMedia bool) *testEnv {
	t.Helper()

	store := memory.NewStore()
	store.PutProfile(&domain.Profile{Principal: u1, Name: "User One", Username: "one", PushToken: "token-1"})
	store.PutProfile(&domain.Profile{Principal: u2, Name: "User Two", Username: "two", PushToken: "token-2"})
	store.PutProfile(&domain.Profile{Principal: a3, Name: "Acme", Username: "acme"})

	objects := storage.NewMemoryStore("http://media.local")
	var uploader chat.MediaUploader
	if withMedia {
		uploader = media.NewPipeline(objects, media.DefaultLimits())
	}

	hub := wsHandler.NewHub(wsHandler.DefaultHubConfig())
	provider := push.NewMockProvider()
	conversations := conversation.NewService(store, store)
	dispatcher := notification.NewDispatcher(provider, store, hub)
	chatSvc := chat.NewService(store, hub, dispatcher, store, uploader, chat.WithConversations(conversations))

	jwtManager := jwt.NewJWTManager("router-test-secret-0123456789abcdef", "", time.Hour)
	router := NewRouter(Deps{
		JWT:           jwtManager,
		Metrics:       metrics.NewMetrics("chat-test", metrics.NewRegistry()),
		Chat:          chatHandler.NewHandler(chatSvc),
		Conversations: conversationHandler.NewHandler(conversations),
		WS:            wsHandler.NewHandler(hub, conversations, wsHandler.HandlerConfig{}),
	})

	env := &testEnv{
		server:   httptest.NewServer(router),
		store:    store,
		objects:  objects,
		hub:      hub,
		provider: provider,
		chat:     chatSvc,
		jwt:      jwtManager,
	}
	t.Cleanup(func() {
		hub.Close()
		env.server.Close()
		chatSvc.Wait()
	})
	return env
}

func (e *testEnv) token(t *testing.T, p domain.Principal) string {
	t.Helper()
	token, err := e.jwt.GenerateAccessToken(p.ID, string(p.Kind), "")
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, p domain.Principal, method, path string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token(t, p))
	return e.send(t, req)
}

func (e *testEnv) send(t *testing.T, req *http.Request) (int, []byte) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func (e *testEnv) openConversation(t *testing.T, a domain.Principal, b domain.Principal) int64 {
	t.Helper()
	status, body := e.do(t, a, http.MethodPost, "/conversations", map[string]any{
		"participant_id":   b.ID,
		"participant_type": string(b.Kind),
	})
	require.Contains(t, []int{http.StatusCreated, http.StatusOK}, status, string(body))
	var conv domain.Conversation
	require.NoError(t, json.Unmarshal(body, &conv))
	return conv.ID
}

func (e *testEnv) sendText(t *testing.T, from domain.Principal, conversationID int64, text string) *domain.Message {
	t.Helper()
	status, body := e.do(t, from, http.MethodPost, "/messages", map[string]any{
		"conversation_id": conversationID,
		"sender_id":       from.ID,
		"sender_type":     string(from.Kind),
		"content":         text,
		"message_type":    "text",
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	var msg domain.Message
	require.NoError(t, json.Unmarshal(body, &msg))
	return &msg
}

func (e *testEnv) unread(t *testing.T, p domain.Principal) int64 {
	t.Helper()
	status, body := e.do(t, p, http.MethodGet, fmt.Sprintf("/messages/unread/%d", p.ID), nil)
	require.Equal(t, http.StatusOK, status, string(body))
	var out chatHandler.UnreadCountResponse
	require.NoError(t, json.Unmarshal(body, &out))
	return out.UnreadCount
}

func (e *testEnv) dial(t *testing.T, p domain.Principal, conversationID int64) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws?access_token=" + e.token(t, p)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, conn.WriteJSON(map[string]any{
		"event": wsHandler.EventJoin,
		"data":  wsHandler.ClientPayload{ConversationID: conversationID},
	}))
	frame := waitFor(t, conn, wsHandler.EventJoined)
	var room wsHandler.RoomPayload
	require.NoError(t, json.Unmarshal(frame.Data, &room))
	require.Equal(t, conversationID, room.ConversationID)
	return conn
}

func waitFor(t *testing.T, conn *websocket.Conn, event string) wsHandler.Frame {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var frame wsHandler.Frame
		require.NoError(t, conn.ReadJSON(&frame), "waiting for %s", event)
		if frame.Event == event {
			return frame
		}
	}
}

func decodeError(t *testing.T, body []byte) response.ErrorBody {
	t.Helper()
	var out response.ErrorBody
	require.NoError(t, json.Unmarshal(body, &out), string(body))
	return out
}

func TestScenario_TextSendAndFetch(t *testing.T) {
	env := newTestEnv(t, false)
	cid := env.openConversation(t, u1, u2)

	msg := env.sendText(t, u1, cid, "hello")
	assert.False(t, msg.Read)
	assert.Equal(t, int64(1), msg.Seq)
	require.NotNil(t, msg.Sender)
	assert.Equal(t, "one", msg.Sender.Username)

	assert.Equal(t, int64(1), env.unread(t, u2))
	assert.Zero(t, env.unread(t, u1))

	status, body := env.do(t, u2, http.MethodGet, fmt.Sprintf("/messages/conversation/%d", cid), nil)
	require.Equal(t, http.StatusOK, status, string(body))
	var page domain.MessagePage
	require.NoError(t, json.Unmarshal(body, &page))
	require.Len(t, page.Messages, 1)
	assert.Equal(t, msg.ID, page.Messages[0].ID)
	assert.True(t, page.Messages[0].Read)
	assert.Equal(t, msg.ID, page.NextCursor)

	assert.Zero(t, env.unread(t, u2))

	env.chat.Wait()
	sent := env.provider.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"token-2"}, sent[0].Tokens)
	assert.Equal(t, "hello", sent[0].Notification.Body)
}

func TestScenario_ImageMessage(t *testing.T) {
	env := newTestEnv(t, true)
	cid := env.openConversation(t, u1, u2)

	rng := rand.New(rand.NewSource(7))
	img := image.NewNRGBA(image.Rect(0, 0, 800, 700))
	for y := 0; y < 700; y++ {
		for x := 0; x < 800; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(rng.Intn(256)), G: uint8(rng.Intn(256)), B: uint8(rng.Intn(256)), A: uint8(1 + rng.Intn(255))})
		}
	}
	// translucent noise keeps the encoding RGBA and incompressible
	var pngData bytes.Buffer
	require.NoError(t, png.Encode(&pngData, img))
	require.Greater(t, pngData.Len(), 2*1024*1024)

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	require.NoError(t, form.WriteField("conversation_id", fmt.Sprint(cid)))
	require.NoError(t, form.WriteField("sender_id", "1"))
	require.NoError(t, form.WriteField("sender_type", "user"))
	require.NoError(t, form.WriteField("message_type", "image"))
	part, err := form.CreateFormFile("file", "photo.png")
	require.NoError(t, err)
	_, err = part.Write(pngData.Bytes())
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/messages", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+env.token(t, u1))

	status, respBody := env.send(t, req)
	require.Equal(t, http.StatusCreated, status, string(respBody))

	var msg domain.Message
	require.NoError(t, json.Unmarshal(respBody, &msg))
	assert.Equal(t, domain.MessageImage, msg.Kind)
	require.NotNil(t, msg.MediaURL)
	require.NotNil(t, msg.ThumbnailURL)
	require.NotNil(t, msg.Metadata)
	assert.Equal(t, "image/png", msg.Metadata.MIME)
	require.NotNil(t, msg.Metadata.Width)
	assert.Equal(t, 800, *msg.Metadata.Width)

	stored, _, ok := env.objects.GetByURL(*msg.MediaURL)
	require.True(t, ok)
	assert.Equal(t, pngData.Bytes(), stored)
}

func TestScenario_UploadThenSend(t *testing.T) {
	env := newTestEnv(t, true)
	cid := env.openConversation(t, u1, u2)

	audio := append([]byte("ID3\x03\x00\x00\x00\x00\x00\x00"), bytes.Repeat([]byte{0xFF, 0xFB, 0x90, 0x64}, 256)...)
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	require.NoError(t, form.WriteField("message_type", "audio"))
	part, err := form.CreateFormFile("file", "note.mp3")
	require.NoError(t, err)
	_, err = part.Write(audio)
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/messages/upload", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+env.token(t, u1))
	status, respBody := env.send(t, req)
	require.Equal(t, http.StatusCreated, status, string(respBody))

	var upload domain.MediaUpload
	require.NoError(t, json.Unmarshal(respBody, &upload))
	assert.Equal(t, "audio/mpeg", upload.Metadata.MIME)

	status, respBody = env.do(t, u1, http.MethodPost, "/messages", map[string]any{
		"conversation_id": cid,
		"message_type":    "audio",
		"media_url":       upload.URL,
		"metadata":        upload.Metadata,
	})
	require.Equal(t, http.StatusCreated, status, string(respBody))

	var msg domain.Message
	require.NoError(t, json.Unmarshal(respBody, &msg))
	stored, _, ok := env.objects.GetByURL(*msg.MediaURL)
	require.True(t, ok)
	assert.Equal(t, audio, stored)
}

func TestScenario_ForbiddenEdit(t *testing.T) {
	env := newTestEnv(t, false)
	cid := env.openConversation(t, u1, u2)
	msg := env.sendText(t, u1, cid, "hello")

	status, body := env.do(t, u2, http.MethodPut, fmt.Sprintf("/messages/%d", msg.ID), map[string]any{"content": "x"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", decodeError(t, body).Error)

	status, body = env.do(t, u1, http.MethodPut, fmt.Sprintf("/messages/%d", msg.ID), map[string]any{"content": "hello, edited"})
	require.Equal(t, http.StatusOK, status, string(body))
	var edited domain.Message
	require.NoError(t, json.Unmarshal(body, &edited))
	assert.Equal(t, "hello, edited", *edited.Content)
	assert.False(t, edited.UpdatedAt.Before(edited.CreatedAt))

	status, body = env.do(t, u2, http.MethodPut, fmt.Sprintf("/messages/%d", msg.ID), map[string]any{"read": true})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Zero(t, env.unread(t, u2))
}

func TestScenario_DeleteBroadcastsOnce(t *testing.T) {
	env := newTestEnv(t, false)
	cid := env.openConversation(t, u1, u2)
	msg := env.sendText(t, u1, cid, "bye")

	conn := env.dial(t, u2, cid)

	status, body := env.do(t, u1, http.MethodDelete, fmt.Sprintf("/messages/%d", msg.ID), nil)
	require.Equal(t, http.StatusOK, status, string(body))

	frame := waitFor(t, conn, wsHandler.EventMessageDeleted)
	var payload wsHandler.MessageDeletedPayload
	require.NoError(t, json.Unmarshal(frame.Data, &payload))
	assert.Equal(t, msg.ID, payload.MessageID)
	assert.Equal(t, cid, payload.ConversationID)

	extra := 0
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	for {
		var f wsHandler.Frame
		if err := conn.ReadJSON(&f); err != nil {
			break
		}
		if f.Event == wsHandler.EventMessageDeleted {
			extra++
		}
	}
	assert.Zero(t, extra)

	status, _ = env.do(t, u1, http.MethodGet, fmt.Sprintf("/messages/%d", msg.ID), nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestClientEvents(t *testing.T) {
	env := newTestEnv(t, false)
	cid := env.openConversation(t, u1, u2)
	sender := env.dial(t, u1, cid)
	receiver := env.dial(t, u2, cid)

	require.NoError(t, sender.WriteJSON(map[string]any{
		"event": wsHandler.EventTyping,
		"data":  wsHandler.ClientPayload{ConversationID: cid},
	}))
	frame := waitFor(t, receiver, wsHandler.EventUserTyping)
	var typing wsHandler.TypingPayload
	require.NoError(t, json.Unmarshal(frame.Data, &typing))
	assert.Equal(t, u1, typing.Principal)

	require.NoError(t, sender.WriteJSON(map[string]any{
		"event": wsHandler.EventMessageRead,
		"data":  wsHandler.ClientPayload{ConversationID: cid},
	}))
	frame = waitFor(t, sender, wsHandler.EventError)
	assert.Contains(t, string(frame.Data), "message_id")

	require.NoError(t, sender.WriteJSON(map[string]any{
		"event": wsHandler.EventTyping,
		"data":  wsHandler.ClientPayload{ConversationID: cid + 100},
	}))
	frame = waitFor(t, sender, wsHandler.EventError)
	assert.Contains(t, string(frame.Data), "forbidden")
}

func TestScenario_ConcurrentSendsKeepOrder(t *testing.T) {
	env := newTestEnv(t, false)
	cid := env.openConversation(t, u1, u2)
	conn := env.dial(t, u2, cid)

	const sends = 10
	var wg sync.WaitGroup
	for i := 0; i < sends; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			env.sendText(t, u1, cid, fmt.Sprintf("burst %d", i))
		}(i)
	}
	wg.Wait()

	var received []domain.Message
	for len(received) < sends {
		frame := waitFor(t, conn, wsHandler.EventNewMessage)
		var msg domain.Message
		require.NoError(t, json.Unmarshal(frame.Data, &msg))
		received = append(received, msg)
	}

	for i := 1; i < len(received); i++ {
		assert.Greater(t, received[i].ID, received[i-1].ID)
		assert.Equal(t, received[i-1].Seq+1, received[i].Seq)
		assert.False(t, received[i].CreatedAt.Before(received[i-1].CreatedAt))
	}
}

func TestConversationEndpoints(t *testing.T) {
	env := newTestEnv(t, false)

	status, body := env.do(t, u1, http.MethodPost, "/conversations", map[string]any{"participant_id": 2})
	require.Equal(t, http.StatusCreated, status, string(body))
	var conv domain.Conversation
	require.NoError(t, json.Unmarshal(body, &conv))
	assert.Len(t, conv.Participants, 2)

	status, _ = env.do(t, u2, http.MethodPost, "/conversations", map[string]any{"participant_id": 1})
	assert.Equal(t, http.StatusOK, status)

	status, body = env.do(t, u2, http.MethodPost, "/conversations", map[string]any{"participant_id": 1, "strict": true})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "conflict", decodeError(t, body).Error)

	status, body = env.do(t, u2, http.MethodGet, "/conversations/with-user/1", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	var same domain.Conversation
	require.NoError(t, json.Unmarshal(body, &same))
	assert.Equal(t, conv.ID, same.ID)

	status, _ = env.do(t, a3, http.MethodGet, fmt.Sprintf("/conversations/%d", conv.ID), nil)
	assert.Equal(t, http.StatusForbidden, status)

	env.sendText(t, u2, conv.ID, "ping")
	status, body = env.do(t, u1, http.MethodGet, "/messages/recent", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	var summaries []domain.ConversationSummary
	require.NoError(t, json.Unmarshal(body, &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, int64(1), summaries[0].UnreadCount)
	require.NotNil(t, summaries[0].OtherParticipant)
	assert.Equal(t, "two", summaries[0].OtherParticipant.Username)

	status, _ = env.do(t, u1, http.MethodDelete, fmt.Sprintf("/conversations/%d", conv.ID), nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = env.do(t, u1, http.MethodGet, fmt.Sprintf("/conversations/%d", conv.ID), nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestEdgeCases(t *testing.T) {
	env := newTestEnv(t, false)
	cid := env.openConversation(t, u1, u2)
	msg := env.sendText(t, u1, cid, "hello")

	t.Run("missing token", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, env.server.URL+"/messages/recent", nil)
		require.NoError(t, err)
		status, body := env.send(t, req)
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "unauthenticated", decodeError(t, body).Error)
	})

	t.Run("empty page keeps cursor", func(t *testing.T) {
		status, body := env.do(t, u2, http.MethodGet, fmt.Sprintf("/messages/conversation/%d?cursor=%d&per_page=0", cid, msg.ID), nil)
		require.Equal(t, http.StatusOK, status, string(body))
		var page domain.MessagePage
		require.NoError(t, json.Unmarshal(body, &page))
		assert.Empty(t, page.Messages)
		assert.Equal(t, msg.ID, page.NextCursor)
		assert.Equal(t, int64(1), env.unread(t, u2))
	})

	t.Run("send by non participant", func(t *testing.T) {
		status, _ := env.do(t, a3, http.MethodPost, "/messages", map[string]any{"conversation_id": cid, "content": "hi", "message_type": "text"})
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("empty text", func(t *testing.T) {
		status, body := env.do(t, u1, http.MethodPost, "/messages", map[string]any{"conversation_id": cid, "content": " ", "message_type": "text"})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "validation", decodeError(t, body).Error)
	})

	t.Run("unread of someone else", func(t *testing.T) {
		status, _ := env.do(t, u1, http.MethodGet, "/messages/unread/2", nil)
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("media disabled", func(t *testing.T) {
		var body bytes.Buffer
		form := multipart.NewWriter(&body)
		require.NoError(t, form.WriteField("message_type", "image"))
		part, err := form.CreateFormFile("file", "a.png")
		require.NoError(t, err)
		_, err = part.Write([]byte("\x89PNG"))
		require.NoError(t, err)
		require.NoError(t, form.Close())

		req, err := http.NewRequest(http.MethodPost, env.server.URL+"/messages/upload", &body)
		require.NoError(t, err)
		req.Header.Set("Content-Type", form.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+env.token(t, u1))
		status, respBody := env.send(t, req)
		assert.Equal(t, http.StatusNotImplemented, status)
		assert.Equal(t, "media_disabled", decodeError(t, respBody).Error)
	})

	t.Run("media send with client url is disabled too", func(t *testing.T) {
		status, body := env.do(t, u1, http.MethodPost, "/messages", map[string]any{
			"conversation_id": cid,
			"message_type":    "image",
			"media_url":       "https://elsewhere.example/x.png",
			"metadata":        map[string]any{"mime": "image/png", "bytes": 10},
		})
		assert.Equal(t, http.StatusNotImplemented, status, string(body))
		assert.Equal(t, "media_disabled", decodeError(t, body).Error)
	})

	t.Run("mark read is idempotent", func(t *testing.T) {
		status, body := env.do(t, u2, http.MethodPost, fmt.Sprintf("/messages/conversation/%d/mark-read", cid), nil)
		require.Equal(t, http.StatusOK, status, string(body))
		var first chatHandler.MarkReadResponse
		require.NoError(t, json.Unmarshal(body, &first))
		assert.Equal(t, int64(1), first.Marked)

		status, body = env.do(t, u2, http.MethodPost, fmt.Sprintf("/messages/conversation/%d/mark-read", cid), nil)
		require.Equal(t, http.StatusOK, status)
		var second chatHandler.MarkReadResponse
		require.NoError(t, json.Unmarshal(body, &second))
		assert.Zero(t, second.Marked)
	})
}
