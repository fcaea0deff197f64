package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AnshRaj112/serenify-conversations/internal/handlers"
	"github.com/AnshRaj112/serenify-conversations/internal/identity"
	"github.com/AnshRaj112/serenify-conversations/internal/membership"
	"github.com/AnshRaj112/serenify-conversations/internal/middleware"
	"github.com/AnshRaj112/serenify-conversations/internal/realtime"
	"github.com/AnshRaj112/serenify-conversations/internal/services"
	"github.com/AnshRaj112/serenify-conversations/internal/store"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSocketRelaysChatEvents(t *testing.T) {
	st := store.NewMemoryStore().Store()
	hub := realtime.NewHub()
	pub := realtime.NewLocalBroker(hub)
	deps := services.Deps{
		Store:    st,
		Identity: &identity.Static{Open: true},
		Members:  membership.NewLocal(st.Chats),
		Realtime: pub,
	}
	chats := services.NewChatService(deps)
	messages := services.NewMessageService(deps)

	ctx := identity.WithCredential(context.Background(), "token")
	chat, _, err := chats.CreatePrivateChat(ctx, "alice", "bob")
	require.NoError(t, err)
	chatID := chat.ID.Hex()

	sock := handlers.NewSocketHandler(chats, hub, pub, nil)
	srv := httptest.NewServer(middleware.Caller("X-User-Id", nil)(http.HandlerFunc(sock.Serve)))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?chatId="

	header := http.Header{}
	header.Set("X-User-Id", "mallory")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL+chatID, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("X-User-Id", "bob")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+chatID, header)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Subscribers(chatID) == 1 }, time.Second, 10*time.Millisecond)

	_, err = messages.Send(ctx, "alice", chat.ID, services.SendInput{Content: "hi bob"})
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev realtime.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, realtime.EventMessageCreated, ev.Type)
	assert.Equal(t, chatID, ev.ChatID)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": realtime.EventTypingStart}))
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, realtime.EventTypingStart, ev.Type)
	assert.Equal(t, "bob", ev.UserID)
}
