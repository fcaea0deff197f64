package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AnshRaj112/serenify-conversations/internal/handlers"
	"github.com/AnshRaj112/serenify-conversations/internal/identity"
	"github.com/AnshRaj112/serenify-conversations/internal/membership"
	"github.com/AnshRaj112/serenify-conversations/internal/middleware"
	"github.com/AnshRaj112/serenify-conversations/internal/realtime"
	"github.com/AnshRaj112/serenify-conversations/internal/routes"
	"github.com/AnshRaj112/serenify-conversations/internal/services"
	"github.com/AnshRaj112/serenify-conversations/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type server struct {
	t      *testing.T
	router *chi.Mux
}

func newServer(t *testing.T) *server {
	t.Helper()
	st := store.NewMemoryStore().Store()
	local := membership.NewLocal(st.Chats)
	ids := identity.NewStatic(
		identity.Profile{ID: "alice", Username: "Alice"},
		identity.Profile{ID: "bob", Username: "Bob"},
		identity.Profile{ID: "carol", Username: "Carol"},
	)
	hub := realtime.NewHub()
	deps := services.Deps{
		Store:    st,
		Identity: ids,
		Members:  local,
		Realtime: realtime.NewLocalBroker(hub),
	}
	chats := services.NewChatService(deps)
	limits := handlers.PageLimits{Default: 20, Max: 100}

	r := chi.NewRouter()
	routes.SetupRoutes(r, routes.Handlers{
		Chats:    handlers.NewChatHandler(chats, local, limits),
		Messages: handlers.NewMessageHandler(services.NewMessageService(deps), limits),
	}, routes.Guards{Caller: middleware.Caller("X-User-Id", nil)})
	return &server{t: t, router: r}
}

func (s *server) do(user, method, path string, body any) (int, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer token")
	if user != "" {
		req.Header.Set("X-User-Id", user)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec.Code, env
}

func dataField[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

type idOnly struct {
	ID string `json:"id"`
}

func TestCreatePrivateChatStatusCodes(t *testing.T) {
	s := newServer(t)

	code, env := s.do("alice", http.MethodPost, "/api/chats/private", map[string]string{"participantId": "bob"})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "success", env.Status)
	first := dataField[idOnly](t, env)

	code, env = s.do("bob", http.MethodPost, "/api/chats/private", map[string]string{"participantId": "alice"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Chat already exists", env.Message)
	assert.Equal(t, first.ID, dataField[idOnly](t, env).ID)

	code, env = s.do("alice", http.MethodPost, "/api/chats/private", map[string]string{"participantId": "alice"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "error", env.Status)
}

func TestRequestValidation(t *testing.T) {
	s := newServer(t)

	code, _ := s.do("", http.MethodGet, "/api/chats", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env := s.do("alice", http.MethodPost, "/api/chats/private", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Message, "Request body is required")

	code, _ = s.do("alice", http.MethodPost, "/api/chats/private", map[string]string{"participantId": "bob", "extra": "x"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do("alice", http.MethodGet, "/api/chats/not-an-id", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do("alice", http.MethodPost, "/api/messages/read", map[string]any{"messageIds": []string{"zzz"}})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do("alice", http.MethodGet, "/api/chats?page=0", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestGroupMessageFlow(t *testing.T) {
	s := newServer(t)

	code, env := s.do("alice", http.MethodPost, "/api/chats/group", map[string]any{
		"name":      "Book club",
		"memberIds": []string{"bob", "carol"},
	})
	require.Equal(t, http.StatusCreated, code, env.Message)
	chatID := dataField[idOnly](t, env).ID
	base := "/api/chats/" + chatID

	code, env = s.do("bob", http.MethodPost, base+"/messages", map[string]any{"content": "hello"})
	require.Equal(t, http.StatusCreated, code, env.Message)
	msgID := dataField[idOnly](t, env).ID

	code, env = s.do("carol", http.MethodPatch, "/api/messages/"+msgID, map[string]string{"content": "hijack"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "You can only edit your own messages", env.Message)

	code, _ = s.do("carol", http.MethodPost, "/api/messages/"+msgID+"/reactions", map[string]string{"emoji": "👍"})
	assert.Equal(t, http.StatusOK, code)

	code, env = s.do("carol", http.MethodGet, "/api/chats/unread", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, dataField[services.UnreadSummary](t, env).TotalUnread)

	code, env = s.do("carol", http.MethodPost, "/api/messages/read", map[string]any{"messageIds": []string{msgID}})
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, dataField[services.MarkReadResult](t, env).Marked)

	code, env = s.do("alice", http.MethodGet, base+"/messages?limit=10", nil)
	require.Equal(t, http.StatusOK, code)
	page := dataField[struct {
		Messages []idOnly `json:"messages"`
	}](t, env)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, msgID, page.Messages[0].ID)

	code, _ = s.do("alice", http.MethodGet, base+"/messages?before="+msgID+"&after="+msgID, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do("carol", http.MethodDelete, "/api/messages/"+msgID+"?forEveryone=true", nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = s.do("alice", http.MethodDelete, "/api/messages/"+msgID+"?forEveryone=true", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestMembershipEndpoint(t *testing.T) {
	s := newServer(t)

	_, env := s.do("alice", http.MethodPost, "/api/chats/group", map[string]any{
		"name":      "Ops",
		"memberIds": []string{"bob"},
	})
	chatID := dataField[idOnly](t, env).ID

	code, env := s.do("alice", http.MethodGet, "/api/group-chat/"+chatID, nil)
	require.Equal(t, http.StatusOK, code)
	got := dataField[struct {
		ID   string `json:"id"`
		Role string `json:"role"`
	}](t, env)
	assert.Equal(t, chatID, got.ID)
	assert.Equal(t, "owner", got.Role)

	code, _ = s.do("carol", http.MethodGet, "/api/group-chat/"+chatID, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do("alice", http.MethodGet, "/api/private-chat/"+chatID, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestLeaveAndDeleteGroup(t *testing.T) {
	s := newServer(t)

	_, env := s.do("alice", http.MethodPost, "/api/chats/group", map[string]any{
		"name":      "Trip",
		"memberIds": []string{"bob", "carol"},
	})
	chatID := dataField[idOnly](t, env).ID
	base := "/api/chats/" + chatID

	code, _ := s.do("alice", http.MethodPatch, base+"/participants/bob/role", map[string]string{"role": "owner"})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = s.do("alice", http.MethodPatch, base+"/participants/bob/role", map[string]string{"role": "admin"})
	assert.Equal(t, http.StatusOK, code)

	code, env = s.do("alice", http.MethodPost, base+"/leave", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "bob", dataField[services.LeaveResult](t, env).NewOwnerID)

	code, _ = s.do("carol", http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, env = s.do("bob", http.MethodDelete, base, nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, dataField[services.LeaveResult](t, env).ChatDeleted)

	code, _ = s.do("bob", http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, code)
}
