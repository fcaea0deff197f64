package membership

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AnshRaj112/serenify-conversations/internal/apperr"
	"github.com/AnshRaj112/serenify-conversations/internal/auth"
	"github.com/AnshRaj112/serenify-conversations/internal/models"
	"github.com/AnshRaj112/serenify-conversations/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func seedGroup(t *testing.T) (*store.MemoryStore, *models.Chat) {
	t.Helper()
	mem := store.NewMemoryStore()
	now := time.Now().UTC()
	chat := &models.Chat{
		Type:      models.ChatTypeGroup,
		GroupName: "g",
		Participants: []models.Participant{
			{UserID: "alice", Role: models.RoleOwner, IsActive: true, JoinedAt: now},
			{UserID: "bob", Role: models.RoleAdmin, IsActive: true, JoinedAt: now},
			{UserID: "carol", Role: models.RoleMember, IsActive: false, JoinedAt: now},
		},
	}
	require.NoError(t, mem.InsertChat(context.Background(), chat))
	return mem, chat
}

func TestLocalCheck(t *testing.T) {
	mem, chat := seedGroup(t)
	checker := NewLocal(mem)
	ctx := context.Background()

	role, err := checker.Check(ctx, models.ChatTypeGroup, chat.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, role)

	_, err = checker.Check(ctx, models.ChatTypeGroup, chat.ID, "carol")
	assert.True(t, apperr.IsForbidden(err))

	_, err = checker.Check(ctx, models.ChatTypePrivate, chat.ID, "bob")
	assert.True(t, apperr.IsNotFound(err))

	_, err = checker.Check(ctx, models.ChatTypeGroup, primitive.NewObjectID(), "bob")
	assert.True(t, apperr.IsNotFound(err))
}

func TestRemoteCheck(t *testing.T) {
	secret := []byte("s3cret")
	chatID := primitive.NewObjectID()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/group-chat/"+chatID.Hex(), r.URL.Path)
		user := r.Header.Get(auth.DefaultCallerHeader)
		assert.NoError(t, auth.VerifyCallerClaims(secret, r.Header.Get(auth.ClaimsHeader), user))
		switch user {
		case "bob":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": "success",
				"data":   map[string]any{"role": "admin"},
			})
		case "mallory":
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "error", "message": "not a member"})
		case "ghost":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	remote := NewRemote(srv.URL, "", secret, time.Second)
	ctx := context.Background()

	role, err := remote.Check(ctx, models.ChatTypeGroup, chatID, "bob")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, role)

	_, err = remote.Check(ctx, models.ChatTypeGroup, chatID, "mallory")
	assert.True(t, apperr.IsForbidden(err))

	_, err = remote.Check(ctx, models.ChatTypeGroup, chatID, "ghost")
	assert.True(t, apperr.IsNotFound(err))

	_, err = remote.Check(ctx, models.ChatTypeGroup, chatID, "zed")
	var collab *apperr.CollaboratorError
	assert.ErrorAs(t, err, &collab)
}
