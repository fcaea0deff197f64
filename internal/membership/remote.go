package membership

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/AnshRaj112/serenify-conversations/internal/apperr"
	"github.com/AnshRaj112/serenify-conversations/internal/auth"
	"github.com/AnshRaj112/serenify-conversations/internal/identity"
	"github.com/AnshRaj112/serenify-conversations/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const serviceName = "membership"

// Remote calls GET /api/{type}-chat/{id} on another conversation instance.
type Remote struct {
	baseURL      string
	callerHeader string
	secret       []byte
	http         *http.Client
}

func NewRemote(baseURL, callerHeader string, secret []byte, timeout time.Duration) *Remote {
	if callerHeader == "" {
		callerHeader = auth.DefaultCallerHeader
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Remote{
		baseURL:      strings.TrimRight(baseURL, "/"),
		callerHeader: callerHeader,
		secret:       secret,
		http:         &http.Client{Timeout: timeout},
	}
}

type remoteResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Role models.Role `json:"role"`
	} `json:"data"`
}

func (r *Remote) Check(ctx context.Context, chatType models.ChatType, chatID primitive.ObjectID, userID string) (models.Role, error) {
	url := fmt.Sprintf("%s/api/%s-chat/%s", r.baseURL, chatType, chatID.Hex())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", apperr.Collaborator(serviceName, err)
	}
	req.Header.Set(r.callerHeader, userID)
	if len(r.secret) > 0 {
		token, err := auth.SignCallerClaims(r.secret, userID, time.Minute)
		if err != nil {
			return "", apperr.Collaborator(serviceName, err)
		}
		req.Header.Set(auth.ClaimsHeader, token)
	}
	if token := identity.CredentialFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return "", apperr.Collaborator(serviceName, err)
	}
	defer resp.Body.Close()

	var body remoteResponse
	_ = json.NewDecoder(resp.Body).Decode(&body)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", apperr.NotFound("Chat", chatID.Hex())
	case http.StatusForbidden:
		msg := body.Message
		if msg == "" {
			msg = "You are not a participant of this chat"
		}
		return "", apperr.Forbidden(msg)
	default:
		return "", apperr.Collaborator(serviceName, fmt.Errorf("GET %s: status %d", url, resp.StatusCode))
	}

	if !body.Data.Role.IsValid() {
		return "", apperr.Collaborator(serviceName, fmt.Errorf("GET %s: invalid role %q", url, body.Data.Role))
	}
	return body.Data.Role, nil
}
