package handlers

import (
	"net/http"
	"strconv"

	"github.com/AnshRaj112/serenify-conversations/internal/membership"
	"github.com/AnshRaj112/serenify-conversations/internal/models"
	"github.com/AnshRaj112/serenify-conversations/internal/pagination"
	"github.com/AnshRaj112/serenify-conversations/internal/services"
	"github.com/AnshRaj112/serenify-conversations/internal/store"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PageLimits bounds offset paging.
type PageLimits struct {
	Default int
	Max     int
}

type ChatHandler struct {
	chats   *services.ChatService
	members *membership.Local
	limits  PageLimits
}

func NewChatHandler(chats *services.ChatService, members *membership.Local, limits PageLimits) *ChatHandler {
	return &ChatHandler{chats: chats, members: members, limits: limits}
}

type createPrivateRequest struct {
	ParticipantID string `json:"participantId" validate:"required,max=128"`
}

type createGroupRequest struct {
	Name        string   `json:"name" validate:"required,max=100"`
	Description string   `json:"description" validate:"max=500"`
	Avatar      string   `json:"avatar" validate:"omitempty,url"`
	MemberIDs   []string `json:"memberIds" validate:"required,min=1,max=256,dive,required,max=128"`
}

type groupInfoRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	Avatar      *string `json:"avatar" validate:"omitempty,url"`
}

type settingsRequest struct {
	WhoCanAddMembers    models.Audience `json:"whoCanAddMembers" validate:"omitempty,oneof=everyone admins"`
	WhoCanEditGroupInfo models.Audience `json:"whoCanEditGroupInfo" validate:"omitempty,oneof=everyone admins"`
	WhoCanSendMessages  models.Audience `json:"whoCanSendMessages" validate:"omitempty,oneof=everyone admins"`
}

type addParticipantsRequest struct {
	UserIDs []string `json:"userIds" validate:"required,min=1,max=50,dive,required,max=128"`
}

type changeRoleRequest struct {
	Role models.Role `json:"role" validate:"required,oneof=member admin"`
}

func chatIDParam(r *http.Request) (primitive.ObjectID, error) {
	return services.ParseObjectID("chatId", chi.URLParam(r, "chatId"))
}

// CreatePrivate answers 201 for a new chat and 200 when the pair already had one.
func (h *ChatHandler) CreatePrivate(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req createPrivateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	view, created, err := h.chats.CreatePrivateChat(r.Context(), userID, req.ParticipantID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !created {
		writeSuccess(w, http.StatusOK, "Chat already exists", view)
		return
	}
	writeSuccess(w, http.StatusCreated, "Chat created", view)
}

func (h *ChatHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req createGroupRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	view, err := h.chats.CreateGroupChat(r.Context(), userID, services.CreateGroupInput{
		Name:        req.Name,
		Description: req.Description,
		Avatar:      req.Avatar,
		MemberIDs:   req.MemberIDs,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Group created", view)
}

func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := pagination.ParseOffset(r.URL.Query(), h.limits.Default, h.limits.Max)
	if err != nil {
		writeError(w, r, err)
		return
	}
	archived, _ := strconv.ParseBool(r.URL.Query().Get("archived"))

	out, err := h.chats.ListChats(r.Context(), userID, page, archived)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Chats retrieved", out)
}

func (h *ChatHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	chatID, err := chatIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := h.chats.GetChat(r.Context(), userID, chatID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Chat retrieved", view)
}

// Membership serves GET /api/{type}-chat/{chatId} for the realtime relay and peer
// instances: the chat plus the caller's role.
func (h *ChatHandler) Membership(chatType models.ChatType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		chatID, err := chatIDParam(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		_, role, err := h.members.Lookup(r.Context(), chatType, chatID, userID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		view, err := h.chats.GetChat(r.Context(), userID, chatID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusOK, "Chat retrieved", struct {
			*services.ChatView
			Role models.Role `json:"role"`
		}{view, role})
	}
}

func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	chatID, err := chatIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.chats.DeleteChat(r.Context(), userID, chatID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	msg := "Chat removed"
	if res.ChatDeleted {
		msg = "Chat deleted"
	}
	writeSuccess(w, http.StatusOK, msg, res)
}

func (h *ChatHandler) Leave(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	chatID, err := chatIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.chats.LeaveChat(r.Context(), userID, chatID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Left chat", res)
}

func (h *ChatHandler) UpdateGroupInfo(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	chatID, err := chatIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req groupInfoRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	view, err := h.chats.UpdateGroupInfo(r.Context(), userID, chatID, store.GroupInfo{
		Name:        req.Name,
		Description: req.Description,
		Avatar:      req.Avatar,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Group updated", view)
}

func (h *ChatHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	chatID, err := chatIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req settingsRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	view, err := h.chats.UpdateGroupSettings(r.Context(), userID, chatID, services.SettingsUpdate{
		WhoCanAddMembers:    req.WhoCanAddMembers,
		WhoCanEditGroupInfo: req.WhoCanEditGroupInfo,
		WhoCanSendMessages:  req.WhoCanSendMessages,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Group settings updated", view)
}

func (h *ChatHandler) AddParticipants(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	chatID, err := chatIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req addParticipantsRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.chats.AddParticipants(r.Context(), userID, chatID, req.UserIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Participants updated", res)
}

func (h *ChatHandler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	chatID, err := chatIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := h.chats.RemoveParticipant(r.Context(), userID, chatID, chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Participant removed", view)
}

func (h *ChatHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	chatID, err := chatIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req changeRoleRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	view, err := h.chats.ChangeParticipantRole(r.Context(), userID, chatID, chi.URLParam(r, "userId"), req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Role updated", view)
}

func (h *ChatHandler) UpdateViewState(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	chatID, err := chatIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req models.ViewStateUpdate
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	row, err := h.chats.UpdateViewState(r.Context(), userID, chatID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Chat preferences updated", row)
}

func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	chatID, err := chatIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	row, err := h.chats.MarkChatRead(r.Context(), userID, chatID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Chat marked as read", row)
}

func (h *ChatHandler) Unread(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.chats.UnreadSummary(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Unread counts retrieved", out)
}
