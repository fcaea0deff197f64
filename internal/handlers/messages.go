package handlers

import (
	"net/http"
	"strconv"

	"github.com/AnshRaj112/serenify-conversations/internal/models"
	"github.com/AnshRaj112/serenify-conversations/internal/pagination"
	"github.com/AnshRaj112/serenify-conversations/internal/services"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MessageHandler struct {
	messages *services.MessageService
	limits   PageLimits
}

func NewMessageHandler(messages *services.MessageService, limits PageLimits) *MessageHandler {
	return &MessageHandler{messages: messages, limits: limits}
}

type sendRequest struct {
	MessageType models.MessageType  `json:"messageType" validate:"omitempty,oneof=text image video audio document emoji"`
	Content     string              `json:"content"`
	Attachments []models.Attachment `json:"attachments" validate:"max=10,dive"`
	ReplyTo     string              `json:"replyTo" validate:"omitempty,mongodb"`
}

type editRequest struct {
	Content string `json:"content" validate:"required"`
}

type bulkDeleteRequest struct {
	MessageIDs  []string `json:"messageIds" validate:"required,min=1,max=100,dive,mongodb"`
	ForEveryone bool     `json:"forEveryone"`
}

type forwardRequest struct {
	TargetChatIDs []string `json:"targetChatIds" validate:"required,min=1,max=20,dive,mongodb"`
}

type reactRequest struct {
	Emoji string `json:"emoji" validate:"required,max=64"`
}

type markReadRequest struct {
	MessageIDs []string `json:"messageIds" validate:"required,min=1,max=200,dive,mongodb"`
}

func messageIDParam(r *http.Request) (primitive.ObjectID, error) {
	return services.ParseObjectID("messageId", chi.URLParam(r, "messageId"))
}

func parseIDs(field string, raw []string) ([]primitive.ObjectID, error) {
	ids := make([]primitive.ObjectID, 0, len(raw))
	for _, s := range raw {
		id, err := services.ParseObjectID(field, s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
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
	var req sendRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	in := services.SendInput{
		MessageType: req.MessageType,
		Content:     req.Content,
		Attachments: req.Attachments,
	}
	if req.ReplyTo != "" {
		id, err := services.ParseObjectID("replyTo", req.ReplyTo)
		if err != nil {
			writeError(w, r, err)
			return
		}
		in.ReplyTo = &id
	}

	view, err := h.messages.Send(r.Context(), userID, chatID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Message sent", view)
}

// List pages with ?before= / ?after= when given, otherwise ?page= / ?limit=.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
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
	q := r.URL.Query()
	page, err := pagination.ParseOffset(q, h.limits.Default, h.limits.Max)
	if err != nil {
		writeError(w, r, err)
		return
	}
	cursor, err := pagination.ParseCursor(q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out, err := h.messages.List(r.Context(), userID, chatID, page, cursor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Messages retrieved", out)
}

func (h *MessageHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	messageID, err := messageIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := h.messages.Get(r.Context(), userID, messageID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Message retrieved", view)
}

func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	messageID, err := messageIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req editRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	view, err := h.messages.Edit(r.Context(), userID, messageID, req.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Message updated", view)
}

// Delete hides the message for the caller, or tombstones it with ?forEveryone=true.
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	messageID, err := messageIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	forEveryone, _ := strconv.ParseBool(r.URL.Query().Get("forEveryone"))

	if err := h.messages.Delete(r.Context(), userID, messageID, forEveryone); err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Message deleted", map[string]any{
		"messageId":   messageID,
		"forEveryone": forEveryone,
	})
}

func (h *MessageHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req bulkDeleteRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ids, err := parseIDs("messageIds", req.MessageIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.messages.BulkDelete(r.Context(), userID, ids, req.ForEveryone)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Messages deleted", res)
}

func (h *MessageHandler) Forward(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	messageID, err := messageIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req forwardRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	targets, err := parseIDs("targetChatIds", req.TargetChatIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.messages.Forward(r.Context(), userID, messageID, targets)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Message forwarded", res)
}

func (h *MessageHandler) React(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	messageID, err := messageIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req reactRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	view, err := h.messages.React(r.Context(), userID, messageID, req.Emoji)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Reaction added", view)
}

func (h *MessageHandler) Unreact(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	messageID, err := messageIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := h.messages.Unreact(r.Context(), userID, messageID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Reaction removed", view)
}

func (h *MessageHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req markReadRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ids, err := parseIDs("messageIds", req.MessageIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.messages.MarkAsRead(r.Context(), userID, ids)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Messages marked as read", res)
}
