package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/AnshRaj112/serenify-conversations/internal/apperr"
	"github.com/AnshRaj112/serenify-conversations/internal/logger"
	"github.com/AnshRaj112/serenify-conversations/internal/models"
	"github.com/AnshRaj112/serenify-conversations/internal/pagination"
	"github.com/AnshRaj112/serenify-conversations/internal/permissions"
	"github.com/AnshRaj112/serenify-conversations/internal/realtime"
	"github.com/AnshRaj112/serenify-conversations/internal/store"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"
)

const (
	maxContentLength   = 10000
	maxBulkDelete      = 100
	maxForwardTargets  = 20
	forwardConcurrency = 4
)

type MessageService struct {
	deps Deps
}

func NewMessageService(deps Deps) *MessageService {
	deps.withDefaults()
	return &MessageService{deps: deps}
}

// SendInput is a new message. ReplyTo is optional.
type SendInput struct {
	MessageType models.MessageType
	Content     string
	Attachments []models.Attachment
	ReplyTo     *primitive.ObjectID
}

// MessagePage is one page of a chat feed, newest first. Exactly one of
// Pagination or Cursor is set.
type MessagePage struct {
	Messages   []MessageView          `json:"messages"`
	Pagination *pagination.Meta       `json:"pagination,omitempty"`
	Cursor     *pagination.CursorMeta `json:"cursor,omitempty"`
}

// BulkDeleteResult counts the outcome of a batch delete.
type BulkDeleteResult struct {
	Deleted             int `json:"deleted"`
	SkippedNoPermission int `json:"skippedNoPermission"`
	NotFound            int `json:"notFound"`
}

type ForwardStatus string

const (
	ForwardSucceeded ForwardStatus = "forwarded"
	ForwardFailed    ForwardStatus = "failed"
)

// ForwardTargetResult is the outcome for one target chat.
type ForwardTargetResult struct {
	ChatID    primitive.ObjectID  `json:"chatId"`
	Status    ForwardStatus       `json:"status"`
	MessageID *primitive.ObjectID `json:"messageId,omitempty"`
	Error     string              `json:"error,omitempty"`
}

type ForwardResult struct {
	ForwardedCount int                   `json:"forwardedCount"`
	Results        []ForwardTargetResult `json:"results"`
}

// member loads the chat and confirms userID is an active participant through the
// membership checker.
func (s *MessageService) member(ctx context.Context, chatID primitive.ObjectID, userID string) (*models.Chat, models.Role, error) {
	chat, err := s.deps.Store.Chats.FindChat(ctx, chatID)
	if err != nil {
		return nil, "", err
	}
	role, err := s.deps.Members.Check(ctx, chat.Type, chatID, userID)
	if err != nil {
		return nil, "", err
	}
	return chat, role, nil
}

// authorizeSend applies the group send setting, or the block flags of a private chat.
func (s *MessageService) authorizeSend(ctx context.Context, chat *models.Chat, role models.Role, userID string) error {
	if chat.IsGroup() {
		if !permissions.Allowed(permissions.Request{
			Action:        permissions.ActionSendMessage,
			RequesterID:   userID,
			RequesterRole: role,
			Settings:      chat.Settings(),
		}) {
			return apperr.Forbidden(permissions.DenialMessage(permissions.ActionSendMessage))
		}
		return nil
	}
	rows, err := s.deps.Store.Participants.ListByChat(ctx, chat.ID)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if r.IsBlocked {
			return apperr.Forbidden("This chat is blocked")
		}
	}
	return nil
}

func validateBody(t models.MessageType, content string, attachments []models.Attachment) error {
	if !t.IsValid() {
		return apperr.Validation("messageType", "must be one of: text, image, video, audio, document, emoji")
	}
	if t.CarriesContent() {
		if content == "" {
			return apperr.Validation("content", "Message content is required")
		}
		if len(attachments) > 0 {
			return apperr.Validation("attachments", "Attachments are not allowed for this message type")
		}
		if utf8.RuneCountInString(content) > maxContentLength {
			return apperr.Validation("content", "Message content is too long")
		}
		return nil
	}
	if len(attachments) == 0 {
		return apperr.Validation("attachments", "At least one attachment is required for this message type")
	}
	if content != "" {
		return apperr.Validation("content", "Content is not allowed for this message type")
	}
	return nil
}

// Send creates a message after confirming the sender's membership and identity.
func (s *MessageService) Send(ctx context.Context, senderID string, chatID primitive.ObjectID, in SendInput) (*MessageView, error) {
	if in.MessageType == "" {
		in.MessageType = models.MessageTypeText
	}
	in.Content = strings.TrimSpace(in.Content)
	if err := validateBody(in.MessageType, in.Content, in.Attachments); err != nil {
		return nil, err
	}

	chat, role, err := s.member(ctx, chatID, senderID)
	if err != nil {
		return nil, err
	}
	if err := s.verifySender(ctx, senderID); err != nil {
		return nil, err
	}
	if err := s.authorizeSend(ctx, chat, role, senderID); err != nil {
		return nil, err
	}

	now := s.deps.Now()
	msg := &models.Message{
		ChatID:      chatID,
		SenderID:    senderID,
		MessageType: in.MessageType,
		Content:     in.Content,
		Attachments: in.Attachments,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.ReplyTo != nil {
		original, err := s.deps.Store.Messages.FindMessage(ctx, *in.ReplyTo)
		if err != nil {
			return nil, err
		}
		if original.ChatID != chatID || original.HiddenFor(senderID) {
			return nil, apperr.NotFound("Message", in.ReplyTo.Hex())
		}
		if original.IsDeleted {
			return nil, apperr.Validation("replyTo", "Cannot reply to a deleted message")
		}
		msg.ReplyTo = original.Preview()
	}

	if err := s.deliver(ctx, chat, msg); err != nil {
		return nil, err
	}
	return s.messageView(ctx, msg), nil
}

func (s *MessageService) verifySender(ctx context.Context, senderID string) error {
	verified, err := s.deps.Identity.Verify(ctx, []string{senderID})
	if err != nil {
		return err
	}
	if _, ok := verified[senderID]; !ok {
		return apperr.NotFound("User", senderID)
	}
	return nil
}

// deliver persists msg, advances the chat's activity, bumps unread counters for the
// other active participants and publishes the event.
func (s *MessageService) deliver(ctx context.Context, chat *models.Chat, msg *models.Message) error {
	var others []string
	for _, id := range chat.ActiveUserIDs() {
		if id != msg.SenderID {
			others = append(others, id)
		}
	}

	err := s.deps.Store.Tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.deps.Store.Messages.InsertMessage(ctx, msg); err != nil {
			return err
		}
		if err := s.deps.Store.Chats.TouchLastMessage(ctx, chat.ID, msg.ID, msg.CreatedAt); err != nil {
			return err
		}
		if len(others) == 0 {
			return nil
		}
		return s.deps.Store.Participants.IncrementUnread(ctx, chat.ID, others)
	})
	if err != nil {
		return err
	}

	publish(ctx, s.deps.Realtime, realtime.Event{
		Type:      realtime.EventMessageCreated,
		ChatID:    chat.ID.Hex(),
		UserID:    msg.SenderID,
		Data:      msg,
		Timestamp: msg.CreatedAt,
	})
	return nil
}

func (s *MessageService) messageView(ctx context.Context, msg *models.Message) *MessageView {
	return newMessageView(msg, resolve(ctx, s.deps.Identity, messageUserIDs(msg)))
}

// List returns the caller's view of a chat feed. A cursor takes the id-based path,
// otherwise the page is offset based.
func (s *MessageService) List(ctx context.Context, userID string, chatID primitive.ObjectID, page pagination.Offset, cursor pagination.Cursor) (*MessagePage, error) {
	if _, _, err := s.member(ctx, chatID, userID); err != nil {
		return nil, err
	}

	var (
		msgs []models.Message
		out  MessagePage
	)
	if cursor.IsSet() {
		ref, err := s.deps.Store.Messages.FindMessage(ctx, cursor.MessageID)
		if err != nil {
			return nil, err
		}
		if ref.ChatID != chatID {
			return nil, apperr.NotFound("Message", cursor.MessageID.Hex())
		}
		q := store.MessageQuery{ChatID: chatID, ViewerID: userID, Limit: int64(page.Limit) + 1}
		if cursor.Direction == pagination.DirectionBefore {
			q.CreatedBefore = &ref.CreatedAt
		} else {
			q.CreatedAfter = &ref.CreatedAt
			q.Ascending = true
		}
		msgs, err = s.deps.Store.Messages.ListMessages(ctx, q)
		if err != nil {
			return nil, err
		}
		meta := &pagination.CursorMeta{Limit: page.Limit, HasMore: len(msgs) > page.Limit}
		if meta.HasMore {
			msgs = msgs[:page.Limit]
		}
		if q.Ascending {
			for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
				msgs[i], msgs[j] = msgs[j], msgs[i]
			}
		}
		if len(msgs) > 0 {
			meta.NextBefore = msgs[len(msgs)-1].ID.Hex()
			meta.NextAfter = msgs[0].ID.Hex()
		}
		out.Cursor = meta
	} else {
		q := store.MessageQuery{ChatID: chatID, ViewerID: userID}
		total, err := s.deps.Store.Messages.CountMessages(ctx, q)
		if err != nil {
			return nil, err
		}
		q.Skip, q.Limit = page.Skip(), int64(page.Limit)
		msgs, err = s.deps.Store.Messages.ListMessages(ctx, q)
		if err != nil {
			return nil, err
		}
		meta := pagination.NewMeta(page, total)
		out.Pagination = &meta
	}

	ptrs := make([]*models.Message, len(msgs))
	for i := range msgs {
		ptrs[i] = &msgs[i]
	}
	profs := resolve(ctx, s.deps.Identity, messageUserIDs(ptrs...))
	out.Messages = make([]MessageView, 0, len(msgs))
	for _, m := range ptrs {
		out.Messages = append(out.Messages, *newMessageView(m, profs))
	}
	return &out, nil
}

// visible loads a message the caller may see: an active participant of its chat who
// has not hidden it.
func (s *MessageService) visible(ctx context.Context, userID string, messageID primitive.ObjectID) (*models.Message, *models.Chat, models.Role, error) {
	msg, err := s.deps.Store.Messages.FindMessage(ctx, messageID)
	if err != nil {
		return nil, nil, "", err
	}
	chat, role, err := s.member(ctx, msg.ChatID, userID)
	if err != nil {
		return nil, nil, "", err
	}
	if msg.HiddenFor(userID) {
		return nil, nil, "", apperr.NotFound("Message", messageID.Hex())
	}
	return msg, chat, role, nil
}

// Get returns one message.
func (s *MessageService) Get(ctx context.Context, userID string, messageID primitive.ObjectID) (*MessageView, error) {
	msg, _, _, err := s.visible(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	return s.messageView(ctx, msg), nil
}

// Edit replaces the content of the caller's own text or emoji message.
func (s *MessageService) Edit(ctx context.Context, userID string, messageID primitive.ObjectID, content string) (*MessageView, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Validation("content", "Message content is required")
	}
	if utf8.RuneCountInString(content) > maxContentLength {
		return nil, apperr.Validation("content", "Message content is too long")
	}

	msg, _, _, err := s.visible(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != userID {
		return nil, apperr.Forbidden("You can only edit your own messages")
	}
	if msg.IsDeleted {
		return nil, apperr.Validation("messageId", "Cannot edit a deleted message")
	}
	if !msg.MessageType.CarriesContent() {
		return nil, apperr.Validation("messageType", "Only text messages can be edited")
	}
	now := s.deps.Now()
	if w := s.deps.EditWindow; w > 0 && now.Sub(msg.CreatedAt) > w {
		return nil, apperr.Validation("messageId", "Message can no longer be edited")
	}

	if err := s.deps.Store.Messages.UpdateContent(ctx, messageID, content, now); err != nil {
		if apperr.IsNotFound(err) {
			return nil, apperr.Validation("messageId", "Cannot edit a deleted message")
		}
		return nil, err
	}
	msg.Content = content
	msg.EditedAt = &now
	msg.UpdatedAt = now

	publish(ctx, s.deps.Realtime, realtime.Event{Type: realtime.EventMessageEdited, ChatID: msg.ChatID.Hex(), UserID: userID, Data: msg, Timestamp: now})
	return s.messageView(ctx, msg), nil
}

// canDeleteForEveryone allows the sender, even after leaving the chat, or an admin/owner
// of the chat. For anyone else a failed role lookup denies.
func (s *MessageService) canDeleteForEveryone(msg *models.Message, userID string, role models.Role, lookupErr error) bool {
	if msg.SenderID == userID {
		return true
	}
	if lookupErr != nil {
		return false
	}
	return permissions.Allowed(permissions.Request{
		Action:          permissions.ActionDeleteForEveryone,
		RequesterID:     userID,
		RequesterRole:   role,
		MessageSenderID: msg.SenderID,
	})
}

// Delete hides the message for the caller, or tombstones it for everyone.
func (s *MessageService) Delete(ctx context.Context, userID string, messageID primitive.ObjectID, forEveryone bool) error {
	msg, err := s.deps.Store.Messages.FindMessage(ctx, messageID)
	if err != nil {
		return err
	}
	chat, err := s.deps.Store.Chats.FindChat(ctx, msg.ChatID)
	if err != nil {
		return err
	}
	role, lookupErr := s.deps.Members.Check(ctx, chat.Type, chat.ID, userID)
	if apperr.IsNotFound(lookupErr) {
		return lookupErr
	}

	if !forEveryone {
		if lookupErr != nil {
			return lookupErr
		}
		if msg.HiddenFor(userID) {
			return nil
		}
		return s.deps.Store.Messages.HideForUser(ctx, messageID, userID)
	}

	if !s.canDeleteForEveryone(msg, userID, role, lookupErr) {
		if lookupErr != nil {
			logger.FromContext(ctx).WithError(lookupErr).WithField("messageId", messageID.Hex()).Warn("Role lookup failed, denying delete for everyone")
		}
		return apperr.Forbidden(permissions.DenialMessage(permissions.ActionDeleteForEveryone))
	}
	if msg.IsDeleted {
		return nil
	}
	return s.tombstone(ctx, msg, userID)
}

func (s *MessageService) tombstone(ctx context.Context, msg *models.Message, userID string) error {
	now := s.deps.Now()
	if err := s.deps.Store.Messages.Tombstone(ctx, msg.ID, userID, now); err != nil {
		return err
	}
	publish(ctx, s.deps.Realtime, realtime.Event{
		Type:      realtime.EventMessageDeleted,
		ChatID:    msg.ChatID.Hex(),
		UserID:    userID,
		Data:      map[string]string{"messageId": msg.ID.Hex()},
		Timestamp: now,
	})
	return nil
}

type roleLookup struct {
	role models.Role
	err  error
}

// BulkDelete applies Delete to each id. The role lookup runs once per chat.
func (s *MessageService) BulkDelete(ctx context.Context, userID string, ids []primitive.ObjectID, forEveryone bool) (*BulkDeleteResult, error) {
	if len(ids) == 0 {
		return nil, apperr.Validation("messageIds", "at least one message id is required")
	}
	if len(ids) > maxBulkDelete {
		return nil, apperr.Validation("messageIds", "too many messages in one request")
	}

	roles := make(map[primitive.ObjectID]roleLookup)
	lookup := func(chatID primitive.ObjectID) roleLookup {
		if r, ok := roles[chatID]; ok {
			return r
		}
		var r roleLookup
		chat, err := s.deps.Store.Chats.FindChat(ctx, chatID)
		if err != nil {
			r.err = err
		} else {
			r.role, r.err = s.deps.Members.Check(ctx, chat.Type, chatID, userID)
		}
		roles[chatID] = r
		return r
	}

	res := &BulkDeleteResult{}
	seen := make(map[primitive.ObjectID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		msg, err := s.deps.Store.Messages.FindMessage(ctx, id)
		if apperr.IsNotFound(err) {
			res.NotFound++
			continue
		}
		if err != nil {
			return nil, err
		}
		r := lookup(msg.ChatID)
		if apperr.IsNotFound(r.err) {
			res.NotFound++
			continue
		}

		if !forEveryone {
			if r.err != nil {
				res.SkippedNoPermission++
				continue
			}
			if !msg.HiddenFor(userID) {
				if err := s.deps.Store.Messages.HideForUser(ctx, id, userID); err != nil {
					return nil, err
				}
			}
			res.Deleted++
			continue
		}

		if !s.canDeleteForEveryone(msg, userID, r.role, r.err) {
			res.SkippedNoPermission++
			continue
		}
		if !msg.IsDeleted {
			if err := s.tombstone(ctx, msg, userID); err != nil {
				return nil, err
			}
		}
		res.Deleted++
	}
	return res, nil
}

// Forward copies a message into each target chat the caller may send to. Failures are
// reported per target.
func (s *MessageService) Forward(ctx context.Context, userID string, messageID primitive.ObjectID, targets []primitive.ObjectID) (*ForwardResult, error) {
	seen := make(map[primitive.ObjectID]struct{}, len(targets))
	unique := make([]primitive.ObjectID, 0, len(targets))
	for _, t := range targets {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		unique = append(unique, t)
	}
	if len(unique) == 0 {
		return nil, apperr.Validation("targetChatIds", "at least one target chat is required")
	}
	if len(unique) > maxForwardTargets {
		return nil, apperr.Validation("targetChatIds", "too many target chats")
	}

	src, _, _, err := s.visible(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	if src.IsDeleted {
		return nil, apperr.Validation("messageId", "Cannot forward a deleted message")
	}
	if err := s.verifySender(ctx, userID); err != nil {
		return nil, err
	}

	origin := src.ForwardedFrom
	if origin == nil {
		origin = &models.ForwardInfo{OriginalMessageID: src.ID, OriginalSender: src.SenderID}
	}

	results := make([]ForwardTargetResult, len(unique))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(forwardConcurrency)
	for i, chatID := range unique {
		g.Go(func() error {
			results[i] = ForwardTargetResult{ChatID: chatID, Status: ForwardSucceeded}
			id, err := s.forwardOne(gctx, userID, chatID, src, *origin)
			if err != nil {
				_, msg := apperr.Status(err)
				results[i].Status = ForwardFailed
				results[i].Error = msg
				logger.FromContext(ctx).WithError(err).WithField("chatId", chatID.Hex()).Debug("Forward target skipped")
				return nil
			}
			results[i].MessageID = &id
			return nil
		})
	}
	_ = g.Wait()

	out := &ForwardResult{Results: results}
	for _, r := range results {
		if r.Status == ForwardSucceeded {
			out.ForwardedCount++
		}
	}
	return out, nil
}

func (s *MessageService) forwardOne(ctx context.Context, userID string, chatID primitive.ObjectID, src *models.Message, origin models.ForwardInfo) (primitive.ObjectID, error) {
	chat, role, err := s.member(ctx, chatID, userID)
	if err != nil {
		return primitive.NilObjectID, err
	}
	if err := s.authorizeSend(ctx, chat, role, userID); err != nil {
		return primitive.NilObjectID, err
	}

	now := s.deps.Now()
	origin.ForwardedAt = now
	msg := &models.Message{
		ChatID:        chatID,
		SenderID:      userID,
		MessageType:   src.MessageType,
		Content:       src.Content,
		Attachments:   append([]models.Attachment(nil), src.Attachments...),
		ForwardedFrom: &origin,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.deliver(ctx, chat, msg); err != nil {
		return primitive.NilObjectID, err
	}
	return msg.ID, nil
}
