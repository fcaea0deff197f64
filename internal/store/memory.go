package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/AnshRaj112/serenify-conversations/internal/apperr"
	"github.com/AnshRaj112/serenify-conversations/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore is an in-process backend for local development and tests.
// It honours the same contracts as the Mongo repositories.
type MemoryStore struct {
	mu           sync.RWMutex
	txMu         sync.Mutex
	chats        map[primitive.ObjectID]*models.Chat
	participants map[participantKey]*models.ChatParticipant
	messages     map[primitive.ObjectID]*models.Message
}

type participantKey struct {
	chatID primitive.ObjectID
	userID string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chats:        make(map[primitive.ObjectID]*models.Chat),
		participants: make(map[participantKey]*models.ChatParticipant),
		messages:     make(map[primitive.ObjectID]*models.Message),
	}
}

// Store exposes the memory backend through the repository bundle.
func (s *MemoryStore) Store() *Store {
	return &Store{Chats: s, Participants: s, Messages: s, Tx: s}
}

// WithTx serializes grouped writes against each other.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(ctx)
}

func cloneChat(c *models.Chat) *models.Chat {
	out := *c
	out.Participants = c.CloneParticipants()
	if c.GroupSettings != nil {
		gs := *c.GroupSettings
		out.GroupSettings = &gs
	}
	return &out
}

func cloneMessage(m *models.Message) *models.Message {
	out := *m
	out.Attachments = append([]models.Attachment(nil), m.Attachments...)
	out.DeletedFor = append([]string(nil), m.DeletedFor...)
	out.ReadBy = append([]models.ReadReceipt(nil), m.ReadBy...)
	out.Reactions = append([]models.Reaction(nil), m.Reactions...)
	return &out
}

// --- chats ---

func (s *MemoryStore) InsertChat(_ context.Context, chat *models.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chat.PairKey != "" {
		for _, c := range s.chats {
			if c.PairKey == chat.PairKey {
				return apperr.Conflict("Chat already exists")
			}
		}
	}
	if chat.ID.IsZero() {
		chat.ID = primitive.NewObjectID()
	}
	s.chats[chat.ID] = cloneChat(chat)
	return nil
}

func (s *MemoryStore) FindChat(_ context.Context, id primitive.ObjectID) (*models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chats[id]
	if !ok {
		return nil, apperr.NotFound("Chat", id.Hex())
	}
	return cloneChat(c), nil
}

func (s *MemoryStore) FindPrivateChat(_ context.Context, userA, userB string) (*models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.chats {
		if c.Type == models.ChatTypePrivate && c.PairKey == models.PrivatePairKey(userA, userB) {
			return cloneChat(c), nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) matchChats(q ChatQuery) []*models.Chat {
	ids := make(map[primitive.ObjectID]struct{}, len(q.IDs))
	for _, id := range q.IDs {
		ids[id] = struct{}{}
	}
	var out []*models.Chat
	for _, c := range s.chats {
		if _, ok := ids[c.ID]; !ok {
			continue
		}
		if _, ok := c.ActiveParticipant(q.UserID); !ok {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].ID.Hex() > out[j].ID.Hex()
		}
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out
}

func (s *MemoryStore) ListChats(_ context.Context, q ChatQuery) ([]models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := s.matchChats(q)
	out := make([]models.Chat, 0)
	for i := q.Skip; i < int64(len(matched)); i++ {
		if q.Limit > 0 && int64(len(out)) >= q.Limit {
			break
		}
		out = append(out, *cloneChat(matched[i]))
	}
	return out, nil
}

func (s *MemoryStore) CountChats(_ context.Context, q ChatQuery) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.matchChats(q))), nil
}

func (s *MemoryStore) ReplaceParticipants(_ context.Context, id primitive.ObjectID, expectedVersion int64, participants []models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[id]
	if !ok {
		return apperr.NotFound("Chat", id.Hex())
	}
	if c.Version != expectedVersion {
		return ErrVersionConflict
	}
	c.Participants = append([]models.Participant(nil), participants...)
	c.Version++
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) UpdateGroupInfo(_ context.Context, id primitive.ObjectID, info GroupInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[id]
	if !ok {
		return apperr.NotFound("Chat", id.Hex())
	}
	if info.Name != nil {
		c.GroupName = *info.Name
	}
	if info.Description != nil {
		c.GroupDescription = *info.Description
	}
	if info.Avatar != nil {
		c.GroupAvatar = *info.Avatar
	}
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) UpdateGroupSettings(_ context.Context, id primitive.ObjectID, settings models.GroupSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[id]
	if !ok {
		return apperr.NotFound("Chat", id.Hex())
	}
	c.GroupSettings = &settings
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) TouchLastMessage(_ context.Context, id, messageID primitive.ObjectID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[id]
	if !ok {
		return apperr.NotFound("Chat", id.Hex())
	}
	if !at.Before(c.LastActivity) {
		c.LastActivity = at
		mid := messageID
		c.LastMessage = &mid
	}
	return nil
}

func (s *MemoryStore) DeleteChat(_ context.Context, id primitive.ObjectID, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[id]
	if !ok {
		return apperr.NotFound("Chat", id.Hex())
	}
	if c.Version != expectedVersion {
		return ErrVersionConflict
	}
	delete(s.chats, id)
	return nil
}

func (s *MemoryStore) EachChat(ctx context.Context, fn func(*models.Chat) error) error {
	s.mu.RLock()
	snapshot := make([]*models.Chat, 0, len(s.chats))
	for _, c := range s.chats {
		snapshot = append(snapshot, cloneChat(c))
	}
	s.mu.RUnlock()
	for _, c := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

// --- participants ---

func (s *MemoryStore) Ensure(_ context.Context, chatID primitive.ObjectID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	key := participantKey{chatID, userID}
	if p, ok := s.participants[key]; ok {
		p.IsArchived = false
		p.UpdatedAt = now
		return nil
	}
	s.participants[key] = &models.ChatParticipant{
		ID:        primitive.NewObjectID(),
		ChatID:    chatID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

func (s *MemoryStore) Archive(_ context.Context, chatID primitive.ObjectID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[participantKey{chatID, userID}]
	if !ok {
		return apperr.NotFound("Participant", userID)
	}
	p.IsArchived = true
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) DeleteByChat(_ context.Context, chatID primitive.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k := range s.participants {
		if k.chatID == chatID {
			delete(s.participants, k)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) FindParticipant(_ context.Context, chatID primitive.ObjectID, userID string) (*models.ChatParticipant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[participantKey{chatID, userID}]
	if !ok {
		return nil, apperr.NotFound("Participant", userID)
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID string, archived bool) ([]models.ChatParticipant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ChatParticipant
	for k, p := range s.participants {
		if k.userID == userID && p.IsArchived == archived {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListByChat(_ context.Context, chatID primitive.ObjectID) ([]models.ChatParticipant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ChatParticipant
	for k, p := range s.participants {
		if k.chatID == chatID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *MemoryStore) UpdateViewState(_ context.Context, chatID primitive.ObjectID, userID string, upd models.ViewStateUpdate, now time.Time) (*models.ChatParticipant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[participantKey{chatID, userID}]
	if !ok {
		return nil, apperr.NotFound("Participant", userID)
	}
	if upd.IsPinned != nil {
		p.IsPinned = *upd.IsPinned
		if *upd.IsPinned {
			t := now
			p.PinnedAt = &t
		} else {
			p.PinnedAt = nil
		}
	}
	if upd.IsMuted != nil {
		p.IsMuted = *upd.IsMuted
		if !*upd.IsMuted {
			p.MutedUntil = nil
		}
	}
	if upd.MutedUntil != nil {
		t := *upd.MutedUntil
		p.MutedUntil = &t
	}
	if upd.IsArchived != nil {
		p.IsArchived = *upd.IsArchived
	}
	if upd.IsBlocked != nil {
		p.IsBlocked = *upd.IsBlocked
	}
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) IncrementUnread(_ context.Context, chatID primitive.ObjectID, userIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, uid := range userIDs {
		if p, ok := s.participants[participantKey{chatID, uid}]; ok {
			p.UnreadCount++
		}
	}
	return nil
}

func (s *MemoryStore) MarkChatRead(_ context.Context, chatID primitive.ObjectID, userID string, lastRead *primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[participantKey{chatID, userID}]
	if !ok {
		return apperr.NotFound("Participant", userID)
	}
	p.UnreadCount = 0
	if lastRead != nil {
		id := *lastRead
		p.LastReadMessageID = &id
	}
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) RecordRead(_ context.Context, chatID primitive.ObjectID, userID string, lastRead primitive.ObjectID, count int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[participantKey{chatID, userID}]
	if !ok {
		return nil
	}
	p.UnreadCount -= count
	if p.UnreadCount < 0 {
		p.UnreadCount = 0
	}
	id := lastRead
	p.LastReadMessageID = &id
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) UnreadTotal(_ context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for k, p := range s.participants {
		if k.userID == userID && !p.IsArchived {
			total += p.UnreadCount
		}
	}
	return total, nil
}

// --- messages ---

func (s *MemoryStore) InsertMessage(_ context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID.IsZero() {
		m.ID = primitive.NewObjectID()
	}
	s.messages[m.ID] = cloneMessage(m)
	return nil
}

func (s *MemoryStore) FindMessage(_ context.Context, id primitive.ObjectID) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, apperr.NotFound("Message", id.Hex())
	}
	return cloneMessage(m), nil
}

func (s *MemoryStore) FindMessages(_ context.Context, ids []primitive.ObjectID) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Message
	seen := make(map[primitive.ObjectID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if m, ok := s.messages[id]; ok {
			out = append(out, *cloneMessage(m))
		}
	}
	return out, nil
}

func (s *MemoryStore) matchMessages(q MessageQuery) []*models.Message {
	var out []*models.Message
	for _, m := range s.messages {
		if m.ChatID != q.ChatID {
			continue
		}
		if q.ViewerID != "" && m.HiddenFor(q.ViewerID) {
			continue
		}
		if q.CreatedBefore != nil && !m.CreatedAt.Before(*q.CreatedBefore) {
			continue
		}
		if q.CreatedAfter != nil && !m.CreatedAt.After(*q.CreatedAfter) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.CreatedAt.Equal(b.CreatedAt) {
			if q.Ascending {
				return a.ID.Hex() < b.ID.Hex()
			}
			return a.ID.Hex() > b.ID.Hex()
		}
		if q.Ascending {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return out
}

func (s *MemoryStore) ListMessages(_ context.Context, q MessageQuery) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := s.matchMessages(q)
	out := make([]models.Message, 0)
	for i := q.Skip; i < int64(len(matched)); i++ {
		if q.Limit > 0 && int64(len(out)) >= q.Limit {
			break
		}
		out = append(out, *cloneMessage(matched[i]))
	}
	return out, nil
}

func (s *MemoryStore) CountMessages(_ context.Context, q MessageQuery) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.matchMessages(q))), nil
}

func (s *MemoryStore) UpdateContent(_ context.Context, id primitive.ObjectID, content string, editedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok || m.IsDeleted {
		return apperr.NotFound("Message", id.Hex())
	}
	m.Content = content
	t := editedAt
	m.EditedAt = &t
	m.UpdatedAt = editedAt
	return nil
}

func (s *MemoryStore) HideForUser(_ context.Context, id primitive.ObjectID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return apperr.NotFound("Message", id.Hex())
	}
	if !m.HiddenFor(userID) {
		m.DeletedFor = append(m.DeletedFor, userID)
	}
	return nil
}

func (s *MemoryStore) Tombstone(_ context.Context, id primitive.ObjectID, deletedBy string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return apperr.NotFound("Message", id.Hex())
	}
	m.IsDeleted = true
	m.Content = ""
	m.Attachments = nil
	t := at
	m.DeletedAt = &t
	m.DeletedBy = deletedBy
	m.UpdatedAt = at
	return nil
}

func (s *MemoryStore) PutReaction(_ context.Context, id primitive.ObjectID, reaction models.Reaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok || m.IsDeleted {
		return apperr.NotFound("Message", id.Hex())
	}
	kept := m.Reactions[:0:0]
	for _, r := range m.Reactions {
		if r.UserID == reaction.UserID {
			if r.EmojiKey == reaction.EmojiKey {
				return apperr.Conflict("You already reacted with this emoji")
			}
			continue
		}
		kept = append(kept, r)
	}
	m.Reactions = append(kept, reaction)
	return nil
}

func (s *MemoryStore) RemoveReactions(_ context.Context, id primitive.ObjectID, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return 0, apperr.NotFound("Message", id.Hex())
	}
	kept := m.Reactions[:0:0]
	var removed int64
	for _, r := range m.Reactions {
		if r.UserID == userID {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	m.Reactions = kept
	return removed, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, ids []primitive.ObjectID, userID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range ids {
		m, ok := s.messages[id]
		if !ok || m.ReadByUser(userID) {
			continue
		}
		m.ReadBy = append(m.ReadBy, models.ReadReceipt{UserID: userID, ReadAt: at})
		n++
	}
	return n, nil
}
