package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/AnshRaj112/serenify-conversations/internal/identity"
	"github.com/AnshRaj112/serenify-conversations/internal/membership"
	"github.com/AnshRaj112/serenify-conversations/internal/models"
	"github.com/AnshRaj112/serenify-conversations/internal/realtime"
	"github.com/AnshRaj112/serenify-conversations/internal/store"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

// Now ticks one second per call so rows created in sequence sort deterministically.
func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recorder struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (r *recorder) Publish(_ context.Context, ev realtime.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

// countingChecker counts membership lookups and can be made to fail.
type countingChecker struct {
	inner membership.Checker
	mu    sync.Mutex
	calls map[primitive.ObjectID]int
	err   error
}

func (c *countingChecker) Check(ctx context.Context, chatType models.ChatType, chatID primitive.ObjectID, userID string) (models.Role, error) {
	c.mu.Lock()
	c.calls[chatID]++
	err := c.err
	c.mu.Unlock()
	if err != nil {
		return "", err
	}
	return c.inner.Check(ctx, chatType, chatID, userID)
}

type fixture struct {
	mem     *store.MemoryStore
	st      *store.Store
	events  *store.MemoryEventLog
	ids     *identity.Static
	pub     *recorder
	clock   *clock
	checker *countingChecker
	chats   *ChatService
	msgs    *MessageService
}

func newFixture(t *testing.T, opts ...func(*Deps)) *fixture {
	t.Helper()
	mem := store.NewMemoryStore()
	f := &fixture{
		mem:    mem,
		st:     mem.Store(),
		events: store.NewMemoryEventLog(),
		ids: identity.NewStatic(
			identity.Profile{ID: "alice", Username: "Alice"},
			identity.Profile{ID: "bob", Username: "Bob"},
			identity.Profile{ID: "carol", Username: "Carol"},
			identity.Profile{ID: "dave", Username: "Dave"},
			identity.Profile{ID: "erin", Username: "Erin"},
		),
		pub:   &recorder{},
		clock: &clock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)},
	}
	f.checker = &countingChecker{inner: membership.NewLocal(f.st.Chats), calls: map[primitive.ObjectID]int{}}

	deps := Deps{
		Store:      f.st,
		Events:     f.events,
		Identity:   f.ids,
		Members:    f.checker,
		Realtime:   f.pub,
		EditWindow: 15 * time.Minute,
		Now:        f.clock.Now,
	}
	for _, o := range opts {
		o(&deps)
	}
	f.chats = NewChatService(deps)
	f.msgs = NewMessageService(deps)
	return f
}

func testCtx() context.Context {
	return identity.WithCredential(context.Background(), "test-token")
}

func (f *fixture) group(t *testing.T, owner string, members ...string) *ChatView {
	t.Helper()
	view, err := f.chats.CreateGroupChat(testCtx(), owner, CreateGroupInput{Name: "Team", MemberIDs: members})
	require.NoError(t, err)
	return view
}

func (f *fixture) private(t *testing.T, a, b string) *ChatView {
	t.Helper()
	view, _, err := f.chats.CreatePrivateChat(testCtx(), a, b)
	require.NoError(t, err)
	return view
}

func (f *fixture) send(t *testing.T, sender string, chatID primitive.ObjectID, content string) *MessageView {
	t.Helper()
	msg, err := f.msgs.Send(testCtx(), sender, chatID, SendInput{Content: content})
	require.NoError(t, err)
	return msg
}

func (f *fixture) chat(t *testing.T, id primitive.ObjectID) *models.Chat {
	t.Helper()
	chat, err := f.st.Chats.FindChat(context.Background(), id)
	require.NoError(t, err)
	return chat
}

func (f *fixture) row(t *testing.T, chatID primitive.ObjectID, userID string) *models.ChatParticipant {
	t.Helper()
	row, err := f.st.Participants.FindParticipant(context.Background(), chatID, userID)
	require.NoError(t, err)
	return row
}

func entry(chat *models.Chat, userID string) *models.Participant {
	for i := len(chat.Participants) - 1; i >= 0; i-- {
		if chat.Participants[i].UserID == userID {
			return &chat.Participants[i]
		}
	}
	return nil
}
