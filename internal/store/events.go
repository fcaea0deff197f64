package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MembershipEventKind string

const (
	EventParticipantAdded   MembershipEventKind = "participant_added"
	EventParticipantRemoved MembershipEventKind = "participant_removed"
	EventChatDeleted        MembershipEventKind = "chat_deleted"
)

// MembershipEvent is recorded after every membership mutation so the reconciler can
// repair the participant projection if the second half of a dual write was lost.
type MembershipEvent struct {
	ID         uuid.UUID
	ChatID     primitive.ObjectID
	UserID     string
	Kind       MembershipEventKind
	OccurredAt time.Time
}

func NewMembershipEvent(chatID primitive.ObjectID, userID string, kind MembershipEventKind) MembershipEvent {
	return MembershipEvent{
		ID:         uuid.New(),
		ChatID:     chatID,
		UserID:     userID,
		Kind:       kind,
		OccurredAt: time.Now().UTC(),
	}
}

type EventLog interface {
	Record(ctx context.Context, ev MembershipEvent) error
	Pending(ctx context.Context, limit int) ([]MembershipEvent, error)
	MarkApplied(ctx context.Context, ids []uuid.UUID) error
}

// DefaultMemoryEventCapacity bounds the in-process log. Once full the oldest events are
// dropped; the periodic sweep still repairs what they would have.
const DefaultMemoryEventCapacity = 10000

// MemoryEventLog keeps events in process. Used when no Postgres is configured.
type MemoryEventLog struct {
	mu       sync.Mutex
	pending  []MembershipEvent
	capacity int
	dropped  int
}

func NewMemoryEventLog() *MemoryEventLog {
	return &MemoryEventLog{capacity: DefaultMemoryEventCapacity}
}

func (l *MemoryEventLog) Record(_ context.Context, ev MembershipEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.capacity > 0 && len(l.pending) >= l.capacity {
		over := len(l.pending) - l.capacity + 1
		l.pending = append(l.pending[:0], l.pending[over:]...)
		l.dropped += over
	}
	l.pending = append(l.pending, ev)
	return nil
}

// Dropped reports how many unapplied events were discarded to stay within capacity.
func (l *MemoryEventLog) Dropped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

func (l *MemoryEventLog) Pending(_ context.Context, limit int) ([]MembershipEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.pending)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]MembershipEvent, n)
	copy(out, l.pending[:n])
	return out, nil
}

func (l *MemoryEventLog) MarkApplied(_ context.Context, ids []uuid.UUID) error {
	done := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		done[id] = struct{}{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.pending[:0]
	for _, ev := range l.pending {
		if _, ok := done[ev.ID]; !ok {
			kept = append(kept, ev)
		}
	}
	l.pending = kept
	return nil
}
