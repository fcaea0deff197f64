package services

import (
	"context"
	"testing"

	"github.com/AnshRaj112/serenify-conversations/internal/models"
	"github.com/AnshRaj112/serenify-conversations/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	log, _ := test.NewNullLogger()
	return log
}

func TestReconcilerReplaysLostRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.group(t, "alice", "bob", "carol")

	// Simulate the projection half of the dual write being lost.
	_, err := f.st.Participants.DeleteByChat(ctx, g.ID)
	require.NoError(t, err)

	r := NewReconciler(f.st, f.events, quietLogger())
	rep, err := r.ProcessEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Events)
	assert.Equal(t, 3, rep.Created)

	rows, err := f.st.Participants.ListByChat(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	pending, err := f.events.Pending(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestReconcilerKeepsUserArchive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.group(t, "alice", "bob")

	archived := true
	_, err := f.chats.UpdateViewState(testCtx(), "bob", g.ID, models.ViewStateUpdate{IsArchived: &archived})
	require.NoError(t, err)

	rep, err := NewReconciler(f.st, f.events, quietLogger()).ProcessEvents(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.Created)
	assert.True(t, f.row(t, g.ID, "bob").IsArchived)
}

func TestReconcilerRemovesRowsOfDeletedChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.group(t, "alice", "bob")

	require.NoError(t, f.st.Chats.DeleteChat(ctx, g.ID, f.chat(t, g.ID).Version))
	require.NoError(t, f.events.Record(ctx, store.NewMembershipEvent(g.ID, "", store.EventChatDeleted)))

	rep, err := NewReconciler(f.st, f.events, quietLogger()).ProcessEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Deleted)

	rows, err := f.st.Participants.ListByChat(ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestReconcilerSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.group(t, "alice", "bob", "carol")
	p := f.private(t, "alice", "dave")

	_, err := f.st.Participants.DeleteByChat(ctx, p.ID)
	require.NoError(t, err)

	chat := f.chat(t, g.ID)
	next := chat.CloneParticipants()
	next[2].IsActive = false
	require.NoError(t, f.st.Chats.ReplaceParticipants(ctx, g.ID, chat.Version, next))

	r := NewReconciler(f.st, nil, quietLogger())
	rep, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Created)
	assert.Equal(t, 1, rep.Archived)
	assert.True(t, f.row(t, g.ID, "carol").IsArchived)
	f.row(t, p.ID, "dave")

	rep, err = r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, RepairReport{}, rep)
}
