package services

import (
	"net/http"
	"testing"

	"github.com/AnshRaj112/serenify-conversations/internal/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestReactRejectsDuplicateEmoji(t *testing.T) {
	f := newFixture(t)
	g := f.group(t, "alice", "bob")
	msg := f.send(t, "alice", g.ID, "ship it")

	view, err := f.msgs.React(testCtx(), "bob", msg.ID, "👍")
	require.NoError(t, err)
	require.Len(t, view.Reactions, 1)
	assert.Equal(t, "Bob", view.Reactions[0].User.Username)

	_, err = f.msgs.React(testCtx(), "bob", msg.ID, " 👍 ")
	assert.Equal(t, http.StatusBadRequest, status(err))

	view, err = f.msgs.React(testCtx(), "bob", msg.ID, "🎉")
	require.NoError(t, err)
	require.Len(t, view.Reactions, 1)
	assert.Equal(t, "🎉", view.Reactions[0].Emoji)

	_, err = f.msgs.React(testCtx(), "alice", msg.ID, "ok")
	require.NoError(t, err)
	_, err = f.msgs.React(testCtx(), "alice", msg.ID, "OK")
	assert.Equal(t, http.StatusBadRequest, status(err))

	_, err = f.msgs.React(testCtx(), "alice", msg.ID, "")
	assert.Equal(t, http.StatusBadRequest, status(err))
	_, err = f.msgs.React(testCtx(), "carol", msg.ID, "👀")
	assert.Equal(t, http.StatusForbidden, status(err))

	assert.Equal(t, 3, f.pub.count(realtime.EventReactionUpdated))
}

func TestUnreactWithoutReactionIsNoop(t *testing.T) {
	f := newFixture(t)
	g := f.group(t, "alice", "bob")
	msg := f.send(t, "alice", g.ID, "hi")

	view, err := f.msgs.Unreact(testCtx(), "bob", msg.ID)
	require.NoError(t, err)
	assert.Empty(t, view.Reactions)
	assert.Zero(t, f.pub.count(realtime.EventReactionUpdated))

	_, err = f.msgs.React(testCtx(), "bob", msg.ID, "❤️")
	require.NoError(t, err)
	view, err = f.msgs.Unreact(testCtx(), "bob", msg.ID)
	require.NoError(t, err)
	assert.Empty(t, view.Reactions)
}

func TestReactToDeletedMessage(t *testing.T) {
	f := newFixture(t)
	g := f.group(t, "alice", "bob")
	msg := f.send(t, "alice", g.ID, "hi")
	require.NoError(t, f.msgs.Delete(testCtx(), "alice", msg.ID, true))

	_, err := f.msgs.React(testCtx(), "bob", msg.ID, "👍")
	assert.Equal(t, http.StatusBadRequest, status(err))
}

func TestMarkAsReadIsIdempotent(t *testing.T) {
	f := newFixture(t)
	g := f.group(t, "alice", "bob")
	m1 := f.send(t, "alice", g.ID, "one")
	m2 := f.send(t, "alice", g.ID, "two")
	ids := []primitive.ObjectID{m1.ID, m2.ID}
	assert.EqualValues(t, 2, f.row(t, g.ID, "bob").UnreadCount)

	res, err := f.msgs.MarkAsRead(testCtx(), "bob", ids)
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Marked)

	res, err = f.msgs.MarkAsRead(testCtx(), "bob", ids)
	require.NoError(t, err)
	assert.EqualValues(t, 0, res.Marked)

	for _, id := range ids {
		stored, err := f.st.Messages.FindMessage(testCtx(), id)
		require.NoError(t, err)
		require.Len(t, stored.ReadBy, 1)
		assert.Equal(t, "bob", stored.ReadBy[0].UserID)
	}

	row := f.row(t, g.ID, "bob")
	assert.Zero(t, row.UnreadCount)
	require.NotNil(t, row.LastReadMessageID)
	assert.Equal(t, m2.ID, *row.LastReadMessageID)
	assert.Equal(t, 1, f.pub.count(realtime.EventMessagesRead))
}

func TestMarkAsReadSkipsOwnAndForeign(t *testing.T) {
	f := newFixture(t)
	g := f.group(t, "alice", "bob")
	msg := f.send(t, "alice", g.ID, "mine")

	res, err := f.msgs.MarkAsRead(testCtx(), "alice", []primitive.ObjectID{msg.ID})
	require.NoError(t, err)
	assert.Zero(t, res.Marked)

	res, err = f.msgs.MarkAsRead(testCtx(), "dave", []primitive.ObjectID{msg.ID, primitive.NewObjectID()})
	require.NoError(t, err)
	assert.Zero(t, res.Marked)

	_, err = f.msgs.MarkAsRead(testCtx(), "bob", nil)
	assert.Equal(t, http.StatusBadRequest, status(err))
}

func TestMarkAsReadSkipsDeletedAndHidden(t *testing.T) {
	f := newFixture(t)
	g := f.group(t, "alice", "bob")
	gone := f.send(t, "alice", g.ID, "gone")
	hidden := f.send(t, "alice", g.ID, "hidden")
	visible := f.send(t, "alice", g.ID, "visible")

	require.NoError(t, f.msgs.Delete(testCtx(), "alice", gone.ID, true))
	require.NoError(t, f.msgs.Delete(testCtx(), "bob", hidden.ID, false))

	res, err := f.msgs.MarkAsRead(testCtx(), "bob", []primitive.ObjectID{gone.ID, hidden.ID, visible.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Marked)

	res, err = f.msgs.MarkAsRead(testCtx(), "bob", []primitive.ObjectID{visible.ID})
	require.NoError(t, err)
	assert.Zero(t, res.Marked)
}
