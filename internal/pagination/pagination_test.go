package pagination

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestNewMetaTwentyThreeRows(t *testing.T) {
	p1 := NewMeta(Offset{Page: 1, Limit: 10}, 23)
	assert.True(t, p1.HasMore)
	assert.Equal(t, int64(13), p1.Remaining)

	p2 := NewMeta(Offset{Page: 2, Limit: 10}, 23)
	assert.True(t, p2.HasMore)
	assert.Equal(t, int64(3), p2.Remaining)

	p3 := NewMeta(Offset{Page: 3, Limit: 10}, 23)
	assert.False(t, p3.HasMore)
	assert.Equal(t, int64(0), p3.Remaining)
	assert.Equal(t, int64(3), p3.TotalPages)
}

func TestNewMetaEmpty(t *testing.T) {
	m := NewMeta(Offset{Page: 1, Limit: 20}, 0)
	assert.False(t, m.HasMore)
	assert.Equal(t, int64(0), m.TotalPages)
	assert.Equal(t, int64(0), m.Remaining)
}

func TestSkip(t *testing.T) {
	assert.Equal(t, int64(0), Offset{Page: 1, Limit: 10}.Skip())
	assert.Equal(t, int64(20), Offset{Page: 3, Limit: 10}.Skip())
}

func TestParseOffset(t *testing.T) {
	o, err := ParseOffset(url.Values{}, 20, 100)
	require.NoError(t, err)
	assert.Equal(t, Offset{Page: 1, Limit: 20}, o)

	o, err = ParseOffset(url.Values{"page": {"2"}, "limit": {"500"}}, 20, 100)
	require.NoError(t, err)
	assert.Equal(t, Offset{Page: 2, Limit: 100}, o)

	_, err = ParseOffset(url.Values{"page": {"0"}}, 20, 100)
	assert.Error(t, err)
	_, err = ParseOffset(url.Values{"limit": {"abc"}}, 20, 100)
	assert.Error(t, err)
}

func TestParseCursor(t *testing.T) {
	id := primitive.NewObjectID()

	c, err := ParseCursor(url.Values{})
	require.NoError(t, err)
	assert.False(t, c.IsSet())

	c, err = ParseCursor(url.Values{"before": {id.Hex()}})
	require.NoError(t, err)
	assert.Equal(t, DirectionBefore, c.Direction)
	assert.Equal(t, id, c.MessageID)

	c, err = ParseCursor(url.Values{"after": {id.Hex()}})
	require.NoError(t, err)
	assert.Equal(t, DirectionAfter, c.Direction)

	_, err = ParseCursor(url.Values{"before": {id.Hex()}, "after": {id.Hex()}})
	assert.Error(t, err)

	_, err = ParseCursor(url.Values{"before": {"not-an-id"}})
	assert.Error(t, err)
}
