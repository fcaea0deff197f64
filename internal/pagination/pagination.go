package pagination

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/AnshRaj112/serenify-conversations/internal/apperr"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Offset is a page/limit request. Page starts at 1.
type Offset struct {
	Page  int
	Limit int
}

// Skip is the number of rows before this page.
func (o Offset) Skip() int64 {
	return int64((o.Page - 1) * o.Limit)
}

// Meta is the paging block returned with every offset-paged list.
type Meta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"totalPages"`
	HasMore    bool  `json:"hasMore"`
	Remaining  int64 `json:"remaining"`
}

// NewMeta computes hasMore, remaining and totalPages for a page of total rows.
func NewMeta(o Offset, total int64) Meta {
	if total < 0 {
		total = 0
	}
	consumed := int64(o.Page) * int64(o.Limit)
	remaining := total - consumed
	if remaining < 0 {
		remaining = 0
	}
	var totalPages int64
	if o.Limit > 0 {
		totalPages = (total + int64(o.Limit) - 1) / int64(o.Limit)
	}
	return Meta{
		Page:       o.Page,
		Limit:      o.Limit,
		Total:      total,
		TotalPages: totalPages,
		HasMore:    consumed < total,
		Remaining:  remaining,
	}
}

// ParseOffset reads page and limit. Missing values take defaults; a limit above max is capped.
func ParseOffset(q url.Values, defaultLimit, maxLimit int) (Offset, error) {
	o := Offset{Page: 1, Limit: defaultLimit}
	if s := strings.TrimSpace(q.Get("page")); s != "" {
		page, err := strconv.Atoi(s)
		if err != nil || page < 1 {
			return o, apperr.Validation("page", "must be a positive integer")
		}
		o.Page = page
	}
	if s := strings.TrimSpace(q.Get("limit")); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 1 {
			return o, apperr.Validation("limit", "must be a positive integer")
		}
		o.Limit = limit
	}
	if o.Limit > maxLimit {
		o.Limit = maxLimit
	}
	return o, nil
}

// Direction tells which side of the reference message a cursor page reads.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionBefore
	DirectionAfter
)

// Cursor is an id-based page reference for message feeds.
type Cursor struct {
	Direction Direction
	MessageID primitive.ObjectID
}

func (c Cursor) IsSet() bool {
	return c.Direction != DirectionNone
}

// ParseCursor reads before/after. Supplying both is rejected rather than guessing precedence.
func ParseCursor(q url.Values) (Cursor, error) {
	before := strings.TrimSpace(q.Get("before"))
	after := strings.TrimSpace(q.Get("after"))
	if before != "" && after != "" {
		return Cursor{}, apperr.Validation("cursor", "use either before or after, not both")
	}
	raw, dir, field := before, DirectionBefore, "before"
	if after != "" {
		raw, dir, field = after, DirectionAfter, "after"
	}
	if raw == "" {
		return Cursor{}, nil
	}
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return Cursor{}, apperr.Validation(field, "invalid message id")
	}
	return Cursor{Direction: dir, MessageID: id}, nil
}

// CursorMeta is the paging block for cursor pages.
type CursorMeta struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"hasMore"`
	NextBefore string `json:"nextBefore,omitempty"`
	NextAfter  string `json:"nextAfter,omitempty"`
}
