package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PostgresEventLog persists membership events in the membership_events table.
type PostgresEventLog struct {
	db *sql.DB
}

func NewPostgresEventLog(db *sql.DB) *PostgresEventLog {
	return &PostgresEventLog{db: db}
}

func (l *PostgresEventLog) Record(ctx context.Context, ev MembershipEvent) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO membership_events (id, chat_id, user_id, kind, occurred_at) VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, ev.ChatID.Hex(), ev.UserID, string(ev.Kind), ev.OccurredAt,
	)
	return err
}

func (l *PostgresEventLog) Pending(ctx context.Context, limit int) ([]MembershipEvent, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, chat_id, user_id, kind, occurred_at FROM membership_events
		 WHERE applied_at IS NULL ORDER BY occurred_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MembershipEvent
	for rows.Next() {
		var (
			ev     MembershipEvent
			chatID string
			kind   string
			at     time.Time
		)
		if err := rows.Scan(&ev.ID, &chatID, &ev.UserID, &kind, &at); err != nil {
			return nil, err
		}
		oid, err := primitive.ObjectIDFromHex(chatID)
		if err != nil {
			continue
		}
		ev.ChatID = oid
		ev.Kind = MembershipEventKind(kind)
		ev.OccurredAt = at.UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (l *PostgresEventLog) MarkApplied(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}
	_, err := l.db.ExecContext(ctx,
		`UPDATE membership_events SET applied_at = NOW() WHERE id = ANY($1::uuid[])`,
		pq.Array(raw))
	return err
}
