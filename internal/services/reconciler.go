package services

import (
	"context"
	"time"

	"github.com/AnshRaj112/serenify-conversations/internal/apperr"
	"github.com/AnshRaj112/serenify-conversations/internal/metrics"
	"github.com/AnshRaj112/serenify-conversations/internal/models"
	"github.com/AnshRaj112/serenify-conversations/internal/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const reconcileBatch = 500

// RepairReport counts participant rows touched by a reconciliation pass.
type RepairReport struct {
	Events   int `json:"events"`
	Created  int `json:"created"`
	Archived int `json:"archived"`
	Deleted  int `json:"deleted"`
}

func (r *RepairReport) add(o RepairReport) {
	r.Events += o.Events
	r.Created += o.Created
	r.Archived += o.Archived
	r.Deleted += o.Deleted
}

// Reconciler brings the participant projection back in line with chat membership.
// The chat document always wins.
type Reconciler struct {
	store  *store.Store
	events store.EventLog
	log    *logrus.Logger
}

func NewReconciler(st *store.Store, events store.EventLog, log *logrus.Logger) *Reconciler {
	if events == nil {
		events = store.NewMemoryEventLog()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Reconciler{store: st, events: events, log: log}
}

// ProcessEvents replays pending membership events against current chat state.
func (r *Reconciler) ProcessEvents(ctx context.Context) (RepairReport, error) {
	var report RepairReport
	for {
		pending, err := r.events.Pending(ctx, reconcileBatch)
		if err != nil {
			return report, err
		}
		if len(pending) == 0 {
			return report, nil
		}

		applied := make([]uuid.UUID, 0, len(pending))
		for _, ev := range pending {
			rep, err := r.apply(ctx, ev)
			if err != nil {
				r.log.WithError(err).WithField("eventId", ev.ID).WithField("chatId", ev.ChatID.Hex()).Warn("Membership event not applied")
				continue
			}
			report.add(rep)
			applied = append(applied, ev.ID)
		}
		report.Events += len(applied)
		if len(applied) == 0 {
			return report, nil
		}
		if err := r.events.MarkApplied(ctx, applied); err != nil {
			return report, err
		}
		if len(pending) < reconcileBatch {
			return report, nil
		}
	}
}

func (r *Reconciler) apply(ctx context.Context, ev store.MembershipEvent) (RepairReport, error) {
	var rep RepairReport
	chat, err := r.store.Chats.FindChat(ctx, ev.ChatID)
	if apperr.IsNotFound(err) || ev.Kind == store.EventChatDeleted {
		n, err := r.store.Participants.DeleteByChat(ctx, ev.ChatID)
		rep.Deleted = int(n)
		r.count("deleted", rep.Deleted)
		return rep, err
	}
	if err != nil {
		return rep, err
	}

	row, err := r.store.Participants.FindParticipant(ctx, ev.ChatID, ev.UserID)
	if err != nil && !apperr.IsNotFound(err) {
		return rep, err
	}
	_, active := chat.ActiveParticipant(ev.UserID)

	switch {
	case active && row == nil:
		rep.Created, err = 1, r.store.Participants.Ensure(ctx, ev.ChatID, ev.UserID)
		r.count("created", 1)
	// A row archived before the add event is stale. One archived afterwards is the
	// user's own choice and stays.
	case active && ev.Kind == store.EventParticipantAdded && row.IsArchived && row.UpdatedAt.Before(ev.OccurredAt):
		rep.Created, err = 1, r.store.Participants.Ensure(ctx, ev.ChatID, ev.UserID)
		r.count("created", 1)
	case !active && row != nil && !row.IsArchived:
		rep.Archived, err = 1, r.store.Participants.Archive(ctx, ev.ChatID, ev.UserID)
		r.count("archived", 1)
	}
	return rep, err
}

// Sweep walks every chat and repairs rows regardless of the event log.
func (r *Reconciler) Sweep(ctx context.Context) (RepairReport, error) {
	var report RepairReport
	err := r.store.Chats.EachChat(ctx, func(chat *models.Chat) error {
		rep, err := r.sweepChat(ctx, chat)
		report.add(rep)
		return err
	})
	return report, err
}

func (r *Reconciler) sweepChat(ctx context.Context, chat *models.Chat) (RepairReport, error) {
	var rep RepairReport
	rows, err := r.store.Participants.ListByChat(ctx, chat.ID)
	if err != nil {
		return rep, err
	}
	have := make(map[string]models.ChatParticipant, len(rows))
	for _, row := range rows {
		have[row.UserID] = row
	}

	for _, id := range chat.ActiveUserIDs() {
		if _, ok := have[id]; ok {
			continue
		}
		if err := r.store.Participants.Ensure(ctx, chat.ID, id); err != nil {
			return rep, err
		}
		rep.Created++
	}
	for id, row := range have {
		if _, active := chat.ActiveParticipant(id); active || row.IsArchived {
			continue
		}
		if err := r.store.Participants.Archive(ctx, chat.ID, id); err != nil {
			return rep, err
		}
		rep.Archived++
	}

	if rep.Created > 0 || rep.Archived > 0 {
		r.log.WithFields(logrus.Fields{
			"chatId":   chat.ID.Hex(),
			"created":  rep.Created,
			"archived": rep.Archived,
		}).Info("Participant projection repaired")
	}
	r.count("created", rep.Created)
	r.count("archived", rep.Archived)
	return rep, nil
}

func (r *Reconciler) count(action string, n int) {
	if n > 0 {
		metrics.MembershipRepairsTotal.WithLabelValues(action).Add(float64(n))
	}
}

// Run processes events every interval and sweeps every sweepEvery-th tick, until ctx ends.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration, sweepEvery int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for tick := 1; ; tick++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		rep, err := r.ProcessEvents(ctx)
		if err != nil {
			r.log.WithError(err).Error("Membership event replay failed")
		} else if rep.Events > 0 {
			r.log.WithField("events", rep.Events).Debug("Membership events replayed")
		}

		if sweepEvery > 0 && tick%sweepEvery == 0 {
			if _, err := r.Sweep(ctx); err != nil {
				r.log.WithError(err).Error("Membership sweep failed")
			}
		}
	}
}
