package routes

import (
	"net/http"

	"github.com/AnshRaj112/serenify-conversations/internal/handlers"
	"github.com/AnshRaj112/serenify-conversations/internal/middleware"
	"github.com/AnshRaj112/serenify-conversations/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers bundles what the router mounts.
type Handlers struct {
	Chats    *handlers.ChatHandler
	Messages *handlers.MessageHandler
	Socket   *handlers.SocketHandler
}

// Guards run in front of every authenticated route.
type Guards struct {
	Caller    func(http.Handler) http.Handler
	RateLimit *middleware.RateLimiter
}

func SetupRoutes(r *chi.Mux, h Handlers, g Guards) {
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(g.Caller)
		if g.RateLimit != nil {
			r.Use(g.RateLimit.Handler)
		}

		// Membership lookups used by the realtime relay and peer instances
		r.Get("/api/private-chat/{chatId}", h.Chats.Membership(models.ChatTypePrivate))
		r.Get("/api/group-chat/{chatId}", h.Chats.Membership(models.ChatTypeGroup))

		r.Route("/api/chats", func(r chi.Router) {
			r.Get("/", h.Chats.List)
			r.Post("/private", h.Chats.CreatePrivate)
			r.Post("/group", h.Chats.CreateGroup)
			r.Get("/unread", h.Chats.Unread)

			r.Route("/{chatId}", func(r chi.Router) {
				r.Get("/", h.Chats.Get)
				r.Delete("/", h.Chats.Delete)
				r.Post("/leave", h.Chats.Leave)
				r.Post("/read", h.Chats.MarkRead)
				r.Patch("/view-state", h.Chats.UpdateViewState)
				r.Patch("/group", h.Chats.UpdateGroupInfo)
				r.Patch("/settings", h.Chats.UpdateSettings)

				r.Post("/participants", h.Chats.AddParticipants)
				r.Delete("/participants/{userId}", h.Chats.RemoveParticipant)
				r.Patch("/participants/{userId}/role", h.Chats.ChangeRole)

				r.Get("/messages", h.Messages.List)
				r.Post("/messages", h.Messages.Send)
			})
		})

		r.Route("/api/messages", func(r chi.Router) {
			r.Post("/read", h.Messages.MarkAsRead)
			r.Post("/bulk-delete", h.Messages.BulkDelete)

			r.Route("/{messageId}", func(r chi.Router) {
				r.Get("/", h.Messages.Get)
				r.Patch("/", h.Messages.Edit)
				r.Delete("/", h.Messages.Delete)
				r.Post("/forward", h.Messages.Forward)
				r.Post("/reactions", h.Messages.React)
				r.Delete("/reactions", h.Messages.Unreact)
			})
		})

		if h.Socket != nil {
			r.Get("/ws", h.Socket.Serve)
		}
	})
}
