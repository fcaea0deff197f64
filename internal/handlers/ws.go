package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/AnshRaj112/serenify-conversations/internal/logger"
	"github.com/AnshRaj112/serenify-conversations/internal/metrics"
	"github.com/AnshRaj112/serenify-conversations/internal/realtime"
	"github.com/AnshRaj112/serenify-conversations/internal/services"
	"github.com/gorilla/websocket"
)

const (
	wsReadLimit    = 8 * 1024
	wsPongWait     = 90 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteWait    = 10 * time.Second
)

// clientFrame is what a socket client may send. Only typing signals are accepted;
// everything else goes through the REST surface.
type clientFrame struct {
	Type string `json:"type"`
}

type SocketHandler struct {
	chats    *services.ChatService
	hub      *realtime.Hub
	pub      realtime.Publisher
	upgrader websocket.Upgrader
}

func NewSocketHandler(chats *services.ChatService, hub *realtime.Hub, pub realtime.Publisher, allowedOrigins []string) *SocketHandler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	return &SocketHandler{
		chats: chats,
		hub:   hub,
		pub:   pub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
	}
}

// Serve binds one connection to the chat named by ?chatId= after checking the
// caller is an active participant.
func (h *SocketHandler) Serve(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	chatID, err := services.ParseObjectID("chatId", r.URL.Query().Get("chatId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.chats.GetChat(r.Context(), userID, chatID); err != nil {
		writeError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	log := logger.FromContext(r.Context()).WithField("chatId", chatID.Hex())
	metrics.RealtimeClients.Inc()
	defer metrics.RealtimeClients.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, unsubscribe := h.hub.Subscribe(chatID.Hex())
	defer unsubscribe()

	go h.writeLoop(ctx, conn, events, cancel)

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Debug("Socket closed")
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		switch frame.Type {
		case realtime.EventTypingStart, realtime.EventTypingStop:
			err := h.pub.Publish(ctx, realtime.Event{
				Type:      frame.Type,
				ChatID:    chatID.Hex(),
				UserID:    userID,
				Timestamp: time.Now().UTC(),
			})
			if err != nil {
				log.WithError(err).Warn("Failed to publish typing event")
			}
		}
	}
}

func (h *SocketHandler) writeLoop(ctx context.Context, conn *websocket.Conn, events <-chan realtime.Event, cancel context.CancelFunc) {
	defer cancel()
	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				_ = conn.Close()
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}
