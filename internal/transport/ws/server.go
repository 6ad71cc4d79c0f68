package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Abhi773925/compiler-design-sub002/internal/domain"
	"github.com/Abhi773925/compiler-design-sub002/internal/metrics"
)

// SessionOps — срез SessionService, нужный realtime-каналу.
type SessionOps interface {
	Get(ctx context.Context, roomID string) (*domain.Session, error)
	ComposeMessage(userID, userName, text string) (domain.ChatMessage, error)
	PersistMessage(ctx context.Context, roomID string, m domain.ChatMessage) error
	SetCode(ctx context.Context, roomID, code string) error
	SetLanguage(ctx context.Context, roomID, language string) error
	SetWhiteboard(ctx context.Context, roomID string, elements []domain.WhiteboardElement) error
	UpsertFile(ctx context.Context, roomID string, f domain.SharedFile) error
	SetFileContent(ctx context.Context, roomID, fileID, content string) error
	DeleteFile(ctx context.Context, roomID, fileID string) error
}

type PresenceOps interface {
	Join(ctx context.Context, roomID, userID, name string) (domain.Participant, error)
	Heartbeat(ctx context.Context, roomID, userID string) error
	Leave(ctx context.Context, roomID, userID string) error
}

// Publisher — опциональный межпроцессный шлюз (redis pub/sub): события уходят
// и локальным пирам, и соседним инстансам.
type Publisher interface {
	Publish(ctx context.Context, roomID, originConnID string, msg Message) error
}

type Server struct {
	hub      *Hub
	sessions SessionOps
	presence PresenceOps
	bus      Publisher // nil — single-instance режим

	upgrader websocket.Upgrader
}

func NewServer(hub *Hub, sessions SessionOps, presence PresenceOps, bus Publisher) *Server {
	return &Server{
		hub:      hub,
		sessions: sessions,
		presence: presence,
		bus:      bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// CORS отрабатывает HTTP-слой, сюда доходят уже допущенные origin-ы
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// HandleWS: GET /ws/sessions/{id}?userId=&name=
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	userID := r.URL.Query().Get("userId")
	name := r.URL.Query().Get("name")
	if userID == "" {
		userID = uuid.NewString()
	}
	if name == "" {
		name = "Anonymous"
	}

	// комната должна существовать и быть живой до апгрейда
	if _, err := s.sessions.Get(r.Context(), roomID); err != nil {
		switch {
		case errors.Is(err, domain.ErrSessionNotFound):
			http.Error(w, "session not found", http.StatusNotFound)
		case errors.Is(err, domain.ErrSessionExpired):
			http.Error(w, "session expired", http.StatusGone)
		default:
			slog.Error("ws preflight failed", "room", roomID, "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	if _, err := s.presence.Join(r.Context(), roomID, userID, name); err != nil {
		slog.Error("presence join failed", "room", roomID, "user", userID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	sock, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "room", roomID, "err", err)
		return
	}

	c := newWSConn(sock, roomID, userID, name)
	sock.SetReadLimit(maxMessageSize)
	sock.SetReadDeadline(time.Now().Add(pongWait))
	sock.SetPongHandler(func(string) error {
		sock.SetReadDeadline(time.Now().Add(pongWait))
		s.hub.EnqueuePersist(roomID, func(ctx context.Context) {
			if err := s.presence.Heartbeat(ctx, roomID, userID); err != nil {
				slog.Debug("heartbeat skipped", "room", roomID, "user", userID, "err", err)
			}
		})
		return nil
	})

	go c.writePump()
	s.hub.Join(c)
	slog.Info("ws connected", "room", roomID, "user", userID, "conn", c.ID())

	s.readLoop(c)

	s.hub.Leave(c)
	c.Close()
	// разрыв соединения — не выход: durable-участник остаётся до явного leave
	slog.Info("ws disconnected", "room", roomID, "user", userID, "conn", c.ID())
}

func (s *Server) readLoop(c *wsConn) {
	for {
		var env struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := c.ws.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("ws read failed", "conn", c.id, "err", err)
			}
			return
		}
		if s.handleEvent(c, env.Type, env.Payload) {
			return
		}
	}
}

// handleEvent обрабатывает одно входящее событие; true — соединение пора
// закрывать (явный leave).
func (s *Server) handleEvent(c *wsConn, typ string, raw json.RawMessage) bool {
	switch typ {
	case TypeChat:
		var p ChatPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			s.sendError(c, "malformed chat payload")
			return false
		}
		m, err := s.sessions.ComposeMessage(c.userID, c.name, p.Message)
		if err != nil {
			s.sendError(c, "empty message")
			return false
		}
		s.publish(c, Message{Type: TypeChat, Payload: ChatPayload{
			RoomID:   c.roomID,
			UserID:   m.UserID,
			UserName: m.UserName,
			Message:  m.Message,
			MsgID:    m.ID,
			TSUnix:   m.Timestamp.Unix(),
		}})
		s.persist(c.roomID, "chat", func(ctx context.Context) error {
			return s.sessions.PersistMessage(ctx, c.roomID, m)
		})

	case TypeCode:
		var p CodePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			s.sendError(c, "malformed code payload")
			return false
		}
		p.RoomID, p.OriginUserID = c.roomID, c.userID
		s.publish(c, Message{Type: TypeCode, Payload: p})
		s.persist(c.roomID, "code", func(ctx context.Context) error {
			if p.FileID != "" {
				return s.sessions.SetFileContent(ctx, c.roomID, p.FileID, p.Content)
			}
			return s.sessions.SetCode(ctx, c.roomID, p.Content)
		})

	case TypeLanguage:
		var p LanguagePayload
		if err := json.Unmarshal(raw, &p); err != nil || p.Language == "" {
			s.sendError(c, "malformed language payload")
			return false
		}
		p.RoomID, p.OriginUserID = c.roomID, c.userID
		s.publish(c, Message{Type: TypeLanguage, Payload: p})
		s.persist(c.roomID, "language", func(ctx context.Context) error {
			return s.sessions.SetLanguage(ctx, c.roomID, p.Language)
		})

	case TypeFile:
		var p FilePayload
		if err := json.Unmarshal(raw, &p); err != nil || p.File.ID == "" || p.File.Name == "" {
			s.sendError(c, "malformed file payload")
			return false
		}
		p.RoomID, p.OriginUserID = c.roomID, c.userID
		if p.File.UploadedBy == "" {
			p.File.UploadedBy = c.userID
			p.File.UploaderName = c.name
		}
		s.publish(c, Message{Type: TypeFile, Payload: p})
		f := p.File
		s.persist(c.roomID, "file", func(ctx context.Context) error {
			return s.sessions.UpsertFile(ctx, c.roomID, f)
		})

	case TypeFileDelete:
		var p FileDeletePayload
		if err := json.Unmarshal(raw, &p); err != nil || p.FileID == "" {
			s.sendError(c, "malformed file_delete payload")
			return false
		}
		p.RoomID, p.OriginUserID = c.roomID, c.userID
		s.publish(c, Message{Type: TypeFileDelete, Payload: p})
		s.persist(c.roomID, "file_delete", func(ctx context.Context) error {
			return s.sessions.DeleteFile(ctx, c.roomID, p.FileID)
		})

	case TypeWhiteboard:
		var p WhiteboardPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			s.sendError(c, "malformed whiteboard payload")
			return false
		}
		p.RoomID, p.OriginUserID = c.roomID, c.userID
		s.publish(c, Message{Type: TypeWhiteboard, Payload: p})
		elements := p.Elements
		s.persist(c.roomID, "whiteboard", func(ctx context.Context) error {
			return s.sessions.SetWhiteboard(ctx, c.roomID, elements)
		})

	case TypeLeave:
		// явный выход: убираем durable-участника, затем рвём соединение
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.presence.Leave(ctx, c.roomID, c.userID); err != nil {
			slog.Warn("leave persist failed", "room", c.roomID, "user", c.userID, "err", err)
		}
		cancel()
		return true

	default:
		s.sendError(c, "unknown event type: "+typ)
	}
	return false
}

// publish фан-аутит событие локальным пирам (кроме origin-а) и, если настроен
// шлюз, соседним инстансам.
func (s *Server) publish(c *wsConn, msg Message) {
	s.hub.Publish(c.roomID, c.id, msg)
	if s.bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := s.bus.Publish(ctx, c.roomID, c.id, msg); err != nil {
			slog.Warn("bus publish failed", "room", c.roomID, "type", msg.Type, "err", err)
		}
		cancel()
	}
}

// persist ставит best-effort запись в очередь комнаты: ошибка логируется,
// уже разосланное событие не отзывается.
func (s *Server) persist(roomID, what string, fn func(ctx context.Context) error) {
	s.hub.EnqueuePersist(roomID, func(ctx context.Context) {
		if err := fn(ctx); err != nil {
			metrics.PersistFailuresTotal.Inc()
			slog.Warn("persist failed", "room", roomID, "event", what, "err", err)
		}
	})
}

func (s *Server) sendError(c *wsConn, text string) {
	c.Enqueue(Message{Type: TypeError, Payload: ErrorPayload{Message: text}})
}
