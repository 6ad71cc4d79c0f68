package ws

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Abhi773925/compiler-design-sub002/internal/metrics"
)

// Conn — одно живое соединение участника. ID — транспортный идентификатор
// соединения; именно он, а не userId, служит origin-ом для no-self-echo.
type Conn interface {
	ID() string
	UserID() string
	Name() string
	RoomID() string
	Enqueue(msg Message) bool
	Close() error
}

type opKind int

const (
	opJoin opKind = iota
	opLeave
	opPublish
)

type roomOp struct {
	kind   opKind
	conn   Conn
	origin string // connection id, только для publish
	msg    Message
	reply  chan []RosterEntry // только для join
}

// room — single-writer actor: все membership- и fanout-операции одной комнаты
// сериализуются через inbox, разные комнаты не конкурируют друг с другом.
// Персист-очередь отдельная: одна горутина на комнату гарантирует порядок
// записей в store, не задерживая fanout.
type room struct {
	id      string
	inbox   chan roomOp
	persist chan func(context.Context)

	// состояние ниже принадлежит горутине актора
	conns  map[Conn]struct{}
	joined []string // userIds в порядке первого появления

	pending int // guarded by Hub.mu
}

func newRoom(id string) *room {
	return &room{
		id:      id,
		inbox:   make(chan roomOp, 256),
		persist: make(chan func(context.Context), 512),
		conns:   map[Conn]struct{}{},
	}
}

// Hub — реестр комнат процесса: roomId → живая комната. Комната создаётся
// лениво первым join-ом и умирает, когда пустеет.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*room

	persistTimeout time.Duration
}

func NewHub() *Hub {
	return &Hub{
		rooms:          map[string]*room{},
		persistTimeout: 10 * time.Second,
	}
}

// Join регистрирует соединение, возвращает пост-join ростер и рассылает его
// всем участникам комнаты, включая присоединившегося.
func (h *Hub) Join(c Conn) []RosterEntry {
	reply := make(chan []RosterEntry, 1)
	h.dispatch(c.RoomID(), roomOp{kind: opJoin, conn: c, reply: reply}, true)
	return <-reply
}

// Leave убирает соединение из живого ростера; закрытие уже отсутствующего
// соединения — no-op. Durable-список участников не трогается.
func (h *Hub) Leave(c Conn) {
	h.dispatch(c.RoomID(), roomOp{kind: opLeave, conn: c}, false)
}

// Publish фан-аутит событие всем соединениям комнаты, кроме origin-а.
func (h *Hub) Publish(roomID, originConnID string, msg Message) {
	h.dispatch(roomID, roomOp{kind: opPublish, origin: originConnID, msg: msg}, false)
}

// EnqueuePersist ставит отложенную запись в store в персист-очередь комнаты.
// Вызывается только из read-loop-а живого соединения этой комнаты, поэтому
// очередь гарантированно ещё открыта.
func (h *Hub) EnqueuePersist(roomID string, fn func(context.Context)) {
	h.mu.Lock()
	rm := h.rooms[roomID]
	h.mu.Unlock()
	if rm == nil {
		return
	}
	select {
	case rm.persist <- fn:
	default:
		metrics.PersistFailuresTotal.Inc()
		slog.Warn("persist queue full, write dropped", "room", roomID)
	}
}

// Rooms возвращает число живых комнат (для health/отладки).
func (h *Hub) Rooms() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

func (h *Hub) dispatch(roomID string, op roomOp, create bool) {
	h.mu.Lock()
	rm := h.rooms[roomID]
	if rm == nil {
		if !create {
			h.mu.Unlock()
			if op.reply != nil {
				op.reply <- nil
			}
			return
		}
		rm = newRoom(roomID)
		h.rooms[roomID] = rm
		go h.runRoom(rm)
		go h.runPersister(rm)
	}
	// pending не даёт актору умереть, пока op в пути
	rm.pending++
	h.mu.Unlock()
	rm.inbox <- op
}

func (h *Hub) runRoom(rm *room) {
	for op := range rm.inbox {
		rm.handle(op)

		h.mu.Lock()
		rm.pending--
		if rm.pending == 0 && len(rm.conns) == 0 {
			delete(h.rooms, rm.id)
			h.mu.Unlock()
			close(rm.persist) // персистер дорабатывает хвост очереди и выходит
			slog.Debug("room retired", "room", rm.id)
			return
		}
		h.mu.Unlock()
	}
}

func (h *Hub) runPersister(rm *room) {
	for fn := range rm.persist {
		ctx, cancel := context.WithTimeout(context.Background(), h.persistTimeout)
		fn(ctx)
		cancel()
	}
}

func (rm *room) handle(op roomOp) {
	switch op.kind {
	case opJoin:
		rm.conns[op.conn] = struct{}{}
		rm.noteIdentity(op.conn.UserID())
		metrics.WsConnections.Inc()
		roster := rm.roster()
		op.reply <- roster
		rm.broadcastRoster(roster)

	case opLeave:
		if _, ok := rm.conns[op.conn]; !ok {
			return // идемпотентность: повторный leave — no-op
		}
		delete(rm.conns, op.conn)
		metrics.WsConnections.Dec()
		if len(rm.conns) > 0 {
			rm.broadcastRoster(rm.roster())
		}

	case opPublish:
		metrics.WsEventsTotal.WithLabelValues(op.msg.Type).Inc()
		for c := range rm.conns {
			if c.ID() == op.origin {
				continue // no-self-echo: origin не получает собственное событие
			}
			if !c.Enqueue(op.msg) {
				metrics.WsDroppedTotal.Inc()
				slog.Warn("peer send buffer full, event dropped",
					"room", rm.id, "peer", c.UserID(), "type", op.msg.Type)
			}
		}
	}
}

func (rm *room) noteIdentity(userID string) {
	for _, id := range rm.joined {
		if id == userID {
			return
		}
	}
	rm.joined = append(rm.joined, userID)
}

// roster — множество различных identity с ≥1 живым соединением, в порядке
// первого появления в комнате. Две вкладки одного пользователя — одна запись.
func (rm *room) roster() []RosterEntry {
	byUser := map[string]*RosterEntry{}
	for c := range rm.conns {
		if e, ok := byUser[c.UserID()]; ok {
			e.Connections++
			continue
		}
		byUser[c.UserID()] = &RosterEntry{UserID: c.UserID(), Name: c.Name(), Connections: 1}
	}

	out := make([]RosterEntry, 0, len(byUser))
	for _, id := range rm.joined {
		if e, ok := byUser[id]; ok {
			out = append(out, *e)
			delete(byUser, id)
		}
	}
	// на случай identity вне joined-списка (не должно случаться)
	rest := make([]RosterEntry, 0, len(byUser))
	for _, e := range byUser {
		rest = append(rest, *e)
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].UserID < rest[j].UserID })
	return append(out, rest...)
}

// broadcastRoster шлёт ростер ВСЕМ соединениям: после join/leave каждый клиент
// видит именно пост-событийное состояние, без промежуточных срезов.
func (rm *room) broadcastRoster(roster []RosterEntry) {
	msg := Message{Type: TypeRoster, Payload: RosterPayload{RoomID: rm.id, Participants: roster}}
	for c := range rm.conns {
		if !c.Enqueue(msg) {
			metrics.WsDroppedTotal.Inc()
		}
	}
}
