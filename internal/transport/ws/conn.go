package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 1 << 20 // 1 MiB: whiteboard-снапшоты бывают большими
	outBufferSize  = 256
)

// wsConn — обёртка над gorilla-соединением: единственный writer (writePump),
// неблокирующая исходящая очередь с drop-on-full для медленных клиентов.
type wsConn struct {
	id     string
	userID string
	name   string
	roomID string

	ws  *websocket.Conn
	out chan Message

	closeOnce sync.Once
	closed    chan struct{}
}

func newWSConn(ws *websocket.Conn, roomID, userID, name string) *wsConn {
	return &wsConn{
		id:     uuid.NewString(),
		userID: userID,
		name:   name,
		roomID: roomID,
		ws:     ws,
		out:    make(chan Message, outBufferSize),
		closed: make(chan struct{}),
	}
}

func (c *wsConn) ID() string     { return c.id }
func (c *wsConn) UserID() string { return c.userID }
func (c *wsConn) Name() string   { return c.name }
func (c *wsConn) RoomID() string { return c.roomID }

// Enqueue кладёт событие в исходящую очередь; false — очередь переполнена
// или соединение уже закрыто, событие для этого пира потеряно.
func (c *wsConn) Enqueue(msg Message) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.out <- msg:
		return true
	default:
		return false
	}
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return c.ws.Close()
}

// writePump — единственная горутина, пишущая в сокет. Пинги держат соединение
// живым и попутно служат heartbeat-ом присутствия (pong-handler в server.go).
func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg := <-c.out:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				slog.Debug("ws write failed", "conn", c.id, "err", err)
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}
