package ws

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn копит всё, что хаб ему шлёт.
type fakeConn struct {
	id     string
	userID string
	name   string
	roomID string

	mu   sync.Mutex
	got  []Message
	full bool // имитация переполненного буфера
}

func newFakeConn(room, user, name string) *fakeConn {
	return &fakeConn{
		id:     user + "-" + fmt.Sprint(time.Now().UnixNano()),
		userID: user,
		name:   name,
		roomID: room,
	}
}

func (c *fakeConn) ID() string     { return c.id }
func (c *fakeConn) UserID() string { return c.userID }
func (c *fakeConn) Name() string   { return c.name }
func (c *fakeConn) RoomID() string { return c.roomID }
func (c *fakeConn) Close() error   { return nil }

func (c *fakeConn) Enqueue(msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return false
	}
	c.got = append(c.got, msg)
	return true
}

func (c *fakeConn) messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.got))
	copy(out, c.got)
	return out
}

func (c *fakeConn) ofType(typ string) []Message {
	var out []Message
	for _, m := range c.messages() {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestHub_JoinReturnsRoster(t *testing.T) {
	h := NewHub()
	a := newFakeConn("room-1", "alice", "Alice")
	b := newFakeConn("room-1", "bob", "Bob")

	roster := h.Join(a)
	require.Len(t, roster, 1)
	assert.Equal(t, "alice", roster[0].UserID)

	roster = h.Join(b)
	require.Len(t, roster, 2)
	// порядок первого появления
	assert.Equal(t, "alice", roster[0].UserID)
	assert.Equal(t, "bob", roster[1].UserID)

	// оба получили пост-join ростер
	waitFor(t, func() bool { return len(a.ofType(TypeRoster)) >= 2 })
	waitFor(t, func() bool { return len(b.ofType(TypeRoster)) >= 1 })
}

func TestHub_TwoTabsOneRosterEntry(t *testing.T) {
	h := NewHub()
	tab1 := newFakeConn("room-1", "alice", "Alice")
	tab2 := newFakeConn("room-1", "alice", "Alice")

	h.Join(tab1)
	roster := h.Join(tab2)

	require.Len(t, roster, 1)
	assert.Equal(t, 2, roster[0].Connections)

	// одна вкладка закрылась — identity всё ещё онлайн
	h.Leave(tab1)
	waitFor(t, func() bool {
		rosters := tab2.ofType(TypeRoster)
		if len(rosters) == 0 {
			return false
		}
		last := rosters[len(rosters)-1].Payload.(RosterPayload)
		return len(last.Participants) == 1 && last.Participants[0].Connections == 1
	})
}

func TestHub_NoSelfEcho(t *testing.T) {
	h := NewHub()
	origin := newFakeConn("room-1", "alice", "Alice")
	peer1 := newFakeConn("room-1", "bob", "Bob")
	peer2 := newFakeConn("room-1", "carol", "Carol")

	h.Join(origin)
	h.Join(peer1)
	h.Join(peer2)

	h.Publish("room-1", origin.ID(), Message{Type: TypeChat, Payload: ChatPayload{Message: "hi"}})

	waitFor(t, func() bool { return len(peer1.ofType(TypeChat)) == 1 })
	waitFor(t, func() bool { return len(peer2.ofType(TypeChat)) == 1 })
	assert.Empty(t, origin.ofType(TypeChat))
}

func TestHub_NoSelfEcho_SameUserOtherTabGetsIt(t *testing.T) {
	h := NewHub()
	tab1 := newFakeConn("room-1", "alice", "Alice")
	tab2 := newFakeConn("room-1", "alice", "Alice")
	h.Join(tab1)
	h.Join(tab2)

	// origin — соединение, а не identity: вторая вкладка того же пользователя
	// событие получает
	h.Publish("room-1", tab1.ID(), Message{Type: TypeCode, Payload: CodePayload{Content: "x"}})

	waitFor(t, func() bool { return len(tab2.ofType(TypeCode)) == 1 })
	assert.Empty(t, tab1.ofType(TypeCode))
}

func TestHub_SinglePeerRoom_PublishIsNoop(t *testing.T) {
	h := NewHub()
	only := newFakeConn("room-1", "alice", "Alice")
	h.Join(only)

	h.Publish("room-1", only.ID(), Message{Type: TypeChat, Payload: ChatPayload{Message: "echo?"}})

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, only.ofType(TypeChat))
}

func TestHub_FIFOPerOrigin(t *testing.T) {
	h := NewHub()
	origin := newFakeConn("room-1", "alice", "Alice")
	peer := newFakeConn("room-1", "bob", "Bob")
	h.Join(origin)
	h.Join(peer)

	const n = 100
	for i := 0; i < n; i++ {
		h.Publish("room-1", origin.ID(), Message{
			Type:    TypeChat,
			Payload: ChatPayload{Message: fmt.Sprintf("m-%03d", i)},
		})
	}

	waitFor(t, func() bool { return len(peer.ofType(TypeChat)) == n })
	for i, m := range peer.ofType(TypeChat) {
		require.Equal(t, fmt.Sprintf("m-%03d", i), m.Payload.(ChatPayload).Message)
	}
}

func TestHub_LeaveBroadcastsRoster(t *testing.T) {
	h := NewHub()
	a := newFakeConn("room-1", "alice", "Alice")
	b := newFakeConn("room-1", "bob", "Bob")
	h.Join(a)
	h.Join(b)

	h.Leave(a)

	waitFor(t, func() bool {
		rosters := b.ofType(TypeRoster)
		if len(rosters) == 0 {
			return false
		}
		last := rosters[len(rosters)-1].Payload.(RosterPayload)
		return len(last.Participants) == 1 && last.Participants[0].UserID == "bob"
	})
}

func TestHub_DoubleLeaveIsNoop(t *testing.T) {
	h := NewHub()
	a := newFakeConn("room-1", "alice", "Alice")
	b := newFakeConn("room-1", "bob", "Bob")
	h.Join(a)
	h.Join(b)

	h.Leave(a)
	h.Leave(a)

	waitFor(t, func() bool {
		rosters := b.ofType(TypeRoster)
		return len(rosters) > 0 &&
			len(rosters[len(rosters)-1].Payload.(RosterPayload).Participants) == 1
	})
}

func TestHub_RoomRetiresWhenEmpty(t *testing.T) {
	h := NewHub()
	a := newFakeConn("room-1", "alice", "Alice")
	h.Join(a)
	require.Equal(t, 1, h.Rooms())

	h.Leave(a)
	waitFor(t, func() bool { return h.Rooms() == 0 })

	// комната воскресает при следующем join
	b := newFakeConn("room-1", "bob", "Bob")
	roster := h.Join(b)
	require.Len(t, roster, 1)
	assert.Equal(t, "bob", roster[0].UserID)
}

func TestHub_SlowPeerDropsNotBlocks(t *testing.T) {
	h := NewHub()
	origin := newFakeConn("room-1", "alice", "Alice")
	slow := newFakeConn("room-1", "bob", "Bob")
	ok := newFakeConn("room-1", "carol", "Carol")
	h.Join(origin)
	h.Join(slow)
	h.Join(ok)

	slow.mu.Lock()
	slow.full = true
	slow.mu.Unlock()

	h.Publish("room-1", origin.ID(), Message{Type: TypeChat, Payload: ChatPayload{Message: "hi"}})

	// здоровый пир получает событие, несмотря на забитого соседа
	waitFor(t, func() bool { return len(ok.ofType(TypeChat)) == 1 })
	assert.Empty(t, slow.ofType(TypeChat))
}

func TestHub_ConcurrentJoins(t *testing.T) {
	h := NewHub()
	const n = 20
	conns := make([]*fakeConn, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		conns[i] = newFakeConn("room-1", fmt.Sprintf("user-%02d", i), "User")
		wg.Add(1)
		go func(c *fakeConn) {
			defer wg.Done()
			h.Join(c)
		}(conns[i])
	}
	wg.Wait()

	// каждый в итоге видит полный ростер
	for _, c := range conns {
		waitFor(t, func() bool {
			rosters := c.ofType(TypeRoster)
			return len(rosters) > 0 &&
				len(rosters[len(rosters)-1].Payload.(RosterPayload).Participants) == n
		})
	}
}

func TestHub_PersistQueueDrainsAfterRetire(t *testing.T) {
	h := NewHub()
	a := newFakeConn("room-1", "alice", "Alice")
	h.Join(a)

	done := make(chan struct{})
	h.EnqueuePersist("room-1", func(ctx context.Context) { close(done) })

	h.Leave(a)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("queued persist never ran")
	}
	waitFor(t, func() bool { return h.Rooms() == 0 })
}
