// Package bus мостит realtime-события между инстансами через redis pub/sub.
// В single-instance режиме не используется вовсе.
package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Abhi773925/compiler-design-sub002/internal/transport/ws"
)

const channelPrefix = "session:"

// envelope — то, что летит по redis-каналу. InstanceID отсекает собственные
// публикации, OriginConnID сохраняет no-self-echo сквозь инстансы.
type envelope struct {
	RoomID       string     `json:"roomId"`
	OriginConnID string     `json:"originConnId"`
	InstanceID   string     `json:"instanceId"`
	Msg          ws.Message `json:"msg"`
}

type RedisBus struct {
	rdb        *redis.Client
	instanceID string
}

func NewRedisBus(rdb *redis.Client) *RedisBus {
	return &RedisBus{rdb: rdb, instanceID: uuid.NewString()}
}

// Publish шлёт событие соседним инстансам. Локальный fanout уже сделан.
func (b *RedisBus) Publish(ctx context.Context, roomID, originConnID string, msg ws.Message) error {
	data, err := json.Marshal(envelope{
		RoomID:       roomID,
		OriginConnID: originConnID,
		InstanceID:   b.instanceID,
		Msg:          msg,
	})
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channelPrefix+roomID, data).Err()
}

// Run подписывается на все комнатные каналы и гонит чужие события в локальный
// хаб. Блокирует до отмены ctx.
func (b *RedisBus) Run(ctx context.Context, hub *ws.Hub) error {
	sub := b.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
				slog.Warn("bus: malformed envelope", "channel", m.Channel, "err", err)
				continue
			}
			if env.InstanceID == b.instanceID {
				continue // своё же эхо
			}
			roomID := env.RoomID
			if roomID == "" {
				roomID = strings.TrimPrefix(m.Channel, channelPrefix)
			}
			hub.Publish(roomID, env.OriginConnID, env.Msg)
		}
	}
}
