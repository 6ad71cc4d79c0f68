package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Abhi773925/compiler-design-sub002/internal/domain"
)

// PresenceService сводит durable-список участников с живым ростером.
// Присутствие живёт на уровне соединения, история участия — на уровне сессии:
// disconnect убирает только соединение, durable-запись трогает лишь явный leave.
type PresenceService struct {
	store SessionStore
	now   func() time.Time
}

func NewPresenceService(store SessionStore) *PresenceService {
	return &PresenceService{store: store, now: time.Now}
}

// Join освежает существующую запись участника (lastSeen/name) или дописывает
// новую с joinedAt = lastSeen = now.
func (s *PresenceService) Join(ctx context.Context, roomID, userID, name string) (domain.Participant, error) {
	name = strings.TrimSpace(name)
	if userID == "" || name == "" {
		return domain.Participant{}, fmt.Errorf("%w: userId and name are required", domain.ErrValidation)
	}
	now := s.now()
	p := domain.Participant{UserID: userID, Name: name, JoinedAt: now, LastSeen: now}
	if err := s.store.UpsertParticipant(ctx, roomID, p); err != nil {
		return domain.Participant{}, err
	}
	return p, nil
}

// Heartbeat — best-effort обновление lastSeen по pong/активности.
func (s *PresenceService) Heartbeat(ctx context.Context, roomID, userID string) error {
	return s.store.TouchParticipant(ctx, roomID, userID, s.now())
}

// Leave — явный выход: выпиливает участника из durable-списка.
func (s *PresenceService) Leave(ctx context.Context, roomID, userID string) error {
	return s.store.RemoveParticipant(ctx, roomID, userID)
}

// Participants возвращает durable-список, отсортированный по joinedAt.
func (s *PresenceService) Participants(ctx context.Context, roomID string) ([]domain.Participant, error) {
	sess, err := s.store.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return sess.SortedParticipants(), nil
}
