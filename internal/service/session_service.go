package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Abhi773925/compiler-design-sub002/internal/domain"
	"github.com/Abhi773925/compiler-design-sub002/internal/postgres"

	"github.com/google/uuid"
)

// SessionStore — контракт durable-хранилища (реализация: postgres.SessionRepository).
type SessionStore interface {
	Create(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, roomID string) (*domain.Session, error)
	UpdateFields(ctx context.Context, roomID string, patch postgres.SessionPatch) error
	UpsertParticipant(ctx context.Context, roomID string, p domain.Participant) error
	TouchParticipant(ctx context.Context, roomID, userID string, seen time.Time) error
	RemoveParticipant(ctx context.Context, roomID, userID string) error
	UpsertFile(ctx context.Context, roomID string, f domain.SharedFile) error
	SetFileContent(ctx context.Context, roomID, fileID, content string) error
	DeleteFile(ctx context.Context, roomID, fileID string) error
	AppendMessage(ctx context.Context, roomID string, m domain.ChatMessage) error
	Delete(ctx context.Context, roomID string) error
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.SessionSummary, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

// SessionService — lifecycle controller: создание, мутации канонического
// состояния и жатва протухших сессий.
type SessionService struct {
	store SessionStore
	now   func() time.Time
}

func NewSessionService(store SessionStore) *SessionService {
	return &SessionService{store: store, now: time.Now}
}

func (s *SessionService) Create(ctx context.Context, roomID string, creator domain.Creator, code, language string) (*domain.Session, error) {
	roomID = strings.TrimSpace(roomID)
	creator.Name = strings.TrimSpace(creator.Name)
	if roomID == "" {
		return nil, fmt.Errorf("%w: roomId is required", domain.ErrValidation)
	}
	if creator.Name == "" {
		return nil, fmt.Errorf("%w: creator name is required", domain.ErrValidation)
	}
	if creator.UserID == "" {
		creator.UserID = uuid.New().String()
	}

	sess := domain.NewSession(roomID, creator, code, language, s.now())
	if err := s.store.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *SessionService) Get(ctx context.Context, roomID string) (*domain.Session, error) {
	return s.store.Get(ctx, roomID)
}

func (s *SessionService) Update(ctx context.Context, roomID string, patch postgres.SessionPatch) error {
	return s.store.UpdateFields(ctx, roomID, patch)
}

func (s *SessionService) SetCode(ctx context.Context, roomID, code string) error {
	return s.store.UpdateFields(ctx, roomID, postgres.SessionPatch{Code: &code})
}

func (s *SessionService) SetLanguage(ctx context.Context, roomID, language string) error {
	language = strings.TrimSpace(language)
	if language == "" {
		return fmt.Errorf("%w: empty language", domain.ErrValidation)
	}
	return s.store.UpdateFields(ctx, roomID, postgres.SessionPatch{Language: &language})
}

func (s *SessionService) SetWhiteboard(ctx context.Context, roomID string, elements []domain.WhiteboardElement) error {
	if elements == nil {
		elements = []domain.WhiteboardElement{}
	}
	return s.store.UpdateFields(ctx, roomID, postgres.SessionPatch{Whiteboard: elements})
}

func (s *SessionService) UpsertFile(ctx context.Context, roomID string, f domain.SharedFile) error {
	if f.ID == "" || f.Name == "" {
		return fmt.Errorf("%w: file id and name are required", domain.ErrValidation)
	}
	if f.UploadedAt.IsZero() {
		f.UploadedAt = s.now()
	}
	return s.store.UpsertFile(ctx, roomID, f)
}

// SetFileContent перезаписывает содержимое одного файла, не трогая его
// метаданные. Файл должен существовать.
func (s *SessionService) SetFileContent(ctx context.Context, roomID, fileID, content string) error {
	if fileID == "" {
		return fmt.Errorf("%w: file id is required", domain.ErrValidation)
	}
	return s.store.SetFileContent(ctx, roomID, fileID, content)
}

func (s *SessionService) DeleteFile(ctx context.Context, roomID, fileID string) error {
	return s.store.DeleteFile(ctx, roomID, fileID)
}

func (s *SessionService) AppendMessage(ctx context.Context, roomID, userID, userName, text string) (domain.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ChatMessage{}, fmt.Errorf("%w: empty message", domain.ErrValidation)
	}
	m := domain.ChatMessage{
		ID:        uuid.New().String(),
		UserID:    userID,
		UserName:  userName,
		Message:   text,
		Timestamp: s.now(),
	}
	if err := s.store.AppendMessage(ctx, roomID, m); err != nil {
		return domain.ChatMessage{}, err
	}
	return m, nil
}

// ComposeMessage собирает сообщение (id, timestamp) без записи в store:
// realtime-канал рассылает его сразу, а персистит асинхронно.
func (s *SessionService) ComposeMessage(userID, userName, text string) (domain.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ChatMessage{}, fmt.Errorf("%w: empty message", domain.ErrValidation)
	}
	return domain.ChatMessage{
		ID:        uuid.New().String(),
		UserID:    userID,
		UserName:  userName,
		Message:   text,
		Timestamp: s.now(),
	}, nil
}

// PersistMessage дописывает уже собранное сообщение в историю комнаты.
func (s *SessionService) PersistMessage(ctx context.Context, roomID string, m domain.ChatMessage) error {
	return s.store.AppendMessage(ctx, roomID, m)
}

func (s *SessionService) Delete(ctx context.Context, roomID string) error {
	return s.store.Delete(ctx, roomID)
}

func (s *SessionService) ListByUser(ctx context.Context, userID string, limit int) ([]domain.SessionSummary, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}
	return s.store.ListByUser(ctx, userID, limit)
}

// SweepExpired удаляет все строки с истёкшим expires_at; вызывается фоновым
// воркером независимо от трафика запросов.
func (s *SessionService) SweepExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpired(ctx)
}
