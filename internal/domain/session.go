package domain

import (
	"sort"
	"time"
)

const (
	// RetentionWindow — фиксированное окно жизни сессии с момента создания.
	// Активность его не продлевает.
	RetentionWindow = 7 * 24 * time.Hour

	DefaultLanguage = "javascript"
	DefaultCode     = "// Start coding together...\n"
)

type Creator struct {
	Name   string `json:"name"`
	UserID string `json:"userId,omitempty"`
}

type Participant struct {
	UserID   string    `json:"userId"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
	LastSeen time.Time `json:"lastSeen"`
}

type ChatMessage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type SharedFile struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Content      string    `json:"content"`
	Mime         string    `json:"mime"`
	Size         int64     `json:"size"`
	UploadedBy   string    `json:"uploadedBy"`
	UploaderName string    `json:"uploaderName"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

// Session — один durable документ на комнату. Participants и Files держим
// map-ами по userId/fileId, чтобы upsert не плодил дубликатов; наружу
// участники отдаются отсортированными по joinedAt.
type Session struct {
	RoomID       string                 `json:"roomId"`
	Creator      Creator                `json:"creator"`
	Participants map[string]Participant `json:"participants"`
	Code         string                 `json:"code"`
	Language     string                 `json:"language"`
	Messages     []ChatMessage          `json:"messages"`
	Files        map[string]SharedFile  `json:"files"`
	Whiteboard   []WhiteboardElement    `json:"whiteboardElements"`
	LastActivity time.Time              `json:"lastActivity"`
	CreatedAt    time.Time              `json:"createdAt"`
	ExpiresAt    time.Time              `json:"expiresAt"`
}

// WhiteboardElement — непрозрачный примитив рисования; сервер его не
// интерпретирует, последовательность заменяется целиком.
type WhiteboardElement map[string]any

func NewSession(roomID string, creator Creator, code, language string, now time.Time) *Session {
	if code == "" {
		code = DefaultCode
	}
	if language == "" {
		language = DefaultLanguage
	}
	s := &Session{
		RoomID:       roomID,
		Creator:      creator,
		Participants: map[string]Participant{},
		Code:         code,
		Language:     language,
		Messages:     []ChatMessage{},
		Files:        map[string]SharedFile{},
		Whiteboard:   []WhiteboardElement{},
		LastActivity: now,
		CreatedAt:    now,
		ExpiresAt:    now.Add(RetentionWindow),
	}
	if creator.UserID != "" {
		s.Participants[creator.UserID] = Participant{
			UserID:   creator.UserID,
			Name:     creator.Name,
			JoinedAt: now,
			LastSeen: now,
		}
	}
	return s
}

func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

func (s *Session) touch(now time.Time) {
	s.LastActivity = now
}

// UpsertParticipant refreshes name/lastSeen for a known userId or appends a
// new record with joinedAt = lastSeen = now.
func (s *Session) UpsertParticipant(userID, name string, now time.Time) {
	if p, ok := s.Participants[userID]; ok {
		p.Name = name
		p.LastSeen = now
		s.Participants[userID] = p
	} else {
		s.Participants[userID] = Participant{
			UserID:   userID,
			Name:     name,
			JoinedAt: now,
			LastSeen: now,
		}
	}
	s.touch(now)
}

func (s *Session) TouchParticipant(userID string, now time.Time) bool {
	p, ok := s.Participants[userID]
	if !ok {
		return false
	}
	p.LastSeen = now
	s.Participants[userID] = p
	s.touch(now)
	return true
}

// RemoveParticipant prunes participation history; only an explicit leave
// calls this, never a bare disconnect.
func (s *Session) RemoveParticipant(userID string, now time.Time) {
	if _, ok := s.Participants[userID]; !ok {
		return
	}
	delete(s.Participants, userID)
	s.touch(now)
}

func (s *Session) SortedParticipants() []Participant {
	out := make([]Participant, 0, len(s.Participants))
	for _, p := range s.Participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

func (s *Session) SetCode(code string, now time.Time) {
	s.Code = code
	s.touch(now)
}

func (s *Session) SetLanguage(language string, now time.Time) {
	s.Language = language
	s.touch(now)
}

func (s *Session) SetWhiteboard(elements []WhiteboardElement, now time.Time) {
	s.Whiteboard = elements
	s.touch(now)
}

func (s *Session) AppendMessage(m ChatMessage) {
	s.Messages = append(s.Messages, m)
	s.touch(m.Timestamp)
}

// UpsertFile replaces by fileId or adds; never duplicates an entry.
func (s *Session) UpsertFile(f SharedFile, now time.Time) {
	f.UploadedAt = now
	s.Files[f.ID] = f
	s.touch(now)
}

func (s *Session) DeleteFile(fileID string, now time.Time) error {
	if _, ok := s.Files[fileID]; !ok {
		return ErrFileNotFound
	}
	delete(s.Files, fileID)
	s.touch(now)
	return nil
}

func (s *Session) SortedFiles() []SharedFile {
	out := make([]SharedFile, 0, len(s.Files))
	for _, f := range s.Files {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UploadedAt.Before(out[j].UploadedAt)
	})
	return out
}

// SessionSummary — строка выдачи listByUser, без тяжёлых полей.
type SessionSummary struct {
	RoomID           string    `json:"roomId"`
	Creator          Creator   `json:"creator"`
	Language         string    `json:"language"`
	ParticipantCount int       `json:"participantCount"`
	LastActivity     time.Time `json:"lastActivity"`
	CreatedAt        time.Time `json:"createdAt"`
	ExpiresAt        time.Time `json:"expiresAt"`
}

func (s *Session) Summary() SessionSummary {
	return SessionSummary{
		RoomID:           s.RoomID,
		Creator:          s.Creator,
		Language:         s.Language,
		ParticipantCount: len(s.Participants),
		LastActivity:     s.LastActivity,
		CreatedAt:        s.CreatedAt,
		ExpiresAt:        s.ExpiresAt,
	}
}
