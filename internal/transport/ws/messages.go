package ws

import (
	"github.com/Abhi773925/compiler-design-sub002/internal/domain"
)

// Типы событий realtime-канала.
const (
	// клиент → сервер (и фан-аут пирам)
	TypeChat       = "chat"        // чат-сообщение
	TypeCode       = "code"        // замена всего документа (опционально per-file)
	TypeLanguage   = "language"    // смена языка
	TypeFile       = "file"        // upsert файла
	TypeFileDelete = "file_delete" // удаление файла
	TypeWhiteboard = "whiteboard"  // замена элементов доски целиком
	TypeLeave      = "leave"       // явный выход (чистит durable-участника)

	// сервер → клиент
	TypeRoster = "roster" // пост-событийный ростер, всем включая виновника
	TypeError  = "error"
)

type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type ChatPayload struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Message  string `json:"message"`

	MsgID  string `json:"msgId,omitempty"`
	TSUnix int64  `json:"tsUnix,omitempty"`
}

// CodePayload: пустой FileID означает основной документ сессии; заполненный —
// legacy per-file вариант события.
type CodePayload struct {
	RoomID       string `json:"roomId"`
	FileID       string `json:"fileId,omitempty"`
	Content      string `json:"content"`
	OriginUserID string `json:"originUserId,omitempty"`
}

type LanguagePayload struct {
	RoomID       string `json:"roomId"`
	Language     string `json:"language"`
	OriginUserID string `json:"originUserId,omitempty"`
}

type FilePayload struct {
	RoomID       string            `json:"roomId"`
	File         domain.SharedFile `json:"file"`
	OriginUserID string            `json:"originUserId,omitempty"`
}

type FileDeletePayload struct {
	RoomID       string `json:"roomId"`
	FileID       string `json:"fileId"`
	OriginUserID string `json:"originUserId,omitempty"`
}

type WhiteboardPayload struct {
	RoomID       string                     `json:"roomId"`
	Elements     []domain.WhiteboardElement `json:"elements"`
	OriginUserID string                     `json:"originUserId,omitempty"`
}

type RosterEntry struct {
	UserID      string `json:"userId"`
	Name        string `json:"name"`
	Connections int    `json:"connections"`
}

type RosterPayload struct {
	RoomID       string        `json:"roomId"`
	Participants []RosterEntry `json:"participants"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
