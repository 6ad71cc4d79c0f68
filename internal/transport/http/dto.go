package http

import "github.com/Abhi773925/compiler-design-sub002/internal/domain"

type ErrorResponse struct {
	Error string `json:"error"`
}

type CreateSessionRequest struct {
	RoomID      string `json:"roomId"`
	CreatorName string `json:"creatorName"`
	CreatorID   string `json:"creatorId,omitempty"`
	Code        string `json:"code,omitempty"`
	Language    string `json:"language,omitempty"`
}

type UpdateSessionRequest struct {
	Code               *string                    `json:"code,omitempty"`
	Language           *string                    `json:"language,omitempty"`
	WhiteboardElements []domain.WhiteboardElement `json:"whiteboardElements,omitempty"`
}

type UpsertFileRequest struct {
	Name         string `json:"name"`
	Content      string `json:"content"`
	Mime         string `json:"mime,omitempty"`
	Size         int64  `json:"size,omitempty"`
	UploadedBy   string `json:"uploadedBy,omitempty"`
	UploaderName string `json:"uploaderName,omitempty"`
}

type FilesResponse struct {
	Items []domain.SharedFile `json:"items"`
}

type AppendMessageRequest struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Message  string `json:"message"`
}

type SessionsListResponse struct {
	Items []domain.SessionSummary `json:"items"`
}

type StatusResponse struct {
	Status string `json:"status"`
}
