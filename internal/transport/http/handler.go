package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Abhi773925/compiler-design-sub002/internal/domain"
	"github.com/Abhi773925/compiler-design-sub002/internal/postgres"
	"github.com/Abhi773925/compiler-design-sub002/internal/service"
	"github.com/Abhi773925/compiler-design-sub002/internal/upstream"
)

// Executor и OAuthExchanger — внешние вызовы, подменяются в тестах.
type Executor interface {
	Run(ctx context.Context, req upstream.ExecRequest) (*upstream.ExecResult, error)
}

type OAuthExchanger interface {
	Exchange(ctx context.Context, code string) (*upstream.TokenExchange, error)
}

type Handler struct {
	sessionSvc  *service.SessionService
	presenceSvc *service.PresenceService
	exec        Executor
	oauth       OAuthExchanger
}

func NewHandler(session *service.SessionService, presence *service.PresenceService, exec Executor, oauth OAuthExchanger) *Handler {
	return &Handler{
		sessionSvc:  session,
		presenceSvc: presence,
		exec:        exec,
		oauth:       oauth,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError мапит доменные sentinel-ошибки в статусы; всё прочее — 500.
func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrSessionExists):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "session already exists"})
	case errors.Is(err, domain.ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "session not found"})
	case errors.Is(err, domain.ErrFileNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "file not found"})
	case errors.Is(err, domain.ErrSessionExpired):
		writeJSON(w, http.StatusGone, ErrorResponse{Error: "session expired"})
	case errors.Is(err, domain.ErrUpstream):
		slog.Error("handler."+op+":", slog.Any("err", err))
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: "upstream failure"})
	default:
		slog.Error("handler."+op+":", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}

// POST /api/sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}

	s, err := h.sessionSvc.Create(r.Context(), req.RoomID,
		domain.Creator{Name: req.CreatorName, UserID: req.CreatorID},
		req.Code, req.Language)
	if err != nil {
		writeError(w, "CreateSession", err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

// GET /api/sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessionSvc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "GetSession", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// PUT /api/sessions/{id}
func (h *Handler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	var req UpdateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}
	if req.Code == nil && req.Language == nil && req.WhiteboardElements == nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "empty update"})
		return
	}

	err := h.sessionSvc.Update(r.Context(), chi.URLParam(r, "id"), postgres.SessionPatch{
		Code:       req.Code,
		Language:   req.Language,
		Whiteboard: req.WhiteboardElements,
	})
	if err != nil {
		writeError(w, "UpdateSession", err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "updated"})
}

// DELETE /api/sessions/{id}
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessionSvc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "DeleteSession", err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "deleted"})
}

// GET /api/users/{userId}/sessions?limit=
func (h *Handler) ListUserSessions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			limit = n
		}
	}
	items, err := h.sessionSvc.ListByUser(r.Context(), chi.URLParam(r, "userId"), limit)
	if err != nil {
		writeError(w, "ListUserSessions", err)
		return
	}
	writeJSON(w, http.StatusOK, SessionsListResponse{Items: items})
}

// PUT /api/sessions/{id}/files/{fileId}
func (h *Handler) UpsertFile(w http.ResponseWriter, r *http.Request) {
	var req UpsertFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}

	f := domain.SharedFile{
		ID:           chi.URLParam(r, "fileId"),
		Name:         req.Name,
		Content:      req.Content,
		Mime:         req.Mime,
		Size:         req.Size,
		UploadedBy:   req.UploadedBy,
		UploaderName: req.UploaderName,
	}
	if f.Size == 0 {
		f.Size = int64(len(req.Content))
	}

	if err := h.sessionSvc.UpsertFile(r.Context(), chi.URLParam(r, "id"), f); err != nil {
		writeError(w, "UpsertFile", err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// GET /api/sessions/{id}/files
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessionSvc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "ListFiles", err)
		return
	}
	writeJSON(w, http.StatusOK, FilesResponse{Items: s.SortedFiles()})
}

// GET /api/sessions/{id}/files/{fileId}
func (h *Handler) GetFile(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessionSvc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "GetFile", err)
		return
	}
	f, ok := s.Files[chi.URLParam(r, "fileId")]
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "file not found"})
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// DELETE /api/sessions/{id}/files/{fileId}
func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	err := h.sessionSvc.DeleteFile(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "fileId"))
	if err != nil {
		writeError(w, "DeleteFile", err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "deleted"})
}

// POST /api/sessions/{id}/messages — REST-фолбэк для клиентов без ws
func (h *Handler) AppendMessage(w http.ResponseWriter, r *http.Request) {
	var req AppendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}

	m, err := h.sessionSvc.AppendMessage(r.Context(), chi.URLParam(r, "id"), req.UserID, req.UserName, req.Message)
	if err != nil {
		writeError(w, "AppendMessage", err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// POST /api/execute
func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	var req upstream.ExecRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}
	if req.Language == "" || req.SourceCode == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "language and sourceCode are required"})
		return
	}

	res, err := h.exec.Run(r.Context(), req)
	if err != nil {
		writeError(w, "Execute", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /api/oauth/exchange
func (h *Handler) OAuthExchange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}

	ex, err := h.oauth.Exchange(r.Context(), req.Code)
	if err != nil {
		writeError(w, "OAuthExchange", err)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}
