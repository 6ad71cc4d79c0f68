package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSession_Defaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewSession("abc123", Creator{Name: "Alice", UserID: "u-1"}, "", "", now)

	assert.Equal(t, "abc123", s.RoomID)
	assert.Equal(t, DefaultCode, s.Code)
	assert.Equal(t, DefaultLanguage, s.Language)
	assert.Equal(t, now.Add(RetentionWindow), s.ExpiresAt)
	assert.Equal(t, 7*24*time.Hour, s.ExpiresAt.Sub(s.CreatedAt))

	// создатель сразу числится участником
	require.Len(t, s.Participants, 1)
	p := s.Participants["u-1"]
	assert.Equal(t, "Alice", p.Name)
	assert.Equal(t, now, p.JoinedAt)
}

func TestSession_Expired(t *testing.T) {
	now := time.Now()
	s := NewSession("r", Creator{Name: "x"}, "", "", now)
	assert.False(t, s.Expired(now))
	assert.False(t, s.Expired(now.Add(RetentionWindow)))
	assert.True(t, s.Expired(now.Add(RetentionWindow+time.Second)))
}

func TestSession_UpsertParticipant(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewSession("r", Creator{Name: "Alice", UserID: "a"}, "", "", t0)

	t1 := t0.Add(time.Minute)
	s.UpsertParticipant("b", "Bob", t1)
	require.Len(t, s.Participants, 2)
	assert.Equal(t, t1, s.LastActivity)

	// повторный join обновляет имя и lastSeen, не двигая joinedAt
	t2 := t1.Add(time.Minute)
	s.UpsertParticipant("b", "Bobby", t2)
	require.Len(t, s.Participants, 2)
	b := s.Participants["b"]
	assert.Equal(t, "Bobby", b.Name)
	assert.Equal(t, t1, b.JoinedAt)
	assert.Equal(t, t2, b.LastSeen)

	sorted := s.SortedParticipants()
	require.Len(t, sorted, 2)
	assert.Equal(t, "a", sorted[0].UserID)
	assert.Equal(t, "b", sorted[1].UserID)
}

func TestSession_RemoveParticipant(t *testing.T) {
	t0 := time.Now()
	s := NewSession("r", Creator{Name: "Alice", UserID: "a"}, "", "", t0)
	s.UpsertParticipant("b", "Bob", t0)

	s.RemoveParticipant("b", t0.Add(time.Second))
	assert.Len(t, s.Participants, 1)

	// удаление отсутствующего — no-op
	s.RemoveParticipant("zz", t0.Add(2*time.Second))
	assert.Len(t, s.Participants, 1)
}

func TestSession_UpsertFile_NoDuplicates(t *testing.T) {
	t0 := time.Now()
	s := NewSession("r", Creator{Name: "Alice", UserID: "a"}, "", "", t0)

	s.UpsertFile(SharedFile{ID: "f1", Name: "main.py", Content: "print(1)", Mime: "text/x-python", Size: 8}, t0)
	require.Len(t, s.Files, 1)

	t1 := t0.Add(time.Minute)
	s.UpsertFile(SharedFile{ID: "f1", Name: "main.py", Content: "print(2)\n", Mime: "text/x-python", Size: 9}, t1)
	require.Len(t, s.Files, 1, "re-upload with same fileId must replace, not append")
	f := s.Files["f1"]
	assert.Equal(t, "print(2)\n", f.Content)
	assert.Equal(t, int64(9), f.Size)
	assert.Equal(t, t1, f.UploadedAt)
	assert.Equal(t, t1, s.LastActivity)
}

func TestSession_DeleteFile(t *testing.T) {
	t0 := time.Now()
	s := NewSession("r", Creator{Name: "Alice", UserID: "a"}, "", "", t0)
	s.UpsertFile(SharedFile{ID: "f1", Name: "a.txt"}, t0)

	err := s.DeleteFile("missing", t0)
	assert.ErrorIs(t, err, ErrFileNotFound)

	t1 := t0.Add(time.Second)
	require.NoError(t, s.DeleteFile("f1", t1))
	assert.Empty(t, s.Files)
	assert.Equal(t, t1, s.LastActivity)
}

func TestSession_AppendMessage(t *testing.T) {
	t0 := time.Now()
	s := NewSession("r", Creator{Name: "Alice", UserID: "a"}, "", "", t0)

	t1 := t0.Add(time.Second)
	s.AppendMessage(ChatMessage{ID: "m1", UserID: "a", UserName: "Alice", Message: "hi", Timestamp: t1})
	s.AppendMessage(ChatMessage{ID: "m2", UserID: "b", UserName: "Bob", Message: "yo", Timestamp: t1.Add(time.Second)})

	require.Len(t, s.Messages, 2)
	assert.Equal(t, "hi", s.Messages[0].Message)
	assert.Equal(t, t1.Add(time.Second), s.LastActivity)
}

func TestSession_FixedRetentionWindow(t *testing.T) {
	t0 := time.Now()
	s := NewSession("r", Creator{Name: "Alice", UserID: "a"}, "", "", t0)
	before := s.ExpiresAt

	// активность не продлевает окно
	s.SetCode("print(1)", t0.Add(time.Hour))
	s.AppendMessage(ChatMessage{ID: "m", Timestamp: t0.Add(2 * time.Hour)})
	assert.Equal(t, before, s.ExpiresAt)
}
