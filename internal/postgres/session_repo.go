package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Abhi773925/compiler-design-sub002/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionRepository хранит сессию одной строкой на room_id; participants,
// messages, files и whiteboard лежат в jsonb, поэтому каждая мутация —
// один атомарный UPDATE без транзакций между таблицами.
type SessionRepository struct {
	db *pgxpool.Pool
}

func NewSessionRepository(db *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{db: db}
}

// SessionPatch — частичное обновление updateFields; nil-поле не трогается.
type SessionPatch struct {
	Code       *string
	Language   *string
	Whiteboard []domain.WhiteboardElement
}

func (r *SessionRepository) Create(ctx context.Context, s *domain.Session) error {
	creator, err := json.Marshal(s.Creator)
	if err != nil {
		return err
	}
	participants, err := json.Marshal(s.Participants)
	if err != nil {
		return err
	}

	ct, err := r.db.Exec(ctx, `
		INSERT INTO sessions (room_id, creator, participants, code, language, last_activity, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6, $7)
		ON CONFLICT (room_id) DO NOTHING`,
		s.RoomID, creator, participants, s.Code, s.Language, s.CreatedAt, s.ExpiresAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrSessionExists
	}
	return nil
}

// Get реализует expiry-on-read: протухшая строка удаляется, наружу уходит
// ErrSessionExpired; повторный Get на неё даст уже ErrSessionNotFound.
func (r *SessionRepository) Get(ctx context.Context, roomID string) (*domain.Session, error) {
	row := r.db.QueryRow(ctx, `
		SELECT room_id, creator, participants, code, language, messages, files, whiteboard,
		       last_activity, created_at, expires_at
		FROM sessions WHERE room_id = $1`, roomID)

	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}

	if s.Expired(time.Now()) {
		// гонка двух читателей безопасна: второй DELETE затронет 0 строк
		if _, derr := r.db.Exec(ctx, `DELETE FROM sessions WHERE room_id = $1 AND expires_at < now()`, roomID); derr != nil {
			return nil, fmt.Errorf("expire %s: %w", roomID, derr)
		}
		return nil, domain.ErrSessionExpired
	}
	return s, nil
}

func (r *SessionRepository) UpdateFields(ctx context.Context, roomID string, patch SessionPatch) error {
	var whiteboard []byte
	if patch.Whiteboard != nil {
		b, err := json.Marshal(patch.Whiteboard)
		if err != nil {
			return err
		}
		whiteboard = b
	}

	ct, err := r.db.Exec(ctx, `
		UPDATE sessions SET
			code       = COALESCE($2, code),
			language   = COALESCE($3, language),
			whiteboard = COALESCE($4::jsonb, whiteboard),
			last_activity = now()
		WHERE room_id = $1 AND expires_at > now()`,
		roomID, patch.Code, patch.Language, whiteboard)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// UpsertParticipant: для известного userId освежает name/lastSeen, иначе
// дописывает полную запись — одним атомарным UPDATE.
func (r *SessionRepository) UpsertParticipant(ctx context.Context, roomID string, p domain.Participant) error {
	refresh, err := json.Marshal(map[string]any{"name": p.Name, "lastSeen": p.LastSeen})
	if err != nil {
		return err
	}
	full, err := json.Marshal(p)
	if err != nil {
		return err
	}

	ct, err := r.db.Exec(ctx, `
		UPDATE sessions SET
			participants = jsonb_set(
				participants, ARRAY[$2],
				CASE WHEN participants ? $2
					THEN (participants -> $2) || $3::jsonb
					ELSE $4::jsonb
				END, true),
			last_activity = now()
		WHERE room_id = $1 AND expires_at > now()`,
		roomID, p.UserID, refresh, full)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepository) TouchParticipant(ctx context.Context, roomID, userID string, seen time.Time) error {
	ts, err := json.Marshal(seen)
	if err != nil {
		return err
	}
	ct, err := r.db.Exec(ctx, `
		UPDATE sessions SET
			participants = jsonb_set(participants, ARRAY[$2, 'lastSeen'], $3::jsonb),
			last_activity = now()
		WHERE room_id = $1 AND participants ? $2 AND expires_at > now()`,
		roomID, userID, ts)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepository) RemoveParticipant(ctx context.Context, roomID, userID string) error {
	ct, err := r.db.Exec(ctx, `
		UPDATE sessions SET
			participants = participants - $2,
			last_activity = now()
		WHERE room_id = $1 AND expires_at > now()`,
		roomID, userID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepository) UpsertFile(ctx context.Context, roomID string, f domain.SharedFile) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	ct, err := r.db.Exec(ctx, `
		UPDATE sessions SET
			files = jsonb_set(files, ARRAY[$2], $3::jsonb, true),
			last_activity = now()
		WHERE room_id = $1 AND expires_at > now()`,
		roomID, f.ID, b)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// SetFileContent меняет только поле content файла; size пересчитывается тут же.
func (r *SessionRepository) SetFileContent(ctx context.Context, roomID, fileID, content string) error {
	b, err := json.Marshal(content)
	if err != nil {
		return err
	}
	ct, err := r.db.Exec(ctx, `
		UPDATE sessions SET
			files = jsonb_set(
				jsonb_set(files, ARRAY[$2, 'content'], $3::jsonb),
				ARRAY[$2, 'size'], to_jsonb($4::bigint)),
			last_activity = now()
		WHERE room_id = $1 AND files ? $2 AND expires_at > now()`,
		roomID, fileID, b, len(content))
	if err != nil {
		return err
	}
	if ct.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM sessions WHERE room_id = $1 AND expires_at > now())`,
		roomID).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return domain.ErrFileNotFound
	}
	return domain.ErrSessionNotFound
}

func (r *SessionRepository) DeleteFile(ctx context.Context, roomID, fileID string) error {
	ct, err := r.db.Exec(ctx, `
		UPDATE sessions SET
			files = files - $2,
			last_activity = now()
		WHERE room_id = $1 AND files ? $2 AND expires_at > now()`,
		roomID, fileID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() > 0 {
		return nil
	}

	// различаем «нет файла» и «нет сессии»
	var exists bool
	if err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM sessions WHERE room_id = $1 AND expires_at > now())`,
		roomID).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return domain.ErrFileNotFound
	}
	return domain.ErrSessionNotFound
}

func (r *SessionRepository) AppendMessage(ctx context.Context, roomID string, m domain.ChatMessage) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	ct, err := r.db.Exec(ctx, `
		UPDATE sessions SET
			messages = messages || $2::jsonb,
			last_activity = now()
		WHERE room_id = $1 AND expires_at > now()`,
		roomID, b)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// Delete — hard delete; room_id сразу можно использовать повторно.
func (r *SessionRepository) Delete(ctx context.Context, roomID string) error {
	ct, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE room_id = $1`, roomID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.SessionSummary, error) {
	rows, err := r.db.Query(ctx, `
		SELECT room_id, creator, language,
		       (SELECT count(*) FROM jsonb_object_keys(participants)),
		       last_activity, created_at, expires_at
		FROM sessions
		WHERE expires_at > now()
		  AND (creator ->> 'userId' = $1 OR participants ? $1)
		ORDER BY last_activity DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SessionSummary
	for rows.Next() {
		var (
			sum     domain.SessionSummary
			creator []byte
		)
		if err := rows.Scan(&sum.RoomID, &creator, &sum.Language, &sum.ParticipantCount,
			&sum.LastActivity, &sum.CreatedAt, &sum.ExpiresAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(creator, &sum.Creator); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// DeleteExpired — активная жатва для фонового sweeper-а.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	ct, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at < now()`)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var (
		s            domain.Session
		creator      []byte
		participants []byte
		messages     []byte
		files        []byte
		whiteboard   []byte
	)
	err := row.Scan(&s.RoomID, &creator, &participants, &s.Code, &s.Language,
		&messages, &files, &whiteboard, &s.LastActivity, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(creator, &s.Creator); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(participants, &s.Participants); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(messages, &s.Messages); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(files, &s.Files); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(whiteboard, &s.Whiteboard); err != nil {
		return nil, err
	}
	return &s, nil
}
