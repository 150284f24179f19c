package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"live-quiz-service/internal/domain"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// SessionStore persists sessions, participants and answers in Postgres.
// The unique index on answers(participant_id, question_id) backs the at-most-once rule.
type SessionStore struct {
	pool *pgxpool.Pool
}

func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

const sessionColumns = `id, quiz_id, host_id, join_code, status, current_question_index, show_leaderboard,
	reveal_answer, ended_early, question_start_ms, question_end_ms, version, created_at`

func (s *SessionStore) CreateSession(ctx context.Context, session domain.Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO quiz_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		session.ID, session.QuizID, session.HostID, session.JoinCode, string(session.Status),
		session.CurrentQuestionIndex, session.ShowLeaderboard, session.RevealAnswer, session.EndedEarly,
		session.QuestionStartMs, session.QuestionEndMs, session.Version, session.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrJoinCodeTaken
	}
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SessionStore) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM quiz_sessions WHERE id=$1`, sessionID)
	return scanSession(row)
}

func (s *SessionStore) GetSessionByJoinCode(ctx context.Context, joinCode string) (domain.Session, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM quiz_sessions WHERE join_code=$1`, joinCode)
	return scanSession(row)
}

func (s *SessionStore) UpdateSession(ctx context.Context, session domain.Session) (domain.Session, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE quiz_sessions SET status=$3, current_question_index=$4, show_leaderboard=$5, reveal_answer=$6,
			ended_early=$7, question_start_ms=$8, question_end_ms=$9, version=version+1
		WHERE id=$1 AND version=$2`,
		session.ID, session.Version, string(session.Status), session.CurrentQuestionIndex,
		session.ShowLeaderboard, session.RevealAnswer, session.EndedEarly,
		session.QuestionStartMs, session.QuestionEndMs)
	if err != nil {
		return domain.Session{}, fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetSession(ctx, session.ID); err != nil {
			return domain.Session{}, err
		}
		return domain.Session{}, domain.ErrVersionConflict
	}
	session.Version++
	return session, nil
}

// AddParticipant inserts only while the session is still waiting, in the same statement
// that checks it, so a concurrent start cannot let a late join through.
func (s *SessionStore) AddParticipant(ctx context.Context, p domain.Participant) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO participants (id, session_id, name, score, joined_at)
		SELECT $1::text, $2::text, $3::text, $4::integer, $5::timestamptz
		WHERE EXISTS (SELECT 1 FROM quiz_sessions WHERE id=$2 AND status=$6 FOR SHARE)`,
		p.ID, p.SessionID, p.Name, p.Score, p.JoinedAt, string(domain.StatusWaiting))
	if err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetSession(ctx, p.SessionID); err != nil {
			return err
		}
		return domain.ErrAlreadyStarted
	}
	return nil
}

func (s *SessionStore) GetParticipant(ctx context.Context, participantID string) (domain.Participant, error) {
	var p domain.Participant
	err := s.pool.QueryRow(ctx,
		`SELECT id, session_id, name, score, joined_at FROM participants WHERE id=$1`, participantID,
	).Scan(&p.ID, &p.SessionID, &p.Name, &p.Score, &p.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("load participant: %w", err)
	}
	return p, nil
}

func (s *SessionStore) ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, name, score, joined_at FROM participants WHERE session_id=$1 ORDER BY joined_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()
	out := make([]domain.Participant, 0)
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.ID, &p.SessionID, &p.Name, &p.Score, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const answerColumns = `id, session_id, participant_id, question_id, answer, is_correct, score, time_taken, submitted_at`

func (s *SessionStore) FindAnswer(ctx context.Context, participantID, questionID string) (domain.Answer, bool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+answerColumns+` FROM answers WHERE participant_id=$1 AND question_id=$2`, participantID, questionID)
	a, err := scanAnswer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Answer{}, false, nil
	}
	if err != nil {
		return domain.Answer{}, false, fmt.Errorf("find answer: %w", err)
	}
	return a, true, nil
}

func (s *SessionStore) ListAnswers(ctx context.Context, sessionID string) ([]domain.Answer, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+answerColumns+` FROM answers WHERE session_id=$1 ORDER BY submitted_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()
	out := make([]domain.Answer, 0)
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// RecordAnswer inserts the answer and bumps the score in one transaction. ON CONFLICT DO NOTHING
// makes the duplicate check and the insert a single statement under the unique index.
func (s *SessionStore) RecordAnswer(ctx context.Context, a domain.Answer) (domain.Participant, error) {
	var p domain.Participant
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO answers (`+answerColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (participant_id, question_id) DO NOTHING`,
			a.ID, a.SessionID, a.ParticipantID, a.QuestionID, a.Answer, a.IsCorrect, a.Score, a.TimeTaken, a.SubmittedAt)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return domain.ErrParticipantNotFound
		}
		if err != nil {
			return fmt.Errorf("insert answer: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrAlreadyAnswered
		}
		err = tx.QueryRow(ctx, `
			UPDATE participants SET score = score + $2 WHERE id=$1
			RETURNING id, session_id, name, score, joined_at`, a.ParticipantID, a.Score,
		).Scan(&p.ID, &p.SessionID, &p.Name, &p.Score, &p.JoinedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrParticipantNotFound
		}
		if err != nil {
			return fmt.Errorf("update score: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Participant{}, err
	}
	return p, nil
}

func (s *SessionStore) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM quiz_sessions WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanSession(row pgx.Row) (domain.Session, error) {
	var session domain.Session
	var status string
	err := row.Scan(&session.ID, &session.QuizID, &session.HostID, &session.JoinCode, &status,
		&session.CurrentQuestionIndex, &session.ShowLeaderboard, &session.RevealAnswer, &session.EndedEarly,
		&session.QuestionStartMs, &session.QuestionEndMs, &session.Version, &session.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("load session: %w", err)
	}
	session.Status = domain.SessionStatus(status)
	return session, nil
}

func scanAnswer(row pgx.Row) (domain.Answer, error) {
	var a domain.Answer
	err := row.Scan(&a.ID, &a.SessionID, &a.ParticipantID, &a.QuestionID, &a.Answer, &a.IsCorrect,
		&a.Score, &a.TimeTaken, &a.SubmittedAt)
	return a, err
}
