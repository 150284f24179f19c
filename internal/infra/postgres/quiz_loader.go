package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"live-quiz-service/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuizLoader reads quizzes and their ordered questions from Postgres.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	quiz := domain.Quiz{ID: quizID}
	err := l.pool.QueryRow(ctx,
		`SELECT creator_id, title, description FROM quizzes WHERE id=$1`, quizID,
	).Scan(&quiz.CreatorID, &quiz.Title, &quiz.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}

	rows, err := l.pool.Query(ctx, `
		SELECT id, order_number, question_text, image_url, options, correct_answer, time_limit_seconds
		FROM questions WHERE quiz_id=$1 ORDER BY order_number ASC`, quizID)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	quiz.Questions = make([]domain.Question, 0)
	for rows.Next() {
		q := domain.Question{QuizID: quizID}
		var options []byte
		if err := rows.Scan(&q.ID, &q.OrderNumber, &q.Text, &q.ImageURL, &options, &q.CorrectAnswer, &q.TimeLimitSeconds); err != nil {
			return domain.Quiz{}, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal(options, &q.Options); err != nil {
			return domain.Quiz{}, fmt.Errorf("unmarshal options: %w", err)
		}
		quiz.Questions = append(quiz.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}
	return quiz, nil
}

// SaveQuiz upserts a quiz and replaces its question list in one transaction.
func (l *QuizLoader) SaveQuiz(ctx context.Context, quiz domain.Quiz) error {
	return l.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO quizzes (id, creator_id, title, description) VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET creator_id=EXCLUDED.creator_id, title=EXCLUDED.title, description=EXCLUDED.description`,
			quiz.ID, quiz.CreatorID, quiz.Title, quiz.Description); err != nil {
			return fmt.Errorf("upsert quiz: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE quiz_id=$1`, quiz.ID); err != nil {
			return fmt.Errorf("clear questions: %w", err)
		}
		for _, q := range quiz.Questions {
			options, err := json.Marshal(q.Options)
			if err != nil {
				return fmt.Errorf("marshal options: %w", err)
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO questions (id, quiz_id, order_number, question_text, image_url, options, correct_answer, time_limit_seconds)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				q.ID, quiz.ID, q.OrderNumber, q.Text, q.ImageURL, options, q.CorrectAnswer, q.TimeLimitSeconds); err != nil {
				return fmt.Errorf("insert question %s: %w", q.ID, err)
			}
		}
		return nil
	})
}
