package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"live-quiz-service/internal/domain"
)

func TestQuizRepositoryCaches(t *testing.T) {
	loader := &countingLoader{
		QuizLoader: NewStaticQuizLoader(map[string]domain.Quiz{
			"quiz-1": sampleQuiz(),
		}),
	}
	repo := NewQuizRepository(loader, time.Minute)

	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.Calls() != 1 {
		t.Fatalf("expected loader once, got %d", loader.Calls())
	}

	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if loader.Calls() != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.Calls())
	}
}

func TestQuizRepositoryExpiresAndInvalidates(t *testing.T) {
	loader := &countingLoader{QuizLoader: NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()})}
	repo := NewQuizRepository(loader, time.Minute)
	now := time.Now()
	repo.clock = func() time.Time { return now }

	ctx := context.Background()
	repo.GetQuiz(ctx, "quiz-1")
	now = now.Add(2 * time.Minute)
	repo.GetQuiz(ctx, "quiz-1")
	if loader.Calls() != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", loader.Calls())
	}

	repo.Invalidate("quiz-1")
	repo.GetQuiz(ctx, "quiz-1")
	if loader.Calls() != 3 {
		t.Fatalf("expected reload after invalidate, loader calls %d", loader.Calls())
	}
}

func TestQuizRepositoryPassesThroughNotFound(t *testing.T) {
	repo := NewQuizRepository(NewStaticQuizLoader(nil), time.Minute)
	if _, err := repo.GetQuiz(context.Background(), "missing"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
}

func TestStaticQuizLoaderOrdersQuestions(t *testing.T) {
	quiz := sampleQuiz()
	quiz.Questions = append(quiz.Questions, domain.Question{ID: "q0", OrderNumber: 0})
	loader := NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": quiz})

	got, err := loader.LoadQuiz(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Questions[0].ID != "q0" || got.Questions[1].ID != "q1" {
		t.Fatalf("expected order-number order, got %+v", got.Questions)
	}
}

type countingLoader struct {
	QuizLoader
	mu    sync.Mutex
	calls int
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	return l.QuizLoader.LoadQuiz(ctx, quizID)
}

func (l *countingLoader) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:        "quiz-1",
		CreatorID: "host-1",
		Title:     "Arithmetic",
		Questions: []domain.Question{
			{
				ID:          "q1",
				QuizID:      "quiz-1",
				OrderNumber: 1,
				Text:        "What is 2 + 2?",
				Options: []domain.Option{
					{Letter: "A", Text: "3"},
					{Letter: "B", Text: "4"},
				},
				CorrectAnswer:    "B",
				TimeLimitSeconds: 20,
			},
		},
	}
}
