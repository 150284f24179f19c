package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	pgstore "live-quiz-service/internal/infra/postgres"
	pgmigrations "live-quiz-service/internal/infra/postgres/migrations"
	infraredis "live-quiz-service/internal/infra/redis"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

func TestLiveSessionOnPostgres(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateSchema(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := pgstore.NewQuizLoader(pool)
	if err := loader.SaveQuiz(ctx, sampleQuiz()); err != nil {
		t.Fatalf("seed quiz: %v", err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	quizRepo := infraredis.NewQuizRepository(redisClient, loader, 5*time.Minute)
	broker := infraredis.NewBroker(redisClient)
	service := app.NewSessionService(pgstore.NewSessionStore(pool), quizRepo, app.WithEventPublisher(broker))

	session, err := service.CreateSession(ctx, "quiz-1", "host-1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	events, cancel, err := broker.Subscribe(ctx, session.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	alice, err := service.JoinSession(ctx, strings.ToLower(session.JoinCode), "Alice")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	bob, err := service.JoinSession(ctx, session.JoinCode, "Bob")
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	started, err := service.StartQuiz(ctx, session.ID, "host-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Version != session.Version+1 || started.QuestionEndMs-started.QuestionStartMs != 20_000 {
		t.Fatalf("unexpected started session %+v", started)
	}
	late := domain.Participant{ID: "late", SessionID: session.ID, Name: "Late", JoinedAt: time.Now()}
	if err := pgstore.NewSessionStore(pool).AddParticipant(ctx, late); !errors.Is(err, domain.ErrAlreadyStarted) {
		t.Fatalf("expected started session to refuse participants, got %v", err)
	}

	// Race duplicate submissions against the unique index.
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := service.SubmitAnswer(ctx, domain.AnswerSubmission{
				SessionID: session.ID, ParticipantID: bob.ParticipantID, QuestionID: "q1", Answer: "B", TimeTaken: 1,
			})
			if err != nil {
				t.Errorf("submit: %v", err)
				return
			}
			if res.Success {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if accepted != 1 {
		t.Fatalf("expected exactly one accepted submission, got %d", accepted)
	}
	if res, err := service.SubmitAnswer(ctx, domain.AnswerSubmission{
		SessionID: session.ID, ParticipantID: alice.ParticipantID, QuestionID: "q1", Answer: "A", TimeTaken: 2,
	}); err != nil || !res.Success || res.IsCorrect {
		t.Fatalf("expected wrong answer for alice, got %+v %v", res, err)
	}

	view, err := service.HostView(ctx, session.ID, "host-1")
	if err != nil {
		t.Fatalf("host view: %v", err)
	}
	if len(view.Standings) != 2 || view.Standings[0].ParticipantID != bob.ParticipantID || view.Standings[0].Score != 1 {
		t.Fatalf("expected bob leading, got %+v", view.Standings)
	}

	player, err := service.PlayerView(ctx, session.ID, bob.ParticipantID)
	if err != nil {
		t.Fatalf("player view: %v", err)
	}
	if player.Participant.Score != 0 || !player.HasAnswered {
		t.Fatalf("expected masked score before reveal, got %+v", player.Participant)
	}

	finished, err := service.ShowLeaderboard(ctx, session.ID, "host-1")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if finished.Status != domain.StatusFinished {
		t.Fatalf("single-question quiz should finish on leaderboard, got %+v", finished)
	}

	select {
	case <-events:
	case <-time.After(5 * time.Second):
		t.Fatalf("no change event received over redis")
	}

	removed, err := service.Sweep(ctx, -time.Minute)
	if err != nil || removed != 1 {
		t.Fatalf("sweep: removed=%d err=%v", removed, err)
	}
	if _, err := service.PlayerView(ctx, session.ID, bob.ParticipantID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected swept session gone, got %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateSchema(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
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
					{Letter: "C", Text: "5"},
				},
				CorrectAnswer:    "B",
				TimeLimitSeconds: 20,
			},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
