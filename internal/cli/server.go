package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	pgstore "live-quiz-service/internal/infra/postgres"
	"live-quiz-service/internal/infra/rabbit"
	redisstore "live-quiz-service/internal/infra/redis"
	transport "live-quiz-service/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// stack is the wired service plus everything that must be closed on shutdown.
type stack struct {
	service *app.SessionService
	events  app.EventSubscriber
	closers []func()
}

func (s *stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// buildStack picks storage by configuration: Postgres for durable sessions and the quiz
// catalog, Redis for shared sessions, change feed and quiz cache, memory otherwise.
func buildStack(ctx context.Context, cfg config.Config) (*stack, error) {
	st := &stack{}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		st.closers = append(st.closers, func() { _ = redisClient.Close() })
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		var err error
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			st.Close()
			return nil, err
		}
		st.closers = append(st.closers, pool.Close)
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pgstore.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, config.DefaultQuizTTL)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisstore.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	retention := config.TTLDuration(cfg.Session.Retention, config.DefaultRetention)
	var store app.SessionRepository
	switch {
	case pool != nil:
		store = pgstore.NewSessionStore(pool)
	case redisClient != nil:
		store = redisstore.NewSessionStore(redisClient, retention)
	default:
		store = memory.NewSessionStore()
	}

	var publishers app.MultiPublisher
	if redisClient != nil {
		broker := redisstore.NewBroker(redisClient)
		st.events = broker
		publishers = append(publishers, broker)
	} else {
		broker := memory.NewBroker()
		st.events = broker
		publishers = append(publishers, broker)
	}
	if cfg.Rabbit.URL != "" {
		pub, err := rabbit.Dial(cfg.Rabbit.URL, cfg.Rabbit.Exchange)
		if err != nil {
			st.Close()
			return nil, err
		}
		st.closers = append(st.closers, func() { _ = pub.Close() })
		publishers = append(publishers, pub)
	}

	st.service = app.NewSessionService(store, quizRepo, app.WithEventPublisher(publishers))
	return st, nil
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwtSecret is empty; set it or JWT_SECRET: %w", auth.ErrNoSecret)
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	st, err := buildStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret)
	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     transport.NewRouter(st.service, st.events, verifier, os.Stdout),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: it would cut long-lived websocket streams.
	}

	go func() {
		log.Printf("starting quiz service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes seeds the in-memory catalog when no Postgres is configured.
func sampleQuizzes() map[string]domain.Quiz {
	abcd := func(texts ...string) []domain.Option {
		opts := make([]domain.Option, len(texts))
		for i, t := range texts {
			opts[i] = domain.Option{Letter: string(rune('A' + i)), Text: t}
		}
		return opts
	}
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:        "quiz-1",
			CreatorID: "host-1",
			Title:     "Warm-up",
			Questions: []domain.Question{
				{
					ID:               "q1",
					QuizID:           "quiz-1",
					OrderNumber:      1,
					Text:             "What is 2 + 2?",
					Options:          abcd("3", "4", "5", "22"),
					CorrectAnswer:    "B",
					TimeLimitSeconds: 20,
				},
				{
					ID:               "q2",
					QuizID:           "quiz-1",
					OrderNumber:      2,
					Text:             "Which planet is closest to the sun?",
					Options:          abcd("Venus", "Earth", "Mercury", "Mars"),
					CorrectAnswer:    "C",
					TimeLimitSeconds: 30,
				},
			},
		},
	}
}
