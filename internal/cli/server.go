package cli

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"golang.org/x/crypto/bcrypt"

	"exam-portal-service/internal/app"
	"exam-portal-service/internal/config"
	"exam-portal-service/internal/domain"
	"exam-portal-service/internal/infra/memory"
	pginfra "exam-portal-service/internal/infra/postgres"
	redisinfra "exam-portal-service/internal/infra/redis"
	transport "exam-portal-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the exam portal server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
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

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	var db *bun.DB
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		db = bun.NewDB(sqldb, pgdialect.New())
		defer db.Close()
	}

	var lockoutStore app.LockoutStore
	if redisClient != nil {
		lockoutStore = redisinfra.NewLockoutStore(redisClient)
	} else {
		lockoutStore = memory.NewLockoutStore()
	}
	lockout := app.NewLockoutTracker(
		lockoutStore,
		config.IntOr(cfg.Auth.LockoutThreshold, 5),
		config.TTLDuration(cfg.Auth.LockoutDuration, 30*time.Minute),
	)

	var (
		identities   app.IdentityRepository
		sessions     app.LoginSessionRepository
		examSessions app.ExamSessionRepository
		exams        app.ExamRepository
		attempts     app.AttemptRepository
		audit        app.AuditRepository
		content      app.ExamContentRepository
	)

	contentTTL := config.TTLDuration(cfg.Exam.ContentTTL, 10*time.Minute)

	if db != nil {
		identities = pginfra.NewIdentityRepository(db)
		sessions = pginfra.NewLoginSessionRepository(db)
		examSessions = pginfra.NewExamSessionRepository(db)
		attempts = pginfra.NewAttemptRepository(db)
		audit = pginfra.NewAuditRepository(db)
		loader := pginfra.NewExamLoader(pool)
		exams = loader
		if redisClient != nil {
			content = redisinfra.NewExamContentCache(redisClient, loader, contentTTL)
		} else {
			content = memory.NewExamContentCache(loader, contentTTL)
		}
	} else {
		identityStore := memory.NewIdentityStore()
		examStore := memory.NewExamStore()
		seedSampleData(identityStore, examStore)
		identities = identityStore
		sessions = memory.NewLoginSessionStore()
		examSessions = examStore
		exams = examStore
		attempts = memory.NewAttemptStore()
		audit = memory.NewAuditStore()
		if redisClient != nil {
			content = redisinfra.NewExamContentCache(redisClient, examStore, contentTTL)
		} else {
			content = memory.NewExamContentCache(examStore, contentTTL)
		}
	}

	authService := app.NewAuthService(identities, sessions, examSessions, audit, lockout, app.AuthConfig{
		DerivationSuffix:     cfg.Auth.DerivationSuffix,
		SessionTTL:           config.TTLDuration(cfg.Auth.SessionTTL, 12*time.Hour),
		JWTSecret:            []byte(config.StringOr(cfg.Auth.JWTSecret, "dev-jwt-secret")),
		AllowLegacyPlaintext: cfg.Auth.AllowLegacyPlaintext,
		PasswordHistoryDepth: config.IntOr(cfg.Auth.PasswordHistory, 5),
	})

	timer := app.NewTimerEngine(
		[]byte(config.StringOr(cfg.Timer.SigningKey, "dev-timer-key")),
		config.TTLDuration(cfg.Timer.Grace, 5*time.Minute),
	)
	attemptService := app.NewAttemptService(attempts, content, timer)
	examSessionService := app.NewExamSessionService(examSessions, exams, config.TTLDuration(cfg.Exam.SessionTTL, 24*time.Hour))

	authHandler := transport.NewAuthHandler(authService)
	examHandler := transport.NewExamHandler(attemptService, examSessionService)
	wsHandler := transport.NewWSHandler(authService, attemptService, 5*time.Second)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.NewRouter(authHandler, examHandler, wsHandler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting exam portal on :%s", finalPort)
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

// seedSampleData fills the in-memory stores with a coordinator, one student,
// and one published exam so the portal is usable without Postgres.
func seedSampleData(identityStore *memory.IdentityStore, examStore *memory.ExamStore) {
	coordinatorHash, _ := bcrypt.GenerateFromPassword([]byte("Coordinator#2026"), bcrypt.DefaultCost)
	identityStore.Seed(domain.Identity{
		LoginName:    "coordinator",
		DisplayName:  "Exam Coordinator",
		Role:         domain.RoleCoordinator,
		PasswordHash: string(coordinatorHash),
	}, nil)

	identityStore.Seed(domain.Identity{
		LoginName:   "student1",
		DisplayName: "Sample Student",
		Role:        domain.RoleStudent,
	}, &domain.StudentProfile{
		IDNumber: "20260042",
		Email:    "student1@example.edu",
		FullName: "Sample Student",
	})

	now := time.Now()
	examStore.SeedExam(domain.ExamContent{
		Exam: domain.Exam{
			ID:              1,
			Title:           "Placement Exam",
			AcademicYear:    "2026",
			StartsAt:        now,
			EndsAt:          now.Add(24 * time.Hour),
			DurationMinutes: 60,
			Published:       true,
		},
		Questions: []domain.Question{
			{
				ID:     1,
				ExamID: 1,
				Prompt: "What is 2 + 2?",
				Choices: []domain.Choice{
					{ID: 1, QuestionID: 1, Position: 1, Text: "3"},
					{ID: 2, QuestionID: 1, Position: 2, Text: "4", IsCorrect: true},
					{ID: 3, QuestionID: 1, Position: 3, Text: "5"},
				},
			},
		},
	})
}
