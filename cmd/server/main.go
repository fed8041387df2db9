package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/smquiz/quiz-backend/internal/attempt"
	"github.com/smquiz/quiz-backend/internal/config"
	"github.com/smquiz/quiz-backend/internal/database"
	"github.com/smquiz/quiz-backend/internal/delivery"
	"github.com/smquiz/quiz-backend/internal/handler"
	"github.com/smquiz/quiz-backend/internal/logger"
	"github.com/smquiz/quiz-backend/internal/repository"
	"github.com/smquiz/quiz-backend/internal/router"
	"github.com/smquiz/quiz-backend/internal/service"
	"github.com/smquiz/quiz-backend/internal/validator"
	"github.com/smquiz/quiz-backend/internal/worker"
)

// attemptIdleTimeout drops attempts whose instructions were never accepted.
const attemptIdleTimeout = 30 * time.Minute

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("delivery_broker", cfg.DeliveryBroker).
		Msg("Starting quiz backend")

	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load exam policy")
	}
	log.Info().
		Int("max_warnings", policy.MaxWarnings).
		Float64("minutes_per_question", policy.MinutesPerQuestion).
		Float64("pass_percentage", policy.PassPercentage).
		Msg("Exam policy loaded")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Connect to RabbitMQ (optional) ────────────────────────────────
	var mq *database.RabbitMQ
	if cfg.DeliveryBroker == config.BrokerRabbitMQ {
		mq, err = database.NewRabbitMQ(cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
		}
		defer mq.Close()
	}

	// ─── Initialize Repositories ───────────────────────────────────────
	userRepo := repository.NewUserRepository(pool)
	subjectRepo := repository.NewSubjectRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	resultRepo := repository.NewResultRepository(pool)
	monitorRepo := repository.NewMonitorRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	registry := attempt.NewRegistry(policy.SessionGrace, attemptIdleTimeout, log)
	journal := service.NewRedisJournal(rdb, log)

	authService := service.NewAuthService(cfg, rdb, userRepo)
	subjectService := service.NewSubjectService(subjectRepo, log)
	questionService := service.NewQuestionService(questionRepo, subjectRepo, rdb, policy, log)
	resultService := service.NewResultService(resultRepo, questionRepo, questionService, rdb, policy, log)
	monitorService := service.NewMonitorService(monitorRepo, subjectRepo, registry)

	var deliverer attempt.Deliverer
	if mq != nil {
		deliverer = delivery.NewRabbitQueue(mq)
	} else {
		deliverer = delivery.NewRedisQueue(rdb)
	}
	dispatcher := attempt.NewDispatcher(resultService, deliverer, log)
	resultService.SetDispatcher(dispatcher)

	attemptService := service.NewAttemptService(
		registry, questionService, resultService, dispatcher, journal, rdb, policy, attemptIdleTimeout, log,
	)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Health:   handler.NewHealthHandler(database.NewChecker(pool, rdb), registry),
		Auth:     handler.NewAuthHandler(authService, log),
		Subject:  handler.NewSubjectHandler(subjectService),
		Question: handler.NewQuestionHandler(questionService, log),
		Attempt:  handler.NewAttemptHandler(attemptService, log),
		Result:   handler.NewResultHandler(resultService, attemptService, log),
		WS:       handler.NewWSHandler(attemptService, log, cfg.AllowedOrigins),
		Monitor:  handler.NewMonitorHandler(rdb, monitorService, log),
		System:   handler.NewSystemHandler(rdb, registry, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	resultWorker := worker.NewResultWorker(pool, rdb, log)
	violationWorker := worker.NewViolationWorker(pool, rdb, log)
	answerWorker := worker.NewAnswerWorker(pool, rdb, log)
	deliveryWorker := worker.NewDeliveryWorker(delivery.NewMailer(cfg.SMTP, log), rdb, mq, log)

	go journal.Run(workerCtx)
	go resultWorker.Start(workerCtx)
	go violationWorker.Start(workerCtx)
	go answerWorker.Start(workerCtx)
	go deliveryWorker.Start(workerCtx)

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load every paper into Redis before accepting traffic so the first
	// wave of students does not stampede Postgres.
	if err := questionService.PrewarmAllCaches(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	httpLog := logger.Component(log, "http_server")
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		httpLog.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			httpLog.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		httpLog.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop live attempts and let in-flight deliveries reach the queue.
	log.Info().Int("live_attempts", registry.Len()).Msg("Closing live attempts")
	registry.CloseAll()
	dispatcher.Wait()

	// 3. Stop background workers; each flushes its buffer on the way out.
	workerCancel()
	time.Sleep(2 * time.Second)

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
