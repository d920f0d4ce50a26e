package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/fitcoach/config"
	"github.com/yoockh/fitcoach/internal/api/handlers"
	"github.com/yoockh/fitcoach/internal/api/middleware"
	"github.com/yoockh/fitcoach/internal/api/routes"
	"github.com/yoockh/fitcoach/internal/auth"
	"github.com/yoockh/fitcoach/internal/cache"
	"github.com/yoockh/fitcoach/internal/coach"
	"github.com/yoockh/fitcoach/internal/lock"
	"github.com/yoockh/fitcoach/internal/logger"
	"github.com/yoockh/fitcoach/internal/providers/llm"
	"github.com/yoockh/fitcoach/internal/providers/stt"
	mongorepo "github.com/yoockh/fitcoach/internal/repositories/mongo"
	pgrepo "github.com/yoockh/fitcoach/internal/repositories/postgres"
	"github.com/yoockh/fitcoach/internal/services"
	"github.com/yoockh/fitcoach/internal/storage"
	"github.com/yoockh/fitcoach/internal/workers"
)

func main() {
	_ = godotenv.Load()

	path := os.Getenv("FITCOACH_CONFIG")
	if path == "" {
		path = "fitcoach.yml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	log := logger.New(cfg.Log.Level)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	if err := config.InitPostgres(cfg.Postgres); err != nil {
		return err
	}
	log.Info("PostgreSQL connected")

	if err := config.InitMongo(cfg.Mongo); err != nil {
		return err
	}
	defer func() { _ = config.MongoClient.Disconnect(context.Background()) }()
	if err := config.EnsureMongoIndexes(cfg.Mongo.DB); err != nil {
		return err
	}
	log.Info("MongoDB connected")

	// Redis is optional. Without it the profile cache is a no-op, locks are
	// process-local and background jobs report Unavailable.
	var rdb redis.UniversalClient
	var locker lock.Locker = lock.NewMemory()
	var profileCache cache.Cache = cache.Nop{}
	if cfg.Redis.Addr != "" {
		if err := config.InitRedis(cfg.Redis); err != nil {
			return err
		}
		defer config.RedisClient.Close()
		rdb = config.RedisClient
		locker = lock.NewRedis(rdb, cfg.LockTTL(), log)
		profileCache = cache.NewRedisCache(rdb, "fitcoach:")
		log.Info("Redis connected")
	} else {
		log.Warn("redis.addr not set: using in-process locks and no profile cache")
	}

	provider, err := llm.NewProvider(ctx, llm.Settings{
		Provider:  cfg.LLM.Provider,
		Model:     cfg.LLM.Model,
		APIKey:    cfg.LLM.APIKey,
		ProjectID: cfg.LLM.ProjectID,
		Location:  cfg.LLM.Location,
	})
	if err != nil {
		return err
	}
	defer provider.Close()
	gen := coach.New(provider, cfg.LLM.Timeout, log)

	db := config.PostgresDB
	mdb := config.MongoClient.Database(cfg.Mongo.DB)

	users := pgrepo.NewUserRepo(db)
	convos := pgrepo.NewConversationRepo(db)
	profileStore := pgrepo.NewProfileRepo(db)
	programStore := pgrepo.NewProgramRepo(db)
	workoutStore := pgrepo.NewWorkoutRepo(db)
	audit := mongorepo.NewProfileUpdateRepo(mdb)

	tokens := auth.NewTokens(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL)

	authSvc := services.NewAuthService(users, tokens, log)
	profileSvc := services.NewProfileService(profileStore, profileCache, cfg.Cache.ProfileTTL, log)
	convSvc := services.NewConversationService(convos, profileSvc, gen, locker, cfg.Lock.Wait, log)
	programSvc := services.NewProgramService(programStore, profileSvc, gen, log)
	updateSvc := services.NewProfileUpdateService(convos, profileStore, profileSvc, audit, programSvc, locker, cfg.Lock.Wait, log)
	workoutSvc := services.NewWorkoutService(workoutStore, programSvc, locker, cfg.Lock.Wait, log)
	progressSvc := services.NewProgressService(workoutStore)

	var speech stt.Provider
	if cfg.Speech.Enabled {
		g, err := stt.NewGoogleSpeech(ctx, cfg.Speech.SampleRate)
		if err != nil {
			return err
		}
		defer g.Close()
		speech = g
	}
	var archive storage.Uploader
	if cfg.Storage.Bucket != "" {
		u, err := storage.NewGCSUploader(ctx, cfg.Storage.Bucket)
		if err != nil {
			return err
		}
		defer u.Close()
		archive = u
	}
	transcribeSvc := services.NewTranscriptionService(speech, archive, cfg.Speech.LanguageCode, log)

	queue := &workers.ProgramQueue{Redis: rdb, Stream: cfg.Workers.Stream}
	var pool *workers.ProgramWorkerPool
	if rdb != nil && cfg.Workers.Count > 0 {
		pool = &workers.ProgramWorkerPool{
			Redis:      rdb,
			Programs:   programSvc,
			NumWorkers: cfg.Workers.Count,
			Logger:     log,
			Stream:     cfg.Workers.Stream,
			Group:      cfg.Workers.Group,
		}
		if err := pool.Start(ctx); err != nil {
			return err
		}
	}

	gin.SetMode(cfg.Server.GinMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))
	routes.RegisterRoutes(r, routes.Deps{
		Tokens:     tokens,
		Auth:       handlers.NewAuthHandler(authSvc),
		Intake:     handlers.NewIntakeHandler(convSvc),
		Profile:    handlers.NewProfileHandler(profileSvc, convSvc, updateSvc),
		Program:    handlers.NewProgramHandler(programSvc, queue),
		Transcribe: handlers.NewTranscribeHandler(transcribeSvc),
		Workout:    handlers.NewWorkoutHandler(workoutSvc, progressSvc),
		WS:         handlers.NewWSHandler(rdb, cfg.Server.AllowedOrigins),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Server.Port).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}
	if pool != nil {
		pool.Wait()
	}
	return nil
}
