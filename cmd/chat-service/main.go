package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"socialhub-backend/internal/config"
	chatHandler "socialhub-backend/internal/handler/http/chat"
	conversationHandler "socialhub-backend/internal/handler/http/conversation"
	wsHandler "socialhub-backend/internal/handler/ws"
	"socialhub-backend/internal/middleware"
	"socialhub-backend/internal/repository/memory"
	"socialhub-backend/internal/repository/postgres"
	"socialhub-backend/internal/repository/redis"
	"socialhub-backend/internal/server"
	"socialhub-backend/internal/service/chat"
	"socialhub-backend/internal/service/conversation"
	"socialhub-backend/internal/service/media"
	"socialhub-backend/internal/service/notification"
	"socialhub-backend/internal/service/storage"
	"socialhub-backend/pkg/database"
	"socialhub-backend/pkg/jwt"
	"socialhub-backend/pkg/logger"
	"socialhub-backend/pkg/metrics"
	"socialhub-backend/pkg/push"
)

// messageStore is what both store drivers provide
type messageStore interface {
	chat.Store
	conversation.Store
	Ping(ctx context.Context) error
}

func main() {
	// 1. Configuration and logging
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := logger.Init(&logger.Config{
		Level:         cfg.Log.Level,
		Format:        cfg.Log.Format,
		Output:        cfg.Log.Output,
		FilePath:      cfg.Log.FilePath,
		RotationHours: cfg.Log.RotationHours,
		MaxAgeDays:    cfg.Log.MaxAgeDays,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appMetrics := metrics.NewMetrics(cfg.Server.ServiceName, metrics.NewRegistry())

	// 2. Store
	var (
		store     messageStore
		profiles  chat.ProfileDirectory
		pg        *database.PostgresDB
		poolGuard *middleware.DBPoolGuard
	)
	switch cfg.Database.Driver {
	case config.StoreMemory:
		mem := memory.NewStore()
		store, profiles = mem, mem
		logger.Warn("Using in-memory store; data is lost on restart")
	default:
		pg, err = database.NewPostgresDBFromDSN(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
		}
		defer pg.Close()
		store = postgres.NewStore(pg.Pool)
		profiles = postgres.NewProfileRepository(pg.Pool)
		poolGuard = middleware.NewDBPoolGuard(pg, appMetrics, cfg.Database.PoolShedThreshold)
		logger.Info("Connected to PostgreSQL")
	}

	// 3. Redis: profile cache, token revocation, rate limiting and fan-out
	var (
		redisClient *goredis.Client
		revocation  middleware.RevocationChecker
		rateLimiter *middleware.RateLimiter
	)
	if cfg.Redis.Enabled {
		redisDB, err := database.NewRedisDB(&database.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			Timeout:  cfg.Redis.Timeout,
		})
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisDB.Close()
		redisClient = redisDB.Client

		profiles = redis.NewProfileCache(redisClient, profiles, cfg.Redis.ProfileCacheTTL)
		revocation = middleware.NewRedisRevocationChecker(redisClient)
		rateLimiter = middleware.NewRateLimiter(redisClient, "chat", cfg.Server.RateLimitRequests, cfg.Server.RateLimitWindow)
		logger.Info("Connected to Redis")
	} else if pg != nil {
		profileCache := memory.NewProfileCache(profiles, cfg.Redis.ProfileCacheTTL, 10000)
		defer profileCache.Close()
		profiles = profileCache
	}

	// 4. Realtime hub
	hub := wsHandler.NewHub(wsHandler.HubConfig{
		ClientBuffer:  cfg.Realtime.ClientBuffer,
		MailboxSize:   cfg.Realtime.RoomMailbox,
		ReorderWindow: cfg.Realtime.ReorderWindow,
	})
	if cfg.Redis.Fanout {
		relay := wsHandler.NewRedisRelay(redisClient, uuid.NewString())
		hub.SetRelay(relay)
		go func() {
			if err := relay.Run(ctx, hub); err != nil {
				logger.Error("Realtime relay stopped", zap.Error(err))
			}
		}()
	}

	// 5. Push
	provider, err := push.NewProvider(ctx, push.Config{
		Provider: push.ProviderType(cfg.Push.Provider),
		FCM: push.FCMConfig{
			ProjectID:       cfg.Push.FCMProjectID,
			CredentialsPath: cfg.Push.FCMCredentialsPath,
		},
		APNs: push.APNsConfig{
			CertificatePath:     cfg.Push.APNsCertificatePath,
			CertificatePassword: cfg.Push.APNsCertPassword,
			KeyPath:             cfg.Push.APNsKeyPath,
			KeyID:               cfg.Push.APNsKeyID,
			TeamID:              cfg.Push.APNsTeamID,
			BundleID:            cfg.Push.APNsBundleID,
			Production:          cfg.Push.APNsProduction,
		},
	})
	if err != nil {
		logger.Fatal("Failed to initialize push provider", zap.Error(err))
	}
	dispatcher := notification.NewDispatcher(provider, profiles, hub)

	// 6. Media
	var uploader chat.MediaUploader
	if cfg.Media.Enabled {
		objects, err := storage.NewObjectStore(ctx, storage.Config{
			Backend:   cfg.Media.Backend,
			PublicURL: cfg.Media.PublicURL,
			Minio: storage.MinioConfig{
				Endpoint:  cfg.Media.MinioEndpoint,
				AccessKey: cfg.Media.MinioAccessKey,
				SecretKey: cfg.Media.MinioSecretKey,
				Bucket:    cfg.Media.Bucket,
				UseSSL:    cfg.Media.MinioUseSSL,
				PublicURL: cfg.Media.PublicURL,
			},
			S3: storage.S3Config{
				Endpoint:        cfg.Media.S3Endpoint,
				AccessKeyID:     cfg.Media.S3AccessKeyID,
				SecretAccessKey: cfg.Media.S3SecretAccessKey,
				Bucket:          cfg.Media.Bucket,
				Region:          cfg.Media.S3Region,
				PublicURL:       cfg.Media.PublicURL,
			},
		})
		if err != nil {
			logger.Fatal("Failed to initialize media storage", zap.Error(err))
		}
		uploader = media.NewPipeline(objects, media.Limits{
			Image: cfg.Media.MaxImageBytes,
			Audio: cfg.Media.MaxAudioBytes,
			Video: cfg.Media.MaxVideoBytes,
		})
		logger.Info("Media uploads enabled", zap.String("backend", cfg.Media.Backend))
	} else {
		logger.Info("Media uploads disabled")
	}

	// 7. Services
	conversationSvc := conversation.NewService(store, profiles)
	chatSvc := chat.NewService(store, hub, dispatcher, profiles, uploader,
		chat.WithConversations(conversationSvc),
		chat.WithPushTimeout(cfg.Push.Timeout))

	// 8. Router
	jwtManager := jwt.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Audience, cfg.JWT.TTL)
	router := server.NewRouter(server.Deps{
		JWT:           jwtManager,
		Revocation:    revocation,
		Metrics:       appMetrics,
		Chat:          chatHandler.NewHandler(chatSvc),
		Conversations: conversationHandler.NewHandler(conversationSvc),
		WS: wsHandler.NewHandler(hub, conversationSvc, wsHandler.HandlerConfig{
			AllowedOrigins: cfg.Realtime.AllowedOrigins,
			MaxConnections: cfg.Realtime.MaxConnections,
		}),
		RateLimiter:    rateLimiter,
		PoolGuard:      poolGuard,
		Health:         healthHandler(cfg.Server.ServiceName, store, redisClient, hub),
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		UploadTimeout:  cfg.Server.UploadTimeout,
	})

	// 9. Serve
	srv := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Chat service starting",
			zap.String("addr", srv.Addr),
			zap.String("store", cfg.Database.Driver),
			zap.Bool("redis_fanout", cfg.Redis.Fanout))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 10. Graceful shutdown
	<-ctx.Done()
	logger.Info("Shutting down chat service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	hub.Close()

	pushDone := make(chan struct{})
	go func() {
		chatSvc.Wait()
		close(pushDone)
	}()
	select {
	case <-pushDone:
	case <-shutdownCtx.Done():
		logger.Warn("Pending push notifications abandoned")
	}

	logger.Info("Chat service stopped")
}

func healthHandler(service string, store messageStore, redisClient *goredis.Client, hub *wsHandler.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		checks := gin.H{}

		if err := store.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			checks["database"] = err.Error()
		} else {
			checks["database"] = "ok"
		}

		if redisClient != nil {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				status = http.StatusServiceUnavailable
				checks["redis"] = err.Error()
			} else {
				checks["redis"] = "ok"
			}
		}

		state := "healthy"
		if status != http.StatusOK {
			state = "degraded"
		}

		c.JSON(status, gin.H{
			"status":       state,
			"service":      service,
			"time":         time.Now().UTC(),
			"checks":       checks,
			"rooms":        hub.RoomCount(),
			"side_effects": metrics.SideEffectErrors(),
		})
	}
}
