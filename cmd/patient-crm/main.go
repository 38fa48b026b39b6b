package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/audi0417/Patient-CRM-sub002/internal/access"
	"github.com/audi0417/Patient-CRM-sub002/internal/audit"
	"github.com/audi0417/Patient-CRM-sub002/internal/config"
	"github.com/audi0417/Patient-CRM-sub002/internal/database"
	"github.com/audi0417/Patient-CRM-sub002/internal/fieldcrypt"
	"github.com/audi0417/Patient-CRM-sub002/internal/httpapi"
	"github.com/audi0417/Patient-CRM-sub002/internal/logger"
	"github.com/audi0417/Patient-CRM-sub002/internal/query"
	"github.com/audi0417/Patient-CRM-sub002/internal/repository"
	"github.com/audi0417/Patient-CRM-sub002/internal/service"
	"github.com/audi0417/Patient-CRM-sub002/internal/tenant"
)

func main() {
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "patient-crm")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// 致命配置错误必须在启动阶段退出
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}
	masterKey, err := fieldcrypt.NormalizeMasterKey(cfg.Encryption.MasterKey)
	if err != nil {
		log.Fatal("invalid encryption master key", zap.Error(err))
	}
	crypt, err := fieldcrypt.NewService(masterKey, log)
	if err != nil {
		log.Fatal("failed to initialize field encryption", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	// 审计输出：日志兜底 + 可选 Redis Streams / webhook
	emitters := audit.MultiEmitter{audit.NewLogEmitter(log)}
	var redisClient *redis.Client
	if cfg.Audit.StreamEnabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		emitters = append(emitters, audit.NewStreamEmitter(redisClient, cfg.Audit.Stream, log))
	}
	if cfg.Audit.WebhookURL != "" {
		emitters = append(emitters, audit.NewWebhookEmitter(cfg.Audit.WebhookURL, log))
	}

	orgs := repository.NewPostgresOrganizationStore(db)
	resolver := tenant.NewResolver(orgs, database.NewTenantConns(db, log), query.DialectPostgres, log)
	matrix := access.NewMatrix(access.DefaultRegistry(), log)
	middleware := httpapi.NewMiddleware(resolver, matrix, emitters, log)

	patients := httpapi.NewPatientHandler(repository.NewPatientRepository(crypt, log), log)

	router := httpapi.NewRouter(log)
	router.RegisterPatientRoutes(middleware, patients)
	router.RegisterHealthRoute()

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		cancel()
	case err := <-errCh:
		log.Error("server stopped", zap.Error(err))
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	if redisClient != nil {
		_ = redisClient.Close()
	}
}
