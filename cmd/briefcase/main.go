// Точка входа движка контроля доступа и жизненного цикла документов.
// Загружает конфигурацию, подключается к PostgreSQL, применяет миграции,
// инициализирует blob store и key vault, создаёт сервисный слой и API
// handlers, запускает фоновый lifecycle sweep, HTTP-сервер с JWT
// middleware и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/sluggerrrr/briefcase-sub001/internal/api/handlers"
	"github.com/sluggerrrr/briefcase-sub001/internal/api/middleware"
	"github.com/sluggerrrr/briefcase-sub001/internal/config"
	"github.com/sluggerrrr/briefcase-sub001/internal/database"
	"github.com/sluggerrrr/briefcase-sub001/internal/keyvault"
	"github.com/sluggerrrr/briefcase-sub001/internal/repository"
	"github.com/sluggerrrr/briefcase-sub001/internal/server"
	"github.com/sluggerrrr/briefcase-sub001/internal/service"
	"github.com/sluggerrrr/briefcase-sub001/internal/storage/blobstore"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Движок запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 5. Blob store — файловое хранилище зашифрованного содержимого
	blobs, err := blobstore.NewFSStore(cfg.BlobDir)
	if err != nil {
		logger.Error("Ошибка инициализации blob store",
			slog.String("dir", cfg.BlobDir),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	logger.Info("Blob store инициализирован", slog.String("dir", cfg.BlobDir))

	// 6. Repositories
	docRepo := repository.NewDocumentRepository(pool)
	permRepo := repository.NewPermissionRepository(pool)
	keyRepo := repository.NewKeyRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)
	jobRunRepo := repository.NewJobRunRepository(pool)

	// Транзакционное удаление: документ + ключи в одной транзакции
	txRunner := repository.NewTxRunner(pool)
	deleter := repository.NewDocumentDeleter(txRunner)

	// 7. Key vault — ключи документов, обёрнутые master-ключом
	vault, err := keyvault.New(keyRepo, cfg.MasterKey)
	if err != nil {
		logger.Error("Ошибка инициализации key vault", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 8. Services
	cache := service.NewDecisionCache(cfg.CacheSize, cfg.CacheTTL)
	auditSvc := service.NewAuditService(auditRepo, logger)
	permSvc := service.NewPermissionService(permRepo, auditSvc, cache, logger)
	accessSvc := service.NewAccessService(docRepo, permSvc, auditSvc, logger)
	cryptoSvc := service.NewCryptoService(vault, logger)
	docSvc := service.NewDocumentService(
		docRepo, deleter, accessSvc, permSvc, cryptoSvc, blobs, auditSvc, logger,
	)
	lifecycleSvc := service.NewLifecycleService(
		docRepo, permRepo, jobRunRepo, auditSvc, auditRepo, blobs,
		service.LifecycleConfig{
			Interval:       cfg.SweepInterval,
			BatchSize:      cfg.SweepBatchSize,
			PurgeGrace:     cfg.PurgeGracePeriod,
			AuditRetention: cfg.AuditRetention(),
		},
		logger,
	)

	// 9. Запуск фонового lifecycle sweep
	lifecycleSvc.Start(ctx)
	logger.Info("Lifecycle sweep запущен",
		slog.String("interval", cfg.SweepInterval.String()),
		slog.Int("batch_size", cfg.SweepBatchSize),
	)

	// 10. Readiness checkers (PostgreSQL + blob store)
	pgChecker := database.NewReadinessChecker(pool)
	healthHandler := handlers.NewHealthHandler(pgChecker, blobs)

	// 11. API handler
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		docSvc,
		accessSvc,
		permSvc,
		auditSvc,
		lifecycleSvc,
		jobRunRepo,
		logger,
	)

	// 12. JWT middleware (опционально: без BC_JWT_JWKS_URL запросы
	// отклоняются как неаутентифицированные на уровне handlers)
	var jwtAuth *middleware.JWTAuth
	if cfg.JWTJWKSURL != "" {
		jwtAuth, err = middleware.NewJWTAuth(cfg.JWTJWKSURL, logger)
		if err != nil {
			logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("JWT middleware инициализирован",
			slog.String("jwks_url", cfg.JWTJWKSURL),
		)
	} else {
		logger.Warn("BC_JWT_JWKS_URL не задан, JWT middleware отключён")
	}

	// 13. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, jwtAuth)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 14. Graceful shutdown фоновых задач
	logger.Info("Останавливаем lifecycle sweep...")
	lifecycleSvc.Stop()

	logger.Info("Движок остановлен")
}
