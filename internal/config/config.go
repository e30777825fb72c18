// Пакет config — загрузка и валидация конфигурации движка
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации движка.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Шифрование ---

	// Master-ключ оборачивания ключей документов (base64, 32 байта)
	MasterKey string

	// --- Blob store ---

	// Директория файлового blob store
	BlobDir string

	// --- JWT ---

	// URL JWKS endpoint IdP (опционально; без него запросы не аутентифицируются
	// и API закрыт — годится только для локальной разработки за шлюзом)
	JWTJWKSURL string
	// Claim для ролей в JWT
	JWTRolesClaim string

	// --- Lifecycle ---

	// Интервал между запусками sweep
	SweepInterval time.Duration
	// Размер порции документов на фазу sweep
	SweepBatchSize int
	// Grace-период между пометкой deleted и физической очисткой
	PurgeGracePeriod time.Duration
	// Срок хранения записей аудита в днях (0 — хранить вечно)
	AuditRetentionDays int

	// --- Кэш прав ---

	// Максимальное количество записей кэша решений
	CacheSize int
	// Время жизни записи кэша
	CacheTTL time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// BC_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("BC_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("BC_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("BC_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// BC_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("BC_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("BC_LOG_LEVEL: %w", err)
	}

	// BC_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("BC_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("BC_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	// BC_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("BC_DB_HOST")
	if err != nil {
		return nil, err
	}

	// BC_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("BC_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("BC_DB_PORT: %w", err)
	}

	// BC_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("BC_DB_NAME")
	if err != nil {
		return nil, err
	}

	// BC_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("BC_DB_USER")
	if err != nil {
		return nil, err
	}

	// BC_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("BC_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// BC_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("BC_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("BC_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Шифрование ---

	// BC_MASTER_KEY — обязательный
	cfg.MasterKey, err = getEnvRequired("BC_MASTER_KEY")
	if err != nil {
		return nil, err
	}

	// --- Blob store ---

	// BC_BLOB_DIR — директория blob store (по умолчанию /var/lib/briefcase/blobs)
	cfg.BlobDir = getEnvDefault("BC_BLOB_DIR", "/var/lib/briefcase/blobs")

	// --- JWT ---

	// BC_JWT_JWKS_URL — URL JWKS endpoint (опционально)
	cfg.JWTJWKSURL = getEnvDefault("BC_JWT_JWKS_URL", "")

	// BC_JWT_ROLES_CLAIM — claim для ролей (по умолчанию realm_access.roles)
	cfg.JWTRolesClaim = getEnvDefault("BC_JWT_ROLES_CLAIM", "realm_access.roles")

	// --- Lifecycle ---

	// BC_SWEEP_INTERVAL — интервал sweep (по умолчанию 5m)
	cfg.SweepInterval, err = getEnvDuration("BC_SWEEP_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("BC_SWEEP_INTERVAL: %w", err)
	}

	// BC_SWEEP_BATCH_SIZE — размер порции sweep (по умолчанию 500)
	cfg.SweepBatchSize, err = getEnvInt("BC_SWEEP_BATCH_SIZE", 500)
	if err != nil {
		return nil, fmt.Errorf("BC_SWEEP_BATCH_SIZE: %w", err)
	}
	if cfg.SweepBatchSize < 1 || cfg.SweepBatchSize > 10000 {
		return nil, fmt.Errorf("BC_SWEEP_BATCH_SIZE: значение %d вне допустимого диапазона 1-10000", cfg.SweepBatchSize)
	}

	// BC_PURGE_GRACE_PERIOD — grace-период до физической очистки (по умолчанию 720h = 30 суток)
	cfg.PurgeGracePeriod, err = getEnvDuration("BC_PURGE_GRACE_PERIOD", 720*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("BC_PURGE_GRACE_PERIOD: %w", err)
	}

	// BC_AUDIT_RETENTION_DAYS — срок хранения аудита (по умолчанию 2555 ≈ 7 лет)
	cfg.AuditRetentionDays, err = getEnvInt("BC_AUDIT_RETENTION_DAYS", 2555)
	if err != nil {
		return nil, fmt.Errorf("BC_AUDIT_RETENTION_DAYS: %w", err)
	}
	if cfg.AuditRetentionDays < 0 {
		return nil, fmt.Errorf("BC_AUDIT_RETENTION_DAYS: значение %d не может быть отрицательным", cfg.AuditRetentionDays)
	}

	// --- Кэш прав ---

	// BC_CACHE_SIZE — размер кэша решений (по умолчанию 10000)
	cfg.CacheSize, err = getEnvInt("BC_CACHE_SIZE", 10000)
	if err != nil {
		return nil, fmt.Errorf("BC_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize < 1 {
		return nil, fmt.Errorf("BC_CACHE_SIZE: значение %d должно быть положительным", cfg.CacheSize)
	}

	// BC_CACHE_TTL — время жизни записи кэша (по умолчанию 5m)
	cfg.CacheTTL, err = getEnvDuration("BC_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("BC_CACHE_TTL: %w", err)
	}

	// --- Graceful shutdown ---

	// BC_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("BC_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("BC_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// AuditRetention возвращает срок хранения аудита как time.Duration.
func (c *Config) AuditRetention() time.Duration {
	return time.Duration(c.AuditRetentionDays) * 24 * time.Hour
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
