package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds infrastructure configuration for the engine. Domain
// options (credentials, routing policy, retention caps) come through the
// Options collaborator instead, so they can live wherever the hosting
// application keeps its settings.
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Worker   WorkerConfig
	Router   RouterConfig
	Usage    UsageConfig
	Cache    CacheConfig

	// EncryptionKey is the base64 AES key used to decrypt credential
	// option values. Empty disables decryption.
	EncryptionKey string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// RedisConfig holds Redis connection settings for the async usage queue
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// WorkerConfig holds task dispatcher settings
type WorkerConfig struct {
	TickInterval time.Duration // how often the dispatcher wakes up
	BatchSize    int           // max tasks claimed per tick
	TaskTimeout  time.Duration // per-task handler deadline
	RetryDelay   time.Duration // backoff before a failed task runs again
}

// RouterConfig holds capability router settings
type RouterConfig struct {
	RequestTimeout time.Duration // default per-provider-call timeout
}

// UsageConfig holds usage ledger settings
type UsageConfig struct {
	MaxRecords    int  // retention cap for non-system ledger rows
	AsyncRecorder bool // route ledger writes through the queue worker
	UseRedisQueue bool // back the recorder queue with Redis
}

// CacheConfig holds option cache settings
type CacheConfig struct {
	OptionCacheSize int
	OptionCacheTTL  time.Duration
}

// Load reads configuration from the environment. DATABASE_URL is
// optional: without it the worker falls back to in-memory stores.
func Load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
		},
		Redis: RedisConfig{
			Address:      getEnvString("REDIS_ADDRESS", "localhost:6379"),
			Password:     getEnvString("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Worker: WorkerConfig{
			TickInterval: getEnvDuration("WORKER_TICK_INTERVAL", time.Minute),
			BatchSize:    getEnvInt("WORKER_BATCH_SIZE", 5),
			TaskTimeout:  getEnvDuration("WORKER_TASK_TIMEOUT", 2*time.Minute),
			RetryDelay:   getEnvDuration("WORKER_RETRY_DELAY", 5*time.Minute),
		},
		Router: RouterConfig{
			RequestTimeout: getEnvDuration("ROUTER_REQUEST_TIMEOUT", 60*time.Second),
		},
		Usage: UsageConfig{
			MaxRecords:    getEnvInt("USAGE_MAX_RECORDS", 1000),
			AsyncRecorder: getEnvString("USAGE_ASYNC_RECORDER", "true") == "true",
			UseRedisQueue: getEnvString("USAGE_USE_REDIS_QUEUE", "false") == "true",
		},
		Cache: CacheConfig{
			OptionCacheSize: getEnvInt("CACHE_OPTION_SIZE", 500),
			OptionCacheTTL:  getEnvDuration("CACHE_OPTION_TTL", 5*time.Minute),
		},
		EncryptionKey: getEnvString("OPTION_ENCRYPTION_KEY", ""),
	}

	return cfg, nil
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}

	return duration
}
