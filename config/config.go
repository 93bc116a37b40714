package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	ServerAddr string

	// 账本配置，启动后不可修改
	AdminAddress      string
	LedgerAddress     string
	PlatformFeeBps    uint64
	MinPricePerStream string // decimal, e.g. "0.001"
	MaxPricePerStream string

	// 支付代币
	TokenBackend string // memory | redis
	TokenSymbol  string

	// 认证
	JWTSecret string
	JWTTTL    time.Duration
	// 登录/注册接口每个 IP 每秒允许的请求数
	AuthRateLimit float64
	AuthRateBurst int

	JournalEnabled bool

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	EventChannel  string
	// 共享日志的单写者租约，其余实例只读跟随
	WriterLockKey string
	WriterLockTTL time.Duration

	// MinIO配置
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MaxUploadSize  int64

	// 日志配置
	LogLevel      string
	LogFile       string
	LogLevelFile  string
	LogMaxSize    int
	LogMaxBackups int
	LogMaxAge     int
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvUint(key string, fallback uint64) uint64 {
	if value, exists := os.LookupEnv(key); exists {
		if v, err := strconv.ParseUint(value, 10, 64); err == nil {
			return v
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			return v
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if v, err := strconv.ParseBool(value); err == nil {
			return v
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if v, err := time.ParseDuration(value); err == nil {
			return v
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}
	return fromEnv()
}

func fromEnv() *Config {
	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),

		AdminAddress:      getEnv("ADMIN_ADDRESS", ""),
		LedgerAddress:     getEnv("LEDGER_ADDRESS", "0x00000000000000000000000000000000000f10ca"),
		PlatformFeeBps:    getEnvUint("PLATFORM_FEE_BPS", 250),
		MinPricePerStream: getEnv("MIN_PRICE_PER_STREAM", "0.001"),
		MaxPricePerStream: getEnv("MAX_PRICE_PER_STREAM", "1.00"),

		TokenBackend: getEnv("TOKEN_BACKEND", "memory"),
		TokenSymbol:  getEnv("TOKEN_SYMBOL", "USDT"),

		JWTSecret:     os.Getenv("JWT_SECRET"), // no default for secrets
		JWTTTL:        getEnvDuration("JWT_TTL", 24*time.Hour),
		AuthRateLimit: getEnvFloat("AUTH_RATE_LIMIT", 1),
		AuthRateBurst: getEnvInt("AUTH_RATE_BURST", 5),

		JournalEnabled: getEnvBool("JOURNAL_ENABLED", true),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "flowcash"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""), // 默认无密码
		RedisDB:       getEnvInt("REDIS_DB", 0),
		EventChannel:  getEnv("REDIS_EVENT_CHANNEL", "flowcash:events"),
		WriterLockKey: getEnv("WRITER_LOCK_KEY", "flowcash:writer"),
		WriterLockTTL: getEnvDuration("WRITER_LOCK_TTL", 15*time.Second),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", "minioadmin"),
		MinioBucket:    getEnv("MINIO_BUCKET", "flowcash-content"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		MaxUploadSize:  int64(getEnvInt("MAX_UPLOAD_MB", 50)) << 20,

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogLevelFile:  getEnv("LOG_LEVEL_FILE", ""),
		LogMaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
		LogMaxAge:     getEnvInt("LOG_MAX_AGE", 30),
	}
}
