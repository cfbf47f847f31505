package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	// Crossfade and lane playback
	FadeIn         time.Duration
	FadeOut        time.Duration
	VolumeRamp     time.Duration
	DefaultVolume  int
	PlayRetries    int
	PlayRetryDelay time.Duration

	// Resource cache
	CacheRequiredReady         int
	CacheMaxRetries            int
	CacheRetryDelay            time.Duration
	CacheBackgroundConcurrency int

	// Audio output
	AudioOutput     string // "speaker" or "null"
	AudioSampleRate int
	AudioBufferMS   int

	// Catalog
	CatalogSource       string // "local", "minio" or "mysql"
	CatalogDir          string
	CatalogCategories   []string
	CatalogTrackLimit   int
	CatalogPollInterval time.Duration
	CatalogCacheTTL     time.Duration // 0 disables the Redis listing cache

	// MinIO
	MinioEndpoint   string
	MinioAccessKey  string
	MinioSecretKey  string
	MinioBucket     string
	MinioUseSSL     bool
	MinioRegion     string
	MinioPresignTTL time.Duration

	// MySQL
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

	HTTPAddr string

	LogLevel  string
	LogFile   string
	LogFormat string // "json" or "console"
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

// getEnvBool accepts anything strconv.ParseBool does.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("30s") or a plain number
// interpreted in the given unit.
func getEnvDuration(key string, fallback, unit time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * unit
	}
	return fallback
}

// getEnvList splits a comma separated value, dropping empty items.
func getEnvList(key string, fallback []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

// DefaultCategories are the two default lanes.
var DefaultCategories = []string{"Brown Noise Stream", "Rain Makes Everything Better"}

// Load loads configuration from environment variables (via .env files) or defaults.
// Existing environment variables win over values from the files.
func Load(envFiles ...string) *Config {
	if err := godotenv.Load(envFiles...); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	return &Config{
		FadeIn:         getEnvDuration("FADE_IN_MS", 300*time.Millisecond, time.Millisecond),
		FadeOut:        getEnvDuration("FADE_OUT_MS", 200*time.Millisecond, time.Millisecond),
		VolumeRamp:     getEnvDuration("VOLUME_RAMP_MS", 50*time.Millisecond, time.Millisecond),
		DefaultVolume:  getEnvInt("DEFAULT_VOLUME", 50),
		PlayRetries:    getEnvInt("PLAY_RETRIES", 3),
		PlayRetryDelay: getEnvDuration("PLAY_RETRY_DELAY_MS", 100*time.Millisecond, time.Millisecond),

		CacheRequiredReady:         getEnvInt("CACHE_REQUIRED_READY", 2),
		CacheMaxRetries:            getEnvInt("CACHE_MAX_RETRIES", 3),
		CacheRetryDelay:            getEnvDuration("CACHE_RETRY_DELAY_MS", time.Second, time.Millisecond),
		CacheBackgroundConcurrency: getEnvInt("CACHE_BACKGROUND_CONCURRENCY", 4),

		AudioOutput:     getEnv("AUDIO_OUTPUT", "speaker"),
		AudioSampleRate: getEnvInt("AUDIO_SAMPLE_RATE", 44100),
		AudioBufferMS:   getEnvInt("AUDIO_BUFFER_MS", 100),

		CatalogSource:       getEnv("CATALOG_SOURCE", "local"),
		CatalogDir:          getEnv("CATALOG_DIR", "sounds"),
		CatalogCategories:   getEnvList("CATALOG_CATEGORIES", DefaultCategories),
		CatalogTrackLimit:   getEnvInt("CATALOG_TRACK_LIMIT", 5),
		CatalogPollInterval: getEnvDuration("CATALOG_POLL_INTERVAL", 30*time.Second, time.Second),
		CatalogCacheTTL:     getEnvDuration("CATALOG_CACHE_TTL", 10*time.Minute, time.Second),

		MinioEndpoint:   getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey:  getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey:  os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:     getEnv("MINIO_BUCKET", "ambientfm"),
		MinioUseSSL:     getEnvBool("MINIO_USE_SSL", false),
		MinioRegion:     getEnv("MINIO_REGION", "us-east-1"),
		MinioPresignTTL: getEnvDuration("MINIO_PRESIGN_TTL", time.Hour, time.Second),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // For password, better not to have a hardcoded default
		DBName:     getEnv("DB_NAME", "ambientfm"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""), // 默认无密码
		RedisDB:       getEnvInt("REDIS_DB", 0),     // 默认使用0号数据库

		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFile:   getEnv("LOG_FILE", ""),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}
