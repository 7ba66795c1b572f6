package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type Config struct {
	ListenAddr string
	LogFormat  string

	StorageType      string
	LocalStoragePath string
	DataSourceName   string
	S3BucketName     string
	RedisAddr        string
	RedisDB          int
	PostgresDSN      string

	// SendTimeout bounds every write to a room connection.
	SendTimeout time.Duration
	// PongWait is how long a silent connection survives before it is closed.
	PongWait       time.Duration
	StoreTimeout   time.Duration
	MaxMessageSize int64
	// WSRateLimit is the number of upgrades per second allowed per client IP.
	// Zero disables limiting.
	WSRateLimit float64
	CORSOrigins []string
}

func Load() *Config {
	return &Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":8000"),
		LogFormat:  getEnv("LOG_FORMAT", "text"),

		StorageType:      getEnv("STORAGE_TYPE", "memory"),
		LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", "./data"),
		DataSourceName:   getEnv("DATA_SOURCE_NAME", "pairpad.db"),
		S3BucketName:     getEnv("S3_BUCKET_NAME", ""),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		PostgresDSN:      getEnv("POSTGRES_DSN", ""),

		SendTimeout:    getEnvDuration("SEND_TIMEOUT", 5*time.Second),
		PongWait:       getEnvDuration("PONG_WAIT", 60*time.Second),
		StoreTimeout:   getEnvDuration("STORE_TIMEOUT", 5*time.Second),
		MaxMessageSize: int64(getEnvInt("MAX_MESSAGE_SIZE", 1<<20)),
		WSRateLimit:    getEnvFloat("WS_RATE_LIMIT", 10),
		CORSOrigins:    getEnvList("CORS_ORIGINS", []string{"*"}),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logrus.WithFields(logrus.Fields{"key": key, "value": v}).Warn("Invalid integer in environment, using default")
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logrus.WithFields(logrus.Fields{"key": key, "value": v}).Warn("Invalid number in environment, using default")
		return fallback
	}
	return f
}

// getEnvDuration accepts Go durations ("5s", "250ms") or plain seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	logrus.WithFields(logrus.Fields{"key": key, "value": v}).Warn("Invalid duration in environment, using default")
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
