package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI         string
	MongoDB          string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	HTTPPort         string
	RabbitURI        string
	RabbitExchange   string
	JWTSecret        string
	LogMode          string
	CORSAllowOrigins string
	Engine           EngineConfig
}

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		MongoURI:         getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:          getEnv("MONGO_DB", "diagnostics"),
		RedisAddr:        strings.TrimPrefix(getEnv("REDIS_ADDR", "localhost:6379"), "redis://"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		HTTPPort:         getEnv("HTTP_PORT", "8080"),
		RabbitURI:        os.Getenv("RABBITMQ_URI"),
		RabbitExchange:   getEnv("RABBITMQ_EXCHANGE", "diagnostics.events"),
		JWTSecret:        getEnv("JWT_SECRET", "super-secret-key-change-in-production"),
		LogMode:          getEnv("LOG_MODE", "dev"),
		CORSAllowOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		Engine:           LoadEngineConfig(),
	}
}

func getEnv(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
