// Package config loads runtime settings from environment variables.
package config

import "time"

// Config holds runtime configuration for the voice authentication API.
type Config struct {
	Environment         string
	Addr                string
	DatabaseURL         string
	MigrationsDir       string
	UploadDir           string
	MaxUploadBytes      int64
	CORSAllowOrigin     string
	SimilarityThreshold float64
	WhisperServerURL    string
	WhisperBinPath      string
	WhisperModelPath    string
	WhisperPort         int
	WhisperLanguage     string
	TranscribeTimeout   time.Duration
	RateLimitRedisAddr  string
	RateLimitRedisPass  string
	RateLimitRedisDB    int
}

// Load constructs a Config from environment variables.
func Load() Config {
	return Config{
		Environment:         GetString("APP_ENV", "development"),
		Addr:                GetString("API_ADDR", ":5000"),
		DatabaseURL:         GetString("DATABASE_URL", "postgres://voicegate:voicegate@db:5432/voicegate?sslmode=disable"),
		MigrationsDir:       GetString("DB_MIGRATIONS_DIR", "db/migrations"),
		UploadDir:           GetString("UPLOAD_DIR", "uploads"),
		MaxUploadBytes:      int64(GetInt("MAX_UPLOAD_MB", 16)) << 20,
		CORSAllowOrigin:     GetString("CORS_ALLOW_ORIGIN", "*"),
		SimilarityThreshold: GetFloat("VOICE_SIMILARITY_THRESHOLD", 0.75),
		WhisperServerURL:    GetString("WHISPER_SERVER_URL", ""),
		WhisperBinPath:      GetString("WHISPER_BIN", "whisper-server"),
		WhisperModelPath:    GetString("WHISPER_MODEL", "models/ggml-tiny.bin"),
		WhisperPort:         GetInt("WHISPER_PORT", 8082),
		WhisperLanguage:     GetString("WHISPER_LANGUAGE", "en"),
		TranscribeTimeout:   time.Duration(GetInt("TRANSCRIBE_TIMEOUT_SECONDS", 60)) * time.Second,
		RateLimitRedisAddr:  GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass:  GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:    GetInt("RATE_LIMIT_REDIS_DB", 0),
	}
}
