package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr        string
	PGDSN             string
	MongoURI          string
	RedisAddr         string
	RabbitURL         string
	GeminiAPIKey      string
	GeminiModel       string
	SuggestionTimeout time.Duration
	IdempotencyTTL    time.Duration
	OTLPEndpoint      string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	suggestionTimeout, _ := time.ParseDuration(os.Getenv("SUGGESTION_TIMEOUT"))
	if suggestionTimeout == 0 {
		suggestionTimeout = 5 * time.Second
	}
	idempTTL, _ := time.ParseDuration(os.Getenv("IDEMPOTENCY_TTL"))
	if idempTTL == 0 {
		idempTTL = time.Hour
	}
	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	model := os.Getenv("GEMINI_MODEL")
	if model == "" {
		model = "gemini-2.5-flash"
	}

	return &Config{
		ListenAddr:        addr,
		PGDSN:             os.Getenv("PG_DSN"),
		MongoURI:          os.Getenv("MONGO_URI"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RabbitURL:         os.Getenv("RABBIT_URL"),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		GeminiModel:       model,
		SuggestionTimeout: suggestionTimeout,
		IdempotencyTTL:    idempTTL,
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}
