// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every setting the entrypoints need. Individual services only
// receive the fields they use.
type Config struct {
	ProjectID        string
	CollectionPrefix string

	BlobBackend    string
	UploadsBucket  string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool

	CompletionProvider string
	VertexAIRegion     string
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	PrimaryModel       string
	FallbackModel      string
	GenerationTimeout  time.Duration

	RedisAddr         string
	RedisPassword     string
	ExtractionLockTTL time.Duration

	TierLimitsFile string
	SubjectHeader  string

	// ExtractOnUpload makes the API server extract inline after an upload.
	// Functions deployments rely on the storage finalize event instead.
	ExtractOnUpload bool
	AllowedOrigins []string
	Port           string
	LogMode        string
}

const (
	BlobBackendGCS   = "gcs"
	BlobBackendMinio = "minio"

	ProviderVertex = "vertex"
	ProviderOpenAI = "openai"
)

var defaultModels = map[string][2]string{
	ProviderVertex: {"gemini-1.5-flash", "gemini-1.5-pro"},
	ProviderOpenAI: {"gpt-4o-mini", "gpt-4o"},
}

// Load reads and validates the configuration.
func Load() (*Config, error) {
	cfg := &Config{
		ProjectID:          GetEnv("PROJECT_ID", ""),
		CollectionPrefix:   GetEnv("FIRESTORE_COLLECTION_PREFIX", ""),
		BlobBackend:        strings.ToLower(GetEnv("BLOB_BACKEND", BlobBackendGCS)),
		UploadsBucket:      GetEnv("UPLOADS_BUCKET", ""),
		MinioEndpoint:      GetEnv("MINIO_ENDPOINT", "minio:9000"),
		MinioAccessKey:     GetEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey:     GetEnv("MINIO_SECRET_KEY", ""),
		MinioUseSSL:        Bool("MINIO_USE_SSL", false),
		CompletionProvider: strings.ToLower(GetEnv("COMPLETION_PROVIDER", ProviderVertex)),
		VertexAIRegion:     GetEnv("VERTEX_AI_REGION", "us-central1"),
		OpenAIAPIKey:       GetEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:      GetEnv("OPENAI_BASE_URL", ""),
		GenerationTimeout:  Duration("GENERATION_TIMEOUT", 60*time.Second),
		RedisAddr:          GetEnv("REDIS_ADDR", ""),
		RedisPassword:      GetEnv("REDIS_PASSWORD", ""),
		ExtractionLockTTL:  Duration("EXTRACTION_LOCK_TTL", 5*time.Minute),
		TierLimitsFile:     GetEnv("TIER_LIMITS_FILE", ""),
		SubjectHeader:      GetEnv("SUBJECT_HEADER", "X-Authenticated-Subject"),
		ExtractOnUpload:    Bool("EXTRACT_ON_UPLOAD", true),
		AllowedOrigins:     List("CORS_ALLOWED_ORIGINS"),
		Port:               GetEnv("PORT", "8080"),
		LogMode:            GetEnv("LOG_MODE", "prod"),
	}

	models, ok := defaultModels[cfg.CompletionProvider]
	if !ok {
		return nil, fmt.Errorf("unknown COMPLETION_PROVIDER %q", cfg.CompletionProvider)
	}
	cfg.PrimaryModel = GetEnv("PRIMARY_MODEL", models[0])
	cfg.FallbackModel = GetEnv("FALLBACK_MODEL", models[1])

	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	if cfg.UploadsBucket == "" {
		return nil, fmt.Errorf("UPLOADS_BUCKET environment variable must be set")
	}
	switch cfg.BlobBackend {
	case BlobBackendGCS:
	case BlobBackendMinio:
		if cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" {
			return nil, fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY must be set for the minio backend")
		}
	default:
		return nil, fmt.Errorf("unknown BLOB_BACKEND %q", cfg.BlobBackend)
	}
	if cfg.CompletionProvider == ProviderOpenAI && cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY must be set for the openai provider")
	}
	if cfg.GenerationTimeout <= 0 {
		return nil, fmt.Errorf("GENERATION_TIMEOUT must be positive")
	}
	return cfg, nil
}

// GetEnv reads an environment variable or returns a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

// List splits a comma-separated variable, dropping empty items.
func List(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Int(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func Bool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

// Duration accepts Go duration strings ("90s") or a bare number of seconds.
func Duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}
