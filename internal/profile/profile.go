package profile

import (
	"os"
	"strconv"

	"github.com/pkg/errors"
)

// Default values applied when the corresponding environment variable is unset.
const (
	DefaultAddr               = ""
	DefaultPort               = 8000
	DefaultGeminiBaseURL      = "https://generativelanguage.googleapis.com"
	DefaultGeminiModel        = "gemini-2.5-flash-lite"
	DefaultEmbeddingModel     = "text-embedding-004"
	DefaultOpenAIBaseURL      = "https://api.openai.com/v1"
	DefaultOpenAIModel        = "gpt-4o-mini"
	DefaultRedisURL           = "redis://localhost:6379"
	DefaultIndexDriver        = "sqlite"
	DefaultIndexDSN           = "./health_docs.db"
	DefaultIndexCollection    = "health_docs"
	DefaultRateLimitPerMinute = 10
)

// Profile is the configuration to start the gateway server.
type Profile struct {
	// Mode can be "prod" or "dev".
	Mode string
	// Addr is the binding address for the server.
	Addr string
	// Port is the binding port for the server.
	Port int
	// Version is the current version of the server.
	Version string

	// Provider selects the generation backend: "gemini" or "openai".
	Provider string

	// Gemini configuration.
	GeminiAPIKey   string // DOKITA_GEMINI_API_KEY (legacy: GOOGLE_API_KEY)
	GeminiBaseURL  string // DOKITA_GEMINI_BASE_URL
	GeminiModel    string // DOKITA_GEMINI_MODEL
	EmbeddingModel string // DOKITA_EMBEDDING_MODEL

	// OpenAI-compatible provider configuration.
	OpenAIAPIKey  string // DOKITA_OPENAI_API_KEY
	OpenAIBaseURL string // DOKITA_OPENAI_BASE_URL
	OpenAIModel   string // DOKITA_OPENAI_MODEL

	// RedisURL points at the session store.
	RedisURL string // DOKITA_REDIS_URL (legacy: REDIS_URL)

	// Document index configuration.
	IndexDriver     string // DOKITA_INDEX_DRIVER: "sqlite" or "postgres"
	IndexDSN        string // DOKITA_INDEX_DSN: file path (sqlite) or DSN (postgres)
	IndexCollection string // DOKITA_INDEX_COLLECTION

	// Outbound SMS (Africa's Talking style). The send path is inert when
	// the API key is absent.
	SMSUsername string // DOKITA_SMS_USERNAME
	SMSAPIKey   string // DOKITA_SMS_API_KEY
	SMSSenderID string // DOKITA_SMS_SENDER_ID
	SMSBaseURL  string // DOKITA_SMS_BASE_URL

	// RateLimitPerMinute caps inbound requests per client address.
	RateLimitPerMinute int // DOKITA_RATE_LIMIT_PER_MINUTE
}

// IsDev returns true unless the profile runs in prod mode.
func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsOutboundSMSEnabled returns true if outbound SMS credentials are configured.
func (p *Profile) IsOutboundSMSEnabled() bool {
	return p.SMSUsername != "" && p.SMSAPIKey != ""
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
// Supports both DOKITA_* (new) and the original deployment's unprefixed
// names (legacy) where one existed.
func (p *Profile) FromEnv() {
	getEnvWithFallback := func(newKey, legacyKey string) string {
		if val := os.Getenv(newKey); val != "" {
			return val
		}
		return os.Getenv(legacyKey)
	}

	getEnvWithDefault := func(newKey, legacyKey, defaultValue string) string {
		if val := getEnvWithFallback(newKey, legacyKey); val != "" {
			return val
		}
		return defaultValue
	}

	p.Provider = getEnvOrDefault("DOKITA_PROVIDER", "gemini")
	p.GeminiAPIKey = getEnvWithFallback("DOKITA_GEMINI_API_KEY", "GOOGLE_API_KEY")
	p.GeminiBaseURL = getEnvOrDefault("DOKITA_GEMINI_BASE_URL", DefaultGeminiBaseURL)
	p.GeminiModel = getEnvOrDefault("DOKITA_GEMINI_MODEL", DefaultGeminiModel)
	p.EmbeddingModel = getEnvOrDefault("DOKITA_EMBEDDING_MODEL", DefaultEmbeddingModel)
	p.OpenAIAPIKey = os.Getenv("DOKITA_OPENAI_API_KEY")
	p.OpenAIBaseURL = getEnvOrDefault("DOKITA_OPENAI_BASE_URL", DefaultOpenAIBaseURL)
	p.OpenAIModel = getEnvOrDefault("DOKITA_OPENAI_MODEL", DefaultOpenAIModel)
	p.RedisURL = getEnvWithDefault("DOKITA_REDIS_URL", "REDIS_URL", DefaultRedisURL)
	p.IndexDriver = getEnvOrDefault("DOKITA_INDEX_DRIVER", DefaultIndexDriver)
	p.IndexDSN = getEnvOrDefault("DOKITA_INDEX_DSN", DefaultIndexDSN)
	p.IndexCollection = getEnvOrDefault("DOKITA_INDEX_COLLECTION", DefaultIndexCollection)
	p.SMSUsername = os.Getenv("DOKITA_SMS_USERNAME")
	p.SMSAPIKey = os.Getenv("DOKITA_SMS_API_KEY")
	p.SMSSenderID = os.Getenv("DOKITA_SMS_SENDER_ID")
	p.SMSBaseURL = getEnvOrDefault("DOKITA_SMS_BASE_URL", "https://api.africastalking.com")

	if v := os.Getenv("DOKITA_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.RateLimitPerMinute = n
		}
	}
	if p.RateLimitPerMinute == 0 {
		p.RateLimitPerMinute = DefaultRateLimitPerMinute
	}
}

// Validate checks that the profile can start a server. The generation
// provider key is the one hard requirement: the process refuses to start
// without it.
func (p *Profile) Validate() error {
	if p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}
	if p.Port <= 0 {
		p.Port = DefaultPort
	}

	switch p.Provider {
	case "gemini":
		if p.GeminiAPIKey == "" {
			return errors.New("gemini API key is required, set DOKITA_GEMINI_API_KEY (or GOOGLE_API_KEY)")
		}
	case "openai":
		if p.OpenAIAPIKey == "" {
			return errors.New("openai API key is required, set DOKITA_OPENAI_API_KEY")
		}
	default:
		return errors.Errorf("unsupported generation provider: %s", p.Provider)
	}

	if p.IndexDriver != "sqlite" && p.IndexDriver != "postgres" {
		return errors.Errorf("unsupported index driver: %s", p.IndexDriver)
	}

	return nil
}
