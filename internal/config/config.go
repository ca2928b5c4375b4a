package config

import (
	"time"
)

// RateWindow is one platform's outbound call budget: at most Limit calls
// within any rolling Window.
type RateWindow struct {
	Limit  int
	Window time.Duration
}

// Config holds all application configuration, injected from main.
// Nothing here is process-global: two orchestrators with different
// configs can coexist in one process.
type Config struct {
	// Workflow engine
	SupportedPlatforms []string
	AccountWorkers     int
	MaxItemsPerAccount int
	CallTimeout        time.Duration

	// Retry policy
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64

	// Per-platform rate limits
	RateLimits map[string]RateWindow

	// Persistence. Empty DatabasePath selects the in-memory store.
	DatabasePath string

	// Content source
	SourceTimeout time.Duration
	UseSampleData bool

	// Recurring extraction. Zero disables the scheduler.
	CheckInterval  time.Duration
	TargetAccounts []string

	// HTTP control surface
	Port string

	// Publisher credentials
	TwitterBearerToken  string
	LinkedInAccessToken string
	LinkedInAuthorURN   string

	// Transformer
	OpenAIAPIKey    string
	OpenAIModel     string
	LLMTemperature  float64
	DefaultHashtags []string
}

// Load builds a Config from the environment, applying defaults.
func Load() Config {
	LoadEnv()
	return Config{
		SupportedPlatforms: List("SUPPORTED_PLATFORMS", "twitter,linkedin"),
		AccountWorkers:     Int("ACCOUNT_WORKERS", 3),
		MaxItemsPerAccount: Int("MAX_VIDEOS_PER_USER", 5),
		CallTimeout:        Duration("CALL_TIMEOUT", 30*time.Second),

		MaxAttempts: Int("MAX_PUBLISH_ATTEMPTS", 3),
		InitialWait: Duration("RETRY_INITIAL_WAIT", 500*time.Millisecond),
		MaxWait:     Duration("RETRY_MAX_WAIT", 30*time.Second),
		Multiplier:  2.0,

		RateLimits: map[string]RateWindow{
			"twitter":   {Limit: Int("TWITTER_RATE_LIMIT", 300), Window: time.Hour},
			"linkedin":  {Limit: Int("LINKEDIN_RATE_LIMIT", 100), Window: time.Hour},
			"instagram": {Limit: Int("INSTAGRAM_RATE_LIMIT", 200), Window: time.Hour},
		},

		DatabasePath: Str("DATABASE_PATH", ""),

		SourceTimeout: Duration("SOURCE_TIMEOUT", 15*time.Second),
		UseSampleData: Bool("USE_SAMPLE_DATA", false),

		CheckInterval:  Duration("CONTENT_CHECK_INTERVAL", 0),
		TargetAccounts: List("TARGET_ACCOUNTS", ""),

		Port: Str("PORT", "8000"),

		TwitterBearerToken:  Str("TWITTER_BEARER_TOKEN", ""),
		LinkedInAccessToken: Str("LINKEDIN_ACCESS_TOKEN", ""),
		LinkedInAuthorURN:   Str("LINKEDIN_AUTHOR_URN", ""),

		OpenAIAPIKey:    Str("OPENAI_API_KEY", ""),
		OpenAIModel:     Str("OPENAI_MODEL", "gpt-4o-mini"),
		LLMTemperature:  0.7,
		DefaultHashtags: List("DEFAULT_HASHTAGS", ""),
	}
}
