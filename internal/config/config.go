package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the live translator service
type Config struct {
	// Server configuration
	Port           string `envconfig:"PORT" default:"8080"`
	GRPCHealthPort string `envconfig:"GRPC_HEALTH_PORT" default:"9090"`

	// Deepgram STT API configuration
	DeepgramAPIKey     string `envconfig:"DEEPGRAM_API_KEY" required:"true"`
	DeepgramModel      string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramLanguage   string `envconfig:"DEEPGRAM_LANGUAGE" default:"zh-CN"`
	DeepgramFlushGrace int    `envconfig:"DEEPGRAM_FLUSH_GRACE" default:"300"` // milliseconds between Finalize and Finish

	// Incoming microphone audio
	AudioEncoding   string `envconfig:"AUDIO_ENCODING" default:"linear16"` // linear16 or mulaw
	AudioSampleRate int    `envconfig:"AUDIO_SAMPLE_RATE" default:"16000"`
	AudioBufferSize int    `envconfig:"AUDIO_BUFFER_SIZE" default:"32768"` // VAD sample window ring buffer, bytes

	// Voice activity detection
	VADVolumeThreshold float64 `envconfig:"VAD_VOLUME_THRESHOLD" default:"0.15"` // RMS of normalized amplitude
	VADPollInterval    int     `envconfig:"VAD_POLL_INTERVAL" default:"100"`     // milliseconds

	// Forced finalization and proactive refresh
	FinalizeLongTextChars int `envconfig:"FINALIZE_LONG_TEXT_CHARS" default:"20"`
	FinalizeShortSilence  int `envconfig:"FINALIZE_SHORT_SILENCE" default:"200"` // ms, used for long interim text
	FinalizeLongSilence   int `envconfig:"FINALIZE_LONG_SILENCE" default:"400"`  // ms, used for short interim text
	RefreshSilence        int `envconfig:"REFRESH_SILENCE" default:"1000"`       // ms
	RefreshSessionAge     int `envconfig:"REFRESH_SESSION_AGE" default:"30000"`  // ms

	// Watchdog
	WatchdogSpeechFrames    int `envconfig:"WATCHDOG_SPEECH_FRAMES" default:"30"`
	WatchdogActivityTimeout int `envconfig:"WATCHDOG_ACTIVITY_TIMEOUT" default:"4000"` // ms

	// Engine restart
	RestartBackoff     int `envconfig:"RESTART_BACKOFF" default:"10"` // ms
	RestartMaxAttempts int `envconfig:"RESTART_MAX_ATTEMPTS" default:"5"`

	// Transcript reconciliation
	PreviewThrottle  int `envconfig:"PREVIEW_THROTTLE" default:"600"` // ms
	PreviewMinGrowth int `envconfig:"PREVIEW_MIN_GROWTH" default:"2"`  // characters

	// Translation
	TranslateSourceLang    string `envconfig:"TRANSLATE_SOURCE_LANG" default:"zh"`
	TranslateTargetLang    string `envconfig:"TRANSLATE_TARGET_LANG" default:"en"`
	TranslateTimeout       int    `envconfig:"TRANSLATE_TIMEOUT" default:"5000"` // ms
	TranslationPlaceholder string `envconfig:"TRANSLATION_PLACEHOLDER" default:"[translation unavailable]"`
	GoogleTranslateURL     string `envconfig:"GOOGLE_TRANSLATE_URL" default:"https://translate.googleapis.com/translate_a/single"`
	MyMemoryURL            string `envconfig:"MYMEMORY_URL" default:"https://api.mymemory.translated.net/get"`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"2"`             // Maximum attempts per translator
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks field combinations envconfig cannot express
func (c *Config) Validate() error {
	if c.DeepgramAPIKey == "" {
		return fmt.Errorf("DEEPGRAM_API_KEY is required")
	}
	switch c.AudioEncoding {
	case "linear16", "mulaw":
	default:
		return fmt.Errorf("AUDIO_ENCODING must be linear16 or mulaw, got %q", c.AudioEncoding)
	}
	if c.VADVolumeThreshold <= 0 || c.VADVolumeThreshold >= 1 {
		return fmt.Errorf("VAD_VOLUME_THRESHOLD must be in (0,1), got %v", c.VADVolumeThreshold)
	}
	if c.VADPollInterval <= 0 {
		return fmt.Errorf("VAD_POLL_INTERVAL must be positive")
	}
	if c.TranslateSourceLang == "" || c.TranslateTargetLang == "" {
		return fmt.Errorf("TRANSLATE_SOURCE_LANG and TRANSLATE_TARGET_LANG are required")
	}
	return nil
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
