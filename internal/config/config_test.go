package config

import (
	"os"
	"testing"
)

func TestLoad(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "test-deepgram-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.DeepgramAPIKey != "test-deepgram-key" {
		t.Errorf("Expected DeepgramAPIKey 'test-deepgram-key', got '%s'", cfg.DeepgramAPIKey)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	os.Unsetenv("DEEPGRAM_API_KEY")

	_, err := LoadFromEnv()
	if err == nil {
		t.Error("Expected error when DEEPGRAM_API_KEY is missing")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "test-deepgram-key")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default Port '8080', got '%s'", cfg.Port)
	}
	if cfg.GRPCHealthPort != "9090" {
		t.Errorf("Expected default GRPCHealthPort '9090', got '%s'", cfg.GRPCHealthPort)
	}
	if cfg.DeepgramModel != "nova-2" {
		t.Errorf("Expected default DeepgramModel 'nova-2', got '%s'", cfg.DeepgramModel)
	}
	if cfg.DeepgramLanguage != "zh-CN" {
		t.Errorf("Expected default DeepgramLanguage 'zh-CN', got '%s'", cfg.DeepgramLanguage)
	}
	if cfg.AudioEncoding != "linear16" {
		t.Errorf("Expected default AudioEncoding 'linear16', got '%s'", cfg.AudioEncoding)
	}
	if cfg.VADVolumeThreshold != 0.15 {
		t.Errorf("Expected default VADVolumeThreshold 0.15, got %f", cfg.VADVolumeThreshold)
	}
	if cfg.VADPollInterval != 100 {
		t.Errorf("Expected default VADPollInterval 100, got %d", cfg.VADPollInterval)
	}
}

func TestConfig_SessionPolicyDefaults(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "test-deepgram-key")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	tests := []struct {
		name     string
		got      int
		expected int
	}{
		{"FinalizeLongTextChars", cfg.FinalizeLongTextChars, 20},
		{"FinalizeShortSilence", cfg.FinalizeShortSilence, 200},
		{"FinalizeLongSilence", cfg.FinalizeLongSilence, 400},
		{"RefreshSilence", cfg.RefreshSilence, 1000},
		{"RefreshSessionAge", cfg.RefreshSessionAge, 30000},
		{"WatchdogSpeechFrames", cfg.WatchdogSpeechFrames, 30},
		{"WatchdogActivityTimeout", cfg.WatchdogActivityTimeout, 4000},
		{"RestartBackoff", cfg.RestartBackoff, 10},
		{"PreviewThrottle", cfg.PreviewThrottle, 600},
		{"PreviewMinGrowth", cfg.PreviewMinGrowth, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("Expected default %s %d, got %d", tt.name, tt.expected, tt.got)
			}
		})
	}
}

func TestConfig_TranslationDefaults(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "test-deepgram-key")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.TranslateSourceLang != "zh" || cfg.TranslateTargetLang != "en" {
		t.Errorf("Expected default language pair zh->en, got %s->%s", cfg.TranslateSourceLang, cfg.TranslateTargetLang)
	}
	if cfg.TranslationPlaceholder != "[translation unavailable]" {
		t.Errorf("Expected default placeholder, got '%s'", cfg.TranslationPlaceholder)
	}
}

func TestLoad_InvalidEncoding(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "test-deepgram-key")
	t.Setenv("AUDIO_ENCODING", "opus")

	if _, err := LoadFromEnv(); err == nil {
		t.Error("Expected error for unsupported AUDIO_ENCODING")
	}
}

func TestLoad_InvalidThreshold(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "test-deepgram-key")
	t.Setenv("VAD_VOLUME_THRESHOLD", "1.5")

	if _, err := LoadFromEnv(); err == nil {
		t.Error("Expected error for VAD_VOLUME_THRESHOLD outside (0,1)")
	}
}

func TestConfig_ObservabilityDefaults(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "test-deepgram-key")
	os.Unsetenv("LOG_LEVEL")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Expected default LogLevel 'info', got '%s'", cfg.LogLevel)
	}
	if cfg.LogPretty {
		t.Error("Expected default LogPretty false, got true")
	}
	if !cfg.MetricsEnabled {
		t.Error("Expected default MetricsEnabled true, got false")
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("TEST_KEY", "test-value")

	value := GetEnv("TEST_KEY", "default")
	if value != "test-value" {
		t.Errorf("Expected 'test-value', got '%s'", value)
	}

	value = GetEnv("NON_EXISTENT_KEY", "default")
	if value != "default" {
		t.Errorf("Expected 'default', got '%s'", value)
	}
}
