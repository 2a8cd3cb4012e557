package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Accent.RecognitionTimeout != 5*time.Second {
		t.Fatalf("expected 5s recognition timeout, got %v", cfg.Accent.RecognitionTimeout)
	}
	if cfg.Speech.Backend != "azure" {
		t.Fatalf("expected azure speech backend, got %q", cfg.Speech.Backend)
	}
	if cfg.TTS.AzureVoice != "en-US-JennyNeural" {
		t.Fatalf("unexpected default voice %q", cfg.TTS.AzureVoice)
	}
	if cfg.Audio.MaxUploadBytes != 10<<20 {
		t.Fatalf("unexpected upload limit %d", cfg.Audio.MaxUploadBytes)
	}
	if cfg.Worker.MetricsAddr != ":9091" || cfg.Worker.Concurrency != 10 {
		t.Fatalf("unexpected worker config %+v", cfg.Worker)
	}
	if cfg.Addr() != "0.0.0.0:8080" {
		t.Fatalf("unexpected addr %q", cfg.Addr())
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("ACCENT_RECOGNITION_TIMEOUT", "2.5")
	t.Setenv("ACCENT_CANDIDATES_FILE", "/etc/accents.yaml")
	t.Setenv("SPEECH_BACKEND", "openai")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:5173, https://example.com")
	t.Setenv("TRANSLATION_CACHE_TTL", "1h")
	t.Setenv("AUDIO_MAX_UPLOAD_MB", "4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port override, got %d", cfg.Server.Port)
	}
	if cfg.Accent.RecognitionTimeout != 2500*time.Millisecond {
		t.Fatalf("expected 2.5s timeout, got %v", cfg.Accent.RecognitionTimeout)
	}
	if cfg.Accent.CandidatesFile != "/etc/accents.yaml" {
		t.Fatalf("expected candidates file override")
	}
	if cfg.Speech.Backend != "openai" {
		t.Fatalf("expected speech backend override")
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://example.com" {
		t.Fatalf("unexpected origins %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Translation.CacheTTL != time.Hour {
		t.Fatalf("expected 1h cache ttl, got %v", cfg.Translation.CacheTTL)
	}
	if cfg.Audio.MaxUploadBytes != 4<<20 {
		t.Fatalf("expected 4MB limit, got %d", cfg.Audio.MaxUploadBytes)
	}
}

func TestWorkerMetricsAddrOff(t *testing.T) {
	t.Setenv("WORKER_METRICS_ADDR", "off")
	t.Setenv("WORKER_CONCURRENCY", "4")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Worker.MetricsAddr != "" || cfg.Worker.Concurrency != 4 {
		t.Fatalf("unexpected worker config %+v", cfg.Worker)
	}
}

func TestLoadInvalidInt(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-port")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid SERVER_PORT")
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("AZURE_SPEECH_KEY", "")
	t.Setenv("SPEECH_BACKEND", "")
	t.Setenv("TTS_BACKEND", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected missing azure key error")
	}
	if strings.Count(err.Error(), "AZURE_SPEECH_KEY") != 1 {
		t.Fatalf("expected a single AZURE_SPEECH_KEY entry, got %q", err.Error())
	}

	cfg.Speech.AzureKey = "k"
	cfg.TTS.AzureKey = "k"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg.Speech.Backend = "carrier-pigeon"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected unknown backend error")
	}
}
