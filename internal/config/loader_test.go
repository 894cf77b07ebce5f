package config

import (
	"strings"
	"testing"
)

func TestLoadFromReader_Full(t *testing.T) {
	yml := `
server:
  listen_addr: ":9090"
  log_level: debug
  static_dir: assets
providers:
  stt:
    name: assemblyai
    api_key: stt-key
  llm:
    name: gemini
    api_key: llm-key
    model: gemini-2.0-flash
  tts:
    name: murf
    api_key: tts-key
    voice_id: en-US-terrell
agent:
  persona: "You are a test persona."
  rate_limit:
    max_requests: 5
    window_seconds: 60
`
	cfg, err := LoadFromReader(strings.NewReader(yml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want :9090", cfg.Server.ListenAddr)
	}
	if cfg.Providers.TTS.VoiceID != "en-US-terrell" {
		t.Errorf("TTS.VoiceID = %q, want en-US-terrell", cfg.Providers.TTS.VoiceID)
	}
	if cfg.Agent.Persona != "You are a test persona." {
		t.Errorf("Persona = %q, want literal from file", cfg.Agent.Persona)
	}
	if cfg.Agent.RateLimit.MaxRequests != 5 || cfg.Agent.RateLimit.WindowSeconds != 60 {
		t.Errorf("RateLimit = %+v, want {5 60}", cfg.Agent.RateLimit)
	}
}

func TestLoadFromReader_DefaultsApplied(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader("server:\n  listen_addr: \":7000\"\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.LogLevel != LogInfo {
		t.Errorf("LogLevel = %q, want info default", cfg.Server.LogLevel)
	}
	if cfg.Providers.TTS.VoiceID != DefaultVoiceID {
		t.Errorf("VoiceID = %q, want %q", cfg.Providers.TTS.VoiceID, DefaultVoiceID)
	}
	if cfg.Agent.Persona != DefaultPersona {
		t.Error("Persona not defaulted")
	}
	if cfg.Agent.RateLimit.MaxRequests != 40 {
		t.Errorf("MaxRequests = %d, want 40", cfg.Agent.RateLimit.MaxRequests)
	}
	if cfg.Agent.RateLimit.WindowSeconds != 86400 {
		t.Errorf("WindowSeconds = %d, want 86400", cfg.Agent.RateLimit.WindowSeconds)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("bogus_section:\n  x: 1\n"))
	if err == nil {
		t.Fatal("LoadFromReader accepted unknown top-level field")
	}
}

func TestLoadFromReader_InvalidLogLevel(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("server:\n  log_level: loud\n"))
	if err == nil {
		t.Fatal("LoadFromReader accepted invalid log level")
	}
}

func TestApplyEnv_Overrides(t *testing.T) {
	t.Setenv(EnvSTTAPIKey, "env-stt")
	t.Setenv(EnvLLMAPIKey, "env-llm")
	t.Setenv(EnvTTSAPIKey, "env-tts")
	t.Setenv(EnvTTSVoiceID, "en-US-env")

	cfg := Default()
	cfg.Providers.STT.APIKey = "file-stt"
	ApplyEnv(cfg)

	if cfg.Providers.STT.APIKey != "env-stt" {
		t.Errorf("STT.APIKey = %q, env must win over file", cfg.Providers.STT.APIKey)
	}
	if cfg.Providers.LLM.APIKey != "env-llm" {
		t.Errorf("LLM.APIKey = %q, want env-llm", cfg.Providers.LLM.APIKey)
	}
	if cfg.Providers.TTS.APIKey != "env-tts" {
		t.Errorf("TTS.APIKey = %q, want env-tts", cfg.Providers.TTS.APIKey)
	}
	if cfg.Providers.TTS.VoiceID != "en-US-env" {
		t.Errorf("TTS.VoiceID = %q, want en-US-env", cfg.Providers.TTS.VoiceID)
	}
}

func TestApplyEnv_EmptyLeavesFileValue(t *testing.T) {
	t.Setenv(EnvSTTAPIKey, "")

	cfg := Default()
	cfg.Providers.STT.APIKey = "file-stt"
	ApplyEnv(cfg)

	if cfg.Providers.STT.APIKey != "file-stt" {
		t.Errorf("STT.APIKey = %q, empty env must not clobber file value", cfg.Providers.STT.APIKey)
	}
}

func TestMissingAPIKeysAreTolerated(t *testing.T) {
	// The server must start without keys; the failure surfaces on the first
	// turn of a session, not at config time.
	t.Setenv(EnvLLMAPIKey, "")
	cfg, err := LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader(empty): %v", err)
	}
	if cfg.Providers.LLM.APIKey != "" {
		t.Errorf("LLM.APIKey = %q, want empty", cfg.Providers.LLM.APIKey)
	}
}
