package config

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Environment variable names recognised by ApplyEnv. Environment values take
// precedence over the config file so keys stay out of checked-in YAML.
const (
	EnvSTTAPIKey  = "STT_API_KEY"
	EnvLLMAPIKey  = "LLM_API_KEY"
	EnvTTSAPIKey  = "TTS_API_KEY"
	EnvTTSVoiceID = "TTS_DEFAULT_VOICE_ID"
)

// Load reads the YAML configuration file at path, overlays environment
// variables, and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of the defaults,
// overlays environment variables, and validates the result. Useful in tests
// where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyEnv(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays recognised environment variables onto cfg. Set variables
// always win over file values.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvSTTAPIKey); v != "" {
		cfg.Providers.STT.APIKey = v
	}
	if v := os.Getenv(EnvLLMAPIKey); v != "" {
		cfg.Providers.LLM.APIKey = v
	}
	if v := os.Getenv(EnvTTSAPIKey); v != "" {
		cfg.Providers.TTS.APIKey = v
	}
	if v := os.Getenv(EnvTTSVoiceID); v != "" {
		cfg.Providers.TTS.VoiceID = v
	}
}

// applyDefaults fills fields an explicit config file may have blanked.
// Missing API keys are deliberately tolerated: the server still starts and
// the first turn of a session reports the failure as an llm_error event.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = def.Server.ListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = def.Server.LogLevel
	}
	if cfg.Server.StaticDir == "" {
		cfg.Server.StaticDir = def.Server.StaticDir
	}
	if cfg.Providers.STT.Name == "" {
		cfg.Providers.STT.Name = def.Providers.STT.Name
	}
	if cfg.Providers.LLM.Name == "" {
		cfg.Providers.LLM.Name = def.Providers.LLM.Name
	}
	if cfg.Providers.LLM.Model == "" {
		cfg.Providers.LLM.Model = def.Providers.LLM.Model
	}
	if cfg.Providers.TTS.Name == "" {
		cfg.Providers.TTS.Name = def.Providers.TTS.Name
	}
	if cfg.Providers.TTS.VoiceID == "" {
		cfg.Providers.TTS.VoiceID = def.Providers.TTS.VoiceID
	}
	if cfg.Agent.Persona == "" {
		cfg.Agent.Persona = def.Agent.Persona
	}
	if cfg.Agent.RateLimit.MaxRequests == 0 {
		cfg.Agent.RateLimit.MaxRequests = def.Agent.RateLimit.MaxRequests
	}
	if cfg.Agent.RateLimit.WindowSeconds == 0 {
		cfg.Agent.RateLimit.WindowSeconds = def.Agent.RateLimit.WindowSeconds
	}
}

// Validate checks that cfg contains a coherent set of values.
func Validate(cfg *Config) error {
	if !cfg.Server.LogLevel.IsValid() {
		return fmt.Errorf("config: server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel)
	}
	if cfg.Agent.RateLimit.MaxRequests < 0 {
		return fmt.Errorf("config: agent.rate_limit.max_requests must not be negative")
	}
	if cfg.Agent.RateLimit.WindowSeconds < 0 {
		return fmt.Errorf("config: agent.rate_limit.window_seconds must not be negative")
	}
	return nil
}
