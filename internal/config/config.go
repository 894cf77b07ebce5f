// Package config provides the configuration schema and loader for the Aria
// voice-agent server.
package config

import "time"

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// DefaultPersona is the system instruction prepended unchanged to every LLM
// session. Keeping it fixed per process gives the assistant a stable voice
// across turns.
const DefaultPersona = "You are Aria, a warm and helpful voice assistant. " +
	"Your replies are spoken aloud, so keep them conversational and brief, " +
	"a few sentences at most. Never use markdown, lists, or emoji. " +
	"If you are unsure about something, say so plainly."

// DefaultVoiceID is the TTS voice used when neither the config file nor the
// environment selects one.
const DefaultVoiceID = "en-US-amara"

// Config is the root configuration structure for the server.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader];
// API keys may instead arrive via environment variables (see [ApplyEnv]).
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Agent     AgentConfig     `yaml:"agent"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// StaticDir is the directory served under /static/.
	StaticDir string `yaml:"static_dir"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage.
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
	LLM ProviderEntry `yaml:"llm"`
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider
// kinds.
type ProviderEntry struct {
	// Name selects the provider implementation (e.g. "assemblyai", "gemini",
	// "murf").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API. Usually left
	// empty in the file and supplied via the environment.
	APIKey string `yaml:"api_key"`

	// Model selects a specific model within the provider (LLM only).
	Model string `yaml:"model"`

	// VoiceID selects the default synthesis voice (TTS only).
	VoiceID string `yaml:"voice_id"`
}

// AgentConfig tunes the conversational behaviour of the session pipeline.
type AgentConfig struct {
	// Persona is the system instruction prepended to every LLM session.
	// Empty selects [DefaultPersona].
	Persona string `yaml:"persona"`

	// RateLimit bounds LLM call volume across all sessions.
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig configures the rolling-window LLM quota.
type RateLimitConfig struct {
	// MaxRequests is the number of LLM calls admitted per window.
	// Zero selects the default of 40.
	MaxRequests int `yaml:"max_requests"`

	// WindowSeconds is the rolling window width in seconds.
	// Zero selects the default of 86400 (one day).
	WindowSeconds int `yaml:"window_seconds"`
}

// Window returns the configured window as a duration.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// Default returns a Config with all defaults applied, suitable for running
// with environment-supplied keys and no config file.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
			StaticDir:  "static",
		},
		Providers: ProvidersConfig{
			STT: ProviderEntry{Name: "assemblyai"},
			LLM: ProviderEntry{Name: "gemini", Model: "gemini-2.0-flash"},
			TTS: ProviderEntry{Name: "murf", VoiceID: DefaultVoiceID},
		},
		Agent: AgentConfig{
			Persona: DefaultPersona,
			RateLimit: RateLimitConfig{
				MaxRequests:   40,
				WindowSeconds: 86400,
			},
		},
	}
}
