package main

import (
	"context"
	"fmt"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/ariavoice/aria/internal/config"
	"github.com/ariavoice/aria/pkg/provider/llm"
	"github.com/ariavoice/aria/pkg/provider/llm/anyllm"
	openaillm "github.com/ariavoice/aria/pkg/provider/llm/openai"
	"github.com/ariavoice/aria/pkg/provider/stt"
	"github.com/ariavoice/aria/pkg/provider/stt/assemblyai"
	"github.com/ariavoice/aria/pkg/provider/tts"
	"github.com/ariavoice/aria/pkg/provider/tts/murf"
)

// Providers bundles the three pipeline stages handed to every session.
type Providers struct {
	STT stt.Provider
	LLM llm.Provider
	TTS tts.Provider
}

// buildProviders instantiates the configured provider for each stage. A stage
// whose key is missing or whose construction fails gets an unconfigured
// placeholder that reports the problem when the stage is first used, so the
// server still starts and the client hears about it inside the session.
func buildProviders(cfg *config.Config) Providers {
	var p Providers

	sttP, err := buildSTT(cfg.Providers.STT)
	if err != nil {
		slog.Warn("stt provider unavailable", "name", cfg.Providers.STT.Name, "err", err)
		p.STT = unconfiguredSTT{err}
	} else {
		p.STT = sttP
	}

	llmP, err := buildLLM(cfg.Providers.LLM)
	if err != nil {
		slog.Warn("llm provider unavailable", "name", cfg.Providers.LLM.Name, "err", err)
		p.LLM = unconfiguredLLM{err}
	} else {
		p.LLM = llmP
	}

	ttsP, err := buildTTS(cfg.Providers.TTS)
	if err != nil {
		slog.Warn("tts provider unavailable", "name", cfg.Providers.TTS.Name, "err", err)
		p.TTS = unconfiguredTTS{err}
	} else {
		p.TTS = ttsP
	}

	return p
}

func buildSTT(entry config.ProviderEntry) (stt.Provider, error) {
	switch entry.Name {
	case "assemblyai":
		return assemblyai.New(entry.APIKey)
	default:
		return nil, fmt.Errorf("unknown stt provider %q", entry.Name)
	}
}

func buildLLM(entry config.ProviderEntry) (llm.Provider, error) {
	switch entry.Name {
	case "openai":
		// Direct SDK; avoids the extra indirection for the most common case.
		return openaillm.New(entry.APIKey, entry.Model)
	case "gemini", "anthropic", "mistral", "groq", "ollama":
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		return anyllm.New(entry.Name, entry.Model, opts...)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", entry.Name)
	}
}

func buildTTS(entry config.ProviderEntry) (tts.Provider, error) {
	switch entry.Name {
	case "murf":
		return murf.New(entry.APIKey)
	default:
		return nil, fmt.Errorf("unknown tts provider %q", entry.Name)
	}
}

// ── Unconfigured placeholders ─────────────────────────────────────────────────

// unconfiguredSTT fails session start with the construction error.
type unconfiguredSTT struct{ err error }

func (u unconfiguredSTT) StartStream(context.Context, stt.StreamConfig) (stt.SessionHandle, error) {
	return nil, fmt.Errorf("stt is not configured: %w", u.err)
}

// unconfiguredLLM fails the first turn with an llm_error.
type unconfiguredLLM struct{ err error }

func (u unconfiguredLLM) StreamCompletion(context.Context, llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return nil, fmt.Errorf("llm is not configured: %w", u.err)
}

func (u unconfiguredLLM) Complete(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return nil, fmt.Errorf("llm is not configured: %w", u.err)
}

// unconfiguredTTS degrades turns to text-only and fails the voice catalogue.
type unconfiguredTTS struct{ err error }

func (u unconfiguredTTS) OpenStream(context.Context, tts.VoiceProfile) (tts.StreamHandle, error) {
	return nil, fmt.Errorf("tts is not configured: %w", u.err)
}

func (u unconfiguredTTS) ListVoices(context.Context) ([]tts.VoiceProfile, error) {
	return nil, fmt.Errorf("tts is not configured: %w", u.err)
}
