package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ariavoice/aria/internal/history"
	"github.com/ariavoice/aria/internal/observe"
	"github.com/ariavoice/aria/internal/ratelimit"
	"github.com/ariavoice/aria/pkg/provider/llm"
	"github.com/ariavoice/aria/pkg/provider/stt"
	"github.com/ariavoice/aria/pkg/provider/tts"
	"github.com/coder/websocket"
)

const (
	// sttSampleRate is the PCM sample rate the client capture layer delivers.
	sttSampleRate = 16000

	// sttEndOfTurnConfidence is the confidence threshold above which the STT
	// provider may declare end-of-turn after sttMinSilence.
	sttEndOfTurnConfidence = 0.7

	// sttMinSilence is the confident-silence window before end-of-turn.
	sttMinSilence = 800 * time.Millisecond

	// sttMaxSilence is the silence after which end-of-turn is declared
	// regardless of confidence.
	sttMaxSilence = 1500 * time.Millisecond

	// eventBuf is the depth of the outbound event queue drained by the writer
	// goroutine. Sized to absorb a full turn of llm_chunk and audio_chunk
	// events without stalling the pipeline on a slow client.
	eventBuf = 256

	// jobBuf is the depth of the pipeline job queue. Turns are executed
	// serially; the buffer only absorbs end-of-turns that arrive while a
	// previous reply is still playing out.
	jobBuf = 16
)

// errSessionClosed signals orderly session shutdown through the task group.
var errSessionClosed = errors.New("session closed")

// Conn is the minimal client-connection surface the session needs. It is
// satisfied by *websocket.Conn from github.com/coder/websocket; tests provide
// an in-memory implementation.
type Conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
}

// Config holds all dependencies and tunables for a [Session].
type Config struct {
	// Logger receives session-scoped log records. Nil selects slog.Default.
	Logger *slog.Logger

	// STT, LLM, and TTS are the streaming providers driving the pipeline.
	STT stt.Provider
	LLM llm.Provider
	TTS tts.Provider

	// History is the process-wide conversation store.
	History *history.Store

	// Limiter is the process-wide LLM quota.
	Limiter *ratelimit.Limiter

	// Metrics records pipeline telemetry. Nil selects the default instance.
	Metrics *observe.Metrics

	// Persona is the system instruction prepended unchanged to every LLM call.
	Persona string

	// Voice is the TTS voice profile used for every turn of this session.
	Voice tts.VoiceProfile

	// MergeWindow bounds punctuation-merge of re-delivered end-of-turns.
	// Zero selects 2 s.
	MergeWindow time.Duration

	// SilenceTimeout completes a TTS stream that stops producing chunks
	// without flagging final. Zero selects 1 s.
	SilenceTimeout time.Duration

	// TTSSoftWait is how long the pipeline waits for TTS completion before
	// reporting a stall. Zero selects 90 s.
	TTSSoftWait time.Duration

	// TTSHardWait is the outer ceiling after which the pipeline abandons the
	// turn's audio. Zero selects 120 s.
	TTSHardWait time.Duration
}

// Session is one client connection's voice-agent session: it owns the session
// id, fans client audio out to STT, detects turns, and runs the reply
// pipeline for each confirmed turn. Create with [New], drive with [Run].
type Session struct {
	id      string
	log     *slog.Logger
	sttP    stt.Provider
	llmP    llm.Provider
	ttsP    tts.Provider
	history *history.Store
	limiter *ratelimit.Limiter
	metrics *observe.Metrics
	persona string
	voice   tts.VoiceProfile

	silenceTimeout time.Duration
	ttsSoftWait    time.Duration
	ttsHardWait    time.Duration

	detector *TurnDetector
	events   chan Event
	jobs     chan turnJob
	now      func() time.Time
}

// New creates a Session with a freshly allocated id. Zero-valued tunables in
// cfg fall back to their defaults.
func New(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	silence := cfg.SilenceTimeout
	if silence <= 0 {
		silence = time.Second
	}
	soft := cfg.TTSSoftWait
	if soft <= 0 {
		soft = 90 * time.Second
	}
	hard := cfg.TTSHardWait
	if hard <= soft {
		hard = soft + 30*time.Second
	}

	id := uuid.NewString()
	return &Session{
		id:             id,
		log:            logger.With("session_id", id),
		sttP:           cfg.STT,
		llmP:           cfg.LLM,
		ttsP:           cfg.TTS,
		history:        cfg.History,
		limiter:        cfg.Limiter,
		metrics:        metrics,
		persona:        cfg.Persona,
		voice:          cfg.Voice,
		silenceTimeout: silence,
		ttsSoftWait:    soft,
		ttsHardWait:    hard,
		detector:       NewTurnDetector(cfg.MergeWindow),
		events:         make(chan Event, eventBuf),
		jobs:           make(chan turnJob, jobBuf),
		now:            time.Now,
	}
}

// ID returns the session id assigned at creation.
func (s *Session) ID() string { return s.id }

// Run drives the session until the client disconnects or the STT session
// terminates. It blocks for the session lifetime; the caller typically
// invokes it directly from the WebSocket handler.
//
// Run owns conn for writing: all outbound events pass through a single
// writer goroutine so the client observes them in strict FIFO order.
func (s *Session) Run(ctx context.Context, conn Conn) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.metrics.ActiveSessions.Add(runCtx, 1)
	defer s.metrics.ActiveSessions.Add(context.Background(), -1)
	defer s.history.Drop(s.id)

	// The writer uses the parent context so events emitted during orderly
	// shutdown (session_terminated and friends) still reach the client after
	// the task group's context is cancelled.
	writerDone := make(chan struct{})
	go s.writeLoop(ctx, conn, writerDone)
	defer func() {
		close(s.events)
		<-writerDone
	}()

	s.emit(runCtx, &ConnectionEstablished{SessionID: s.id})

	handle, err := s.sttP.StartStream(runCtx, stt.StreamConfig{
		SampleRate:          sttSampleRate,
		EndOfTurnConfidence: sttEndOfTurnConfidence,
		MinEndOfTurnSilence: sttMinSilence,
		MaxTurnSilence:      sttMaxSilence,
		FormatTurns:         true,
	})
	if err != nil {
		s.log.Error("stt stream failed to start", "err", err)
		s.metrics.RecordProviderError(runCtx, "stt", "start")
		s.emit(runCtx, &ErrorEvent{Message: "speech service unavailable: " + err.Error()})
		return err
	}
	defer handle.Close()

	s.emit(runCtx, &SessionBegin{})
	s.log.Info("session started")

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return s.ingressLoop(gctx, conn, handle) })
	g.Go(func() error { return s.dispatchLoop(gctx, handle) })
	g.Go(func() error { return s.pipelineLoop(gctx) })

	err = g.Wait()
	s.log.Info("session ended")
	if errors.Is(err, errSessionClosed) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// emit enqueues ev for delivery to the client. It blocks while the outbound
// queue is full and gives up when the session context ends.
func (s *Session) emit(ctx context.Context, ev Event) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

// writeLoop is the single writer to the client connection. It stamps each
// event with the wall-clock timestamp and serialises it as a JSON text frame.
// After a write failure (client gone) it keeps draining so emitters never
// block on a dead connection.
func (s *Session) writeLoop(ctx context.Context, conn Conn, done chan<- struct{}) {
	defer close(done)
	dead := false
	for ev := range s.events {
		if dead {
			continue
		}
		frame, err := encodeEvent(ev, s.now())
		if err != nil {
			s.log.Error("event encode failed", "type", ev.EventType(), "err", err)
			continue
		}
		if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
			s.log.Debug("client write failed, dropping further events", "err", err)
			dead = true
		}
	}
}

// ingressLoop reads frames from the client and forwards binary audio to the
// STT session. Sends block while the provider's outbound buffer is full so
// audio is never dropped or reordered. Any read failure is treated as the
// client going away: the session winds down without a user-visible event.
func (s *Session) ingressLoop(ctx context.Context, conn Conn, handle stt.SessionHandle) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.log.Debug("client read ended", "err", err)
			}
			return errSessionClosed
		}
		if typ != websocket.MessageBinary {
			// Text frames from the client carry no protocol meaning today.
			continue
		}
		if err := handle.SendAudio(data); err != nil {
			// STT side shut down first; dispatch reports the cause.
			return errSessionClosed
		}
	}
}

// dispatchLoop consumes the STT session's transcript channels, classifies
// end-of-turns through the turn detector, and enqueues reply-pipeline jobs.
func (s *Session) dispatchLoop(ctx context.Context, handle stt.SessionHandle) error {
	partials := handle.Partials()
	turns := handle.Turns()
	terminated := handle.Terminated()
	start := s.now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case t, ok := <-partials:
			if !ok {
				partials = nil
				break
			}
			if t.Text != "" {
				s.emit(ctx, &PartialTranscript{Text: t.Text})
			}

		case t, ok := <-turns:
			if !ok {
				turns = nil
				break
			}
			s.handleEndOfTurn(ctx, t.Text, start)

		case end, ok := <-terminated:
			if !ok {
				terminated = nil
				break
			}
			s.log.Info("stt session terminated by provider",
				"audio_duration", end.AudioDuration)
			s.emit(ctx, &SessionTerminated{
				TotalAudioDuration: end.AudioDuration.Seconds(),
			})
			return errSessionClosed
		}

		if partials == nil && turns == nil {
			// A remote termination may still be pending; the transcript
			// channels close in the same instant the SessionEnd is queued.
			if terminated != nil {
				select {
				case end, ok := <-terminated:
					if ok {
						s.emit(ctx, &SessionTerminated{
							TotalAudioDuration: end.AudioDuration.Seconds(),
						})
						return errSessionClosed
					}
				default:
				}
			}
			if err := handle.Err(); err != nil {
				s.log.Error("stt transport failed", "err", err)
				s.metrics.RecordProviderError(ctx, "stt", "stream")
				s.emit(ctx, &ErrorEvent{Message: "speech service error: " + err.Error()})
			}
			return errSessionClosed
		}
	}
}

// handleEndOfTurn applies the punctuation-merge rule to one end-of-turn
// transcript and, for a confirmed new turn with actual content, enqueues a
// reply-pipeline job.
func (s *Session) handleEndOfTurn(ctx context.Context, text string, sessionStart time.Time) {
	now := s.now()
	dec := s.detector.Observe(text, now)
	switch dec.Action {
	case TurnDuplicate:
		return

	case TurnUpdate:
		s.log.Debug("turn transcript updated", "turn", dec.TurnNumber, "text", text)
		s.emit(ctx, &TurnUpdated{TurnNumber: dec.TurnNumber, FinalTranscript: text})

	case TurnNew:
		s.log.Info("turn detected", "turn", dec.TurnNumber, "text", text)
		s.metrics.STTTurnGap.Record(ctx, now.Sub(sessionStart).Seconds())
		s.emit(ctx, &TurnCompleted{TurnNumber: dec.TurnNumber, FinalTranscript: text})
		s.emit(ctx, &FinalTranscript{TurnNumber: dec.TurnNumber, Text: text})
		if strings.TrimSpace(text) == "" {
			return
		}
		select {
		case s.jobs <- turnJob{number: dec.TurnNumber, userText: text, started: now}:
		case <-ctx.Done():
		}
	}
}

// pipelineLoop executes reply-pipeline jobs one at a time, so the pipeline
// for turn N+1 never starts before turn N's has fully exited.
func (s *Session) pipelineLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job := <-s.jobs:
			s.runTurn(ctx, job)
		}
	}
}
