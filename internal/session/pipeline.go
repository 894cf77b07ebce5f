package session

import (
	"context"
	"encoding/base64"
	"errors"
	"sync/atomic"
	"time"

	"github.com/ariavoice/aria/pkg/provider/llm"
	"github.com/ariavoice/aria/pkg/provider/tts"
)

// quotaMessage is the llm_error text emitted when the rolling-window quota
// refuses a turn. The wording is part of the client contract.
const quotaMessage = "Daily quota limit reached"

// turnJob is one confirmed turn queued for the reply pipeline.
type turnJob struct {
	number   int
	userText string
	started  time.Time
}

// runTurn executes the reply pipeline for one turn: admission against the
// LLM quota, streaming generation, TTS fan-out, and completion bookkeeping.
// Errors are reported to the client and never propagate; the session stays
// usable for the next turn.
func (s *Session) runTurn(ctx context.Context, job turnJob) {
	// ── Phase A: admission ───────────────────────────────────────────────────
	if !s.limiter.TryAcquire() {
		s.log.Warn("turn refused by llm quota", "turn", job.number)
		s.metrics.RateLimitDenials.Add(ctx, 1)
		s.metrics.RecordTurn(ctx, "rate_limited")
		s.emit(ctx, &LLMError{TurnNumber: job.number, Error: quotaMessage})
		return
	}

	// The history snapshot is taken at the start of the turn; the live list
	// only grows at the end of this same pipeline, so no turn ever sees a
	// half-written exchange.
	snapshot := s.history.Snapshot(s.id)
	messages := make([]llm.Message, 0, len(snapshot)+1)
	messages = append(messages, snapshot...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: job.userText})

	// ── Phase B: LLM streaming ───────────────────────────────────────────────
	s.emit(ctx, &LLMStreamingStart{TurnNumber: job.number})
	llmStart := s.now()

	chunkCh, err := s.llmP.StreamCompletion(ctx, llm.CompletionRequest{
		SystemPrompt: s.persona,
		Messages:     messages,
	})
	if err != nil {
		s.log.Error("llm stream failed to start", "turn", job.number, "err", err)
		s.metrics.RecordProviderError(ctx, "llm", "stream")
		s.metrics.RecordTurn(ctx, "error")
		if ctx.Err() == nil {
			s.emit(ctx, &LLMError{TurnNumber: job.number, Error: err.Error()})
		}
		return
	}

	// ── Phase C: TTS fan-out, concurrent with B ──────────────────────────────
	relay := s.openAudioRelay(ctx, job.number)

	defer func() {
		if relay != nil {
			relay.close()
			<-relay.done
		}
	}()

	var (
		accumulated []byte
		llmErr      error
	)
	ttsStart := s.now()

stream:
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-chunkCh:
			if !ok {
				break stream
			}
			if c.FinishReason == "error" {
				llmErr = errors.New(c.Text)
				break stream
			}
			if c.Text != "" {
				accumulated = append(accumulated, c.Text...)
				s.emit(ctx, &LLMChunk{
					TurnNumber:  job.number,
					Chunk:       c.Text,
					Accumulated: string(accumulated),
				})
				if relay != nil && !relay.broken.Load() {
					if err := relay.sendText(c.Text, false); err != nil {
						s.log.Error("tts send failed", "turn", job.number, "err", err)
						s.metrics.RecordProviderError(ctx, "tts", "send")
						s.emit(ctx, &ErrorEvent{Message: "speech synthesis error: " + err.Error()})
						relay.abort()
					}
				}
			}
			if c.FinishReason != "" {
				break stream
			}
		}
	}

	assistantText := string(accumulated)

	if llmErr != nil {
		s.log.Error("llm stream failed", "turn", job.number, "err", llmErr)
		s.metrics.RecordProviderError(ctx, "llm", "stream")
		s.metrics.RecordTurn(ctx, "error")
		if relay != nil {
			relay.abort()
		}
		if ctx.Err() == nil {
			s.emit(ctx, &LLMError{TurnNumber: job.number, Error: llmErr.Error()})
		}
		return
	}
	s.metrics.LLMDuration.Record(ctx, s.now().Sub(llmStart).Seconds())

	if relay != nil && !relay.broken.Load() {
		// Flush the provider's synthesis buffer; a failure here degrades the
		// turn to text-only like any other TTS transport error.
		if err := relay.sendText("", true); err != nil {
			s.log.Error("tts end frame failed", "turn", job.number, "err", err)
			s.metrics.RecordProviderError(ctx, "tts", "send")
			s.emit(ctx, &ErrorEvent{Message: "speech synthesis error: " + err.Error()})
			relay.abort()
		}
	}

	// ── Phase D: completion ──────────────────────────────────────────────────
	if assistantText != "" {
		s.history.AppendExchange(s.id, job.userText, assistantText)
	}

	completeEmitted := false
	if relay != nil {
		soft := time.NewTimer(s.ttsSoftWait)
		select {
		case <-relay.done:
			soft.Stop()
		case <-ctx.Done():
			soft.Stop()
			return
		case <-soft.C:
			// Soft ceiling: finish the turn for the client, report the stall,
			// and keep waiting for audio up to the hard ceiling.
			s.emit(ctx, &LLMStreamingComplete{TurnNumber: job.number, FullResponse: assistantText})
			completeEmitted = true
			s.emit(ctx, &ErrorEvent{Message: "speech synthesis is taking too long; audio may be incomplete"})

			hard := time.NewTimer(s.ttsHardWait - s.ttsSoftWait)
			select {
			case <-relay.done:
				hard.Stop()
			case <-ctx.Done():
				hard.Stop()
				return
			case <-hard.C:
				s.log.Error("abandoning turn audio", "turn", job.number)
				s.emit(ctx, &ErrorEvent{Message: "speech synthesis abandoned for this turn"})
				// Abandoned audio must not read as finished: abort suppresses
				// the terminating chunk and the completion event.
				relay.abort()
				<-relay.done
			}
		}
	}

	if !completeEmitted {
		s.emit(ctx, &LLMStreamingComplete{TurnNumber: job.number, FullResponse: assistantText})
	}
	if relay != nil && relay.completed() {
		s.emit(ctx, &AudioStreamingComplete{TurnNumber: job.number})
		s.metrics.TTSDuration.Record(ctx, s.now().Sub(ttsStart).Seconds())
	}

	s.metrics.TurnDuration.Record(ctx, s.now().Sub(job.started).Seconds())
	s.metrics.RecordTurn(ctx, "ok")
	s.log.Info("turn completed", "turn", job.number, "reply_len", len(assistantText))
}

// openAudioRelay opens the TTS stream for one turn and starts the goroutine
// forwarding its audio to the client. A TTS failure degrades the turn to
// text-only: an error event is emitted and nil is returned.
func (s *Session) openAudioRelay(ctx context.Context, turn int) *audioRelay {
	stream, err := s.ttsP.OpenStream(ctx, s.voice)
	if err != nil {
		s.log.Error("tts stream failed to open", "turn", turn, "err", err)
		s.metrics.RecordProviderError(ctx, "tts", "open")
		if ctx.Err() == nil {
			s.emit(ctx, &ErrorEvent{Message: "speech synthesis unavailable: " + err.Error()})
		}
		return nil
	}

	r := &audioRelay{
		session: s,
		turn:    turn,
		stream:  stream,
		silence: s.silenceTimeout,
		done:    make(chan struct{}),
	}
	go r.run(ctx)
	return r
}

// audioRelay forwards one turn's TTS audio to the client and detects
// completion from two sources: the provider's final flag and a silence
// deadline reset on each chunk. Whichever fires first wins; the terminating
// audio_chunk is emitted exactly once per turn.
type audioRelay struct {
	session *Session
	turn    int
	stream  tts.StreamHandle
	silence time.Duration

	// done is closed when the relay goroutine exits.
	done chan struct{}

	// broken is set when the TTS transport failed mid-turn; it suppresses the
	// completion events so the client is not told a broken stream finished.
	broken atomic.Bool

	// finished is set once completion was detected and the terminating chunk
	// emitted.
	finished atomic.Bool
}

// sendText forwards a text fragment to the TTS stream.
func (r *audioRelay) sendText(text string, end bool) error {
	return r.stream.SendText(text, end)
}

// abort marks the relay's transport as failed and closes the stream. The
// relay goroutine exits without emitting completion events.
func (r *audioRelay) abort() {
	r.broken.Store(true)
	_ = r.stream.Close()
}

// close tears the TTS stream down. Safe to call multiple times and alongside
// abort.
func (r *audioRelay) close() {
	_ = r.stream.Close()
}

// completed reports whether the relay detected completion and emitted the
// terminating audio chunk.
func (r *audioRelay) completed() bool {
	return r.finished.Load() && !r.broken.Load()
}

// run receives synthesised audio until the provider flags final, the silence
// deadline passes, or the stream closes. Each chunk is re-encoded as base64
// and emitted as an audio_chunk event.
func (r *audioRelay) run(ctx context.Context) {
	defer close(r.done)

	// silence stays nil until the first chunk arrives, so a stream that never
	// produces audio is completed by channel close, not by the deadline.
	var (
		timer   *time.Timer
		silence <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	chunks := r.stream.Chunks()
	for {
		select {
		case <-ctx.Done():
			return

		case c, ok := <-chunks:
			if !ok {
				// Clean close without a final flag. The stream is drained, so
				// the turn's audio is complete unless the transport broke.
				if !r.broken.Load() {
					r.finish(ctx)
				}
				return
			}
			if c.Final {
				r.finish(ctx)
				return
			}
			if len(c.Data) > 0 {
				r.session.emit(ctx, &AudioChunk{
					TurnNumber: r.turn,
					AudioData:  base64.StdEncoding.EncodeToString(c.Data),
				})
				if timer == nil {
					timer = time.NewTimer(r.silence)
					silence = timer.C
				} else {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(r.silence)
				}
			}

		case <-silence:
			// Provider went quiet after at least one chunk; treat as done.
			r.finish(ctx)
			return
		}
	}
}

// finish emits the terminating audio chunk exactly once and records that the
// turn's audio completed. The audio_streaming_complete event is emitted by
// the pipeline after the LLM side has also finished.
func (r *audioRelay) finish(ctx context.Context) {
	if !r.finished.CompareAndSwap(false, true) {
		return
	}
	r.session.emit(ctx, &AudioChunk{TurnNumber: r.turn, AudioData: "", Final: true})
}
