package queue

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cpilot-dev/cpilot/internal/domain"
	"github.com/cpilot-dev/cpilot/internal/domain/events"
	"github.com/cpilot-dev/cpilot/internal/domain/ports"
	cpsync "github.com/cpilot-dev/cpilot/internal/sync"
)

// SessionOps is the slice of session behavior the processor needs. The
// session manager implements it; tests substitute fakes.
type SessionOps interface {
	// Ready reports whether the agent is idle and awaiting input.
	Ready() bool

	// Alive reports whether the child process is running.
	Alive() bool

	// Write sends raw bytes to the child's input stream.
	Write(data []byte) error

	// AwaitReady blocks until the detector reports ready, the timeout
	// elapses (domain.ErrReadinessTimeout), or ctx is cancelled.
	AwaitReady(ctx context.Context, timeout time.Duration) error

	// ScreenLooksReady is the recovery check after a timeout: does the
	// current screen independently look ready.
	ScreenLooksReady() bool

	// Restart stops and restarts the session, used between write retries.
	// Implementations must cancel any context driving a run loop before
	// tearing the session down; a resend to the fresh process would
	// otherwise deliver the in-flight message twice.
	Restart(ctx context.Context) error

	// StatusString is a short session status snapshot for error contexts.
	StatusString() string
}

// ProcessorConfig holds the send/completion tuning knobs.
type ProcessorConfig struct {
	// Payloads up to LargePayloadThreshold bytes use the small chunk
	// parameters; larger ones use the large parameters.
	LargePayloadThreshold int
	SmallChunkSize        int
	SmallChunkDelay       time.Duration
	LargeChunkSize        int
	LargeChunkDelay       time.Duration

	// SubmitDelay separates the last content chunk from the submit
	// keystroke; the CLI drops the keystroke when they coalesce.
	SubmitDelay time.Duration

	// InterMessageDelay is the pause between a completion and the next
	// pending message.
	InterMessageDelay time.Duration

	// ReadyTimeout is the overall ceiling on waiting for completion.
	ReadyTimeout time.Duration

	// WriteRetry bounds the resend loop on write failures.
	WriteRetry RetryPolicy
}

// DefaultProcessorConfig returns the canonical processing constants.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		LargePayloadThreshold: 2048,
		SmallChunkSize:        256,
		SmallChunkDelay:       25 * time.Millisecond,
		LargeChunkSize:        1024,
		LargeChunkDelay:       75 * time.Millisecond,
		SubmitDelay:           150 * time.Millisecond,
		InterMessageDelay:     1 * time.Second,
		ReadyTimeout:          3 * time.Minute,
		WriteRetry:            DefaultWriteRetry(),
	}
}

// Processor drives the queue: it claims the oldest pending message, sends
// it to the agent, waits for readiness, finalizes, and repeats. At most one
// run loop is active per processor.
type Processor struct {
	queue   *Queue
	session SessionOps
	cfg     ProcessorConfig

	hub           ports.EventHub
	workspacePath string
	sessionID     string

	mu      cpsync.Mutex
	running bool
	halted  bool
}

// NewProcessor creates a processor bound to a queue and session.
func NewProcessor(q *Queue, session SessionOps, cfg ProcessorConfig, hub ports.EventHub, workspacePath, sessionID string) *Processor {
	if cfg.ReadyTimeout == 0 {
		cfg = DefaultProcessorConfig()
	}
	return &Processor{
		queue:         q,
		session:       session,
		cfg:           cfg,
		hub:           hub,
		workspacePath: workspacePath,
		sessionID:     sessionID,
	}
}

// TryAutoStart begins processing if the session is ready, nothing is in
// flight, at least one message is pending, and processing has not been
// halted by a fatal error. Safe to call after every enqueue, session start,
// and completion; extra calls are no-ops.
func (p *Processor) TryAutoStart(ctx context.Context) {
	p.mu.Lock()
	if p.running || p.halted {
		p.mu.Unlock()
		return
	}
	if !p.session.Ready() || !p.session.Alive() {
		p.mu.Unlock()
		return
	}
	if p.queue.CurrentlyProcessing() != nil || p.queue.NextPending() == nil {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	go p.run(ctx)
}

// Halted reports whether auto-processing stopped due to a fatal error.
func (p *Processor) Halted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.halted
}

// Resume clears the halted flag, typically after a successful restart.
func (p *Processor) Resume() {
	p.mu.Lock()
	p.halted = false
	p.mu.Unlock()
}

// IsRunning reports whether the run loop is active.
func (p *Processor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Processor) run(ctx context.Context) {
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		p.mu.Lock()
		halted := p.halted
		p.mu.Unlock()
		if halted {
			return
		}

		// Re-validate session state: any amount of time may have passed
		// at the previous suspension point.
		if !p.session.Alive() || !p.session.Ready() {
			return
		}

		next := p.queue.NextPending()
		if next == nil {
			return
		}

		// Single-flight: the defensive integrity pass runs inside
		// MarkProcessing; a conflicting in-flight entry refuses the claim.
		claimed, err := p.queue.MarkProcessing(next.ID)
		if err != nil {
			if errors.Is(err, domain.ErrQueueProcessing) {
				log.Warn().Str("message_id", next.ID).Msg("another message is in flight, backing off")
				return
			}
			if errors.Is(err, domain.ErrMessageNotFound) {
				// Removed between NextPending and the claim; pick again.
				continue
			}
			log.Error().Err(err).Str("message_id", next.ID).Msg("failed to claim message")
			return
		}

		p.publish(events.NewMessageStartedEvent(p.sessionID, p.workspacePath, claimed.ID, claimed.Text))
		log.Info().
			Str("message_id", claimed.ID).
			Int("bytes", len(claimed.Text)).
			Msg("processing message")

		if err := p.sendWithRetry(ctx, claimed.Text); err != nil {
			if ctx.Err() != nil {
				// Stop in progress; the session manager resets the
				// in-flight message.
				return
			}
			p.failFatal(claimed, "write_failure", err)
			return
		}

		if err := p.session.AwaitReady(ctx, p.cfg.ReadyTimeout); err != nil {
			if ctx.Err() != nil {
				// Stop in progress; the session manager resets the
				// in-flight message.
				return
			}
			if p.session.ScreenLooksReady() {
				// The ceiling fired but the screen settled: recover.
				log.Warn().Str("message_id", claimed.ID).Msg("ready wait timed out but screen looks ready, recovering")
				if !p.complete(claimed, StatusCompleted, "") {
					return
				}
			} else {
				p.failTimeout(claimed, err)
				return
			}
		} else {
			if !p.complete(claimed, StatusCompleted, "") {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.cfg.InterMessageDelay):
		}
	}
}

// sendWithRetry transmits the message in adaptive chunks, retrying write
// failures with backoff after attempting a session restart.
func (p *Processor) sendWithRetry(ctx context.Context, text string) error {
	return p.cfg.WriteRetry.Do(ctx,
		func() error { return p.send(ctx, text) },
		func(attempt int) error {
			log.Warn().Int("attempt", attempt).Msg("write failed, restarting session before resend")
			if err := p.session.Restart(ctx); err != nil {
				return err
			}
			return p.session.AwaitReady(ctx, p.cfg.ReadyTimeout)
		})
}

// send writes the payload in size-bounded chunks, then the submit keystroke
// as a wholly separate write after a settle delay.
func (p *Processor) send(ctx context.Context, text string) error {
	chunkSize, delay := p.cfg.SmallChunkSize, p.cfg.SmallChunkDelay
	if len(text) > p.cfg.LargePayloadThreshold {
		chunkSize, delay = p.cfg.LargeChunkSize, p.cfg.LargeChunkDelay
	}
	if chunkSize <= 0 {
		chunkSize = 256
	}

	data := []byte(text)
	for start := 0; start < len(data); start += chunkSize {
		end := start + chunkSize
		if end > len(data) {
			end = len(data)
		}
		if err := p.session.Write(data[start:end]); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.cfg.SubmitDelay):
	}
	return p.session.Write([]byte("\r"))
}

// complete finalizes a message and publishes the completion. It returns
// false when the message was requeued behind our back (a restart reset it
// to pending); the caller must stop the loop so the fresh claim delivers it
// exactly once.
func (p *Processor) complete(msg *Message, status Status, errMsg string) bool {
	done, err := p.queue.MarkCompleted(msg.ID, status, errMsg, nil)
	if err != nil {
		if errors.Is(err, domain.ErrMessageNotEditable) {
			log.Warn().Str("message_id", msg.ID).Msg("message requeued during finalize, stopping run loop")
			return false
		}
		log.Error().Err(err).Str("message_id", msg.ID).Msg("failed to finalize message")
		return false
	}
	p.publish(events.NewMessageCompletedEvent(p.sessionID, p.workspacePath, done.ID, string(done.Status), done.ProcessingTimeMS, done.Error))
	log.Info().
		Str("message_id", done.ID).
		Int64("processing_ms", done.ProcessingTimeMS).
		Msg("message completed")
	return true
}

// failTimeout marks the message errored after a readiness timeout and halts
// auto-processing: the session is not demonstrably viable.
func (p *Processor) failTimeout(msg *Message, cause error) {
	ctx := &ErrorContext{
		MessageID:     msg.ID,
		Kind:          "readiness_timeout",
		Timestamp:     time.Now().UTC(),
		SessionStatus: p.session.StatusString(),
	}
	if msg.ProcessingStartedAt != nil {
		ctx.ProcessingTimeMS = time.Since(*msg.ProcessingStartedAt).Milliseconds()
	}
	done, err := p.queue.MarkCompleted(msg.ID, StatusError, cause.Error(), ctx)
	if err != nil {
		log.Error().Err(err).Str("message_id", msg.ID).Msg("failed to record timeout")
		return
	}
	p.publish(events.NewMessageCompletedEvent(p.sessionID, p.workspacePath, done.ID, string(done.Status), done.ProcessingTimeMS, done.Error))
	p.haltWith("readiness timeout", msg.ID)
}

// failFatal resets the in-flight message to pending (the send never took
// effect) and halts auto-processing.
func (p *Processor) failFatal(msg *Message, kind string, cause error) {
	log.Error().
		Err(cause).
		Str("message_id", msg.ID).
		Str("kind", kind).
		Msg("session-fatal error, stopping auto-processing")
	p.queue.ResetInFlight()
	p.haltWith(kind+": "+cause.Error(), msg.ID)
}

func (p *Processor) haltWith(reason, messageID string) {
	p.mu.Lock()
	p.halted = true
	p.mu.Unlock()
	p.publish(events.NewProcessingStoppedEvent(p.sessionID, p.workspacePath, reason, messageID))
}

func (p *Processor) publish(event *events.BaseEvent) {
	if p.hub == nil {
		return
	}
	p.hub.Publish(event)
}
