// Package stream runs the producer/consumer pipeline that moves provider
// tokens into a transcript message.
//
// The producer goroutine reads raw tokens from the provider, strips think
// spans and pushes visible chunks onto a bounded queue. The consumer goroutine
// drains the queue on a fixed tick, applying tokens in adaptive batches so the
// message grows smoothly under slow providers and keeps up under fast ones.
package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/tagforge/tagforge/internal/event"
	"github.com/tagforge/tagforge/internal/logging"
	"github.com/tagforge/tagforge/internal/provider"
	"github.com/tagforge/tagforge/pkg/types"
)

// State is the lifecycle phase of the coordinator.
type State string

const (
	StateIdle       State = "idle"
	StateRequesting State = "requesting"
	StateStreaming  State = "streaming"
	StateCompleted  State = "completed"
	StateCancelled  State = "cancelled"
	StateFailed     State = "failed"
)

// stoppedNotice is appended to the transcript when the user cancels.
const stoppedNotice = "Generation Stopped"

// Config tunes the pipeline. Zero values take the defaults.
type Config struct {
	// QueueSize bounds the token queue between producer and consumer.
	QueueSize int
	// BatchBase and BatchCap bound the adaptive batch size: each tick applies
	// min(BatchCap, BatchBase+pending/30) queued chunks.
	BatchBase int
	BatchCap  int
	// TickInterval paces consumer applies.
	TickInterval time.Duration
	// ScrollEvery publishes a scroll request every Nth applied batch.
	ScrollEvery int
}

// DefaultConfig returns the production tuning: ~35ms ticks for smooth
// rendering, batches capped at 15 chunks, scroll pinned every 5th batch.
func DefaultConfig() Config {
	return Config{
		QueueSize:    256,
		BatchBase:    3,
		BatchCap:     15,
		TickInterval: 35 * time.Millisecond,
		ScrollEvery:  5,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.BatchBase <= 0 {
		c.BatchBase = d.BatchBase
	}
	if c.BatchCap <= 0 {
		c.BatchCap = d.BatchCap
	}
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.ScrollEvery <= 0 {
		c.ScrollEvery = d.ScrollEvery
	}
	return c
}

// Request describes one generation run.
type Request struct {
	SessionID  string
	Category   types.Category
	Transcript Transcript
	// Target is the assistant placeholder already appended to Transcript;
	// tokens stream into its Content.
	Target   *types.Message
	Provider provider.Provider

	SystemPrompt string
	UserPrompt   string
	Model        string
	Credentials  provider.Credentials
}

// Coordinator drives a single generation at a time through the
// producer/queue/consumer pipeline.
type Coordinator struct {
	tracker *Tracker
	bus     *event.Bus
	monitor *provider.Monitor
	cfg     Config

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
}

// NewCoordinator creates a coordinator. The monitor may be nil.
func NewCoordinator(tracker *Tracker, bus *event.Bus, monitor *provider.Monitor, cfg Config) *Coordinator {
	return &Coordinator{
		tracker: tracker,
		bus:     bus,
		monitor: monitor,
		cfg:     cfg.withDefaults(),
		state:   StateIdle,
	}
}

// State returns the current lifecycle phase.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Generating reports whether a generation is in flight.
func (c *Coordinator) Generating() bool {
	s := c.State()
	return s == StateRequesting || s == StateStreaming
}

// Stop cancels the in-flight generation, if any. Queued tokens are still
// drained into the message before the stop notice lands.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Generate runs one generation to completion, streaming into req.Target and
// persisting through the tracker. It blocks until the run settles; callers
// wanting fire-and-forget run it in a goroutine and use Stop to cancel.
//
// Cancellation is not an error: the transcript gets a stop notice and
// Generate returns nil. Provider failures are written into the target message
// for the user, logged raw for diagnostics, and returned.
func (c *Coordinator) Generate(ctx context.Context, req *Request) error {
	if err := c.tracker.Begin(req.SessionID, req.Category, req.Transcript, req.Target); err != nil {
		return err
	}
	return c.Run(ctx, req)
}

// Run executes a generation whose slot the caller has already claimed with
// tracker.Begin. Claiming synchronously lets the caller reject a concurrent
// start before anything is appended to the transcript.
func (c *Coordinator) Run(ctx context.Context, req *Request) error {
	genCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
		c.setState(StateIdle, req.SessionID)
	}()

	c.setState(StateRequesting, req.SessionID)
	start := time.Now()

	stream, err := req.Provider.GenerateStreaming(genCtx, &provider.Request{
		SystemPrompt: req.SystemPrompt,
		UserPrompt:   req.UserPrompt,
		Model:        req.Model,
		Credentials:  req.Credentials,
	})
	if err != nil {
		c.fail(req, err)
		return err
	}
	defer stream.Close()

	c.setState(StateStreaming, req.SessionID)

	queue := make(chan chunk, c.cfg.QueueSize)
	prodErr := make(chan error, 1)
	go c.produce(genCtx, stream, queue, prodErr)
	c.consume(genCtx, req, queue)

	err = <-prodErr
	switch {
	case err == nil:
		elapsed := time.Since(start)
		if c.monitor != nil {
			c.monitor.RecordLatency(elapsed)
		}
		logging.Debug().
			Str("sessionID", req.SessionID).
			Dur("elapsed", elapsed).
			Msg("generation completed")
		c.setState(StateCompleted, req.SessionID)
		c.tracker.Finish(nil)
		return nil

	case errors.Is(err, context.Canceled):
		c.setState(StateCancelled, req.SessionID)
		c.tracker.WithSessionLock(req.SessionID, func() {
			req.Target.IsLoadingModel = false
			req.Target.IsThinking = false
		})
		c.tracker.Finish(types.NewMessage(types.RoleSystem, stoppedNotice))
		return nil

	default:
		c.fail(req, err)
		return err
	}
}

// produce reads provider tokens, filters think spans and feeds the queue.
// It checks for cancellation between token reads and closes the queue when
// the stream ends either way.
func (c *Coordinator) produce(ctx context.Context, stream provider.TokenStream, queue chan<- chunk, done chan<- error) {
	defer close(queue)

	var filter thinkFilter
	for {
		select {
		case <-ctx.Done():
			done <- ctx.Err()
			return
		default:
		}

		token, err := stream.Recv()
		if err == io.EOF {
			if ctx.Err() != nil {
				done <- ctx.Err()
				return
			}
			for _, ck := range filter.Flush() {
				select {
				case queue <- ck:
				case <-ctx.Done():
					done <- ctx.Err()
					return
				}
			}
			done <- nil
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				done <- ctx.Err()
			} else {
				done <- err
			}
			return
		}

		for _, ck := range filter.Feed(token) {
			select {
			case queue <- ck:
			case <-ctx.Done():
				done <- ctx.Err()
				return
			}
		}
	}
}

// consume drains the queue into the target message in paced, adaptively
// sized batches until the queue closes. After cancellation it keeps draining
// but skips the pacing delay.
func (c *Coordinator) consume(ctx context.Context, req *Request, queue <-chan chunk) {
	applied := 0
	for {
		first, ok := <-queue
		if !ok {
			return
		}

		batch, thinking := applyChunk(first, "", nil)
		limit := c.cfg.BatchBase + len(queue)/30
		if limit > c.cfg.BatchCap {
			limit = c.cfg.BatchCap
		}
	drain:
		for n := 1; n < limit; n++ {
			select {
			case ck, more := <-queue:
				if !more {
					break drain
				}
				batch, thinking = applyChunk(ck, batch, thinking)
			default:
				break drain
			}
		}

		c.apply(req, batch, thinking)

		applied++
		if applied%c.cfg.ScrollEvery == 0 && c.tracker.Displayed() == req.SessionID {
			c.bus.Publish(event.Event{
				Type: event.ScrollRequested,
				Data: event.ScrollRequestedData{SessionID: req.SessionID},
			})
		}

		select {
		case <-ctx.Done():
			// keep draining at full speed
		case <-time.After(c.cfg.TickInterval):
		}
	}
}

// applyChunk folds one chunk into the running batch. The returned thinking
// pointer is the last explicit transition seen, nil when none occurred.
func applyChunk(ck chunk, batch string, thinking *bool) (string, *bool) {
	if ck.enterThink {
		v := true
		thinking = &v
	}
	if ck.exitThink {
		v := false
		thinking = &v
	}
	return batch + ck.text, thinking
}

// apply mutates the target message with one batch and hands it to the
// tracker. The first batch clears the loading placeholder. Mutation happens
// under the per-session lock so a transcript persist never reads a message
// mid-write.
func (c *Coordinator) apply(req *Request, batch string, thinking *bool) {
	target := req.Target
	var content string
	c.tracker.WithSessionLock(req.SessionID, func() {
		if target.IsLoadingModel {
			target.IsLoadingModel = false
		}
		switch {
		case thinking != nil:
			target.IsThinking = *thinking
		case batch != "" && target.IsThinking:
			target.IsThinking = false
		}
		target.Content += batch
		content = target.Content
	})
	c.tracker.Apply(batch, content)
}

// fail records a provider failure: classified message for the user in the
// target, raw error to the diagnostic log.
func (c *Coordinator) fail(req *Request, err error) {
	logging.Error().
		Err(err).
		Str("sessionID", req.SessionID).
		Str("model", req.Model).
		Msg("generation failed")

	c.tracker.WithSessionLock(req.SessionID, func() {
		req.Target.IsLoadingModel = false
		req.Target.IsThinking = false
		req.Target.Content = "Generation Failed\n\n" + ClassifyError(err)
	})
	c.setState(StateFailed, req.SessionID)
	c.tracker.Finish(nil)
}

func (c *Coordinator) setState(state State, sessionID string) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()

	c.bus.Publish(event.Event{
		Type: event.GenerationState,
		Data: event.GenerationStateData{
			SessionID:  sessionID,
			Generating: state == StateRequesting || state == StateStreaming,
			State:      string(state),
		},
	})
}
