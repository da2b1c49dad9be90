package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ParityBot/internal/domain/models"
	domrepo "ParityBot/internal/domain/repository"
	applogger "ParityBot/pkg/logger"
)

// DecisionPipeline sits between the trading loops and the event publisher.
// It validates events, forwards them, and buffers them for retry while the
// downstream is unavailable. A trading loop waits on the downstream for at
// most the send timeout; a slower delivery is cancelled and buffered.
type DecisionPipeline struct {
	next    domrepo.DecisionPublisher
	metrics domrepo.Metrics
	log     *applogger.Logger

	bufSize     int
	backoffMin  time.Duration
	backoffMax  time.Duration
	sendTimeout time.Duration

	bufCh   chan event
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	started bool
}

var _ domrepo.DecisionPublisher = (*DecisionPipeline)(nil)

type event struct {
	decision *models.Decision
	trade    *models.TradeRecord
}

type PipelineOption func(*DecisionPipeline)

// WithBufferSize sets how many events are held while downstream is failing.
func WithBufferSize(n int) PipelineOption {
	return func(p *DecisionPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithBackoff sets the retry backoff range.
func WithBackoff(min, max time.Duration) PipelineOption {
	return func(p *DecisionPipeline) {
		if min > 0 && max >= min {
			p.backoffMin, p.backoffMax = min, max
		}
	}
}

// WithSendTimeout bounds the first delivery attempt made on the caller's
// goroutine.
func WithSendTimeout(d time.Duration) PipelineOption {
	return func(p *DecisionPipeline) {
		if d > 0 {
			p.sendTimeout = d
		}
	}
}

func NewDecisionPipeline(next domrepo.DecisionPublisher, metrics domrepo.Metrics, log *applogger.Logger, opts ...PipelineOption) *DecisionPipeline {
	p := &DecisionPipeline{
		next:        next,
		metrics:     metrics,
		log:         log,
		bufSize:     1000,
		backoffMin:  50 * time.Millisecond,
		backoffMax:  2 * time.Second,
		sendTimeout: 2 * time.Second,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan event, p.bufSize)
	return p
}

// Start launches the retry loop for buffered events.
func (p *DecisionPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		defer close(p.doneCh)
		backoff := p.backoffMin
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case ev := <-p.bufCh:
				if err := p.send(ctx, ev); err != nil {
					p.metrics.RecordError("pipeline_flush")
					if backoff *= 2; backoff > p.backoffMax {
						backoff = p.backoffMax
					}
					p.requeue(ev)
					select {
					case <-time.After(backoff):
					case <-p.stopCh:
						return
					case <-ctx.Done():
						return
					}
					continue
				}
				backoff = p.backoffMin
			}
		}
	}()
}

// Pending returns the number of buffered events.
func (p *DecisionPipeline) Pending() int { return len(p.bufCh) }

func (p *DecisionPipeline) PublishDecision(ctx context.Context, d models.Decision) error {
	if err := validateDecision(d); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	return p.forward(ctx, event{decision: &d})
}

func (p *DecisionPipeline) PublishTrade(ctx context.Context, t models.TradeRecord) error {
	if err := validateTrade(t); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	return p.forward(ctx, event{trade: &t})
}

// forward sends ev now, or buffers it when downstream fails. Buffered
// events report nil; only a full buffer surfaces the error.
func (p *DecisionPipeline) forward(ctx context.Context, ev event) error {
	start := time.Now()
	sendCtx, cancel := context.WithTimeout(ctx, p.sendTimeout)
	err := p.send(sendCtx, ev)
	cancel()
	if err == nil {
		p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
		return nil
	}
	p.metrics.RecordError("pipeline_process")
	select {
	case p.bufCh <- ev:
		p.log.Warn("event buffered", applogger.Int("pending", len(p.bufCh)), applogger.Error(err))
		return nil
	default:
		p.metrics.RecordError("pipeline_buffer_full")
		return fmt.Errorf("pipeline downstream: %w", err)
	}
}

func (p *DecisionPipeline) send(ctx context.Context, ev event) error {
	if ev.decision != nil {
		return p.next.PublishDecision(ctx, *ev.decision)
	}
	return p.next.PublishTrade(ctx, *ev.trade)
}

func (p *DecisionPipeline) requeue(ev event) {
	select {
	case p.bufCh <- ev:
	default:
		p.metrics.RecordError("pipeline_buffer_drop")
	}
}

// Close stops the retry loop, makes one last delivery attempt for buffered
// events and closes the downstream publisher.
func (p *DecisionPipeline) Close() error {
	p.mu.Lock()
	started := p.started
	p.started = false
	p.mu.Unlock()
	if started {
		close(p.stopCh)
		<-p.doneCh
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	dropped := 0
	for {
		select {
		case ev := <-p.bufCh:
			if err := p.send(ctx, ev); err != nil {
				dropped++
			}
			continue
		default:
		}
		break
	}
	if dropped > 0 {
		p.log.Error("events dropped on close", applogger.Int("count", dropped))
	}
	return p.next.Close()
}

func validateDecision(d models.Decision) error {
	if d.Symbol == "" {
		return errors.New("decision symbol empty")
	}
	if d.Timestamp.IsZero() {
		return errors.New("decision timestamp missing")
	}
	switch d.Action {
	case models.ActionBuy, models.ActionSell, models.ActionHold:
	default:
		return fmt.Errorf("decision action %q invalid", d.Action)
	}
	return nil
}

func validateTrade(t models.TradeRecord) error {
	if t.Symbol == "" {
		return errors.New("trade symbol empty")
	}
	if t.EntryTime.IsZero() || !t.EntryPrice.IsPositive() {
		return errors.New("trade entry missing")
	}
	if t.Side == models.SideSell && (t.ExitTime == nil || !t.ExitPrice.Valid) {
		return errors.New("sell trade without exit")
	}
	return nil
}
