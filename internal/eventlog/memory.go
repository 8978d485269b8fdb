package eventlog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"vitaex/internal/event"
)

// redeliveryCap stops a subscription from spinning forever on a handler that
// never succeeds. The agent runtime converts attempt exhaustion into a failure
// event well before this safety limit.
const redeliveryCap = 25

// Memory is an in-process Log for single-node deployments and tests. It
// mirrors the delivery contract of the Kafka implementation: per-key ordering
// within a subscription, cross-key concurrency, and redelivery on handler
// error. Events published before a subscription exists are not retained.
type Memory struct {
	logger *slog.Logger

	mu     sync.RWMutex
	subs   []*subscription
	closed bool
	wg     sync.WaitGroup
}

type subscription struct {
	group  string
	topics map[string]bool
	fn     Handler
	ctx    context.Context
	logger *slog.Logger

	mu      sync.Mutex
	workers map[string]chan event.Event
	wg      *sync.WaitGroup
}

// NewMemory builds an empty in-process log.
func NewMemory(logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{logger: logger}
}

func (m *Memory) Publish(_ context.Context, ev event.Event) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return context.Canceled
	}
	for _, s := range m.subs {
		if s.topics[ev.Topic] {
			s.deliver(ev)
		}
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, group string, topics []string, fn Handler) error {
	topicSet := make(map[string]bool, len(topics))
	for _, t := range topics {
		topicSet[t] = true
	}
	sub := &subscription{
		group:   group,
		topics:  topicSet,
		fn:      fn,
		ctx:     ctx,
		logger:  m.logger,
		workers: make(map[string]chan event.Event),
		wg:      &m.wg,
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return context.Canceled
	}
	m.subs = append(m.subs, sub)
	m.mu.Unlock()

	<-ctx.Done()
	return ctx.Err()
}

func (m *Memory) Health(context.Context) error { return nil }

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	subs := m.subs
	m.subs = nil
	m.mu.Unlock()
	for _, s := range subs {
		s.close()
	}
	m.wg.Wait()
	return nil
}

// deliver enqueues ev on the worker owning its partition key. One goroutine
// per (subscription, key) keeps per-subject ordering while separate subjects
// proceed concurrently.
func (s *subscription) deliver(ev event.Event) {
	s.mu.Lock()
	ch, ok := s.workers[ev.Key()]
	if !ok {
		ch = make(chan event.Event, 128)
		s.workers[ev.Key()] = ch
		s.wg.Add(1)
		go s.run(ch)
	}
	s.mu.Unlock()

	select {
	case ch <- ev:
	case <-s.ctx.Done():
	}
}

func (s *subscription) run(ch chan event.Event) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			for attempt := 1; ; attempt++ {
				err := s.fn(s.ctx, ev)
				if err == nil {
					break
				}
				if s.ctx.Err() != nil {
					return
				}
				if attempt >= redeliveryCap {
					s.logger.Error("dropping event after redelivery cap",
						"group", s.group, "topic", ev.Topic, "event_id", ev.ID.String())
					break
				}
				// Small fixed delay; the runtime owns the real
				// backoff curve.
				select {
				case <-time.After(10 * time.Millisecond):
				case <-s.ctx.Done():
					return
				}
			}
		}
	}
}

func (s *subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.workers {
		close(ch)
	}
	s.workers = make(map[string]chan event.Event)
}
