package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/LexiconIndonesia/covercraft-service/common/constants"
	"github.com/LexiconIndonesia/covercraft-service/common/work"
	"github.com/rs/zerolog/log"
)

// Handler produces the response to a message.
type Handler func(ctx context.Context, msg Message) Response

// Observer is notified of every message a coordinator receives.
type Observer func(ctx context.Context, endpoint string, msg Message, handled bool)

// Coordinator routes messages received by one context to its handlers.
// Synchronous handlers answer on the caller's goroutine. Asynchronous ones
// run on a worker pool and the caller receives a pending Future.
// Message types without a handler are dropped silently.
type Coordinator struct {
	endpoint string

	mu       sync.RWMutex
	handlers map[constants.MessageType]Handler
	async    map[constants.MessageType]bool
	timeouts map[constants.MessageType]time.Duration
	observer Observer

	pool *work.Pool[Response]
}

func NewCoordinator(endpoint string, poolConfig work.PoolConfig) (*Coordinator, error) {
	pool, err := work.NewPool[Response](poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating %s handler pool: %w", endpoint, err)
	}

	return &Coordinator{
		endpoint: endpoint,
		handlers: make(map[constants.MessageType]Handler),
		async:    make(map[constants.MessageType]bool),
		timeouts: make(map[constants.MessageType]time.Duration),
		pool:     pool,
	}, nil
}

func (c *Coordinator) Endpoint() string {
	return c.endpoint
}

// Start launches the asynchronous handler workers. Async handlers run under
// ctx, not under the sender's context.
func (c *Coordinator) Start(ctx context.Context) {
	c.pool.Start(ctx, c.endpoint)
}

func (c *Coordinator) Stop() {
	c.pool.Stop()
}

// Handle registers a synchronous handler, replacing any previous one.
func (c *Coordinator) Handle(typ constants.MessageType, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[typ] = h
	c.async[typ] = false
	delete(c.timeouts, typ)
}

type handlerConfig struct {
	timeout time.Duration
}

// HandlerOption tunes how an asynchronous handler is run.
type HandlerOption func(*handlerConfig)

// WithTimeout bounds one run of the handler. Zero keeps the pool's TaskTimeout.
func WithTimeout(d time.Duration) HandlerOption {
	return func(hc *handlerConfig) {
		if d > 0 {
			hc.timeout = d
		}
	}
}

// HandleAsync registers a handler whose response is produced later.
func (c *Coordinator) HandleAsync(typ constants.MessageType, h Handler, opts ...HandlerOption) {
	var hc handlerConfig
	for _, opt := range opts {
		opt(&hc)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[typ] = h
	c.async[typ] = true
	c.timeouts[typ] = hc.timeout
}

// Observe installs a hook called on every received message.
func (c *Coordinator) Observe(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = o
}

// Dispatch routes msg. It returns false when no handler is registered; in
// that case no response will ever be produced.
func (c *Coordinator) Dispatch(ctx context.Context, msg Message) (*Future, bool) {
	c.mu.RLock()
	h, ok := c.handlers[msg.Type]
	async := c.async[msg.Type]
	timeout := c.timeouts[msg.Type]
	observer := c.observer
	c.mu.RUnlock()

	if observer != nil {
		observer(ctx, c.endpoint, msg, ok)
	}

	if !ok {
		log.Debug().
			Str("endpoint", c.endpoint).
			Str("type", string(msg.Type)).
			Msg("No handler for message, ignoring")
		return nil, false
	}

	if !async {
		return resolved(c.callSync(ctx, h, msg)), true
	}

	future := newFuture()
	opts := []work.TaskOption[Response]{
		work.WithErrorHandler[Response](func(err error) {
			log.Error().Err(err).
				Str("endpoint", c.endpoint).
				Str("type", string(msg.Type)).
				Str("messageID", msg.ID).
				Dur("timeout", timeout).
				Msg("Async handler failed")
		}),
		work.WithCompletion(func(r work.TaskResult[Response]) {
			if r.Error != nil {
				future.resolve(Fail("Internal error"))
				return
			}
			future.resolve(r.Result)
		}),
	}
	if msg.ID != "" {
		opts = append(opts, work.WithID[Response](msg.ID))
	}
	if timeout > 0 {
		opts = append(opts, work.WithTimeout[Response](timeout))
	}

	task, err := work.NewTask(
		func(taskCtx context.Context) (Response, error) {
			return h(taskCtx, msg), nil
		},
		opts...,
	)
	if err != nil {
		future.resolve(Fail("Internal error"))
		return future, true
	}

	if err := c.pool.Submit(ctx, task); err != nil {
		log.Error().Err(err).
			Str("endpoint", c.endpoint).
			Str("type", string(msg.Type)).
			Msg("Failed to schedule async handler")
		future.resolve(Fail("Internal error"))
	}
	return future, true
}

func (c *Coordinator) callSync(ctx context.Context, h Handler, msg Message) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("endpoint", c.endpoint).
				Str("type", string(msg.Type)).
				Msg("Handler panicked")
			resp = Fail("Internal error")
		}
	}()
	return h(ctx, msg)
}

// Future is a pending response.
type Future struct {
	done chan struct{}
	once sync.Once
	resp Response
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func resolved(resp Response) *Future {
	f := newFuture()
	f.resolve(resp)
	return f
}

func (f *Future) resolve(resp Response) {
	f.once.Do(func() {
		f.resp = resp
		close(f.done)
	})
}

// Done is closed once the response is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the response is available or ctx ends.
func (f *Future) Await(ctx context.Context) (Response, error) {
	select {
	case <-f.done:
		return f.resp, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}
