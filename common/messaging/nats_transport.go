package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/LexiconIndonesia/covercraft-service/common/constants"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// unhandledHeader marks a reply sent when the listener has no handler, so the
// requester fails fast instead of waiting for its deadline.
const unhandledHeader = "Covercraft-Unhandled"

const defaultRequestTimeout = 30 * time.Second

// NatsTransport carries messages between processes over NATS core
// request/reply. Each endpoint maps to one subject under the prefix.
type NatsTransport struct {
	conn    *nats.Conn
	prefix  string
	timeout time.Duration
}

func NewNatsTransport(conn *nats.Conn, prefix string) *NatsTransport {
	return &NatsTransport{
		conn:    conn,
		prefix:  prefix,
		timeout: defaultRequestTimeout,
	}
}

func (t *NatsTransport) subject(endpoint string) string {
	return constants.Subject(t.prefix, endpoint)
}

func (t *NatsTransport) Request(ctx context.Context, endpoint string, msg Message) (Response, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return Response{}, fmt.Errorf("encoding message: %w", err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	reply, err := t.conn.RequestMsgWithContext(ctx, &nats.Msg{
		Subject: t.subject(endpoint),
		Data:    data,
	})
	switch {
	case errors.Is(err, nats.ErrNoResponders):
		return Response{}, fmt.Errorf("%w: %s", ErrNoListener, endpoint)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, nats.ErrTimeout):
		return Response{}, fmt.Errorf("%w: %s on %s", ErrNoResponse, msg.Type, endpoint)
	case err != nil:
		return Response{}, fmt.Errorf("requesting %s: %w", endpoint, err)
	}

	if reply.Header.Get(unhandledHeader) != "" {
		return Response{}, fmt.Errorf("%w: %s on %s", ErrNoResponse, msg.Type, endpoint)
	}

	var resp Response
	if err := json.Unmarshal(reply.Data, &resp); err != nil {
		return Response{}, fmt.Errorf("decoding response from %s: %w", endpoint, err)
	}
	return resp, nil
}

func (t *NatsTransport) Publish(_ context.Context, endpoint string, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	if err := t.conn.Publish(t.subject(endpoint), data); err != nil {
		return fmt.Errorf("publishing to %s: %w", endpoint, err)
	}
	return nil
}

// Listen subscribes c to its endpoint subject. Replies are sent only for
// request-type messages; asynchronous responses are awaited off the
// subscription goroutine. The returned stop func unsubscribes and abandons
// every reply still pending.
func (t *NatsTransport) Listen(c *Coordinator) (func() error, error) {
	subject := t.subject(c.Endpoint())
	pending := newPendingReplies()

	sub, err := t.conn.Subscribe(subject, func(m *nats.Msg) {
		var msg Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			log.Warn().Err(err).Str("subject", m.Subject).Msg("Dropping undecodable message")
			return
		}

		future, handled := c.Dispatch(pending.ctx, msg)
		if m.Reply == "" {
			return
		}
		if !handled {
			reply := nats.NewMsg(m.Reply)
			reply.Header.Set(unhandledHeader, string(msg.Type))
			if err := m.RespondMsg(reply); err != nil {
				log.Warn().Err(err).Str("subject", m.Subject).Msg("Failed to send unhandled reply")
			}
			return
		}

		pending.await(future, func(resp Response) {
			data, err := json.Marshal(resp)
			if err != nil {
				log.Error().Err(err).Str("type", string(msg.Type)).Msg("Failed to encode response")
				return
			}
			if err := m.Respond(data); err != nil {
				log.Warn().Err(err).Str("subject", m.Subject).Msg("Failed to send response")
			}
		})
	})
	if err != nil {
		pending.stop()
		return nil, fmt.Errorf("subscribing to %s: %w", subject, err)
	}

	log.Info().Str("subject", subject).Msg("Listening on NATS transport")
	return func() error {
		err := sub.Unsubscribe()
		pending.stop()
		return err
	}, nil
}

// pendingReplies runs the goroutines waiting on asynchronous responses of one
// subscription.
type pendingReplies struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

func newPendingReplies() *pendingReplies {
	ctx, cancel := context.WithCancel(context.Background())
	return &pendingReplies{ctx: ctx, cancel: cancel}
}

// await calls respond with the future's response unless stop comes first.
func (p *pendingReplies) await(future *Future, respond func(Response)) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		resp, err := future.Await(p.ctx)
		if err != nil {
			return
		}
		respond(resp)
	}()
}

// stop cancels every pending wait and returns once their goroutines exit.
func (p *pendingReplies) stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.cancel()
	p.wg.Wait()
}
