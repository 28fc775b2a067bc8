package messaging

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Transport delivers messages between contexts addressed by endpoint name.
type Transport interface {
	// Request sends msg and waits for exactly one response.
	Request(ctx context.Context, endpoint string, msg Message) (Response, error)
	// Publish sends msg without waiting for a reply.
	Publish(ctx context.Context, endpoint string, msg Message) error
	// Listen attaches c to its endpoint until the returned func is called.
	Listen(c *Coordinator) (func() error, error)
}

// LocalTransport connects coordinators living in the same process.
type LocalTransport struct {
	mu        sync.RWMutex
	endpoints map[string]*Coordinator
}

func NewLocalTransport() *LocalTransport {
	return &LocalTransport{
		endpoints: make(map[string]*Coordinator),
	}
}

func (t *LocalTransport) lookup(endpoint string) (*Coordinator, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.endpoints[endpoint]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoListener, endpoint)
	}
	return c, nil
}

func (t *LocalTransport) Request(ctx context.Context, endpoint string, msg Message) (Response, error) {
	c, err := t.lookup(endpoint)
	if err != nil {
		return Response{}, err
	}
	future, handled := c.Dispatch(ctx, msg)
	if !handled {
		return Response{}, fmt.Errorf("%w: %s on %s", ErrNoResponse, msg.Type, endpoint)
	}
	return future.Await(ctx)
}

func (t *LocalTransport) Publish(ctx context.Context, endpoint string, msg Message) error {
	c, err := t.lookup(endpoint)
	if err != nil {
		return err
	}
	c.Dispatch(ctx, msg)
	return nil
}

func (t *LocalTransport) Listen(c *Coordinator) (func() error, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	endpoint := c.Endpoint()
	if _, ok := t.endpoints[endpoint]; ok {
		return nil, fmt.Errorf("%w: %s", ErrEndpointTaken, endpoint)
	}
	t.endpoints[endpoint] = c
	log.Debug().Str("endpoint", endpoint).Msg("Listening on local transport")

	return func() error {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.endpoints[endpoint] == c {
			delete(t.endpoints, endpoint)
		}
		return nil
	}, nil
}

// Listening reports whether something is attached to endpoint.
func (t *LocalTransport) Listening(endpoint string) bool {
	_, err := t.lookup(endpoint)
	return err == nil
}
