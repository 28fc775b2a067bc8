package content

import (
	"context"
	"fmt"
	"sync"

	"github.com/LexiconIndonesia/covercraft-service/common/constants"
	"github.com/LexiconIndonesia/covercraft-service/common/messaging"
	"github.com/LexiconIndonesia/covercraft-service/common/work"
	"github.com/rs/zerolog/log"
)

// PageOpener resolves a tab id to its page.
type PageOpener interface {
	Page(ctx context.Context, tabID int) (PageSource, error)
}

type attachment struct {
	coordinator *messaging.Coordinator
	stop        func() error
}

// Injector attaches one listener per tab to the transport. Attaching a tab
// that already has a listener is a no-op.
type Injector struct {
	transport messaging.Transport
	pages     PageOpener
	deps      Deps
	pool      work.PoolConfig

	mu       sync.Mutex
	attached map[int]attachment
}

func NewInjector(transport messaging.Transport, pages PageOpener, deps Deps) *Injector {
	pool := work.DefaultPoolConfig()
	pool.NumWorkers = 1

	if deps.Transport == nil {
		deps.Transport = transport
	}
	return &Injector{
		transport: transport,
		pages:     pages,
		deps:      deps,
		pool:      pool,
		attached:  make(map[int]attachment),
	}
}

// Attach installs the listener for tabID. The listener's async handlers run
// under ctx.
func (i *Injector) Attach(ctx context.Context, tabID int) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.attached[tabID]; ok {
		return nil
	}

	page, err := i.pages.Page(ctx, tabID)
	if err != nil {
		return fmt.Errorf("opening tab %d: %w", tabID, err)
	}

	c, err := messaging.NewCoordinator(constants.ContentEndpoint(tabID), i.pool)
	if err != nil {
		return err
	}
	NewListener(tabID, page, i.deps).Register(c)
	c.Start(ctx)

	stop, err := i.transport.Listen(c)
	if err != nil {
		c.Stop()
		return fmt.Errorf("listening for tab %d: %w", tabID, err)
	}

	i.attached[tabID] = attachment{coordinator: c, stop: stop}
	log.Info().Int("tabID", tabID).Msg("Content listener attached")
	return nil
}

// Attached reports whether tabID has a listener.
func (i *Injector) Attached(tabID int) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.attached[tabID]
	return ok
}

// Detach removes the listener of tabID, if any.
func (i *Injector) Detach(tabID int) error {
	i.mu.Lock()
	a, ok := i.attached[tabID]
	delete(i.attached, tabID)
	i.mu.Unlock()

	if !ok {
		return nil
	}
	err := a.stop()
	a.coordinator.Stop()
	return err
}

// Close detaches every tab.
func (i *Injector) Close() {
	i.mu.Lock()
	tabs := make([]int, 0, len(i.attached))
	for id := range i.attached {
		tabs = append(tabs, id)
	}
	i.mu.Unlock()

	for _, id := range tabs {
		if err := i.Detach(id); err != nil {
			log.Warn().Err(err).Int("tabID", id).Msg("Failed to detach content listener")
		}
	}
}
