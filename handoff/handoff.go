// Package handoff holds the single "current extraction" slot shared between
// the page context that writes it and the interactive surface that reads it.
package handoff

import (
	"context"
	"fmt"
	"time"

	"github.com/LexiconIndonesia/covercraft-service/common/kv"
	"github.com/LexiconIndonesia/covercraft-service/common/models"
	"github.com/samber/mo"
)

const (
	// Key is the local-scope key of the slot.
	Key = "lastExtractedJob"
	// FreshnessWindow is how long an entry stays usable after its write.
	FreshnessWindow = 10 * time.Minute
)

// Record is the extracted job plus the page context it came from.
type Record struct {
	models.ExtractedContent
	ExtractedAt string          `json:"extractedAt"`
	PageTitle   string          `json:"pageTitle"`
	Domain      string          `json:"domain"`
	PageType    models.PageType `json:"pageType"`
	// RequestID ties the entry to the extraction request that produced it.
	RequestID string `json:"requestId,omitempty"`
}

// Entry is the persisted slot. Timestamp is the write time in epoch milliseconds.
type Entry struct {
	Record    Record `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

// WrittenAt returns the write time.
func (e Entry) WrittenAt() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// IsFresh reports whether now is strictly less than ten minutes after the write.
func IsFresh(e Entry, now time.Time) bool {
	return now.UnixMilli()-e.Timestamp < FreshnessWindow.Milliseconds()
}

// Cache reads and writes the slot. Writes replace the previous entry without
// merging; two writers racing resolve to whichever lands last. Staleness is
// only evaluated by readers.
type Cache struct {
	store kv.Store
	now   func() time.Time
}

type Option func(*Cache)

func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

func New(store kv.Store, opts ...Option) *Cache {
	c := &Cache{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Write stamps record with the current time and replaces the slot.
func (c *Cache) Write(ctx context.Context, record Record) (Entry, error) {
	entry := Entry{
		Record:    record,
		Timestamp: c.now().UnixMilli(),
	}
	if err := kv.SetJSON(ctx, c.store, Key, entry); err != nil {
		return Entry{}, fmt.Errorf("writing handoff entry: %w", err)
	}
	return entry, nil
}

// Read returns the current entry regardless of its age.
func (c *Cache) Read(ctx context.Context) (mo.Option[Entry], error) {
	entry, err := kv.GetJSON[Entry](ctx, c.store, Key)
	if err != nil {
		return mo.None[Entry](), fmt.Errorf("reading handoff entry: %w", err)
	}
	return entry, nil
}

// ReadFresh returns the current entry only while it is fresh.
func (c *Cache) ReadFresh(ctx context.Context) (mo.Option[Entry], error) {
	entry, err := c.Read(ctx)
	if err != nil {
		return entry, err
	}
	if e, ok := entry.Get(); ok && IsFresh(e, c.now()) {
		return entry, nil
	}
	return mo.None[Entry](), nil
}

// Now exposes the cache clock to callers evaluating freshness themselves.
func (c *Cache) Now() time.Time {
	return c.now()
}
