// Package content is the page-side context: one listener per tab answering
// extraction, page-data and liveness messages.
package content

import (
	"context"
	"time"

	"github.com/LexiconIndonesia/covercraft-service/common/apiclient"
	"github.com/LexiconIndonesia/covercraft-service/common/constants"
	"github.com/LexiconIndonesia/covercraft-service/common/messaging"
	"github.com/LexiconIndonesia/covercraft-service/common/models"
	"github.com/LexiconIndonesia/covercraft-service/content/extractor"
	"github.com/LexiconIndonesia/covercraft-service/handoff"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const pingMessage = "Content script active"

// extractionSlack covers the page read and the cache write around the API call.
const extractionSlack = 10 * time.Second

// ExtractionTimeout bounds one EXTRACT_PAGE_CONTENT run so that the API
// client can spend its whole retry budget.
func ExtractionTimeout(api apiclient.Config) time.Duration {
	return api.Budget() + extractionSlack
}

// SnapshotExtractor is the slice of the extraction service the listener uses.
type SnapshotExtractor interface {
	FromSnapshot(ctx context.Context, snap models.PageSnapshot) (models.ExtractionResult, error)
}

// Archiver stores the raw snapshot behind an extraction.
type Archiver interface {
	Archive(ctx context.Context, requestID string, snap models.PageSnapshot) (string, error)
}

// EventLog records extraction lifecycle events.
type EventLog interface {
	ExtractionStarted(ctx context.Context, requestID, url string)
	ExtractionCompleted(ctx context.Context, requestID string, confidence float64)
	ExtractionFailed(ctx context.Context, requestID string, err error)
}

// Deps are shared by every listener. Transport, Archive and Events are
// optional. A zero ExtractionTimeout leaves the coordinator pool's TaskTimeout
// in charge.
type Deps struct {
	Extractor         *extractor.Extractor
	Extraction        SnapshotExtractor
	Cache             *handoff.Cache
	Transport         messaging.Transport
	Archive           Archiver
	Events            EventLog
	ExtractionTimeout time.Duration
}

type Listener struct {
	tabID int
	page  PageSource
	deps  Deps
}

func NewListener(tabID int, page PageSource, deps Deps) *Listener {
	if deps.Extractor == nil {
		deps.Extractor = extractor.New()
	}
	return &Listener{
		tabID: tabID,
		page:  page,
		deps:  deps,
	}
}

// Register installs the page-side handlers on c.
func (l *Listener) Register(c *messaging.Coordinator) {
	c.HandleAsync(constants.ExtractPageContentMessage, l.handleExtract, messaging.WithTimeout(l.deps.ExtractionTimeout))
	c.Handle(constants.GetPageDataMessage, l.handlePageData)
	c.Handle(constants.PingMessage, l.handlePing)
}

// Snapshot reads the page and builds its snapshot.
func (l *Listener) Snapshot(ctx context.Context) (models.PageSnapshot, error) {
	html, url, err := l.page.Markup(ctx)
	if err != nil {
		return models.PageSnapshot{}, err
	}
	return l.deps.Extractor.Extract(html, url)
}

// Extract runs the full page flow: snapshot, remote extraction, handoff
// write, then a completion push to the interactive surface.
func (l *Listener) Extract(ctx context.Context, requestID string) (handoff.Entry, error) {
	snap, err := l.Snapshot(ctx)
	if err != nil {
		return handoff.Entry{}, err
	}
	if l.deps.Events != nil {
		l.deps.Events.ExtractionStarted(ctx, requestID, snap.URL)
	}

	result, err := l.deps.Extraction.FromSnapshot(ctx, snap)
	if err != nil {
		if l.deps.Events != nil {
			l.deps.Events.ExtractionFailed(ctx, requestID, err)
		}
		return handoff.Entry{}, err
	}

	content := result.JobData.Content(result.Confidence)
	content.URL = snap.URL

	entry, err := l.deps.Cache.Write(ctx, handoff.Record{
		ExtractedContent: content,
		ExtractedAt:      time.Now().UTC().Format(time.RFC3339Nano),
		PageTitle:        snap.Title,
		Domain:           snap.Metadata.Domain,
		PageType:         snap.Metadata.PageType,
		RequestID:        requestID,
	})
	if err != nil {
		if l.deps.Events != nil {
			l.deps.Events.ExtractionFailed(ctx, requestID, err)
		}
		return handoff.Entry{}, err
	}

	if l.deps.Events != nil {
		l.deps.Events.ExtractionCompleted(ctx, requestID, content.Confidence)
	}
	l.archive(ctx, requestID, snap)
	l.notify(ctx, entry)

	return entry, nil
}

func (l *Listener) archive(ctx context.Context, requestID string, snap models.PageSnapshot) {
	if l.deps.Archive == nil {
		return
	}
	object, err := l.deps.Archive.Archive(ctx, requestID, snap)
	if err != nil {
		log.Warn().Err(err).Str("requestID", requestID).Msg("Failed to archive page snapshot")
		return
	}
	log.Debug().Str("requestID", requestID).Str("object", object).Msg("Archived page snapshot")
}

// notify pushes the completion notice. A closed interactive surface is not
// an error.
func (l *Listener) notify(ctx context.Context, entry handoff.Entry) {
	if l.deps.Transport == nil {
		return
	}
	msg, err := messaging.NewMessage(constants.ExtractionCompletedMessage, models.ExtractionNotice{
		RequestID:  entry.Record.RequestID,
		TabID:      l.tabID,
		Confidence: entry.Record.Confidence,
		PageType:   entry.Record.PageType,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to build completion notice")
		return
	}
	if err := l.deps.Transport.Publish(ctx, constants.PopupEndpoint, msg.FromTab(l.tabID)); err != nil {
		log.Debug().Err(err).Int("tabID", l.tabID).Msg("Interactive surface not listening for completion")
	}
}

func (l *Listener) handleExtract(ctx context.Context, msg messaging.Message) messaging.Response {
	var req models.ExtractionRequest
	if err := msg.Decode(&req); err != nil {
		return messaging.Fail(err.Error())
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	entry, err := l.Extract(ctx, req.RequestID)
	if err != nil {
		log.Error().Err(err).Int("tabID", l.tabID).Str("requestID", req.RequestID).Msg("Content extraction failed")
		return messaging.Fail(err.Error())
	}
	return messaging.OK(models.ExtractionNotice{
		RequestID:  req.RequestID,
		TabID:      l.tabID,
		Confidence: entry.Record.Confidence,
		PageType:   entry.Record.PageType,
	})
}

func (l *Listener) handlePageData(ctx context.Context, _ messaging.Message) messaging.Response {
	snap, err := l.Snapshot(ctx)
	if err != nil {
		return messaging.Fail(err.Error())
	}
	return messaging.OK(snap)
}

func (l *Listener) handlePing(context.Context, messaging.Message) messaging.Response {
	return messaging.OK(nil).WithMessage(pingMessage)
}
