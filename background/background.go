// Package background is the long-lived coordinator context: administrative
// commands, context-menu and tab lifecycle hooks, and analytics.
package background

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/LexiconIndonesia/covercraft-service/common/apiclient"
	"github.com/LexiconIndonesia/covercraft-service/common/config"
	"github.com/LexiconIndonesia/covercraft-service/common/constants"
	"github.com/LexiconIndonesia/covercraft-service/common/messaging"
	"github.com/LexiconIndonesia/covercraft-service/common/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// jobDetectorScript reads the job detected by an in-page helper, if one is present.
const jobDetectorScript = `() => window.jobDetector ? window.jobDetector.extractJobData() : null`

var ErrNoActiveTab = errors.New("no active tab")

// Tabs queries and scripts browser tabs.
type Tabs interface {
	Active(ctx context.Context) (models.Tab, error)
	Evaluate(ctx context.Context, tabID int, script string) (json.RawMessage, error)
}

// Injector attaches the page listener to a tab.
type Injector interface {
	Attach(ctx context.Context, tabID int) error
}

// Manifest describes the running build.
type Manifest struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Channel string `json:"channel"`
}

// IsDevelopment gates development-only commands.
func (m Manifest) IsDevelopment() bool {
	return m.Channel == config.ChannelDevelopment || strings.Contains(m.Name, "Development")
}

// ManifestFrom describes the build from configuration.
func ManifestFrom(cfg config.Config) Manifest {
	return Manifest{
		Name:    cfg.Extension.Name,
		Version: cfg.Extension.Version,
		Channel: cfg.Extension.Channel,
	}
}

// Runtime is the host the coordinator runs in.
type Runtime interface {
	Manifest() Manifest
	Reload(ctx context.Context) error
	OpenPopup(ctx context.Context) error
}

// Analytics receives fire-and-forget events.
type Analytics interface {
	TrackEvent(ctx context.Context, event apiclient.AnalyticsEvent) error
}

// EventStream mirrors analytics events onto a durable stream.
type EventStream interface {
	EventSubject(event string) string
	PublishSync(ctx context.Context, subject string, data []byte) error
}

// Deps wires the service. Injector, Analytics and Events are optional.
type Deps struct {
	Tabs      Tabs
	Runtime   Runtime
	Transport messaging.Transport
	Injector  Injector
	Analytics Analytics
	Events    EventStream
}

type Service struct {
	deps Deps
}

func NewService(deps Deps) *Service {
	if deps.Tabs == nil {
		deps.Tabs = noBrowser{}
	}
	return &Service{deps: deps}
}

// noBrowser answers tab queries when the process runs without a browser.
type noBrowser struct{}

func (noBrowser) Active(context.Context) (models.Tab, error) {
	return models.Tab{}, ErrNoActiveTab
}

func (noBrowser) Evaluate(context.Context, int, string) (json.RawMessage, error) {
	return nil, ErrNoActiveTab
}

// Register installs the background handlers. The reload command is only
// registered for development builds.
func (s *Service) Register(c *messaging.Coordinator) {
	c.Handle(constants.OpenPopupMessage, s.handleOpenPopup)
	c.Handle(constants.OpenPopupWithContentMessage, s.handleOpenPopup)
	c.HandleAsync(constants.GetCurrentTabMessage, s.handleCurrentTab)
	c.HandleAsync(constants.ExtractJobMessage, s.handleExtractJob)

	if s.deps.Runtime.Manifest().IsDevelopment() {
		log.Info().Msg("Auto-reload enabled for development")
		c.Handle(constants.ReloadExtensionMessage, s.handleReload)
	}
}

func (s *Service) handleOpenPopup(ctx context.Context, _ messaging.Message) messaging.Response {
	if err := s.deps.Runtime.OpenPopup(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to open popup")
		return messaging.Fail("Failed to open popup")
	}
	return messaging.OK(nil)
}

func (s *Service) handleCurrentTab(ctx context.Context, _ messaging.Message) messaging.Response {
	tab, err := s.deps.Tabs.Active(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query active tab")
		return messaging.Fail(ErrNoActiveTab.Error())
	}
	return messaging.OK(tab)
}

// handleExtractJob answers with the in-page detector's result, or null when
// the tab has none or cannot be scripted.
func (s *Service) handleExtractJob(ctx context.Context, msg messaging.Message) messaging.Response {
	var req models.ExtractJobRequest
	if err := msg.Decode(&req); err != nil {
		return messaging.Fail(err.Error())
	}

	tabID := req.TabID
	if tabID == 0 && msg.TabID != nil {
		tabID = *msg.TabID
	}
	if tabID == 0 {
		tab, err := s.deps.Tabs.Active(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to extract job data")
			return messaging.OK(nil)
		}
		tabID = tab.ID
	}

	raw, err := s.deps.Tabs.Evaluate(ctx, tabID, jobDetectorScript)
	if err != nil {
		log.Error().Err(err).Int("tabID", tabID).Msg("Failed to extract job data")
		return messaging.OK(nil)
	}
	return messaging.Response{Success: true, Data: raw}
}

func (s *Service) handleReload(ctx context.Context, _ messaging.Message) messaging.Response {
	log.Info().Msg("Reloading extension")
	if err := s.deps.Runtime.Reload(ctx); err != nil {
		log.Error().Err(err).Msg("Reload failed")
		return messaging.Fail("Reload failed")
	}
	return messaging.OK(nil)
}

// OnContextMenuClicked fires an extraction in the clicked tab without
// waiting for its outcome.
func (s *Service) OnContextMenuClicked(ctx context.Context, menuID string, tab models.Tab) error {
	if menuID != constants.ContextMenuExtract || tab.ID == 0 {
		return nil
	}

	msg, err := messaging.NewMessage(constants.ExtractPageContentMessage, models.ExtractionRequest{
		RequestID: uuid.NewString(),
	})
	if err != nil {
		return err
	}
	err = s.deps.Transport.Publish(ctx, constants.ContentEndpoint(tab.ID), msg)

	go func() {
		trackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), trackTimeout)
		defer cancel()
		s.TrackEvent(trackCtx, "context_menu_extract", map[string]any{"url": tab.URL})
	}()
	return err
}

// OnTabUpdated attaches the page listener once an https page has finished
// loading. Pages that refuse injection are skipped.
func (s *Service) OnTabUpdated(ctx context.Context, tabID int, status string, tab models.Tab) {
	if status != "complete" || !strings.HasPrefix(tab.URL, "https://") || s.deps.Injector == nil {
		return
	}
	if err := s.deps.Injector.Attach(ctx, tabID); err != nil {
		log.Info().Err(err).Int("tabID", tabID).Msg("Could not inject content listener")
	}
}

// trackTimeout bounds analytics sent off the caller's path.
const trackTimeout = 10 * time.Second

// TrackEvent posts an analytics event and mirrors it onto the event stream.
// Failures are logged only.
func (s *Service) TrackEvent(ctx context.Context, name string, properties map[string]any) {
	manifest := s.deps.Runtime.Manifest()
	props := map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   manifest.Version,
	}
	for k, v := range properties {
		props[k] = v
	}
	event := apiclient.AnalyticsEvent{
		Event:      name,
		Properties: props,
		Timestamp:  time.Now().UnixMilli(),
	}

	if s.deps.Analytics != nil {
		if err := s.deps.Analytics.TrackEvent(ctx, event); err != nil {
			log.Warn().Err(err).Str("event", name).Msg("Failed to track event")
		}
	}
	if s.deps.Events != nil {
		data, err := json.Marshal(event)
		if err != nil {
			return
		}
		if err := s.deps.Events.PublishSync(ctx, s.deps.Events.EventSubject(name), data); err != nil {
			log.Warn().Err(err).Str("event", name).Msg("Failed to archive event")
		}
	}
}
