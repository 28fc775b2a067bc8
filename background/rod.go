package background

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/LexiconIndonesia/covercraft-service/common/config"
	"github.com/LexiconIndonesia/covercraft-service/common/models"
	"github.com/LexiconIndonesia/covercraft-service/content"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
)

// ConnectBrowser attaches to the configured browser or launches one.
func ConnectBrowser(cfg config.Config) (*rod.Browser, error) {
	controlURL := cfg.Browser.ControlURL
	if controlURL == "" {
		u, err := launcher.New().Headless(cfg.Browser.Headless).Launch()
		if err != nil {
			return nil, fmt.Errorf("launching browser: %w", err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		log.Err(err).Msg("Error connecting to browser")
		return nil, err
	}
	return browser, nil
}

// RodTabs exposes browser targets as numbered tabs. Ids are assigned on first
// sight and stay stable for the life of the process.
type RodTabs struct {
	browser *rod.Browser

	mu      sync.Mutex
	ids     map[proto.TargetTargetID]int
	targets map[int]proto.TargetTargetID
	next    int
}

func NewRodTabs(browser *rod.Browser) *RodTabs {
	return &RodTabs{
		browser: browser,
		ids:     make(map[proto.TargetTargetID]int),
		targets: make(map[int]proto.TargetTargetID),
		next:    1,
	}
}

func (t *RodTabs) idFor(target proto.TargetTargetID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.ids[target]; ok {
		return id
	}
	id := t.next
	t.next++
	t.ids[target] = id
	t.targets[id] = target
	return id
}

func (t *RodTabs) page(ctx context.Context, tabID int) (*rod.Page, error) {
	t.mu.Lock()
	target, ok := t.targets[tabID]
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown tab %d", tabID)
	}
	page, err := t.browser.PageFromTarget(target)
	if err != nil {
		return nil, fmt.Errorf("attaching to tab %d: %w", tabID, err)
	}
	return page.Context(ctx), nil
}

func (t *RodTabs) tab(page *rod.Page, active bool) (models.Tab, error) {
	info, err := page.Info()
	if err != nil {
		return models.Tab{}, err
	}
	return models.Tab{
		ID:     t.idFor(page.TargetID),
		URL:    info.URL,
		Title:  info.Title,
		Active: active,
	}, nil
}

// Active returns the focused page, or the first page when none has focus.
func (t *RodTabs) Active(ctx context.Context) (models.Tab, error) {
	pages, err := t.browser.Context(ctx).Pages()
	if err != nil {
		return models.Tab{}, fmt.Errorf("listing pages: %w", err)
	}
	if len(pages) == 0 {
		return models.Tab{}, ErrNoActiveTab
	}

	for _, p := range pages {
		res, err := p.Eval(`() => document.hasFocus()`)
		if err == nil && res.Value.Bool() {
			return t.tab(p, true)
		}
	}
	return t.tab(pages[0], true)
}

func (t *RodTabs) Evaluate(ctx context.Context, tabID int, script string) (json.RawMessage, error) {
	page, err := t.page(ctx, tabID)
	if err != nil {
		return nil, err
	}
	res, err := page.Eval(script)
	if err != nil {
		return nil, fmt.Errorf("evaluating in tab %d: %w", tabID, err)
	}
	return json.RawMessage(res.Value.JSON("", "")), nil
}

// Page resolves tabID for the content injector.
func (t *RodTabs) Page(ctx context.Context, tabID int) (content.PageSource, error) {
	page, err := t.page(ctx, tabID)
	if err != nil {
		return nil, err
	}
	return content.NewRodPage(page), nil
}

// Watch reports every page target once it has finished loading, until ctx ends.
func (t *RodTabs) Watch(ctx context.Context, onUpdate func(tabID int, status string, tab models.Tab)) error {
	if err := (proto.TargetSetDiscoverTargets{Discover: true}).Call(t.browser); err != nil {
		return fmt.Errorf("enabling target discovery: %w", err)
	}

	wait := t.browser.Context(ctx).EachEvent(func(e *proto.TargetTargetInfoChanged) {
		info := e.TargetInfo
		if string(info.Type) != "page" {
			return
		}
		id := t.idFor(info.TargetID)

		go func() {
			page, err := t.browser.PageFromTarget(info.TargetID)
			if err != nil {
				return
			}
			if err := page.Context(ctx).WaitLoad(); err != nil {
				return
			}
			onUpdate(id, "complete", models.Tab{ID: id, URL: info.URL, Title: info.Title})
		}()
	})
	go wait()
	return nil
}
