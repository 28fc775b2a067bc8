package content

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
)

// PageSource yields the current markup and URL of the page a listener is
// attached to.
type PageSource interface {
	Markup(ctx context.Context) (html, url string, err error)
}

// StaticPage serves fixed markup. It backs the CLI's offline extraction and tests.
type StaticPage struct {
	HTML string
	URL  string
}

func (p StaticPage) Markup(context.Context) (string, string, error) {
	return p.HTML, p.URL, nil
}

// RodPage reads a live browser tab over the DevTools protocol.
type RodPage struct {
	page *rod.Page
}

func NewRodPage(page *rod.Page) *RodPage {
	return &RodPage{page: page}
}

func (p *RodPage) Markup(ctx context.Context) (string, string, error) {
	page := p.page.Context(ctx)

	info, err := page.Info()
	if err != nil {
		return "", "", fmt.Errorf("reading page info: %w", err)
	}
	html, err := page.HTML()
	if err != nil {
		return "", "", fmt.Errorf("reading page markup: %w", err)
	}
	return html, info.URL, nil
}
