// Package extractor turns the markup of the visited page into a PageSnapshot.
// It performs no I/O and never modifies the parsed document it reads.
package extractor

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	mdp "github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/LexiconIndonesia/covercraft-service/common/models"
	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// timestampLayout matches the ISO form used by the rest of the pipeline.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// MainContentSelectors is walked in order; every match produces one region.
var MainContentSelectors = []string{
	"article",
	"main",
	`[role="main"]`,
	".content",
	"#content",
	".main-content",
	"#main-content",
}

// pageTypeHints is a first-match classifier. Each schema.org type is looked up
// as a microdata itemtype first, then as an ld+json @type.
var pageTypeHints = []struct {
	schemaType string
	pageType   models.PageType
}{
	{"JobPosting", models.PageTypeJobPosting},
	{"Organization", models.PageTypeCompanyPage},
}

// nonVisible elements are dropped before counting words.
const nonVisible = "script, style, noscript, template"

type Extractor struct {
	now       func() time.Time
	converter *md.Converter
}

type Option func(*Extractor)

// WithClock sets the time source for the snapshot timestamp.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) {
		e.now = now
	}
}

func New(opts ...Option) *Extractor {
	converter := md.NewConverter("", true, nil)
	converter.Use(mdp.GitHubFlavored())
	converter.Remove("script", "style", "noscript", "nav", "footer")

	e := &Extractor{
		now:       time.Now,
		converter: converter,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract parses rawHTML served at pageURL and builds the snapshot.
func (e *Extractor) Extract(rawHTML, pageURL string) (models.PageSnapshot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return models.PageSnapshot{}, fmt.Errorf("parsing page markup: %w", err)
	}

	u, err := url.Parse(pageURL)
	if err != nil {
		return models.PageSnapshot{}, fmt.Errorf("parsing page url: %w", err)
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}

	structured := StructuredData(doc)
	mainContent := MainContent(doc)

	snapshot := models.PageSnapshot{
		HTML:  rawHTML,
		URL:   pageURL,
		Title: collapse(doc.Find("title").First().Text()),
		Metadata: models.PageMetadata{
			Domain:         u.Hostname(),
			Path:           path,
			PageType:       Classify(doc, structured),
			WordCount:      WordCount(doc),
			HasImages:      doc.Find("img").Length() > 0,
			HasVideo:       doc.Find("video").Length() > 0,
			StructuredData: structured,
			MetaTags:       MetaTags(doc),
			OpenGraph:      OpenGraph(doc),
			Headings:       Headings(doc),
			MainContent:    mainContent,
			Timestamp:      e.now().UTC().Format(timestampLayout),
		},
		ContentMarkdown: e.markdown(doc),
	}

	return snapshot, nil
}

// markdown renders the first main-content element, or the body when the page
// has none.
func (e *Extractor) markdown(doc *goquery.Document) string {
	target := doc.Find("body")
	for _, sel := range MainContentSelectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			target = s
			break
		}
	}

	html, err := goquery.OuterHtml(target)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to serialize main content")
		return ""
	}
	text, err := e.converter.ConvertString(html)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to convert main content to markdown")
		return ""
	}
	return strings.TrimSpace(text)
}

// Classify returns the first page type whose hint is present. The result is
// advisory.
func Classify(doc *goquery.Document, structured []any) models.PageType {
	for _, h := range pageTypeHints {
		if doc.Find(fmt.Sprintf(`[itemtype*=%q]`, h.schemaType)).Length() > 0 {
			return h.pageType
		}
		if lo.ContainsBy(structured, func(v any) bool { return declaresType(v, h.schemaType) }) {
			return h.pageType
		}
	}
	return models.PageTypeUnknown
}

// declaresType reports whether an ld+json value carries schemaType in its
// @type, in a list of objects, or in an @graph.
func declaresType(v any, schemaType string) bool {
	switch t := v.(type) {
	case []any:
		return lo.ContainsBy(t, func(item any) bool { return declaresType(item, schemaType) })
	case map[string]any:
		switch typ := t["@type"].(type) {
		case string:
			if strings.Contains(typ, schemaType) {
				return true
			}
		case []any:
			for _, item := range typ {
				if s, ok := item.(string); ok && strings.Contains(s, schemaType) {
					return true
				}
			}
		}
		if graph, ok := t["@graph"]; ok {
			return declaresType(graph, schemaType)
		}
	}
	return false
}

// StructuredData parses every ld+json script on its own. A script that fails
// to parse contributes an empty object at its position.
func StructuredData(doc *goquery.Document) []any {
	scripts := doc.Find(`script[type="application/ld+json"]`)
	out := make([]any, 0, scripts.Length())

	scripts.Each(func(i int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			raw = "{}"
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			log.Debug().Err(err).Int("index", i).Msg("Skipping malformed ld+json script")
			v = map[string]any{}
		}
		out = append(out, v)
	})
	return out
}

// WordCount counts whitespace-separated words of the visible body text.
func WordCount(doc *goquery.Document) int {
	body := doc.Find("body").Clone()
	body.Find(nonVisible).Remove()
	return len(strings.Fields(body.Text()))
}

// MetaTags flattens every meta element keyed by name, or by property when
// name is missing. Elements without a key or content are skipped.
func MetaTags(doc *goquery.Document) map[string]string {
	tags := make(map[string]string)
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		key := s.AttrOr("name", "")
		if key == "" {
			key = s.AttrOr("property", "")
		}
		content := s.AttrOr("content", "")
		if key != "" && content != "" {
			tags[key] = content
		}
	})
	return tags
}

// OpenGraph collects the og: social preview tags.
func OpenGraph(doc *goquery.Document) map[string]string {
	tags := make(map[string]string)
	doc.Find(`meta[property^="og:"]`).Each(func(_ int, s *goquery.Selection) {
		property := s.AttrOr("property", "")
		content := s.AttrOr("content", "")
		if property != "" && content != "" {
			tags[property] = content
		}
	})
	return tags
}

// Headings lists h1 to h6 in document order.
func Headings(doc *goquery.Document) []models.Heading {
	headings := []models.Heading{}
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		level, _ := strconv.Atoi(strings.TrimPrefix(goquery.NodeName(s), "h"))
		headings = append(headings, models.Heading{
			Level: level,
			Text:  collapse(s.Text()),
		})
	})
	return headings
}

// MainContent emits one region per element matched by each selector. An
// element matching several selectors is emitted once per selector.
func MainContent(doc *goquery.Document) []models.ContentRegion {
	regions := []models.ContentRegion{}
	for _, sel := range MainContentSelectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			regions = append(regions, models.ContentRegion{
				Selector: sel,
				Text:     collapse(s.Text()),
			})
		})
	}
	return regions
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
