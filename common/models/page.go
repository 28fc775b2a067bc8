package models

// PageType is an advisory classification of the visited page.
type PageType string

const (
	PageTypeJobPosting  PageType = "job_posting"
	PageTypeCompanyPage PageType = "company_page"
	PageTypeUnknown     PageType = "unknown"
)

type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// ContentRegion is one element matched by a main-content selector. The same
// element may appear under several selectors.
type ContentRegion struct {
	Selector string `json:"selector"`
	Text     string `json:"text"`
}

type PageMetadata struct {
	Domain         string            `json:"domain"`
	Path           string            `json:"path"`
	PageType       PageType          `json:"pageType"`
	WordCount      int               `json:"wordCount"`
	HasImages      bool              `json:"hasImages"`
	HasVideo       bool              `json:"hasVideo"`
	StructuredData []any             `json:"structuredData"`
	MetaTags       map[string]string `json:"metaTags"`
	OpenGraph      map[string]string `json:"openGraph"`
	Headings       []Heading         `json:"headings"`
	MainContent    []ContentRegion   `json:"mainContent"`
	Timestamp      string            `json:"timestamp"`
}

// PageSnapshot is built once per extraction request and never modified.
type PageSnapshot struct {
	HTML            string       `json:"html"`
	URL             string       `json:"url"`
	Title           string       `json:"title"`
	Metadata        PageMetadata `json:"metadata"`
	ContentMarkdown string       `json:"contentMarkdown,omitempty"`
}

type Tab struct {
	ID       int    `json:"id"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	Active   bool   `json:"active"`
	WindowID int    `json:"windowId"`
}
