// Package extraction turns a URL, free-form content, or a page snapshot into
// job-posting fields through the remote extractor.
package extraction

import (
	"context"
	"errors"

	"github.com/LexiconIndonesia/covercraft-service/common/apiclient"
	"github.com/LexiconIndonesia/covercraft-service/common/models"
	"github.com/rs/zerolog/log"
)

// ErrExtractionFailed matches every Failure returned by the service.
var ErrExtractionFailed = errors.New("extraction failed")

// Messages shown to the user. The transport error behind them is only logged.
const (
	MsgFromURLFailed      = "Failed to extract job information"
	MsgFromContentFailed  = "Failed to extract job information from content"
	MsgFromSnapshotFailed = "Failed to extract job information from page"
)

// Failure is a user-facing extraction error. Its cause is deliberately not
// reachable through errors.Unwrap.
type Failure struct {
	Message string
}

func (f *Failure) Error() string {
	return f.Message
}

func (f *Failure) Is(target error) bool {
	return target == ErrExtractionFailed
}

// Poster is the slice of the API client the service needs.
type Poster interface {
	Post(ctx context.Context, endpoint string, body, out any, opts ...apiclient.RequestOption) error
}

type Service struct {
	client Poster
}

func NewService(client Poster) *Service {
	return &Service{client: client}
}

func fail(err error, endpoint, msg string) error {
	log.Error().Err(err).Str("endpoint", endpoint).Msg("Job extraction failed")
	return &Failure{Message: msg}
}

// FromURL asks the remote extractor to fetch and parse url itself.
func (s *Service) FromURL(ctx context.Context, url string) (models.ExtractedContent, error) {
	var content models.ExtractedContent
	err := s.client.Post(ctx, apiclient.EndpointExtractFromURL, map[string]string{"url": url}, &content)
	if err != nil {
		return models.ExtractedContent{}, fail(err, apiclient.EndpointExtractFromURL, MsgFromURLFailed)
	}
	return content.Normalize(), nil
}

// FromContent extracts from free-form text such as a pasted description or a
// markdown rendering of the page.
func (s *Service) FromContent(ctx context.Context, content string) (models.ExtractedContent, error) {
	var out models.ExtractedContent
	err := s.client.Post(ctx, apiclient.EndpointExtractFromContent, map[string]string{"content": content}, &out)
	if err != nil {
		return models.ExtractedContent{}, fail(err, apiclient.EndpointExtractFromContent, MsgFromContentFailed)
	}
	return out.Normalize(), nil
}

type snapshotRequest struct {
	HTML  string `json:"html"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// FromSnapshot sends the page markup, URL and title and returns the stored job
// with the extractor's confidence.
func (s *Service) FromSnapshot(ctx context.Context, snap models.PageSnapshot) (models.ExtractionResult, error) {
	var result models.ExtractionResult
	req := snapshotRequest{HTML: snap.HTML, URL: snap.URL, Title: snap.Title}
	if err := s.client.Post(ctx, apiclient.EndpointExtractFromHTML, req, &result); err != nil {
		return models.ExtractionResult{}, fail(err, apiclient.EndpointExtractFromHTML, MsgFromSnapshotFailed)
	}
	return result, nil
}
