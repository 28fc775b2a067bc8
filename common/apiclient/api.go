package apiclient

import (
	"context"
	"io"

	"github.com/LexiconIndonesia/covercraft-service/common/models"
)

// Remote endpoints, relative to the configured base URL.
const (
	EndpointExtractFromURL     = "/jobs/extract"
	EndpointExtractFromContent = "/jobs/extract-from-content"
	EndpointExtractFromHTML    = "/jobs/extract-from-html"
	EndpointGenerate           = "/cover-letters/generate-from-content"
	EndpointCoverLetters       = "/cover-letters"
	EndpointResumes            = "/resumes"
	EndpointResumeUpload       = "/resumes/upload"
	EndpointLogin              = "/auth/login"
	EndpointRegister           = "/auth/register"
	EndpointProfile            = "/users/profile"
	EndpointBillingSession     = "/billing/create-session"
	EndpointAnalytics          = "/analytics"
)

// API exposes the typed remote operations used by the interactive surface
// and the background coordinator.
type API struct {
	client *Client
}

func NewAPI(client *Client) *API {
	return &API{client: client}
}

// Client returns the underlying resilient client.
func (a *API) Client() *Client {
	return a.client
}

func (a *API) Resumes(ctx context.Context) ([]models.Resume, error) {
	var resumes []models.Resume
	if err := a.client.Get(ctx, EndpointResumes, &resumes); err != nil {
		return nil, err
	}
	return resumes, nil
}

// UploadResume posts the document as multipart form data without retries.
func (a *API) UploadResume(ctx context.Context, filename string, file io.Reader) (models.Resume, error) {
	var resume models.Resume
	err := a.client.PostMultipart(ctx, EndpointResumeUpload,
		map[string]string{"filename": filename},
		"resume", filename, file, &resume,
	)
	return resume, err
}

func (a *API) GenerateFromContent(ctx context.Context, req models.GenerateFromContentRequest) (models.GenerateResponse, error) {
	var resp models.GenerateResponse
	err := a.client.Post(ctx, EndpointGenerate, req, &resp)
	return resp, err
}

func (a *API) CoverLetters(ctx context.Context) ([]models.CoverLetter, error) {
	var letters []models.CoverLetter
	if err := a.client.Get(ctx, EndpointCoverLetters, &letters); err != nil {
		return nil, err
	}
	return letters, nil
}

// CreateBillingSession returns the checkout URL for priceID.
func (a *API) CreateBillingSession(ctx context.Context, priceID string) (string, error) {
	var session models.BillingSession
	if err := a.client.Post(ctx, EndpointBillingSession, map[string]string{"priceId": priceID}, &session); err != nil {
		return "", err
	}
	return session.URL, nil
}

func (a *API) Profile(ctx context.Context) (models.User, error) {
	var user models.User
	err := a.client.Get(ctx, EndpointProfile, &user)
	return user, err
}

func (a *API) Login(ctx context.Context, req models.LoginRequest) (models.AuthResponse, error) {
	var resp models.AuthResponse
	err := a.client.Post(ctx, EndpointLogin, req, &resp)
	return resp, err
}

func (a *API) Register(ctx context.Context, req models.RegisterRequest) (models.AuthResponse, error) {
	var resp models.AuthResponse
	err := a.client.Post(ctx, EndpointRegister, req, &resp)
	return resp, err
}

// AnalyticsEvent is posted fire-and-forget; losing one is acceptable.
type AnalyticsEvent struct {
	Event      string         `json:"event"`
	Properties map[string]any `json:"properties,omitempty"`
	Timestamp  int64          `json:"timestamp"`
}

// TrackEvent makes a single attempt and discards the response body.
func (a *API) TrackEvent(ctx context.Context, event AnalyticsEvent) error {
	return a.client.Post(ctx, EndpointAnalytics, event, nil, WithRetries(0))
}
