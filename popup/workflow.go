// Package popup is the interactive surface: the three-step generation
// workflow, the auth session and user settings.
package popup

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/LexiconIndonesia/covercraft-service/common/constants"
	"github.com/LexiconIndonesia/covercraft-service/common/messaging"
	"github.com/LexiconIndonesia/covercraft-service/common/models"
	"github.com/LexiconIndonesia/covercraft-service/handoff"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

type Step int

const (
	StepAwaitingExtraction Step = 1
	StepReview             Step = 2
	StepResult             Step = 3
)

const (
	DefaultGracePeriod        = 2 * time.Second
	DefaultExtractionDeadline = 30 * time.Second
	DefaultExtractTimeout     = 150 * time.Second
	DefaultGenerationCost     = 3

	firstPollInterval = 250 * time.Millisecond
)

// State is a snapshot of the workflow as shown to the user.
type State struct {
	Step           Step
	Extracted      *handoff.Record
	Resumes        []models.Resume
	SelectedResume *models.Resume
	CoverLetter    string
	Credits        int
	LastError      string
}

// DocumentsAPI is the remote surface the workflow drives.
type DocumentsAPI interface {
	Resumes(ctx context.Context) ([]models.Resume, error)
	UploadResume(ctx context.Context, filename string, file io.Reader) (models.Resume, error)
	GenerateFromContent(ctx context.Context, req models.GenerateFromContentRequest) (models.GenerateResponse, error)
}

// GenerateOptions tune the generated letter.
type GenerateOptions struct {
	Tone            string
	Length          string
	AdditionalNotes string
}

type Workflow struct {
	cache     *handoff.Cache
	api       DocumentsAPI
	transport messaging.Transport

	grace          time.Duration
	deadline       time.Duration
	extractTimeout time.Duration
	cost           int
	onCredit       func(int)

	notices chan models.ExtractionNotice

	mu    sync.Mutex
	state State
}

type WorkflowOption func(*Workflow)

func WithGracePeriod(d time.Duration) WorkflowOption {
	return func(w *Workflow) { w.grace = d }
}

func WithExtractionDeadline(d time.Duration) WorkflowOption {
	return func(w *Workflow) { w.deadline = d }
}

// WithExtractTimeout bounds the wait for the page listener's answer. It
// should cover the listener's whole API retry budget.
func WithExtractTimeout(d time.Duration) WorkflowOption {
	return func(w *Workflow) {
		if d > 0 {
			w.extractTimeout = d
		}
	}
}

func WithGenerationCost(cost int) WorkflowOption {
	return func(w *Workflow) { w.cost = cost }
}

// WithCreditListener is told the server-reported balance after each generation.
func WithCreditListener(fn func(int)) WorkflowOption {
	return func(w *Workflow) { w.onCredit = fn }
}

func NewWorkflow(cache *handoff.Cache, api DocumentsAPI, transport messaging.Transport, opts ...WorkflowOption) *Workflow {
	w := &Workflow{
		cache:          cache,
		api:            api,
		transport:      transport,
		grace:          DefaultGracePeriod,
		deadline:       DefaultExtractionDeadline,
		extractTimeout: DefaultExtractTimeout,
		cost:           DefaultGenerationCost,
		notices:        make(chan models.ExtractionNotice, 8),
		state:          State{Step: StepAwaitingExtraction},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Register lets pushed completion notices reach the workflow.
func (w *Workflow) Register(c *messaging.Coordinator) {
	c.Handle(constants.ExtractionCompletedMessage, func(_ context.Context, msg messaging.Message) messaging.Response {
		var n models.ExtractionNotice
		if err := msg.Decode(&n); err != nil {
			return messaging.Fail(err.Error())
		}
		w.NotifyExtractionCompleted(n)
		return messaging.OK(nil)
	})
}

// State returns a copy of the current state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.state
	s.Resumes = append([]models.Resume(nil), w.state.Resumes...)
	return s
}

func (w *Workflow) update(fn func(*State)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(&w.state)
}

// fail records msg for display and leaves everything else untouched.
func (w *Workflow) fail(kind error, msg string) error {
	w.update(func(s *State) { s.LastError = msg })
	return failure(kind, msg)
}

// Mount loads the resume list and skips to review when the handoff cache
// holds a fresh extraction.
func (w *Workflow) Mount(ctx context.Context, credits int) error {
	w.update(func(s *State) { s.Credits = credits })
	w.loadResumes(ctx)

	entry, err := w.cache.ReadFresh(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to check for extracted content")
		return nil
	}
	if e, ok := entry.Get(); ok {
		w.advance(e.Record)
	}
	return nil
}

func (w *Workflow) loadResumes(ctx context.Context) {
	resumes, err := w.api.Resumes(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load resumes")
		return
	}
	w.update(func(s *State) {
		s.Resumes = resumes
		if len(resumes) > 0 && s.SelectedResume == nil {
			first := resumes[0]
			s.SelectedResume = &first
		}
	})
}

func (w *Workflow) advance(record handoff.Record) {
	w.update(func(s *State) {
		s.Extracted = &record
		s.Step = StepReview
		s.LastError = ""
	})
}

// NotifyExtractionCompleted delivers a pushed completion notice. Notices
// nobody waits for are dropped.
func (w *Workflow) NotifyExtractionCompleted(n models.ExtractionNotice) {
	select {
	case w.notices <- n:
	default:
	}
}

// ExtractCurrentPage asks the active tab's listener to extract, then waits
// for the completion push or the grace period before reading the cache. If
// the entry is not there yet it keeps polling with doubling intervals until
// the extraction deadline.
func (w *Workflow) ExtractCurrentPage(ctx context.Context) error {
	started := time.Now()

	tabResp, err := w.request(ctx, constants.BackgroundEndpoint, constants.GetCurrentTabMessage, nil)
	if err != nil {
		log.Error().Err(err).Msg("Content extraction error")
		return w.fail(ErrExtraction, MsgExtractionFailed)
	}
	var tab models.Tab
	if err := tabResp.Decode(&tab); err != nil || tab.ID == 0 {
		log.Error().Err(err).Msg("Content extraction error: no active tab")
		return w.fail(ErrExtraction, MsgExtractionFailed)
	}

	requestID := uuid.NewString()
	extractCtx, cancel := context.WithTimeout(ctx, w.extractTimeout)
	_, err = w.request(extractCtx, constants.ContentEndpoint(tab.ID), constants.ExtractPageContentMessage,
		models.ExtractionRequest{RequestID: requestID})
	cancel()
	if err != nil {
		log.Error().Err(err).Int("tabID", tab.ID).Msg("Content extraction error")
		return w.fail(ErrExtraction, MsgExtractionFailed)
	}

	w.awaitNotice(ctx, requestID)

	deadline := time.NewTimer(w.deadline)
	defer deadline.Stop()
	interval := firstPollInterval
	poll := time.NewTimer(interval)
	defer poll.Stop()

	for {
		if record, ok := w.pollCache(ctx, requestID, started); ok {
			w.advance(record)
			return nil
		}

		select {
		case <-ctx.Done():
			return w.fail(ErrExtraction, MsgExtractionFailed)
		case <-deadline.C:
			log.Warn().Str("requestID", requestID).Dur("deadline", w.deadline).Msg("Extraction result never reached the cache")
			return w.fail(ErrExtraction, MsgExtractionFailed)
		case <-poll.C:
			interval *= 2
			poll.Reset(interval)
		}
	}
}

// awaitNotice returns on the matching push or when the grace period ends.
func (w *Workflow) awaitNotice(ctx context.Context, requestID string) {
	grace := time.NewTimer(w.grace)
	defer grace.Stop()
	for {
		select {
		case n := <-w.notices:
			if n.RequestID == requestID {
				return
			}
		case <-grace.C:
			return
		case <-ctx.Done():
			return
		}
	}
}

// pollCache accepts the entry written for requestID, or any fresh entry
// written after the request started: concurrent extractions resolve to the
// last write.
func (w *Workflow) pollCache(ctx context.Context, requestID string, started time.Time) (handoff.Record, bool) {
	entry, err := w.cache.ReadFresh(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read handoff cache")
		return handoff.Record{}, false
	}
	e, ok := entry.Get()
	if !ok {
		return handoff.Record{}, false
	}
	if e.Record.RequestID == requestID || !e.WrittenAt().Before(started.Truncate(time.Millisecond)) {
		return e.Record, true
	}
	return handoff.Record{}, false
}

func (w *Workflow) request(ctx context.Context, endpoint string, typ constants.MessageType, payload any) (messaging.Response, error) {
	msg, err := messaging.NewMessage(typ, payload)
	if err != nil {
		return messaging.Response{}, err
	}
	resp, err := w.transport.Request(ctx, endpoint, msg)
	if err != nil {
		return messaging.Response{}, err
	}
	return resp, resp.Err()
}

// SelectResume picks one of the loaded resumes.
func (w *Workflow) SelectResume(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	resume, ok := lo.Find(w.state.Resumes, func(r models.Resume) bool { return r.ID == id })
	if !ok {
		w.state.LastError = MsgNotReady
		return failure(ErrNotReady, MsgNotReady)
	}
	w.state.SelectedResume = &resume
	return nil
}

// UploadResume uploads a document, reloads the list and selects the upload.
func (w *Workflow) UploadResume(ctx context.Context, filename string, file io.Reader) error {
	resume, err := w.api.UploadResume(ctx, filename, file)
	if err != nil {
		log.Error().Err(err).Str("filename", filename).Msg("Resume upload failed")
		return w.fail(ErrUpload, MsgUploadFailed)
	}

	w.loadResumes(ctx)
	w.update(func(s *State) {
		s.SelectedResume = &resume
		if !lo.ContainsBy(s.Resumes, func(r models.Resume) bool { return r.ID == resume.ID }) {
			s.Resumes = append(s.Resumes, resume)
		}
		s.LastError = ""
	})
	return nil
}

// Generate turns the reviewed extraction and the selected resume into a
// cover letter. The credit check is local and happens before any network
// call; the new balance is taken from the server.
func (w *Workflow) Generate(ctx context.Context, opts GenerateOptions) error {
	s := w.State()

	if s.Credits < w.cost {
		return w.fail(ErrInsufficientCredits, MsgInsufficientCredits)
	}
	if s.Extracted == nil || s.SelectedResume == nil {
		return w.fail(ErrNotReady, MsgNotReady)
	}

	resp, err := w.api.GenerateFromContent(ctx, models.GenerateFromContentRequest{
		JobContent:      s.Extracted.ExtractedContent,
		ResumeID:        s.SelectedResume.ID,
		Tone:            opts.Tone,
		Length:          opts.Length,
		AdditionalNotes: opts.AdditionalNotes,
	})
	if err != nil {
		log.Error().Err(err).Msg("Cover letter generation failed")
		return w.fail(ErrGeneration, MsgGenerationFailed)
	}

	w.update(func(s *State) {
		s.CoverLetter = resp.Content
		s.Credits = resp.RemainingCredits
		s.Step = StepResult
		s.LastError = ""
	})
	if w.onCredit != nil {
		w.onCredit(resp.RemainingCredits)
	}
	return nil
}

// Reset returns to the first step. The handoff cache is left as is.
func (w *Workflow) Reset() {
	w.update(func(s *State) {
		s.Step = StepAwaitingExtraction
		s.Extracted = nil
		s.CoverLetter = ""
		s.LastError = ""
	})
}
