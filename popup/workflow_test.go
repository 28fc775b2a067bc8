package popup

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/LexiconIndonesia/covercraft-service/common/constants"
	"github.com/LexiconIndonesia/covercraft-service/common/kv"
	"github.com/LexiconIndonesia/covercraft-service/common/messaging"
	"github.com/LexiconIndonesia/covercraft-service/common/models"
	"github.com/LexiconIndonesia/covercraft-service/common/work"
	"github.com/LexiconIndonesia/covercraft-service/content"
	"github.com/LexiconIndonesia/covercraft-service/handoff"
)

const jobPage = `<html><head><title>Backend Engineer</title></head>
<body><main><h1>Backend Engineer</h1><p>Responsibilities include Go services.</p></main></body></html>`

type fakeDocuments struct {
	resumes   []models.Resume
	uploadErr error
	generated int
	response  models.GenerateResponse
	genErr    error
	lastReq   models.GenerateFromContentRequest
}

func (f *fakeDocuments) Resumes(context.Context) ([]models.Resume, error) {
	return f.resumes, nil
}

func (f *fakeDocuments) UploadResume(_ context.Context, filename string, _ io.Reader) (models.Resume, error) {
	if f.uploadErr != nil {
		return models.Resume{}, f.uploadErr
	}
	r := models.Resume{ID: "uploaded", Filename: filename}
	f.resumes = append(f.resumes, r)
	return r, nil
}

func (f *fakeDocuments) GenerateFromContent(_ context.Context, req models.GenerateFromContentRequest) (models.GenerateResponse, error) {
	f.generated++
	f.lastReq = req
	return f.response, f.genErr
}

type fakeExtraction struct {
	result models.ExtractionResult
	err    error
	delay  time.Duration
}

func (f fakeExtraction) FromSnapshot(ctx context.Context, _ models.PageSnapshot) (models.ExtractionResult, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return models.ExtractionResult{}, ctx.Err()
		}
	}
	return f.result, f.err
}

func coordinator(t *testing.T, transport *messaging.LocalTransport, endpoint string, register func(*messaging.Coordinator)) {
	t.Helper()
	c, err := messaging.NewCoordinator(endpoint, work.DefaultPoolConfig())
	if err != nil {
		t.Fatal(err)
	}
	c.Start(context.Background())
	t.Cleanup(c.Stop)
	register(c)
	if _, err := transport.Listen(c); err != nil {
		t.Fatal(err)
	}
}

// pipeline wires a background that reports tab 3, a page listener on tab 3
// and a popup coordinator feeding wf.
func pipeline(t *testing.T, ext fakeExtraction, cache *handoff.Cache, opts ...WorkflowOption) (*Workflow, *fakeDocuments) {
	t.Helper()
	transport := messaging.NewLocalTransport()
	docs := &fakeDocuments{resumes: []models.Resume{{ID: "r1"}, {ID: "r2"}}}
	wf := NewWorkflow(cache, docs, transport, opts...)

	coordinator(t, transport, constants.BackgroundEndpoint, func(c *messaging.Coordinator) {
		c.Handle(constants.GetCurrentTabMessage, func(context.Context, messaging.Message) messaging.Response {
			return messaging.OK(models.Tab{ID: 3, URL: "https://jobs.example/3", Active: true})
		})
	})
	coordinator(t, transport, constants.ContentEndpoint(3), func(c *messaging.Coordinator) {
		content.NewListener(3, content.StaticPage{HTML: jobPage, URL: "https://jobs.example/3"}, content.Deps{
			Extraction: ext,
			Cache:      cache,
			Transport:  transport,
		}).Register(c)
	})
	coordinator(t, transport, constants.PopupEndpoint, wf.Register)
	return wf, docs
}

func TestExtractCurrentPageAdvances(t *testing.T) {
	ctx := context.Background()
	cache := handoff.New(kv.NewMemory())
	ext := fakeExtraction{result: models.ExtractionResult{
		JobData:    models.JobData{Title: "Backend Engineer", Company: "Acme"},
		Confidence: 0.82,
	}}
	wf, _ := pipeline(t, ext, cache, WithGracePeriod(5*time.Second))

	if err := wf.Mount(ctx, 10); err != nil {
		t.Fatal(err)
	}
	if wf.State().Step != StepAwaitingExtraction {
		t.Fatalf("empty cache should start at step 1")
	}

	start := time.Now()
	if err := wf.ExtractCurrentPage(ctx); err != nil {
		t.Fatalf("ExtractCurrentPage() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed >= 5*time.Second {
		t.Errorf("completion push was not used, took %v", elapsed)
	}

	s := wf.State()
	if s.Step != StepReview {
		t.Errorf("step = %d, want %d", s.Step, StepReview)
	}
	if s.Extracted == nil || s.Extracted.Confidence != 0.82 || s.Extracted.Company != "Acme" {
		t.Errorf("extracted = %+v", s.Extracted)
	}
	if s.SelectedResume == nil || s.SelectedResume.ID != "r1" {
		t.Errorf("first resume should be selected, got %+v", s.SelectedResume)
	}
}

func TestExtractCurrentPageFailure(t *testing.T) {
	ctx := context.Background()
	cache := handoff.New(kv.NewMemory())
	wf, _ := pipeline(t, fakeExtraction{err: errors.New("upstream 502")}, cache,
		WithGracePeriod(10*time.Millisecond), WithExtractionDeadline(50*time.Millisecond))

	err := wf.ExtractCurrentPage(ctx)
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("error = %v, want ErrExtraction", err)
	}
	if err.Error() != MsgExtractionFailed {
		t.Errorf("message = %q", err.Error())
	}

	s := wf.State()
	if s.Step != StepAwaitingExtraction || s.Extracted != nil {
		t.Errorf("failed extraction changed state: %+v", s)
	}
	if s.LastError != MsgExtractionFailed {
		t.Errorf("LastError = %q", s.LastError)
	}
}

func TestExtractCurrentPageTimeout(t *testing.T) {
	ext := fakeExtraction{
		result: models.ExtractionResult{JobData: models.JobData{Title: "Backend Engineer"}, Confidence: 0.7},
		delay:  300 * time.Millisecond,
	}

	tests := []struct {
		name    string
		timeout time.Duration
		wantErr bool
	}{
		{"covers slow extraction", 3 * time.Second, false},
		{"shorter than extraction", 50 * time.Millisecond, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := handoff.New(kv.NewMemory())
			wf, _ := pipeline(t, ext, cache, WithExtractTimeout(tt.timeout),
				WithGracePeriod(10*time.Millisecond), WithExtractionDeadline(50*time.Millisecond))

			start := time.Now()
			err := wf.ExtractCurrentPage(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExtractCurrentPage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && time.Since(start) >= ext.delay {
				t.Errorf("request outlived its timeout: %v", time.Since(start))
			}
		})
	}
}

func TestExtractCurrentPagePollsUntilCacheWrite(t *testing.T) {
	ctx := context.Background()
	cache := handoff.New(kv.NewMemory())
	transport := messaging.NewLocalTransport()
	wf := NewWorkflow(cache, &fakeDocuments{}, transport,
		WithGracePeriod(10*time.Millisecond), WithExtractionDeadline(5*time.Second))

	coordinator(t, transport, constants.BackgroundEndpoint, func(c *messaging.Coordinator) {
		c.Handle(constants.GetCurrentTabMessage, func(context.Context, messaging.Message) messaging.Response {
			return messaging.OK(models.Tab{ID: 4, Active: true})
		})
	})
	// The listener answers at once but the entry lands after several polls.
	coordinator(t, transport, constants.ContentEndpoint(4), func(c *messaging.Coordinator) {
		c.Handle(constants.ExtractPageContentMessage, func(_ context.Context, msg messaging.Message) messaging.Response {
			var req models.ExtractionRequest
			if err := msg.Decode(&req); err != nil {
				return messaging.Fail(err.Error())
			}
			go func() {
				time.Sleep(600 * time.Millisecond)
				record := handoff.Record{RequestID: req.RequestID}
				record.Title = "Late Engineer"
				if _, err := cache.Write(context.Background(), record); err != nil {
					t.Error(err)
				}
			}()
			return messaging.OK(nil)
		})
	})

	if err := wf.ExtractCurrentPage(ctx); err != nil {
		t.Fatalf("ExtractCurrentPage() error = %v", err)
	}
	if s := wf.State(); s.Extracted == nil || s.Extracted.Title != "Late Engineer" {
		t.Errorf("extracted = %+v", s.Extracted)
	}
}

func TestMountResumesFreshEntry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	cache := handoff.New(kv.NewMemory(), handoff.WithClock(clock))
	if _, err := cache.Write(ctx, handoff.Record{ExtractedContent: models.ExtractedContent{Title: "SRE"}}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		age  time.Duration
		want Step
	}{
		{"fresh", 5 * time.Minute, StepReview},
		{"stale", handoff.FreshnessWindow, StepAwaitingExtraction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			at := now.Add(tt.age)
			reader := handoff.New(kvFrom(t, ctx, cache), handoff.WithClock(func() time.Time { return at }))
			wf := NewWorkflow(reader, &fakeDocuments{}, messaging.NewLocalTransport())
			if err := wf.Mount(ctx, 5); err != nil {
				t.Fatal(err)
			}
			if got := wf.State().Step; got != tt.want {
				t.Errorf("step = %d, want %d", got, tt.want)
			}
		})
	}
}

// kvFrom copies the current handoff entry into a fresh store.
func kvFrom(t *testing.T, ctx context.Context, cache *handoff.Cache) kv.Store {
	t.Helper()
	entry, err := cache.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	store := kv.NewMemory()
	if e, ok := entry.Get(); ok {
		if err := kv.SetJSON(ctx, store, handoff.Key, e); err != nil {
			t.Fatal(err)
		}
	}
	return store
}

func reviewing(t *testing.T, credits int, docs *fakeDocuments) (*Workflow, *handoff.Cache) {
	t.Helper()
	ctx := context.Background()
	cache := handoff.New(kv.NewMemory())
	if _, err := cache.Write(ctx, handoff.Record{ExtractedContent: models.ExtractedContent{Title: "Data Engineer"}}); err != nil {
		t.Fatal(err)
	}
	wf := NewWorkflow(cache, docs, messaging.NewLocalTransport())
	if err := wf.Mount(ctx, credits); err != nil {
		t.Fatal(err)
	}
	if wf.State().Step != StepReview {
		t.Fatal("expected review step")
	}
	return wf, cache
}

func TestGenerateInsufficientCredits(t *testing.T) {
	docs := &fakeDocuments{resumes: []models.Resume{{ID: "r1"}}}
	wf, _ := reviewing(t, 2, docs)

	err := wf.Generate(context.Background(), GenerateOptions{})
	if !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("error = %v, want ErrInsufficientCredits", err)
	}
	if err.Error() != MsgInsufficientCredits {
		t.Errorf("message = %q", err.Error())
	}
	if docs.generated != 0 {
		t.Errorf("generation requests = %d, want 0", docs.generated)
	}
	if s := wf.State(); s.Step != StepReview || s.Credits != 2 {
		t.Errorf("state = %+v", s)
	}
}

func TestGenerate(t *testing.T) {
	tests := []struct {
		name     string
		docs     *fakeDocuments
		wantErr  error
		wantStep Step
	}{
		{
			name:     "success",
			docs:     &fakeDocuments{resumes: []models.Resume{{ID: "r1"}}, response: models.GenerateResponse{Content: "Dear team", RemainingCredits: 7}},
			wantStep: StepResult,
		},
		{
			name:     "no resume",
			docs:     &fakeDocuments{},
			wantErr:  ErrNotReady,
			wantStep: StepReview,
		},
		{
			name:     "api error",
			docs:     &fakeDocuments{resumes: []models.Resume{{ID: "r1"}}, genErr: errors.New("500")},
			wantErr:  ErrGeneration,
			wantStep: StepReview,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf, _ := reviewing(t, 10, tt.docs)
			err := wf.Generate(context.Background(), GenerateOptions{Tone: "formal"})
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Generate() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Generate() error = %v, want %v", err, tt.wantErr)
			}
			if got := wf.State().Step; got != tt.wantStep {
				t.Errorf("step = %d, want %d", got, tt.wantStep)
			}
		})
	}
}

func TestGenerateUsesServerBalance(t *testing.T) {
	docs := &fakeDocuments{resumes: []models.Resume{{ID: "r1"}}, response: models.GenerateResponse{Content: "Hello", RemainingCredits: 4}}
	var reported int
	cache := handoff.New(kv.NewMemory())
	ctx := context.Background()
	if _, err := cache.Write(ctx, handoff.Record{ExtractedContent: models.ExtractedContent{Title: "QA"}}); err != nil {
		t.Fatal(err)
	}
	wf := NewWorkflow(cache, docs, messaging.NewLocalTransport(), WithCreditListener(func(n int) { reported = n }))
	if err := wf.Mount(ctx, 9); err != nil {
		t.Fatal(err)
	}

	if err := wf.Generate(ctx, GenerateOptions{}); err != nil {
		t.Fatal(err)
	}
	s := wf.State()
	if s.Credits != 4 || reported != 4 {
		t.Errorf("credits = %d, reported = %d, want 4", s.Credits, reported)
	}
	if s.CoverLetter != "Hello" {
		t.Errorf("cover letter = %q", s.CoverLetter)
	}
	if docs.lastReq.JobContent.Title != "QA" || docs.lastReq.ResumeID != "r1" {
		t.Errorf("request = %+v", docs.lastReq)
	}
}

func TestResetKeepsCache(t *testing.T) {
	ctx := context.Background()
	docs := &fakeDocuments{resumes: []models.Resume{{ID: "r1"}}, response: models.GenerateResponse{Content: "x", RemainingCredits: 1}}
	wf, cache := reviewing(t, 5, docs)
	if err := wf.Generate(ctx, GenerateOptions{}); err != nil {
		t.Fatal(err)
	}

	wf.Reset()
	s := wf.State()
	if s.Step != StepAwaitingExtraction || s.Extracted != nil || s.CoverLetter != "" {
		t.Errorf("state after reset = %+v", s)
	}

	entry, err := cache.ReadFresh(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !entry.IsPresent() {
		t.Error("reset must not clear the handoff cache")
	}
}

func TestSelectAndUploadResume(t *testing.T) {
	ctx := context.Background()
	docs := &fakeDocuments{resumes: []models.Resume{{ID: "r1"}, {ID: "r2"}}}
	wf, _ := reviewing(t, 5, docs)

	if err := wf.SelectResume("r2"); err != nil {
		t.Fatal(err)
	}
	if wf.State().SelectedResume.ID != "r2" {
		t.Error("r2 not selected")
	}
	if err := wf.SelectResume("missing"); err == nil {
		t.Error("selecting an unknown resume should fail")
	}

	if err := wf.UploadResume(ctx, "cv.pdf", nil); err != nil {
		t.Fatal(err)
	}
	s := wf.State()
	if s.SelectedResume.ID != "uploaded" || len(s.Resumes) != 3 {
		t.Errorf("after upload = %+v", s)
	}

	docs.uploadErr = errors.New("413")
	if err := wf.UploadResume(ctx, "big.pdf", nil); !errors.Is(err, ErrUpload) || err.Error() != MsgUploadFailed {
		t.Errorf("upload error = %v", err)
	}
}
