package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LexiconIndonesia/covercraft-service/common/models"
)

const (
	testBase = time.Millisecond
	testMax  = 10 * time.Millisecond
)

func newTestClient(t *testing.T, url string, retries uint, opts ...Option) *Client {
	t.Helper()
	c, err := New(Config{
		BaseURL:     url,
		Timeout:     time.Second,
		Retries:     retries,
		BackoffBase: testBase,
		BackoffMax:  testMax,
	}, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

// flakyServer fails the first failures requests with 503.
func flakyServer(failures int64, hits *int64) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(hits, 1)
		if n <= failures {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
}

// recordingTimer fires at once and keeps every wait it was asked for.
type recordingTimer struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingTimer) After(d time.Duration) <-chan time.Time {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func (r *recordingTimer) waits() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration{}, r.delays...)
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt uint
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{10, 10 * time.Second},
		{64, 10 * time.Second},
	}

	for _, tt := range tests {
		got := Backoff(time.Second, 10*time.Second, tt.attempt)
		if got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestClientRetriesUntilSuccess(t *testing.T) {
	for retries := uint(0); retries <= 3; retries++ {
		for failures := int64(0); failures < int64(retries); failures++ {
			var hits int64
			srv := flakyServer(failures, &hits)

			c := newTestClient(t, srv.URL, retries)
			timer := &recordingTimer{}
			c.timer = timer
			var out struct {
				OK bool `json:"ok"`
			}

			err := c.Get(context.Background(), "/resumes", &out)
			srv.Close()

			if err != nil {
				t.Fatalf("retries=%d failures=%d: Get() error = %v", retries, failures, err)
			}
			if !out.OK {
				t.Errorf("retries=%d failures=%d: body not decoded", retries, failures)
			}
			if hits != failures+1 {
				t.Errorf("retries=%d failures=%d: attempts = %d, want %d", retries, failures, hits, failures+1)
			}

			want := make([]time.Duration, 0, failures)
			for i := uint(0); i < uint(failures); i++ {
				want = append(want, Backoff(testBase, testMax, i))
			}
			if got := timer.waits(); !slices.Equal(got, want) {
				t.Errorf("retries=%d failures=%d: waits = %v, want %v", retries, failures, got, want)
			}
		}
	}
}

func TestClientBackoffSchedule(t *testing.T) {
	tests := []struct {
		retries uint
		want    []time.Duration
	}{
		{0, []time.Duration{}},
		{1, []time.Duration{time.Second}},
		{3, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}},
		{5, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second}},
	}

	for _, tt := range tests {
		var hits int64
		srv := flakyServer(100, &hits)

		c, err := New(Config{BaseURL: srv.URL, Timeout: time.Second, Retries: tt.retries})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		timer := &recordingTimer{}
		c.timer = timer

		err = c.Get(context.Background(), "/resumes", nil)
		srv.Close()

		if err == nil {
			t.Fatalf("retries=%d: Get() succeeded against a failing server", tt.retries)
		}
		if got := timer.waits(); !slices.Equal(got, tt.want) {
			t.Errorf("retries=%d: waits = %v, want %v", tt.retries, got, tt.want)
		}
		if hits != int64(tt.retries)+1 {
			t.Errorf("retries=%d: attempts = %d, want %d", tt.retries, hits, tt.retries+1)
		}
	}
}

func TestConfigBudget(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want time.Duration
	}{
		{"defaults", Config{Retries: 3}, 4*30*time.Second + 7*time.Second},
		{"no retries", Config{Timeout: 5 * time.Second}, 5 * time.Second},
		{"capped backoff", Config{Timeout: time.Second, Retries: 5}, 6*time.Second + 25*time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Budget(); got != tt.want {
				t.Errorf("Budget() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClientExhaustsBudget(t *testing.T) {
	for retries := uint(0); retries <= 3; retries++ {
		var hits int64
		srv := flakyServer(100, &hits)

		c := newTestClient(t, srv.URL, retries)
		err := c.Post(context.Background(), "/jobs/extract", map[string]string{"url": "https://x"}, nil)
		srv.Close()

		var statusErr *StatusError
		if !errors.As(err, &statusErr) {
			t.Fatalf("retries=%d: error = %v, want *StatusError", retries, err)
		}
		if statusErr.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("retries=%d: status = %d", retries, statusErr.StatusCode)
		}
		if hits != int64(retries)+1 {
			t.Errorf("retries=%d: attempts = %d, want %d", retries, hits, retries+1)
		}
	}
}

func TestClientTimeoutCountsAsFailedAttempt(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&hits, 1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		_, _ = w.Write([]byte(`{"id":"u1"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0)
	var user models.User
	err := c.Get(context.Background(), "/users/profile", &user, WithTimeout(50*time.Millisecond), WithRetries(1))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if user.ID != "u1" {
		t.Errorf("user id = %q", user.ID)
	}
	if hits != 2 {
		t.Errorf("attempts = %d, want 2", hits)
	}
}

func TestClientDecodeErrorIsNotRetried(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 3)
	var out map[string]any
	if err := c.Get(context.Background(), "/resumes", &out); err == nil {
		t.Fatal("expected decode error")
	}
	if hits != 1 {
		t.Errorf("attempts = %d, want 1", hits)
	}
}

func TestClientCancelledContextStopsRetrying(t *testing.T) {
	var hits int64
	srv := flakyServer(100, &hits)
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, Retries: 3, BackoffBase: time.Second, BackoffMax: 10 * time.Second})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := c.Get(ctx, "/resumes", nil); err == nil {
		t.Fatal("expected error")
	}
	if hits != 1 {
		t.Errorf("attempts = %d, want 1 before the context expired", hits)
	}
}

type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

func TestClientSendsTokenAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q", got)
		}
		if r.URL.Path != "/api/billing/create-session" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["priceId"] != "price_pro" {
			t.Errorf("priceId = %q", body["priceId"])
		}
		_, _ = w.Write([]byte(`{"url":"https://checkout.example/s1"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/api/", 0, WithTokenSource(staticToken("secret")))
	url, err := NewAPI(c).CreateBillingSession(context.Background(), "price_pro")
	if err != nil {
		t.Fatalf("CreateBillingSession() error = %v", err)
	}
	if url != "https://checkout.example/s1" {
		t.Errorf("url = %q", url)
	}
}

func TestUploadResumeSingleAttempt(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm() error = %v", err)
		}
		if got := r.FormValue("filename"); got != "cv.pdf" {
			t.Errorf("filename field = %q", got)
		}
		f, _, err := r.FormFile("resume")
		if err != nil {
			t.Errorf("FormFile() error = %v", err)
		} else {
			data, _ := io.ReadAll(f)
			if string(data) != "%PDF-1.4" {
				t.Errorf("file content = %q", data)
			}
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 3)
	_, err := NewAPI(c).UploadResume(context.Background(), "cv.pdf", strings.NewReader("%PDF-1.4"))
	if err == nil {
		t.Fatal("expected error")
	}
	if hits != 1 {
		t.Errorf("attempts = %d, want 1", hits)
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrEmptyBaseURL) {
		t.Errorf("New() error = %v, want ErrEmptyBaseURL", err)
	}
}
