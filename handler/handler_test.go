package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/LexiconIndonesia/covercraft-service/common/constants"
	"github.com/LexiconIndonesia/covercraft-service/common/kv"
	"github.com/LexiconIndonesia/covercraft-service/common/messaging"
	"github.com/LexiconIndonesia/covercraft-service/common/models"
	"github.com/LexiconIndonesia/covercraft-service/common/work"
	"github.com/LexiconIndonesia/covercraft-service/handoff"
)

func TestValidEndpoint(t *testing.T) {
	tests := []struct {
		target string
		want   bool
	}{
		{"background", true},
		{"popup", true},
		{"content.12", true},
		{"content:12", false},
		{"content.0", false},
		{"content.abc", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := validEndpoint(tt.target); got != tt.want {
			t.Errorf("validEndpoint(%q) = %v, want %v", tt.target, got, tt.want)
		}
	}
}

func TestSendMessage(t *testing.T) {
	transport := messaging.NewLocalTransport()
	c, err := messaging.NewCoordinator(constants.BackgroundEndpoint, work.DefaultPoolConfig())
	if err != nil {
		t.Fatal(err)
	}
	c.Start(context.Background())
	t.Cleanup(c.Stop)
	c.Handle(constants.GetCurrentTabMessage, func(context.Context, messaging.Message) messaging.Response {
		return messaging.OK(models.Tab{ID: 8})
	})
	if _, err := transport.Listen(c); err != nil {
		t.Fatal(err)
	}

	h := NewMessageHandler(transport, 0)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"handled", `{"target":"background","message":{"type":"GET_CURRENT_TAB"}}`, http.StatusOK},
		{"unhandled", `{"target":"background","message":{"type":"PING"}}`, http.StatusNotFound},
		{"no listener", `{"target":"content.3","message":{"type":"PING"}}`, http.StatusServiceUnavailable},
		{"bad target", `{"target":"content:3","message":{"type":"PING"}}`, http.StatusBadRequest},
		{"missing type", `{"target":"background","message":{}}`, http.StatusBadRequest},
		{"unknown field", `{"target":"background","extra":1}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.Router().ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d, body %s", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestHandoffHandler(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	cache := handoff.New(kv.NewMemory(), handoff.WithClock(func() time.Time { return now }))
	h := NewHandoffHandler(cache)

	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("empty cache status = %d", rec.Code)
	}

	if _, err := cache.Write(ctx, handoff.Record{ExtractedContent: models.ExtractedContent{Title: "PM"}}); err != nil {
		t.Fatal(err)
	}
	rec = httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		Data HandoffResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !body.Data.Fresh || body.Data.Entry.Record.Title != "PM" {
		t.Errorf("body = %+v", body.Data)
	}
}

type fakeTabs struct {
	tab models.Tab
	err error
}

func (f fakeTabs) Active(context.Context) (models.Tab, error) { return f.tab, f.err }

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestTabAndHealthHandlers(t *testing.T) {
	tests := []struct {
		name    string
		handler http.Handler
		path    string
		want    int
	}{
		{"active tab", NewTabHandler(fakeTabs{tab: models.Tab{ID: 1}}, nil).Router(), "/active", http.StatusOK},
		{"tab error", NewTabHandler(fakeTabs{err: errors.New("closed")}, nil).Router(), "/active", http.StatusServiceUnavailable},
		{"no browser", NewTabHandler(nil, nil).Router(), "/active", http.StatusServiceUnavailable},
		{"liveness", NewHealthHandler(nil).Router(), "/", http.StatusOK},
		{"deps healthy", NewHealthHandler(map[string]Pinger{"redis": fakePinger{}, "postgres": nil}).Router(), "/dependencies", http.StatusOK},
		{"deps down", NewHealthHandler(map[string]Pinger{"redis": fakePinger{err: errors.New("refused")}}).Router(), "/dependencies", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

type recordingMenu struct {
	menuID string
	tab    models.Tab
	err    error
}

func (m *recordingMenu) OnContextMenuClicked(_ context.Context, menuID string, tab models.Tab) error {
	m.menuID, m.tab = menuID, tab
	return m.err
}

func TestContextMenu(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
		err  error
		want int
	}{
		{"accepted", "/4/context-menu", `{"menuId":"covercraft-extract","url":"https://jobs.example"}`, nil, http.StatusAccepted},
		{"bad tab", "/x/context-menu", `{"menuId":"covercraft-extract"}`, nil, http.StatusBadRequest},
		{"missing menu", "/4/context-menu", `{}`, nil, http.StatusBadRequest},
		{"no listener", "/4/context-menu", `{"menuId":"covercraft-extract"}`, errors.New("no listener"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			menu := &recordingMenu{err: tt.err}
			h := NewTabHandler(nil, menu)
			rec := httptest.NewRecorder()
			h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body)))
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusAccepted && (menu.tab.ID != 4 || menu.tab.URL != "https://jobs.example") {
				t.Errorf("tab = %+v", menu.tab)
			}
		})
	}
}
