package logger

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/LexiconIndonesia/covercraft-service/common/db"
	"github.com/LexiconIndonesia/covercraft-service/common/messaging"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const insertLog = `INSERT INTO ` + db.LogTable + ` (id, endpoint, request_id, event_type, message, details, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

// Execer is satisfied by *pgxpool.Pool.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Setup configures the global zerolog logger.
func Setup(level string, pretty bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// LogEvent represents a log event
type LogEvent struct {
	Endpoint  string
	RequestID string
	EventType string
	Message   string
	Details   any
}

// CoordinatorLogHook implements zerolog.Hook interface
// for storing warnings and errors in the database
type CoordinatorLogHook struct {
	service *LogService
}

func NewCoordinatorLogHook(service *LogService) *CoordinatorLogHook {
	return &CoordinatorLogHook{service: service}
}

// Run implements zerolog.Hook.Run
func (h *CoordinatorLogHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	if level < zerolog.WarnLevel {
		return
	}

	event := LogEvent{
		EventType: level.String(),
		Message:   msg,
	}

	// This is done asynchronously to not block the logging
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.service.insert(ctx, event); err != nil {
			// Written without the hook to avoid recursion.
			fallback.Error().Err(err).Msg("Failed to log to database via hook")
		}
	}()
}

var fallback = zerolog.New(os.Stderr).With().Timestamp().Logger()

// InitializeLogging attaches the database hook to the global logger.
func InitializeLogging(service *LogService) {
	log.Logger = log.Logger.Hook(NewCoordinatorLogHook(service))
}

// LogService records coordinator events in PostgreSQL.
type LogService struct {
	db  Execer
	now func() time.Time
}

func NewLogService(db Execer) *LogService {
	return &LogService{
		db:  db,
		now: time.Now,
	}
}

func (s *LogService) insert(ctx context.Context, event LogEvent) error {
	details := json.RawMessage("{}")
	if event.Details != nil {
		raw, err := json.Marshal(event.Details)
		if err != nil {
			fallback.Error().Err(err).Msg("Failed to marshal log details")
		} else {
			details = raw
		}
	}

	requestID := pgtype.Text{String: event.RequestID, Valid: event.RequestID != ""}
	message := pgtype.Text{String: event.Message, Valid: event.Message != ""}

	_, err := s.db.Exec(ctx, insertLog,
		uuid.NewString(),
		event.Endpoint,
		requestID,
		event.EventType,
		message,
		details,
		s.now(),
	)
	return err
}

// Log creates a log entry in the database and mirrors it to the console.
func (s *LogService) Log(ctx context.Context, event LogEvent) error {
	if err := s.insert(ctx, event); err != nil {
		log.Error().Err(err).Str("eventType", event.EventType).Msg("Failed to insert log into database")
		return err
	}

	entry := log.Debug().Str("eventType", event.EventType)
	if event.Endpoint != "" {
		entry = entry.Str("endpoint", event.Endpoint)
	}
	if event.RequestID != "" {
		entry = entry.Str("requestID", event.RequestID)
	}
	entry.Interface("details", event.Details).Msg(event.Message)
	return nil
}

func (s *LogService) ExtractionStarted(ctx context.Context, requestID, url string) {
	_ = s.Log(ctx, LogEvent{
		RequestID: requestID,
		EventType: "extraction.started",
		Message:   "Extraction started",
		Details:   map[string]any{"url": url},
	})
}

func (s *LogService) ExtractionCompleted(ctx context.Context, requestID string, confidence float64) {
	_ = s.Log(ctx, LogEvent{
		RequestID: requestID,
		EventType: "extraction.completed",
		Message:   "Extraction completed",
		Details:   map[string]any{"confidence": confidence},
	})
}

func (s *LogService) ExtractionFailed(ctx context.Context, requestID string, err error) {
	_ = s.Log(ctx, LogEvent{
		RequestID: requestID,
		EventType: "extraction.failed",
		Message:   "Extraction failed",
		Details:   map[string]any{"error": err.Error()},
	})
}

// MessageReceived is installed as a coordinator observer.
func (s *LogService) MessageReceived(ctx context.Context, endpoint string, msg messaging.Message, handled bool) {
	details := map[string]any{
		"type":    msg.Type,
		"handled": handled,
	}
	if msg.TabID != nil {
		details["tabId"] = *msg.TabID
	}
	_ = s.Log(ctx, LogEvent{
		Endpoint:  endpoint,
		RequestID: msg.ID,
		EventType: "message.received",
		Message:   string(msg.Type),
		Details:   details,
	})
}
