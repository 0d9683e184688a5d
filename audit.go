package gatekit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/phuslu/log"
)

// Audit event types emitted by the engine. Subjects are derived key
// material, never raw emails, so sinks can be shipped off-box without
// leaking identifiers.
const (
	AuditRecoveryRequested     = "recovery.requested"
	AuditRecoveryDenied        = "recovery.denied"
	AuditRecoveryVerified      = "recovery.verified"
	AuditRecoveryVerifyFailed  = "recovery.verify_failed"
	AuditRecoveryConfirmed     = "recovery.confirmed"
	AuditRecoveryConfirmFailed = "recovery.confirm_failed"
	AuditIPBlocked             = "ip.blocked"
	AuditTokenIssued           = "token.issued"
	AuditTokenRejected         = "token.rejected"
	AuditStoreError            = "store.error"
)

type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	Subject   string            `json:"subject,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

type ChannelSink struct {
	events chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// LogSink writes audit events through a structured logger. Denials and
// store errors log at warn, everything else at info.
type LogSink struct {
	logger *log.Logger
}

func NewLogSink(logger *log.Logger) *LogSink {
	if logger == nil {
		logger = &log.DefaultLogger
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(_ context.Context, event AuditEvent) {
	if s == nil || s.logger == nil {
		return
	}

	entry := s.logger.Info()
	if !event.Success {
		entry = s.logger.Warn()
	}

	entry = entry.
		Time("timestamp", event.Timestamp).
		Str("event_type", event.EventType)
	if event.Subject != "" {
		entry = entry.Str("subject", event.Subject)
	}
	if event.IP != "" {
		entry = entry.Str("ip", event.IP)
	}
	entry = entry.Bool("success", event.Success)
	if event.Error != "" {
		entry = entry.Str("error", event.Error)
	}
	for k, v := range event.Metadata {
		entry = entry.Str(k, v)
	}
	entry.Msg("audit")
}
