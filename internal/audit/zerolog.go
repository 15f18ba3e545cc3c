package audit

import (
	"context"

	"github.com/rs/zerolog"
)

// ZerologSink writes events as structured log lines. Failed events are
// logged at warn level, successful ones at info.
type ZerologSink struct {
	logger zerolog.Logger
}

// NewZerologSink returns a sink writing through logger.
func NewZerologSink(logger zerolog.Logger) *ZerologSink {
	return &ZerologSink{logger: logger}
}

func (s *ZerologSink) Emit(_ context.Context, event Event) {
	if s == nil {
		return
	}
	ev := s.logger.Info()
	if !event.Success {
		ev = s.logger.Warn()
	}
	if !ev.Enabled() {
		return
	}

	ev = ev.Str("component", "audit").
		Str("event_type", event.EventType).
		Bool("success", event.Success).
		Time("event_time", event.Timestamp)
	if event.UserID != "" {
		ev = ev.Str("user_id", event.UserID)
	}
	if event.SessionID != "" {
		ev = ev.Str("session_id", event.SessionID)
	}
	if event.RequestID != "" {
		ev = ev.Str("request_id", event.RequestID)
	}
	if event.IP != "" {
		ev = ev.Str("ip", event.IP)
	}
	if event.Error != "" {
		ev = ev.Str("error_code", event.Error)
	}
	if len(event.Metadata) > 0 {
		ev = ev.Interface("metadata", event.Metadata)
	}
	ev.Msg("audit event")
}
