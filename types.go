package vhauth

import (
	"io"
	"time"

	"github.com/rs/zerolog"
	internalaudit "github.com/virtualhospital/vhauth/internal/audit"
	internalmetrics "github.com/virtualhospital/vhauth/internal/metrics"
	"github.com/virtualhospital/vhauth/internal/rate"
)

// UserClaims is the identity a caller has already verified (password,
// OAuth, ...) and wants a session for.
type UserClaims struct {
	ID       string
	Email    string
	Username string
	Provider string
}

// IssueOptions tunes a single issuance.
type IssueOptions struct {
	// ExpiresIn overrides the access token lifetime when positive.
	ExpiresIn time.Duration
	// DeviceFingerprint binds the session to a client. When empty the
	// fingerprint of the request's SecurityContext is used, if any.
	DeviceFingerprint string
}

// IssueResult is returned by [Engine.Issue].
type IssueResult struct {
	AccessToken  string
	RefreshToken string
	SessionID    string
}

// TokenPair is returned by [Engine.Refresh].
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AuthResult is returned by [Engine.Verify] once the token, its session and
// its signature all check out.
type AuthResult struct {
	UserID       string
	Email        string
	Username     string
	Provider     string
	SessionID    string
	TokenVersion int64
	ExpiresAt    time.Time
}

// SessionInfo is the read-only projection served to "manage my devices"
// screens.
type SessionInfo struct {
	SessionID         string    `json:"sessionId"`
	LastActivity      time.Time `json:"lastActivity"`
	DeviceFingerprint string    `json:"deviceFingerprint,omitempty"`
}

// RateAction names a rate-limited operation.
type RateAction = rate.Action

const (
	RateLogin    = rate.ActionLogin
	RateRegister = rate.ActionRegister
	RateRefresh  = rate.ActionRefresh
	RateAPI      = rate.ActionAPI
)

// RateDecision is the outcome of [Engine.CheckRate].
type RateDecision struct {
	Allowed           bool
	Count             int
	MaxAttempts       int
	ResetAt           time.Time
	RetryAfterSeconds int
}

// RateStatus is a read-only view of one rate window.
type RateStatus = rate.Status

// AuditEvent is a structured record of a security-relevant operation.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the Engine's dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink discards every event.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink delivers events to a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per event.
type JSONWriterSink = internalaudit.JSONWriterSink

// ZerologSink writes events through a zerolog.Logger.
type ZerologSink = internalaudit.ZerologSink

// MultiSink fans events out to several sinks.
type MultiSink = internalaudit.MultiSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func NewZerologSink(logger zerolog.Logger) *ZerologSink {
	return internalaudit.NewZerologSink(logger)
}

// MetricID identifies an engine counter or histogram.
type MetricID = internalmetrics.MetricID

const (
	MetricIssueSuccess         = internalmetrics.MetricIssueSuccess
	MetricIssueFailure         = internalmetrics.MetricIssueFailure
	MetricVerifySuccess        = internalmetrics.MetricVerifySuccess
	MetricVerifyFailure        = internalmetrics.MetricVerifyFailure
	MetricRefreshSuccess       = internalmetrics.MetricRefreshSuccess
	MetricRefreshFailure       = internalmetrics.MetricRefreshFailure
	MetricStaleVersionRejected = internalmetrics.MetricStaleVersionRejected
	MetricDeviceMismatch       = internalmetrics.MetricDeviceMismatch
	MetricSessionCreated       = internalmetrics.MetricSessionCreated
	MetricSessionInvalidated   = internalmetrics.MetricSessionInvalidated
	MetricSessionSwept         = internalmetrics.MetricSessionSwept
	MetricLogout               = internalmetrics.MetricLogout
	MetricLogoutAll            = internalmetrics.MetricLogoutAll
	MetricRateLimitHit         = internalmetrics.MetricRateLimitHit
	MetricRateLimitReset       = internalmetrics.MetricRateLimitReset
	MetricRateEntriesSwept     = internalmetrics.MetricRateEntriesSwept
	MetricCSRFIssued           = internalmetrics.MetricCSRFIssued
	MetricCSRFRejected         = internalmetrics.MetricCSRFRejected
	MetricCSRFSwept            = internalmetrics.MetricCSRFSwept
	MetricSuspiciousRequest    = internalmetrics.MetricSuspiciousRequest
	MetricValidationRejected   = internalmetrics.MetricValidationRejected
	MetricVerifyLatency        = internalmetrics.MetricVerifyLatency
)

// Metrics is the engine's lock-free metric store.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of the engine metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a metric store for cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:                 cfg.Enabled,
		EnableLatencyHistograms: cfg.EnableLatencyHistograms,
	})
}
