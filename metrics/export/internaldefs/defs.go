package internaldefs

import (
	"github.com/virtualhospital/vhauth"
	internalmetrics "github.com/virtualhospital/vhauth/internal/metrics"
)

// BucketCount is the number of latency histogram buckets, +Inf included.
const BucketCount = internalmetrics.HistBucketCount

type CounterDef struct {
	ID   vhauth.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   vhauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: vhauth.MetricIssueSuccess, Name: "vhauth_issue_success_total", Help: "Token pairs issued."},
	{ID: vhauth.MetricIssueFailure, Name: "vhauth_issue_failure_total", Help: "Failed token issuances."},
	{ID: vhauth.MetricVerifySuccess, Name: "vhauth_verify_success_total", Help: "Access tokens accepted."},
	{ID: vhauth.MetricVerifyFailure, Name: "vhauth_verify_failure_total", Help: "Access tokens rejected."},
	{ID: vhauth.MetricRefreshSuccess, Name: "vhauth_refresh_success_total", Help: "Successful refresh operations."},
	{ID: vhauth.MetricRefreshFailure, Name: "vhauth_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: vhauth.MetricStaleVersionRejected, Name: "vhauth_stale_version_rejected_total", Help: "Tokens rejected because a newer version was issued for their session."},
	{ID: vhauth.MetricDeviceMismatch, Name: "vhauth_device_mismatch_total", Help: "Requests rejected by device binding."},
	{ID: vhauth.MetricSessionCreated, Name: "vhauth_session_created_total", Help: "Created sessions."},
	{ID: vhauth.MetricSessionInvalidated, Name: "vhauth_session_invalidated_total", Help: "Sessions ended by logout."},
	{ID: vhauth.MetricSessionSwept, Name: "vhauth_session_swept_total", Help: "Idle sessions removed by the sweeper."},
	{ID: vhauth.MetricLogout, Name: "vhauth_logout_total", Help: "Single-session logout operations."},
	{ID: vhauth.MetricLogoutAll, Name: "vhauth_logout_all_total", Help: "Logout-all operations."},
	{ID: vhauth.MetricRateLimitHit, Name: "vhauth_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
	{ID: vhauth.MetricRateLimitReset, Name: "vhauth_rate_limit_reset_total", Help: "Rate windows cleared explicitly."},
	{ID: vhauth.MetricRateEntriesSwept, Name: "vhauth_rate_entries_swept_total", Help: "Lapsed rate windows removed."},
	{ID: vhauth.MetricCSRFIssued, Name: "vhauth_csrf_issued_total", Help: "CSRF tokens issued."},
	{ID: vhauth.MetricCSRFRejected, Name: "vhauth_csrf_rejected_total", Help: "Requests rejected for a missing or invalid CSRF token."},
	{ID: vhauth.MetricCSRFSwept, Name: "vhauth_csrf_swept_total", Help: "Expired CSRF tokens removed."},
	{ID: vhauth.MetricSuspiciousRequest, Name: "vhauth_suspicious_request_total", Help: "Requests rejected for matching an attack signature."},
	{ID: vhauth.MetricValidationRejected, Name: "vhauth_validation_rejected_total", Help: "Requests rejected by field validation."},
}

var HistogramDefs = []HistogramDef{
	{ID: vhauth.MetricVerifyLatency, Name: "vhauth_verify_latency_seconds", Help: "Access token verification latency."},
}

// HistogramBounds are the upper bounds, in seconds, matching the engine's
// latency buckets.
var HistogramBounds = [BucketCount]string{
	"0.00005",
	"0.0001",
	"0.00025",
	"0.0005",
	"0.001",
	"0.005",
	"0.025",
	"+Inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling missing
// buckets and dropping extras.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the running totals both
// exposition formats expect.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
