package internaldefs

import (
	gatekit "github.com/0xlenz/gatekit"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   gatekit.MetricID
	Name string
	Help string
}

// CounterDefs is the canonical export table shared by every exporter
// backend, so Prometheus and OTel surfaces never drift apart.
var CounterDefs = []CounterDef{
	{ID: gatekit.MetricRecoveryRequest, Name: "gatekit_recovery_request_total", Help: "Accepted password recovery requests."},
	{ID: gatekit.MetricRecoveryRequestDenied, Name: "gatekit_recovery_request_denied_total", Help: "Recovery requests denied by rate limiting."},
	{ID: gatekit.MetricRecoveryVerifySuccess, Name: "gatekit_recovery_verify_success_total", Help: "Successful recovery code verifications."},
	{ID: gatekit.MetricRecoveryVerifyFailure, Name: "gatekit_recovery_verify_failure_total", Help: "Failed recovery code verifications."},
	{ID: gatekit.MetricRecoveryConfirmSuccess, Name: "gatekit_recovery_confirm_success_total", Help: "Successful password reset confirmations."},
	{ID: gatekit.MetricRecoveryConfirmFailure, Name: "gatekit_recovery_confirm_failure_total", Help: "Failed password reset confirmations."},
	{ID: gatekit.MetricRateLimitHit, Name: "gatekit_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
	{ID: gatekit.MetricIPBlocked, Name: "gatekit_ip_blocked_total", Help: "Requests rejected by the IP blocklist."},
	{ID: gatekit.MetricOTPExhausted, Name: "gatekit_otp_exhausted_total", Help: "Challenges invalidated by attempt exhaustion."},
	{ID: gatekit.MetricTokenIssued, Name: "gatekit_token_issued_total", Help: "Signed token issuances."},
	{ID: gatekit.MetricTokenRejected, Name: "gatekit_token_rejected_total", Help: "Signed tokens rejected at verification."},
	{ID: gatekit.MetricStoreError, Name: "gatekit_store_error_total", Help: "Backing store failures observed by the engine."},
}

// AuditDroppedName names the dispatcher backpressure counter.
const AuditDroppedName = "gatekit_audit_dropped_total"

// AuditDroppedHelp describes it.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
