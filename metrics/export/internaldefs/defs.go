package internaldefs

import (
	usermgmt "github.com/mcmanusbob/user-management-service"
)

// CounterDef maps one engine counter to its exposition name.
type CounterDef struct {
	ID   usermgmt.MetricID
	Name string
	Help string
}

// HistogramDef maps one engine histogram to its exposition name.
type HistogramDef struct {
	ID   usermgmt.MetricID
	Name string
	Help string
}

// CounterDefs is the shared counter table consumed by every exporter.
var CounterDefs = []CounterDef{
	{ID: usermgmt.MetricRegisterSuccess, Name: "usermgmt_register_success_total", Help: "Successful registrations."},
	{ID: usermgmt.MetricRegisterDuplicate, Name: "usermgmt_register_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: usermgmt.MetricLoginSuccess, Name: "usermgmt_login_success_total", Help: "Successful login attempts."},
	{ID: usermgmt.MetricLoginFailure, Name: "usermgmt_login_failure_total", Help: "Failed login attempts."},
	{ID: usermgmt.MetricLoginLocked, Name: "usermgmt_login_locked_total", Help: "Login attempts against locked accounts."},
	{ID: usermgmt.MetricRefreshSuccess, Name: "usermgmt_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: usermgmt.MetricRefreshFailure, Name: "usermgmt_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: usermgmt.MetricRefreshReplayDetected, Name: "usermgmt_refresh_replay_detected_total", Help: "Refresh tokens presented after rotation or revocation."},
	{ID: usermgmt.MetricLogout, Name: "usermgmt_logout_total", Help: "Single-session logout operations."},
	{ID: usermgmt.MetricLogoutAll, Name: "usermgmt_logout_all_total", Help: "Logout-all operations."},
	{ID: usermgmt.MetricPasswordChangeSuccess, Name: "usermgmt_password_change_success_total", Help: "Successful password changes."},
	{ID: usermgmt.MetricPasswordChangeFailure, Name: "usermgmt_password_change_failure_total", Help: "Rejected password change attempts."},
	{ID: usermgmt.MetricPasswordResetRequest, Name: "usermgmt_password_reset_request_total", Help: "Password reset requests for known accounts."},
	{ID: usermgmt.MetricPasswordResetSuccess, Name: "usermgmt_password_reset_success_total", Help: "Successful password reset confirmations."},
	{ID: usermgmt.MetricPasswordResetFailure, Name: "usermgmt_password_reset_failure_total", Help: "Failed password reset confirmations."},
	{ID: usermgmt.MetricEmailVerificationRequest, Name: "usermgmt_email_verification_request_total", Help: "Email verification token issuances."},
	{ID: usermgmt.MetricEmailVerificationSuccess, Name: "usermgmt_email_verification_success_total", Help: "Successful email verifications."},
	{ID: usermgmt.MetricEmailVerificationFailure, Name: "usermgmt_email_verification_failure_total", Help: "Failed email verifications."},
	{ID: usermgmt.MetricAccountDeactivated, Name: "usermgmt_account_deactivated_total", Help: "Account deactivations."},
}

// HistogramDefs is the shared histogram table consumed by every exporter.
var HistogramDefs = []HistogramDef{
	{ID: usermgmt.MetricValidateLatency, Name: "usermgmt_validate_latency_seconds", Help: "ValidateAccess latency histogram."},
}

// HistogramBounds are the upper bucket bounds in seconds, matching the
// engine's fixed bucket layout.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix gives each bound a name-safe suffix for
// exporters that flatten buckets into per-bucket series.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form
// expected by the prometheus exposition format.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
