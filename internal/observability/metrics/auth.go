package metrics

import (
	apperrors "github.com/target/aad-connect/internal/errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Result constants for metric labels.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Recorder emits authentication metrics to Prometheus.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	logins        *prometheus.CounterVec
	graphRequests *prometheus.CounterVec
	roleChanges   *prometheus.CounterVec
	logouts       *prometheus.CounterVec
}

// NewRecorder creates the collectors and registers them with reg.
// A nil reg leaves the collectors unregistered.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aad_login_total",
			Help: "Completed Azure AD login attempts",
		}, []string{"result", "error_code"}),
		graphRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aad_graph_requests_total",
			Help: "HTTP calls to Microsoft Graph and the Azure AD token endpoint",
		}, []string{"endpoint", "result"}),
		roleChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aad_role_changes_total",
			Help: "Role additions and removals applied from group mapping",
		}, []string{"op", "result"}),
		logouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aad_logout_total",
			Help: "Logout requests by direction and outcome",
		}, []string{"direction", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(r.logins, r.graphRequests, r.roleChanges, r.logouts)
	}
	return r
}

// Login records a login outcome, tagging failures with their error code.
func (r *Recorder) Login(err error) {
	if r == nil {
		return
	}
	if err == nil {
		r.logins.WithLabelValues(ResultSuccess, "").Inc()
		return
	}
	code := string(apperrors.GetCode(err))
	if code == "" {
		code = "unknown"
	}
	r.logins.WithLabelValues(ResultError, code).Inc()
}

// GraphRequest records one outbound HTTP call.
func (r *Recorder) GraphRequest(endpoint string, err error) {
	if r == nil {
		return
	}
	r.graphRequests.WithLabelValues(endpoint, result(err)).Inc()
}

// RoleChange records a single role add ("add") or remove ("remove").
func (r *Recorder) RoleChange(op string, err error) {
	if r == nil {
		return
	}
	r.roleChanges.WithLabelValues(op, result(err)).Inc()
}

// Logout records a logout by direction ("inbound"/"outbound") and outcome.
func (r *Recorder) Logout(direction, outcome string) {
	if r == nil {
		return
	}
	r.logouts.WithLabelValues(direction, outcome).Inc()
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}
