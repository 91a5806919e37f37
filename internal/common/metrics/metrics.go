// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)
)

// Lifecycle metrics.
var (
	LifecycleTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_application_transitions_total",
			Help: "Committed application status transitions",
		},
		[]string{"from", "to"},
	)

	LifecycleTransitionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_application_transitions_rejected_total",
			Help: "Transitions refused by the state machine",
		},
		[]string{"from", "to"},
	)

	PaymentDispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_payment_dispatches_total",
			Help: "Payment outcome dispatches by purpose and result",
		},
		[]string{"purpose", "result"},
	)

	CertificatesIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lifecycle_certificates_issued_total",
			Help: "Certificates persisted",
		},
	)

	CertificateIDCollisions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lifecycle_certificate_id_collisions_total",
			Help: "Generated certificate numbers that were already taken",
		},
	)

	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_notifications_created_total",
			Help: "Notification records created",
		},
		[]string{"audience", "priority"},
	)

	NotificationDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_notification_deliveries_total",
			Help: "Outbound e-mail and SMS deliveries",
		},
		[]string{"channel", "result"},
	)

	SecondaryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_secondary_failures_total",
			Help: "Best-effort side effects that failed and were skipped",
		},
		[]string{"action"},
	)

	ExpirySweepFlagged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_expiry_flagged_total",
			Help: "Certificates and documents flagged by the expiry sweep",
		},
		[]string{"kind", "state"},
	)

	SLABreaches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lifecycle_sla_breaches_total",
			Help: "Applications moved to sla_breach",
		},
	)
)
