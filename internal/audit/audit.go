// Package audit records audit-log entries and vendor activity. Both are
// side records: callers use Recorder, which never fails the caller.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"certification-workers/internal/common/logger"
	"certification-workers/internal/common/metrics"
	"certification-workers/internal/models"
)

type Sink interface {
	Record(ctx context.Context, entry models.AuditEntry) error
}

type ActivitySink interface {
	RecordActivity(ctx context.Context, activity models.VendorActivity) error
}

// PostgresSink writes to the audit_log and vendor_activities tables.
type PostgresSink struct {
	db *sql.DB
}

func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Record(ctx context.Context, entry models.AuditEntry) error {
	metadata, err := marshalMetadata(entry.Metadata)
	if err != nil {
		return err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Severity == "" {
		entry.Severity = models.SeverityInfo
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (actor, actor_id, role, action, entity_type, entity_id, details, severity, ip_address, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.Actor, entry.ActorID, entry.Role, entry.Action, entry.EntityType, entry.EntityID,
		entry.Details, entry.Severity, entry.IPAddress, metadata, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *PostgresSink) RecordActivity(ctx context.Context, activity models.VendorActivity) error {
	metadata, err := marshalMetadata(activity.Metadata)
	if err != nil {
		return err
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO vendor_activities (vendor_id, activity_type, description, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		activity.VendorID, activity.ActivityType, activity.Description, metadata, activity.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert vendor activity: %w", err)
	}
	return nil
}

func marshalMetadata(m map[string]interface{}) ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return data, nil
}

// Recorder writes audit and activity records on a best-effort basis.
// Failures are logged and counted, never returned.
type Recorder struct {
	audit    Sink
	activity ActivitySink
	logger   logger.Logger
}

func NewRecorder(audit Sink, activity ActivitySink, log logger.Logger) *Recorder {
	return &Recorder{audit: audit, activity: activity, logger: log}
}

func (r *Recorder) Audit(ctx context.Context, entry models.AuditEntry) {
	if r == nil || r.audit == nil {
		return
	}
	if err := r.audit.Record(ctx, entry); err != nil {
		metrics.SecondaryFailures.WithLabelValues("audit").Inc()
		r.logger.Warn("audit entry not recorded", map[string]interface{}{
			"action":   entry.Action,
			"entityId": entry.EntityID,
			"error":    err,
		})
	}
}

func (r *Recorder) Activity(ctx context.Context, activity models.VendorActivity) {
	if r == nil || r.activity == nil {
		return
	}
	if err := r.activity.RecordActivity(ctx, activity); err != nil {
		metrics.SecondaryFailures.WithLabelValues("activity").Inc()
		r.logger.Warn("vendor activity not recorded", map[string]interface{}{
			"activityType": activity.ActivityType,
			"vendorId":     activity.VendorID,
			"error":        err,
		})
	}
}

// MemorySink keeps records in memory. Used by tests and local runs.
type MemorySink struct {
	mu         sync.Mutex
	Entries    []models.AuditEntry
	Activities []models.VendorActivity
	Err        error
}

func (m *MemorySink) Record(_ context.Context, entry models.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Entries = append(m.Entries, entry)
	return nil
}

func (m *MemorySink) RecordActivity(_ context.Context, activity models.VendorActivity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Activities = append(m.Activities, activity)
	return nil
}
