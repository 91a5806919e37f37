// Package sla moves applications that sat too long in one stage to
// sla_breach.
package sla

import (
	"context"
	"fmt"
	"sort"
	"time"

	"certification-workers/internal/application"
	"certification-workers/internal/common/errors"
	"certification-workers/internal/common/logger"
	"certification-workers/internal/common/metrics"
	"certification-workers/internal/models"
	"certification-workers/internal/notification"
	"certification-workers/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("certification-workers/sla")

// Settings supplies the number of days an application may stay in a
// status. Statuses without an entry are never breached.
type Settings interface {
	Thresholds(ctx context.Context) (map[models.ApplicationStatus]int, error)
}

// StaticSettings serves thresholds loaded from configuration.
type StaticSettings map[string]int

func (s StaticSettings) Thresholds(context.Context) (map[models.ApplicationStatus]int, error) {
	out := make(map[models.ApplicationStatus]int, len(s))
	for status, days := range s {
		st := models.ApplicationStatus(status)
		if !st.Valid() {
			return nil, fmt.Errorf("sla threshold for unknown status %q", status)
		}
		out[st] = days
	}
	return out, nil
}

type Report struct {
	Evaluated int
	Breached  []string
}

type Evaluator struct {
	apps     store.ApplicationStore
	machine  *application.StateMachine
	settings Settings
	notifier *notification.Service
	logger   logger.Logger
}

// NewEvaluator builds an Evaluator. notifier may be nil.
func NewEvaluator(apps store.ApplicationStore, machine *application.StateMachine, settings Settings, notifier *notification.Service, log logger.Logger) *Evaluator {
	return &Evaluator{
		apps:     apps,
		machine:  machine,
		settings: settings,
		notifier: notifier,
		logger:   log.WithFields(map[string]interface{}{"component": "sla-evaluator"}),
	}
}

// Evaluate breaches every open application whose last status change is
// older than its stage threshold at now. A failure on one application is
// logged and the run continues.
func (e *Evaluator) Evaluate(ctx context.Context, now time.Time) (*Report, error) {
	ctx, span := tracer.Start(ctx, "sla.Evaluate")
	defer span.End()

	thresholds, err := e.settings.Thresholds(ctx)
	if err != nil {
		return nil, errors.NewValidationError(err.Error())
	}
	apps, err := e.apps.ListOpenApplications(ctx)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("list open applications", err)
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].CreatedAt.Before(apps[j].CreatedAt) })

	report := &Report{Breached: []string{}}
	for _, app := range apps {
		if err := ctx.Err(); err != nil {
			return report, errors.NewTimeoutError("sla evaluation", err)
		}
		days, ok := thresholds[app.CurrentStatus]
		if !ok || !application.CanTransition(app.CurrentStatus, models.StatusSLABreach) {
			continue
		}
		report.Evaluated++

		since := app.LastEntry().Timestamp
		limit := time.Duration(days) * 24 * time.Hour
		if now.Sub(since) <= limit {
			continue
		}

		_, err := e.machine.Transition(ctx, application.TransitionRequest{
			ApplicationID: app.ID,
			NewStatus:     models.StatusSLABreach,
			Notes:         fmt.Sprintf("No progress in %s for more than %d days", app.CurrentStatus, days),
			Actor:         models.SystemActor,
		})
		if err != nil {
			e.logger.Warn("sla breach not recorded", map[string]interface{}{
				"applicationId": app.Number,
				"status":        app.CurrentStatus,
				"error":         err,
			})
			continue
		}

		metrics.SLABreaches.Inc()
		report.Breached = append(report.Breached, app.ID)
		e.notify(ctx, app, days)
	}

	span.SetAttributes(attribute.Int("sla.breached", len(report.Breached)))
	e.logger.Info("sla evaluation finished", map[string]interface{}{
		"evaluated": report.Evaluated,
		"breached":  len(report.Breached),
	})
	return report, nil
}

func (e *Evaluator) notify(ctx context.Context, app *models.Application, days int) {
	if e.notifier == nil {
		return
	}
	_, err := e.notifier.FanOut(ctx, notification.Event{
		Type:          notification.TypeSLABreach,
		Title:         "Application SLA breached",
		Message:       fmt.Sprintf("Application %s has been in %s for more than %d days.", app.Number, app.CurrentStatus, days),
		ApplicationID: app.ID,
		Reference:     app.ID,
		AdminPriority: models.PriorityHigh,
	})
	if err != nil {
		metrics.SecondaryFailures.WithLabelValues("notification").Inc()
		e.logger.Warn("sla notification incomplete", map[string]interface{}{
			"applicationId": app.Number,
			"error":         err,
		})
	}
}
