// Package metrics exposes operational counters for the coordination flows.
// The collector is fed from the event bus, so business services stay free of
// metrics plumbing.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"cleanops_backend/internal/events"
)

// Collector holds the prometheus counters for domain activity.
type Collector struct {
	tasksAssigned      *prometheus.CounterVec
	tasksConfirmed     prometheus.Counter
	tasksCompleted     prometheus.Counter
	noShowsDetected    *prometheus.CounterVec
	escalationSteps    *prometheus.CounterVec
	bookingsReconciled *prometheus.CounterVec
}

// New registers the counters with the given registerer.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		tasksAssigned: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cleanops_tasks_assigned_total",
			Help: "Cleaner assignments, by source (primary or backup).",
		}, []string{"source"}),
		tasksConfirmed: factory.NewCounter(prometheus.CounterOpts{
			Name: "cleanops_tasks_confirmed_total",
			Help: "Cleaner confirmations.",
		}),
		tasksCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "cleanops_tasks_completed_total",
			Help: "Completed cleanings.",
		}),
		noShowsDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cleanops_noshows_detected_total",
			Help: "No-shows flagged by the sweep, by whether a backup took over.",
		}, []string{"backup_assigned"}),
		escalationSteps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cleanops_escalation_steps_total",
			Help: "Escalation ladder steps executed, by step and outcome.",
		}, []string{"step", "success"}),
		bookingsReconciled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cleanops_bookings_reconciled_total",
			Help: "Booking events reconciled, by resulting action.",
		}, []string{"action"}),
	}
}

// Register subscribes the collector to the domain events it counts.
func (c *Collector) Register(bus events.Bus) {
	bus.Subscribe("tasks.assigned", events.HandlerFunc(func(_ context.Context, event events.Event) error {
		if e, ok := event.(events.TaskAssigned); ok {
			c.tasksAssigned.WithLabelValues(e.Source).Inc()
		}
		return nil
	}))
	bus.Subscribe("tasks.confirmed", events.HandlerFunc(func(_ context.Context, _ events.Event) error {
		c.tasksConfirmed.Inc()
		return nil
	}))
	bus.Subscribe("tasks.completed", events.HandlerFunc(func(_ context.Context, _ events.Event) error {
		c.tasksCompleted.Inc()
		return nil
	}))
	bus.Subscribe("sweeps.noshow.detected", events.HandlerFunc(func(_ context.Context, event events.Event) error {
		if e, ok := event.(events.NoShowDetected); ok {
			c.noShowsDetected.WithLabelValues(boolLabel(e.BackupAssigned)).Inc()
		}
		return nil
	}))
	bus.Subscribe("sweeps.ladder.step_fired", events.HandlerFunc(func(_ context.Context, event events.Event) error {
		if e, ok := event.(events.EscalationStepFired); ok {
			c.escalationSteps.WithLabelValues(e.Step, boolLabel(e.Success)).Inc()
		}
		return nil
	}))
	bus.Subscribe("bookings.reconciled", events.HandlerFunc(func(_ context.Context, event events.Event) error {
		if e, ok := event.(events.BookingReconciled); ok {
			c.bookingsReconciled.WithLabelValues(e.Action).Inc()
		}
		return nil
	}))
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
