package tasks

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"whop_checkout_echo/internal/logging"
	"whop_checkout_echo/internal/models"
	"whop_checkout_echo/internal/services"
)

const defaultStaleAfterHours = 24

// StaleSessionReportArgs are the arguments of stale_session_report
type StaleSessionReportArgs struct {
	OlderThanHours float64 `json:"older_than_hours"`
}

// StaleSessionReportTaskDef logs payment sessions still pending after a while.
// Whop plans behind them are left in place.
type StaleSessionReportTaskDef struct {
	sessions services.SessionStore
	now      func() time.Time
}

func NewStaleSessionReportTask(sessions services.SessionStore) *StaleSessionReportTaskDef {
	return &StaleSessionReportTaskDef{sessions: sessions, now: time.Now}
}

func (t *StaleSessionReportTaskDef) TaskID() string {
	return "stale_session_report"
}

// CreateTask builds the recurring report; rule is an RFC 5545 RRULE such as "FREQ=DAILY"
func (t *StaleSessionReportTaskDef) CreateTask(args StaleSessionReportArgs, start time.Time, rule string) (*models.ScheduledTask, error) {
	return BuildScheduledTask(t.TaskID(), args, start, &rule, models.ScheduledTaskTypeRecurring, 1)
}

func (t *StaleSessionReportTaskDef) HandleExecution(ctx context.Context, task models.ScheduledTask) (map[string]interface{}, error) {
	var args StaleSessionReportArgs
	if err := decodeArgs(task.Arguments, &args); err != nil {
		return nil, err
	}
	if args.OlderThanHours <= 0 {
		args.OlderThanHours = defaultStaleAfterHours
	}

	cutoff := t.now().Add(-time.Duration(args.OlderThanHours * float64(time.Hour)))
	sessions, err := t.sessions.ListPendingSessions(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	log := logging.Component(nil, "task").WithField("task", t.TaskID())
	orderIDs := make([]uint, 0, len(sessions))
	for _, s := range sessions {
		orderIDs = append(orderIDs, s.OrderID)
		log.WithFields(logrus.Fields{
			"order_id":   s.OrderID,
			"plan_id":    s.PlanID,
			"created_at": s.CreatedAt,
		}).Warn("Payment session still pending")
	}

	return map[string]interface{}{
		"status":    "success",
		"count":     len(sessions),
		"order_ids": orderIDs,
		"cutoff":    cutoff.Format(time.RFC3339),
	}, nil
}
