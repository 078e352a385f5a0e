package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"whop_checkout_echo/internal/logging"
	"whop_checkout_echo/internal/models"
)

const (
	historyStatusSuccess         = "success"
	historyStatusFailure         = "failure"
	historyStatusHandlerNotFound = "handler_not_found"

	defaultRetryDelay = 5 * time.Minute
)

// TaskStore loads due tasks and persists the outcome of each run
type TaskStore interface {
	DueTasks(ctx context.Context, now time.Time) ([]models.ScheduledTask, error)
	SaveRun(ctx context.Context, task *models.ScheduledTask, history *models.ScheduledTaskHistory) error
}

// GormTaskStore implements TaskStore on the scheduled_tasks tables
type GormTaskStore struct {
	db *gorm.DB
}

func NewGormTaskStore(db *gorm.DB) *GormTaskStore {
	return &GormTaskStore{db: db}
}

func (s *GormTaskStore) DueTasks(ctx context.Context, now time.Time) ([]models.ScheduledTask, error) {
	var due []models.ScheduledTask
	err := s.db.WithContext(ctx).
		Where("status = ? AND due <= ?", models.ScheduledTaskStatusActive, now).
		Order("due asc").
		Find(&due).Error
	return due, err
}

// SaveRun writes the history row and the task's new state together
func (s *GormTaskStore) SaveRun(ctx context.Context, task *models.ScheduledTask, history *models.ScheduledTaskHistory) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(history).Error; err != nil {
			return err
		}
		return tx.Model(task).Updates(map[string]interface{}{
			"status":   task.Status,
			"due":      task.Due,
			"last_run": task.LastRun,
			"attempts": task.Attempts,
		}).Error
	})
}

// Runner executes due tasks through a Registry
type Runner struct {
	store      TaskStore
	registry   *Registry
	now        func() time.Time
	retryDelay time.Duration
	log        *logrus.Entry
}

func NewRunner(store TaskStore, registry *Registry) *Runner {
	return &Runner{
		store:      store,
		registry:   registry,
		now:        time.Now,
		retryDelay: defaultRetryDelay,
		log:        logging.Component(nil, "worker"),
	}
}

// ProcessDue runs every active task whose due time has passed and returns how many ran
func (r *Runner) ProcessDue(ctx context.Context) (int, error) {
	due, err := r.store.DueTasks(ctx, r.now())
	if err != nil {
		return 0, fmt.Errorf("load due tasks: %w", err)
	}
	if len(due) == 0 {
		r.log.Debug("No pending tasks found")
		return 0, nil
	}
	r.log.WithField("count", len(due)).Info("Processing due tasks")

	ran := 0
	for i := range due {
		if ctx.Err() != nil {
			return ran, ctx.Err()
		}
		r.execute(ctx, &due[i])
		ran++
	}
	return ran, nil
}

func (r *Runner) execute(ctx context.Context, task *models.ScheduledTask) {
	log := r.log.WithFields(logrus.Fields{"task": task.TaskName, "task_id": task.ID})

	startTime := r.now()
	attempt := task.Attempts + 1
	task.LastRun = &startTime
	task.Attempts = attempt

	history := &models.ScheduledTaskHistory{
		ScheduledTaskID: task.ID,
		TaskName:        task.TaskName,
		RunAt:           startTime,
		AttemptNumber:   attempt,
		Arguments:       task.Arguments,
	}

	handler, found := r.registry.Get(task.TaskName)
	if !found {
		log.Warn("Task handler not found, marking as failure")
		task.Status = models.ScheduledTaskStatusFailure
		history.Status = historyStatusHandlerNotFound
		history.Result = map[string]interface{}{"error": "Handler not found"}
		r.save(ctx, log, task, history)
		return
	}

	result, err := runHandler(ctx, handler, *task)
	history.Runtime = int(r.now().Sub(startTime).Milliseconds())

	if err != nil {
		history.Status = historyStatusFailure
		history.Result = map[string]interface{}{"error": err.Error()}

		maxAttempt := task.MaxAttempt
		if maxAttempt < 1 {
			maxAttempt = 1
		}
		if attempt < maxAttempt {
			task.Due = startTime.Add(r.retryDelay)
			log.WithError(err).WithField("attempt", attempt).Warn("Task failed, retry scheduled")
		} else {
			task.Status = models.ScheduledTaskStatusFailure
			log.WithError(err).WithField("attempt", attempt).Error("Task failed, max attempts reached")
		}
		r.save(ctx, log, task, history)
		return
	}

	history.Status = historyStatusSuccess
	history.Result = result

	switch task.TaskType {
	case models.ScheduledTaskTypeRecurring:
		next := task.NextDue(startTime)
		// only a future occurrence keeps the task alive
		if next.After(startTime) {
			task.Due = next
			task.Attempts = 0
		} else {
			task.Status = models.ScheduledTaskStatusDone
		}
	default:
		task.Status = models.ScheduledTaskStatusDone
	}

	log.Info("Task completed")
	r.save(ctx, log, task, history)
}

func (r *Runner) save(ctx context.Context, log *logrus.Entry, task *models.ScheduledTask, history *models.ScheduledTaskHistory) {
	if err := r.store.SaveRun(ctx, task, history); err != nil {
		log.WithError(err).Error("Failed to persist task run")
	}
}

// runHandler converts a handler panic into an error
func runHandler(ctx context.Context, handler TaskHandler, task models.ScheduledTask) (result map[string]interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task panicked: %v", p)
		}
	}()
	return handler(ctx, task)
}
