package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whop_checkout_echo/internal/models"
	"whop_checkout_echo/internal/services"
)

var runAt = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestRunner(store *services.MemoryStore, reg *Registry) *Runner {
	r := NewRunner(store, reg)
	r.now = func() time.Time { return runAt }
	return r
}

func scheduleTask(t *testing.T, store *services.MemoryStore, task *models.ScheduledTask) {
	t.Helper()
	require.NoError(t, store.Schedule(context.Background(), task))
}

func TestRunner_OneTimeSuccess(t *testing.T) {
	store := services.NewMemoryStore()
	reg := NewRegistry()
	reg.RegisterTask(LogInfoTask)

	task, err := BuildScheduledTask("log_info", map[string]string{"message": "hello"}, runAt.Add(-time.Minute), nil, models.ScheduledTaskTypeOneTime, 1)
	require.NoError(t, err)
	scheduleTask(t, store, task)

	ran, err := newTestRunner(store, reg).ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, ran)

	tasks := store.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, models.ScheduledTaskStatusDone, tasks[0].Status)
	require.NotNil(t, tasks[0].LastRun)

	history := store.TaskHistory()
	require.Len(t, history, 1)
	assert.Equal(t, "success", history[0].Status)
	assert.Equal(t, "hello", history[0].Result["message"])
}

func TestRunner_FutureTaskNotRun(t *testing.T) {
	store := services.NewMemoryStore()
	reg := NewRegistry()
	reg.RegisterTask(LogInfoTask)

	task, _ := BuildScheduledTask("log_info", nil, runAt.Add(time.Hour), nil, models.ScheduledTaskTypeOneTime, 1)
	scheduleTask(t, store, task)

	ran, err := newTestRunner(store, reg).ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, ran)
	assert.Equal(t, models.ScheduledTaskStatusActive, store.Tasks()[0].Status)
}

func TestRunner_RetriesUntilMaxAttempts(t *testing.T) {
	store := services.NewMemoryStore()
	reg := NewRegistry()
	calls := 0
	reg.Register("flaky", func(ctx context.Context, task models.ScheduledTask) (map[string]interface{}, error) {
		calls++
		return nil, errors.New("smtp down")
	})

	task, _ := BuildScheduledTask("flaky", nil, runAt, nil, models.ScheduledTaskTypeOneTime, 3)
	scheduleTask(t, store, task)

	r := newTestRunner(store, reg)
	now := runAt
	r.now = func() time.Time { return now }
	for i := 0; i < 3; i++ {
		_, err := r.ProcessDue(context.Background())
		require.NoError(t, err)

		current := store.Tasks()[0]
		if i < 2 {
			assert.Equal(t, models.ScheduledTaskStatusActive, current.Status)
			assert.Equal(t, now.Add(5*time.Minute), current.Due)
			now = current.Due
		}
	}

	assert.Equal(t, 3, calls)
	final := store.Tasks()[0]
	assert.Equal(t, models.ScheduledTaskStatusFailure, final.Status)
	assert.Equal(t, 3, final.Attempts)

	history := store.TaskHistory()
	require.Len(t, history, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{history[0].AttemptNumber, history[1].AttemptNumber, history[2].AttemptNumber})
	assert.Equal(t, "smtp down", history[2].Result["error"])
}

func TestRunner_RecurringAdvances(t *testing.T) {
	store := services.NewMemoryStore()
	reg := NewRegistry()
	reg.RegisterTask(LogInfoTask)

	rule := "FREQ=DAILY"
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	task, _ := BuildScheduledTask("log_info", nil, start, &rule, models.ScheduledTaskTypeRecurring, 1)
	scheduleTask(t, store, task)

	_, err := newTestRunner(store, reg).ProcessDue(context.Background())
	require.NoError(t, err)

	current := store.Tasks()[0]
	assert.Equal(t, models.ScheduledTaskStatusActive, current.Status)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), current.Due)
}

func TestRunner_RecurringWithoutFutureOccurrenceIsDone(t *testing.T) {
	store := services.NewMemoryStore()
	reg := NewRegistry()
	reg.RegisterTask(LogInfoTask)

	rule := "FREQ=DAILY;COUNT=1"
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	task, _ := BuildScheduledTask("log_info", nil, start, &rule, models.ScheduledTaskTypeRecurring, 1)
	scheduleTask(t, store, task)

	_, err := newTestRunner(store, reg).ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.ScheduledTaskStatusDone, store.Tasks()[0].Status)
}

func TestRunner_UnknownHandler(t *testing.T) {
	store := services.NewMemoryStore()
	task, _ := BuildScheduledTask("does_not_exist", nil, runAt, nil, models.ScheduledTaskTypeOneTime, 3)
	scheduleTask(t, store, task)

	_, err := newTestRunner(store, NewRegistry()).ProcessDue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.ScheduledTaskStatusFailure, store.Tasks()[0].Status)
	history := store.TaskHistory()
	require.Len(t, history, 1)
	assert.Equal(t, "handler_not_found", history[0].Status)
}

func TestRunner_PanicBecomesFailure(t *testing.T) {
	store := services.NewMemoryStore()
	reg := NewRegistry()
	reg.Register("boom", func(ctx context.Context, task models.ScheduledTask) (map[string]interface{}, error) {
		panic("nil map")
	})
	task, _ := BuildScheduledTask("boom", nil, runAt, nil, models.ScheduledTaskTypeOneTime, 1)
	scheduleTask(t, store, task)

	_, err := newTestRunner(store, reg).ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.ScheduledTaskStatusFailure, store.Tasks()[0].Status)
	assert.Contains(t, store.TaskHistory()[0].Result["error"], "task panicked")
}
