package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/teambition/rrule-go"

	"whop_checkout_echo/internal/models"
	"whop_checkout_echo/internal/tasks"
)

func scheduleTaskCmd() *cobra.Command {
	var (
		taskName   string
		argsStr    string
		dueStr     string
		taskType   string
		recurring  string
		maxAttempt int
	)

	cmd := &cobra.Command{
		Use:   "schedule-task",
		Short: "Queue a task for the worker",
		Example: `  whopctl schedule-task --task-name log_info --arguments '{"message":"hi"}' --due "2026-03-01 09:00"
  whopctl schedule-task --task-name stale_session_report --due "2026-03-01 06:00" --tasktype recurring --recurring "FREQ=DAILY"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if taskName == "" {
				return fmt.Errorf("--task-name is required")
			}

			var taskArgs map[string]interface{}
			if err := json.Unmarshal([]byte(argsStr), &taskArgs); err != nil {
				return fmt.Errorf("invalid JSON arguments: %w", err)
			}

			due, err := parseDue(dueStr)
			if err != nil {
				return err
			}

			var recurringPtr *string
			switch models.ScheduledTaskType(taskType) {
			case models.ScheduledTaskTypeOneTime:
			case models.ScheduledTaskTypeRecurring:
				if recurring == "" {
					return fmt.Errorf("--recurring is required for recurring tasks")
				}
				if _, err := rrule.StrToRRule(recurring); err != nil {
					return fmt.Errorf("invalid recurrence rule: %w", err)
				}
				recurringPtr = &recurring
			default:
				return fmt.Errorf("unknown task type %q", taskType)
			}

			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if _, ok := a.Registry.Get(taskName); !ok {
				a.Log.WithField("task", taskName).Warn("No handler registered for this task name, the worker will mark it as failed")
			}

			task, err := tasks.BuildScheduledTask(taskName, taskArgs, due, recurringPtr, models.ScheduledTaskType(taskType), maxAttempt)
			if err != nil {
				return err
			}
			if err := a.Scheduler.Schedule(cmd.Context(), task); err != nil {
				return fmt.Errorf("failed to create task: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Successfully created task ID: %d\n", task.ID)
			fmt.Fprintf(out, "Task: %s\nDue: %s\nType: %s\n", task.TaskName, task.Due.Format(time.RFC3339), task.TaskType)
			return nil
		},
	}

	cmd.Flags().StringVar(&taskName, "task-name", "", "Name of the task (required)")
	cmd.Flags().StringVar(&argsStr, "arguments", "{}", "JSON arguments for the task")
	cmd.Flags().StringVar(&dueStr, "due", "", "Due date, '2006-01-02 15:04' (local) or RFC3339; defaults to now")
	cmd.Flags().StringVar(&taskType, "tasktype", string(models.ScheduledTaskTypeOneTime), "Task type: onetime or recurring")
	cmd.Flags().StringVar(&recurring, "recurring", "", "RFC 5545 recurrence rule, e.g. FREQ=DAILY")
	cmd.Flags().IntVar(&maxAttempt, "max-attempt", 3, "Max attempts")
	return cmd
}

func parseDue(s string) (time.Time, error) {
	if s == "" {
		return time.Now(), nil
	}
	if due, err := time.Parse(time.RFC3339, s); err == nil {
		return due, nil
	}
	due, err := time.ParseInLocation("2006-01-02 15:04", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid due date, use '2006-01-02 15:04' (local) or RFC3339: %w", err)
	}
	return due, nil
}
