package tasks

import (
	"context"

	"whop_checkout_echo/internal/logging"
	"whop_checkout_echo/internal/models"
)

// LogInfoTaskDef writes its message argument to the log
type LogInfoTaskDef struct{}

func (t *LogInfoTaskDef) TaskID() string {
	return "log_info"
}

func (t *LogInfoTaskDef) HandleExecution(ctx context.Context, task models.ScheduledTask) (map[string]interface{}, error) {
	message, ok := task.Arguments["message"].(string)
	if !ok {
		message = "No message provided"
	}
	logging.Component(nil, "task").WithField("task", t.TaskID()).Info(message)

	return map[string]interface{}{
		"status":  "success",
		"message": message,
	}, nil
}

var LogInfoTask = &LogInfoTaskDef{}
