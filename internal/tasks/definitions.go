package tasks

import (
	"whop_checkout_echo/internal/services"
)

// Dependencies are the collaborators task handlers need
type Dependencies struct {
	Orders     services.OrderStore
	Sessions   services.SessionStore
	Reconciler *services.Reconciler
	Mailer     services.Mailer
}

// DefineTasks registers all available tasks
func DefineTasks(reg *Registry, deps Dependencies) {
	reg.RegisterTask(LogInfoTask)
	reg.RegisterTask(NewSendPaymentLinkTask(deps.Orders, deps.Reconciler, deps.Mailer))
	reg.RegisterTask(NewStaleSessionReportTask(deps.Sessions))
}
