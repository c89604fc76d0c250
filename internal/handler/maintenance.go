package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ecopower/ecopower/internal/apperror"
	"github.com/ecopower/ecopower/internal/sweep"
)

// MaintenanceHandler exposes the scheduled sweeps for manual invocation.
type MaintenanceHandler struct {
	runner *sweep.Runner
	logger *slog.Logger
}

func NewMaintenanceHandler(runner *sweep.Runner, logger *slog.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{runner: runner, logger: logger}
}

// Run handles POST /api/admin/maintenance/{task}. Each sweep is idempotent,
// so re-running a task that the scheduler already covered is harmless.
func (h *MaintenanceHandler) Run(w http.ResponseWriter, r *http.Request) {
	task := r.PathValue("task")

	run, ok := h.taskFunc(task)
	if !ok {
		writeError(w, h.logger, apperror.NotFound("maintenance task "+task))
		return
	}

	started := time.Now()
	if err := run(r.Context(), started); err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.logger.Info("maintenance task ran", "task", task, "duration", time.Since(started))
	writeJSON(w, http.StatusOK, map[string]string{
		"task":     task,
		"status":   "completed",
		"duration": time.Since(started).String(),
	})
}

func (h *MaintenanceHandler) taskFunc(task string) (func(context.Context, time.Time) error, bool) {
	switch task {
	case "expire-subscriptions":
		return h.runner.ExpireSubscriptions, true
	case "mark-overdue":
		return h.runner.MarkOverdueInvoices, true
	case "expiry-warnings":
		return h.runner.WarnExpiringSubscriptions, true
	case "overdue-reminders":
		return h.runner.RemindOverdueInvoices, true
	case "cleanup-messages":
		return h.runner.CleanupMessages, true
	case "all":
		return h.runner.RunAll, true
	}
	return nil, false
}
