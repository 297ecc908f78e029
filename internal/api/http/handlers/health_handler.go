package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-router/internal/observability"
	"github.com/spec-kit/support-router/internal/service"
)

// Pinger is a dependency that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SnapshotStatus reports snapshot persistence health.
type SnapshotStatus interface {
	Pending() bool
	Failures() int64
}

// HealthDependencies bundles everything the probes inspect.
type HealthDependencies struct {
	ServiceName string
	Version     string
	Checks      map[string]Pinger
	Metrics     *observability.Metrics
	Sessions    *service.SessionStore
	Snapshots   SnapshotStatus
}

// HealthHandler responds to liveness and readiness probes.
type HealthHandler struct {
	deps HealthDependencies
}

// NewHealthHandler returns a new handler instance.
func NewHealthHandler(deps HealthDependencies) *HealthHandler {
	return &HealthHandler{deps: deps}
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.deps.ServiceName,
		"version": h.deps.Version,
	})
}

// Ready reports service readiness by checking dependencies.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	depStatus := fiber.Map{}
	ready := true

	for name, dep := range h.deps.Checks {
		if err := dep.Ping(ctx); err != nil {
			depStatus[name] = err.Error()
			ready = false
		} else {
			depStatus[name] = "ok"
		}
	}

	if ready {
		return c.JSON(fiber.Map{
			"status":       "ready",
			"dependencies": depStatus,
		})
	}

	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "DEPENDENCY_UNAVAILABLE",
			"message": "one or more dependencies unavailable",
			"details": depStatus,
		},
	})
}

// Metrics reports in-memory counters and session table totals.
func (h *HealthHandler) Metrics(c *fiber.Ctx) error {
	body := fiber.Map{"counters": h.deps.Metrics.Snapshot()}
	if h.deps.Sessions != nil {
		counts := h.deps.Sessions.Counts()
		body["sessions"] = fiber.Map{
			"waiting": counts.Waiting,
			"active":  counts.Active,
			"closed":  counts.Closed,
		}
	}
	if h.deps.Snapshots != nil {
		body["snapshot"] = fiber.Map{
			"pending":  h.deps.Snapshots.Pending(),
			"failures": h.deps.Snapshots.Failures(),
		}
	}
	return c.JSON(fiber.Map{"data": body})
}
