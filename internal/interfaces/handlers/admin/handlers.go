package admin

import (
	"context"

	"boneboard-backend/internal/application/cascade"
	"boneboard-backend/internal/application/lifecycle"
	"boneboard-backend/internal/middleware"
	"boneboard-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// SweepRunner runs one sweep, or returns nil when another replica holds the
// sweep lock. *lifecycle.Scheduler satisfies it.
type SweepRunner interface {
	RunOnce(ctx context.Context) (*lifecycle.SweepResult, error)
}

type Handlers struct {
	Sweeper SweepRunner
	Cascade *cascade.Service
}

// POST /api/v1/admin/sweep
func (h *Handlers) Sweep(c *fiber.Ctx) error {
	res, err := h.Sweeper.RunOnce(c.UserContext())
	if err != nil {
		return err
	}
	if res == nil {
		return response.Error(c, "A sweep is already running", fiber.StatusConflict, nil)
	}
	log.Info().Str("actor", middleware.GetAdminActor(c)).Int64("jobs_expired", res.JobsExpired).
		Int64("campaigns_expired", res.CampaignsExpired).Msg("admin: manual sweep")
	return response.Success(c, "Sweep completed", res, nil)
}

// GET /api/v1/admin/orphans
func (h *Handlers) Orphans(c *fiber.Ctx) error {
	report, err := h.Cascade.Orphans(c.UserContext())
	if err != nil {
		return err
	}
	return response.Success(c, "Orphan scan completed", report, fiber.Map{"clean": report.Clean()})
}
