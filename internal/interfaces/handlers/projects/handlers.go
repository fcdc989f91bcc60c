package projects

import (
	"boneboard-backend/internal/application/cascade"
	"boneboard-backend/internal/application/lifecycle"
	"boneboard-backend/internal/domain"
	"boneboard-backend/internal/interfaces/handlers/httpx"
	"boneboard-backend/internal/middleware"
	"boneboard-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Lifecycle *lifecycle.Service
	Cascade   *cascade.Service
}

type createProjectRequest struct {
	Title         string `json:"title"`
	ListingMonths int    `json:"listing_months"`
	Currency      string `json:"currency"`
	Featured      bool   `json:"is_featured"`
}

// POST /api/v1/projects; the owner is the calling wallet.
func (h *Handlers) Create(c *fiber.Ctx) error {
	req := createProjectRequest{ListingMonths: 1}
	if err := httpx.ParseBody(c, &req); err != nil {
		return err
	}
	cur := domain.CurrencyPrimary
	if req.Currency != "" {
		var err error
		if cur, err = domain.ParseCurrency(req.Currency); err != nil {
			return response.Error(c, "Unsupported currency", fiber.StatusBadRequest, nil)
		}
	}
	project, err := h.Lifecycle.CreateProject(c.UserContext(), lifecycle.CreateProjectInput{
		Title:         req.Title,
		OwnerIdentity: middleware.GetWallet(c),
		ListingMonths: req.ListingMonths,
		Currency:      cur,
		Featured:      req.Featured,
	})
	if err != nil {
		return err
	}
	return response.SuccessCreated(c, "Project created", lifecycle.NewProjectView(project), nil)
}

// GET /api/v1/projects/:id
func (h *Handlers) Get(c *fiber.Ctx) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	project, err := h.Lifecycle.GetProject(c.UserContext(), id)
	if err != nil {
		return err
	}
	return response.Success(c, "Project fetched", lifecycle.NewProjectView(project), nil)
}

// PATCH /api/v1/projects/:id/verify (admin)
func (h *Handlers) Verify(c *fiber.Ctx) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	project, err := h.Lifecycle.VerifyProject(c.UserContext(), id, middleware.GetAdminActor(c))
	if err != nil {
		return err
	}
	return response.Success(c, "Project verified", lifecycle.NewProjectView(project), nil)
}

// PATCH /api/v1/projects/:id/reject (admin)
func (h *Handlers) Reject(c *fiber.Ctx) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	project, err := h.Lifecycle.RejectProject(c.UserContext(), id, middleware.GetAdminActor(c))
	if err != nil {
		return err
	}
	return response.Success(c, "Project rejected", lifecycle.NewProjectView(project), nil)
}

// DELETE /api/v1/projects/:id (admin) removes the project and all dependents.
func (h *Handlers) Delete(c *fiber.Ctx) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	res, err := h.Cascade.DeleteProject(c.UserContext(), id, middleware.GetAdminActor(c))
	if err != nil {
		return err
	}
	return response.Success(c, "Project deleted", res, nil)
}
