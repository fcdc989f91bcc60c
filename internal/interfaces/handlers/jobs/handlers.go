package jobs

import (
	"boneboard-backend/internal/application/lifecycle"
	"boneboard-backend/internal/domain"
	"boneboard-backend/internal/interfaces/handlers/httpx"
	"boneboard-backend/internal/middleware"
	"boneboard-backend/internal/pkg/response"
	"boneboard-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const maxListLimit = 200

type Handlers struct {
	Lifecycle *lifecycle.Service
}

type createJobRequest struct {
	ProjectID       string `json:"project_id"`
	Title           string `json:"title"`
	Company         string `json:"company"`
	ListingDuration int    `json:"listing_duration"`
	Currency        string `json:"currency"`
	Featured        bool   `json:"is_featured"`
}

type paymentRequest struct {
	TxHash string `json:"tx_hash"`
	Months int    `json:"months"`
}

// POST /api/v1/jobs
func (h *Handlers) Create(c *fiber.Ctx) error {
	req := createJobRequest{ListingDuration: 1}
	if err := httpx.ParseBody(c, &req); err != nil {
		return err
	}
	in := lifecycle.CreateJobInput{
		Title:          req.Title,
		Company:        req.Company,
		OwnerIdentity:  middleware.GetWallet(c),
		DurationMonths: req.ListingDuration,
		Currency:       domain.CurrencyPrimary,
		Featured:       req.Featured,
	}
	if req.ProjectID != "" {
		pid, err := uuid.Parse(req.ProjectID)
		if err != nil {
			return response.Error(c, "Invalid project_id format", fiber.StatusBadRequest, nil)
		}
		in.ProjectID = &pid
	}
	if req.Currency != "" {
		cur, err := domain.ParseCurrency(req.Currency)
		if err != nil {
			return response.Error(c, "Unsupported currency", fiber.StatusBadRequest, nil)
		}
		in.Currency = cur
	}
	job, err := h.Lifecycle.CreateJob(c.UserContext(), in)
	if err != nil {
		return err
	}
	return response.SuccessCreated(c, "Job listing created", job, nil)
}

// GET /api/v1/jobs?status=confirmed&project_id=…&owner=…&limit=50
func (h *Handlers) List(c *fiber.Ctx) error {
	f := lifecycle.JobFilter{OwnerIdentity: c.Query("owner"), Limit: c.QueryInt("limit", 50)}
	if f.Limit <= 0 || f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if s := c.Query("status"); s != "" {
		st, err := domain.ParseJobStatus(s)
		if err != nil {
			return response.Error(c, "Invalid status filter", fiber.StatusBadRequest, nil)
		}
		f.Status = st
	}
	if s := c.Query("project_id"); s != "" {
		pid, err := uuid.Parse(s)
		if err != nil {
			return response.Error(c, "Invalid project_id format", fiber.StatusBadRequest, nil)
		}
		f.ProjectID = &pid
	}
	jobs, err := h.Lifecycle.ListJobs(c.UserContext(), f)
	if err != nil {
		return err
	}
	return response.Success(c, "Job listings fetched", jobs, fiber.Map{"count": len(jobs)})
}

// GET /api/v1/jobs/:id
func (h *Handlers) Get(c *fiber.Ctx) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	job, err := h.Lifecycle.GetJob(c.UserContext(), id)
	if err != nil {
		return err
	}
	return response.Success(c, "Job listing fetched", job, nil)
}

// paymentInput reads the job id and the verified payment from the request.
// ok is false once a response has been written.
func paymentInput(c *fiber.Ctx) (id uuid.UUID, req paymentRequest, ok bool, err error) {
	if id, err = httpx.ParamUUID(c, "id"); err != nil {
		return id, req, false, err
	}
	req.Months = 1
	if err = httpx.ParseBody(c, &req); err != nil {
		return id, req, false, err
	}
	if !validation.IsValidTxHash(req.TxHash) {
		return id, req, false, response.Error(c, "Invalid tx_hash", fiber.StatusBadRequest, nil)
	}
	req.TxHash = validation.NormalizeTxHash(req.TxHash)
	return id, req, true, nil
}

// POST /api/v1/jobs/:id/confirm {tx_hash} (admin). The operator records a
// payment already verified on chain; the indexer uses the payment webhook.
func (h *Handlers) Confirm(c *fiber.Ctx) error {
	id, req, ok, err := paymentInput(c)
	if !ok {
		return err
	}
	job, err := h.Lifecycle.ConfirmJob(c.UserContext(), id, req.TxHash)
	if err != nil {
		return err
	}
	return response.Success(c, "Job listing confirmed", job, nil)
}

// POST /api/v1/jobs/:id/renew {months, tx_hash} (admin)
func (h *Handlers) Renew(c *fiber.Ctx) error {
	id, req, ok, err := paymentInput(c)
	if !ok {
		return err
	}
	res, err := h.Lifecycle.RenewJob(c.UserContext(), id, req.Months, req.TxHash)
	if err != nil {
		return err
	}
	return response.Success(c, "Job listing renewed", res, nil)
}

// POST /api/v1/jobs/:id/reactivate {months, tx_hash} (admin)
func (h *Handlers) Reactivate(c *fiber.Ctx) error {
	id, req, ok, err := paymentInput(c)
	if !ok {
		return err
	}
	res, err := h.Lifecycle.ReactivateJob(c.UserContext(), id, req.Months, req.TxHash)
	if err != nil {
		return err
	}
	return response.Success(c, "Job listing reactivated", res, nil)
}

// POST /api/v1/jobs/:id/reject (admin)
func (h *Handlers) Reject(c *fiber.Ctx) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	job, err := h.Lifecycle.RejectJob(c.UserContext(), id, middleware.GetAdminActor(c))
	if err != nil {
		return err
	}
	return response.Success(c, "Job listing rejected", job, nil)
}
