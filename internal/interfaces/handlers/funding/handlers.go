package funding

import (
	"strings"
	"time"

	"boneboard-backend/internal/application/ledger"
	"boneboard-backend/internal/application/lifecycle"
	"boneboard-backend/internal/domain"
	"boneboard-backend/internal/interfaces/handlers/httpx"
	"boneboard-backend/internal/middleware"
	"boneboard-backend/internal/pkg/response"
	"boneboard-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Handlers struct {
	Lifecycle *lifecycle.Service
	Ledger    *ledger.Service
}

type createCampaignRequest struct {
	ProjectID string          `json:"project_id"`
	Goal      decimal.Decimal `json:"funding_goal"`
	Currency  string          `json:"currency"`
	Deadline  time.Time       `json:"funding_deadline"`
	Purpose   string          `json:"funding_purpose"`
	Featured  bool            `json:"is_featured"`
}

type contributeRequest struct {
	Contributor string          `json:"contributor"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	TxHash      string          `json:"tx_hash"`
	Message     *string         `json:"message"`
	IsAnonymous bool            `json:"is_anonymous"`
}

func parseCurrency(c *fiber.Ctx, s string, def domain.Currency) (domain.Currency, bool, error) {
	if s == "" {
		return def, true, nil
	}
	cur, err := domain.ParseCurrency(s)
	if err != nil {
		return "", false, response.Error(c, "Unsupported currency", fiber.StatusBadRequest, nil)
	}
	return cur, true, nil
}

// POST /api/v1/funding. Only the project owner may open a campaign.
func (h *Handlers) Create(c *fiber.Ctx) error {
	var req createCampaignRequest
	if err := httpx.ParseBody(c, &req); err != nil {
		return err
	}
	projectID, err := uuid.Parse(req.ProjectID)
	if err != nil {
		return response.Error(c, "Invalid project_id format", fiber.StatusBadRequest, nil)
	}
	cur, ok, err := parseCurrency(c, req.Currency, domain.CurrencyPrimary)
	if !ok {
		return err
	}
	goal, err := domain.ParseMoney(req.Goal.String(), cur)
	if err != nil {
		return response.Error(c, "Invalid funding_goal", fiber.StatusBadRequest, nil)
	}

	project, err := h.Lifecycle.GetProject(c.UserContext(), projectID)
	if err != nil {
		return err
	}
	wallet := middleware.GetWallet(c)
	if ok, err := httpx.RequireOwner(c, wallet, project.OwnerIdentity); !ok {
		return err
	}

	view, err := h.Lifecycle.CreateCampaign(c.UserContext(), lifecycle.CreateCampaignInput{
		ProjectID: projectID,
		Goal:      goal,
		Deadline:  req.Deadline,
		Purpose:   req.Purpose,
		Featured:  req.Featured,
		Actor:     wallet,
	})
	if err != nil {
		return err
	}
	return response.SuccessCreated(c, "Funding campaign created", view, nil)
}

// GET /api/v1/funding/:id returns the campaign with its contributions, newest first.
func (h *Handlers) Get(c *fiber.Ctx) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	view, err := h.Ledger.GetCampaign(c.UserContext(), id)
	if err != nil {
		return err
	}
	contributions, err := h.Ledger.ListContributions(c.UserContext(), id)
	if err != nil {
		return err
	}
	return response.Success(c, "Funding campaign fetched", fiber.Map{
		"campaign":      view,
		"contributions": contributions,
	}, nil)
}

// POST /api/v1/funding/:id/contributions (admin). Records a contribution whose
// payment was verified on chain; the indexer posts the same through the
// payment webhook.
func (h *Handlers) Contribute(c *fiber.Ctx) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var req contributeRequest
	if err := httpx.ParseBody(c, &req); err != nil {
		return err
	}
	if !validation.IsValidTxHash(req.TxHash) {
		return response.Error(c, "Invalid tx_hash", fiber.StatusBadRequest, nil)
	}
	contributor := strings.TrimSpace(req.Contributor)
	if !validation.IsValidWalletAddress(contributor) {
		return response.Error(c, "Invalid contributor wallet address", fiber.StatusBadRequest, nil)
	}
	def := domain.Currency("")
	if req.Currency == "" {
		campaign, err := h.Ledger.GetCampaign(c.UserContext(), id)
		if err != nil {
			return err
		}
		def = campaign.Goal.Currency
	}
	cur, ok, err := parseCurrency(c, req.Currency, def)
	if !ok {
		return err
	}
	amount, err := domain.ParseMoney(req.Amount.String(), cur)
	if err != nil {
		return response.Error(c, "Invalid amount", fiber.StatusBadRequest, nil)
	}

	contribution, err := h.Ledger.RecordContribution(c.UserContext(), ledger.ContributionInput{
		CampaignID:  id,
		Contributor: contributor,
		Amount:      amount,
		TxReference: validation.NormalizeTxHash(req.TxHash),
		Message:     req.Message,
		IsAnonymous: req.IsAnonymous,
	})
	if err != nil {
		return err
	}
	view, err := h.Ledger.GetCampaign(c.UserContext(), id)
	if err != nil {
		return err
	}
	return response.SuccessCreated(c, "Contribution recorded", fiber.Map{
		"contribution_id": contribution.ID,
		"amount":          contribution.AmountMoney(),
		"campaign":        view,
	}, nil)
}

// GET /api/v1/funding/:id/reconcile (admin) is read-only; a mismatch is reported, not fixed.
func (h *Handlers) Reconcile(c *fiber.Ctx) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	rec, err := h.Ledger.Reconcile(c.UserContext(), id)
	if err != nil {
		return err
	}
	msg := "Ledger consistent"
	if !rec.Matches {
		msg = "Ledger mismatch detected"
	}
	return response.Success(c, msg, rec, nil)
}

// POST /api/v1/funding/:id/repair (admin)
func (h *Handlers) Repair(c *fiber.Ctx) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	res, err := h.Ledger.Repair(c.UserContext(), id, middleware.GetAdminActor(c))
	if err != nil {
		return err
	}
	return response.Success(c, "Ledger repaired", res, nil)
}

// DELETE /api/v1/funding/:id/contributions?confirm=true (admin)
func (h *Handlers) PurgeContributions(c *fiber.Ctx) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	if !c.QueryBool("confirm", false) {
		return response.Error(c, "Purging contributions requires confirm=true", fiber.StatusBadRequest, nil)
	}
	n, err := h.Ledger.PurgeContributions(c.UserContext(), id, middleware.GetAdminActor(c))
	if err != nil {
		return err
	}
	return response.Success(c, "Contributions purged", fiber.Map{"campaign_id": id, "deleted": n}, nil)
}

// GET /api/v1/funding/:id/audit (admin)
func (h *Handlers) Audit(c *fiber.Ctx) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	trail, err := h.Ledger.AuditTrail(c.UserContext(), id)
	if err != nil {
		return err
	}
	return response.Success(c, "Audit trail fetched", trail, fiber.Map{"count": len(trail)})
}
