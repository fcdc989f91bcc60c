package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"boneboard-backend/internal/application/ledger"
	"boneboard-backend/internal/application/lifecycle"
	"boneboard-backend/internal/domain"
	"boneboard-backend/internal/pkg/apperr"
	"boneboard-backend/internal/pkg/response"
	"boneboard-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// SignatureHeader carries "t=<unix>,v1=<hex hmac-sha256 of t.body>".
const SignatureHeader = "X-BoneBoard-Signature"

const signatureTolerance = 5 * time.Minute

// Event types posted by the payment indexer once a transaction is final on chain.
const (
	EventJobPaid        = "job.payment_confirmed"
	EventJobRenewed     = "job.renewal_paid"
	EventJobReactivated = "job.reactivation_paid"
	EventContribution   = "funding.contribution"
)

// WebhookHandler accepts signed payment notifications from the indexer that
// watches the platform wallet. Wallet verification happens there; this side
// only applies the already verified payment.
type WebhookHandler struct {
	Lifecycle *lifecycle.Service
	Ledger    *ledger.Service
	Secret    string
	Now       func() time.Time
}

type paymentEvent struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type jobPaidData struct {
	JobID  uuid.UUID `json:"job_id"`
	TxHash string    `json:"tx_hash"`
	Months int       `json:"months"`
}

type contributionData struct {
	CampaignID  uuid.UUID       `json:"campaign_id"`
	Contributor string          `json:"contributor"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	TxHash      string          `json:"tx_hash"`
	Message     *string         `json:"message"`
	IsAnonymous bool            `json:"is_anonymous"`
}

// outcome is what the indexer sees. Anything but a retryable storage failure
// is acknowledged with 200 so the same event is not delivered again.
type outcome struct {
	Received  bool   `json:"received"`
	Handled   bool   `json:"handled"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// HandleWebhook POST /api/v1/webhooks/payments: raw body, signature check, then apply.
func (wh *WebhookHandler) HandleWebhook(c *fiber.Ctx) error {
	if wh.Secret == "" {
		return response.Forbidden(c, "Payment webhook disabled")
	}
	rawBody := c.BodyRaw()
	if len(rawBody) == 0 {
		return response.Error(c, "Webhook Error: empty body", fiber.StatusBadRequest, nil)
	}
	sig := c.Get(SignatureHeader)
	if err := verifySignature(rawBody, sig, wh.Secret, wh.now()); err != nil {
		log.Warn().Err(err).Bool("has_sig", sig != "").Msg("payments: webhook signature verification failed")
		return response.Error(c, "Webhook Error: "+err.Error(), fiber.StatusBadRequest, nil)
	}

	var event paymentEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return response.Error(c, "Webhook Error: "+err.Error(), fiber.StatusBadRequest, nil)
	}

	var (
		out outcome
		err error
	)
	switch event.Type {
	case EventJobPaid, EventJobRenewed, EventJobReactivated:
		out, err = wh.jobPaid(c, event.Type, event.Data)
	case EventContribution:
		out, err = wh.contribution(c, event.Data)
	default:
		out = outcome{Reason: "unsupported event type"}
	}
	if err != nil {
		if apperr.Retryable(err) || apperr.KindOf(err) == apperr.KindInternal {
			return err
		}
		out = outcome{Reason: err.Error()}
	}
	out.Received = true

	logEvent := log.Info()
	if !out.Handled && !out.Duplicate {
		logEvent = log.Warn()
	}
	logEvent.Str("event_id", event.ID).Str("type", event.Type).Bool("handled", out.Handled).
		Bool("duplicate", out.Duplicate).Str("reason", out.Reason).Msg("payments: webhook processed")
	return c.JSON(out)
}

func (wh *WebhookHandler) jobPaid(c *fiber.Ctx, eventType string, raw json.RawMessage) (outcome, error) {
	d := jobPaidData{Months: 1}
	if err := json.Unmarshal(raw, &d); err != nil || d.JobID == uuid.Nil {
		return outcome{Reason: "invalid job payload"}, nil
	}
	if !validation.IsValidTxHash(d.TxHash) {
		return outcome{Reason: "invalid tx_hash"}, nil
	}
	txHash := validation.NormalizeTxHash(d.TxHash)

	var err error
	switch eventType {
	case EventJobRenewed:
		_, err = wh.Lifecycle.RenewJob(c.UserContext(), d.JobID, d.Months, txHash)
	case EventJobReactivated:
		_, err = wh.Lifecycle.ReactivateJob(c.UserContext(), d.JobID, d.Months, txHash)
	default:
		_, err = wh.Lifecycle.ConfirmJob(c.UserContext(), d.JobID, txHash)
	}
	if errors.Is(err, lifecycle.ErrPaymentAlreadyUsed) {
		return outcome{Duplicate: true}, nil
	}
	if err != nil {
		return outcome{}, err
	}
	return outcome{Handled: true}, nil
}

func (wh *WebhookHandler) contribution(c *fiber.Ctx, raw json.RawMessage) (outcome, error) {
	var d contributionData
	if err := json.Unmarshal(raw, &d); err != nil || d.CampaignID == uuid.Nil {
		return outcome{Reason: "invalid contribution payload"}, nil
	}
	if !validation.IsValidTxHash(d.TxHash) {
		return outcome{Reason: "invalid tx_hash"}, nil
	}
	if !validation.IsValidWalletAddress(d.Contributor) {
		return outcome{Reason: "invalid contributor"}, nil
	}
	cur, err := domain.ParseCurrency(d.Currency)
	if err != nil {
		return outcome{Reason: err.Error()}, nil
	}
	amount, err := domain.ParseMoney(d.Amount.String(), cur)
	if err != nil {
		return outcome{Reason: err.Error()}, nil
	}

	_, err = wh.Ledger.RecordContribution(c.UserContext(), ledger.ContributionInput{
		CampaignID:  d.CampaignID,
		Contributor: strings.TrimSpace(d.Contributor),
		Amount:      amount,
		TxReference: validation.NormalizeTxHash(d.TxHash),
		Message:     d.Message,
		IsAnonymous: d.IsAnonymous,
	})
	if errors.Is(err, ledger.ErrDuplicateContribution) {
		return outcome{Duplicate: true}, nil
	}
	if err != nil {
		return outcome{}, err
	}
	return outcome{Handled: true}, nil
}

func (wh *WebhookHandler) now() time.Time {
	if wh.Now != nil {
		return wh.Now()
	}
	return time.Now()
}

// verifySignature checks the t=/v1= header against an HMAC-SHA256 of
// "<t>.<body>" and rejects timestamps more than five minutes away from now.
func verifySignature(payload []byte, sigHeader, secret string, now time.Time) error {
	if sigHeader == "" {
		return errors.New("missing signature")
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(sigHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return errors.New("invalid signature format")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "." + string(payload)))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if !hmac.Equal([]byte(sig), []byte(expected)) {
			continue
		}
		ts, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			return errors.New("invalid timestamp")
		}
		diff := now.Sub(time.Unix(ts, 0))
		if diff < 0 {
			diff = -diff
		}
		if diff > signatureTolerance {
			return errors.New("timestamp too old")
		}
		return nil
	}
	return errors.New("signature mismatch")
}
