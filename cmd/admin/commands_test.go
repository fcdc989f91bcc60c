package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"boneboard-backend/bootstrap"
	"boneboard-backend/internal/application/ledger"
	"boneboard-backend/internal/application/pricing"
	"boneboard-backend/internal/config"
	"boneboard-backend/internal/domain"
	"boneboard-backend/internal/infrastructure/database"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fileOpener opens a fresh runtime over the same sqlite file on every call,
// the way each CLI invocation opens its own connection.
func fileOpener(t *testing.T) runtimeOpener {
	path := filepath.Join(t.TempDir(), "boneboard.db")
	return func() (*bootstrap.Runtime, error) {
		db, err := database.Open("sqlite:" + path)
		if err != nil {
			return nil, err
		}
		return bootstrap.NewRuntime(&config.Config{}, db, nil, pricing.DefaultRateTable()), nil
	}
}

func run(open runtimeOpener, args ...string) (string, error) {
	root := newRootCmd(open)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func seedFunding(t *testing.T, open runtimeOpener) uuid.UUID {
	t.Helper()
	rt, err := open()
	require.NoError(t, err)
	defer rt.Close()

	project := &domain.Project{
		Title:         "Bone Explorer",
		OwnerIdentity: "addr_owner",
		Status:        domain.ProjectVerified,
		ListingFee:    decimal.RequireFromString("400"),
		ListingFeeCur: domain.CurrencyBONE,
	}
	require.NoError(t, rt.DB.Create(project).Error)
	campaign := &domain.FundingCampaign{
		ProjectID:      project.ID,
		Purpose:        "Audit",
		Goal:           decimal.RequireFromString("1000"),
		CurrentFunding: decimal.Zero,
		Currency:       domain.CurrencyBONE,
		Deadline:       time.Now().Add(48 * time.Hour).UTC(),
		IsActive:       true,
	}
	require.NoError(t, rt.DB.Create(campaign).Error)

	for _, tx := range []string{"tx-a", "tx-b"} {
		_, err := rt.Ledger.RecordContribution(context.Background(), ledger.ContributionInput{
			CampaignID:  campaign.ID,
			Contributor: "addr_backer",
			Amount:      domain.MustMoney("25.00", domain.CurrencyBONE),
			TxReference: tx,
		})
		require.NoError(t, err)
	}
	return campaign.ID
}

func corruptTotal(t *testing.T, open runtimeOpener, id uuid.UUID) {
	t.Helper()
	rt, err := open()
	require.NoError(t, err)
	defer rt.Close()
	require.NoError(t, rt.DB.Model(&domain.FundingCampaign{}).Where("id = ?", id).
		Update("current_funding", decimal.RequireFromString("999")).Error)
}

func TestMigrate(t *testing.T) {
	open := fileOpener(t)
	out, err := run(open, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema up to date")

	// idempotent
	_, err = run(open, "migrate")
	require.NoError(t, err)
}

func TestReconcileRepairPurge(t *testing.T) {
	open := fileOpener(t)
	_, err := run(open, "migrate")
	require.NoError(t, err)
	id := seedFunding(t, open)

	out, err := run(open, "reconcile", id.String())
	require.NoError(t, err)
	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, true, rec["matches"])

	corruptTotal(t, open, id)
	_, err = run(open, "reconcile", id.String())
	assert.ErrorIs(t, err, ledger.ErrIntegrityViolation)

	out, err = run(open, "repair", id.String(), "--actor", "ops")
	require.NoError(t, err)
	var repaired ledger.RepairResult
	require.NoError(t, json.Unmarshal([]byte(out), &repaired))
	assert.True(t, repaired.Changed)
	assert.True(t, repaired.After.Matches)
	assert.Equal(t, "50.00", repaired.After.Stored.FormatMajor())

	_, err = run(open, "purge-contributions", id.String())
	assert.ErrorIs(t, err, errNotConfirmed)

	out, err = run(open, "purge-contributions", id.String(), "--yes")
	require.NoError(t, err)
	var purged map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &purged))
	assert.Equal(t, float64(2), purged["deleted"])
}

func TestDeleteProjectAndOrphans(t *testing.T) {
	open := fileOpener(t)
	_, err := run(open, "migrate")
	require.NoError(t, err)
	campaignID := seedFunding(t, open)

	rt, err := open()
	require.NoError(t, err)
	var campaign domain.FundingCampaign
	require.NoError(t, rt.DB.First(&campaign, "id = ?", campaignID).Error)
	rt.Close()

	_, err = run(open, "delete-project", campaign.ProjectID.String())
	assert.ErrorIs(t, err, errNotConfirmed)

	out, err := run(open, "delete-project", campaign.ProjectID.String(), "--yes")
	require.NoError(t, err)
	var res map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, float64(1), res["projects"])
	assert.Equal(t, float64(2), res["contributions"])

	out, err = run(open, "orphans")
	require.NoError(t, err)
	assert.Contains(t, out, `"campaigns": 0`)
}

func TestSweep(t *testing.T) {
	open := fileOpener(t)
	_, err := run(open, "migrate")
	require.NoError(t, err)

	out, err := run(open, "sweep")
	require.NoError(t, err)
	var res map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, float64(0), res["jobs_expired"])
}

func TestInvalidID(t *testing.T) {
	open := func() (*bootstrap.Runtime, error) {
		t.Fatal("runtime must not be opened for a bad id")
		return nil, nil
	}
	_, err := run(open, "reconcile", "not-a-uuid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid id")
}

func TestQuote(t *testing.T) {
	out, err := run(nil, "quote", "--kind", "project", "--months", "12")
	require.NoError(t, err)
	var q struct {
		Price domain.Money `json:"price"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &q))
	assert.Equal(t, "320.00", q.Price.FormatMajor())
	assert.Equal(t, domain.CurrencyBONE, q.Price.Currency)

	_, err = run(nil, "quote", "--kind", "banner")
	assert.ErrorIs(t, err, pricing.ErrInvalidKind)

	_, err = run(nil, "quote", "--months", "0")
	assert.ErrorIs(t, err, pricing.ErrInvalidDuration)
}
