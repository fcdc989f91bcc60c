package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"boneboard-backend/internal/application/ledger"
	"boneboard-backend/internal/application/pricing"
	"boneboard-backend/internal/domain"
	"boneboard-backend/internal/infrastructure/database"
	"boneboard-backend/internal/pkg/apperr"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const day = 24 * time.Hour

func setupLifecycleTest(t *testing.T) (*Service, *testClock, *gorm.DB) {
	db, err := database.Open("sqlite::memory:")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	clk := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := &Service{
		DB:      db,
		Pricing: pricing.NewEngine(pricing.DefaultRateTable()),
		Clock:   clk.Now,
	}
	return svc, clk, db
}

func newProject(t *testing.T, svc *Service) *domain.Project {
	t.Helper()
	p, err := svc.CreateProject(context.Background(), CreateProjectInput{
		Title:         "Bone Explorer",
		OwnerIdentity: "addr_owner",
		ListingMonths: 1,
		Currency:      domain.CurrencyBONE,
	})
	require.NoError(t, err)
	return p
}

func newJob(t *testing.T, svc *Service, months int) *JobView {
	t.Helper()
	job, err := svc.CreateJob(context.Background(), CreateJobInput{
		Title:          "Plutus engineer",
		Company:        "BoneLabs",
		OwnerIdentity:  "addr_owner",
		DurationMonths: months,
		Currency:       domain.CurrencyBONE,
	})
	require.NoError(t, err)
	return job
}

func TestProjectReview(t *testing.T) {
	svc, _, _ := setupLifecycleTest(t)
	ctx := context.Background()

	p := newProject(t, svc)
	assert.Equal(t, domain.ProjectPending, p.Status)
	assert.Equal(t, "400.00 BONE", p.Fee().String())

	verified, err := svc.VerifyProject(ctx, p.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectVerified, verified.Status)
	require.NotNil(t, verified.VerifiedBy)
	assert.Equal(t, "admin", *verified.VerifiedBy)
	assert.NotNil(t, verified.VerifiedAt)

	_, err = svc.VerifyProject(ctx, p.ID, "admin")
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	rejected, err := svc.RejectProject(ctx, p.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectRejected, rejected.Status)

	_, err = svc.VerifyProject(ctx, uuid.New(), "admin")
	assert.True(t, errors.Is(err, ErrProjectNotFound))

	_, err = svc.CreateProject(ctx, CreateProjectInput{Title: "x", OwnerIdentity: "addr", ListingMonths: 0, Currency: domain.CurrencyBONE})
	assert.True(t, errors.Is(err, pricing.ErrInvalidDuration))
}

func TestJobLifecycle_ConfirmExpireReactivate(t *testing.T) {
	svc, clk, db := setupLifecycleTest(t)
	ctx := context.Background()

	job := newJob(t, svc, 1)
	assert.Equal(t, domain.JobPending, job.Status)
	assert.Equal(t, "250.00", job.Fee.FormatMajor())
	assert.Nil(t, job.ExpiresAt)

	confirmed, err := svc.ConfirmJob(ctx, job.ID, "tx-confirm")
	require.NoError(t, err)
	assert.Equal(t, domain.JobConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ExpiresAt)
	assert.True(t, confirmed.ExpiresAt.Equal(clk.Now().Add(30*day)))

	_, err = svc.ConfirmJob(ctx, job.ID, "tx-again")
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	clk.Advance(31 * day)

	got, err := svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobExpired, got.Status)

	var stored domain.JobListing
	require.NoError(t, db.First(&stored, "id = ?", job.ID).Error)
	assert.Equal(t, domain.JobConfirmed, stored.Status, "read must not write")

	expired, err := svc.ListJobs(ctx, JobFilter{Status: domain.JobExpired})
	require.NoError(t, err)
	require.Len(t, expired, 1)
	live, err := svc.ListJobs(ctx, JobFilter{Status: domain.JobConfirmed})
	require.NoError(t, err)
	assert.Empty(t, live)

	_, err = svc.RenewJob(ctx, job.ID, 1, "tx-renew")
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	res, err := svc.ReactivateJob(ctx, job.ID, 3, "tx-reactivate")
	require.NoError(t, err)
	assert.Equal(t, domain.JobConfirmed, res.Job.Status)
	assert.Equal(t, "225.00", res.Fee.FormatMajor())
	assert.Equal(t, 3, res.Job.DurationMonths)
	assert.True(t, res.Job.ExpiresAt.Equal(clk.Now().Add(90*day)))
}

func TestRenewJob_ExtendsFromCurrentExpiry(t *testing.T) {
	svc, clk, _ := setupLifecycleTest(t)
	ctx := context.Background()

	job := newJob(t, svc, 1)
	confirmed, err := svc.ConfirmJob(ctx, job.ID, "tx-1")
	require.NoError(t, err)
	firstExpiry := *confirmed.ExpiresAt

	clk.Advance(10 * day)
	res, err := svc.RenewJob(ctx, job.ID, 2, "tx-2")
	require.NoError(t, err)
	assert.Equal(t, "237.50", res.Fee.FormatMajor())
	assert.Equal(t, 3, res.Job.DurationMonths)
	assert.True(t, res.Job.ExpiresAt.Equal(firstExpiry.Add(60*day)))
	require.NotNil(t, res.Job.TxReference)
	assert.Equal(t, "tx-2", *res.Job.TxReference)

	_, err = svc.RenewJob(ctx, job.ID, 0, "tx-3")
	assert.True(t, errors.Is(err, pricing.ErrInvalidDuration))
	_, err = svc.RenewJob(ctx, job.ID, 1, "")
	assert.True(t, errors.Is(err, ErrTxReferenceRequired))
}

func TestJobPayments_TxReferenceAppliesOnce(t *testing.T) {
	svc, clk, _ := setupLifecycleTest(t)
	ctx := context.Background()

	job := newJob(t, svc, 1)
	_, err := svc.ConfirmJob(ctx, job.ID, "tx-1")
	require.NoError(t, err)
	_, err = svc.ConfirmJob(ctx, job.ID, "tx-1")
	assert.True(t, errors.Is(err, ErrPaymentAlreadyUsed))

	first, err := svc.RenewJob(ctx, job.ID, 1, "tx-2")
	require.NoError(t, err)
	_, err = svc.RenewJob(ctx, job.ID, 1, "tx-2")
	assert.True(t, errors.Is(err, ErrPaymentAlreadyUsed))
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	// an older reference is found in the event history
	_, err = svc.RenewJob(ctx, job.ID, 1, "tx-1")
	assert.True(t, errors.Is(err, ErrPaymentAlreadyUsed))

	clk.Advance(90 * day)
	_, err = svc.ReactivateJob(ctx, job.ID, 1, "tx-2")
	assert.True(t, errors.Is(err, ErrPaymentAlreadyUsed))

	got, err := svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.DurationMonths)
	assert.True(t, got.ExpiresAt.Equal(*first.Job.ExpiresAt))
	assert.Equal(t, domain.JobExpired, got.Status)

	other := newJob(t, svc, 1)
	_, err = svc.ConfirmJob(ctx, other.ID, "tx-1")
	assert.NoError(t, err, "references are tracked per job")
}

func TestRejectJob(t *testing.T) {
	svc, clk, _ := setupLifecycleTest(t)
	ctx := context.Background()

	pending := newJob(t, svc, 1)
	rejected, err := svc.RejectJob(ctx, pending.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, domain.JobRejected, rejected.Status)

	_, err = svc.ConfirmJob(ctx, pending.ID, "tx")
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	live := newJob(t, svc, 1)
	_, err = svc.ConfirmJob(ctx, live.ID, "tx-live")
	require.NoError(t, err)
	clk.Advance(45 * day)
	_, err = svc.RejectJob(ctx, live.ID, "admin")
	assert.True(t, errors.Is(err, ErrInvalidTransition), "expired jobs leave only through reactivation")

	got, err := svc.GetJob(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobRejected, got.Status)

	_, err = svc.GetJob(ctx, uuid.New())
	assert.True(t, errors.Is(err, ErrJobNotFound))
}

func TestCreateJob_ProjectReference(t *testing.T) {
	svc, _, _ := setupLifecycleTest(t)
	ctx := context.Background()

	missing := uuid.New()
	_, err := svc.CreateJob(ctx, CreateJobInput{
		ProjectID: &missing, Title: "t", Company: "c", OwnerIdentity: "o", DurationMonths: 1, Currency: domain.CurrencyADA,
	})
	assert.True(t, errors.Is(err, ErrProjectNotFound))

	p := newProject(t, svc)
	job, err := svc.CreateJob(ctx, CreateJobInput{
		ProjectID: &p.ID, Title: "t", Company: "c", OwnerIdentity: "o", DurationMonths: 1, Currency: domain.CurrencyADA, Featured: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "37.50 ADA", job.Fee.String())

	byProject, err := svc.ListJobs(ctx, JobFilter{ProjectID: &p.ID})
	require.NoError(t, err)
	assert.Len(t, byProject, 1)
}

func TestCreateCampaign(t *testing.T) {
	svc, clk, db := setupLifecycleTest(t)
	ctx := context.Background()
	p := newProject(t, svc)

	_, err := svc.CreateCampaign(ctx, CreateCampaignInput{ProjectID: p.ID, Goal: domain.MustMoney("0", domain.CurrencyBONE), Deadline: clk.Now().Add(day)})
	assert.True(t, errors.Is(err, ErrInvalidGoal))
	_, err = svc.CreateCampaign(ctx, CreateCampaignInput{ProjectID: p.ID, Goal: domain.MustMoney("10", domain.CurrencyBONE), Deadline: clk.Now().Add(-day)})
	assert.True(t, errors.Is(err, ErrInvalidDeadline))
	_, err = svc.CreateCampaign(ctx, CreateCampaignInput{ProjectID: uuid.New(), Goal: domain.MustMoney("10", domain.CurrencyBONE), Deadline: clk.Now().Add(day)})
	assert.True(t, errors.Is(err, ErrProjectNotFound))

	first, err := svc.CreateCampaign(ctx, CreateCampaignInput{
		ProjectID: p.ID, Goal: domain.MustMoney("1000", domain.CurrencyBONE), Deadline: clk.Now().Add(45 * day), Purpose: "Audit",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignActive, first.Status)
	assert.Equal(t, "475.00 BONE", first.ListingFee.String())

	_, err = svc.CreateCampaign(ctx, CreateCampaignInput{
		ProjectID: p.ID, Goal: domain.MustMoney("500", domain.CurrencyBONE), Deadline: clk.Now().Add(90 * day),
	})
	assert.True(t, errors.Is(err, ErrActiveCampaignExists))

	clk.Advance(46 * day)
	second, err := svc.CreateCampaign(ctx, CreateCampaignInput{
		ProjectID: p.ID, Goal: domain.MustMoney("50", domain.CurrencyADA), Deadline: clk.Now().Add(10 * day),
	})
	require.NoError(t, err)
	assert.Equal(t, "50.00 ADA", second.ListingFee.String())

	var old domain.FundingCampaign
	require.NoError(t, db.First(&old, "id = ?", first.ID).Error)
	assert.False(t, old.IsActive)

	_, err = svc.RejectProject(ctx, p.ID, "admin")
	require.NoError(t, err)
	_, err = svc.CreateJob(ctx, CreateJobInput{ProjectID: &p.ID, Title: "t", Company: "c", OwnerIdentity: "o", DurationMonths: 1, Currency: domain.CurrencyBONE})
	assert.True(t, errors.Is(err, ErrProjectRejected))
}

func TestCampaign_ExpiredOnReadBeforeSweep(t *testing.T) {
	svc, clk, _ := setupLifecycleTest(t)
	ctx := context.Background()
	p := newProject(t, svc)

	c, err := svc.CreateCampaign(ctx, CreateCampaignInput{
		ProjectID: p.ID, Goal: domain.MustMoney("100", domain.CurrencyBONE), Deadline: clk.Now().Add(day),
	})
	require.NoError(t, err)

	clk.Advance(2 * day)
	ledgerSvc := &ledger.Service{DB: svc.DB, Clock: clk.Now}
	view, err := ledgerSvc.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, view.IsActive)
	assert.Equal(t, domain.CampaignExpired, view.Status)

	_, err = ledgerSvc.RecordContribution(ctx, ledger.ContributionInput{
		CampaignID: c.ID, Contributor: "addr", Amount: domain.MustMoney("1", domain.CurrencyBONE), TxReference: "tx",
	})
	assert.True(t, errors.Is(err, ledger.ErrCampaignClosed))
}

func TestSweep_IsIdempotent(t *testing.T) {
	svc, clk, db := setupLifecycleTest(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		j := newJob(t, svc, 1)
		_, err := svc.ConfirmJob(ctx, j.ID, "tx-old")
		require.NoError(t, err)
	}
	pending := newJob(t, svc, 1)

	unfunded, err := svc.CreateCampaign(ctx, CreateCampaignInput{
		ProjectID: newProject(t, svc).ID, Goal: domain.MustMoney("100", domain.CurrencyBONE), Deadline: clk.Now().Add(5 * day),
	})
	require.NoError(t, err)
	funded, err := svc.CreateCampaign(ctx, CreateCampaignInput{
		ProjectID: newProject(t, svc).ID, Goal: domain.MustMoney("100", domain.CurrencyBONE), Deadline: clk.Now().Add(5 * day),
	})
	require.NoError(t, err)
	require.NoError(t, db.Model(&domain.FundingCampaign{}).Where("id = ?", funded.ID).
		Updates(map[string]interface{}{"is_funded": true, "current_funding": "100"}).Error)

	clk.Advance(31 * day)
	live := newJob(t, svc, 1)
	_, err = svc.ConfirmJob(ctx, live.ID, "tx-new")
	require.NoError(t, err)
	running, err := svc.CreateCampaign(ctx, CreateCampaignInput{
		ProjectID: newProject(t, svc).ID, Goal: domain.MustMoney("100", domain.CurrencyBONE), Deadline: clk.Now().Add(5 * day),
	})
	require.NoError(t, err)

	res, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.JobsExpired)
	assert.Equal(t, int64(1), res.CampaignsExpired)
	assert.Equal(t, int64(1), res.CampaignsFinalized)
	assert.True(t, res.RanAt.Equal(clk.Now()))

	again, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.JobsExpired)
	assert.Zero(t, again.CampaignsExpired)
	assert.Zero(t, again.CampaignsFinalized)

	var stored domain.JobListing
	require.NoError(t, db.First(&stored, "id = ?", pending.ID).Error)
	assert.Equal(t, domain.JobPending, stored.Status)
	require.NoError(t, db.First(&stored, "id = ?", live.ID).Error)
	assert.Equal(t, domain.JobConfirmed, stored.Status)

	var c domain.FundingCampaign
	require.NoError(t, db.First(&c, "id = ?", unfunded.ID).Error)
	assert.False(t, c.IsActive)
	require.NoError(t, db.First(&c, "id = ?", running.ID).Error)
	assert.True(t, c.IsActive)

	var events int64
	require.NoError(t, db.Model(&domain.LifecycleEvent{}).
		Where("subject_type = ? AND event_type = ?", domain.SubjectJob, domain.EventExpired).Count(&events).Error)
	assert.Equal(t, int64(2), events)
}

func TestSweep_ConcurrentWithContributionsAndItself(t *testing.T) {
	svc, clk, db := setupLifecycleTest(t)
	ctx := context.Background()
	ledgerSvc := &ledger.Service{DB: db, Clock: clk.Now}
	goal := func(s string) domain.Money { return domain.MustMoney(s, domain.CurrencyBONE) }

	for i := 0; i < 3; i++ {
		j := newJob(t, svc, 1)
		_, err := svc.ConfirmJob(ctx, j.ID, fmt.Sprintf("tx-job-%d", i))
		require.NoError(t, err)
	}
	lapsed, err := svc.CreateCampaign(ctx, CreateCampaignInput{
		ProjectID: newProject(t, svc).ID, Goal: goal("100"), Deadline: clk.Now().Add(5 * day),
	})
	require.NoError(t, err)

	clk.Advance(31 * day)
	running, err := svc.CreateCampaign(ctx, CreateCampaignInput{
		ProjectID: newProject(t, svc).ID, Goal: goal("1000"), Deadline: clk.Now().Add(5 * day),
	})
	require.NoError(t, err)
	closing, err := svc.CreateCampaign(ctx, CreateCampaignInput{
		ProjectID: newProject(t, svc).ID, Goal: goal("50"), Deadline: clk.Now().Add(5 * day),
	})
	require.NoError(t, err)

	var (
		mu      sync.Mutex
		results []*SweepResult
		g       errgroup.Group
	)
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			res, err := svc.Sweep(ctx)
			if err != nil {
				return err
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	for i := 0; i < 10; i++ {
		ref := fmt.Sprintf("tx-running-%d", i)
		g.Go(func() error {
			_, err := ledgerSvc.RecordContribution(ctx, ledger.ContributionInput{
				CampaignID: running.ID, Contributor: "addr_backer", Amount: goal("10"), TxReference: ref,
			})
			return err
		})
	}
	g.Go(func() error {
		_, err := ledgerSvc.RecordContribution(ctx, ledger.ContributionInput{
			CampaignID: closing.ID, Contributor: "addr_backer", Amount: goal("50"), TxReference: "tx-closing",
		})
		return err
	})
	g.Go(func() error {
		_, err := ledgerSvc.RecordContribution(ctx, ledger.ContributionInput{
			CampaignID: lapsed.ID, Contributor: "addr_backer", Amount: goal("10"), TxReference: "tx-lapsed",
		})
		if !errors.Is(err, ledger.ErrCampaignClosed) {
			return fmt.Errorf("lapsed campaign accepted a contribution: %v", err)
		}
		return nil
	})
	require.NoError(t, g.Wait())

	// past both remaining deadlines a final pass closes them once each
	clk.Advance(6 * day)
	last, err := svc.Sweep(ctx)
	require.NoError(t, err)
	results = append(results, last)

	var jobsExpired, campaignsExpired, finalized int64
	for _, r := range results {
		jobsExpired += r.JobsExpired
		campaignsExpired += r.CampaignsExpired
		finalized += r.CampaignsFinalized
	}
	assert.Equal(t, int64(3), jobsExpired)
	assert.Equal(t, int64(2), campaignsExpired)
	assert.Equal(t, int64(1), finalized)

	for id, want := range map[uuid.UUID]string{running.ID: "100.00", closing.ID: "50.00", lapsed.ID: "0.00"} {
		rec, err := ledgerSvc.Reconcile(ctx, id)
		require.NoError(t, err)
		assert.True(t, rec.Matches)
		assert.Equal(t, want, rec.Stored.FormatMajor())
	}

	var c domain.FundingCampaign
	require.NoError(t, db.First(&c, "id = ?", running.ID).Error)
	assert.False(t, c.IsActive)
	assert.False(t, c.IsFunded)
	require.NoError(t, db.First(&c, "id = ?", closing.ID).Error)
	assert.True(t, c.IsFunded)
	assert.False(t, c.IsActive)
}

func TestMonthsUntil(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, monthsUntil(now, now.Add(time.Hour)))
	assert.Equal(t, 1, monthsUntil(now, now.Add(30*day)))
	assert.Equal(t, 2, monthsUntil(now, now.Add(30*day+time.Second)))
	assert.Equal(t, 12, monthsUntil(now, now.Add(360*day)))
}
