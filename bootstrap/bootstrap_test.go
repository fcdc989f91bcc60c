package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"boneboard-backend/internal/application/lifecycle"
	"boneboard-backend/internal/application/pricing"
	"boneboard-backend/internal/config"
	"boneboard-backend/internal/infrastructure/database"
	"boneboard-backend/internal/middleware"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const adminKey = "s3cret"

var ownerWallet = "addr1" + strings.Repeat("q", 58)

func setupRuntime(t *testing.T) (*Runtime, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	db, err := database.Open("sqlite::memory:")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	hash, err := bcrypt.GenerateFromPassword([]byte(adminKey), bcrypt.MinCost)
	require.NoError(t, err)
	cfg := &config.Config{
		Env:                 "test",
		AdminKeyHash:        string(hash),
		FrontendURLEndsWith: ".boneboard.io",
		SweepSchedule:       "@every 1h",
		SweepLockTTL:        time.Minute,
	}
	rt := NewRuntime(cfg, db, rdb, pricing.DefaultRateTable())
	t.Cleanup(func() {
		rt.Close()
		mr.Close()
	})
	return rt, mr
}

func send(t *testing.T, app *fiber.App, method, url string, body interface{}, headers map[string]string) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

var admin = map[string]string{middleware.AdminKeyHeader: adminKey}

func TestRuntime_Ping(t *testing.T) {
	rt, _ := setupRuntime(t)
	assert.NoError(t, rt.Ping(context.Background()))
	assert.NoError(t, rt.PingWithTimeout())
}

func TestOpen_RequiresDatabaseURL(t *testing.T) {
	_, err := Open(&config.Config{Pricing: config.DefaultPricing()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestOpen_RejectsBadPricing(t *testing.T) {
	p := config.DefaultPricing()
	p.Composition = "multiplicative"
	_, err := Open(&config.Config{DatabaseURL: "sqlite::memory:", Pricing: p})
	require.Error(t, err)
}

func TestOpen_SQLiteWithMigrate(t *testing.T) {
	rt, err := Open(&config.Config{DatabaseURL: "sqlite::memory:", AutoMigrate: true, Pricing: config.DefaultPricing()})
	require.NoError(t, err)
	defer rt.Close()
	assert.Nil(t, rt.Redis)
	assert.True(t, rt.DB.Migrator().HasTable("project_funding"))
}

func TestApp_ProjectFlow(t *testing.T) {
	rt, _ := setupRuntime(t)
	app := rt.App()

	status, out := send(t, app, "GET", "/api/v1/pricing/quote?kind=project&months=12", nil, nil)
	require.Equal(t, 200, status)
	price := out["data"].(map[string]interface{})["price"].(map[string]interface{})
	assert.Equal(t, "320.00", price["amount"])

	status, _ = send(t, app, "POST", "/api/v1/projects", map[string]interface{}{"title": "Bone Explorer"}, nil)
	assert.Equal(t, 401, status)

	status, out = send(t, app, "POST", "/api/v1/projects", map[string]interface{}{"title": "Bone Explorer"},
		map[string]string{middleware.WalletHeader: ownerWallet})
	require.Equal(t, 201, status)
	id := out["data"].(map[string]interface{})["id"].(string)

	status, _ = send(t, app, "PATCH", "/api/v1/projects/"+id+"/verify", nil, nil)
	assert.Equal(t, 401, status)

	status, out = send(t, app, "PATCH", "/api/v1/projects/"+id+"/verify", nil, admin)
	require.Equal(t, 200, status)
	assert.Equal(t, "verified", out["data"].(map[string]interface{})["status"])

	status, out = send(t, app, "GET", "/api/v1/projects/"+id, nil, nil)
	require.Equal(t, 200, status)
	assert.Equal(t, "admin", out["data"].(map[string]interface{})["verified_by"])
}

func TestApp_PaymentRoutesRejectWalletOnly(t *testing.T) {
	rt, _ := setupRuntime(t)
	app := rt.App()
	owner := map[string]string{middleware.WalletHeader: ownerWallet}
	hash := strings.Repeat("ab", 32)

	status, out := send(t, app, "POST", "/api/v1/jobs", map[string]interface{}{"title": "Plutus engineer", "company": "BoneLabs"}, owner)
	require.Equal(t, 201, status)
	jobID := out["data"].(map[string]interface{})["id"].(string)

	for _, path := range []string{"/confirm", "/renew", "/reactivate"} {
		status, _ = send(t, app, "POST", "/api/v1/jobs/"+jobID+path, map[string]interface{}{"tx_hash": hash}, owner)
		assert.Equal(t, 401, status, path)
	}
	status, _ = send(t, app, "POST", "/api/v1/funding/00000000-0000-0000-0000-000000000001/contributions",
		map[string]interface{}{"contributor": ownerWallet, "amount": "1000000", "tx_hash": hash}, owner)
	assert.Equal(t, 401, status)

	status, out = send(t, app, "GET", "/api/v1/jobs/"+jobID, nil, nil)
	require.Equal(t, 200, status)
	assert.Equal(t, "pending", out["data"].(map[string]interface{})["status"])

	status, out = send(t, app, "POST", "/api/v1/jobs/"+jobID+"/confirm", map[string]interface{}{"tx_hash": hash}, admin)
	require.Equal(t, 200, status)
	assert.Equal(t, "confirmed", out["data"].(map[string]interface{})["status"])
}

func TestApp_SweepAndHealth(t *testing.T) {
	rt, mr := setupRuntime(t)
	app := rt.App()

	status, _ := send(t, app, "POST", "/api/v1/admin/sweep", nil, nil)
	assert.Equal(t, 401, status)

	status, out := send(t, app, "POST", "/api/v1/admin/sweep", nil, admin)
	require.Equal(t, 200, status)
	assert.Equal(t, float64(0), out["data"].(map[string]interface{})["jobs_expired"])
	assert.False(t, mr.Exists(lifecycle.KeySweepLock))

	status, out = send(t, app, "GET", "/health/json", nil, nil)
	require.Equal(t, 200, status)
	assert.Equal(t, "ok", out["status"])
	assert.NotNil(t, out["lastSweep"])

	require.NoError(t, mr.Set(lifecycle.KeySweepLock, "other-replica"))
	status, _ = send(t, app, "POST", "/api/v1/admin/sweep", nil, admin)
	assert.Equal(t, 409, status)

	status, out = send(t, app, "GET", "/api/v1/admin/orphans", nil, admin)
	require.Equal(t, 200, status)
	assert.Equal(t, true, out["metadata"].(map[string]interface{})["clean"])
}

func TestApp_UnknownRoute(t *testing.T) {
	rt, _ := setupRuntime(t)
	status, out := send(t, rt.App(), "GET", "/api/v1/nope", nil, nil)
	assert.Equal(t, 404, status)
	assert.Equal(t, "error", out["status"])
}
