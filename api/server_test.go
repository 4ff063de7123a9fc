package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/guildbank/audit"
	"github.com/kasuganosora/guildbank/config"
	"github.com/kasuganosora/guildbank/game/guild"
	"github.com/kasuganosora/guildbank/game/item"
	"github.com/kasuganosora/guildbank/game/player"
	"github.com/kasuganosora/guildbank/notify"
	"github.com/kasuganosora/guildbank/persist"
	"github.com/kasuganosora/guildbank/scheduler"
	"github.com/kasuganosora/guildbank/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	store := persist.New(db, persist.Config{}, logger)
	auditSvc := audit.New(db, audit.Config{}, logger)
	sched := scheduler.New(logger)
	t.Cleanup(func() {
		sched.Stop()
		store.Stop(context.Background())
		auditSvc.Stop(context.Background())
	})
	catalog, err := item.ParseCatalog(nil)
	require.NoError(t, err)
	sm := player.NewSessionManager(logger)
	hub := notify.NewHub(ps, c, sm, logger)

	return NewEngine(Deps{
		DB:     db,
		Cache:  c,
		PubSub: ps,
		Security: config.SecurityConfig{
			JWTSecret:      "engine-secret",
			JWTTTLH:        time.Hour,
			RateLimitRPS:   100,
			RateLimitBurst: 100,
			CharRateRPS:    100,
			CharRateBurst:  100,
		},
		AdminKey:  "k",
		AdminIPs:  []string{"192.0.2.0/24"},
		Sessions:  sm,
		Hub:       hub,
		Registry:  guild.NewRegistry(guild.Deps{Store: store, Notifier: hub, Logger: logger}),
		Catalog:   catalog,
		Bags:      item.NewManager(item.NewStore(db, logger)),
		Store:     store,
		Scheduler: sched,
		Audit:     auditSvc,
		Logger:    logger,
	})
}

func serve(r *gin.Engine, method, path, ip, adminKey string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("X-Real-IP", ip)
	if adminKey != "" {
		req.Header.Set("X-Admin-Key", adminKey)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestNewEngine_Routes(t *testing.T) {
	r := newTestEngine(t)

	w := serve(r, http.MethodGet, "/health", "198.51.100.1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/api/guilds/1", "198.51.100.1", "").Code)
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/api/admin/metrics", "198.51.100.1", "k").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/api/admin/metrics", "192.0.2.7", "nope").Code)
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/api/nowhere", "198.51.100.1", "").Code)
}

func TestNewEngine_MetricsIncludeExtras(t *testing.T) {
	r := newTestEngine(t)
	w := serve(r, http.MethodGet, "/api/admin/metrics", "192.0.2.7", "k")
	require.Equal(t, http.StatusOK, w.Code)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	assert.Equal(t, float64(0), m["ws_handler_failures"])
	assert.Contains(t, m, "audit")
	assert.Contains(t, m, "online_players")

	w = serve(r, http.MethodGet, "/api/admin/audit?limit=5", "192.0.2.7", "k")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodGet, "/api/admin/audit?char_id=x", "192.0.2.7", "k").Code)
}
