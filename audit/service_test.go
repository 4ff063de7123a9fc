package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	mw "github.com/kasuganosora/guildbank/middleware"
	"github.com/kasuganosora/guildbank/model"
	"github.com/kasuganosora/guildbank/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func nop() *zap.Logger { return zap.NewNop() }

func TestLog_EnqueuedAndFlushed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, Config{}, nop())

	svc.Log(Entry{
		TraceID:    "trace-123",
		CharID:     7,
		CharName:   "Thrall",
		Action:     "POST /api/guilds/:id/bank/money/withdraw",
		Status:     http.StatusConflict,
		IP:         "127.0.0.1",
		DurationMs: 42,
	})

	// Stop flushes remaining entries
	svc.Stop(context.Background())

	var logs []model.AuditLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, "trace-123", logs[0].TraceID)
	require.NotNil(t, logs[0].CharID)
	assert.Equal(t, int64(7), *logs[0].CharID)
	assert.Equal(t, "Thrall", logs[0].CharName)
	assert.Equal(t, http.StatusConflict, logs[0].Status)
	assert.Equal(t, 42, logs[0].DurationMs)
}

func TestLog_BatchFlush(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, Config{}, nop())

	for i := 0; i < 150; i++ {
		svc.Log(Entry{Action: "batch"})
	}
	svc.Stop(context.Background())

	var count int64
	db.Model(&model.AuditLog{}).Count(&count)
	assert.Equal(t, int64(150), count)
}

func TestLog_NoCharacter(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, Config{}, nop())
	svc.Log(Entry{Action: "POST /api/admin/reset-daily"})
	svc.Stop(context.Background())

	var logs []model.AuditLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Nil(t, logs[0].CharID)
}

func TestStop_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, Config{}, nop())
	svc.Stop(context.Background())
	svc.Stop(context.Background()) // must not panic
}

func TestLog_DropsWhenFull(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, Config{QueueSize: 1, FlushInterval: time.Hour}, nop())
	for i := 0; i < 50; i++ {
		svc.Log(Entry{Action: "flood"})
	}
	svc.Stop(context.Background())

	written, dropped := svc.Stats()
	assert.Equal(t, int64(50), written+dropped)
	var count int64
	db.Model(&model.AuditLog{}).Count(&count)
	assert.Equal(t, written, count)
}

func TestStop_HonoursDeadline(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, Config{}, nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.Stop(ctx)
	svc.Stop(context.Background())
}

func TestQuery_Filters(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, Config{}, nop())
	withdraw := "POST /api/guilds/:id/bank/money/withdraw"
	svc.Log(Entry{CharID: 1, Action: withdraw, Status: http.StatusOK})
	svc.Log(Entry{CharID: 2, Action: withdraw, Status: http.StatusConflict})
	svc.Log(Entry{CharID: 1, Action: "POST /api/guilds", Status: http.StatusCreated})
	svc.Stop(context.Background())
	ctx := context.Background()

	all, err := svc.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "POST /api/guilds", all[0].Action, "newest first")

	mine, err := svc.Query(ctx, Filter{CharID: 1, Action: withdraw})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, http.StatusOK, mine[0].Status)

	one, err := svc.Query(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, one, 1)

	future, err := svc.Query(ctx, Filter{Since: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, future)
}

func TestListHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := testutil.SetupTestDB(t)
	svc := New(db, Config{}, nop())
	svc.Log(Entry{CharID: 9, Action: "POST /api/guilds/:id/members"})
	svc.Stop(context.Background())

	r := gin.New()
	r.GET("/api/admin/audit", ListHandler(svc))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/audit?char_id=9&limit=10", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Entries []model.AuditLog `json:"entries"`
		Written int64            `json:"written"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Entries, 1)
	assert.Equal(t, int64(1), body.Written)

	for _, q := range []string{"char_id=abc", "since=yesterday", "limit=ten"} {
		w = httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/audit?"+q, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestMiddleware_RecordsMutations(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := testutil.SetupTestDB(t)
	svc := New(db, Config{}, nop())

	r := gin.New()
	r.Use(mw.TraceID(), Middleware(svc))
	r.Use(func(c *gin.Context) {
		c.Set(mw.CharIDKey, int64(3))
		c.Set(mw.CharNameKey, "Garrosh")
		c.Next()
	})
	r.GET("/api/guilds/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/api/guilds/:id/ranks", func(c *gin.Context) { c.Status(http.StatusForbidden) })

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/guilds/1", nil),
		httptest.NewRequest(http.MethodPost, "/api/guilds/1/ranks", nil),
		httptest.NewRequest(http.MethodPost, "/nowhere", nil),
	} {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}
	svc.Stop(context.Background())

	var logs []model.AuditLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, "POST /api/guilds/:id/ranks", logs[0].Action)
	assert.Equal(t, http.StatusForbidden, logs[0].Status)
	assert.Equal(t, "Garrosh", logs[0].CharName)
	assert.NotEmpty(t, logs[0].TraceID)
}
