// Package integration drives the whole server over real HTTP and WebSocket
// connections with an in-memory database and cache.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kasuganosora/guildbank/api"
	"github.com/kasuganosora/guildbank/audit"
	"github.com/kasuganosora/guildbank/config"
	"github.com/kasuganosora/guildbank/game/guild"
	"github.com/kasuganosora/guildbank/game/item"
	"github.com/kasuganosora/guildbank/game/player"
	"github.com/kasuganosora/guildbank/notify"
	"github.com/kasuganosora/guildbank/persist"
	"github.com/kasuganosora/guildbank/scheduler"
	"github.com/kasuganosora/guildbank/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const AdminKey = "integration-admin-key"

// Catalog entries known to the test server.
const (
	EntryLinen       = 2589
	EntryHearthstone = 6948
)

const testCatalog = `
items:
  - entry: 2589
    name: Linen Cloth
    max_stack: 200
  - entry: 6948
    name: Hearthstone
    bind_on_pickup: true
`

// TestServer is the production wiring from main.go behind httptest.
type TestServer struct {
	DB       *gorm.DB
	SM       *player.SessionManager
	Registry *guild.Registry
	Bags     *item.Manager
	Store    *persist.Service
	Audit    *audit.Service
	URL      string

	srv   *httptest.Server
	sched *scheduler.Scheduler
	stop  context.CancelFunc
	once  sync.Once
}

// NewTestServer starts a server that is shut down when the test ends.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)

	catalog, err := item.ParseCatalog([]byte(testCatalog))
	require.NoError(t, err)

	ctx, stop := context.WithCancel(context.Background())
	ts := &TestServer{
		DB:    db,
		SM:    player.NewSessionManager(logger),
		Bags:  item.NewManager(item.NewStore(db, logger)),
		Store: persist.New(db, persist.Config{BatchSize: 50, FlushInterval: 50 * time.Millisecond}, logger),
		Audit: audit.New(db, audit.Config{FlushInterval: 50 * time.Millisecond}, logger),
		sched: scheduler.New(logger),
		stop:  stop,
	}
	hub := notify.NewHub(pubsub, c, ts.SM, logger)
	go func() { _ = hub.Run(ctx) }()
	ts.Registry = guild.NewRegistry(guild.Deps{Store: ts.Store, Notifier: hub, Logger: logger})
	ts.sched.AddDaily("guild_daily_reset", 6, scheduler.DailyReset(c, ts.Registry, logger))

	ts.srv = httptest.NewServer(api.NewEngine(api.Deps{
		DB:     db,
		Cache:  c,
		PubSub: pubsub,
		Security: config.SecurityConfig{
			JWTSecret:      "integration-test-secret",
			JWTTTLH:        time.Hour,
			RateLimitRPS:   1000,
			RateLimitBurst: 2000,
			CharRateRPS:    1000,
			CharRateBurst:  2000,
		},
		AdminKey:  AdminKey,
		AdminIPs:  []string{"127.0.0.0/8", "::1"},
		Sessions:  ts.SM,
		Hub:       hub,
		Registry:  ts.Registry,
		Catalog:   catalog,
		Bags:      ts.Bags,
		Store:     ts.Store,
		Scheduler: ts.sched,
		Audit:     ts.Audit,
		Logger:    logger,
	}))
	ts.URL = ts.srv.URL
	t.Cleanup(ts.Close)
	return ts
}

// Close stops the server and drains the write-behind queues. Safe to call
// more than once.
func (ts *TestServer) Close() {
	ts.once.Do(func() {
		ts.SM.CloseAllSessions(2 * time.Second)
		ts.srv.Close()
		ts.sched.Stop()
		ts.stop()
		ts.Store.Stop(context.Background())
		ts.Audit.Stop(context.Background())
	})
}

func (ts *TestServer) request(t *testing.T, method, path string, body interface{}, header http.Header) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	req.Header = header.Clone()
	if req.Header == nil {
		req.Header = http.Header{}
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func auth(token string) http.Header {
	if token == "" {
		return nil
	}
	return http.Header{"Authorization": {"Bearer " + token}}
}

func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	return ts.request(t, http.MethodPost, path, body, auth(token))
}

func (ts *TestServer) Get(t *testing.T, path, token string) *http.Response {
	t.Helper()
	return ts.request(t, http.MethodGet, path, nil, auth(token))
}

func (ts *TestServer) Put(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	return ts.request(t, http.MethodPut, path, body, auth(token))
}

func (ts *TestServer) Delete(t *testing.T, path, token string) *http.Response {
	t.Helper()
	return ts.request(t, http.MethodDelete, path, nil, auth(token))
}

// Admin sends a request with the admin key.
func (ts *TestServer) Admin(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	return ts.request(t, method, path, body, http.Header{"X-Admin-Key": {AdminKey}})
}

// ReadJSON decodes and closes the response body.
func ReadJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, v), "body: %s", raw)
}

// RequireStatus checks the status and closes the body.
func RequireStatus(t *testing.T, want int, resp *http.Response) {
	t.Helper()
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	require.Equal(t, want, resp.StatusCode, "body: %s", raw)
}

// CreateCharacter inserts a character holding gold copper.
func (ts *TestServer) CreateCharacter(t *testing.T, name string, gold uint64) int64 {
	t.Helper()
	resp := ts.Admin(t, http.MethodPost, "/api/admin/characters", map[string]interface{}{"name": name, "gold": gold})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out struct {
		ID int64 `json:"id"`
	}
	ReadJSON(t, resp, &out)
	return out.ID
}

func (ts *TestServer) GrantItem(t *testing.T, charID int64, entry, count uint32) {
	t.Helper()
	RequireStatus(t, http.StatusCreated, ts.Admin(t, http.MethodPost,
		fmt.Sprintf("/api/admin/characters/%d/items", charID),
		map[string]interface{}{"entry": entry, "count": count}))
}

// Token opens a session for charID.
func (ts *TestServer) Token(t *testing.T, charID int64) string {
	t.Helper()
	resp := ts.Admin(t, http.MethodPost, "/api/admin/sessions", map[string]interface{}{"char_id": charID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Token string `json:"token"`
	}
	ReadJSON(t, resp, &out)
	return out.Token
}

// WaitOnline blocks until charID has a live WS session.
func (ts *TestServer) WaitOnline(t *testing.T, charID int64) {
	t.Helper()
	require.Eventually(t, func() bool { return ts.SM.IsOnline(charID) }, 2*time.Second, 10*time.Millisecond)
}

// WSClient is a test WebSocket client. Frames are read by a background
// goroutine into inbox so receives can time out without touching the
// connection's read deadline.
type WSClient struct {
	t     *testing.T
	conn  *websocket.Conn
	seq   atomic.Uint64
	inbox chan player.Packet
}

func (ts *TestServer) ConnectWS(t *testing.T, token string) *WSClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if resp != nil {
		resp.Body.Close()
	}
	require.NoError(t, err)
	wc := &WSClient{t: t, conn: conn, inbox: make(chan player.Packet, 256)}
	go wc.pump()
	return wc
}

func (wc *WSClient) pump() {
	defer close(wc.inbox)
	for {
		var pkt player.Packet
		if err := wc.conn.ReadJSON(&pkt); err != nil {
			return
		}
		wc.inbox <- pkt
	}
}

// Send writes one packet with the next sequence number.
func (wc *WSClient) Send(typ string, payload interface{}) {
	wc.t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(wc.t, err)
	pkt := player.Packet{Seq: wc.seq.Add(1), Type: typ, Payload: raw}
	require.NoError(wc.t, wc.conn.WriteJSON(pkt))
}

// RecvType skips packets until one of type typ arrives.
func (wc *WSClient) RecvType(typ string, timeout time.Duration) player.Packet {
	wc.t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case pkt, ok := <-wc.inbox:
			if !ok {
				wc.t.Fatalf("connection closed while waiting for %q", typ)
			}
			if pkt.Type == typ {
				return pkt
			}
		case <-deadline:
			wc.t.Fatalf("timed out waiting for %q", typ)
		}
	}
}

func (wc *WSClient) Close() {
	_ = wc.conn.Close()
}

// PayloadMap decodes a packet payload into a generic map.
func PayloadMap(t *testing.T, pkt player.Packet) map[string]interface{} {
	t.Helper()
	out := map[string]interface{}{}
	if len(pkt.Payload) > 0 {
		require.NoError(t, json.Unmarshal(pkt.Payload, &out))
	}
	return out
}

var nameSeq atomic.Uint64

// UniqueID appends a process-wide counter to prefix.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, nameSeq.Add(1))
}
