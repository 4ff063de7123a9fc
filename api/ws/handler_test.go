package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kasuganosora/guildbank/config"
	"github.com/kasuganosora/guildbank/game/item"
	"github.com/kasuganosora/guildbank/game/player"
	mw "github.com/kasuganosora/guildbank/middleware"
	"github.com/kasuganosora/guildbank/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBags struct {
	mu       sync.Mutex
	released []int64
}

func (b *recordingBags) Get(_ context.Context, charID int64) (*item.Inventory, error) {
	if charID == 404 {
		return nil, item.ErrCharacterNotFound
	}
	return item.NewInventory(charID, 0), nil
}

func (b *recordingBags) Release(_ context.Context, charID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.released = append(b.released, charID)
	return nil
}

func (b *recordingBags) releasedIDs() []int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int64(nil), b.released...)
}

type recordingPresence struct {
	mu       sync.Mutex
	attached int
	detached int
}

func (p *recordingPresence) Attach(context.Context, *player.PlayerSession) error {
	p.mu.Lock()
	p.attached++
	p.mu.Unlock()
	return nil
}

func (p *recordingPresence) Detach(context.Context, *player.PlayerSession) error {
	p.mu.Lock()
	p.detached++
	p.mu.Unlock()
	return nil
}

func (p *recordingPresence) Local(int64) bool { return false }

type nopFlusher struct{}

func (nopFlusher) Flush(context.Context) error { return nil }

type wsFixture struct {
	srv      *httptest.Server
	url      string
	bags     *recordingBags
	presence *recordingPresence
	token    func(charID int64) string
}

func newWSFixture(t *testing.T, origins []string) *wsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := testutil.SetupTestCache(t)
	sec := config.SecurityConfig{JWTSecret: "ws-secret", JWTTTLH: time.Hour, AllowedOrigins: origins}

	f := &wsFixture{bags: &recordingBags{}, presence: &recordingPresence{}}
	router := NewRouter(nop())
	router.On("ping", HandlePing)
	h := NewHandler(c, sec, f.presence, f.bags, nopFlusher{}, router, nop())

	r := gin.New()
	r.GET("/ws", h.ServeWS)
	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)
	f.url = "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	f.token = func(charID int64) string {
		tok, err := mw.GenerateToken(charID, "Thrall", sec.JWTSecret, time.Hour)
		require.NoError(t, err)
		require.NoError(t, c.Set(context.Background(), mw.SessionKeyPrefix+tok, strconv.FormatInt(charID, 10), time.Hour))
		return tok
	}
	return f
}

func TestServeWS_RejectsBeforeUpgrade(t *testing.T) {
	f := newWSFixture(t, nil)

	resp, err := http.Get(f.srv.URL + "/ws")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(f.srv.URL + "/ws?token=junk")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServeWS_OriginCheck(t *testing.T) {
	f := newWSFixture(t, []string{"https://bank.example.com/"})
	tok := f.token(1)

	header := http.Header{"Origin": {"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(f.url+"?token="+tok, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://BANK.example.com")
	conn, _, err := websocket.DefaultDialer.Dial(f.url+"?token="+tok, header)
	require.NoError(t, err)
	conn.Close()
}

func TestServeWS_PingAndDisconnect(t *testing.T) {
	f := newWSFixture(t, nil)
	header := http.Header{"Authorization": {"Bearer " + f.token(7)}}
	conn, _, err := websocket.DefaultDialer.Dial(f.url, header)
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(player.Packet{Seq: 1, Type: "ping", Payload: []byte(`{"ts":99}`)}))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var pkt player.Packet
	require.NoError(t, conn.ReadJSON(&pkt))
	assert.Equal(t, "pong", pkt.Type)
	assert.Contains(t, string(pkt.Payload), `"client_ts":99`)

	conn.Close()
	require.Eventually(t, func() bool {
		return len(f.bags.releasedIDs()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []int64{7}, f.bags.releasedIDs())
	f.presence.mu.Lock()
	defer f.presence.mu.Unlock()
	assert.Equal(t, 1, f.presence.attached)
	assert.Equal(t, 1, f.presence.detached)
}

func TestServeWS_OversizedFrameDisconnects(t *testing.T) {
	f := newWSFixture(t, nil)
	conn, _, err := websocket.DefaultDialer.Dial(f.url+"?token="+f.token(3), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("x", maxMessageSize+1))))
	require.Eventually(t, func() bool {
		return len(f.bags.releasedIDs()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
