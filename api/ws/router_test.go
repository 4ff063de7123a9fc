package ws

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/kasuganosora/guildbank/game/player"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func nop() *zap.Logger { return zap.NewNop() }

// newSession creates a session with no connection behind it.
func newSession(charID int64, name string) *player.PlayerSession {
	return &player.PlayerSession{
		CharID:   charID,
		CharName: name,
		SendChan: make(chan []byte, 256),
		Done:     make(chan struct{}),
	}
}

func makePacket(t *testing.T, seq uint64, msgType string, payload interface{}) []byte {
	t.Helper()
	p, _ := json.Marshal(payload)
	b, err := json.Marshal(player.Packet{Seq: seq, Type: msgType, Payload: p})
	require.NoError(t, err)
	return b
}

func counter(n *int) HandlerFunc {
	return func(context.Context, *player.PlayerSession, json.RawMessage) error {
		*n++
		return nil
	}
}

func errorMessage(t *testing.T, s *player.PlayerSession) string {
	t.Helper()
	pkt := nextPacket(t, s)
	require.Equal(t, PktError, pkt.Type)
	var body map[string]string
	require.NoError(t, json.Unmarshal(pkt.Payload, &body))
	return body["message"]
}

func TestRouter_DispatchPassesPayloadAndTrace(t *testing.T) {
	r := NewRouter(nop())
	var got map[string]interface{}
	var traceID string
	r.On("data", func(ctx context.Context, _ *player.PlayerSession, raw json.RawMessage) error {
		traceID = TraceIDFromCtx(ctx)
		return json.Unmarshal(raw, &got)
	})
	s := newSession(1, "Thrall")
	r.Dispatch(context.Background(), s, makePacket(t, 1, "data", map[string]interface{}{"tab": 2}))

	assert.Equal(t, float64(2), got["tab"])
	assert.Len(t, traceID, 36)
	assert.Empty(t, s.SendChan)
	assert.Empty(t, TraceIDFromCtx(context.Background()))
}

func TestRouter_MalformedPacket(t *testing.T) {
	r := NewRouter(nop())
	s := newSession(1, "Thrall")

	r.Dispatch(context.Background(), s, []byte("not json"))
	assert.Equal(t, "malformed packet", errorMessage(t, s))

	r.Dispatch(context.Background(), s, []byte(`{"seq":1}`))
	assert.Equal(t, "malformed packet", errorMessage(t, s))
}

func TestRouter_UnknownType(t *testing.T) {
	r := NewRouter(nop())
	var n int
	r.On("guild_bank_query_money", counter(&n))
	s := newSession(1, "Thrall")

	r.Dispatch(context.Background(), s, makePacket(t, 1, "guild_bank_repair", nil))
	assert.Zero(t, n)
	assert.Contains(t, errorMessage(t, s), "guild_bank_repair")
}

func TestRouter_ReplayedSeqDropped(t *testing.T) {
	r := NewRouter(nop())
	var n int
	r.On("msg", counter(&n))
	s := newSession(1, "Thrall")
	ctx := context.Background()

	for _, seq := range []uint64{5, 5, 3, 0, 0, 6, 100} {
		r.Dispatch(ctx, s, makePacket(t, seq, "msg", nil))
	}
	// 5, 0, 0, 6 and 100 run; the repeat of 5 and the late 3 do not.
	assert.Equal(t, 5, n)
	assert.Empty(t, s.SendChan)
}

func TestRouter_HandlerFailures(t *testing.T) {
	r := NewRouter(nop())
	r.On("err", func(context.Context, *player.PlayerSession, json.RawMessage) error {
		return assert.AnError
	})
	r.On("boom", func(context.Context, *player.PlayerSession, json.RawMessage) error {
		panic("boom")
	})
	var n int
	r.On("after", counter(&n))
	s := newSession(1, "Thrall")
	ctx := context.Background()

	r.Dispatch(ctx, s, makePacket(t, 1, "err", nil))
	assert.Equal(t, "internal error", errorMessage(t, s))
	assert.NotPanics(t, func() { r.Dispatch(ctx, s, makePacket(t, 2, "boom", nil)) })
	assert.Equal(t, "internal error", errorMessage(t, s))

	r.Dispatch(ctx, s, makePacket(t, 3, "after", nil))
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(2), r.Failed())
}

func TestRouter_DuplicateRegistrationPanics(t *testing.T) {
	r := NewRouter(nop())
	var n int
	r.On("msg", counter(&n))
	assert.Panics(t, func() { r.On("msg", counter(&n)) })
}

func TestRouter_Types(t *testing.T) {
	r := NewRouter(nop())
	NewBankHandlers(nil, nil, 0, nop()).RegisterHandlers(r)
	assert.Equal(t, []string{
		"guild_bank_deposit_money",
		"guild_bank_query_money",
		"guild_bank_query_tab",
		"guild_bank_swap",
		"guild_bank_swap_inventory",
		"guild_bank_withdraw_money",
		"ping",
	}, r.Types())
}
