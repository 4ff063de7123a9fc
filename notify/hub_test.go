package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/kasuganosora/guildbank/game/guild"
	"github.com/kasuganosora/guildbank/game/player"
	"github.com/kasuganosora/guildbank/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var _ guild.BatchNotifier = (*Hub)(nil)

func newHub(t *testing.T) (*Hub, *player.SessionManager) {
	t.Helper()
	c, ps := testutil.SetupTestCache(t)
	sm := player.NewSessionManager(zap.NewNop())
	return NewHub(ps, c, sm, zap.NewNop()), sm
}

func fakeSession(charID int64) *player.PlayerSession {
	return &player.PlayerSession{
		CharID:   charID,
		SendChan: make(chan []byte, 16),
		Done:     make(chan struct{}),
	}
}

func readPacket(t *testing.T, s *player.PlayerSession) player.Packet {
	t.Helper()
	var pkt player.Packet
	select {
	case data := <-s.SendChan:
		require.NoError(t, json.Unmarshal(data, &pkt))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for packet")
	}
	return pkt
}

func TestNotify_DeliversToLocalSession(t *testing.T) {
	hub, _ := newHub(t)
	s := fakeSession(5)
	require.NoError(t, hub.Attach(context.Background(), s))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()

	// The subscription is set up asynchronously; keep publishing until it lands.
	require.Eventually(t, func() bool {
		hub.Notify(5, guild.EventBankMoney, guild.BankMoneyEvent{GuildID: 1, Money: 300})
		return len(s.SendChan) > 0
	}, time.Second, 10*time.Millisecond)

	pkt := readPacket(t, s)
	assert.Equal(t, guild.EventBankMoney, pkt.Type)
	var ev guild.BankMoneyEvent
	require.NoError(t, json.Unmarshal(pkt.Payload, &ev))
	assert.Equal(t, uint64(300), ev.Money)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestDeliver_SkipsOtherNodesCharacters(t *testing.T) {
	hub, _ := newHub(t)
	s := fakeSession(5)
	require.NoError(t, hub.Attach(context.Background(), s))

	hub.deliver(`{"char_id":6,"event":"guild_bank_money","payload":{}}`)
	hub.deliver(`not json`)
	assert.Empty(t, s.SendChan)

	hub.deliver(`{"char_id":5,"event":"equip_error","payload":{"result":3}}`)
	pkt := readPacket(t, s)
	assert.Equal(t, "equip_error", pkt.Type)
	assert.JSONEq(t, `{"result":3}`, string(pkt.Payload))

	hub.deliver(`[{"char_id":6,"event":"guild_bank_money","payload":{}},` +
		`{"char_id":5,"event":"guild_bank_money","payload":{"money":9}},` +
		`{"char_id":5,"event":"guild_bank_tab","payload":{"tab":1}}]`)
	pkt = readPacket(t, s)
	assert.Equal(t, "guild_bank_money", pkt.Type)
	assert.JSONEq(t, `{"money":9}`, string(pkt.Payload))
	assert.Equal(t, "guild_bank_tab", readPacket(t, s).Type)
	assert.Empty(t, s.SendChan)
}

func TestNotifyBatch_PublishesOneMessagePerOperation(t *testing.T) {
	c, ps := testutil.SetupTestCache(t)
	hub := NewHub(ps, c, player.NewSessionManager(zap.NewNop()), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed, unsub, err := ps.Subscribe(ctx, Channel)
	require.NoError(t, err)
	defer unsub()

	money := guild.BankMoneyEvent{GuildID: 1, Money: 700}
	hub.NotifyBatch([]guild.Delivery{
		{CharID: 1, Event: guild.EventBankMoney, Payload: money},
		{CharID: 2, Event: guild.EventBankMoney, Payload: money},
		{CharID: 3, Event: guild.EventBankMoney, Payload: money},
		{CharID: 2, Event: guild.EventEquipError, Payload: guild.EquipErrorEvent{}},
	})

	var raw string
	select {
	case msg := <-feed:
		raw = msg.Payload
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	envs, err := Decode(raw)
	require.NoError(t, err)
	require.Len(t, envs, 4)
	assert.Equal(t, []int64{1, 2, 3, 2}, []int64{envs[0].CharID, envs[1].CharID, envs[2].CharID, envs[3].CharID})
	assert.JSONEq(t, `{"guild_id":1,"money":700}`, string(envs[1].Payload))
	assert.Equal(t, guild.EventEquipError, envs[3].Event)

	select {
	case msg := <-feed:
		t.Fatalf("unexpected second message %q", msg.Payload)
	case <-time.After(50 * time.Millisecond):
	}

	hub.NotifyBatch(nil)
	select {
	case msg := <-feed:
		t.Fatalf("empty batch published %q", msg.Payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPresence(t *testing.T) {
	hub, sm := newHub(t)
	ctx := context.Background()
	old := fakeSession(9)
	cur := fakeSession(9)

	require.NoError(t, hub.Attach(ctx, old))
	require.NoError(t, hub.Attach(ctx, cur))
	assert.True(t, old.IsClosed())
	assert.True(t, hub.Online(ctx, 9))

	// The displaced session leaving must not mark the character offline.
	require.NoError(t, hub.Detach(ctx, old))
	assert.True(t, hub.Online(ctx, 9))
	assert.Same(t, cur, sm.Get(9))

	require.NoError(t, hub.Detach(ctx, cur))
	assert.False(t, hub.Online(ctx, 9))
	assert.False(t, hub.Online(ctx, 10))
}
