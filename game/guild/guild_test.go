package guild

import (
	"sync"
	"testing"

	"github.com/kasuganosora/guildbank/game/item"
	"github.com/stretchr/testify/require"
)

const (
	linen       = 2589
	runecloth   = 14047
	hearthstone = 6948
)

type sent struct {
	charID  int64
	event   string
	payload interface{}
}

// recorder is a Notifier that keeps everything it is asked to deliver.
type recorder struct {
	mu   sync.Mutex
	sent []sent
}

func (r *recorder) Notify(charID int64, event string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{charID, event, payload})
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.sent = nil
	r.mu.Unlock()
}

func (r *recorder) to(charID int64, event string) []interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []interface{}
	for _, s := range r.sent {
		if s.charID == charID && s.event == event {
			out = append(out, s.payload)
		}
	}
	return out
}

func (r *recorder) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sent {
		if s.event == event {
			n++
		}
	}
	return n
}

// batchRecorder also keeps each batch it was handed.
type batchRecorder struct {
	recorder
	batches [][]Delivery
}

func (r *batchRecorder) NotifyBatch(ds []Delivery) {
	r.mu.Lock()
	r.batches = append(r.batches, ds)
	r.mu.Unlock()
	for _, d := range ds {
		r.Notify(d.CharID, d.Event, d.Payload)
	}
}

const initiateRank uint8 = 4

type fixture struct {
	reg    *Registry
	g      *Guild
	notes  *recorder
	leader *Actor
	member *Actor
}

func newActor(charID int64, name string, money uint64) *Actor {
	return &Actor{CharID: charID, Name: name, Inv: item.NewInventory(charID, money)}
}

// newFixture creates a guild with one purchased tab, a leader and one
// Initiate who may view, deposit and withdraw twice a day on tab 0.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	notes := &recorder{}
	reg := NewRegistry(Deps{Notifier: notes})
	f := &fixture{
		reg:    reg,
		notes:  notes,
		leader: newActor(1, "Thrall", 10_000*Gold),
		member: newActor(2, "Rexxar", 0),
	}
	g, err := reg.Create(f.leader, "Horde Bankers")
	require.NoError(t, err)
	f.g = g
	require.NoError(t, g.BuyBankTab(f.leader, 0))
	require.NoError(t, g.AddMember(f.leader, f.member.CharID, f.member.Name))
	f.setTabRights(t, initiateRank, 0, BankTabRights{
		Rights:      BankRightView | BankRightDeposit | BankRightWithdraw,
		SlotsPerDay: 2,
	})
	notes.reset()
	return f
}

func (f *fixture) setTabRights(t *testing.T, rankID, tab uint8, tr BankTabRights) {
	t.Helper()
	r := f.g.rank(rankID)
	require.NotNil(t, r)
	tabs := make([]BankTabRights, len(f.g.tabs))
	for i := range tabs {
		tabs[i] = BankTabRights{Rights: r.tabs[i].Rights, SlotsPerDay: r.tabs[i].SlotsPerDay}
	}
	tabs[tab] = tr
	require.NoError(t, f.g.SetRankInfo(f.leader, rankID, RankSettings{
		Name:        r.name,
		Rights:      r.rights,
		MoneyPerDay: r.moneyPerDay,
		Tabs:        tabs,
	}))
}

// put places a stack straight into a bank slot.
func (f *fixture) put(tab, slot uint8, st *item.Stack) {
	f.g.tabs[tab].items[slot] = st
}

func (f *fixture) slot(tab, slot uint8) *item.Stack {
	f.g.mu.RLock()
	defer f.g.mu.RUnlock()
	return f.g.tabs[tab].GetItem(slot)
}

func (f *fixture) inv(a *Actor) *item.Inventory { return a.Inv.(*item.Inventory) }

// bankCount sums entry across every tab.
func (f *fixture) bankCount(entry uint32) uint32 {
	f.g.mu.RLock()
	defer f.g.mu.RUnlock()
	var n uint32
	for _, t := range f.g.tabs {
		for _, st := range t.items {
			if st != nil && st.Entry == entry {
				n += st.Count
			}
		}
	}
	return n
}

func (f *fixture) withdrawn(charID int64, tab uint8) uint32 {
	m, ok := f.g.Member(charID)
	if !ok {
		return 0
	}
	return m.BankWithdrawn[tab]
}
