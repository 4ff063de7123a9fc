package guild

import (
	"sort"
	"sync"
	"time"

	"github.com/kasuganosora/guildbank/game/item"
	"github.com/kasuganosora/guildbank/persist"
	"go.uber.org/zap"
)

// LogCapacities sets the size of each log kind.
type LogCapacities struct {
	Event     int
	BankEvent int
	News      int
}

// Deps are the collaborators shared by every guild.
type Deps struct {
	Store    persist.Committer
	Notifier Notifier
	Logs     LogCapacities
	Logger   *zap.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Logs.Event <= 0 {
		d.Logs.Event = DefaultEventLogCapacity
	}
	if d.Logs.BankEvent <= 0 {
		d.Logs.BankEvent = DefaultBankEventLogCapacity
	}
	if d.Logs.News <= 0 {
		d.Logs.News = DefaultNewsLogCapacity
	}
	return d
}

// Actor is the character performing an operation.
type Actor struct {
	CharID int64
	Name   string
	// Inv is required by operations that touch the player's bags or wallet.
	Inv Inventory
}

// Guild owns the bank, ranks, members and logs of one guild. Every
// operation holds the guild lock from validation to commit; notifications
// are sent after it is released.
type Guild struct {
	mu sync.RWMutex

	id        int64
	name      string
	leaderID  int64
	info      string
	createdAt time.Time
	bankMoney uint64

	ranks   []*RankInfo
	members map[int64]*Member
	tabs    []*BankTab

	eventLog     *LogHolder[EventLogEntry]
	newsLog      *LogHolder[NewsLogEntry]
	bankEventLog [MaxBankTabs + 1]*LogHolder[BankEventLogEntry]

	reg      *Registry
	store    persist.Committer
	notifier Notifier
	logger   *zap.Logger
}

func newGuild(id int64, name string, deps Deps) *Guild {
	g := &Guild{
		id:        id,
		name:      name,
		createdAt: time.Now(),
		members:   make(map[int64]*Member),
		eventLog:  newLogHolder[EventLogEntry](deps.Logs.Event),
		newsLog:   newLogHolder[NewsLogEntry](deps.Logs.News),
		store:     deps.Store,
		notifier:  deps.Notifier,
		logger:    deps.Logger.With(zap.Int64("guild_id", id)),
	}
	for i := range g.bankEventLog {
		g.bankEventLog[i] = newLogHolder[BankEventLogEntry](deps.Logs.BankEvent)
	}
	return g
}

// op collects the writes and notifications of one operation.
type op struct {
	actor    *Actor
	member   *Member
	batch    *persist.Batch
	out      []Delivery
	equipErr item.Result
	invDirty bool
}

func (o *op) notify(charID int64, event string, payload interface{}) {
	o.out = append(o.out, Delivery{CharID: charID, Event: event, Payload: payload})
}

func (o *op) sendEquipError(res item.Result, st *item.Stack) {
	o.equipErr = res
	ev := EquipErrorEvent{Result: res}
	if st != nil {
		ev.Entry, ev.GUID = st.Entry, st.GUID
	}
	o.notify(o.actor.CharID, EventEquipError, ev)
}

// failure prefers an equip error already reported to the player over err.
func (o *op) failure(err error) error {
	if o.equipErr != item.ResultOK {
		return &EquipError{Result: o.equipErr}
	}
	return err
}

// inventoryPersister is implemented by inventories that can add their own
// save to a batch.
type inventoryPersister interface {
	Persist(b *persist.Batch)
}

// exec runs fn under the write lock. The batch is committed before the lock
// is released so batches reach the store in the order their changes were
// made.
func (g *Guild) exec(actor *Actor, fn func(o *op) error) error {
	g.mu.Lock()
	o := &op{actor: actor, batch: persist.NewBatch()}
	if actor != nil {
		o.member = g.members[actor.CharID]
	}
	err := fn(o)
	if o.invDirty {
		if p, ok := actor.Inv.(inventoryPersister); ok {
			p.Persist(o.batch)
		}
	}
	if g.store != nil && !o.batch.Empty() {
		g.store.Commit(o.batch)
	}
	g.mu.Unlock()

	g.flush(o.out)
	return err
}

// flush hands the deliveries of one operation to the notifier, in one call
// when it supports batches.
func (g *Guild) flush(out []Delivery) {
	if len(out) == 0 {
		return
	}
	if b, ok := g.notifier.(BatchNotifier); ok {
		b.NotifyBatch(out)
		return
	}
	for _, d := range out {
		g.notifier.Notify(d.CharID, d.Event, d.Payload)
	}
}

// execMember is exec for operations that require the actor to be a member.
func (g *Guild) execMember(actor *Actor, fn func(o *op) error) error {
	return g.exec(actor, func(o *op) error {
		if o.member == nil {
			return ErrNotMember
		}
		return fn(o)
	})
}

func (g *Guild) ID() int64 { return g.id }

func (g *Guild) Name() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.name
}

func (g *Guild) LeaderID() int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.leaderID
}

// BankMoney returns the bank balance in copper.
func (g *Guild) BankMoney() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.bankMoney
}

// PurchasedTabs returns the number of bank tabs bought so far.
func (g *Guild) PurchasedTabs() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.tabs)
}

// IsMember reports whether charID belongs to the guild.
func (g *Guild) IsMember(charID int64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.members[charID]
	return ok
}

func (g *Guild) bankTab(tab uint8) *BankTab {
	if int(tab) >= len(g.tabs) {
		return nil
	}
	return g.tabs[tab]
}

func (g *Guild) rank(id uint8) *RankInfo {
	for _, r := range g.ranks {
		if r.id == id {
			return r
		}
	}
	return nil
}

func (g *Guild) rankByOrder(order uint8) *RankInfo {
	if int(order) >= len(g.ranks) {
		return nil
	}
	return g.ranks[order]
}

func (g *Guild) lowestRank() *RankInfo { return g.ranks[len(g.ranks)-1] }

func (g *Guild) sortRanks() {
	sort.Slice(g.ranks, func(i, j int) bool { return g.ranks[i].order < g.ranks[j].order })
}

func (g *Guild) memberRank(m *Member) *RankInfo {
	if m == nil {
		return nil
	}
	return g.rank(m.rankID)
}

func (g *Guild) isLeader(m *Member) bool {
	r := g.memberRank(m)
	return r != nil && r.IsGuildMaster()
}

func (g *Guild) memberHasRight(m *Member, want RankRights) bool {
	r := g.memberRank(m)
	return r != nil && r.HasRight(want)
}

func (g *Guild) memberHasTabRights(m *Member, tab uint8, want BankRights) bool {
	r := g.memberRank(m)
	if r == nil {
		return false
	}
	return r.TabRights(tab).Has(want)
}

// remainingSlots returns how many more item withdrawals m may make from
// tab today.
func (g *Guild) remainingSlots(m *Member, tab uint8) Quota {
	r := g.memberRank(m)
	if r == nil {
		return Limited(0)
	}
	return r.SlotQuota(tab).Sub(uint64(m.BankWithdrawn(tab)))
}

// remainingMoney returns how much copper m may still withdraw today.
func (g *Guild) remainingMoney(m *Member) Quota {
	r := g.memberRank(m)
	if r == nil {
		return Limited(0)
	}
	return r.MoneyQuota().Sub(m.bankWithdrawMoney)
}

func (g *Guild) updateMemberWithdrawSlots(o *op, m *Member, tab uint8) {
	if m == nil || int(tab) >= MaxBankTabs {
		return
	}
	m.bankWithdraw[tab]++
	o.batch.Save(m.withdrawRecord())
}

func (g *Guild) broadcast(o *op, event string, payload interface{}) {
	for _, m := range g.members {
		o.notify(m.charID, event, payload)
	}
}

func (g *Guild) broadcastTab(o *op, tab uint8, event string, payload interface{}) {
	for _, m := range g.members {
		if g.memberHasTabRights(m, tab, BankRightView) {
			o.notify(m.charID, event, payload)
		}
	}
}

func (g *Guild) logBankEvent(o *op, typ BankEventLogType, tab uint8, itemOrMoney uint64, count uint32, destTab uint8) {
	if int(tab) > MaxBankTabs {
		return
	}
	if typ == BankEventMoveItem && tab == destTab {
		return
	}
	if typ.IsMoneyEvent() {
		tab = MoneyLogTab
	}
	h := g.bankEventLog[tab]
	e := BankEventLogEntry{
		GUID:           h.NextGUID(),
		Tab:            tab,
		Type:           typ,
		PlayerGUID:     o.actor.CharID,
		ItemOrMoney:    itemOrMoney,
		ItemStackCount: count,
		DestTab:        destTab,
		Timestamp:      time.Now(),
	}
	h.Add(e)
	o.batch.Save(e.record(g.id))
}

func (g *Guild) logEvent(o *op, typ EventLogType, player1, player2 int64, newRank uint8) {
	e := EventLogEntry{
		GUID:        g.eventLog.NextGUID(),
		Type:        typ,
		PlayerGUID1: player1,
		PlayerGUID2: player2,
		NewRank:     newRank,
		Timestamp:   time.Now(),
	}
	g.eventLog.Add(e)
	o.batch.Save(e.record(g.id))
}

func (g *Guild) logNews(o *op, typ NewsType, player int64, value uint32) {
	e := NewsLogEntry{
		GUID:       g.newsLog.NextGUID(),
		Type:       typ,
		PlayerGUID: player,
		Value:      value,
		Timestamp:  time.Now(),
	}
	g.newsLog.Add(e)
	o.batch.Save(e.record(g.id))
}
